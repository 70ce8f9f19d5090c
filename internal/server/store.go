package server

import (
	"sync"
	"time"

	"github.com/afroash/smoker-monitor/internal/models"
)

// AlertStore keeps the most recent alerts of each station in memory.
// It is an alert sink.
type AlertStore struct {
	capacity    int
	data        map[models.StationID][]models.AlertEvent
	recent      []models.AlertEvent
	mutex       sync.RWMutex
	totalAlerts int64
	lastAlertAt time.Time
}

// AlertStoreStats contains statistics about the alert store
type AlertStoreStats struct {
	TotalAlerts   int64                      `json:"total_alerts"`
	CurrentAlerts int                        `json:"current_alerts"`
	PerStation    map[models.StationID]int64 `json:"per_station"`
	LastAlertAt   time.Time                  `json:"last_alert_at,omitempty"`
}

// NewAlertStore creates a store that holds up to capacity alerts per station
func NewAlertStore(capacity int) *AlertStore {
	if capacity <= 0 {
		capacity = 100
	}
	return &AlertStore{
		capacity: capacity,
		data:     make(map[models.StationID][]models.AlertEvent),
	}
}

// Emit records an alert
func (s *AlertStore) Emit(alert models.AlertEvent) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	alerts := s.data[alert.StationID]
	if len(alerts) >= s.capacity {
		alerts = alerts[1:]
	}
	s.data[alert.StationID] = append(alerts, alert)

	if len(s.recent) >= s.capacity {
		s.recent = s.recent[1:]
	}
	s.recent = append(s.recent, alert)

	s.totalAlerts++
	s.lastAlertAt = alert.Timestamp
}

// GetRecent returns up to n alerts for a station, newest first.
// An empty station returns the most recent alerts across all stations.
func (s *AlertStore) GetRecent(stationID models.StationID, n int) []models.AlertEvent {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	alerts := s.recent
	if stationID != "" {
		alerts = s.data[stationID]
	}

	start := len(alerts) - n
	if start < 0 {
		start = 0
	}

	result := make([]models.AlertEvent, 0, len(alerts)-start)
	for i := len(alerts) - 1; i >= start; i-- {
		result = append(result, alerts[i])
	}
	return result
}

// Stats returns statistics about the store
func (s *AlertStore) Stats() AlertStoreStats {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	stats := AlertStoreStats{
		TotalAlerts: s.totalAlerts,
		PerStation:  make(map[models.StationID]int64, len(s.data)),
		LastAlertAt: s.lastAlertAt,
	}
	for id, alerts := range s.data {
		stats.CurrentAlerts += len(alerts)
		stats.PerStation[id] = int64(len(alerts))
	}
	return stats
}

// Clear removes all alerts from the store
func (s *AlertStore) Clear() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.data = make(map[models.StationID][]models.AlertEvent)
	s.recent = nil
	s.totalAlerts = 0
	s.lastAlertAt = time.Time{}
}
