package monitor

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/afroash/smoker-monitor/internal/models"
)

// State is the fill state of a station monitor
type State int

const (
	StateFilling State = iota
	StateFull
)

func (s State) String() string {
	switch s {
	case StateFilling:
		return "filling"
	case StateFull:
		return "full"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StationMonitor owns the window and policy of one station.
type StationMonitor struct {
	station models.Station
	window  *Window
	policy  Policy
	sink    AlertSink
	newID   func() string

	mutex         sync.RWMutex
	totalReadings int64
	totalAlerts   int64
	lastAlert     *models.AlertEvent
	lastReadingAt time.Time
}

// Snapshot is a read-only view of a station monitor
type Snapshot struct {
	Station       models.Station     `json:"station"`
	State         State              `json:"state"`
	Length        int                `json:"length"`
	Capacity      int                `json:"capacity"`
	Oldest        *models.Reading    `json:"oldest,omitempty"`
	Newest        *models.Reading    `json:"newest,omitempty"`
	TotalReadings int64              `json:"total_readings"`
	TotalAlerts   int64              `json:"total_alerts"`
	LastAlert     *models.AlertEvent `json:"last_alert,omitempty"`
	LastReadingAt time.Time          `json:"last_reading_at,omitempty"`
}

// NewStationMonitor creates a monitor for station that forwards alerts to sink.
// A nil sink discards alerts.
func NewStationMonitor(station models.Station, sink AlertSink) *StationMonitor {
	return &StationMonitor{
		station: station,
		window:  NewWindow(station.WindowSize),
		policy:  PolicyFor(station.Class),
		sink:    sink,
		newID:   uuid.NewString,
	}
}

// Station returns the station this monitor watches
func (m *StationMonitor) Station() models.Station {
	return m.station
}

// Observe appends the reading and, once the window is full, evaluates the
// policy. A matching alert is forwarded to the sink and returned.
// Every full-window append is evaluated, so a persisting condition re-alerts.
func (m *StationMonitor) Observe(reading models.Reading) (models.AlertEvent, bool) {
	m.mutex.Lock()
	full := m.window.Append(reading)
	m.totalReadings++
	m.lastReadingAt = reading.Timestamp

	if !full {
		m.mutex.Unlock()
		return models.AlertEvent{}, false
	}

	alert, ok := m.policy.Evaluate(m.window.readings)
	if ok {
		alert.ID = m.newID()
		alert.StationID = m.station.ID
		m.totalAlerts++
		last := alert
		m.lastAlert = &last
	}
	m.mutex.Unlock()

	if ok && m.sink != nil {
		m.sink.Emit(alert)
	}
	return alert, ok
}

// State returns the current fill state
func (m *StationMonitor) State() State {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if m.window.IsFull() {
		return StateFull
	}
	return StateFilling
}

// Len returns the number of readings in the window
func (m *StationMonitor) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.window.Len()
}

// Readings returns a copy of the window, oldest first
func (m *StationMonitor) Readings() []models.Reading {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.window.Snapshot()
}

// Snapshot returns a consistent view of the monitor
func (m *StationMonitor) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Station:       m.station,
		State:         StateFilling,
		Length:        m.window.Len(),
		Capacity:      m.window.Capacity(),
		TotalReadings: m.totalReadings,
		TotalAlerts:   m.totalAlerts,
		LastReadingAt: m.lastReadingAt,
	}
	if m.window.IsFull() {
		snap.State = StateFull
	}
	if oldest, err := m.window.Oldest(); err == nil {
		snap.Oldest = &oldest
	}
	if newest, err := m.window.Newest(); err == nil {
		snap.Newest = &newest
	}
	if m.lastAlert != nil {
		last := *m.lastAlert
		snap.LastAlert = &last
	}
	return snap
}
