package server

import (
	"time"

	"github.com/afroash/smoker-monitor/internal/models"
	"github.com/afroash/smoker-monitor/internal/monitor"
	"github.com/afroash/smoker-monitor/internal/notify"
	"github.com/afroash/smoker-monitor/internal/storage"
)

// StationSource exposes the live station monitors
// monitor.Router implements this interface
type StationSource interface {
	// Snapshots returns a view of every station in configuration order
	Snapshots() []monitor.Snapshot

	// Monitor returns the monitor for one station
	Monitor(stationID models.StationID) (*monitor.StationMonitor, bool)
}

// AlertReader serves the recent alerts kept in memory
// AlertStore implements this interface
type AlertReader interface {
	// GetRecent returns up to n alerts, newest first. An empty station
	// matches every station.
	GetRecent(stationID models.StationID, n int) []models.AlertEvent

	// Stats returns statistics about the store
	Stats() AlertStoreStats

	// Clear drops every retained alert
	Clear()
}

// HistoricalStore defines the interface for persisted alert history
// storage.SQLiteStore implements this interface
type HistoricalStore interface {
	// GetAlertsInRange returns alerts observed in [start, end], newest first
	GetAlertsInRange(stationID models.StationID, start, end time.Time, limit int) ([]models.AlertEvent, error)

	// GetAlertSummary aggregates alerts per station and kind
	GetAlertSummary(stationID models.StationID) ([]storage.AlertSummary, error)

	// GetStorageStats returns database statistics
	GetStorageStats() (*storage.StorageStats, error)
}

// WriterStats reports the history writer's counters
// storage.DBWriter implements this interface
type WriterStats interface {
	Stats() storage.DBWriterStats
}

// RetentionStats reports the retention cleaner's counters
// storage.RetentionCleaner implements this interface
type RetentionStats interface {
	Stats() storage.RetentionCleanerStats
}

// PublisherStats reports the Redis publisher's counters
// notify.RedisPublisher implements this interface
type PublisherStats interface {
	Stats() notify.RedisPublisherStats
}

var (
	_ WriterStats       = (*storage.DBWriter)(nil)
	_ RetentionStats    = (*storage.RetentionCleaner)(nil)
	_ PublisherStats    = (*notify.RedisPublisher)(nil)
	_ StationSource     = (*monitor.Router)(nil)
	_ AlertReader       = (*AlertStore)(nil)
	_ HistoricalStore   = (*storage.SQLiteStore)(nil)
	_ monitor.AlertSink = (*AlertStore)(nil)
	_ monitor.AlertSink = (*Hub)(nil)
)
