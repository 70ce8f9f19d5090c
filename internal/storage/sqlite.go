package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/afroash/smoker-monitor/internal/models"
)

const sqliteTimeLayout = "2006-01-02 15:04:05"

// Store defines the interface for alert history storage
type Store interface {
	Close() error
	Migrate() error
	InsertAlert(alert models.AlertEvent) error
	InsertBatch(alerts []models.AlertEvent) error
	GetAlertsInRange(station models.StationID, start, end time.Time, limit int) ([]models.AlertEvent, error)
	GetRecentAlerts(station models.StationID, limit int) ([]models.AlertEvent, error)
	GetAlertSummary(station models.StationID) ([]AlertSummary, error)
	DeleteOlderThan(days int) (int64, error)
	GetStorageStats() (*StorageStats, error)
}

// Compile-time interface check
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore keeps the history of emitted alerts
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// AlertSummary aggregates the alerts of one station and kind
type AlertSummary struct {
	StationID       models.StationID `json:"station_id"`
	Kind            models.AlertKind `json:"kind"`
	Count           int              `json:"count"`
	MinCurrentTemp  float64          `json:"min_current_temp"`
	MaxCurrentTemp  float64          `json:"max_current_temp"`
	FirstObservedAt time.Time        `json:"first_observed_at"`
	LastObservedAt  time.Time        `json:"last_observed_at"`
}

// StorageStats contains information about the database
type StorageStats struct {
	TotalAlerts    int64     `json:"total_alerts"`
	OldestAlert    time.Time `json:"oldest_alert,omitempty"`
	NewestAlert    time.Time `json:"newest_alert,omitempty"`
	UniqueStations int       `json:"unique_stations"`
	DatabaseSizeMB float64   `json:"database_size_mb"`
}

// NewSQLiteStore opens (or creates) the database at dbPath and migrates it
func NewSQLiteStore(dbPath string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	// Single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info().Str("path", dbPath).Msg("Alert store initialized")

	return store, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate creates the database schema if it doesn't exist
func (s *SQLiteStore) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS alerts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		alert_id TEXT NOT NULL,
		station_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		initial_temp REAL NOT NULL,
		current_temp REAL NOT NULL,
		observed_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_alerts_station_time ON alerts(station_id, observed_at DESC);
	CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.logger.Debug().Msg("Database schema migrated")
	return nil
}

const insertAlertSQL = `
	INSERT INTO alerts (alert_id, station_id, kind, initial_temp, current_temp, observed_at)
	VALUES (?, ?, ?, ?, ?, ?)
`

// InsertAlert stores a single alert
func (s *SQLiteStore) InsertAlert(alert models.AlertEvent) error {
	_, err := s.db.Exec(insertAlertSQL,
		alert.ID,
		string(alert.StationID),
		string(alert.Kind),
		alert.InitialTemp,
		alert.CurrentTemp,
		alert.Timestamp.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// InsertBatch stores multiple alerts in a single transaction
func (s *SQLiteStore) InsertBatch(alerts []models.AlertEvent) error {
	if len(alerts) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(insertAlertSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, alert := range alerts {
		_, err := stmt.Exec(
			alert.ID,
			string(alert.StationID),
			string(alert.Kind),
			alert.InitialTemp,
			alert.CurrentTemp,
			alert.Timestamp.UTC().Format(sqliteTimeLayout),
		)
		if err != nil {
			return fmt.Errorf("failed to insert alert in batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug().Int("count", len(alerts)).Msg("Batch insert completed")
	return nil
}

// GetAlertsInRange returns alerts observed within [start, end], newest first.
// An empty station matches every station.
func (s *SQLiteStore) GetAlertsInRange(station models.StationID, start, end time.Time, limit int) ([]models.AlertEvent, error) {
	query := `
		SELECT alert_id, station_id, kind, initial_temp, current_temp, observed_at
		FROM alerts
		WHERE (? = '' OR station_id = ?) AND observed_at BETWEEN ? AND ?
		ORDER BY observed_at DESC, id DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query,
		string(station), string(station),
		start.UTC().Format(sqliteTimeLayout),
		end.UTC().Format(sqliteTimeLayout),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// GetRecentAlerts returns the most recently stored alerts, newest first.
// An empty station matches every station.
func (s *SQLiteStore) GetRecentAlerts(station models.StationID, limit int) ([]models.AlertEvent, error) {
	query := `
		SELECT alert_id, station_id, kind, initial_temp, current_temp, observed_at
		FROM alerts
		WHERE (? = '' OR station_id = ?)
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, string(station), string(station), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent alerts: %w", err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// GetAlertSummary aggregates alerts per station and kind.
// An empty station matches every station.
func (s *SQLiteStore) GetAlertSummary(station models.StationID) ([]AlertSummary, error) {
	query := `
		SELECT
			station_id,
			kind,
			COUNT(*),
			MIN(current_temp),
			MAX(current_temp),
			MIN(observed_at),
			MAX(observed_at)
		FROM alerts
		WHERE (? = '' OR station_id = ?)
		GROUP BY station_id, kind
		ORDER BY station_id, kind
	`

	rows, err := s.db.Query(query, string(station), string(station))
	if err != nil {
		return nil, fmt.Errorf("failed to query alert summary: %w", err)
	}
	defer rows.Close()

	var summaries []AlertSummary
	for rows.Next() {
		var sum AlertSummary
		var stationID, kind, first, last string

		err := rows.Scan(&stationID, &kind, &sum.Count, &sum.MinCurrentTemp, &sum.MaxCurrentTemp, &first, &last)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert summary: %w", err)
		}
		sum.StationID = models.StationID(stationID)
		sum.Kind = models.AlertKind(kind)
		if sum.FirstObservedAt, err = parseTimestamp(first); err != nil {
			return nil, err
		}
		if sum.LastObservedAt, err = parseTimestamp(last); err != nil {
			return nil, err
		}
		summaries = append(summaries, sum)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return summaries, nil
}

// DeleteOlderThan removes alerts stored more than days ago.
// Age is taken from created_at, since replayed feeds carry historical
// observation times.
func (s *SQLiteStore) DeleteOlderThan(days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	result, err := s.db.Exec(
		"DELETE FROM alerts WHERE created_at < ?",
		cutoff.Format(sqliteTimeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old alerts: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	s.logger.Info().
		Int("days", days).
		Int64("deleted", deleted).
		Time("cutoff", cutoff).
		Msg("Deleted old alerts")

	return deleted, nil
}

// GetStorageStats returns statistics about the database
func (s *SQLiteStore) GetStorageStats() (*StorageStats, error) {
	stats := &StorageStats{}

	err := s.db.QueryRow("SELECT COUNT(*) FROM alerts").Scan(&stats.TotalAlerts)
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts: %w", err)
	}

	if stats.TotalAlerts == 0 {
		return stats, nil
	}

	var oldest, newest string
	err = s.db.QueryRow("SELECT MIN(observed_at), MAX(observed_at) FROM alerts").Scan(&oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("failed to get timestamp range: %w", err)
	}
	stats.OldestAlert, _ = parseTimestamp(oldest)
	stats.NewestAlert, _ = parseTimestamp(newest)

	err = s.db.QueryRow("SELECT COUNT(DISTINCT station_id) FROM alerts").Scan(&stats.UniqueStations)
	if err != nil {
		return nil, fmt.Errorf("failed to count stations: %w", err)
	}

	var pageCount, pageSize int64
	s.db.QueryRow("PRAGMA page_count").Scan(&pageCount)
	s.db.QueryRow("PRAGMA page_size").Scan(&pageSize)
	stats.DatabaseSizeMB = float64(pageCount*pageSize) / (1024 * 1024)

	return stats, nil
}

// scanAlerts scans alert rows in query order
func scanAlerts(rows *sql.Rows) ([]models.AlertEvent, error) {
	alerts := []models.AlertEvent{}

	for rows.Next() {
		var a models.AlertEvent
		var stationID, kind, observedAt string

		err := rows.Scan(&a.ID, &stationID, &kind, &a.InitialTemp, &a.CurrentTemp, &observedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.StationID = models.StationID(stationID)
		a.Kind = models.AlertKind(kind)

		a.Timestamp, err = parseTimestamp(observedAt)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return alerts, nil
}

var errBadTimestamp = errors.New("unable to parse timestamp")

// parseTimestamp accepts the layouts SQLite and the driver may hand back
func parseTimestamp(ts string) (time.Time, error) {
	formats := []string{
		sqliteTimeLayout,
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02 15:04:05.000",
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, ts); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %s", errBadTimestamp, ts)
}
