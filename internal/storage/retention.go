package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Pruner deletes history older than a number of days
type Pruner interface {
	DeleteOlderThan(days int) (int64, error)
}

// RetentionCleanerConfig holds configuration for the cleaner
type RetentionCleanerConfig struct {
	RetentionDays int           // Days of alert history to keep (default: 30)
	CleanupPeriod time.Duration // How often to prune (default: 1 hour)
}

// DefaultRetentionCleanerConfig returns the default cleaner settings
func DefaultRetentionCleanerConfig() RetentionCleanerConfig {
	return RetentionCleanerConfig{
		RetentionDays: 30,
		CleanupPeriod: time.Hour,
	}
}

// RetentionCleanerStats contains statistics about the cleaner
type RetentionCleanerStats struct {
	TotalDeleted    int64     `json:"total_deleted"`
	TotalCleanups   int64     `json:"total_cleanups"`
	TotalErrors     int64     `json:"total_errors"`
	LastCleanup     time.Time `json:"last_cleanup,omitempty"`
	LastDeleteCount int64     `json:"last_delete_count"`
	RetentionDays   int       `json:"retention_days"`
}

// RetentionCleaner prunes alert history past the retention window.
// Run drives it on a schedule; RunNow prunes once.
type RetentionCleaner struct {
	store  Pruner
	config RetentionCleanerConfig
	logger zerolog.Logger

	mu    sync.RWMutex
	stats RetentionCleanerStats
}

// NewRetentionCleaner creates a cleaner. Non-positive settings fall back
// to DefaultRetentionCleanerConfig.
func NewRetentionCleaner(store Pruner, config RetentionCleanerConfig, logger zerolog.Logger) *RetentionCleaner {
	defaults := DefaultRetentionCleanerConfig()
	if config.RetentionDays <= 0 {
		config.RetentionDays = defaults.RetentionDays
	}
	if config.CleanupPeriod <= 0 {
		logger.Warn().
			Dur("provided_period", config.CleanupPeriod).
			Dur("default_period", defaults.CleanupPeriod).
			Msg("Invalid cleanup period, using default")
		config.CleanupPeriod = defaults.CleanupPeriod
	}

	return &RetentionCleaner{
		store:  store,
		config: config,
		logger: logger,
		stats:  RetentionCleanerStats{RetentionDays: config.RetentionDays},
	}
}

// Run prunes once immediately and then every cleanup period until ctx is done
func (c *RetentionCleaner) Run(ctx context.Context) {
	c.logger.Info().
		Int("retention_days", c.config.RetentionDays).
		Dur("cleanup_period", c.config.CleanupPeriod).
		Msg("Retention cleaner started")
	defer c.logger.Info().Msg("Retention cleaner stopped")

	c.RunNow()

	ticker := time.NewTicker(c.config.CleanupPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunNow()
		}
	}
}

// RunNow prunes once and returns the number of alerts removed
func (c *RetentionCleaner) RunNow() (int64, error) {
	deleted, err := c.store.DeleteOlderThan(c.config.RetentionDays)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.TotalCleanups++
	c.stats.LastCleanup = time.Now()
	if err != nil {
		c.stats.TotalErrors++
		c.logger.Error().Err(err).Msg("Retention cleanup failed")
		return 0, err
	}

	c.stats.TotalDeleted += deleted
	c.stats.LastDeleteCount = deleted
	if deleted > 0 {
		c.logger.Info().
			Int64("deleted", deleted).
			Int("retention_days", c.config.RetentionDays).
			Msg("Pruned old alerts")
	}
	return deleted, nil
}

// Stats returns current cleaner statistics
func (c *RetentionCleaner) Stats() RetentionCleanerStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}
