package storage

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/smoker-monitor/internal/metrics"
	"github.com/afroash/smoker-monitor/internal/models"
)

// BatchInserter is the part of the store the writer needs
type BatchInserter interface {
	InsertBatch(alerts []models.AlertEvent) error
}

// DBWriter persists alerts asynchronously in batches. It is an alert sink:
// Emit never blocks the dispatch loop.
type DBWriter struct {
	store       BatchInserter
	logger      zerolog.Logger
	writeChan   chan models.AlertEvent
	batchSize   int
	flushPeriod time.Duration
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup

	mu            sync.RWMutex
	totalWritten  int64
	totalBatches  int64
	totalErrors   int64
	totalDropped  int64
	lastWriteTime time.Time
}

// DBWriterConfig holds configuration for the async writer
type DBWriterConfig struct {
	BatchSize   int           // Alerts per write (default: 50)
	FlushPeriod time.Duration // Max time between flushes (default: 2s)
	ChannelSize int           // Queue size (default: 500)
}

// DefaultDBWriterConfig returns the default writer settings
func DefaultDBWriterConfig() DBWriterConfig {
	return DBWriterConfig{
		BatchSize:   50,
		FlushPeriod: 2 * time.Second,
		ChannelSize: 500,
	}
}

// DBWriterStats contains statistics about the writer
type DBWriterStats struct {
	TotalWritten  int64     `json:"total_written"`
	TotalBatches  int64     `json:"total_batches"`
	TotalErrors   int64     `json:"total_errors"`
	TotalDropped  int64     `json:"total_dropped"`
	LastWriteTime time.Time `json:"last_write_time,omitempty"`
	QueueLength   int       `json:"queue_length"`
}

// NewDBWriter creates and starts an async alert writer
func NewDBWriter(store BatchInserter, config DBWriterConfig, logger zerolog.Logger) *DBWriter {
	defaults := DefaultDBWriterConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.FlushPeriod <= 0 {
		config.FlushPeriod = defaults.FlushPeriod
	}
	if config.ChannelSize <= 0 {
		config.ChannelSize = defaults.ChannelSize
	}

	w := &DBWriter{
		store:       store,
		logger:      logger,
		writeChan:   make(chan models.AlertEvent, config.ChannelSize),
		batchSize:   config.BatchSize,
		flushPeriod: config.FlushPeriod,
		stopChan:    make(chan struct{}),
	}

	w.wg.Add(1)
	go w.writerLoop()

	logger.Info().
		Int("batch_size", config.BatchSize).
		Dur("flush_period", config.FlushPeriod).
		Int("channel_size", config.ChannelSize).
		Msg("DBWriter started")

	return w
}

// Emit queues an alert for writing, dropping it if the queue is full
func (w *DBWriter) Emit(alert models.AlertEvent) {
	if !w.Write(alert) {
		metrics.MessagesDropped.WithLabelValues(metrics.ReasonSinkFull).Inc()
	}
}

// Write queues an alert and reports whether it was accepted
func (w *DBWriter) Write(alert models.AlertEvent) bool {
	select {
	case <-w.stopChan:
		return false
	default:
	}

	select {
	case w.writeChan <- alert:
		return true
	default:
		w.mu.Lock()
		w.totalDropped++
		w.mu.Unlock()
		w.logger.Warn().Str("alert_id", alert.ID).Msg("DBWriter channel full, dropping alert")
		return false
	}
}

func (w *DBWriter) writerLoop() {
	defer w.wg.Done()

	batch := make([]models.AlertEvent, 0, w.batchSize)
	ticker := time.NewTicker(w.flushPeriod)
	defer ticker.Stop()

	for {
		select {
		case alert := <-w.writeChan:
			batch = append(batch, alert)
			if len(batch) >= w.batchSize {
				w.flush(batch)
				batch = make([]models.AlertEvent, 0, w.batchSize)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = make([]models.AlertEvent, 0, w.batchSize)
			}

		case <-w.stopChan:
			for draining := true; draining; {
				select {
				case alert := <-w.writeChan:
					batch = append(batch, alert)
				default:
					draining = false
				}
			}
			w.flush(batch)
			w.logger.Info().Msg("DBWriter stopped")
			return
		}
	}
}

func (w *DBWriter) flush(batch []models.AlertEvent) {
	if len(batch) == 0 {
		return
	}

	err := w.store.InsertBatch(batch)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.totalErrors++
		w.logger.Error().Err(err).Int("batch_size", len(batch)).Msg("Failed to write alert batch")
		return
	}
	w.totalWritten += int64(len(batch))
	w.totalBatches++
	w.lastWriteTime = time.Now()
	w.logger.Debug().Int("count", len(batch)).Msg("Flushed alert batch")
}

// Stop flushes queued alerts and stops the writer
func (w *DBWriter) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.wg.Wait()
	})
}

// Stats returns current writer statistics
func (w *DBWriter) Stats() DBWriterStats {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return DBWriterStats{
		TotalWritten:  w.totalWritten,
		TotalBatches:  w.totalBatches,
		TotalErrors:   w.totalErrors,
		TotalDropped:  w.totalDropped,
		LastWriteTime: w.lastWriteTime,
		QueueLength:   len(w.writeChan),
	}
}
