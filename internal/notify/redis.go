package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/afroash/smoker-monitor/internal/metrics"
	"github.com/afroash/smoker-monitor/internal/models"
)

// RedisConfig holds the Redis connection and key settings
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	Prefix    string
	TTL       time.Duration
	QueueSize int
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     4,
		MinIdleConns: 1,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// RedisPublisher mirrors alerts into Redis: the latest alert of each station
// in a hash, and every alert on a pub/sub channel. It is an alert sink.
type RedisPublisher struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	queue  chan models.AlertEvent
	logger zerolog.Logger

	mu        sync.RWMutex
	published int64
	failed    int64
	dropped   int64
}

// RedisPublisherStats contains statistics about the publisher
type RedisPublisherStats struct {
	Published   int64 `json:"published"`
	Failed      int64 `json:"failed"`
	Dropped     int64 `json:"dropped"`
	QueueLength int   `json:"queue_length"`
}

// NewRedisPublisher creates a publisher; call Run to start delivery
func NewRedisPublisher(client *redis.Client, cfg RedisConfig, logger zerolog.Logger) *RedisPublisher {
	if cfg.Prefix == "" {
		cfg.Prefix = "smoker"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	return &RedisPublisher{
		client: client,
		prefix: cfg.Prefix,
		ttl:    cfg.TTL,
		queue:  make(chan models.AlertEvent, cfg.QueueSize),
		logger: logger,
	}
}

// StateKey is the hash holding the last alert of a station
func StateKey(station models.StationID) string {
	return fmt.Sprintf("station:%s:last_alert", station)
}

// AlertChannel is the pub/sub channel alerts are published on
func AlertChannel(prefix string) string {
	return prefix + ":alerts"
}

// stateFields flattens an alert into hash fields
func stateFields(alert models.AlertEvent) map[string]interface{} {
	return map[string]interface{}{
		"alert_id":     alert.ID,
		"station_id":   string(alert.StationID),
		"kind":         string(alert.Kind),
		"initial_temp": alert.InitialTemp,
		"current_temp": alert.CurrentTemp,
		"delta":        alert.Delta(),
		"observed_at":  alert.Timestamp.Unix(),
		"message":      alert.String(),
	}
}

// Emit queues an alert, dropping it if the queue is full
func (p *RedisPublisher) Emit(alert models.AlertEvent) {
	select {
	case p.queue <- alert:
	default:
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
		metrics.MessagesDropped.WithLabelValues(metrics.ReasonSinkFull).Inc()
		p.logger.Warn().Str("alert_id", alert.ID).Msg("Redis queue full, dropping alert")
	}
}

// Run delivers queued alerts until ctx is done, then drains the queue
// with a short deadline.
func (p *RedisPublisher) Run(ctx context.Context) {
	for {
		select {
		case alert := <-p.queue:
			p.deliver(ctx, alert)
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			for {
				select {
				case alert := <-p.queue:
					p.deliver(drainCtx, alert)
				default:
					p.logger.Info().Msg("Redis publisher stopped")
					return
				}
			}
		}
	}
}

// deliver writes the station state and publishes the alert in one pipeline
func (p *RedisPublisher) deliver(ctx context.Context, alert models.AlertEvent) {
	if err := p.Publish(ctx, alert); err != nil {
		p.mu.Lock()
		p.failed++
		p.mu.Unlock()
		p.logger.Error().Err(err).Str("alert_id", alert.ID).Msg("Redis alert publish failed")
		return
	}
	p.mu.Lock()
	p.published++
	p.mu.Unlock()
}

// Publish writes one alert synchronously
func (p *RedisPublisher) Publish(ctx context.Context, alert models.AlertEvent) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	key := StateKey(alert.StationID)
	pipe := p.client.Pipeline()
	pipe.HSet(ctx, key, stateFields(alert))
	pipe.Expire(ctx, key, p.ttl)
	pipe.Publish(ctx, AlertChannel(p.prefix), payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

// Stats returns current publisher statistics
func (p *RedisPublisher) Stats() RedisPublisherStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return RedisPublisherStats{
		Published:   p.published,
		Failed:      p.failed,
		Dropped:     p.dropped,
		QueueLength: len(p.queue),
	}
}
