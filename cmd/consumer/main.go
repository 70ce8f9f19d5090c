package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/smoker-monitor/internal/config"
	"github.com/afroash/smoker-monitor/internal/feed"
	"github.com/afroash/smoker-monitor/internal/logging"
	"github.com/afroash/smoker-monitor/internal/models"
	"github.com/afroash/smoker-monitor/internal/monitor"
	"github.com/afroash/smoker-monitor/internal/notify"
	"github.com/afroash/smoker-monitor/internal/server"
	"github.com/afroash/smoker-monitor/internal/storage"
)

const version = "v0.3.0"

func main() {
	configPath := flag.String("config", "configs/consumer.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadConsumerConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, logCloser, err := logging.New(cfg.Logging, "consumer")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logCloser.Close()

	logger.Info().
		Str("version", version).
		Str("config", cfg.String()).
		Msg("Starting smoker monitor consumer")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("Consumer stopped with error")
		logCloser.Close()
		os.Exit(1)
	}

	logger.Info().Msg("Consumer stopped")
}

// run wires the pipeline and dispatches readings until ctx is cancelled,
// the replay file is exhausted, or the broker connection or HTTP listener
// fails.
func run(ctx context.Context, cfg *config.ConsumerConfig, logger zerolog.Logger) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stations := models.DefaultStations()
	alertStore := server.NewAlertStore(cfg.Server.RecentAlerts)
	sinks := monitor.MultiSink{monitor.NewLogSink(logger), alertStore}

	var history server.HistoricalStore
	var cleaner *storage.RetentionCleaner
	var dbWriter *storage.DBWriter
	if cfg.Database.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		sqliteStore, err := storage.NewSQLiteStore(cfg.Database.Path, logger)
		if err != nil {
			return fmt.Errorf("failed to create alert store: %w", err)
		}
		defer sqliteStore.Close()

		dbWriter = storage.NewDBWriter(sqliteStore, storage.DBWriterConfig{
			BatchSize:   cfg.Database.BatchSize,
			FlushPeriod: cfg.Database.FlushPeriod,
			ChannelSize: cfg.Database.ChannelSize,
		}, logger)
		defer dbWriter.Stop()

		cleaner = storage.NewRetentionCleaner(sqliteStore, storage.RetentionCleanerConfig{
			RetentionDays: cfg.Database.RetentionDays,
			CleanupPeriod: cfg.Database.CleanupPeriod,
		}, logger)

		sinks = append(sinks, dbWriter)
		history = sqliteStore
	}

	var publisher *notify.RedisPublisher
	if cfg.Redis.Enabled {
		redisCfg := notify.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Prefix:    cfg.Redis.Prefix,
			TTL:       cfg.Redis.TTL,
			QueueSize: cfg.Redis.QueueSize,
		}
		client, err := notify.NewRedisClient(ctx, redisCfg)
		if err != nil {
			return err
		}
		defer client.Close()

		publisher = notify.NewRedisPublisher(client, redisCfg, logger)
		sinks = append(sinks, publisher)
	}

	var hub *server.Hub
	if cfg.Server.Enabled {
		hub = server.NewHub(cfg.Server.AuthToken, logger, cfg.Server.AllowedOrigins...)
		sinks = append(sinks, hub)
	}

	router, err := monitor.NewRouter(stations, sinks, logger)
	if err != nil {
		return fmt.Errorf("failed to create router: %w", err)
	}

	// fail records the first error that must end the run and stops the pipeline
	var (
		fatalErr error
		fatalMu  sync.Mutex
	)
	fail := func(err error) {
		fatalMu.Lock()
		if fatalErr == nil {
			fatalErr = err
		}
		fatalMu.Unlock()
		cancel()
	}

	var wg sync.WaitGroup
	var httpServer *http.Server
	// Background workers stop before the stores they write to are closed
	defer func() {
		cancel()
		if httpServer != nil {
			shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
			defer done()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("Server shutdown error")
			}
		}
		wg.Wait()
	}()

	if cleaner != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cleaner.Run(runCtx)
		}()
	}

	if publisher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			publisher.Run(runCtx)
		}()
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("Redis alert publisher started")
	}

	if cfg.Server.Enabled {
		api := server.NewAPIHandler(router, alertStore, history, hub, logger)
		if dbWriter != nil {
			api.WithWriter(dbWriter).WithRetention(cleaner)
		}
		if publisher != nil {
			api.WithPublisher(publisher)
		}
		httpServer = &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:      api.Router(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}

		wg.Add(2)
		go func() {
			defer wg.Done()
			logger.Info().Str("addr", httpServer.Addr).Msg("Server listening")
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("Server failed")
				fail(fmt.Errorf("http server failed: %w", err))
			}
		}()
		go func() {
			defer wg.Done()
			hub.Run(runCtx, cfg.Server.HeartbeatInterval)
		}()
	}

	source, feedDone, closeFeed, err := openFeed(runCtx, cfg, models.StationIDs(stations), logger, &wg)
	if err != nil {
		return err
	}
	defer closeFeed()

	go func() {
		select {
		case err, ok := <-feedDone:
			if ok && err != nil {
				fail(fmt.Errorf("feed connection lost: %w", err))
			}
		case <-runCtx.Done():
		}
	}()

	logger.Info().Int("stations", len(stations)).Msg("Waiting for messages. To exit press CTRL+C")
	err = router.Run(runCtx, source)
	if err == nil && ctx.Err() != nil {
		// replay cut short by shutdown
		err = ctx.Err()
	}

	fatalMu.Lock()
	defer fatalMu.Unlock()
	if fatalErr != nil {
		return fatalErr
	}
	return err
}

// openFeed returns the message channel the router drains: a CSV replay when
// one is configured, otherwise the MQTT subscription. done reports a lost
// broker connection.
func openFeed(ctx context.Context, cfg *config.ConsumerConfig, stations []models.StationID, logger zerolog.Logger, wg *sync.WaitGroup) (<-chan models.RawMessage, <-chan error, func(), error) {
	if cfg.Feed.ReplayFile != "" {
		rows, err := feed.ReadCSVFile(cfg.Feed.ReplayFile, stations, logger)
		if err != nil {
			return nil, nil, nil, err
		}

		source := feed.NewChannelPublisher(cfg.Feed.BufferSize)
		replayer := feed.NewReplayer(rows, stations, source, cfg.Feed.ReplayInterval, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer source.Close()
			if err := replayer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("Replay failed")
			}
		}()
		logger.Info().Str("file", cfg.Feed.ReplayFile).Int("rows", len(rows)).Msg("Replaying feed file")
		return source.Messages(), nil, func() {}, nil
	}

	sub := feed.NewSubscriber(cfg.Broker.BrokerConfig(), cfg.Feed.BufferSize, logger)
	if err := sub.Connect(ctx); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to broker: %w", err)
	}
	if err := sub.Subscribe(ctx, stations); err != nil {
		sub.Close()
		return nil, nil, nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	closeFeed := func() {
		if err := sub.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close broker connection")
		}
	}
	return sub.Messages(), sub.Done(), closeFeed, nil
}
