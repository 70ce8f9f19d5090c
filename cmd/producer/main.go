package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/afroash/smoker-monitor/internal/config"
	"github.com/afroash/smoker-monitor/internal/feed"
	"github.com/afroash/smoker-monitor/internal/logging"
	"github.com/afroash/smoker-monitor/internal/models"
)

const version = "v0.3.0"

func main() {
	configPath := flag.String("config", "configs/producer.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadProducerConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, logCloser, err := logging.New(cfg.Logging, "producer")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logCloser.Close()

	logger.Info().
		Str("version", version).
		Str("config", cfg.String()).
		Msg("Starting smoker monitor producer")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("Producer stopped with error")
		logCloser.Close()
		os.Exit(1)
	}

	logger.Info().Msg("Producer stopped")
}

// run publishes every row of the CSV file to the broker, one row per tick.
func run(ctx context.Context, cfg *config.ProducerConfig, logger zerolog.Logger) error {
	stations := models.StationIDs(models.DefaultStations())

	rows, err := feed.ReadCSVFile(cfg.CSVFile, stations, logger)
	if err != nil {
		return err
	}
	logger.Info().Str("file", cfg.CSVFile).Int("rows", len(rows)).Msg("Loaded temperature log")

	publisher := feed.NewPublisher(cfg.Broker.BrokerConfig(), logger)
	if err := publisher.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	defer publisher.Close()

	replayer := feed.NewReplayer(rows, stations, publisher, cfg.RowInterval, logger)
	if err := replayer.Run(ctx); err != nil {
		return err
	}

	logger.Info().Int("messages", replayer.Sent()).Msg("Finished publishing temperature log")
	return nil
}
