package monitor

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/afroash/smoker-monitor/internal/metrics"
	"github.com/afroash/smoker-monitor/internal/models"
)

// ErrUnknownStation is returned when a reading names a station with no monitor.
var ErrUnknownStation = errors.New("unknown station")

// ErrStationMismatch is returned when a message body names a different
// station than the channel it was delivered on.
var ErrStationMismatch = errors.New("station does not match channel")

// ErrInvalidReading is returned for a reading without a timestamp or with a
// non-finite temperature.
var ErrInvalidReading = errors.New("invalid reading")

// Router dispatches readings to the monitor of their station. It is the only
// place station identity is interpreted.
type Router struct {
	monitors map[models.StationID]*StationMonitor
	order    []models.StationID
	logger   zerolog.Logger
}

// NewRouter creates one monitor per station, all forwarding to sink.
func NewRouter(stations []models.Station, sink AlertSink, logger zerolog.Logger) (*Router, error) {
	r := &Router{
		monitors: make(map[models.StationID]*StationMonitor, len(stations)),
		order:    make([]models.StationID, 0, len(stations)),
		logger:   logger,
	}
	for _, station := range stations {
		if station.ID == "" {
			return nil, fmt.Errorf("station with empty id")
		}
		if station.WindowSize <= 0 {
			return nil, fmt.Errorf("station %s: window size must be positive, got %d", station.ID, station.WindowSize)
		}
		if _, exists := r.monitors[station.ID]; exists {
			return nil, fmt.Errorf("station %s configured twice", station.ID)
		}
		r.monitors[station.ID] = NewStationMonitor(station, sink)
		r.order = append(r.order, station.ID)
		metrics.WindowFill.WithLabelValues(station.ID.String()).Set(0)
	}
	return r, nil
}

// Route applies reading to the monitor of stationID. Readings for unknown
// stations and invalid readings are logged and dropped; the router keeps going.
func (r *Router) Route(stationID models.StationID, reading models.Reading) error {
	mon, ok := r.monitors[stationID]
	if !ok {
		metrics.MessagesDropped.WithLabelValues(metrics.ReasonUnknownStation).Inc()
		r.logger.Warn().Str("station", stationID.String()).Msg("Received reading for unknown station")
		return fmt.Errorf("%w: %q", ErrUnknownStation, stationID)
	}

	if !reading.IsValid() {
		metrics.MessagesDropped.WithLabelValues(metrics.ReasonMalformed).Inc()
		r.logger.Error().Str("station", stationID.String()).Msg("Dropping invalid reading")
		return fmt.Errorf("%w: %s", ErrInvalidReading, reading)
	}

	alert, alerted := mon.Observe(reading)
	metrics.WindowFill.WithLabelValues(stationID.String()).Set(float64(mon.Len()))
	if alerted {
		metrics.AlertsEmitted.WithLabelValues(stationID.String(), string(alert.Kind)).Inc()
	}

	r.logger.Debug().
		Str("station", stationID.String()).
		Float64("temp", reading.TemperatureF).
		Time("timestamp", reading.Timestamp).
		Bool("alert", alerted).
		Msg("Reading processed")
	return nil
}

// HandleMessage decodes a framed message delivered on msg.Channel and routes
// it. Malformed messages are logged and dropped.
func (r *Router) HandleMessage(msg models.RawMessage) error {
	metrics.MessagesReceived.WithLabelValues(msg.Channel).Inc()
	r.logger.Debug().Str("channel", msg.Channel).Bytes("payload", msg.Payload).Msg("Received message")

	parsed, err := models.ParseMessage(msg.Payload)
	if err != nil {
		metrics.MessagesDropped.WithLabelValues(metrics.ReasonMalformed).Inc()
		r.logger.Error().Err(err).Str("channel", msg.Channel).Bytes("payload", msg.Payload).Msg("Failed to parse message")
		return err
	}

	stationID := models.StationID(msg.Channel)
	if parsed.StationID != stationID {
		err := fmt.Errorf("%w: %w: body names %q, channel is %q",
			models.ErrMalformedMessage, ErrStationMismatch, parsed.StationID, stationID)
		metrics.MessagesDropped.WithLabelValues(metrics.ReasonMalformed).Inc()
		r.logger.Error().Err(err).Str("channel", msg.Channel).Msg("Failed to parse message")
		return err
	}

	return r.Route(stationID, parsed.Reading())
}

// Run drains in until it is closed or ctx is cancelled, handling one message
// at a time. Per-message errors are logged by HandleMessage and never stop the loop.
func (r *Router) Run(ctx context.Context, in <-chan models.RawMessage) error {
	r.logger.Info().Int("stations", len(r.order)).Msg("Dispatch loop started")
	defer r.logger.Info().Msg("Dispatch loop stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			_ = r.HandleMessage(msg)
		}
	}
}

// Monitor returns the monitor of a station
func (r *Router) Monitor(stationID models.StationID) (*StationMonitor, bool) {
	mon, ok := r.monitors[stationID]
	return mon, ok
}

// Stations returns the configured stations in order
func (r *Router) Stations() []models.Station {
	stations := make([]models.Station, 0, len(r.order))
	for _, id := range r.order {
		stations = append(stations, r.monitors[id].Station())
	}
	return stations
}

// Snapshots returns a snapshot of every monitor in configuration order
func (r *Router) Snapshots() []Snapshot {
	snaps := make([]Snapshot, 0, len(r.order))
	for _, id := range r.order {
		snaps = append(snaps, r.monitors[id].Snapshot())
	}
	return snaps
}
