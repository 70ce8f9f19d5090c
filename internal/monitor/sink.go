package monitor

import (
	"github.com/rs/zerolog"

	"github.com/afroash/smoker-monitor/internal/models"
)

// AlertSink receives alerts emitted by station monitors.
// Implementations must not block the caller.
type AlertSink interface {
	Emit(alert models.AlertEvent)
}

// SinkFunc adapts a function to AlertSink
type SinkFunc func(alert models.AlertEvent)

// Emit calls f(alert)
func (f SinkFunc) Emit(alert models.AlertEvent) {
	f(alert)
}

// MultiSink fans an alert out to every sink in order
type MultiSink []AlertSink

// Emit forwards the alert to each non-nil sink
func (m MultiSink) Emit(alert models.AlertEvent) {
	for _, sink := range m {
		if sink != nil {
			sink.Emit(alert)
		}
	}
}

// LogSink writes each alert as a warning line
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a sink that logs alerts
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Emit logs the alert
func (s *LogSink) Emit(alert models.AlertEvent) {
	s.logger.Warn().
		Str("alert_id", alert.ID).
		Str("station", alert.StationID.String()).
		Str("kind", string(alert.Kind)).
		Float64("initial_temp", alert.InitialTemp).
		Float64("current_temp", alert.CurrentTemp).
		Float64("delta", alert.Delta()).
		Time("observed_at", alert.Timestamp).
		Msg(alert.String())
}
