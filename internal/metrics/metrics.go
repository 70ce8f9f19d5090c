package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons for MessagesDropped.
const (
	ReasonMalformed      = "malformed"
	ReasonUnknownStation = "unknown_station"
	ReasonSinkFull       = "sink_full"
)

var (
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smoker_messages_received_total",
			Help: "Total number of feed messages received per channel",
		},
		[]string{"channel"},
	)

	MessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smoker_messages_dropped_total",
			Help: "Total number of feed messages or alerts dropped, by reason",
		},
		[]string{"reason"},
	)

	AlertsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smoker_alerts_emitted_total",
			Help: "Total number of alerts emitted",
		},
		[]string{"station", "kind"},
	)

	WindowFill = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "smoker_window_fill",
			Help: "Number of readings currently held in each station window",
		},
		[]string{"station"},
	)
)
