package models

import (
	"fmt"
	"math"
	"time"
)

// StationID identifies one independently monitored temperature source.
type StationID string

const (
	StationSmoker StationID = "Smoker"
	StationRoast  StationID = "Roast"
	StationRibs   StationID = "Ribs"
)

func (s StationID) String() string {
	return string(s)
}

// Reading is a single temperature sample for one station.
type Reading struct {
	StationID    StationID `json:"station_id"`
	Timestamp    time.Time `json:"timestamp"`
	TemperatureF float64   `json:"temperature_f"`
}

// NewReading creates a Reading for the given station
func NewReading(station StationID, ts time.Time, temperatureF float64) Reading {
	return Reading{
		StationID:    station,
		Timestamp:    ts,
		TemperatureF: temperatureF,
	}
}

// IsValid checks that the reading carries a station, a timestamp and a
// finite temperature
func (r Reading) IsValid() bool {
	if r.StationID == "" {
		return false
	}
	if r.Timestamp.IsZero() {
		return false
	}
	return !math.IsNaN(r.TemperatureF) && !math.IsInf(r.TemperatureF, 0)
}

func (r Reading) String() string {
	return fmt.Sprintf("Station: %s, Timestamp: %s, Temperature: %.1f°F",
		r.StationID,
		r.Timestamp.Format(TimestampLayout),
		r.TemperatureF)
}
