package models

import (
	"errors"
	"testing"
	"time"
)

func TestFormatMessage(t *testing.T) {
	ts := time.Date(2024, 5, 31, 14, 7, 0, 0, time.UTC)

	got := FormatMessage(StationSmoker, ts, 225.5)
	want := "Time: 5/31/2024 14:07, Smoker: 225.5"
	if got != want {
		t.Errorf("FormatMessage() = %q, want %q", got, want)
	}

	got = FormatMessage(StationRibs, ts, -3)
	want = "Time: 5/31/2024 14:07, Ribs: -3"
	if got != want {
		t.Errorf("FormatMessage() = %q, want %q", got, want)
	}
}

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		station   StationID
		timestamp time.Time
		temp      float64
	}{
		{
			name:      "smoker message",
			payload:   "Time: 5/31/2024 14:07, Smoker: 225.0",
			station:   StationSmoker,
			timestamp: time.Date(2024, 5, 31, 14, 7, 0, 0, time.UTC),
			temp:      225.0,
		},
		{
			name:      "zero padded date",
			payload:   "Time: 06/01/2024 09:30, Roast: 150.5",
			station:   StationRoast,
			timestamp: time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC),
			temp:      150.5,
		},
		{
			name:      "negative temperature",
			payload:   "Time: 1/2/2024 00:00, Ribs: -12.25",
			station:   StationRibs,
			timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			temp:      -12.25,
		},
		{
			name:      "surrounding whitespace",
			payload:   "  Time: 1/2/2024 00:00,   Ribs:  80 \n",
			station:   StationRibs,
			timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			temp:      80,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseMessage([]byte(tt.payload))
			if err != nil {
				t.Fatalf("ParseMessage() error = %v", err)
			}
			if msg.StationID != tt.station {
				t.Errorf("StationID = %v, want %v", msg.StationID, tt.station)
			}
			if !msg.Timestamp.Equal(tt.timestamp) {
				t.Errorf("Timestamp = %v, want %v", msg.Timestamp, tt.timestamp)
			}
			if msg.TemperatureF != tt.temp {
				t.Errorf("TemperatureF = %v, want %v", msg.TemperatureF, tt.temp)
			}
		})
	}
}

func TestParseMessage_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"empty", ""},
		{"no time prefix", "5/31/2024 14:07, Smoker: 225.0"},
		{"missing temperature field", "Time: 5/31/2024 14:07"},
		{"bad timestamp", "Time: 2024-05-31 14:07, Smoker: 225.0"},
		{"seconds in timestamp", "Time: 5/31/2024 14:07:00, Smoker: 225.0"},
		{"missing station separator", "Time: 5/31/2024 14:07, Smoker 225.0"},
		{"empty station name", "Time: 5/31/2024 14:07, : 225.0"},
		{"missing value", "Time: 5/31/2024 14:07, Smoker: "},
		{"non-numeric value", "Time: 5/31/2024 14:07, Smoker: hot"},
		{"NaN value", "Time: 5/31/2024 14:07, Smoker: NaN"},
		{"Inf value", "Time: 5/31/2024 14:07, Smoker: Inf"},
		{"negative infinity", "Time: 5/31/2024 14:07, Smoker: -infinity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMessage([]byte(tt.payload))
			if err == nil {
				t.Fatal("ParseMessage() expected error, got nil")
			}
			if !errors.Is(err, ErrMalformedMessage) {
				t.Errorf("error %v does not wrap ErrMalformedMessage", err)
			}
		})
	}
}

func TestFormatThenParse(t *testing.T) {
	ts := time.Date(2024, 12, 25, 23, 59, 0, 0, time.UTC)
	msg, err := ParseMessage([]byte(FormatMessage(StationRoast, ts, 163.8)))
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	r := msg.Reading()
	if r.StationID != StationRoast || r.TemperatureF != 163.8 || !r.Timestamp.Equal(ts) {
		t.Errorf("Reading() = %+v", r)
	}
}
