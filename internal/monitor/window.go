package monitor

import (
	"errors"
	"fmt"

	"github.com/afroash/smoker-monitor/internal/models"
)

// ErrEmptyWindow is returned when the oldest or newest reading is requested
// before anything was appended.
var ErrEmptyWindow = errors.New("empty window")

// Window is a fixed-capacity FIFO of the most recent readings of one station.
// It is not safe for concurrent use; StationMonitor guards it.
type Window struct {
	readings []models.Reading
	capacity int
}

// NewWindow creates a window holding at most capacity readings.
// It panics if capacity is not positive.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		panic(fmt.Sprintf("monitor: window capacity must be positive, got %d", capacity))
	}
	return &Window{
		readings: make([]models.Reading, 0, capacity),
		capacity: capacity,
	}
}

// Append adds reading at the tail, evicting the oldest reading when the
// window is already full. It reports whether the window is full afterwards.
func (w *Window) Append(reading models.Reading) bool {
	if len(w.readings) == w.capacity {
		copy(w.readings, w.readings[1:])
		w.readings[len(w.readings)-1] = reading
		return true
	}
	w.readings = append(w.readings, reading)
	return len(w.readings) == w.capacity
}

// Oldest returns the head of the window
func (w *Window) Oldest() (models.Reading, error) {
	if len(w.readings) == 0 {
		return models.Reading{}, ErrEmptyWindow
	}
	return w.readings[0], nil
}

// Newest returns the tail of the window
func (w *Window) Newest() (models.Reading, error) {
	if len(w.readings) == 0 {
		return models.Reading{}, ErrEmptyWindow
	}
	return w.readings[len(w.readings)-1], nil
}

// Len returns the number of readings currently held
func (w *Window) Len() int {
	return len(w.readings)
}

// Capacity returns the maximum number of readings held
func (w *Window) Capacity() int {
	return w.capacity
}

// IsFull returns true if the window is at capacity
func (w *Window) IsFull() bool {
	return len(w.readings) == w.capacity
}

// Snapshot returns a copy of the readings, oldest first
func (w *Window) Snapshot() []models.Reading {
	out := make([]models.Reading, len(w.readings))
	copy(out, w.readings)
	return out
}

// String returns something like "Window[3/5]"
func (w *Window) String() string {
	return fmt.Sprintf("Window[%d/%d]", len(w.readings), w.capacity)
}
