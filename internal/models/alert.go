package models

import (
	"fmt"
	"time"
)

// AlertKind names the condition an alert was raised for.
type AlertKind string

const (
	AlertDrop  AlertKind = "drop"
	AlertStall AlertKind = "stall"
)

// AlertEvent is produced when a full window satisfies its station's policy.
type AlertEvent struct {
	ID          string    `json:"id"`
	StationID   StationID `json:"station_id"`
	Kind        AlertKind `json:"kind"`
	InitialTemp float64   `json:"initial_temp"`
	CurrentTemp float64   `json:"current_temp"`
	Timestamp   time.Time `json:"timestamp"`
}

// Delta returns initial minus current temperature.
func (a AlertEvent) Delta() float64 {
	return a.InitialTemp - a.CurrentTemp
}

// String renders the alert as a human-readable line.
func (a AlertEvent) String() string {
	var condition string
	switch a.Kind {
	case AlertDrop:
		condition = fmt.Sprintf("Temperature dropped by %.0f°F or more", DropThresholdF)
	case AlertStall:
		condition = fmt.Sprintf("Temperature change is %.0f°F or less", StallThresholdF)
	default:
		condition = "Unknown condition"
	}
	return fmt.Sprintf("%s alert! %s. Initial: %v, Current: %v",
		a.StationID, condition, a.InitialTemp, a.CurrentTemp)
}
