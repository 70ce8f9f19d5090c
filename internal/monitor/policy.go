package monitor

import (
	"math"

	"github.com/afroash/smoker-monitor/internal/models"
)

// Policy maps a full window to an alert decision for one station class.
// It holds no state and never checks fullness; the caller only evaluates
// complete windows.
type Policy struct {
	class models.StationClass
}

// PolicyFor returns the policy bound to a station class
func PolicyFor(class models.StationClass) Policy {
	return Policy{class: class}
}

// Class returns the station class the policy evaluates
func (p Policy) Class() models.StationClass {
	return p.class
}

// Evaluate compares the oldest and newest readings of the snapshot.
// Smoker windows alert on a drop of DropThresholdF or more; food windows
// alert when the change is within StallThresholdF. A non-finite delta
// never alerts.
func (p Policy) Evaluate(snapshot []models.Reading) (models.AlertEvent, bool) {
	if len(snapshot) == 0 {
		return models.AlertEvent{}, false
	}
	oldest := snapshot[0]
	newest := snapshot[len(snapshot)-1]
	delta := oldest.TemperatureF - newest.TemperatureF

	var kind models.AlertKind
	switch p.class {
	case models.SmokerClass:
		if !(delta >= models.DropThresholdF) {
			return models.AlertEvent{}, false
		}
		kind = models.AlertDrop
	case models.FoodClass:
		if !(math.Abs(delta) <= models.StallThresholdF) {
			return models.AlertEvent{}, false
		}
		kind = models.AlertStall
	default:
		return models.AlertEvent{}, false
	}

	return models.AlertEvent{
		StationID:   newest.StationID,
		Kind:        kind,
		InitialTemp: oldest.TemperatureF,
		CurrentTemp: newest.TemperatureF,
		Timestamp:   newest.Timestamp,
	}, true
}
