package models

// StationClass selects the alert policy a station is evaluated with.
type StationClass int

const (
	SmokerClass StationClass = iota
	FoodClass
)

func (c StationClass) String() string {
	switch c {
	case SmokerClass:
		return "smoker"
	case FoodClass:
		return "food"
	default:
		return "unknown"
	}
}

// MarshalText renders the class by name in JSON
func (c StationClass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Fixed policy per station class.
const (
	SmokerWindowSize = 5  // 2.5 minutes of readings
	FoodWindowSize   = 20 // 10 minutes of readings

	DropThresholdF  = 15.0
	StallThresholdF = 1.0
)

// Station binds a station identity to its class and window capacity.
type Station struct {
	ID         StationID    `json:"id"`
	Class      StationClass `json:"class"`
	WindowSize int          `json:"window_size"`
}

// NewStation creates a station with the window size of its class
func NewStation(id StationID, class StationClass) Station {
	size := FoodWindowSize
	if class == SmokerClass {
		size = SmokerWindowSize
	}
	return Station{ID: id, Class: class, WindowSize: size}
}

// DefaultStations returns the stations monitored by default:
// the smoker itself and two food items.
func DefaultStations() []Station {
	return []Station{
		NewStation(StationSmoker, SmokerClass),
		NewStation(StationRoast, FoodClass),
		NewStation(StationRibs, FoodClass),
	}
}

// StationIDs returns the identities of the given stations in order
func StationIDs(stations []Station) []StationID {
	ids := make([]StationID, len(stations))
	for i, s := range stations {
		ids[i] = s.ID
	}
	return ids
}
