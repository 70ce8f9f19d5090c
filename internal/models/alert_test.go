package models

import "testing"

func TestAlertEvent_String(t *testing.T) {
	tests := []struct {
		name  string
		alert AlertEvent
		want  string
	}{
		{
			name:  "smoker drop",
			alert: AlertEvent{StationID: StationSmoker, Kind: AlertDrop, InitialTemp: 225, CurrentTemp: 209},
			want:  "Smoker alert! Temperature dropped by 15°F or more. Initial: 225, Current: 209",
		},
		{
			name:  "roast stall",
			alert: AlertEvent{StationID: StationRoast, Kind: AlertStall, InitialTemp: 150, CurrentTemp: 150.5},
			want:  "Roast alert! Temperature change is 1°F or less. Initial: 150, Current: 150.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.alert.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAlertEvent_Delta(t *testing.T) {
	a := AlertEvent{InitialTemp: 225, CurrentTemp: 209}
	if a.Delta() != 16 {
		t.Errorf("Delta() = %v, want 16", a.Delta())
	}
}
