package bridge

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		topic      string
		wantKind   Kind
		wantDevice string
		wantOK     bool
	}{
		{"registration", "device/truck-01/register", KindRegistration, "truck-01", true},
		{"location", "gps/truck-01/location", KindLocation, "truck-01", true},
		{"temperature", "sensors/truck-01/temperature", KindTemperature, "truck-01", true},
		{"nested device id segments", "gps/fleet/truck-01/location", KindLocation, "fleet", true},
		{"unknown suffix", "gps/truck-01/speed", KindUnknown, "", false},
		{"too few segments", "gps/location", KindUnknown, "", false},
		{"single segment", "gps", KindUnknown, "", false},
		{"empty topic", "", KindUnknown, "", false},
		{"empty device id", "gps//location", KindUnknown, "", false},
		{"ack topic not routable", "device/truck-01/registered", KindUnknown, "", false},
		{"suffix must be final segment", "gps/truck-01/location/extra", KindUnknown, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, deviceID, ok := Classify(tt.topic)
			if kind != tt.wantKind || deviceID != tt.wantDevice || ok != tt.wantOK {
				t.Errorf("Classify(%q) = (%v, %q, %v), want (%v, %q, %v)",
					tt.topic, kind, deviceID, ok, tt.wantKind, tt.wantDevice, tt.wantOK)
			}
		})
	}
}

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindRegistration, "registration"},
		{KindLocation, "location"},
		{KindTemperature, "temperature"},
		{KindUnknown, "unknown"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
