package traccar

import "time"

// Device is a device record as returned by the Traccar API.
type Device struct {
	ID         int64          `json:"id"`
	Name       string         `json:"name"`
	UniqueID   string         `json:"uniqueId"`
	Category   string         `json:"category"`
	Status     string         `json:"status,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// DeviceRequest describes a device to create in the backend.
//
// Attributes supplied here are merged over the gateway's defaults
// (caller values win on key conflict).
type DeviceRequest struct {
	Name       string         `json:"name"`
	UniqueID   string         `json:"uniqueId"`
	Category   string         `json:"category"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// User is a user record as returned by the Traccar API.
type User struct {
	ID            int64          `json:"id"`
	Name          string         `json:"name"`
	Email         string         `json:"email"`
	Readonly      bool           `json:"readonly"`
	Administrator bool           `json:"administrator"`
	Attributes    map[string]any `json:"attributes,omitempty"`
}

// UserRequest describes a user to create in the backend.
type UserRequest struct {
	Name       string         `json:"name"`
	Email      string         `json:"email"`
	Password   string         `json:"password"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Position is a translated location report ready for the OsmAnd protocol.
//
// Latitude and longitude are validated upstream; everything else
// defaults to zero. Temperature, when non-nil, is the cached auxiliary
// reading riding along on this position fix.
type Position struct {
	DeviceID  string
	Latitude  float64
	Longitude float64
	Altitude  float64
	Speed     float64
	Course    float64
	Accuracy  float64
	FixTime   time.Time

	// Temperature is attached as an extra OsmAnd parameter when set.
	Temperature *float64

	// BatteryLevel is attached as the OsmAnd batt parameter when set.
	BatteryLevel *float64
}
