package bridge

// RegisterPayload is a device self-registration request, received on
// device/{id}/register.
//
// All fields are optional; the device identifier comes from the topic.
type RegisterPayload struct {
	// Name is the display name for the backend device record.
	// Defaults to a generated name when absent.
	Name string `json:"name,omitempty"`

	// Attributes are merged over the bridge's default device attributes
	// (device values win on key conflict).
	Attributes map[string]any `json:"attributes,omitempty"`
}

// LocationPayload is a position fix, received on gps/{id}/location.
//
// Latitude and longitude are required; their absence is a validation
// failure, not a defaulted value. Everything else defaults to zero.
type LocationPayload struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Altitude  float64  `json:"altitude,omitempty"`
	Speed     float64  `json:"speed,omitempty"`
	Course    float64  `json:"course,omitempty"`
	Accuracy  float64  `json:"accuracy,omitempty"`

	// Timestamp is the fix time in epoch milliseconds. When absent the
	// receipt time is used.
	Timestamp *int64 `json:"timestamp,omitempty"`

	// BatteryLevel is forwarded to the backend as a position attribute.
	BatteryLevel *float64 `json:"batteryLevel,omitempty"`
}

// TemperaturePayload is an auxiliary reading, received on
// sensors/{id}/temperature. The value is cached and attached to the
// device's next position fix.
type TemperaturePayload struct {
	// Temperature in degrees Celsius. Required.
	Temperature *float64 `json:"temperature"`

	// Timestamp is when the reading was taken, epoch milliseconds.
	// Stored alongside the cached value; receipt time is used when
	// absent. Freshness is not validated.
	Timestamp *int64 `json:"timestamp,omitempty"`
}

// AckMessage is the registration acknowledgment published back to the
// device on device/{id}/registered. Exactly one ack is published per
// registration attempt.
type AckMessage struct {
	Success bool `json:"success"`

	// TraccarDeviceID is the backend-assigned identifier, set on success.
	TraccarDeviceID int64 `json:"traccarDeviceId,omitempty"`

	// Error carries the underlying failure message, set on failure.
	Error string `json:"error,omitempty"`
}
