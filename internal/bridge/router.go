package bridge

import "strings"

// minTopicParts is the minimum number of segments in a routable topic.
const minTopicParts = 3

// Kind identifies the message family a topic belongs to.
type Kind int

const (
	// KindUnknown marks topics that match no known family; they are ignored.
	KindUnknown Kind = iota

	// KindRegistration is a device self-registration request.
	KindRegistration

	// KindLocation is a position fix.
	KindLocation

	// KindTemperature is an auxiliary temperature reading.
	KindTemperature
)

// String returns the kind name for logging.
func (k Kind) String() string {
	switch k {
	case KindRegistration:
		return "registration"
	case KindLocation:
		return "location"
	case KindTemperature:
		return "temperature"
	default:
		return "unknown"
	}
}

// Classify extracts the device identifier and message kind from a topic.
//
// Topics must have at least three segments with the device identifier in
// the second (e.g. "gps/truck-01/location"). The suffix is tested in
// order: register, location, temperature — first match wins. Topics that
// do not match return ok=false and are ignored by the bridge.
func Classify(topic string) (kind Kind, deviceID string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < minTopicParts {
		return KindUnknown, "", false
	}

	deviceID = parts[1]
	if deviceID == "" {
		return KindUnknown, "", false
	}

	switch {
	case strings.HasSuffix(topic, "/register"):
		return KindRegistration, deviceID, true
	case strings.HasSuffix(topic, "/location"):
		return KindLocation, deviceID, true
	case strings.HasSuffix(topic, "/temperature"):
		return KindTemperature, deviceID, true
	default:
		return KindUnknown, "", false
	}
}
