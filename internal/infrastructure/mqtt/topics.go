package mqtt

import "fmt"

// Topic prefixes for device telemetry.
//
// Topics follow the scheme {prefix}/{deviceId}/{suffix}, where the device
// identifier always occupies the second segment.
const (
	// TopicPrefixGPS is the base for location reports.
	TopicPrefixGPS = "gps"

	// TopicPrefixSensors is the base for auxiliary sensor reports.
	TopicPrefixSensors = "sensors"

	// TopicPrefixDevice is the base for device lifecycle messages.
	TopicPrefixDevice = "device"
)

// Topics provides builders for Trakbridge MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	ackTopic := topics.DeviceRegistered("truck-01")
//	// Returns: "device/truck-01/registered"
type Topics struct{}

// DeviceLocation returns the topic a device publishes location fixes to.
//
// Example: gps/truck-01/location
func (Topics) DeviceLocation(deviceID string) string {
	return fmt.Sprintf("%s/%s/location", TopicPrefixGPS, deviceID)
}

// DeviceTemperature returns the topic a device publishes temperature readings to.
//
// Example: sensors/truck-01/temperature
func (Topics) DeviceTemperature(deviceID string) string {
	return fmt.Sprintf("%s/%s/temperature", TopicPrefixSensors, deviceID)
}

// DeviceRegister returns the topic a device publishes registration requests to.
//
// Example: device/truck-01/register
func (Topics) DeviceRegister(deviceID string) string {
	return fmt.Sprintf("%s/%s/register", TopicPrefixDevice, deviceID)
}

// DeviceRegistered returns the topic the bridge publishes registration
// acknowledgments to.
//
// Example: device/truck-01/registered
func (Topics) DeviceRegistered(deviceID string) string {
	return fmt.Sprintf("%s/%s/registered", TopicPrefixDevice, deviceID)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllLocations returns a pattern matching location reports from any device.
//
// Pattern: gps/+/location
func (Topics) AllLocations() string {
	return fmt.Sprintf("%s/+/location", TopicPrefixGPS)
}

// AllTemperatures returns a pattern matching temperature reports from any device.
//
// Pattern: sensors/+/temperature
func (Topics) AllTemperatures() string {
	return fmt.Sprintf("%s/+/temperature", TopicPrefixSensors)
}

// AllRegistrations returns a pattern matching registration requests from any device.
//
// Pattern: device/+/register
func (Topics) AllRegistrations() string {
	return fmt.Sprintf("%s/+/register", TopicPrefixDevice)
}

// SubscriptionPatterns returns every pattern the bridge subscribes to.
func (t Topics) SubscriptionPatterns() []string {
	return []string{
		t.AllLocations(),
		t.AllTemperatures(),
		t.AllRegistrations(),
	}
}
