// Package device provides the in-memory device state cache.
//
// The cache correlates telemetry streams that arrive on separate MQTT
// topics: a temperature reading recorded for a device is attached to
// that device's next location update. It also remembers the backend
// identifier assigned to a device at registration time.
//
// State is held only in memory. A restart loses all cached state; the
// backend remains the durable system of record for devices and
// positions.
//
// All cache methods are safe for concurrent use.
package device
