// Package bridge is the core of Trakbridge: it routes device telemetry
// arriving over MQTT to the Traccar backend.
//
// Three inbound topic families are handled:
//
//   - device/{id}/register    device self-registration; a backend device
//     is created and an acknowledgment is published back to the device
//     on device/{id}/registered.
//   - gps/{id}/location       position fixes, forwarded to the backend
//     with any cached temperature reading attached.
//   - sensors/{id}/temperature auxiliary readings; cached and carried
//     on the device's next position fix, never sent on their own.
//
// Messages are classified by topic, enqueued on a bounded queue and
// consumed by a fixed pool of workers, so a burst of telemetry never
// spawns unbounded concurrent backend calls. When the queue is full the
// message is dropped and logged; sources resend on their own cadence.
//
// Every message is processed in isolation: malformed payloads and
// backend failures are logged and dropped without affecting other
// messages or crashing the process.
package bridge
