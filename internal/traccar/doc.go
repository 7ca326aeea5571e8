// Package traccar is the HTTP gateway to the Traccar tracking backend.
//
// It translates bridge-level operations into Traccar's REST API and its
// OsmAnd position-reporting protocol:
//
//   - Device registration: POST /api/devices with basic auth.
//   - Position reports: GET against the server root with OsmAnd query
//     parameters (id, lat, lon, timestamp, hdop, altitude, speed).
//   - User onboarding: /api/users and /api/permissions for creating
//     users and linking devices to them.
//
// Every operation is independently fallible and never retried; callers
// decide how a failure propagates (the bridge logs and moves on, the
// onboarding API returns it to the caller).
package traccar
