// Package api provides the companion HTTP surface for Trakbridge.
//
// It exposes bridge inspection endpoints (health, known devices,
// position injection) and the user onboarding flow that provisions
// Traccar accounts and devices and hands back MQTT connection details.
//
// The server follows the same lifecycle pattern as the other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
