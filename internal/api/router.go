package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Bridge inspection
	r.Get("/health", s.handleHealth)
	r.Get("/devices", s.handleListDevices)
	r.Post("/devices/{deviceId}/position", s.handleInjectPosition)

	// Onboarding
	r.Route("/api", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Get("/user/{email}", s.handleGetUser)
		r.Get("/health", s.handleBackendHealth)
	})

	return r
}

// handleHealth returns the bridge health status: transport connectivity
// and the number of devices seen. Answered from the metrics snapshot
// without blocking on outbound calls.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	metrics := s.bridge.GetMetrics()

	status := "healthy"
	if !metrics.Connected {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"mqtt":      metrics.Connected,
		"devices":   metrics.Devices,
		"processed": metrics.Processed,
		"dropped":   metrics.Dropped,
		"version":   s.version,
	})
}
