package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/trakbridge/trakbridge/internal/traccar"
)

// RegisterRequest is the user+device onboarding request body.
type RegisterRequest struct {
	User   RegisterUser   `json:"user"`
	Device RegisterDevice `json:"device"`
}

// RegisterUser identifies the account to create or reuse.
type RegisterUser struct {
	Name       string         `json:"name"`
	Email      string         `json:"email"`
	Password   string         `json:"password"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// RegisterDevice describes the device to provision for the user.
type RegisterDevice struct {
	Name       string         `json:"name"`
	UniqueID   string         `json:"uniqueId"`
	Category   string         `json:"category"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// RegisterResponse reports the provisioned account and device, plus the
// MQTT connection details the device should use for telemetry.
type RegisterResponse struct {
	Success bool            `json:"success"`
	User    UserSummary     `json:"user"`
	Device  DeviceSummary   `json:"device"`
	MQTT    MQTTCredentials `json:"mqttCredentials"`
}

// UserSummary is the wire shape of a backend user.
type UserSummary struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// DeviceSummary is the wire shape of a backend device.
type DeviceSummary struct {
	ID       int64  `json:"id"`
	UniqueID string `json:"uniqueId"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

// MQTTCredentials are the broker connection details for onboarded devices.
type MQTTCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Broker   string `json:"broker"`
}

// handleRegister provisions a user and device in the backend.
//
// An existing user (matched by email) is reused rather than recreated;
// the device is always created and linked to the user. The response
// includes the MQTT credentials the device needs to start reporting.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.User.Email == "" || req.User.Password == "" || req.Device.UniqueID == "" {
		writeBadRequest(w, "missing required fields: user.email, user.password, device.uniqueId")
		return
	}

	ctx := r.Context()

	// Reuse an existing account when the email is already registered.
	user, err := s.traccar.GetUserByEmail(ctx, req.User.Email)
	switch {
	case err == nil:
		s.logger.Info("reusing existing user", "email", req.User.Email)
	case errors.Is(err, traccar.ErrUserNotFound):
		user, err = s.traccar.CreateUser(ctx, traccar.UserRequest{
			Name:       req.User.Name,
			Email:      req.User.Email,
			Password:   req.User.Password,
			Attributes: req.User.Attributes,
		})
		if err != nil {
			s.logger.Error("user creation failed", "email", req.User.Email, "error", err)
			writeInternalError(w, "registration failed: "+err.Error())
			return
		}
	default:
		s.logger.Error("user lookup failed", "email", req.User.Email, "error", err)
		writeInternalError(w, "registration failed: "+err.Error())
		return
	}

	dev, err := s.traccar.CreateDevice(ctx, traccar.DeviceRequest{
		Name:       req.Device.Name,
		UniqueID:   req.Device.UniqueID,
		Category:   req.Device.Category,
		Attributes: req.Device.Attributes,
	})
	if err != nil {
		s.logger.Error("device creation failed", "unique_id", req.Device.UniqueID, "error", err)
		writeInternalError(w, "registration failed: "+err.Error())
		return
	}

	if err := s.traccar.LinkUserDevice(ctx, user.ID, dev.ID); err != nil {
		s.logger.Error("device link failed",
			"user_id", user.ID,
			"device_id", dev.ID,
			"error", err)
		writeInternalError(w, "registration failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, RegisterResponse{
		Success: true,
		User: UserSummary{
			ID:    user.ID,
			Email: user.Email,
			Name:  user.Name,
		},
		Device: DeviceSummary{
			ID:       dev.ID,
			UniqueID: dev.UniqueID,
			Name:     dev.Name,
			Category: dev.Category,
		},
		MQTT: s.mqttCredentials(),
	})
}

// UserProfileResponse is the user profile + devices payload.
type UserProfileResponse struct {
	User    UserSummary     `json:"user"`
	Devices []DeviceSummary `json:"devices"`
}

// handleGetUser returns a user's profile and linked devices.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	ctx := r.Context()

	user, err := s.traccar.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, traccar.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		s.logger.Error("user lookup failed", "email", email, "error", err)
		writeInternalError(w, "failed to get user: "+err.Error())
		return
	}

	devices, err := s.traccar.ListUserDevices(ctx, user.ID)
	if err != nil {
		s.logger.Error("device listing failed", "user_id", user.ID, "error", err)
		writeInternalError(w, "failed to get user devices: "+err.Error())
		return
	}

	summaries := make([]DeviceSummary, 0, len(devices))
	for _, dev := range devices {
		summaries = append(summaries, DeviceSummary{
			ID:       dev.ID,
			UniqueID: dev.UniqueID,
			Name:     dev.Name,
			Category: dev.Category,
		})
	}

	writeJSON(w, http.StatusOK, UserProfileResponse{
		User: UserSummary{
			ID:    user.ID,
			Email: user.Email,
			Name:  user.Name,
		},
		Devices: summaries,
	})
}

// handleBackendHealth probes the Traccar connection and reports 503 when
// the backend is unreachable or rejecting the configured credentials.
func (s *Server) handleBackendHealth(w http.ResponseWriter, r *http.Request) {
	timestamp := time.Now().UTC().Format(time.RFC3339)

	if err := s.traccar.HealthCheck(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":            "unhealthy",
			"traccarConnection": "failed",
			"error":             err.Error(),
			"timestamp":         timestamp,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "healthy",
		"traccarConnection": "ok",
		"timestamp":         timestamp,
	})
}

// mqttCredentials builds the broker connection details from config.
func (s *Server) mqttCredentials() MQTTCredentials {
	scheme := "tcp"
	if s.mqttCfg.Broker.TLS {
		scheme = "ssl"
	}
	return MQTTCredentials{
		Username: s.mqttCfg.Auth.Username,
		Password: s.mqttCfg.Auth.Password,
		Broker:   fmt.Sprintf("%s://%s:%d", scheme, s.mqttCfg.Broker.Host, s.mqttCfg.Broker.Port),
	}
}
