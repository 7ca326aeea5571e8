package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/trakbridge/trakbridge/internal/bridge"
	"github.com/trakbridge/trakbridge/internal/device"
)

// DeviceView is the JSON shape of a cached device record.
type DeviceView struct {
	DeviceID        string     `json:"deviceId"`
	TraccarID       *int64     `json:"traccarId,omitempty"`
	LastTemperature *float64   `json:"lastTemperature,omitempty"`
	TemperatureAt   *time.Time `json:"temperatureAt,omitempty"`
	FirstSeen       time.Time  `json:"firstSeen"`
	LastSeen        time.Time  `json:"lastSeen"`
}

// newDeviceView converts a cache record for the wire.
func newDeviceView(rec *device.Record) DeviceView {
	view := DeviceView{
		DeviceID:        rec.ID,
		TraccarID:       rec.TraccarID,
		LastTemperature: rec.LastTemperature,
		FirstSeen:       rec.FirstSeen,
		LastSeen:        rec.LastSeen,
	}
	if !rec.TemperatureAt.IsZero() {
		at := rec.TemperatureAt
		view.TemperatureAt = &at
	}
	return view
}

// handleListDevices returns all devices the bridge has seen.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	records := s.cache.Snapshot()

	views := make([]DeviceView, 0, len(records))
	for _, rec := range records {
		views = append(views, newDeviceView(rec))
	}

	writeJSON(w, http.StatusOK, views)
}

// handleInjectPosition accepts a position fix over HTTP and pushes it
// through the same processing path as MQTT-delivered fixes, including
// temperature merging.
func (s *Server) handleInjectPosition(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceId")
	if deviceID == "" {
		writeBadRequest(w, "device id is required")
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "reading request body: "+err.Error())
		return
	}

	if err := s.bridge.ProcessLocation(r.Context(), deviceID, payload); err != nil {
		if errors.Is(err, bridge.ErrInvalidPayload) {
			writeBadRequest(w, err.Error())
			return
		}
		s.logger.Error("position injection failed", "device_id", deviceID, "error", err)
		writeInternalError(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
