package traccar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/trakbridge/trakbridge/internal/infrastructure/config"
)

func testConfig(serverURL string) config.TraccarConfig {
	return config.TraccarConfig{
		URL: serverURL,
		Auth: config.TraccarAuthConfig{
			Username: "admin",
			Password: "secret",
		},
		Timeouts: config.TraccarTimeoutConfig{
			Connect: 5,
			Request: 10,
		},
		Device: config.TraccarDeviceConfig{
			Category: "default",
		},
	}
}

func TestCreateDevice(t *testing.T) {
	var gotReq DeviceRequest
	var gotAuth bool

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/devices" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		gotAuth = ok && user == "admin" && pass == "secret"

		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decoding request: %v", err)
		}

		json.NewEncoder(w).Encode(Device{
			ID:       42,
			Name:     gotReq.Name,
			UniqueID: gotReq.UniqueID,
			Category: gotReq.Category,
		})
	}))
	defer server.Close()

	client := New(testConfig(server.URL))

	device, err := client.CreateDevice(testContext(t), DeviceRequest{
		UniqueID:   "truck-01",
		Attributes: map[string]any{"fleet": "north"},
	})
	if err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}

	if device.ID != 42 {
		t.Errorf("device ID = %d, want 42", device.ID)
	}
	if !gotAuth {
		t.Error("request missing expected basic auth")
	}

	// Defaults applied when the caller omits them.
	if gotReq.Name != "Device truck-01" {
		t.Errorf("name = %q, want generated default", gotReq.Name)
	}
	if gotReq.Category != "default" {
		t.Errorf("category = %q, want %q", gotReq.Category, "default")
	}

	// Default attributes merged under caller attributes.
	if gotReq.Attributes["temperature"] != true {
		t.Errorf("attributes missing default temperature flag: %v", gotReq.Attributes)
	}
	if gotReq.Attributes["fleet"] != "north" {
		t.Errorf("attributes missing caller value: %v", gotReq.Attributes)
	}
}

func TestCreateDevice_CallerAttributesWin(t *testing.T) {
	var gotReq DeviceRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(Device{ID: 1})
	}))
	defer server.Close()

	client := New(testConfig(server.URL))

	_, err := client.CreateDevice(testContext(t), DeviceRequest{
		UniqueID:   "truck-01",
		Attributes: map[string]any{"temperature": false},
	})
	if err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}

	if gotReq.Attributes["temperature"] != false {
		t.Errorf("caller attribute should override default, got %v", gotReq.Attributes["temperature"])
	}
}

func TestCreateDevice_Validation(t *testing.T) {
	client := New(testConfig("http://localhost:1"))

	_, err := client.CreateDevice(testContext(t), DeviceRequest{})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("error = %v, want ErrInvalidRequest", err)
	}
}

func TestCreateDevice_BackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "conflict", http.StatusBadRequest)
	}))
	defer server.Close()

	client := New(testConfig(server.URL))

	_, err := client.CreateDevice(testContext(t), DeviceRequest{UniqueID: "truck-01"})
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Errorf("error = %v, want ErrUnexpectedStatus", err)
	}
}

func TestSendPosition(t *testing.T) {
	var gotQuery map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			t.Errorf("path = %q, want /", r.URL.Path)
		}
		gotQuery = make(map[string]string)
		for k, v := range r.URL.Query() {
			gotQuery[k] = v[0]
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(testConfig(server.URL))

	temp := 21.5
	fixTime := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	err := client.SendPosition(testContext(t), Position{
		DeviceID:    "truck-01",
		Latitude:    51.5,
		Longitude:   -0.12,
		Altitude:    30,
		Speed:       12.5,
		Accuracy:    4,
		FixTime:     fixTime,
		Temperature: &temp,
	})
	if err != nil {
		t.Fatalf("SendPosition() error = %v", err)
	}

	want := map[string]string{
		"id":          "truck-01",
		"lat":         "51.5",
		"lon":         "-0.12",
		"altitude":    "30",
		"speed":       "12.5",
		"hdop":        "4",
		"temperature": "21.5",
	}
	for k, v := range want {
		if gotQuery[k] != v {
			t.Errorf("query %s = %q, want %q", k, gotQuery[k], v)
		}
	}

	wantTS := "1773576000000"
	if gotQuery["timestamp"] != wantTS {
		t.Errorf("timestamp = %q, want %q (epoch ms)", gotQuery["timestamp"], wantTS)
	}
}

func TestSendPosition_Defaults(t *testing.T) {
	var gotQuery map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = make(map[string]string)
		for k, v := range r.URL.Query() {
			gotQuery[k] = v[0]
		}
	}))
	defer server.Close()

	client := New(testConfig(server.URL))
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return now }

	err := client.SendPosition(testContext(t), Position{
		DeviceID:  "truck-01",
		Latitude:  10,
		Longitude: 20,
	})
	if err != nil {
		t.Fatalf("SendPosition() error = %v", err)
	}

	// No accuracy reported: hdop falls back to 1, not 0.
	if gotQuery["hdop"] != "1" {
		t.Errorf("hdop = %q, want 1", gotQuery["hdop"])
	}
	if gotQuery["altitude"] != "0" || gotQuery["speed"] != "0" {
		t.Errorf("altitude/speed = %q/%q, want 0/0", gotQuery["altitude"], gotQuery["speed"])
	}
	// Zero fix time: receipt time is used.
	if gotQuery["timestamp"] != "1773576000000" {
		t.Errorf("timestamp = %q, want receipt time epoch ms", gotQuery["timestamp"])
	}
	// No temperature cached: parameter absent entirely.
	if _, ok := gotQuery["temperature"]; ok {
		t.Error("temperature parameter should be absent when no reading is cached")
	}
}

func TestSendPosition_BackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := New(testConfig(server.URL))

	err := client.SendPosition(testContext(t), Position{DeviceID: "truck-01", Latitude: 1, Longitude: 2})
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Errorf("error = %v, want ErrUnexpectedStatus", err)
	}
}

func TestCreateUser(t *testing.T) {
	var gotPayload map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/users" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotPayload)
		json.NewEncoder(w).Encode(User{ID: 7, Email: "a@example.com"})
	}))
	defer server.Close()

	client := New(testConfig(server.URL))

	user, err := client.CreateUser(testContext(t), UserRequest{
		Name:     "Alice",
		Email:    "a@example.com",
		Password: "pw",
	})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if user.ID != 7 {
		t.Errorf("user ID = %d, want 7", user.ID)
	}

	if gotPayload["administrator"] != false || gotPayload["readonly"] != false {
		t.Errorf("bridge-created users must be regular accounts: %v", gotPayload)
	}
	attrs, _ := gotPayload["attributes"].(map[string]any)
	if attrs["source"] != "trakbridge" {
		t.Errorf("attributes missing source marker: %v", attrs)
	}
	if attrs["registrationDate"] == "" {
		t.Errorf("attributes missing registrationDate: %v", attrs)
	}
}

func TestCreateUser_Validation(t *testing.T) {
	client := New(testConfig("http://localhost:1"))

	tests := []struct {
		name string
		req  UserRequest
	}{
		{"missing email", UserRequest{Password: "pw"}},
		{"missing password", UserRequest{Email: "a@example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := client.CreateUser(testContext(t), tt.req); !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestGetUserByEmail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]User{
			{ID: 1, Email: "first@example.com"},
			{ID: 2, Email: "second@example.com"},
		})
	}))
	defer server.Close()

	client := New(testConfig(server.URL))

	user, err := client.GetUserByEmail(testContext(t), "second@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail() error = %v", err)
	}
	if user.ID != 2 {
		t.Errorf("user ID = %d, want 2", user.ID)
	}

	_, err = client.GetUserByEmail(testContext(t), "missing@example.com")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("error = %v, want ErrUserNotFound", err)
	}
}

func TestListUserDevices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("userId"); got != "7" {
			t.Errorf("userId = %q, want 7", got)
		}
		json.NewEncoder(w).Encode([]Device{{ID: 42, UniqueID: "truck-01"}})
	}))
	defer server.Close()

	client := New(testConfig(server.URL))

	devices, err := client.ListUserDevices(testContext(t), 7)
	if err != nil {
		t.Fatalf("ListUserDevices() error = %v", err)
	}
	if len(devices) != 1 || devices[0].UniqueID != "truck-01" {
		t.Errorf("devices = %+v, want one truck-01", devices)
	}
}

func TestLinkUserDevice(t *testing.T) {
	var gotPayload map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/permissions" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotPayload)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := New(testConfig(server.URL))

	if err := client.LinkUserDevice(testContext(t), 7, 42); err != nil {
		t.Fatalf("LinkUserDevice() error = %v", err)
	}

	if gotPayload["userId"] != float64(7) || gotPayload["deviceId"] != float64(42) {
		t.Errorf("payload = %v, want userId 7 / deviceId 42", gotPayload)
	}
}

func TestHealthCheck(t *testing.T) {
	healthy := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode([]User{})
	}))
	defer server.Close()

	client := New(testConfig(server.URL))

	if err := client.HealthCheck(testContext(t)); err != nil {
		t.Errorf("HealthCheck() error = %v, want nil", err)
	}

	healthy = false
	if err := client.HealthCheck(testContext(t)); !errors.Is(err, ErrUnexpectedStatus) {
		t.Errorf("HealthCheck() error = %v, want ErrUnexpectedStatus", err)
	}
}

// testContext is a stand-in for t.Context() (added in Go 1.24): it
// returns a context canceled when the test's cleanup functions run.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
