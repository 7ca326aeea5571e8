package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/trakbridge/trakbridge/internal/bridge"
	"github.com/trakbridge/trakbridge/internal/device"
	"github.com/trakbridge/trakbridge/internal/infrastructure/config"
	"github.com/trakbridge/trakbridge/internal/infrastructure/logging"
	"github.com/trakbridge/trakbridge/internal/traccar"
)

// fakeBridge implements Bridge for testing.
type fakeBridge struct {
	mu        sync.Mutex
	metrics   bridge.Metrics
	injected  []string
	injectErr error
}

func (f *fakeBridge) GetMetrics() bridge.Metrics {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metrics
}

func (f *fakeBridge) ProcessLocation(_ context.Context, deviceID string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.injectErr != nil {
		return f.injectErr
	}
	f.injected = append(f.injected, deviceID)
	return nil
}

// fakeCache implements DeviceCache for testing.
type fakeCache struct {
	records []*device.Record
}

func (f *fakeCache) Snapshot() []*device.Record {
	return f.records
}

// fakeTraccar implements Onboarding for testing.
type fakeTraccar struct {
	mu          sync.Mutex
	users       map[string]*traccar.User
	nextUserID  int64
	devices     []traccar.DeviceRequest
	links       [][2]int64
	createErr   error
	linkErr     error
	healthErr   error
	userDevices []traccar.Device
}

func newFakeTraccar() *fakeTraccar {
	return &fakeTraccar{
		users:      make(map[string]*traccar.User),
		nextUserID: 10,
	}
}

func (f *fakeTraccar) CreateUser(_ context.Context, req traccar.UserRequest) (*traccar.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextUserID++
	user := &traccar.User{ID: f.nextUserID, Name: req.Name, Email: req.Email}
	f.users[req.Email] = user
	return user, nil
}

func (f *fakeTraccar) GetUserByEmail(_ context.Context, email string) (*traccar.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.users[email]; ok {
		return user, nil
	}
	return nil, traccar.ErrUserNotFound
}

func (f *fakeTraccar) ListUserDevices(_ context.Context, _ int64) ([]traccar.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userDevices, nil
}

func (f *fakeTraccar) LinkUserDevice(_ context.Context, userID, deviceID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.linkErr != nil {
		return f.linkErr
	}
	f.links = append(f.links, [2]int64{userID, deviceID})
	return nil
}

func (f *fakeTraccar) CreateDevice(_ context.Context, req traccar.DeviceRequest) (*traccar.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.devices = append(f.devices, req)
	return &traccar.Device{ID: 42, Name: req.Name, UniqueID: req.UniqueID, Category: req.Category}, nil
}

func (f *fakeTraccar) HealthCheck(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthErr
}

// newTestServer builds a server on fakes and returns its router.
func newTestServer(t *testing.T) (*Server, *fakeBridge, *fakeCache, *fakeTraccar, http.Handler) {
	t.Helper()

	fb := &fakeBridge{metrics: bridge.Metrics{Connected: true, Devices: 2}}
	fc := &fakeCache{}
	ft := newFakeTraccar()

	s, err := New(Deps{
		Config: config.APIConfig{Host: "127.0.0.1", Port: 3000},
		MQTT: config.MQTTConfig{
			Broker: config.MQTTBrokerConfig{Host: "broker.local", Port: 1883},
			Auth:   config.MQTTAuthConfig{Username: "dev", Password: "pw"},
		},
		Logger:  logging.Default(),
		Bridge:  fb,
		Cache:   fc,
		Traccar: ft,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s, fb, fc, ft, s.buildRouter()
}

func doRequest(router http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Deps{Logger: logging.Default()})
	if err == nil {
		t.Error("New() should fail without bridge")
	}
}

func TestHandleHealth(t *testing.T) {
	_, fb, _, _, router := newTestServer(t)

	rec := doRequest(router, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}
	if body["mqtt"] != true {
		t.Errorf("mqtt = %v, want true", body["mqtt"])
	}
	if body["devices"] != float64(2) {
		t.Errorf("devices = %v, want 2", body["devices"])
	}

	// Transport down: still 200 but degraded.
	fb.mu.Lock()
	fb.metrics.Connected = false
	fb.mu.Unlock()

	rec = doRequest(router, http.MethodGet, "/health", nil)
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", body["status"])
	}
}

func TestHandleListDevices(t *testing.T) {
	_, _, fc, _, router := newTestServer(t)

	temp := 21.5
	traccarID := int64(42)
	fc.records = []*device.Record{
		{
			ID:              "truck-01",
			TraccarID:       &traccarID,
			LastTemperature: &temp,
			TemperatureAt:   time.Now(),
			FirstSeen:       time.Now(),
			LastSeen:        time.Now(),
		},
		{ID: "truck-02", FirstSeen: time.Now(), LastSeen: time.Now()},
	}

	rec := doRequest(router, http.MethodGet, "/devices", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var views []DeviceView
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("got %d devices, want 2", len(views))
	}
	if views[0].DeviceID != "truck-01" || *views[0].TraccarID != 42 || *views[0].LastTemperature != 21.5 {
		t.Errorf("view = %+v", views[0])
	}
	if views[1].TraccarID != nil || views[1].TemperatureAt != nil {
		t.Errorf("empty fields should be omitted: %+v", views[1])
	}
}

func TestHandleInjectPosition(t *testing.T) {
	_, fb, _, _, router := newTestServer(t)

	rec := doRequest(router, http.MethodPost, "/devices/truck-01/position",
		[]byte(`{"latitude":10,"longitude":20}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}

	fb.mu.Lock()
	injected := append([]string(nil), fb.injected...)
	fb.mu.Unlock()
	if len(injected) != 1 || injected[0] != "truck-01" {
		t.Errorf("injected = %v, want [truck-01]", injected)
	}
}

func TestHandleInjectPosition_Errors(t *testing.T) {
	_, fb, _, _, router := newTestServer(t)

	// Validation failures map to 400.
	fb.injectErr = bridge.ErrInvalidPayload
	rec := doRequest(router, http.MethodPost, "/devices/truck-01/position", []byte(`{}`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	// Backend failures map to 500.
	fb.injectErr = errors.New("backend down")
	rec = doRequest(router, http.MethodPost, "/devices/truck-01/position",
		[]byte(`{"latitude":1,"longitude":2}`))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestHandleRegister_NewUser(t *testing.T) {
	_, _, _, ft, router := newTestServer(t)

	body := []byte(`{
		"user": {"name":"Alice","email":"alice@example.com","password":"pw"},
		"device": {"uniqueId":"truck-01"}
	}`)
	rec := doRequest(router, http.MethodPost, "/api/register", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}

	var resp RegisterResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !resp.Success {
		t.Error("success = false, want true")
	}
	if resp.User.Email != "alice@example.com" {
		t.Errorf("user email = %q", resp.User.Email)
	}
	if resp.Device.ID != 42 || resp.Device.UniqueID != "truck-01" {
		t.Errorf("device = %+v", resp.Device)
	}
	if resp.MQTT.Broker != "tcp://broker.local:1883" || resp.MQTT.Username != "dev" {
		t.Errorf("mqtt credentials = %+v", resp.MQTT)
	}

	// Device linked to the created user.
	ft.mu.Lock()
	links := append([][2]int64(nil), ft.links...)
	ft.mu.Unlock()
	if len(links) != 1 || links[0][0] != resp.User.ID || links[0][1] != 42 {
		t.Errorf("links = %v", links)
	}
}

func TestHandleRegister_ExistingUserReused(t *testing.T) {
	_, _, _, ft, router := newTestServer(t)
	ft.users["alice@example.com"] = &traccar.User{ID: 5, Email: "alice@example.com", Name: "Alice"}

	body := []byte(`{
		"user": {"email":"alice@example.com","password":"pw"},
		"device": {"uniqueId":"truck-02"}
	}`)
	rec := doRequest(router, http.MethodPost, "/api/register", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}

	var resp RegisterResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.User.ID != 5 {
		t.Errorf("user ID = %d, want existing user 5", resp.User.ID)
	}

	// No second account created for the email.
	ft.mu.Lock()
	userCount := len(ft.users)
	ft.mu.Unlock()
	if userCount != 1 {
		t.Errorf("user count = %d, want 1", userCount)
	}
}

func TestHandleRegister_Validation(t *testing.T) {
	_, _, _, _, router := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing email", `{"user":{"password":"pw"},"device":{"uniqueId":"d1"}}`},
		{"missing password", `{"user":{"email":"a@b.c"},"device":{"uniqueId":"d1"}}`},
		{"missing uniqueId", `{"user":{"email":"a@b.c","password":"pw"},"device":{}}`},
		{"malformed json", `{broken`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(router, http.MethodPost, "/api/register", []byte(tt.body))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestHandleRegister_LinkFailure(t *testing.T) {
	_, _, _, ft, router := newTestServer(t)
	ft.linkErr = errors.New("permission denied")

	body := []byte(`{
		"user": {"email":"a@b.c","password":"pw"},
		"device": {"uniqueId":"truck-01"}
	}`)
	rec := doRequest(router, http.MethodPost, "/api/register", body)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestHandleGetUser(t *testing.T) {
	_, _, _, ft, router := newTestServer(t)
	ft.users["alice@example.com"] = &traccar.User{ID: 5, Email: "alice@example.com", Name: "Alice"}
	ft.userDevices = []traccar.Device{{ID: 42, UniqueID: "truck-01", Name: "Truck", Category: "default"}}

	rec := doRequest(router, http.MethodGet, "/api/user/alice@example.com", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}

	var resp UserProfileResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.User.ID != 5 {
		t.Errorf("user ID = %d, want 5", resp.User.ID)
	}
	if len(resp.Devices) != 1 || resp.Devices[0].UniqueID != "truck-01" {
		t.Errorf("devices = %+v", resp.Devices)
	}
}

func TestHandleGetUser_NotFound(t *testing.T) {
	_, _, _, _, router := newTestServer(t)

	rec := doRequest(router, http.MethodGet, "/api/user/ghost@example.com", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandleBackendHealth(t *testing.T) {
	_, _, _, ft, router := newTestServer(t)

	rec := doRequest(router, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["traccarConnection"] != "ok" {
		t.Errorf("traccarConnection = %v, want ok", body["traccarConnection"])
	}

	ft.mu.Lock()
	ft.healthErr = errors.New("unauthorized")
	ft.mu.Unlock()

	rec = doRequest(router, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "unhealthy" {
		t.Errorf("status = %v, want unhealthy", body["status"])
	}
}

func TestRequestIDHeader(t *testing.T) {
	_, _, _, _, router := newTestServer(t)

	rec := doRequest(router, http.MethodGet, "/health", nil)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header should be set")
	}

	// Client-supplied IDs are echoed.
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "client-id-123")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if got := resp.Header().Get("X-Request-ID"); got != "client-id-123" {
		t.Errorf("X-Request-ID = %q, want client-id-123", got)
	}
}

func TestServerLifecycle(t *testing.T) {
	s, _, _, _, _ := newTestServer(t)

	if err := s.HealthCheck(testContext(t)); err == nil {
		t.Error("HealthCheck() should fail before Start")
	}

	s.cfg.Port = 0 // any free port
	if err := s.Start(testContext(t)); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.HealthCheck(testContext(t)); err != nil {
		t.Errorf("HealthCheck() error = %v after Start", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
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
