package traccar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/trakbridge/trakbridge/internal/infrastructure/config"
)

// Default attribute set applied to every device the bridge creates.
// Caller-supplied attributes win on key conflict.
var defaultDeviceAttributes = map[string]any{
	"temperature": true,
}

// Client is the HTTP client for the Traccar backend.
//
// All API calls authenticate with the configured admin credentials via
// HTTP basic auth. Position reports use the OsmAnd protocol against the
// server root instead of the REST API.
//
// Thread Safety: all methods are safe for concurrent use.
type Client struct {
	baseURL  string
	username string
	password string
	category string

	http *http.Client

	// now is injectable for tests.
	now func() time.Time
}

// New creates a backend client from configuration.
func New(cfg config.TraccarConfig) *Client {
	return &Client{
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		username: cfg.Auth.Username,
		password: cfg.Auth.Password,
		category: cfg.Device.Category,
		http: &http.Client{
			Timeout: requestTimeout(cfg),
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: connectTimeout(cfg),
				}).DialContext,
			},
		},
		now: time.Now,
	}
}

// requestTimeout returns the overall per-request timeout, defaulting to 30s.
func requestTimeout(cfg config.TraccarConfig) time.Duration {
	if cfg.Timeouts.Request < 1 {
		return 30 * time.Second
	}
	return time.Duration(cfg.Timeouts.Request) * time.Second
}

// connectTimeout returns the TCP connect timeout, defaulting to 10s.
func connectTimeout(cfg config.TraccarConfig) time.Duration {
	if cfg.Timeouts.Connect < 1 {
		return 10 * time.Second
	}
	return time.Duration(cfg.Timeouts.Connect) * time.Second
}

// CreateDevice registers a device in the backend.
//
// Defaults are applied before the call: a generated display name when
// none is supplied, the configured category, and the standard bridge
// attributes merged under any caller-supplied ones.
//
// The call is never retried; the caller decides how to surface failure.
func (c *Client) CreateDevice(ctx context.Context, req DeviceRequest) (*Device, error) {
	if req.UniqueID == "" {
		return nil, fmt.Errorf("%w: uniqueId is required", ErrInvalidRequest)
	}

	if req.Name == "" {
		req.Name = "Device " + req.UniqueID
	}
	if req.Category == "" {
		req.Category = c.category
	}
	req.Attributes = mergeAttributes(defaultDeviceAttributes, req.Attributes)

	var device Device
	if err := c.doJSON(ctx, http.MethodPost, "/api/devices", req, &device); err != nil {
		return nil, err
	}
	return &device, nil
}

// SendPosition reports a position fix using the OsmAnd protocol.
//
// The fix is translated to query parameters on a GET against the server
// root: id, lat, lon, timestamp (epoch milliseconds), hdop, altitude
// and speed. A cached temperature reading and battery level ride along
// as extra parameters, which Traccar stores as position attributes.
func (c *Client) SendPosition(ctx context.Context, pos Position) error {
	if pos.DeviceID == "" {
		return fmt.Errorf("%w: device id is required", ErrInvalidRequest)
	}

	fixTime := pos.FixTime
	if fixTime.IsZero() {
		fixTime = c.now()
	}

	// hdop falls back to 1 when no accuracy was reported; zero would
	// claim a perfect fix.
	hdop := pos.Accuracy
	if hdop == 0 {
		hdop = 1
	}

	params := url.Values{}
	params.Set("id", pos.DeviceID)
	params.Set("lat", formatFloat(pos.Latitude))
	params.Set("lon", formatFloat(pos.Longitude))
	params.Set("timestamp", strconv.FormatInt(fixTime.UnixMilli(), 10))
	params.Set("hdop", formatFloat(hdop))
	params.Set("altitude", formatFloat(pos.Altitude))
	params.Set("speed", formatFloat(pos.Speed))
	if pos.Course != 0 {
		params.Set("heading", formatFloat(pos.Course))
	}
	if pos.Temperature != nil {
		params.Set("temperature", formatFloat(*pos.Temperature))
	}
	if pos.BatteryLevel != nil {
		params.Set("batt", formatFloat(*pos.BatteryLevel))
	}

	reqURL := c.baseURL + "/?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("building position request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET /: %w", err)
	}
	defer resp.Body.Close()
	drain(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: GET / returned %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	return nil
}

// CreateUser creates a user account in the backend.
//
// Accounts created through the bridge are regular non-admin users; a
// registration timestamp and source marker are recorded in the user's
// attributes, under any caller-supplied ones.
func (c *Client) CreateUser(ctx context.Context, req UserRequest) (*User, error) {
	if req.Email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidRequest)
	}
	if req.Password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidRequest)
	}

	payload := map[string]any{
		"name":          req.Name,
		"email":         req.Email,
		"password":      req.Password,
		"readonly":      false,
		"administrator": false,
		"attributes": mergeAttributes(map[string]any{
			"registrationDate": c.now().UTC().Format(time.RFC3339),
			"source":           "trakbridge",
		}, req.Attributes),
	}

	var user User
	if err := c.doJSON(ctx, http.MethodPost, "/api/users", payload, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail looks up a user by exact email match.
//
// Traccar has no filtered user query, so this lists all users and scans.
// Returns ErrUserNotFound when no user matches.
func (c *Client) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var users []User
	if err := c.doJSON(ctx, http.MethodGet, "/api/users", nil, &users); err != nil {
		return nil, err
	}

	for i := range users {
		if users[i].Email == email {
			return &users[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUserNotFound, email)
}

// ListUserDevices returns the devices linked to a user.
func (c *Client) ListUserDevices(ctx context.Context, userID int64) ([]Device, error) {
	path := "/api/devices?userId=" + strconv.FormatInt(userID, 10)

	var devices []Device
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// LinkUserDevice grants a user access to a device.
func (c *Client) LinkUserDevice(ctx context.Context, userID, deviceID int64) error {
	payload := map[string]any{
		"userId":   userID,
		"deviceId": deviceID,
	}
	return c.doJSON(ctx, http.MethodPost, "/api/permissions", payload, nil)
}

// HealthCheck verifies the backend is reachable and accepting the
// configured credentials by listing users.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/api/users", nil, nil)
}

// doJSON performs a JSON API request with basic auth.
//
// body (when non-nil) is JSON-encoded; out (when non-nil) receives the
// decoded response body. Non-2xx responses yield ErrUnexpectedStatus
// wrapped with method, path and status.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s %s request: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building %s %s request: %w", method, path, err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		drain(resp.Body)
		return fmt.Errorf("%w: %s %s returned %d", ErrUnexpectedStatus, method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding %s %s response: %w", method, path, err)
		}
	} else {
		drain(resp.Body)
	}
	return nil
}

// mergeAttributes overlays caller attributes on defaults (caller wins).
func mergeAttributes(defaults, overrides map[string]any) map[string]any {
	merged := make(map[string]any, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// formatFloat renders a float without exponent notation or trailing zeros.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// drain discards a response body so the connection can be reused.
func drain(body io.Reader) {
	_, _ = io.Copy(io.Discard, body)
}
