package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/trakbridge/trakbridge/internal/bridge"
	"github.com/trakbridge/trakbridge/internal/device"
	"github.com/trakbridge/trakbridge/internal/infrastructure/config"
	"github.com/trakbridge/trakbridge/internal/infrastructure/logging"
	"github.com/trakbridge/trakbridge/internal/traccar"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Bridge is the interface to the bridge core.
// Satisfied by *bridge.Bridge.
type Bridge interface {
	// GetMetrics returns a non-blocking snapshot of bridge state.
	GetMetrics() bridge.Metrics

	// ProcessLocation injects a position fix through the same path as
	// MQTT-delivered fixes.
	ProcessLocation(ctx context.Context, deviceID string, payload []byte) error
}

// DeviceCache exposes the cached device records for inspection.
// Satisfied by *device.Cache.
type DeviceCache interface {
	Snapshot() []*device.Record
}

// Onboarding is the backend surface used by the user onboarding flow.
// Satisfied by *traccar.Client.
type Onboarding interface {
	CreateUser(ctx context.Context, req traccar.UserRequest) (*traccar.User, error)
	GetUserByEmail(ctx context.Context, email string) (*traccar.User, error)
	ListUserDevices(ctx context.Context, userID int64) ([]traccar.Device, error)
	LinkUserDevice(ctx context.Context, userID, deviceID int64) error
	CreateDevice(ctx context.Context, req traccar.DeviceRequest) (*traccar.Device, error)
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config config.APIConfig

	// MQTT is echoed back to onboarded users as their connection details.
	MQTT config.MQTTConfig

	Logger  *logging.Logger
	Bridge  Bridge
	Cache   DeviceCache
	Traccar Onboarding
	Version string
}

// Server is the HTTP API server for Trakbridge.
//
// It manages the HTTP listener, routes, and middleware.
// The server is created with New() and started with Start().
type Server struct {
	cfg     config.APIConfig
	mqttCfg config.MQTTConfig
	logger  *logging.Logger
	bridge  Bridge
	cache   DeviceCache
	traccar Onboarding
	version string
	server  *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, bridge, cache, traccar)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("bridge is required")
	}
	if deps.Cache == nil {
		return nil, fmt.Errorf("device cache is required")
	}
	if deps.Traccar == nil {
		return nil, fmt.Errorf("traccar client is required")
	}

	return &Server{
		cfg:     deps.Config,
		mqttCfg: deps.MQTT,
		logger:  deps.Logger,
		bridge:  deps.Bridge,
		cache:   deps.Cache,
		traccar: deps.Traccar,
		version: deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(_ context.Context) error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", s.server.Addr)
	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
