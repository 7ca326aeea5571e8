// Trakbridge - MQTT to Traccar telemetry bridge
//
// This is the main entry point for the Trakbridge service. Trakbridge
// subscribes to device telemetry over MQTT (registrations, position
// fixes, temperature readings), translates it for a Traccar tracking
// backend, and exposes a companion HTTP API for inspection and user
// onboarding.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/trakbridge/trakbridge/internal/api"
	"github.com/trakbridge/trakbridge/internal/bridge"
	"github.com/trakbridge/trakbridge/internal/device"
	"github.com/trakbridge/trakbridge/internal/infrastructure/config"
	"github.com/trakbridge/trakbridge/internal/infrastructure/logging"
	"github.com/trakbridge/trakbridge/internal/infrastructure/mqtt"
	"github.com/trakbridge/trakbridge/internal/traccar"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Trakbridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Set up MQTT logging callbacks
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected, subscriptions restored")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected, retrying on fixed period",
			"error", err,
			"period", cfg.GetReconnectPeriod(),
		)
	})

	// Backend gateway and device cache
	traccarClient := traccar.New(cfg.Traccar)
	log.Info("Traccar gateway initialised", "url", cfg.Traccar.URL)

	deviceCache := device.NewCache()

	// Create and start the bridge core
	b, err := bridge.New(bridge.Options{
		Config:  cfg.Bridge,
		QoS:     byte(cfg.MQTT.QoS),
		MQTT:    &mqttBridgeAdapter{client: mqttClient},
		Backend: traccarClient,
		Cache:   deviceCache,
		Logger:  log,
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if err := b.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		b.Stop()
	}()

	// Start the companion HTTP API
	apiServer, err := api.New(api.Deps{
		Config:  cfg.API,
		MQTT:    cfg.MQTT,
		Logger:  log,
		Bridge:  b,
		Cache:   deviceCache,
		Traccar: traccarClient,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify connections. The backend being down is not fatal: telemetry
	// handling degrades per-message and recovers when Traccar returns.
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if err := traccarClient.HealthCheck(ctx); err != nil {
		log.Warn("Traccar unreachable at startup, continuing", "error", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. API server
	// 2. Bridge (drains workers)
	// 3. MQTT

	log.Info("Trakbridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses TRAKBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("TRAKBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the
// bridge.MQTTClient interface (the bridge accepts plain function
// handlers to stay decoupled from the transport package).
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error {
	return a.client.Subscribe(topic, qos, handler)
}

func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
