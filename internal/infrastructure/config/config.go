package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Trakbridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Traccar TraccarConfig `yaml:"traccar"`
	Bridge  BridgeConfig  `yaml:"bridge"`
	API     APIConfig     `yaml:"api"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServiceConfig contains service identification settings.
type ServiceConfig struct {
	Name string `yaml:"name"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
//
// Reconnection retries on a fixed period, indefinitely. Subscriptions are
// restored by the client on every successful reconnect.
type MQTTReconnectConfig struct {
	// Period is the fixed delay between reconnect attempts (seconds).
	Period int `yaml:"period"`

	// ConnectTimeout is the maximum time to wait for the initial
	// connection attempt (seconds).
	ConnectTimeout int `yaml:"connect_timeout"`
}

// TraccarConfig contains settings for the Traccar tracking backend.
type TraccarConfig struct {
	// URL is the base URL of the Traccar server (e.g. "http://localhost:8082").
	URL string `yaml:"url"`

	Auth     TraccarAuthConfig    `yaml:"auth"`
	Timeouts TraccarTimeoutConfig `yaml:"timeouts"`
	Device   TraccarDeviceConfig  `yaml:"device"`
}

// TraccarAuthConfig contains the admin credentials used for all backend calls.
type TraccarAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// TraccarTimeoutConfig contains HTTP timeout settings for backend calls.
type TraccarTimeoutConfig struct {
	// Connect is the TCP connect timeout (seconds).
	Connect int `yaml:"connect"`

	// Request is the overall per-request timeout (seconds).
	Request int `yaml:"request"`
}

// TraccarDeviceConfig contains defaults applied to device registrations.
type TraccarDeviceConfig struct {
	// Category is the Traccar device category for bridge-registered devices.
	Category string `yaml:"category"`
}

// BridgeConfig contains message dispatch settings for the bridge core.
type BridgeConfig struct {
	// Workers is the number of goroutines consuming the inbound queue.
	// Each worker performs at most one outbound backend call at a time,
	// so this bounds concurrent outbound calls under message bursts.
	Workers int `yaml:"workers"`

	// QueueSize is the capacity of the inbound message queue. Messages
	// arriving while the queue is full are dropped and logged.
	QueueSize int `yaml:"queue_size"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: TRAKBRIDGE_SECTION_KEY
// For example: TRAKBRIDGE_MQTT_HOST, TRAKBRIDGE_TRACCAR_URL
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name: "trakbridge",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "trakbridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				Period:         5,
				ConnectTimeout: 30,
			},
		},
		Traccar: TraccarConfig{
			URL: "http://localhost:8082",
			Auth: TraccarAuthConfig{
				Username: "admin",
				Password: "admin",
			},
			Timeouts: TraccarTimeoutConfig{
				Connect: 10,
				Request: 30,
			},
			Device: TraccarDeviceConfig{
				Category: "default",
			},
		},
		Bridge: BridgeConfig{
			Workers:   4,
			QueueSize: 64,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 3000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: TRAKBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("TRAKBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("TRAKBRIDGE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("TRAKBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("TRAKBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Traccar
	if v := os.Getenv("TRAKBRIDGE_TRACCAR_URL"); v != "" {
		cfg.Traccar.URL = v
	}
	if v := os.Getenv("TRAKBRIDGE_TRACCAR_USERNAME"); v != "" {
		cfg.Traccar.Auth.Username = v
	}
	if v := os.Getenv("TRAKBRIDGE_TRACCAR_PASSWORD"); v != "" {
		cfg.Traccar.Auth.Password = v
	}

	// API
	if v := os.Getenv("TRAKBRIDGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("TRAKBRIDGE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Reconnect.Period < 1 {
		errs = append(errs, "mqtt.reconnect.period must be at least 1 second")
	}

	// Traccar validation
	if c.Traccar.URL == "" {
		errs = append(errs, "traccar.url is required")
	} else if !strings.HasPrefix(c.Traccar.URL, "http://") && !strings.HasPrefix(c.Traccar.URL, "https://") {
		errs = append(errs, "traccar.url must start with http:// or https://")
	}

	// Bridge validation
	if c.Bridge.Workers < 1 {
		errs = append(errs, "bridge.workers must be at least 1")
	}
	if c.Bridge.QueueSize < 1 {
		errs = append(errs, "bridge.queue_size must be at least 1")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReconnectPeriod returns the MQTT reconnect period as a Duration.
func (c *Config) GetReconnectPeriod() time.Duration {
	return time.Duration(c.MQTT.Reconnect.Period) * time.Second
}

// GetConnectTimeout returns the MQTT connect timeout as a Duration.
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.MQTT.Reconnect.ConnectTimeout) * time.Second
}

// GetTraccarConnectTimeout returns the backend TCP connect timeout as a Duration.
func (c *Config) GetTraccarConnectTimeout() time.Duration {
	return time.Duration(c.Traccar.Timeouts.Connect) * time.Second
}

// GetTraccarRequestTimeout returns the backend per-request timeout as a Duration.
func (c *Config) GetTraccarRequestTimeout() time.Duration {
	return time.Duration(c.Traccar.Timeouts.Request) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
