package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/trakbridge/trakbridge/internal/device"
	"github.com/trakbridge/trakbridge/internal/infrastructure/config"
	"github.com/trakbridge/trakbridge/internal/infrastructure/mqtt"
	"github.com/trakbridge/trakbridge/internal/traccar"
)

// Bridge routes inbound MQTT telemetry to the Traccar backend.
// It handles:
//   - Device registrations, acknowledged back to the device over MQTT
//   - Position fixes, enriched with cached temperature readings
//   - Temperature readings, cached for the next position fix
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	qos     byte
	mqtt    MQTTClient
	backend Backend
	cache   DeviceCache
	topics  mqtt.Topics

	// Bounded dispatch: inbound messages queue here and a fixed worker
	// pool drains it, so bursts never spawn unbounded backend calls.
	jobs    chan job
	workers int

	processed atomic.Uint64
	dropped   atomic.Uint64

	// Shutdown coordination
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context    // Bridge-level context, cancelled on Stop()
	ctxCancel context.CancelFunc // Cancel function for ctx

	// Logger
	logger   Logger
	loggerMu sync.RWMutex

	// now is injectable for tests.
	now func() time.Time
}

// job is one classified inbound message awaiting a worker.
type job struct {
	kind     Kind
	deviceID string
	payload  []byte
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// Backend is the interface to the tracking backend.
// Satisfied by *traccar.Client.
type Backend interface {
	// CreateDevice registers a device and returns the backend record.
	CreateDevice(ctx context.Context, req traccar.DeviceRequest) (*traccar.Device, error)

	// SendPosition reports a position fix.
	SendPosition(ctx context.Context, pos traccar.Position) error
}

// DeviceCache is the interface to the device state cache.
// Satisfied by *device.Cache.
type DeviceCache interface {
	// GetOrCreate returns the record for a device, creating it if unseen.
	GetOrCreate(deviceID string) *device.Record

	// RecordTemperature stores the latest temperature reading. at is the
	// reading's own timestamp; zero means the reading carried none.
	RecordTemperature(deviceID string, celsius float64, at time.Time)

	// RecordTraccarID stores the backend-assigned identifier.
	RecordTraccarID(deviceID string, traccarID int64)

	// Count returns the number of devices seen.
	Count() int
}

// Logger is the interface for optional structured logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Options holds configuration for creating a bridge.
type Options struct {
	// Config is the bridge dispatch configuration (workers, queue size).
	Config config.BridgeConfig

	// QoS is the MQTT quality-of-service level for subscriptions and acks.
	QoS byte

	// MQTT is the MQTT client implementation.
	MQTT MQTTClient

	// Backend is the tracking backend gateway.
	Backend Backend

	// Cache is the device state cache.
	Cache DeviceCache

	// Logger is optional structured logger.
	Logger Logger
}

// New creates a new bridge instance.
// Call Start() to begin operation.
func New(opts Options) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if opts.Cache == nil {
		return nil, fmt.Errorf("device cache is required")
	}

	workers := opts.Config.Workers
	if workers < 1 {
		workers = 4
	}
	queueSize := opts.Config.QueueSize
	if queueSize < 1 {
		queueSize = 64
	}

	// Create bridge-level context so in-flight backend calls are
	// cancelled on shutdown.
	ctx, ctxCancel := context.WithCancel(context.Background())

	return &Bridge{
		qos:       opts.QoS,
		mqtt:      opts.MQTT,
		backend:   opts.Backend,
		cache:     opts.Cache,
		jobs:      make(chan job, queueSize),
		workers:   workers,
		done:      make(chan struct{}),
		ctx:       ctx,
		ctxCancel: ctxCancel,
		logger:    opts.Logger,
		now:       time.Now,
	}, nil
}

// Start begins bridge operation.
// This starts the worker pool and subscribes to the telemetry topics.
func (b *Bridge) Start(ctx context.Context) error {
	// Workers first so subscriptions never fill an undrained queue.
	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go b.worker()
	}

	for _, pattern := range b.topics.SubscriptionPatterns() {
		if err := b.mqtt.Subscribe(pattern, b.qos, b.dispatch); err != nil {
			return fmt.Errorf("subscribe to %s: %w", pattern, err)
		}
		b.logInfo("subscribed to telemetry", "topic", pattern)
	}

	b.logInfo("bridge started",
		"workers", b.workers,
		"queue_size", cap(b.jobs))

	return nil
}

// Stop gracefully shuts down the bridge.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)

		// Cancel bridge context to abort in-flight backend calls
		b.ctxCancel()

		// Wait for workers to drain
		b.wg.Wait()

		b.logInfo("bridge stopped")
	})
}

// dispatch classifies an inbound message and enqueues it for a worker.
//
// Unroutable topics are ignored. When the queue is full the message is
// dropped and counted; telemetry sources resend on their own cadence.
func (b *Bridge) dispatch(topic string, payload []byte) error {
	kind, deviceID, ok := Classify(topic)
	if !ok {
		b.logDebug("ignoring unroutable topic", "topic", topic)
		return nil
	}

	select {
	case b.jobs <- job{kind: kind, deviceID: deviceID, payload: payload}:
	default:
		b.dropped.Add(1)
		b.logWarn("queue full, message dropped",
			"topic", topic,
			"device_id", deviceID,
			"kind", kind.String())
	}
	return nil
}

// worker drains the job queue until shutdown.
func (b *Bridge) worker() {
	defer b.wg.Done()

	for {
		select {
		case <-b.done:
			return
		case j := <-b.jobs:
			b.process(j)
		}
	}
}

// process handles one classified message. Failures are logged and never
// propagate; each message is processed in isolation.
func (b *Bridge) process(j job) {
	b.processed.Add(1)

	switch j.kind {
	case KindRegistration:
		b.processRegistration(j.deviceID, j.payload)
	case KindLocation:
		if err := b.ProcessLocation(b.ctx, j.deviceID, j.payload); err != nil {
			b.logError("location processing failed", err, "device_id", j.deviceID)
		}
	case KindTemperature:
		b.processTemperature(j.deviceID, j.payload)
	}
}

// processRegistration creates a backend device and acknowledges the
// attempt back to the device. Exactly one ack is published per attempt:
// success carries the backend identifier, failure carries the error
// message. Repeated registrations are not de-duplicated; each attempt
// is an independent backend call with its own ack.
func (b *Bridge) processRegistration(deviceID string, payload []byte) {
	corrID := uuid.NewString()

	var reg RegisterPayload
	if err := json.Unmarshal(payload, &reg); err != nil {
		b.logError("failed to parse registration", err,
			"device_id", deviceID,
			"correlation_id", corrID)
		return
	}

	b.logInfo("registering device",
		"device_id", deviceID,
		"correlation_id", corrID)

	dev, err := b.backend.CreateDevice(b.ctx, traccar.DeviceRequest{
		Name:       reg.Name,
		UniqueID:   deviceID,
		Attributes: reg.Attributes,
	})
	if err != nil {
		b.logError("device registration failed", err,
			"device_id", deviceID,
			"correlation_id", corrID)
		b.publishAck(deviceID, AckMessage{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	b.cache.RecordTraccarID(deviceID, dev.ID)
	b.logInfo("device registered",
		"device_id", deviceID,
		"traccar_id", dev.ID,
		"correlation_id", corrID)

	b.publishAck(deviceID, AckMessage{
		Success:         true,
		TraccarDeviceID: dev.ID,
	})
}

// publishAck publishes a registration acknowledgment. Delivery is
// best-effort: a publish failure is logged, never retried.
func (b *Bridge) publishAck(deviceID string, ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err, "device_id", deviceID)
		return
	}

	topic := b.topics.DeviceRegistered(deviceID)
	if err := b.mqtt.Publish(topic, payload, b.qos, false); err != nil {
		b.logError("failed to publish ack", err, "device_id", deviceID)
	}
}

// ProcessLocation validates a position fix and forwards it to the
// backend, attaching any cached temperature reading for the device.
//
// The reading is retained until overwritten, so it repeats on following
// fixes until the sensor reports again. Devices that never registered
// are still forwarded; the backend auto-provisions on first report.
//
// Exported because the HTTP position-injection endpoint shares this
// path with the MQTT worker.
func (b *Bridge) ProcessLocation(ctx context.Context, deviceID string, payload []byte) error {
	var loc LocationPayload
	if err := json.Unmarshal(payload, &loc); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if loc.Latitude == nil || loc.Longitude == nil {
		return fmt.Errorf("%w: latitude and longitude are required", ErrInvalidPayload)
	}

	rec := b.cache.GetOrCreate(deviceID)

	pos := traccar.Position{
		DeviceID:     deviceID,
		Latitude:     *loc.Latitude,
		Longitude:    *loc.Longitude,
		Altitude:     loc.Altitude,
		Speed:        loc.Speed,
		Course:       loc.Course,
		Accuracy:     loc.Accuracy,
		Temperature:  rec.LastTemperature,
		BatteryLevel: loc.BatteryLevel,
	}
	if loc.Timestamp != nil {
		pos.FixTime = time.UnixMilli(*loc.Timestamp)
	} else {
		pos.FixTime = b.now()
	}

	if err := b.backend.SendPosition(ctx, pos); err != nil {
		return fmt.Errorf("forwarding position for %s: %w", deviceID, err)
	}

	b.logDebug("position forwarded",
		"device_id", deviceID,
		"lat", pos.Latitude,
		"lon", pos.Longitude)
	return nil
}

// processTemperature caches an auxiliary reading. No backend call is
// made; the backend's position protocol has no standalone channel for
// this metric, so it rides on the device's next position fix.
func (b *Bridge) processTemperature(deviceID string, payload []byte) {
	var reading TemperaturePayload
	if err := json.Unmarshal(payload, &reading); err != nil {
		b.logError("failed to parse temperature", err, "device_id", deviceID)
		return
	}
	if reading.Temperature == nil {
		b.logError("temperature reading missing value", ErrInvalidPayload,
			"device_id", deviceID)
		return
	}

	var at time.Time
	if reading.Timestamp != nil {
		at = time.UnixMilli(*reading.Timestamp)
	}

	b.cache.RecordTemperature(deviceID, *reading.Temperature, at)
	b.logDebug("temperature cached",
		"device_id", deviceID,
		"celsius", *reading.Temperature)
}

// Metrics contains bridge metrics for the API health and metrics endpoints.
type Metrics struct {
	Connected bool
	Devices   int
	Processed uint64
	Dropped   uint64
}

// GetMetrics returns a snapshot of current bridge metrics.
// Answerable without blocking on outbound calls.
func (b *Bridge) GetMetrics() Metrics {
	return Metrics{
		Connected: b.mqtt.IsConnected(),
		Devices:   b.cache.Count(),
		Processed: b.processed.Load(),
		Dropped:   b.dropped.Load(),
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

// logDebug logs a debug message if logger is set.
func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

// logInfo logs an info message if logger is set.
func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning message if logger is set.
func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (b *Bridge) logError(msg string, err error, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}
