package device

import (
	"sync"
	"time"
)

// Record holds the cached state for a single device.
//
// A record is created the first time a device is seen on any topic,
// whether or not the device has registered.
type Record struct {
	// ID is the device identifier extracted from the MQTT topic.
	ID string

	// TraccarID is the backend-assigned identifier, set when the device
	// registers successfully. Nil for devices that have never registered
	// (or whose registration happened before a restart).
	TraccarID *int64

	// LastTemperature is the most recent temperature reading, if any.
	// It is attached to the device's next location update.
	LastTemperature *float64

	// TemperatureAt is when the last temperature reading was taken:
	// the reading's own timestamp, or receipt time when it carried none.
	TemperatureAt time.Time

	// FirstSeen is when the cache first created this record.
	FirstSeen time.Time

	// LastSeen is when the device last produced any message.
	LastSeen time.Time
}

// clone returns a deep copy of the record so callers cannot mutate
// cached state through returned pointers.
func (r *Record) clone() *Record {
	cp := *r
	if r.TraccarID != nil {
		id := *r.TraccarID
		cp.TraccarID = &id
	}
	if r.LastTemperature != nil {
		temp := *r.LastTemperature
		cp.LastTemperature = &temp
	}
	return &cp
}

// Cache is the in-memory device state store.
//
// Thread Safety: all methods are safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	devices map[string]*Record

	// now is injectable for tests.
	now func() time.Time
}

// NewCache creates an empty device cache.
func NewCache() *Cache {
	return &Cache{
		devices: make(map[string]*Record),
		now:     time.Now,
	}
}

// GetOrCreate returns the record for deviceID, creating one if the
// device has not been seen before. LastSeen is refreshed either way.
// The returned record is a copy.
func (c *Cache) GetOrCreate(deviceID string) *Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec := c.getOrCreateLocked(deviceID)
	return rec.clone()
}

// getOrCreateLocked returns the live record, creating it if needed.
// Caller must hold the write lock.
func (c *Cache) getOrCreateLocked(deviceID string) *Record {
	now := c.now()
	rec, ok := c.devices[deviceID]
	if !ok {
		rec = &Record{
			ID:        deviceID,
			FirstSeen: now,
		}
		c.devices[deviceID] = rec
	}
	rec.LastSeen = now
	return rec
}

// RecordTemperature stores a temperature reading for a device.
//
// Only the most recent reading is kept: a new reading overwrites any
// previous one that has not yet been attached to a location update.
// at is when the sensor took the reading; a zero time falls back to
// the current time.
func (c *Cache) RecordTemperature(deviceID string, celsius float64, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec := c.getOrCreateLocked(deviceID)
	rec.LastTemperature = &celsius
	if at.IsZero() {
		at = c.now()
	}
	rec.TemperatureAt = at
}

// RecordTraccarID stores the backend-assigned identifier for a device.
// Repeated registrations simply overwrite the stored identifier.
func (c *Cache) RecordTraccarID(deviceID string, traccarID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec := c.getOrCreateLocked(deviceID)
	rec.TraccarID = &traccarID
}

// Get returns a copy of the record for deviceID, or nil if the device
// has never been seen.
func (c *Cache) Get(deviceID string) *Record {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, ok := c.devices[deviceID]
	if !ok {
		return nil
	}
	return rec.clone()
}

// Count returns the number of devices the cache has seen.
func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.devices)
}

// Snapshot returns copies of all cached records.
//
// Intended for the HTTP inspection endpoints; order is unspecified.
func (c *Cache) Snapshot() []*Record {
	c.mu.RLock()
	defer c.mu.RUnlock()

	records := make([]*Record, 0, len(c.devices))
	for _, rec := range c.devices {
		records = append(records, rec.clone())
	}
	return records
}
