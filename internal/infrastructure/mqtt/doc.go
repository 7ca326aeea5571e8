// Package mqtt provides MQTT client connectivity for Trakbridge.
//
// This package manages:
//   - Connection to the broker with automatic reconnection on a fixed period
//   - Message publishing
//   - Topic subscriptions with wildcard support, restored on every reconnect
//   - Connection health monitoring
//
// # Architecture
//
// Trakbridge consumes device telemetry from the broker and republishes
// registration acknowledgments back to device-specific topics:
//
//	GPS trackers / sensors → MQTT Broker → Trakbridge → Traccar (HTTP)
//
// Inbound topic patterns use single-level wildcards for the device segment:
//
//	gps/+/location
//	sensors/+/temperature
//	device/+/register
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllLocations(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
package mqtt
