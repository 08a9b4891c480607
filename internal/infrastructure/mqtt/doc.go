// Package mqtt provides MQTT client connectivity for Gardener Core.
//
// This package manages:
//   - Connection to Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Gardener uses MQTT as the message bus between the decision core and the
// sensor/actuator firmware shims on the rover. The broker (Mosquitto)
// decouples the core from hardware-specific implementations.
//
//	Gardener Core ↔ MQTT Broker ↔ Sensor/Actuator Shims
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker, bounded retry with backoff
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff up to reconnect.max_delay
//   - Message throughput: Broker-limited (typically 10K+ msg/sec)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all sensor readings
//	err = client.Subscribe(mqtt.Topics{}.AllSensorStates(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish actuator command
//	topic := mqtt.Topics{}.ActuatorSet("pump-main")
//	client.Publish(topic, []byte(`{"command":"start_pump","duration_s":12}`), 1, false)
package mqtt
