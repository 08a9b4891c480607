package mqtt

import "fmt"

// Topic prefixes for the Gardener MQTT hierarchy.
//
// Sensor and actuator topics follow the scheme gardener/{kind}/{id}/{action},
// matching what the firmware shims on the rover publish and subscribe to.
const (
	// TopicPrefix is the base for all Gardener topics.
	TopicPrefix = "gardener"

	// TopicPrefixSensor is the base for sensor reading topics.
	TopicPrefixSensor = "gardener/sensor"

	// TopicPrefixActuator is the base for actuator command and state topics.
	TopicPrefixActuator = "gardener/actuator"

	// TopicPrefixEvent is the base for notification event topics.
	TopicPrefixEvent = "gardener/event"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "gardener/system"
)

// Topics provides builders for Gardener MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.SensorState("moisture-bed-1")
//	// Returns: "gardener/sensor/moisture-bed-1/state"
type Topics struct{}

// =============================================================================
// Sensor Topics
// =============================================================================

// SensorState returns the topic a sensor shim publishes readings on.
//
// Example: gardener/sensor/moisture-bed-1/state
func (Topics) SensorState(sensorID string) string {
	return fmt.Sprintf("%s/%s/state", TopicPrefixSensor, sensorID)
}

// =============================================================================
// Actuator Topics
// =============================================================================

// ActuatorSet returns the topic the core publishes actuator commands on.
//
// Example: gardener/actuator/pump-main/set
func (Topics) ActuatorSet(actuatorID string) string {
	return fmt.Sprintf("%s/%s/set", TopicPrefixActuator, actuatorID)
}

// ActuatorState returns the topic an actuator shim publishes confirmations on.
//
// Example: gardener/actuator/pump-main/state
func (Topics) ActuatorState(actuatorID string) string {
	return fmt.Sprintf("%s/%s/state", TopicPrefixActuator, actuatorID)
}

// =============================================================================
// Event Topics
// =============================================================================

// Event returns the topic for notification events of a given type.
//
// Example: gardener/event/plant_critical
func (Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixEvent, eventType)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the system status topic (online/offline, LWT).
//
// Example: gardener/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// SystemMode returns the topic the current operating mode is published on.
//
// Example: gardener/system/mode
func (Topics) SystemMode() string {
	return fmt.Sprintf("%s/mode", TopicPrefixSystem)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllSensorStates returns a pattern matching readings from every sensor.
//
// Pattern: gardener/sensor/+/state
func (Topics) AllSensorStates() string {
	return fmt.Sprintf("%s/+/state", TopicPrefixSensor)
}

// AllActuatorSets returns a pattern matching commands to every actuator.
//
// Pattern: gardener/actuator/+/set
func (Topics) AllActuatorSets() string {
	return fmt.Sprintf("%s/+/set", TopicPrefixActuator)
}

// AllActuatorStates returns a pattern matching confirmations from every actuator.
//
// Pattern: gardener/actuator/+/state
func (Topics) AllActuatorStates() string {
	return fmt.Sprintf("%s/+/state", TopicPrefixActuator)
}

// AllEvents returns a pattern matching all notification events.
//
// Pattern: gardener/event/+
func (Topics) AllEvents() string {
	return fmt.Sprintf("%s/+", TopicPrefixEvent)
}

// AllTopics returns a pattern matching all Gardener topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: gardener/#
func (Topics) AllTopics() string {
	return "gardener/#"
}
