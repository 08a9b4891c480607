// Package notify fans operator-facing events out to the structured
// log, the MQTT event topic, and any registered sinks (the WebSocket
// hub). Delivery is fire-and-forget: Publish never blocks a control
// loop, and events are dropped with a counter when the fan-out falls
// behind.
package notify
