// Package actuator defines the driver interface for the rover's two
// actuator classes (water pump, drivetrain) and its implementations.
//
// The MQTT driver bridges commands to the hardware shim that owns the
// pins; the sim driver is an in-memory stand-in for diagnostics and
// tests. Drivers are dumb: they start and stop. Durations, safety caps,
// and emergency-stop polling live in the task executor, which is the
// sole owner of every driver.
package actuator
