// Package task implements the care-task queue and executor.
//
// The queue coalesces pending requests per target (a newer watering
// request for the same plant replaces an unexecuted older one) and
// hands out the highest-priority ready task per actuator class. The
// executor owns the pump and drivetrain drivers exclusively, routes
// every task through the safety supervisor, and drives actuators in
// short ticks so a latched emergency stop takes effect within one tick
// rather than after a multi-second blocking run.
//
// Outcomes are reported on a channel consumed by the garden brain;
// nothing in this package blocks on a slow consumer.
package task
