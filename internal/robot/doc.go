// Package robot is the control core's composition root at runtime: it
// owns the periodic loops (sensor poll, decision cycle, executor
// dispatch, notification and audit drains) and exposes the operator
// operations: status snapshot, manual commands, emergency stop and
// reset, and the diagnostic self-check that gates Autonomous mode.
package robot
