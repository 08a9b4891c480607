package actuator

import "errors"

// Sentinel errors for actuator operations.
var (
	// ErrTimeout indicates a driver call did not complete within its
	// deadline. The executor converts this into a forced stop.
	ErrTimeout = errors.New("actuator: timeout")

	// ErrAlreadyActive indicates Start was called while the actuator is
	// running. The single-active-task-per-class invariant makes this a
	// programming error, not an operational condition.
	ErrAlreadyActive = errors.New("actuator: already active")

	// ErrNotConfirmed indicates the hardware shim did not confirm a
	// command.
	ErrNotConfirmed = errors.New("actuator: command not confirmed")
)
