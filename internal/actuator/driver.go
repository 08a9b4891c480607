package actuator

import "context"

// Class identifies an actuator class. One task may be active per class
// at any time.
type Class string

const (
	// ClassPump is the water pump and solenoid valve.
	ClassPump Class = "pump"

	// ClassDrive is the drivetrain.
	ClassDrive Class = "drive"
)

// Command actions understood by the hardware shim.
const (
	ActionRun  = "run"  // pump: open valve and run
	ActionMove = "move" // drive: head for a station
	ActionStop = "stop" // both: halt immediately
)

// Command is one instruction to an actuator.
type Command struct {
	// Action is one of ActionRun, ActionMove, ActionStop.
	Action string `json:"action"`

	// Target is the destination station for ActionMove.
	Target string `json:"target,omitempty"`

	// Speed is the drive cruise speed, 0.0-1.0. Ignored by the pump.
	Speed float64 `json:"speed,omitempty"`
}

// Driver is an actuator device handle.
//
// Start begins executing a command and returns once the hardware has
// accepted it; it does not wait for the motion or the watering to
// finish. Stop halts the actuator. Both must honour ctx cancellation
// and return ErrTimeout when the hardware does not answer in time.
//
// Drivers are owned exclusively by the task executor; no other
// component may hold one.
type Driver interface {
	ID() string
	Class() Class
	Start(ctx context.Context, cmd Command) error
	Stop(ctx context.Context) error
	Active() bool
}
