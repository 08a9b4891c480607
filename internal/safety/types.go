package safety

import "time"

// Action classifies a proposed command for rule evaluation.
type Action string

const (
	// ActionWater runs the pump for a bounded duration.
	ActionWater Action = "water"

	// ActionMove drives the rover to a station.
	ActionMove Action = "move"

	// ActionStop halts actuators. Stop is the one command allowed under
	// a low or unknown battery.
	ActionStop Action = "stop"

	// ActionReset clears the emergency-stop latch. It is the only
	// command evaluated while the latch is engaged.
	ActionReset Action = "reset"
)

// Command is a proposed actuator command as seen by the supervisor.
type Command struct {
	// Action is the command class.
	Action Action `json:"action"`

	// Target is the plant or station the command addresses.
	Target string `json:"target,omitempty"`

	// Duration is the requested actuator runtime. Only meaningful for
	// ActionWater and ActionMove.
	Duration time.Duration `json:"duration,omitempty"`

	// Origin names the component that proposed the command
	// (brain, manual, diagnostic).
	Origin string `json:"origin,omitempty"`
}

// UsesMotor reports whether the command drives the pump or drivetrain.
func (c Command) UsesMotor() bool {
	return c.Action == ActionWater || c.Action == ActionMove
}

// Decision is the supervisor's ruling on a command.
type Decision string

const (
	// DecisionAllow passes the command through unchanged.
	DecisionAllow Decision = "allow"

	// DecisionDeny rejects the command outright.
	DecisionDeny Decision = "deny"

	// DecisionSubstitute replaces the command with a safer one
	// (a truncated watering or a forced stop).
	DecisionSubstitute Decision = "substitute"
)

// Rule names identify which interlock produced a verdict, for audit and
// metrics.
const (
	RuleEStopLatched = "estop_latched"
	RuleBattery      = "battery"
	RuleWaterLevel   = "water_level"
	RulePumpRuntime  = "pump_runtime"
	RuleMotorTimeout = "motor_timeout"
	RuleNone         = "none"
)

// Verdict is the outcome of one evaluation.
type Verdict struct {
	Decision Decision `json:"decision"`

	// Rule is the interlock that fired, or RuleNone for Allow.
	Rule string `json:"rule"`

	// Reason is a human-readable explanation for Deny and Substitute.
	Reason string `json:"reason,omitempty"`

	// Command is the command to execute: the original on Allow, the
	// replacement on Substitute, zero value on Deny.
	Command Command `json:"command"`
}

// Allowed reports whether the command (possibly substituted) may
// execute.
func (v Verdict) Allowed() bool {
	return v.Decision == DecisionAllow || v.Decision == DecisionSubstitute
}

// InterlockState is the per-interlock condition snapshot. Owned and
// mutated exclusively by the Supervisor; everyone else receives copies.
type InterlockState struct {
	BatteryLow   bool `json:"battery_low"`
	WaterLow     bool `json:"water_low"`
	MotorTimeout bool `json:"motor_timeout"`
	SensorStale  bool `json:"sensor_stale"`

	// EStopLatched is sticky: set by LatchEStop, cleared only by
	// ResetEStop.
	EStopLatched bool `json:"emergency_stop_latched"`

	// EvaluatedAt is when the interlocks were last refreshed.
	EvaluatedAt time.Time `json:"evaluated_at"`
}
