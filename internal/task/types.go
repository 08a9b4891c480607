package task

import (
	"time"

	"github.com/google/uuid"

	"github.com/willowmere/gardener-core/internal/actuator"
)

// Kind is the type of care task.
type Kind string

const (
	// KindWater runs the pump for one plant.
	KindWater Kind = "water"

	// KindMove drives the rover to a station.
	KindMove Kind = "move"

	// KindStop halts both actuators immediately.
	KindStop Kind = "stop"

	// KindEmergencyStop latches the supervisor e-stop and flushes the
	// queue. Executes immediately, never queued.
	KindEmergencyStop Kind = "emergency_stop"
)

// Origin names the component that created a task. The executor gates
// dispatch on origin versus the current operating mode.
type Origin string

const (
	OriginBrain      Origin = "brain"
	OriginManual     Origin = "manual"
	OriginDiagnostic Origin = "diagnostic"
)

// Outcome is the terminal result of a task.
type Outcome string

const (
	// OutcomeCompleted means the full requested duration ran.
	OutcomeCompleted Outcome = "completed"

	// OutcomeTruncated means a safety substitution shortened the run.
	OutcomeTruncated Outcome = "truncated"

	// OutcomeDenied means the safety supervisor or mode gate rejected
	// the task before any actuator moved.
	OutcomeDenied Outcome = "denied"

	// OutcomeFailed means execution started but aborted (actuator
	// timeout, mid-run e-stop, water depleted).
	OutcomeFailed Outcome = "failed"

	// OutcomeExpired means the deadline passed before execution.
	OutcomeExpired Outcome = "expired"

	// OutcomeSuperseded means a newer task for the same target replaced
	// this one while it waited.
	OutcomeSuperseded Outcome = "superseded"
)

// Task is one unit of intended action. Immutable once enqueued.
type Task struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`

	// PlantID is the watering target for KindWater.
	PlantID string `json:"plant_id,omitempty"`

	// Target is the destination station for KindMove.
	Target string `json:"target,omitempty"`

	// VolumeML is the requested water volume for KindWater.
	VolumeML float64 `json:"volume_ml,omitempty"`

	// Duration is the requested actuator runtime.
	Duration time.Duration `json:"duration,omitempty"`

	// Priority orders the queue; higher executes first.
	Priority int `json:"priority"`

	Origin    Origin    `json:"origin"`
	CreatedAt time.Time `json:"created_at"`

	// Deadline drops the task as expired when it has not started by
	// this time. Zero means no deadline.
	Deadline time.Time `json:"deadline,omitzero"`

	// Reason is free text carried into audit records (e.g. "moisture
	// 22% below low threshold 40%").
	Reason string `json:"reason,omitempty"`

	// MoistureBefore is the plant's moisture reading when the task was
	// created, carried into the care record. Nil when no fresh reading
	// backed the task.
	MoistureBefore *float64 `json:"moisture_before,omitempty"`
}

// newID generates a task identifier.
func newID() string {
	return "task-" + uuid.NewString()[:8]
}

// NewWater creates a watering task for a plant.
func NewWater(plantID string, volumeML float64, duration time.Duration, priority int, origin Origin) *Task {
	return &Task{
		ID:        newID(),
		Kind:      KindWater,
		PlantID:   plantID,
		VolumeML:  volumeML,
		Duration:  duration,
		Priority:  priority,
		Origin:    origin,
		CreatedAt: time.Now(),
	}
}

// NewMove creates a movement task to a station.
func NewMove(target string, duration time.Duration, priority int, origin Origin) *Task {
	return &Task{
		ID:        newID(),
		Kind:      KindMove,
		Target:    target,
		Duration:  duration,
		Priority:  priority,
		Origin:    origin,
		CreatedAt: time.Now(),
	}
}

// NewStop creates an immediate stop task.
func NewStop(origin Origin) *Task {
	return &Task{
		ID:        newID(),
		Kind:      KindStop,
		Priority:  1000,
		Origin:    origin,
		CreatedAt: time.Now(),
	}
}

// Class returns the actuator class the task occupies.
func (t *Task) Class() actuator.Class {
	if t.Kind == KindWater {
		return actuator.ClassPump
	}
	return actuator.ClassDrive
}

// CoalesceKey identifies the slot a task occupies in the queue: one
// pending task per (kind, target) pair.
func (t *Task) CoalesceKey() string {
	switch t.Kind {
	case KindWater:
		return string(t.Kind) + "/" + t.PlantID
	case KindMove:
		return string(t.Kind) + "/" + t.Target
	default:
		return string(t.Kind)
	}
}

// Expired reports whether the deadline has passed.
func (t *Task) Expired(now time.Time) bool {
	return !t.Deadline.IsZero() && now.After(t.Deadline)
}

// Report is the terminal outcome of one task, delivered to the brain.
type Report struct {
	Task    Task    `json:"task"`
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason,omitempty"`

	// Duration is the actual actuator runtime.
	Duration time.Duration `json:"duration,omitempty"`

	// VolumeML is the actual water volume delivered.
	VolumeML float64 `json:"volume_ml,omitempty"`

	FinishedAt time.Time `json:"finished_at"`
}
