package audit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/willowmere/gardener-core/internal/mode"
	"github.com/willowmere/gardener-core/internal/safety"
	"github.com/willowmere/gardener-core/internal/task"
)

// Logger defines the logging interface used by the Trail.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// writeTimeout bounds one background insert.
const writeTimeout = 5 * time.Second

// Trail is the write-side adapter between the control loops and the
// audit repository.
//
// The safety supervisor and mode machine call their recorder hooks
// from inside control paths (some under locks), so every Record* here
// is non-blocking: the event goes onto a buffered channel and a
// background writer persists it. Overflow drops the entry with a
// counter rather than stalling a control loop.
type Trail struct {
	repo    Repository
	events  chan Event
	dropped atomic.Uint64
	logger  Logger
}

// NewTrail creates a Trail over the given repository.
func NewTrail(repo Repository) *Trail {
	return &Trail{
		repo:   repo,
		events: make(chan Event, 256),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the trail.
func (t *Trail) SetLogger(logger Logger) {
	t.logger = logger
}

// Dropped returns how many events overflowed the write buffer.
func (t *Trail) Dropped() uint64 {
	return t.dropped.Load()
}

// Run persists queued events until ctx is cancelled, then drains what
// is already buffered.
func (t *Trail) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			t.drain()
			return
		case e := <-t.events:
			t.persist(e)
		}
	}
}

// drain writes everything still buffered at shutdown.
func (t *Trail) drain() {
	for {
		select {
		case e := <-t.events:
			t.persist(e)
		default:
			return
		}
	}
}

func (t *Trail) persist(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := t.repo.Record(ctx, &e); err != nil {
		t.logger.Error("persisting audit event failed",
			"category", e.Category, "action", e.Action, "error", err)
	}
}

// record enqueues an event without blocking.
func (t *Trail) record(e Event) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	select {
	case t.events <- e:
	default:
		t.dropped.Add(1)
	}
}

// RecordSafetyEvent records a supervisor verdict or latch change.
// Satisfies the safety supervisor's Recorder interface.
func (t *Trail) RecordSafetyEvent(decision, rule, target, reason string) {
	severity := SeverityWarning
	if rule == safety.RuleEStopLatched || decision == "latch" {
		severity = SeverityCritical
	}
	t.record(Event{
		Category: CategorySafety,
		Action:   decision,
		Target:   target,
		Severity: severity,
		Detail:   fmt.Sprintf("%s: %s", rule, reason),
	})
}

// RecordTaskOutcome records a non-completed task outcome.
// Satisfies the task executor's Recorder interface.
func (t *Trail) RecordTaskOutcome(tk task.Task, outcome task.Outcome, reason string) {
	severity := SeverityInfo
	if outcome == task.OutcomeFailed || outcome == task.OutcomeDenied {
		severity = SeverityWarning
	}
	target := tk.PlantID
	if target == "" {
		target = tk.Target
	}
	t.record(Event{
		Category: CategoryTask,
		Action:   string(outcome),
		Target:   target,
		Severity: severity,
		Detail:   fmt.Sprintf("%s %s: %s", tk.Kind, tk.ID, reason),
	})
}

// RecordCareEvent records a brain care decision (care failure,
// adaptation change). Satisfies the brain's Recorder interface.
func (t *Trail) RecordCareEvent(plantID, action, detail string) {
	severity := SeverityInfo
	if action == "care_failed" {
		severity = SeverityCritical
	}
	t.record(Event{
		Category: CategoryCare,
		Action:   action,
		Target:   plantID,
		Severity: severity,
		Detail:   detail,
	})
}

// ModeObserver returns a mode machine observer that records every
// transition.
func (t *Trail) ModeObserver() func(from, to mode.Mode, reason string) {
	return func(from, to mode.Mode, reason string) {
		severity := SeverityInfo
		if to == mode.EmergencyStop {
			severity = SeverityCritical
		}
		t.record(Event{
			Category: CategoryMode,
			Action:   fmt.Sprintf("%s->%s", from, to),
			Severity: severity,
			Detail:   reason,
		})
	}
}
