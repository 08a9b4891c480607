package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/willowmere/gardener-core/internal/actuator"
	"github.com/willowmere/gardener-core/internal/infrastructure/config"
	"github.com/willowmere/gardener-core/internal/mode"
	"github.com/willowmere/gardener-core/internal/safety"
	"github.com/willowmere/gardener-core/internal/sensor"
)

// Logger defines the logging interface used by the Executor.
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

// Modes exposes the current operating mode for dispatch gating.
type Modes interface {
	Current() mode.Mode
}

// Recorder receives every non-completed task outcome for the audit
// trail.
type Recorder interface {
	RecordTaskOutcome(t Task, outcome Outcome, reason string)
}

// Instruments is the metrics surface the executor feeds.
type Instruments interface {
	IncEnqueued()
	IncOutcome(kind, outcome string)
}

// Executor owns the actuator drivers and runs tasks against them.
//
// One task may be active per actuator class. Every task passes the
// safety supervisor at dispatch time, and actuators are driven in
// EStopTick-sized slices so a latched emergency stop, a passed
// deadline, or a depleted tank aborts a run mid-flight.
type Executor struct {
	cfg      config.SafetyConfig
	tick     time.Duration
	callTO   time.Duration
	flowMLps float64

	queue    *Queue
	sup      *safety.Supervisor
	modes    Modes
	readings safety.Readings

	drivers map[actuator.Class]actuator.Driver

	mu     sync.Mutex
	active map[actuator.Class]*Task
	wg     sync.WaitGroup

	reports chan Report

	logger      Logger
	recorder    Recorder
	instruments Instruments

	now func() time.Time
}

// NewExecutor creates an Executor over the given drivers.
func NewExecutor(cfg *config.Config, sup *safety.Supervisor, modes Modes, readings safety.Readings, pump, drive actuator.Driver) *Executor {
	return &Executor{
		cfg:      cfg.Safety,
		tick:     cfg.EStopTick(),
		callTO:   cfg.ActuatorTimeout(),
		flowMLps: cfg.Actuators.Pump.FlowLPerMin * 1000 / 60,
		queue:    NewQueue(),
		sup:      sup,
		modes:    modes,
		readings: readings,
		drivers: map[actuator.Class]actuator.Driver{
			actuator.ClassPump:  pump,
			actuator.ClassDrive: drive,
		},
		active:  make(map[actuator.Class]*Task),
		reports: make(chan Report, 64),
		logger:  noopLogger{},
		now:     time.Now,
	}
}

// SetLogger sets the logger for the executor.
func (e *Executor) SetLogger(logger Logger) {
	e.logger = logger
}

// SetRecorder attaches the task outcome recorder.
func (e *Executor) SetRecorder(r Recorder) {
	e.recorder = r
}

// SetInstruments attaches metrics instruments.
func (e *Executor) SetInstruments(in Instruments) {
	e.instruments = in
}

// Reports returns the channel terminal task reports are delivered on.
// The channel is buffered; when the consumer falls behind, reports are
// dropped with a log line rather than blocking an actuator.
func (e *Executor) Reports() <-chan Report {
	return e.reports
}

// Submit accepts a task for execution.
//
// Stop and emergency-stop tasks execute immediately. Everything else
// is enqueued, replacing any pending task for the same (kind, target),
// which is reported superseded.
func (e *Executor) Submit(t *Task) error {
	if t == nil {
		return fmt.Errorf("task: nil task")
	}

	switch t.Kind {
	case KindStop:
		e.executeStop(t)
		return nil
	case KindEmergencyStop:
		e.executeEmergencyStop(t)
		return nil
	case KindWater:
		if t.PlantID == "" {
			return fmt.Errorf("task: water task without plant")
		}
	case KindMove:
		if t.Target == "" {
			return fmt.Errorf("task: move task without target")
		}
	default:
		return fmt.Errorf("task: unknown kind %q", t.Kind)
	}
	if t.Duration <= 0 {
		return fmt.Errorf("task: non-positive duration")
	}

	if displaced := e.queue.Push(t); displaced != nil {
		e.finish(displaced, OutcomeSuperseded, "replaced by "+t.ID, 0, 0)
	}
	if e.instruments != nil {
		e.instruments.IncEnqueued()
	}
	e.logger.Debug("task enqueued",
		"task", t.ID, "kind", t.Kind, "target", t.targetLabel(), "priority", t.Priority)
	return nil
}

// Run dispatches queued tasks until ctx is cancelled, then waits for
// in-flight tasks to wind down. In-flight tasks observe the same ctx
// and abort within one tick.
func (e *Executor) Run(ctx context.Context) {
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.wg.Wait()
			return
		case <-ticker.C:
			e.dispatch(ctx)
		}
	}
}

// dispatch starts the best pending task for each idle actuator class.
func (e *Executor) dispatch(ctx context.Context) {
	for _, class := range []actuator.Class{actuator.ClassPump, actuator.ClassDrive} {
		e.mu.Lock()
		busy := e.active[class] != nil
		e.mu.Unlock()
		if busy {
			continue
		}

		next, expired := e.queue.PopReady(class, e.now())
		for _, t := range expired {
			e.finish(t, OutcomeExpired, "deadline passed before execution", 0, 0)
		}
		if next == nil {
			continue
		}

		e.mu.Lock()
		e.active[class] = next
		e.mu.Unlock()

		e.wg.Add(1)
		go func(t *Task, class actuator.Class) {
			defer e.wg.Done()
			defer func() {
				e.mu.Lock()
				delete(e.active, class)
				e.mu.Unlock()
			}()
			e.execute(ctx, t)
		}(next, class)
	}
}

// execute runs a single water or move task end to end.
func (e *Executor) execute(ctx context.Context, t *Task) {
	if reason, ok := e.modeAllows(t.Origin); !ok {
		e.finish(t, OutcomeDenied, reason, 0, 0)
		return
	}

	verdict := e.sup.Evaluate(safetyCommand(t))
	if !verdict.Allowed() {
		e.finish(t, OutcomeDenied, verdict.Reason, 0, 0)
		return
	}

	// A motor-timeout substitution replaces the move with a stop.
	if verdict.Command.Action == safety.ActionStop {
		e.stopDriver(e.drivers[actuator.ClassDrive])
		e.finish(t, OutcomeTruncated, verdict.Reason, 0, 0)
		return
	}

	duration := t.Duration
	truncated := verdict.Decision == safety.DecisionSubstitute
	if truncated {
		duration = verdict.Command.Duration
	}

	driver := e.drivers[t.Class()]
	if err := e.startDriver(driver, t); err != nil {
		e.stopDriver(driver)
		e.finish(t, OutcomeFailed, "actuator start: "+err.Error(), 0, 0)
		return
	}

	if t.Kind == KindMove {
		e.sup.NoteMotorStart()
	}

	actual, abortReason := e.drive(ctx, t, duration)

	stopErr := e.stopDriver(driver)

	switch t.Kind {
	case KindWater:
		e.sup.NotePumpRun(actual)
	case KindMove:
		e.sup.NoteMotorStop()
	}

	volume := 0.0
	if t.Kind == KindWater {
		volume = actual.Seconds() * e.flowMLps
	}

	switch {
	case abortReason != "":
		e.finish(t, OutcomeFailed, abortReason, actual, volume)
	case stopErr != nil:
		e.finish(t, OutcomeFailed, "actuator stop: "+stopErr.Error(), actual, volume)
	case truncated:
		e.finish(t, OutcomeTruncated, verdict.Reason, actual, volume)
	default:
		e.finish(t, OutcomeCompleted, "", actual, volume)
	}
}

// drive holds the actuator active for the given duration, checking
// abort conditions once per tick. Returns the elapsed runtime and a
// non-empty reason if the run was aborted.
func (e *Executor) drive(ctx context.Context, t *Task, duration time.Duration) (time.Duration, string) {
	start := time.Now()
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()
	deadline := time.NewTimer(duration)
	defer deadline.Stop()

	for {
		select {
		case <-deadline.C:
			return time.Since(start), ""
		case <-ctx.Done():
			return time.Since(start), "shutdown"
		case <-ticker.C:
			if e.sup.EStopLatched() {
				return time.Since(start), "emergency stop engaged mid-run"
			}
			if !t.Deadline.IsZero() && e.now().After(t.Deadline) {
				return time.Since(start), "deadline passed mid-run"
			}
			if t.Kind == KindWater {
				level, usable := e.readings.KindValue(sensor.KindWaterLevel)
				if !usable || level < e.cfg.MinWaterLevel {
					return time.Since(start), "water level dropped below minimum mid-run"
				}
			}
		}
	}
}

// executeStop halts both actuators immediately, bypassing the queue.
func (e *Executor) executeStop(t *Task) {
	for _, class := range []actuator.Class{actuator.ClassPump, actuator.ClassDrive} {
		e.stopDriver(e.drivers[class])
	}
	e.sup.NoteMotorStop()
	e.finish(t, OutcomeCompleted, "", 0, 0)
}

// executeEmergencyStop latches the supervisor, flushes the queue, and
// halts both actuators. In-flight tasks observe the latch within one
// tick and abort themselves.
func (e *Executor) executeEmergencyStop(t *Task) {
	e.sup.LatchEStop(t.Reason)
	e.Abort("emergency stop: " + t.Reason)
	e.finish(t, OutcomeCompleted, "", 0, 0)
}

// Abort flushes the pending queue, reporting every task denied, and
// commands both actuators to stop. Active tasks are not waited for;
// they abort on their next tick when the e-stop latch is engaged.
func (e *Executor) Abort(reason string) {
	for _, t := range e.queue.Clear() {
		e.finish(t, OutcomeDenied, reason, 0, 0)
	}
	for _, class := range []actuator.Class{actuator.ClassPump, actuator.ClassDrive} {
		e.stopDriver(e.drivers[class])
	}
}

// Pending returns a snapshot of queued tasks, highest priority first.
func (e *Executor) Pending() []Task {
	return e.queue.Pending()
}

// Active returns the currently executing tasks, if any.
func (e *Executor) Active() []Task {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Task, 0, len(e.active))
	for _, t := range e.active {
		out = append(out, *t)
	}
	return out
}

// startDriver issues the hardware command for a task with the per-call
// timeout applied.
func (e *Executor) startDriver(d actuator.Driver, t *Task) error {
	ctx, cancel := context.WithTimeout(context.Background(), e.callTO)
	defer cancel()

	cmd := actuator.Command{Action: actuator.ActionRun}
	if t.Kind == KindMove {
		cmd = actuator.Command{Action: actuator.ActionMove, Target: t.Target}
	}
	return d.Start(ctx, cmd)
}

// stopDriver halts an actuator with the per-call timeout applied.
// A stop that fails is logged and returned; there is nothing safer to
// fall back to in software.
func (e *Executor) stopDriver(d actuator.Driver) error {
	ctx, cancel := context.WithTimeout(context.Background(), e.callTO)
	defer cancel()

	if err := d.Stop(ctx); err != nil {
		e.logger.Error("actuator stop failed", "actuator", d.ID(), "error", err)
		return err
	}
	return nil
}

// modeAllows gates a task's origin against the current operating mode.
func (e *Executor) modeAllows(o Origin) (reason string, ok bool) {
	current := e.modes.Current()
	want := mode.Autonomous
	switch o {
	case OriginManual:
		want = mode.Manual
	case OriginDiagnostic:
		want = mode.Diagnostic
	}
	if current != want {
		return fmt.Sprintf("%s tasks not accepted in %s mode", o, current), false
	}
	return "", true
}

// finish delivers a terminal report and feeds audit and metrics.
func (e *Executor) finish(t *Task, outcome Outcome, reason string, actual time.Duration, volumeML float64) {
	report := Report{
		Task:       *t,
		Outcome:    outcome,
		Reason:     reason,
		Duration:   actual,
		VolumeML:   volumeML,
		FinishedAt: e.now(),
	}

	if e.instruments != nil {
		e.instruments.IncOutcome(string(t.Kind), string(outcome))
	}
	if outcome != OutcomeCompleted && e.recorder != nil {
		e.recorder.RecordTaskOutcome(*t, outcome, reason)
	}

	switch outcome {
	case OutcomeCompleted:
		e.logger.Info("task completed",
			"task", t.ID, "kind", t.Kind, "target", t.targetLabel(), "runtime", actual)
	default:
		e.logger.Warn("task ended",
			"task", t.ID, "kind", t.Kind, "target", t.targetLabel(),
			"outcome", outcome, "reason", reason)
	}

	select {
	case e.reports <- report:
	default:
		e.logger.Warn("report channel full, dropping report", "task", t.ID, "outcome", outcome)
	}
}

// targetLabel returns the human-facing target of a task for logs.
func (t *Task) targetLabel() string {
	if t.Kind == KindWater {
		return t.PlantID
	}
	return t.Target
}

// safetyCommand maps a task onto the supervisor's command model.
func safetyCommand(t *Task) safety.Command {
	action := safety.ActionWater
	target := t.PlantID
	if t.Kind == KindMove {
		action = safety.ActionMove
		target = t.Target
	}
	return safety.Command{
		Action:   action,
		Target:   target,
		Duration: t.Duration,
		Origin:   string(t.Origin),
	}
}
