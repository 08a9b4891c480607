package brain

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/willowmere/gardener-core/internal/garden"
	"github.com/willowmere/gardener-core/internal/infrastructure/config"
	"github.com/willowmere/gardener-core/internal/mode"
	"github.com/willowmere/gardener-core/internal/notify"
	"github.com/willowmere/gardener-core/internal/plant"
	"github.com/willowmere/gardener-core/internal/sensor"
	"github.com/willowmere/gardener-core/internal/task"
)

// Logger defines the logging interface used by the Brain.
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

// Submitter is the slice of the task executor the brain drives.
type Submitter interface {
	Submit(t *task.Task) error
	Pending() []task.Task
	Active() []task.Task
}

// Moisture is the slice of the sensor aggregator the brain reads.
type Moisture interface {
	MoistureForPlant(plantID string) (sensor.Reading, bool, bool)
}

// Modes exposes the current operating mode.
type Modes interface {
	Current() mode.Mode
}

// Events receives operator-facing notifications.
type Events interface {
	Publish(e notify.Event)
}

// Recorder receives care decisions worth auditing (care failures,
// adaptation changes).
type Recorder interface {
	RecordCareEvent(plantID, action, detail string)
}

// Instruments is the metrics surface the brain feeds.
type Instruments interface {
	IncCycle()
	ObserveCycle(seconds float64)
	SetPlantsByState(state string, count float64)
}

// patrolLegDuration is the travel allowance for one station-to-station
// move. Bounded well under the drivetrain motor timeout.
const patrolLegDuration = 15 * time.Second

// observation is a scheduled adaptation sample: after a completed
// watering, the moisture response is read once the window elapses.
type observation struct {
	plantID  string
	baseline float64
	dueAt    time.Time
}

// Brain is the decision engine.
type Brain struct {
	cfg config.BrainConfig

	decisionEvery time.Duration
	patrolEvery   time.Duration
	taskTTL       time.Duration
	maxWatering   time.Duration
	flowMLps      float64
	summaryHour   int
	observeWindow time.Duration

	plants   *plant.Registry
	moisture Moisture
	modes    Modes
	submit   Submitter
	layout   *garden.Layout
	history  plant.CareHistory
	strategy Strategy

	events      Events
	recorder    Recorder
	logger      Logger
	instruments Instruments

	mu           sync.Mutex
	lastPatrol   time.Time
	lastSummary  time.Time
	wateredToday int
	volumeToday  float64
	observations []observation

	now func() time.Time
}

// New creates a Brain. The adaptation strategy is installed when
// enabled in configuration; SetStrategy can override it.
func New(cfg *config.Config, plants *plant.Registry, moisture Moisture, modes Modes, submit Submitter, layout *garden.Layout, history plant.CareHistory) *Brain {
	b := &Brain{
		cfg:           cfg.Brain,
		decisionEvery: cfg.DecisionInterval(),
		patrolEvery:   cfg.PatrolInterval(),
		taskTTL:       time.Duration(cfg.Brain.TaskTTL) * time.Second,
		maxWatering:   time.Duration(cfg.Safety.MaxWateringTime) * time.Second,
		flowMLps:      cfg.Actuators.Pump.FlowLPerMin * 1000 / 60,
		summaryHour:   cfg.Robot.DailySummaryHour,
		observeWindow: time.Duration(cfg.Brain.Adaptation.ObservationWindow) * time.Second,
		plants:        plants,
		moisture:      moisture,
		modes:         modes,
		submit:        submit,
		layout:        layout,
		history:       history,
		logger:        noopLogger{},
		now:           time.Now,
	}
	if cfg.Brain.Adaptation.Enabled {
		b.strategy = NewMultiplicativeStrategy(cfg.Brain.Adaptation)
	}
	return b
}

// SetLogger sets the logger for the brain.
func (b *Brain) SetLogger(logger Logger) {
	b.logger = logger
}

// SetEvents attaches the notification fan-out.
func (b *Brain) SetEvents(e Events) {
	b.events = e
}

// SetRecorder attaches the audit recorder.
func (b *Brain) SetRecorder(r Recorder) {
	b.recorder = r
}

// SetInstruments attaches metrics instruments.
func (b *Brain) SetInstruments(in Instruments) {
	b.instruments = in
}

// SetStrategy replaces the adaptation strategy. Nil disables
// adaptation.
func (b *Brain) SetStrategy(s Strategy) {
	b.strategy = s
}

// Run executes decision cycles and consumes task reports until ctx is
// cancelled.
func (b *Brain) Run(ctx context.Context, reports <-chan task.Report) {
	ticker := time.NewTicker(b.decisionEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.RunCycle(ctx)
		case r := <-reports:
			b.HandleReport(ctx, r)
		}
	}
}

// RunCycle executes one decision cycle.
//
// Outside Autonomous mode the cycle only refreshes plant gauges; no
// tasks are emitted.
func (b *Brain) RunCycle(ctx context.Context) {
	start := b.now()
	defer func() {
		if b.instruments != nil {
			b.instruments.IncCycle()
			b.instruments.ObserveCycle(b.now().Sub(start).Seconds())
		}
	}()

	b.updatePlantGauges()

	if b.modes.Current() != mode.Autonomous {
		return
	}

	b.sampleObservations()

	candidates := b.planWatering()
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Priority > candidates[j].Priority
	})
	for _, t := range candidates {
		if err := b.submit.Submit(t); err != nil {
			b.logger.Error("submitting care task failed", "plant", t.PlantID, "error", err)
			continue
		}
		if err := b.plants.SetState(t.PlantID, plant.StateWatering); err != nil {
			b.logger.Error("marking plant watering failed", "plant", t.PlantID, "error", err)
		}
	}

	if len(candidates) == 0 {
		b.maybePatrol()
	}
	b.maybeDailySummary()
}

// planWatering evaluates every plant and returns the watering tasks
// this cycle calls for, unsorted.
func (b *Brain) planWatering() []*task.Task {
	now := b.now()
	var out []*task.Task

	for _, p := range b.plants.List() {
		if p.State == plant.StateCareFailed || p.State == plant.StateWatering {
			continue
		}

		reading, fresh, ok := b.moisture.MoistureForPlant(p.ID)
		if !ok {
			continue
		}
		if !fresh {
			// A stale reading must not drive a transition; surface the
			// deferral and move on.
			b.publish(notify.Event{
				Type:     notify.TypeStaleDeferral,
				Severity: notify.SeverityWarning,
				Target:   p.ID,
				Message:  fmt.Sprintf("moisture reading for %s is stale, care deferred", p.ID),
			})
			continue
		}

		moisture := reading.Value
		state := b.classify(&p, moisture, now)
		if state != p.State {
			if err := b.plants.SetState(p.ID, state); err != nil {
				b.logger.Error("care state transition failed", "plant", p.ID, "error", err)
				continue
			}
			b.logger.Info("care state changed",
				"plant", p.ID, "from", p.State, "to", state, "moisture", moisture)
			if state == plant.StateCritical {
				b.publish(notify.Event{
					Type:     notify.TypePlantCritical,
					Severity: notify.SeverityCritical,
					Target:   p.ID,
					Message:  fmt.Sprintf("%s moisture %.1f%% below critical %.1f%%", p.ID, moisture, p.Moisture.Critical),
				})
			}
		}
		if state == plant.StateHealthy {
			continue
		}

		out = append(out, b.wateringTask(&p, state, moisture, now))
	}
	return out
}

// classify derives the care state from a fresh moisture value and the
// schedule.
func (b *Brain) classify(p *plant.Plant, moisture float64, now time.Time) plant.CareState {
	switch {
	case moisture < p.Moisture.Critical:
		return plant.StateCritical
	case moisture < p.EffectiveLow() || p.Overdue(now):
		return plant.StateNeedsWater
	default:
		return plant.StateHealthy
	}
}

// wateringTask builds the water task for a plant below threshold or
// overdue.
//
// Watering seconds scale with the moisture deficit,
// base_watering x (low - moisture)/low, clamped to [2s, max watering];
// volume follows from the calibrated pump flow. Priority is the deficit
// percentage plus an overdue bump and a critical bonus.
func (b *Brain) wateringTask(p *plant.Plant, state plant.CareState, moisture float64, now time.Time) *task.Task {
	low := p.EffectiveLow()

	deficit := 0.0
	if low > 0 && moisture < low {
		deficit = (low - moisture) / low
	}

	seconds := float64(b.cfg.BaseWateringTime) * deficit
	if min := 2.0; seconds < min {
		seconds = min
	}
	if max := b.maxWatering.Seconds(); seconds > max {
		seconds = max
	}

	priority := int(deficit * 100)
	reason := fmt.Sprintf("moisture %.1f%% below low %.1f%%", moisture, low)
	if p.Overdue(now) {
		priority += 20
		if deficit == 0 {
			reason = fmt.Sprintf("watering overdue for %s schedule", p.Schedule)
		}
	}
	if state == plant.StateCritical {
		priority += 50
	}

	t := task.NewWater(p.ID, seconds*b.flowMLps, time.Duration(seconds*float64(time.Second)), priority, task.OriginBrain)
	t.Deadline = now.Add(b.taskTTL)
	t.Reason = reason
	t.MoistureBefore = &moisture
	return t
}

// maybePatrol emits a low-priority patrol round when the executor is
// idle and the patrol interval has elapsed.
func (b *Brain) maybePatrol() {
	now := b.now()

	b.mu.Lock()
	due := b.lastPatrol.IsZero() || now.Sub(b.lastPatrol) >= b.patrolEvery
	b.mu.Unlock()
	if !due {
		return
	}
	if len(b.submit.Pending()) > 0 || len(b.submit.Active()) > 0 {
		return
	}

	route := b.layout.PatrolRoute()
	for _, stationID := range route {
		t := task.NewMove(stationID, patrolLegDuration, 1, task.OriginBrain)
		t.Deadline = now.Add(b.taskTTL)
		t.Reason = "patrol round"
		if err := b.submit.Submit(t); err != nil {
			b.logger.Error("submitting patrol task failed", "station", stationID, "error", err)
		}
	}

	b.mu.Lock()
	b.lastPatrol = now
	b.mu.Unlock()
	b.logger.Info("patrol round dispatched", "stations", len(route))
}

// maybeDailySummary emits the once-a-day care summary at the
// configured hour.
func (b *Brain) maybeDailySummary() {
	now := b.now()
	if now.Hour() != b.summaryHour {
		return
	}

	b.mu.Lock()
	if !b.lastSummary.IsZero() && sameDay(b.lastSummary, now) {
		b.mu.Unlock()
		return
	}
	watered := b.wateredToday
	volume := b.volumeToday
	b.wateredToday = 0
	b.volumeToday = 0
	b.lastSummary = now
	b.mu.Unlock()

	counts := b.plants.CountByState()
	b.publish(notify.Event{
		Type:    notify.TypeDailySummary,
		Message: fmt.Sprintf("watered %d plants (%.0fml), %d critical, %d care-failed", watered, volume, counts[plant.StateCritical], counts[plant.StateCareFailed]),
		Fields: map[string]any{
			"watered":     watered,
			"volume_ml":   volume,
			"critical":    counts[plant.StateCritical],
			"care_failed": counts[plant.StateCareFailed],
		},
	})
}

// HandleReport applies a task outcome to the plant population.
func (b *Brain) HandleReport(ctx context.Context, r task.Report) {
	if r.Task.Kind != task.KindWater || r.Task.Origin != task.OriginBrain {
		if r.Outcome != task.OutcomeCompleted {
			b.logger.Debug("non-care task ended",
				"task", r.Task.ID, "kind", r.Task.Kind, "outcome", r.Outcome, "reason", r.Reason)
		}
		return
	}

	id := r.Task.PlantID
	switch r.Outcome {
	case task.OutcomeCompleted:
		b.applyCompleted(ctx, id, r)

	case task.OutcomeTruncated:
		// Water was delivered, just less than asked; record it but keep
		// the plant in line for the next cycle. Not a failure.
		if err := b.plants.RecordWatering(id, r.VolumeML, r.FinishedAt); err != nil {
			b.logger.Error("recording truncated watering failed", "plant", id, "error", err)
		}
		b.setState(id, plant.StateNeedsWater)
		b.recordCare(ctx, r)
		b.countWatering(r.VolumeML)

	case task.OutcomeFailed:
		b.applyFailed(ctx, id, r)

	case task.OutcomeDenied, task.OutcomeExpired:
		b.setState(id, plant.StateNeedsWater)

	case task.OutcomeSuperseded:
		// The replacement task owns the plant's slot now.
	}
}

// applyCompleted handles a fully delivered watering.
func (b *Brain) applyCompleted(ctx context.Context, id string, r task.Report) {
	if err := b.plants.RecordWatering(id, r.VolumeML, r.FinishedAt); err != nil {
		b.logger.Error("recording watering failed", "plant", id, "error", err)
		return
	}
	b.setState(id, plant.StateHealthy)
	b.recordCare(ctx, r)
	b.countWatering(r.VolumeML)

	b.publish(notify.Event{
		Type:    notify.TypeWatering,
		Target:  id,
		Message: fmt.Sprintf("watered %s for %s (%.0fml)", id, r.Duration.Round(time.Second), r.VolumeML),
	})

	if b.strategy != nil && b.observeWindow > 0 {
		if reading, fresh, ok := b.moisture.MoistureForPlant(id); ok && fresh {
			b.mu.Lock()
			b.observations = append(b.observations, observation{
				plantID:  id,
				baseline: reading.Value,
				dueAt:    b.now().Add(b.observeWindow),
			})
			b.mu.Unlock()
		}
	}
}

// applyFailed handles a failed watering, escalating to CareFailed when
// the retry budget is exhausted.
func (b *Brain) applyFailed(ctx context.Context, id string, r task.Report) {
	count, err := b.plants.RecordFailure(id)
	if err != nil {
		b.logger.Error("recording care failure failed", "plant", id, "error", err)
		return
	}
	b.recordCare(ctx, r)

	if count >= b.cfg.MaxRetries {
		b.setState(id, plant.StateCareFailed)
		b.logger.Error("plant care failed", "plant", id, "failures", count, "reason", r.Reason)
		b.publish(notify.Event{
			Type:     notify.TypeCareFailed,
			Severity: notify.SeverityCritical,
			Target:   id,
			Message:  fmt.Sprintf("%s marked care-failed after %d failed waterings", id, count),
		})
		if b.recorder != nil {
			b.recorder.RecordCareEvent(id, "care_failed", fmt.Sprintf("%d consecutive failures, last: %s", count, r.Reason))
		}
		return
	}

	b.setState(id, plant.StateNeedsWater)
	b.logger.Warn("watering failed, will retry",
		"plant", id, "failures", count, "budget", b.cfg.MaxRetries, "reason", r.Reason)
}

// sampleObservations evaluates due adaptation observations against the
// current moisture and adjusts thresholds through the strategy.
func (b *Brain) sampleObservations() {
	if b.strategy == nil {
		return
	}
	now := b.now()

	b.mu.Lock()
	var due, rest []observation
	for _, o := range b.observations {
		if now.After(o.dueAt) {
			due = append(due, o)
		} else {
			rest = append(rest, o)
		}
	}
	b.observations = rest
	b.mu.Unlock()

	for _, o := range due {
		reading, fresh, ok := b.moisture.MoistureForPlant(o.plantID)
		if !ok || !fresh {
			continue
		}
		p, err := b.plants.Get(o.plantID)
		if err != nil {
			continue
		}

		next, changed := b.strategy.Adjust(p.ThresholdMultiplier, reading.Value-o.baseline)
		if !changed {
			continue
		}
		if err := b.plants.SetThresholdMultiplier(o.plantID, next); err != nil {
			b.logger.Error("storing adapted threshold failed", "plant", o.plantID, "error", err)
			continue
		}
		b.logger.Info("threshold adapted",
			"plant", o.plantID,
			"multiplier", next,
			"response", reading.Value-o.baseline,
		)
		if b.recorder != nil {
			b.recorder.RecordCareEvent(o.plantID, "adaptation",
				fmt.Sprintf("multiplier %.3f -> %.3f (response %.1f pts)", p.ThresholdMultiplier, next, reading.Value-o.baseline))
		}
	}
}

// recordCare persists one care record; persistence failures are logged
// and never block the decision loop.
func (b *Brain) recordCare(ctx context.Context, r task.Report) {
	if b.history == nil {
		return
	}
	rec := &plant.CareRecord{
		PlantID:        r.Task.PlantID,
		Action:         string(r.Task.Kind),
		VolumeML:       r.VolumeML,
		DurationS:      r.Duration.Seconds(),
		MoistureBefore: r.Task.MoistureBefore,
		Outcome:        string(r.Outcome),
		CreatedAt:      r.FinishedAt,
	}
	if err := b.history.Record(ctx, rec); err != nil {
		b.logger.Error("persisting care record failed", "plant", r.Task.PlantID, "error", err)
	}
}

// countWatering accumulates the daily summary counters.
func (b *Brain) countWatering(volumeML float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wateredToday++
	b.volumeToday += volumeML
}

// setState transitions a plant and logs failures.
func (b *Brain) setState(id string, state plant.CareState) {
	if err := b.plants.SetState(id, state); err != nil {
		b.logger.Error("care state transition failed", "plant", id, "state", state, "error", err)
	}
}

// updatePlantGauges refreshes the per-state plant gauges.
func (b *Brain) updatePlantGauges() {
	if b.instruments == nil {
		return
	}
	for state, count := range b.plants.CountByState() {
		b.instruments.SetPlantsByState(string(state), float64(count))
	}
}

// publish sends an event when a notifier is attached.
func (b *Brain) publish(e notify.Event) {
	if b.events != nil {
		b.events.Publish(e)
	}
}

// sameDay reports whether two instants fall on the same calendar day.
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
