package brain

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/willowmere/gardener-core/internal/garden"
	"github.com/willowmere/gardener-core/internal/infrastructure/config"
	"github.com/willowmere/gardener-core/internal/mode"
	"github.com/willowmere/gardener-core/internal/notify"
	"github.com/willowmere/gardener-core/internal/plant"
	"github.com/willowmere/gardener-core/internal/sensor"
	"github.com/willowmere/gardener-core/internal/task"
)

// ─── Mock Dependencies ───────────────────────────────────────────────────────

// mockSubmitter captures submitted tasks.
type mockSubmitter struct {
	mu        sync.Mutex
	submitted []task.Task
	pending   []task.Task
	active    []task.Task
}

func (m *mockSubmitter) Submit(t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitted = append(m.submitted, *t)
	return nil
}

func (m *mockSubmitter) Pending() []task.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

func (m *mockSubmitter) Active() []task.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func (m *mockSubmitter) tasks() []task.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]task.Task, len(m.submitted))
	copy(out, m.submitted)
	return out
}

// mockMoisture serves scripted per-plant moisture readings.
type mockMoisture struct {
	mu       sync.Mutex
	readings map[string]sensor.Reading
	fresh    map[string]bool
}

func newMockMoisture() *mockMoisture {
	return &mockMoisture{
		readings: make(map[string]sensor.Reading),
		fresh:    make(map[string]bool),
	}
}

func (m *mockMoisture) MoistureForPlant(plantID string) (sensor.Reading, bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.readings[plantID]
	if !ok {
		return sensor.Reading{}, false, false
	}
	return r, m.fresh[plantID], true
}

func (m *mockMoisture) set(plantID string, value float64, fresh bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings[plantID] = sensor.Reading{
		SensorID: "soil_moisture_" + plantID,
		Kind:     sensor.KindSoilMoisture,
		PlantID:  plantID,
		Value:    value,
		Valid:    true,
	}
	m.fresh[plantID] = fresh
}

// mockBrainModes serves a settable operating mode.
type mockBrainModes struct {
	mu      sync.Mutex
	current mode.Mode
}

func (m *mockBrainModes) Current() mode.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// mockEvents captures published notifications.
type mockEvents struct {
	mu     sync.Mutex
	events []notify.Event
}

func (m *mockEvents) Publish(e notify.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

func (m *mockEvents) ofType(t string) []notify.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []notify.Event
	for _, e := range m.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// mockHistory captures care records.
type mockHistory struct {
	mu      sync.Mutex
	records []plant.CareRecord
}

func (m *mockHistory) Record(_ context.Context, rec *plant.CareRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, *rec)
	return nil
}

func (m *mockHistory) History(context.Context, string, int) ([]plant.CareRecord, error) {
	return nil, nil
}

func (m *mockHistory) Prune(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (m *mockHistory) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *mockHistory) last() (plant.CareRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.records) == 0 {
		return plant.CareRecord{}, false
	}
	return m.records[len(m.records)-1], true
}

// mockCareRecorder captures audit entries.
type mockCareRecorder struct {
	mu      sync.Mutex
	actions []string
}

func (m *mockCareRecorder) RecordCareEvent(plantID, action, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, plantID+"/"+action)
}

// ─── Test Setup ──────────────────────────────────────────────────────────────

func testBrainConfig() *config.Config {
	return &config.Config{
		Robot: config.RobotConfig{
			Name:             "willow",
			InitialMode:      "diagnostic",
			DecisionInterval: 60,
			PatrolInterval:   300,
			DailySummaryHour: 18,
		},
		Safety: config.SafetyConfig{
			MaxWateringTime: 30,
		},
		Brain: config.BrainConfig{
			MaxRetries:       3,
			TaskTTL:          120,
			BaseWateringTime: 10,
		},
		Actuators: config.ActuatorsConfig{
			Pump: config.PumpConfig{FlowLPerMin: 2.0},
		},
	}
}

func testPlantConfigs() []config.PlantConfig {
	return []config.PlantConfig{
		{
			ID:       "tomato_1",
			Species:  "tomato",
			Location: config.PointConfig{X: 1, Y: 2},
			Moisture: config.MoistureConfig{Critical: 15, Low: 40, Optimal: 70},
			Schedule: "daily",
		},
		{
			ID:       "basil_1",
			Species:  "basil",
			Location: config.PointConfig{X: 3, Y: 1},
			Moisture: config.MoistureConfig{Critical: 20, Low: 45, Optimal: 75},
			Schedule: "twice_daily",
		},
	}
}

type brainFixture struct {
	brain    *Brain
	plants   *plant.Registry
	moisture *mockMoisture
	modes    *mockBrainModes
	submit   *mockSubmitter
	events   *mockEvents
	history  *mockHistory
}

func setupBrain(t *testing.T, cfg *config.Config) *brainFixture {
	t.Helper()

	registry, err := plant.NewRegistry(testPlantConfigs())
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	layout, err := garden.NewLayout(
		[]config.StationConfig{{ID: "dock", Name: "Dock", Location: config.PointConfig{X: 0, Y: 0}}},
		testPlantConfigs(),
	)
	if err != nil {
		t.Fatalf("NewLayout() error = %v", err)
	}

	moisture := newMockMoisture()
	moisture.set("tomato_1", 60, true)
	moisture.set("basil_1", 60, true)

	f := &brainFixture{
		plants:   registry,
		moisture: moisture,
		modes:    &mockBrainModes{current: mode.Autonomous},
		submit:   &mockSubmitter{},
		events:   &mockEvents{},
		history:  &mockHistory{},
	}
	f.brain = New(cfg, registry, moisture, f.modes, f.submit, layout, f.history)
	f.brain.SetEvents(f.events)
	return f
}

func waterReport(plantID string, outcome task.Outcome, volumeML float64) task.Report {
	t := task.NewWater(plantID, volumeML, 10*time.Second, 50, task.OriginBrain)
	return task.Report{
		Task:       *t,
		Outcome:    outcome,
		Duration:   10 * time.Second,
		VolumeML:   volumeML,
		FinishedAt: time.Now(),
	}
}

// ─── Tests ───────────────────────────────────────────────────────────────────

func TestRunCycleEmitsWateringForDryPlant(t *testing.T) {
	f := setupBrain(t, testBrainConfig())
	f.moisture.set("tomato_1", 20, true)

	f.brain.RunCycle(context.Background())

	tasks := f.submit.tasks()
	if len(tasks) != 1 {
		t.Fatalf("submitted %d tasks, want 1", len(tasks))
	}
	got := tasks[0]
	if got.Kind != task.KindWater || got.PlantID != "tomato_1" {
		t.Fatalf("task = %s for %s, want water for tomato_1", got.Kind, got.PlantID)
	}

	// base 10s x (40-20)/40 = 5s at 2.0 L/min = 33.3 ml/s.
	if got.Duration != 5*time.Second {
		t.Errorf("duration = %s, want 5s", got.Duration)
	}
	if got.VolumeML < 166 || got.VolumeML > 167 {
		t.Errorf("volume = %.1fml, want ~166.7", got.VolumeML)
	}
	if got.Priority != 50 {
		t.Errorf("priority = %d, want 50 (deficit percentage)", got.Priority)
	}
	if got.Deadline.IsZero() {
		t.Error("task has no deadline")
	}

	p, _ := f.plants.Get("tomato_1")
	if p.State != plant.StateWatering {
		t.Errorf("plant state = %s, want watering after submit", p.State)
	}
}

func TestRunCycleCriticalEscalates(t *testing.T) {
	f := setupBrain(t, testBrainConfig())
	f.moisture.set("tomato_1", 10, true)

	f.brain.RunCycle(context.Background())

	tasks := f.submit.tasks()
	if len(tasks) != 1 {
		t.Fatalf("submitted %d tasks, want 1", len(tasks))
	}
	// deficit 75% + critical bonus 50.
	if tasks[0].Priority != 125 {
		t.Errorf("priority = %d, want 125", tasks[0].Priority)
	}
	if got := f.events.ofType(notify.TypePlantCritical); len(got) != 1 {
		t.Errorf("critical events = %d, want 1", len(got))
	}
}

func TestRunCycleIgnoresPlantsOutsideAutonomous(t *testing.T) {
	f := setupBrain(t, testBrainConfig())
	f.moisture.set("tomato_1", 10, true)
	f.modes.current = mode.Manual

	f.brain.RunCycle(context.Background())

	if len(f.submit.tasks()) != 0 {
		t.Errorf("submitted %d tasks outside autonomous, want 0", len(f.submit.tasks()))
	}
	p, _ := f.plants.Get("tomato_1")
	if p.State != plant.StateHealthy {
		t.Errorf("plant state = %s, want untouched healthy", p.State)
	}
}

func TestRunCycleDefersOnStaleReading(t *testing.T) {
	f := setupBrain(t, testBrainConfig())
	f.moisture.set("tomato_1", 10, false)
	// Keep the idle patrol out of this test's way.
	f.brain.lastPatrol = time.Now()

	f.brain.RunCycle(context.Background())

	if len(f.submit.tasks()) != 0 {
		t.Error("task submitted from a stale reading")
	}
	p, _ := f.plants.Get("tomato_1")
	if p.State != plant.StateHealthy {
		t.Errorf("plant state = %s, stale reading must not transition", p.State)
	}
	if got := f.events.ofType(notify.TypeStaleDeferral); len(got) != 1 {
		t.Errorf("deferral events = %d, want 1", len(got))
	}
}

func TestRunCycleExcludesCareFailedPlants(t *testing.T) {
	f := setupBrain(t, testBrainConfig())
	f.moisture.set("tomato_1", 5, true)
	if err := f.plants.SetState("tomato_1", plant.StateCareFailed); err != nil {
		t.Fatalf("SetState() error = %v", err)
	}

	f.brain.RunCycle(context.Background())

	for _, got := range f.submit.tasks() {
		if got.PlantID == "tomato_1" {
			t.Error("care-failed plant received an automatic task")
		}
	}
}

func TestRunCycleOverdueScheduleTriggersMinimumWatering(t *testing.T) {
	f := setupBrain(t, testBrainConfig())
	// Moisture fine, but last watering 25h ago on a daily schedule.
	f.moisture.set("tomato_1", 60, true)
	if err := f.plants.RecordWatering("tomato_1", 100, time.Now().Add(-25*time.Hour)); err != nil {
		t.Fatalf("RecordWatering() error = %v", err)
	}

	f.brain.RunCycle(context.Background())

	tasks := f.submit.tasks()
	if len(tasks) != 1 {
		t.Fatalf("submitted %d tasks, want 1 for the overdue plant", len(tasks))
	}
	if tasks[0].Duration != 2*time.Second {
		t.Errorf("duration = %s, want floor 2s with no deficit", tasks[0].Duration)
	}
	if tasks[0].Priority != 20 {
		t.Errorf("priority = %d, want 20 (overdue bump only)", tasks[0].Priority)
	}
	if !strings.Contains(tasks[0].Reason, "overdue") {
		t.Errorf("reason = %q, want overdue", tasks[0].Reason)
	}
}

func TestWateringDurationClampedToCap(t *testing.T) {
	cfg := testBrainConfig()
	cfg.Brain.BaseWateringTime = 100
	f := setupBrain(t, cfg)
	f.moisture.set("tomato_1", 2, true)

	f.brain.RunCycle(context.Background())

	tasks := f.submit.tasks()
	if len(tasks) != 1 {
		t.Fatalf("submitted %d tasks, want 1", len(tasks))
	}
	if tasks[0].Duration != 30*time.Second {
		t.Errorf("duration = %s, want clamped 30s", tasks[0].Duration)
	}
}

func TestHandleReportCompletedRestoresHealthy(t *testing.T) {
	f := setupBrain(t, testBrainConfig())
	if err := f.plants.SetState("tomato_1", plant.StateWatering); err != nil {
		t.Fatalf("SetState() error = %v", err)
	}

	f.brain.HandleReport(context.Background(), waterReport("tomato_1", task.OutcomeCompleted, 150))

	p, _ := f.plants.Get("tomato_1")
	if p.State != plant.StateHealthy {
		t.Errorf("state = %s, want healthy", p.State)
	}
	if p.LastWatered.IsZero() {
		t.Error("last-watered not recorded")
	}
	if p.TotalVolumeML != 150 {
		t.Errorf("total volume = %.0f, want 150", p.TotalVolumeML)
	}
	if f.history.count() != 1 {
		t.Errorf("care records = %d, want 1", f.history.count())
	}
	if got := f.events.ofType(notify.TypeWatering); len(got) != 1 {
		t.Errorf("watering events = %d, want 1", len(got))
	}
}

func TestHandleReportTruncatedKeepsNeedsWaterWithoutFailure(t *testing.T) {
	f := setupBrain(t, testBrainConfig())
	if err := f.plants.SetState("tomato_1", plant.StateWatering); err != nil {
		t.Fatalf("SetState() error = %v", err)
	}

	f.brain.HandleReport(context.Background(), waterReport("tomato_1", task.OutcomeTruncated, 60))

	p, _ := f.plants.Get("tomato_1")
	if p.State != plant.StateNeedsWater {
		t.Errorf("state = %s, want needs_water", p.State)
	}
	if p.ConsecutiveFailures != 0 {
		t.Errorf("failures = %d, truncation must not count", p.ConsecutiveFailures)
	}
	if p.TotalVolumeML != 60 {
		t.Errorf("total volume = %.0f, want the delivered 60", p.TotalVolumeML)
	}
}

func TestHandleReportFailedEscalatesToCareFailed(t *testing.T) {
	cfg := testBrainConfig()
	cfg.Brain.MaxRetries = 2
	f := setupBrain(t, cfg)
	recorder := &mockCareRecorder{}
	f.brain.SetRecorder(recorder)

	f.brain.HandleReport(context.Background(), waterReport("tomato_1", task.OutcomeFailed, 0))
	p, _ := f.plants.Get("tomato_1")
	if p.State != plant.StateNeedsWater || p.ConsecutiveFailures != 1 {
		t.Fatalf("after first failure: state=%s failures=%d, want needs_water/1", p.State, p.ConsecutiveFailures)
	}

	f.brain.HandleReport(context.Background(), waterReport("tomato_1", task.OutcomeFailed, 0))
	p, _ = f.plants.Get("tomato_1")
	if p.State != plant.StateCareFailed {
		t.Errorf("after retry budget: state = %s, want care_failed", p.State)
	}
	if got := f.events.ofType(notify.TypeCareFailed); len(got) != 1 {
		t.Errorf("care-failed events = %d, want 1", len(got))
	}
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.actions) != 1 || recorder.actions[0] != "tomato_1/care_failed" {
		t.Errorf("audit actions = %v, want [tomato_1/care_failed]", recorder.actions)
	}
}

func TestHandleReportDeniedReturnsToNeedsWater(t *testing.T) {
	f := setupBrain(t, testBrainConfig())
	if err := f.plants.SetState("tomato_1", plant.StateWatering); err != nil {
		t.Fatalf("SetState() error = %v", err)
	}

	f.brain.HandleReport(context.Background(), waterReport("tomato_1", task.OutcomeDenied, 0))

	p, _ := f.plants.Get("tomato_1")
	if p.State != plant.StateNeedsWater {
		t.Errorf("state = %s, want needs_water", p.State)
	}
	if p.ConsecutiveFailures != 0 {
		t.Errorf("failures = %d, denial must not count", p.ConsecutiveFailures)
	}
}

func TestPatrolDispatchedWhenIdle(t *testing.T) {
	f := setupBrain(t, testBrainConfig())
	// Everything healthy, nothing queued; first cycle patrols.
	f.brain.RunCycle(context.Background())

	tasks := f.submit.tasks()
	// Two plant stations plus the dock.
	if len(tasks) != 3 {
		t.Fatalf("submitted %d tasks, want 3 patrol legs", len(tasks))
	}
	wantRoute := []string{"tomato_1", "basil_1", "dock"}
	for i, want := range wantRoute {
		if tasks[i].Kind != task.KindMove || tasks[i].Target != want {
			t.Errorf("leg %d = %s to %s, want move to %s", i, tasks[i].Kind, tasks[i].Target, want)
		}
	}

	// Second cycle inside the patrol interval stays quiet.
	f.brain.RunCycle(context.Background())
	if len(f.submit.tasks()) != 3 {
		t.Errorf("patrol repeated within the interval: %d tasks", len(f.submit.tasks()))
	}
}

func TestPatrolSkippedWhileBusy(t *testing.T) {
	f := setupBrain(t, testBrainConfig())
	f.submit.active = []task.Task{*task.NewMove("dock", time.Second, 1, task.OriginBrain)}

	f.brain.RunCycle(context.Background())

	if len(f.submit.tasks()) != 0 {
		t.Errorf("patrol dispatched while an actuator is busy: %d tasks", len(f.submit.tasks()))
	}
}

func TestDailySummaryEmittedOncePerDay(t *testing.T) {
	f := setupBrain(t, testBrainConfig())
	at := time.Date(2026, 8, 24, 18, 5, 0, 0, time.UTC)
	f.brain.now = func() time.Time { return at }

	f.brain.HandleReport(context.Background(), waterReport("tomato_1", task.OutcomeCompleted, 150))
	f.brain.RunCycle(context.Background())

	summaries := f.events.ofType(notify.TypeDailySummary)
	if len(summaries) != 1 {
		t.Fatalf("summaries = %d, want 1", len(summaries))
	}
	if summaries[0].Fields["watered"] != 1 {
		t.Errorf("watered = %v, want 1", summaries[0].Fields["watered"])
	}

	// Later the same day: no repeat.
	at = at.Add(30 * time.Minute)
	f.brain.RunCycle(context.Background())
	if got := f.events.ofType(notify.TypeDailySummary); len(got) != 1 {
		t.Errorf("summaries = %d after second cycle, want still 1", len(got))
	}

	// Next day at the summary hour: emitted again.
	at = at.Add(24 * time.Hour)
	f.brain.RunCycle(context.Background())
	if got := f.events.ofType(notify.TypeDailySummary); len(got) != 2 {
		t.Errorf("summaries = %d on the next day, want 2", len(got))
	}
}

func TestAdaptationAdjustsThresholdAfterObservation(t *testing.T) {
	cfg := testBrainConfig()
	cfg.Brain.Adaptation = config.AdaptationConfig{
		Enabled:           true,
		Rate:              0.05,
		MinMultiplier:     0.8,
		MaxMultiplier:     1.2,
		ObservationWindow: 600,
	}
	f := setupBrain(t, cfg)
	recorder := &mockCareRecorder{}
	f.brain.SetRecorder(recorder)

	at := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	f.brain.now = func() time.Time { return at }

	// Completed watering schedules an observation at the current
	// moisture baseline.
	f.moisture.set("tomato_1", 50, true)
	f.brain.HandleReport(context.Background(), waterReport("tomato_1", task.OutcomeCompleted, 150))

	// Window elapses with barely any moisture response.
	at = at.Add(11 * time.Minute)
	f.moisture.set("tomato_1", 52, true)
	f.brain.RunCycle(context.Background())

	p, _ := f.plants.Get("tomato_1")
	if p.ThresholdMultiplier <= 1.0 {
		t.Errorf("multiplier = %.3f, want raised above 1.0 for a weak response", p.ThresholdMultiplier)
	}
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.actions) != 1 || recorder.actions[0] != "tomato_1/adaptation" {
		t.Errorf("audit actions = %v, want [tomato_1/adaptation]", recorder.actions)
	}
}

func TestCareRecordCarriesMoistureBefore(t *testing.T) {
	f := setupBrain(t, testBrainConfig())
	f.moisture.set("tomato_1", 22, true)

	f.brain.RunCycle(context.Background())

	tasks := f.submit.tasks()
	if len(tasks) != 1 {
		t.Fatalf("submitted %d tasks, want 1", len(tasks))
	}
	if tasks[0].MoistureBefore == nil {
		t.Fatal("task MoistureBefore = nil, want the cycle's reading")
	}
	if *tasks[0].MoistureBefore != 22 {
		t.Errorf("task MoistureBefore = %.1f, want 22", *tasks[0].MoistureBefore)
	}

	f.brain.HandleReport(context.Background(), task.Report{
		Task:       tasks[0],
		Outcome:    task.OutcomeCompleted,
		Duration:   5 * time.Second,
		VolumeML:   tasks[0].VolumeML,
		FinishedAt: time.Now(),
	})

	rec, ok := f.history.last()
	if !ok {
		t.Fatal("no care record persisted")
	}
	if rec.MoistureBefore == nil {
		t.Fatal("care record MoistureBefore = nil, want 22")
	}
	if *rec.MoistureBefore != 22 {
		t.Errorf("care record MoistureBefore = %.1f, want 22", *rec.MoistureBefore)
	}
}
