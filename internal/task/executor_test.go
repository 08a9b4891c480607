package task

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/willowmere/gardener-core/internal/actuator"
	"github.com/willowmere/gardener-core/internal/infrastructure/config"
	"github.com/willowmere/gardener-core/internal/mode"
	"github.com/willowmere/gardener-core/internal/safety"
	"github.com/willowmere/gardener-core/internal/sensor"
)

// ─── Mock Dependencies ───────────────────────────────────────────────────────

// mockReadings serves scripted per-kind values with usability flags.
type mockReadings struct {
	mu     sync.Mutex
	values map[sensor.Kind]float64
	usable map[sensor.Kind]bool
}

func newMockReadings() *mockReadings {
	return &mockReadings{
		values: map[sensor.Kind]float64{
			sensor.KindBatteryVoltage: 12.4,
			sensor.KindWaterLevel:     50,
		},
		usable: map[sensor.Kind]bool{
			sensor.KindBatteryVoltage: true,
			sensor.KindWaterLevel:     true,
		},
	}
}

func (m *mockReadings) KindValue(kind sensor.Kind) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[kind], m.usable[kind]
}

func (m *mockReadings) set(kind sensor.Kind, value float64, usable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[kind] = value
	m.usable[kind] = usable
}

// mockModes serves a settable operating mode.
type mockModes struct {
	mu      sync.Mutex
	current mode.Mode
}

func (m *mockModes) Current() mode.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *mockModes) set(to mode.Mode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = to
}

// mockTaskRecorder captures non-completed outcomes.
type mockTaskRecorder struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (m *mockTaskRecorder) RecordTaskOutcome(_ Task, outcome Outcome, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *mockTaskRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.outcomes)
}

// ─── Test Setup ──────────────────────────────────────────────────────────────

func testExecutorConfig() *config.Config {
	return &config.Config{
		Safety: config.SafetyConfig{
			BatteryShutdownVoltage: 10.8,
			MinWaterLevel:          10,
			MaxWateringTime:        30,
			MaxPumpRuntime:         300,
			PumpWindow:             600,
			MotorTimeout:           30,
			// Small tick so mid-run abort tests finish quickly.
			EStopTickMS:     5,
			ActuatorTimeout: 1,
		},
		Actuators: config.ActuatorsConfig{
			Pump:  config.PumpConfig{Driver: "sim", FlowLPerMin: 6.0},
			Drive: config.DriveConfig{Driver: "sim", Speed: 0.5},
		},
	}
}

type executorFixture struct {
	exec     *Executor
	pump     *actuator.SimDriver
	drive    *actuator.SimDriver
	readings *mockReadings
	sup      *safety.Supervisor
	modes    *mockModes
}

func setupExecutor(t *testing.T) *executorFixture {
	t.Helper()

	readings := newMockReadings()
	sup := safety.NewSupervisor(testExecutorConfig().Safety, readings)
	modes := &mockModes{current: mode.Autonomous}
	pump := actuator.NewSimDriver("pump-main", actuator.ClassPump)
	drive := actuator.NewSimDriver("drive-main", actuator.ClassDrive)

	return &executorFixture{
		exec:     NewExecutor(testExecutorConfig(), sup, modes, readings, pump, drive),
		pump:     pump,
		drive:    drive,
		readings: readings,
		sup:      sup,
		modes:    modes,
	}
}

// start runs the executor's dispatch loop for the duration of the test.
func (f *executorFixture) start(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.exec.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitReport(t *testing.T, e *Executor) Report {
	t.Helper()

	select {
	case r := <-e.Reports():
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a task report")
		return Report{}
	}
}

// ─── Tests ───────────────────────────────────────────────────────────────────

func TestSubmitRejectsMalformedTasks(t *testing.T) {
	f := setupExecutor(t)

	tests := []struct {
		name string
		task *Task
	}{
		{"nil task", nil},
		{"unknown kind", &Task{ID: "task-x", Kind: Kind("fly"), Duration: time.Second}},
		{"water without plant", NewWater("", 100, time.Second, 1, OriginBrain)},
		{"move without target", NewMove("", time.Second, 1, OriginBrain)},
		{"non-positive duration", NewWater("tomato_1", 100, 0, 1, OriginBrain)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := f.exec.Submit(tt.task); err == nil {
				t.Error("Submit() error = nil, want rejection")
			}
		})
	}
}

func TestSubmitSupersedesPendingTaskForSameTarget(t *testing.T) {
	f := setupExecutor(t)

	first := NewWater("tomato_1", 100, 50*time.Millisecond, 1, OriginBrain)
	second := NewWater("tomato_1", 200, 50*time.Millisecond, 5, OriginBrain)

	if err := f.exec.Submit(first); err != nil {
		t.Fatalf("Submit(first) error = %v", err)
	}
	if err := f.exec.Submit(second); err != nil {
		t.Fatalf("Submit(second) error = %v", err)
	}

	r := waitReport(t, f.exec)
	if r.Outcome != OutcomeSuperseded || r.Task.ID != first.ID {
		t.Errorf("report = %s for %s, want superseded for %s", r.Outcome, r.Task.ID, first.ID)
	}
	if len(f.exec.Pending()) != 1 {
		t.Errorf("Pending() = %d tasks, want 1", len(f.exec.Pending()))
	}
}

func TestWaterTaskRunsToCompletion(t *testing.T) {
	f := setupExecutor(t)
	f.start(t)

	task := NewWater("tomato_1", 100, 60*time.Millisecond, 1, OriginBrain)
	if err := f.exec.Submit(task); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	r := waitReport(t, f.exec)
	if r.Outcome != OutcomeCompleted {
		t.Fatalf("outcome = %s (%s), want completed", r.Outcome, r.Reason)
	}
	if r.Duration < 60*time.Millisecond {
		t.Errorf("runtime = %s, want at least the requested 60ms", r.Duration)
	}
	if r.VolumeML <= 0 {
		t.Errorf("volume = %.1fml, want positive", r.VolumeML)
	}

	starts, stops := f.pump.Counts()
	if starts != 1 || stops < 1 {
		t.Errorf("pump starts/stops = %d/%d, want 1/>=1", starts, stops)
	}
	if f.pump.Active() {
		t.Error("pump still active after completion")
	}
	if got := f.pump.LastCommand().Action; got != actuator.ActionRun {
		t.Errorf("pump command = %s, want run", got)
	}
}

func TestMoveTaskDrivesToTarget(t *testing.T) {
	f := setupExecutor(t)
	f.start(t)

	if err := f.exec.Submit(NewMove("dock", 40*time.Millisecond, 1, OriginBrain)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	r := waitReport(t, f.exec)
	if r.Outcome != OutcomeCompleted {
		t.Fatalf("outcome = %s (%s), want completed", r.Outcome, r.Reason)
	}
	if got := f.drive.LastCommand(); got.Action != actuator.ActionMove || got.Target != "dock" {
		t.Errorf("drive command = %+v, want move to dock", got)
	}
	if f.drive.Active() {
		t.Error("drivetrain still active after completion")
	}
}

func TestModeGateDeniesForeignOrigin(t *testing.T) {
	f := setupExecutor(t)
	f.modes.set(mode.Manual)
	recorder := &mockTaskRecorder{}
	f.exec.SetRecorder(recorder)
	f.start(t)

	if err := f.exec.Submit(NewWater("tomato_1", 100, 50*time.Millisecond, 1, OriginBrain)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	r := waitReport(t, f.exec)
	if r.Outcome != OutcomeDenied {
		t.Fatalf("outcome = %s, want denied", r.Outcome)
	}
	if !strings.Contains(r.Reason, "manual mode") {
		t.Errorf("reason = %q, want mention of the current mode", r.Reason)
	}
	if starts, _ := f.pump.Counts(); starts != 0 {
		t.Errorf("pump started %d times for a denied task", starts)
	}
	if recorder.count() != 1 {
		t.Errorf("recorder saw %d outcomes, want 1", recorder.count())
	}
}

func TestSafetyDenyStopsTaskBeforeHardware(t *testing.T) {
	f := setupExecutor(t)
	f.readings.set(sensor.KindBatteryVoltage, 9.5, true)
	f.start(t)

	if err := f.exec.Submit(NewWater("tomato_1", 100, 50*time.Millisecond, 1, OriginBrain)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	r := waitReport(t, f.exec)
	if r.Outcome != OutcomeDenied {
		t.Fatalf("outcome = %s (%s), want denied", r.Outcome, r.Reason)
	}
	if starts, _ := f.pump.Counts(); starts != 0 {
		t.Errorf("pump started %d times for a denied task", starts)
	}
}

func TestSafetySubstituteTruncatesRun(t *testing.T) {
	f := setupExecutor(t)
	// Leave only 30ms of pump allowance in the window.
	f.sup.NotePumpRun(300*time.Second - 30*time.Millisecond)
	f.start(t)

	if err := f.exec.Submit(NewWater("tomato_1", 500, 400*time.Millisecond, 1, OriginBrain)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	r := waitReport(t, f.exec)
	if r.Outcome != OutcomeTruncated {
		t.Fatalf("outcome = %s (%s), want truncated", r.Outcome, r.Reason)
	}
	if r.Duration >= 400*time.Millisecond {
		t.Errorf("runtime = %s, want well short of the requested 400ms", r.Duration)
	}
}

func TestEmergencyStopAbortsRunMidFlight(t *testing.T) {
	f := setupExecutor(t)
	f.start(t)

	if err := f.exec.Submit(NewWater("tomato_1", 100, time.Second, 1, OriginBrain)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	// Let the run start, then latch.
	time.Sleep(30 * time.Millisecond)
	f.sup.LatchEStop("test latch")

	r := waitReport(t, f.exec)
	if r.Outcome != OutcomeFailed {
		t.Fatalf("outcome = %s (%s), want failed", r.Outcome, r.Reason)
	}
	if !strings.Contains(r.Reason, "emergency stop") {
		t.Errorf("reason = %q, want emergency stop", r.Reason)
	}
	if r.Duration >= time.Second {
		t.Errorf("runtime = %s, want aborted well before the full second", r.Duration)
	}
	if f.pump.Active() {
		t.Error("pump still active after mid-run abort")
	}
}

func TestWaterDepletionAbortsRunMidFlight(t *testing.T) {
	f := setupExecutor(t)
	f.start(t)

	if err := f.exec.Submit(NewWater("tomato_1", 100, time.Second, 1, OriginBrain)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	time.Sleep(30 * time.Millisecond)
	f.readings.set(sensor.KindWaterLevel, 3, true)

	r := waitReport(t, f.exec)
	if r.Outcome != OutcomeFailed {
		t.Fatalf("outcome = %s (%s), want failed", r.Outcome, r.Reason)
	}
	if !strings.Contains(r.Reason, "water level") {
		t.Errorf("reason = %q, want water level", r.Reason)
	}
}

func TestActuatorStartFailureReportsFailed(t *testing.T) {
	f := setupExecutor(t)
	f.pump.FailStarts(errors.New("shim offline"))
	f.start(t)

	if err := f.exec.Submit(NewWater("tomato_1", 100, 50*time.Millisecond, 1, OriginBrain)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	r := waitReport(t, f.exec)
	if r.Outcome != OutcomeFailed {
		t.Fatalf("outcome = %s, want failed", r.Outcome)
	}
	if !strings.Contains(r.Reason, "shim offline") {
		t.Errorf("reason = %q, want the driver error", r.Reason)
	}
}

func TestExpiredTaskNeverReachesHardware(t *testing.T) {
	f := setupExecutor(t)
	f.start(t)

	task := NewWater("tomato_1", 100, 50*time.Millisecond, 1, OriginBrain)
	task.Deadline = time.Now().Add(-time.Second)
	if err := f.exec.Submit(task); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	r := waitReport(t, f.exec)
	if r.Outcome != OutcomeExpired {
		t.Fatalf("outcome = %s, want expired", r.Outcome)
	}
	if starts, _ := f.pump.Counts(); starts != 0 {
		t.Errorf("pump started %d times for an expired task", starts)
	}
}

func TestStopTaskHaltsBothActuators(t *testing.T) {
	f := setupExecutor(t)
	f.modes.set(mode.Manual)

	if err := f.exec.Submit(NewStop(OriginManual)); err != nil {
		t.Fatalf("Submit(stop) error = %v", err)
	}

	r := waitReport(t, f.exec)
	if r.Outcome != OutcomeCompleted || r.Task.Kind != KindStop {
		t.Fatalf("report = %s/%s, want completed stop", r.Task.Kind, r.Outcome)
	}
	if _, stops := f.pump.Counts(); stops != 1 {
		t.Errorf("pump stops = %d, want 1", stops)
	}
	if _, stops := f.drive.Counts(); stops != 1 {
		t.Errorf("drive stops = %d, want 1", stops)
	}
}

func TestEmergencyStopTaskLatchesAndFlushesQueue(t *testing.T) {
	f := setupExecutor(t)

	// Two queued tasks, no dispatch loop running.
	if err := f.exec.Submit(NewWater("tomato_1", 100, 50*time.Millisecond, 1, OriginBrain)); err != nil {
		t.Fatalf("Submit(water) error = %v", err)
	}
	if err := f.exec.Submit(NewMove("dock", 50*time.Millisecond, 1, OriginBrain)); err != nil {
		t.Fatalf("Submit(move) error = %v", err)
	}

	estop := &Task{ID: "task-estop", Kind: KindEmergencyStop, Origin: OriginManual, Reason: "operator button", CreatedAt: time.Now()}
	if err := f.exec.Submit(estop); err != nil {
		t.Fatalf("Submit(estop) error = %v", err)
	}

	if !f.sup.EStopLatched() {
		t.Error("supervisor latch not engaged")
	}
	if len(f.exec.Pending()) != 0 {
		t.Errorf("Pending() = %d tasks after e-stop, want 0", len(f.exec.Pending()))
	}

	outcomes := map[Outcome]int{}
	for i := 0; i < 3; i++ {
		outcomes[waitReport(t, f.exec).Outcome]++
	}
	if outcomes[OutcomeDenied] != 2 || outcomes[OutcomeCompleted] != 1 {
		t.Errorf("outcomes = %v, want 2 denied + 1 completed", outcomes)
	}
}
