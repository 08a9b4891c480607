package sensor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/willowmere/gardener-core/internal/infrastructure/config"
)

// ─── Mock Dependencies ───────────────────────────────────────────────────────

// mockInstruments records metric calls for assertions.
type mockInstruments struct {
	mu       sync.Mutex
	failures map[string]int
	stale    map[string]bool
	battery  float64
}

func newMockInstruments() *mockInstruments {
	return &mockInstruments{
		failures: make(map[string]int),
		stale:    make(map[string]bool),
	}
}

func (m *mockInstruments) ObserveReadFailure(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[id]++
}

func (m *mockInstruments) SetStale(id string, stale bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stale[id] = stale
}

func (m *mockInstruments) SetBatteryVoltage(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.battery = v
}

func (m *mockInstruments) failureCount(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures[id]
}

// ─── Test Setup ──────────────────────────────────────────────────────────────

func testSensorsConfig() config.SensorsConfig {
	return config.SensorsConfig{
		PollInterval: 5,
		Staleness:    30,
		ReadTimeout:  1,
		Breaker: config.BreakerConfig{
			ConsecutiveFailures: 3,
			OpenTimeout:         30,
		},
	}
}

func setupAggregator(t *testing.T, specs []Spec) *Aggregator {
	t.Helper()

	a, err := NewAggregator(testSensorsConfig(), specs)
	if err != nil {
		t.Fatalf("NewAggregator() error = %v", err)
	}
	return a
}

// ─── Tests ───────────────────────────────────────────────────────────────────

func TestAggregatorPollAndLatest(t *testing.T) {
	moisture := NewSimSource("moisture_tomato_1", KindSoilMoisture, 42)
	battery := NewSimSource("battery_main", KindBatteryVoltage, 12.4)

	a := setupAggregator(t, []Spec{
		{Source: moisture, Kind: KindSoilMoisture, PlantID: "tomato_1"},
		{Source: battery, Kind: KindBatteryVoltage},
	})

	readings := a.Poll(context.Background())
	if len(readings) != 2 {
		t.Fatalf("Poll() returned %d readings, want 2", len(readings))
	}

	r, fresh, err := a.Latest("moisture_tomato_1")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if !r.Valid || !fresh {
		t.Errorf("reading valid=%v fresh=%v, want both true", r.Valid, fresh)
	}
	if r.Value != 42 || r.Unit != "%" {
		t.Errorf("reading = %v %s, want 42 %%", r.Value, r.Unit)
	}
	if r.PlantID != "tomato_1" {
		t.Errorf("PlantID = %q, want tomato_1", r.PlantID)
	}
}

func TestAggregatorUnknownSensor(t *testing.T) {
	a := setupAggregator(t, []Spec{
		{Source: NewSimSource("s1", KindSoilMoisture, 50), Kind: KindSoilMoisture},
	})

	if _, _, err := a.Latest("nope"); !errors.Is(err, ErrUnknownSensor) {
		t.Errorf("Latest(unknown) error = %v, want ErrUnknownSensor", err)
	}
}

func TestAggregatorFailureKeepsPreviousReading(t *testing.T) {
	src := NewSimSource("moisture_1", KindSoilMoisture, 55)
	a := setupAggregator(t, []Spec{
		{Source: src, Kind: KindSoilMoisture},
	})
	in := newMockInstruments()
	a.SetInstruments(in)

	a.Poll(context.Background())

	// Subsequent reads fail; the cached value must survive.
	src.SetError(errors.New("i2c glitch"))
	a.Poll(context.Background())

	r, fresh, err := a.Latest("moisture_1")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if !r.Valid || r.Value != 55 {
		t.Errorf("previous reading lost: valid=%v value=%v", r.Valid, r.Value)
	}
	if !fresh {
		t.Error("reading should still be fresh inside the staleness window")
	}
	if in.failureCount("moisture_1") != 1 {
		t.Errorf("failure count = %d, want 1", in.failureCount("moisture_1"))
	}
}

func TestAggregatorStaleness(t *testing.T) {
	src := NewSimSource("battery_main", KindBatteryVoltage, 12.1)
	a := setupAggregator(t, []Spec{
		{Source: src, Kind: KindBatteryVoltage},
	})

	base := time.Now()
	a.now = func() time.Time { return base }
	a.Poll(context.Background())

	// Within the window: fresh.
	a.now = func() time.Time { return base.Add(10 * time.Second) }
	if _, fresh, _ := a.Latest("battery_main"); !fresh {
		t.Error("reading should be fresh at 10s")
	}

	// Beyond the 30s default window: stale.
	a.now = func() time.Time { return base.Add(31 * time.Second) }
	if _, fresh, _ := a.Latest("battery_main"); fresh {
		t.Error("reading should be stale at 31s")
	}
}

func TestAggregatorPerSensorStalenessOverride(t *testing.T) {
	src := NewSimSource("slow_sensor", KindTemperature, 21)
	a := setupAggregator(t, []Spec{
		{Source: src, Kind: KindTemperature, Staleness: 120 * time.Second},
	})

	base := time.Now()
	a.now = func() time.Time { return base }
	a.Poll(context.Background())

	a.now = func() time.Time { return base.Add(90 * time.Second) }
	if _, fresh, _ := a.Latest("slow_sensor"); !fresh {
		t.Error("override window of 120s should keep a 90s-old reading fresh")
	}
}

func TestAggregatorOutOfRange(t *testing.T) {
	src := NewSimSource("moisture_1", KindSoilMoisture, 142)
	a := setupAggregator(t, []Spec{
		{Source: src, Kind: KindSoilMoisture},
	})

	a.Poll(context.Background())

	r, fresh, err := a.Latest("moisture_1")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if r.Valid || fresh {
		t.Errorf("out-of-range value accepted: valid=%v fresh=%v", r.Valid, fresh)
	}
}

func TestAggregatorBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	src := NewSimSource("flaky", KindHumidity, 50)
	src.SetError(errors.New("dead bus"))

	a := setupAggregator(t, []Spec{
		{Source: src, Kind: KindHumidity},
	})
	in := newMockInstruments()
	a.SetInstruments(in)

	// Trip the breaker (threshold 3), then keep polling.
	for i := 0; i < 5; i++ {
		a.Poll(context.Background())
	}

	// The breaker short-circuits after opening, but failures still count.
	if got := in.failureCount("flaky"); got != 5 {
		t.Errorf("failure count = %d, want 5", got)
	}

	// A recovered source stays failing until the open timeout passes.
	src.SetError(nil)
	a.Poll(context.Background())
	r, _, _ := a.Latest("flaky")
	if r.Valid {
		t.Error("open breaker should fail fast before the probe window")
	}
}

func TestAggregatorKindValue(t *testing.T) {
	battery := NewSimSource("battery_main", KindBatteryVoltage, 11.9)
	water := NewSimSource("water_tank", KindWaterLevel, 64)

	a := setupAggregator(t, []Spec{
		{Source: battery, Kind: KindBatteryVoltage},
		{Source: water, Kind: KindWaterLevel},
	})
	a.Poll(context.Background())

	if v, ok := a.KindValue(KindBatteryVoltage); !ok || v != 11.9 {
		t.Errorf("KindValue(battery) = %v %v, want 11.9 true", v, ok)
	}
	if v, ok := a.KindValue(KindWaterLevel); !ok || v != 64 {
		t.Errorf("KindValue(water) = %v %v, want 64 true", v, ok)
	}
	if _, ok := a.KindValue(KindLight); ok {
		t.Error("KindValue for unconfigured kind should not be ok")
	}
}

func TestAggregatorMoistureForPlant(t *testing.T) {
	a := setupAggregator(t, []Spec{
		{Source: NewSimSource("m1", KindSoilMoisture, 33), Kind: KindSoilMoisture, PlantID: "tomato_1"},
		{Source: NewSimSource("m2", KindSoilMoisture, 71), Kind: KindSoilMoisture, PlantID: "basil_1"},
	})
	a.Poll(context.Background())

	r, fresh, ok := a.MoistureForPlant("basil_1")
	if !ok || !fresh {
		t.Fatalf("MoistureForPlant(basil_1) ok=%v fresh=%v", ok, fresh)
	}
	if r.Value != 71 {
		t.Errorf("moisture = %v, want 71", r.Value)
	}

	if _, _, ok := a.MoistureForPlant("cactus_9"); ok {
		t.Error("MoistureForPlant for unknown plant should not be ok")
	}
}

func TestAggregatorSnapshot(t *testing.T) {
	a := setupAggregator(t, []Spec{
		{Source: NewSimSource("m1", KindSoilMoisture, 40), Kind: KindSoilMoisture, PlantID: "tomato_1"},
		{Source: NewSimSource("b1", KindBatteryVoltage, 12.8), Kind: KindBatteryVoltage},
	})

	// Before any poll the snapshot still lists every sensor, all stale.
	snap := a.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Snapshot() returned %d entries, want 2", len(snap))
	}
	for _, s := range snap {
		if s.Fresh {
			t.Errorf("sensor %s fresh before first poll", s.SensorID)
		}
	}

	a.Poll(context.Background())
	for _, s := range a.Snapshot() {
		if !s.Fresh {
			t.Errorf("sensor %s stale after poll", s.SensorID)
		}
	}
}

func TestSpecsFromConfig(t *testing.T) {
	cfg := testSensorsConfig()
	cfg.Sources = []config.SensorSourceConfig{
		{ID: "m1", Kind: "soil_moisture", Driver: "sim", PlantID: "tomato_1", SimValue: 45},
		{ID: "b1", Kind: "battery_voltage", Driver: "sim", SimValue: 12.6},
	}

	specs, err := SpecsFromConfig(cfg, nil, 1)
	if err != nil {
		t.Fatalf("SpecsFromConfig() error = %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("got %d specs, want 2", len(specs))
	}
	if !specs[0].Republish {
		t.Error("sim sources should republish")
	}

	// MQTT driver without a subscriber must fail at build time.
	cfg.Sources = []config.SensorSourceConfig{
		{ID: "w1", Kind: "water_level", Driver: "mqtt"},
	}
	if _, err := SpecsFromConfig(cfg, nil, 1); err == nil {
		t.Error("SpecsFromConfig() with mqtt driver and nil subscriber should fail")
	}
}

func TestKindInRange(t *testing.T) {
	tests := []struct {
		kind  Kind
		value float64
		want  bool
	}{
		{KindSoilMoisture, 50, true},
		{KindSoilMoisture, -1, false},
		{KindSoilMoisture, 101, false},
		{KindBatteryVoltage, 12.6, true},
		{KindBatteryVoltage, 16, false},
		{KindTemperature, -25, false},
		{KindTemperature, 35, true},
		{KindLight, 0, true},
		{KindLight, -5, false},
	}

	for _, tt := range tests {
		if got := tt.kind.InRange(tt.value); got != tt.want {
			t.Errorf("%s.InRange(%v) = %v, want %v", tt.kind, tt.value, got, tt.want)
		}
	}
}
