package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/willowmere/gardener-core/internal/infrastructure/config"
	"github.com/willowmere/gardener-core/internal/infrastructure/mqtt"
)

// Logger defines the logging interface used by the Aggregator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Instruments is the slice of the metrics surface the aggregator feeds.
type Instruments interface {
	ObserveReadFailure(sensorID string)
	SetStale(sensorID string, stale bool)
	SetBatteryVoltage(v float64)
}

// Telemetry receives valid readings for time-series storage.
type Telemetry interface {
	WriteSensorReading(sensorID, kind string, value float64)
}

// Publisher publishes readings from local sources onto the MQTT bus.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// entry is one registered source with its breaker and cached reading.
type entry struct {
	spec    Spec
	breaker *gobreaker.CircuitBreaker
}

// Aggregator polls all configured sensor sources and caches the latest
// reading per sensor.
//
// Poll is driven by the robot controller's sensor loop; Latest and the
// kind helpers are non-blocking and safe for concurrent use.
type Aggregator struct {
	entries []*entry
	byID    map[string]*entry

	readTimeout      time.Duration
	defaultStaleness time.Duration

	mu       sync.RWMutex
	readings map[string]Reading

	logger      Logger
	instruments Instruments
	telemetry   Telemetry
	publisher   Publisher
	qos         byte

	now func() time.Time
}

// NewAggregator creates an Aggregator for the given source specs.
//
// Each source gets its own circuit breaker configured from cfg.Breaker:
// after the configured number of consecutive failures the breaker opens
// and reads fail fast until the open timeout elapses.
func NewAggregator(cfg config.SensorsConfig, specs []Spec) (*Aggregator, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("sensor aggregator: no sources configured")
	}

	a := &Aggregator{
		byID:             make(map[string]*entry, len(specs)),
		readTimeout:      time.Duration(cfg.ReadTimeout) * time.Second,
		defaultStaleness: time.Duration(cfg.Staleness) * time.Second,
		readings:         make(map[string]Reading, len(specs)),
		logger:           noopLogger{},
		now:              time.Now,
	}
	if a.readTimeout <= 0 {
		a.readTimeout = 2 * time.Second
	}

	threshold := uint32(cfg.Breaker.ConsecutiveFailures)
	if threshold == 0 {
		threshold = 5
	}
	openTimeout := time.Duration(cfg.Breaker.OpenTimeout) * time.Second

	for _, spec := range specs {
		id := spec.Source.ID()
		if _, dup := a.byID[id]; dup {
			return nil, fmt.Errorf("sensor aggregator: duplicate source %q", id)
		}

		e := &entry{
			spec: spec,
			breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name:    id,
				Timeout: openTimeout,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures >= threshold
				},
				OnStateChange: func(name string, from, to gobreaker.State) {
					a.logger.Warn("sensor breaker state change",
						"sensor_id", name,
						"from", from.String(),
						"to", to.String(),
					)
				},
			}),
		}
		a.entries = append(a.entries, e)
		a.byID[id] = e
	}

	return a, nil
}

// SetLogger sets the logger for the aggregator.
func (a *Aggregator) SetLogger(logger Logger) {
	a.logger = logger
}

// SetInstruments attaches metrics instruments.
func (a *Aggregator) SetInstruments(in Instruments) {
	a.instruments = in
}

// SetTelemetry attaches a time-series sink for valid readings.
func (a *Aggregator) SetTelemetry(t Telemetry) {
	a.telemetry = t
}

// SetPublisher attaches the MQTT publisher used to republish readings
// from local sources.
func (a *Aggregator) SetPublisher(p Publisher, qos byte) {
	a.publisher = p
	a.qos = qos
}

// Poll reads every source once and returns a snapshot of the latest
// readings keyed by sensor ID.
//
// A failed read never removes the previous reading; the sensor simply
// ages into staleness. A source with no prior reading stores an invalid
// placeholder so callers can distinguish "never answered" from
// "not configured".
func (a *Aggregator) Poll(ctx context.Context) map[string]Reading {
	for _, e := range a.entries {
		a.pollOne(ctx, e)
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	snapshot := make(map[string]Reading, len(a.readings))
	for id, r := range a.readings {
		snapshot[id] = r
	}
	return snapshot
}

// pollOne reads a single source through its breaker and updates the
// cache.
func (a *Aggregator) pollOne(ctx context.Context, e *entry) {
	id := e.spec.Source.ID()

	readCtx, cancel := context.WithTimeout(ctx, a.readTimeout)
	defer cancel()

	result, err := e.breaker.Execute(func() (interface{}, error) {
		value, unit, err := e.spec.Source.Read(readCtx)
		if err != nil {
			return nil, err
		}
		if !e.spec.Kind.InRange(value) {
			return nil, fmt.Errorf("%w: %s %s=%v", ErrOutOfRange, id, e.spec.Kind, value)
		}
		if unit == "" {
			unit = e.spec.Kind.Unit()
		}
		return Reading{
			SensorID:  id,
			Kind:      e.spec.Kind,
			PlantID:   e.spec.PlantID,
			Value:     value,
			Unit:      unit,
			Timestamp: a.now(),
			Valid:     true,
		}, nil
	})

	if err != nil {
		a.recordFailure(id, err)
		return
	}

	reading := result.(Reading)
	a.mu.Lock()
	a.readings[id] = reading
	a.mu.Unlock()

	a.afterValidReading(e, reading)
}

// recordFailure counts a failed read and seeds an invalid placeholder
// for sensors that have never answered.
func (a *Aggregator) recordFailure(id string, err error) {
	a.logger.Debug("sensor read failed", "sensor_id", id, "error", err)
	if a.instruments != nil {
		a.instruments.ObserveReadFailure(id)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.readings[id]; !ok {
		e := a.byID[id]
		a.readings[id] = Reading{
			SensorID:  id,
			Kind:      e.spec.Kind,
			PlantID:   e.spec.PlantID,
			Unit:      e.spec.Kind.Unit(),
			Timestamp: a.now(),
			Valid:     false,
		}
	}
}

// afterValidReading fans a fresh valid reading out to the optional
// sinks. All sinks are fire-and-forget from the poll loop's view.
func (a *Aggregator) afterValidReading(e *entry, r Reading) {
	if a.instruments != nil {
		a.instruments.SetStale(r.SensorID, false)
		if r.Kind == KindBatteryVoltage {
			a.instruments.SetBatteryVoltage(r.Value)
		}
	}

	if a.telemetry != nil {
		a.telemetry.WriteSensorReading(r.SensorID, string(r.Kind), r.Value)
	}

	if a.publisher != nil && e.spec.Republish {
		payload, err := json.Marshal(shimReading{
			Value:     r.Value,
			Unit:      r.Unit,
			Timestamp: r.Timestamp,
		})
		if err == nil {
			topic := mqtt.Topics{}.SensorState(r.SensorID)
			if err := a.publisher.Publish(topic, payload, a.qos, false); err != nil {
				a.logger.Debug("republishing reading failed", "sensor_id", r.SensorID, "error", err)
			}
		}
	}
}

// Latest returns the most recent reading for a sensor and whether it is
// fresh (valid and younger than the sensor's staleness window).
func (a *Aggregator) Latest(id string) (Reading, bool, error) {
	e, ok := a.byID[id]
	if !ok {
		return Reading{}, false, fmt.Errorf("%w: %s", ErrUnknownSensor, id)
	}

	a.mu.RLock()
	r, have := a.readings[id]
	a.mu.RUnlock()

	if !have {
		return Reading{SensorID: id, Kind: e.spec.Kind, Valid: false}, false, nil
	}

	fresh := r.Valid && r.Age(a.now()) <= a.staleness(e)
	if a.instruments != nil {
		a.instruments.SetStale(id, !fresh)
	}
	return r, fresh, nil
}

// Snapshot returns every sensor's latest reading with freshness
// evaluated, for the operator API.
func (a *Aggregator) Snapshot() []Status {
	now := a.now()

	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]Status, 0, len(a.entries))
	for _, e := range a.entries {
		id := e.spec.Source.ID()
		r, have := a.readings[id]
		if !have {
			r = Reading{SensorID: id, Kind: e.spec.Kind, PlantID: e.spec.PlantID, Valid: false}
		}
		out = append(out, Status{
			Reading: r,
			Fresh:   have && r.Valid && r.Age(now) <= a.staleness(e),
		})
	}
	return out
}

// KindValue returns the value of the first configured sensor of the
// given kind and whether that value is usable (valid and fresh).
//
// The safety supervisor consumes this for battery voltage and water
// level; a garden carries exactly one of each.
func (a *Aggregator) KindValue(kind Kind) (float64, bool) {
	for _, e := range a.entries {
		if e.spec.Kind != kind {
			continue
		}
		r, fresh, err := a.Latest(e.spec.Source.ID())
		if err != nil {
			return 0, false
		}
		return r.Value, fresh
	}
	return 0, false
}

// MoistureForPlant returns the soil moisture reading linked to a plant
// and its freshness. ok is false when the plant has no moisture sensor.
func (a *Aggregator) MoistureForPlant(plantID string) (Reading, bool, bool) {
	for _, e := range a.entries {
		if e.spec.Kind != KindSoilMoisture || e.spec.PlantID != plantID {
			continue
		}
		r, fresh, err := a.Latest(e.spec.Source.ID())
		if err != nil {
			return Reading{}, false, false
		}
		return r, fresh, true
	}
	return Reading{}, false, false
}

// staleness returns the effective freshness window for an entry.
func (a *Aggregator) staleness(e *entry) time.Duration {
	if e.spec.Staleness > 0 {
		return e.spec.Staleness
	}
	return a.defaultStaleness
}
