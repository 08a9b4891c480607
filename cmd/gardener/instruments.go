package main

import (
	"github.com/willowmere/gardener-core/internal/infrastructure/metrics"
)

// The control packages each declare a small Instruments interface so
// they stay decoupled from Prometheus. These adapters bridge those
// interfaces onto the shared metrics registry.

// sensorInstruments feeds the aggregator's read failures and staleness
// flags into the registry.
type sensorInstruments struct {
	m *metrics.Metrics
}

func (i sensorInstruments) ObserveReadFailure(sensorID string) {
	i.m.SensorReadFailures.WithLabelValues(sensorID).Inc()
}

func (i sensorInstruments) SetStale(sensorID string, stale bool) {
	v := 0.0
	if stale {
		v = 1.0
	}
	i.m.SensorStale.WithLabelValues(sensorID).Set(v)
}

func (i sensorInstruments) SetBatteryVoltage(v float64) {
	i.m.BatteryVoltage.Set(v)
}

// safetyInstruments feeds supervisor verdicts and the e-stop latch
// state into the registry.
type safetyInstruments struct {
	m *metrics.Metrics
}

func (i safetyInstruments) ObserveVerdict(decision, rule string) {
	i.m.SafetyVerdicts.WithLabelValues(decision, rule).Inc()
}

func (i safetyInstruments) SetEStop(engaged bool) {
	v := 0.0
	if engaged {
		v = 1.0
	}
	i.m.EStopEngaged.Set(v)
}

func (i safetyInstruments) SetPumpWindowUsed(seconds float64) {
	i.m.PumpWindowUsedS.Set(seconds)
}

// taskInstruments counts enqueued tasks and their outcomes.
type taskInstruments struct {
	m *metrics.Metrics
}

func (i taskInstruments) IncEnqueued() {
	i.m.TasksEnqueued.Inc()
}

func (i taskInstruments) IncOutcome(kind, outcome string) {
	i.m.TaskOutcomes.WithLabelValues(kind, outcome).Inc()
}

// brainInstruments tracks decision cycles and the plant population.
type brainInstruments struct {
	m *metrics.Metrics
}

func (i brainInstruments) IncCycle() {
	i.m.DecisionCycles.Inc()
}

func (i brainInstruments) ObserveCycle(seconds float64) {
	i.m.DecisionDuration.Observe(seconds)
}

func (i brainInstruments) SetPlantsByState(state string, count float64) {
	i.m.PlantsByState.WithLabelValues(state).Set(count)
}

// apiInstruments tracks the WebSocket client gauge.
type apiInstruments struct {
	m *metrics.Metrics
}

func (i apiInstruments) SetWSClients(v float64) {
	i.m.WSClients.Set(v)
}
