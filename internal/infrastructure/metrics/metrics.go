package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// namespace prefixes every metric exported by the core.
const namespace = "gardener"

// Metrics holds the Prometheus instruments for the control core.
//
// A Metrics value owns its own registry, so independent instances can
// coexist (one per core in tests). Instruments are incremented by the
// owning subsystems; the API server mounts Handler() at /metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Decision loop
	DecisionCycles   prometheus.Counter
	DecisionDuration prometheus.Histogram

	// Task lifecycle
	TasksEnqueued prometheus.Counter
	TaskOutcomes  *prometheus.CounterVec

	// Safety supervisor
	SafetyVerdicts  *prometheus.CounterVec
	EStopEngaged    prometheus.Gauge
	PumpWindowUsedS prometheus.Gauge

	// Sensor aggregator
	SensorReadFailures *prometheus.CounterVec
	SensorStale        *prometheus.GaugeVec
	BatteryVoltage     prometheus.Gauge

	// Plant population
	PlantsByState *prometheus.GaugeVec

	// Mode machine
	ModeTransitions *prometheus.CounterVec

	// Operator surface
	WSClients prometheus.Gauge
}

// New creates a Metrics instance with all instruments registered on a
// fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		DecisionCycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decision_cycles_total",
			Help:      "Number of decision cycles executed.",
		}),
		DecisionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decision_cycle_duration_seconds",
			Help:      "Wall-clock duration of each decision cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),

		TasksEnqueued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_enqueued_total",
			Help:      "Number of care tasks enqueued by the brain.",
		}),
		TaskOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_outcomes_total",
			Help:      "Task completions by action and outcome.",
		}, []string{"action", "outcome"}),

		SafetyVerdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "safety_verdicts_total",
			Help:      "Safety supervisor verdicts by decision and rule.",
		}, []string{"decision", "rule"}),
		EStopEngaged: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "estop_engaged",
			Help:      "1 while the emergency stop latch is engaged.",
		}),
		PumpWindowUsedS: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pump_window_used_seconds",
			Help:      "Pump runtime consumed in the current rolling window.",
		}),

		SensorReadFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_read_failures_total",
			Help:      "Failed sensor reads by sensor ID.",
		}, []string{"sensor_id"}),
		SensorStale: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensor_stale",
			Help:      "1 while the sensor's last reading is older than the staleness window.",
		}, []string{"sensor_id"}),
		BatteryVoltage: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "battery_voltage",
			Help:      "Last valid battery voltage reading.",
		}),

		PlantsByState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "plants_by_state",
			Help:      "Number of plants currently in each care state.",
		}, []string{"state"}),

		ModeTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mode_transitions_total",
			Help:      "Operating mode transitions by source and target mode.",
		}, []string{"from", "to"}),

		WSClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Currently connected WebSocket clients.",
		}),
	}
}

// Handler returns an http.Handler serving the registry in Prometheus
// text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
