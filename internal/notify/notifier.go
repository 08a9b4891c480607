package notify

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/willowmere/gardener-core/internal/infrastructure/mqtt"
)

// Severity classifies an event for operator triage.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event types emitted by the control core.
const (
	TypeWatering      = "watering"
	TypePlantCritical = "plant_critical"
	TypeCareFailed    = "care_failed"
	TypeStaleDeferral = "stale_deferral"
	TypeBatteryLow    = "battery_low"
	TypeEmergencyStop = "emergency_stop"
	TypeModeChange    = "mode_change"
	TypeSafety        = "safety"
	TypeDailySummary  = "daily_summary"
)

// Event is one operator-facing notification.
type Event struct {
	Type     string   `json:"type"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`

	// Target is the plant, station, or sensor the event concerns.
	Target string `json:"target,omitempty"`

	// Fields carries structured detail (volumes, counts, readings).
	Fields map[string]any `json:"fields,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Sink receives every event. Deliver must not block; sinks that fan
// out further (the WebSocket hub) buffer internally.
type Sink interface {
	Deliver(e Event)
}

// Publisher publishes events onto the MQTT bus.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// Logger defines the logging interface used by the Notifier.
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

// Notifier is the event fan-out hub.
//
// Publish enqueues onto a buffered channel; Run drains it and delivers
// to the log, the MQTT event topic, and registered sinks. A full
// channel drops the event and counts it.
type Notifier struct {
	events  chan Event
	dropped atomic.Uint64

	mu    sync.RWMutex
	sinks []Sink

	publisher Publisher
	qos       byte

	logger Logger
	now    func() time.Time
}

// New creates a Notifier.
func New() *Notifier {
	return &Notifier{
		events: make(chan Event, 128),
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger for the notifier.
func (n *Notifier) SetLogger(logger Logger) {
	n.logger = logger
}

// SetPublisher attaches the MQTT publisher for the event topic.
func (n *Notifier) SetPublisher(p Publisher, qos byte) {
	n.publisher = p
	n.qos = qos
}

// AddSink registers an additional delivery target.
func (n *Notifier) AddSink(s Sink) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sinks = append(n.sinks, s)
}

// Publish enqueues an event for delivery. Never blocks; on overflow
// the event is dropped and counted.
func (n *Notifier) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = n.now()
	}
	if e.Severity == "" {
		e.Severity = SeverityInfo
	}

	select {
	case n.events <- e:
	default:
		n.dropped.Add(1)
	}
}

// Dropped returns how many events overflowed the fan-out buffer.
func (n *Notifier) Dropped() uint64 {
	return n.dropped.Load()
}

// Run drains the event channel until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-n.events:
			n.deliver(e)
		}
	}
}

// deliver fans one event out to every target.
func (n *Notifier) deliver(e Event) {
	logArgs := []any{"type", e.Type, "target", e.Target, "message", e.Message}
	switch e.Severity {
	case SeverityCritical:
		n.logger.Error("event", logArgs...)
	case SeverityWarning:
		n.logger.Warn("event", logArgs...)
	default:
		n.logger.Info("event", logArgs...)
	}

	if n.publisher != nil && n.publisher.IsConnected() {
		if payload, err := json.Marshal(e); err == nil {
			topic := mqtt.Topics{}.Event(e.Type)
			if err := n.publisher.Publish(topic, payload, n.qos, false); err != nil {
				n.logger.Debug("event publish failed", "type", e.Type, "error", err)
			}
		}
	}

	n.mu.RLock()
	sinks := n.sinks
	n.mu.RUnlock()
	for _, s := range sinks {
		s.Deliver(e)
	}
}
