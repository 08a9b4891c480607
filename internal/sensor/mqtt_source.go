package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/willowmere/gardener-core/internal/infrastructure/mqtt"
)

// shimReading is the JSON payload a hardware shim publishes on
// gardener/sensor/{id}/state.
type shimReading struct {
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// Subscriber is the slice of the MQTT client the source needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// MQTTSource reads values published by a hardware shim.
//
// The shim pushes readings on its own cadence; the source caches the
// last message and Read returns the cache. A cache older than maxAge
// fails the read, which is how a silent shim surfaces as a sensor
// failure rather than a frozen value.
type MQTTSource struct {
	id     string
	maxAge time.Duration

	mu         sync.RWMutex
	last       shimReading
	receivedAt time.Time
}

// NewMQTTSource creates a source fed by the shim's reading topic.
// maxAge bounds how old a cached message may be before reads fail;
// it normally equals the sensor's staleness window.
func NewMQTTSource(id string, maxAge time.Duration, sub Subscriber, qos byte) (*MQTTSource, error) {
	s := &MQTTSource{
		id:     id,
		maxAge: maxAge,
	}

	topic := mqtt.Topics{}.SensorState(id)
	if err := sub.Subscribe(topic, qos, s.handleMessage); err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}

	return s, nil
}

// ID returns the sensor identifier.
func (s *MQTTSource) ID() string { return s.id }

// handleMessage caches an incoming shim reading.
func (s *MQTTSource) handleMessage(_ string, payload []byte) error {
	var msg shimReading
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decoding reading for %s: %w", s.id, err)
	}

	s.mu.Lock()
	s.last = msg
	s.receivedAt = time.Now()
	s.mu.Unlock()

	return nil
}

// Read returns the last cached shim reading.
//
// It fails with ErrNoData when nothing has arrived yet, and with
// ErrReadTimeout when the cache has outlived maxAge.
func (s *MQTTSource) Read(ctx context.Context) (float64, string, error) {
	if err := ctx.Err(); err != nil {
		return 0, "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.receivedAt.IsZero() {
		return 0, "", fmt.Errorf("%w: %s", ErrNoData, s.id)
	}
	if age := time.Since(s.receivedAt); age > s.maxAge {
		return 0, "", fmt.Errorf("%w: %s last message %s ago", ErrReadTimeout, s.id, age.Round(time.Second))
	}

	return s.last.Value, s.last.Unit, nil
}
