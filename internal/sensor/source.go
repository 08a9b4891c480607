package sensor

import (
	"context"
	"sync"
	"time"
)

// Source is an abstracted sensor device.
//
// Read returns the current value and unit, or an error when the device
// cannot answer. Implementations must honour ctx cancellation; the
// aggregator applies a per-read timeout around every call.
type Source interface {
	ID() string
	Read(ctx context.Context) (value float64, unit string, err error)
}

// Spec binds a Source to its configuration within the aggregator.
type Spec struct {
	Source  Source
	Kind    Kind
	PlantID string

	// Staleness overrides the aggregator default when positive.
	Staleness time.Duration

	// Republish causes valid readings to be published on the MQTT
	// sensor state topic. Set for local (sim) sources only; readings
	// that arrived over MQTT are never echoed back.
	Republish bool
}

// SimSource is a deterministic synthetic sensor for diagnostics and
// tests. The value can be changed at runtime to script scenarios.
type SimSource struct {
	id   string
	unit string

	mu    sync.RWMutex
	value float64
	err   error
}

// NewSimSource creates a simulated source returning a fixed value.
func NewSimSource(id string, kind Kind, value float64) *SimSource {
	return &SimSource{
		id:    id,
		unit:  kind.Unit(),
		value: value,
	}
}

// ID returns the sensor identifier.
func (s *SimSource) ID() string { return s.id }

// Read returns the current simulated value, or the injected error.
func (s *SimSource) Read(ctx context.Context) (float64, string, error) {
	if err := ctx.Err(); err != nil {
		return 0, "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return 0, "", s.err
	}
	return s.value, s.unit, nil
}

// SetValue changes the simulated value.
func (s *SimSource) SetValue(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = v
}

// SetError makes subsequent reads fail with err; nil restores normal
// operation.
func (s *SimSource) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}
