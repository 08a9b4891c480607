package plant

import (
	"fmt"
	"sync"
	"time"

	"github.com/willowmere/gardener-core/internal/garden"
	"github.com/willowmere/gardener-core/internal/infrastructure/config"
)

// Registry holds every configured plant and owns all care-state
// mutation. It is the garden brain's single write path; every other
// component reads deep copies.
//
// All public methods are thread-safe.
type Registry struct {
	mu     sync.RWMutex
	plants map[string]*Plant

	// order preserves configuration order for stable iteration.
	order []string
}

// NewRegistry builds a Registry from configuration.
//
// Config validation has already enforced unique IDs, threshold ordering,
// and known schedule classes; the registry trusts its input and only
// guards against an empty catalog.
func NewRegistry(cfgs []config.PlantConfig) (*Registry, error) {
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("plant registry: no plants configured")
	}

	r := &Registry{
		plants: make(map[string]*Plant, len(cfgs)),
		order:  make([]string, 0, len(cfgs)),
	}

	for _, c := range cfgs {
		r.plants[c.ID] = &Plant{
			ID:       c.ID,
			Species:  c.Species,
			Location: garden.Point{X: c.Location.X, Y: c.Location.Y},
			Moisture: Thresholds{
				Critical: c.Moisture.Critical,
				Low:      c.Moisture.Low,
				Optimal:  c.Moisture.Optimal,
			},
			Schedule:            Schedule(c.Schedule),
			State:               StateHealthy,
			ThresholdMultiplier: 1.0,
		}
		r.order = append(r.order, c.ID)
	}

	return r, nil
}

// Get retrieves a plant by ID. The returned plant is a deep copy.
func (r *Registry) Get(id string) (*Plant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.plants[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p.DeepCopy(), nil
}

// List returns all plants in configuration order as deep copies.
func (r *Registry) List() []Plant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Plant, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.plants[id].DeepCopy())
	}
	return out
}

// Len returns the number of plants in the registry.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plants)
}

// SetState transitions a plant to the given care state.
func (r *Registry) SetState(id string, state CareState) error {
	if !state.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidState, state)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.plants[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	p.State = state
	return nil
}

// RecordWatering updates a plant's care fields after water was
// delivered: last-watered timestamp, cumulative volume, and a cleared
// failure count.
func (r *Registry) RecordWatering(id string, volumeML float64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.plants[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	p.LastWatered = at
	p.TotalVolumeML += volumeML
	p.ConsecutiveFailures = 0
	return nil
}

// RecordFailure increments a plant's consecutive-failure count and
// returns the new count.
func (r *Registry) RecordFailure(id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.plants[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	p.ConsecutiveFailures++
	return p.ConsecutiveFailures, nil
}

// SetThresholdMultiplier stores the adapted threshold multiplier.
// Band clamping is the adaptation strategy's responsibility; the
// registry only rejects nonsense.
func (r *Registry) SetThresholdMultiplier(id string, m float64) error {
	if m <= 0 {
		return fmt.Errorf("plant registry: multiplier %v must be positive", m)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.plants[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	p.ThresholdMultiplier = m
	return nil
}

// Reset returns a care-failed plant to needs-water with a cleared
// failure count. It is the only exit from StateCareFailed and is driven
// by an explicit operator action, never automatically.
func (r *Registry) Reset(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.plants[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if p.State != StateCareFailed {
		return fmt.Errorf("%w: %s is %s", ErrNotCareFailed, id, p.State)
	}
	p.State = StateNeedsWater
	p.ConsecutiveFailures = 0
	return nil
}

// CountByState returns the number of plants in each care state.
// States with zero plants are included so gauges reset correctly.
func (r *Registry) CountByState() map[CareState]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[CareState]int, len(AllCareStates()))
	for _, s := range AllCareStates() {
		counts[s] = 0
	}
	for _, p := range r.plants {
		counts[p.State]++
	}
	return counts
}
