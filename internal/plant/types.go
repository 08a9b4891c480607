package plant

import (
	"time"

	"github.com/willowmere/gardener-core/internal/garden"
)

// CareState is a plant's position in the care lifecycle.
type CareState string

const (
	// StateHealthy means moisture is at or above the low threshold.
	StateHealthy CareState = "healthy"

	// StateNeedsWater means moisture fell below the low threshold or the
	// watering schedule is overdue.
	StateNeedsWater CareState = "needs_water"

	// StateWatering means a watering task for this plant is executing.
	StateWatering CareState = "watering"

	// StateCritical means moisture fell below the critical threshold;
	// care tasks are escalated.
	StateCritical CareState = "critical"

	// StateCareFailed is terminal: repeated watering failures exhausted
	// the retry budget. Requires an explicit operator reset.
	StateCareFailed CareState = "care_failed"
)

// AllCareStates returns every valid care state.
func AllCareStates() []CareState {
	return []CareState{
		StateHealthy,
		StateNeedsWater,
		StateWatering,
		StateCritical,
		StateCareFailed,
	}
}

// Valid reports whether s is a member of the closed care-state set.
func (s CareState) Valid() bool {
	switch s {
	case StateHealthy, StateNeedsWater, StateWatering, StateCritical, StateCareFailed:
		return true
	}
	return false
}

// Schedule is a plant's watering frequency class.
type Schedule string

const (
	ScheduleDaily      Schedule = "daily"
	ScheduleTwiceDaily Schedule = "twice_daily"
)

// Interval returns the maximum gap between waterings for the class.
func (s Schedule) Interval() time.Duration {
	if s == ScheduleTwiceDaily {
		return 12 * time.Hour
	}
	return 24 * time.Hour
}

// Thresholds are soil moisture percentages satisfying
// 0 <= Critical < Low < Optimal <= 100.
type Thresholds struct {
	Critical float64 `json:"critical"`
	Low      float64 `json:"low"`
	Optimal  float64 `json:"optimal"`
}

// Plant is one plant in the garden.
//
// Identity fields are immutable after configuration load; care fields
// mutate only through Registry methods.
type Plant struct {
	// Identity (immutable)
	ID       string       `json:"id"`
	Species  string       `json:"species"`
	Location garden.Point `json:"location"`
	Moisture Thresholds   `json:"moisture"`
	Schedule Schedule     `json:"schedule"`

	// Care state (mutable, registry-owned)
	State               CareState `json:"state"`
	LastWatered         time.Time `json:"last_watered,omitzero"`
	TotalVolumeML       float64   `json:"total_volume_ml"`
	ConsecutiveFailures int       `json:"consecutive_failures"`

	// ThresholdMultiplier scales the low threshold when adaptation is
	// enabled; 1.0 when disabled. Bounded by the configured band.
	ThresholdMultiplier float64 `json:"threshold_multiplier"`
}

// EffectiveLow returns the low threshold after adaptation.
func (p *Plant) EffectiveLow() float64 {
	if p.ThresholdMultiplier <= 0 {
		return p.Moisture.Low
	}
	return p.Moisture.Low * p.ThresholdMultiplier
}

// Overdue reports whether the plant's schedule has lapsed at the given
// time. A never-watered plant is not overdue; moisture drives the first
// watering.
func (p *Plant) Overdue(now time.Time) bool {
	if p.LastWatered.IsZero() {
		return false
	}
	return now.Sub(p.LastWatered) > p.Schedule.Interval()
}

// DeepCopy creates a complete independent copy of the Plant.
// Plant currently holds only value fields, but going through DeepCopy
// keeps cache isolation uniform with the rest of the codebase.
func (p *Plant) DeepCopy() *Plant {
	if p == nil {
		return nil
	}
	cpy := *p
	return &cpy
}
