package brain

import "github.com/willowmere/gardener-core/internal/infrastructure/config"

// Strategy adjusts a plant's low-threshold multiplier from the observed
// moisture response to a completed watering. Adjust returns the new
// multiplier and whether it changed; it never transitions plant state.
type Strategy interface {
	Adjust(current float64, responseDelta float64) (multiplier float64, changed bool)
}

// Moisture-response band the multiplicative strategy steers toward.
// A watering that raises soil moisture less than weakResponsePts means
// the plant dries out faster than the thresholds assume; more than
// strongResponsePts means watering starts later than it needs to.
const (
	weakResponsePts   = 5.0
	strongResponsePts = 20.0
)

// MultiplicativeStrategy nudges the multiplier by a fixed rate per
// observation and clamps it to the configured band.
type MultiplicativeStrategy struct {
	rate float64
	min  float64
	max  float64
}

// NewMultiplicativeStrategy creates the default adaptation strategy.
func NewMultiplicativeStrategy(cfg config.AdaptationConfig) *MultiplicativeStrategy {
	return &MultiplicativeStrategy{
		rate: cfg.Rate,
		min:  cfg.MinMultiplier,
		max:  cfg.MaxMultiplier,
	}
}

// Adjust raises the multiplier (watering starts earlier) on a weak
// response and lowers it (watering starts later) on a strong one.
func (s *MultiplicativeStrategy) Adjust(current, responseDelta float64) (float64, bool) {
	if current <= 0 {
		current = 1.0
	}

	next := current
	switch {
	case responseDelta < weakResponsePts:
		next = current * (1 + s.rate)
	case responseDelta > strongResponsePts:
		next = current * (1 - s.rate)
	}

	if next > s.max {
		next = s.max
	}
	if next < s.min {
		next = s.min
	}
	return next, next != current
}
