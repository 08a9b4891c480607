// Package plant holds the plant catalog and per-plant care state.
//
// The registry is built once from configuration at boot; identity fields
// (ID, species, location, thresholds, schedule) are immutable thereafter,
// while care fields (state, last-watered, cumulative volume, failure
// count, adapted threshold multiplier) mutate through registry methods
// only. All reads return deep copies so callers can never corrupt the
// cache.
//
// The care history repository persists one row per executed watering run
// to SQLite for operator queries and long-term pruning.
package plant
