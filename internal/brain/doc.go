// Package brain is the decision engine: each cycle it compares fresh
// soil-moisture readings and watering schedules against per-plant
// thresholds, transitions care states, and emits prioritized watering
// tasks. It also consumes task outcome reports, runs the optional
// threshold-adaptation strategy, dispatches patrol rounds when idle,
// and emits the daily care summary.
//
// The brain only ever proposes work. Every task it submits still
// passes the safety supervisor at dispatch, and nothing the brain does
// touches an actuator directly.
package brain
