// Package sensor implements the sensor aggregator: it polls abstracted
// sensor sources on a fixed interval, validates and timestamps readings,
// and exposes the latest-known state per sensor with staleness detection.
//
// The aggregator performs no retries of its own. A failed read keeps the
// previous reading in place; staleness is evaluated at query time, so a
// sensor that stops answering naturally degrades to stale. Each source is
// wrapped in a circuit breaker so a wedged device fails fast instead of
// burning the poll budget on timeouts.
//
// Callers must check the freshness flag before acting on a reading. The
// garden brain defers decisions on stale moisture readings; the safety
// supervisor treats staleness of battery and water-level sensors as an
// interlock condition in its own right.
package sensor
