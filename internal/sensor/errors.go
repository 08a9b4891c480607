package sensor

import "errors"

// Sentinel errors for sensor operations.
var (
	// ErrUnknownSensor indicates a query for a sensor ID that is not
	// configured.
	ErrUnknownSensor = errors.New("sensor: unknown sensor")

	// ErrReadTimeout indicates a source did not answer within the
	// per-read timeout.
	ErrReadTimeout = errors.New("sensor: read timeout")

	// ErrOutOfRange indicates a source returned a value outside the
	// physically plausible range for its kind.
	ErrOutOfRange = errors.New("sensor: value out of range")

	// ErrNoData indicates a source has not produced any value yet.
	ErrNoData = errors.New("sensor: no data")
)
