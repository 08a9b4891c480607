package plant

import "errors"

// Sentinel errors for plant operations.
var (
	// ErrNotFound indicates the requested plant does not exist.
	ErrNotFound = errors.New("plant: not found")

	// ErrInvalidState indicates a care state string outside the closed set.
	ErrInvalidState = errors.New("plant: invalid care state")

	// ErrNotCareFailed indicates a reset was attempted on a plant that is
	// not in the care-failed state.
	ErrNotCareFailed = errors.New("plant: not in care-failed state")
)
