package actuator

import (
	"context"
	"fmt"
	"sync"
)

// SimDriver is an in-memory actuator for diagnostics and tests.
//
// It tracks active state and the last command, and can inject failures
// and delays to script executor scenarios.
type SimDriver struct {
	id    string
	class Class

	mu       sync.Mutex
	active   bool
	last     Command
	starts   int
	stops    int
	startErr error
	stopErr  error
}

// NewSimDriver creates a simulated actuator.
func NewSimDriver(id string, class Class) *SimDriver {
	return &SimDriver{id: id, class: class}
}

// ID returns the actuator identifier.
func (d *SimDriver) ID() string { return d.id }

// Class returns the actuator class.
func (d *SimDriver) Class() Class { return d.class }

// Start marks the actuator active.
func (d *SimDriver) Start(ctx context.Context, cmd Command) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s", ErrTimeout, d.id)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.startErr != nil {
		return d.startErr
	}
	if d.active {
		return fmt.Errorf("%w: %s", ErrAlreadyActive, d.id)
	}
	d.active = true
	d.last = cmd
	d.starts++
	return nil
}

// Stop marks the actuator idle. Stopping an idle actuator is a no-op;
// the executor stops defensively on every exit path.
func (d *SimDriver) Stop(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s", ErrTimeout, d.id)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopErr != nil {
		return d.stopErr
	}
	d.active = false
	d.stops++
	return nil
}

// Active reports whether the actuator is running.
func (d *SimDriver) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// LastCommand returns the most recent Start command.
func (d *SimDriver) LastCommand() Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Counts returns how many starts and stops have been issued.
func (d *SimDriver) Counts() (starts, stops int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.starts, d.stops
}

// FailStarts makes subsequent Start calls fail with err; nil restores
// normal operation.
func (d *SimDriver) FailStarts(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.startErr = err
}

// FailStops makes subsequent Stop calls fail with err.
func (d *SimDriver) FailStops(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopErr = err
}
