package mode

import (
	"errors"
	"fmt"
	"sync"
)

// Mode is an operating mode of the robot.
type Mode string

const (
	// Autonomous runs the garden brain's decision loop.
	Autonomous Mode = "autonomous"

	// Manual accepts operator commands, wrapped as elevated-priority
	// tasks that still pass the safety supervisor.
	Manual Mode = "manual"

	// Diagnostic accepts only synthetic test commands and suppresses
	// brain tasks. The boot self-check runs here.
	Diagnostic Mode = "diagnostic"

	// EmergencyStop halts everything. Entered from any state, left only
	// via an explicit reset.
	EmergencyStop Mode = "emergency_stop"
)

// AllModes returns every valid operating mode.
func AllModes() []Mode {
	return []Mode{Autonomous, Manual, Diagnostic, EmergencyStop}
}

// Valid reports whether m is a member of the closed mode set.
func (m Mode) Valid() bool {
	switch m {
	case Autonomous, Manual, Diagnostic, EmergencyStop:
		return true
	}
	return false
}

// Sentinel errors for mode transitions.
var (
	// ErrInvalidMode indicates a mode string outside the closed set.
	ErrInvalidMode = errors.New("mode: invalid mode")

	// ErrInvalidTransition indicates a transition the state machine
	// forbids.
	ErrInvalidTransition = errors.New("mode: invalid transition")

	// ErrSelfCheckRequired indicates Autonomous was requested before a
	// diagnostic self-check passed.
	ErrSelfCheckRequired = errors.New("mode: self-check must pass before autonomous")
)

// Observer is invoked after every completed transition.
type Observer func(from, to Mode, reason string)

// Machine is the operating-mode state machine.
// All methods are safe for concurrent use.
type Machine struct {
	mu          sync.Mutex
	current     Mode
	selfCheckOK bool
	observers   []Observer
}

// NewMachine creates a Machine in the given initial mode.
// Autonomous is rejected: a cold start must prove itself through
// Diagnostic or be driven manually.
func NewMachine(initial Mode) (*Machine, error) {
	if !initial.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, initial)
	}
	if initial == Autonomous {
		return nil, fmt.Errorf("%w: autonomous is not a valid initial mode", ErrInvalidTransition)
	}
	return &Machine{current: initial}, nil
}

// Current returns the active mode.
func (m *Machine) Current() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Observe registers an observer for completed transitions.
// Observers are called synchronously outside the machine's lock.
func (m *Machine) Observe(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// SetSelfCheckResult records the outcome of the most recent diagnostic
// self-check. A pass gates the Diagnostic to Autonomous transition; the
// gate is consumed state, not history, so a later failed check closes
// it again.
func (m *Machine) SetSelfCheckResult(passed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selfCheckOK = passed
}

// SelfCheckPassed reports whether the most recent self-check passed.
func (m *Machine) SelfCheckPassed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selfCheckOK
}

// Transition moves the machine to a new mode.
//
// Rules:
//   - any state -> EmergencyStop: always allowed, never rejected.
//   - EmergencyStop -> Diagnostic: the only exit, an explicit reset.
//   - Diagnostic -> Autonomous: only with a passed self-check.
//   - Manual -> Autonomous: forbidden; must pass through Diagnostic.
//   - Diagnostic <-> Manual, Autonomous -> Manual/Diagnostic: allowed.
//
// A transition to the current mode is a no-op and notifies nobody.
func (m *Machine) Transition(to Mode, reason string) error {
	if !to.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, to)
	}

	m.mu.Lock()
	from := m.current

	if from == to {
		m.mu.Unlock()
		return nil
	}

	if err := m.checkLocked(from, to); err != nil {
		m.mu.Unlock()
		return err
	}

	m.current = to
	if to == EmergencyStop {
		// Leaving e-stop re-enters Diagnostic; the self-check must be
		// re-run before Autonomous is reachable again.
		m.selfCheckOK = false
	}
	observers := make([]Observer, len(m.observers))
	copy(observers, m.observers)
	m.mu.Unlock()

	for _, o := range observers {
		o(from, to, reason)
	}
	return nil
}

// checkLocked enforces the transition rules.
func (m *Machine) checkLocked(from, to Mode) error {
	// E-stop entry is never rejected.
	if to == EmergencyStop {
		return nil
	}

	// E-stop exit: only into Diagnostic.
	if from == EmergencyStop {
		if to != Diagnostic {
			return fmt.Errorf("%w: %s -> %s (reset leads to diagnostic)", ErrInvalidTransition, from, to)
		}
		return nil
	}

	if to == Autonomous {
		if from != Diagnostic {
			return fmt.Errorf("%w: %s -> autonomous (only reachable from diagnostic)", ErrInvalidTransition, from)
		}
		if !m.selfCheckOK {
			return ErrSelfCheckRequired
		}
		return nil
	}

	// Remaining pairs (autonomous/manual/diagnostic to manual or
	// diagnostic) are operator choices and always allowed.
	return nil
}
