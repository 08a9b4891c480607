// Package safety implements the safety supervisor: the single gate
// every proposed actuator command must pass before it reaches hardware.
//
// The supervisor evaluates a fixed, ordered rule set (emergency-stop
// latch, battery, water level, pump runtime cap, motor timeout) and
// returns Allow, Deny, or a Substitute carrying a safer command. It is
// the sole owner of the interlock state and the only component that
// mutates it; everything else reads copies.
//
// The emergency-stop latch is sticky: once engaged it stays engaged
// until an explicit operator reset, never on its own.
package safety
