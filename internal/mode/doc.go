// Package mode implements the operating-mode state machine arbitrating
// between Autonomous, Manual, Diagnostic, and EmergencyStop.
//
// Exactly one mode is active at a time and every transition is an
// explicit event. EmergencyStop is reachable from every state and is
// never rejected; leaving it requires an operator reset into
// Diagnostic, and Autonomous is only reachable from Diagnostic after a
// passed self-check. A cold start never begins in Autonomous.
package mode
