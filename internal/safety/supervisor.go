package safety

import (
	"fmt"
	"sync"
	"time"

	"github.com/willowmere/gardener-core/internal/infrastructure/config"
	"github.com/willowmere/gardener-core/internal/sensor"
)

// Readings is the slice of the sensor aggregator the supervisor needs:
// the latest value per kind with its usability (valid and fresh).
type Readings interface {
	KindValue(kind sensor.Kind) (float64, bool)
}

// Logger defines the logging interface used by the Supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Recorder receives every Deny and Substitute as a safety event.
type Recorder interface {
	RecordSafetyEvent(decision, rule, target, reason string)
}

// Instruments is the metrics surface the supervisor feeds.
type Instruments interface {
	ObserveVerdict(decision, rule string)
	SetEStop(engaged bool)
	SetPumpWindowUsed(seconds float64)
}

// Supervisor evaluates hard interlocks against every proposed actuator
// command. All methods are safe for concurrent use.
type Supervisor struct {
	cfg      config.SafetyConfig
	readings Readings

	mu         sync.Mutex
	interlocks InterlockState

	// Emergency-stop latch. Sticky until ResetEStop.
	estopReason  string
	estopLatched bool

	// Pump activation window accounting. usedRuntime accumulates pump
	// runtime reported by the executor; the window resets after
	// PumpWindow of pump idleness.
	usedRuntime  time.Duration
	lastPumpStop time.Time

	// Drivetrain continuous-activity tracking.
	motorActiveSince time.Time

	logger      Logger
	recorder    Recorder
	instruments Instruments

	now func() time.Time
}

// NewSupervisor creates a Supervisor with the given limits and reading
// source.
func NewSupervisor(cfg config.SafetyConfig, readings Readings) *Supervisor {
	return &Supervisor{
		cfg:      cfg,
		readings: readings,
		logger:   noopLogger{},
		now:      time.Now,
	}
}

// SetLogger sets the logger for the supervisor.
func (s *Supervisor) SetLogger(logger Logger) {
	s.logger = logger
}

// SetRecorder attaches the safety event recorder (audit + notifier).
func (s *Supervisor) SetRecorder(r Recorder) {
	s.recorder = r
}

// SetInstruments attaches metrics instruments.
func (s *Supervisor) SetInstruments(in Instruments) {
	s.instruments = in
}

// Evaluate rules on a proposed command.
//
// Rules run in a fixed order, first match wins:
//
//  1. E-stop latched: deny everything except Reset.
//  2. Battery invalid/stale/below shutdown: deny motor and pump
//     commands; Stop passes.
//  3. Watering with water level invalid/stale/below minimum: deny.
//  4. Watering that would exceed the pump runtime cap: truncate to the
//     remaining allowance (deny when nothing remains).
//  5. Motor continuously active beyond the timeout: substitute a stop.
//  6. Otherwise allow.
//
// Every evaluation refreshes the interlock snapshot against the most
// recent sensor readings available at invocation time.
func (s *Supervisor) Evaluate(cmd Command) Verdict {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.evaluateLocked(cmd)

	if s.instruments != nil {
		s.instruments.ObserveVerdict(string(v.Decision), v.Rule)
	}
	if v.Decision != DecisionAllow {
		s.logger.Warn("safety verdict",
			"decision", v.Decision,
			"rule", v.Rule,
			"action", cmd.Action,
			"target", cmd.Target,
			"reason", v.Reason,
		)
		if s.recorder != nil {
			s.recorder.RecordSafetyEvent(string(v.Decision), v.Rule, cmd.Target, v.Reason)
		}
	}

	return v
}

func (s *Supervisor) evaluateLocked(cmd Command) Verdict {
	now := s.now()
	s.interlocks.EvaluatedAt = now

	// Rule 1: latched emergency stop.
	if s.estopLatched {
		if cmd.Action == ActionReset {
			return Verdict{Decision: DecisionAllow, Rule: RuleNone, Command: cmd}
		}
		return Verdict{
			Decision: DecisionDeny,
			Rule:     RuleEStopLatched,
			Reason:   fmt.Sprintf("emergency stop latched: %s", s.estopReason),
		}
	}

	// Rule 2: battery shutdown. Staleness of the battery sensor is
	// itself an interlock condition; an unknown battery is a low
	// battery.
	voltage, usable := s.readings.KindValue(sensor.KindBatteryVoltage)
	s.interlocks.SensorStale = !usable
	s.interlocks.BatteryLow = !usable || voltage < s.cfg.BatteryShutdownVoltage
	if s.interlocks.BatteryLow && cmd.UsesMotor() {
		reason := fmt.Sprintf("battery %.1fV below shutdown %.1fV", voltage, s.cfg.BatteryShutdownVoltage)
		if !usable {
			reason = "battery reading invalid or stale"
		}
		return Verdict{Decision: DecisionDeny, Rule: RuleBattery, Reason: reason}
	}

	// Rule 3: dry tank. Same treatment for staleness as the battery.
	if cmd.Action == ActionWater {
		level, levelUsable := s.readings.KindValue(sensor.KindWaterLevel)
		s.interlocks.WaterLow = !levelUsable || level < s.cfg.MinWaterLevel
		if s.interlocks.WaterLow {
			reason := fmt.Sprintf("water level %.1f%% below minimum %.1f%%", level, s.cfg.MinWaterLevel)
			if !levelUsable {
				reason = "water level reading invalid or stale"
			}
			return Verdict{Decision: DecisionDeny, Rule: RuleWaterLevel, Reason: reason}
		}
	}

	// Rule 4: pump runtime cap within the activation window. A request
	// beyond the cap is truncated, not denied, so the pump can never
	// dry-run past the limit.
	if cmd.Action == ActionWater {
		duration := cmd.Duration
		if maxRun := time.Duration(s.cfg.MaxWateringTime) * time.Second; duration > maxRun {
			duration = maxRun
		}

		remaining := s.remainingPumpRuntimeLocked(now)
		if remaining <= 0 {
			return Verdict{
				Decision: DecisionDeny,
				Rule:     RulePumpRuntime,
				Reason:   fmt.Sprintf("pump runtime cap %ds exhausted in current window", s.cfg.MaxPumpRuntime),
			}
		}
		if duration > remaining {
			sub := cmd
			sub.Duration = remaining
			return Verdict{
				Decision: DecisionSubstitute,
				Rule:     RulePumpRuntime,
				Reason:   fmt.Sprintf("requested %s truncated to remaining %s of pump window", cmd.Duration, remaining),
				Command:  sub,
			}
		}
		if duration != cmd.Duration {
			sub := cmd
			sub.Duration = duration
			return Verdict{
				Decision: DecisionSubstitute,
				Rule:     RulePumpRuntime,
				Reason:   fmt.Sprintf("requested %s capped at per-run limit %s", cmd.Duration, duration),
				Command:  sub,
			}
		}
	}

	// Rule 5: stalled or runaway drivetrain.
	if cmd.Action == ActionMove && !s.motorActiveSince.IsZero() {
		active := now.Sub(s.motorActiveSince)
		if active > time.Duration(s.cfg.MotorTimeout)*time.Second {
			s.interlocks.MotorTimeout = true
			return Verdict{
				Decision: DecisionSubstitute,
				Rule:     RuleMotorTimeout,
				Reason:   fmt.Sprintf("drivetrain active %s beyond timeout %ds", active.Round(time.Second), s.cfg.MotorTimeout),
				Command:  Command{Action: ActionStop, Origin: cmd.Origin},
			}
		}
	}
	s.interlocks.MotorTimeout = false

	return Verdict{Decision: DecisionAllow, Rule: RuleNone, Command: cmd}
}

// remainingPumpRuntimeLocked returns the unspent pump allowance in the
// current activation window, resetting the window after PumpWindow of
// idleness.
func (s *Supervisor) remainingPumpRuntimeLocked(now time.Time) time.Duration {
	if !s.lastPumpStop.IsZero() && now.Sub(s.lastPumpStop) > time.Duration(s.cfg.PumpWindow)*time.Second {
		s.usedRuntime = 0
	}
	return time.Duration(s.cfg.MaxPumpRuntime)*time.Second - s.usedRuntime
}

// NotePumpRun records actual pump runtime reported by the executor.
func (s *Supervisor) NotePumpRun(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	// Apply any pending window reset before accumulating.
	s.remainingPumpRuntimeLocked(now)
	s.usedRuntime += d
	s.lastPumpStop = now

	if s.instruments != nil {
		s.instruments.SetPumpWindowUsed(s.usedRuntime.Seconds())
	}
}

// NoteMotorStart records the drivetrain becoming active.
func (s *Supervisor) NoteMotorStart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.motorActiveSince.IsZero() {
		s.motorActiveSince = s.now()
	}
}

// NoteMotorStop records the drivetrain going idle.
func (s *Supervisor) NoteMotorStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.motorActiveSince = time.Time{}
	s.interlocks.MotorTimeout = false
}

// LatchEStop engages the emergency-stop latch. Idempotent; the first
// reason wins until reset.
func (s *Supervisor) LatchEStop(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.estopLatched {
		return
	}
	s.estopLatched = true
	s.estopReason = reason
	s.interlocks.EStopLatched = true
	s.interlocks.EvaluatedAt = s.now()

	s.logger.Error("emergency stop latched", "reason", reason)
	if s.instruments != nil {
		s.instruments.SetEStop(true)
	}
	if s.recorder != nil {
		s.recorder.RecordSafetyEvent("latch", RuleEStopLatched, "", reason)
	}
}

// ResetEStop clears the emergency-stop latch and transient interlocks.
// Only an explicit operator action reaches this; the latch never
// auto-clears.
func (s *Supervisor) ResetEStop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.estopLatched = false
	s.estopReason = ""
	s.interlocks = InterlockState{EvaluatedAt: s.now()}

	s.logger.Info("emergency stop reset")
	if s.instruments != nil {
		s.instruments.SetEStop(false)
	}
	if s.recorder != nil {
		s.recorder.RecordSafetyEvent("reset", RuleEStopLatched, "", "operator reset")
	}
}

// EStopLatched reports whether the emergency-stop latch is engaged.
// The executor polls this once per drive tick.
func (s *Supervisor) EStopLatched() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.estopLatched
}

// Interlocks returns a copy of the current interlock state.
func (s *Supervisor) Interlocks() InterlockState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interlocks
}

// PumpWindowUsed returns the pump runtime consumed in the current
// activation window.
func (s *Supervisor) PumpWindowUsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remainingPumpRuntimeLocked(s.now())
	return s.usedRuntime
}
