package robot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/willowmere/gardener-core/internal/actuator"
	"github.com/willowmere/gardener-core/internal/brain"
	"github.com/willowmere/gardener-core/internal/garden"
	"github.com/willowmere/gardener-core/internal/infrastructure/config"
	"github.com/willowmere/gardener-core/internal/mode"
	"github.com/willowmere/gardener-core/internal/notify"
	"github.com/willowmere/gardener-core/internal/plant"
	"github.com/willowmere/gardener-core/internal/safety"
	"github.com/willowmere/gardener-core/internal/sensor"
	"github.com/willowmere/gardener-core/internal/task"
)

// Logger defines the logging interface used by the Controller.
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

// HealthChecker is anything with a liveness probe (database, brokers).
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Broker is the slice of the MQTT client the controller consults.
type Broker interface {
	IsConnected() bool
	HealthCheck(ctx context.Context) error
}

// Runner is a background component driven by the controller's
// lifetime (notifier fan-out, audit trail writer).
type Runner interface {
	Run(ctx context.Context)
}

// Deps carries the assembled components into the Controller.
// Optional fields may be nil; the controller degrades accordingly.
type Deps struct {
	Config  *config.Config
	Version string

	Aggregator *sensor.Aggregator
	Supervisor *safety.Supervisor
	Modes      *mode.Machine
	Executor   *task.Executor
	Brain      *brain.Brain
	Plants     *plant.Registry
	Layout     *garden.Layout
	Notifier   *notify.Notifier

	// Pump and Drive are consulted only by the diagnostic self-check's
	// stop probe; all task-driven actuation goes through the Executor.
	Pump  actuator.Driver
	Drive actuator.Driver

	// DB is probed by the self-check. Optional.
	DB HealthChecker

	// MQTT is probed by the self-check when the bus is enabled. Optional.
	MQTT Broker

	// Runners are drained for the controller's lifetime.
	Runners []Runner
}

// Controller owns the control loops and the operator operations.
type Controller struct {
	cfg     *config.Config
	version string

	aggregator *sensor.Aggregator
	sup        *safety.Supervisor
	modes      *mode.Machine
	exec       *task.Executor
	brain      *brain.Brain
	plants     *plant.Registry
	layout     *garden.Layout
	notifier   *notify.Notifier

	pump  actuator.Driver
	drive actuator.Driver
	db    HealthChecker
	mqtt  Broker

	runners []Runner

	mu            sync.Mutex
	startedAt     time.Time
	lastSelfCheck *SelfCheckReport

	logger Logger
	now    func() time.Time
}

// New creates a Controller from assembled components.
func New(d Deps) (*Controller, error) {
	if d.Config == nil || d.Aggregator == nil || d.Supervisor == nil ||
		d.Modes == nil || d.Executor == nil || d.Brain == nil ||
		d.Plants == nil || d.Layout == nil {
		return nil, fmt.Errorf("robot: missing required component")
	}
	return &Controller{
		cfg:        d.Config,
		version:    d.Version,
		aggregator: d.Aggregator,
		sup:        d.Supervisor,
		modes:      d.Modes,
		exec:       d.Executor,
		brain:      d.Brain,
		plants:     d.Plants,
		layout:     d.Layout,
		notifier:   d.Notifier,
		pump:       d.Pump,
		drive:      d.Drive,
		db:         d.DB,
		mqtt:       d.MQTT,
		runners:    d.Runners,
		logger:     noopLogger{},
		now:        time.Now,
	}, nil
}

// SetLogger sets the logger for the controller.
func (c *Controller) SetLogger(logger Logger) {
	c.logger = logger
}

// Run starts every loop and blocks until ctx is cancelled, then stops
// the actuators best-effort before returning.
func (c *Controller) Run(ctx context.Context) {
	c.mu.Lock()
	c.startedAt = c.now()
	c.mu.Unlock()

	var wg sync.WaitGroup

	for _, r := range c.runners {
		wg.Add(1)
		go func(r Runner) {
			defer wg.Done()
			r.Run(ctx)
		}(r)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.pollLoop(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.exec.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.brain.Run(ctx, c.exec.Reports())
	}()

	c.logger.Info("control core running",
		"robot", c.cfg.Robot.Name,
		"mode", c.modes.Current(),
		"plants", c.plants.Len(),
	)

	<-ctx.Done()
	wg.Wait()
	c.shutdownActuators()
}

// pollLoop drives the sensor aggregator. The first poll runs
// immediately so the safety supervisor has readings before the first
// task dispatch.
func (c *Controller) pollLoop(ctx context.Context) {
	c.aggregator.Poll(ctx)

	ticker := time.NewTicker(c.cfg.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.aggregator.Poll(ctx)
		}
	}
}

// shutdownActuators issues best-effort stops on exit.
func (c *Controller) shutdownActuators() {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ActuatorTimeout())
	defer cancel()

	for _, d := range []actuator.Driver{c.pump, c.drive} {
		if d == nil {
			continue
		}
		if err := d.Stop(ctx); err != nil {
			c.logger.Error("shutdown stop failed", "actuator", d.ID(), "error", err)
		}
	}
}

// Status is the operator-facing snapshot of the whole core.
type Status struct {
	Robot   string    `json:"robot"`
	Version string    `json:"version"`
	Mode    mode.Mode `json:"mode"`
	UptimeS float64   `json:"uptime_s"`

	EStopLatched    bool                  `json:"emergency_stop_latched"`
	Interlocks      safety.InterlockState `json:"interlocks"`
	PumpWindowUsedS float64               `json:"pump_window_used_s"`

	Plants  []plant.Plant   `json:"plants"`
	Sensors []sensor.Status `json:"sensors"`
	Pending []task.Task     `json:"pending_tasks"`
	Active  []task.Task     `json:"active_tasks"`

	LastSelfCheck *SelfCheckReport `json:"last_self_check,omitempty"`
}

// CurrentStatus assembles the full snapshot.
func (c *Controller) CurrentStatus() Status {
	c.mu.Lock()
	startedAt := c.startedAt
	lastCheck := c.lastSelfCheck
	c.mu.Unlock()

	uptime := 0.0
	if !startedAt.IsZero() {
		uptime = c.now().Sub(startedAt).Seconds()
	}

	return Status{
		Robot:           c.cfg.Robot.Name,
		Version:         c.version,
		Mode:            c.modes.Current(),
		UptimeS:         uptime,
		EStopLatched:    c.sup.EStopLatched(),
		Interlocks:      c.sup.Interlocks(),
		PumpWindowUsedS: c.sup.PumpWindowUsed().Seconds(),
		Plants:          c.plants.List(),
		Sensors:         c.aggregator.Snapshot(),
		Pending:         c.exec.Pending(),
		Active:          c.exec.Active(),
		LastSelfCheck:   lastCheck,
	}
}

// Manual command actions accepted from the operator.
const (
	CommandWater    = "water"
	CommandWaterAll = "water_all"
	CommandMove     = "move"
	CommandStop     = "stop"
)

// manualPriority puts operator commands ahead of anything the brain
// queues.
const manualPriority = 500

// ErrWrongMode indicates a command rejected by the current operating
// mode.
var ErrWrongMode = errors.New("robot: command not allowed in current mode")

// ManualCommand is one operator instruction.
type ManualCommand struct {
	Action    string  `json:"action"`
	PlantID   string  `json:"plant_id,omitempty"`
	Target    string  `json:"target,omitempty"`
	DurationS float64 `json:"duration_s,omitempty"`
}

// SubmitManualCommand wraps an operator command into elevated-priority
// tasks and submits them. Water and move commands require Manual mode;
// stop is accepted in any mode. Returns the submitted task IDs.
func (c *Controller) SubmitManualCommand(cmd ManualCommand) ([]string, error) {
	if cmd.Action == CommandStop {
		t := task.NewStop(task.OriginManual)
		if err := c.exec.Submit(t); err != nil {
			return nil, err
		}
		return []string{t.ID}, nil
	}

	if current := c.modes.Current(); current != mode.Manual {
		return nil, fmt.Errorf("%w: manual commands require manual mode, currently %s", ErrWrongMode, current)
	}

	duration := time.Duration(cmd.DurationS * float64(time.Second))
	if duration <= 0 {
		duration = time.Duration(c.cfg.Brain.BaseWateringTime) * time.Second
	}
	flowMLps := c.cfg.Actuators.Pump.FlowLPerMin * 1000 / 60

	switch cmd.Action {
	case CommandWater:
		if cmd.PlantID == "" {
			return nil, fmt.Errorf("robot: water command requires plant_id")
		}
		if _, err := c.plants.Get(cmd.PlantID); err != nil {
			return nil, err
		}
		t := task.NewWater(cmd.PlantID, duration.Seconds()*flowMLps, duration, manualPriority, task.OriginManual)
		t.Reason = "manual command"
		if err := c.exec.Submit(t); err != nil {
			return nil, err
		}
		return []string{t.ID}, nil

	case CommandWaterAll:
		var ids []string
		for _, p := range c.plants.List() {
			if p.State == plant.StateCareFailed {
				continue
			}
			t := task.NewWater(p.ID, duration.Seconds()*flowMLps, duration, manualPriority, task.OriginManual)
			t.Reason = "manual command (water all)"
			if err := c.exec.Submit(t); err != nil {
				return ids, err
			}
			ids = append(ids, t.ID)
		}
		if len(ids) == 0 {
			return nil, fmt.Errorf("robot: no waterable plants")
		}
		return ids, nil

	case CommandMove:
		if cmd.Target == "" {
			return nil, fmt.Errorf("robot: move command requires target")
		}
		if _, ok := c.layout.Station(cmd.Target); !ok {
			return nil, fmt.Errorf("robot: unknown station %q", cmd.Target)
		}
		t := task.NewMove(cmd.Target, duration, manualPriority, task.OriginManual)
		t.Reason = "manual command"
		if err := c.exec.Submit(t); err != nil {
			return nil, err
		}
		return []string{t.ID}, nil

	default:
		return nil, fmt.Errorf("robot: unknown command action %q", cmd.Action)
	}
}

// EmergencyStop latches the supervisor, flushes the task queue, halts
// the actuators, and transitions the mode machine. Never fails.
func (c *Controller) EmergencyStop(reason string) {
	c.sup.LatchEStop(reason)
	c.exec.Abort("emergency stop: " + reason)

	// Entry into EmergencyStop is never rejected.
	if err := c.modes.Transition(mode.EmergencyStop, reason); err != nil {
		c.logger.Error("emergency stop mode transition rejected", "error", err)
	}

	if c.notifier != nil {
		c.notifier.Publish(notify.Event{
			Type:     notify.TypeEmergencyStop,
			Severity: notify.SeverityCritical,
			Message:  "emergency stop: " + reason,
		})
	}
}

// Reset clears the emergency stop latch and returns to Diagnostic.
// It is the only exit from EmergencyStop.
func (c *Controller) Reset() error {
	if c.modes.Current() != mode.EmergencyStop {
		return fmt.Errorf("robot: reset only applies in emergency_stop, currently %s", c.modes.Current())
	}

	c.sup.ResetEStop()
	if err := c.modes.Transition(mode.Diagnostic, "operator reset"); err != nil {
		return err
	}

	c.logger.Info("emergency stop reset, entering diagnostic")
	return nil
}

// SetMode changes the operating mode on operator request.
//
// Entering EmergencyStop routes through EmergencyStop so the latch and
// queue flush happen; leaving it is only possible via Reset.
func (c *Controller) SetMode(to mode.Mode, reason string) error {
	if to == mode.EmergencyStop {
		c.EmergencyStop(reason)
		return nil
	}
	if c.modes.Current() == mode.EmergencyStop {
		return fmt.Errorf("robot: leaving emergency_stop requires reset")
	}
	return c.modes.Transition(to, reason)
}

// Mode returns the current operating mode.
func (c *Controller) Mode() mode.Mode {
	return c.modes.Current()
}

// ResetPlant returns a care-failed plant to the care rotation.
func (c *Controller) ResetPlant(id string) error {
	return c.plants.Reset(id)
}
