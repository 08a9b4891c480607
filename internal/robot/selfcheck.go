package robot

import (
	"context"
	"fmt"
	"time"

	"github.com/willowmere/gardener-core/internal/actuator"
)

// CheckResult is one self-check probe outcome.
type CheckResult struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// SelfCheckReport is the outcome of one diagnostic self-check run.
type SelfCheckReport struct {
	Passed bool          `json:"passed"`
	Checks []CheckResult `json:"checks"`
	RanAt  time.Time     `json:"ran_at"`
}

// RunSelfCheck probes the core's dependencies and records the result
// on the mode machine, gating the Diagnostic to Autonomous transition.
//
// Checks: every safety-critical sensor delivers a fresh valid reading,
// each actuator answers a Stop within the timeout, the database
// responds, and the MQTT broker is connected when enabled.
func (c *Controller) RunSelfCheck(ctx context.Context) *SelfCheckReport {
	report := &SelfCheckReport{RanAt: c.now()}

	// Fresh readings first; the sensor check judges this poll, not a
	// stale cache.
	c.aggregator.Poll(ctx)

	report.Checks = append(report.Checks, c.checkSensors())
	report.Checks = append(report.Checks, c.checkActuator("pump", c.pump))
	report.Checks = append(report.Checks, c.checkActuator("drive", c.drive))
	report.Checks = append(report.Checks, c.checkDatabase(ctx))
	report.Checks = append(report.Checks, c.checkBroker(ctx))

	report.Passed = true
	for _, check := range report.Checks {
		if !check.OK {
			report.Passed = false
			break
		}
	}

	c.modes.SetSelfCheckResult(report.Passed)
	c.mu.Lock()
	c.lastSelfCheck = report
	c.mu.Unlock()

	c.logger.Info("self-check finished", "passed", report.Passed)
	return report
}

// checkSensors verifies every safety-critical sensor is fresh and
// valid.
func (c *Controller) checkSensors() CheckResult {
	var stale []string
	for _, s := range c.aggregator.Snapshot() {
		if !s.Reading.Kind.SafetyCritical() {
			continue
		}
		if !s.Fresh {
			stale = append(stale, s.Reading.SensorID)
		}
	}

	if len(stale) > 0 {
		return CheckResult{
			Name:   "sensors",
			OK:     false,
			Detail: fmt.Sprintf("safety-critical sensors not fresh: %v", stale),
		}
	}
	return CheckResult{Name: "sensors", OK: true}
}

// checkActuator probes a driver with a Stop command.
func (c *Controller) checkActuator(name string, d actuator.Driver) CheckResult {
	if d == nil {
		return CheckResult{Name: name, OK: false, Detail: "not configured"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ActuatorTimeout())
	defer cancel()

	if err := d.Stop(ctx); err != nil {
		return CheckResult{Name: name, OK: false, Detail: err.Error()}
	}
	return CheckResult{Name: name, OK: true}
}

// checkDatabase probes persistence.
func (c *Controller) checkDatabase(ctx context.Context) CheckResult {
	if c.db == nil {
		return CheckResult{Name: "database", OK: false, Detail: "not configured"}
	}
	if err := c.db.HealthCheck(ctx); err != nil {
		return CheckResult{Name: "database", OK: false, Detail: err.Error()}
	}
	return CheckResult{Name: "database", OK: true}
}

// checkBroker probes the MQTT connection when the bus is enabled.
// A disabled bus passes; sim-driven cores run without one.
func (c *Controller) checkBroker(ctx context.Context) CheckResult {
	if !c.cfg.MQTT.Enabled {
		return CheckResult{Name: "mqtt", OK: true, Detail: "disabled"}
	}
	if c.mqtt == nil {
		return CheckResult{Name: "mqtt", OK: false, Detail: "enabled but not connected"}
	}
	if err := c.mqtt.HealthCheck(ctx); err != nil {
		return CheckResult{Name: "mqtt", OK: false, Detail: err.Error()}
	}
	return CheckResult{Name: "mqtt", OK: true}
}
