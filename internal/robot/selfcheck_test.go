package robot

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/willowmere/gardener-core/internal/mode"
)

func checkByName(t *testing.T, report *SelfCheckReport, name string) CheckResult {
	t.Helper()
	for _, c := range report.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("report has no %q check: %+v", name, report.Checks)
	return CheckResult{}
}

func TestRunSelfCheckPassesWithHealthyCore(t *testing.T) {
	f := setupController(t, mode.Diagnostic)

	report := f.ctl.RunSelfCheck(context.Background())
	if !report.Passed {
		t.Fatalf("Passed = false: %+v", report.Checks)
	}
	if !f.modes.SelfCheckPassed() {
		t.Error("pass not recorded on the mode machine")
	}

	// No broker configured: a disabled bus is a pass, not a skip.
	mqttCheck := checkByName(t, report, "mqtt")
	if !mqttCheck.OK || mqttCheck.Detail != "disabled" {
		t.Errorf("mqtt check = %+v, want OK/disabled", mqttCheck)
	}

	if got := f.ctl.CurrentStatus().LastSelfCheck; got == nil || !got.Passed {
		t.Error("status snapshot missing the self-check report")
	}
}

func TestRunSelfCheckFailsOnStaleSafetySensor(t *testing.T) {
	f := setupController(t, mode.Diagnostic)
	f.battery.SetError(errors.New("open circuit"))

	report := f.ctl.RunSelfCheck(context.Background())
	if report.Passed {
		t.Fatal("Passed = true with a dead battery sensor")
	}
	if f.modes.SelfCheckPassed() {
		t.Error("failed check left the autonomous gate open")
	}

	sensors := checkByName(t, report, "sensors")
	if sensors.OK || !strings.Contains(sensors.Detail, "battery_main") {
		t.Errorf("sensors check = %+v, want failure naming battery_main", sensors)
	}
}

func TestRunSelfCheckFailsOnActuatorFault(t *testing.T) {
	f := setupController(t, mode.Diagnostic)
	f.pump.FailStops(errors.New("relay stuck"))

	report := f.ctl.RunSelfCheck(context.Background())
	if report.Passed {
		t.Fatal("Passed = true with a faulted pump")
	}

	pump := checkByName(t, report, "pump")
	if pump.OK || pump.Detail != "relay stuck" {
		t.Errorf("pump check = %+v, want the driver error", pump)
	}
	if drive := checkByName(t, report, "drive"); !drive.OK {
		t.Errorf("drive check = %+v, want OK", drive)
	}
}

func TestRunSelfCheckFailsOnDatabase(t *testing.T) {
	f := setupController(t, mode.Diagnostic)
	f.db.fail(errors.New("database is locked"))

	report := f.ctl.RunSelfCheck(context.Background())
	if report.Passed {
		t.Fatal("Passed = true with an unhealthy database")
	}
	if db := checkByName(t, report, "database"); db.OK {
		t.Errorf("database check = %+v, want failure", db)
	}
}

func TestRunSelfCheckProbesEnabledBroker(t *testing.T) {
	f := setupController(t, mode.Diagnostic)
	f.cfg.MQTT.Enabled = true

	// Enabled bus, nothing connected.
	report := f.ctl.RunSelfCheck(context.Background())
	if report.Passed {
		t.Fatal("Passed = true with an enabled but absent broker")
	}

	broker := &mockBroker{connected: true}
	f.ctl.mqtt = broker
	if report = f.ctl.RunSelfCheck(context.Background()); !report.Passed {
		t.Fatalf("Passed = false with a healthy broker: %+v", report.Checks)
	}

	broker.mu.Lock()
	broker.err = errors.New("connection lost")
	broker.mu.Unlock()
	if report = f.ctl.RunSelfCheck(context.Background()); report.Passed {
		t.Fatal("Passed = true with a failing broker probe")
	}
}
