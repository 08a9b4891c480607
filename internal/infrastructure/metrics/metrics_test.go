package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew(t *testing.T) {
	m := New()
	if m == nil {
		t.Fatal("New() returned nil")
	}
	if m.registry == nil {
		t.Fatal("New() registry is nil")
	}
}

func TestNewIndependentRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	m1 := New()
	m2 := New()

	m1.DecisionCycles.Inc()
	m1.DecisionCycles.Inc()
	m2.DecisionCycles.Inc()

	if got := testutil.ToFloat64(m1.DecisionCycles); got != 2 {
		t.Errorf("m1 DecisionCycles = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m2.DecisionCycles); got != 1 {
		t.Errorf("m2 DecisionCycles = %v, want 1", got)
	}
}

func TestCounterVecLabels(t *testing.T) {
	m := New()

	m.TaskOutcomes.WithLabelValues("water", "completed").Inc()
	m.TaskOutcomes.WithLabelValues("water", "denied").Inc()
	m.TaskOutcomes.WithLabelValues("water", "completed").Inc()

	if got := testutil.ToFloat64(m.TaskOutcomes.WithLabelValues("water", "completed")); got != 2 {
		t.Errorf("completed count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.TaskOutcomes.WithLabelValues("water", "denied")); got != 1 {
		t.Errorf("denied count = %v, want 1", got)
	}
}

func TestEStopGauge(t *testing.T) {
	m := New()

	m.EStopEngaged.Set(1)
	if got := testutil.ToFloat64(m.EStopEngaged); got != 1 {
		t.Errorf("EStopEngaged = %v, want 1", got)
	}

	m.EStopEngaged.Set(0)
	if got := testutil.ToFloat64(m.EStopEngaged); got != 0 {
		t.Errorf("EStopEngaged = %v, want 0", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.DecisionCycles.Inc()
	m.PlantsByState.WithLabelValues("healthy").Set(3)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	m.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Handler status = %d, want %d", rec.Code, http.StatusOK)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "gardener_decision_cycles_total 1") {
		t.Errorf("exposition missing decision cycle counter:\n%s", body)
	}
	if !strings.Contains(body, `gardener_plants_by_state{state="healthy"} 3`) {
		t.Errorf("exposition missing plants gauge:\n%s", body)
	}
}
