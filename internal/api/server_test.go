package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/willowmere/gardener-core/internal/audit"
	"github.com/willowmere/gardener-core/internal/infrastructure/config"
	"github.com/willowmere/gardener-core/internal/infrastructure/logging"
	"github.com/willowmere/gardener-core/internal/mode"
	"github.com/willowmere/gardener-core/internal/notify"
	"github.com/willowmere/gardener-core/internal/plant"
	"github.com/willowmere/gardener-core/internal/robot"
	"github.com/willowmere/gardener-core/internal/sensor"
	"github.com/willowmere/gardener-core/internal/task"
)

// ─── Mock Dependencies ───────────────────────────────────────────────────────

// mockCore is a scriptable robot controller.
type mockCore struct {
	mu        sync.Mutex
	mode      mode.Mode
	status    robot.Status
	ids       []string
	submitErr error
	submitted []robot.ManualCommand
	estops    []string
	resetErr  error
	modeErr   error
	plants    *plant.Registry
	selfCheck *robot.SelfCheckReport
}

func (m *mockCore) CurrentStatus() robot.Status { return m.status }

func (m *mockCore) SubmitManualCommand(cmd robot.ManualCommand) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	m.submitted = append(m.submitted, cmd)
	return m.ids, nil
}

func (m *mockCore) EmergencyStop(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.estops = append(m.estops, reason)
	m.mode = mode.EmergencyStop
}

func (m *mockCore) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resetErr != nil {
		return m.resetErr
	}
	m.mode = mode.Diagnostic
	return nil
}

func (m *mockCore) SetMode(to mode.Mode, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.modeErr != nil {
		return m.modeErr
	}
	m.mode = to
	return nil
}

func (m *mockCore) Mode() mode.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

func (m *mockCore) ResetPlant(id string) error { return m.plants.Reset(id) }

func (m *mockCore) RunSelfCheck(context.Context) *robot.SelfCheckReport { return m.selfCheck }

// mockAuditRepo captures the filter and serves a canned page.
type mockAuditRepo struct {
	mu     sync.Mutex
	filter audit.Filter
	result *audit.ListResult
	err    error
}

func (m *mockAuditRepo) Record(context.Context, *audit.Event) error { return nil }

func (m *mockAuditRepo) List(_ context.Context, f audit.Filter) (*audit.ListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filter = f
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

// stubHistory serves a fixed care record set.
type stubHistory struct {
	records []plant.CareRecord
}

func (s *stubHistory) Record(context.Context, *plant.CareRecord) error { return nil }

func (s *stubHistory) History(context.Context, string, int) ([]plant.CareRecord, error) {
	return s.records, nil
}

func (s *stubHistory) Prune(context.Context, time.Time) (int64, error) { return 0, nil }

// mockSensors serves a fixed snapshot.
type mockSensors struct {
	snapshot []sensor.Status
}

func (m *mockSensors) Snapshot() []sensor.Status { return m.snapshot }

// mockTasks serves fixed queue views.
type mockTasks struct {
	pending []task.Task
	active  []task.Task
}

func (m *mockTasks) Pending() []task.Task { return m.pending }

func (m *mockTasks) Active() []task.Task { return m.active }

// ─── Test Setup ──────────────────────────────────────────────────────────────

func testPlantConfigs() []config.PlantConfig {
	return []config.PlantConfig{
		{
			ID:       "tomato_1",
			Species:  "tomato",
			Location: config.PointConfig{X: 1, Y: 2},
			Moisture: config.MoistureConfig{Critical: 15, Low: 40, Optimal: 70},
			Schedule: "daily",
		},
	}
}

type apiFixture struct {
	srv    *Server
	router http.Handler
	core   *mockCore
	plants *plant.Registry
	audit  *mockAuditRepo
}

func setupServer(t *testing.T) *apiFixture {
	t.Helper()

	registry, err := plant.NewRegistry(testPlantConfigs())
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	core := &mockCore{
		mode:   mode.Manual,
		status: robot.Status{Robot: "willow", Version: "test", Mode: mode.Manual},
		ids:    []string{"task-aaaa1111"},
		plants: registry,
		selfCheck: &robot.SelfCheckReport{
			Passed: true,
			Checks: []robot.CheckResult{{Name: "sensors", OK: true}},
			RanAt:  time.Now(),
		},
	}
	auditRepo := &mockAuditRepo{
		result: &audit.ListResult{
			Events: []audit.Event{{ID: "aud-12345678", Category: audit.CategorySafety, Action: "deny"}},
			Total:  1,
			Limit:  50,
		},
	}

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger: log,
		Core:   core,
		Plants: registry,
		History: &stubHistory{records: []plant.CareRecord{
			{ID: "care-11112222", PlantID: "tomato_1", Action: "watering"},
		}},
		Audit: auditRepo,
		Sensors: &mockSensors{snapshot: []sensor.Status{
			{Reading: sensor.Reading{SensorID: "battery_main", Kind: sensor.KindBatteryVoltage, Value: 12.4, Valid: true}, Fresh: true},
		}},
		Tasks: &mockTasks{
			pending: []task.Task{*task.NewWater("tomato_1", 150, 10*time.Second, 50, task.OriginBrain)},
		},
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	srv.hub = NewHub(srv.wsCfg, log)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &apiFixture{
		srv:    srv,
		router: srv.buildRouter(),
		core:   core,
		plants: registry,
		audit:  auditRepo,
	}
}

func (f *apiFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return resp
}

// ─── Tests ───────────────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	f := setupServer(t)

	w := f.do(t, http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	resp := decodeBody(t, w)
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("health = %v, want ok/test", resp)
	}
	if resp["mode"] != "manual" {
		t.Errorf("mode = %v, want manual", resp["mode"])
	}
}

func TestStatusSnapshot(t *testing.T) {
	f := setupServer(t)

	w := f.do(t, http.MethodGet, "/api/v1/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	resp := decodeBody(t, w)
	if resp["robot"] != "willow" {
		t.Errorf("robot = %v, want willow", resp["robot"])
	}
}

func TestPlantEndpoints(t *testing.T) {
	f := setupServer(t)

	w := f.do(t, http.MethodGet, "/api/v1/plants", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d, want %d", w.Code, http.StatusOK)
	}
	if resp := decodeBody(t, w); resp["count"] != float64(1) {
		t.Errorf("count = %v, want 1", resp["count"])
	}

	w = f.do(t, http.MethodGet, "/api/v1/plants/tomato_1", "")
	if w.Code != http.StatusOK {
		t.Errorf("get status = %d, want %d", w.Code, http.StatusOK)
	}

	w = f.do(t, http.MethodGet, "/api/v1/plants/cactus_9", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown plant status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestPlantHistory(t *testing.T) {
	f := setupServer(t)

	w := f.do(t, http.MethodGet, "/api/v1/plants/tomato_1/history", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if resp := decodeBody(t, w); resp["count"] != float64(1) {
		t.Errorf("count = %v, want 1", resp["count"])
	}

	w = f.do(t, http.MethodGet, "/api/v1/plants/tomato_1/history?limit=bogus", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestResetPlant(t *testing.T) {
	f := setupServer(t)
	if err := f.plants.SetState("tomato_1", plant.StateCareFailed); err != nil {
		t.Fatalf("SetState() error = %v", err)
	}

	w := f.do(t, http.MethodPost, "/api/v1/plants/tomato_1/reset", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	p, _ := f.plants.Get("tomato_1")
	if p.State == plant.StateCareFailed {
		t.Error("plant still care_failed after reset")
	}

	w = f.do(t, http.MethodPost, "/api/v1/plants/cactus_9/reset", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown plant status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestSensorsEndpoint(t *testing.T) {
	f := setupServer(t)

	w := f.do(t, http.MethodGet, "/api/v1/sensors", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if resp := decodeBody(t, w); resp["count"] != float64(1) {
		t.Errorf("count = %v, want 1", resp["count"])
	}
}

func TestTasksEndpoint(t *testing.T) {
	f := setupServer(t)

	w := f.do(t, http.MethodGet, "/api/v1/tasks", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	resp := decodeBody(t, w)
	pending, ok := resp["pending"].([]any)
	if !ok || len(pending) != 1 {
		t.Errorf("pending = %v, want 1 task", resp["pending"])
	}
}

func TestCommandAccepted(t *testing.T) {
	f := setupServer(t)

	w := f.do(t, http.MethodPost, "/api/v1/commands", `{"action":"water","plant_id":"tomato_1","duration_s":5}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusAccepted, w.Body.String())
	}

	resp := decodeBody(t, w)
	ids, ok := resp["task_ids"].([]any)
	if !ok || len(ids) != 1 || ids[0] != "task-aaaa1111" {
		t.Errorf("task_ids = %v, want [task-aaaa1111]", resp["task_ids"])
	}

	f.core.mu.Lock()
	defer f.core.mu.Unlock()
	if len(f.core.submitted) != 1 || f.core.submitted[0].Action != "water" {
		t.Errorf("submitted = %+v, want one water command", f.core.submitted)
	}
}

func TestCommandWrongModeConflict(t *testing.T) {
	f := setupServer(t)
	f.core.submitErr = fmt.Errorf("%w: manual commands require manual mode, currently autonomous", robot.ErrWrongMode)

	w := f.do(t, http.MethodPost, "/api/v1/commands", `{"action":"water","plant_id":"tomato_1"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestCommandInvalidBody(t *testing.T) {
	f := setupServer(t)

	w := f.do(t, http.MethodPost, "/api/v1/commands", `{"action":`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestEStopAndReset(t *testing.T) {
	f := setupServer(t)

	w := f.do(t, http.MethodPost, "/api/v1/estop", `{"reason":"smoke in the greenhouse"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("estop status = %d, want %d", w.Code, http.StatusAccepted)
	}
	if resp := decodeBody(t, w); resp["mode"] != "emergency_stop" {
		t.Errorf("mode = %v, want emergency_stop", resp["mode"])
	}
	f.core.mu.Lock()
	if len(f.core.estops) != 1 || f.core.estops[0] != "smoke in the greenhouse" {
		t.Errorf("estops = %v, want the supplied reason", f.core.estops)
	}
	f.core.mu.Unlock()

	w = f.do(t, http.MethodPost, "/api/v1/reset", "")
	if w.Code != http.StatusOK {
		t.Fatalf("reset status = %d, want %d", w.Code, http.StatusOK)
	}
	if resp := decodeBody(t, w); resp["mode"] != "diagnostic" {
		t.Errorf("mode = %v, want diagnostic", resp["mode"])
	}
}

func TestResetConflictWhenNotLatched(t *testing.T) {
	f := setupServer(t)
	f.core.resetErr = fmt.Errorf("robot: reset only applies in emergency_stop, currently manual")

	w := f.do(t, http.MethodPost, "/api/v1/reset", "")
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestModeEndpoints(t *testing.T) {
	f := setupServer(t)

	w := f.do(t, http.MethodGet, "/api/v1/mode", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, want %d", w.Code, http.StatusOK)
	}
	if resp := decodeBody(t, w); resp["mode"] != "manual" {
		t.Errorf("mode = %v, want manual", resp["mode"])
	}

	w = f.do(t, http.MethodPut, "/api/v1/mode", `{"mode":"hover"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid mode status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	w = f.do(t, http.MethodPut, "/api/v1/mode", `{"mode":"diagnostic","reason":"maintenance"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("put status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if resp := decodeBody(t, w); resp["mode"] != "diagnostic" {
		t.Errorf("mode = %v, want diagnostic", resp["mode"])
	}

	f.core.modeErr = mode.ErrInvalidTransition
	w = f.do(t, http.MethodPut, "/api/v1/mode", `{"mode":"autonomous"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("forbidden transition status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestAuditQuery(t *testing.T) {
	f := setupServer(t)

	w := f.do(t, http.MethodGet, "/api/v1/audit?category=safety&target=tomato_1&limit=10&offset=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	f.audit.mu.Lock()
	got := f.audit.filter
	f.audit.mu.Unlock()
	if got.Category != audit.CategorySafety || got.Target != "tomato_1" || got.Limit != 10 || got.Offset != 5 {
		t.Errorf("filter = %+v, want the query parameters", got)
	}

	w = f.do(t, http.MethodGet, "/api/v1/audit?since=yesterday", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad since status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestSelfCheckEndpoint(t *testing.T) {
	f := setupServer(t)

	w := f.do(t, http.MethodPost, "/api/v1/selfcheck", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if resp := decodeBody(t, w); resp["passed"] != true {
		t.Errorf("passed = %v, want true", resp["passed"])
	}
}

// ─── WebSocket Tests ─────────────────────────────────────────────────────────

func TestWebSocketStreamsEvents(t *testing.T) {
	f := setupServer(t)

	ts := httptest.NewServer(f.router)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	defer resp.Body.Close()

	// Wait for registration before broadcasting.
	deadline := time.Now().Add(2 * time.Second)
	for f.srv.hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered with the hub")
		}
		time.Sleep(5 * time.Millisecond)
	}

	f.srv.hub.Deliver(notify.Event{
		Type:     notify.TypeEmergencyStop,
		Severity: notify.SeverityCritical,
		Message:  "operator button",
	})

	//nolint:errcheck
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != WSTypeEvent || msg.EventType != notify.TypeEmergencyStop {
		t.Errorf("message = %s/%s, want event/emergency_stop", msg.Type, msg.EventType)
	}
}

func TestWebSocketSubscriptionNarrowsStream(t *testing.T) {
	f := setupServer(t)

	ts := httptest.NewServer(f.router)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	defer resp.Body.Close()

	sub := WSMessage{Type: WSTypeSubscribe, ID: "1", Payload: WSSubscribePayload{Types: []string{notify.TypeWatering}}}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	// First frame back is the subscribe acknowledgement.
	//nolint:errcheck
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ack WSMessage
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if ack.Type != WSTypeResponse {
		t.Fatalf("ack type = %s, want response", ack.Type)
	}

	f.srv.hub.Deliver(notify.Event{Type: notify.TypeModeChange, Message: "filtered out"})
	f.srv.hub.Deliver(notify.Event{Type: notify.TypeWatering, Message: "delivered"})

	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if msg.EventType != notify.TypeWatering {
		t.Errorf("event type = %s, want only the subscribed watering", msg.EventType)
	}
}

// TestStatusWriterSupportsHijack verifies the logging wrapper forwards
// hijacking, which WebSocket upgrades depend on.
func TestStatusWriterSupportsHijack(t *testing.T) {
	var w http.ResponseWriter = &statusWriter{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}

	hj, ok := w.(http.Hijacker)
	if !ok {
		t.Fatal("statusWriter does not implement http.Hijacker")
	}

	// httptest.ResponseRecorder cannot hijack; the wrapper must surface
	// an error rather than panic.
	if _, _, err := hj.Hijack(); err == nil {
		t.Error("Hijack() on a non-hijackable writer should return an error")
	}
}
