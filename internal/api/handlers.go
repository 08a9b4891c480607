package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/willowmere/gardener-core/internal/audit"
	"github.com/willowmere/gardener-core/internal/mode"
	"github.com/willowmere/gardener-core/internal/robot"
	"github.com/willowmere/gardener-core/internal/sensor"
	"github.com/willowmere/gardener-core/internal/task"
)

// handleStatus returns the full core snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.core.CurrentStatus())
}

// handleListPlants returns every plant in the registry.
func (s *Server) handleListPlants(w http.ResponseWriter, _ *http.Request) {
	plants := s.plants.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"plants": plants,
		"count":  len(plants),
	})
}

// handleGetPlant returns a single plant.
func (s *Server) handleGetPlant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := s.plants.Get(id)
	if err != nil {
		writeNotFound(w, "plant not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handlePlantHistory returns recent care records for a plant, newest
// first.
func (s *Server) handlePlantHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.plants.Get(id); err != nil {
		writeNotFound(w, "plant not found: "+id)
		return
	}
	if s.history == nil {
		writeInternalError(w, "care history not available")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := s.history.History(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("care history query failed", "plant_id", id, "error", err)
		writeInternalError(w, "failed to query care history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"plant_id": id,
		"records":  records,
		"count":    len(records),
	})
}

// handleResetPlant returns a care-failed plant to the care rotation.
func (s *Server) handleResetPlant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.core.ResetPlant(id); err != nil {
		writeNotFound(w, "plant not found: "+id)
		return
	}

	p, err := s.plants.Get(id)
	if err != nil {
		writeInternalError(w, "plant vanished after reset")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleSensors returns the latest reading per sensor with freshness.
func (s *Server) handleSensors(w http.ResponseWriter, _ *http.Request) {
	var snapshot []sensor.Status
	if s.sensors != nil {
		snapshot = s.sensors.Snapshot()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sensors": snapshot,
		"count":   len(snapshot),
	})
}

// handleTasks returns the pending queue and active tasks.
func (s *Server) handleTasks(w http.ResponseWriter, _ *http.Request) {
	var pending, active []task.Task
	if s.tasks != nil {
		pending = s.tasks.Pending()
		active = s.tasks.Active()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pending": pending,
		"active":  active,
	})
}

// handleCommand accepts a manual operator command and returns the
// submitted task IDs.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var cmd robot.ManualCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	ids, err := s.core.SubmitManualCommand(cmd)
	if err != nil {
		if errors.Is(err, robot.ErrWrongMode) {
			writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
			return
		}
		writeBadRequest(w, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"task_ids": ids,
	})
}

// estopRequest is the optional body for POST /estop.
type estopRequest struct {
	Reason string `json:"reason"`
}

// handleEStop engages the emergency stop.
func (s *Server) handleEStop(w http.ResponseWriter, r *http.Request) {
	var req estopRequest
	// Body is optional; a missing reason still stops the robot.
	//nolint:errcheck
	json.NewDecoder(r.Body).Decode(&req)
	if req.Reason == "" {
		req.Reason = "operator request"
	}

	s.core.EmergencyStop(req.Reason)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"mode":   s.core.Mode(),
		"reason": req.Reason,
	})
}

// handleReset clears the emergency stop latch.
func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	if err := s.core.Reset(); err != nil {
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode": s.core.Mode(),
	})
}

// handleGetMode returns the current operating mode.
func (s *Server) handleGetMode(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode": s.core.Mode(),
	})
}

// modeRequest is the body for PUT /mode.
type modeRequest struct {
	Mode   string `json:"mode"`
	Reason string `json:"reason"`
}

// handleSetMode changes the operating mode.
func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	to := mode.Mode(req.Mode)
	if !to.Valid() {
		writeBadRequest(w, "invalid mode: "+req.Mode)
		return
	}
	if req.Reason == "" {
		req.Reason = "operator request"
	}

	if err := s.core.SetMode(to, req.Reason); err != nil {
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode": s.core.Mode(),
	})
}

// handleAudit queries the audit log with optional filters.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.auditor == nil {
		writeInternalError(w, "audit log not available")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Category: q.Get("category"),
		Target:   q.Get("target"),
	}

	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeBadRequest(w, "since must be RFC3339")
			return
		}
		filter.Since = since
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	result, err := s.auditor.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("audit query failed", "error", err)
		writeInternalError(w, "failed to query audit log")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleSelfCheck runs the diagnostic self-check and returns the
// report.
func (s *Server) handleSelfCheck(w http.ResponseWriter, r *http.Request) {
	report := s.core.RunSelfCheck(r.Context())
	writeJSON(w, http.StatusOK, report)
}
