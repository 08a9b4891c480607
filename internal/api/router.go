package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Prometheus exposition
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)

		r.Route("/plants", func(r chi.Router) {
			r.Get("/", s.handleListPlants)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetPlant)
				r.Get("/history", s.handlePlantHistory)
				r.Post("/reset", s.handleResetPlant)
			})
		})

		r.Get("/sensors", s.handleSensors)
		r.Get("/tasks", s.handleTasks)
		r.Post("/commands", s.handleCommand)

		r.Post("/estop", s.handleEStop)
		r.Post("/reset", s.handleReset)

		r.Get("/mode", s.handleGetMode)
		r.Put("/mode", s.handleSetMode)

		r.Get("/audit", s.handleAudit)
		r.Post("/selfcheck", s.handleSelfCheck)

		// WebSocket event stream
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"mode":    s.core.Mode(),
	})
}
