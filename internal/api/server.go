// Package api provides the operator HTTP REST API and WebSocket event
// stream for the Gardener control core.
//
// It exposes the status snapshot, plant and sensor views, manual
// commands, emergency stop and reset, mode changes, the audit log, and
// the diagnostic self-check. The core serves a single operator on a
// trusted field LAN, so there is no authentication layer.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/willowmere/gardener-core/internal/audit"
	"github.com/willowmere/gardener-core/internal/infrastructure/config"
	"github.com/willowmere/gardener-core/internal/infrastructure/logging"
	"github.com/willowmere/gardener-core/internal/mode"
	"github.com/willowmere/gardener-core/internal/plant"
	"github.com/willowmere/gardener-core/internal/robot"
	"github.com/willowmere/gardener-core/internal/sensor"
	"github.com/willowmere/gardener-core/internal/task"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Core is the slice of the robot controller the API serves.
type Core interface {
	CurrentStatus() robot.Status
	SubmitManualCommand(cmd robot.ManualCommand) ([]string, error)
	EmergencyStop(reason string)
	Reset() error
	SetMode(to mode.Mode, reason string) error
	Mode() mode.Mode
	ResetPlant(id string) error
	RunSelfCheck(ctx context.Context) *robot.SelfCheckReport
}

// Sensors is the slice of the sensor aggregator the API reads.
type Sensors interface {
	Snapshot() []sensor.Status
}

// Tasks is the slice of the task executor the API reads.
type Tasks interface {
	Pending() []task.Task
	Active() []task.Task
}

// Instruments is the metrics surface the API feeds.
type Instruments interface {
	SetWSClients(n float64)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config config.APIConfig
	WS     config.WebSocketConfig
	Logger *logging.Logger

	Core    Core
	Plants  *plant.Registry
	History plant.CareHistory
	Audit   audit.Repository
	Sensors Sensors
	Tasks   Tasks

	// Metrics is mounted at /metrics when set.
	Metrics http.Handler

	Version string
}

// Server is the operator HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	logger  *logging.Logger
	core    Core
	plants  *plant.Registry
	history plant.CareHistory
	auditor audit.Repository
	sensors Sensors
	tasks   Tasks
	metrics http.Handler
	version string

	server *http.Server
	hub    *Hub
	cancel context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Core == nil {
		return nil, fmt.Errorf("robot controller is required")
	}
	if deps.Plants == nil {
		return nil, fmt.Errorf("plant registry is required")
	}

	return &Server{
		cfg:     deps.Config,
		wsCfg:   deps.WS,
		logger:  deps.Logger,
		core:    deps.Core,
		plants:  deps.Plants,
		history: deps.History,
		auditor: deps.Audit,
		sensors: deps.Sensors,
		tasks:   deps.Tasks,
		metrics: deps.Metrics,
		version: deps.Version,
	}, nil
}

// Hub returns the WebSocket hub, for wiring as a notification sink.
// Available after Start().
func (s *Server) Hub() *Hub {
	return s.hub
}

// SetInstruments attaches metrics instruments to the WebSocket hub.
// Must be called before Start().
func (s *Server) SetInstruments(in Instruments) {
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	s.hub.instruments = in
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, and launches the
// HTTP listener in a background goroutine. The server is stopped with
// Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	go s.hub.Run(srvCtx)

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete, then
// forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
