// Gardener Core - Autonomous Garden Robot Control Core
//
// This is the main entry point for the Gardener Core application.
// Gardener Core is the on-robot control system for a small autonomous
// garden robot:
//   - Sensor aggregation with freshness tracking
//   - Hard safety interlocks on every actuation
//   - A decision engine driving watering and patrol tasks
//   - An operator HTTP API with a live WebSocket event stream
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/willowmere/gardener-core/migrations"

	"github.com/willowmere/gardener-core/internal/actuator"
	"github.com/willowmere/gardener-core/internal/api"
	"github.com/willowmere/gardener-core/internal/audit"
	"github.com/willowmere/gardener-core/internal/brain"
	"github.com/willowmere/gardener-core/internal/garden"
	"github.com/willowmere/gardener-core/internal/infrastructure/config"
	"github.com/willowmere/gardener-core/internal/infrastructure/database"
	"github.com/willowmere/gardener-core/internal/infrastructure/influxdb"
	"github.com/willowmere/gardener-core/internal/infrastructure/logging"
	"github.com/willowmere/gardener-core/internal/infrastructure/metrics"
	"github.com/willowmere/gardener-core/internal/infrastructure/mqtt"
	"github.com/willowmere/gardener-core/internal/mode"
	"github.com/willowmere/gardener-core/internal/notify"
	"github.com/willowmere/gardener-core/internal/plant"
	"github.com/willowmere/gardener-core/internal/robot"
	"github.com/willowmere/gardener-core/internal/safety"
	"github.com/willowmere/gardener-core/internal/sensor"
	"github.com/willowmere/gardener-core/internal/task"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/gardener.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for
// testability. Returning an error allows main to handle exit codes
// consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gardener Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Garden model: plant registry, layout, care history
	registry, err := plant.NewRegistry(cfg.Plants)
	if err != nil {
		return fmt.Errorf("loading plant registry: %w", err)
	}
	layout, err := garden.NewLayout(cfg.Stations, cfg.Plants)
	if err != nil {
		return fmt.Errorf("building garden layout: %w", err)
	}
	history := plant.NewSQLiteCareHistory(db.DB)
	log.Info("garden model initialised",
		"plants", registry.Len(),
		"stations", len(cfg.Stations),
	)

	// Audit trail
	auditRepo := audit.NewSQLiteRepository(db.DB)
	trail := audit.NewTrail(auditRepo)

	// Connect to MQTT broker (optional; sim drivers and sim sensors
	// run without a bus)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled")
	}
	qos := byte(cfg.MQTT.QoS)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Metrics registry
	m := metrics.New()

	// Sensor aggregator
	var sub sensor.Subscriber
	if mqttClient != nil {
		sub = mqttClient
	}
	specs, err := sensor.SpecsFromConfig(cfg.Sensors, sub, qos)
	if err != nil {
		return fmt.Errorf("building sensor sources: %w", err)
	}
	aggregator, err := sensor.NewAggregator(cfg.Sensors, specs)
	if err != nil {
		return fmt.Errorf("building sensor aggregator: %w", err)
	}
	aggregator.SetLogger(log)
	aggregator.SetInstruments(sensorInstruments{m})
	if influxClient != nil {
		aggregator.SetTelemetry(influxClient)
	}
	if mqttClient != nil {
		aggregator.SetPublisher(mqttClient, qos)
	}
	log.Info("sensor aggregator initialised", "sensors", len(specs))

	// Safety supervisor
	supervisor := safety.NewSupervisor(cfg.Safety, aggregator)
	supervisor.SetLogger(log)
	supervisor.SetRecorder(trail)
	supervisor.SetInstruments(safetyInstruments{m})

	// Notifier (fan-out to MQTT and the WebSocket hub)
	notifier := notify.New()
	notifier.SetLogger(log)
	if mqttClient != nil {
		notifier.SetPublisher(mqttClient, qos)
	}

	// Operating mode machine
	modes, err := mode.NewMachine(mode.Mode(cfg.Robot.InitialMode))
	if err != nil {
		return fmt.Errorf("initialising mode machine: %w", err)
	}
	modes.Observe(trail.ModeObserver())
	modes.Observe(func(from, to mode.Mode, _ string) {
		m.ModeTransitions.WithLabelValues(string(from), string(to)).Inc()
	})
	modes.Observe(func(from, to mode.Mode, reason string) {
		notifier.Publish(notify.Event{
			Type:     notify.TypeModeChange,
			Severity: notify.SeverityInfo,
			Message:  fmt.Sprintf("mode changed from %s to %s", from, to),
			Fields: map[string]any{
				"from":   from,
				"to":     to,
				"reason": reason,
			},
		})
	})
	log.Info("mode machine initialised", "mode", modes.Current())

	// Actuator drivers
	var bus actuator.Bus
	if mqttClient != nil {
		bus = mqttClient
	}
	pump, drive, err := actuator.DriversFromConfig(cfg.Actuators.Pump.Driver, cfg.Actuators.Drive.Driver, bus, qos)
	if err != nil {
		return fmt.Errorf("building actuator drivers: %w", err)
	}
	log.Info("actuator drivers initialised",
		"pump", cfg.Actuators.Pump.Driver,
		"drive", cfg.Actuators.Drive.Driver,
	)

	// Task executor
	executor := task.NewExecutor(cfg, supervisor, modes, aggregator, pump, drive)
	executor.SetLogger(log)
	executor.SetRecorder(trail)
	executor.SetInstruments(taskInstruments{m})

	// Garden brain
	gardenBrain := brain.New(cfg, registry, aggregator, modes, executor, layout, history)
	gardenBrain.SetLogger(log)
	gardenBrain.SetEvents(notifier)
	gardenBrain.SetRecorder(trail)
	gardenBrain.SetInstruments(brainInstruments{m})

	// Robot controller
	controller, err := robot.New(robot.Deps{
		Config:     cfg,
		Version:    version,
		Aggregator: aggregator,
		Supervisor: supervisor,
		Modes:      modes,
		Executor:   executor,
		Brain:      gardenBrain,
		Plants:     registry,
		Layout:     layout,
		Notifier:   notifier,
		Pump:       pump,
		Drive:      drive,
		DB:         db,
		MQTT:       broker(mqttClient),
		Runners:    []robot.Runner{notifier, trail},
	})
	if err != nil {
		return fmt.Errorf("assembling robot controller: %w", err)
	}
	controller.SetLogger(log)

	// Operator API server
	if cfg.API.Enabled {
		srv, srvErr := api.New(api.Deps{
			Config:  cfg.API,
			WS:      cfg.WebSocket,
			Logger:  log,
			Core:    controller,
			Plants:  registry,
			History: history,
			Audit:   auditRepo,
			Sensors: aggregator,
			Tasks:   executor,
			Metrics: m.Handler(),
			Version: version,
		})
		if srvErr != nil {
			return fmt.Errorf("creating API server: %w", srvErr)
		}
		srv.SetInstruments(apiInstruments{m})

		// The hub streams every notifier event to connected operators.
		notifier.AddSink(srv.Hub())

		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error stopping API server", "error", closeErr)
			}
		}()
		log.Info("API server started",
			"host", cfg.API.Host,
			"port", cfg.API.Port,
		)
	} else {
		log.Info("API server disabled")
	}

	// Verify all infrastructure connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, control loops starting")

	// Blocks until the shutdown signal arrives, then stops the
	// actuators best-effort before returning.
	controller.Run(ctx)

	// Deferred Close() calls will run in reverse order:
	// 1. API server (if enabled)
	// 2. InfluxDB (if enabled)
	// 3. MQTT (if enabled)
	// 4. Database

	log.Info("Gardener Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GARDENER_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GARDENER_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// broker avoids handing the controller a typed-nil interface when the
// bus is disabled.
func broker(c *mqtt.Client) robot.Broker {
	if c == nil {
		return nil
	}
	return c
}

// healthCheck verifies all infrastructure connections are healthy.
// Disabled clients are skipped.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
