package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Gardener Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Robot     RobotConfig     `yaml:"robot"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Sensors   SensorsConfig   `yaml:"sensors"`
	Safety    SafetyConfig    `yaml:"safety"`
	Brain     BrainConfig     `yaml:"brain"`
	Actuators ActuatorsConfig `yaml:"actuators"`
	Plants    []PlantConfig   `yaml:"plants"`
	Stations  []StationConfig `yaml:"stations"`
}

// RobotConfig contains robot identity and control-loop cadence settings.
type RobotConfig struct {
	// Name identifies this robot in logs, events, and MQTT topics.
	Name string `yaml:"name"`

	// InitialMode is the operating mode on cold start: "diagnostic" or
	// "manual". Autonomous is never a valid initial mode.
	InitialMode string `yaml:"initial_mode"`

	// DecisionInterval is the garden brain cycle period (seconds).
	DecisionInterval int `yaml:"decision_interval"`

	// PatrolInterval is the minimum gap between patrol rounds (seconds).
	PatrolInterval int `yaml:"patrol_interval"`

	// DailySummaryHour is the local hour (0-23) at which the daily care
	// summary event is emitted.
	DailySummaryHour int `yaml:"daily_summary_hour"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket event stream settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SensorsConfig contains sensor aggregator settings.
type SensorsConfig struct {
	// PollInterval is the aggregator poll period (seconds).
	PollInterval int `yaml:"poll_interval"`

	// Staleness is the default freshness window (seconds). A reading
	// older than this must not drive decisions.
	Staleness int `yaml:"staleness"`

	// ReadTimeout bounds a single source read (seconds).
	ReadTimeout int `yaml:"read_timeout"`

	// Breaker configures the per-source circuit breaker.
	Breaker BreakerConfig `yaml:"breaker"`

	// Sources lists the abstracted sensor sources to poll.
	Sources []SensorSourceConfig `yaml:"sources"`
}

// BreakerConfig contains circuit breaker settings for flaky sensor sources.
type BreakerConfig struct {
	// ConsecutiveFailures opens the breaker after this many failed reads.
	ConsecutiveFailures int `yaml:"consecutive_failures"`

	// OpenTimeout is how long the breaker stays open before a half-open
	// probe (seconds).
	OpenTimeout int `yaml:"open_timeout"`
}

// SensorSourceConfig describes one abstracted sensor source.
type SensorSourceConfig struct {
	// ID is the unique sensor identifier (e.g. "soil_moisture_tomato_1").
	ID string `yaml:"id"`

	// Kind classifies the measurement: soil_moisture, battery_voltage,
	// water_level, temperature, humidity, light.
	Kind string `yaml:"kind"`

	// Driver selects the source implementation: "mqtt" or "sim".
	Driver string `yaml:"driver"`

	// PlantID links a soil moisture sensor to its plant.
	PlantID string `yaml:"plant_id,omitempty"`

	// Staleness overrides the default freshness window (seconds).
	Staleness int `yaml:"staleness,omitempty"`

	// SimValue is the fixed value returned by the sim driver.
	SimValue float64 `yaml:"sim_value,omitempty"`
}

// SafetyConfig contains hard interlock limits.
type SafetyConfig struct {
	// BatteryShutdownVoltage is the voltage below which all motor and
	// pump commands are denied.
	BatteryShutdownVoltage float64 `yaml:"battery_shutdown_voltage"`

	// MinWaterLevel is the tank level (percent) below which watering is
	// denied.
	MinWaterLevel float64 `yaml:"min_water_level"`

	// MaxWateringTime caps a single watering run (seconds).
	MaxWateringTime int `yaml:"max_watering_time"`

	// MaxPumpRuntime caps cumulative pump runtime within one activation
	// window (seconds).
	MaxPumpRuntime int `yaml:"max_pump_runtime"`

	// PumpWindow is the idle period after which the pump activation
	// window resets (seconds).
	PumpWindow int `yaml:"pump_window"`

	// MotorTimeout is the maximum continuous drivetrain activity before
	// a forced stop (seconds).
	MotorTimeout int `yaml:"motor_timeout"`

	// EStopTickMS is the actuator drive tick granularity (milliseconds).
	// The latched emergency stop is polled once per tick during a drive.
	EStopTickMS int `yaml:"estop_tick_ms"`

	// ActuatorTimeout bounds a single driver start/stop call (seconds).
	ActuatorTimeout int `yaml:"actuator_timeout"`
}

// BrainConfig contains decision engine settings.
type BrainConfig struct {
	// MaxRetries is the consecutive-failure count after which a plant is
	// marked care-failed and excluded from automatic retry.
	MaxRetries int `yaml:"max_retries"`

	// TaskTTL is the care task deadline horizon (seconds).
	TaskTTL int `yaml:"task_ttl"`

	// BaseWateringTime scales the moisture-deficit watering rule (seconds).
	BaseWateringTime int `yaml:"base_watering_time"`

	// Adaptation configures the threshold learning strategy.
	Adaptation AdaptationConfig `yaml:"adaptation"`
}

// AdaptationConfig contains threshold learning settings.
type AdaptationConfig struct {
	Enabled bool `yaml:"enabled"`

	// Rate is the multiplicative step applied per adjustment.
	Rate float64 `yaml:"rate"`

	// MinMultiplier and MaxMultiplier bound the adapted threshold
	// relative to the configured one.
	MinMultiplier float64 `yaml:"min_multiplier"`
	MaxMultiplier float64 `yaml:"max_multiplier"`

	// ObservationWindow is how long after a watering the moisture
	// response is sampled (seconds).
	ObservationWindow int `yaml:"observation_window"`
}

// ActuatorsConfig contains actuator hardware settings.
type ActuatorsConfig struct {
	Pump  PumpConfig  `yaml:"pump"`
	Drive DriveConfig `yaml:"drive"`
}

// PumpConfig contains water pump settings.
type PumpConfig struct {
	// Driver selects the implementation: "mqtt" or "sim".
	Driver string `yaml:"driver"`

	// FlowLPerMin is the calibrated pump flow rate (litres per minute).
	FlowLPerMin float64 `yaml:"flow_l_per_min"`
}

// DriveConfig contains drivetrain settings.
type DriveConfig struct {
	// Driver selects the implementation: "mqtt" or "sim".
	Driver string `yaml:"driver"`

	// Speed is the default cruise speed, 0.0-1.0.
	Speed float64 `yaml:"speed"`
}

// PlantConfig describes one plant in the garden.
type PlantConfig struct {
	ID       string         `yaml:"id"`
	Species  string         `yaml:"species"`
	Location PointConfig    `yaml:"location"`
	Moisture MoistureConfig `yaml:"moisture"`
	Schedule string         `yaml:"schedule"`
}

// PointConfig is a 2D grid location.
type PointConfig struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// MoistureConfig contains per-plant soil moisture thresholds (percent).
// Ordering critical < low < optimal is enforced at validation.
type MoistureConfig struct {
	Critical float64 `yaml:"critical"`
	Low      float64 `yaml:"low"`
	Optimal  float64 `yaml:"optimal"`
}

// StationConfig describes a named destination for movement tasks.
type StationConfig struct {
	ID       string      `yaml:"id"`
	Name     string      `yaml:"name"`
	Location PointConfig `yaml:"location"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GARDENER_SECTION_KEY
// For example: GARDENER_DATABASE_PATH, GARDENER_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Robot: RobotConfig{
			Name:             "gardener-01",
			InitialMode:      "diagnostic",
			DecisionInterval: 60,
			PatrolInterval:   300,
			DailySummaryHour: 18,
		},
		Database: DatabaseConfig{
			Path:        "./data/gardener.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "gardener-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  5,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Sensors: SensorsConfig{
			PollInterval: 5,
			Staleness:    30,
			ReadTimeout:  2,
			Breaker: BreakerConfig{
				ConsecutiveFailures: 5,
				OpenTimeout:         30,
			},
		},
		Safety: SafetyConfig{
			BatteryShutdownVoltage: 10.8,
			MinWaterLevel:          10,
			MaxWateringTime:        30,
			MaxPumpRuntime:         300,
			PumpWindow:             600,
			MotorTimeout:           30,
			EStopTickMS:            100,
			ActuatorTimeout:        2,
		},
		Brain: BrainConfig{
			MaxRetries:       3,
			TaskTTL:          120,
			BaseWateringTime: 10,
			Adaptation: AdaptationConfig{
				Enabled:           false,
				Rate:              0.05,
				MinMultiplier:     0.8,
				MaxMultiplier:     1.2,
				ObservationWindow: 120,
			},
		},
		Actuators: ActuatorsConfig{
			Pump: PumpConfig{
				Driver:      "mqtt",
				FlowLPerMin: 2.0,
			},
			Drive: DriveConfig{
				Driver: "mqtt",
				Speed:  0.5,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GARDENER_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Robot
	if v := os.Getenv("GARDENER_ROBOT_INITIAL_MODE"); v != "" {
		cfg.Robot.InitialMode = v
	}

	// Database
	if v := os.Getenv("GARDENER_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GARDENER_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GARDENER_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GARDENER_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GARDENER_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("GARDENER_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// All problems are collected and reported in a single error so an
// operator can fix the file in one pass.
//
// Returns:
//   - error: Description of validation failures, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Robot validation. Autonomous on cold start is forbidden: the robot
	// must prove itself via diagnostic self-check or be driven manually.
	switch c.Robot.InitialMode {
	case "diagnostic", "manual":
	case "autonomous":
		errs = append(errs, "robot.initial_mode must not be autonomous on cold start")
	default:
		errs = append(errs, fmt.Sprintf("robot.initial_mode %q is not diagnostic or manual", c.Robot.InitialMode))
	}
	if c.Robot.Name == "" {
		errs = append(errs, "robot.name is required")
	}
	if c.Robot.DecisionInterval <= 0 {
		errs = append(errs, "robot.decision_interval must be positive")
	}
	if c.Robot.DailySummaryHour < 0 || c.Robot.DailySummaryHour > 23 {
		errs = append(errs, "robot.daily_summary_hour must be between 0 and 23")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Sensor validation
	if c.Sensors.PollInterval <= 0 {
		errs = append(errs, "sensors.poll_interval must be positive")
	}
	if c.Sensors.Staleness <= 0 {
		errs = append(errs, "sensors.staleness must be positive")
	}
	seenSensors := make(map[string]bool)
	for i, src := range c.Sensors.Sources {
		if src.ID == "" {
			errs = append(errs, fmt.Sprintf("sensors.sources[%d].id is required", i))
			continue
		}
		if seenSensors[src.ID] {
			errs = append(errs, fmt.Sprintf("sensors.sources: duplicate id %q", src.ID))
		}
		seenSensors[src.ID] = true
		switch src.Driver {
		case "mqtt", "sim":
		default:
			errs = append(errs, fmt.Sprintf("sensors.sources[%s].driver %q is not mqtt or sim", src.ID, src.Driver))
		}
	}

	// Safety validation
	if c.Safety.BatteryShutdownVoltage <= 0 {
		errs = append(errs, "safety.battery_shutdown_voltage must be positive")
	}
	if c.Safety.MinWaterLevel < 0 || c.Safety.MinWaterLevel > 100 {
		errs = append(errs, "safety.min_water_level must be between 0 and 100")
	}
	if c.Safety.MaxWateringTime <= 0 {
		errs = append(errs, "safety.max_watering_time must be positive")
	}
	if c.Safety.MaxPumpRuntime < c.Safety.MaxWateringTime {
		errs = append(errs, "safety.max_pump_runtime must be at least max_watering_time")
	}
	if c.Safety.EStopTickMS <= 0 || c.Safety.EStopTickMS > 1000 {
		errs = append(errs, "safety.estop_tick_ms must be between 1 and 1000")
	}
	if c.Safety.ActuatorTimeout <= 0 {
		errs = append(errs, "safety.actuator_timeout must be positive")
	}

	// Brain validation
	if c.Brain.MaxRetries < 1 {
		errs = append(errs, "brain.max_retries must be at least 1")
	}
	if c.Brain.TaskTTL <= 0 {
		errs = append(errs, "brain.task_ttl must be positive")
	}
	if c.Brain.Adaptation.Enabled {
		a := c.Brain.Adaptation
		if a.MinMultiplier <= 0 || a.MaxMultiplier < a.MinMultiplier {
			errs = append(errs, "brain.adaptation multiplier band is invalid")
		}
		if a.Rate <= 0 || a.Rate >= 1 {
			errs = append(errs, "brain.adaptation.rate must be between 0 and 1")
		}
	}

	// Actuator validation
	if c.Actuators.Pump.FlowLPerMin <= 0 {
		errs = append(errs, "actuators.pump.flow_l_per_min must be positive")
	}
	if c.Actuators.Drive.Speed < 0 || c.Actuators.Drive.Speed > 1 {
		errs = append(errs, "actuators.drive.speed must be between 0.0 and 1.0")
	}

	// Plant validation
	seenPlants := make(map[string]bool)
	for i, p := range c.Plants {
		if p.ID == "" {
			errs = append(errs, fmt.Sprintf("plants[%d].id is required", i))
			continue
		}
		if seenPlants[p.ID] {
			errs = append(errs, fmt.Sprintf("plants: duplicate id %q", p.ID))
		}
		seenPlants[p.ID] = true
		if p.Species == "" {
			errs = append(errs, fmt.Sprintf("plants[%s].species is required", p.ID))
		}
		m := p.Moisture
		if m.Critical < 0 || m.Optimal > 100 || m.Critical >= m.Low || m.Low >= m.Optimal {
			errs = append(errs, fmt.Sprintf("plants[%s].moisture must satisfy 0 <= critical < low < optimal <= 100", p.ID))
		}
		switch p.Schedule {
		case "daily", "twice_daily":
		default:
			errs = append(errs, fmt.Sprintf("plants[%s].schedule %q is not daily or twice_daily", p.ID, p.Schedule))
		}
	}

	// Station validation
	seenStations := make(map[string]bool)
	for i, s := range c.Stations {
		if s.ID == "" {
			errs = append(errs, fmt.Sprintf("stations[%d].id is required", i))
			continue
		}
		if seenStations[s.ID] {
			errs = append(errs, fmt.Sprintf("stations: duplicate id %q", s.ID))
		}
		seenStations[s.ID] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// DecisionInterval returns the brain cycle period as a Duration.
func (c *Config) DecisionInterval() time.Duration {
	return time.Duration(c.Robot.DecisionInterval) * time.Second
}

// PatrolInterval returns the patrol gap as a Duration.
func (c *Config) PatrolInterval() time.Duration {
	return time.Duration(c.Robot.PatrolInterval) * time.Second
}

// PollInterval returns the sensor poll period as a Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Sensors.PollInterval) * time.Second
}

// StalenessWindow returns the default sensor freshness window as a Duration.
func (c *Config) StalenessWindow() time.Duration {
	return time.Duration(c.Sensors.Staleness) * time.Second
}

// EStopTick returns the actuator drive tick granularity as a Duration.
func (c *Config) EStopTick() time.Duration {
	return time.Duration(c.Safety.EStopTickMS) * time.Millisecond
}

// ActuatorTimeout returns the per-call driver timeout as a Duration.
func (c *Config) ActuatorTimeout() time.Duration {
	return time.Duration(c.Safety.ActuatorTimeout) * time.Second
}
