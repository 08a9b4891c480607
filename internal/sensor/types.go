package sensor

import "time"

// Kind classifies a sensor measurement.
type Kind string

const (
	KindSoilMoisture   Kind = "soil_moisture"
	KindBatteryVoltage Kind = "battery_voltage"
	KindWaterLevel     Kind = "water_level"
	KindTemperature    Kind = "temperature"
	KindHumidity       Kind = "humidity"
	KindLight          Kind = "light"
)

// AllKinds returns every valid sensor kind.
func AllKinds() []Kind {
	return []Kind{
		KindSoilMoisture,
		KindBatteryVoltage,
		KindWaterLevel,
		KindTemperature,
		KindHumidity,
		KindLight,
	}
}

// Unit returns the canonical unit for the kind.
func (k Kind) Unit() string {
	switch k {
	case KindSoilMoisture, KindWaterLevel, KindHumidity:
		return "%"
	case KindBatteryVoltage:
		return "V"
	case KindTemperature:
		return "C"
	case KindLight:
		return "lux"
	}
	return ""
}

// InRange reports whether a value is physically plausible for the kind.
// Values outside these bounds indicate a wiring fault or a corrupt
// message, not a real measurement.
func (k Kind) InRange(v float64) bool {
	switch k {
	case KindSoilMoisture, KindWaterLevel, KindHumidity:
		return v >= 0 && v <= 100
	case KindBatteryVoltage:
		return v >= 0 && v <= 15
	case KindTemperature:
		return v >= -20 && v <= 60
	case KindLight:
		return v >= 0
	}
	return true
}

// SafetyCritical reports whether staleness of this kind is itself a
// safety interlock condition.
func (k Kind) SafetyCritical() bool {
	return k == KindBatteryVoltage || k == KindWaterLevel
}

// Reading is one timestamped sensor measurement.
//
// Valid is false when the last read attempt failed or returned an
// implausible value. Freshness is not stored on the reading; it is
// evaluated against the sensor's staleness window at query time.
type Reading struct {
	SensorID  string    `json:"sensor_id"`
	Kind      Kind      `json:"kind"`
	PlantID   string    `json:"plant_id,omitempty"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Timestamp time.Time `json:"timestamp"`
	Valid     bool      `json:"valid"`
}

// Age returns how old the reading is at the given time.
func (r Reading) Age(now time.Time) time.Duration {
	return now.Sub(r.Timestamp)
}

// Status is a reading with its freshness evaluated, as exposed to the
// operator API.
type Status struct {
	Reading
	Fresh bool `json:"fresh"`
}
