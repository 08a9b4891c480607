package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteSensorReading writes a single sensor measurement to InfluxDB.
//
// This is the primary method for recording garden telemetry data.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - sensorID: Unique identifier for the sensor (e.g., "moisture-bed-1")
//   - kind: The sensor kind (e.g., "moisture", "battery", "water_level")
//   - value: The numeric value to record
//
// Example:
//
//	client.WriteSensorReading("moisture-bed-1", "moisture", 34.2)
//	client.WriteSensorReading("battery-main", "battery", 12.1)
func (c *Client) WriteSensorReading(sensorID string, kind string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"sensor_readings",
		map[string]string{
			"sensor_id": sensorID,
			"kind":      kind,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteCareOutcome writes the result of a completed care task.
//
// Used for tracking watering history and per-plant water consumption
// over time. Volume is omitted when zero (non-watering actions).
//
// Parameters:
//   - plantID: Plant identifier
//   - action: Care action performed (e.g., "water", "check")
//   - outcome: Task outcome (e.g., "completed", "truncated", "failed")
//   - durationS: Actual run duration in seconds
//   - volumeML: Water volume delivered in millilitres (0 if none)
func (c *Client) WriteCareOutcome(plantID, action, outcome string, durationS, volumeML float64) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"duration_s": durationS,
	}
	if volumeML > 0 {
		fields["volume_ml"] = volumeML
	}

	point := write.NewPoint(
		"care_outcomes",
		map[string]string{
			"plant_id": plantID,
			"action":   action,
			"outcome":  outcome,
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteActuatorRuntime writes an actuator runtime measurement.
//
// Used for tracking cumulative pump and motor run time, which feeds
// maintenance planning (impeller wear, duty cycle analysis).
//
// Parameters:
//   - actuatorID: Actuator identifier (e.g., "pump-main")
//   - metricName: Runtime metric (e.g., "runtime_s", "window_used_s")
//   - value: The metric value
func (c *Client) WriteActuatorRuntime(actuatorID string, metricName string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"actuator_runtime",
		map[string]string{
			"actuator_id": actuatorID,
			"metric":      metricName,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("decision_cycle",
//	    map[string]string{"mode": "autonomous"},
//	    map[string]interface{}{"duration_ms": 45.2, "tasks_enqueued": 2})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
