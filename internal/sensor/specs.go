package sensor

import (
	"fmt"
	"time"

	"github.com/willowmere/gardener-core/internal/infrastructure/config"
)

// SpecsFromConfig builds source specs from the sensors configuration.
//
// Sources with the "mqtt" driver subscribe to the hardware shim's
// reading topic and require a subscriber; "sim" sources are local and
// republish their readings onto the bus when a subscriber is available.
func SpecsFromConfig(cfg config.SensorsConfig, sub Subscriber, qos byte) ([]Spec, error) {
	specs := make([]Spec, 0, len(cfg.Sources))

	for _, sc := range cfg.Sources {
		staleness := time.Duration(sc.Staleness) * time.Second
		effective := staleness
		if effective <= 0 {
			effective = time.Duration(cfg.Staleness) * time.Second
		}

		var src Source
		switch sc.Driver {
		case "sim":
			src = NewSimSource(sc.ID, Kind(sc.Kind), sc.SimValue)
		case "mqtt":
			if sub == nil {
				return nil, fmt.Errorf("sensor %s: mqtt driver configured but mqtt is disabled", sc.ID)
			}
			ms, err := NewMQTTSource(sc.ID, effective, sub, qos)
			if err != nil {
				return nil, fmt.Errorf("sensor %s: %w", sc.ID, err)
			}
			src = ms
		default:
			return nil, fmt.Errorf("sensor %s: unknown driver %q", sc.ID, sc.Driver)
		}

		specs = append(specs, Spec{
			Source:    src,
			Kind:      Kind(sc.Kind),
			PlantID:   sc.PlantID,
			Staleness: staleness,
			Republish: sc.Driver == "sim",
		})
	}

	return specs, nil
}
