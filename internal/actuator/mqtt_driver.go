package actuator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/willowmere/gardener-core/internal/infrastructure/mqtt"
)

// Bus is the slice of the MQTT client the driver needs.
type Bus interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// shimState is the JSON confirmation a hardware shim publishes on
// gardener/actuator/{id}/state after applying a command.
type shimState struct {
	Active bool   `json:"active"`
	Action string `json:"action,omitempty"`
}

// MQTTDriver bridges actuator commands to the hardware shim over MQTT.
//
// Start publishes the command on the set topic and waits for the shim's
// state confirmation; a shim that stays silent past the ctx deadline
// surfaces as ErrTimeout, which the executor treats as a failed task
// and a forced stop.
type MQTTDriver struct {
	id    string
	class Class
	bus   Bus
	qos   byte

	mu      sync.Mutex
	active  bool
	waiters []chan shimState
}

// NewMQTTDriver creates a driver for the given actuator ID and
// subscribes to the shim's confirmation topic.
func NewMQTTDriver(id string, class Class, bus Bus, qos byte) (*MQTTDriver, error) {
	d := &MQTTDriver{
		id:    id,
		class: class,
		bus:   bus,
		qos:   qos,
	}

	topic := mqtt.Topics{}.ActuatorState(id)
	if err := bus.Subscribe(topic, qos, d.handleState); err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}

	return d, nil
}

// ID returns the actuator identifier.
func (d *MQTTDriver) ID() string { return d.id }

// Class returns the actuator class.
func (d *MQTTDriver) Class() Class { return d.class }

// handleState records a confirmation from the shim and wakes waiters.
func (d *MQTTDriver) handleState(_ string, payload []byte) error {
	var st shimState
	if err := json.Unmarshal(payload, &st); err != nil {
		return fmt.Errorf("decoding actuator state for %s: %w", d.id, err)
	}

	d.mu.Lock()
	d.active = st.Active
	waiters := d.waiters
	d.waiters = nil
	d.mu.Unlock()

	for _, ch := range waiters {
		ch <- st
	}
	return nil
}

// Start publishes a command and waits for the shim to confirm it is
// active.
func (d *MQTTDriver) Start(ctx context.Context, cmd Command) error {
	d.mu.Lock()
	if d.active {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyActive, d.id)
	}
	d.mu.Unlock()

	if err := d.publish(cmd); err != nil {
		return err
	}
	return d.awaitState(ctx, true)
}

// Stop publishes a stop command and waits for the shim to confirm the
// actuator is idle. A shim already reporting idle confirms immediately.
func (d *MQTTDriver) Stop(ctx context.Context) error {
	if err := d.publish(Command{Action: ActionStop}); err != nil {
		return err
	}
	return d.awaitState(ctx, false)
}

// Active reports the last confirmed state from the shim.
func (d *MQTTDriver) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// publish sends a command on the set topic.
func (d *MQTTDriver) publish(cmd Command) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encoding command for %s: %w", d.id, err)
	}

	topic := mqtt.Topics{}.ActuatorSet(d.id)
	if err := d.bus.Publish(topic, payload, d.qos, false); err != nil {
		return fmt.Errorf("publishing command for %s: %w", d.id, err)
	}
	return nil
}

// awaitState blocks until the shim confirms the wanted active state or
// the context expires.
func (d *MQTTDriver) awaitState(ctx context.Context, wantActive bool) error {
	for {
		ch := make(chan shimState, 1)
		d.mu.Lock()
		if d.active == wantActive {
			d.mu.Unlock()
			return nil
		}
		d.waiters = append(d.waiters, ch)
		d.mu.Unlock()

		select {
		case st := <-ch:
			if st.Active == wantActive {
				return nil
			}
			// Confirmation for a different transition; keep waiting.
		case <-ctx.Done():
			d.removeWaiter(ch)
			return fmt.Errorf("%w: %s awaiting active=%v: %v", ErrTimeout, d.id, wantActive, ctx.Err())
		}
	}
}

// removeWaiter drops a waiter registered by awaitState after a timeout.
func (d *MQTTDriver) removeWaiter(ch chan shimState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, w := range d.waiters {
		if w == ch {
			d.waiters = append(d.waiters[:i], d.waiters[i+1:]...)
			return
		}
	}
}

// DriversFromConfig builds the pump and drive drivers from
// configuration. Sim drivers need no bus; mqtt drivers require one.
func DriversFromConfig(pumpDriver, driveDriver string, bus Bus, qos byte) (pump, drive Driver, err error) {
	pump, err = buildDriver("pump-main", ClassPump, pumpDriver, bus, qos)
	if err != nil {
		return nil, nil, err
	}
	drive, err = buildDriver("drive-main", ClassDrive, driveDriver, bus, qos)
	if err != nil {
		return nil, nil, err
	}
	return pump, drive, nil
}

func buildDriver(id string, class Class, kind string, bus Bus, qos byte) (Driver, error) {
	switch kind {
	case "sim":
		return NewSimDriver(id, class), nil
	case "mqtt":
		if bus == nil {
			return nil, fmt.Errorf("actuator %s: mqtt driver configured but mqtt is disabled", id)
		}
		return NewMQTTDriver(id, class, bus, qos)
	default:
		return nil, fmt.Errorf("actuator %s: unknown driver %q", id, kind)
	}
}