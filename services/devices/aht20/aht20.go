// Package aht20dev adapts the Aosong AHT20 temperature and humidity chip to
// the sensor driver contract. A read triggers a conversion and polls the
// status byte until the chip reports ready.
package aht20dev

import (
	"context"
	"strconv"
	"sync"
	"time"

	"tinygo.org/x/drivers"

	"sensorcode-go/errcode"
	"sensorcode-go/services/devices"
	"sensorcode-go/services/sensor"
	"sensorcode-go/types"
	"sensorcode-go/x/mathx"
)

func init() { devices.RegisterBuilder("aht20", builder{}) }

const (
	Types = types.TypeTemperature | types.TypeRelativeHumidity

	DefaultPoll = 15 * time.Millisecond
)

type Device struct {
	mu   sync.Mutex
	chip chip
}

func New(bus drivers.I2C, addr uint16, poll time.Duration) *Device {
	if addr == 0 {
		addr = Addr
	}
	if poll <= 0 {
		poll = DefaultPoll
	}
	return &Device{chip: chip{bus: bus, addr: addr, poll: poll}}
}

// Reset soft-resets the chip; the next read recalibrates.
func (d *Device) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.chip.reset()
}

func (d *Device) sample(ctx context.Context) (Sample, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, err := d.chip.measure(ctx)
	if err != nil {
		// Recalibrate after any failed transaction.
		d.chip.inited = false
	}
	return s, err
}

func (d *Device) Read(ctx context.Context, s *sensor.Sensor, mask types.SensorType, fn sensor.DataFunc) error {
	smp, err := d.sample(ctx)
	if err != nil {
		return err
	}
	if mask.Has(types.TypeTemperature) {
		if err := fn(s, types.TypeTemperature, types.TempData{Temp: types.F(smp.Celsius())}); err != nil {
			return err
		}
	}
	if mask.Has(types.TypeRelativeHumidity) {
		rh := mathx.Clamp(smp.RelHumidity(), 0, 100)
		return fn(s, types.TypeRelativeHumidity, types.HumidData{Humid: types.F(rh)})
	}
	return nil
}

func (d *Device) GetConfig(_ *sensor.Sensor, t types.SensorType) (types.SensorConfig, error) {
	return types.SensorConfig{Type: t, ValueType: types.ValueFloat}, nil
}

func (d *Device) SetConfig(_ *sensor.Sensor, cfg types.SensorConfig) error {
	if cfg.ValueType != types.ValueFloat {
		return errcode.New(errcode.NotSupported, "aht20_set_config", "float encoding only")
	}
	return nil
}

type builder struct{}

// Build accepts params.poll_ms, the busy-poll interval.
func (builder) Build(in devices.BuildInput) (devices.BuildOutput, error) {
	const op = "aht20_build"
	cfg := in.Config
	if cfg.Bus == "" || in.Buses == nil {
		return devices.BuildOutput{}, errcode.New(errcode.InvalidArgument, op, "bus required")
	}
	if in.Types&^Types != 0 {
		return devices.BuildOutput{}, errcode.New(errcode.InvalidArgument, op, "unsupported types "+(in.Types&^Types).String())
	}
	poll := DefaultPoll
	if ms, ok := cfg.Params["poll_ms"]; ok {
		if ms <= 0 {
			return devices.BuildOutput{}, errcode.New(errcode.InvalidArgument, op, "poll_ms must be positive, got "+strconv.FormatFloat(ms, 'g', -1, 64))
		}
		poll = time.Duration(ms * float64(time.Millisecond))
	}
	bus, ok := in.Buses.ByID(cfg.Bus)
	if !ok {
		return devices.BuildOutput{}, errcode.New(errcode.NoDevice, op, "unknown bus "+cfg.Bus)
	}
	return devices.BuildOutput{Sensor: sensor.New(cfg.Name, New(bus, cfg.Addr, poll), in.Types)}, nil
}
