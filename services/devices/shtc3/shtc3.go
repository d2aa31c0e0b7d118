// Package shtc3dev adapts the Sensirion SHTC3 temperature and humidity chip
// to the sensor driver contract.
package shtc3dev

import (
	"context"
	"sync"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/shtc3"

	"sensorcode-go/errcode"
	"sensorcode-go/services/devices"
	"sensorcode-go/services/sensor"
	"sensorcode-go/types"
	"sensorcode-go/x/mathx"
)

func init() { devices.RegisterBuilder("shtc3", builder{}) }

const (
	Addr  = shtc3.SHTC3_ADDRESS
	Types = types.TypeTemperature | types.TypeRelativeHumidity
)

// errI2C keeps the first failed transfer of a transaction. The chip driver
// discards Tx errors.
type errI2C struct {
	bus drivers.I2C
	err error
}

func (b *errI2C) Tx(addr uint16, w, r []byte) error {
	err := b.bus.Tx(addr, w, r)
	if err != nil && b.err == nil {
		b.err = err
	}
	return err
}

func (b *errI2C) take() error {
	err := b.err
	b.err = nil
	return err
}

type Device struct {
	mu  sync.Mutex
	bus *errI2C
	drv shtc3.Device
}

func New(bus drivers.I2C) *Device {
	d := &Device{bus: &errI2C{bus: bus}}
	d.drv = shtc3.New(d.bus)
	return d
}

// measure wakes the chip, reads both channels and puts it back to sleep.
func (d *Device) measure() (tempC, rh float64, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bus.err = nil

	_ = d.drv.WakeUp()
	tmc, rhx100, _ := d.drv.ReadTemperatureHumidity()
	_ = d.drv.Sleep()
	if err := d.bus.take(); err != nil {
		return 0, 0, err
	}
	rhx100 = mathx.Clamp(rhx100, 0, 10000)
	return float64(tmc) / 1000, float64(rhx100) / 100, nil
}

func (d *Device) Read(ctx context.Context, s *sensor.Sensor, mask types.SensorType, fn sensor.DataFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tempC, rh, err := d.measure()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if mask.Has(types.TypeTemperature) {
		if err := fn(s, types.TypeTemperature, types.TempData{Temp: types.F(tempC)}); err != nil {
			return err
		}
	}
	if mask.Has(types.TypeRelativeHumidity) {
		return fn(s, types.TypeRelativeHumidity, types.HumidData{Humid: types.F(rh)})
	}
	return nil
}

func (d *Device) GetConfig(_ *sensor.Sensor, t types.SensorType) (types.SensorConfig, error) {
	return types.SensorConfig{Type: t, ValueType: types.ValueFloat}, nil
}

// SetConfig accepts the fixed float encoding only.
func (d *Device) SetConfig(_ *sensor.Sensor, cfg types.SensorConfig) error {
	if cfg.ValueType != types.ValueFloat {
		return errcode.New(errcode.NotSupported, "shtc3_set_config", "float encoding only")
	}
	return nil
}

type builder struct{}

func (builder) Build(in devices.BuildInput) (devices.BuildOutput, error) {
	const op = "shtc3_build"
	cfg := in.Config
	if cfg.Bus == "" || in.Buses == nil {
		return devices.BuildOutput{}, errcode.New(errcode.InvalidArgument, op, "bus required")
	}
	if cfg.Addr != 0 && cfg.Addr != Addr {
		return devices.BuildOutput{}, errcode.New(errcode.InvalidArgument, op, "fixed address 0x70")
	}
	if in.Types&^Types != 0 {
		return devices.BuildOutput{}, errcode.New(errcode.InvalidArgument, op, "unsupported types "+(in.Types&^Types).String())
	}
	bus, ok := in.Buses.ByID(cfg.Bus)
	if !ok {
		return devices.BuildOutput{}, errcode.New(errcode.NoDevice, op, "unknown bus "+cfg.Bus)
	}
	return devices.BuildOutput{Sensor: sensor.New(cfg.Name, New(bus), in.Types)}, nil
}
