package devices

import (
	"context"
	"log/slog"
	"strconv"

	"sensorcode-go/errcode"
	"sensorcode-go/services/config"
	"sensorcode-go/services/platform"
	"sensorcode-go/services/sensor"
)

// Env carries the shared factories used while installing sensors.
type Env struct {
	Buses platform.I2CBusFactory
	Pins  platform.PinFactory
	// Bridge routes IRQ pins; nil leaves interrupts unwired.
	Bridge *platform.Bridge
	Logger *slog.Logger
}

// Installation is the set of sensors installed from one config.
type Installation struct {
	m       *sensor.Manager
	sensors []*sensor.Sensor
	detach  []func()
}

func (in *Installation) Sensors() []*sensor.Sensor { return in.sensors }

// Close detaches interrupts and unregisters every installed sensor.
func (in *Installation) Close() {
	for _, d := range in.detach {
		d()
	}
	in.detach = nil
	for _, s := range in.sensors {
		_ = in.m.Unregister(s)
	}
	in.sensors = nil
}

// Install builds, registers and configures each sensor in order. On failure
// the sensors installed so far are removed again.
func Install(ctx context.Context, m *sensor.Manager, env Env, cfgs []config.SensorConfig) (*Installation, error) {
	if env.Logger == nil {
		env.Logger = slog.Default()
	}
	inst := &Installation{m: m}
	for _, sc := range cfgs {
		if err := inst.add(ctx, env, sc); err != nil {
			inst.Close()
			return nil, err
		}
	}
	return inst, nil
}

func (in *Installation) add(ctx context.Context, env Env, sc config.SensorConfig) error {
	const op = "install"
	b, ok := Lookup(sc.Driver)
	if !ok {
		return errcode.New(errcode.NotSupported, op, sc.Name+": unknown driver "+sc.Driver)
	}
	caps, err := sc.TypeMask()
	if err != nil {
		return err
	}
	edge, ok := platform.ParseEdge(sc.IRQEdge)
	if !ok {
		return errcode.New(errcode.InvalidArgument, op, sc.Name+": unknown irq_edge "+strconv.Quote(sc.IRQEdge))
	}
	log := env.Logger.With("sensor", sc.Name, "driver", sc.Driver)
	out, err := b.Build(BuildInput{
		Ctx:    ctx,
		Config: sc,
		Types:  caps,
		Buses:  env.Buses,
		Pins:   env.Pins,
		Clock:  in.m.Clock(),
		Events: in.m,
		Logger: log,
	})
	if err != nil {
		return &errcode.E{C: errcode.Of(err), Op: op, Msg: sc.Name, Err: err}
	}
	if out.Sensor == nil {
		return errcode.New(errcode.NoDevice, op, sc.Name+": builder returned no sensor")
	}
	if err := in.m.Register(out.Sensor); err != nil {
		return err
	}
	in.sensors = append(in.sensors, out.Sensor)

	if sc.PollRateMs > 0 {
		if err := in.m.SetPollRate(sc.Name, sc.PollRateMs); err != nil {
			return err
		}
	}
	for _, tc := range sc.Traits {
		tt, err := tc.Trait(caps)
		if err != nil {
			return errcode.Wrap(errcode.InvalidArgument, op, err)
		}
		if tc.HasThreshold() {
			err = in.m.SetThreshold(sc.Name, tt)
		} else {
			err = in.m.SetTypePollMultiple(sc.Name, tt)
		}
		if err != nil {
			return err
		}
	}

	req := out.IRQ
	if req == nil && sc.IRQPin != nil && env.Pins != nil {
		pin, ok := env.Pins.ByNumber(*sc.IRQPin)
		if !ok {
			return errcode.New(errcode.NoDevice, op, sc.Name+": no such irq pin")
		}
		req = &IRQRequest{Pin: pin, Edge: edge}
	}
	if req != nil && env.Bridge != nil {
		detach, err := env.Bridge.Attach(out.Sensor, req.Pin, req.Edge, req.Debounce)
		if err != nil {
			return err
		}
		in.detach = append(in.detach, detach)
	}
	log.Info("sensor installed", "types", caps.String(), "poll_ms", sc.PollRateMs)
	return nil
}
