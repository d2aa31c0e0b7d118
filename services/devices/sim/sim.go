// Package sim provides a simulated multi-type sensor. Readings follow a sine
// wave around a per-type base value, and the driver implements every
// optional capability so the manager's threshold, notification and
// interrupt paths can run without hardware.
package sim

import (
	"context"
	"errors"
	"math"
	"strconv"
	"sync"
	"time"

	"sensorcode-go/errcode"
	"sensorcode-go/services/devices"
	"sensorcode-go/services/platform"
	"sensorcode-go/services/sensor"
	"sensorcode-go/types"
	"sensorcode-go/x/mathx"
	"sensorcode-go/x/timex"
)

func init() { devices.RegisterBuilder("sim", builder{}) }

// ErrBus is returned by reads chosen to fail by Params.FailEvery.
var ErrBus = errors.New("sim: bus nack")

type Params struct {
	Base      map[types.SensorType]float64
	Amplitude float64
	Period    time.Duration
	// FailEvery makes every Nth read fail; 0 never fails.
	FailEvery uint64
	// TapEvery injects a single-tap event at this interval; 0 disables.
	TapEvery time.Duration
}

var defaultBase = map[types.DataKind]float64{
	types.KindTemp:  20,
	types.KindHumid: 50,
	types.KindPress: 101325,
}

// ParseParams reads the config's numeric params. Keys are sensor type names
// (base values) plus amplitude, period_s, fail_every and tap_every_s.
func ParseParams(raw map[string]float64) (Params, error) {
	p := Params{Base: map[types.SensorType]float64{}, Period: time.Minute}
	for k, v := range raw {
		switch k {
		case "amplitude":
			p.Amplitude = v
		case "period_s":
			if v <= 0 {
				return p, errcode.New(errcode.InvalidArgument, "sim", "period_s must be positive")
			}
			p.Period = time.Duration(v * float64(time.Second))
		case "fail_every":
			p.FailEvery = uint64(mathx.Max(v, 0))
		case "tap_every_s":
			p.TapEvery = time.Duration(mathx.Max(v, 0) * float64(time.Second))
		default:
			t, ok := types.ParseSensorType(k)
			if !ok || !t.Single() {
				return p, errcode.New(errcode.InvalidArgument, "sim", "unknown param "+k)
			}
			p.Base[t] = v
		}
	}
	return p, nil
}

type thresholds struct{ low, high types.Data }

// Driver is the simulated chip.
type Driver struct {
	clock  timex.Clock
	events devices.EventSink
	params Params
	start  timex.Tick

	// Set once by the builder.
	s   *sensor.Sensor
	pin *platform.FakePin

	mu      sync.Mutex
	reads   uint64
	vtypes  map[types.SensorType]types.ValueType
	hw      map[types.SensorType]thresholds
	notify  types.EventType
	pending types.EventType
	irqs    int
}

// New returns an unattached driver; Attach binds it to its sensor.
func New(clock timex.Clock, events devices.EventSink, p Params) *Driver {
	if p.Base == nil {
		p.Base = map[types.SensorType]float64{}
	}
	if p.Period <= 0 {
		p.Period = time.Minute
	}
	return &Driver{
		clock:  clock,
		events: events,
		params: p,
		start:  clock.Now(),
		vtypes: map[types.SensorType]types.ValueType{},
		hw:     map[types.SensorType]thresholds{},
	}
}

// Attach binds the driver to s and, optionally, to the pin it pulses when
// an event latches.
func (d *Driver) Attach(s *sensor.Sensor, pin *platform.FakePin) {
	d.s = s
	d.pin = pin
}

// Value computes the current reading of t.
func (d *Driver) Value(t types.SensorType) types.Data {
	kind := types.KindOf(t)
	base, ok := d.params.Base[t]
	if !ok {
		base = defaultBase[kind]
	}
	elapsed := timex.TicksToDuration(d.clock, uint32(d.clock.Now().Sub(d.start)))
	phase := 2 * math.Pi * float64(elapsed) / float64(d.params.Period)

	n := len(types.Build(kind, nil).Fields())
	vals := make([]float64, n)
	for i := range vals {
		v := base + d.params.Amplitude*math.Sin(phase+float64(i)*math.Pi/2)
		if kind == types.KindHumid {
			v = mathx.Clamp(v, 0, 100)
		}
		vals[i] = v
	}
	return types.Build(kind, vals)
}

func (d *Driver) Read(ctx context.Context, s *sensor.Sensor, mask types.SensorType, fn sensor.DataFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	d.reads++
	fail := d.params.FailEvery > 0 && d.reads%d.params.FailEvery == 0
	d.mu.Unlock()
	if fail {
		return ErrBus
	}
	var err error
	(mask & s.Types()).Each(func(t types.SensorType) {
		if err == nil {
			err = fn(s, t, d.Value(t))
		}
	})
	return err
}

// Reads counts Read calls, failed ones included.
func (d *Driver) Reads() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads
}

func defaultValueType(t types.SensorType) types.ValueType {
	if len(types.Build(types.KindOf(t), nil).Fields()) == 1 {
		return types.ValueFloat
	}
	return types.ValueFloatTriplet
}

func (d *Driver) GetConfig(_ *sensor.Sensor, t types.SensorType) (types.SensorConfig, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	vt, ok := d.vtypes[t]
	if !ok {
		vt = defaultValueType(t)
	}
	return types.SensorConfig{Type: t, ValueType: vt}, nil
}

// SetConfig accepts the float encodings only.
func (d *Driver) SetConfig(_ *sensor.Sensor, cfg types.SensorConfig) error {
	switch cfg.ValueType {
	case types.ValueFloat, types.ValueFloatTriplet:
	default:
		return errcode.New(errcode.NotSupported, "sim_set_config", "float encodings only")
	}
	d.mu.Lock()
	d.vtypes[cfg.Type] = cfg.ValueType
	d.mu.Unlock()
	return nil
}

func (d *Driver) SetTriggerThreshold(_ *sensor.Sensor, t types.SensorType, low, high types.Data) error {
	d.mu.Lock()
	d.hw[t] = thresholds{low: low, high: high}
	d.mu.Unlock()
	return nil
}

func (d *Driver) ClearLowThreshold(_ *sensor.Sensor, t types.SensorType) error {
	return d.clearBound(t, func(th *thresholds, empty types.Data) { th.low = empty })
}

func (d *Driver) ClearHighThreshold(_ *sensor.Sensor, t types.SensorType) error {
	return d.clearBound(t, func(th *thresholds, empty types.Data) { th.high = empty })
}

func (d *Driver) clearBound(t types.SensorType, set func(*thresholds, types.Data)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	th, ok := d.hw[t]
	if !ok {
		return errcode.New(errcode.InvalidArgument, "sim_clear_threshold", "no threshold for "+t.String())
	}
	set(&th, types.Build(types.KindOf(t), nil))
	d.hw[t] = th
	return nil
}

// Threshold reports the bounds programmed for t.
func (d *Driver) Threshold(t types.SensorType) (low, high types.Data, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	th, ok := d.hw[t]
	return th.low, th.high, ok
}

func (d *Driver) SetNotification(_ *sensor.Sensor, ev types.EventType) error {
	d.mu.Lock()
	d.notify |= ev
	d.mu.Unlock()
	return nil
}

func (d *Driver) UnsetNotification(_ *sensor.Sensor, ev types.EventType) error {
	d.mu.Lock()
	d.notify &^= ev
	d.pending &^= ev
	d.mu.Unlock()
	return nil
}

// Notifications reports the enabled chip events.
func (d *Driver) Notifications() types.EventType {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.notify
}

// Inject latches ev as if the chip had detected it and raises the interrupt
// line. Events without an enabled notification are ignored, as a masked
// chip would. It reports whether anything latched.
func (d *Driver) Inject(ev types.EventType) bool {
	d.mu.Lock()
	ev &= d.notify
	d.pending |= ev
	d.mu.Unlock()
	if ev == 0 || d.s == nil {
		return false
	}
	if d.pin != nil {
		d.pin.Pulse()
		return true
	}
	d.s.SignalInterrupt()
	return d.events.PutInterrupt(d.s) == nil
}

// HandleInterrupt runs on the manager's event loop and posts the latched
// events.
func (d *Driver) HandleInterrupt(s *sensor.Sensor) error {
	d.mu.Lock()
	ev := d.pending
	d.pending = 0
	d.irqs++
	d.mu.Unlock()
	ev.Each(func(e types.EventType) { d.events.PutNotify(s, e) })
	return nil
}

// Interrupts counts HandleInterrupt calls.
func (d *Driver) Interrupts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.irqs
}

// runTapper injects a single tap every interval until ctx ends.
func (d *Driver) runTapper(ctx context.Context, every time.Duration) {
	var (
		mu  sync.Mutex
		cur timex.Timer
		arm func()
	)
	arm = func() {
		mu.Lock()
		defer mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		cur = d.clock.AfterFunc(every, func() {
			if ctx.Err() != nil {
				return
			}
			d.Inject(types.EventSingleTap)
			arm()
		})
	}
	arm()
	context.AfterFunc(ctx, func() {
		mu.Lock()
		defer mu.Unlock()
		if cur != nil {
			cur.Stop()
		}
	})
}

type builder struct{}

func (builder) Build(in devices.BuildInput) (devices.BuildOutput, error) {
	p, err := ParseParams(in.Config.Params)
	if err != nil {
		return devices.BuildOutput{}, err
	}
	edge, ok := platform.ParseEdge(in.Config.IRQEdge)
	if !ok {
		return devices.BuildOutput{}, errcode.New(errcode.InvalidArgument, "sim", "unknown irq_edge "+strconv.Quote(in.Config.IRQEdge))
	}
	d := New(in.Clock, in.Events, p)
	s := sensor.New(in.Config.Name, d, in.Types)
	out := devices.BuildOutput{Sensor: s}

	var fake *platform.FakePin
	if in.Config.IRQPin != nil && in.Pins != nil {
		pin, ok := in.Pins.ByNumber(*in.Config.IRQPin)
		if !ok {
			return devices.BuildOutput{}, errcode.New(errcode.NoDevice, "sim", "no such irq pin")
		}
		fake, _ = pin.(*platform.FakePin)
		out.IRQ = &devices.IRQRequest{Pin: pin, Edge: edge}
	}
	d.Attach(s, fake)

	if p.TapEvery > 0 {
		ctx := in.Ctx
		if ctx == nil {
			ctx = context.Background()
		}
		d.runTapper(ctx, p.TapEvery)
	}
	return out, nil
}
