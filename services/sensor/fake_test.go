package sensor

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"sensorcode-go/types"
	"sensorcode-go/x/timex"
)

// fakeDriver implements every optional capability.
type fakeDriver struct {
	mu         sync.Mutex
	reads      []types.SensorType
	values     map[types.SensorType]types.Data
	readErr    error
	threshErr  error
	thresholds []types.SensorType
	cleared    []string
	notifyErr  map[types.EventType]error
	notifySet  []types.EventType
	notifyOff  []types.EventType
	irqs       int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{values: map[types.SensorType]types.Data{}}
}

func (d *fakeDriver) set(t types.SensorType, v types.Data) {
	d.mu.Lock()
	d.values[t] = v
	d.mu.Unlock()
}

func (d *fakeDriver) Read(_ context.Context, s *Sensor, mask types.SensorType, fn DataFunc) error {
	d.mu.Lock()
	d.reads = append(d.reads, mask)
	err := d.readErr
	vals := make(map[types.SensorType]types.Data, len(d.values))
	for k, v := range d.values {
		vals[k] = v
	}
	d.mu.Unlock()
	if err != nil {
		return err
	}
	var ferr error
	mask.Each(func(t types.SensorType) {
		if ferr != nil {
			return
		}
		v, ok := vals[t]
		if !ok {
			v = types.Build(types.KindOf(t), []float64{1, 2, 3, 4})
		}
		ferr = fn(s, t, v)
	})
	return ferr
}

func (d *fakeDriver) GetConfig(_ *Sensor, t types.SensorType) (types.SensorConfig, error) {
	return types.SensorConfig{Type: t, ValueType: types.ValueFloat}, nil
}

func (d *fakeDriver) SetConfig(*Sensor, types.SensorConfig) error { return nil }

func (d *fakeDriver) SetTriggerThreshold(_ *Sensor, t types.SensorType, _, _ types.Data) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.threshErr != nil {
		return d.threshErr
	}
	d.thresholds = append(d.thresholds, t)
	return nil
}

func (d *fakeDriver) ClearLowThreshold(_ *Sensor, t types.SensorType) error {
	d.mu.Lock()
	d.cleared = append(d.cleared, "low:"+t.String())
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) ClearHighThreshold(_ *Sensor, t types.SensorType) error {
	d.mu.Lock()
	d.cleared = append(d.cleared, "high:"+t.String())
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) SetNotification(_ *Sensor, ev types.EventType) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.notifyErr[ev]; err != nil {
		return err
	}
	d.notifySet = append(d.notifySet, ev)
	return nil
}

func (d *fakeDriver) UnsetNotification(_ *Sensor, ev types.EventType) error {
	d.mu.Lock()
	d.notifyOff = append(d.notifyOff, ev)
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) HandleInterrupt(*Sensor) error {
	d.mu.Lock()
	d.irqs++
	d.mu.Unlock()
	return nil
}

// readCount returns how many reads included t (all reads when t is 0).
func (d *fakeDriver) readCount(t types.SensorType) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, m := range d.reads {
		if t == 0 || m&t != 0 {
			n++
		}
	}
	return n
}

func (d *fakeDriver) interrupts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.irqs
}

// basicDriver exposes only the required contract.
type basicDriver struct{ d *fakeDriver }

func (b basicDriver) Read(ctx context.Context, s *Sensor, mask types.SensorType, fn DataFunc) error {
	return b.d.Read(ctx, s, mask, fn)
}
func (b basicDriver) GetConfig(s *Sensor, t types.SensorType) (types.SensorConfig, error) {
	return b.d.GetConfig(s, t)
}
func (b basicDriver) SetConfig(s *Sensor, cfg types.SensorConfig) error { return b.d.SetConfig(s, cfg) }

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestManager(t *testing.T, pool int) (*Manager, *timex.Fake) {
	t.Helper()
	clk := timex.NewFake(1000, 0)
	m := NewManager(Config{Clock: clk, Logger: quietLogger(), NotifyPoolSize: pool, LockTimeout: 50 * time.Millisecond})
	t.Cleanup(m.Close)
	return m, clk
}

// step advances the clock and runs whatever the callouts queued.
func step(clk *timex.Fake, m *Manager, d time.Duration) {
	clk.Advance(d)
	m.Drain()
}

func addSensor(t *testing.T, m *Manager, name string, caps types.SensorType, rateMs uint32) (*Sensor, *fakeDriver) {
	t.Helper()
	d := newFakeDriver()
	s := New(name, d, caps)
	if err := m.Register(s); err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	if rateMs > 0 {
		if err := m.SetPollRate(name, rateMs); err != nil {
			t.Fatalf("set poll rate %s: %v", name, err)
		}
	}
	return s, d
}
