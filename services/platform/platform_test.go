package platform

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorcode-go/errcode"
	"sensorcode-go/services/sensor"
	"sensorcode-go/types"
)

type nopDriver struct{}

func (nopDriver) Read(context.Context, *sensor.Sensor, types.SensorType, sensor.DataFunc) error {
	return nil
}
func (nopDriver) GetConfig(*sensor.Sensor, types.SensorType) (types.SensorConfig, error) {
	return types.SensorConfig{}, nil
}
func (nopDriver) SetConfig(*sensor.Sensor, types.SensorConfig) error { return nil }

type chanSink struct {
	ch  chan *sensor.Sensor
	err error
}

func (c *chanSink) PutInterrupt(s *sensor.Sensor) error {
	if c.err != nil {
		return c.err
	}
	c.ch <- s
	return nil
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestHostI2CResponder(t *testing.T) {
	f := DefaultI2CFactory()
	bus, ok := f.ByID("i2c0")
	require.True(t, ok)
	_, ok = f.ByID("i2c9")
	assert.False(t, ok)

	host, _ := f.Host("i2c0")
	host.Attach(0x44, func(addr uint16, w, r []byte) error {
		for i := range r {
			r[i] = w[0] + byte(i)
		}
		return nil
	})

	buf := make([]byte, 3)
	require.NoError(t, bus.Tx(0x44, []byte{0x10}, buf))
	assert.Equal(t, []byte{0x10, 0x11, 0x12}, buf)
	assert.Equal(t, uint16(0x44), host.LastTx.Addr)
	assert.Equal(t, 3, host.LastTx.Rn)

	// No responder: zeros, no error.
	buf = []byte{9, 9}
	require.NoError(t, bus.Tx(0x45, nil, buf))
	assert.Equal(t, []byte{0, 0}, buf)

	nack := errors.New("nack")
	host.Attach(0x44, func(uint16, []byte, []byte) error { return nack })
	assert.ErrorIs(t, bus.Tx(0x44, nil, nil), nack)
	assert.Equal(t, 3, host.Transfers())
}

func TestFakePinEdges(t *testing.T) {
	pins := NewHostPinFactory()
	p := pins.Fake(4)
	same, _ := pins.ByNumber(4)
	assert.Same(t, p, same.(*FakePin))

	n := 0
	require.NoError(t, p.SetIRQ(EdgeRising, func() { n++ }))
	p.Set(true)
	p.Set(true)
	p.Set(false)
	assert.Equal(t, 1, n)

	require.NoError(t, p.SetIRQ(EdgeBoth, func() { n++ }))
	p.Pulse()
	assert.Equal(t, 3, n)

	require.NoError(t, p.ClearIRQ())
	p.Pulse()
	assert.Equal(t, 3, n)
}

func TestParseEdge(t *testing.T) {
	e, ok := ParseEdge("")
	require.True(t, ok)
	assert.Equal(t, EdgeRising, e)
	e, ok = ParseEdge("both")
	require.True(t, ok)
	assert.Equal(t, "both", e.String())
	_, ok = ParseEdge("sideways")
	assert.False(t, ok)
}

func TestBridgeSignalsAndPosts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &chanSink{ch: make(chan *sensor.Sensor, 4)}
	b := NewBridge(sink, 4, quiet())
	go func() { _ = b.Run(ctx) }()

	s := sensor.New("imu0", nopDriver{}, types.TypeAccelerometer)
	pin := NewFakePin(7)
	detach, err := b.Attach(s, pin, EdgeRising, 0)
	require.NoError(t, err)

	pin.Pulse()

	wctx, wcancel := context.WithTimeout(ctx, time.Second)
	defer wcancel()
	require.NoError(t, s.WaitInterrupt(wctx))

	select {
	case got := <-sink.ch:
		assert.Same(t, s, got)
	case <-time.After(time.Second):
		t.Fatal("interrupt not posted")
	}
	assert.Eventually(t, func() bool { return b.Delivered() == 1 }, time.Second, time.Millisecond)

	detach()
	pin.Pulse()
	short, scancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer scancel()
	assert.ErrorIs(t, s.WaitInterrupt(short), errcode.Timeout)
}

func TestBridgeDropsWhenWorkerBehind(t *testing.T) {
	b := NewBridge(&chanSink{ch: make(chan *sensor.Sensor, 4)}, 1, quiet())
	s := sensor.New("env0", nopDriver{}, types.TypeTemperature)
	pin := NewFakePin(2)
	_, err := b.Attach(s, pin, EdgeRising, 0)
	require.NoError(t, err)

	// No worker running: the first edge fills the queue.
	pin.Pulse()
	pin.Pulse()
	pin.Pulse()
	assert.Equal(t, uint32(2), b.ISRDrops())
}

func TestBridgeDebounce(t *testing.T) {
	sink := &chanSink{ch: make(chan *sensor.Sensor, 4)}
	b := NewBridge(sink, 4, quiet())
	s := sensor.New("env0", nopDriver{}, types.TypeTemperature)
	pin := NewFakePin(2)
	_, err := b.Attach(s, pin, EdgeRising, time.Hour)
	require.NoError(t, err)

	pin.Pulse()
	pin.Pulse()
	for len(b.isrQ) > 0 {
		b.handle(<-b.isrQ)
	}
	assert.Len(t, sink.ch, 1)
	assert.Equal(t, uint32(1), b.Delivered())
}

func TestBridgeAttachErrors(t *testing.T) {
	b := NewBridge(&chanSink{ch: make(chan *sensor.Sensor, 1)}, 1, quiet())
	s := sensor.New("env0", nopDriver{}, types.TypeTemperature)

	_, err := b.Attach(nil, NewFakePin(1), EdgeRising, 0)
	assert.ErrorIs(t, err, errcode.NoDevice)
	_, err = b.Attach(s, NewFakePin(1), EdgeNone, 0)
	assert.ErrorIs(t, err, errcode.InvalidArgument)

	_, err = b.Attach(s, NewFakePin(1), EdgeRising, 0)
	require.NoError(t, err)
	_, err = b.Attach(s, NewFakePin(2), EdgeRising, 0)
	assert.ErrorIs(t, err, errcode.InvalidArgument)
}

func TestBridgeSinkRejection(t *testing.T) {
	sink := &chanSink{ch: make(chan *sensor.Sensor, 1), err: errcode.NoDevice}
	b := NewBridge(sink, 2, quiet())
	s := sensor.New("env0", nopDriver{}, types.TypeTemperature)
	pin := NewFakePin(3)
	_, err := b.Attach(s, pin, EdgeRising, 0)
	require.NoError(t, err)

	pin.Pulse()
	b.handle(<-b.isrQ)
	assert.Zero(t, b.Delivered())
}
