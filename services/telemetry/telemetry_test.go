package telemetry

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorcode-go/bus"
	"sensorcode-go/services/sensor"
	"sensorcode-go/types"
	"sensorcode-go/x/timex"
)

type constDriver struct{}

func (constDriver) Read(_ context.Context, s *sensor.Sensor, mask types.SensorType, fn sensor.DataFunc) error {
	var err error
	mask.Each(func(t types.SensorType) {
		if err == nil {
			err = fn(s, t, types.Build(types.KindOf(t), []float64{21}))
		}
	})
	return err
}
func (constDriver) GetConfig(*sensor.Sensor, types.SensorType) (types.SensorConfig, error) {
	return types.SensorConfig{}, nil
}
func (constDriver) SetConfig(*sensor.Sensor, types.SensorConfig) error { return nil }

type fixture struct {
	m      *sensor.Manager
	s      *sensor.Sensor
	b      *bus.Bus
	client *bus.Connection
	svc    *Service
}

func setup(t *testing.T) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := sensor.NewManager(sensor.Config{Clock: timex.NewFake(1000, 0), Logger: log})
	t.Cleanup(m.Close)
	s := sensor.New("env0", constDriver{}, types.TypeTemperature|types.TypePressure)
	require.NoError(t, m.Register(s))

	b := bus.NewBus(8)
	return &fixture{m: m, s: s, b: b, client: b.NewConnection("client"), svc: New(m, b.NewConnection("telemetry"), log)}
}

func recv(t *testing.T, sub *bus.Subscription) *bus.Message {
	t.Helper()
	select {
	case msg := <-sub.Channel():
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message")
		return nil
	}
}

func TestReadingsPublished(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.svc.Attach(f.s, 0))
	assert.Error(t, f.svc.Attach(f.s, 0))

	sub := f.client.Subscribe(bus.T("sensor", "env0", "value", "+"))
	require.NoError(t, f.m.Read(context.Background(), f.s, types.TypeTemperature, nil))

	msg := recv(t, sub)
	assert.Equal(t, "sensor/env0/value/temperature", msg.Topic.String())
	assert.True(t, msg.Retained)
	r := msg.Payload.(Reading)
	assert.Equal(t, "env0", r.Sensor)
	assert.Equal(t, []types.Field{types.F(21)}, r.Fields)
	assert.False(t, r.Time.IsZero())

	f.svc.Detach(f.s)
	require.NoError(t, f.m.Read(context.Background(), f.s, types.TypeTemperature, nil))
	select {
	case msg := <-sub.Channel():
		t.Fatalf("unexpected %s after detach", msg.Topic)
	default:
	}
}

func TestEventsPublished(t *testing.T) {
	f := setup(t)
	var chained []types.EventType
	require.NoError(t, f.svc.Attach(f.s, types.EventThreshold, func(_ *sensor.Sensor, ev types.EventType) {
		chained = append(chained, ev)
	}))
	sub := f.client.Subscribe(bus.T("sensor", "env0", "event", "#"))

	require.True(t, f.m.PutNotify(f.s, types.EventThreshold))
	f.m.Drain()

	msg := recv(t, sub)
	assert.Equal(t, EventTopic("env0", types.EventThreshold), msg.Topic)
	assert.Equal(t, "threshold", msg.Payload.(Event).Event)
	assert.Equal(t, []types.EventType{types.EventThreshold}, chained)
}

func TestReadRequest(t *testing.T) {
	f := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rq := f.svc.subscribe()
	go func() { _ = f.svc.serve(ctx, rq) }()

	// Listener output is suppressed for request reads.
	require.NoError(t, f.svc.Attach(f.s, 0))
	values := f.client.Subscribe(bus.T("sensor", "env0", "value", "+"))

	reply, err := f.client.RequestWait(ctx, f.client.NewMessage(ReadTopic("env0"), "pressure", false))
	require.NoError(t, err)
	out := reply.Payload.(Reply)
	assert.Empty(t, out.Err)
	require.Len(t, out.Readings, 1)
	assert.Equal(t, "pressure", out.Readings[0].Type)
	assert.Len(t, values.Channel(), 0)

	reply, err = f.client.RequestWait(ctx, f.client.NewMessage(ReadTopic("env0"), "", false))
	require.NoError(t, err)
	assert.Len(t, reply.Payload.(Reply).Readings, 2)

	reply, err = f.client.RequestWait(ctx, f.client.NewMessage(ReadTopic("nope"), "", false))
	require.NoError(t, err)
	assert.Equal(t, "no_device", reply.Payload.(Reply).Err)

	reply, err = f.client.RequestWait(ctx, f.client.NewMessage(ReadTopic("env0"), "gyroscope", false))
	require.NoError(t, err)
	assert.Equal(t, "invalid_argument", reply.Payload.(Reply).Err)
}

func TestPollRateRequest(t *testing.T) {
	f := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rq := f.svc.subscribe()
	go func() { _ = f.svc.serve(ctx, rq) }()

	reply, err := f.client.RequestWait(ctx, f.client.NewMessage(PollRateTopic("env0"), 250, false))
	require.NoError(t, err)
	assert.Empty(t, reply.Payload.(Reply).Err)
	assert.Equal(t, uint32(250), f.s.PollRate())

	reply, err = f.client.RequestWait(ctx, f.client.NewMessage(PollRateTopic("env0"), "fast", false))
	require.NoError(t, err)
	assert.Equal(t, "invalid_argument", reply.Payload.(Reply).Err)

	reply, err = f.client.RequestWait(ctx, f.client.NewMessage(PollRateTopic("ghost"), uint32(10), false))
	require.NoError(t, err)
	assert.Equal(t, "invalid_argument", reply.Payload.(Reply).Err)
}
