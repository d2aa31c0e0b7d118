// Package telemetry republishes sensor readings and events on the bus and
// answers read and poll-rate requests addressed to a sensor.
//
// Topics:
//
//	sensor/<name>/value/<type>   Reading, one per unit of data
//	sensor/<name>/event/<event>  Event
//	sensor/<name>/read           request: payload is a type mask name ("" for all)
//	sensor/<name>/poll_rate      request: payload is the new rate in ms
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"sensorcode-go/bus"
	"sensorcode-go/errcode"
	"sensorcode-go/services/sensor"
	"sensorcode-go/types"
)

const root = "sensor"

// RequestTimeout bounds a read request, lock wait included.
const RequestTimeout = time.Second

type Reading struct {
	Sensor string        `json:"sensor"`
	Type   string        `json:"type"`
	Fields []types.Field `json:"fields"`
	Time   time.Time     `json:"time"`
}

type Event struct {
	Sensor string    `json:"sensor"`
	Event  string    `json:"event"`
	Time   time.Time `json:"time"`
}

// Reply answers a request. Err holds the error code on failure.
type Reply struct {
	Readings []Reading `json:"readings,omitempty"`
	Err      string    `json:"err,omitempty"`
}

func ValueTopic(s string, t types.SensorType) bus.Topic { return bus.T(root, s, "value", t.String()) }
func EventTopic(s string, e types.EventType) bus.Topic  { return bus.T(root, s, "event", e.String()) }
func ReadTopic(s string) bus.Topic                      { return bus.T(root, s, "read") }
func PollRateTopic(s string) bus.Topic                  { return bus.T(root, s, "poll_rate") }

type Service struct {
	m    *sensor.Manager
	conn *bus.Connection
	log  *slog.Logger

	mu       sync.Mutex
	attached map[*sensor.Sensor]attachment
}

type attachment struct {
	l *sensor.Listener
	n *sensor.Notifier
}

func New(m *sensor.Manager, conn *bus.Connection, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		m:        m,
		conn:     conn,
		log:      log.With("component", "telemetry"),
		attached: map[*sensor.Sensor]attachment{},
	}
}

func reading(s *sensor.Sensor, t types.SensorType, d types.Data) Reading {
	return Reading{Sensor: s.Name(), Type: t.String(), Fields: d.Fields(), Time: s.LastTimestamp().Time()}
}

// Attach publishes every reading of s, and the events in mask when mask is
// non-zero. The manager hands an event to one notifier only, so other event
// consumers are passed as chain and run after the publish.
func (svc *Service) Attach(s *sensor.Sensor, mask types.EventType, chain ...sensor.NotifierFunc) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if _, dup := svc.attached[s]; dup {
		return errcode.New(errcode.InvalidArgument, "telemetry_attach", s.Name()+" already attached")
	}
	a := attachment{l: &sensor.Listener{Types: types.TypeAll, Func: svc.onData}}
	if err := svc.m.RegisterListener(s, a.l); err != nil {
		return err
	}
	if mask != 0 {
		a.n = &sensor.Notifier{Events: mask, Func: func(s *sensor.Sensor, ev types.EventType) {
			svc.onEvent(s, ev)
			for _, fn := range chain {
				fn(s, ev)
			}
		}}
		if err := svc.m.RegisterNotifier(s, a.n); err != nil {
			_ = svc.m.UnregisterListener(s, a.l)
			return err
		}
	}
	svc.attached[s] = a
	return nil
}

// Detach stops publishing for s.
func (svc *Service) Detach(s *sensor.Sensor) {
	svc.mu.Lock()
	a, ok := svc.attached[s]
	delete(svc.attached, s)
	svc.mu.Unlock()
	if !ok {
		return
	}
	_ = svc.m.UnregisterListener(s, a.l)
	if a.n != nil {
		_ = svc.m.UnregisterNotifier(s, a.n)
	}
}

func (svc *Service) onData(s *sensor.Sensor, t types.SensorType, d types.Data) {
	svc.conn.Publish(svc.conn.NewMessage(ValueTopic(s.Name(), t), reading(s, t, d), true))
}

func (svc *Service) onEvent(s *sensor.Sensor, ev types.EventType) {
	svc.conn.Publish(svc.conn.NewMessage(EventTopic(s.Name(), ev), Event{Sensor: s.Name(), Event: ev.String(), Time: time.Now()}, false))
}

type requests struct{ reads, rates *bus.Subscription }

func (svc *Service) subscribe() requests {
	return requests{
		reads: svc.conn.Subscribe(bus.T(root, "+", "read")),
		rates: svc.conn.Subscribe(bus.T(root, "+", "poll_rate")),
	}
}

// Serve answers requests until ctx ends.
func (svc *Service) Serve(ctx context.Context) error {
	return svc.serve(ctx, svc.subscribe())
}

func (svc *Service) serve(ctx context.Context, rq requests) error {
	defer rq.reads.Unsubscribe()
	defer rq.rates.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-rq.reads.Channel():
			if !ok {
				return nil
			}
			svc.conn.Reply(msg, svc.handleRead(ctx, msg), false)
		case msg, ok := <-rq.rates.Channel():
			if !ok {
				return nil
			}
			svc.conn.Reply(msg, svc.handlePollRate(msg), false)
		}
	}
}

func fail(err error) Reply { return Reply{Err: errcode.Of(err).Error()} }

func (svc *Service) handleRead(ctx context.Context, msg *bus.Message) Reply {
	name := msg.Topic[1]
	s := svc.m.Lookup(name)
	if s == nil {
		return fail(errcode.NoDevice)
	}
	mask := s.Enabled()
	if p, _ := msg.Payload.(string); p != "" {
		t, ok := types.ParseSensorType(p)
		if !ok {
			return fail(errcode.InvalidArgument)
		}
		mask = t
	}
	rctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()
	var out Reply
	err := svc.m.Read(rctx, s, mask, func(s *sensor.Sensor, t types.SensorType, d types.Data) error {
		out.Readings = append(out.Readings, reading(s, t, d))
		return nil
	}, sensor.IgnoreListeners())
	if err != nil {
		svc.log.Debug("read request failed", "sensor", name, "err", err)
		return fail(err)
	}
	return out
}

func (svc *Service) handlePollRate(msg *bus.Message) Reply {
	var ms uint32
	switch v := msg.Payload.(type) {
	case uint32:
		ms = v
	case int:
		if v < 0 {
			return fail(errcode.InvalidArgument)
		}
		ms = uint32(v)
	default:
		return fail(errcode.InvalidArgument)
	}
	if err := svc.m.SetPollRate(msg.Topic[1], ms); err != nil {
		return fail(err)
	}
	return Reply{}
}
