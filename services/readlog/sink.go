package readlog

import (
	"context"
	"time"

	"sensorcode-go/services/sensor"
	"sensorcode-go/types"
)

// Listener returns a manager listener that queues every reading for the
// writer. It never blocks; a full queue drops the record.
func (s *Store) Listener() *sensor.Listener {
	return &sensor.Listener{Types: types.TypeAll, Func: func(sn *sensor.Sensor, t types.SensorType, d types.Data) {
		s.enqueue(record{reading: &Reading{
			Sensor: sn.Name(),
			Type:   t.String(),
			Fields: d.Fields(),
			Time:   sn.LastTimestamp().Time(),
		}})
	}}
}

// Notifier returns a manager notifier for the events in mask.
func (s *Store) Notifier(mask types.EventType) *sensor.Notifier {
	return &sensor.Notifier{Events: mask, Func: func(sn *sensor.Sensor, ev types.EventType) {
		s.enqueue(record{event: &Event{Sensor: sn.Name(), Event: ev.String(), Time: time.Now()}})
	}}
}

func (s *Store) enqueue(r record) {
	select {
	case s.q <- r:
	default:
		s.drops.Add(1)
		s.log.Debug("record dropped", "drops", s.drops.Load())
	}
}

// Run writes queued records until ctx ends, then flushes what is left.
func (s *Store) Run(ctx context.Context) error {
	wctx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			s.flush(wctx)
			return ctx.Err()
		case r := <-s.q:
			s.write(wctx, r)
		}
	}
}

func (s *Store) flush(ctx context.Context) {
	for {
		select {
		case r := <-s.q:
			s.write(ctx, r)
		default:
			return
		}
	}
}

func (s *Store) write(ctx context.Context, r record) {
	var err error
	switch {
	case r.reading != nil:
		err = s.WriteReading(ctx, *r.reading)
	case r.event != nil:
		err = s.WriteEvent(ctx, *r.event)
	}
	if err != nil {
		s.log.Warn("write failed", "err", err)
	}
}
