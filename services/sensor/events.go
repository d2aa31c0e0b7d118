package sensor

import (
	"context"

	"sensorcode-go/errcode"
	"sensorcode-go/services/sensor/internal/evq"
	"sensorcode-go/types"
)

// PutNotify queues delivery of ev for s to its notifiers. It never blocks:
// when the pool is exhausted the event is dropped and counted. Safe from any
// goroutine, including interrupt handlers. Sensors not registered with m
// are refused.
func (m *Manager) PutNotify(s *Sensor, ev types.EventType) bool {
	if s == nil || s.owner.Load() != m {
		return false
	}
	b, ok := m.pool.Get()
	if !ok {
		m.notifyDrops.Add(1)
		m.log.Debug("notify dropped", "sensor", s.name, "event", ev.String(), "err", errcode.ResourceExhausted)
		return false
	}
	b.typ, b.s = ev, s
	b.ev.Fn = m.handleNotify
	b.ev.Arg = b
	if !m.q.Put(&b.ev) {
		b.s = nil
		m.pool.Put(b)
		return false
	}
	return true
}

// handleNotify hands the event to the first notifier that wants it and
// always returns the block to the pool. Events for a sensor unregistered
// since they were queued are discarded.
func (m *Manager) handleNotify(ev *evq.Event) {
	b := ev.Arg.(*notifyEvent)
	s, typ := b.s, b.typ
	b.s, b.ev.Arg = nil, nil
	m.pool.Put(b)
	if s.owner.Load() != m {
		return
	}

	for _, n := range s.notifierSnapshot() {
		if n.Events&typ != 0 && n.active.Load() {
			m.notified.Add(1)
			n.Func(s, typ)
			return
		}
	}
}

// PutInterrupt defers s's interrupt to the event loop, where the driver's
// HandleInterrupt runs under the sensor lock. Repeated calls before the loop
// runs coalesce. Safe from interrupt context.
func (m *Manager) PutInterrupt(s *Sensor) error {
	if s == nil || s.owner.Load() != m {
		return errcode.New(errcode.NoDevice, "put_interrupt", "sensor not registered")
	}
	m.interrupts.Add(1)
	m.q.Put(&s.irqEv)
	return nil
}

func (m *Manager) handleInterrupt(ev *evq.Event) {
	s := ev.Arg.(*Sensor)
	if s.owner.Load() != m {
		return
	}
	id, ok := s.drv.(InterruptDriver)
	if !ok {
		m.log.Debug("interrupt without handler", "sensor", s.name)
		return
	}
	ctx, cancel := m.lockCtx()
	defer cancel()
	if err := s.acquire(ctx); err != nil {
		m.log.Warn("interrupt dropped", "sensor", s.name, "err", err)
		return
	}
	defer s.release()
	if err := id.HandleInterrupt(s); err != nil {
		m.log.Warn("interrupt handler failed", "sensor", s.name, "err", errcode.MapDriverErr("handle_interrupt", err))
	}
}

// PutReadRequest asks the event loop to read mask from s, delivering to its
// listeners. Requests made before the loop runs merge into one read.
func (m *Manager) PutReadRequest(s *Sensor, mask types.SensorType) error {
	if s == nil || s.owner.Load() != m {
		return errcode.New(errcode.NoDevice, "put_read_request", "sensor not registered")
	}
	if mask&s.types == 0 {
		return errcode.New(errcode.InvalidArgument, "put_read_request", s.name+": no supported type in mask")
	}
	s.readMask.Or(uint32(mask & s.types))
	m.q.Put(&s.readEv)
	return nil
}

func (m *Manager) handleReadRequest(ev *evq.Event) {
	s := ev.Arg.(*Sensor)
	mask := types.SensorType(s.readMask.Swap(0))
	if mask == 0 || s.owner.Load() != m {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.readTimeout)
	defer cancel()
	if err := m.Read(ctx, s, mask, nil); err != nil {
		m.log.Warn("requested read failed", "sensor", s.name, "types", mask.String(), "err", err)
	}
}
