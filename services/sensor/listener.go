package sensor

import (
	"errors"
	"slices"
	"sync/atomic"

	"sensorcode-go/errcode"
	"sensorcode-go/types"
)

type ListenerFunc func(s *Sensor, t types.SensorType, d types.Data)

// Listener receives every read of a type in Types, synchronously and in
// registration order.
type Listener struct {
	Types types.SensorType
	Func  ListenerFunc

	active atomic.Bool
}

type NotifierFunc func(s *Sensor, ev types.EventType)

// Notifier receives events in Events from the event loop.
type Notifier struct {
	Events types.EventType
	Func   NotifierFunc

	active atomic.Bool
}

// The collections are copy-on-write: dispatch iterates a snapshot and checks
// each entry's active flag, so removal during dispatch takes effect for the
// entries not yet visited.

func (s *Sensor) addListener(l *Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(s.listeners, l) {
		return errcode.New(errcode.InvalidArgument, "register_listener", s.name+": already registered")
	}
	l.active.Store(true)
	s.listeners = append(slices.Clip(s.listeners), l)
	return nil
}

func (s *Sensor) removeListener(l *Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.Index(s.listeners, l)
	if i < 0 {
		return false
	}
	l.active.Store(false)
	next := make([]*Listener, 0, len(s.listeners)-1)
	next = append(next, s.listeners[:i]...)
	s.listeners = append(next, s.listeners[i+1:]...)
	return true
}

func (m *Manager) RegisterListener(s *Sensor, l *Listener) error {
	if s == nil {
		return errcode.New(errcode.NoDevice, "register_listener", "nil sensor")
	}
	if l == nil || l.Func == nil || l.Types == 0 {
		return errcode.New(errcode.InvalidArgument, "register_listener", s.name+": empty listener")
	}
	return s.addListener(l)
}

func (m *Manager) UnregisterListener(s *Sensor, l *Listener) error {
	if s == nil {
		return errcode.New(errcode.NoDevice, "unregister_listener", "nil sensor")
	}
	if !s.removeListener(l) {
		return errcode.New(errcode.InvalidArgument, "unregister_listener", s.name+": not registered")
	}
	return nil
}

// RegisterNotifier adds n and asks a notification-capable driver to enable
// each of its events. If the driver refuses one, the events already enabled
// are undone and n is not added. EventThreshold is raised in software and
// never reaches the driver.
func (m *Manager) RegisterNotifier(s *Sensor, n *Notifier) error {
	const op = "register_notifier"
	if s == nil {
		return errcode.New(errcode.NoDevice, op, "nil sensor")
	}
	if n == nil || n.Func == nil || n.Events == 0 {
		return errcode.New(errcode.InvalidArgument, op, s.name+": empty notifier")
	}
	ctx, cancel := m.lockCtx()
	defer cancel()
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	s.mu.Lock()
	dup := slices.Contains(s.notifiers, n)
	s.mu.Unlock()
	if dup {
		return errcode.New(errcode.InvalidArgument, op, s.name+": already registered")
	}

	if nd, ok := s.drv.(NotificationDriver); ok {
		var set []types.EventType
		var failed error
		hwEvents(n.Events).Each(func(ev types.EventType) {
			if failed != nil {
				return
			}
			err := nd.SetNotification(s, ev)
			switch {
			case err == nil:
				set = append(set, ev)
			case errors.Is(err, errcode.NotSupported):
			default:
				failed = err
			}
		})
		if failed != nil {
			for _, ev := range set {
				_ = nd.UnsetNotification(s, ev)
			}
			return errcode.MapDriverErr(op, failed)
		}
	}

	s.mu.Lock()
	n.active.Store(true)
	s.notifiers = append(slices.Clip(s.notifiers), n)
	s.mu.Unlock()
	return nil
}

// UnregisterNotifier removes n and disables driver events no remaining
// notifier wants.
func (m *Manager) UnregisterNotifier(s *Sensor, n *Notifier) error {
	const op = "unregister_notifier"
	if s == nil {
		return errcode.New(errcode.NoDevice, op, "nil sensor")
	}
	ctx, cancel := m.lockCtx()
	defer cancel()
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	s.mu.Lock()
	i := slices.Index(s.notifiers, n)
	if i < 0 {
		s.mu.Unlock()
		return errcode.New(errcode.InvalidArgument, op, s.name+": not registered")
	}
	n.active.Store(false)
	next := make([]*Notifier, 0, len(s.notifiers)-1)
	next = append(next, s.notifiers[:i]...)
	s.notifiers = append(next, s.notifiers[i+1:]...)
	var still types.EventType
	for _, o := range s.notifiers {
		still |= o.Events
	}
	s.mu.Unlock()

	if nd, ok := s.drv.(NotificationDriver); ok {
		var first error
		hwEvents(n.Events &^ still).Each(func(ev types.EventType) {
			if err := nd.UnsetNotification(s, ev); err != nil && !errors.Is(err, errcode.NotSupported) && first == nil {
				first = err
			}
		})
		if first != nil {
			return errcode.MapDriverErr(op, first)
		}
	}
	return nil
}

// hwEventMask covers the chip-detected events.
const hwEventMask = types.EventOrientZHChange<<1 - 1

func hwEvents(e types.EventType) types.EventType { return e & hwEventMask }
