package sensor

import (
	"context"
	"errors"

	"sensorcode-go/errcode"
	"sensorcode-go/types"
)

type readOpts struct {
	ignoreListeners bool
}

type ReadOption func(*readOpts)

// IgnoreListeners delivers data to the read's own callback only.
func IgnoreListeners() ReadOption {
	return func(o *readOpts) { o.ignoreListeners = true }
}

// Read reads the types in mask from s. Each unit of data goes first to the
// matching listeners, then to fn when non-nil. The sensor lock wait is
// bounded by ctx, which also carries the bus deadline to the driver. May be
// called from any goroutine.
func (m *Manager) Read(ctx context.Context, s *Sensor, mask types.SensorType, fn DataFunc, opts ...ReadOption) error {
	if s == nil || s.drv == nil {
		return errcode.New(errcode.NoDevice, "read", "nil sensor")
	}
	mask &= s.types
	if mask == 0 {
		return errcode.New(errcode.InvalidArgument, "read", s.name+": no supported type in mask")
	}
	var o readOpts
	for _, opt := range opts {
		opt(&o)
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	return m.readLocked(ctx, s, mask, fn, o.ignoreListeners)
}

func (m *Manager) readLocked(ctx context.Context, s *Sensor, mask types.SensorType, fn DataFunc, ignoreListeners bool) error {
	ts := m.stamp()
	s.mu.Lock()
	s.last = ts
	s.mu.Unlock()

	var ls []*Listener
	if !ignoreListeners {
		ls = s.listenerSnapshot()
	}
	var userErr error
	err := s.drv.Read(ctx, s, mask, func(s *Sensor, t types.SensorType, d types.Data) error {
		for _, l := range ls {
			if l.Types&t != 0 && l.active.Load() {
				l.Func(s, t, d)
			}
		}
		if fn == nil {
			return nil
		}
		if err := fn(s, t, d); err != nil {
			userErr = err
			return err
		}
		return nil
	})
	if err != nil && userErr != nil && errors.Is(err, userErr) {
		return err
	}
	return errcode.MapDriverErr("read", err)
}

// poll is one scheduled visit.
func (m *Manager) poll(s *Sensor) {
	ctx, cancel := context.WithTimeout(context.Background(), m.readTimeout)
	defer cancel()
	if err := s.acquire(ctx); err != nil {
		m.pollErrors.Add(1)
		m.log.Warn("poll skipped", "sensor", s.name, "err", err)
		return
	}
	defer s.release()
	mask := s.dueTypesLocked()
	if mask == 0 {
		return
	}
	m.polls.Add(1)
	if err := m.readLocked(ctx, s, mask, nil, false); err != nil {
		m.pollErrors.Add(1)
		m.log.Warn("poll failed", "sensor", s.name, "types", mask.String(), "err", err)
	}
}

// GetConfig returns the driver's configuration of type t.
func (m *Manager) GetConfig(ctx context.Context, s *Sensor, t types.SensorType) (types.SensorConfig, error) {
	if s == nil || s.drv == nil {
		return types.SensorConfig{}, errcode.New(errcode.NoDevice, "get_config", "nil sensor")
	}
	if err := m.checkType("get_config", s, t); err != nil {
		return types.SensorConfig{}, err
	}
	if err := s.acquire(ctx); err != nil {
		return types.SensorConfig{}, err
	}
	defer s.release()
	cfg, err := s.drv.GetConfig(s, t)
	return cfg, errcode.MapDriverErr("get_config", err)
}

// SetConfig applies cfg through the driver.
func (m *Manager) SetConfig(ctx context.Context, s *Sensor, cfg types.SensorConfig) error {
	if s == nil || s.drv == nil {
		return errcode.New(errcode.NoDevice, "set_config", "nil sensor")
	}
	if err := m.checkType("set_config", s, cfg.Type); err != nil {
		return err
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	return errcode.MapDriverErr("set_config", s.drv.SetConfig(s, cfg))
}
