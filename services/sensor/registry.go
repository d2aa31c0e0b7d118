package sensor

import (
	"slices"

	"sensorcode-go/errcode"
	"sensorcode-go/types"
	"sensorcode-go/x/timex"
)

// Register adds s to the registry. A periodic sensor is first due one poll
// interval from now.
func (m *Manager) Register(s *Sensor) error {
	if s == nil || s.drv == nil {
		return errcode.New(errcode.NoDevice, "register", "nil sensor or driver")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.owner.Load() != nil {
		return errcode.New(errcode.InvalidArgument, "register", s.name+" already registered")
	}
	if m.findByNameLocked(s.name) != nil {
		return errcode.New(errcode.InvalidArgument, "register", "duplicate name "+s.name)
	}

	m.seq++
	s.seq = m.seq
	s.irqEv.Fn = m.handleInterrupt
	s.irqEv.Arg = s
	s.readEv.Fn = m.handleReadRequest
	s.readEv.Arg = s
	now := m.clock.Now()
	if rate := s.pollRate.Load(); rate > 0 {
		s.nextRun.Store(uint32(now.Add(timex.MsToTicks(m.clock, rate))))
	}
	s.owner.Store(m)
	m.insertLocked(s)
	m.rearmLocked(now)

	m.log.Info("sensor registered", "sensor", s.name, "types", s.types.String(), "poll_ms", s.pollRate.Load())
	return nil
}

// Unregister removes s. Events already queued for it are discarded.
func (m *Manager) Unregister(s *Sensor) error {
	if s == nil {
		return errcode.New(errcode.NoDevice, "unregister", "nil sensor")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.owner.Load() != m || !m.removeLocked(s) {
		return errcode.New(errcode.NoDevice, "unregister", s.name)
	}
	s.owner.Store(nil)
	m.rearmLocked(m.clock.Now())
	m.log.Info("sensor unregistered", "sensor", s.name)
	return nil
}

// SetPollRate changes the interval of the named sensor; 0 makes it
// non-periodic. The next poll is ms from now.
func (m *Manager) SetPollRate(name string, ms uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.findByNameLocked(name)
	if s == nil {
		return lookupErr("set_poll_rate", name)
	}
	m.wake.Stop()
	m.removeLocked(s)
	now := m.clock.Now()
	s.pollRate.Store(ms)
	s.nextRun.Store(uint32(now.Add(timex.MsToTicks(m.clock, ms))))
	m.insertLocked(s)
	m.rearmLocked(now)
	return nil
}

// NextWakeup reports the ticks until the scheduler next runs, or false when
// no periodic sensor is registered.
func (m *Manager) NextWakeup() (uint32, bool) { return m.wake.Remaining() }

func (m *Manager) findByNameLocked(name string) *Sensor {
	for _, s := range m.sensors {
		if s.name == name {
			return s
		}
	}
	return nil
}

func (m *Manager) removeLocked(s *Sensor) bool {
	i := slices.Index(m.sensors, s)
	if i < 0 {
		return false
	}
	m.sensors = slices.Delete(m.sensors, i, i+1)
	return true
}

// insertLocked places s after every sensor due no later than it, so equal
// deadlines keep their arrival order. Non-periodic sensors go last.
func (m *Manager) insertLocked(s *Sensor) {
	if !s.Periodic() {
		m.sensors = append(m.sensors, s)
		return
	}
	next := s.NextRun()
	i := 0
	for ; i < len(m.sensors); i++ {
		o := m.sensors[i]
		if !o.Periodic() || o.NextRun().After(next) {
			break
		}
	}
	m.sensors = slices.Insert(m.sensors, i, s)
}

func (m *Manager) rearmLocked(now timex.Tick) {
	if len(m.sensors) == 0 || !m.sensors[0].Periodic() {
		m.wake.Stop()
		return
	}
	d := m.sensors[0].NextRun().Sub(now)
	if d < 0 {
		d = 0
	}
	m.wake.Reset(uint32(d))
}

// wakeup is the scheduler sweep. Due sensors are taken off the head in
// next-run order, rescheduled, and then polled outside the registry lock so
// that listeners may call back into the manager.
func (m *Manager) wakeup() {
	now := m.clock.Now()
	var due []*Sensor

	m.mu.Lock()
	for len(m.sensors) > 0 {
		s := m.sensors[0]
		// A non-periodic head ends the sweep. Periodic sensors always sort
		// ahead of non-periodic ones, so nothing due is left behind.
		if !s.Periodic() || s.NextRun().After(now) {
			break
		}
		m.sensors = slices.Delete(m.sensors, 0, 1)
		due = append(due, s)
	}
	for _, s := range due {
		ticks := timex.MsToTicks(m.clock, s.pollRate.Load())
		if ticks < 1 {
			ticks = 1
		}
		s.nextRun.Store(uint32(now.Add(ticks)))
		m.insertLocked(s)
	}
	m.rearmLocked(now)
	m.mu.Unlock()

	for _, s := range due {
		m.poll(s)
	}
}

// Lock takes the registry lock for an iteration sequence with FindNext.
func (m *Manager) Lock()   { m.mu.Lock() }
func (m *Manager) Unlock() { m.mu.Unlock() }

// FindNext returns the first sensor after cursor (from the head when cursor
// is nil) that satisfies match. The registry lock must be held.
func (m *Manager) FindNext(match func(*Sensor) bool, cursor *Sensor) *Sensor {
	start := 0
	if cursor != nil {
		i := slices.Index(m.sensors, cursor)
		if i < 0 {
			return nil
		}
		start = i + 1
	}
	for _, s := range m.sensors[start:] {
		if match == nil || match(s) {
			return s
		}
	}
	return nil
}

// FindNextByType returns the next sensor able to produce any type in mask.
func (m *Manager) FindNextByType(mask types.SensorType, cursor *Sensor) *Sensor {
	return m.FindNext(func(s *Sensor) bool { return s.types&mask != 0 }, cursor)
}

func (m *Manager) FindNextByName(name string, cursor *Sensor) *Sensor {
	return m.FindNext(func(s *Sensor) bool { return s.name == name }, cursor)
}

// Lookup returns the named sensor or nil.
func (m *Manager) Lookup(name string) *Sensor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findByNameLocked(name)
}

// Sensors returns the registry in scheduling order.
func (m *Manager) Sensors() []*Sensor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.sensors)
}
