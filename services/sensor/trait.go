package sensor

import (
	"errors"
	"slices"

	"sensorcode-go/errcode"
	"sensorcode-go/services/sensor/threshold"
	"sensorcode-go/types"
)

// TypeTrait configures cadence and thresholds for one type of one sensor.
type TypeTrait struct {
	Type types.SensorType
	// Low and High share the payload kind of Type. A nil bound is treated
	// as one with every field invalid.
	Low, High types.Data
	Algo      threshold.Algo
	// Compare is the comparator for threshold.AlgoUser.
	Compare threshold.Func
	// PollMultiple reads Type every Nth scheduler visit; 0 and 1 mean
	// every visit. SetThreshold and SetTypePollMultiple both apply it, and
	// the countdown restarts only when the value changes.
	PollMultiple uint16
}

type trait struct {
	TypeTrait
	countdown uint16
	cmp       threshold.Func
}

func (t *trait) hasThreshold() bool { return t.cmp != nil }

// tick advances the countdown and reports whether the type is due.
func (t *trait) tick() bool {
	if t.PollMultiple <= 1 {
		return true
	}
	if t.countdown > 0 {
		t.countdown--
	}
	if t.countdown == 0 {
		t.countdown = t.PollMultiple
		return true
	}
	return false
}

// traitLess orders by poll multiple ascending with 0 last.
func traitLess(a, b *trait) int {
	switch {
	case a.PollMultiple == b.PollMultiple:
		return 0
	case a.PollMultiple == 0:
		return 1
	case b.PollMultiple == 0:
		return -1
	case a.PollMultiple < b.PollMultiple:
		return -1
	default:
		return 1
	}
}

func (s *Sensor) traitLocked(t types.SensorType) *trait {
	for _, tr := range s.traits {
		if tr.Type == t {
			return tr
		}
	}
	return nil
}

// commitTraitsLocked restores cadence order and republishes the view
// returned by Traits. The sensor lock must be held.
func (s *Sensor) commitTraitsLocked() {
	slices.SortStableFunc(s.traits, traitLess)
	view := make([]TypeTrait, len(s.traits))
	for i, tr := range s.traits {
		view[i] = tr.TypeTrait
	}
	s.mu.Lock()
	s.traitView = view
	s.mu.Unlock()
}

// dueTypesLocked returns the enabled types to read on this visit: types
// whose trait countdown expired plus enabled types with no trait.
func (s *Sensor) dueTypesLocked() types.SensorType {
	enabled := s.Enabled()
	var due, traited types.SensorType
	for _, tr := range s.traits {
		traited |= tr.Type
		if enabled&tr.Type != 0 && tr.tick() {
			due |= tr.Type
		}
	}
	return due | enabled&^traited
}

// Traits returns a copy of the sensor's traits in cadence order. It never
// waits for the sensor lock, so listeners may call it during a read.
func (s *Sensor) Traits() []TypeTrait {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.traitView)
}

func (m *Manager) checkType(op string, s *Sensor, t types.SensorType) error {
	if !t.Single() || !s.types.Has(t) {
		return errcode.New(errcode.InvalidArgument, op, s.name+": unsupported type "+t.String())
	}
	return nil
}

// withSensor resolves name and runs fn under the sensor lock.
func (m *Manager) withSensor(op, name string, fn func(s *Sensor) error) error {
	s := m.Lookup(name)
	if s == nil {
		return lookupErr(op, name)
	}
	ctx, cancel := m.lockCtx()
	defer cancel()
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	return fn(s)
}

// SetTypePollMultiple creates or updates the cadence of tt.Type. The
// countdown restarts.
func (m *Manager) SetTypePollMultiple(name string, tt TypeTrait) error {
	return m.withSensor("set_type_poll_multiple", name, func(s *Sensor) error {
		if err := m.checkType("set_type_poll_multiple", s, tt.Type); err != nil {
			return err
		}
		tr := s.traitLocked(tt.Type)
		if tr == nil {
			tr = &trait{TypeTrait: TypeTrait{Type: tt.Type}}
			s.traits = append(s.traits, tr)
		}
		tr.PollMultiple = tt.PollMultiple
		tr.countdown = tt.PollMultiple
		s.commitTraitsLocked()
		return nil
	})
}

// SetThreshold creates or replaces the trait of tt.Type, cadence included. A
// threshold-capable driver is programmed first; if it fails nothing
// changes. Crossings detected by the comparator raise EventThreshold.
func (m *Manager) SetThreshold(name string, tt TypeTrait) error {
	const op = "set_threshold"
	return m.withSensor(op, name, func(s *Sensor) error {
		if err := m.checkType(op, s, tt.Type); err != nil {
			return err
		}
		kind := types.KindOf(tt.Type)
		if tt.Low == nil && tt.High == nil {
			return errcode.New(errcode.InvalidArgument, op, s.name+": no bounds")
		}
		low, high := tt.Low, tt.High
		if low == nil {
			low = types.Build(kind, nil)
		}
		if high == nil {
			high = types.Build(kind, nil)
		}
		if low.Kind() != kind || high.Kind() != kind {
			return errcode.New(errcode.InvalidArgument, op, s.name+": bound kind does not match "+tt.Type.String())
		}
		cmp, err := threshold.For(tt.Algo, tt.Compare)
		if err != nil {
			return err
		}

		if td, ok := s.drv.(ThresholdDriver); ok {
			if err := td.SetTriggerThreshold(s, tt.Type, low, high); err != nil && !errors.Is(err, errcode.NotSupported) {
				return errcode.MapDriverErr(op, err)
			}
		}

		tr := s.traitLocked(tt.Type)
		if tr == nil {
			tr = &trait{TypeTrait: TypeTrait{Type: tt.Type, PollMultiple: tt.PollMultiple}}
			tr.countdown = tt.PollMultiple
			s.traits = append(s.traits, tr)
		} else if tr.PollMultiple != tt.PollMultiple {
			tr.PollMultiple = tt.PollMultiple
			tr.countdown = tt.PollMultiple
		}
		tr.Low, tr.High = low, high
		tr.Algo, tr.Compare = tt.Algo, tt.Compare
		tr.cmp = cmp
		s.commitTraitsLocked()

		if s.thresholdCb == nil {
			s.thresholdCb = &Listener{Types: types.TypeAll, Func: m.compareThreshold}
			if err := s.addListener(s.thresholdCb); err != nil {
				return err
			}
		}
		return nil
	})
}

// compareThreshold runs during read dispatch, under the sensor lock.
func (m *Manager) compareThreshold(s *Sensor, t types.SensorType, d types.Data) {
	tr := s.traitLocked(t)
	if tr == nil || !tr.hasThreshold() {
		return
	}
	if tr.cmp(tr.Low, tr.High, d) {
		m.PutNotify(s, types.EventThreshold)
	}
}

// ClearLowThreshold disables the driver's low-bound trigger for t. Drivers
// without support succeed.
func (m *Manager) ClearLowThreshold(name string, t types.SensorType) error {
	return m.clearThreshold("clear_low_threshold", name, t, ThresholdClearer.ClearLowThreshold)
}

// ClearHighThreshold disables the driver's high-bound trigger for t.
func (m *Manager) ClearHighThreshold(name string, t types.SensorType) error {
	return m.clearThreshold("clear_high_threshold", name, t, ThresholdClearer.ClearHighThreshold)
}

func (m *Manager) clearThreshold(op, name string, t types.SensorType, call func(ThresholdClearer, *Sensor, types.SensorType) error) error {
	return m.withSensor(op, name, func(s *Sensor) error {
		if err := m.checkType(op, s, t); err != nil {
			return err
		}
		tc, ok := s.drv.(ThresholdClearer)
		if !ok {
			return nil
		}
		if err := call(tc, s, t); err != nil && !errors.Is(err, errcode.NotSupported) {
			return errcode.MapDriverErr(op, err)
		}
		return nil
	})
}

// RemoveTrait drops the trait for t. The comparator listener goes with the
// last threshold.
func (m *Manager) RemoveTrait(name string, t types.SensorType) error {
	const op = "remove_trait"
	return m.withSensor(op, name, func(s *Sensor) error {
		i := slices.IndexFunc(s.traits, func(tr *trait) bool { return tr.Type == t })
		if i < 0 {
			return errcode.New(errcode.InvalidArgument, op, s.name+": no trait for "+t.String())
		}
		s.traits = slices.Delete(s.traits, i, i+1)
		s.commitTraitsLocked()
		if s.thresholdCb != nil && !slices.ContainsFunc(s.traits, (*trait).hasThreshold) {
			s.removeListener(s.thresholdCb)
			s.thresholdCb = nil
		}
		return nil
	})
}
