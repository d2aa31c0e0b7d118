package sensor

import (
	"context"
	"sync"
	"sync/atomic"

	"sensorcode-go/errcode"
	"sensorcode-go/services/sensor/internal/evq"
	"sensorcode-go/services/timestamp"
	"sensorcode-go/types"
	"sensorcode-go/x/timex"
)

// Sensor is one registered data source. It is created by its driver's
// builder and owned by it; a Manager only holds a membership reference.
type Sensor struct {
	name  string
	drv   Driver
	types types.SensorType

	// Binary lock held across driver calls; acquisition honours a context.
	lock chan struct{}
	// Binary semaphore released by interrupt handlers.
	sem chan struct{}

	// Scheduling state, written under the owning manager's registry lock.
	owner    atomic.Pointer[Manager]
	pollRate atomic.Uint32
	nextRun  atomic.Uint32
	seq      uint64

	// Guarded by lock.
	traits      []*trait
	thresholdCb *Listener

	mu        sync.Mutex
	enabled   types.SensorType
	listeners []*Listener
	notifiers []*Notifier
	last      timestamp.Timestamp
	// traitView mirrors traits for readers that cannot take the sensor lock.
	traitView []TypeTrait

	irqEv    evq.Event
	readEv   evq.Event
	readMask atomic.Uint32
}

// New creates a sensor able to produce the types in caps. All capabilities
// start enabled.
func New(name string, drv Driver, caps types.SensorType) *Sensor {
	return &Sensor{
		name:    name,
		drv:     drv,
		types:   caps,
		enabled: caps,
		lock:    make(chan struct{}, 1),
		sem:     make(chan struct{}, 1),
	}
}

func (s *Sensor) Name() string            { return s.name }
func (s *Sensor) Driver() Driver          { return s.drv }
func (s *Sensor) Types() types.SensorType { return s.types }
func (s *Sensor) PollRate() uint32        { return s.pollRate.Load() }
func (s *Sensor) NextRun() timex.Tick     { return timex.Tick(s.nextRun.Load()) }
func (s *Sensor) Registered() bool        { return s.owner.Load() != nil }
func (s *Sensor) Periodic() bool          { return s.pollRate.Load() > 0 }
func (s *Sensor) String() string          { return s.name }

// Enabled returns the types the scheduler reads.
func (s *Sensor) Enabled() types.SensorType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// SetTypeMask restricts scheduled reads to mask, which must be a non-empty
// subset of the sensor's capabilities.
func (s *Sensor) SetTypeMask(mask types.SensorType) error {
	if mask == 0 || !s.types.Has(mask) {
		return errcode.New(errcode.InvalidArgument, "set_type_mask", s.name+": "+mask.String())
	}
	s.mu.Lock()
	s.enabled = mask
	s.mu.Unlock()
	return nil
}

// LastTimestamp is the stamp of the most recent read.
func (s *Sensor) LastTimestamp() timestamp.Timestamp {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Sensor) acquire(ctx context.Context) error {
	select {
	case s.lock <- struct{}{}:
		return nil
	default:
	}
	select {
	case s.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return &errcode.E{C: errcode.Timeout, Op: "lock", Msg: s.name, Err: ctx.Err()}
	}
}

func (s *Sensor) release() { <-s.lock }

// SignalInterrupt releases a reader blocked in WaitInterrupt. Signals do not
// accumulate. Safe from interrupt context; never takes the sensor lock.
func (s *Sensor) SignalInterrupt() {
	select {
	case s.sem <- struct{}{}:
	default:
	}
}

// WaitInterrupt blocks until SignalInterrupt or ctx ends.
func (s *Sensor) WaitInterrupt(ctx context.Context) error {
	select {
	case <-s.sem:
		return nil
	case <-ctx.Done():
		return &errcode.E{C: errcode.Timeout, Op: "wait_interrupt", Msg: s.name, Err: ctx.Err()}
	}
}

func (s *Sensor) listenerSnapshot() []*Listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listeners
}

func (s *Sensor) notifierSnapshot() []*Notifier {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notifiers
}
