// Package sensor is the sensor manager: a registry of sensors sorted by next
// poll time, a scheduler driven by one wakeup callout, per-type cadence and
// thresholds, synchronous listener fan-out and asynchronous notifier
// delivery through a bounded event pool. All deferred work runs on a single
// event loop (Run or Drain).
package sensor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"sensorcode-go/errcode"
	"sensorcode-go/services/sensor/internal/callout"
	"sensorcode-go/services/sensor/internal/evpool"
	"sensorcode-go/services/sensor/internal/evq"
	"sensorcode-go/services/timestamp"
	"sensorcode-go/types"
	"sensorcode-go/x/timex"
)

const (
	DefaultNotifyPoolSize = 8
	DefaultReadTimeout    = 100 * time.Millisecond
	DefaultLockTimeout    = time.Second
)

type Config struct {
	Clock timex.Clock
	// Timestamps stamps each read. When nil and Clock also provides a CPU
	// timer and a wall clock, a service is built from it.
	Timestamps *timestamp.Service
	Logger     *slog.Logger

	NotifyPoolSize int
	// ReadTimeout bounds each scheduled or requested read.
	ReadTimeout time.Duration
	// LockTimeout bounds sensor lock acquisition for configuration calls.
	LockTimeout time.Duration
}

// Stats is a point-in-time view of manager counters.
type Stats struct {
	Registered   int
	Periodic     int
	Polls        uint64
	PollErrors   uint64
	NotifyCap    int
	NotifyInUse  int
	NotifyDrops  uint64
	Notified     uint64
	Interrupts   uint64
	NextWakeupMs int64 // -1 when disarmed
}

type notifyEvent struct {
	ev  evq.Event
	typ types.EventType
	s   *Sensor
}

type Manager struct {
	clock       timex.Clock
	ts          *timestamp.Service
	log         *slog.Logger
	readTimeout time.Duration
	lockTimeout time.Duration

	q    *evq.Queue
	pool *evpool.Pool[notifyEvent]

	// Registry: periodic sensors ascending by next run, then non-periodic
	// sensors in insertion order.
	mu      sync.Mutex
	sensors []*Sensor
	seq     uint64

	wakeEv  evq.Event
	wake    *callout.Callout
	tsEv    evq.Event
	tsTimer *callout.Callout

	polls       atomic.Uint64
	pollErrors  atomic.Uint64
	notifyDrops atomic.Uint64
	notified    atomic.Uint64
	interrupts  atomic.Uint64
}

func NewManager(cfg Config) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = timex.NewSystem(1000)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.NotifyPoolSize <= 0 {
		cfg.NotifyPoolSize = DefaultNotifyPoolSize
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultLockTimeout
	}
	log := cfg.Logger.With("component", "sensor")
	if cfg.Timestamps == nil {
		wall, okW := cfg.Clock.(timex.WallClock)
		cpu, okC := cfg.Clock.(timex.CPUTimer)
		if okW && okC {
			cfg.Timestamps = timestamp.New(timestamp.Config{Wall: wall, CPU: cpu, Logger: cfg.Logger})
		}
	}

	m := &Manager{
		clock:       cfg.Clock,
		ts:          cfg.Timestamps,
		log:         log,
		readTimeout: cfg.ReadTimeout,
		lockTimeout: cfg.LockTimeout,
		q:           evq.New(),
		pool:        evpool.New[notifyEvent](cfg.NotifyPoolSize),
	}
	m.wakeEv.Fn = func(*evq.Event) { m.wakeup() }
	m.wake = callout.New(m.clock, m.q, &m.wakeEv)
	if m.ts != nil {
		m.tsEv.Fn = func(*evq.Event) { m.refreshTimestamps() }
		m.tsTimer = callout.New(m.clock, m.q, &m.tsEv)
		m.refreshTimestamps()
	}
	return m
}

// Clock returns the manager's tick source.
func (m *Manager) Clock() timex.Clock { return m.clock }

// Run drains the event queue until ctx ends or the manager is closed. Only
// one goroutine may drain the queue at a time.
func (m *Manager) Run(ctx context.Context) error {
	m.log.Info("event loop started", "pool", m.pool.Cap())
	defer m.log.Info("event loop stopped")
	for {
		for m.q.Dispatch() {
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-m.q.Wait():
			if !ok {
				for m.q.Dispatch() {
				}
				return nil
			}
		}
	}
}

// Drain runs every event queued now, including events queued by those
// handlers, and returns how many ran.
func (m *Manager) Drain() int {
	n := 0
	for m.q.Dispatch() {
		n++
	}
	return n
}

// Close disarms the callouts and stops accepting events. Run returns once
// the queue is empty.
func (m *Manager) Close() {
	m.wake.Stop()
	if m.tsTimer != nil {
		m.tsTimer.Stop()
	}
	m.q.Close()
}

func (m *Manager) refreshTimestamps() {
	next := m.ts.Refresh()
	m.tsTimer.Reset(timex.DurationToTicks(m.clock, next))
}

func (m *Manager) stamp() timestamp.Timestamp {
	if m.ts == nil {
		return timestamp.Timestamp{}
	}
	return m.ts.Now()
}

func (m *Manager) Stats() Stats {
	st := Stats{
		Polls:        m.polls.Load(),
		PollErrors:   m.pollErrors.Load(),
		NotifyCap:    m.pool.Cap(),
		NotifyInUse:  m.pool.InUse(),
		NotifyDrops:  m.notifyDrops.Load(),
		Notified:     m.notified.Load(),
		Interrupts:   m.interrupts.Load(),
		NextWakeupMs: -1,
	}
	m.mu.Lock()
	st.Registered = len(m.sensors)
	for _, s := range m.sensors {
		if s.Periodic() {
			st.Periodic++
		}
	}
	m.mu.Unlock()
	if d, ok := m.NextWakeup(); ok {
		st.NextWakeupMs = timex.TicksToDuration(m.clock, d).Milliseconds()
	}
	return st
}

// NotifyDrops counts notifications lost to an exhausted pool.
func (m *Manager) NotifyDrops() uint64 { return m.notifyDrops.Load() }

func (m *Manager) lockCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), m.lockTimeout)
}

// lookupErr is returned by name-keyed calls for unknown sensors; it matches
// both InvalidArgument and NoDevice.
func lookupErr(op, name string) error {
	return &errcode.E{C: errcode.InvalidArgument, Op: op, Msg: name, Err: errcode.NoDevice}
}
