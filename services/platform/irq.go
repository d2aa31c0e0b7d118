package platform

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"sensorcode-go/errcode"
	"sensorcode-go/services/sensor"
)

// InterruptSink receives interrupt events on the manager side.
type InterruptSink interface {
	PutInterrupt(s *sensor.Sensor) error
}

// Bridge carries pin edges out of interrupt context. The pin handler only
// signals the sensor's interrupt semaphore and does a non-blocking send; the
// worker goroutine applies debounce and posts the manager interrupt event.
type Bridge struct {
	sink InterruptSink
	log  *slog.Logger

	// Written by the pin handler; must never block it.
	isrQ chan *watch

	mu      sync.Mutex
	watches map[*sensor.Sensor]*watch

	drops     atomic.Uint32
	delivered atomic.Uint32
}

type watch struct {
	s        *sensor.Sensor
	pin      IRQPin
	edge     Edge
	debounce time.Duration
	last     time.Time
}

func NewBridge(sink InterruptSink, isrBuf int, log *slog.Logger) *Bridge {
	if isrBuf <= 0 {
		isrBuf = 64
	}
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{
		sink:    sink,
		log:     log.With("component", "irq"),
		isrQ:    make(chan *watch, isrBuf),
		watches: map[*sensor.Sensor]*watch{},
	}
}

// Attach routes edges on pin to s. The returned func detaches it.
func (b *Bridge) Attach(s *sensor.Sensor, pin IRQPin, edge Edge, debounce time.Duration) (func(), error) {
	if s == nil || pin == nil {
		return nil, errcode.New(errcode.NoDevice, "irq_attach", "nil sensor or pin")
	}
	if edge == EdgeNone {
		return nil, errcode.New(errcode.InvalidArgument, "irq_attach", "no edge")
	}
	wh := &watch{s: s, pin: pin, edge: edge, debounce: debounce}

	b.mu.Lock()
	if _, dup := b.watches[s]; dup {
		b.mu.Unlock()
		return nil, errcode.New(errcode.InvalidArgument, "irq_attach", s.Name()+" already attached")
	}
	b.watches[s] = wh
	b.mu.Unlock()

	handler := func() {
		s.SignalInterrupt()
		select {
		case b.isrQ <- wh:
		default:
			b.drops.Add(1)
		}
	}
	if err := pin.SetIRQ(edge, handler); err != nil {
		b.mu.Lock()
		delete(b.watches, s)
		b.mu.Unlock()
		return nil, errcode.Wrap(errcode.CommFailure, "irq_attach", err)
	}
	b.log.Debug("irq attached", "sensor", s.Name(), "pin", pin.Number(), "edge", edge)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if cur, ok := b.watches[s]; ok && cur == wh {
			_ = pin.ClearIRQ()
			delete(b.watches, s)
		}
	}, nil
}

// Run drains pin edges until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case wh := <-b.isrQ:
			b.handle(wh)
		}
	}
}

func (b *Bridge) handle(wh *watch) {
	b.mu.Lock()
	live := b.watches[wh.s] == wh
	b.mu.Unlock()
	if !live {
		return
	}
	now := time.Now()
	if wh.debounce > 0 && !wh.last.IsZero() && now.Sub(wh.last) < wh.debounce {
		return
	}
	wh.last = now
	if err := b.sink.PutInterrupt(wh.s); err != nil {
		b.log.Debug("interrupt not posted", "sensor", wh.s.Name(), "err", err)
		return
	}
	b.delivered.Add(1)
}

// ISRDrops counts edges lost because the worker fell behind.
func (b *Bridge) ISRDrops() uint32 { return b.drops.Load() }

// Delivered counts interrupt events handed to the sink.
func (b *Bridge) Delivered() uint32 { return b.delivered.Load() }
