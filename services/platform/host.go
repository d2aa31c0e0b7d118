package platform

import (
	"sync"
	"time"

	"tinygo.org/x/drivers"
)

// ----------------------------- I²C (host) ------------------------------------

// Responder emulates a device on a host bus. It fills r and may fail the
// transfer.
type Responder func(addr uint16, w, r []byte) error

// HostI2C implements drivers.I2C for host runs and tests. Without a responder
// for the address, writes succeed and reads return zeros.
type HostI2C struct {
	mu     sync.Mutex
	resp   map[uint16]Responder
	txs    int
	LastTx struct {
		Addr uint16
		W    []byte
		Rn   int
	}
}

// Attach installs (or with nil removes) a responder for addr.
func (h *HostI2C) Attach(addr uint16, r Responder) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.resp == nil {
		h.resp = map[uint16]Responder{}
	}
	if r == nil {
		delete(h.resp, addr)
		return
	}
	h.resp[addr] = r
}

func (h *HostI2C) Tx(addr uint16, w, r []byte) error {
	h.mu.Lock()
	h.txs++
	h.LastTx.Addr = addr
	h.LastTx.W = append([]byte(nil), w...)
	h.LastTx.Rn = len(r)
	resp := h.resp[addr]
	h.mu.Unlock()
	if resp == nil {
		clear(r)
		return nil
	}
	return resp(addr, w, r)
}

// Transfers counts Tx calls since construction.
func (h *HostI2C) Transfers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.txs
}

type HostI2CFactory struct {
	buses map[string]*HostI2C
}

func (f *HostI2CFactory) ByID(id string) (drivers.I2C, bool) {
	b, ok := f.buses[id]
	if !ok {
		return nil, false
	}
	return b, true
}

// Host exposes the concrete bus so tests can attach responders.
func (f *HostI2CFactory) Host(id string) (*HostI2C, bool) {
	b, ok := f.buses[id]
	return b, ok
}

// DefaultI2CFactory creates host I²C buses "i2c0" and "i2c1".
func DefaultI2CFactory() *HostI2CFactory {
	return &HostI2CFactory{
		buses: map[string]*HostI2C{
			"i2c0": {},
			"i2c1": {},
		},
	}
}

// ----------------------------- GPIO (host) -----------------------------------

// FakePin implements IRQPin for host runs. Set drives the level and calls the
// handler synchronously when the configured edge is seen.
type FakePin struct {
	mu       sync.RWMutex
	number   int
	level    bool
	irqEdge  Edge
	irqFunc  func()
	debounce time.Duration
	lastIRQ  time.Time
}

func NewFakePin(n int) *FakePin { return &FakePin{number: n} }

// SetDebounce suppresses edges closer together than d.
func (p *FakePin) SetDebounce(d time.Duration) {
	p.mu.Lock()
	p.debounce = d
	p.mu.Unlock()
}

func (p *FakePin) Set(level bool) {
	p.mu.Lock()
	old := p.level
	p.level = level
	want := irqWanted(p.irqEdge, edgeFrom(old, level))
	irq := p.irqFunc
	now := time.Now()
	if want && (p.debounce == 0 || now.Sub(p.lastIRQ) >= p.debounce) {
		p.lastIRQ = now
		p.mu.Unlock()
		if irq != nil {
			irq()
		}
		return
	}
	p.mu.Unlock()
}

// Pulse drives a full low-high-low cycle.
func (p *FakePin) Pulse() {
	p.Set(false)
	p.Set(true)
	p.Set(false)
}

func (p *FakePin) Get() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.level
}

func (p *FakePin) Number() int { return p.number }

func (p *FakePin) SetIRQ(edge Edge, handler func()) error {
	p.mu.Lock()
	p.irqEdge = edge
	p.irqFunc = handler
	p.mu.Unlock()
	return nil
}

func (p *FakePin) ClearIRQ() error {
	p.mu.Lock()
	p.irqEdge = EdgeNone
	p.irqFunc = nil
	p.mu.Unlock()
	return nil
}

func edgeFrom(old, new bool) Edge {
	switch {
	case !old && new:
		return EdgeRising
	case old && !new:
		return EdgeFalling
	default:
		return EdgeNone
	}
}

func irqWanted(cfg, seen Edge) bool {
	if seen == EdgeNone {
		return false
	}
	return cfg == EdgeBoth || cfg == seen
}

// HostPinFactory returns stable *FakePin instances per number.
type HostPinFactory struct {
	mu   sync.Mutex
	pins map[int]*FakePin
}

func NewHostPinFactory() *HostPinFactory {
	return &HostPinFactory{pins: make(map[int]*FakePin)}
}

func (f *HostPinFactory) ByNumber(n int) (IRQPin, bool) {
	return f.Fake(n), true
}

// Fake returns the concrete pin, creating it on first use.
func (f *HostPinFactory) Fake(n int) *FakePin {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pins[n]
	if !ok {
		p = NewFakePin(n)
		f.pins[n] = p
	}
	return p
}
