// Package callout is a one-shot, reschedulable timer whose expiry posts an
// event to a queue instead of running work on the timer goroutine.
package callout

import (
	"sync"

	"sensorcode-go/services/sensor/internal/evq"
	"sensorcode-go/x/timex"
)

type Callout struct {
	clock timex.Clock
	q     *evq.Queue
	ev    *evq.Event

	mu       sync.Mutex
	timer    timex.Timer
	gen      uint64
	armed    bool
	deadline timex.Tick
}

func New(c timex.Clock, q *evq.Queue, ev *evq.Event) *Callout {
	return &Callout{clock: c, q: q, ev: ev}
}

// Reset (re)arms the callout to fire ticks from now, cancelling any pending
// expiry.
func (c *Callout) Reset(ticks uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.gen++
	gen := c.gen
	c.armed = true
	c.deadline = c.clock.Now().Add(ticks)
	c.timer = c.clock.AfterFunc(timex.TicksToDuration(c.clock, ticks), func() { c.fire(gen) })
}

// Stop disarms the callout. A fire already in flight is discarded.
func (c *Callout) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.gen++
}

func (c *Callout) stopLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.armed = false
}

func (c *Callout) fire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || !c.armed {
		c.mu.Unlock()
		return
	}
	c.armed = false
	c.timer = nil
	c.mu.Unlock()
	c.q.Put(c.ev)
}

// Armed reports whether an expiry is pending.
func (c *Callout) Armed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed
}

// Remaining returns the ticks left until expiry, zero once overdue.
func (c *Callout) Remaining() (uint32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.armed {
		return 0, false
	}
	d := c.deadline.Sub(c.clock.Now())
	if d < 0 {
		d = 0
	}
	return uint32(d), true
}
