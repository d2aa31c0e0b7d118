package timex

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually advanced clock for tests. Timers fire synchronously from
// Advance, in deadline order, outside the clock's lock.
type Fake struct {
	mu      sync.Mutex
	tps     uint32
	base    Tick
	elapsed time.Duration
	wall    time.Time
	wallErr error
	timers  []*fakeTimer
	seq     uint64
}

type fakeTimer struct {
	c   *Fake
	at  time.Duration
	seq uint64
	f   func()
}

// NewFake returns a clock at tick start, ticking at tps.
func NewFake(tps uint32, start Tick) *Fake {
	if tps == 0 {
		tps = 1000
	}
	return &Fake{
		tps:  tps,
		base: start,
		wall: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (c *Fake) Now() Tick {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowLocked()
}

func (c *Fake) nowLocked() Tick {
	return c.base + Tick(uint64(c.elapsed)*uint64(c.tps)/uint64(time.Second))
}

func (c *Fake) TicksPerSecond() uint32 { return c.tps }

func (c *Fake) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{c: c, at: c.elapsed + d, seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	c := t.c
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, x := range c.timers {
		if x == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return true
		}
	}
	return false
}

// Advance moves time forward by d, firing every timer that falls due on the
// way. A timer armed by a callback fires within the same Advance if its
// deadline is reached.
func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.elapsed + d
	for {
		sort.Slice(c.timers, func(i, j int) bool {
			if c.timers[i].at != c.timers[j].at {
				return c.timers[i].at < c.timers[j].at
			}
			return c.timers[i].seq < c.timers[j].seq
		})
		if len(c.timers) == 0 || c.timers[0].at > target {
			break
		}
		t := c.timers[0]
		c.timers = c.timers[1:]
		if t.at > c.elapsed {
			c.elapsed = t.at
		}
		c.mu.Unlock()
		t.f()
		c.mu.Lock()
	}
	c.elapsed = target
	c.mu.Unlock()
}

// Pending returns the number of armed timers.
func (c *Fake) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// CPUTicks runs at 1 MHz from the moment of construction.
func (c *Fake) CPUTicks() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint32(c.elapsed / time.Microsecond)
}

func (c *Fake) CPUFreq() uint32 { return 1_000_000 }

func (c *Fake) Wall() (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wallErr != nil {
		return time.Time{}, c.wallErr
	}
	return c.wall.Add(c.elapsed), nil
}

// SetWallError makes Wall fail with err until cleared with nil.
func (c *Fake) SetWallError(err error) {
	c.mu.Lock()
	c.wallErr = err
	c.mu.Unlock()
}

// SetWall moves the wall clock so that it reads t now.
func (c *Fake) SetWall(t time.Time) {
	c.mu.Lock()
	c.wall = t.Add(-c.elapsed)
	c.mu.Unlock()
}
