// Package timex is the tick source consumed by the sensor manager: a wrapping
// 32-bit tick counter, ms and tick conversion, one-shot timers, a free-running
// CPU timer and a wall clock.
package timex

import (
	"time"
)

// Tick is a monotonic, wrapping tick count.
type Tick uint32

// Before reports whether a is earlier than b, treating the counter as
// wrapping.
func (a Tick) Before(b Tick) bool { return int32(a-b) < 0 }

// After reports whether a is later than b.
func (a Tick) After(b Tick) bool { return int32(a-b) > 0 }

// Sub returns the signed distance a-b.
func (a Tick) Sub(b Tick) int32 { return int32(a - b) }

// Add returns a advanced by n ticks.
func (a Tick) Add(n uint32) Tick { return a + Tick(n) }

// Timer is a pending one-shot callback.
type Timer interface {
	// Stop cancels the callback and reports whether it was still pending.
	Stop() bool
}

// Clock is the OS tick source.
type Clock interface {
	Now() Tick
	TicksPerSecond() uint32
	// AfterFunc runs f on its own goroutine once d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

// CPUTimer is a free-running high resolution counter.
type CPUTimer interface {
	CPUTicks() uint32
	CPUFreq() uint32
}

// WallClock returns calendar time, or an error when none is available yet
// (RTC not set, no network time).
type WallClock interface {
	Wall() (time.Time, error)
}

// MsToTicks converts milliseconds to ticks, rounding down.
func MsToTicks(c Clock, ms uint32) uint32 {
	return uint32(uint64(ms) * uint64(c.TicksPerSecond()) / 1000)
}

// TicksToDuration converts a tick count to a duration.
func TicksToDuration(c Clock, ticks uint32) time.Duration {
	tps := uint64(c.TicksPerSecond())
	if tps == 0 {
		return 0
	}
	return time.Duration(uint64(ticks) * uint64(time.Second) / tps)
}

// DurationToTicks converts a duration to ticks, rounding down and saturating
// at the counter width.
func DurationToTicks(c Clock, d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	t := uint64(d) / uint64(time.Second) * uint64(c.TicksPerSecond())
	t += uint64(d) % uint64(time.Second) * uint64(c.TicksPerSecond()) / uint64(time.Second)
	if t > 0xFFFFFFFF {
		return 0xFFFFFFFF
	}
	return uint32(t)
}

// System is the host clock: ticks and CPU ticks derive from the monotonic
// clock reading taken at construction.
type System struct {
	start time.Time
	tps   uint32
}

// NewSystem returns a clock ticking at tps (1000 when zero).
func NewSystem(tps uint32) *System {
	if tps == 0 {
		tps = 1000
	}
	return &System{start: time.Now(), tps: tps}
}

func (s *System) Now() Tick {
	el := time.Since(s.start)
	return Tick(uint64(el) * uint64(s.tps) / uint64(time.Second))
}

func (s *System) TicksPerSecond() uint32 { return s.tps }

func (s *System) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// CPUTicks counts microseconds since construction.
func (s *System) CPUTicks() uint32 { return uint32(time.Since(s.start) / time.Microsecond) }

func (s *System) CPUFreq() uint32 { return 1_000_000 }

func (s *System) Wall() (time.Time, error) { return time.Now(), nil }
