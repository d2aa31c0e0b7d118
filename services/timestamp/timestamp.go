// Package timestamp stamps readings from a (wall clock, CPU tick) anchor so
// that a read never has to query the wall clock itself.
package timestamp

import (
	"log/slog"
	"sync"
	"time"

	"sensorcode-go/x/timex"
)

const (
	DefaultRefresh = 30 * time.Minute
	DefaultRetry   = time.Second
)

// Timestamp is wall time at microsecond resolution plus the CPU tick it was
// derived from.
type Timestamp struct {
	Sec      int64
	Usec     int32
	CPUTicks uint32
}

func (t Timestamp) Time() time.Time {
	return time.Unix(t.Sec, int64(t.Usec)*1000)
}

func (t Timestamp) IsZero() bool { return t.Sec == 0 && t.Usec == 0 }

type Config struct {
	Wall timex.WallClock
	CPU  timex.CPUTimer

	// Refresh must stay well inside the CPU timer's wrap period.
	Refresh time.Duration
	Retry   time.Duration
	Logger  *slog.Logger
}

type Service struct {
	wall    timex.WallClock
	cpu     timex.CPUTimer
	refresh time.Duration
	retry   time.Duration
	log     *slog.Logger

	mu       sync.Mutex
	base     Timestamp
	anchored bool
	failures int
}

// New builds the service and takes the first anchor.
func New(cfg Config) *Service {
	if cfg.Refresh <= 0 {
		cfg.Refresh = DefaultRefresh
	}
	if cfg.Retry <= 0 {
		cfg.Retry = DefaultRetry
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Service{
		wall:    cfg.Wall,
		cpu:     cfg.CPU,
		refresh: cfg.Refresh,
		retry:   cfg.Retry,
		log:     cfg.Logger.With("component", "timestamp"),
	}
	s.base.CPUTicks = cfg.CPU.CPUTicks()
	s.Refresh()
	return s
}

// Now extrapolates from the anchor by the CPU ticks elapsed since it was
// taken.
func (s *Service) Now() Timestamp {
	now := s.cpu.CPUTicks()
	freq := uint64(s.cpu.CPUFreq())
	if freq == 0 {
		freq = 1_000_000
	}
	s.mu.Lock()
	base := s.base
	s.mu.Unlock()

	elapsed := uint64(now - base.CPUTicks)
	usec := uint64(base.Usec) + elapsed*1_000_000/freq
	return Timestamp{
		Sec:      base.Sec + int64(usec/1_000_000),
		Usec:     int32(usec % 1_000_000),
		CPUTicks: now,
	}
}

// Refresh re-reads the wall clock and returns the delay until the next
// refresh: the long interval on success, the retry interval on failure. On
// failure the previous anchor stays in use.
func (s *Service) Refresh() time.Duration {
	w, err := s.wall.Wall()
	ticks := s.cpu.CPUTicks()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failures++
		s.log.Debug("wall clock unavailable", "err", err, "failures", s.failures, "anchored", s.anchored)
		return s.retry
	}
	s.base = Timestamp{
		Sec:      w.Unix(),
		Usec:     int32(w.Nanosecond() / 1000),
		CPUTicks: ticks,
	}
	s.anchored = true
	s.failures = 0
	return s.refresh
}

// Anchored reports whether a wall-clock anchor has ever been taken.
func (s *Service) Anchored() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.anchored
}
