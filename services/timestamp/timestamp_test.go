package timestamp

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorcode-go/x/timex"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 999_000_000, time.UTC)

func newFake() *timex.Fake {
	c := timex.NewFake(1000, 0)
	c.SetWall(t0)
	return c
}

func TestNowCarriesSeconds(t *testing.T) {
	clk := newFake()
	s := New(Config{Wall: clk, CPU: clk})
	require.True(t, s.Anchored())

	ts := s.Now()
	assert.Equal(t, t0.Unix(), ts.Sec)
	assert.Equal(t, int32(999_000), ts.Usec)

	clk.Advance(1500 * time.Microsecond)
	ts = s.Now()
	assert.Equal(t, t0.Unix()+1, ts.Sec)
	assert.Equal(t, int32(500), ts.Usec)
	assert.Equal(t, clk.CPUTicks(), ts.CPUTicks)
	assert.Equal(t, t0.Add(1500*time.Microsecond), ts.Time().UTC())
}

func TestRefreshIntervals(t *testing.T) {
	clk := newFake()
	s := New(Config{Wall: clk, CPU: clk, Refresh: time.Minute, Retry: 2 * time.Second})
	assert.Equal(t, time.Minute, s.Refresh())

	clk.SetWallError(errors.New("rtc not set"))
	assert.Equal(t, 2*time.Second, s.Refresh())
}

func TestStaleAnchorKeptOnFailure(t *testing.T) {
	clk := newFake()
	s := New(Config{Wall: clk, CPU: clk})

	clk.Advance(10 * time.Second)
	clk.SetWallError(errors.New("gone"))
	// Move the real wall clock; the service must not see it.
	clk.SetWall(t0.Add(time.Hour))
	assert.Equal(t, DefaultRetry, s.Refresh())

	ts := s.Now()
	assert.Equal(t, t0.Add(10*time.Second).Unix(), ts.Sec)

	clk.SetWallError(nil)
	assert.Equal(t, DefaultRefresh, s.Refresh())
	assert.Equal(t, t0.Add(time.Hour).Unix(), s.Now().Sec)
}

func TestCPUWrap(t *testing.T) {
	cpu := &wrapCPU{ticks: 0xFFFFFF00}
	clk := newFake()
	s := New(Config{Wall: clk, CPU: cpu})
	base := s.Now()
	cpu.ticks += 0x200 // wraps past zero
	ts := s.Now()
	us := (ts.Sec-base.Sec)*1_000_000 + int64(ts.Usec-base.Usec)
	assert.Equal(t, int64(0x200), us)
}

func TestNoWallAtStart(t *testing.T) {
	clk := newFake()
	clk.SetWallError(errors.New("no rtc"))
	s := New(Config{Wall: clk, CPU: clk})
	assert.False(t, s.Anchored())
	clk.Advance(2 * time.Second)
	assert.Equal(t, int64(2), s.Now().Sec)
}

type wrapCPU struct{ ticks uint32 }

func (w *wrapCPU) CPUTicks() uint32 { return w.ticks }
func (w *wrapCPU) CPUFreq() uint32  { return 1_000_000 }
