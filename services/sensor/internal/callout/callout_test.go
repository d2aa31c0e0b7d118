package callout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorcode-go/services/sensor/internal/evq"
	"sensorcode-go/x/timex"
)

func setup() (*timex.Fake, *evq.Queue, *int, *Callout) {
	clk := timex.NewFake(1000, 0)
	q := evq.New()
	n := new(int)
	ev := &evq.Event{Fn: func(*evq.Event) { *n++ }}
	return clk, q, n, New(clk, q, ev)
}

func TestFirePostsEvent(t *testing.T) {
	clk, q, n, c := setup()
	c.Reset(50)
	rem, ok := c.Remaining()
	require.True(t, ok)
	assert.Equal(t, uint32(50), rem)

	clk.Advance(49 * time.Millisecond)
	assert.Equal(t, 0, q.Len())
	clk.Advance(time.Millisecond)
	assert.Equal(t, 1, q.Len())
	assert.False(t, c.Armed())

	q.Dispatch()
	assert.Equal(t, 1, *n)
}

func TestResetReplacesDeadline(t *testing.T) {
	clk, q, _, c := setup()
	c.Reset(10)
	c.Reset(100)
	clk.Advance(50 * time.Millisecond)
	assert.Equal(t, 0, q.Len())
	rem, _ := c.Remaining()
	assert.Equal(t, uint32(50), rem)
	clk.Advance(50 * time.Millisecond)
	assert.Equal(t, 1, q.Len())
}

func TestStop(t *testing.T) {
	clk, q, _, c := setup()
	c.Reset(10)
	c.Stop()
	assert.False(t, c.Armed())
	_, ok := c.Remaining()
	assert.False(t, ok)
	clk.Advance(time.Second)
	assert.Equal(t, 0, q.Len())
}

func TestStaleFireIgnored(t *testing.T) {
	_, q, _, c := setup()
	c.Reset(10)
	c.mu.Lock()
	stale := c.gen
	c.mu.Unlock()
	c.Reset(20)
	c.fire(stale)
	assert.Equal(t, 0, q.Len())
}
