package evq

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFO(t *testing.T) {
	q := New()
	var got []int
	mk := func(i int) *Event {
		return &Event{Arg: i, Fn: func(ev *Event) { got = append(got, ev.Arg.(int)) }}
	}
	for i := 0; i < 5; i++ {
		require.True(t, q.Put(mk(i)))
	}
	for q.Dispatch() {
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
	assert.Equal(t, 0, q.Len())
}

func TestPutCoalescesQueuedEvent(t *testing.T) {
	q := New()
	n := 0
	ev := &Event{Fn: func(*Event) { n++ }}
	assert.True(t, q.Put(ev))
	assert.False(t, q.Put(ev))
	assert.True(t, ev.Queued())
	assert.Equal(t, 1, q.Len())

	require.True(t, q.Dispatch())
	assert.Equal(t, 1, n)
	assert.False(t, ev.Queued())

	// Reposting after dispatch works again.
	assert.True(t, q.Put(ev))
}

func TestCloseRejectsAndWakes(t *testing.T) {
	q := New()
	require.True(t, q.Put(&Event{}))
	q.Close()
	q.Close()
	assert.False(t, q.Put(&Event{}))

	_, open := <-q.Wait()
	// First receive may be the pending signal; the channel is closed after.
	if open {
		_, open = <-q.Wait()
	}
	assert.False(t, open)

	_, ok := q.TryGet()
	assert.True(t, ok, "events queued before Close stay retrievable")
}

func TestConcurrentProducers(t *testing.T) {
	q := New()
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.Put(&Event{})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 800, q.Len())
}
