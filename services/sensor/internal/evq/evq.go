// Package evq is the manager's single FIFO of deferred work. Producers on any
// goroutine post events without blocking; one consumer drains them.
package evq

import (
	"sync"
	"sync/atomic"
)

// Event is a unit of deferred work. An Event is owned by its producer and may
// be reposted once it has been taken off the queue.
type Event struct {
	Fn  func(*Event)
	Arg any

	queued atomic.Bool
}

// Queued reports whether ev is waiting in a queue.
func (ev *Event) Queued() bool { return ev.queued.Load() }

// Queue is a mutex-guarded slice with a size-one signal channel.
type Queue struct {
	mu     sync.Mutex
	events []*Event
	closed bool
	signal chan struct{}
}

func New() *Queue {
	return &Queue{
		events: make([]*Event, 0, 32),
		signal: make(chan struct{}, 1),
	}
}

// Put appends ev. It returns false when the queue is closed or ev is already
// queued; the pending instance then covers this post.
func (q *Queue) Put(ev *Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	if !ev.queued.CompareAndSwap(false, true) {
		return false
	}
	q.events = append(q.events, ev)
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryGet pops the oldest event without blocking.
func (q *Queue) TryGet() (*Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return nil, false
	}
	ev := q.events[0]
	q.events[0] = nil
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	ev.queued.Store(false)
	return ev, true
}

// Wait signals that events may be available. It is closed by Close.
func (q *Queue) Wait() <-chan struct{} { return q.signal }

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close rejects further posts and wakes waiters. Queued events remain
// retrievable.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// Dispatch pops one event and runs it. It reports whether one was run.
func (q *Queue) Dispatch() bool {
	ev, ok := q.TryGet()
	if !ok {
		return false
	}
	if ev.Fn != nil {
		ev.Fn(ev)
	}
	return true
}
