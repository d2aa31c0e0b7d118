// Package evpool is a fixed-capacity block allocator. Get never blocks, so it
// is usable from interrupt-deferral paths.
package evpool

// Pool hands out at most Cap blocks at a time.
type Pool[T any] struct {
	free chan *T
}

// New preallocates n blocks. n < 1 is treated as 1.
func New[T any](n int) *Pool[T] {
	if n < 1 {
		n = 1
	}
	p := &Pool[T]{free: make(chan *T, n)}
	for i := 0; i < n; i++ {
		p.free <- new(T)
	}
	return p
}

// Get returns a free block, or false when all are outstanding.
func (p *Pool[T]) Get() (*T, bool) {
	select {
	case b := <-p.free:
		return b, true
	default:
		return nil, false
	}
}

// Put returns b. Callers reset the fields they set before returning it.
func (p *Pool[T]) Put(b *T) {
	if b == nil {
		return
	}
	select {
	case p.free <- b:
	default:
		panic("evpool: put of a block that was not outstanding")
	}
}

func (p *Pool[T]) Cap() int { return cap(p.free) }

// InUse returns the number of outstanding blocks.
func (p *Pool[T]) InUse() int { return cap(p.free) - len(p.free) }
