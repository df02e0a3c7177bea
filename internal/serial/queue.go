// Package serial provides the exclusive-access dispatch queue used by stores
// and effects to deliver notifications one wave at a time.
package serial

import "sync"

// Queue runs submitted functions one at a time, in submission order.
//
// The goroutine that submits to an idle queue becomes its drainer and runs
// every queued function, including the ones submitted while it is draining,
// before Flush returns. A submission made while the queue is draining (from a
// notified subscriber, or from another goroutine) is only enqueued: it runs
// after the function currently executing, on the draining goroutine.
//
// The zero value is ready to use.
type Queue struct {
	mu       sync.Mutex
	pending  []func()
	draining bool
}

// Push enqueues fn without running anything. Callers push while holding
// their own lock, so the queue order matches the order of their state
// transitions, and call Flush once the lock is released.
func (q *Queue) Push(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, fn)
}

// Flush drains the queue unless another goroutine is already draining it.
// It reports whether this call did the draining.
func (q *Queue) Flush() bool {
	q.mu.Lock()
	if q.draining || len(q.pending) == 0 {
		q.mu.Unlock()
		return false
	}
	q.draining = true
	q.mu.Unlock()

	q.drain()
	return true
}

func (q *Queue) drain() {
	// a panicking function must not leave the queue wedged in draining mode
	defer func() {
		if r := recover(); r != nil {
			q.mu.Lock()
			q.draining = false
			q.mu.Unlock()
			panic(r)
		}
	}()

	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.draining = false
			q.mu.Unlock()
			return
		}
		next := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		next()
	}
}
