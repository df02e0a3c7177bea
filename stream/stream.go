// Package stream is the push-based reactive primitive the runtime is built on.
//
// An Observable pushes values to an Observer until the returned Subscription
// is released or the Observable signals a terminal Error or Complete.
// Delivery is synchronous: Subject.Next returns once every current observer
// has seen the value. Values that arrive "later" (from a channel, a goroutine,
// a timer) are modelled with FromChan.
package stream

import (
	"sync"
	"sync/atomic"
)

// Observer receives the notifications of an Observable.
// Nil callbacks are ignored.
type Observer[T any] struct {
	Next     func(T)
	Error    func(error)
	Complete func()
}

// OnNext builds an Observer that only listens to values.
func OnNext[T any](next func(T)) Observer[T] {
	return Observer[T]{Next: next}
}

func (o Observer[T]) next(v T) {
	if o.Next != nil {
		o.Next(v)
	}
}

func (o Observer[T]) error(err error) {
	if o.Error != nil {
		o.Error(err)
	}
}

func (o Observer[T]) complete() {
	if o.Complete != nil {
		o.Complete()
	}
}

// Observable is a source of values of type T.
type Observable[T any] interface {
	Subscribe(Observer[T]) Subscription
}

// Func adapts a subscribe function to an Observable.
type Func[T any] func(Observer[T]) Subscription

func (f Func[T]) Subscribe(o Observer[T]) Subscription {
	return f(o)
}

// Subscription releases the connection between an Observable and an Observer.
// Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
	Closed() bool
}

type subscription struct {
	once     sync.Once
	closed   atomic.Bool
	teardown func()
}

// NewSubscription returns a Subscription running teardown exactly once.
// A nil teardown is allowed.
func NewSubscription(teardown func()) Subscription {
	return &subscription{teardown: teardown}
}

// Closed returns an already released Subscription.
func Closed() Subscription {
	s := &subscription{}
	s.Unsubscribe()
	return s
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.closed.Store(true)
		if s.teardown != nil {
			s.teardown()
		}
	})
}

func (s *subscription) Closed() bool {
	return s.closed.Load()
}

// Subscriptions is a group of subscriptions released together, newest first.
// The zero value is ready to use. Adding to a released group releases the
// added subscription immediately.
type Subscriptions struct {
	mu     sync.Mutex
	subs   []Subscription
	closed bool
}

// Add registers sub with the group.
func (g *Subscriptions) Add(sub Subscription) {
	if sub == nil {
		return
	}
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	g.subs = append(g.subs, sub)
	g.mu.Unlock()
}

// Len returns the number of registered subscriptions.
func (g *Subscriptions) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.subs)
}

func (g *Subscriptions) Unsubscribe() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	subs := g.subs
	g.subs = nil
	g.mu.Unlock()

	for i := len(subs) - 1; i >= 0; i-- {
		subs[i].Unsubscribe()
	}
}

func (g *Subscriptions) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}
