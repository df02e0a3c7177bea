package stream

import (
	"slices"
	"sync"
	"sync/atomic"
)

type entry[T any] struct {
	observer Observer[T]
	active   atomic.Bool
}

// Subject is a hot multicast Observable. Values are delivered synchronously to
// the observers subscribed at the time of the call, in subscription order.
// Nothing is replayed to late subscribers except the terminal signal.
type Subject[T any] struct {
	mu        sync.Mutex
	observers []*entry[T]
	done      bool
	err       error
}

// NewSubject returns an empty Subject.
func NewSubject[T any]() *Subject[T] {
	return &Subject[T]{}
}

func (s *Subject[T]) Subscribe(o Observer[T]) Subscription {
	s.mu.Lock()
	if s.done {
		err := s.err
		s.mu.Unlock()
		if err != nil {
			o.error(err)
		} else {
			o.complete()
		}
		return Closed()
	}
	e := &entry[T]{observer: o}
	e.active.Store(true)
	s.observers = append(s.observers, e)
	s.mu.Unlock()

	return NewSubscription(func() {
		e.active.Store(false)
		s.mu.Lock()
		s.observers = slices.DeleteFunc(s.observers, func(x *entry[T]) bool { return x == e })
		s.mu.Unlock()
	})
}

// Next pushes v to every current observer. It is a no-op once the subject
// has terminated.
func (s *Subject[T]) Next(v T) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	snapshot := slices.Clone(s.observers)
	s.mu.Unlock()

	for _, e := range snapshot {
		// an observer released by an earlier observer of this wave is skipped
		if e.active.Load() {
			e.observer.next(v)
		}
	}
}

// Error terminates the subject with err.
func (s *Subject[T]) Error(err error) {
	for _, e := range s.terminate(err) {
		e.observer.error(err)
	}
}

// Complete terminates the subject successfully.
func (s *Subject[T]) Complete() {
	for _, e := range s.terminate(nil) {
		e.observer.complete()
	}
}

func (s *Subject[T]) terminate(err error) []*entry[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	s.done = true
	s.err = err
	observers := s.observers
	s.observers = nil
	for _, e := range observers {
		e.active.Store(false)
	}
	return observers
}

// Observed reports whether the subject currently has observers.
func (s *Subject[T]) Observed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observers) > 0
}

// Done reports whether the subject has terminated.
func (s *Subject[T]) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Observable hides the producer side of the subject.
func (s *Subject[T]) Observable() Observable[T] {
	return Func[T](s.Subscribe)
}
