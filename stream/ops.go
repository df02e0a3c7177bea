package stream

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/on-the-ground/reactive_ive_go/equal"
)

// Of emits every value synchronously on subscribe, then completes.
func Of[T any](values ...T) Observable[T] {
	return Func[T](func(o Observer[T]) Subscription {
		for _, v := range values {
			o.next(v)
		}
		o.complete()
		return Closed()
	})
}

// Never emits nothing and never terminates.
func Never[T any]() Observable[T] {
	return Func[T](func(Observer[T]) Subscription {
		return NewSubscription(nil)
	})
}

// FromChan emits the values received from ch, from a dedicated goroutine,
// and completes when ch is closed. Unsubscribing stops the goroutine before
// its next delivery; values still buffered in ch are left there.
func FromChan[T any](ch <-chan T) Observable[T] {
	return Func[T](func(o Observer[T]) Subscription {
		done := make(chan struct{})
		var stopped atomic.Bool

		sub := NewSubscription(func() {
			stopped.Store(true)
			close(done)
		})

		go func() {
			for {
				select {
				case <-done:
					return
				case v, ok := <-ch:
					if stopped.Load() {
						return
					}
					if !ok {
						o.complete()
						return
					}
					o.next(v)
				}
			}
		}()
		return sub
	})
}

// Map transforms every value of src with fn.
func Map[T, R any](src Observable[T], fn func(T) R) Observable[R] {
	return Func[R](func(o Observer[R]) Subscription {
		return src.Subscribe(Observer[T]{
			Next:     func(v T) { o.next(fn(v)) },
			Error:    o.error,
			Complete: o.complete,
		})
	})
}

// Filter forwards the values of src accepted by predicate.
func Filter[T any](src Observable[T], predicate func(T) bool) Observable[T] {
	return Func[T](func(o Observer[T]) Subscription {
		return src.Subscribe(Observer[T]{
			Next: func(v T) {
				if predicate(v) {
					o.next(v)
				}
			},
			Error:    o.error,
			Complete: o.complete,
		})
	})
}

// EqualityError reports a comparator that panicked while deciding whether a
// value changed. It is delivered to observers as a stream error.
type EqualityError struct {
	Recovered any
}

func (e *EqualityError) Error() string {
	return fmt.Sprintf("equality function panicked: %v", e.Recovered)
}

// SafeEqual runs eq and converts a panic into an *EqualityError.
func SafeEqual[T any](eq equal.Func[T], a, b T) (same bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			same = false
			err = &EqualityError{Recovered: r}
		}
	}()
	return eq(a, b), nil
}

// DistinctUntilChanged drops values equal to the previously forwarded one.
// A nil eq uses equal.Default. If eq panics, the observer receives an
// *EqualityError and the upstream subscription is released.
func DistinctUntilChanged[T any](src Observable[T], eq equal.Func[T]) Observable[T] {
	eq = equal.OrDefault(eq)
	return Func[T](func(o Observer[T]) Subscription {
		var (
			mu       sync.Mutex
			last     T
			hasLast  bool
			failed   bool
			upstream Subscription
		)
		stop := func() {
			mu.Lock()
			up := upstream
			mu.Unlock()
			if up != nil {
				up.Unsubscribe()
			}
		}

		sub := src.Subscribe(Observer[T]{
			Next: func(v T) {
				mu.Lock()
				if failed {
					mu.Unlock()
					return
				}
				if hasLast {
					same, err := SafeEqual(eq, last, v)
					if err != nil {
						failed = true
						mu.Unlock()
						o.error(err)
						stop()
						return
					}
					if same {
						mu.Unlock()
						return
					}
				}
				last, hasLast = v, true
				mu.Unlock()
				o.next(v)
			},
			Error:    o.error,
			Complete: o.complete,
		})

		mu.Lock()
		upstream = sub
		alreadyFailed := failed
		mu.Unlock()
		if alreadyFailed {
			sub.Unsubscribe()
		}
		return sub
	})
}

// CombineLatest2 emits fn(a, b) with the latest values of both sources once
// each of them has emitted at least once. It completes when both complete
// and fails as soon as either fails.
func CombineLatest2[A, B, R any](a Observable[A], b Observable[B], fn func(A, B) R) Observable[R] {
	return Func[R](func(o Observer[R]) Subscription {
		var (
			mu         sync.Mutex
			lastA      A
			lastB      B
			hasA, hasB bool
			completed  int
		)
		emit := func() {
			if hasA && hasB {
				v := fn(lastA, lastB)
				mu.Unlock()
				o.next(v)
				return
			}
			mu.Unlock()
		}
		completeOne := func() {
			mu.Lock()
			completed++
			all := completed == 2
			mu.Unlock()
			if all {
				o.complete()
			}
		}

		var group Subscriptions
		group.Add(a.Subscribe(Observer[A]{
			Next: func(v A) {
				mu.Lock()
				lastA, hasA = v, true
				emit()
			},
			Error:    o.error,
			Complete: completeOne,
		}))
		group.Add(b.Subscribe(Observer[B]{
			Next: func(v B) {
				mu.Lock()
				lastB, hasB = v, true
				emit()
			},
			Error:    o.error,
			Complete: completeOne,
		}))
		return &group
	})
}

// Merge forwards the values of every source. It completes once all sources
// have completed.
func Merge[T any](sources ...Observable[T]) Observable[T] {
	return Func[T](func(o Observer[T]) Subscription {
		if len(sources) == 0 {
			o.complete()
			return Closed()
		}
		var mu sync.Mutex
		remaining := len(sources)
		var group Subscriptions
		for _, src := range sources {
			group.Add(src.Subscribe(Observer[T]{
				Next:  o.next,
				Error: o.error,
				Complete: func() {
					mu.Lock()
					remaining--
					last := remaining == 0
					mu.Unlock()
					if last {
						o.complete()
					}
				},
			}))
		}
		return &group
	})
}
