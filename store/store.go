// Package store holds application state and the read-only queries derived
// from it.
//
// A Store owns one immutable value. Set and Update commit a new value under a
// single-writer lock and notify subscribers synchronously, in subscription
// order, before returning. A Query is a memoized projection of a Store or of
// other queries: it recomputes lazily from the current values of all its
// sources and only emits values that differ from the previous emission.
//
// # Reentrant updates
//
// A subscriber may call Set or Update on the store that is notifying it. The
// new value is committed immediately, so Get reflects it, but its
// notification is queued and delivered after the current wave has reached
// every subscriber. A commit made from another goroutine while a wave is
// being delivered is queued the same way and delivered by the delivering
// goroutine. Store subscribers see every committed value in commit order;
// derived queries read the latest state when their wave arrives.
//
// Mutations run under the store lock and must not call back into the store.
package store

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/on-the-ground/reactive_ive_go/equal"
	"github.com/on-the-ground/reactive_ive_go/internal/serial"
	"github.com/on-the-ground/reactive_ive_go/log"
	"github.com/on-the-ground/reactive_ive_go/stream"
	"go.uber.org/zap"
)

// Mutation derives the next state from the current one. It must not modify
// its argument; returning the argument unchanged commits nothing.
type Mutation[S any] func(S) S

var _ Query[int] = (*Store[int])(nil)

// Store holds the current state of type S.
type Store[S any] struct {
	id     string
	name   string
	eq     equal.Func[S]
	logger *zap.Logger

	mu        sync.Mutex
	state     S
	ver       uint64
	destroyed bool

	dispatch serial.Queue
	watchers watchers
	// wave is the commit being delivered; only the draining goroutine
	// touches it.
	wave struct {
		value  S
		ver    uint64
		notify bool
	}
}

// New creates a store holding initial.
func New[S any](initial S, opts ...Option) *Store[S] {
	o := buildOptions(opts)
	s := &Store[S]{
		id:     uuid.New().String(),
		name:   o.name,
		eq:     equalityOf[S](o),
		logger: log.OrNop(o.logger),
		state:  initial,
		ver:    1,
	}
	s.debug("store created", nil)
	return s
}

// ID returns the unique identifier of the store.
func (s *Store[S]) ID() string { return s.id }

// Name returns the configured name, possibly empty.
func (s *Store[S]) Name() string { return s.name }

// Get returns the latest committed state.
func (s *Store[S]) Get() S {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Set replaces the state with next.
func (s *Store[S]) Set(next S) {
	s.commit(func(S) S { return next })
}

// Update replaces the state with mutation(current).
func (s *Store[S]) Update(mutation Mutation[S]) {
	s.commit(mutation)
}

// Destroyed reports whether Destroy has been called.
func (s *Store[S]) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

// Destroy completes every subscriber and turns later Set and Update calls
// into no-ops. It is idempotent.
func (s *Store[S]) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	s.mu.Unlock()

	s.watchers.complete()
	s.debug("store destroyed", nil)
}

// Subscribe emits the current state, then every committed change, until the
// subscription is released or the store is destroyed.
func (s *Store[S]) Subscribe(o stream.Observer[S]) stream.Subscription {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		if o.Complete != nil {
			o.Complete()
		}
		return stream.Closed()
	}
	value, ver := s.state, s.ver
	s.mu.Unlock()

	gate := &versionGate{}
	w := &watcher{
		onChange: func() {
			if !s.wave.notify {
				return
			}
			if gate.claim(s.wave.ver) && o.Next != nil {
				o.Next(s.wave.value)
			}
		},
		onDone: o.Complete,
	}
	sub, _ := s.watchers.add(w, nil)
	if gate.claim(ver) && o.Next != nil {
		o.Next(value)
	}
	return sub
}

func (s *Store[S]) currentVersion() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ver
}

func (s *Store[S]) watch(w *watcher) stream.Subscription {
	s.mu.Lock()
	destroyed := s.destroyed
	s.mu.Unlock()
	if destroyed {
		if w.onDone != nil {
			w.onDone()
		}
		return stream.Closed()
	}
	sub, _ := s.watchers.add(w, nil)
	return sub
}

func (s *Store[S]) alive() bool {
	return !s.Destroyed()
}

func (s *Store[S]) commit(mutation Mutation[S]) {
	ver, changed := s.apply(mutation)
	if !changed {
		return
	}
	s.debug("store updated", map[string]interface{}{"version": ver})
	s.dispatch.Flush()
}

// apply runs mutation under the lock and, when the state changed, queues the
// notification wave in commit order. A value equal to the previous one under
// the store equality but not identical to it is still a commit: derived
// queries re-run their selectors, store subscribers are not notified.
func (s *Store[S]) apply(mutation Mutation[S]) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return 0, false
	}

	prev := s.state
	next := mutation(prev)
	if equal.Default(prev, next) {
		return s.ver, false
	}

	same, err := stream.SafeEqual(s.eq, prev, next)
	if err != nil {
		log.Emit(s.logger, log.LogError, "store equality failed, treating value as changed", map[string]interface{}{
			"store": s.label(),
			"err":   err,
		})
	}
	s.state = next
	s.ver++

	ver, notify := s.ver, !same
	s.dispatch.Push(func() {
		s.wave.value, s.wave.ver, s.wave.notify = next, ver, notify
		s.watchers.fire()
	})
	return ver, true
}

func (s *Store[S]) label() string {
	if s.name != "" {
		return s.name
	}
	return s.id
}

func (s *Store[S]) debug(msg string, fields map[string]interface{}) {
	if !s.logger.Core().Enabled(zap.DebugLevel) {
		return
	}
	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["store"] = s.label()
	fields["storeId"] = s.id
	log.Emit(s.logger, log.LogDebug, msg, fields)
}

func (s *Store[S]) String() string {
	return fmt.Sprintf("Store(%s)", s.label())
}
