// Package effect wraps handlers into managed invocations with an observable
// status and a concurrency policy.
//
// Requests reach an effect through Invoke or through any stream bound with
// Handle. Each accepted request becomes an invocation that ends in exactly
// one of Done, Failure or, under Switch and on Destroy, cancellation. A
// cancelled invocation emits nothing. Pending is true while at least one
// invocation is running or queued.
//
// Every emission of one effect (Pending and InFlight changes, Done, Errors
// and Results) is delivered one at a time, in the order the invocations
// changed state. An emission caused on one goroutine while another goroutine
// is delivering is handed over to the delivering goroutine.
package effect

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/on-the-ground/reactive_ive_go/equal"
	"github.com/on-the-ground/reactive_ive_go/internal/serial"
	"github.com/on-the-ground/reactive_ive_go/log"
	"github.com/on-the-ground/reactive_ive_go/store"
	"github.com/on-the-ground/reactive_ive_go/stream"
	"go.uber.org/zap"
)

// Handler computes the output of one invocation. For effects created with
// New, ctx is cancelled when the invocation is superseded or the effect is
// destroyed.
type Handler[I, O any] func(ctx context.Context, input I) (O, error)

// SyncHandler is a handler run inline by the requesting goroutine.
type SyncHandler[I, O any] func(input I) (O, error)

type invocation[I any] struct {
	id        uint64
	input     I
	lane      int
	started   time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool
}

// Effect runs a handler for the requests it receives.
type Effect[I, O any] struct {
	id        string
	name      string
	logger    *zap.Logger
	policy    Policy
	handler   Handler[I, O]
	async     bool
	partition func(I) string

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	destroyed bool
	lanes     []*lane[I]
	count     int
	seq       uint64

	emit     serial.Queue
	inFlight *store.Store[int]
	pending  store.Query[bool]
	done     *stream.Subject[Done[I, O]]
	errs     *stream.Subject[Failure[I]]
	results  *stream.Subject[Result[I, O]]

	handles stream.Subscriptions
	sup     supervisor
}

// New creates an effect whose handler runs in its own goroutine per
// invocation.
func New[I, O any](handler Handler[I, O], opts ...Option) *Effect[I, O] {
	return newEffect(handler, true, buildOptions(opts))
}

// NewSync creates an effect whose handler runs inline: Invoke returns after
// the invocation reached its terminal state.
func NewSync[I, O any](handler SyncHandler[I, O], opts ...Option) *Effect[I, O] {
	return newEffect(func(_ context.Context, input I) (O, error) {
		return handler(input)
	}, false, buildOptions(opts))
}

func newEffect[I, O any](handler Handler[I, O], async bool, o options) *Effect[I, O] {
	ctx, cancel := context.WithCancel(o.ctx)
	e := &Effect[I, O]{
		id:        uuid.New().String(),
		name:      o.name,
		logger:    log.OrNop(o.logger),
		policy:    o.policy,
		handler:   handler,
		async:     async,
		partition: partitionOf[I](o),
		ctx:       ctx,
		cancel:    cancel,
		lanes:     make([]*lane[I], o.lanes),
		done:      stream.NewSubject[Done[I, O]](),
		errs:      stream.NewSubject[Failure[I]](),
		results:   stream.NewSubject[Result[I, O]](),
	}
	for i := range e.lanes {
		e.lanes[i] = newLane[I]()
	}
	e.inFlight = store.New(0,
		store.WithName(e.label()+".inFlight"),
		store.WithEquality[int](equal.Comparable[int]),
	)
	e.pending = store.MustMap[int, bool](e.inFlight, func(n int) bool { return n > 0 })
	e.sup = supervisor{logger: e.logger, label: e.label()}

	log.Emit(e.logger, log.LogDebug, "effect created", map[string]interface{}{
		"effect": e.label(),
		"policy": e.policy.String(),
		"lanes":  len(e.lanes),
		"async":  async,
	})
	return e
}

// ID returns the unique identifier of the effect.
func (e *Effect[I, O]) ID() string { return e.id }

// Policy returns the concurrency policy.
func (e *Effect[I, O]) Policy() Policy { return e.policy }

// Pending is true while an invocation is running or queued.
func (e *Effect[I, O]) Pending() store.Query[bool] { return e.pending }

// InFlight is the number of invocations running or queued.
func (e *Effect[I, O]) InFlight() store.Query[int] { return e.inFlight }

// Done emits the successful invocations. Late subscribers see no history.
func (e *Effect[I, O]) Done() stream.Observable[Done[I, O]] { return e.done.Observable() }

// Errors emits the failed invocations. Late subscribers see no history.
func (e *Effect[I, O]) Errors() stream.Observable[Failure[I]] { return e.errs.Observable() }

// Results emits every invocation that reached Done or Failure.
func (e *Effect[I, O]) Results() stream.Observable[Result[I, O]] { return e.results.Observable() }

// Destroyed reports whether Destroy has been called.
func (e *Effect[I, O]) Destroyed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.destroyed
}

// Handle routes every value of source to the effect. Handler failures never
// reach source. After Destroy it returns a closed subscription.
func (e *Effect[I, O]) Handle(source stream.Observable[I]) stream.Subscription {
	if e.Destroyed() {
		return stream.Closed()
	}
	sub := source.Subscribe(stream.Observer[I]{
		Next: func(input I) { e.Invoke(input) },
		Error: func(err error) {
			log.Emit(e.logger, log.LogWarn, "effect source failed", map[string]interface{}{
				"effect": e.label(),
				"err":    err,
			})
		},
	})
	e.handles.Add(sub)
	return sub
}

// Invoke requests an invocation for input. It reports whether the request
// was started or queued; requests dropped by Exhaust or made after Destroy
// report false.
func (e *Effect[I, O]) Invoke(input I) bool {
	inv, accepted := e.admit(input)
	e.emit.Flush()
	if inv != nil {
		e.run(inv)
	}
	return accepted
}

// admit applies the policy of the input's lane. It returns the invocation to
// run now, if any.
func (e *Effect[I, O]) admit(input I) (*invocation[I], bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return nil, false
	}

	idx := e.laneOf(input)
	ln := e.lanes[idx]
	if ln.busy() {
		switch e.policy {
		case Exhaust:
			log.Emit(e.logger, log.LogDebug, "effect request dropped", map[string]interface{}{
				"effect": e.label(),
				"lane":   idx,
			})
			return nil, false
		case Switch:
			for id, inv := range ln.running {
				e.cancelLocked(inv)
				delete(ln.running, id)
				e.count--
			}
		case Concat:
			ln.queue = append(ln.queue, input)
			e.count++
			e.publishLocked()
			return nil, true
		}
	}

	inv := e.startLocked(ln, idx, input)
	e.count++
	e.publishLocked()
	return inv, true
}

func (e *Effect[I, O]) startLocked(ln *lane[I], idx int, input I) *invocation[I] {
	e.seq++
	ctx, cancel := context.WithCancel(e.ctx)
	inv := &invocation[I]{
		id:      e.seq,
		input:   input,
		lane:    idx,
		started: time.Now(),
		ctx:     ctx,
		cancel:  cancel,
	}
	ln.running[inv.id] = inv
	return inv
}

func (e *Effect[I, O]) cancelLocked(inv *invocation[I]) {
	inv.cancelled.Store(true)
	inv.cancel()
	log.Emit(e.logger, log.LogDebug, "effect invocation cancelled", map[string]interface{}{
		"effect":     e.label(),
		"invocation": inv.id,
	})
}

// publishLocked queues the current in-flight count for delivery.
func (e *Effect[I, O]) publishLocked() {
	n := e.count
	e.emit.Push(func() { e.inFlight.Set(n) })
}

func (e *Effect[I, O]) run(inv *invocation[I]) {
	if !e.async {
		e.execute(inv)
		return
	}
	e.sup.spawn(func() { e.execute(inv) })
}

func (e *Effect[I, O]) execute(inv *invocation[I]) {
	out, err := e.call(inv)
	next := e.settle(inv, out, err)
	e.emit.Flush()
	if next != nil {
		e.run(next)
	}
}

func (e *Effect[I, O]) call(inv *invocation[I]) (out O, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return e.handler(inv.ctx, inv.input)
}

// settle records the terminal state of inv and queues its emissions. Under
// Concat it returns the next queued invocation of the lane.
func (e *Effect[I, O]) settle(inv *invocation[I], out O, err error) *invocation[I] {
	span := spanSince(inv.started)
	inv.cancel()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed || inv.cancelled.Load() {
		return nil
	}

	ln := e.lanes[inv.lane]
	delete(ln.running, inv.id)
	e.count--

	if err != nil {
		e.logFailure(inv, err)
		failure := Failure[I]{Input: inv.input, Err: err, Span: span}
		result := Result[I, O]{Input: inv.input, Err: err, Span: span}
		e.emit.Push(func() {
			e.errs.Next(failure)
			e.results.Next(result)
		})
	} else {
		done := Done[I, O]{Input: inv.input, Output: out, Span: span}
		result := Result[I, O]{Input: inv.input, Output: out, Span: span}
		e.emit.Push(func() {
			e.done.Next(done)
			e.results.Next(result)
		})
	}

	var next *invocation[I]
	if e.policy == Concat && !ln.busy() && len(ln.queue) > 0 {
		input := ln.queue[0]
		var zero I
		ln.queue[0] = zero
		ln.queue = ln.queue[1:]
		// the queued request was already counted
		next = e.startLocked(ln, inv.lane, input)
	}
	e.publishLocked()
	return next
}

func (e *Effect[I, O]) logFailure(inv *invocation[I], err error) {
	level := log.LogWarn
	fields := map[string]interface{}{
		"effect":     e.label(),
		"invocation": inv.id,
		"err":        err,
	}
	if pe, ok := err.(*PanicError); ok {
		level = log.LogError
		fields["stack"] = string(pe.Stack)
	}
	log.Emit(e.logger, level, "effect invocation failed", fields)
}

func (e *Effect[I, O]) laneOf(input I) int {
	if e.partition == nil {
		return 0
	}
	return laneIndex(e.partition(input), len(e.lanes))
}

// Wait blocks until the goroutines of asynchronous invocations have returned
// or ctx is done.
func (e *Effect[I, O]) Wait(ctx context.Context) error {
	return e.sup.wait(ctx)
}

// Destroy severs the Handle bindings, cancels every running or queued
// invocation without emitting its outcome, and completes the output streams.
// It is idempotent.
//
// Emissions are delivered by whichever goroutine is draining the effect's
// queue. Called from any other goroutine while no delivery is in progress,
// Destroy returns after Pending has dropped to false and every output stream
// has completed. Called while another goroutine is delivering (including from
// a subscriber of the effect), Destroy only queues these final emissions and
// that goroutine delivers them once it reaches them.
func (e *Effect[I, O]) Destroy() {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	e.destroyed = true
	for _, ln := range e.lanes {
		for id, inv := range ln.running {
			e.cancelLocked(inv)
			delete(ln.running, id)
		}
		ln.queue = nil
	}
	e.count = 0
	e.publishLocked()
	e.emit.Push(func() {
		e.inFlight.Destroy()
		e.done.Complete()
		e.errs.Complete()
		e.results.Complete()
	})
	e.mu.Unlock()

	e.handles.Unsubscribe()
	e.cancel()
	e.emit.Flush()
	log.Emit(e.logger, log.LogDebug, "effect destroyed", map[string]interface{}{"effect": e.label()})
}

func (e *Effect[I, O]) label() string {
	if e.name != "" {
		return e.name
	}
	return e.id
}

func (e *Effect[I, O]) String() string {
	return fmt.Sprintf("Effect(%s)", e.label())
}
