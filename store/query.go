package store

import (
	"fmt"
	"sync"

	"github.com/on-the-ground/reactive_ive_go/equal"
	"github.com/on-the-ground/reactive_ive_go/stream"
)

// Query is a read-only view of a value that changes over time.
//
// Subscribing emits the current value immediately, then every later value
// that differs from the previous emission according to the query's equality.
// Get always returns the up-to-date value. Queries are only produced by this
// package: stores, Select, Map and the Combine family.
type Query[T any] interface {
	stream.Observable[T]
	Get() T

	currentVersion() uint64
	watch(*watcher) stream.Subscription
	alive() bool
}

// source is the untyped side of a Query, used to track dependencies.
type source interface {
	currentVersion() uint64
	watch(*watcher) stream.Subscription
	alive() bool
}

// derived is a memoized query computed from other queries.
type derived[T any] struct {
	name    string
	sources []source
	compute func() T
	eq      equal.Func[T]

	mu       sync.Mutex
	srcVers  []uint64
	value    T
	computed bool
	ver      uint64
	failure  error
	doneSrcs int
	finished bool

	watchers watchers
	connMu   sync.Mutex
	conn     *stream.Subscriptions
}

func newDerived[T any](compute func() T, sources []source, o options) *derived[T] {
	return &derived[T]{
		name:    o.name,
		sources: sources,
		compute: compute,
		eq:      equalityOf[T](o),
	}
}

func (d *derived[T]) Get() T {
	d.refresh()
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value
}

func (d *derived[T]) currentVersion() uint64 {
	d.refresh()
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ver
}

// refresh recomputes the value if any source moved since the last
// computation. It returns the equality failure, if any.
func (d *derived[T]) refresh() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failure != nil {
		return d.failure
	}

	vers := make([]uint64, len(d.sources))
	for i, src := range d.sources {
		vers[i] = src.currentVersion()
	}
	if d.computed && sameVersions(vers, d.srcVers) {
		return nil
	}

	next := d.compute()
	d.srcVers = vers
	if !d.computed {
		d.value, d.computed, d.ver = next, true, 1
		return nil
	}

	same, err := stream.SafeEqual(d.eq, d.value, next)
	if err != nil {
		d.failure = err
		return err
	}
	if !same {
		d.value = next
		d.ver++
	}
	return nil
}

func (d *derived[T]) snapshot() (T, uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value, d.ver
}

func (d *derived[T]) Subscribe(o stream.Observer[T]) stream.Subscription {
	if err := d.refresh(); err != nil {
		if o.Error != nil {
			o.Error(err)
		}
		return stream.Closed()
	}

	gate := &versionGate{}
	w := &watcher{
		onChange: func() {
			v, n := d.snapshot()
			if gate.claim(n) && o.Next != nil {
				o.Next(v)
			}
		},
		onDone:  o.Complete,
		onError: o.Error,
	}
	sub := d.watch(w)
	if sub.Closed() || d.terminated() {
		return sub
	}
	if v, n := d.snapshot(); gate.claim(n) && o.Next != nil {
		o.Next(v)
	}
	return sub
}

func (d *derived[T]) terminated() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.finished || d.failure != nil
}

func (d *derived[T]) watch(w *watcher) stream.Subscription {
	d.mu.Lock()
	finished, failure := d.finished, d.failure
	d.mu.Unlock()
	switch {
	case failure != nil:
		if w.onError != nil {
			w.onError(failure)
		}
		return stream.Closed()
	case finished:
		if w.onDone != nil {
			w.onDone()
		}
		return stream.Closed()
	}

	sub, first := d.watchers.add(w, d.disconnect)
	if first {
		d.connect()
	}
	return sub
}

// connect subscribes to the sources while the query has listeners.
func (d *derived[T]) connect() {
	d.connMu.Lock()
	if d.conn != nil {
		d.connMu.Unlock()
		return
	}
	conn := &stream.Subscriptions{}
	d.conn = conn
	d.connMu.Unlock()

	// A finished source calls onDone from watch, which may disconnect.
	for _, src := range d.sources {
		conn.Add(src.watch(&watcher{
			onChange: d.onSourceChange,
			onDone:   d.onSourceDone,
			onError:  d.onSourceError,
		}))
	}
}

// disconnect releases the sources once the last listener is gone. A listener
// that arrived in the meantime keeps the connection.
func (d *derived[T]) disconnect() {
	d.connMu.Lock()
	if !d.watchers.empty() {
		d.connMu.Unlock()
		return
	}
	conn := d.conn
	d.conn = nil
	d.connMu.Unlock()
	if conn != nil {
		conn.Unsubscribe()
	}
}

// alive reports whether every source can still change.
func (d *derived[T]) alive() bool {
	for _, src := range d.sources {
		if !src.alive() {
			return false
		}
	}
	return true
}

func (d *derived[T]) onSourceChange() {
	if err := d.refresh(); err != nil {
		d.watchers.fail(err)
		d.disconnect()
		return
	}
	d.watchers.fire()
}

func (d *derived[T]) onSourceDone() {
	d.mu.Lock()
	d.doneSrcs++
	all := d.doneSrcs >= len(d.sources) && !d.finished
	if all {
		d.finished = true
	}
	d.mu.Unlock()
	if all {
		d.watchers.complete()
		d.disconnect()
	}
}

func (d *derived[T]) onSourceError(err error) {
	d.mu.Lock()
	if d.failure == nil {
		d.failure = err
	}
	d.mu.Unlock()
	d.watchers.fail(err)
	d.disconnect()
}

func (d *derived[T]) String() string {
	if d.name != "" {
		return fmt.Sprintf("Query(%s)", d.name)
	}
	return "Query"
}

func sameVersions(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func checkSources(op string, sources []source) error {
	for _, src := range sources {
		if !src.alive() {
			return fmt.Errorf("%w: %s on destroyed %v", ErrUseAfterDestroy, op, src)
		}
	}
	return nil
}

func must[T any](q Query[T], err error) Query[T] {
	if err != nil {
		panic(err)
	}
	return q
}

// Select derives a query from the state of s. The selector runs again after
// every commit the query observes; the query emits only when the selected
// value changes according to its equality (equal.Default unless WithEquality
// is given).
func Select[S, T any](s *Store[S], selector func(S) T, opts ...Option) (Query[T], error) {
	if err := checkSources("select", []source{s}); err != nil {
		return nil, err
	}
	return newDerived(func() T { return selector(s.Get()) }, []source{s}, buildOptions(opts)), nil
}

// MustSelect is the panic-on-failure variant of Select.
func MustSelect[S, T any](s *Store[S], selector func(S) T, opts ...Option) Query[T] {
	return must[T](Select(s, selector, opts...))
}

// Map derives a query by applying fn to the values of q.
func Map[T, R any](q Query[T], fn func(T) R, opts ...Option) (Query[R], error) {
	sources := []source{q}
	if err := checkSources("map", sources); err != nil {
		return nil, err
	}
	return newDerived(func() R { return fn(q.Get()) }, sources, buildOptions(opts)), nil
}

// MustMap is the panic-on-failure variant of Map.
func MustMap[T, R any](q Query[T], fn func(T) R, opts ...Option) Query[R] {
	return must[R](Map(q, fn, opts...))
}

// Combine derives a query from the current values of all qs. Changes of
// several inputs caused by one commit produce a single emission computed from
// their final values.
func Combine[T, R any](qs []Query[T], combiner func([]T) R, opts ...Option) (Query[R], error) {
	sources := make([]source, len(qs))
	for i, q := range qs {
		sources[i] = q
	}
	if err := checkSources("combine", sources); err != nil {
		return nil, err
	}
	return newDerived(func() R {
		values := make([]T, len(qs))
		for i, q := range qs {
			values[i] = q.Get()
		}
		return combiner(values)
	}, sources, buildOptions(opts)), nil
}

// MustCombine is the panic-on-failure variant of Combine.
func MustCombine[T, R any](qs []Query[T], combiner func([]T) R, opts ...Option) Query[R] {
	return must[R](Combine(qs, combiner, opts...))
}

// Combine2 is Combine for two queries of different types.
func Combine2[A, B, R any](a Query[A], b Query[B], combiner func(A, B) R, opts ...Option) (Query[R], error) {
	sources := []source{a, b}
	if err := checkSources("combine", sources); err != nil {
		return nil, err
	}
	return newDerived(func() R {
		return combiner(a.Get(), b.Get())
	}, sources, buildOptions(opts)), nil
}

// MustCombine2 is the panic-on-failure variant of Combine2.
func MustCombine2[A, B, R any](a Query[A], b Query[B], combiner func(A, B) R, opts ...Option) Query[R] {
	return must[R](Combine2(a, b, combiner, opts...))
}

// Combine3 is Combine for three queries of different types.
func Combine3[A, B, C, R any](a Query[A], b Query[B], c Query[C], combiner func(A, B, C) R, opts ...Option) (Query[R], error) {
	sources := []source{a, b, c}
	if err := checkSources("combine", sources); err != nil {
		return nil, err
	}
	return newDerived(func() R {
		return combiner(a.Get(), b.Get(), c.Get())
	}, sources, buildOptions(opts)), nil
}

// MustCombine3 is the panic-on-failure variant of Combine3.
func MustCombine3[A, B, C, R any](a Query[A], b Query[B], c Query[C], combiner func(A, B, C) R, opts ...Option) Query[R] {
	return must[R](Combine3(a, b, c, combiner, opts...))
}
