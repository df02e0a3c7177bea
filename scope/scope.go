// Package scope groups stores, effects, actions and subscriptions under one
// lifecycle.
//
// Everything a Scope creates or is given is released by a single Destroy, in
// this order:
//
//  1. child scopes, depth-first, in creation order
//  2. subscriptions, newest first
//  3. owned stores, effects and actions, newest first
//  4. OnDestroy callbacks, newest first
//  5. the scope context is cancelled
//
// Once destroyed, every factory of the scope fails with ErrUseAfterDestroy.
package scope

import (
	"context"
	"fmt"
	"slices"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/on-the-ground/reactive_ive_go/log"
	"github.com/on-the-ground/reactive_ive_go/store"
	"github.com/on-the-ground/reactive_ive_go/stream"
	"go.uber.org/zap"
)

// ErrUseAfterDestroy is store.ErrUseAfterDestroy.
var ErrUseAfterDestroy = store.ErrUseAfterDestroy

// Resource is anything a scope can own.
type Resource interface {
	ID() string
	Destroy()
}

// Scope is an ownership and lifecycle boundary.
type Scope struct {
	id     string
	name   string
	logger *zap.Logger
	parent *Scope

	ctx       context.Context
	cancel    context.CancelFunc
	stopWatch func() bool

	mu        sync.Mutex
	destroyed bool
	children  []*Scope
	subs      []stream.Subscription
	resources []Resource
	owned     mapset.Set[string]
	cleanups  []func()
}

// New creates a root scope. Cancelling ctx destroys the scope.
func New(ctx context.Context, opts ...Option) *Scope {
	var c config
	for _, opt := range opts {
		opt(&c)
	}
	if c.logger == nil {
		c.logger = log.FromContext(ctx)
	}
	sc := newScope(ctx, nil, c)
	sc.mu.Lock()
	sc.stopWatch = context.AfterFunc(ctx, func() {
		log.Emit(sc.logger, log.LogInfo, "parent context cancelled, destroying scope", map[string]interface{}{
			"scope": sc.label(),
		})
		sc.Destroy()
	})
	sc.mu.Unlock()
	return sc
}

func newScope(ctx context.Context, parent *Scope, c config) *Scope {
	sc := &Scope{
		id:     uuid.New().String(),
		name:   c.name,
		logger: log.OrNop(c.logger),
		parent: parent,
		owned:  mapset.NewThreadUnsafeSet[string](),
	}
	sc.ctx, sc.cancel = context.WithCancel(log.WithLogger(ctx, sc.logger))
	log.Emit(sc.logger, log.LogDebug, "scope created", map[string]interface{}{"scope": sc.label()})
	return sc
}

// ID returns the unique identifier of the scope.
func (sc *Scope) ID() string { return sc.id }

// Context is cancelled when the scope is destroyed. It carries the scope
// logger for log.Effect.
func (sc *Scope) Context() context.Context { return sc.ctx }

// Logger returns the scope logger.
func (sc *Scope) Logger() *zap.Logger { return sc.logger }

// Destroyed reports whether Destroy has been called.
func (sc *Scope) Destroyed() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.destroyed
}

// NewChild creates a scope destroyed together with sc, before any of sc's
// own subscriptions.
func (sc *Scope) NewChild(opts ...Option) (*Scope, error) {
	c := config{logger: sc.logger}
	for _, opt := range opts {
		opt(&c)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.destroyed {
		return nil, sc.useAfterDestroy("create child scope")
	}
	child := newScope(sc.ctx, sc, c)
	sc.children = append(sc.children, child)
	return child, nil
}

// Add hands sub over to the scope. On a destroyed scope, sub is released
// immediately and an error is returned.
func (sc *Scope) Add(sub stream.Subscription) error {
	sc.mu.Lock()
	if sc.destroyed {
		sc.mu.Unlock()
		sub.Unsubscribe()
		return sc.useAfterDestroy("add subscription")
	}
	sc.subs = append(sc.subs, sub)
	sc.mu.Unlock()
	return nil
}

// Own hands r over to the scope. Owning the same resource twice has no
// effect. On a destroyed scope, r is destroyed immediately and an error is
// returned.
func (sc *Scope) Own(r Resource) error {
	sc.mu.Lock()
	if sc.destroyed {
		sc.mu.Unlock()
		r.Destroy()
		return sc.useAfterDestroy(fmt.Sprintf("own %v", r))
	}
	if sc.owned.Add(r.ID()) {
		sc.resources = append(sc.resources, r)
	}
	sc.mu.Unlock()
	return nil
}

// Owns reports whether a resource with the given ID is owned by sc.
func (sc *Scope) Owns(id string) bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.owned.Contains(id)
}

// OnDestroy registers fn to run during Destroy, after every owned resource
// has been released.
func (sc *Scope) OnDestroy(fn func()) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.destroyed {
		return sc.useAfterDestroy("register cleanup")
	}
	sc.cleanups = append(sc.cleanups, fn)
	return nil
}

// Destroy releases everything the scope owns. It is idempotent.
func (sc *Scope) Destroy() {
	sc.mu.Lock()
	if sc.destroyed {
		sc.mu.Unlock()
		return
	}
	sc.destroyed = true
	children, subs, resources, cleanups := sc.children, sc.subs, sc.resources, sc.cleanups
	sc.children, sc.subs, sc.resources, sc.cleanups = nil, nil, nil, nil
	stopWatch := sc.stopWatch
	sc.owned.Clear()
	sc.mu.Unlock()

	for _, child := range children {
		child.Destroy()
	}
	for _, sub := range slices.Backward(subs) {
		sub.Unsubscribe()
	}
	for _, r := range slices.Backward(resources) {
		r.Destroy()
	}
	for _, fn := range slices.Backward(cleanups) {
		sc.runCleanup(fn)
	}

	if stopWatch != nil {
		stopWatch()
	}
	sc.cancel()
	if sc.parent != nil {
		sc.parent.forget(sc)
	}
	log.Emit(sc.logger, log.LogDebug, "scope destroyed", map[string]interface{}{
		"scope":         sc.label(),
		"children":      len(children),
		"subscriptions": len(subs),
		"resources":     len(resources),
	})
}

func (sc *Scope) runCleanup(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Emit(sc.logger, log.LogError, "panic in scope cleanup", map[string]interface{}{
				"scope": sc.label(),
				"error": r,
			})
		}
	}()
	fn()
}

func (sc *Scope) forget(child *Scope) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.children = slices.DeleteFunc(sc.children, func(c *Scope) bool { return c == child })
}

func (sc *Scope) useAfterDestroy(what string) error {
	return fmt.Errorf("%w: %s in %s", ErrUseAfterDestroy, what, sc)
}

func (sc *Scope) label() string {
	if sc.name != "" {
		return sc.name
	}
	return sc.id
}

func (sc *Scope) String() string {
	return fmt.Sprintf("Scope(%s)", sc.label())
}
