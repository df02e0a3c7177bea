package scope

import (
	"github.com/on-the-ground/reactive_ive_go/action"
	"github.com/on-the-ground/reactive_ive_go/effect"
	"github.com/on-the-ground/reactive_ive_go/log"
	"github.com/on-the-ground/reactive_ive_go/store"
	"github.com/on-the-ground/reactive_ive_go/stream"
)

// CreateStore creates a store owned by sc.
func CreateStore[S any](sc *Scope, initial S, opts ...store.Option) (*store.Store[S], error) {
	if sc.Destroyed() {
		return nil, sc.useAfterDestroy("create store")
	}
	s := store.New(initial, append([]store.Option{store.WithLogger(sc.logger)}, opts...)...)
	if err := sc.Own(s); err != nil {
		return nil, err
	}
	return s, nil
}

// CreateEffect creates an asynchronous effect owned by sc. Invocations run
// under the scope context.
func CreateEffect[I, O any](sc *Scope, handler effect.Handler[I, O], opts ...effect.Option) (*effect.Effect[I, O], error) {
	if sc.Destroyed() {
		return nil, sc.useAfterDestroy("create effect")
	}
	e := effect.New(handler, append(sc.effectDefaults(), opts...)...)
	if err := sc.Own(e); err != nil {
		return nil, err
	}
	return e, nil
}

// CreateSyncEffect creates a synchronous effect owned by sc.
func CreateSyncEffect[I, O any](sc *Scope, handler effect.SyncHandler[I, O], opts ...effect.Option) (*effect.Effect[I, O], error) {
	if sc.Destroyed() {
		return nil, sc.useAfterDestroy("create effect")
	}
	e := effect.NewSync(handler, append(sc.effectDefaults(), opts...)...)
	if err := sc.Own(e); err != nil {
		return nil, err
	}
	return e, nil
}

// CreateAction creates an action owned by sc. Destroying sc closes it.
func CreateAction[T any](sc *Scope, opts ...action.Option) (*action.Action[T], error) {
	if sc.Destroyed() {
		return nil, sc.useAfterDestroy("create action")
	}
	a := action.New[T](append([]action.Option{action.WithLogger(sc.logger)}, opts...)...)
	if err := sc.Own(a); err != nil {
		return nil, err
	}
	return a, nil
}

// Handle calls fn for every value of source until sc is destroyed. A panic
// in fn is logged and the source stays subscribed.
func Handle[T any](sc *Scope, source stream.Observable[T], fn func(T)) (stream.Subscription, error) {
	if sc.Destroyed() {
		return nil, sc.useAfterDestroy("handle")
	}
	sub := source.Subscribe(stream.Observer[T]{
		Next: func(v T) {
			defer func() {
				if r := recover(); r != nil {
					log.Emit(sc.logger, log.LogError, "panic in scope handler", map[string]interface{}{
						"scope": sc.label(),
						"error": r,
					})
				}
			}()
			fn(v)
		},
		Error: func(err error) {
			log.Emit(sc.logger, log.LogWarn, "scope handler source failed", map[string]interface{}{
				"scope": sc.label(),
				"err":   err,
			})
		},
	})
	if err := sc.Add(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// HandleEffect routes every value of source to eff until sc is destroyed.
func HandleEffect[I, O any](sc *Scope, source stream.Observable[I], eff *effect.Effect[I, O]) (stream.Subscription, error) {
	if sc.Destroyed() {
		return nil, sc.useAfterDestroy("handle effect")
	}
	sub := eff.Handle(source)
	if err := sc.Add(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (sc *Scope) effectDefaults() []effect.Option {
	return []effect.Option{
		effect.WithLogger(sc.logger),
		effect.WithContext(sc.ctx),
	}
}
