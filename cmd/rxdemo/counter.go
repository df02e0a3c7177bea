package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/on-the-ground/reactive_ive_go/config"
	"github.com/on-the-ground/reactive_ive_go/effect"
	"github.com/on-the-ground/reactive_ive_go/scope"
	"github.com/on-the-ground/reactive_ive_go/store"
	"github.com/on-the-ground/reactive_ive_go/stream"
)

type counterState struct {
	Count int
	Saved int
}

var errSaveRejected = errors.New("save rejected")

// runCounter wires an increment action to a store and saves every distinct
// count through a synchronous effect, printing what each stream emits.
func runCounter(ctx context.Context, out io.Writer, cfg config.Config) error {
	sc := scope.New(ctx, scope.WithName("counter"))
	defer sc.Destroy()

	state, err := scope.CreateStore(sc, counterState{}, store.WithName("counter"))
	if err != nil {
		return err
	}
	increment, err := scope.CreateAction[int](sc)
	if err != nil {
		return err
	}
	failEvery := cfg.Counter.FailEvery
	save, err := scope.CreateSyncEffect(sc, func(count int) (int, error) {
		if failEvery > 0 && count > 0 && count%failEvery == 0 {
			return 0, fmt.Errorf("%w: %d", errSaveRejected, count)
		}
		return count, nil
	}, effect.WithName("save"), effect.WithPolicy(cfg.Policy))
	if err != nil {
		return err
	}

	count, err := store.Select(state, func(s counterState) int { return s.Count })
	if err != nil {
		return err
	}
	updates := store.DeclareUpdates(state, map[string]store.UpdateFactory[counterState]{
		"add": func(args ...any) (store.Mutation[counterState], error) {
			by, err := store.Arg[int](args, 0)
			if err != nil {
				return nil, err
			}
			return func(s counterState) counterState {
				s.Count += by
				return s
			}, nil
		},
		"saved": func(args ...any) (store.Mutation[counterState], error) {
			n, err := store.Arg[int](args, 0)
			if err != nil {
				return nil, err
			}
			return func(s counterState) counterState {
				s.Saved = n
				return s
			}, nil
		},
	})

	if err := sc.Add(count.Subscribe(stream.OnNext(func(n int) {
		fmt.Fprintf(out, "count: %d\n", n)
	}))); err != nil {
		return err
	}
	if err := sc.Add(save.Pending().Subscribe(stream.OnNext(func(p bool) {
		fmt.Fprintf(out, "pending: %t\n", p)
	}))); err != nil {
		return err
	}
	if _, err := scope.Handle(sc, save.Done(), func(d effect.Done[int, int]) {
		fmt.Fprintf(out, "saved: %d\n", d.Output)
		if err := updates.Call("saved", d.Output); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}); err != nil {
		return err
	}
	if _, err := scope.Handle(sc, save.Errors(), func(f effect.Failure[int]) {
		fmt.Fprintf(out, "save failed: %v\n", f.Err)
	}); err != nil {
		return err
	}

	if _, err := scope.Handle(sc, increment.Events(), func(by int) {
		if err := updates.Call("add", by); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}); err != nil {
		return err
	}
	if _, err := scope.HandleEffect[int, int](sc, count, save); err != nil {
		return err
	}

	for range cfg.Counter.Increments {
		increment.Trigger(1)
	}

	sc.Destroy()
	increment.Trigger(1)

	final := state.Get()
	fmt.Fprintf(out, "destroyed: count=%d saved=%d\n", final.Count, final.Saved)
	return nil
}
