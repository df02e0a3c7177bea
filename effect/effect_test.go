package effect_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/on-the-ground/reactive_ive_go/action"
	"github.com/on-the-ground/reactive_ive_go/effect"
	"github.com/on-the-ground/reactive_ive_go/log"
	"github.com/on-the-ground/reactive_ive_go/stream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const timeout = 2 * time.Second

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for value")
		panic("unreachable")
	}
}

func assertSilent[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected value: %v", v)
	case <-time.After(20 * time.Millisecond):
	}
}

func channelOf[T any](src stream.Observable[T]) <-chan T {
	ch := make(chan T, 16)
	src.Subscribe(stream.OnNext(func(v T) { ch <- v }))
	return ch
}

func wait(t *testing.T, waiter interface{ Wait(context.Context) error }) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	require.NoError(t, waiter.Wait(ctx))
}

type history struct {
	mu     sync.Mutex
	events []string
}

func (h *history) add(format string, args ...any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, fmt.Sprintf(format, args...))
}

func (h *history) get() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}

func TestEffect_ExhaustDropsOverlappingRequests(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	eff := effect.New(func(ctx context.Context, in string) (string, error) {
		calls.Add(1)
		<-release
		return in + "!", nil
	}, effect.WithLogger(log.NewTestLogger()), effect.WithName("exhaust"))
	defer eff.Destroy()

	done := channelOf(eff.Done())
	errs := channelOf(eff.Errors())

	assert.True(t, eff.Invoke("A"))
	assert.False(t, eff.Invoke("B"))
	close(release)

	d := receive(t, done)
	assert.Equal(t, "A", d.Input)
	assert.Equal(t, "A!", d.Output)
	wait(t, eff)

	assert.EqualValues(t, 1, calls.Load())
	assertSilent(t, done)
	assertSilent(t, errs)
}

func TestEffect_SwitchCancelsSupersededInvocation(t *testing.T) {
	cancelled := make(chan string, 1)
	eff := effect.New(func(ctx context.Context, in string) (string, error) {
		if in == "A" {
			<-ctx.Done()
			cancelled <- in
			return "", ctx.Err()
		}
		return in, nil
	}, effect.WithPolicy(effect.Switch))
	defer eff.Destroy()

	results := channelOf(eff.Results())

	eff.Invoke("A")
	eff.Invoke("B")

	r := receive(t, results)
	assert.True(t, r.OK())
	assert.Equal(t, "B", r.Input)
	assert.Equal(t, "A", receive(t, cancelled))

	wait(t, eff)
	assertSilent(t, results)
	assert.False(t, eff.Pending().Get())
}

func TestEffect_ConcatRunsInArrivalOrder(t *testing.T) {
	h := &history{}
	releases := map[string]chan struct{}{"A": make(chan struct{}), "B": make(chan struct{})}
	started := make(chan string, 2)
	eff := effect.New(func(ctx context.Context, in string) (string, error) {
		h.add("start %s", in)
		started <- in
		<-releases[in]
		return in, nil
	}, effect.WithPolicy(effect.Concat))
	defer eff.Destroy()

	eff.Done().Subscribe(stream.OnNext(func(d effect.Done[string, string]) {
		h.add("done %s", d.Input)
	}))

	assert.True(t, eff.Invoke("A"))
	assert.True(t, eff.Invoke("B"))
	assert.Equal(t, 2, eff.InFlight().Get())

	assert.Equal(t, "A", receive(t, started))
	assertSilent(t, started)

	close(releases["A"])
	assert.Equal(t, "B", receive(t, started))
	close(releases["B"])
	wait(t, eff)

	assert.Equal(t, []string{"start A", "done A", "start B", "done B"}, h.get())
	assert.Equal(t, 0, eff.InFlight().Get())
}

func TestEffect_PendingTracksInFlightInvocations(t *testing.T) {
	for _, policy := range []effect.Policy{effect.Exhaust, effect.Switch, effect.Merge, effect.Concat} {
		t.Run(policy.String(), func(t *testing.T) {
			release := make(chan struct{})
			eff := effect.New(func(ctx context.Context, in int) (int, error) {
				select {
				case <-release:
				case <-ctx.Done():
				}
				return in, nil
			}, effect.WithPolicy(policy))
			defer eff.Destroy()

			h := &history{}
			eff.Pending().Subscribe(stream.OnNext(func(p bool) { h.add("%t", p) }))

			eff.Invoke(1)
			assert.True(t, eff.Pending().Get())
			eff.Invoke(2)
			assert.True(t, eff.Pending().Get())

			close(release)
			wait(t, eff)

			assert.False(t, eff.Pending().Get())
			assert.Equal(t, []string{"false", "true", "false"}, h.get())
		})
	}
}

func TestEffect_AsyncFailureIsReportedOnce(t *testing.T) {
	boom := errors.New("boom")
	eff := effect.New(func(ctx context.Context, in int) (string, error) {
		time.Sleep(5 * time.Millisecond)
		if in == 2 {
			return "", boom
		}
		return fmt.Sprint(in), nil
	})
	defer eff.Destroy()

	done := channelOf(eff.Done())
	errs := channelOf(eff.Errors())

	eff.Invoke(1)
	assert.Equal(t, 1, receive(t, done).Input)

	eff.Invoke(2)
	f := receive(t, errs)
	assert.Equal(t, 2, f.Input)
	assert.ErrorIs(t, f.Err, boom)
	assert.GreaterOrEqual(t, f.Span.Duration(), 5*time.Millisecond)

	wait(t, eff)
	assertSilent(t, done)
	assertSilent(t, errs)
	assert.False(t, eff.Pending().Get())
}

func TestEffect_PanicBecomesFailure(t *testing.T) {
	eff := effect.NewSync(func(in int) (int, error) {
		if in < 0 {
			panic("negative input")
		}
		return in * 2, nil
	}, effect.WithPolicy(effect.Merge))
	defer eff.Destroy()

	errs := channelOf(eff.Errors())
	done := channelOf(eff.Done())

	assert.NotPanics(t, func() { eff.Invoke(-1) })
	f := receive(t, errs)
	var pe *effect.PanicError
	require.ErrorAs(t, f.Err, &pe)
	assert.Equal(t, "negative input", pe.Value)
	assert.NotEmpty(t, pe.Stack)

	eff.Invoke(3)
	assert.Equal(t, 6, receive(t, done).Output)
}

func TestEffect_SyncInvokeCompletesInline(t *testing.T) {
	eff := effect.NewSync(func(in string) (int, error) { return len(in), nil })
	defer eff.Destroy()

	var got []effect.Result[string, int]
	eff.Results().Subscribe(stream.OnNext(func(r effect.Result[string, int]) { got = append(got, r) }))

	eff.Invoke("abc")
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].Output)
	assert.False(t, eff.Pending().Get())
}

func TestEffect_HandleKeepsSourceAliveOnFailure(t *testing.T) {
	trigger := action.New[int]()
	var calls atomic.Int32
	eff := effect.NewSync(func(in int) (int, error) {
		calls.Add(1)
		return 0, errors.New("always fails")
	})
	defer eff.Destroy()

	sub := eff.Handle(trigger.Events())
	trigger.Trigger(1)
	trigger.Trigger(2)

	assert.False(t, sub.Closed())
	assert.EqualValues(t, 2, calls.Load())
}

func TestEffect_HandleMultiplexesSources(t *testing.T) {
	a, b := action.New[int](), action.New[int]()
	var got []int
	eff := effect.NewSync(func(in int) (int, error) { return in, nil }, effect.WithPolicy(effect.Merge))
	defer eff.Destroy()
	eff.Done().Subscribe(stream.OnNext(func(d effect.Done[int, int]) { got = append(got, d.Output) }))

	eff.Handle(a.Events())
	eff.Handle(b.Events())
	eff.Handle(stream.Of(7))

	a.Trigger(1)
	b.Trigger(2)
	assert.Equal(t, []int{7, 1, 2}, got)
}

func TestEffect_DestroyDiscardsInFlightInvocations(t *testing.T) {
	src := action.New[string]()
	stopped := make(chan struct{})
	eff := effect.New(func(ctx context.Context, in string) (string, error) {
		<-ctx.Done()
		close(stopped)
		return in, nil
	}, effect.WithPolicy(effect.Merge))

	eff.Handle(src.Events())
	results := channelOf(eff.Results())
	var completed atomic.Bool
	eff.Done().Subscribe(stream.Observer[effect.Done[string, string]]{Complete: func() { completed.Store(true) }})
	var pendingDone atomic.Bool
	eff.Pending().Subscribe(stream.Observer[bool]{Complete: func() { pendingDone.Store(true) }})

	src.Trigger("A")
	assert.True(t, eff.Pending().Get())

	eff.Destroy()
	eff.Destroy()
	<-stopped
	wait(t, eff)

	assert.True(t, eff.Destroyed())
	assert.True(t, completed.Load())
	assert.True(t, pendingDone.Load())
	assert.False(t, eff.Pending().Get())
	assertSilent(t, results)

	assert.False(t, eff.Invoke("B"))
	src.Trigger("C")
	assert.True(t, eff.Handle(src.Events()).Closed())
	assert.False(t, src.Closed())
}

func TestEffect_DestroyCompletesOutputsBeforeReturning(t *testing.T) {
	eff := effect.NewSync(func(in string) (string, error) { return in, nil })

	var completed bool
	eff.Done().Subscribe(stream.Observer[effect.Done[string, string]]{Complete: func() { completed = true }})
	var pending []bool
	var pendingDone bool
	eff.Pending().Subscribe(stream.Observer[bool]{
		Next:     func(v bool) { pending = append(pending, v) },
		Complete: func() { pendingDone = true },
	})

	eff.Invoke("A")
	eff.Destroy()

	assert.True(t, completed)
	assert.True(t, pendingDone)
	assert.Equal(t, []bool{false, true, false}, pending)
}

func TestEffect_DestroyFromSubscriberCompletesAfterCurrentEmission(t *testing.T) {
	eff := effect.NewSync(func(in string) (string, error) { return in, nil })

	var h history
	eff.Done().Subscribe(stream.Observer[effect.Done[string, string]]{
		Next: func(d effect.Done[string, string]) {
			h.add("done %s", d.Input)
			eff.Destroy()
			h.add("destroy returned")
		},
		Complete: func() { h.add("complete") },
	})

	eff.Invoke("A")

	assert.Equal(t, []string{"done A", "destroy returned", "complete"}, h.get())
	assert.True(t, eff.Destroyed())
	assert.False(t, eff.Pending().Get())
}

func TestEffect_PartitionsApplyPolicyPerLane(t *testing.T) {
	const lanes = 2
	first := "k0"
	other := ""
	for i := 1; other == ""; i++ {
		key := fmt.Sprintf("k%d", i)
		if xxhash.Sum64String(key)%lanes != xxhash.Sum64String(first)%lanes {
			other = key
		}
	}

	release := make(chan struct{})
	var calls atomic.Int32
	eff := effect.New(func(ctx context.Context, key string) (string, error) {
		calls.Add(1)
		<-release
		return key, nil
	}, effect.WithPartitions(lanes, func(key string) string { return key }))
	defer eff.Destroy()

	assert.True(t, eff.Invoke(first))
	assert.True(t, eff.Invoke(other), "a different lane is not busy")
	assert.False(t, eff.Invoke(first), "same lane drops under exhaust")
	assert.Equal(t, 2, eff.InFlight().Get())

	close(release)
	wait(t, eff)
	assert.EqualValues(t, 2, calls.Load())
}

func TestPolicy_Text(t *testing.T) {
	p, err := effect.ParsePolicy(" Concat ")
	require.NoError(t, err)
	assert.Equal(t, effect.Concat, p)

	_, err = effect.ParsePolicy("race")
	assert.ErrorIs(t, err, effect.ErrUnknownPolicy)

	var decoded effect.Policy
	require.NoError(t, decoded.UnmarshalText([]byte("switch")))
	assert.Equal(t, effect.Switch, decoded)

	text, err := effect.Merge.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "merge", string(text))
}

func TestEffect_UnknownPolicyFallsBackToExhaust(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	release := make(chan struct{})
	eff := effect.New(func(ctx context.Context, in string) (string, error) {
		<-release
		return in, nil
	}, effect.WithPolicy(effect.Policy(9)), effect.WithLogger(zap.New(core)), effect.WithName("odd"))
	defer eff.Destroy()

	assert.Equal(t, effect.Exhaust, eff.Policy())
	assert.True(t, eff.Invoke("A"))
	assert.False(t, eff.Invoke("B"), "overlapping request must be dropped")
	close(release)
	wait(t, eff)

	entries := logs.FilterMessage("unknown effect policy, using exhaust").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Policy(9)", entries[0].ContextMap()["policy"])
	assert.Equal(t, "odd", entries[0].ContextMap()["effect"])
}
