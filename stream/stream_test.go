package stream_test

import (
	"errors"
	"testing"
	"time"

	"github.com/on-the-ground/reactive_ive_go/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect[T any](src stream.Observable[T]) (*[]T, stream.Subscription) {
	var got []T
	sub := src.Subscribe(stream.OnNext(func(v T) { got = append(got, v) }))
	return &got, sub
}

func TestSubject_DeliversInSubscriptionOrder(t *testing.T) {
	s := stream.NewSubject[int]()
	var order []string

	s.Subscribe(stream.OnNext(func(v int) { order = append(order, "first") }))
	s.Subscribe(stream.OnNext(func(v int) { order = append(order, "second") }))

	s.Next(1)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestSubject_NoReplayForLateSubscribers(t *testing.T) {
	s := stream.NewSubject[int]()
	s.Next(1)

	got, _ := collect[int](s)
	s.Next(2)

	assert.Equal(t, []int{2}, *got)
}

func TestSubject_UnsubscribeDuringWaveSkipsObserver(t *testing.T) {
	s := stream.NewSubject[int]()
	var second stream.Subscription
	var secondGot []int

	s.Subscribe(stream.OnNext(func(int) { second.Unsubscribe() }))
	second = s.Subscribe(stream.OnNext(func(v int) { secondGot = append(secondGot, v) }))

	s.Next(1)
	assert.Empty(t, secondGot)
	assert.True(t, second.Closed())
}

func TestSubject_TerminalSignalReachesLateSubscribers(t *testing.T) {
	s := stream.NewSubject[int]()
	boom := errors.New("boom")
	s.Error(boom)

	var got error
	sub := s.Subscribe(stream.Observer[int]{Error: func(err error) { got = err }})

	assert.ErrorIs(t, got, boom)
	assert.True(t, sub.Closed())
	assert.True(t, s.Done())

	s.Next(1) // no-op after termination
}

func TestSubscription_IsIdempotent(t *testing.T) {
	calls := 0
	sub := stream.NewSubscription(func() { calls++ })

	sub.Unsubscribe()
	sub.Unsubscribe()

	assert.Equal(t, 1, calls)
}

func TestSubscriptions_ReleasesNewestFirst(t *testing.T) {
	var order []int
	var group stream.Subscriptions
	for i := 1; i <= 3; i++ {
		group.Add(stream.NewSubscription(func() { order = append(order, i) }))
	}

	group.Unsubscribe()
	assert.Equal(t, []int{3, 2, 1}, order)

	late := stream.NewSubscription(nil)
	group.Add(late)
	assert.True(t, late.Closed(), "adding to a released group releases immediately")
}

func TestMapFilter(t *testing.T) {
	doubledOdds := stream.Map(
		stream.Filter(stream.Of(1, 2, 3, 4, 5), func(v int) bool { return v%2 == 1 }),
		func(v int) int { return v * 2 },
	)

	got, _ := collect(doubledOdds)
	assert.Equal(t, []int{2, 6, 10}, *got)
}

func TestDistinctUntilChanged(t *testing.T) {
	got, _ := collect(stream.DistinctUntilChanged(stream.Of(1, 1, 2, 2, 1), nil))
	assert.Equal(t, []int{1, 2, 1}, *got)
}

func TestDistinctUntilChanged_EqualityPanicBecomesStreamError(t *testing.T) {
	s := stream.NewSubject[int]()
	var values []int
	var gotErr error

	distinct := stream.DistinctUntilChanged[int](s, func(a, b int) bool { panic("bad comparator") })
	distinct.Subscribe(stream.Observer[int]{
		Next:  func(v int) { values = append(values, v) },
		Error: func(err error) { gotErr = err },
	})

	s.Next(1)
	s.Next(2)
	s.Next(3)

	assert.Equal(t, []int{1}, values)
	var eqErr *stream.EqualityError
	require.ErrorAs(t, gotErr, &eqErr)
	assert.Equal(t, "bad comparator", eqErr.Recovered)
	assert.False(t, s.Observed(), "upstream must be released after the failure")
}

func TestCombineLatest2(t *testing.T) {
	a := stream.NewSubject[int]()
	b := stream.NewSubject[string]()

	got, _ := collect(stream.CombineLatest2[int, string](a, b, func(x int, y string) string {
		return y + string(rune('0'+x))
	}))

	a.Next(1)
	assert.Empty(t, *got)
	b.Next("a")
	a.Next(2)
	assert.Equal(t, []string{"a1", "a2"}, *got)
}

func TestMerge_CompletesAfterAllSources(t *testing.T) {
	a := stream.NewSubject[int]()
	b := stream.NewSubject[int]()
	var got []int
	completed := false

	stream.Merge[int](a, b).Subscribe(stream.Observer[int]{
		Next:     func(v int) { got = append(got, v) },
		Complete: func() { completed = true },
	})

	a.Next(1)
	b.Next(2)
	a.Complete()
	assert.False(t, completed)
	b.Complete()

	assert.True(t, completed)
	assert.Equal(t, []int{1, 2}, got)
}

func TestFromChan_DeliversLaterAndCompletes(t *testing.T) {
	ch := make(chan int)
	values := make(chan int, 2)
	done := make(chan struct{})

	stream.FromChan(ch).Subscribe(stream.Observer[int]{
		Next:     func(v int) { values <- v },
		Complete: func() { close(done) },
	})

	ch <- 1
	ch <- 2
	close(ch)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for completion")
	}
	assert.Equal(t, 1, <-values)
	assert.Equal(t, 2, <-values)
}

func TestFromChan_UnsubscribeStopsDelivery(t *testing.T) {
	ch := make(chan int, 1)
	called := make(chan int, 1)

	sub := stream.FromChan(ch).Subscribe(stream.OnNext(func(v int) { called <- v }))
	sub.Unsubscribe()
	ch <- 1

	select {
	case v := <-called:
		t.Fatalf("unexpected delivery after unsubscribe: %d", v)
	case <-time.After(50 * time.Millisecond):
	}
}
