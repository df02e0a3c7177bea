package effect

import (
	"time"

	"github.com/rickb777/date/v2/timespan"
)

// Span is the wall-clock interval an invocation ran for.
type Span = timespan.TimeSpan

func spanSince(start time.Time) Span {
	return timespan.BetweenTimes(start, time.Now())
}

// Done is emitted for an invocation that returned successfully.
type Done[I, O any] struct {
	Input  I
	Output O
	Span   Span
}

// Failure is emitted for an invocation that returned an error or panicked.
type Failure[I any] struct {
	Input I
	Err   error
	Span  Span
}

// Result is emitted for every invocation that reached Done or Failure.
type Result[I, O any] struct {
	Input  I
	Output O
	Err    error
	Span   Span
}

// OK reports whether the invocation succeeded.
func (r Result[I, O]) OK() bool { return r.Err == nil }

// Duration is the length of the invocation span.
func (r Result[I, O]) Duration() time.Duration { return r.Span.Duration() }
