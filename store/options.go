package store

import (
	"fmt"

	"github.com/on-the-ground/reactive_ive_go/equal"
	"go.uber.org/zap"
)

type options struct {
	name     string
	logger   *zap.Logger
	equality any
}

// Option configures a Store or a derived Query.
type Option func(*options)

// WithName names the store or query in log entries.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogger sets the logger receiving lifecycle events.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEquality sets the comparator deciding whether a value changed.
// The comparator type must match the value type of the store or query it is
// passed to.
func WithEquality[T any](eq equal.Func[T]) Option {
	return func(o *options) {
		o.equality = eq
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

func equalityOf[T any](o options) equal.Func[T] {
	if o.equality == nil {
		return equal.Default[T]
	}
	switch eq := o.equality.(type) {
	case equal.Func[T]:
		return equal.OrDefault(eq)
	case func(a, b T) bool:
		return equal.OrDefault(equal.Func[T](eq))
	default:
		panic(fmt.Sprintf("store: equality %T does not compare %T", o.equality, *new(T)))
	}
}
