// Package typed asserts dynamically typed values back to static types.
package typed

import (
	"errors"
	"fmt"
)

// ErrMissing is returned when a positional value is absent.
var ErrMissing = errors.New("missing value")

// Of asserts raw to T. A nil raw is accepted only when T is an interface type.
func Of[T any](raw any) (T, error) {
	var zero T
	if raw == nil && any(zero) == nil {
		return zero, nil
	}
	val, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected type: %T, want %T", raw, zero)
	}
	return val, nil
}

// At asserts the i-th element of values to T.
func At[T any](values []any, i int) (T, error) {
	var zero T
	if i < 0 || i >= len(values) {
		return zero, fmt.Errorf("%w: index %d of %d", ErrMissing, i, len(values))
	}
	val, err := Of[T](values[i])
	if err != nil {
		return zero, fmt.Errorf("index %d: %w", i, err)
	}
	return val, nil
}
