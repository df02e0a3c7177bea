package store

import (
	"fmt"
	"sort"

	"github.com/on-the-ground/reactive_ive_go/internal/typed"
)

// Bind turns a mutation factory into a typed update method of s.
//
//	increment := store.Bind(counter, func(by int) store.Mutation[Counter] {
//		return func(c Counter) Counter { return Counter{Count: c.Count + by} }
//	})
//	increment(2)
func Bind[S, A any](s *Store[S], factory func(A) Mutation[S]) func(A) {
	return func(arg A) {
		s.Update(factory(arg))
	}
}

// UpdateFactory builds a mutation from positional arguments.
type UpdateFactory[S any] func(args ...any) (Mutation[S], error)

// Updates is a set of named update methods declared on one store.
type Updates struct {
	target  string
	methods map[string]func(args ...any) error
}

// DeclareUpdates builds one named update method per factory. Calling a method
// applies store.Update with the mutation its factory returns.
func DeclareUpdates[S any](s *Store[S], factories map[string]UpdateFactory[S]) Updates {
	methods := make(map[string]func(args ...any) error, len(factories))
	for name, factory := range factories {
		methods[name] = func(args ...any) error {
			mutation, err := factory(args...)
			if err != nil {
				return fmt.Errorf("update %q: %w", name, err)
			}
			s.Update(mutation)
			return nil
		}
	}
	return Updates{target: s.String(), methods: methods}
}

// Call runs the update named name.
func (u Updates) Call(name string, args ...any) error {
	method, ok := u.methods[name]
	if !ok {
		return fmt.Errorf("%w: %q on %s", ErrUnknownUpdate, name, u.target)
	}
	return method(args...)
}

// Has reports whether name was declared.
func (u Updates) Has(name string) bool {
	_, ok := u.methods[name]
	return ok
}

// Names lists the declared update names in lexical order.
func (u Updates) Names() []string {
	names := make([]string, 0, len(u.methods))
	for name := range u.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Arg returns the i-th argument of an update call as T.
func Arg[T any](args []any, i int) (T, error) {
	return typed.At[T](args, i)
}
