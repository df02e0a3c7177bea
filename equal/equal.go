// Package equal provides the comparators used to decide whether a state or a
// derived value changed.
package equal

import (
	"reflect"
)

// Func reports whether two values are equal.
type Func[T any] func(a, b T) bool

// Default is the comparator used when none is configured.
//
// It is a shallow comparison: comparable values are compared with ==, slices
// and maps are equal only when they share the same backing storage and length,
// funcs are equal only when both are nil, and non-comparable structs and
// arrays are compared field by field with the same rules. It never walks into
// the elements of a slice or map, so replacing a slice with a fresh copy
// always counts as a change.
func Default[T any](a, b T) bool {
	return identical(reflect.ValueOf(&a).Elem(), reflect.ValueOf(&b).Elem())
}

// Deep compares values structurally with reflect.DeepEqual.
func Deep[T any](a, b T) bool {
	return reflect.DeepEqual(a, b)
}

// Comparable compares values with ==.
func Comparable[T comparable](a, b T) bool {
	return a == b
}

// Never treats every pair of values as different.
func Never[T any](_, _ T) bool {
	return false
}

// OrDefault returns eq, or Default when eq is nil.
func OrDefault[T any](eq Func[T]) Func[T] {
	if eq == nil {
		return Default[T]
	}
	return eq
}

func identical(a, b reflect.Value) bool {
	if !a.IsValid() || !b.IsValid() {
		return a.IsValid() == b.IsValid()
	}
	if a.Type() != b.Type() {
		return false
	}

	switch a.Kind() {
	case reflect.Slice:
		if a.IsNil() || b.IsNil() {
			return a.IsNil() == b.IsNil()
		}
		return a.UnsafePointer() == b.UnsafePointer() && a.Len() == b.Len()
	case reflect.Map:
		if a.IsNil() || b.IsNil() {
			return a.IsNil() == b.IsNil()
		}
		return a.UnsafePointer() == b.UnsafePointer()
	case reflect.Func:
		return a.IsNil() && b.IsNil()
	case reflect.Interface:
		if a.IsNil() || b.IsNil() {
			return a.IsNil() == b.IsNil()
		}
		return identical(a.Elem(), b.Elem())
	case reflect.Struct:
		if a.Comparable() {
			return a.Equal(b)
		}
		for i := 0; i < a.NumField(); i++ {
			if !identical(a.Field(i), b.Field(i)) {
				return false
			}
		}
		return true
	case reflect.Array:
		if a.Comparable() {
			return a.Equal(b)
		}
		for i := 0; i < a.Len(); i++ {
			if !identical(a.Index(i), b.Index(i)) {
				return false
			}
		}
		return true
	default:
		return a.Equal(b)
	}
}
