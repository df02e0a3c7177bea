package effect

import (
	"errors"
	"fmt"

	"github.com/on-the-ground/reactive_ive_go/store"
)

// ErrUseAfterDestroy is store.ErrUseAfterDestroy.
var ErrUseAfterDestroy = store.ErrUseAfterDestroy

// ErrUnknownPolicy is returned when parsing an unknown policy name.
var ErrUnknownPolicy = errors.New("unknown concurrency policy")

// PanicError is the failure reported for a handler that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panicked: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
