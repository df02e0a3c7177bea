package store

import "errors"

// ErrUseAfterDestroy is returned when a destroyed resource is asked to create
// or derive something.
var ErrUseAfterDestroy = errors.New("use after destroy")

// ErrUnknownUpdate is returned by Updates.Call for an undeclared name.
var ErrUnknownUpdate = errors.New("unknown update")
