// Package action provides typed event emitters.
package action

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/on-the-ground/reactive_ive_go/log"
	"github.com/on-the-ground/reactive_ive_go/stream"
	"go.uber.org/zap"
)

type options struct {
	name   string
	logger *zap.Logger
}

// Option configures an Action.
type Option func(*options)

// WithName names the action in log entries.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogger sets the logger receiving trigger and close events.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Action is an event emitter without memory: Trigger pushes a payload to the
// current subscribers of Events, in subscription order, and forgets it.
type Action[T any] struct {
	id      string
	name    string
	logger  *zap.Logger
	subject *stream.Subject[T]
}

// New creates an action.
func New[T any](opts ...Option) *Action[T] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Action[T]{
		id:      uuid.New().String(),
		name:    o.name,
		logger:  log.OrNop(o.logger),
		subject: stream.NewSubject[T](),
	}
}

// ID returns the unique identifier of the action.
func (a *Action[T]) ID() string { return a.id }

// Trigger delivers payload synchronously. Without subscribers, or after
// Close, it does nothing.
func (a *Action[T]) Trigger(payload T) {
	if a.logger.Core().Enabled(zap.DebugLevel) {
		log.Emit(a.logger, log.LogDebug, "action triggered", map[string]interface{}{
			"action":    a.label(),
			"observed":  a.subject.Observed(),
			"completed": a.subject.Done(),
		})
	}
	a.subject.Next(payload)
}

// Events is the stream of triggered payloads.
func (a *Action[T]) Events() stream.Observable[T] {
	return a.subject.Observable()
}

// Close completes the event stream. Later triggers are ignored.
func (a *Action[T]) Close() {
	if a.subject.Done() {
		return
	}
	a.subject.Complete()
	log.Emit(a.logger, log.LogDebug, "action closed", map[string]interface{}{"action": a.label()})
}

// Closed reports whether Close has been called.
func (a *Action[T]) Closed() bool {
	return a.subject.Done()
}

// Destroy is Close, so actions can be owned like other resources.
func (a *Action[T]) Destroy() { a.Close() }

func (a *Action[T]) label() string {
	if a.name != "" {
		return a.name
	}
	return a.id
}

func (a *Action[T]) String() string {
	return fmt.Sprintf("Action(%s)", a.label())
}
