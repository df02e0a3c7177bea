package effect

import (
	"context"
	"fmt"

	"github.com/on-the-ground/reactive_ive_go/log"

	"go.uber.org/zap"
)

type options struct {
	name      string
	logger    *zap.Logger
	policy    Policy
	ctx       context.Context
	lanes     int
	partition any
}

// Option configures an Effect.
type Option func(*options)

// WithPolicy sets the concurrency policy. The default is Exhaust, which also
// replaces a value that is not one of the declared policies.
func WithPolicy(p Policy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithName names the effect in log entries.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogger sets the logger receiving lifecycle and failure events.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithContext sets the parent of every invocation context.
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		o.ctx = ctx
	}
}

// WithPartitions splits the effect into n lanes. Each request goes to the
// lane chosen by hashing key(input), and every lane applies the policy on its
// own: with Exhaust, inputs with different keys do not drop each other.
// The key function must accept the input type of the effect.
func WithPartitions[I any](n int, key func(I) string) Option {
	return func(o *options) {
		o.lanes = n
		o.partition = key
	}
}

func buildOptions(opts []Option) options {
	o := options{policy: Exhaust, lanes: 1}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.ctx == nil {
		o.ctx = context.Background()
	}
	if o.lanes < 1 {
		o.lanes = 1
	}
	if _, ok := policyNames[o.policy]; !ok {
		log.Emit(log.OrNop(o.logger), log.LogWarn, "unknown effect policy, using exhaust", map[string]interface{}{
			"effect": o.name,
			"policy": o.policy.String(),
		})
		o.policy = Exhaust
	}
	return o
}

func partitionOf[I any](o options) func(I) string {
	if o.partition == nil || o.lanes == 1 {
		return nil
	}
	key, ok := o.partition.(func(I) string)
	if !ok {
		panic(fmt.Sprintf("effect: partition key %T does not accept %T", o.partition, *new(I)))
	}
	return key
}
