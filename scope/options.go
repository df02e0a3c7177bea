package scope

import "go.uber.org/zap"

type config struct {
	name   string
	logger *zap.Logger
}

// Option configures a Scope.
type Option func(*config)

// WithName names the scope in log entries.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// WithLogger sets the logger of the scope. Stores, effects and actions
// created by the scope inherit it unless their own options override it.
// Without this option the logger comes from the context given to New.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}
