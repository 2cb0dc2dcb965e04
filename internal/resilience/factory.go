package resilience

import (
	"github.com/mozilla-releng/balrogagent/pkg/logger"
)

// Dependencies holds optional dependency injection for resilience components.
type Dependencies struct {
	Logger  logger.Logger
	Metrics MetricsCollector
}

// CreateCircuitBreaker builds a named circuit breaker with the given
// dependencies, falling back to a default logger and no-op metrics.
func CreateCircuitBreaker(name string, deps Dependencies) (*CircuitBreaker, error) {
	config := DefaultConfig(name)
	if deps.Logger != nil {
		config.Logger = deps.Logger
	} else {
		config.Logger = logger.NewDefaultLogger()
	}
	if deps.Metrics != nil {
		config.Metrics = deps.Metrics
	}
	return New(config)
}

// WithLogger is a Dependencies option constructor.
func WithLogger(l logger.Logger) func(*Dependencies) {
	return func(d *Dependencies) { d.Logger = l }
}

// WithMetrics is a Dependencies option constructor.
func WithMetrics(m MetricsCollector) func(*Dependencies) {
	return func(d *Dependencies) { d.Metrics = m }
}
