package resilience

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetricsCollector implements MetricsCollector directly against the
// OpenTelemetry metrics API, exported via whichever MeterProvider the
// process installed (see internal/otelsetup).
type OTelMetricsCollector struct {
	calls   metric.Int64Counter
	states  metric.Int64Counter
	rejects metric.Int64Counter
}

// NewOTelMetricsCollector creates a metrics collector backed by the global
// otel MeterProvider.
func NewOTelMetricsCollector() (*OTelMetricsCollector, error) {
	meter := otel.Meter("balrogagent/resilience")

	calls, err := meter.Int64Counter("circuit_breaker.calls",
		metric.WithDescription("Total circuit breaker calls by result"))
	if err != nil {
		return nil, err
	}
	states, err := meter.Int64Counter("circuit_breaker.state_changes",
		metric.WithDescription("Circuit breaker state transitions"))
	if err != nil {
		return nil, err
	}
	rejects, err := meter.Int64Counter("circuit_breaker.rejections",
		metric.WithDescription("Calls rejected while the circuit was open"))
	if err != nil {
		return nil, err
	}

	return &OTelMetricsCollector{calls: calls, states: states, rejects: rejects}, nil
}

func (o *OTelMetricsCollector) RecordSuccess(name string) {
	o.calls.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("circuit_breaker", name), attribute.String("result", "success")))
}

func (o *OTelMetricsCollector) RecordFailure(name string, errorType string) {
	o.calls.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("circuit_breaker", name),
			attribute.String("result", "failure"),
			attribute.String("error_type", errorType),
		))
}

func (o *OTelMetricsCollector) RecordStateChange(name string, from, to string) {
	o.states.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("circuit_breaker", name),
			attribute.String("from_state", from),
			attribute.String("to_state", to),
		))
}

func (o *OTelMetricsCollector) RecordRejection(name string) {
	o.rejects.Add(context.Background(), 1, metric.WithAttributes(attribute.String("circuit_breaker", name)))
}
