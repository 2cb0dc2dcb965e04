// Package readiness evaluates whether a scheduled change's time and
// telemetry predicates are satisfied right now.
package readiness

import "context"

// View is the narrow read of a scheduled change the oracle needs, satisfied
// by both v1 scheduledchange.ScheduledChange and v2 scheduledchange.ReleaseChange
// so the same oracle serves both planners.
type View interface {
	TimeWhen() *int64
	Telemetry() (uptake *float64, product, channel *string)
}

// Clock returns the current time in milliseconds since epoch.
type Clock func() int64

// UptakeFetcher queries observed telemetry uptake for a product/channel
// pair. A non-nil error is treated as "not ready" rather than propagated.
type UptakeFetcher func(ctx context.Context, product, channel string) (float64, error)

// TimeIsReady reports whether sc's `when` has passed, or is absent.
func TimeIsReady(sc View, nowMs int64) bool {
	when := sc.TimeWhen()
	return when == nil || *when <= nowMs
}

// TelemetryIsReady reports whether sc's telemetry triple is absent, or the
// observed uptake meets the configured threshold. A fetch error is
// conservative: it is not ready.
func TelemetryIsReady(ctx context.Context, sc View, fetch UptakeFetcher) bool {
	uptake, product, channel := sc.Telemetry()
	if uptake == nil {
		return true
	}
	if product == nil || channel == nil || fetch == nil {
		return false
	}
	observed, err := fetch(ctx, *product, *channel)
	if err != nil {
		return false
	}
	return observed >= *uptake
}

// IsReady is the conjunction of TimeIsReady and TelemetryIsReady. Both
// predicates are always evaluated — never short-circuited — so invocation
// counts on fetch remain observable by callers.
func IsReady(ctx context.Context, sc View, nowMs int64, fetch UptakeFetcher) bool {
	timeReady := TimeIsReady(sc, nowMs)
	telemetryReady := TelemetryIsReady(ctx, sc, fetch)
	return timeReady && telemetryReady
}
