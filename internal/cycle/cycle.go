// Package cycle drives one poll-plan-dispatch pass over the admin
// service's v1 and v2 inventories, and the ticker loop that repeats it.
package cycle

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mozilla-releng/balrogagent/internal/adminclient"
	"github.com/mozilla-releng/balrogagent/internal/apperrors"
	"github.com/mozilla-releng/balrogagent/internal/planner"
	"github.com/mozilla-releng/balrogagent/internal/readiness"
	"github.com/mozilla-releng/balrogagent/internal/scheduledchange"
	"github.com/mozilla-releng/balrogagent/pkg/logger"
)

// Driver runs cycles against an admin service client and telemetry oracle.
type Driver struct {
	Client   adminclient.Client
	Fetch    readiness.UptakeFetcher
	Logger   logger.Logger
	Clock    readiness.Clock
	RaiseErr bool // RaiseExceptions: propagate the first per-class error instead of logging and continuing

	cycles      metric.Int64Counter
	enacted     metric.Int64Counter
	errored     metric.Int64Counter
	durationsMs metric.Float64Histogram
}

// New builds a Driver, registering its OpenTelemetry instruments against
// the global MeterProvider.
func New(client adminclient.Client, fetch readiness.UptakeFetcher, log logger.Logger) (*Driver, error) {
	meter := otel.Meter("balrogagent/cycle")

	cycles, err := meter.Int64Counter("cycle.runs", metric.WithDescription("Completed poll/plan/dispatch cycles"))
	if err != nil {
		return nil, err
	}
	enacted, err := meter.Int64Counter("cycle.enacted", metric.WithDescription("Scheduled changes/releases enacted"))
	if err != nil {
		return nil, err
	}
	errored, err := meter.Int64Counter("cycle.errors", metric.WithDescription("Errors observed during a cycle"))
	if err != nil {
		return nil, err
	}
	durations, err := meter.Float64Histogram("cycle.duration_ms", metric.WithDescription("Cycle wall-clock duration"))
	if err != nil {
		return nil, err
	}

	return &Driver{
		Client:      client,
		Fetch:       fetch,
		Logger:      log,
		Clock:       func() int64 { return time.Now().UnixMilli() },
		cycles:      cycles,
		enacted:     enacted,
		errored:     errored,
		durationsMs: durations,
	}, nil
}

// Summary is the structured result of one RunOnce call, logged at cycle end.
type Summary struct {
	CycleID        string
	ScsSeen        int
	ScsReady       int
	Enacted        int
	SkippedSignoff int
	Errored        int
	DurationMS     int64
}

// RunOnce executes exactly one poll/plan/dispatch pass: fetch every v1
// class inventory and the v2 release inventory, plan enact operations for
// each, dispatch them, and return a summary. When RaiseErr is set, the
// first per-class fetch or dispatch error aborts the cycle immediately;
// otherwise the error is logged and the cycle goes on: a failed fetch skips
// that class, and a failed enact moves on to the next operation.
func (d *Driver) RunOnce(ctx context.Context) (Summary, error) {
	start := time.Now()
	cycleID := uuid.New().String()
	ctx = context.WithValue(ctx, logger.CycleIDKey, cycleID)
	log := d.Logger.WithContext(ctx)

	summary := Summary{CycleID: cycleID}
	now := d.Clock()

	for _, cls := range scheduledchange.V1Classes {
		inv, err := d.Client.GetV1(ctx, cls)
		if err != nil {
			summary.Errored++
			d.errored.Add(ctx, 1, metric.WithAttributes(attribute.String("class", string(cls))))
			log.Error("fetch v1 inventory failed", map[string]interface{}{"class": cls, "error": err.Error()})
			if d.RaiseErr {
				return summary, err
			}
			continue
		}

		summary.ScsSeen += len(inv.ScheduledChanges)
		plan := planner.PlanV1(ctx, cls, inv.ScheduledChanges, now, d.Fetch)
		summary.ScsReady += plan.Ready
		summary.SkippedSignoff += plan.SkippedSignoff

		for _, op := range plan.Ops {
			if err := d.Client.Enact(ctx, op.Endpoint); err != nil {
				summary.Errored++
				d.errored.Add(ctx, 1, metric.WithAttributes(attribute.String("class", string(cls))))
				log.Error("enact failed", map[string]interface{}{"endpoint": op.Endpoint, "error": err.Error()})
				if d.RaiseErr {
					return summary, err
				}
				continue
			}
			summary.Enacted++
			d.enacted.Add(ctx, 1, metric.WithAttributes(attribute.String("class", string(cls))))
		}
	}

	releases, err := d.Client.GetV2Releases(ctx)
	if err != nil {
		summary.Errored++
		d.errored.Add(ctx, 1, metric.WithAttributes(attribute.String("class", "v2_releases")))
		log.Error("fetch v2 release inventory failed", map[string]interface{}{"error": err.Error()})
		if d.RaiseErr {
			return summary, err
		}
	} else {
		for _, r := range releases {
			summary.ScsSeen += len(r.ScheduledChanges)
		}
		v2Plan := planner.PlanV2(ctx, releases, now, d.Fetch)
		summary.ScsReady += v2Plan.Ready
		summary.SkippedSignoff += v2Plan.SkippedSignoff
		for _, op := range v2Plan.Ops {
			if err := d.Client.Enact(ctx, op.Endpoint); err != nil {
				summary.Errored++
				d.errored.Add(ctx, 1, metric.WithAttributes(attribute.String("class", "v2_releases")))
				log.Error("enact failed", map[string]interface{}{"endpoint": op.Endpoint, "error": err.Error()})
				if d.RaiseErr {
					return summary, err
				}
				continue
			}
			summary.Enacted++
			d.enacted.Add(ctx, 1, metric.WithAttributes(attribute.String("class", "v2_releases")))
		}
	}

	summary.DurationMS = time.Since(start).Milliseconds()
	d.cycles.Add(ctx, 1)
	d.durationsMs.Record(ctx, float64(summary.DurationMS))

	log.Info("cycle complete", map[string]interface{}{
		"cycle_id":        summary.CycleID,
		"scs_seen":        summary.ScsSeen,
		"scs_ready":       summary.ScsReady,
		"enacted":         summary.Enacted,
		"skipped_signoff": summary.SkippedSignoff,
		"errored":         summary.Errored,
		"duration_ms":     summary.DurationMS,
	})

	return summary, nil
}

// Run repeats RunOnce every interval until ctx is cancelled. A fatal
// configuration error from RunOnce stops the loop immediately; any other
// per-cycle error is already logged by RunOnce and does not stop the loop.
func (d *Driver) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if _, err := d.RunOnce(ctx); err != nil && apperrors.IsFatalConfig(err) {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := d.RunOnce(ctx); err != nil && apperrors.IsFatalConfig(err) {
				return err
			}
		}
	}
}
