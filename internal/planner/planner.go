// Package planner orders ready, signed-off scheduled changes into enact
// operations for both the v1 per-class endpoints and the v2 aggregate
// per-release endpoint.
package planner

import (
	"context"
	"sort"

	"github.com/mozilla-releng/balrogagent/internal/readiness"
	"github.com/mozilla-releng/balrogagent/internal/scheduledchange"
	"github.com/mozilla-releng/balrogagent/internal/signoff"
)

// EnactOp is one dispatchable enactment.
type EnactOp struct {
	Endpoint string
	Class    scheduledchange.Class
	SCID     int64
	Release  string
}

// V1PlanResult is the outcome of planning a single v1 class's scheduled
// changes: the ops to dispatch, plus the funnel counts the cycle summary
// reports: how many SCs cleared the readiness oracle, and of those, how
// many were then held back for missing sign-offs.
type V1PlanResult struct {
	Ops            []EnactOp
	Ready          int
	SkippedSignoff int
}

// PlanV1 orders the ready, signed-off scheduled changes of a single v1
// class into enact operations. Rules sort by (priority desc, when asc, id
// asc); every other class sorts by (when asc, id asc).
func PlanV1(ctx context.Context, cls scheduledchange.Class, scs []scheduledchange.ScheduledChange, nowMs int64, fetch readiness.UptakeFetcher) V1PlanResult {
	ordered := make([]scheduledchange.ScheduledChange, len(scs))
	copy(ordered, scs)

	if cls == scheduledchange.ClassRules {
		sort.SliceStable(ordered, func(i, j int) bool {
			return lessRules(ordered[i], ordered[j])
		})
	} else {
		sort.SliceStable(ordered, func(i, j int) bool {
			return lessByWhenThenID(ordered[i], ordered[j])
		})
	}

	var result V1PlanResult
	for _, sc := range ordered {
		if !readiness.IsReady(ctx, sc, nowMs, fetch) {
			continue
		}
		result.Ready++
		required, signoffs := sc.SignoffState()
		if !signoff.Verify(required, signoffs) {
			result.SkippedSignoff++
			continue
		}
		result.Ops = append(result.Ops, EnactOp{
			Endpoint: sc.EndpointFor(cls),
			Class:    cls,
			SCID:     sc.SCID,
		})
	}
	return result
}

// lessRules implements (priority desc, when asc, sc_id asc); an absent
// priority sorts as -infinity, i.e. last.
func lessRules(a, b scheduledchange.ScheduledChange) bool {
	pa, pb := priorityOrMinInt(a.Priority), priorityOrMinInt(b.Priority)
	if pa != pb {
		return pa > pb
	}
	wa, wb := whenOrMax(a.When), whenOrMax(b.When)
	if wa != wb {
		return wa < wb
	}
	return a.SCID < b.SCID
}

func lessByWhenThenID(a, b scheduledchange.ScheduledChange) bool {
	wa, wb := whenOrMax(a.When), whenOrMax(b.When)
	if wa != wb {
		return wa < wb
	}
	return a.SCID < b.SCID
}

func priorityOrMinInt(p *int) int {
	if p == nil {
		return minInt
	}
	return *p
}

func whenOrMax(w *int64) int64 {
	if w == nil {
		return maxInt64
	}
	return *w
}

const minInt = -1 << 62
const maxInt64 = 1<<63 - 1

// V2PlanResult is the v2 analogue of V1PlanResult: the aggregate enact ops
// to dispatch, plus the per-scheduled-change funnel counts across every
// release evaluated this cycle.
type V2PlanResult struct {
	Ops            []EnactOp
	Ready          int
	SkippedSignoff int
}

// PlanV2 evaluates each release in the order the admin service returned
// them and, for any release whose every child scheduled change is both
// ready and signed off, emits one aggregate enact operation. Every child's
// readiness is checked unconditionally — an earlier child failing readiness
// never skips evaluation of the rest of the release's children, it only
// rules out enacting that release. Sign-off is checked, and counted, only
// for the children that are themselves ready; a child that fails readiness
// contributes no sign-off-verifier call for itself.
//
// Sign-off requirements live on the release, not the embedded scheduled
// change: a v2 release folds both the permissions and product
// required-signoffs policies onto itself (scheduledchange.Release.
// RequiredSignoffSets), and a child SC's own signoffs must satisfy both
// independently, the same way the two v1 required_signoffs classes gate
// independently of one another.
func PlanV2(ctx context.Context, releases []scheduledchange.Release, nowMs int64, fetch readiness.UptakeFetcher) V2PlanResult {
	var result V2PlanResult
	for _, release := range releases {
		if len(release.ScheduledChanges) == 0 {
			continue
		}
		permissions, product := release.RequiredSignoffSets()
		allReady := true
		for _, sc := range release.ScheduledChanges {
			if !readiness.IsReady(ctx, sc, nowMs, fetch) {
				allReady = false
				continue
			}
			result.Ready++
			_, signoffs := sc.SignoffState()
			permOK := signoff.Verify(permissions, signoffs)
			prodOK := signoff.Verify(product, signoffs)
			if !permOK || !prodOK {
				result.SkippedSignoff++
				allReady = false
			}
		}
		if !allReady {
			continue
		}
		result.Ops = append(result.Ops, EnactOp{
			Endpoint: release.EnactEndpoint(),
			Release:  release.Name,
		})
	}
	return result
}
