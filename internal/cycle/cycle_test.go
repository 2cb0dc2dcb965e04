package cycle_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mozilla-releng/balrogagent/internal/cycle"
	"github.com/mozilla-releng/balrogagent/internal/scheduledchange"
	"github.com/mozilla-releng/balrogagent/pkg/logger"
)

// fakeClient is a hand-rolled adminclient.Client double recording every GET
// and enact dispatch in call order, so cross-class ordering is directly
// observable.
type fakeClient struct {
	v1         map[scheduledchange.Class]scheduledchange.Inventory
	v1Err      map[scheduledchange.Class]error
	releases   []scheduledchange.Release
	releaseErr error
	enactErr   map[string]error

	dispatched []string
	requests   []string // every GET issued, v1 classes and the v2 inventory, in call order
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		v1:       map[scheduledchange.Class]scheduledchange.Inventory{},
		v1Err:    map[scheduledchange.Class]error{},
		enactErr: map[string]error{},
	}
}

func (f *fakeClient) GetV1(ctx context.Context, cls scheduledchange.Class) (scheduledchange.Inventory, error) {
	f.requests = append(f.requests, cls.Endpoint())
	if err, ok := f.v1Err[cls]; ok {
		return scheduledchange.Inventory{}, err
	}
	return f.v1[cls], nil
}

func (f *fakeClient) GetV2Releases(ctx context.Context) ([]scheduledchange.Release, error) {
	f.requests = append(f.requests, "/v2/releases")
	if f.releaseErr != nil {
		return nil, f.releaseErr
	}
	return f.releases, nil
}

func (f *fakeClient) Enact(ctx context.Context, endpoint string) error {
	f.dispatched = append(f.dispatched, endpoint)
	return f.enactErr[endpoint]
}

func i64(v int64) *int64 { return &v }

func newTestDriver(t *testing.T, client *fakeClient, now int64) *cycle.Driver {
	t.Helper()
	d, err := cycle.New(client, nil, logger.NewDefaultLogger())
	require.NoError(t, err)
	d.Clock = func() int64 { return now }
	return d
}

// TestRunOnceEmptyInventoriesNoEnacts: every GET returns an empty list, so
// no enact is ever dispatched, and the cycle issues exactly one GET per v1
// class plus the v2 inventory, 8 requests total.
func TestRunOnceEmptyInventoriesNoEnacts(t *testing.T) {
	client := newFakeClient()
	d := newTestDriver(t, client, 999_999_999_000)

	summary, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Enacted)
	assert.Empty(t, client.dispatched)
	assert.Len(t, client.requests, 8, "one GET per v1 class plus the v2 inventory")
	assert.Equal(t, 8, len(client.requests)+len(client.dispatched))
}

// TestRunOnceNotTimeReadyRuleStillIssuesEightRequests: a rules SC whose
// `when` is in the future is fetched but never enacted, so the request
// count matches the empty-inventory baseline.
func TestRunOnceNotTimeReadyRuleStillIssuesEightRequests(t *testing.T) {
	client := newFakeClient()
	client.v1[scheduledchange.ClassRules] = scheduledchange.Inventory{
		ScheduledChanges: []scheduledchange.ScheduledChange{{SCID: 4, When: i64(23_456_789_000)}},
	}
	d := newTestDriver(t, client, 0)

	summary, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Enacted)
	assert.Empty(t, client.dispatched)
	assert.Equal(t, 8, len(client.requests)+len(client.dispatched))
}

// TestRunOneReadyRuleDispatchesOneEnact: one rules SC past its `when`
// produces exactly one enact against the rules endpoint, for 9 requests
// total.
func TestRunOneReadyRuleDispatchesOneEnact(t *testing.T) {
	client := newFakeClient()
	client.v1[scheduledchange.ClassRules] = scheduledchange.Inventory{
		ScheduledChanges: []scheduledchange.ScheduledChange{{SCID: 4, When: i64(234)}},
	}
	d := newTestDriver(t, client, 999_999_999_000)

	summary, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Enacted)
	assert.Equal(t, []string{"/scheduled_changes/rules/4/enact"}, client.dispatched)
	assert.Equal(t, 9, len(client.requests)+len(client.dispatched))
}

// TestRunOnceTwoRequiredSignoffsReadyIsTenRequests: one ready SC in each of
// the two required-signoffs classes enacts both, for 10 requests total
// (8 GETs + 2 enacts).
func TestRunOnceTwoRequiredSignoffsReadyIsTenRequests(t *testing.T) {
	client := newFakeClient()
	client.v1[scheduledchange.ClassRequiredSignoffsProduct] = scheduledchange.Inventory{
		ScheduledChanges: []scheduledchange.ScheduledChange{{SCID: 1, When: i64(234)}},
	}
	client.v1[scheduledchange.ClassRequiredSignoffsPermissions] = scheduledchange.Inventory{
		ScheduledChanges: []scheduledchange.ScheduledChange{{SCID: 2, When: i64(234)}},
	}
	d := newTestDriver(t, client, 999_999_999_000)

	summary, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Enacted)
	assert.Equal(t, 10, len(client.requests)+len(client.dispatched))
}

// TestCrossClassOrderingRulesBeforeReleases: in any cycle producing ready
// SCs in both rules and releases, every rules enact precedes every
// releases enact in the dispatch sequence.
func TestCrossClassOrderingRulesBeforeReleases(t *testing.T) {
	client := newFakeClient()
	client.v1[scheduledchange.ClassRules] = scheduledchange.Inventory{
		ScheduledChanges: []scheduledchange.ScheduledChange{{SCID: 1, When: i64(10)}},
	}
	client.v1[scheduledchange.ClassReleases] = scheduledchange.Inventory{
		ScheduledChanges: []scheduledchange.ScheduledChange{{SCID: 2, When: i64(10)}},
	}
	d := newTestDriver(t, client, 999_999_999_000)

	_, err := d.RunOnce(context.Background())
	require.NoError(t, err)

	rulesIdx := indexOf(client.dispatched, "/scheduled_changes/rules/1/enact")
	releasesIdx := indexOf(client.dispatched, "/scheduled_changes/releases/2/enact")
	require.NotEqual(t, -1, rulesIdx)
	require.NotEqual(t, -1, releasesIdx)
	assert.Less(t, rulesIdx, releasesIdx)
}

func TestRunOnceLogsButContinuesPastFetchError(t *testing.T) {
	client := newFakeClient()
	client.v1Err[scheduledchange.ClassRules] = errors.New("boom")
	client.v1[scheduledchange.ClassReleases] = scheduledchange.Inventory{
		ScheduledChanges: []scheduledchange.ScheduledChange{{SCID: 2, When: i64(10)}},
	}
	d := newTestDriver(t, client, 999_999_999_000)

	summary, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Errored)
	assert.Equal(t, []string{"/scheduled_changes/releases/2/enact"}, client.dispatched)
}

func TestRunOnceRaiseErrAbortsOnFirstError(t *testing.T) {
	client := newFakeClient()
	client.v1Err[scheduledchange.ClassRequiredSignoffsProduct] = errors.New("boom")
	client.v1[scheduledchange.ClassReleases] = scheduledchange.Inventory{
		ScheduledChanges: []scheduledchange.ScheduledChange{{SCID: 2, When: i64(10)}},
	}
	d := newTestDriver(t, client, 999_999_999_000)
	d.RaiseErr = true

	_, err := d.RunOnce(context.Background())
	assert.Error(t, err)
	assert.Empty(t, client.dispatched, "no enact should be attempted once the first fetch error aborts the cycle")
}

// TestRunOnceTracksSkippedSignoffSeparatelyFromReady: a ready SC that fails
// sign-off is counted in both ScsReady and SkippedSignoff, never conflated
// with Enacted.
func TestRunOnceTracksSkippedSignoffSeparatelyFromReady(t *testing.T) {
	client := newFakeClient()
	client.v1[scheduledchange.ClassPermissions] = scheduledchange.Inventory{
		ScheduledChanges: []scheduledchange.ScheduledChange{{
			SCID:             7,
			When:             i64(234),
			RequiredSignoffs: map[string]int{"releng": 1},
			Signoffs:         map[string]string{},
		}},
	}
	d := newTestDriver(t, client, 999_999_999_000)

	summary, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Enacted)
	assert.Equal(t, 1, summary.ScsReady)
	assert.Equal(t, 1, summary.SkippedSignoff)
	assert.Empty(t, client.dispatched)
}

func TestRunOnceDispatchesV2AggregateEnact(t *testing.T) {
	client := newFakeClient()
	when := int64(10)
	client.releases = []scheduledchange.Release{
		{
			Name: "Firefox-64.0-build1",
			ScheduledChanges: []scheduledchange.ReleaseChange{
				{ScheduledChange: scheduledchange.ScheduledChange{SCID: 1, When: &when}},
				{ScheduledChange: scheduledchange.ScheduledChange{SCID: 2, When: &when}},
			},
		},
	}
	d := newTestDriver(t, client, 999_999_999_000)

	summary, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Enacted)
	assert.Equal(t, []string{"/v2/releases/Firefox-64.0-build1/enact"}, client.dispatched)
}

func indexOf(list []string, val string) int {
	for i, v := range list {
		if v == val {
			return i
		}
	}
	return -1
}
