package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agencyflow/agent"
	"agencyflow/calendar"
	"agencyflow/hierarchy"
	"agencyflow/policy"
	"agencyflow/takeaction"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func day(month time.Month, d int) time.Time {
	return time.Date(2025, month, d, 12, 0, 0, 0, time.UTC)
}

func ptr(s string) *string { return &s }

type fixture struct {
	engine   *Engine
	policies *policy.MemoryStore
	actions  *takeaction.MemoryStore
	ids      map[string]string
}

// newFixture builds A -> {B, C}, B -> D, plus an unrelated agent Z.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	agents := agent.NewMemoryStore()
	agents.Save(agent.Agent{NPN: "A", Name: "Alice"})
	agents.Save(agent.Agent{NPN: "B", UplineNPN: ptr("A"), Name: "Bob"})
	agents.Save(agent.Agent{NPN: "C", UplineNPN: ptr("A"), Name: "Cara"})
	agents.Save(agent.Agent{NPN: "D", UplineNPN: ptr("B"), Name: "Dev"})
	agents.Save(agent.Agent{NPN: "Z", Name: "Zed"})

	policies := policy.NewMemoryStore()
	completed := day(time.June, 10)
	seed := []policy.Policy{
		{PolicyNumber: "P1", OwnerNPN: "A", AgentName: "Alice", Product: "Life", Status: policy.StatusSubmitted, ActionStatus: policy.ActionPending, Bob: policy.BobYes, ReceivedDate: day(time.June, 1), AnnualizedPremium: decimal.RequireFromString("100")},
		{PolicyNumber: "P2", OwnerNPN: "B", AgentName: "Bob", Product: "Life", Status: policy.StatusSubmitted, ActionStatus: policy.ActionRejected, Bob: policy.BobNo, ReceivedDate: day(time.June, 2), AnnualizedPremium: decimal.RequireFromString("200.50")},
		{PolicyNumber: "P3", OwnerNPN: "B", AgentName: "Bob", Product: "Dental", Status: policy.StatusLapsed, ActionStatus: policy.ActionPending, Bob: policy.BobYes, ReceivedDate: day(time.May, 10), AnnualizedPremium: decimal.RequireFromString("50.25")},
		{PolicyNumber: "P4", OwnerNPN: "C", AgentName: "Cara", Product: "Life", Status: policy.StatusActive, ActionStatus: policy.ActionRejected, Bob: policy.BobYes, ReceivedDate: day(time.May, 15), AnnualizedPremium: decimal.RequireFromString("1000")},
		{PolicyNumber: "P5", OwnerNPN: "D", AgentName: "Dev", Product: "Health", Status: policy.StatusActive, ActionStatus: policy.ActionCompleted, ActionCompletedDate: &completed, Bob: policy.BobNo, ReceivedDate: day(time.April, 1), AnnualizedPremium: decimal.RequireFromString("300")},
		{PolicyNumber: "P6", OwnerNPN: "D", AgentName: "Dev", Product: "Dental", Status: policy.StatusCancelled, ActionStatus: policy.ActionPending, Bob: policy.BobYes, ReceivedDate: day(time.March, 1), AnnualizedPremium: decimal.RequireFromString("10")},
		{PolicyNumber: "P7", OwnerNPN: "Z", AgentName: "Zed", Product: "Life", Status: policy.StatusActive, ActionStatus: policy.ActionPending, Bob: policy.BobYes, ReceivedDate: day(time.June, 1), AnnualizedPremium: decimal.RequireFromString("9999")},
		{PolicyNumber: "P8", OwnerNPN: "C", AgentName: "", Product: "Health", Status: policy.StatusEffectuated, ActionStatus: policy.ActionPending, Bob: policy.BobNo, ReceivedDate: day(time.June, 3), AnnualizedPremium: decimal.RequireFromString("0.01")},
	}
	ids := make(map[string]string, len(seed))
	for _, p := range seed {
		ids[p.PolicyNumber] = policies.Save(p).ID
	}

	actions := takeaction.NewMemoryStore()
	records := []takeaction.Record{
		{PolicyNumber: "P1", Status: "pending", Requirements: "signature", Bob: policy.BobYes, CreatedAt: day(time.June, 14)},
		{PolicyNumber: "P3", Status: "pending", Requirements: "call client", Bob: policy.BobYes, CreatedAt: day(time.June, 12)},
		{PolicyNumber: "P3", Status: "in progress", Requirements: "awaiting APS", Bob: policy.BobYes, CreatedAt: day(time.June, 13)},
		{PolicyNumber: "P4", Status: "declined", Requirements: "client declined", Bob: policy.BobNo, CreatedAt: day(time.June, 13)},
		{PolicyNumber: "P5", Status: "done", Requirements: "docs received", Bob: policy.BobNo, CreatedAt: day(time.June, 5)},
		{PolicyNumber: "P6", Status: "pending", Requirements: "payment", Bob: policy.BobYes, CreatedAt: day(time.June, 1)},
		{PolicyNumber: "P7", Status: "pending", Requirements: "outside", Bob: policy.BobYes, CreatedAt: day(time.June, 1)},
		{PolicyNumber: "P8", Status: "pending", Requirements: "medical", Bob: policy.BobNo, CreatedAt: day(time.June, 8)},
	}
	for _, r := range records {
		_, err := actions.Create(context.Background(), r)
		require.NoError(t, err)
	}

	resolver := hierarchy.NewResolver(hierarchy.NewMemoryCache(time.Minute, time.Hour), hierarchy.DefaultStrategies(agents)...)
	engine := NewEngine(resolver, policies, actions, calendar.UTC()).WithClock(func() time.Time { return testNow })
	t.Cleanup(func() { _ = engine.Close() })

	return &fixture{engine: engine, policies: policies, actions: actions, ids: ids}
}

// failingPolicies rejects selected aggregations.
type failingPolicies struct {
	policy.Store
	failGrouped bool
	failCount   bool
}

func (f failingPolicies) CountByStatus(ctx context.Context, pred policy.Predicate) (map[policy.Status]int, error) {
	if f.failGrouped {
		return nil, errors.New("group stage exceeded memory limit")
	}
	return f.Store.CountByStatus(ctx, pred)
}

func (f failingPolicies) Count(ctx context.Context, pred policy.Predicate) (int, error) {
	if f.failCount {
		return 0, errors.New("connection reset")
	}
	return f.Store.Count(ctx, pred)
}

func TestStatusCounts_Hierarchy(t *testing.T) {
	fx := newFixture(t)

	res, err := fx.engine.StatusCounts(context.Background(), policy.Filter{NPN: "A"}, policy.BobInclusive)
	require.NoError(t, err)

	assert.Equal(t, StatusCounts{Submitted: 1, Active: 1, Lapsed: 1, Cancelled: 1, TakeAction: 6}, res.StatusCounts)
	assert.Equal(t, 7, res.Metrics.TotalPolicies)
	assert.Equal(t, 66.67, res.Metrics.PendingActionPercentage)
	assert.Equal(t, "1/6", res.Metrics.ConservationRatio)
	assert.Equal(t, 100.0, res.Metrics.DropOffRate)
	assert.Equal(t, 6.0, res.Metrics.AvgDaysInPolicy)
	assert.Equal(t, policy.ProcessCombined, res.Metrics.ProcessType)
	assert.Equal(t, []RawStatusCount{
		{Status: "Submitted", Count: 2},
		{Status: "Active", Count: 2},
		{Status: "Lapsed", Count: 1},
		{Status: "Effectuated", Count: 1},
		{Status: "Cancelled", Count: 1},
	}, res.RawStatusCounts)
}

func TestStatusCounts_RejectedExcludedFromActive(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	res, err := fx.engine.StatusCounts(ctx, policy.Filter{NPN: "C", SelfOnly: true}, policy.BobInclusive)
	require.NoError(t, err)
	assert.Equal(t, 0, res.StatusCounts.Active)

	_, err = policy.NewService(fx.policies, nil).UpdateActionStatus(ctx, fx.ids["P4"], "Pending")
	require.NoError(t, err)

	res, err = fx.engine.StatusCounts(ctx, policy.Filter{NPN: "C", SelfOnly: true}, policy.BobInclusive)
	require.NoError(t, err)
	assert.Equal(t, 1, res.StatusCounts.Active)
}

func TestStatusCounts_BobScoped(t *testing.T) {
	fx := newFixture(t)

	res, err := fx.engine.StatusCounts(context.Background(), policy.Filter{NPN: "A", Bob: "Y"}, policy.BobInclusive)
	require.NoError(t, err)

	assert.Equal(t, StatusCounts{Submitted: 1, Active: 0, Lapsed: 1, Cancelled: 1, TakeAction: 3}, res.StatusCounts)
	assert.Equal(t, 100.0, res.Metrics.PendingActionPercentage)
	assert.Equal(t, "0/3", res.Metrics.ConservationRatio)
	assert.Equal(t, policy.ProcessBob, res.Metrics.ProcessType)
}

func TestStatusCounts_GroupedFallback(t *testing.T) {
	fx := newFixture(t)
	want, err := fx.engine.StatusCounts(context.Background(), policy.Filter{NPN: "A"}, policy.BobInclusive)
	require.NoError(t, err)

	fx.engine.policies = failingPolicies{Store: fx.policies, failGrouped: true}
	got, err := fx.engine.StatusCounts(context.Background(), policy.Filter{NPN: "A"}, policy.BobInclusive)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStatusCounts_StoreFailurePropagates(t *testing.T) {
	fx := newFixture(t)
	fx.engine.policies = failingPolicies{Store: fx.policies, failGrouped: true, failCount: true}

	_, err := fx.engine.StatusCounts(context.Background(), policy.Filter{NPN: "A"}, policy.BobInclusive)
	var serr *StoreError
	require.True(t, errors.As(err, &serr))
	assert.NotEmpty(t, serr.Op)
}

func TestStatusCounts_InvalidFilter(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.engine.StatusCounts(context.Background(), policy.Filter{}, policy.BobInclusive)
	assert.True(t, errors.Is(err, policy.ErrInvalidFilter))

	_, err = fx.engine.StatusCounts(context.Background(), policy.Filter{NPN: "A", Status: "Dormant"}, policy.BobInclusive)
	assert.True(t, errors.Is(err, policy.ErrInvalidFilter))
}

func TestDropOffRate(t *testing.T) {
	assert.Equal(t, 0.0, DropOffRate(5, 0))
	assert.Equal(t, 0.0, DropOffRate(0, 0))
	assert.Equal(t, 33.33, DropOffRate(1, 3))
	assert.Equal(t, 66.67, DropOffRate(2, 3))
	assert.Equal(t, 12.5, DropOffRate(1, 8))
}

func TestAging_BucketsSumToTotal(t *testing.T) {
	fx := newFixture(t)

	res, err := fx.engine.Aging(context.Background(), policy.Filter{NPN: "A"}, policy.BobInclusive)
	require.NoError(t, err)

	require.Len(t, res.AgingBuckets, 4)
	labels := []string{"<2 days", "3-5 Days", "6-10 days", ">10 Days"}
	sum := 0
	for i, b := range res.AgingBuckets {
		assert.Equal(t, labels[i], b.AgeRange)
		assert.Equal(t, 1, b.Count, "bucket %s", b.AgeRange)
		sum += b.Count
	}
	assert.Equal(t, 4, res.Total)
	assert.Equal(t, res.Total, sum)
	assert.Nil(t, res.AgingBuckets[3].MaxDays)
	require.NotNil(t, res.AgingBuckets[0].MaxDays)
	assert.Equal(t, 2, *res.AgingBuckets[0].MaxDays)
	assert.Equal(t, 1, res.TotalPages)
}

func TestAging_EmptyStillHasFourBuckets(t *testing.T) {
	fx := newFixture(t)

	res, err := fx.engine.Aging(context.Background(), policy.Filter{NPN: "nobody"}, policy.BobInclusive)
	require.NoError(t, err)
	require.Len(t, res.AgingBuckets, 4)
	assert.Zero(t, res.Total)
	assert.Zero(t, res.TotalPages)
}

func TestBucketFor(t *testing.T) {
	assert.Equal(t, 0, bucketFor(-0.5))
	assert.Equal(t, 0, bucketFor(1.99))
	assert.Equal(t, 1, bucketFor(2))
	assert.Equal(t, 2, bucketFor(5))
	assert.Equal(t, 2, bucketFor(9.99))
	assert.Equal(t, 3, bucketFor(10))
	assert.Equal(t, 3, bucketFor(400))
}

func TestResolutionRate_Branches(t *testing.T) {
	// pure: group total over policies with take-actions
	assert.Equal(t, 150.0, ResolutionRate(true, 3, 1, 2))
	// underwriting: effectuated over policies with take-actions
	assert.Equal(t, 50.0, ResolutionRate(false, 3, 1, 2))
	assert.Equal(t, 0.0, ResolutionRate(true, 3, 3, 0))
	assert.Equal(t, 0.0, ResolutionRate(false, 3, 3, 0))

	for with := 1; with <= 5; with++ {
		for eff := 0; eff <= 5; eff++ {
			rate := ResolutionRate(false, 5, eff, with)
			assert.LessOrEqual(t, rate, 100*float64(eff)/float64(with)+0.005)
		}
	}
}

func TestAgentPerformance_Underwriting(t *testing.T) {
	fx := newFixture(t)

	res, err := fx.engine.AgentPerformance(context.Background(), policy.Filter{NPN: "A"}, policy.BobInclusive)
	require.NoError(t, err)

	assert.Equal(t, policy.ProcessCombined, res.ProcessType)
	assert.Equal(t, 2, res.TotalAgents)
	assert.Equal(t, []AgentPerformance{
		{AgentName: "Dev", PoliciesWithTakeActions: 2, PoliciesEffectuated: 2, ResolutionRate: 100},
		{AgentName: "Cara", PoliciesWithTakeActions: 1, PoliciesEffectuated: 1, ResolutionRate: 100},
	}, res.Agents)
}

func TestAgentPerformance_PureCountsRecordsOfAnyBob(t *testing.T) {
	fx := newFixture(t)

	res, err := fx.engine.AgentPerformance(context.Background(), policy.Filter{NPN: "A", Bob: "Y"}, policy.BobInclusive)
	require.NoError(t, err)

	assert.Equal(t, policy.ProcessBob, res.ProcessType)
	require.Len(t, res.Agents, 1)
	assert.Equal(t, AgentPerformance{AgentName: "Cara", PoliciesWithTakeActions: 1, PoliciesEffectuated: 1, ResolutionRate: 100}, res.Agents[0])
}

func TestAgentPerformance_Pagination(t *testing.T) {
	fx := newFixture(t)

	res, err := fx.engine.AgentPerformance(context.Background(), policy.Filter{NPN: "A", Page: 2, Limit: 1}, policy.BobInclusive)
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalPages)
	require.Len(t, res.Agents, 1)
	assert.Equal(t, "Cara", res.Agents[0].AgentName)

	res, err = fx.engine.AgentPerformance(context.Background(), policy.Filter{NPN: "A", Page: 5, Limit: 1}, policy.BobInclusive)
	require.NoError(t, err)
	assert.Empty(t, res.Agents)
}

func TestPersistency_Windows(t *testing.T) {
	fx := newFixture(t)

	res, err := fx.engine.Persistency(context.Background(), policy.Filter{NPN: "A", EndDate: "2025-06-30"}, policy.BobStrict)
	require.NoError(t, err)

	require.Len(t, res.Monthly, 6)
	assert.Equal(t, "2025-01", res.Monthly[0].Label)
	assert.Equal(t, "2025-06", res.Monthly[5].Label)

	byLabel := map[string]PersistencyWindow{}
	for _, w := range res.Monthly {
		byLabel[w.Label] = w
	}
	assert.Equal(t, 3, byLabel["2025-06"].Total)
	assert.Equal(t, 0.0, byLabel["2025-06"].Persistency)
	assert.Equal(t, 50.0, byLabel["2025-05"].Persistency)
	assert.Equal(t, 100.0, byLabel["2025-04"].Persistency)
	assert.Equal(t, 0, byLabel["2025-01"].Total)
	assert.Equal(t, 0.0, byLabel["2025-01"].Persistency)

	require.Len(t, res.Quarterly, 4)
	assert.Equal(t, "2024-Q3", res.Quarterly[0].Label)
	assert.Equal(t, "2025-Q2", res.Quarterly[3].Label)
	assert.Equal(t, 6, res.Quarterly[3].Total)
	assert.Equal(t, 33.33, res.Quarterly[3].Persistency)

	assert.Equal(t, 7, res.Overall.Total)
	assert.Equal(t, 2, res.Overall.Active)
	assert.Equal(t, 28.57, res.Overall.Persistency)
}

func TestPersistency_SelfOnlyAndDefaultAnchor(t *testing.T) {
	fx := newFixture(t)

	res, err := fx.engine.Persistency(context.Background(), policy.Filter{NPN: "D", SelfOnly: true}, policy.BobStrict)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), res.AnchorDate)
	assert.Equal(t, 2, res.Overall.Total)
	assert.Equal(t, 50.0, res.Overall.Persistency)
}

func TestMonthlyWindows_CrossYear(t *testing.T) {
	windows := MonthlyWindows(time.Date(2025, 2, 20, 0, 0, 0, 0, time.UTC), 3)
	assert.Equal(t, "2024-12", windows[0].Label)
	assert.Equal(t, time.Date(2025, 1, 31, 23, 59, 59, 999999999, time.UTC), windows[1].End)

	quarters := QuarterlyWindows(time.Date(2025, 2, 20, 0, 0, 0, 0, time.UTC), 2)
	assert.Equal(t, "2024-Q4", quarters[0].Label)
	assert.Equal(t, time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC), quarters[0].Start)
}

func TestPremiumByProduct_Strict(t *testing.T) {
	fx := newFixture(t)

	res, err := fx.engine.PremiumByProduct(context.Background(), policy.Filter{NPN: "A", Bob: "Y"}, policy.BobStrict)
	require.NoError(t, err)

	require.Len(t, res.Products, 2)
	assert.Equal(t, "Life", res.Products[0].Product)
	assert.True(t, res.Products[0].TotalPremium.Equal(decimal.RequireFromString("1100")))
	assert.Equal(t, "Dental", res.Products[1].Product)
	assert.True(t, res.Products[1].TotalPremium.Equal(decimal.RequireFromString("60.25")))
	assert.True(t, res.GrandTotal.Equal(decimal.RequireFromString("1160.25")))
	assert.Equal(t, 4, res.TotalPolicies)
}

func TestListPolicies_JoinsLatestTakeAction(t *testing.T) {
	fx := newFixture(t)

	res, err := fx.engine.ListPolicies(context.Background(), policy.Filter{NPN: "B"}, policy.BobInclusive)
	require.NoError(t, err)

	require.Len(t, res.Policies, 4)
	got := make([]string, len(res.Policies))
	for i, row := range res.Policies {
		got[i] = row.PolicyNumber
	}
	assert.Equal(t, []string{"P2", "P3", "P5", "P6"}, got)

	assert.Nil(t, res.Policies[0].IssueType)
	assert.Nil(t, res.Policies[0].IssueDescription)
	require.NotNil(t, res.Policies[1].IssueType)
	assert.Equal(t, "In Progress", *res.Policies[1].IssueType)
	assert.Equal(t, "awaiting APS", *res.Policies[1].IssueDescription)
	assert.Equal(t, "Completed", *res.Policies[2].IssueType)
	assert.Equal(t, 4, res.Total)
}

func TestListPolicies_SearchAndCarrierless(t *testing.T) {
	fx := newFixture(t)

	res, err := fx.engine.ListPolicies(context.Background(), policy.Filter{NPN: "A", Search: "dev", Carrier: " , "}, policy.BobInclusive)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
}
