package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/de-tools/advisor-reports/pkg/models/domain"
	"github.com/de-tools/advisor-reports/pkg/store/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC) // a Monday

type finishedJob struct {
	id           string
	clientID     string
	subscription string
	reportType   domain.ReportType
	started      time.Time
	took         time.Duration
	failed       bool
	sizeBytes    int64
	savings      domain.CategorySavings
}

// seed drives jobs through the store the same way the scheduler does and
// returns the terminal events.
func seed(t *testing.T, s *memory.Store, jobs ...finishedJob) []domain.JobEvent {
	t.Helper()
	ctx := context.Background()

	var events []domain.JobEvent
	for _, j := range jobs {
		reportType := j.reportType
		if reportType == "" {
			reportType = domain.ReportTypeCost
		}
		require.NoError(t, s.CreateJob(ctx, &domain.ReportJob{
			ID:         j.id,
			ClientID:   j.clientID,
			SourceKind: domain.SourceKindAzureAPI,
			SourceRef:  domain.SourceRef{SubscriptionID: j.subscription},
			ReportType: reportType,
			Status:     domain.JobStatusPending,
			CreatedAt:  j.started,
		}))
		_, err := s.ClaimJob(ctx, j.id, j.started, j.started.Add(time.Hour))
		require.NoError(t, err)

		var done *domain.ReportJob
		if j.failed {
			done, err = s.FailJob(ctx, j.id, 1, domain.JobError{Kind: domain.ErrorKindRateLimited, Message: "throttled"}, j.started.Add(j.took))
		} else {
			done, err = s.CompleteJob(ctx, j.id, 1, &domain.Report{
				ID:         "report-" + j.id,
				JobID:      j.id,
				ClientID:   j.clientID,
				ReportType: reportType,
				Aggregates: domain.Aggregates{SavingsByCategory: j.savings},
				SizeBytes:  j.sizeBytes,
			}, j.started.Add(j.took))
		}
		require.NoError(t, err)
		events = append(events, done.Event())
	}
	return events
}

func newTestAggregator(s Store) (*Aggregator, *time.Time) {
	a := NewAggregator(s, Config{RecomputeInterval: time.Minute})
	now := base.Add(30 * 24 * time.Hour)
	a.now = func() time.Time { return now }
	return a, &now
}

func TestAggregator_Dashboard(t *testing.T) {
	s := memory.NewStore()
	a, _ := newTestAggregator(s)
	ctx := context.Background()

	for _, e := range seed(t, s,
		finishedJob{id: "j1", clientID: "alice", subscription: "sub-1", started: base, took: 2 * time.Second, sizeBytes: 100},
		finishedJob{id: "j2", clientID: "bob", subscription: "sub-2", started: base, took: 4 * time.Second, sizeBytes: 300},
		finishedJob{id: "j3", clientID: "bob", subscription: "sub-2", started: base, took: time.Second, failed: true},
	) {
		a.OnJobEvent(ctx, e)
	}
	a.OnCostIngested(ctx, []domain.CostDataPoint{
		{SubscriptionID: "sub-1", Date: base, Amount: decimal.NewFromInt(10)},
		{SubscriptionID: "sub-2", Date: base, Amount: decimal.NewFromInt(5)},
		{SubscriptionID: "sub-2", Date: base, Amount: decimal.NewFromInt(7)},
	})

	m, err := a.Dashboard(ctx, domain.AnalyticsFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, m.TotalReports)
	assert.Equal(t, 2, m.ActiveUsers)
	assert.Equal(t, 3*time.Second, m.AverageGenerationTime)
	assert.EqualValues(t, 400, m.StorageUsedBytes)
	assert.InDelta(t, 66.666, m.SuccessRate, 0.01)
	assert.True(t, decimal.NewFromInt(17).Equal(m.TotalCostAnalyzed), "later point for a day replaces the earlier one")

	bob, err := a.Dashboard(ctx, domain.AnalyticsFilter{ClientID: "bob"})
	require.NoError(t, err)
	assert.Equal(t, 1, bob.TotalReports)
	assert.InDelta(t, 50, bob.SuccessRate, 0.001)
	assert.True(t, decimal.NewFromInt(7).Equal(bob.TotalCostAnalyzed))
}

func TestAggregator_StalenessBound(t *testing.T) {
	s := memory.NewStore()
	a, now := newTestAggregator(s)
	ctx := context.Background()

	events := seed(t, s,
		finishedJob{id: "j1", clientID: "alice", started: base, took: time.Second},
		finishedJob{id: "j2", clientID: "alice", started: base, took: time.Second},
	)
	a.OnJobEvent(ctx, events[0])

	first, err := a.Dashboard(ctx, domain.AnalyticsFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.TotalReports)

	a.OnJobEvent(ctx, events[1])
	stale, err := a.Dashboard(ctx, domain.AnalyticsFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, stale.TotalReports, "served from cache inside the recompute interval")

	*now = now.Add(time.Minute)
	fresh, err := a.Dashboard(ctx, domain.AnalyticsFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.TotalReports)

	a.OnJobEvent(ctx, domain.JobEvent{
		JobID: "j3", ClientID: "carol", Status: domain.JobStatusFailed, CreatedAt: base,
	})
	a.Refresh(ctx)
	forced, err := a.Dashboard(ctx, domain.AnalyticsFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, forced.ActiveUsers)
}

func TestAggregator_Trends(t *testing.T) {
	s := memory.NewStore()
	a, _ := newTestAggregator(s)
	ctx := context.Background()

	for _, e := range seed(t, s,
		finishedJob{id: "j1", clientID: "alice", started: base, reportType: domain.ReportTypeCost},
		finishedJob{id: "j2", clientID: "alice", started: base.Add(48 * time.Hour), reportType: domain.ReportTypeSecurity},
		finishedJob{id: "j3", clientID: "bob", started: base.Add(8 * 24 * time.Hour), reportType: domain.ReportTypeCost},
		finishedJob{id: "j4", clientID: "bob", started: base.Add(8 * 24 * time.Hour), failed: true},
	) {
		a.OnJobEvent(ctx, e)
	}

	weekly, err := a.Trends(ctx, domain.TrendPeriodWeek, domain.AnalyticsFilter{})
	require.NoError(t, err)
	require.Len(t, weekly, 2)
	assert.Equal(t, domain.Day(base), weekly[0].BucketStart)
	assert.Equal(t, 2, weekly[0].Total)
	assert.Equal(t, map[domain.ReportType]int{domain.ReportTypeCost: 1, domain.ReportTypeSecurity: 1}, weekly[0].ByReportType)
	assert.Equal(t, domain.Day(base.Add(7*24*time.Hour)), weekly[1].BucketStart)
	assert.Equal(t, 1, weekly[1].Total, "failed jobs are not reports")

	daily, err := a.Trends(ctx, domain.TrendPeriodDay, domain.AnalyticsFilter{From: base.Add(24 * time.Hour)})
	require.NoError(t, err)
	assert.Len(t, daily, 2)

	_, err = a.Trends(ctx, "fortnight", domain.AnalyticsFilter{})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestAggregator_TopUsers(t *testing.T) {
	s := memory.NewStore()
	a, _ := newTestAggregator(s)
	ctx := context.Background()

	for _, e := range seed(t, s,
		finishedJob{id: "j1", clientID: "carol", started: base},
		finishedJob{id: "j2", clientID: "alice", started: base.Add(time.Hour)},
		finishedJob{id: "j3", clientID: "bob", started: base.Add(time.Hour)},
		finishedJob{id: "j4", clientID: "dave", started: base},
		finishedJob{id: "j5", clientID: "dave", started: base.Add(-time.Hour)},
		finishedJob{id: "j6", clientID: "erin", started: base.Add(2 * time.Hour), failed: true},
	) {
		a.OnJobEvent(ctx, e)
	}

	ids := func(users []domain.UserActivity) []string {
		out := make([]string, 0, len(users))
		for _, u := range users {
			out = append(out, u.ClientID)
		}
		return out
	}

	byCount, err := a.TopUsers(ctx, domain.TopUsersByReportCount, 0, domain.AnalyticsFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"dave", "alice", "bob", "carol", "erin"}, ids(byCount))
	assert.Equal(t, 2, byCount[0].ReportCount)

	byActivity, err := a.TopUsers(ctx, domain.TopUsersByActivity, 3, domain.AnalyticsFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"erin", "alice", "bob"}, ids(byActivity))

	_, err = a.TopUsers(ctx, "revenue", 3, domain.AnalyticsFilter{})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestAggregator_CostInsights(t *testing.T) {
	s := memory.NewStore()
	a, _ := newTestAggregator(s)
	ctx := context.Background()

	for _, e := range seed(t, s,
		finishedJob{id: "j1", clientID: "alice", subscription: "sub-a", started: base, savings: domain.CategorySavings{
			domain.CategoryCost: {"USD": decimal.RequireFromString("120.50")},
		}},
		finishedJob{id: "j2", clientID: "bob", subscription: "sub-b", started: base, savings: domain.CategorySavings{
			domain.CategoryCost:        {"USD": decimal.RequireFromString("10"), "EUR": decimal.RequireFromString("7")},
			domain.CategoryPerformance: {"USD": decimal.RequireFromString("3")},
		}},
	) {
		a.OnJobEvent(ctx, e)
	}
	a.OnCostIngested(ctx, []domain.CostDataPoint{
		{SubscriptionID: "sub-a", Date: base, Amount: decimal.NewFromInt(40)},
		{SubscriptionID: "sub-b", Date: base, Amount: decimal.NewFromInt(40)},
		{SubscriptionID: "sub-c", Date: base, Amount: decimal.NewFromInt(90)},
		{SubscriptionID: "sub-c", Date: base.AddDate(0, -2, 0), Amount: decimal.NewFromInt(1000)},
	})

	insights, err := a.CostInsights(ctx, domain.AnalyticsFilter{From: base.AddDate(0, -1, 0)})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(170).Equal(insights.TotalCost))
	require.Len(t, insights.BySubscription, 3)
	assert.Equal(t, "sub-c", insights.BySubscription[0].SubscriptionID)
	assert.Equal(t, "sub-a", insights.BySubscription[1].SubscriptionID, "equal totals order by id")
	assert.True(t, decimal.RequireFromString("130.50").Equal(insights.SavingsByCategory[domain.CategoryCost]["USD"]))
	assert.True(t, decimal.NewFromInt(7).Equal(insights.SavingsByCategory[domain.CategoryCost]["EUR"]), "currencies are not mixed")
	assert.True(t, decimal.NewFromInt(3).Equal(insights.SavingsByCategory[domain.CategoryPerformance]["USD"]))

	alice, err := a.CostInsights(ctx, domain.AnalyticsFilter{ClientID: "alice"})
	require.NoError(t, err)
	require.Len(t, alice.BySubscription, 1)
	assert.Equal(t, "sub-a", alice.BySubscription[0].SubscriptionID)
	assert.True(t, decimal.RequireFromString("120.50").Equal(alice.SavingsByCategory[domain.CategoryCost]["USD"]))
	assert.NotContains(t, alice.SavingsByCategory[domain.CategoryCost], "EUR")
}

func TestAggregator_Rebuild(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()
	seed(t, s,
		finishedJob{id: "j1", clientID: "alice", subscription: "sub-1", started: base, took: time.Second, sizeBytes: 64},
		finishedJob{id: "j2", clientID: "bob", started: base, failed: true},
	)
	require.NoError(t, s.UpsertCostDataPoints(ctx, []domain.CostDataPoint{
		{SubscriptionID: "sub-1", Date: base, Amount: decimal.NewFromInt(25), Currency: "USD"},
	}))

	a, _ := newTestAggregator(s)
	require.NoError(t, a.Rebuild(ctx))

	m, err := a.Dashboard(ctx, domain.AnalyticsFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, m.TotalReports)
	assert.Equal(t, 2, m.ActiveUsers)
	assert.EqualValues(t, 64, m.StorageUsedBytes)
	assert.InDelta(t, 50, m.SuccessRate, 0.001)
	assert.True(t, decimal.NewFromInt(25).Equal(m.TotalCostAnalyzed))
}

func TestAggregator_IgnoresNonTerminalEvents(t *testing.T) {
	a, _ := newTestAggregator(memory.NewStore())
	ctx := context.Background()

	a.OnJobEvent(ctx, domain.JobEvent{JobID: "j1", ClientID: "alice", Status: domain.JobStatusRunning, CreatedAt: base})

	m, err := a.Dashboard(ctx, domain.AnalyticsFilter{})
	require.NoError(t, err)
	assert.Zero(t, m.ActiveUsers)
	assert.Zero(t, m.SuccessRate)
}
