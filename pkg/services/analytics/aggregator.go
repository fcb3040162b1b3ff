// Package analytics maintains report and cost rollups for the dashboards.
//
// The index is updated incrementally from job events and cost ingestion.
// Query results are cached per filter and served for up to RecomputeInterval;
// Refresh drops the cache for callers that need exact freshness.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/de-tools/advisor-reports/pkg/models/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	DefaultRecomputeInterval = 5 * time.Minute
	DefaultTopUsersLimit     = 10
)

var ErrInvalidQuery = errors.New("invalid analytics query")

type Service interface {
	Dashboard(ctx context.Context, filter domain.AnalyticsFilter) (domain.DashboardMetrics, error)
	Trends(ctx context.Context, period domain.TrendPeriod, filter domain.AnalyticsFilter) ([]domain.TrendPoint, error)
	TopUsers(ctx context.Context, by domain.TopUsersBy, limit int, filter domain.AnalyticsFilter) ([]domain.UserActivity, error)
	CostInsights(ctx context.Context, filter domain.AnalyticsFilter) (domain.CostInsights, error)
	Refresh(ctx context.Context)
}

// Store is the read side the aggregator rebuilds from and enriches events with.
type Store interface {
	ListJobs(ctx context.Context, filter domain.JobFilter) ([]*domain.ReportJob, error)
	GetReport(ctx context.Context, id string) (*domain.Report, error)
	ListCostSubscriptions(ctx context.Context) ([]string, error)
	ListCostDataPoints(ctx context.Context, subscriptionID string, from, to time.Time) ([]domain.CostDataPoint, error)
}

type Config struct {
	RecomputeInterval time.Duration
}

type jobEntry struct {
	clientID       string
	subscriptionID string
	reportType     domain.ReportType
	status         domain.JobStatus
	at             time.Time
	generation     time.Duration
	sizeBytes      int64
	savings        domain.CategorySavings
}

type cacheEntry struct {
	value      any
	computedAt time.Time
}

type Aggregator struct {
	store  Store
	config Config
	now    func() time.Time

	mu    sync.RWMutex
	jobs  map[string]jobEntry
	costs map[string]map[time.Time]decimal.Decimal

	cacheMu sync.Mutex
	cache   map[string]cacheEntry
}

func NewAggregator(store Store, config Config) *Aggregator {
	if config.RecomputeInterval <= 0 {
		config.RecomputeInterval = DefaultRecomputeInterval
	}
	return &Aggregator{
		store:  store,
		config: config,
		now:    func() time.Time { return time.Now().UTC() },
		jobs:   make(map[string]jobEntry),
		costs:  make(map[string]map[time.Time]decimal.Decimal),
		cache:  make(map[string]cacheEntry),
	}
}

// Rebuild reloads the index from the store.
func (a *Aggregator) Rebuild(ctx context.Context) error {
	jobs, err := a.store.ListJobs(ctx, domain.JobFilter{
		Statuses: []domain.JobStatus{domain.JobStatusCompleted, domain.JobStatusFailed},
	})
	if err != nil {
		return fmt.Errorf("list finished jobs: %w", err)
	}

	entries := make(map[string]jobEntry, len(jobs))
	for _, job := range jobs {
		entry := entryFromEvent(job.Event())
		if job.Status == domain.JobStatusCompleted && job.ResultReportID != nil {
			report, err := a.store.GetReport(ctx, *job.ResultReportID)
			if err != nil {
				return fmt.Errorf("get report %s: %w", *job.ResultReportID, err)
			}
			entry.withReport(report)
		}
		entries[job.ID] = entry
	}

	subscriptions, err := a.store.ListCostSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("list cost subscriptions: %w", err)
	}
	costs := make(map[string]map[time.Time]decimal.Decimal, len(subscriptions))
	for _, sub := range subscriptions {
		points, err := a.store.ListCostDataPoints(ctx, sub, time.Time{}, time.Time{})
		if err != nil {
			return fmt.Errorf("list cost data for %s: %w", sub, err)
		}
		byDay := make(map[time.Time]decimal.Decimal, len(points))
		for _, p := range points {
			byDay[domain.Day(p.Date)] = p.Amount
		}
		costs[sub] = byDay
	}

	a.mu.Lock()
	a.jobs = entries
	a.costs = costs
	a.mu.Unlock()
	a.Refresh(ctx)

	zerolog.Ctx(ctx).Info().
		Int("jobs", len(entries)).
		Int("subscriptions", len(costs)).
		Msg("analytics index rebuilt")
	return nil
}

// OnJobEvent folds a terminal job event into the index.
func (a *Aggregator) OnJobEvent(ctx context.Context, event domain.JobEvent) {
	if !event.Status.Terminal() {
		return
	}

	entry := entryFromEvent(event)
	if event.Status == domain.JobStatusCompleted && event.ResultReportID != "" {
		report, err := a.store.GetReport(ctx, event.ResultReportID)
		if err != nil {
			zerolog.Ctx(ctx).Warn().
				Err(err).
				Str("job_id", event.JobID).
				Msg("report unavailable for analytics, counting job without its totals")
		} else {
			entry.withReport(report)
		}
	}

	a.mu.Lock()
	a.jobs[event.JobID] = entry
	a.mu.Unlock()
}

// OnCostIngested records cost points; a later point for the same day replaces the earlier one.
func (a *Aggregator) OnCostIngested(_ context.Context, points []domain.CostDataPoint) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range points {
		byDay, ok := a.costs[p.SubscriptionID]
		if !ok {
			byDay = make(map[time.Time]decimal.Decimal)
			a.costs[p.SubscriptionID] = byDay
		}
		byDay[domain.Day(p.Date)] = p.Amount
	}
}

func (a *Aggregator) Refresh(_ context.Context) {
	a.cacheMu.Lock()
	a.cache = make(map[string]cacheEntry)
	a.cacheMu.Unlock()
}

func (a *Aggregator) Dashboard(_ context.Context, filter domain.AnalyticsFilter) (domain.DashboardMetrics, error) {
	return cached(a, "dashboard|"+filterKey(filter), func(now time.Time) domain.DashboardMetrics {
		m := domain.DashboardMetrics{TotalCostAnalyzed: decimal.Zero, ComputedAt: now}

		users := make(map[string]struct{})
		var (
			failed     int
			generation time.Duration
		)
		for _, e := range a.jobs {
			if !e.matches(filter) {
				continue
			}
			users[e.clientID] = struct{}{}
			switch e.status {
			case domain.JobStatusCompleted:
				m.TotalReports++
				m.StorageUsedBytes += e.sizeBytes
				generation += e.generation
			case domain.JobStatusFailed:
				failed++
			}
		}
		m.ActiveUsers = len(users)
		if m.TotalReports > 0 {
			m.AverageGenerationTime = generation / time.Duration(m.TotalReports)
		}
		if finished := m.TotalReports + failed; finished > 0 {
			m.SuccessRate = float64(m.TotalReports) / float64(finished) * 100
		}
		for _, total := range a.costsBySubscription(filter) {
			m.TotalCostAnalyzed = m.TotalCostAnalyzed.Add(total)
		}
		return m
	}), nil
}

// Trends buckets completed reports by completion time. Empty buckets are omitted.
func (a *Aggregator) Trends(
	_ context.Context,
	period domain.TrendPeriod,
	filter domain.AnalyticsFilter,
) ([]domain.TrendPoint, error) {
	if !period.Valid() {
		return nil, fmt.Errorf("%w: unknown period %q", ErrInvalidQuery, period)
	}
	return cached(a, "trends|"+string(period)+"|"+filterKey(filter), func(time.Time) []domain.TrendPoint {
		buckets := make(map[time.Time]*domain.TrendPoint)
		for _, e := range a.jobs {
			if e.status != domain.JobStatusCompleted || !e.matches(filter) {
				continue
			}
			start := period.BucketStart(e.at)
			p, ok := buckets[start]
			if !ok {
				p = &domain.TrendPoint{BucketStart: start, ByReportType: make(map[domain.ReportType]int)}
				buckets[start] = p
			}
			p.Total++
			p.ByReportType[e.reportType]++
		}

		points := make([]domain.TrendPoint, 0, len(buckets))
		for _, p := range buckets {
			points = append(points, *p)
		}
		sort.Slice(points, func(i, j int) bool {
			return points[i].BucketStart.Before(points[j].BucketStart)
		})
		return points
	}), nil
}

// TopUsers ranks clients by completed report count or by latest activity.
// Ties fall back to most recent activity, then client id.
func (a *Aggregator) TopUsers(
	_ context.Context,
	by domain.TopUsersBy,
	limit int,
	filter domain.AnalyticsFilter,
) ([]domain.UserActivity, error) {
	if by == "" {
		by = domain.TopUsersByReportCount
	}
	if by != domain.TopUsersByReportCount && by != domain.TopUsersByActivity {
		return nil, fmt.Errorf("%w: unknown ranking %q", ErrInvalidQuery, by)
	}
	if limit <= 0 {
		limit = DefaultTopUsersLimit
	}

	key := fmt.Sprintf("top|%s|%d|%s", by, limit, filterKey(filter))
	return cached(a, key, func(time.Time) []domain.UserActivity {
		byClient := make(map[string]*domain.UserActivity)
		for _, e := range a.jobs {
			if !e.matches(filter) {
				continue
			}
			u, ok := byClient[e.clientID]
			if !ok {
				u = &domain.UserActivity{ClientID: e.clientID}
				byClient[e.clientID] = u
			}
			if e.status == domain.JobStatusCompleted {
				u.ReportCount++
			}
			if e.at.After(u.LastActivity) {
				u.LastActivity = e.at
			}
		}

		users := make([]domain.UserActivity, 0, len(byClient))
		for _, u := range byClient {
			users = append(users, *u)
		}
		sort.Slice(users, func(i, j int) bool {
			x, y := users[i], users[j]
			if by == domain.TopUsersByReportCount && x.ReportCount != y.ReportCount {
				return x.ReportCount > y.ReportCount
			}
			if !x.LastActivity.Equal(y.LastActivity) {
				return x.LastActivity.After(y.LastActivity)
			}
			return x.ClientID < y.ClientID
		})
		if len(users) > limit {
			users = users[:limit]
		}
		return users
	}), nil
}

func (a *Aggregator) CostInsights(_ context.Context, filter domain.AnalyticsFilter) (domain.CostInsights, error) {
	return cached(a, "insights|"+filterKey(filter), func(now time.Time) domain.CostInsights {
		insights := domain.CostInsights{
			TotalCost:         decimal.Zero,
			SavingsByCategory: make(domain.CategorySavings),
			ComputedAt:        now,
		}

		for sub, total := range a.costsBySubscription(filter) {
			insights.TotalCost = insights.TotalCost.Add(total)
			insights.BySubscription = append(insights.BySubscription, domain.SubscriptionCost{
				SubscriptionID: sub,
				Total:          total,
			})
		}
		sort.Slice(insights.BySubscription, func(i, j int) bool {
			x, y := insights.BySubscription[i], insights.BySubscription[j]
			if c := x.Total.Cmp(y.Total); c != 0 {
				return c > 0
			}
			return x.SubscriptionID < y.SubscriptionID
		})

		for _, e := range a.jobs {
			if e.status != domain.JobStatusCompleted || !e.matches(filter) {
				continue
			}
			insights.SavingsByCategory.Merge(e.savings)
		}
		return insights
	}), nil
}

// costsBySubscription sums cost points inside the window. With a client filter
// only the subscriptions that client reported on are counted. Callers hold a.mu.
func (a *Aggregator) costsBySubscription(filter domain.AnalyticsFilter) map[string]decimal.Decimal {
	var allowed map[string]bool
	if filter.ClientID != "" {
		allowed = make(map[string]bool)
		for _, e := range a.jobs {
			if e.clientID == filter.ClientID && e.subscriptionID != "" {
				allowed[e.subscriptionID] = true
			}
		}
	}

	totals := make(map[string]decimal.Decimal)
	for sub, byDay := range a.costs {
		if allowed != nil && !allowed[sub] {
			continue
		}
		for day, amount := range byDay {
			if filter.Contains(day) {
				totals[sub] = totals[sub].Add(amount)
			}
		}
	}
	return totals
}

// cached serves key from the cache while it is younger than RecomputeInterval
// and recomputes it under the index read lock otherwise.
func cached[T any](a *Aggregator, key string, compute func(now time.Time) T) T {
	now := a.now()

	a.cacheMu.Lock()
	entry, ok := a.cache[key]
	a.cacheMu.Unlock()
	if ok && now.Sub(entry.computedAt) < a.config.RecomputeInterval {
		return entry.value.(T)
	}

	a.mu.RLock()
	value := compute(now)
	a.mu.RUnlock()

	a.cacheMu.Lock()
	a.cache[key] = cacheEntry{value: value, computedAt: now}
	a.cacheMu.Unlock()
	return value
}

func filterKey(f domain.AnalyticsFilter) string {
	return fmt.Sprintf("%s|%d|%d", f.ClientID, unixOrZero(f.From), unixOrZero(f.To))
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func entryFromEvent(e domain.JobEvent) jobEntry {
	entry := jobEntry{
		clientID:       e.ClientID,
		subscriptionID: e.SubscriptionID,
		reportType:     e.ReportType,
		status:         e.Status,
		at:             e.CreatedAt,
	}
	if e.CompletedAt != nil {
		entry.at = *e.CompletedAt
		if e.StartedAt != nil {
			entry.generation = e.CompletedAt.Sub(*e.StartedAt)
		}
	}
	return entry
}

func (e *jobEntry) withReport(r *domain.Report) {
	e.sizeBytes = r.SizeBytes
	e.savings = r.Aggregates.SavingsByCategory.Clone()
}

func (e jobEntry) matches(f domain.AnalyticsFilter) bool {
	if f.ClientID != "" && e.clientID != f.ClientID {
		return false
	}
	return f.Contains(e.at)
}
