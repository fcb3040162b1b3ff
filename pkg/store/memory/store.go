// Package memory is an in-process Repository used by the CLI, tests and
// single-node deployments without a database.
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/de-tools/advisor-reports/pkg/models/domain"
	"github.com/de-tools/advisor-reports/pkg/store"
	"github.com/shopspring/decimal"
)

type costKey struct {
	subscription string
	date         time.Time
}

type Store struct {
	mu        sync.RWMutex
	jobs      map[string]*domain.ReportJob
	jobOrder  []string
	reports   map[string]*domain.Report
	costs     map[costKey]domain.CostDataPoint
	anomalies map[string]*domain.Anomaly
	anomOrder []string
	forecasts map[string][]*domain.Forecast // by subscription
}

var _ store.Repository = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		jobs:      make(map[string]*domain.ReportJob),
		reports:   make(map[string]*domain.Report),
		costs:     make(map[costKey]domain.CostDataPoint),
		anomalies: make(map[string]*domain.Anomaly),
		forecasts: make(map[string][]*domain.Forecast),
	}
}

func (s *Store) Ping(_ context.Context) error { return nil }
func (s *Store) Close() error                 { return nil }

func (s *Store) CreateJob(_ context.Context, job *domain.ReportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return store.ErrConflict
	}
	s.jobs[job.ID] = job.Clone()
	s.jobOrder = append(s.jobOrder, job.ID)
	return nil
}

func (s *Store) GetJob(_ context.Context, id string) (*domain.ReportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return job.Clone(), nil
}

func (s *Store) ListJobs(_ context.Context, filter domain.JobFilter) ([]*domain.ReportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.ReportJob
	for _, id := range s.jobOrder {
		job := s.jobs[id]
		if filter.ClientID != "" && job.ClientID != filter.ClientID {
			continue
		}
		if len(filter.Statuses) > 0 && !hasStatus(filter.Statuses, job.Status) {
			continue
		}
		out = append(out, job.Clone())
	}
	return out, nil
}

func (s *Store) ClaimJob(_ context.Context, id string, now, leaseUntil time.Time) (*domain.ReportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if job.Status != domain.JobStatusPending {
		return nil, store.ErrConflict
	}
	job.Status = domain.JobStatusRunning
	job.Attempts = 1
	job.StartedAt = &now
	job.LeaseExpiresAt = &leaseUntil
	return job.Clone(), nil
}

func (s *Store) ReclaimJob(_ context.Context, id string, now, leaseUntil time.Time) (*domain.ReportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if job.Status != domain.JobStatusRunning || job.LeaseExpiresAt == nil || !job.LeaseExpiresAt.Before(now) {
		return nil, store.ErrConflict
	}
	job.Attempts++
	job.LeaseExpiresAt = &leaseUntil
	return job.Clone(), nil
}

func (s *Store) RetryJob(_ context.Context, id string, attempt int, leaseUntil time.Time) (*domain.ReportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, err := s.runningAttempt(id, attempt)
	if err != nil {
		return nil, err
	}
	job.Attempts++
	job.LeaseExpiresAt = &leaseUntil
	return job.Clone(), nil
}

func (s *Store) CompleteJob(
	_ context.Context,
	id string,
	attempt int,
	report *domain.Report,
	now time.Time,
) (*domain.ReportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, err := s.runningAttempt(id, attempt)
	if err != nil {
		return nil, err
	}
	if _, exists := s.reports[report.ID]; exists {
		return nil, store.ErrConflict
	}
	s.reports[report.ID] = cloneReport(report)
	reportID := report.ID
	job.Status = domain.JobStatusCompleted
	job.CompletedAt = &now
	job.LeaseExpiresAt = nil
	job.ResultReportID = &reportID
	return job.Clone(), nil
}

func (s *Store) FailJob(
	_ context.Context,
	id string,
	attempt int,
	jobErr domain.JobError,
	now time.Time,
) (*domain.ReportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, err := s.runningAttempt(id, attempt)
	if err != nil {
		return nil, err
	}
	job.Status = domain.JobStatusFailed
	job.CompletedAt = &now
	job.LeaseExpiresAt = nil
	job.Error = &jobErr
	return job.Clone(), nil
}

func (s *Store) runningAttempt(id string, attempt int) (*domain.ReportJob, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if job.Status != domain.JobStatusRunning || job.Attempts != attempt {
		return nil, store.ErrConflict
	}
	return job, nil
}

func (s *Store) GetReport(_ context.Context, id string) (*domain.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneReport(r), nil
}

func (s *Store) ListReports(_ context.Context, clientID string) ([]*domain.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Report
	for _, r := range s.reports {
		if clientID == "" || r.ClientID == clientID {
			out = append(out, cloneReport(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].GeneratedAt.Equal(out[j].GeneratedAt) {
			return out[i].GeneratedAt.Before(out[j].GeneratedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) UpsertCostDataPoints(_ context.Context, points []domain.CostDataPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		p.Date = domain.Day(p.Date)
		s.costs[costKey{subscription: p.SubscriptionID, date: p.Date}] = p
	}
	return nil
}

func (s *Store) ListCostDataPoints(
	_ context.Context,
	subscriptionID string,
	from, to time.Time,
) ([]domain.CostDataPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.CostDataPoint
	for k, p := range s.costs {
		if subscriptionID != "" && k.subscription != subscriptionID {
			continue
		}
		if !from.IsZero() && p.Date.Before(from) {
			continue
		}
		if !to.IsZero() && !p.Date.Before(to) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].SubscriptionID < out[j].SubscriptionID
	})
	return out, nil
}

func (s *Store) ListCostSubscriptions(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for k := range s.costs {
		seen[k.subscription] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for sub := range seen {
		out = append(out, sub)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) CreateAnomalyIfAbsent(_ context.Context, a *domain.Anomaly) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.anomalies {
		if existing.SubscriptionID == a.SubscriptionID && existing.Date.Equal(a.Date) && !existing.Acknowledged {
			return false, nil
		}
	}
	c := *a
	s.anomalies[a.ID] = &c
	s.anomOrder = append(s.anomOrder, a.ID)
	return true, nil
}

func (s *Store) GetAnomaly(_ context.Context, id string) (*domain.Anomaly, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.anomalies[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *a
	return &c, nil
}

func (s *Store) ListAnomalies(_ context.Context, filter domain.AnomalyFilter) ([]*domain.Anomaly, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Anomaly
	for _, id := range s.anomOrder {
		a := s.anomalies[id]
		if filter.SubscriptionID != "" && a.SubscriptionID != filter.SubscriptionID {
			continue
		}
		if filter.Acknowledged != nil && a.Acknowledged != *filter.Acknowledged {
			continue
		}
		c := *a
		out = append(out, &c)
	}
	return out, nil
}

func (s *Store) AcknowledgeAnomaly(_ context.Context, id string, notes *string) (*domain.Anomaly, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.anomalies[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if a.Acknowledged {
		return nil, store.ErrConflict
	}
	a.Acknowledged = true
	a.AcknowledgedNotes = notes
	c := *a
	return &c, nil
}

func (s *Store) ReplaceForecasts(
	_ context.Context,
	subscriptionID, modelType string,
	fs []*domain.Forecast,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.forecasts[subscriptionID][:0:0]
	for _, f := range s.forecasts[subscriptionID] {
		if f.ModelType == modelType && f.ActualCost == nil {
			continue
		}
		kept = append(kept, f)
	}
	for _, f := range fs {
		c := *f
		kept = append(kept, &c)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].ForecastDate.Before(kept[j].ForecastDate)
	})
	s.forecasts[subscriptionID] = kept
	return nil
}

func (s *Store) ListForecasts(_ context.Context, subscriptionID string) ([]*domain.Forecast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Forecast, 0, len(s.forecasts[subscriptionID]))
	for _, f := range s.forecasts[subscriptionID] {
		c := *f
		out = append(out, &c)
	}
	return out, nil
}

func (s *Store) BackfillActual(
	_ context.Context,
	subscriptionID string,
	date time.Time,
	actual decimal.Decimal,
) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day := domain.Day(date)
	updated := 0
	for _, f := range s.forecasts[subscriptionID] {
		if !f.ForecastDate.Equal(day) {
			continue
		}
		a := actual
		acc := domain.Accuracy(f.PredictedCost, actual)
		f.ActualCost = &a
		f.AccuracyPercentage = &acc
		updated++
	}
	return updated, nil
}

func hasStatus(statuses []domain.JobStatus, s domain.JobStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

func cloneReport(r *domain.Report) *domain.Report {
	c := *r
	c.Recommendations = make([]domain.Recommendation, len(r.Recommendations))
	for i, rec := range r.Recommendations {
		if rec.PotentialSavings != nil {
			savings := *rec.PotentialSavings
			rec.PotentialSavings = &savings
		}
		rec.SourceRow.Fields = maps.Clone(rec.SourceRow.Fields)
		c.Recommendations[i] = rec
	}
	c.Aggregates = domain.Aggregates{
		TotalRecommendations: r.Aggregates.TotalRecommendations,
		CountByCategory:      maps.Clone(r.Aggregates.CountByCategory),
		CountByImpact:        maps.Clone(r.Aggregates.CountByImpact),
		SavingsByCurrency:    maps.Clone(r.Aggregates.SavingsByCurrency),
		SavingsByCategory:    r.Aggregates.SavingsByCategory.Clone(),
	}
	return &c
}
