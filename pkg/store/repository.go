package store

import (
	"context"
	"errors"
	"time"

	"github.com/de-tools/advisor-reports/pkg/models/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a conditional transition finds the row in another state.
	ErrConflict = errors.New("state conflict")
)

// JobStore persists report jobs. Every status mutation is a compare-and-set on
// the current status (and attempt number once running).
type JobStore interface {
	CreateJob(ctx context.Context, job *domain.ReportJob) error
	GetJob(ctx context.Context, id string) (*domain.ReportJob, error)
	ListJobs(ctx context.Context, filter domain.JobFilter) ([]*domain.ReportJob, error)
	// ClaimJob moves a pending job to running with attempt 1.
	ClaimJob(ctx context.Context, id string, now, leaseUntil time.Time) (*domain.ReportJob, error)
	// ReclaimJob takes over a running job whose lease expired before now.
	ReclaimJob(ctx context.Context, id string, now, leaseUntil time.Time) (*domain.ReportJob, error)
	// RetryJob starts the next attempt of a running job currently at attempt.
	RetryJob(ctx context.Context, id string, attempt int, leaseUntil time.Time) (*domain.ReportJob, error)
	// CompleteJob persists report and marks the job completed as one unit.
	CompleteJob(ctx context.Context, id string, attempt int, report *domain.Report, now time.Time) (*domain.ReportJob, error)
	FailJob(ctx context.Context, id string, attempt int, jobErr domain.JobError, now time.Time) (*domain.ReportJob, error)
}

type ReportStore interface {
	GetReport(ctx context.Context, id string) (*domain.Report, error)
	ListReports(ctx context.Context, clientID string) ([]*domain.Report, error)
}

type CostStore interface {
	// UpsertCostDataPoints keeps at most one point per (subscription, day).
	UpsertCostDataPoints(ctx context.Context, points []domain.CostDataPoint) error
	// ListCostDataPoints returns points ordered by date; zero bounds are open.
	ListCostDataPoints(ctx context.Context, subscriptionID string, from, to time.Time) ([]domain.CostDataPoint, error)
	ListCostSubscriptions(ctx context.Context) ([]string, error)
}

type AnomalyStore interface {
	// CreateAnomalyIfAbsent inserts a unless an unacknowledged anomaly already
	// exists for the same (subscription, date). Reports whether it inserted.
	CreateAnomalyIfAbsent(ctx context.Context, a *domain.Anomaly) (bool, error)
	GetAnomaly(ctx context.Context, id string) (*domain.Anomaly, error)
	ListAnomalies(ctx context.Context, filter domain.AnomalyFilter) ([]*domain.Anomaly, error)
	// AcknowledgeAnomaly is one-way; acknowledging twice returns ErrConflict.
	AcknowledgeAnomaly(ctx context.Context, id string, notes *string) (*domain.Anomaly, error)
}

type ForecastStore interface {
	// ReplaceForecasts swaps the unreconciled forecasts of (subscription, model) for fs.
	ReplaceForecasts(ctx context.Context, subscriptionID, modelType string, fs []*domain.Forecast) error
	ListForecasts(ctx context.Context, subscriptionID string) ([]*domain.Forecast, error)
	// BackfillActual sets the actual cost and accuracy on every forecast for the date.
	BackfillActual(ctx context.Context, subscriptionID string, date time.Time, actual decimal.Decimal) (int, error)
}

type Repository interface {
	JobStore
	ReportStore
	CostStore
	AnomalyStore
	ForecastStore
	Ping(ctx context.Context) error
	Close() error
}
