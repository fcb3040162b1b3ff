// Package costs ingests daily cost observations and pulls them from Azure Cost Management.
package costs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/de-tools/advisor-reports/pkg/models/domain"
	"github.com/de-tools/advisor-reports/pkg/observability"
	"github.com/de-tools/advisor-reports/pkg/store"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var ErrInvalidPoint = errors.New("invalid cost data point")

type Store interface {
	store.CostStore
	BackfillActual(ctx context.Context, subscriptionID string, date time.Time, actual decimal.Decimal) (int, error)
}

// Listener is told about every accepted batch, after it is persisted.
type Listener interface {
	OnCostIngested(ctx context.Context, points []domain.CostDataPoint)
}

// Source pulls actual daily cost for one subscription over [from, to).
type Source interface {
	Pull(ctx context.Context, subscriptionID string, from, to time.Time) ([]domain.CostDataPoint, error)
}

type Result struct {
	Points              int
	ForecastsReconciled int
}

type Ingestor struct {
	store     Store
	listeners []Listener
	metrics   *observability.Metrics
	now       func() time.Time
}

func NewIngestor(repo Store, metrics *observability.Metrics, listeners ...Listener) *Ingestor {
	return &Ingestor{
		store:     repo,
		listeners: listeners,
		metrics:   metrics,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Ingest validates and upserts points, then reconciles forecasts for each
// ingested day. The whole batch is rejected if any point is invalid.
func (i *Ingestor) Ingest(ctx context.Context, points []domain.CostDataPoint) (Result, error) {
	if len(points) == 0 {
		return Result{}, nil
	}

	clean := make([]domain.CostDataPoint, 0, len(points))
	for n, p := range points {
		normalized, err := normalizePoint(p)
		if err != nil {
			return Result{}, fmt.Errorf("point %d: %w", n, err)
		}
		clean = append(clean, normalized)
	}

	if err := i.store.UpsertCostDataPoints(ctx, clean); err != nil {
		return Result{}, fmt.Errorf("upsert cost data: %w", err)
	}

	result := Result{Points: len(clean)}
	for _, p := range clean {
		n, err := i.store.BackfillActual(ctx, p.SubscriptionID, p.Date, p.Amount)
		if err != nil {
			return result, fmt.Errorf("reconcile forecasts for %s on %s: %w",
				p.SubscriptionID, p.Date.Format(time.DateOnly), err)
		}
		result.ForecastsReconciled += n
	}

	i.metrics.CostPointsIngested(len(clean))
	for _, l := range i.listeners {
		l.OnCostIngested(ctx, clean)
	}

	zerolog.Ctx(ctx).Info().
		Int("points", result.Points).
		Int("forecasts_reconciled", result.ForecastsReconciled).
		Msg("cost data ingested")
	return result, nil
}

// Sync pulls the last days of cost for every subscription from source. A
// failing subscription does not stop the others.
func (i *Ingestor) Sync(ctx context.Context, source Source, subscriptions []string, days int) error {
	to := domain.Day(i.now()).AddDate(0, 0, 1)
	from := to.AddDate(0, 0, -days)

	var errs []error
	for _, sub := range subscriptions {
		points, err := source.Pull(ctx, sub, from, to)
		if err != nil {
			errs = append(errs, fmt.Errorf("pull cost for %s: %w", sub, err))
			continue
		}
		if _, err := i.Ingest(ctx, points); err != nil {
			errs = append(errs, fmt.Errorf("ingest cost for %s: %w", sub, err))
		}
	}
	return errors.Join(errs...)
}

// Schedule registers a recurring Sync on c.
func (i *Ingestor) Schedule(
	ctx context.Context,
	c *cron.Cron,
	spec string,
	source Source,
	subscriptions []string,
	days int,
) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		if err := i.Sync(ctx, source, subscriptions, days); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("scheduled cost sync failed")
		}
	})
}

func normalizePoint(p domain.CostDataPoint) (domain.CostDataPoint, error) {
	p.SubscriptionID = strings.TrimSpace(p.SubscriptionID)
	if p.SubscriptionID == "" {
		return p, fmt.Errorf("%w: subscription id is required", ErrInvalidPoint)
	}
	if p.Date.IsZero() {
		return p, fmt.Errorf("%w: date is required", ErrInvalidPoint)
	}
	if p.Amount.IsNegative() {
		return p, fmt.Errorf("%w: amount must not be negative", ErrInvalidPoint)
	}
	p.Date = domain.Day(p.Date)
	p.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))
	if p.Currency == "" {
		p.Currency = domain.DefaultCurrency
	}
	return p, nil
}
