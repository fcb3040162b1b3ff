// Package insights runs anomaly detection and cost forecasting over the
// per-subscription cost time series.
package insights

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/de-tools/advisor-reports/pkg/models/domain"
	"github.com/de-tools/advisor-reports/pkg/observability"
	"github.com/de-tools/advisor-reports/pkg/store"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var ErrRunInProgress = errors.New("insights run already in progress")

type Service interface {
	Run(ctx context.Context) (RunSummary, error)
	GetAnomalies(ctx context.Context, filter domain.AnomalyFilter) ([]*domain.Anomaly, error)
	AcknowledgeAnomaly(ctx context.Context, id string, notes *string) (*domain.Anomaly, error)
	GetForecasts(ctx context.Context, subscriptionID string) ([]*domain.Forecast, error)
}

type Store interface {
	store.CostStore
	store.AnomalyStore
	store.ForecastStore
}

type Config struct {
	// MinHistory is the number of cost points a subscription needs before it is evaluated.
	MinHistory int
	// Lookback bounds how many days of history are read per run.
	Lookback int
	// Horizon is the number of future days to forecast.
	Horizon int
}

func DefaultConfig() Config {
	return Config{MinHistory: 14, Lookback: 90, Horizon: 30}
}

type SubscriptionRun struct {
	SubscriptionID   string
	Outcome          domain.EngineOutcome
	AnomaliesCreated int
	ForecastsWritten int
	Err              error
}

type RunSummary struct {
	StartedAt     time.Time
	FinishedAt    time.Time
	Subscriptions []SubscriptionRun
}

type Engine struct {
	store      Store
	detector   AnomalyModel
	forecaster ForecastModel
	metrics    *observability.Metrics
	config     Config
	now        func() time.Time
	newID      func() string

	running sync.Mutex
}

func NewEngine(
	repo Store,
	detector AnomalyModel,
	forecaster ForecastModel,
	metrics *observability.Metrics,
	config Config,
) *Engine {
	defaults := DefaultConfig()
	if config.MinHistory <= 0 {
		config.MinHistory = defaults.MinHistory
	}
	if config.MinHistory <= detector.Window() {
		config.MinHistory = detector.Window() + 1
	}
	if config.Lookback <= 0 {
		config.Lookback = defaults.Lookback
	}
	if config.Horizon <= 0 {
		config.Horizon = defaults.Horizon
	}
	return &Engine{
		store:      repo,
		detector:   detector,
		forecaster: forecaster,
		metrics:    metrics,
		config:     config,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
}

// Run evaluates every subscription with cost data. A failing subscription is
// recorded in the summary and does not stop the others.
func (e *Engine) Run(ctx context.Context) (RunSummary, error) {
	if !e.running.TryLock() {
		return RunSummary{}, ErrRunInProgress
	}
	defer e.running.Unlock()

	logger := zerolog.Ctx(ctx)
	summary := RunSummary{StartedAt: e.now()}

	subscriptions, err := e.store.ListCostSubscriptions(ctx)
	if err != nil {
		return summary, fmt.Errorf("list cost subscriptions: %w", err)
	}

	var errs []error
	for _, sub := range subscriptions {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		run := e.evaluate(ctx, sub)
		summary.Subscriptions = append(summary.Subscriptions, run)

		outcome := string(run.Outcome)
		if run.Err != nil {
			outcome = "Failed"
			errs = append(errs, fmt.Errorf("subscription %s: %w", sub, run.Err))
		}
		e.metrics.EngineOutcome("insights", outcome)

		logger.Info().
			Str("subscription_id", sub).
			Str("outcome", outcome).
			Int("anomalies_created", run.AnomaliesCreated).
			Int("forecasts_written", run.ForecastsWritten).
			Msg("subscription evaluated")
	}

	summary.FinishedAt = e.now()
	return summary, errors.Join(errs...)
}

// Schedule registers Run on c. Runs that would overlap a running one are skipped.
func (e *Engine) Schedule(ctx context.Context, c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		logger := zerolog.Ctx(ctx)
		summary, err := e.Run(ctx)
		switch {
		case errors.Is(err, ErrRunInProgress):
			logger.Warn().Msg("previous insights run still in progress, skipping")
		case err != nil:
			logger.Error().Err(err).Msg("insights run finished with errors")
		default:
			logger.Info().
				Int("subscriptions", len(summary.Subscriptions)).
				Dur("took", summary.FinishedAt.Sub(summary.StartedAt)).
				Msg("insights run finished")
		}
	})
}

func (e *Engine) evaluate(ctx context.Context, subscriptionID string) SubscriptionRun {
	run := SubscriptionRun{SubscriptionID: subscriptionID}

	from := domain.Day(e.now()).AddDate(0, 0, -e.config.Lookback)
	points, err := e.store.ListCostDataPoints(ctx, subscriptionID, from, time.Time{})
	if err != nil {
		run.Err = fmt.Errorf("list cost data: %w", err)
		return run
	}
	if len(points) < e.config.MinHistory {
		run.Outcome = domain.OutcomeSkippedInsufficientData
		return run
	}
	run.Outcome = domain.OutcomeEvaluated

	if run.AnomaliesCreated, err = e.detect(ctx, subscriptionID, points); err != nil {
		run.Err = err
		return run
	}
	if run.ForecastsWritten, err = e.forecast(ctx, subscriptionID, points); err != nil {
		run.Err = err
	}
	return run
}

// detect flags points outside the expected band. An open anomaly for the same
// day blocks a new one, and so does an acknowledged one with the same amount.
func (e *Engine) detect(ctx context.Context, subscriptionID string, points []domain.CostDataPoint) (int, error) {
	existing, err := e.store.ListAnomalies(ctx, domain.AnomalyFilter{SubscriptionID: subscriptionID})
	if err != nil {
		return 0, fmt.Errorf("list anomalies: %w", err)
	}
	acknowledged := make(map[time.Time][]decimal.Decimal)
	for _, a := range existing {
		if a.Acknowledged {
			day := domain.Day(a.Date)
			acknowledged[day] = append(acknowledged[day], a.ActualAmount)
		}
	}

	values := amounts(points)
	detectedAt := e.now()
	created := 0
	for i, p := range points {
		band, ok := e.detector.Expected(values[:i])
		if !ok || band.Contains(values[i]) {
			continue
		}
		if sameAmount(acknowledged[domain.Day(p.Date)], p.Amount) {
			continue
		}

		inserted, err := e.store.CreateAnomalyIfAbsent(ctx, &domain.Anomaly{
			ID:             e.newID(),
			SubscriptionID: subscriptionID,
			DetectedAt:     detectedAt,
			Date:           domain.Day(p.Date),
			ExpectedLower:  money(band.Lower),
			ExpectedUpper:  money(band.Upper),
			ActualAmount:   p.Amount,
			Severity:       severityOf(values[i], band),
		})
		if err != nil {
			return created, fmt.Errorf("create anomaly: %w", err)
		}
		if inserted {
			created++
			e.metrics.AnomalyCreated()
		}
	}
	return created, nil
}

func (e *Engine) forecast(ctx context.Context, subscriptionID string, points []domain.CostDataPoint) (int, error) {
	predictions := e.forecaster.Predict(amounts(points), e.config.Horizon)
	last := domain.Day(points[len(points)-1].Date)
	createdAt := e.now()

	forecasts := make([]*domain.Forecast, 0, len(predictions))
	for h, p := range predictions {
		forecasts = append(forecasts, &domain.Forecast{
			ID:             e.newID(),
			SubscriptionID: subscriptionID,
			ForecastDate:   last.AddDate(0, 0, h+1),
			PredictedCost:  money(p.Predicted),
			LowerBound:     money(p.Lower),
			UpperBound:     money(p.Upper),
			ModelType:      e.forecaster.Name(),
			CreatedAt:      createdAt,
		})
	}
	if err := e.store.ReplaceForecasts(ctx, subscriptionID, e.forecaster.Name(), forecasts); err != nil {
		return 0, fmt.Errorf("replace forecasts: %w", err)
	}
	return len(forecasts), nil
}

func (e *Engine) GetAnomalies(ctx context.Context, filter domain.AnomalyFilter) ([]*domain.Anomaly, error) {
	return e.store.ListAnomalies(ctx, filter)
}

func (e *Engine) AcknowledgeAnomaly(ctx context.Context, id string, notes *string) (*domain.Anomaly, error) {
	a, err := e.store.AcknowledgeAnomaly(ctx, id, notes)
	if err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().
		Str("anomaly_id", id).
		Str("subscription_id", a.SubscriptionID).
		Msg("anomaly acknowledged")
	return a, nil
}

func (e *Engine) GetForecasts(ctx context.Context, subscriptionID string) ([]*domain.Forecast, error) {
	return e.store.ListForecasts(ctx, subscriptionID)
}

func amounts(points []domain.CostDataPoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Amount.InexactFloat64()
	}
	return out
}

func sameAmount(seen []decimal.Decimal, amount decimal.Decimal) bool {
	for _, s := range seen {
		if s.Equal(amount) {
			return true
		}
	}
	return false
}

func money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}
