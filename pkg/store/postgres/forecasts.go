package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/de-tools/advisor-reports/pkg/models/domain"
	"github.com/shopspring/decimal"
)

const forecastColumns = `id, subscription_id, forecast_date, predicted_cost, lower_bound, upper_bound,
	model_type, created_at, actual_cost, accuracy_percentage`

// ReplaceForecasts swaps the open forecasts of one model; reconciled rows are kept.
func (s *Store) ReplaceForecasts(
	ctx context.Context,
	subscriptionID, modelType string,
	fs []*domain.Forecast,
) error {
	return s.inTx(ctx, func(ctx context.Context) error {
		_, err := s.conn(ctx).ExecContext(ctx,
			`DELETE FROM forecasts WHERE subscription_id = $1 AND model_type = $2 AND actual_cost IS NULL`,
			subscriptionID, modelType,
		)
		if err != nil {
			return fmt.Errorf("delete open forecasts: %w", err)
		}

		query := `INSERT INTO forecasts (` + forecastColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
		for _, f := range fs {
			_, err := s.conn(ctx).ExecContext(ctx, query,
				f.ID, f.SubscriptionID, domain.Day(f.ForecastDate), f.PredictedCost, f.LowerBound, f.UpperBound,
				f.ModelType, f.CreatedAt, f.ActualCost, f.AccuracyPercentage,
			)
			if err != nil {
				return fmt.Errorf("insert forecast: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) ListForecasts(ctx context.Context, subscriptionID string) ([]*domain.Forecast, error) {
	query := `SELECT ` + forecastColumns + ` FROM forecasts WHERE subscription_id = $1 ORDER BY forecast_date, model_type`
	rows, err := s.conn(ctx).QueryContext(ctx, query, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("list forecasts: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Forecast, 0)
	for rows.Next() {
		var (
			f        domain.Forecast
			actual   decimal.NullDecimal
			accuracy sql.NullFloat64
		)
		err := rows.Scan(
			&f.ID, &f.SubscriptionID, &f.ForecastDate, &f.PredictedCost, &f.LowerBound, &f.UpperBound,
			&f.ModelType, &f.CreatedAt, &actual, &accuracy,
		)
		if err != nil {
			return nil, fmt.Errorf("scan forecast: %w", err)
		}
		f.ForecastDate = domain.Day(f.ForecastDate)
		if actual.Valid {
			v := actual.Decimal
			f.ActualCost = &v
		}
		if accuracy.Valid {
			v := accuracy.Float64
			f.AccuracyPercentage = &v
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

// BackfillActual records the observed cost on every forecast for that day.
func (s *Store) BackfillActual(
	ctx context.Context,
	subscriptionID string,
	date time.Time,
	actual decimal.Decimal,
) (int, error) {
	updated := 0
	err := s.inTx(ctx, func(ctx context.Context) error {
		rows, err := s.conn(ctx).QueryContext(ctx,
			`SELECT id, predicted_cost FROM forecasts WHERE subscription_id = $1 AND forecast_date = $2 FOR UPDATE`,
			subscriptionID, domain.Day(date),
		)
		if err != nil {
			return fmt.Errorf("select forecasts: %w", err)
		}

		type pending struct {
			id        string
			predicted decimal.Decimal
		}
		var todo []pending
		for rows.Next() {
			var p pending
			if err := rows.Scan(&p.id, &p.predicted); err != nil {
				rows.Close()
				return fmt.Errorf("scan forecast: %w", err)
			}
			todo = append(todo, p)
		}
		if err := rows.Close(); err != nil {
			return err
		}

		for _, p := range todo {
			_, err := s.conn(ctx).ExecContext(ctx,
				`UPDATE forecasts SET actual_cost = $2, accuracy_percentage = $3 WHERE id = $1`,
				p.id, actual, domain.Accuracy(p.predicted, actual),
			)
			if err != nil {
				return fmt.Errorf("backfill forecast %s: %w", p.id, err)
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}
