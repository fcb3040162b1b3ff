package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/de-tools/advisor-reports/pkg/models/domain"
)

func (s *Store) UpsertCostDataPoints(ctx context.Context, points []domain.CostDataPoint) error {
	if len(points) == 0 {
		return nil
	}

	return s.inTx(ctx, func(ctx context.Context) error {
		tx := txFrom(ctx)
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO cost_data_points (subscription_id, date, amount, currency)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (subscription_id, date)
			DO UPDATE SET amount = EXCLUDED.amount, currency = EXCLUDED.currency`)
		if err != nil {
			return fmt.Errorf("prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, p := range points {
			_, err := stmt.ExecContext(ctx, p.SubscriptionID, domain.Day(p.Date), p.Amount, p.Currency)
			if err != nil {
				return fmt.Errorf("upsert cost point %s/%s: %w", p.SubscriptionID, p.Date.Format(time.DateOnly), err)
			}
		}
		return nil
	})
}

func (s *Store) ListCostDataPoints(
	ctx context.Context,
	subscriptionID string,
	from, to time.Time,
) ([]domain.CostDataPoint, error) {
	var (
		where []string
		args  []any
	)
	if subscriptionID != "" {
		args = append(args, subscriptionID)
		where = append(where, fmt.Sprintf("subscription_id = $%d", len(args)))
	}
	if !from.IsZero() {
		args = append(args, domain.Day(from))
		where = append(where, fmt.Sprintf("date >= $%d", len(args)))
	}
	if !to.IsZero() {
		args = append(args, domain.Day(to))
		where = append(where, fmt.Sprintf("date < $%d", len(args)))
	}

	query := `SELECT subscription_id, date, amount, currency FROM cost_data_points`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY date, subscription_id`

	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cost points: %w", err)
	}
	defer rows.Close()

	points := make([]domain.CostDataPoint, 0)
	for rows.Next() {
		var p domain.CostDataPoint
		if err := rows.Scan(&p.SubscriptionID, &p.Date, &p.Amount, &p.Currency); err != nil {
			return nil, fmt.Errorf("scan cost point: %w", err)
		}
		p.Date = domain.Day(p.Date)
		points = append(points, p)
	}
	return points, rows.Err()
}

func (s *Store) ListCostSubscriptions(ctx context.Context) ([]string, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT DISTINCT subscription_id FROM cost_data_points ORDER BY subscription_id`)
	if err != nil {
		return nil, fmt.Errorf("query cost subscriptions: %w", err)
	}
	defer rows.Close()

	subs := make([]string, 0)
	for rows.Next() {
		var sub string
		if err := rows.Scan(&sub); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
