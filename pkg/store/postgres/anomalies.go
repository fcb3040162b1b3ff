package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/de-tools/advisor-reports/pkg/models/domain"
	"github.com/de-tools/advisor-reports/pkg/store"
)

const anomalyColumns = `id, subscription_id, detected_at, date, expected_lower, expected_upper,
	actual_amount, severity, acknowledged, acknowledged_notes`

// CreateAnomalyIfAbsent relies on the partial unique index over open anomalies.
func (s *Store) CreateAnomalyIfAbsent(ctx context.Context, a *domain.Anomaly) (bool, error) {
	query := `
		INSERT INTO anomalies (` + anomalyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (subscription_id, date) WHERE NOT acknowledged DO NOTHING`

	res, err := s.conn(ctx).ExecContext(ctx, query,
		a.ID, a.SubscriptionID, a.DetectedAt, domain.Day(a.Date), a.ExpectedLower, a.ExpectedUpper,
		a.ActualAmount, string(a.Severity), a.Acknowledged, a.AcknowledgedNotes,
	)
	if err != nil {
		return false, fmt.Errorf("insert anomaly: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *Store) GetAnomaly(ctx context.Context, id string) (*domain.Anomaly, error) {
	query := `SELECT ` + anomalyColumns + ` FROM anomalies WHERE id = $1`
	a, err := scanAnomaly(s.conn(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get anomaly %s: %w", id, err)
	}
	return a, nil
}

func (s *Store) ListAnomalies(ctx context.Context, filter domain.AnomalyFilter) ([]*domain.Anomaly, error) {
	var (
		where []string
		args  []any
	)
	if filter.SubscriptionID != "" {
		args = append(args, filter.SubscriptionID)
		where = append(where, fmt.Sprintf("subscription_id = $%d", len(args)))
	}
	if filter.Acknowledged != nil {
		args = append(args, *filter.Acknowledged)
		where = append(where, fmt.Sprintf("acknowledged = $%d", len(args)))
	}

	query := `SELECT ` + anomalyColumns + ` FROM anomalies`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY detected_at, id`

	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list anomalies: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Anomaly, 0)
	for rows.Next() {
		a, err := scanAnomaly(rows)
		if err != nil {
			return nil, fmt.Errorf("scan anomaly: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) AcknowledgeAnomaly(ctx context.Context, id string, notes *string) (*domain.Anomaly, error) {
	query := `
		UPDATE anomalies SET acknowledged = TRUE, acknowledged_notes = $2
		WHERE id = $1 AND NOT acknowledged
		RETURNING ` + anomalyColumns
	a, err := scanAnomaly(s.conn(ctx).QueryRowContext(ctx, query, id, notes))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("acknowledge anomaly %s: %w", id, err)
	}
	if _, err := s.GetAnomaly(ctx, id); err != nil {
		return nil, err
	}
	return nil, store.ErrConflict
}

func scanAnomaly(row scanner) (*domain.Anomaly, error) {
	var (
		a        domain.Anomaly
		severity string
		notes    sql.NullString
	)
	err := row.Scan(
		&a.ID, &a.SubscriptionID, &a.DetectedAt, &a.Date, &a.ExpectedLower, &a.ExpectedUpper,
		&a.ActualAmount, &severity, &a.Acknowledged, &notes,
	)
	if err != nil {
		return nil, err
	}
	a.Date = domain.Day(a.Date)
	a.Severity = domain.Severity(severity)
	a.AcknowledgedNotes = nullString(notes)
	return &a, nil
}
