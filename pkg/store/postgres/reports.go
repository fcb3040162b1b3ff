package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/de-tools/advisor-reports/pkg/adapters"
	"github.com/de-tools/advisor-reports/pkg/models/domain"
	models "github.com/de-tools/advisor-reports/pkg/models/store"
	"github.com/de-tools/advisor-reports/pkg/store"
)

const reportColumns = `id, job_id, client_id, report_type, recommendations, generated_at, size_bytes`

func (s *Store) insertReport(ctx context.Context, report *domain.Report) error {
	row := adapters.MapReportDomainToStore(report)
	recs, err := json.Marshal(row.Recommendations)
	if err != nil {
		return fmt.Errorf("marshal recommendations: %w", err)
	}

	query := `INSERT INTO reports (` + reportColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = s.conn(ctx).ExecContext(ctx, query,
		row.ID, row.JobID, row.ClientID, row.ReportType, recs, row.GeneratedAt, row.SizeBytes,
	)
	if isUniqueViolation(err) {
		return store.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (s *Store) GetReport(ctx context.Context, id string) (*domain.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = $1`
	report, err := scanReport(s.conn(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report %s: %w", id, err)
	}
	return report, nil
}

func (s *Store) ListReports(ctx context.Context, clientID string) ([]*domain.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE ($1 = '' OR client_id = $1) ORDER BY generated_at, id`
	rows, err := s.conn(ctx).QueryContext(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	reports := make([]*domain.Report, 0)
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

func scanReport(row scanner) (*domain.Report, error) {
	var (
		r   models.Report
		raw []byte
	)
	if err := row.Scan(&r.ID, &r.JobID, &r.ClientID, &r.ReportType, &raw, &r.GeneratedAt, &r.SizeBytes); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &r.Recommendations); err != nil {
		return nil, fmt.Errorf("unmarshal recommendations: %w", err)
	}
	return adapters.MapReportStoreToDomain(&r), nil
}
