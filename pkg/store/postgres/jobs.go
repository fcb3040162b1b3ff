package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/de-tools/advisor-reports/pkg/adapters"
	"github.com/de-tools/advisor-reports/pkg/models/domain"
	models "github.com/de-tools/advisor-reports/pkg/models/store"
	"github.com/de-tools/advisor-reports/pkg/store"
	"github.com/lib/pq"
)

const jobColumns = `id, client_id, source_kind, file_path, subscription_id,
	filter_category, filter_impact, filter_resource_group, report_type, status,
	attempts, created_at, started_at, completed_at, lease_expires_at,
	error_kind, error_message, result_report_id`

func (s *Store) CreateJob(ctx context.Context, job *domain.ReportJob) error {
	row := adapters.MapDomainJobToStore(job)
	query := `
		INSERT INTO report_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	_, err := s.conn(ctx).ExecContext(ctx, query,
		row.ID, row.ClientID, row.SourceKind, row.FilePath, row.SubscriptionID,
		row.FilterCategory, row.FilterImpact, row.FilterResourceGroup, row.ReportType, row.Status,
		row.Attempts, row.CreatedAt, row.StartedAt, row.CompletedAt, row.LeaseExpiresAt,
		row.ErrorKind, row.ErrorMessage, row.ResultReportID,
	)
	if isUniqueViolation(err) {
		return store.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*domain.ReportJob, error) {
	query := `SELECT ` + jobColumns + ` FROM report_jobs WHERE id = $1`
	job, err := scanJob(s.conn(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

func (s *Store) ListJobs(ctx context.Context, filter domain.JobFilter) ([]*domain.ReportJob, error) {
	var (
		where []string
		args  []any
	)
	if filter.ClientID != "" {
		args = append(args, filter.ClientID)
		where = append(where, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statuses = append(statuses, string(st))
		}
		args = append(args, pq.Array(statuses))
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}

	query := `SELECT ` + jobColumns + ` FROM report_jobs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*domain.ReportJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *Store) ClaimJob(ctx context.Context, id string, now, leaseUntil time.Time) (*domain.ReportJob, error) {
	query := `
		UPDATE report_jobs
		SET status = 'running', attempts = 1, started_at = $2, lease_expires_at = $3
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + jobColumns
	return s.transition(ctx, id, query, id, now, leaseUntil)
}

func (s *Store) ReclaimJob(ctx context.Context, id string, now, leaseUntil time.Time) (*domain.ReportJob, error) {
	query := `
		UPDATE report_jobs
		SET attempts = attempts + 1, lease_expires_at = $3
		WHERE id = $1 AND status = 'running' AND lease_expires_at < $2
		RETURNING ` + jobColumns
	return s.transition(ctx, id, query, id, now, leaseUntil)
}

func (s *Store) RetryJob(ctx context.Context, id string, attempt int, leaseUntil time.Time) (*domain.ReportJob, error) {
	query := `
		UPDATE report_jobs
		SET attempts = attempts + 1, lease_expires_at = $3
		WHERE id = $1 AND status = 'running' AND attempts = $2
		RETURNING ` + jobColumns
	return s.transition(ctx, id, query, id, attempt, leaseUntil)
}

// CompleteJob persists the report and flips the job to completed in one transaction.
func (s *Store) CompleteJob(
	ctx context.Context,
	id string,
	attempt int,
	report *domain.Report,
	now time.Time,
) (*domain.ReportJob, error) {
	var job *domain.ReportJob
	err := s.inTx(ctx, func(ctx context.Context) error {
		if err := s.insertReport(ctx, report); err != nil {
			return err
		}
		query := `
			UPDATE report_jobs
			SET status = 'completed', completed_at = $3, lease_expires_at = NULL, result_report_id = $4
			WHERE id = $1 AND status = 'running' AND attempts = $2
			RETURNING ` + jobColumns
		var err error
		job, err = s.transition(ctx, id, query, id, attempt, now, report.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *Store) FailJob(
	ctx context.Context,
	id string,
	attempt int,
	jobErr domain.JobError,
	now time.Time,
) (*domain.ReportJob, error) {
	query := `
		UPDATE report_jobs
		SET status = 'failed', completed_at = $3, lease_expires_at = NULL, error_kind = $4, error_message = $5
		WHERE id = $1 AND status = 'running' AND attempts = $2
		RETURNING ` + jobColumns
	return s.transition(ctx, id, query, id, attempt, now, string(jobErr.Kind), jobErr.Message)
}

// transition runs a conditional update; a miss is ErrNotFound or ErrConflict.
func (s *Store) transition(ctx context.Context, id, query string, args ...any) (*domain.ReportJob, error) {
	job, err := scanJob(s.conn(ctx).QueryRowContext(ctx, query, args...))
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update job %s: %w", id, err)
	}

	var exists bool
	err = s.conn(ctx).QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM report_jobs WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check job %s: %w", id, err)
	}
	if !exists {
		return nil, store.ErrNotFound
	}
	return nil, store.ErrConflict
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*domain.ReportJob, error) {
	var (
		j                                  models.Job
		startedAt, completedAt, leaseUntil sql.NullTime
		errKind, errMsg, resultID          sql.NullString
	)
	err := row.Scan(
		&j.ID, &j.ClientID, &j.SourceKind, &j.FilePath, &j.SubscriptionID,
		&j.FilterCategory, &j.FilterImpact, &j.FilterResourceGroup, &j.ReportType, &j.Status,
		&j.Attempts, &j.CreatedAt, &startedAt, &completedAt, &leaseUntil,
		&errKind, &errMsg, &resultID,
	)
	if err != nil {
		return nil, err
	}
	j.StartedAt = nullTime(startedAt)
	j.CompletedAt = nullTime(completedAt)
	j.LeaseExpiresAt = nullTime(leaseUntil)
	j.ErrorKind = nullString(errKind)
	j.ErrorMessage = nullString(errMsg)
	j.ResultReportID = nullString(resultID)
	return adapters.MapStoreJobToDomain(&j), nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
