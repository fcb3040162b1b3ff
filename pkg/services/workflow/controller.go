// Package workflow schedules report jobs onto a bounded worker pool and owns
// every job status transition.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/de-tools/advisor-reports/pkg/models/domain"
	"github.com/de-tools/advisor-reports/pkg/observability"
	"github.com/de-tools/advisor-reports/pkg/services/events"
	"github.com/de-tools/advisor-reports/pkg/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInvalidJob      = errors.New("invalid job")
	ErrJobFinished     = errors.New("job already finished")
	ErrNotOwned        = errors.New("job is running on another worker")
	ErrCancelRequested = errors.New("cancellation requested")
)

type Controller interface {
	Submit(
		ctx context.Context,
		clientID string,
		kind domain.SourceKind,
		ref domain.SourceRef,
		reportType domain.ReportType,
	) (string, error)
	Status(ctx context.Context, jobID string) (*domain.ReportJob, error)
	Cancel(ctx context.Context, jobID string) (*domain.ReportJob, error)
	ListJobs(ctx context.Context, filter domain.JobFilter) ([]*domain.ReportJob, error)
	GetReport(ctx context.Context, reportID string) (*domain.Report, error)
	Run(ctx context.Context) error
}

type Generator interface {
	Generate(ctx context.Context, job *domain.ReportJob) (*domain.Report, error)
}

type JobRepository interface {
	store.JobStore
	store.ReportStore
}

type Config struct {
	MaxConcurrentJobs int
	JobTimeout        time.Duration
	MaxRetries        int
	// LeaseGrace is added to JobTimeout to get the claim lease.
	LeaseGrace   time.Duration
	ReapInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxConcurrentJobs: 4,
		JobTimeout:        10 * time.Minute,
		MaxRetries:        2,
		LeaseGrace:        30 * time.Second,
		ReapInterval:      30 * time.Second,
	}
}

type Dependencies struct {
	Store     JobRepository
	Generator Generator
	Publisher events.Publisher
	Metrics   *observability.Metrics
}

type DefaultController struct {
	store     JobRepository
	generator Generator
	publisher events.Publisher
	metrics   *observability.Metrics
	config    Config
	queue     *jobQueue
	now       func() time.Time
	newID     func() string

	mu      sync.Mutex
	runners map[string]*Runner
}

func NewController(deps Dependencies, config Config) *DefaultController {
	defaults := DefaultConfig()
	if config.MaxConcurrentJobs <= 0 {
		config.MaxConcurrentJobs = defaults.MaxConcurrentJobs
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = defaults.JobTimeout
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.ReapInterval <= 0 {
		config.ReapInterval = defaults.ReapInterval
	}

	return &DefaultController{
		store:     deps.Store,
		generator: deps.Generator,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		config:    config,
		queue:     newJobQueue(),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
		runners:   make(map[string]*Runner),
	}
}

// Submit persists a Pending job and queues it. It never blocks on worker availability.
func (ctrl *DefaultController) Submit(
	ctx context.Context,
	clientID string,
	kind domain.SourceKind,
	ref domain.SourceRef,
	reportType domain.ReportType,
) (string, error) {
	if err := validateSubmission(clientID, kind, ref, reportType); err != nil {
		return "", err
	}

	job := &domain.ReportJob{
		ID:         ctrl.newID(),
		ClientID:   clientID,
		SourceKind: kind,
		SourceRef:  ref,
		ReportType: reportType,
		Status:     domain.JobStatusPending,
		CreatedAt:  ctrl.now(),
	}
	if err := ctrl.store.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	ctrl.queue.Push(queueItem{jobID: job.ID})
	ctrl.metrics.JobSubmitted()
	ctrl.metrics.SetQueueDepth(ctrl.queue.Len())

	zerolog.Ctx(ctx).Info().
		Str("job_id", job.ID).
		Str("client_id", clientID).
		Str("source_kind", string(kind)).
		Msg("job submitted")
	return job.ID, nil
}

func (ctrl *DefaultController) Status(ctx context.Context, jobID string) (*domain.ReportJob, error) {
	return ctrl.store.GetJob(ctx, jobID)
}

func (ctrl *DefaultController) ListJobs(ctx context.Context, filter domain.JobFilter) ([]*domain.ReportJob, error) {
	return ctrl.store.ListJobs(ctx, filter)
}

func (ctrl *DefaultController) GetReport(ctx context.Context, reportID string) (*domain.Report, error) {
	return ctrl.store.GetReport(ctx, reportID)
}

// Cancel stops a job. A Pending job is claimed and failed right away; a job
// running in this process is interrupted at its next batch boundary and Cancel
// waits for it to settle.
func (ctrl *DefaultController) Cancel(ctx context.Context, jobID string) (*domain.ReportJob, error) {
	for range 3 {
		if runner := ctrl.lookup(jobID); runner != nil {
			runner.cancel(ErrCancelRequested)
			select {
			case <-runner.Done():
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return ctrl.store.GetJob(ctx, jobID)
		}

		job, err := ctrl.store.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		switch {
		case job.Status.Terminal():
			return job, ErrJobFinished
		case job.Status == domain.JobStatusRunning:
			if ctrl.lookup(jobID) != nil {
				continue
			}
			return job, ErrNotOwned
		}

		ctrl.queue.Remove(jobID)
		ctrl.metrics.SetQueueDepth(ctrl.queue.Len())

		now := ctrl.now()
		claimed, err := ctrl.store.ClaimJob(ctx, jobID, now, now.Add(ctrl.leaseDuration()))
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("claim job for cancellation: %w", err)
		}
		return ctrl.fail(ctx, claimed, cancelledError())
	}
	return ctrl.store.GetJob(ctx, jobID)
}

// Run starts the workers and the lease reaper and blocks until ctx is done.
func (ctrl *DefaultController) Run(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)

	if err := ctrl.recoverJobs(ctx); err != nil {
		return fmt.Errorf("recover jobs: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	for worker := range ctrl.config.MaxConcurrentJobs {
		g.Go(func() error {
			ctrl.work(ctx, worker)
			return nil
		})
	}
	g.Go(func() error {
		ctrl.reapLoop(ctx)
		return nil
	})

	logger.Info().
		Int("workers", ctrl.config.MaxConcurrentJobs).
		Dur("job_timeout", ctrl.config.JobTimeout).
		Int("max_retries", ctrl.config.MaxRetries).
		Msg("job scheduler started")

	err := g.Wait()
	logger.Info().Msg("job scheduler stopped")
	return err
}

func (ctrl *DefaultController) recoverJobs(ctx context.Context) error {
	pending, err := ctrl.store.ListJobs(ctx, domain.JobFilter{Statuses: []domain.JobStatus{domain.JobStatusPending}})
	if err != nil {
		return err
	}
	for _, job := range pending {
		if !ctrl.queue.Contains(job.ID) {
			ctrl.queue.Push(queueItem{jobID: job.ID})
		}
	}
	ctrl.metrics.SetQueueDepth(ctrl.queue.Len())
	if len(pending) > 0 {
		zerolog.Ctx(ctx).Info().Int("jobs", len(pending)).Msg("re-queued pending jobs")
	}
	return ctrl.reap(ctx)
}

func (ctrl *DefaultController) work(ctx context.Context, worker int) {
	logger := zerolog.Ctx(ctx).With().Int("worker", worker).Logger()
	ctx = logger.WithContext(ctx)

	for {
		item, ok := ctrl.queue.Pop(ctx)
		if !ok {
			return
		}
		ctrl.metrics.SetQueueDepth(ctrl.queue.Len())
		ctrl.execute(ctx, item)
	}
}

// execute claims the job with the store's compare-and-set and runs it. Losing
// the claim means another worker owns the job, so the item is dropped.
func (ctrl *DefaultController) execute(ctx context.Context, item queueItem) {
	logger := zerolog.Ctx(ctx).With().Str("job_id", item.jobID).Logger()

	jobCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	runner, ok := ctrl.register(item.jobID, cancel)
	if !ok {
		logger.Debug().Msg("job already executing in this process")
		return
	}
	defer ctrl.unregister(item.jobID, runner)

	now := ctrl.now()
	lease := now.Add(ctrl.leaseDuration())

	var (
		job *domain.ReportJob
		err error
	)
	if item.reclaim {
		job, err = ctrl.store.ReclaimJob(ctx, item.jobID, now, lease)
	} else {
		job, err = ctrl.store.ClaimJob(ctx, item.jobID, now, lease)
	}

	switch {
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrNotFound):
		logger.Debug().Msg("job claimed elsewhere, moving on")
		return
	case err != nil:
		logger.Error().Err(err).Msg("failed to claim job, re-queueing")
		time.AfterFunc(ctrl.config.ReapInterval, func() { ctrl.queue.Push(item) })
		return
	}

	if item.reclaim {
		ctrl.metrics.JobReclaimed()
		logger.Warn().Int("attempt", job.Attempts).Msg("reclaimed job with expired lease")
	}
	runner.Run(logger.WithContext(jobCtx), job)
}

func (ctrl *DefaultController) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(ctrl.config.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ctrl.reap(ctx); err != nil {
				zerolog.Ctx(ctx).Error().Err(err).Msg("lease reaper failed")
			}
		}
	}
}

// reap re-queues Running jobs whose lease expired, or fails them once every
// attempt has been used.
func (ctrl *DefaultController) reap(ctx context.Context) error {
	running, err := ctrl.store.ListJobs(ctx, domain.JobFilter{Statuses: []domain.JobStatus{domain.JobStatusRunning}})
	if err != nil {
		return fmt.Errorf("list running jobs: %w", err)
	}

	now := ctrl.now()
	for _, job := range running {
		if job.LeaseExpiresAt == nil || !job.LeaseExpiresAt.Before(now) || ctrl.lookup(job.ID) != nil {
			continue
		}
		if job.Attempts >= ctrl.maxAttempts() {
			_, err := ctrl.fail(ctx, job, domain.JobError{
				Kind:    domain.ErrorKindTimeout,
				Message: fmt.Sprintf("report generation did not finish after %d attempts", job.Attempts),
			})
			if err != nil && !errors.Is(err, store.ErrConflict) {
				zerolog.Ctx(ctx).Error().Err(err).Str("job_id", job.ID).Msg("failed to expire job")
			}
			continue
		}
		if !ctrl.queue.Contains(job.ID) {
			ctrl.queue.Push(queueItem{jobID: job.ID, reclaim: true})
		}
	}
	ctrl.metrics.SetQueueDepth(ctrl.queue.Len())
	return nil
}

func (ctrl *DefaultController) complete(ctx context.Context, job *domain.ReportJob, report *domain.Report) (*domain.ReportJob, error) {
	done, err := ctrl.store.CompleteJob(ctx, job.ID, job.Attempts, report, ctrl.now())
	if err != nil {
		return nil, err
	}
	ctrl.finished(ctx, done)
	return done, nil
}

func (ctrl *DefaultController) fail(ctx context.Context, job *domain.ReportJob, jobErr domain.JobError) (*domain.ReportJob, error) {
	failed, err := ctrl.store.FailJob(ctx, job.ID, job.Attempts, jobErr, ctrl.now())
	if err != nil {
		return nil, err
	}
	ctrl.finished(ctx, failed)
	return failed, nil
}

func (ctrl *DefaultController) finished(ctx context.Context, job *domain.ReportJob) {
	kind := ""
	if job.Error != nil {
		kind = string(job.Error.Kind)
	}
	ctrl.metrics.JobFinished(string(job.Status), kind, job.GenerationTime())

	zerolog.Ctx(ctx).Info().
		Str("job_id", job.ID).
		Str("status", string(job.Status)).
		Str("error_kind", kind).
		Int("attempts", job.Attempts).
		Msg("job finished")

	if ctrl.publisher != nil {
		ctrl.publisher.Publish(ctx, job.Event())
	}
}

func (ctrl *DefaultController) register(jobID string, cancel context.CancelCauseFunc) (*Runner, bool) {
	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()

	if _, exists := ctrl.runners[jobID]; exists {
		return nil, false
	}
	runner := newRunner(ctrl, cancel)
	ctrl.runners[jobID] = runner
	return runner, true
}

func (ctrl *DefaultController) unregister(jobID string, runner *Runner) {
	ctrl.mu.Lock()
	delete(ctrl.runners, jobID)
	ctrl.mu.Unlock()
	runner.markDone()
}

func (ctrl *DefaultController) lookup(jobID string) *Runner {
	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	return ctrl.runners[jobID]
}

func (ctrl *DefaultController) leaseDuration() time.Duration {
	return ctrl.config.JobTimeout + ctrl.config.LeaseGrace
}

func (ctrl *DefaultController) maxAttempts() int {
	return 1 + ctrl.config.MaxRetries
}

func cancelledError() domain.JobError {
	return domain.JobError{Kind: domain.ErrorKindCancelled, Message: "report generation was cancelled"}
}

func validateSubmission(clientID string, kind domain.SourceKind, ref domain.SourceRef, reportType domain.ReportType) error {
	if strings.TrimSpace(clientID) == "" {
		return fmt.Errorf("%w: client id is required", ErrInvalidJob)
	}
	switch kind {
	case domain.SourceKindCSVUpload:
		if ref.FilePath == "" {
			return fmt.Errorf("%w: csv uploads need a file path", ErrInvalidJob)
		}
	case domain.SourceKindAzureAPI:
		if ref.SubscriptionID == "" {
			return fmt.Errorf("%w: azure sources need a subscription id", ErrInvalidJob)
		}
	default:
		return fmt.Errorf("%w: unsupported source kind %q", ErrInvalidJob, kind)
	}
	if !reportType.Valid() {
		return fmt.Errorf("%w: unsupported report type %q", ErrInvalidJob, reportType)
	}
	if c := ref.Filters.Category; c != "" && !c.Valid() {
		return fmt.Errorf("%w: unknown category filter %q", ErrInvalidJob, c)
	}
	if i := ref.Filters.Impact; i != "" && !i.Valid() {
		return fmt.Errorf("%w: unknown impact filter %q", ErrInvalidJob, i)
	}
	return nil
}
