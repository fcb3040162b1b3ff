package workflow

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/de-tools/advisor-reports/pkg/models/domain"
	"github.com/de-tools/advisor-reports/pkg/store"
	"github.com/rs/zerolog"
)

// Runner executes one claimed job until it reaches a terminal status or the
// process gives it up.
type Runner struct {
	ctrl   *DefaultController
	cancel context.CancelCauseFunc
	done   chan struct{}
	once   sync.Once
}

func newRunner(ctrl *DefaultController, cancel context.CancelCauseFunc) *Runner {
	return &Runner{
		ctrl:   ctrl,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

func (r *Runner) Done() <-chan struct{} {
	return r.done
}

func (r *Runner) markDone() {
	r.once.Do(func() { close(r.done) })
}

// Run drives the attempts of a Running job. Each attempt gets JobTimeout;
// an attempt that runs out of time is retried in place until 1+MaxRetries
// attempts are used. Other failures are terminal.
func (r *Runner) Run(ctx context.Context, job *domain.ReportJob) {
	ctrl := r.ctrl
	logger := zerolog.Ctx(ctx).With().Str("client_id", job.ClientID).Logger()
	ctx = logger.WithContext(ctx)

	ctrl.metrics.RunningDelta(1)
	defer ctrl.metrics.RunningDelta(-1)

	for {
		logger.Info().Int("attempt", job.Attempts).Msg("job attempt started")

		attemptCtx, cancel := context.WithTimeout(ctx, ctrl.config.JobTimeout)
		report, err := r.attempt(attemptCtx, job)
		expired := errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
		cancel()

		switch {
		case err == nil:
			r.settle(ctx, job, func(ctx context.Context) (*domain.ReportJob, error) {
				return ctrl.complete(ctx, job, report)
			})
			return

		case ctx.Err() != nil:
			if errors.Is(context.Cause(ctx), ErrCancelRequested) {
				logger.Info().Msg("job cancelled")
				r.settle(context.WithoutCancel(ctx), job, func(ctx context.Context) (*domain.ReportJob, error) {
					return ctrl.fail(ctx, job, cancelledError())
				})
				return
			}
			logger.Warn().Msg("job interrupted by shutdown, leaving it to lease expiry")
			return

		case expired && job.Attempts < ctrl.maxAttempts():
			next, err := ctrl.store.RetryJob(ctx, job.ID, job.Attempts, ctrl.now().Add(ctrl.leaseDuration()))
			if err != nil {
				logger.Error().Err(err).Msg("failed to start retry attempt")
				return
			}
			ctrl.metrics.JobRetried()
			logger.Warn().
				Int("attempt", job.Attempts).
				Dur("timeout", ctrl.config.JobTimeout).
				Msg("job attempt timed out, retrying")
			job = next

		case expired:
			r.settle(ctx, job, func(ctx context.Context) (*domain.ReportJob, error) {
				return ctrl.fail(ctx, job, domain.JobError{
					Kind: domain.ErrorKindTimeout,
					Message: fmt.Sprintf("report generation exceeded %s on each of %d attempts",
						ctrl.config.JobTimeout, job.Attempts),
				})
			})
			return

		default:
			logger.Warn().Err(err).Str("error_kind", string(domain.KindOf(err))).Msg("job attempt failed")
			r.settle(ctx, job, func(ctx context.Context) (*domain.ReportJob, error) {
				return ctrl.fail(ctx, job, *domain.ToJobError(err))
			})
			return
		}
	}
}

// attempt runs the generator once. A panic is converted into an InternalError.
func (r *Runner) attempt(ctx context.Context, job *domain.ReportJob) (report *domain.Report, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			zerolog.Ctx(ctx).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("report generation panicked")
			report = nil
			err = domain.NewError(domain.ErrorKindInternal, "", fmt.Errorf("panic: %v", rec))
		}
	}()
	return r.ctrl.generator.Generate(ctx, job)
}

// settle applies a terminal transition. If persisting a completed report fails
// the job is failed instead, so no job stays Completed without its Report.
func (r *Runner) settle(
	ctx context.Context,
	job *domain.ReportJob,
	transition func(ctx context.Context) (*domain.ReportJob, error),
) {
	logger := zerolog.Ctx(ctx)

	_, err := transition(ctx)
	switch {
	case err == nil:
		return
	case errors.Is(err, store.ErrConflict):
		logger.Warn().Msg("job moved on before this attempt finished, result discarded")
		return
	}

	logger.Error().Err(err).Msg("failed to record job outcome")
	if job.Status != domain.JobStatusRunning {
		return
	}
	_, ferr := r.ctrl.fail(ctx, job, domain.JobError{
		Kind:    domain.ErrorKindInternal,
		Message: "report generation failed due to an internal error",
	})
	if ferr != nil && !errors.Is(ferr, store.ErrConflict) {
		logger.Error().Err(ferr).Msg("failed to mark job failed")
	}
}
