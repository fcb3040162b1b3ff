package terminal

import (
	"context"
	"fmt"
	"time"

	"github.com/de-tools/advisor-reports/pkg/models/domain"
	"github.com/de-tools/advisor-reports/pkg/services/events"
	"github.com/de-tools/advisor-reports/pkg/services/ingest"
	"github.com/de-tools/advisor-reports/pkg/services/normalize"
	"github.com/de-tools/advisor-reports/pkg/services/report"
	"github.com/de-tools/advisor-reports/pkg/services/scoring"
	"github.com/de-tools/advisor-reports/pkg/services/workflow"
	"github.com/de-tools/advisor-reports/pkg/store/memory"
	"golang.org/x/sync/errgroup"
)

// Pipeline runs a single CSV job through an in-memory scheduler.
type Pipeline struct {
	opener   ingest.FileOpener
	currency string
	timeout  time.Duration
}

func NewPipeline(opener ingest.FileOpener, currency string, timeout time.Duration) *Pipeline {
	if opener == nil {
		opener = ingest.OpenLocalFile
	}
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	return &Pipeline{opener: opener, currency: currency, timeout: timeout}
}

func (p *Pipeline) Generate(
	ctx context.Context,
	clientID, path string,
	reportType domain.ReportType,
) (*domain.Report, error) {
	sources, err := ingest.NewRegistry(ingest.NewCSVAdapter(p.opener))
	if err != nil {
		return nil, err
	}
	generator := report.NewGenerator(sources, normalize.NewNormalizer(p.currency), scoring.NewEngine(), report.Config{})

	finished := make(chan domain.JobEvent, 1)
	bus := events.NewBus()
	bus.Subscribe(func(_ context.Context, e domain.JobEvent) {
		select {
		case finished <- e:
		default:
		}
	})

	config := workflow.DefaultConfig()
	config.MaxConcurrentJobs = 1
	if p.timeout > 0 {
		config.JobTimeout = p.timeout
	}
	ctrl := workflow.NewController(workflow.Dependencies{
		Store:     memory.NewStore(),
		Generator: generator,
		Publisher: bus,
	}, config)

	runCtx, stop := context.WithCancel(ctx)
	g, runCtx := errgroup.WithContext(runCtx)
	g.Go(func() error { return ctrl.Run(runCtx) })
	defer func() {
		stop()
		_ = g.Wait()
	}()

	id, err := ctrl.Submit(ctx, clientID, domain.SourceKindCSVUpload, domain.SourceRef{FilePath: path}, reportType)
	if err != nil {
		return nil, err
	}

	var event domain.JobEvent
	select {
	case event = <-finished:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if event.Status != domain.JobStatusCompleted {
		job, err := ctrl.Status(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Error != nil {
			return nil, fmt.Errorf("job %s failed (%s): %s", id, job.Error.Kind, job.Error.Message)
		}
		return nil, fmt.Errorf("job %s ended as %s", id, job.Status)
	}
	return ctrl.GetReport(ctx, event.ResultReportID)
}
