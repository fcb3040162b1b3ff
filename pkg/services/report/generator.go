// Package report turns a job's source into a scored, aggregated Report draft.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/de-tools/advisor-reports/pkg/adapters"
	"github.com/de-tools/advisor-reports/pkg/models/domain"
	"github.com/de-tools/advisor-reports/pkg/services/ingest"
	"github.com/de-tools/advisor-reports/pkg/services/normalize"
	"github.com/de-tools/advisor-reports/pkg/services/scoring"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultBatchSize = 100

type Config struct {
	// BatchSize is the number of rows processed between cancellation checks.
	BatchSize int
}

type Generator struct {
	sources    ingest.Registry
	normalizer *normalize.Normalizer
	scorer     *scoring.Engine
	config     Config
	tracer     trace.Tracer
	now        func() time.Time
	newID      func() string
}

func NewGenerator(
	sources ingest.Registry,
	normalizer *normalize.Normalizer,
	scorer *scoring.Engine,
	config Config,
) *Generator {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	return &Generator{
		sources:    sources,
		normalizer: normalizer,
		scorer:     scorer,
		config:     config,
		tracer:     otel.Tracer("github.com/de-tools/advisor-reports/pkg/services/report"),
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Generate streams the job's source through the normalizer and scoring engine.
// Nothing is persisted; on error no report is returned.
func (g *Generator) Generate(ctx context.Context, job *domain.ReportJob) (report *domain.Report, err error) {
	ctx, span := g.tracer.Start(ctx, "report.generate", trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.source_kind", string(job.SourceKind)),
		attribute.String("job.report_type", string(job.ReportType)),
		attribute.Int("job.attempt", job.Attempts),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(domain.KindOf(err)))
		}
		span.End()
	}()

	logger := zerolog.Ctx(ctx).With().Str("job_id", job.ID).Logger()

	source, err := g.sources.Resolve(job.SourceKind)
	if err != nil {
		return nil, domain.NewError(domain.ErrorKindInvalidFormat, "unsupported source kind", err)
	}

	recs := make([]domain.Recommendation, 0, g.config.BatchSize)
	for row, err := range source.Fetch(ctx, job.SourceRef) {
		if err != nil {
			return nil, err
		}
		recs = append(recs, g.scorer.Score(g.normalizer.Normalize(row)))

		if len(recs)%g.config.BatchSize == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			logger.Debug().Int("rows", len(recs)).Msg("batch processed")
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report = &domain.Report{
		ID:              g.newID(),
		JobID:           job.ID,
		ClientID:        job.ClientID,
		ReportType:      job.ReportType,
		Recommendations: recs,
		Aggregates:      domain.ComputeAggregates(recs),
		GeneratedAt:     g.now().UTC(),
	}

	body, err := json.Marshal(adapters.MapReportDomainToApi(report))
	if err != nil {
		return nil, fmt.Errorf("measure report: %w", err)
	}
	report.SizeBytes = int64(len(body))

	span.SetAttributes(attribute.Int("report.recommendations", len(recs)))
	logger.Info().
		Int("recommendations", len(recs)).
		Int64("size_bytes", report.SizeBytes).
		Msg("report generated")
	return report, nil
}
