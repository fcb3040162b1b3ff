package jobs

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/de-tools/advisor-reports/pkg/adapters"
	"github.com/de-tools/advisor-reports/pkg/handlers"
	"github.com/de-tools/advisor-reports/pkg/models/api"
	"github.com/de-tools/advisor-reports/pkg/models/domain"
	"github.com/de-tools/advisor-reports/pkg/services/workflow"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Service is the part of the job controller exposed over HTTP.
type Service interface {
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
}

type Handler struct {
	jobs Service
}

func NewHandler(jobs Service) *Handler {
	return &Handler{jobs: jobs}
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitJobRequest
	if err := handlers.DecodeJSON(r, &req); err != nil {
		handlers.WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	clientID, kind, ref, reportType := adapters.MapSubmitRequestApiToDomain(req)
	id, err := h.jobs.Submit(r.Context(), clientID, kind, ref, reportType)
	if errors.Is(err, workflow.ErrInvalidJob) {
		handlers.WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		handlers.WriteStoreError(w, r, err, "job")
		return
	}

	w.Header().Set("Location", "/api/v1/jobs/"+id)
	handlers.WriteJSON(w, r, http.StatusAccepted, api.SubmitJobResponse{JobID: id})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter := domain.JobFilter{ClientID: r.URL.Query().Get("client_id")}
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := domain.JobStatus(strings.TrimSpace(s))
			switch status {
			case domain.JobStatusPending, domain.JobStatusRunning, domain.JobStatusCompleted, domain.JobStatusFailed:
				filter.Statuses = append(filter.Statuses, status)
			default:
				handlers.WriteError(w, r, http.StatusBadRequest, "unknown status "+string(status))
				return
			}
		}
	}

	jobs, err := h.jobs.ListJobs(r.Context(), filter)
	if err != nil {
		handlers.WriteStoreError(w, r, err, "job")
		return
	}

	response := api.JobsResponse{Jobs: make([]api.Job, 0, len(jobs))}
	for _, j := range jobs {
		response.Jobs = append(response.Jobs, adapters.MapJobDomainToApi(j))
	}
	handlers.WriteJSON(w, r, http.StatusOK, response)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handlers.WriteStoreError(w, r, err, "job")
		return
	}
	handlers.WriteJSON(w, r, http.StatusOK, adapters.MapJobDomainToApi(job))
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	logger := zerolog.Ctx(r.Context())

	job, err := h.jobs.Cancel(r.Context(), id)
	switch {
	case errors.Is(err, workflow.ErrJobFinished):
		handlers.WriteError(w, r, http.StatusConflict, "job already finished")
		return
	case errors.Is(err, workflow.ErrNotOwned):
		handlers.WriteError(w, r, http.StatusConflict, "job is running on another instance and cannot be cancelled here")
		return
	case err != nil:
		handlers.WriteStoreError(w, r, err, "job")
		return
	}

	logger.Info().Str("job_id", id).Str("status", string(job.Status)).Msg("job cancellation handled")
	handlers.WriteJSON(w, r, http.StatusOK, adapters.MapJobDomainToApi(job))
}

func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.jobs.GetReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handlers.WriteStoreError(w, r, err, "report")
		return
	}
	handlers.WriteJSON(w, r, http.StatusOK, adapters.MapReportDomainToApi(report))
}
