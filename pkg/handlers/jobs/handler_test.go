package jobs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/de-tools/advisor-reports/pkg/models/domain"
	"github.com/de-tools/advisor-reports/pkg/services/workflow"
	"github.com/de-tools/advisor-reports/pkg/store"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) Submit(
	ctx context.Context,
	clientID string,
	kind domain.SourceKind,
	ref domain.SourceRef,
	reportType domain.ReportType,
) (string, error) {
	args := m.Called(ctx, clientID, kind, ref, reportType)
	return args.String(0), args.Error(1)
}

func (m *mockService) Status(ctx context.Context, jobID string) (*domain.ReportJob, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ReportJob), args.Error(1)
}

func (m *mockService) Cancel(ctx context.Context, jobID string) (*domain.ReportJob, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ReportJob), args.Error(1)
}

func (m *mockService) ListJobs(ctx context.Context, filter domain.JobFilter) ([]*domain.ReportJob, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]*domain.ReportJob), args.Error(1)
}

func (m *mockService) GetReport(ctx context.Context, reportID string) (*domain.Report, error) {
	args := m.Called(ctx, reportID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Report), args.Error(1)
}

func newRouter(svc Service) http.Handler {
	h := NewHandler(svc)
	r := chi.NewRouter()
	r.Post("/jobs", h.Submit)
	r.Get("/jobs", h.List)
	r.Get("/jobs/{id}", h.Get)
	r.Post("/jobs/{id}/cancel", h.Cancel)
	r.Get("/reports/{id}", h.GetReport)
	return r
}

func TestHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		path           string
		body           string
		setup          func(m *mockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:   "SubmitInvalidJob",
			method: http.MethodPost,
			path:   "/jobs",
			body:   `{"client_id":"","source_kind":"csv_upload","file_path":"a.csv","report_type":"cost"}`,
			setup: func(m *mockService) {
				m.On("Submit", mock.Anything, "", domain.SourceKindCSVUpload, mock.Anything, domain.ReportTypeCost).
					Return("", fmt.Errorf("%w: client id is required", workflow.ErrInvalidJob))
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"invalid job: client id is required"}`,
		},
		{
			name:           "SubmitUnknownField",
			method:         http.MethodPost,
			path:           "/jobs",
			body:           `{"client":"acme"}`,
			setup:          func(m *mockService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "ListUnknownStatus",
			method:         http.MethodGet,
			path:           "/jobs?status=done",
			setup:          func(m *mockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"unknown status done"}`,
		},
		{
			name:   "CancelFinished",
			method: http.MethodPost,
			path:   "/jobs/job-1/cancel",
			setup: func(m *mockService) {
				m.On("Cancel", mock.Anything, "job-1").Return(nil, workflow.ErrJobFinished)
			},
			expectedStatus: http.StatusConflict,
			expectedBody:   `{"error":"job already finished"}`,
		},
		{
			name:   "CancelNotOwned",
			method: http.MethodPost,
			path:   "/jobs/job-2/cancel",
			setup: func(m *mockService) {
				m.On("Cancel", mock.Anything, "job-2").Return(nil, workflow.ErrNotOwned)
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name:   "CancelRunning",
			method: http.MethodPost,
			path:   "/jobs/job-3/cancel",
			setup: func(m *mockService) {
				m.On("Cancel", mock.Anything, "job-3").Return(&domain.ReportJob{
					ID:     "job-3",
					Status: domain.JobStatusFailed,
					Error:  &domain.JobError{Kind: domain.ErrorKindCancelled, Message: "cancelled by operator"},
				}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:   "ReportStoreFailureHidesDetail",
			method: http.MethodGet,
			path:   "/reports/report-1",
			setup: func(m *mockService) {
				m.On("GetReport", mock.Anything, "report-1").Return(nil, errors.New("pq: connection reset"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"error":"internal server error"}`,
		},
		{
			name:   "StatusConflict",
			method: http.MethodGet,
			path:   "/jobs/job-4",
			setup: func(m *mockService) {
				m.On("Status", mock.Anything, "job-4").Return(nil, store.ErrConflict)
			},
			expectedStatus: http.StatusConflict,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := new(mockService)
			tc.setup(svc)

			var req *http.Request
			if tc.body != "" {
				req = httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			} else {
				req = httptest.NewRequest(tc.method, tc.path, nil)
			}
			rec := httptest.NewRecorder()
			newRouter(svc).ServeHTTP(rec, req)

			assert.Equal(t, tc.expectedStatus, rec.Code)
			if tc.expectedBody != "" {
				assert.JSONEq(t, tc.expectedBody, rec.Body.String())
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestHandler_SubmitSetsLocation(t *testing.T) {
	svc := new(mockService)
	svc.On("Submit", mock.Anything, "acme", domain.SourceKindAzureAPI,
		domain.SourceRef{SubscriptionID: "sub-1", Filters: domain.AzureFilters{Category: domain.CategoryCost}},
		domain.ReportTypeExecutive).
		Return("job-9", nil)

	body := `{"client_id":"acme","source_kind":"azure_api","subscription_id":"sub-1",` +
		`"filters":{"category":"Cost"},"report_type":"executive"}`
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(body)))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "/api/v1/jobs/job-9", rec.Header().Get("Location"))
	assert.JSONEq(t, `{"job_id":"job-9"}`, rec.Body.String())
}
