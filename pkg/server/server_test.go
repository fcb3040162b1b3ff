package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/de-tools/advisor-reports/pkg/models/api"
	"github.com/de-tools/advisor-reports/pkg/models/domain"
	"github.com/de-tools/advisor-reports/pkg/services/costs"
	"github.com/de-tools/advisor-reports/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockJobs struct {
	mock.Mock
}

func (m *mockJobs) Submit(
	ctx context.Context,
	clientID string,
	kind domain.SourceKind,
	ref domain.SourceRef,
	reportType domain.ReportType,
) (string, error) {
	args := m.Called(ctx, clientID, kind, ref, reportType)
	return args.String(0), args.Error(1)
}

func (m *mockJobs) Status(ctx context.Context, jobID string) (*domain.ReportJob, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ReportJob), args.Error(1)
}

func (m *mockJobs) Cancel(ctx context.Context, jobID string) (*domain.ReportJob, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ReportJob), args.Error(1)
}

func (m *mockJobs) ListJobs(ctx context.Context, filter domain.JobFilter) ([]*domain.ReportJob, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]*domain.ReportJob), args.Error(1)
}

func (m *mockJobs) GetReport(ctx context.Context, reportID string) (*domain.Report, error) {
	args := m.Called(ctx, reportID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Report), args.Error(1)
}

type mockAnalytics struct {
	mock.Mock
}

func (m *mockAnalytics) Dashboard(ctx context.Context, filter domain.AnalyticsFilter) (domain.DashboardMetrics, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(domain.DashboardMetrics), args.Error(1)
}

func (m *mockAnalytics) Trends(
	ctx context.Context,
	period domain.TrendPeriod,
	filter domain.AnalyticsFilter,
) ([]domain.TrendPoint, error) {
	args := m.Called(ctx, period, filter)
	return args.Get(0).([]domain.TrendPoint), args.Error(1)
}

func (m *mockAnalytics) TopUsers(
	ctx context.Context,
	by domain.TopUsersBy,
	limit int,
	filter domain.AnalyticsFilter,
) ([]domain.UserActivity, error) {
	args := m.Called(ctx, by, limit, filter)
	return args.Get(0).([]domain.UserActivity), args.Error(1)
}

func (m *mockAnalytics) CostInsights(ctx context.Context, filter domain.AnalyticsFilter) (domain.CostInsights, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(domain.CostInsights), args.Error(1)
}

func (m *mockAnalytics) Refresh(ctx context.Context) {
	m.Called(ctx)
}

type mockInsights struct {
	mock.Mock
}

func (m *mockInsights) GetAnomalies(ctx context.Context, filter domain.AnomalyFilter) ([]*domain.Anomaly, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]*domain.Anomaly), args.Error(1)
}

func (m *mockInsights) AcknowledgeAnomaly(ctx context.Context, id string, notes *string) (*domain.Anomaly, error) {
	args := m.Called(ctx, id, notes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Anomaly), args.Error(1)
}

func (m *mockInsights) GetForecasts(ctx context.Context, subscriptionID string) ([]*domain.Forecast, error) {
	args := m.Called(ctx, subscriptionID)
	return args.Get(0).([]*domain.Forecast), args.Error(1)
}

type mockIngestor struct {
	mock.Mock
}

func (m *mockIngestor) Ingest(ctx context.Context, points []domain.CostDataPoint) (costs.Result, error) {
	args := m.Called(ctx, points)
	return args.Get(0).(costs.Result), args.Error(1)
}

func TestWebAPI_Endpoints(t *testing.T) {
	logger := zerolog.New(zerolog.NewTestWriter(t))

	mockJob := new(mockJobs)
	mockStats := new(mockAnalytics)
	mockInsight := new(mockInsights)
	mockCosts := new(mockIngestor)

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "advisor_test_total"}))

	router := ConfigureRouter(&logger, Dependencies{
		Jobs:      mockJob,
		Analytics: mockStats,
		Insights:  mockInsight,
		Costs:     mockCosts,
		Health:    func(context.Context) error { return nil },
		Gatherer:  registry,
	})
	testServer := httptest.NewServer(router)
	defer testServer.Close()

	created := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	reportID := "report-1"
	notes := "expected migration spike"

	tests := []struct {
		name           string
		method         string
		path           string
		body           string
		setupMocks     func()
		expectedStatus int
		expected       interface{}
		parseResponse  func([]byte) (interface{}, error)
	}{
		{
			name:   "SubmitJob",
			method: http.MethodPost,
			path:   "/api/v1/jobs",
			body:   `{"client_id":"acme","source_kind":"csv_upload","file_path":"march.csv","report_type":"cost"}`,
			setupMocks: func() {
				mockJob.On("Submit", mock.Anything, "acme", domain.SourceKindCSVUpload,
					domain.SourceRef{FilePath: "march.csv"}, domain.ReportTypeCost).
					Return("job-1", nil)
			},
			expectedStatus: http.StatusAccepted,
			expected:       api.SubmitJobResponse{JobID: "job-1"},
			parseResponse:  unmarshalResponse[api.SubmitJobResponse](),
		},
		{
			name:           "SubmitJob_MalformedBody",
			method:         http.MethodPost,
			path:           "/api/v1/jobs",
			body:           `{"client_id":`,
			setupMocks:     func() {},
			expectedStatus: http.StatusBadRequest,
			expected:       true,
			parseResponse:  hasError,
		},
		{
			name:   "ListJobs",
			method: http.MethodGet,
			path:   "/api/v1/jobs?client_id=acme&status=completed",
			setupMocks: func() {
				mockJob.On("ListJobs", mock.Anything, domain.JobFilter{
					ClientID: "acme",
					Statuses: []domain.JobStatus{domain.JobStatusCompleted},
				}).Return([]*domain.ReportJob{{
					ID:             "job-1",
					ClientID:       "acme",
					SourceKind:     domain.SourceKindCSVUpload,
					ReportType:     domain.ReportTypeCost,
					Status:         domain.JobStatusCompleted,
					Attempts:       1,
					CreatedAt:      created,
					ResultReportID: &reportID,
				}}, nil)
			},
			expectedStatus: http.StatusOK,
			expected: api.JobsResponse{Jobs: []api.Job{{
				ID:             "job-1",
				ClientID:       "acme",
				SourceKind:     "csv_upload",
				ReportType:     "cost",
				Status:         "completed",
				Attempts:       1,
				CreatedAt:      created,
				ResultReportID: &reportID,
			}}},
			parseResponse: unmarshalResponse[api.JobsResponse](),
		},
		{
			name:   "GetJob_NotFound",
			method: http.MethodGet,
			path:   "/api/v1/jobs/missing",
			setupMocks: func() {
				mockJob.On("Status", mock.Anything, "missing").Return(nil, store.ErrNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expected:       api.ErrorResponse{Error: "job not found"},
			parseResponse:  unmarshalResponse[api.ErrorResponse](),
		},
		{
			name:   "GetReport",
			method: http.MethodGet,
			path:   "/api/v1/reports/report-1",
			setupMocks: func() {
				mockJob.On("GetReport", mock.Anything, "report-1").Return(&domain.Report{
					ID:          "report-1",
					JobID:       "job-1",
					ClientID:    "acme",
					ReportType:  domain.ReportTypeCost,
					GeneratedAt: created,
					Aggregates:  domain.ComputeAggregates(nil),
				}, nil)
			},
			expectedStatus: http.StatusOK,
			expected:       "report-1",
			parseResponse: func(data []byte) (interface{}, error) {
				var r api.Report
				err := json.Unmarshal(data, &r)
				return r.ID, err
			},
		},
		{
			name:   "Dashboard",
			method: http.MethodGet,
			path:   "/api/v1/analytics/dashboard?client_id=acme&from=2026-03-01&to=2026-04-01",
			setupMocks: func() {
				mockStats.On("Dashboard", mock.Anything, domain.AnalyticsFilter{ClientID: "acme", From: from, To: to}).
					Return(domain.DashboardMetrics{
						TotalReports:          3,
						ActiveUsers:           1,
						TotalCostAnalyzed:     decimal.RequireFromString("1200.5"),
						AverageGenerationTime: 1500 * time.Millisecond,
						SuccessRate:           75,
						ComputedAt:            created,
					}, nil)
			},
			expectedStatus: http.StatusOK,
			expected: api.DashboardMetrics{
				TotalReports:             3,
				ActiveUsers:              1,
				TotalCostAnalyzed:        "1200.50",
				AverageGenerationSeconds: 1.5,
				SuccessRate:              75,
				ComputedAt:               created,
			},
			parseResponse: unmarshalResponse[api.DashboardMetrics](),
		},
		{
			name:           "Dashboard_InvalidFromDate",
			method:         http.MethodGet,
			path:           "/api/v1/analytics/dashboard?from=invalid-date",
			setupMocks:     func() {},
			expectedStatus: http.StatusBadRequest,
			expected:       api.ErrorResponse{Error: "invalid 'from' date format. Expected format: YYYY-MM-DD"},
			parseResponse:  unmarshalResponse[api.ErrorResponse](),
		},
		{
			name:   "Trends_Refresh",
			method: http.MethodGet,
			path:   "/api/v1/analytics/trends?period=week&refresh=true",
			setupMocks: func() {
				mockStats.On("Refresh", mock.Anything).Return()
				mockStats.On("Trends", mock.Anything, domain.TrendPeriodWeek, domain.AnalyticsFilter{}).
					Return([]domain.TrendPoint{{
						BucketStart:  from,
						Total:        2,
						ByReportType: map[domain.ReportType]int{domain.ReportTypeCost: 2},
					}}, nil)
			},
			expectedStatus: http.StatusOK,
			expected: api.TrendsResponse{Period: "week", Points: []api.TrendPoint{{
				BucketStart:  from,
				Total:        2,
				ByReportType: map[string]int{"cost": 2},
			}}},
			parseResponse: unmarshalResponse[api.TrendsResponse](),
		},
		{
			name:   "TopUsers",
			method: http.MethodGet,
			path:   "/api/v1/analytics/top-users?by=activity&limit=5",
			setupMocks: func() {
				mockStats.On("TopUsers", mock.Anything, domain.TopUsersByActivity, 5, domain.AnalyticsFilter{}).
					Return([]domain.UserActivity{{ClientID: "acme", ReportCount: 2, LastActivity: created}}, nil)
			},
			expectedStatus: http.StatusOK,
			expected: api.TopUsersResponse{Users: []api.UserActivity{{
				ClientID: "acme", ReportCount: 2, LastActivity: created,
			}}},
			parseResponse: unmarshalResponse[api.TopUsersResponse](),
		},
		{
			name:   "Anomalies",
			method: http.MethodGet,
			path:   "/api/v1/anomalies?subscription_id=sub-1&acknowledged=false",
			setupMocks: func() {
				ack := false
				mockInsight.On("GetAnomalies", mock.Anything, domain.AnomalyFilter{SubscriptionID: "sub-1", Acknowledged: &ack}).
					Return([]*domain.Anomaly{}, nil)
			},
			expectedStatus: http.StatusOK,
			expected:       api.AnomaliesResponse{Anomalies: []api.Anomaly{}},
			parseResponse:  unmarshalResponse[api.AnomaliesResponse](),
		},
		{
			name:   "AcknowledgeAnomaly",
			method: http.MethodPost,
			path:   "/api/v1/anomalies/anomaly-1/acknowledge",
			body:   `{"notes":"expected migration spike"}`,
			setupMocks: func() {
				mockInsight.On("AcknowledgeAnomaly", mock.Anything, "anomaly-1", &notes).
					Return(&domain.Anomaly{
						ID:                "anomaly-1",
						SubscriptionID:    "sub-1",
						DetectedAt:        created,
						Date:              from,
						ExpectedLower:     decimal.NewFromInt(90),
						ExpectedUpper:     decimal.NewFromInt(110),
						ActualAmount:      decimal.NewFromInt(400),
						Severity:          domain.SeverityCritical,
						Acknowledged:      true,
						AcknowledgedNotes: &notes,
					}, nil)
			},
			expectedStatus: http.StatusOK,
			expected: api.Anomaly{
				ID:                "anomaly-1",
				SubscriptionID:    "sub-1",
				DetectedAt:        created,
				Date:              "2026-03-01",
				ExpectedLower:     "90.00",
				ExpectedUpper:     "110.00",
				ActualAmount:      "400.00",
				Severity:          "critical",
				Acknowledged:      true,
				AcknowledgedNotes: &notes,
			},
			parseResponse: unmarshalResponse[api.Anomaly](),
		},
		{
			name:   "Forecasts",
			method: http.MethodGet,
			path:   "/api/v1/forecasts/sub-1",
			setupMocks: func() {
				mockInsight.On("GetForecasts", mock.Anything, "sub-1").Return([]*domain.Forecast{{
					ID:             "forecast-1",
					SubscriptionID: "sub-1",
					ForecastDate:   to,
					PredictedCost:  decimal.NewFromInt(100),
					LowerBound:     decimal.NewFromInt(80),
					UpperBound:     decimal.NewFromInt(120),
					ModelType:      "linear_trend",
					CreatedAt:      created,
				}}, nil)
			},
			expectedStatus: http.StatusOK,
			expected: api.ForecastsResponse{Forecasts: []api.Forecast{{
				ID:             "forecast-1",
				SubscriptionID: "sub-1",
				ForecastDate:   "2026-04-01",
				PredictedCost:  "100.00",
				LowerBound:     "80.00",
				UpperBound:     "120.00",
				ModelType:      "linear_trend",
				CreatedAt:      created,
			}}},
			parseResponse: unmarshalResponse[api.ForecastsResponse](),
		},
		{
			name:   "IngestCosts",
			method: http.MethodPost,
			path:   "/api/v1/costs",
			body:   `{"points":[{"subscription_id":"sub-1","date":"2026-03-01","amount":"101.25","currency":"usd"}]}`,
			setupMocks: func() {
				mockCosts.On("Ingest", mock.Anything, []domain.CostDataPoint{{
					SubscriptionID: "sub-1",
					Date:           from,
					Amount:         decimal.RequireFromString("101.25"),
					Currency:       "USD",
				}}).Return(costs.Result{Points: 1, ForecastsReconciled: 1}, nil)
			},
			expectedStatus: http.StatusOK,
			expected:       api.IngestCostsResponse{Ingested: 1, Backfilled: 1},
			parseResponse:  unmarshalResponse[api.IngestCostsResponse](),
		},
		{
			name:           "Health",
			method:         http.MethodGet,
			path:           "/healthz",
			setupMocks:     func() {},
			expectedStatus: http.StatusOK,
			expected:       map[string]string{"status": "ok"},
			parseResponse:  unmarshalResponse[map[string]string](),
		},
		{
			name:           "Metrics",
			method:         http.MethodGet,
			path:           "/metrics",
			setupMocks:     func() {},
			expectedStatus: http.StatusOK,
			expected:       true,
			parseResponse: func(data []byte) (interface{}, error) {
				return strings.Contains(string(data), "advisor_test_total"), nil
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.setupMocks()

			var body io.Reader
			if tc.body != "" {
				body = strings.NewReader(tc.body)
			}
			req, err := http.NewRequest(tc.method, testServer.URL+tc.path, body)
			require.NoError(t, err, "Failed to build request")

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err, "Failed to send request")
			defer resp.Body.Close()

			assert.Equal(t, tc.expectedStatus, resp.StatusCode, "Status code mismatch")

			data, err := io.ReadAll(resp.Body)
			require.NoError(t, err, "Failed to read response body")

			actual, err := tc.parseResponse(data)
			require.NoError(t, err, "Failed to parse response")

			assert.Equal(t, tc.expected, actual)
		})
	}

	mockJob.AssertExpectations(t)
	mockStats.AssertExpectations(t)
	mockInsight.AssertExpectations(t)
	mockCosts.AssertExpectations(t)
}

func TestWebAPI_HealthUnavailable(t *testing.T) {
	logger := zerolog.Nop()
	router := ConfigureRouter(&logger, Dependencies{
		Health: func(context.Context) error { return errors.New("connection refused") },
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unavailable"}`, rec.Body.String())
}

func TestWebAPI_StartStopsOnCancel(t *testing.T) {
	web := NewWebAPI(zerolog.Nop(), Config{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- web.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func unmarshalResponse[T any]() func([]byte) (interface{}, error) {
	return func(data []byte) (interface{}, error) {
		var response T
		err := json.Unmarshal(data, &response)
		return response, err
	}
}

func hasError(data []byte) (interface{}, error) {
	var response api.ErrorResponse
	err := json.Unmarshal(data, &response)
	return response.Error != "", err
}
