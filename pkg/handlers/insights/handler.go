package insights

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/de-tools/advisor-reports/pkg/adapters"
	"github.com/de-tools/advisor-reports/pkg/handlers"
	"github.com/de-tools/advisor-reports/pkg/models/api"
	"github.com/de-tools/advisor-reports/pkg/models/domain"
	"github.com/de-tools/advisor-reports/pkg/services/costs"
	"github.com/go-chi/chi/v5"
)

// Service is the read and acknowledge side of the insights engine.
type Service interface {
	GetAnomalies(ctx context.Context, filter domain.AnomalyFilter) ([]*domain.Anomaly, error)
	AcknowledgeAnomaly(ctx context.Context, id string, notes *string) (*domain.Anomaly, error)
	GetForecasts(ctx context.Context, subscriptionID string) ([]*domain.Forecast, error)
}

type Ingestor interface {
	Ingest(ctx context.Context, points []domain.CostDataPoint) (costs.Result, error)
}

type Handler struct {
	insights Service
	costs    Ingestor
}

func NewHandler(insights Service, ingestor Ingestor) *Handler {
	return &Handler{insights: insights, costs: ingestor}
}

func (h *Handler) Anomalies(w http.ResponseWriter, r *http.Request) {
	filter := domain.AnomalyFilter{SubscriptionID: r.URL.Query().Get("subscription_id")}
	if raw := r.URL.Query().Get("acknowledged"); raw != "" {
		ack, err := strconv.ParseBool(raw)
		if err != nil {
			handlers.WriteError(w, r, http.StatusBadRequest, "acknowledged must be true or false")
			return
		}
		filter.Acknowledged = &ack
	}

	anomalies, err := h.insights.GetAnomalies(r.Context(), filter)
	if err != nil {
		handlers.WriteStoreError(w, r, err, "anomaly")
		return
	}

	response := api.AnomaliesResponse{Anomalies: make([]api.Anomaly, 0, len(anomalies))}
	for _, a := range anomalies {
		response.Anomalies = append(response.Anomalies, adapters.MapAnomalyDomainToApi(a))
	}
	handlers.WriteJSON(w, r, http.StatusOK, response)
}

func (h *Handler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	var req api.AcknowledgeRequest
	if r.ContentLength != 0 {
		if err := handlers.DecodeJSON(r, &req); err != nil {
			handlers.WriteError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}

	anomaly, err := h.insights.AcknowledgeAnomaly(r.Context(), chi.URLParam(r, "id"), req.Notes)
	if err != nil {
		handlers.WriteStoreError(w, r, err, "anomaly")
		return
	}
	handlers.WriteJSON(w, r, http.StatusOK, adapters.MapAnomalyDomainToApi(anomaly))
}

func (h *Handler) Forecasts(w http.ResponseWriter, r *http.Request) {
	subscriptionID := chi.URLParam(r, "subscriptionId")
	forecasts, err := h.insights.GetForecasts(r.Context(), subscriptionID)
	if err != nil {
		handlers.WriteStoreError(w, r, err, "forecast")
		return
	}

	response := api.ForecastsResponse{Forecasts: make([]api.Forecast, 0, len(forecasts))}
	for _, f := range forecasts {
		response.Forecasts = append(response.Forecasts, adapters.MapForecastDomainToApi(f))
	}
	handlers.WriteJSON(w, r, http.StatusOK, response)
}

func (h *Handler) IngestCosts(w http.ResponseWriter, r *http.Request) {
	var req api.IngestCostsRequest
	if err := handlers.DecodeJSON(r, &req); err != nil {
		handlers.WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	points := make([]domain.CostDataPoint, 0, len(req.Points))
	for i, p := range req.Points {
		point, err := adapters.MapCostDataPointApiToDomain(p)
		if err != nil {
			handlers.WriteError(w, r, http.StatusBadRequest, "point "+strconv.Itoa(i)+": "+err.Error())
			return
		}
		points = append(points, point)
	}

	result, err := h.costs.Ingest(r.Context(), points)
	if errors.Is(err, costs.ErrInvalidPoint) {
		handlers.WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		handlers.WriteStoreError(w, r, err, "cost")
		return
	}

	handlers.WriteJSON(w, r, http.StatusOK, api.IngestCostsResponse{
		Ingested:   result.Points,
		Backfilled: result.ForecastsReconciled,
	})
}
