package analytics

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/de-tools/advisor-reports/pkg/adapters"
	"github.com/de-tools/advisor-reports/pkg/handlers"
	"github.com/de-tools/advisor-reports/pkg/models/domain"
	"github.com/de-tools/advisor-reports/pkg/services/analytics"
)

type Handler struct {
	analytics analytics.Service
}

func NewHandler(svc analytics.Service) *Handler {
	return &Handler{analytics: svc}
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.prepare(w, r)
	if !ok {
		return
	}
	metrics, err := h.analytics.Dashboard(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	handlers.WriteJSON(w, r, http.StatusOK, adapters.MapDashboardDomainToApi(metrics))
}

func (h *Handler) Trends(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.prepare(w, r)
	if !ok {
		return
	}
	period := domain.TrendPeriod(r.URL.Query().Get("period"))
	if period == "" {
		period = domain.TrendPeriodDay
	}
	points, err := h.analytics.Trends(r.Context(), period, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	handlers.WriteJSON(w, r, http.StatusOK, adapters.MapTrendsDomainToApi(period, points))
}

func (h *Handler) TopUsers(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.prepare(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			handlers.WriteError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	by := domain.TopUsersBy(r.URL.Query().Get("by"))
	users, err := h.analytics.TopUsers(r.Context(), by, limit, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	handlers.WriteJSON(w, r, http.StatusOK, adapters.MapUserActivityDomainToApi(users))
}

func (h *Handler) CostInsights(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.prepare(w, r)
	if !ok {
		return
	}
	insights, err := h.analytics.CostInsights(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	handlers.WriteJSON(w, r, http.StatusOK, adapters.MapCostInsightsDomainToApi(insights))
}

// prepare parses the shared filter and honours refresh=true.
func (h *Handler) prepare(w http.ResponseWriter, r *http.Request) (domain.AnalyticsFilter, bool) {
	filter, err := parseFilter(r)
	if err != nil {
		handlers.WriteError(w, r, http.StatusBadRequest, err.Error())
		return filter, false
	}
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		h.analytics.Refresh(r.Context())
	}
	return filter, true
}

func parseFilter(r *http.Request) (domain.AnalyticsFilter, error) {
	from, err := handlers.ParseDate(r, "from")
	if err != nil {
		return domain.AnalyticsFilter{}, err
	}
	to, err := handlers.ParseDate(r, "to")
	if err != nil {
		return domain.AnalyticsFilter{}, err
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return domain.AnalyticsFilter{}, errors.New("'from' must be before 'to'")
	}
	return domain.AnalyticsFilter{
		ClientID: r.URL.Query().Get("client_id"),
		From:     from,
		To:       to,
	}, nil
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, analytics.ErrInvalidQuery) {
		handlers.WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	handlers.WriteStoreError(w, r, err, "analytics")
}
