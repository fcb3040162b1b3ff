package adapters

import (
	"fmt"
	"strings"
	"time"

	"github.com/de-tools/advisor-reports/pkg/models/api"
	"github.com/de-tools/advisor-reports/pkg/models/domain"
	"github.com/shopspring/decimal"
)

func MapCostDataPointApiToDomain(p api.CostDataPoint) (domain.CostDataPoint, error) {
	if strings.TrimSpace(p.SubscriptionID) == "" {
		return domain.CostDataPoint{}, fmt.Errorf("subscription_id is required")
	}
	date, err := time.Parse(api.DateLayout, p.Date)
	if err != nil {
		return domain.CostDataPoint{}, fmt.Errorf("invalid date %q: %w", p.Date, err)
	}
	amount, err := decimal.NewFromString(p.Amount)
	if err != nil {
		return domain.CostDataPoint{}, fmt.Errorf("invalid amount %q: %w", p.Amount, err)
	}
	currency := p.Currency
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	return domain.CostDataPoint{
		SubscriptionID: p.SubscriptionID,
		Date:           domain.Day(date),
		Amount:         amount,
		Currency:       strings.ToUpper(currency),
	}, nil
}

func MapAnomalyDomainToApi(a *domain.Anomaly) api.Anomaly {
	return api.Anomaly{
		ID:                a.ID,
		SubscriptionID:    a.SubscriptionID,
		DetectedAt:        a.DetectedAt,
		Date:              a.Date.Format(api.DateLayout),
		ExpectedLower:     a.ExpectedLower.StringFixed(2),
		ExpectedUpper:     a.ExpectedUpper.StringFixed(2),
		ActualAmount:      a.ActualAmount.StringFixed(2),
		Severity:          string(a.Severity),
		Acknowledged:      a.Acknowledged,
		AcknowledgedNotes: a.AcknowledgedNotes,
	}
}

func MapForecastDomainToApi(f *domain.Forecast) api.Forecast {
	out := api.Forecast{
		ID:                 f.ID,
		SubscriptionID:     f.SubscriptionID,
		ForecastDate:       f.ForecastDate.Format(api.DateLayout),
		PredictedCost:      f.PredictedCost.StringFixed(2),
		LowerBound:         f.LowerBound.StringFixed(2),
		UpperBound:         f.UpperBound.StringFixed(2),
		ModelType:          f.ModelType,
		CreatedAt:          f.CreatedAt,
		AccuracyPercentage: f.AccuracyPercentage,
	}
	if f.ActualCost != nil {
		actual := f.ActualCost.StringFixed(2)
		out.ActualCost = &actual
	}
	return out
}
