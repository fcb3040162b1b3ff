package api

import "time"

const DateLayout = "2006-01-02"

type CostDataPoint struct {
	SubscriptionID string `json:"subscription_id"`
	Date           string `json:"date"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
}

type IngestCostsRequest struct {
	Points []CostDataPoint `json:"points"`
}

type IngestCostsResponse struct {
	Ingested   int `json:"ingested"`
	Backfilled int `json:"backfilled"`
}

type Anomaly struct {
	ID                string    `json:"id"`
	SubscriptionID    string    `json:"subscription_id"`
	DetectedAt        time.Time `json:"detected_at"`
	Date              string    `json:"date"`
	ExpectedLower     string    `json:"expected_lower"`
	ExpectedUpper     string    `json:"expected_upper"`
	ActualAmount      string    `json:"actual_amount"`
	Severity          string    `json:"severity"`
	Acknowledged      bool      `json:"acknowledged"`
	AcknowledgedNotes *string   `json:"acknowledged_notes,omitempty"`
}

type AnomaliesResponse struct {
	Anomalies []Anomaly `json:"anomalies"`
}

type AcknowledgeRequest struct {
	Notes *string `json:"notes,omitempty"`
}

type Forecast struct {
	ID                 string    `json:"id"`
	SubscriptionID     string    `json:"subscription_id"`
	ForecastDate       string    `json:"forecast_date"`
	PredictedCost      string    `json:"predicted_cost"`
	LowerBound         string    `json:"lower_bound"`
	UpperBound         string    `json:"upper_bound"`
	ModelType          string    `json:"model_type"`
	CreatedAt          time.Time `json:"created_at"`
	ActualCost         *string   `json:"actual_cost,omitempty"`
	AccuracyPercentage *float64  `json:"accuracy_percentage,omitempty"`
}

type ForecastsResponse struct {
	Forecasts []Forecast `json:"forecasts"`
}
