package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CostDataPoint is one (subscription, day) cost observation.
type CostDataPoint struct {
	SubscriptionID string
	Date           time.Time // truncated to the UTC day
	Amount         decimal.Decimal
	Currency       string
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type Anomaly struct {
	ID                string
	SubscriptionID    string
	DetectedAt        time.Time
	Date              time.Time
	ExpectedLower     decimal.Decimal
	ExpectedUpper     decimal.Decimal
	ActualAmount      decimal.Decimal
	Severity          Severity
	Acknowledged      bool
	AcknowledgedNotes *string
}

type AnomalyFilter struct {
	SubscriptionID string
	Acknowledged   *bool
}

type Forecast struct {
	ID                 string
	SubscriptionID     string
	ForecastDate       time.Time
	PredictedCost      decimal.Decimal
	LowerBound         decimal.Decimal
	UpperBound         decimal.Decimal
	ModelType          string
	CreatedAt          time.Time
	ActualCost         *decimal.Decimal
	AccuracyPercentage *float64
}

// Accuracy computes 100 - |predicted-actual|/actual*100 clamped to [0,100].
// A zero actual is exact only when the prediction is zero too.
func Accuracy(predicted, actual decimal.Decimal) float64 {
	if actual.IsZero() {
		if predicted.IsZero() {
			return 100
		}
		return 0
	}
	errPct := predicted.Sub(actual).Abs().Div(actual.Abs()).Mul(decimal.NewFromInt(100))
	acc := decimal.NewFromInt(100).Sub(errPct).InexactFloat64()
	switch {
	case acc < 0:
		return 0
	case acc > 100:
		return 100
	}
	return acc
}

type EngineOutcome string

const (
	OutcomeEvaluated               EngineOutcome = "Evaluated"
	OutcomeSkippedInsufficientData EngineOutcome = "SkippedInsufficientData"
)
