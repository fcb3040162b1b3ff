package store

import (
	"time"

	"github.com/shopspring/decimal"
)

// Recommendation is the JSON document stored per report row.
type Recommendation struct {
	Category         string            `json:"category"`
	BusinessImpact   string            `json:"business_impact"`
	Description      string            `json:"description"`
	SubscriptionID   string            `json:"subscription_id"`
	SubscriptionName string            `json:"subscription_name,omitempty"`
	ResourceGroup    string            `json:"resource_group"`
	ResourceName     string            `json:"resource_name"`
	ResourceType     string            `json:"resource_type"`
	SavingsAmount    *decimal.Decimal  `json:"savings_amount,omitempty"`
	SavingsCurrency  string            `json:"savings_currency,omitempty"`
	PriorityScore    int               `json:"priority_score"`
	SourceOrigin     string            `json:"source_origin"`
	SourceIndex      int               `json:"source_index"`
	SourceFields     map[string]string `json:"source_fields,omitempty"`
}

type Report struct {
	ID              string
	JobID           string
	ClientID        string
	ReportType      string
	Recommendations []Recommendation
	GeneratedAt     time.Time
	SizeBytes       int64
}
