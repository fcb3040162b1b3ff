package api

import "time"

// Money amounts travel as decimal strings to avoid float rounding.
type Money struct {
	Amount   string `json:"amount" yaml:"amount"`
	Currency string `json:"currency" yaml:"currency"`
}

type Recommendation struct {
	Category         string `json:"category" yaml:"category"`
	BusinessImpact   string `json:"business_impact" yaml:"business_impact"`
	Description      string `json:"description" yaml:"description"`
	SubscriptionID   string `json:"subscription_id" yaml:"subscription_id"`
	SubscriptionName string `json:"subscription_name,omitempty" yaml:"subscription_name,omitempty"`
	ResourceGroup    string `json:"resource_group" yaml:"resource_group"`
	ResourceName     string `json:"resource_name" yaml:"resource_name"`
	ResourceType     string `json:"resource_type" yaml:"resource_type"`
	PotentialSavings *Money `json:"potential_savings" yaml:"potential_savings"`
	PriorityScore    int    `json:"priority_score" yaml:"priority_score"`
	SourceIndex      int    `json:"source_index" yaml:"source_index"`
}

type Aggregates struct {
	TotalRecommendations int                          `json:"total_recommendations" yaml:"total_recommendations"`
	CountByCategory      map[string]int               `json:"count_by_category" yaml:"count_by_category"`
	CountByImpact        map[string]int               `json:"count_by_impact" yaml:"count_by_impact"`
	SavingsByCurrency    map[string]string            `json:"savings_by_currency" yaml:"savings_by_currency"`
	SavingsByCategory    map[string]map[string]string `json:"savings_by_category" yaml:"savings_by_category"`
}

type Report struct {
	ID              string           `json:"id" yaml:"id"`
	JobID           string           `json:"job_id" yaml:"job_id"`
	ClientID        string           `json:"client_id" yaml:"client_id"`
	ReportType      string           `json:"report_type" yaml:"report_type"`
	GeneratedAt     time.Time        `json:"generated_at" yaml:"generated_at"`
	SizeBytes       int64            `json:"size_bytes" yaml:"size_bytes"`
	Aggregates      Aggregates       `json:"aggregates" yaml:"aggregates"`
	Recommendations []Recommendation `json:"recommendations" yaml:"recommendations"`
	// PriorityOrder indexes Recommendations from most to least urgent.
	PriorityOrder []int `json:"priority_order" yaml:"priority_order"`
}
