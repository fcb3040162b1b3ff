package api

import "time"

type DashboardMetrics struct {
	TotalReports             int       `json:"total_reports"`
	ActiveUsers              int       `json:"active_users"`
	TotalCostAnalyzed        string    `json:"total_cost_analyzed"`
	AverageGenerationSeconds float64   `json:"average_generation_seconds"`
	StorageUsedBytes         int64     `json:"storage_used_bytes"`
	SuccessRate              float64   `json:"success_rate"`
	ComputedAt               time.Time `json:"computed_at"`
}

type TrendPoint struct {
	BucketStart  time.Time      `json:"bucket_start"`
	Total        int            `json:"total"`
	ByReportType map[string]int `json:"by_report_type"`
}

type TrendsResponse struct {
	Period string       `json:"period"`
	Points []TrendPoint `json:"points"`
}

type UserActivity struct {
	ClientID     string    `json:"client_id"`
	ReportCount  int       `json:"report_count"`
	LastActivity time.Time `json:"last_activity"`
}

type TopUsersResponse struct {
	Users []UserActivity `json:"users"`
}

type SubscriptionCost struct {
	SubscriptionID string `json:"subscription_id"`
	Total          string `json:"total"`
}

type CostInsights struct {
	TotalCost         string                       `json:"total_cost"`
	BySubscription    []SubscriptionCost           `json:"by_subscription"`
	SavingsByCategory map[string]map[string]string `json:"savings_by_category"`
	ComputedAt        time.Time                    `json:"computed_at"`
}
