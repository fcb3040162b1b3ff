package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type AnalyticsFilter struct {
	ClientID string
	From     time.Time // inclusive, zero means unbounded
	To       time.Time // exclusive, zero means unbounded
}

func (f AnalyticsFilter) Contains(t time.Time) bool {
	if !f.From.IsZero() && t.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !t.Before(f.To) {
		return false
	}
	return true
}

type DashboardMetrics struct {
	TotalReports          int
	ActiveUsers           int
	TotalCostAnalyzed     decimal.Decimal
	AverageGenerationTime time.Duration
	StorageUsedBytes      int64
	SuccessRate           float64 // percentage, 0 when no job has finished
	ComputedAt            time.Time
}

type TrendPeriod string

const (
	TrendPeriodDay   TrendPeriod = "day"
	TrendPeriodWeek  TrendPeriod = "week"
	TrendPeriodMonth TrendPeriod = "month"
)

// BucketStart returns the start of the bucket containing t. Weeks start on Monday.
func (p TrendPeriod) BucketStart(t time.Time) time.Time {
	d := Day(t)
	switch p {
	case TrendPeriodWeek:
		offset := (int(d.Weekday()) + 6) % 7
		return d.AddDate(0, 0, -offset)
	case TrendPeriodMonth:
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return d
	}
}

func (p TrendPeriod) Valid() bool {
	return p == TrendPeriodDay || p == TrendPeriodWeek || p == TrendPeriodMonth
}

type TrendPoint struct {
	BucketStart  time.Time
	Total        int
	ByReportType map[ReportType]int
}

type TopUsersBy string

const (
	TopUsersByReportCount TopUsersBy = "reports"
	TopUsersByActivity    TopUsersBy = "activity"
)

type UserActivity struct {
	ClientID     string
	ReportCount  int
	LastActivity time.Time
}

type SubscriptionCost struct {
	SubscriptionID string
	Total          decimal.Decimal
}

type CostInsights struct {
	TotalCost         decimal.Decimal
	BySubscription    []SubscriptionCost
	SavingsByCategory CategorySavings
	ComputedAt        time.Time
}
