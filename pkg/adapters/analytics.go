package adapters

import (
	"github.com/de-tools/advisor-reports/pkg/models/api"
	"github.com/de-tools/advisor-reports/pkg/models/domain"
)

func MapDashboardDomainToApi(m domain.DashboardMetrics) api.DashboardMetrics {
	return api.DashboardMetrics{
		TotalReports:             m.TotalReports,
		ActiveUsers:              m.ActiveUsers,
		TotalCostAnalyzed:        m.TotalCostAnalyzed.StringFixed(2),
		AverageGenerationSeconds: m.AverageGenerationTime.Seconds(),
		StorageUsedBytes:         m.StorageUsedBytes,
		SuccessRate:              m.SuccessRate,
		ComputedAt:               m.ComputedAt,
	}
}

func MapTrendsDomainToApi(period domain.TrendPeriod, points []domain.TrendPoint) api.TrendsResponse {
	out := api.TrendsResponse{Period: string(period), Points: make([]api.TrendPoint, 0, len(points))}
	for _, p := range points {
		byType := make(map[string]int, len(p.ByReportType))
		for k, v := range p.ByReportType {
			byType[string(k)] = v
		}
		out.Points = append(out.Points, api.TrendPoint{
			BucketStart:  p.BucketStart,
			Total:        p.Total,
			ByReportType: byType,
		})
	}
	return out
}

func MapUserActivityDomainToApi(users []domain.UserActivity) api.TopUsersResponse {
	out := api.TopUsersResponse{Users: make([]api.UserActivity, 0, len(users))}
	for _, u := range users {
		out.Users = append(out.Users, api.UserActivity{
			ClientID:     u.ClientID,
			ReportCount:  u.ReportCount,
			LastActivity: u.LastActivity,
		})
	}
	return out
}

func MapCostInsightsDomainToApi(c domain.CostInsights) api.CostInsights {
	out := api.CostInsights{
		TotalCost:         c.TotalCost.StringFixed(2),
		BySubscription:    make([]api.SubscriptionCost, 0, len(c.BySubscription)),
		SavingsByCategory: decimalsByCategory(c.SavingsByCategory),
		ComputedAt:        c.ComputedAt,
	}
	for _, s := range c.BySubscription {
		out.BySubscription = append(out.BySubscription, api.SubscriptionCost{
			SubscriptionID: s.SubscriptionID,
			Total:          s.Total.StringFixed(2),
		})
	}
	return out
}
