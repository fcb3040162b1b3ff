package adapters

import (
	"maps"

	"github.com/de-tools/advisor-reports/pkg/models/api"
	"github.com/de-tools/advisor-reports/pkg/models/domain"
	"github.com/de-tools/advisor-reports/pkg/models/store"
)

func MapRecommendationDomainToStore(r domain.Recommendation) store.Recommendation {
	rec := store.Recommendation{
		Category:         string(r.Category),
		BusinessImpact:   string(r.BusinessImpact),
		Description:      r.Description,
		SubscriptionID:   r.SubscriptionID,
		SubscriptionName: r.SubscriptionName,
		ResourceGroup:    r.ResourceGroup,
		ResourceName:     r.ResourceName,
		ResourceType:     r.ResourceType,
		PriorityScore:    r.PriorityScore,
		SourceOrigin:     r.SourceRow.Origin,
		SourceIndex:      r.SourceRow.Index,
		SourceFields:     maps.Clone(r.SourceRow.Fields),
	}
	if r.PotentialSavings != nil {
		amount := r.PotentialSavings.Amount
		rec.SavingsAmount = &amount
		rec.SavingsCurrency = r.PotentialSavings.Currency
	}
	return rec
}

func MapRecommendationStoreToDomain(r store.Recommendation) domain.Recommendation {
	rec := domain.Recommendation{
		Category:         domain.Category(r.Category),
		BusinessImpact:   domain.Impact(r.BusinessImpact),
		Description:      r.Description,
		SubscriptionID:   r.SubscriptionID,
		SubscriptionName: r.SubscriptionName,
		ResourceGroup:    r.ResourceGroup,
		ResourceName:     r.ResourceName,
		ResourceType:     r.ResourceType,
		PriorityScore:    r.PriorityScore,
		SourceRow: domain.SourceRow{
			Origin: r.SourceOrigin,
			Index:  r.SourceIndex,
			Fields: maps.Clone(r.SourceFields),
		},
	}
	if r.SavingsAmount != nil {
		rec.PotentialSavings = &domain.Money{Amount: *r.SavingsAmount, Currency: r.SavingsCurrency}
	}
	return rec
}

func MapReportDomainToStore(r *domain.Report) *store.Report {
	recs := make([]store.Recommendation, 0, len(r.Recommendations))
	for _, rec := range r.Recommendations {
		recs = append(recs, MapRecommendationDomainToStore(rec))
	}
	return &store.Report{
		ID:              r.ID,
		JobID:           r.JobID,
		ClientID:        r.ClientID,
		ReportType:      string(r.ReportType),
		Recommendations: recs,
		GeneratedAt:     r.GeneratedAt,
		SizeBytes:       r.SizeBytes,
	}
}

// MapReportStoreToDomain rebuilds a report; aggregates are derived from the recommendations.
func MapReportStoreToDomain(r *store.Report) *domain.Report {
	recs := make([]domain.Recommendation, 0, len(r.Recommendations))
	for _, rec := range r.Recommendations {
		recs = append(recs, MapRecommendationStoreToDomain(rec))
	}
	return &domain.Report{
		ID:              r.ID,
		JobID:           r.JobID,
		ClientID:        r.ClientID,
		ReportType:      domain.ReportType(r.ReportType),
		Recommendations: recs,
		Aggregates:      domain.ComputeAggregates(recs),
		GeneratedAt:     r.GeneratedAt,
		SizeBytes:       r.SizeBytes,
	}
}

func MapRecommendationDomainToApi(r domain.Recommendation) api.Recommendation {
	out := api.Recommendation{
		Category:         string(r.Category),
		BusinessImpact:   string(r.BusinessImpact),
		Description:      r.Description,
		SubscriptionID:   r.SubscriptionID,
		SubscriptionName: r.SubscriptionName,
		ResourceGroup:    r.ResourceGroup,
		ResourceName:     r.ResourceName,
		ResourceType:     r.ResourceType,
		PriorityScore:    r.PriorityScore,
		SourceIndex:      r.SourceRow.Index,
	}
	if r.PotentialSavings != nil {
		out.PotentialSavings = &api.Money{
			Amount:   r.PotentialSavings.Amount.StringFixed(2),
			Currency: r.PotentialSavings.Currency,
		}
	}
	return out
}

func MapAggregatesDomainToApi(a domain.Aggregates) api.Aggregates {
	out := api.Aggregates{
		TotalRecommendations: a.TotalRecommendations,
		CountByCategory:      make(map[string]int, len(a.CountByCategory)),
		CountByImpact:        make(map[string]int, len(a.CountByImpact)),
		SavingsByCurrency:    make(map[string]string, len(a.SavingsByCurrency)),
		SavingsByCategory:    decimalsByCategory(a.SavingsByCategory),
	}
	for k, v := range a.CountByCategory {
		out.CountByCategory[string(k)] = v
	}
	for k, v := range a.CountByImpact {
		out.CountByImpact[string(k)] = v
	}
	for k, v := range a.SavingsByCurrency {
		out.SavingsByCurrency[k] = v.StringFixed(2)
	}
	return out
}

// MapReportDomainToApi keeps recommendations in normalization order and
// carries the priority order as indexes into them.
func MapReportDomainToApi(r *domain.Report) api.Report {
	recs := make([]api.Recommendation, 0, len(r.Recommendations))
	for _, rec := range r.Recommendations {
		recs = append(recs, MapRecommendationDomainToApi(rec))
	}
	return api.Report{
		ID:              r.ID,
		JobID:           r.JobID,
		ClientID:        r.ClientID,
		ReportType:      string(r.ReportType),
		GeneratedAt:     r.GeneratedAt,
		SizeBytes:       r.SizeBytes,
		Aggregates:      MapAggregatesDomainToApi(r.Aggregates),
		Recommendations: recs,
		PriorityOrder:   r.PriorityOrder(),
	}
}

func decimalsByCategory(in domain.CategorySavings) map[string]map[string]string {
	out := make(map[string]map[string]string, len(in))
	for category, byCurrency := range in {
		amounts := make(map[string]string, len(byCurrency))
		for currency, v := range byCurrency {
			amounts[currency] = v.StringFixed(2)
		}
		out[string(category)] = amounts
	}
	return out
}
