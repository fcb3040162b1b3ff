package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Report is the artifact produced by a completed ReportJob.
type Report struct {
	ID              string
	JobID           string
	ClientID        string
	ReportType      ReportType
	Recommendations []Recommendation
	Aggregates      Aggregates
	GeneratedAt     time.Time
	SizeBytes       int64
}

type Aggregates struct {
	TotalRecommendations int
	CountByCategory      map[Category]int
	CountByImpact        map[Impact]int
	SavingsByCurrency    map[string]decimal.Decimal
	SavingsByCategory    CategorySavings
}

// CategorySavings totals savings per category and currency.
type CategorySavings map[Category]map[string]decimal.Decimal

func (s CategorySavings) Add(category Category, m Money) {
	byCurrency, ok := s[category]
	if !ok {
		byCurrency = make(map[string]decimal.Decimal)
		s[category] = byCurrency
	}
	byCurrency[m.Currency] = byCurrency[m.Currency].Add(m.Amount)
}

func (s CategorySavings) Merge(other CategorySavings) {
	for category, byCurrency := range other {
		for currency, amount := range byCurrency {
			s.Add(category, Money{Amount: amount, Currency: currency})
		}
	}
}

func (s CategorySavings) Clone() CategorySavings {
	if s == nil {
		return nil
	}
	out := make(CategorySavings, len(s))
	out.Merge(s)
	return out
}

// ComputeAggregates totals a recommendation list.
func ComputeAggregates(recs []Recommendation) Aggregates {
	agg := Aggregates{
		TotalRecommendations: len(recs),
		CountByCategory:      make(map[Category]int),
		CountByImpact:        make(map[Impact]int),
		SavingsByCurrency:    make(map[string]decimal.Decimal),
		SavingsByCategory:    make(CategorySavings),
	}
	for _, r := range recs {
		agg.CountByCategory[r.Category]++
		agg.CountByImpact[r.BusinessImpact]++
		if r.PotentialSavings == nil {
			continue
		}
		cur := r.PotentialSavings.Currency
		agg.SavingsByCurrency[cur] = agg.SavingsByCurrency[cur].Add(r.PotentialSavings.Amount)
		agg.SavingsByCategory.Add(r.Category, *r.PotentialSavings)
	}
	return agg
}

// TotalSavings sums savings across currencies; only meaningful for single-currency reports.
func (a Aggregates) TotalSavings() decimal.Decimal {
	total := decimal.Zero
	for _, v := range a.SavingsByCurrency {
		total = total.Add(v)
	}
	return total
}

// Prioritized returns the recommendations in priority order. The stored order is untouched.
func (r *Report) Prioritized() []Recommendation {
	order := r.PriorityOrder()
	out := make([]Recommendation, len(order))
	for i, idx := range order {
		out[i] = r.Recommendations[idx]
	}
	return out
}

// PriorityOrder returns positions in Recommendations sorted by PriorityLess.
func (r *Report) PriorityOrder() []int {
	order := make([]int, len(r.Recommendations))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return PriorityLess(r.Recommendations[order[i]], r.Recommendations[order[j]])
	})
	return order
}

// PriorityLess is the total order used for in-report sorting: priority score
// ascending, then potential savings descending (records without savings last),
// then source row index ascending.
func PriorityLess(a, b Recommendation) bool {
	if a.PriorityScore != b.PriorityScore {
		return a.PriorityScore < b.PriorityScore
	}
	as, bs := savingsValue(a), savingsValue(b)
	if c := as.Cmp(bs); c != 0 {
		return c > 0
	}
	return a.SourceRow.Index < b.SourceRow.Index
}

func savingsValue(r Recommendation) decimal.Decimal {
	if r.PotentialSavings == nil {
		return decimal.NewFromInt(-1)
	}
	return r.PotentialSavings.Amount
}
