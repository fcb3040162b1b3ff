package scoring

import (
	"math/rand"
	"testing"

	"github.com/de-tools/advisor-reports/pkg/models/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func rec(index int, category domain.Category, impact domain.Impact, savings string) domain.Recommendation {
	r := domain.Recommendation{
		Category:       category,
		BusinessImpact: impact,
		SourceRow:      domain.SourceRow{Index: index},
	}
	if savings != "" {
		r.PotentialSavings = &domain.Money{Amount: decimal.RequireFromString(savings), Currency: "USD"}
	}
	return r
}

func TestEngine_Score(t *testing.T) {
	e := NewEngine()

	tests := []struct {
		name     string
		in       domain.Recommendation
		category domain.Category
		impact   domain.Impact
		score    int
	}{
		{name: "high cost", in: rec(0, domain.CategoryCost, domain.ImpactHigh, ""),
			category: domain.CategoryCost, impact: domain.ImpactHigh, score: 0},
		{name: "low security", in: rec(0, domain.CategorySecurity, domain.ImpactLow, ""),
			category: domain.CategorySecurity, impact: domain.ImpactLow, score: 5},
		{name: "medium cost", in: rec(0, domain.CategoryCost, domain.ImpactMedium, ""),
			category: domain.CategoryCost, impact: domain.ImpactMedium, score: 7},
		{name: "missing values", in: rec(0, "", "", ""),
			category: domain.CategoryOperationalExcellence, impact: domain.ImpactLow, score: 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := e.Score(tt.in)
			assert.Equal(t, tt.category, out.Category)
			assert.Equal(t, tt.impact, out.BusinessImpact)
			assert.Equal(t, tt.score, out.PriorityScore)
			assert.Equal(t, out, e.Score(out))
		})
	}
}

func TestPriorityOrder(t *testing.T) {
	e := NewEngine()
	input := []domain.Recommendation{
		rec(0, domain.CategoryPerformance, domain.ImpactHigh, "10"),
		rec(1, domain.CategorySecurity, domain.ImpactMedium, ""),
		rec(2, domain.CategoryCost, domain.ImpactHigh, "100"),
		rec(3, domain.CategoryCost, domain.ImpactHigh, "900"),
		rec(4, domain.CategorySecurity, domain.ImpactHigh, ""),
		rec(5, domain.CategoryCost, domain.ImpactLow, "5000"),
		rec(6, domain.CategoryReliability, domain.ImpactHigh, ""),
		rec(7, domain.CategoryPerformance, domain.ImpactHigh, "10"),
	}
	for i := range input {
		input[i] = e.Score(input[i])
	}

	want := []int{3, 2, 4, 1, 0, 7, 6, 5}

	report := &domain.Report{Recommendations: input}
	got := indexes(report.Prioritized())
	assert.Equal(t, want, got)

	shuffled := append([]domain.Recommendation(nil), input...)
	rand.New(rand.NewSource(7)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	stored := indexes(shuffled)
	report = &domain.Report{Recommendations: shuffled}
	assert.Equal(t, want, indexes(report.Prioritized()), "order does not depend on input order")
	assert.Equal(t, stored, indexes(report.Recommendations), "stored order is untouched")
}

func indexes(recs []domain.Recommendation) []int {
	out := make([]int, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.SourceRow.Index)
	}
	return out
}
