// Package scoring assigns the category, impact and priority used to order a report.
package scoring

import "github.com/de-tools/advisor-reports/pkg/models/domain"

const impactLevels = 3

// Engine is deterministic and idempotent: scoring a scored record is a no-op.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

func (e *Engine) Score(rec domain.Recommendation) domain.Recommendation {
	if !rec.Category.Valid() {
		rec.Category = domain.DefaultCategory
	}
	if !rec.BusinessImpact.Valid() {
		rec.BusinessImpact = domain.DefaultImpact
	}
	rec.PriorityScore = PriorityScore(rec.Category, rec.BusinessImpact)
	return rec
}

// PriorityScore ranks High impact Cost first, then Security, then everything
// else; impact level orders records inside each tier. Lower sorts first.
// Ties are broken by domain.PriorityLess.
func PriorityScore(category domain.Category, impact domain.Impact) int {
	return tier(category, impact)*impactLevels + impact.Rank()
}

func tier(category domain.Category, impact domain.Impact) int {
	switch {
	case category == domain.CategoryCost && impact == domain.ImpactHigh:
		return 0
	case category == domain.CategorySecurity:
		return 1
	default:
		return 2
	}
}
