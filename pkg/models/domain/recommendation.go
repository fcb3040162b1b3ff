package domain

import (
	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryCost                  Category = "Cost"
	CategorySecurity              Category = "Security"
	CategoryReliability           Category = "Reliability"
	CategoryOperationalExcellence Category = "OperationalExcellence"
	CategoryPerformance           Category = "Performance"
)

// Categories lists every category in a fixed order.
var Categories = []Category{
	CategoryCost,
	CategorySecurity,
	CategoryReliability,
	CategoryOperationalExcellence,
	CategoryPerformance,
}

type Impact string

const (
	ImpactHigh   Impact = "High"
	ImpactMedium Impact = "Medium"
	ImpactLow    Impact = "Low"
)

var Impacts = []Impact{ImpactHigh, ImpactMedium, ImpactLow}

func (c Category) Valid() bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

func (i Impact) Valid() bool {
	return i == ImpactHigh || i == ImpactMedium || i == ImpactLow
}

// Defaults applied by the normalizer when the source omits a value.
const (
	DefaultCategory = CategoryOperationalExcellence
	DefaultImpact   = ImpactLow
	DefaultCurrency = "USD"
)

// Rank orders impacts from most to least significant (High = 0).
func (i Impact) Rank() int {
	switch i {
	case ImpactHigh:
		return 0
	case ImpactMedium:
		return 1
	default:
		return 2
	}
}

type Money struct {
	Amount   decimal.Decimal
	Currency string // ISO 4217
}

// SourceRow points back at the raw input a recommendation was built from.
type SourceRow struct {
	Origin string // file name or "azure:<subscription>"
	Index  int    // zero-based data row index in adapter output order
	Fields map[string]string
}

// Recommendation is one normalized Azure Advisor suggestion. Treat as immutable.
type Recommendation struct {
	Category         Category
	BusinessImpact   Impact
	Description      string
	SubscriptionID   string
	SubscriptionName string
	ResourceGroup    string
	ResourceName     string
	ResourceType     string
	PotentialSavings *Money
	PriorityScore    int
	SourceRow        SourceRow
}

// Canonical SourceRow field keys. Both source adapters emit rows keyed by these
// lower-cased header names so the normalizer sees one row shape.
const (
	FieldCategory         = "category"
	FieldBusinessImpact   = "business impact"
	FieldRecommendation   = "recommendation"
	FieldSubscriptionID   = "subscription id"
	FieldSubscriptionName = "subscription name"
	FieldResourceGroup    = "resource group"
	FieldResourceName     = "resource name"
	FieldResourceType     = "resource type"
	FieldPotentialSavings = "potential savings"
	FieldCurrency         = "currency"
)
