// Package normalize turns raw source rows into canonical recommendations.
package normalize

import (
	"maps"
	"strings"
	"unicode"

	"github.com/de-tools/advisor-reports/pkg/models/domain"
	"github.com/shopspring/decimal"
)

var categoryAliases = map[string]domain.Category{
	"cost":                  domain.CategoryCost,
	"security":              domain.CategorySecurity,
	"reliability":           domain.CategoryReliability,
	"highavailability":      domain.CategoryReliability,
	"operationalexcellence": domain.CategoryOperationalExcellence,
	"operations":            domain.CategoryOperationalExcellence,
	"performance":           domain.CategoryPerformance,
}

var currencySymbols = map[rune]string{
	'$': "USD",
	'€': "EUR",
	'£': "GBP",
	'¥': "JPY",
	'₹': "INR",
}

var blankAmounts = map[string]bool{
	"":     true,
	"-":    true,
	"--":   true,
	"n/a":  true,
	"na":   true,
	"none": true,
	"null": true,
}

// Normalizer is stateless; Normalize is total over any field map.
type Normalizer struct {
	defaultCurrency string
}

func NewNormalizer(defaultCurrency string) *Normalizer {
	if defaultCurrency == "" {
		defaultCurrency = domain.DefaultCurrency
	}
	return &Normalizer{defaultCurrency: strings.ToUpper(defaultCurrency)}
}

func (n *Normalizer) Normalize(row domain.SourceRow) domain.Recommendation {
	f := row.Fields
	rec := domain.Recommendation{
		Category:         ParseCategory(f[domain.FieldCategory]),
		BusinessImpact:   ParseImpact(f[domain.FieldBusinessImpact]),
		Description:      strings.TrimSpace(f[domain.FieldRecommendation]),
		SubscriptionID:   strings.TrimSpace(f[domain.FieldSubscriptionID]),
		SubscriptionName: strings.TrimSpace(f[domain.FieldSubscriptionName]),
		ResourceGroup:    strings.TrimSpace(f[domain.FieldResourceGroup]),
		ResourceName:     strings.TrimSpace(f[domain.FieldResourceName]),
		ResourceType:     strings.TrimSpace(f[domain.FieldResourceType]),
		SourceRow: domain.SourceRow{
			Origin: row.Origin,
			Index:  row.Index,
			Fields: maps.Clone(f),
		},
	}

	if amount, symbolCurrency, ok := ParseAmount(f[domain.FieldPotentialSavings]); ok {
		currency := parseCurrency(f[domain.FieldCurrency])
		if currency == "" {
			currency = symbolCurrency
		}
		if currency == "" {
			currency = n.defaultCurrency
		}
		rec.PotentialSavings = &domain.Money{Amount: amount, Currency: currency}
	}
	return rec
}

// Renormalize feeds an already normalized record back through Normalize.
// Provenance and score are carried over unchanged.
func (n *Normalizer) Renormalize(rec domain.Recommendation) domain.Recommendation {
	out := n.Normalize(domain.SourceRow{
		Origin: rec.SourceRow.Origin,
		Index:  rec.SourceRow.Index,
		Fields: Fields(rec),
	})
	out.SourceRow = rec.SourceRow
	out.PriorityScore = rec.PriorityScore
	return out
}

// Fields renders a recommendation back into canonical row fields.
func Fields(rec domain.Recommendation) map[string]string {
	fields := map[string]string{
		domain.FieldCategory:         string(rec.Category),
		domain.FieldBusinessImpact:   string(rec.BusinessImpact),
		domain.FieldRecommendation:   rec.Description,
		domain.FieldSubscriptionID:   rec.SubscriptionID,
		domain.FieldSubscriptionName: rec.SubscriptionName,
		domain.FieldResourceGroup:    rec.ResourceGroup,
		domain.FieldResourceName:     rec.ResourceName,
		domain.FieldResourceType:     rec.ResourceType,
	}
	if rec.PotentialSavings != nil {
		fields[domain.FieldPotentialSavings] = rec.PotentialSavings.Amount.String()
		fields[domain.FieldCurrency] = rec.PotentialSavings.Currency
	}
	return fields
}

// ParseCategory maps free-form category text to a Category; unknown or blank
// values fall back to domain.DefaultCategory.
func ParseCategory(raw string) domain.Category {
	if c, ok := categoryAliases[squash(raw)]; ok {
		return c
	}
	return domain.DefaultCategory
}

// ParseImpact falls back to domain.DefaultImpact for unknown or blank values.
func ParseImpact(raw string) domain.Impact {
	switch squash(raw) {
	case "high":
		return domain.ImpactHigh
	case "medium", "moderate":
		return domain.ImpactMedium
	case "low":
		return domain.ImpactLow
	}
	return domain.DefaultImpact
}

// ParseAmount reads a savings amount such as "$1,200.50", "1200 USD" or
// "N/A". It returns the amount, a currency implied by a symbol or code in the
// text, and false for blank, non-numeric or negative input.
func ParseAmount(raw string) (decimal.Decimal, string, bool) {
	s := strings.TrimSpace(raw)
	if blankAmounts[strings.ToLower(s)] {
		return decimal.Decimal{}, "", false
	}

	currency := ""
	if fields := strings.Fields(s); len(fields) == 2 {
		switch {
		case isCurrencyCode(fields[0]):
			currency, s = strings.ToUpper(fields[0]), fields[1]
		case isCurrencyCode(fields[1]):
			currency, s = strings.ToUpper(fields[1]), fields[0]
		}
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsDigit(r) || r == '.' || r == '-' || r == '+':
			b.WriteRune(r)
		case r == ',' || unicode.IsSpace(r):
		default:
			code, ok := currencySymbols[r]
			if !ok {
				return decimal.Decimal{}, "", false
			}
			if currency == "" {
				currency = code
			}
		}
	}

	amount, err := decimal.NewFromString(b.String())
	if err != nil || amount.IsNegative() {
		return decimal.Decimal{}, "", false
	}
	return amount, currency, true
}

func parseCurrency(raw string) string {
	s := strings.TrimSpace(raw)
	if isCurrencyCode(s) {
		return strings.ToUpper(s)
	}
	if r := []rune(s); len(r) == 1 {
		return currencySymbols[r[0]]
	}
	return ""
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) || r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

func squash(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
