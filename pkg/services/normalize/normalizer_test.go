package normalize

import (
	"testing"

	"github.com/de-tools/advisor-reports/pkg/models/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(fields map[string]string) domain.SourceRow {
	return domain.SourceRow{Origin: "advisor.csv", Index: 4, Fields: fields}
}

func TestNormalizer_Normalize(t *testing.T) {
	n := NewNormalizer("")

	rec := n.Normalize(row(map[string]string{
		domain.FieldCategory:         " cost ",
		domain.FieldBusinessImpact:   "HIGH",
		domain.FieldRecommendation:   "Right-size underutilized virtual machines",
		domain.FieldSubscriptionID:   "sub-1",
		domain.FieldSubscriptionName: "Production",
		domain.FieldResourceGroup:    "rg-prod",
		domain.FieldResourceName:     "vm-1",
		domain.FieldResourceType:     "Microsoft.Compute/virtualMachines",
		domain.FieldPotentialSavings: "$1,200.50",
	}))

	assert.Equal(t, domain.CategoryCost, rec.Category)
	assert.Equal(t, domain.ImpactHigh, rec.BusinessImpact)
	assert.Equal(t, "vm-1", rec.ResourceName)
	require.NotNil(t, rec.PotentialSavings)
	assert.True(t, decimal.RequireFromString("1200.50").Equal(rec.PotentialSavings.Amount))
	assert.Equal(t, "USD", rec.PotentialSavings.Currency)
	assert.Equal(t, "advisor.csv", rec.SourceRow.Origin)
	assert.Equal(t, 4, rec.SourceRow.Index)
}

func TestNormalizer_Defaults(t *testing.T) {
	n := NewNormalizer("")

	tests := []struct {
		name     string
		fields   map[string]string
		category domain.Category
		impact   domain.Impact
	}{
		{name: "nil fields", fields: nil, category: domain.CategoryOperationalExcellence, impact: domain.ImpactLow},
		{name: "blank values", fields: map[string]string{domain.FieldCategory: "", domain.FieldBusinessImpact: " "},
			category: domain.CategoryOperationalExcellence, impact: domain.ImpactLow},
		{name: "unknown values", fields: map[string]string{domain.FieldCategory: "Sustainability", domain.FieldBusinessImpact: "Critical"},
			category: domain.CategoryOperationalExcellence, impact: domain.ImpactLow},
		{name: "advisor high availability", fields: map[string]string{domain.FieldCategory: "HighAvailability", domain.FieldBusinessImpact: "Medium"},
			category: domain.CategoryReliability, impact: domain.ImpactMedium},
		{name: "spaced operational excellence", fields: map[string]string{domain.FieldCategory: "Operational excellence"},
			category: domain.CategoryOperationalExcellence, impact: domain.ImpactLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := n.Normalize(row(tt.fields))
			assert.Equal(t, tt.category, rec.Category)
			assert.Equal(t, tt.impact, rec.BusinessImpact)
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		raw      string
		want     string
		currency string
		ok       bool
	}{
		{raw: "", ok: false},
		{raw: "N/A", ok: false},
		{raw: "-", ok: false},
		{raw: "n/a ", ok: false},
		{raw: "abc", ok: false},
		{raw: "12abc", ok: false},
		{raw: "-15", ok: false},
		{raw: "1.2.3", ok: false},
		{raw: "42", want: "42", ok: true},
		{raw: "1,234.56", want: "1234.56", ok: true},
		{raw: "€99.90", want: "99.90", currency: "EUR", ok: true},
		{raw: "250 GBP", want: "250", currency: "GBP", ok: true},
		{raw: "usd 10", want: "10", currency: "USD", ok: true},
		{raw: "0", want: "0", ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			amount, currency, ok := ParseAmount(tt.raw)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.True(t, decimal.RequireFromString(tt.want).Equal(amount), "got %s", amount)
			assert.Equal(t, tt.currency, currency)
		})
	}
}

func TestNormalizer_Currency(t *testing.T) {
	n := NewNormalizer("usd")

	rec := n.Normalize(row(map[string]string{domain.FieldPotentialSavings: "€10", domain.FieldCurrency: "chf"}))
	require.NotNil(t, rec.PotentialSavings)
	assert.Equal(t, "CHF", rec.PotentialSavings.Currency, "explicit column wins over symbol")

	rec = n.Normalize(row(map[string]string{domain.FieldPotentialSavings: "€10"}))
	assert.Equal(t, "EUR", rec.PotentialSavings.Currency)

	rec = n.Normalize(row(map[string]string{domain.FieldPotentialSavings: "10", domain.FieldCurrency: "dollars"}))
	assert.Equal(t, "USD", rec.PotentialSavings.Currency)

	rec = n.Normalize(row(map[string]string{domain.FieldPotentialSavings: "N/A", domain.FieldCurrency: "USD"}))
	assert.Nil(t, rec.PotentialSavings)
}

func assertSameRecommendation(t *testing.T, want, got domain.Recommendation) {
	t.Helper()
	if want.PotentialSavings == nil {
		assert.Nil(t, got.PotentialSavings)
	} else {
		require.NotNil(t, got.PotentialSavings)
		assert.True(t, want.PotentialSavings.Amount.Equal(got.PotentialSavings.Amount))
		assert.Equal(t, want.PotentialSavings.Currency, got.PotentialSavings.Currency)
	}
	want.PotentialSavings, got.PotentialSavings = nil, nil
	assert.Equal(t, want, got)
}

func TestNormalizer_Idempotent(t *testing.T) {
	n := NewNormalizer("")

	rows := []map[string]string{
		nil,
		{domain.FieldCategory: "", domain.FieldPotentialSavings: "N/A"},
		{domain.FieldCategory: "HighAvailability", domain.FieldBusinessImpact: "high", domain.FieldPotentialSavings: "$1,000.10"},
		{domain.FieldCategory: "Security", domain.FieldBusinessImpact: "medium", domain.FieldPotentialSavings: "12 EUR",
			domain.FieldRecommendation: "  Enable Defender  ", domain.FieldResourceGroup: "rg"},
		{domain.FieldCategory: "garbage", domain.FieldBusinessImpact: "???", domain.FieldPotentialSavings: "0.000"},
	}

	for _, fields := range rows {
		once := n.Normalize(row(fields))
		twice := n.Renormalize(once)
		assertSameRecommendation(t, once, twice)
		assert.True(t, twice.Category.Valid())
		assert.True(t, twice.BusinessImpact.Valid())
	}
}
