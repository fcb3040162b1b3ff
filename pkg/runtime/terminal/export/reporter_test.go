package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/de-tools/advisor-reports/pkg/models/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *domain.Report {
	recs := []domain.Recommendation{
		{
			Category:       domain.CategoryOperationalExcellence,
			BusinessImpact: domain.ImpactLow,
			Description:    "Enable diagnostic settings on every production web app in the subscription",
			ResourceName:   "app-1",
			PriorityScore:  8,
			SourceRow:      domain.SourceRow{Index: 0},
		},
		{
			Category:         domain.CategoryCost,
			BusinessImpact:   domain.ImpactHigh,
			Description:      "Right-size VM",
			ResourceName:     "vm-1",
			PotentialSavings: &domain.Money{Amount: decimal.RequireFromString("1200.5"), Currency: "USD"},
			PriorityScore:    0,
			SourceRow:        domain.SourceRow{Index: 1},
		},
	}
	return &domain.Report{
		ID:              "report-1",
		ClientID:        "acme",
		ReportType:      domain.ReportTypeCost,
		GeneratedAt:     time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		Recommendations: recs,
		Aggregates:      domain.ComputeAggregates(recs),
	}
}

func TestReporter_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewReporter(&buf, FormatText).Handle(sampleReport()))
	out := buf.String()

	assert.Contains(t, out, "acme cost report (report-1)")
	assert.Contains(t, out, "Generated: 2026-03-02 09:00:00 UTC")
	assert.Contains(t, out, "USD 1200.50")
	assert.Contains(t, out, "Enable diagnostic settings on every productio...")
	assert.Less(t, strings.Index(out, "vm-1"), strings.Index(out, "app-1"), "priority order")

	var rows []string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "|") {
			rows = append(rows, line)
		}
	}
	require.Len(t, rows, 3)
	assert.Equal(t, len(rows[0]), len(rows[1]))
	assert.Contains(t, rows[2], " - |")
}

func TestReporter_Formats(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewReporter(&buf, FormatYAML).Handle(sampleReport()))
	assert.Contains(t, buf.String(), "client_id: acme")
	assert.Contains(t, buf.String(), "amount: \"1200.50\"")

	buf.Reset()
	require.NoError(t, NewReporter(&buf, FormatJSON).Handle(sampleReport()))
	assert.Contains(t, buf.String(), `"total_recommendations": 2`)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatText, f)

	f, err = ParseFormat("YAML")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}
