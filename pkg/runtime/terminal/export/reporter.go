package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/template"

	"github.com/de-tools/advisor-reports/pkg/adapters"
	"github.com/de-tools/advisor-reports/pkg/models/domain"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(raw)); f {
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unsupported format %q, expected one of text, json, yaml", raw)
	}
}

type TableConfig struct {
	PriorityWidth    int
	CategoryWidth    int
	ImpactWidth      int
	ResourceWidth    int
	SavingsWidth     int
	DescriptionWidth int
}

func DefaultTableConfig() TableConfig {
	return TableConfig{
		PriorityWidth:    8,
		CategoryWidth:    22,
		ImpactWidth:      6,
		ResourceWidth:    28,
		SavingsWidth:     16,
		DescriptionWidth: 48,
	}
}

type Reporter struct {
	writer io.Writer
	config TableConfig
	format Format
}

func NewReporter(writer io.Writer, format Format) *Reporter {
	if writer == nil {
		writer = os.Stdout
	}
	if format == "" {
		format = FormatText
	}
	return &Reporter{
		writer: writer,
		config: DefaultTableConfig(),
		format: format,
	}
}

// Handle writes the report. The text table lists recommendations in priority order.
func (c *Reporter) Handle(report *domain.Report) error {
	out := adapters.MapReportDomainToApi(report)

	switch c.format {
	case FormatJSON:
		enc := json.NewEncoder(c.writer)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case FormatYAML:
		enc := yaml.NewEncoder(c.writer)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		return enc.Close()
	}

	funcMap := template.FuncMap{
		"formatRow": func(priority, category, impact, resource, savings, desc string) string {
			return fmt.Sprintf("| %-*s | %-*s | %-*s | %-*s | %*s | %-*s |",
				c.config.PriorityWidth, priority,
				c.config.CategoryWidth, clip(category, c.config.CategoryWidth),
				c.config.ImpactWidth, impact,
				c.config.ResourceWidth, clip(resource, c.config.ResourceWidth),
				c.config.SavingsWidth, savings,
				c.config.DescriptionWidth, clip(desc, c.config.DescriptionWidth))
		},
		"separator": func() string {
			cols := []int{
				c.config.PriorityWidth, c.config.CategoryWidth, c.config.ImpactWidth,
				c.config.ResourceWidth, c.config.SavingsWidth, c.config.DescriptionWidth,
			}
			var sb strings.Builder
			sb.WriteString("+")
			for _, w := range cols {
				sb.WriteString(strings.Repeat("-", w+2))
				sb.WriteString("+")
			}
			return sb.String()
		},
		"savings": func(amount, currency string) string {
			if amount == "" {
				return "-"
			}
			return currency + " " + amount
		},
		"sorted": sortedKeys,
		"itoa":   func(i int) string { return fmt.Sprint(i) },
	}

	tmpl := `
{{.ClientID}} {{.ReportType}} report ({{.ID}})
Generated: {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}
Recommendations: {{.Aggregates.TotalRecommendations}}
{{range $cur := sorted .Aggregates.SavingsByCurrency}}Potential savings: {{$cur}} {{index $.Aggregates.SavingsByCurrency $cur}}
{{end}}
{{separator}}
{{formatRow "Priority" "Category" "Impact" "Resource" "Savings" "Description"}}
{{separator}}
{{range $i := .PriorityOrder}}{{with index $.Recommendations $i}}{{$s := ""}}{{$cur := ""}}{{if .PotentialSavings}}{{$s = .PotentialSavings.Amount}}{{$cur = .PotentialSavings.Currency}}{{end}}{{formatRow (itoa .PriorityScore) .Category .BusinessImpact .ResourceName (savings $s $cur) .Description}}
{{end}}{{end}}{{separator}}
`

	t, err := template.New("report").Funcs(funcMap).Parse(tmpl)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	return t.Execute(c.writer, out)
}

func clip(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 3 {
		return string(r[:width])
	}
	return string(r[:width-3]) + "..."
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
