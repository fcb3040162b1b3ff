package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/de-tools/advisor-reports/pkg/models/domain"
	"github.com/de-tools/advisor-reports/pkg/runtime/terminal/export"
	"github.com/spf13/cobra"
)

type Generator interface {
	Generate(ctx context.Context, clientID, path string, reportType domain.ReportType) (*domain.Report, error)
}

type GenerateCmd struct {
	filePath   string
	clientID   string
	reportType string
	format     string
	generator  Generator
	newOutput  func(format export.Format) *export.Reporter
}

func NewGenerateCmd(generator Generator, newOutput func(format export.Format) *export.Reporter) *cobra.Command {
	gc := &GenerateCmd{generator: generator, newOutput: newOutput}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a report from an Azure Advisor CSV export",
		RunE:  gc.run,
	}

	cmd.Flags().StringVar(&gc.filePath, "file", "", "Path to the Advisor CSV export")
	cmd.Flags().StringVar(&gc.clientID, "client", "", "Client the report is generated for")
	cmd.Flags().StringVar(&gc.reportType, "type", string(domain.ReportTypeDetailed),
		"Report type (cost, security, operations, detailed, executive)")
	cmd.Flags().StringVar(&gc.format, "format", string(export.FormatText), "Output format (text, json, yaml)")

	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("client")

	return cmd
}

func (gc *GenerateCmd) run(cmd *cobra.Command, _ []string) error {
	format, err := export.ParseFormat(gc.format)
	if err != nil {
		return err
	}

	reportType := domain.ReportType(strings.ToLower(gc.reportType))
	if !reportType.Valid() {
		return fmt.Errorf("unsupported report type %q. Supported types: %v", gc.reportType, domain.ReportTypes)
	}

	report, err := gc.generator.Generate(cmd.Context(), gc.clientID, gc.filePath, reportType)
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	return gc.newOutput(format).Handle(report)
}
