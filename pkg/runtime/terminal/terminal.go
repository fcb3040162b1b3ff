package terminal

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/de-tools/advisor-reports/pkg/models/domain"
	"github.com/de-tools/advisor-reports/pkg/runtime/terminal/commands"
	"github.com/de-tools/advisor-reports/pkg/runtime/terminal/export"
	"github.com/de-tools/advisor-reports/pkg/services/ingest"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// CLI represents the command-line interface
type CLI struct {
	opener   ingest.FileOpener
	output   io.Writer
	logger   zerolog.Logger
	currency string
	timeout  time.Duration
	rootCmd  *cobra.Command
}

// Options contain configuration for the CLI
type Options struct {
	Opener ingest.FileOpener
	Output io.Writer
	Logger *zerolog.Logger
}

// NewCLI creates a new CLI instance
func NewCLI(opts Options) *CLI {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Opener == nil {
		opts.Opener = ingest.OpenLocalFile
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	cli := &CLI{
		opener: opts.Opener,
		output: opts.Output,
		logger: logger,
	}

	cli.rootCmd = cli.newRootCmd()
	return cli
}

func (cli *CLI) Execute(ctx context.Context) error {
	return cli.rootCmd.ExecuteContext(cli.logger.WithContext(ctx))
}

func (cli *CLI) SetArgs(args []string) {
	cli.rootCmd.SetArgs(args)
}

func (cli *CLI) newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "advisor-cli",
		Short:         "Azure Advisor report tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(cli.output)

	cmd.PersistentFlags().StringVar(&cli.currency, "currency", "USD", "Currency assumed when a row has none")
	cmd.PersistentFlags().DurationVar(&cli.timeout, "timeout", 2*time.Minute, "Maximum time for report generation")

	pipeline := func() commands.Generator {
		return NewPipeline(cli.opener, cli.currency, cli.timeout)
	}
	cmd.AddCommand(commands.NewGenerateCmd(lazyGenerator(pipeline), func(format export.Format) *export.Reporter {
		return export.NewReporter(cli.output, format)
	}))
	cmd.AddCommand(commands.NewValidateCmd(ingest.NewCSVAdapter(cli.opener)))

	return cmd
}

// lazyGenerator defers pipeline construction until flags are parsed.
type lazyGenerator func() commands.Generator

func (l lazyGenerator) Generate(
	ctx context.Context,
	clientID, path string,
	reportType domain.ReportType,
) (*domain.Report, error) {
	return l().Generate(ctx, clientID, path, reportType)
}
