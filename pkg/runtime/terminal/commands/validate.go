package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

type HeaderValidator interface {
	ValidateHeader(ctx context.Context, path string) error
}

func NewValidateCmd(validator HeaderValidator) *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that a CSV export has every required column",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validator.ValidateHeader(cmd.Context(), filePath); err != nil {
				return fmt.Errorf("%s: %w", filePath, err)
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s: header ok\n", filePath)
			return err
		},
	}

	cmd.Flags().StringVar(&filePath, "file", "", "Path to the Advisor CSV export")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
