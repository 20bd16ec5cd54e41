package cli

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/getmockd/expectd/pkg/config"
	"github.com/getmockd/expectd/pkg/engine"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file|glob>...",
		Short: "Validate expectation files without starting a server",
		Long: `Parse and validate expectation files. Each argument is a file path or a
doublestar glob. Matchers, actions, templates and OpenAPI references are
checked the same way the server checks them on upsert.`,
		Example: `  expectd validate expectations.json
  expectd validate 'expectations/**/*.yaml'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateFiles(cmd.Context(), cmd, args)
		},
	}
}

func validateFiles(ctx context.Context, cmd *cobra.Command, patterns []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	e, err := engine.New()
	if err != nil {
		return err
	}

	var result *multierror.Error
	total := 0
	for _, pattern := range patterns {
		exps, err := config.LoadExpectations([]string{pattern}, "")
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if _, err := e.Upsert(ctx, exps...); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", pattern, err))
			continue
		}
		total += len(exps)
	}
	if err := result.ErrorOrNil(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d expectations valid\n", total)
	return nil
}
