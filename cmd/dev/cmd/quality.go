package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gophertribe/devtool/test"
	"github.com/spf13/cobra"
)

// step wraps a devtool task in a command that logs its duration.
func step(use, short, what string, run func() error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			if err := run(); err != nil {
				return fmt.Errorf("failed to run %s: %w", what, err)
			}
			slog.Info(what+" finished", "took", time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}

// TestCmd runs the unit tests; none of them need hardware.
func TestCmd() *cobra.Command {
	return step("test", "Run unit tests", "tests", test.Test)
}

func LintCmd() *cobra.Command {
	return step("lint", "Run linting", "linting", test.Lint)
}

// IntegrationTestCmd runs the tests that talk to a real expander and
// converter.
func IntegrationTestCmd() *cobra.Command {
	return step("integration-test", "Run integration tests against attached hardware", "integration testing", test.Integ)
}
