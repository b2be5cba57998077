package cmd

import (
	"fmt"
	"log/slog"

	"github.com/gophertribe/devtool/test"
	"github.com/spf13/cobra"
)

// simulationPackages run the firmware against the simulated peripheral.
var simulationPackages = []string{"./slave/...", "./app/...", "./cmd/ottoctl/..."}

func TestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run host tests, optionally checking the firmware still builds",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := test.Test(); err != nil {
				return fmt.Errorf("failed to run tests: %w", err)
			}
			firmware, err := cmd.Flags().GetBool("firmware")
			if err != nil {
				return fmt.Errorf("could not get firmware flag: %w", err)
			}
			if !firmware {
				return nil
			}
			target, err := cmd.Flags().GetString("target")
			if err != nil {
				return fmt.Errorf("could not get target flag: %w", err)
			}
			slog.Info("Checking firmware build", "target", target)
			if err := tinygo(cmd, "build", "-target", target, "-o", "/dev/null", firmwarePackage); err != nil {
				return fmt.Errorf("firmware does not build: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().Bool("firmware", false, "also build the firmware with tinygo")
	cmd.Flags().String("target", "bluepill", "tinygo target")
	return cmd
}

func LintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lint",
		Short: "Run linting",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := test.Lint(); err != nil {
				return fmt.Errorf("failed to run linting: %w", err)
			}
			return nil
		},
	}
}

func IntegrationTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "integration-test",
		Short: "Run the simulated bus tests under the race detector",
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := cmd.Flags().GetInt("count")
			if err != nil {
				return fmt.Errorf("could not get count flag: %w", err)
			}
			goArgs := append([]string{"test", "-race", fmt.Sprintf("-count=%d", count)}, simulationPackages...)
			if err := run(cmd, "go", goArgs...); err != nil {
				return fmt.Errorf("failed to run integration testing: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().Int("count", 1, "repeat each test this many times")
	return cmd
}
