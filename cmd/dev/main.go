package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/topisani/ottofw/cmd/dev/cmd"
)

var debug bool

func main() {
	rootCmd := &cobra.Command{
		Use:   "dev",
		Short: "build/test/flash tool for the otto firmware",
		Long:  "Builds the ottoctl host tool, runs the simulated bus tests and flashes the controller.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			charm := log.NewWithOptions(os.Stdout, log.Options{
				ReportTimestamp: true,
				TimeFormat:      time.TimeOnly,
				Prefix:          "otto",
			})
			charm.SetColorProfile(termenv.TrueColor)
			charm.SetLevel(log.InfoLevel)
			if debug {
				charm.SetLevel(log.DebugLevel)
				charm.SetReportCaller(true)
			}
			slog.SetDefault(slog.New(charm))
		},
	}
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddGroup(
		&cobra.Group{ID: "host", Title: "Host tool:"},
		&cobra.Group{ID: "firmware", Title: "Controller firmware:"},
	)
	for _, c := range []*cobra.Command{cmd.BuildCmd(), cmd.ChangelogCmd(), cmd.TestCmd(), cmd.LintCmd(), cmd.IntegrationTestCmd()} {
		c.GroupID = "host"
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{cmd.FirmwareCmd(), cmd.FlashCmd()} {
		c.GroupID = "firmware"
		rootCmd.AddCommand(c)
	}

	if err := rootCmd.Execute(); err != nil {
		slog.Error("unexpected error", "error", err)
		os.Exit(1)
	}
}
