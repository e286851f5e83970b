// Package commands implements jobsched's CLI commands using cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd builds the root command with every subcommand registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "jobsched",
		Short: "jobsched - scheduler for the ingestion pipeline",
		Long: `jobsched stores job definitions durably, fires them on cron,
interval, or one-time schedules, and runs each firing as an isolated
pipeline child process.

Examples:
  jobsched job list
  jobsched job create-cron nightly --hour 2 --minute 0
  jobsched preset daily_2am ingest
  jobsched serve`,
		Version: version,
	}

	rootCmd.AddCommand(
		newJobCmd(),
		newPresetCmd(),
		newImportExportCmd(),
		newHealthCmd(),
		newServeCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the scheduler config file")

	return rootCmd
}
