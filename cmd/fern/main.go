package main

import (
	"os"

	"github.com/spf13/cobra"
)

var envFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "fern",
		Short:         "Map spreadsheet rows onto person records and match them against known persons",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional .env file read before the environment")

	cmd.AddCommand(
		serveCmd(),
		importCmd(),
		consumeCmd(),
		dedupeCmd(),
		purgeCmd(),
		migrateCmd(),
	)
	return cmd
}
