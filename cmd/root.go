package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "orderdesk",
	Short: "Order desk: ticket lifecycle, chat relay, catalog cache and image proxy",
	RunE:  runServe,
}

// Execute runs the command tree.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(refreshCmd)
}
