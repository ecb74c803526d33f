// Package cmd implements the meetscribe command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "meetscribe",
	Short: "Meeting transcript indexing and grounded Q&A",
	Long: `meetscribe indexes meeting transcripts and uploaded documents into a
vector store and answers questions grounded in that content.

Commands cover the full pipeline: run migrations, register and prepare
documents, ask questions, and surface suggestions for upcoming meetings.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
