package main

import (
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "nanoclaw",
	Short: "NanoClaw - host-resident orchestrator for containerized agents",
	Long: `NanoClaw drives containerized agent subprocesses for conversational
groups: it routes chat messages, runs scheduled tasks, dispatches file-drop
IPC actions, and serves the dashboard's admin API.`,
	Version: Version,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
}
