package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "concierge",
	Short: "Multi-capability request orchestrator",
	Long: `Concierge routes natural-language requests to registered capability
handlers. Each request is classified against the capability catalog, routed
as a single, sequential, or parallel dispatch, executed with retries and
timeouts, and answered with one synthesized response per turn.

Session memory carries entities between turns, so "create project App"
followed by "generate the charter" reuses the new project's id without the
user repeating it.

With no arguments, starts an interactive chat session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(capabilitiesCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
