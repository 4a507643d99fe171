// Package cmd contains the CLI entry points.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "archon",
	Short: "Archon - documentation RAG service",
	Long: `Archon keeps a vector index synchronized with documentation files across
configured repositories and answers questions against it through an
OpenAI-compatible chat endpoint.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
