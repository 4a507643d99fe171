package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/archonhq/archon/internal/config"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and configuration information",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVersion()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion() error {
	fmt.Printf("Archon %s\n", AppVersion)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)

	cfg, err := config.Load()
	if err != nil {
		// Version output should work without a usable config
		return nil
	}

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("  Model: %s\n", cfg.ModelName)
	fmt.Printf("  Embedder: %s (%d dimensions)\n", cfg.EmbedderModel, cfg.VectorDimensions)
	fmt.Printf("  Temperature: %.2f\n", cfg.Temperature)
	fmt.Printf("  Max tokens: %d\n", cfg.MaxTokens)
	fmt.Printf("  Retrieval k: %d\n", cfg.RetrievalK)
	fmt.Printf("  Chunking: %d chars, %d overlap\n", cfg.ChunkSize, cfg.ChunkOverlap)
	fmt.Printf("  Repositories: %d\n", len(cfg.Repositories))
	fmt.Printf("  Sync interval: %s\n", cfg.SyncInterval)
	return nil
}
