package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/archonhq/archon/internal/app"
	"github.com/archonhq/archon/internal/config"
	"github.com/archonhq/archon/internal/log"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run one ingestion pass and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest()
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(log.Config{Level: slog.LevelInfo})

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	report, err := a.Runner.TryRun(ctx)
	if err != nil {
		return fmt.Errorf("ingestion run: %w", err)
	}

	fmt.Printf("Ingestion complete in %s\n", report.Duration.Round(time.Millisecond))
	fmt.Printf("  Discovered: %d\n", report.Discovered)
	fmt.Printf("  New:        %d\n", report.New)
	fmt.Printf("  Changed:    %d\n", report.Changed)
	fmt.Printf("  Unchanged:  %d\n", report.Unchanged)
	fmt.Printf("  Deleted:    %d\n", report.Deleted)
	fmt.Printf("  Failed:     %d\n", report.Failed)
	fmt.Printf("  Chunks:     %d\n", report.Chunks)
	for _, docErr := range report.Errors {
		fmt.Printf("  error: %s: %v\n", docErr.Key, docErr.Err)
	}

	if report.Failed > 0 {
		return fmt.Errorf("%d documents failed", report.Failed)
	}
	return nil
}
