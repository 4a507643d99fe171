package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Scheduler triggers ingestion runs on a fixed interval. It relies on the
// Runner for the single-writer guarantee; a tick that arrives while a run is
// active is dropped.
type Scheduler struct {
	runner   *Runner
	interval time.Duration
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler. Interval must be positive.
func NewScheduler(runner *Runner, interval time.Duration, logger *slog.Logger) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("scheduler interval must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{runner: runner, interval: interval, logger: logger}, nil
}

// Start runs an immediate pass, then ticks until ctx is canceled. It blocks;
// callers run it in its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("ingestion scheduler started", "interval", s.interval)

	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("ingestion scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	_, err := s.runner.TryRun(ctx)
	switch {
	case errors.Is(err, ErrRunInProgress):
		s.logger.Warn("skipping scheduled ingestion, previous run still active")
	case err != nil:
		s.logger.Error("scheduled ingestion failed", "error", err)
	}
}
