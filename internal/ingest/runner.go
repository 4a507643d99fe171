package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/archonhq/archon/internal/metrics"
)

// ErrRunInProgress is returned when a run is requested while another is
// still active.
var ErrRunInProgress = errors.New("ingestion run already in progress")

// Runner serializes ingestion runs. The cross-store ordering invariants
// assume a single mutator, so overlapping triggers are rejected, never
// queued behind each other.
type Runner struct {
	pipeline *Pipeline
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	lastRun time.Time
}

// NewRunner creates a Runner around a pipeline.
func NewRunner(pipeline *Pipeline, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{pipeline: pipeline, logger: logger}
}

// TryRun executes one ingestion run unless one is already active, in which
// case it returns ErrRunInProgress without blocking.
func (r *Runner) TryRun(ctx context.Context) (*Report, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		metrics.IngestRunSkipped()
		return nil, ErrRunInProgress
	}
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.lastRun = time.Now()
		r.mu.Unlock()
	}()

	return r.pipeline.Run(ctx)
}

// LastRun reports when the most recent run finished, zero if none has.
func (r *Runner) LastRun() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRun
}

// Running reports whether a run is currently active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
