package ingest

import (
	"log/slog"
	"time"
)

// DocumentError records a per-document failure that degraded a run without
// aborting it.
type DocumentError struct {
	Key string
	Err error
}

// Report holds the counters for one ingestion run.
type Report struct {
	StartedAt  time.Time
	Duration   time.Duration
	Discovered int
	New        int
	Changed    int
	Unchanged  int
	Deleted    int
	Failed     int
	Chunks     int
	Errors     []DocumentError
}

// LogValue implements slog.LogValuer so a report logs as one group.
func (r *Report) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("discovered", r.Discovered),
		slog.Int("new", r.New),
		slog.Int("changed", r.Changed),
		slog.Int("unchanged", r.Unchanged),
		slog.Int("deleted", r.Deleted),
		slog.Int("failed", r.Failed),
		slog.Int("chunks", r.Chunks),
		slog.Duration("duration", r.Duration),
	)
}
