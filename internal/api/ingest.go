package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/archonhq/archon/internal/ingest"
)

type ingestHandler struct {
	runner *ingest.Runner
	logger *slog.Logger
}

// trigger handles POST /v1/ingest/run: kicks off an out-of-schedule run in
// the background. The Runner rejects overlap, so a manual trigger can never
// race the scheduler.
func (h *ingestHandler) trigger(w http.ResponseWriter, r *http.Request) {
	if h.runner.Running() {
		writeError(w, http.StatusConflict,
			"RUN_IN_PROGRESS", "an ingestion run is already in progress", "", h.logger)
		return
	}

	go func() {
		// Detached from the request; a disconnecting caller must not abort
		// a half-finished run.
		report, err := h.runner.TryRun(context.Background())
		if errors.Is(err, ingest.ErrRunInProgress) {
			return
		}
		if err != nil {
			h.logger.Error("manual ingestion run failed", "error", err)
			return
		}
		h.logger.Info("manual ingestion run complete", "report", report)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"}, h.logger)
}
