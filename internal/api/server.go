// Package api exposes the OpenAI-compatible query endpoint plus health and
// operational routes.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archonhq/archon/internal/ingest"
	"github.com/archonhq/archon/internal/metrics"
	"github.com/archonhq/archon/internal/rag"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger  *slog.Logger
	Chain   *rag.Chain     // Required
	Runner  *ingest.Runner // Optional: nil disables the manual trigger route
	Pool    *pgxpool.Pool  // Optional: nil disables pool stats in /ready
	Model   string         // Reported in chat responses
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Chain == nil {
		return nil, errors.New("query chain is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ch := &chatHandler{chain: cfg.Chain, model: cfg.Model, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", ch.completions)

	if cfg.Runner != nil {
		ih := &ingestHandler{runner: cfg.Runner, logger: logger}
		mux.HandleFunc("POST /v1/ingest/run", ih.trigger)
	}

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → Routes
	// RequestID must be before Logging so request_id is available in log attributes.
	var handler http.Handler = mux
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Top-level mux keeps probes and scrapes out of the middleware stack.
	topMux := http.NewServeMux()
	topMux.Handle("GET /health", health(logger))
	topMux.Handle("GET /ready", readiness(cfg.Pool, logger))
	topMux.Handle("GET /metrics", metrics.Handler())
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
