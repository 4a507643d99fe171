// Package embed wraps the Genkit embedder with rate limiting, retry and
// output dimension enforcement.
package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// Errors returned by the embedder.
var (
	// ErrEmptyInput indicates an embed call with no text.
	ErrEmptyInput = errors.New("empty embedding input")

	// ErrEmptyResponse indicates the provider returned no embeddings.
	ErrEmptyResponse = errors.New("empty embedding response")

	// ErrDimensionMismatch indicates the provider returned a vector whose
	// length differs from the requested output dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// TransientError marks a failure that exhausted retries but may succeed on a
// later run. Callers use errors.As to distinguish it from permanent failures.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient embedding failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// genkitEmbedder is the subset of ai.Embedder the service needs.
type genkitEmbedder interface {
	Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error)
}

// Service generates fixed-dimension embeddings for documents and queries.
// It is safe for concurrent use.
type Service struct {
	embedder    genkitEmbedder
	dimensions  int32
	rateLimiter *rate.Limiter
	retryConfig RetryConfig
	logger      *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithRateLimiter sets the limiter applied before each provider call.
func WithRateLimiter(rl *rate.Limiter) Option {
	return func(s *Service) { s.rateLimiter = rl }
}

// WithRetryConfig overrides the default retry behavior.
func WithRetryConfig(rc RetryConfig) Option {
	return func(s *Service) { s.retryConfig = rc }
}

// New creates a Service that requests dimensions-sized vectors.
// gemini-embedding-001 truncates its native output via OutputDimensionality,
// so the schema dimension and the request dimension come from one config value.
func New(embedder genkitEmbedder, dimensions int, logger *slog.Logger, opts ...Option) (*Service, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("invalid dimensions: %d", dimensions)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		embedder:    embedder,
		dimensions:  int32(dimensions),
		rateLimiter: rate.NewLimiter(10, 30),
		retryConfig: DefaultRetryConfig(),
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Embed generates the embedding for a single text.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for texts in order. The whole batch is one
// provider request so a transient failure retries it wholesale.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	for i, text := range texts {
		if text == "" {
			return nil, fmt.Errorf("%w: text %d", ErrEmptyInput, i)
		}
	}

	docs := make([]*ai.Document, len(texts))
	for i, text := range texts {
		docs[i] = ai.DocumentFromText(text, nil)
	}
	dim := s.dimensions
	req := &ai.EmbedRequest{
		Input:   docs,
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	}

	resp, err := s.embedWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts",
			ErrEmptyResponse, len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Embedding) == 0 {
			return nil, fmt.Errorf("%w: embedding %d", ErrEmptyResponse, i)
		}
		if len(emb.Embedding) != int(s.dimensions) {
			return nil, fmt.Errorf("%w: got %d, want %d",
				ErrDimensionMismatch, len(emb.Embedding), s.dimensions)
		}
		vectors[i] = emb.Embedding
	}
	return vectors, nil
}

// embedWithRetry calls the provider with exponential backoff. Each attempt
// waits on the rate limiter so retries do not burst past the quota.
func (s *Service) embedWithRetry(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	var lastErr error
	delay := s.retryConfig.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= s.retryConfig.MaxRetries; attempt++ {
		if s.rateLimiter != nil {
			if err := s.rateLimiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		resp, err := s.embedder.Embed(ctx, req)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if !retryableError(err) {
			return nil, fmt.Errorf("embed: %w", err)
		}

		if attempt == s.retryConfig.MaxRetries {
			break
		}

		s.logger.Debug("retrying embedding after error",
			"attempt", attempt+1,
			"delay", delay,
			"elapsed", time.Since(start),
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, s.retryConfig.MaxInterval)
		}
	}

	return nil, &TransientError{
		Err: fmt.Errorf("embed after %d retries (elapsed: %v): %w",
			s.retryConfig.MaxRetries, time.Since(start), lastErr),
	}
}
