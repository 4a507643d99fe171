// Package vector implements the pgvector-backed document store used for
// similarity retrieval.
package vector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// Store errors.
var (
	// ErrDimensionMismatch indicates an embedding whose length differs from
	// the store's configured dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmptyID indicates a record with no id.
	ErrEmptyID = errors.New("record id is empty")
)

// Record is one chunk stored in the index.
type Record struct {
	ID        string
	Content   string
	Metadata  map[string]any
	Embedding []float32
}

// Hit is a retrieval result with its cosine similarity in [0, 1].
type Hit struct {
	ID         string
	Content    string
	Metadata   map[string]any
	Similarity float64
}

// Querier is the subset of pgxpool.Pool the store needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists and retrieves embedded chunks in PostgreSQL via pgvector.
type Store struct {
	db         Querier
	dimensions int
	logger     *slog.Logger
}

// New creates a Store bound to a fixed embedding dimensionality. Every write
// and query is validated against it before touching the database.
func New(db Querier, dimensions int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, dimensions: dimensions, logger: logger}
}

// Dimensions returns the configured embedding dimensionality.
func (s *Store) Dimensions() int {
	return s.dimensions
}

func (s *Store) checkDimensions(embedding []float32) error {
	if len(embedding) != s.dimensions {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), s.dimensions)
	}
	return nil
}

// Upsert writes records by id, replacing content, metadata and embedding on
// conflict. The whole batch is validated before the first write so a
// mismatched record fails fast instead of leaving a partial upsert.
func (s *Store) Upsert(ctx context.Context, records []Record) error {
	for _, rec := range records {
		if rec.ID == "" {
			return ErrEmptyID
		}
		if err := s.checkDimensions(rec.Embedding); err != nil {
			return fmt.Errorf("record %s: %w", rec.ID, err)
		}
	}

	for _, rec := range records {
		_, err := s.db.Exec(ctx,
			`INSERT INTO documents (id, content, embedding, metadata, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, now(), now())
			 ON CONFLICT (id) DO UPDATE
			 SET content = EXCLUDED.content,
			     embedding = EXCLUDED.embedding,
			     metadata = EXCLUDED.metadata,
			     updated_at = now()`,
			rec.ID, rec.Content, pgvector.NewVector(rec.Embedding), rec.Metadata,
		)
		if err != nil {
			return fmt.Errorf("upserting record %s: %w", rec.ID, err)
		}
	}

	s.logger.Debug("upserted records", "count", len(records))
	return nil
}

// Delete removes records by id. Missing ids are not an error; deletion is
// idempotent so a re-run after a crash converges.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tag, err := s.db.Exec(ctx, `DELETE FROM documents WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("deleting records: %w", err)
	}

	s.logger.Debug("deleted records", "requested", len(ids), "deleted", tag.RowsAffected())
	return nil
}

// Query returns the k nearest records by cosine similarity, most similar
// first. Ties break on id so result order is deterministic. A non-nil filter
// restricts results to records whose metadata contains all given pairs.
func (s *Store) Query(ctx context.Context, embedding []float32, k int, filter map[string]any) ([]Hit, error) {
	if err := s.checkDimensions(embedding); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("invalid k: %d", k)
	}

	query := `SELECT id, content, metadata, 1 - (embedding <=> $1) AS similarity
		 FROM documents`
	args := []any{pgvector.NewVector(embedding)}
	if len(filter) > 0 {
		query += ` WHERE metadata @> $2`
		args = append(args, filter)
	}
	query += fmt.Sprintf(` ORDER BY embedding <=> $1, id LIMIT %d`, k)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var hit Hit
		if err := rows.Scan(&hit.ID, &hit.Content, &hit.Metadata, &hit.Similarity); err != nil {
			return nil, fmt.Errorf("scanning hit: %w", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating hits: %w", err)
	}

	return hits, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM documents`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return count, nil
}
