// Package tracker implements the durable change tracker that decides, per
// document, whether it is new, changed, or unchanged since the prior
// ingestion run.
//
// One row per document identity, keyed by repository_url#branch#file_path.
// The chunk_ids column always reflects exactly the vectors currently in the
// vector store for the document; the ingestion pipeline's write ordering
// (vector upsert before Commit, vector delete before Delete) maintains that
// invariant across crashes.
package tracker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrMalformedKey indicates a tracker key that does not parse back into an
// identity.
var ErrMalformedKey = errors.New("malformed tracker key")

// Identity is the stable key for a document across runs.
type Identity struct {
	RepositoryURL string
	Branch        string
	FilePath      string
}

// Key serializes the identity as the tracker partition key.
func (id Identity) Key() string {
	return id.RepositoryURL + "#" + id.Branch + "#" + id.FilePath
}

// ParseKey is the inverse of Identity.Key.
func ParseKey(key string) (Identity, error) {
	parts := strings.SplitN(key, "#", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Identity{}, fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	return Identity{RepositoryURL: parts[0], Branch: parts[1], FilePath: parts[2]}, nil
}

// HashContent returns the SHA-256 hex digest of raw file bytes.
// Change detection is pure hash comparison; collision risk is negligible.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Decision classifies a document relative to its last tracked state.
type Decision int

const (
	// DecisionNew means the document has never been tracked.
	DecisionNew Decision = iota

	// DecisionChanged means the content hash differs from the tracked one.
	DecisionChanged

	// DecisionUnchanged means the content hash matches the tracked one.
	DecisionUnchanged
)

// String implements Stringer for log output.
func (d Decision) String() string {
	switch d {
	case DecisionNew:
		return "new"
	case DecisionChanged:
		return "changed"
	case DecisionUnchanged:
		return "unchanged"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// Entry is one tracked document row.
type Entry struct {
	Identity      Identity
	ContentHash   string
	LastCheckedAt time.Time
	LastChangedAt time.Time
	ChunkIDs      []string
}

// Querier is the subset of pgxpool.Pool the store needs. Defined on the
// consumer side so tests can substitute a fake.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the PostgreSQL-backed change tracker.
// It is safe for concurrent use, though ingestion is single-writer.
type Store struct {
	db     Querier
	logger *slog.Logger
}

// New creates a Store. A nil logger falls back to slog.Default().
func New(db Querier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Decide classifies a document by comparing the current content hash against
// the tracked one.
func (s *Store) Decide(ctx context.Context, id Identity, currentHash string) (Decision, error) {
	var trackedHash string
	err := s.db.QueryRow(ctx,
		`SELECT content_hash FROM doc_tracker WHERE doc_key = $1`,
		id.Key(),
	).Scan(&trackedHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return DecisionNew, nil
	}
	if err != nil {
		return 0, fmt.Errorf("deciding %s: %w", id.Key(), err)
	}

	if trackedHash == currentHash {
		return DecisionUnchanged, nil
	}
	return DecisionChanged, nil
}

// Commit records the new hash and chunk ids for a document. A single
// upsert statement keeps the hash, timestamps and chunk_ids update
// atomic per identity.
func (s *Store) Commit(ctx context.Context, id Identity, newHash string, chunkIDs []string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO doc_tracker (doc_key, content_hash, last_checked_at, last_changed_at, chunk_ids)
		 VALUES ($1, $2, now(), now(), $3)
		 ON CONFLICT (doc_key) DO UPDATE
		 SET content_hash = EXCLUDED.content_hash,
		     last_checked_at = now(),
		     last_changed_at = now(),
		     chunk_ids = EXCLUDED.chunk_ids`,
		id.Key(), newHash, chunkIDs,
	)
	if err != nil {
		return fmt.Errorf("committing %s: %w", id.Key(), err)
	}

	s.logger.Debug("committed tracker entry", "key", id.Key(), "chunks", len(chunkIDs))
	return nil
}

// Get returns the tracked entry for one identity, or pgx.ErrNoRows wrapped
// if the identity is untracked.
func (s *Store) Get(ctx context.Context, id Identity) (Entry, error) {
	entry := Entry{Identity: id}
	err := s.db.QueryRow(ctx,
		`SELECT content_hash, last_checked_at, last_changed_at, chunk_ids
		 FROM doc_tracker WHERE doc_key = $1`,
		id.Key(),
	).Scan(&entry.ContentHash, &entry.LastCheckedAt, &entry.LastChangedAt, &entry.ChunkIDs)
	if err != nil {
		return Entry{}, fmt.Errorf("getting %s: %w", id.Key(), err)
	}
	return entry, nil
}

// Touch updates last_checked_at for an unchanged document.
func (s *Store) Touch(ctx context.Context, id Identity) error {
	_, err := s.db.Exec(ctx,
		`UPDATE doc_tracker SET last_checked_at = now() WHERE doc_key = $1`,
		id.Key(),
	)
	if err != nil {
		return fmt.Errorf("touching %s: %w", id.Key(), err)
	}
	return nil
}

// List returns every tracked entry. Used by the pipeline to compute the
// prune set (tracked minus seen-this-run).
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT doc_key, content_hash, last_checked_at, last_changed_at, chunk_ids
		 FROM doc_tracker`)
	if err != nil {
		return nil, fmt.Errorf("listing tracker entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			key   string
			entry Entry
		)
		if err := rows.Scan(&key, &entry.ContentHash, &entry.LastCheckedAt, &entry.LastChangedAt, &entry.ChunkIDs); err != nil {
			return nil, fmt.Errorf("scanning tracker entry: %w", err)
		}
		id, parseErr := ParseKey(key)
		if parseErr != nil {
			// A malformed row cannot be pruned safely; surface it.
			return nil, parseErr
		}
		entry.Identity = id
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tracker entries: %w", err)
	}

	return entries, nil
}

// Delete removes a tracked entry. Callers must delete the corresponding
// vectors from the vector store first.
func (s *Store) Delete(ctx context.Context, id Identity) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM doc_tracker WHERE doc_key = $1`,
		id.Key(),
	)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", id.Key(), err)
	}

	s.logger.Debug("deleted tracker entry", "key", id.Key())
	return nil
}

// Ping verifies the tracker table is reachable. The ingestion pipeline calls
// this before any mutation so a dead store aborts the run wholesale.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRow(ctx, `SELECT 1 FROM doc_tracker LIMIT 1`).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil // Empty table is still reachable
		}
		return fmt.Errorf("tracker store unreachable: %w", err)
	}
	return nil
}
