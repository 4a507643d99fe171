// Package ingest implements the incremental ingestion pipeline: discover
// files across configured repositories, classify each against the change
// tracker, chunk and embed what changed, and prune what disappeared.
//
// Write ordering is the load-bearing part. Vector upserts happen before the
// tracker commit, and vector deletes happen before the tracker delete, so a
// crash at any point leaves the tracker strictly behind the vector store.
// The next run re-derives the same deterministic chunk ids and converges by
// overwriting, never by duplicating.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/archonhq/archon/internal/config"
	"github.com/archonhq/archon/internal/metrics"
	"github.com/archonhq/archon/internal/source"
	"github.com/archonhq/archon/internal/tracker"
	"github.com/archonhq/archon/internal/vector"
)

// DefaultWorkers bounds per-document parallelism within one run.
const DefaultWorkers = 4

// Source lists and fetches repository files.
type Source interface {
	ListFiles(ctx context.Context, repo config.Repository) ([]source.FileRef, error)
	FetchContent(ctx context.Context, repo config.Repository, ref source.FileRef) ([]byte, error)
}

// Tracker is the change tracker consumed by the pipeline.
type Tracker interface {
	Ping(ctx context.Context) error
	Decide(ctx context.Context, id tracker.Identity, currentHash string) (tracker.Decision, error)
	Get(ctx context.Context, id tracker.Identity) (tracker.Entry, error)
	Commit(ctx context.Context, id tracker.Identity, newHash string, chunkIDs []string) error
	Touch(ctx context.Context, id tracker.Identity) error
	List(ctx context.Context) ([]tracker.Entry, error)
	Delete(ctx context.Context, id tracker.Identity) error
}

// VectorStore is the write side of the vector index.
type VectorStore interface {
	Upsert(ctx context.Context, records []vector.Record) error
	Delete(ctx context.Context, ids []string) error
}

// Embedder turns chunk texts into vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Pipeline executes ingestion runs. It holds no per-run state; Run may be
// called repeatedly but never concurrently (see Runner).
type Pipeline struct {
	source   Source
	tracker  Tracker
	store    VectorStore
	embedder Embedder
	chunker  *Chunker
	repos    []config.Repository
	workers  int
	logger   *slog.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithWorkers bounds per-document parallelism.
func WithWorkers(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// NewPipeline creates a Pipeline over the given collaborators.
func NewPipeline(src Source, trk Tracker, store VectorStore, embedder Embedder,
	chunker *Chunker, repos []config.Repository, logger *slog.Logger, opts ...PipelineOption) (*Pipeline, error) {
	if src == nil || trk == nil || store == nil || embedder == nil || chunker == nil {
		return nil, fmt.Errorf("all pipeline collaborators are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pipeline{
		source:   src,
		tracker:  trk,
		store:    store,
		embedder: embedder,
		chunker:  chunker,
		repos:    repos,
		workers:  DefaultWorkers,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// candidate is one discovered file awaiting classification.
type candidate struct {
	repo config.Repository
	ref  source.FileRef
	id   tracker.Identity
}

// repoKey identifies a repository+branch for prune isolation.
func repoKey(url, branch string) string {
	return url + "#" + branch
}

// Run executes one full ingestion pass and returns its report. A fatal error
// (tracker unreachable) aborts before any mutation; per-document and
// per-repository failures degrade the run instead of failing it.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	report := &Report{StartedAt: time.Now()}
	metrics.IngestRunStarted()

	// Fatal check before any mutation so an aborted run is retryable wholesale.
	if err := p.tracker.Ping(ctx); err != nil {
		metrics.IngestRunFailed()
		return nil, fmt.Errorf("aborting run: %w", err)
	}

	candidates, seen, failedRepos := p.discover(ctx, report)
	report.Discovered = len(candidates)

	p.processAll(ctx, candidates, report)

	if err := p.prune(ctx, seen, failedRepos, report); err != nil {
		metrics.IngestRunFailed()
		return report, err
	}

	report.Duration = time.Since(report.StartedAt)
	metrics.IngestRunSeconds(report.Duration.Seconds())
	p.logger.Info("ingestion run complete", "report", report)
	return report, nil
}

// discover lists files for every configured repository. A listing failure
// isolates that repository: its documents are neither processed nor pruned
// this run.
func (p *Pipeline) discover(ctx context.Context, report *Report) ([]candidate, map[string]bool, map[string]bool) {
	var (
		candidates  []candidate
		seen        = make(map[string]bool)
		failedRepos = make(map[string]bool)
	)

	for _, repo := range p.repos {
		refs, err := p.source.ListFiles(ctx, repo)
		if err != nil {
			p.logger.Error("repository listing failed, skipping repository",
				"repository", repo.URL, "branch", repo.Branch, "error", err)
			failedRepos[repoKey(repo.URL, repo.Branch)] = true
			report.Errors = append(report.Errors, DocumentError{
				Key: repoKey(repo.URL, repo.Branch),
				Err: err,
			})
			continue
		}

		for _, ref := range refs {
			id := tracker.Identity{
				RepositoryURL: repo.URL,
				Branch:        repo.Branch,
				FilePath:      ref.Path,
			}
			candidates = append(candidates, candidate{repo: repo, ref: ref, id: id})
			seen[id.Key()] = true
		}
	}

	return candidates, seen, failedRepos
}

// processAll classifies and ingests candidates with bounded parallelism.
// Documents share no mutable state so ordering across them is irrelevant.
func (p *Pipeline) processAll(ctx context.Context, candidates []candidate, report *Report) {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for _, cand := range candidates {
		g.Go(func() error {
			res, err := p.processDocument(gctx, cand)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				report.Errors = append(report.Errors, DocumentError{Key: cand.id.Key(), Err: err})
				metrics.IngestDocFailed()
				p.logger.Error("document failed", "key", cand.id.Key(), "error", err)
				return nil // One bad document must not abort the rest
			}
			switch res.decision {
			case tracker.DecisionNew:
				report.New++
				metrics.IngestDocNew()
			case tracker.DecisionChanged:
				report.Changed++
				metrics.IngestDocChanged()
			case tracker.DecisionUnchanged:
				report.Unchanged++
				metrics.IngestDocUnchanged()
			}
			report.Chunks += res.chunks
			return nil
		})
	}

	// Workers only return nil; Wait just synchronizes.
	_ = g.Wait()
}

type docResult struct {
	decision tracker.Decision
	chunks   int
}

// processDocument fetches and hashes one candidate, classifies it against
// the tracker, and for new or changed content chunks, embeds, upserts and
// finally commits the tracker entry.
func (p *Pipeline) processDocument(ctx context.Context, cand candidate) (docResult, error) {
	content, err := p.source.FetchContent(ctx, cand.repo, cand.ref)
	if err != nil {
		return docResult{}, fmt.Errorf("fetching content: %w", err)
	}

	hash := tracker.HashContent(content)
	decision, err := p.tracker.Decide(ctx, cand.id, hash)
	if err != nil {
		return docResult{}, err
	}

	if decision == tracker.DecisionUnchanged {
		if err := p.tracker.Touch(ctx, cand.id); err != nil {
			return docResult{}, err
		}
		return docResult{decision: decision}, nil
	}

	// For changed documents, remember the prior chunk ids so boundary shifts
	// do not leave stale vectors behind.
	var staleIDs []string
	if decision == tracker.DecisionChanged {
		prior, err := p.tracker.Get(ctx, cand.id)
		if err != nil {
			return docResult{}, err
		}
		staleIDs = prior.ChunkIDs
	}

	chunks := p.chunker.Split(cand.id, string(content))
	chunkIDs := make([]string, len(chunks))
	for i, chunk := range chunks {
		chunkIDs[i] = chunk.ID
	}

	if len(chunks) > 0 {
		records, err := p.embedChunks(ctx, cand, hash, chunks)
		if err != nil {
			metrics.IngestEmbedError()
			return docResult{}, err
		}
		if err := p.store.Upsert(ctx, records); err != nil {
			return docResult{}, fmt.Errorf("upserting vectors: %w", err)
		}
		metrics.IngestChunksUpserted(len(records))
	}

	// Store mutations complete; now the stale ids absent from the new set can
	// go, still before the tracker commit.
	if stale := difference(staleIDs, chunkIDs); len(stale) > 0 {
		if err := p.store.Delete(ctx, stale); err != nil {
			return docResult{}, fmt.Errorf("deleting stale vectors: %w", err)
		}
	}

	if err := p.tracker.Commit(ctx, cand.id, hash, chunkIDs); err != nil {
		return docResult{}, err
	}

	return docResult{decision: decision, chunks: len(chunks)}, nil
}

// embedChunks embeds one document's chunks as a single batch and builds the
// vector records.
func (p *Pipeline) embedChunks(ctx context.Context, cand candidate, hash string, chunks []Chunk) ([]vector.Record, error) {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	start := time.Now()
	embeddings, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding chunks: %w", err)
	}
	metrics.IngestEmbedSeconds(time.Since(start).Seconds())

	records := make([]vector.Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = vector.Record{
			ID:      chunk.ID,
			Content: chunk.Content,
			Metadata: map[string]any{
				"repository_url": cand.repo.URL,
				"branch":         cand.repo.Branch,
				"file_path":      cand.ref.Path,
				"chunk_index":    chunk.Index,
				"content_hash":   hash,
			},
			Embedding: embeddings[i],
		}
	}
	return records, nil
}

// prune removes tracked identities absent from this run's discovery set.
// Vectors go first, then the tracker entry; a crash mid-prune leaves an
// orphaned tracker entry that the next run re-attempts, never an orphaned
// vector invisible to cleanup. Identities of repositories whose listing
// failed are left alone: absence there means "unknown", not "deleted".
func (p *Pipeline) prune(ctx context.Context, seen map[string]bool, failedRepos map[string]bool, report *Report) error {
	entries, err := p.tracker.List(ctx)
	if err != nil {
		return fmt.Errorf("listing tracked documents for prune: %w", err)
	}

	for _, entry := range entries {
		key := entry.Identity.Key()
		if seen[key] {
			continue
		}
		if failedRepos[repoKey(entry.Identity.RepositoryURL, entry.Identity.Branch)] {
			continue
		}

		if err := p.store.Delete(ctx, entry.ChunkIDs); err != nil {
			report.Errors = append(report.Errors, DocumentError{
				Key: key,
				Err: fmt.Errorf("pruning vectors: %w", err),
			})
			continue // Tracker entry stays so the next run retries
		}
		if err := p.tracker.Delete(ctx, entry.Identity); err != nil {
			report.Errors = append(report.Errors, DocumentError{Key: key, Err: err})
			continue
		}

		report.Deleted++
		metrics.IngestDocDeleted()
		p.logger.Info("pruned deleted document", "key", key, "chunks", len(entry.ChunkIDs))
	}

	return nil
}

// difference returns the elements of a not present in b, preserving order.
func difference(a, b []string) []string {
	if len(a) == 0 {
		return nil
	}
	inB := make(map[string]bool, len(b))
	for _, s := range b {
		inB[s] = true
	}
	var out []string
	for _, s := range a {
		if !inB[s] {
			out = append(out, s)
		}
	}
	return out
}
