package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/archonhq/archon/internal/tracker"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// Chunk is one fixed-size slice of a document, carrying its deterministic id.
type Chunk struct {
	ID      string
	Index   int
	Content string
}

// Chunker splits document content into fixed-size overlapping chunks.
type Chunker struct {
	chunkSize int
	overlap   int
}

// ChunkerOption configures a Chunker.
type ChunkerOption func(*Chunker)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) ChunkerOption {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithChunkOverlap sets the overlap between chunks in characters.
func WithChunkOverlap(overlap int) ChunkerOption {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// NewChunker creates a Chunker with the given options.
func NewChunker(opts ...ChunkerOption) *Chunker {
	c := &Chunker{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(c)
	}

	// Ensure overlap doesn't exceed chunk size
	if c.overlap >= c.chunkSize {
		c.overlap = c.chunkSize / 4
	}

	return c
}

// ChunkID derives the stable id for one chunk of a document. The id is a
// pure function of identity and index, so re-ingesting the same document
// overwrites its previous vectors instead of duplicating them.
func ChunkID(id tracker.Identity, index int) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s#%d", id.Key(), index))
	return hex.EncodeToString(sum[:])
}

// Split chunks content for the given document identity. Empty content
// produces no chunks.
func (c *Chunker) Split(id tracker.Identity, content string) []Chunk {
	if content == "" {
		return nil
	}

	contentLen := len(content)
	estimated := (contentLen / (c.chunkSize - c.overlap)) + 1
	chunks := make([]Chunk, 0, estimated)

	start := 0
	for index := 0; start < contentLen; index++ {
		end := min(start+c.chunkSize, contentLen)

		chunks = append(chunks, Chunk{
			ID:      ChunkID(id, index),
			Index:   index,
			Content: content[start:end],
		})

		start += c.chunkSize - c.overlap
	}

	return chunks
}
