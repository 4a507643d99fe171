// Package rag implements the query chain: embed the question, retrieve the
// nearest chunks, assemble a grounded prompt and generate an answer with
// citations.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"google.golang.org/genai"

	"github.com/archonhq/archon/internal/embed"
	"github.com/archonhq/archon/internal/metrics"
	"github.com/archonhq/archon/internal/vector"
)

// Embedder embeds a single query text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever is the read side of the vector index.
type Retriever interface {
	Query(ctx context.Context, embedding []float32, k int, filter map[string]any) ([]vector.Hit, error)
}

// Options carries the configured generation defaults.
type Options struct {
	ModelName   string // fully qualified, e.g. "googleai/gemini-2.5-flash"
	Temperature float32
	MaxTokens   int
	RetrievalK  int
}

// Chain answers questions against the indexed documentation. Chains are
// stateless; any number of Answer calls may run concurrently.
type Chain struct {
	genkit    *genkit.Genkit
	embedder  Embedder
	retriever Retriever
	opts      Options
	logger    *slog.Logger
}

// NewChain creates a Chain.
func NewChain(g *genkit.Genkit, embedder Embedder, retriever Retriever, opts Options, logger *slog.Logger) (*Chain, error) {
	if g == nil || embedder == nil || retriever == nil {
		return nil, fmt.Errorf("genkit, embedder and retriever are required")
	}
	if opts.ModelName == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if opts.RetrievalK <= 0 {
		return nil, fmt.Errorf("invalid retrieval k: %d", opts.RetrievalK)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{genkit: g, embedder: embedder, retriever: retriever, opts: opts, logger: logger}, nil
}

// Answer runs the full chain for one request.
func (c *Chain) Answer(ctx context.Context, req *Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()

	citations, err := c.retrieve(ctx, req.Query())
	if err != nil {
		return nil, err
	}
	metrics.ChatRetrievedChunks(len(citations))

	resp, err := c.generate(ctx, req, citations)
	if err != nil {
		return nil, err
	}

	metrics.ChatRequestSeconds(time.Since(start).Seconds())
	metrics.ChatTokens(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	c.logger.Info("query answered",
		"retrieved", len(citations),
		"duration", time.Since(start),
		"tokens", resp.Usage.TotalTokens,
	)
	return resp, nil
}

// retrieve embeds the query and fetches the top-k chunks. An empty index is
// not an error; the prompt contract handles it.
func (c *Chain) retrieve(ctx context.Context, query string) ([]Citation, error) {
	embedding, err := c.embedder.Embed(ctx, query)
	if err != nil {
		var transient *embed.TransientError
		if errors.As(err, &transient) {
			return nil, &TransientError{Err: err}
		}
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := c.retriever.Query(ctx, embedding, c.opts.RetrievalK, nil)
	if err != nil {
		return nil, fmt.Errorf("retrieving chunks: %w", err)
	}

	citations := make([]Citation, 0, len(hits))
	for _, hit := range hits {
		citations = append(citations, Citation{
			RepositoryURL: metaString(hit.Metadata, "repository_url"),
			FilePath:      metaString(hit.Metadata, "file_path"),
			Excerpt:       hit.Content,
			Score:         hit.Similarity,
		})
	}
	return citations, nil
}

// generate invokes the model with the grounded prompt and the conversation
// history.
func (c *Chain) generate(ctx context.Context, req *Request, citations []Citation) (*Response, error) {
	temperature := c.opts.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := c.opts.MaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	messages := make([]*ai.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, &ai.Message{
			Role:    toGenkitRole(msg.Role),
			Content: []*ai.Part{ai.NewTextPart(msg.Content)},
		})
	}

	response, err := genkit.Generate(ctx, c.genkit,
		ai.WithModelName(c.opts.ModelName),
		ai.WithSystem(buildSystemPrompt(citations)),
		ai.WithMessages(messages...),
		ai.WithConfig(&genai.GenerateContentConfig{
			Temperature:     genai.Ptr(temperature),
			MaxOutputTokens: int32(maxTokens),
		}),
	)
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("generating answer: %w", err)}
	}

	resp := &Response{
		Answer:    response.Text(),
		Citations: citations,
		CreatedAt: time.Now().UTC(),
	}
	if response.Usage != nil {
		resp.Usage = Usage{
			PromptTokens:     response.Usage.InputTokens,
			CompletionTokens: response.Usage.OutputTokens,
			TotalTokens:      response.Usage.TotalTokens,
		}
	}
	return resp, nil
}

// toGenkitRole maps API roles onto Genkit's. Assistant turns are model turns.
func toGenkitRole(role string) ai.Role {
	switch role {
	case RoleSystem:
		return ai.RoleSystem
	case RoleAssistant:
		return ai.RoleModel
	default:
		return ai.RoleUser
	}
}

func metaString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
