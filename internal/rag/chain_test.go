package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/genkit"

	"github.com/archonhq/archon/internal/embed"
	"github.com/archonhq/archon/internal/log"
	"github.com/archonhq/archon/internal/vector"
)

type mockChainEmbedder struct {
	callCount int
	embedErr  error
	vector    []float32
}

func (m *mockChainEmbedder) Embed(context.Context, string) ([]float32, error) {
	m.callCount++
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	if m.vector != nil {
		return m.vector, nil
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type mockRetriever struct {
	callCount int
	queryErr  error
	hits      []vector.Hit
	gotK      int
}

func (m *mockRetriever) Query(_ context.Context, _ []float32, k int, _ map[string]any) ([]vector.Hit, error) {
	m.callCount++
	m.gotK = k
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	return m.hits, nil
}

func newTestChain(t *testing.T, embedder Embedder, retriever Retriever) *Chain {
	t.Helper()
	g := genkit.Init(context.Background())
	chain, err := NewChain(g, embedder, retriever, Options{
		ModelName:   "googleai/gemini-2.5-flash",
		Temperature: 0.7,
		MaxTokens:   2048,
		RetrievalK:  3,
	}, log.NewNop())
	if err != nil {
		t.Fatalf("NewChain() error: %v", err)
	}
	return chain
}

func userMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func TestRequestValidate(t *testing.T) {
	temp := func(v float32) *float32 { return &v }
	tokens := func(v int) *int { return &v }

	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{
			name:    "empty messages",
			req:     Request{},
			wantErr: true,
		},
		{
			name:    "valid single user message",
			req:     Request{Messages: []Message{userMessage("what is the deploy flow?")}},
			wantErr: false,
		},
		{
			name: "valid conversation",
			req: Request{Messages: []Message{
				{Role: RoleSystem, Content: "be brief"},
				userMessage("first question"),
				{Role: RoleAssistant, Content: "first answer"},
				userMessage("follow-up"),
			}},
			wantErr: false,
		},
		{
			name:    "unknown role",
			req:     Request{Messages: []Message{{Role: "tool", Content: "x"}, userMessage("q")}},
			wantErr: true,
		},
		{
			name:    "last message not user",
			req:     Request{Messages: []Message{userMessage("q"), {Role: RoleAssistant, Content: "a"}}},
			wantErr: true,
		},
		{
			name:    "empty query",
			req:     Request{Messages: []Message{{Role: RoleUser, Content: ""}}},
			wantErr: true,
		},
		{
			name:    "query too long",
			req:     Request{Messages: []Message{userMessage(strings.Repeat("x", MaxQueryLength+1))}},
			wantErr: true,
		},
		{
			name:    "query at limit",
			req:     Request{Messages: []Message{userMessage(strings.Repeat("x", MaxQueryLength))}},
			wantErr: false,
		},
		{
			name:    "temperature out of range",
			req:     Request{Messages: []Message{userMessage("q")}, Temperature: temp(2.5)},
			wantErr: true,
		},
		{
			name:    "negative max tokens",
			req:     Request{Messages: []Message{userMessage("q")}, MaxTokens: tokens(-1)},
			wantErr: true,
		},
		{
			name:    "valid overrides",
			req:     Request{Messages: []Message{userMessage("q")}, Temperature: temp(0), MaxTokens: tokens(100)},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr && !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("Validate() = %v, want ErrInvalidRequest", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestAnswerRejectsInvalidRequestBeforeRemoteCalls(t *testing.T) {
	embedder := &mockChainEmbedder{}
	retriever := &mockRetriever{}
	chain := newTestChain(t, embedder, retriever)

	_, err := chain.Answer(context.Background(), &Request{})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("Answer() error = %v, want ErrInvalidRequest", err)
	}
	if embedder.callCount != 0 || retriever.callCount != 0 {
		t.Error("validation failure must not trigger embedding or retrieval")
	}
}

func TestRetrieveMapsHitsToCitations(t *testing.T) {
	retriever := &mockRetriever{hits: []vector.Hit{
		{
			ID:      "c1",
			Content: "Y is Z",
			Metadata: map[string]any{
				"repository_url": "https://github.com/acme/docs",
				"file_path":      "docs/x.md",
			},
			Similarity: 0.91,
		},
		{
			ID:      "c2",
			Content: "more detail",
			Metadata: map[string]any{
				"repository_url": "https://github.com/acme/docs",
				"file_path":      "docs/y.md",
			},
			Similarity: 0.74,
		},
	}}
	chain := newTestChain(t, &mockChainEmbedder{}, retriever)

	citations, err := chain.retrieve(context.Background(), "what about Y?")
	if err != nil {
		t.Fatalf("retrieve() error: %v", err)
	}
	if retriever.gotK != 3 {
		t.Errorf("retrieve used k=%d, want configured 3", retriever.gotK)
	}
	if len(citations) != 2 {
		t.Fatalf("got %d citations, want 2", len(citations))
	}
	if citations[0].FilePath != "docs/x.md" || citations[0].Score != 0.91 {
		t.Errorf("first citation = %+v", citations[0])
	}
	if citations[0].Excerpt != "Y is Z" {
		t.Errorf("excerpt = %q", citations[0].Excerpt)
	}
}

func TestRetrieveTransientEmbedError(t *testing.T) {
	embedder := &mockChainEmbedder{embedErr: &embed.TransientError{Err: errors.New("rate limited")}}
	chain := newTestChain(t, embedder, &mockRetriever{})

	_, err := chain.retrieve(context.Background(), "question")
	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("retrieve() error = %v, want *TransientError", err)
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	t.Run("with context", func(t *testing.T) {
		prompt := buildSystemPrompt([]Citation{
			{RepositoryURL: "https://github.com/acme/docs", FilePath: "docs/x.md", Excerpt: "Y is Z"},
		})
		if !strings.Contains(prompt, "Document 1 (from https://github.com/acme/docs/docs/x.md):") {
			t.Errorf("prompt missing source tag:\n%s", prompt)
		}
		if !strings.Contains(prompt, "Y is Z") {
			t.Error("prompt missing chunk text")
		}
		if strings.Contains(prompt, noContextNotice) {
			t.Error("prompt must not carry the no-context notice when chunks exist")
		}
	})

	t.Run("empty retrieval", func(t *testing.T) {
		prompt := buildSystemPrompt(nil)
		if !strings.Contains(prompt, noContextNotice) {
			t.Error("prompt must instruct the model to decline without context")
		}
	})
}
