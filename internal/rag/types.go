package rag

import (
	"errors"
	"fmt"
	"time"
)

// Message roles accepted in a request.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MaxQueryLength bounds the latest user message, in characters.
const MaxQueryLength = 1000

// ErrInvalidRequest marks a request rejected by validation. Such requests
// never reach the embedder or the model.
var ErrInvalidRequest = errors.New("invalid query request")

// TransientError marks a retrieval or generation failure that may succeed if
// the caller retries.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient query failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Message is one turn of the conversation.
type Message struct {
	Role    string
	Content string
}

// Request is a stateless query: the full conversation plus optional
// generation overrides. Nil overrides fall back to configured defaults.
type Request struct {
	Messages    []Message
	Temperature *float32
	MaxTokens   *int
}

// Citation points at a retrieved source chunk backing the answer.
type Citation struct {
	RepositoryURL string
	FilePath      string
	Excerpt       string
	Score         float64
}

// Usage reports token consumption for one generation.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the synthesized answer with its provenance.
type Response struct {
	Answer    string
	Citations []Citation
	Usage     Usage
	CreatedAt time.Time
}

// Validate rejects structurally invalid requests before any remote call.
func (r *Request) Validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("%w: messages must not be empty", ErrInvalidRequest)
	}
	for i, msg := range r.Messages {
		switch msg.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return fmt.Errorf("%w: message %d has unknown role %q", ErrInvalidRequest, i, msg.Role)
		}
	}

	last := r.Messages[len(r.Messages)-1]
	if last.Role != RoleUser {
		return fmt.Errorf("%w: last message must have role %q, got %q", ErrInvalidRequest, RoleUser, last.Role)
	}
	if last.Content == "" {
		return fmt.Errorf("%w: query must not be empty", ErrInvalidRequest)
	}
	if len(last.Content) > MaxQueryLength {
		return fmt.Errorf("%w: query exceeds %d characters", ErrInvalidRequest, MaxQueryLength)
	}

	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		return fmt.Errorf("%w: temperature must be between 0.0 and 2.0", ErrInvalidRequest)
	}
	if r.MaxTokens != nil && *r.MaxTokens <= 0 {
		return fmt.Errorf("%w: max_tokens must be positive", ErrInvalidRequest)
	}
	return nil
}

// Query returns the latest user message, the text that gets embedded.
func (r *Request) Query() string {
	return r.Messages[len(r.Messages)-1].Content
}
