package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/archonhq/archon/internal/metrics"
	"github.com/archonhq/archon/internal/rag"
)

// maxChatBodyBytes limits chat request bodies to 1MB.
const maxChatBodyBytes = 1024 * 1024

// chatRequest is the OpenAI-compatible request body.
type chatRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float32      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the OpenAI-compatible response body, extended with the
// citations backing the answer.
type chatResponse struct {
	ID        string         `json:"id"`
	Object    string         `json:"object"`
	Created   int64          `json:"created"`
	Model     string         `json:"model"`
	Choices   []chatChoice   `json:"choices"`
	Usage     chatUsage      `json:"usage"`
	Citations []chatCitation `json:"citations"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatCitation struct {
	RepositoryURL string  `json:"repository_url"`
	FilePath      string  `json:"file_path"`
	Excerpt       string  `json:"excerpt,omitempty"`
	Score         float64 `json:"score,omitempty"`
}

type chatHandler struct {
	chain  *rag.Chain
	model  string
	logger *slog.Logger
}

// completions handles POST /v1/chat/completions. Malformed bodies are
// rejected before any retrieval or model call.
func (h *chatHandler) completions(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			metrics.ChatRequest("rejected")
			writeError(w, http.StatusRequestEntityTooLarge,
				"INVALID_REQUEST", "request body too large", "", h.logger)
			return
		}
		metrics.ChatRequest("rejected")
		writeError(w, http.StatusBadRequest,
			"INVALID_REQUEST", "invalid request body", "request body must be valid JSON", h.logger)
		return
	}

	messages := make([]rag.Message, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = rag.Message{Role: m.Role, Content: m.Content}
	}

	resp, err := h.chain.Answer(r.Context(), &rag.Request{
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		h.writeAnswerError(w, err)
		return
	}

	citations := make([]chatCitation, len(resp.Citations))
	for i, c := range resp.Citations {
		citations[i] = chatCitation{
			RepositoryURL: c.RepositoryURL,
			FilePath:      c.FilePath,
			Excerpt:       c.Excerpt,
			Score:         c.Score,
		}
	}

	model := req.Model
	if model == "" {
		model = h.model
	}

	metrics.ChatRequest("ok")
	writeJSON(w, http.StatusOK, chatResponse{
		ID:      "chatcmpl-" + uuid.New().String(),
		Object:  "chat.completion",
		Created: resp.CreatedAt.Unix(),
		Model:   model,
		Choices: []chatChoice{{
			Index:        0,
			Message:      chatMessage{Role: "assistant", Content: resp.Answer},
			FinishReason: "stop",
		}},
		Usage: chatUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Citations: citations,
	}, h.logger)
}

// writeAnswerError maps chain failures onto the error envelope. Transient
// failures get retry guidance; validation failures never do.
func (h *chatHandler) writeAnswerError(w http.ResponseWriter, err error) {
	var transient *rag.TransientError

	switch {
	case errors.Is(err, rag.ErrInvalidRequest):
		metrics.ChatRequest("rejected")
		writeError(w, http.StatusBadRequest,
			"INVALID_QUERY", err.Error(), "please provide a valid query", h.logger)

	case errors.As(err, &transient):
		metrics.ChatRequest("error")
		h.logger.Error("query processing failed", "error", err)
		writeError(w, http.StatusServiceUnavailable,
			"PROCESSING_ERROR", "failed to process query", "the request may succeed if retried", h.logger)

	default:
		metrics.ChatRequest("error")
		h.logger.Error("query failed", "error", err)
		writeError(w, http.StatusInternalServerError,
			"INTERNAL_ERROR", "internal server error", "", h.logger)
	}
}
