// Package provider defines the wire-agnostic completion surface presented
// to model backends, and the adapters for remote (OpenAI-compatible) and
// local (Ollama) services.
package provider

import (
	"context"
	"encoding/json"
)

// Provider is the interface implemented by model backends.
type Provider interface {
	// Name returns the provider name (e.g. "openai", "ollama").
	Name() string

	// CreateCompletion creates a completion.
	CreateCompletion(ctx context.Context, request CompletionRequest) (*CompletionResponse, error)

	// CreateStreaming creates a streaming completion. The returned stream
	// always delivers at least one chunk with IsFinal set.
	CreateStreaming(ctx context.Context, request CompletionRequest) (Stream, error)

	// CreateEmbedding generates embeddings for the request input.
	CreateEmbedding(ctx context.Context, request EmbeddingRequest) (*EmbeddingResponse, error)
}

// Message represents a role-tagged chat message.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// Tool represents a function the model may call.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	// Model is the model identifier, optionally "provider/name" qualified.
	Model string `json:"model,omitempty"`

	// Messages is the ordered conversation history.
	Messages []Message `json:"messages"`

	// Temperature controls randomness (0.0-2.0). Zero means provider default.
	Temperature float64 `json:"temperature,omitempty"`

	// MaxTokens bounds the generated output. Zero means provider default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Tools available for the model to call.
	Tools []Tool `json:"tools,omitempty"`
}

// CompletionResponse represents a completion response.
type CompletionResponse struct {
	Model        string     `json:"model,omitempty"`
	Content      string     `json:"content"`
	FinishReason string     `json:"finish_reason,omitempty"`
	Usage        *Usage     `json:"usage,omitempty"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
}

// Usage holds token accounting for a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ToolCall represents a function call requested by the model.
type ToolCall struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// EmbeddingRequest asks for embeddings over the input texts.
type EmbeddingRequest struct {
	Model string   `json:"model,omitempty"`
	Input []string `json:"input"`
}

// EmbeddingResponse carries one vector per input text.
type EmbeddingResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	Usage      *Usage      `json:"usage,omitempty"`
}

// Stream is a lazy finite sequence of completion chunks.
type Stream interface {
	// Recv returns the next chunk. After a chunk with IsFinal set has been
	// delivered, Recv returns io.EOF.
	Recv() (*StreamChunk, error)

	// Close releases the underlying connection. Safe to call more than once.
	Close() error
}

// StreamChunk is one increment of a streaming response.
type StreamChunk struct {
	Content string `json:"content"`
	IsFinal bool   `json:"is_final"`
}
