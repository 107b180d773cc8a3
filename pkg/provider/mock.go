package provider

import (
	"context"
	"io"
	"sync"
)

// MockProvider is a scripted Provider for tests. Responses and errors are
// consumed in order; call arguments are captured for inspection.
type MockProvider struct {
	name string

	CompletionResponses []*CompletionResponse
	StreamScripts       [][]*StreamChunk
	Errors              []error

	mu              sync.Mutex
	CompletionCalls []CompletionRequest
	StreamCalls     []CompletionRequest
	EmbeddingCalls  []EmbeddingRequest

	index int
}

// NewMockProvider creates an empty mock.
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{name: name}
}

// NewScriptedProvider creates a mock that answers every completion with
// the given texts in order, repeating the last one when exhausted.
func NewScriptedProvider(name string, texts ...string) *MockProvider {
	m := NewMockProvider(name)
	for _, text := range texts {
		m.CompletionResponses = append(m.CompletionResponses, &CompletionResponse{
			Content:      text,
			FinishReason: "stop",
		})
	}
	return m
}

// Name implements Provider.
func (m *MockProvider) Name() string { return m.name }

// CreateCompletion implements Provider.
func (m *MockProvider) CreateCompletion(ctx context.Context, request CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompletionCalls = append(m.CompletionCalls, request)

	if err := m.nextError(); err != nil {
		return nil, err
	}
	if len(m.CompletionResponses) == 0 {
		return &CompletionResponse{Content: "mock response", FinishReason: "stop"}, nil
	}
	i := m.index
	if i >= len(m.CompletionResponses) {
		i = len(m.CompletionResponses) - 1
	}
	m.index++
	return m.CompletionResponses[i], nil
}

// CreateStreaming implements Provider.
func (m *MockProvider) CreateStreaming(ctx context.Context, request CompletionRequest) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StreamCalls = append(m.StreamCalls, request)

	if err := m.nextError(); err != nil {
		return nil, err
	}
	var chunks []*StreamChunk
	if len(m.StreamScripts) > 0 {
		i := m.index
		if i >= len(m.StreamScripts) {
			i = len(m.StreamScripts) - 1
		}
		m.index++
		chunks = m.StreamScripts[i]
	} else {
		chunks = []*StreamChunk{{Content: "mock response"}, {IsFinal: true}}
	}
	return &mockStream{chunks: chunks}, nil
}

// CreateEmbedding implements Provider.
func (m *MockProvider) CreateEmbedding(ctx context.Context, request EmbeddingRequest) (*EmbeddingResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EmbeddingCalls = append(m.EmbeddingCalls, request)

	if err := m.nextError(); err != nil {
		return nil, err
	}
	out := &EmbeddingResponse{Embeddings: make([][]float64, len(request.Input))}
	for i := range request.Input {
		out.Embeddings[i] = make([]float64, 8)
	}
	return out, nil
}

// CallCount returns the total number of completion calls observed.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.CompletionCalls)
}

func (m *MockProvider) nextError() error {
	if m.index < len(m.Errors) && m.Errors[m.index] != nil {
		err := m.Errors[m.index]
		m.index++
		return err
	}
	return nil
}

type mockStream struct {
	chunks []*StreamChunk
	pos    int
}

func (s *mockStream) Recv() (*StreamChunk, error) {
	if s.pos >= len(s.chunks) {
		return nil, io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *mockStream) Close() error { return nil }
