package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaProviderCreateCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, "llama3", req["model"])
		assert.Equal(t, false, req["stream"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"model": "llama3",
			"message": map[string]any{
				"role":    "assistant",
				"content": "Hello there!",
			},
			"done":              true,
			"prompt_eval_count": 7,
			"eval_count":        4,
		})
	}))
	defer server.Close()

	p, err := NewOllamaProvider(server.URL)
	require.NoError(t, err)

	resp, err := p.CreateCompletion(context.Background(), CompletionRequest{
		Model:    "llama3",
		Messages: []Message{{Role: "user", Content: "Say hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello there!", resp.Content)
	assert.Equal(t, 7, resp.Usage.PromptTokens)
	assert.Equal(t, 11, resp.Usage.TotalTokens)
}

func TestOllamaProviderStreaming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, true, req["stream"])

		chunks := []map[string]any{
			{"message": map[string]any{"content": "Hel"}, "done": false},
			{"message": map[string]any{"content": "lo"}, "done": false},
			{"message": map[string]any{"content": ""}, "done": true},
		}
		enc := json.NewEncoder(w)
		for _, c := range chunks {
			_ = enc.Encode(c)
		}
	}))
	defer server.Close()

	p, err := NewOllamaProvider(server.URL)
	require.NoError(t, err)

	stream, err := p.CreateStreaming(context.Background(), CompletionRequest{Model: "llama3"})
	require.NoError(t, err)
	defer func() { _ = stream.Close() }()

	var content string
	sawFinal := false
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		content += chunk.Content
		if chunk.IsFinal {
			sawFinal = true
		}
	}
	assert.Equal(t, "Hello", content)
	assert.True(t, sawFinal, "stream must deliver a final chunk")
}

func TestOllamaProviderErrorStatus(t *testing.T) {
	tests := []struct {
		status int
		code   string
	}{
		{http.StatusNotFound, ErrorCodeModelNotFound},
		{http.StatusInternalServerError, ErrorCodeAPI},
		{http.StatusBadRequest, ErrorCodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer server.Close()

			p, err := NewOllamaProvider(server.URL)
			require.NoError(t, err)

			_, err = p.CreateCompletion(context.Background(), CompletionRequest{Model: "llama3"})
			require.Error(t, err)

			var pe *ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.code, pe.Code)
		})
	}
}

func TestOllamaProviderTransportError(t *testing.T) {
	// Point at a closed server to force a connection error
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	p, err := NewOllamaProvider(server.URL)
	require.NoError(t, err)

	_, err = p.CreateCompletion(context.Background(), CompletionRequest{Model: "llama3"})
	require.Error(t, err)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrorCodeNetwork, pe.Code)
	assert.True(t, pe.Core().IsRetriable())
}
