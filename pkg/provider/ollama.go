package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultOllamaEndpoint is the well-known local Ollama address.
const DefaultOllamaEndpoint = "http://localhost:11434"

// OllamaProvider adapts a local Ollama daemon to the Provider interface.
type OllamaProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewOllamaProvider creates an adapter for the daemon at baseURL. An
// empty baseURL selects the default local endpoint.
func NewOllamaProvider(baseURL string) (*OllamaProvider, error) {
	if baseURL == "" {
		baseURL = DefaultOllamaEndpoint
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	return &OllamaProvider{
		baseURL: parsed.String(),
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
			// Do not follow redirects off the configured host
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// Name implements Provider.
func (o *OllamaProvider) Name() string { return "ollama" }

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Tools    []ollamaTool   `json:"tools,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaTool struct {
	Type     string         `json:"type"`
	Function ollamaFunction `json:"function"`
}

type ollamaFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type ollamaChatResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role      string `json:"role"`
		Content   string `json:"content"`
		ToolCalls []struct {
			Function struct {
				Name      string          `json:"name"`
				Arguments json.RawMessage `json:"arguments"`
			} `json:"function"`
		} `json:"tool_calls"`
	} `json:"message"`
	Done            bool `json:"done"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
}

// CreateCompletion implements Provider.
func (o *OllamaProvider) CreateCompletion(ctx context.Context, request CompletionRequest) (*CompletionResponse, error) {
	resp, err := o.doChat(ctx, request, false)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, NewProviderError("ollama", ErrorCodeParsing, "decode response", err)
	}

	out := &CompletionResponse{
		Model:        chatResp.Model,
		Content:      chatResp.Message.Content,
		FinishReason: "stop",
		Usage: &Usage{
			PromptTokens:     chatResp.PromptEvalCount,
			CompletionTokens: chatResp.EvalCount,
			TotalTokens:      chatResp.PromptEvalCount + chatResp.EvalCount,
		},
	}
	for _, tc := range chatResp.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

// CreateStreaming implements Provider. Ollama streams NDJSON objects; the
// object with done=true becomes the terminal chunk.
func (o *OllamaProvider) CreateStreaming(ctx context.Context, request CompletionRequest) (Stream, error) {
	resp, err := o.doChat(ctx, request, true)
	if err != nil {
		return nil, err
	}
	return &ollamaStream{body: resp.Body, dec: json.NewDecoder(resp.Body)}, nil
}

// CreateEmbedding implements Provider.
func (o *OllamaProvider) CreateEmbedding(ctx context.Context, request EmbeddingRequest) (*EmbeddingResponse, error) {
	body, err := json.Marshal(map[string]any{
		"model": request.Model,
		"input": request.Input,
	})
	if err != nil {
		return nil, NewProviderError("ollama", ErrorCodeSerialization, "marshal request", err)
	}

	resp, err := o.post(ctx, "/api/embed", body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var embedResp struct {
		Embeddings      [][]float64 `json:"embeddings"`
		PromptEvalCount int         `json:"prompt_eval_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, NewProviderError("ollama", ErrorCodeParsing, "decode response", err)
	}
	return &EmbeddingResponse{
		Embeddings: embedResp.Embeddings,
		Usage:      &Usage{PromptTokens: embedResp.PromptEvalCount, TotalTokens: embedResp.PromptEvalCount},
	}, nil
}

func (o *OllamaProvider) doChat(ctx context.Context, request CompletionRequest, stream bool) (*http.Response, error) {
	chatReq := ollamaChatRequest{
		Model:    request.Model,
		Messages: request.Messages,
		Stream:   stream,
	}
	options := make(map[string]any)
	if request.MaxTokens > 0 {
		options["num_predict"] = request.MaxTokens
	}
	if request.Temperature > 0 {
		options["temperature"] = request.Temperature
	}
	if len(options) > 0 {
		chatReq.Options = options
	}
	for _, t := range request.Tools {
		chatReq.Tools = append(chatReq.Tools, ollamaTool{
			Type: "function",
			Function: ollamaFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, NewProviderError("ollama", ErrorCodeSerialization, "marshal request", err)
	}
	return o.post(ctx, "/api/chat", body)
}

func (o *OllamaProvider) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, NewProviderError("ollama", ErrorCodeInvalidRequest, "create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, NewProviderError("ollama", ErrorCodeTimeout, "request timed out", err)
		}
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return nil, NewProviderError("ollama", ErrorCodeTimeout, "request timed out", err)
		}
		return nil, NewProviderError("ollama", ErrorCodeNetwork, err.Error(), err)
	}

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, FromHTTPStatus("ollama", resp.StatusCode, string(b))
	}
	return resp, nil
}

type ollamaStream struct {
	body   io.ReadCloser
	dec    *json.Decoder
	closed bool
	done   bool
}

func (s *ollamaStream) Recv() (*StreamChunk, error) {
	if s.done {
		return nil, io.EOF
	}

	var obj struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Done bool `json:"done"`
	}
	if err := s.dec.Decode(&obj); err != nil {
		if errors.Is(err, io.EOF) {
			// Daemon closed the stream without done=true; still terminate
			s.done = true
			return &StreamChunk{IsFinal: true}, nil
		}
		return nil, NewProviderError("ollama", ErrorCodeStreaming, "decode chunk", err)
	}

	if obj.Done {
		s.done = true
	}
	return &StreamChunk{Content: obj.Message.Content, IsFinal: obj.Done}, nil
}

func (s *ollamaStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}
