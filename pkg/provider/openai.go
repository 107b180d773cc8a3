package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient is the subset of the go-openai client the adapter uses.
// Declared as an interface for testability.
type OpenAIClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error)
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAIProvider adapts an OpenAI-compatible HTTP API to the Provider
// interface. Any service speaking the OpenAI dialect works by pointing
// the client at its base URL.
type OpenAIProvider struct {
	client       OpenAIClient
	defaultModel string
}

// OpenAIOption configures the OpenAI provider.
type OpenAIOption func(*OpenAIProvider)

// WithDefaultModel sets the model used when a request leaves Model empty.
func WithDefaultModel(model string) OpenAIOption {
	return func(p *OpenAIProvider) { p.defaultModel = model }
}

// NewOpenAIProvider creates an adapter backed by the official client.
func NewOpenAIProvider(apiKey string, opts ...OpenAIOption) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, NewProviderError("openai", ErrorCodeAuthentication, "API key is required", nil)
	}
	return NewOpenAIProviderWithClient(openai.NewClient(apiKey), opts...), nil
}

// NewOpenAICompatibleProvider creates an adapter for a service speaking
// the OpenAI dialect at a custom base URL, such as LM Studio. The API
// key may be empty for local services.
func NewOpenAICompatibleProvider(baseURL, apiKey string, opts ...OpenAIOption) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return NewOpenAIProviderWithClient(openai.NewClientWithConfig(cfg), opts...)
}

// NewOpenAIProviderWithClient creates an adapter over a custom client.
func NewOpenAIProviderWithClient(client OpenAIClient, opts ...OpenAIOption) *OpenAIProvider {
	p := &OpenAIProvider{client: client, defaultModel: openai.GPT4o}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return "openai" }

// CreateCompletion implements Provider.
func (p *OpenAIProvider) CreateCompletion(ctx context.Context, request CompletionRequest) (*CompletionResponse, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.toChatRequest(request, false))
	if err != nil {
		return nil, p.translateError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, NewProviderError("openai", ErrorCodeParsing, "response contains no choices", nil)
	}

	choice := resp.Choices[0]
	out := &CompletionResponse{
		Model:        resp.Model,
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: &Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

// CreateStreaming implements Provider.
func (p *OpenAIProvider) CreateStreaming(ctx context.Context, request CompletionRequest) (Stream, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, p.toChatRequest(request, true))
	if err != nil {
		return nil, p.translateError(err)
	}
	return &openaiStream{inner: stream}, nil
}

// CreateEmbedding implements Provider.
func (p *OpenAIProvider) CreateEmbedding(ctx context.Context, request EmbeddingRequest) (*EmbeddingResponse, error) {
	model := request.Model
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: request.Input,
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, p.translateError(err)
	}

	out := &EmbeddingResponse{
		Embeddings: make([][]float64, len(resp.Data)),
		Usage: &Usage{
			PromptTokens: resp.Usage.PromptTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}
	for i, d := range resp.Data {
		vec := make([]float64, len(d.Embedding))
		for j, f := range d.Embedding {
			vec[j] = float64(f)
		}
		out.Embeddings[i] = vec
	}
	return out, nil
}

func (p *OpenAIProvider) toChatRequest(request CompletionRequest, stream bool) openai.ChatCompletionRequest {
	model := request.Model
	if model == "" {
		model = p.defaultModel
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: float32(request.Temperature),
		MaxTokens:   request.MaxTokens,
		Stream:      stream,
	}
	for _, m := range request.Messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	for _, t := range request.Tools {
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return req
}

func (p *OpenAIProvider) translateError(err error) *ProviderError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		pe := FromHTTPStatus("openai", apiErr.HTTPStatusCode, apiErr.Message)
		pe.Err = err
		return pe
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		pe := FromHTTPStatus("openai", reqErr.HTTPStatusCode, reqErr.Error())
		pe.Err = err
		return pe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewProviderError("openai", ErrorCodeTimeout, "request timed out", err)
	}
	return NewProviderError("openai", ErrorCodeNetwork, err.Error(), err)
}

// openaiStream adapts the SDK stream, guaranteeing a terminal chunk with
// IsFinal set even when the SDK ends with a bare EOF.
type openaiStream struct {
	inner      *openai.ChatCompletionStream
	emittedEnd bool
}

func (s *openaiStream) Recv() (*StreamChunk, error) {
	if s.emittedEnd {
		return nil, io.EOF
	}
	resp, err := s.inner.Recv()
	if errors.Is(err, io.EOF) {
		s.emittedEnd = true
		return &StreamChunk{IsFinal: true}, nil
	}
	if err != nil {
		return nil, NewProviderError("openai", ErrorCodeStreaming, err.Error(), err)
	}

	chunk := &StreamChunk{}
	if len(resp.Choices) > 0 {
		chunk.Content = resp.Choices[0].Delta.Content
		if resp.Choices[0].FinishReason != "" {
			chunk.IsFinal = true
			s.emittedEnd = true
		}
	}
	return chunk, nil
}

func (s *openaiStream) Close() error {
	return s.inner.Close()
}
