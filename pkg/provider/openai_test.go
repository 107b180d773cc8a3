package provider

import (
	"context"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOpenAIClient struct {
	chatResp openai.ChatCompletionResponse
	chatErr  error
	lastReq  openai.ChatCompletionRequest
}

func (f *fakeOpenAIClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.lastReq = req
	return f.chatResp, f.chatErr
}

func (f *fakeOpenAIClient) CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error) {
	return nil, f.chatErr
}

func (f *fakeOpenAIClient) CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	return openai.EmbeddingResponse{
		Data:  []openai.Embedding{{Embedding: []float32{0.25, 0.5}}},
		Usage: openai.Usage{PromptTokens: 3, TotalTokens: 3},
	}, nil
}

func TestOpenAIProviderCreateCompletion(t *testing.T) {
	fake := &fakeOpenAIClient{
		chatResp: openai.ChatCompletionResponse{
			Model: "gpt-4o",
			Choices: []openai.ChatCompletionChoice{{
				Message:      openai.ChatCompletionMessage{Content: "hi"},
				FinishReason: openai.FinishReasonStop,
			}},
			Usage: openai.Usage{PromptTokens: 2, CompletionTokens: 1, TotalTokens: 3},
		},
	}
	p := NewOpenAIProviderWithClient(fake)

	resp, err := p.CreateCompletion(context.Background(), CompletionRequest{
		Model:       "gpt-4o",
		Messages:    []Message{{Role: "user", Content: "hello"}},
		Temperature: 0.5,
		MaxTokens:   64,
	})
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 3, resp.Usage.TotalTokens)

	// Request conversion
	assert.Equal(t, "gpt-4o", fake.lastReq.Model)
	assert.Equal(t, float32(0.5), fake.lastReq.Temperature)
	assert.Equal(t, 64, fake.lastReq.MaxTokens)
	require.Len(t, fake.lastReq.Messages, 1)
	assert.Equal(t, "user", fake.lastReq.Messages[0].Role)
}

func TestOpenAIProviderDefaultModel(t *testing.T) {
	fake := &fakeOpenAIClient{
		chatResp: openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "ok"}}},
		},
	}
	p := NewOpenAIProviderWithClient(fake, WithDefaultModel("gpt-4o-mini"))

	_, err := p.CreateCompletion(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "x"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", fake.lastReq.Model)
}

func TestOpenAIProviderErrorTranslation(t *testing.T) {
	fake := &fakeOpenAIClient{
		chatErr: &openai.APIError{HTTPStatusCode: 429, Message: "rate limited"},
	}
	p := NewOpenAIProviderWithClient(fake)

	_, err := p.CreateCompletion(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "x"}},
	})
	require.Error(t, err)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrorCodeRateLimit, pe.Code)
	assert.True(t, pe.Core().IsRetriable())
}

func TestOpenAIProviderEmbeddings(t *testing.T) {
	p := NewOpenAIProviderWithClient(&fakeOpenAIClient{})

	resp, err := p.CreateEmbedding(context.Background(), EmbeddingRequest{Input: []string{"hello"}})
	require.NoError(t, err)
	require.Len(t, resp.Embeddings, 1)
	assert.Equal(t, []float64{0.25, 0.5}, resp.Embeddings[0])
	assert.Equal(t, 3, resp.Usage.TotalTokens)
}

func TestOpenAIProviderRequiresKey(t *testing.T) {
	_, err := NewOpenAIProvider("")
	require.Error(t, err)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrorCodeAuthentication, pe.Code)
}
