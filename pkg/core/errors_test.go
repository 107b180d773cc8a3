package core

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorRetriability(t *testing.T) {
	tests := []struct {
		name      string
		err       *Error
		retriable bool
	}{
		{
			name:      "transport error is retriable",
			err:       NewError(KindNetwork, CodeTransport, "connection refused"),
			retriable: true,
		},
		{
			name:      "rate limited is retriable",
			err:       NewError(KindNetwork, CodeRateLimited, "too many requests"),
			retriable: true,
		},
		{
			name:      "timeout is retriable",
			err:       NewError(KindNetwork, CodeTimeout, "request timed out"),
			retriable: true,
		},
		{
			name:      "streaming error is retriable",
			err:       NewError(KindNetwork, CodeStreaming, "stream interrupted"),
			retriable: true,
		},
		{
			name:      "authentication is not retriable",
			err:       NewError(KindConfiguration, CodeAuthentication, "invalid api key"),
			retriable: false,
		},
		{
			name:      "invalid input is not retriable",
			err:       NewError(KindValidation, CodeInvalidInput, "bad request"),
			retriable: false,
		},
		{
			name:      "model unavailable is not retriable",
			err:       NewError(KindConfiguration, CodeModelUnavailable, "no such model"),
			retriable: false,
		},
		{
			name:      "parse error is not retriable",
			err:       NewError(KindValidation, CodeParse, "unexpected token"),
			retriable: false,
		},
		{
			name:      "api error with 503 indicator is retriable",
			err:       NewError(KindNetwork, CodeAPI, "upstream returned 503"),
			retriable: true,
		},
		{
			name:      "api error with timeout indicator is retriable",
			err:       NewError(KindNetwork, CodeAPI, "gateway timeout while proxying"),
			retriable: true,
		},
		{
			name:      "api error with 4xx payload is not retriable",
			err:       NewError(KindNetwork, CodeAPI, "upstream returned 404 not found"),
			retriable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retriable, tt.err.IsRetriable())
		})
	}
}

func TestErrorRetryDelay(t *testing.T) {
	e := NewError(KindNetwork, CodeRateLimited, "slow down")
	e.RetryAfter = 30 * time.Second

	delay, ok := e.RetryDelay()
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, delay)

	// Retriable without a server-provided delay
	_, ok = NewError(KindNetwork, CodeTransport, "reset").RetryDelay()
	assert.False(t, ok)

	// Non-retriable never reports a delay, even if one is set
	fatal := NewError(KindConfiguration, CodeAuthentication, "denied")
	fatal.RetryAfter = time.Minute
	_, ok = fatal.RetryDelay()
	assert.False(t, ok)
}

func TestErrorWrapping(t *testing.T) {
	cause := errors.New("socket closed")
	wrapped := WrapError(KindNetwork, CodeTransport, "probe failed", cause)

	assert.ErrorIs(t, wrapped, cause)
	assert.Contains(t, wrapped.Error(), "probe failed")
	assert.Contains(t, wrapped.Error(), "socket closed")

	// AsError recovers the typed error through further wrapping
	outer := fmt.Errorf("discovery: %w", wrapped)
	ce, ok := AsError(outer)
	require.True(t, ok)
	assert.Equal(t, CodeTransport, ce.Code)
	assert.True(t, IsRetriable(outer))

	assert.False(t, IsRetriable(errors.New("untyped")))
}

func TestModelIDRoundTrip(t *testing.T) {
	tests := []struct {
		input    string
		provider string
		name     string
	}{
		{"openai/gpt-4o", "openai", "gpt-4o"},
		{"ollama/llama3", "ollama", "llama3"},
		{"mistral", "", "mistral"},
		{"hf/meta-llama/Llama-3-8B", "hf", "meta-llama/Llama-3-8B"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			id, err := ParseModelID(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.provider, id.Provider)
			assert.Equal(t, tt.name, id.Name)
			assert.Equal(t, tt.input, id.String())

			again, err := ParseModelID(id.String())
			require.NoError(t, err)
			assert.Equal(t, id, again)
		})
	}
}

func TestParseModelIDRejectsMalformed(t *testing.T) {
	for _, input := range []string{"", "/gpt-4", "openai/"} {
		_, err := ParseModelID(input)
		require.Error(t, err, "input %q", input)
		ce, ok := AsError(err)
		require.True(t, ok)
		assert.Equal(t, KindConfiguration, ce.Kind)
	}
}
