package provider

import (
	"errors"
	"testing"
	"time"

	"github.com/agentgrid-dev/agentgrid/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		code   string
	}{
		{401, ErrorCodeAuthentication},
		{429, ErrorCodeRateLimit},
		{404, ErrorCodeModelNotFound},
		{500, ErrorCodeAPI},
		{503, ErrorCodeAPI},
		{400, ErrorCodeInvalidRequest},
		{422, ErrorCodeInvalidRequest},
	}

	for _, tt := range tests {
		pe := FromHTTPStatus("openai", tt.status, "body")
		assert.Equal(t, tt.code, pe.Code, "status %d", tt.status)
		assert.Equal(t, tt.status, pe.StatusCode)
	}
}

func TestProviderErrorCoreProjection(t *testing.T) {
	tests := []struct {
		code      string
		kind      core.Kind
		coreCode  core.Code
		retriable bool
	}{
		{ErrorCodeNetwork, core.KindNetwork, core.CodeTransport, true},
		{ErrorCodeTimeout, core.KindNetwork, core.CodeTimeout, true},
		{ErrorCodeRateLimit, core.KindNetwork, core.CodeRateLimited, true},
		{ErrorCodeStreaming, core.KindNetwork, core.CodeStreaming, true},
		{ErrorCodeAuthentication, core.KindConfiguration, core.CodeAuthentication, false},
		{ErrorCodeModelNotFound, core.KindConfiguration, core.CodeModelUnavailable, false},
		{ErrorCodeInvalidRequest, core.KindValidation, core.CodeInvalidInput, false},
		{ErrorCodeSerialization, core.KindValidation, core.CodeSerialization, false},
		{ErrorCodeParsing, core.KindValidation, core.CodeParse, false},
		{ErrorCodeUnknown, core.KindExecution, core.CodeUnknown, false},
		{"something_new", core.KindExecution, core.CodeUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			pe := NewProviderError("test", tt.code, "boom", nil)
			ce := pe.Core()
			assert.Equal(t, tt.kind, ce.Kind)
			assert.Equal(t, tt.coreCode, ce.Code)
			assert.Equal(t, tt.retriable, ce.IsRetriable())
		})
	}
}

func TestCoreProjectionPreservesPayload(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	pe := NewProviderError("ollama", ErrorCodeNetwork, "probe failed", cause)
	pe.RetryAfter = 2 * time.Second

	ce := pe.Core()
	require.ErrorIs(t, ce, cause)
	assert.Contains(t, ce.Message, "probe failed")

	delay, ok := ce.RetryDelay()
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, delay)
}

func TestAPIErrorRetriabilityDependsOnPayload(t *testing.T) {
	transient := FromHTTPStatus("openai", 502, "bad gateway").Core()
	assert.True(t, transient.IsRetriable())

	// A 5xx classified as API stays retriable because the payload names
	// the status; an API error with an opaque 4xx payload does not.
	opaque := NewProviderError("openai", ErrorCodeAPI, "malformed upstream reply", nil).Core()
	assert.False(t, opaque.IsRetriable())
}
