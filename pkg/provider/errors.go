package provider

import (
	"fmt"
	"net/http"
	"time"

	"github.com/agentgrid-dev/agentgrid/pkg/core"
)

// Error codes reported by provider adapters.
const (
	ErrorCodeAPI            = "api_error"
	ErrorCodeNetwork        = "network_error"
	ErrorCodeAuthentication = "authentication_error"
	ErrorCodeRateLimit      = "rate_limit_exceeded"
	ErrorCodeModelNotFound  = "model_not_found"
	ErrorCodeInvalidRequest = "invalid_request"
	ErrorCodeTimeout        = "timeout"
	ErrorCodeSerialization  = "serialization_error"
	ErrorCodeStreaming      = "streaming_error"
	ErrorCodeParsing        = "parsing_error"
	ErrorCodeUnknown        = "unknown_error"
)

// ProviderError represents a provider-specific failure before projection
// into the core taxonomy.
type ProviderError struct {
	Provider   string        `json:"provider"`
	Code       string        `json:"code"`
	Message    string        `json:"message"`
	StatusCode int           `json:"status_code,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	Err        error         `json:"-"`
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s error (%s): %s", e.Provider, e.Code, e.Message)
}

// Unwrap returns the original error.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a provider error.
func NewProviderError(provider, code, message string, original error) *ProviderError {
	return &ProviderError{Provider: provider, Code: code, Message: message, Err: original}
}

// FromHTTPStatus classifies a non-success HTTP response from a provider.
func FromHTTPStatus(provider string, status int, body string) *ProviderError {
	e := &ProviderError{
		Provider:   provider,
		StatusCode: status,
		Message:    fmt.Sprintf("status %d: %s", status, body),
	}
	switch {
	case status == http.StatusUnauthorized:
		e.Code = ErrorCodeAuthentication
	case status == http.StatusTooManyRequests:
		e.Code = ErrorCodeRateLimit
	case status == http.StatusNotFound:
		e.Code = ErrorCodeModelNotFound
	case status >= 500:
		e.Code = ErrorCodeAPI
	case status >= 400:
		e.Code = ErrorCodeInvalidRequest
	default:
		e.Code = ErrorCodeUnknown
	}
	return e
}

// Core projects the provider error into the unified taxonomy. The mapping
// is total: every code, including unrecognized ones, lands on a core
// kind and code.
func (e *ProviderError) Core() *core.Error {
	var kind core.Kind
	var code core.Code

	switch e.Code {
	case ErrorCodeAPI:
		kind, code = core.KindNetwork, core.CodeAPI
	case ErrorCodeNetwork:
		kind, code = core.KindNetwork, core.CodeTransport
	case ErrorCodeTimeout:
		kind, code = core.KindNetwork, core.CodeTimeout
	case ErrorCodeRateLimit:
		kind, code = core.KindNetwork, core.CodeRateLimited
	case ErrorCodeStreaming:
		kind, code = core.KindNetwork, core.CodeStreaming
	case ErrorCodeAuthentication:
		kind, code = core.KindConfiguration, core.CodeAuthentication
	case ErrorCodeModelNotFound:
		kind, code = core.KindConfiguration, core.CodeModelUnavailable
	case ErrorCodeInvalidRequest:
		kind, code = core.KindValidation, core.CodeInvalidInput
	case ErrorCodeSerialization:
		kind, code = core.KindValidation, core.CodeSerialization
	case ErrorCodeParsing:
		kind, code = core.KindValidation, core.CodeParse
	default:
		kind, code = core.KindExecution, core.CodeUnknown
	}

	ce := core.WrapError(kind, code, e.Message, e.Err)
	ce.RetryAfter = e.RetryAfter
	return ce
}
