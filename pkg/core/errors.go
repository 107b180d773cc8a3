// Package core holds the shared leaf types of the agentgrid runtime:
// the unified error taxonomy, model identifiers, and the event recorder
// contract consumed by monitor sinks.
package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind is the closed top-level error classification.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindValidation    Kind = "validation"
	KindExecution     Kind = "execution"
	KindNetwork       Kind = "network"
)

// Code refines a Kind. Provider-level errors project onto these codes via
// a total mapping (see pkg/provider).
type Code string

const (
	// Configuration codes
	CodeMissingOption    Code = "missing_option"
	CodeInvalidFormat    Code = "invalid_format"
	CodeAuthentication   Code = "authentication"
	CodeModelUnavailable Code = "model_unavailable"

	// Validation codes
	CodeInvalidInput    Code = "invalid_input"
	CodeRejected        Code = "pipeline_rejected"
	CodeValidatorFailed Code = "validator_failed"
	CodeParse           Code = "parse_error"
	CodeSerialization   Code = "serialization_error"

	// Execution codes
	CodeToolExecution     Code = "tool_execution_failed"
	CodeResourceExhausted Code = "resource_exhausted"
	CodeUnknown           Code = "unknown"

	// Network codes
	CodeTimeout     Code = "timeout"
	CodeTransport   Code = "transport"
	CodeRateLimited Code = "rate_limited"
	CodeAPI         Code = "api_error"
	CodeStreaming   Code = "streaming_error"
)

// Error is the unified error type of the runtime. The Kind set is closed;
// each error carries a code, a human-readable message and optionally the
// underlying cause and a server-suggested retry delay.
type Error struct {
	Kind       Kind
	Code       Code
	Message    string
	RetryAfter time.Duration
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s/%s: %s: %v", e.Kind, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s/%s: %s", e.Kind, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetriable reports whether the operation that produced this error may
// be retried. Transport, rate-limit, timeout and streaming failures are
// retriable; API errors only when the payload indicates a transient
// server-side condition.
func (e *Error) IsRetriable() bool {
	switch e.Code {
	case CodeTransport, CodeRateLimited, CodeTimeout, CodeStreaming:
		return true
	case CodeAPI:
		return mentionsTransient(e.Message)
	default:
		return false
	}
}

// RetryDelay returns the suggested backoff before a retry, when known.
// The second return is false for non-retriable errors and for retriable
// errors without a server-provided delay.
func (e *Error) RetryDelay() (time.Duration, bool) {
	if !e.IsRetriable() {
		return 0, false
	}
	if e.RetryAfter > 0 {
		return e.RetryAfter, true
	}
	return 0, false
}

// transientIndicators are substrings that mark an opaque API error as a
// 5xx- or timeout-class failure.
var transientIndicators = []string{
	"500", "502", "503", "504",
	"timeout", "timed out", "deadline exceeded",
	"overloaded", "unavailable", "internal server error",
}

func mentionsTransient(msg string) bool {
	lower := strings.ToLower(msg)
	for _, ind := range transientIndicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}

// NewError builds an Error with the given classification.
func NewError(kind Kind, code Code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// WrapError builds an Error preserving the underlying cause.
func WrapError(kind Kind, code Code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// AsError extracts an *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// IsRetriable reports retriability for an arbitrary error chain. Errors
// outside the taxonomy are treated as non-retriable.
func IsRetriable(err error) bool {
	if ce, ok := AsError(err); ok {
		return ce.IsRetriable()
	}
	return false
}
