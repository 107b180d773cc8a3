package resource

import (
	"errors"
	"fmt"
)

// CleanupErrorKind classifies cleanup failures.
type CleanupErrorKind string

const (
	// CleanupTimeout means the cleanup exceeded its deadline. Retry eligible.
	CleanupTimeout CleanupErrorKind = "timeout"

	// CleanupAlreadyDone means cleanup was already executed or the value
	// extracted. Fatal for the caller.
	CleanupAlreadyDone CleanupErrorKind = "already_cleaned_up"

	// CleanupFailed carries the underlying failure. Fallback eligible.
	CleanupFailed CleanupErrorKind = "failed"

	// CleanupShuttingDown means the registry latch rejected the operation.
	// Fatal for the caller.
	CleanupShuttingDown CleanupErrorKind = "shutting_down"
)

// CleanupError is the typed failure of guard and registry operations.
type CleanupError struct {
	Kind    CleanupErrorKind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *CleanupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cleanup %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("cleanup %s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *CleanupError) Unwrap() error {
	return e.Err
}

// Retriable reports whether the failed cleanup may be attempted again.
func (e *CleanupError) Retriable() bool {
	return e.Kind == CleanupTimeout
}

// FallbackEligible reports whether the caller may substitute an
// alternative release strategy.
func (e *CleanupError) FallbackEligible() bool {
	return e.Kind == CleanupFailed
}

// IsKind reports whether err is a CleanupError of the given kind.
func IsKind(err error, kind CleanupErrorKind) bool {
	var ce *CleanupError
	return errors.As(err, &ce) && ce.Kind == kind
}

// Guard access errors. Touching a guard outside the live state is a
// programming error surfaced as a distinct sentinel.
var (
	ErrValueConsumed = errors.New("resource: value already extracted")
	ErrValueCleaned  = errors.New("resource: value already cleaned up")
)
