// Package resource provides scoped ownership of values with deferred
// asynchronous cleanup, and a process-local registry that tracks live
// resources and coordinates shutdown.
package resource

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ID is an opaque, process-unique 128-bit resource identifier. Equality
// is bitwise; ordering exists for display purposes only.
type ID uuid.UUID

// NewID generates a fresh identifier from a non-repeating source.
func NewID() ID {
	return ID(uuid.New())
}

// ParseID parses the canonical string form of an ID.
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ID{}, fmt.Errorf("parse resource id: %w", err)
	}
	return ID(u), nil
}

// String returns the canonical display form.
func (id ID) String() string {
	return uuid.UUID(id).String()
}

// Compare orders two identifiers for display. The ordering carries no
// semantic meaning.
func (id ID) Compare(other ID) int {
	return bytes.Compare(id[:], other[:])
}

// IsZero reports whether the identifier is unset.
func (id ID) IsZero() bool {
	return id == ID{}
}

// CleanupPriority orders cleanup scheduling during coordinated shutdown.
// Higher priorities are scheduled first.
type CleanupPriority int

const (
	PriorityLow CleanupPriority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// String returns the priority name.
func (p CleanupPriority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Info describes a registered resource. Immutable after registration;
// the registry hands out copies only.
type Info struct {
	// Type is a short tag such as "http_client" or "cache_entry".
	Type string

	// CreatedAt is the creation instant.
	CreatedAt time.Time

	// SizeBytes is the approximate size, or zero when unknown.
	SizeBytes int64

	// Metadata carries free-form descriptor fields.
	Metadata map[string]string
}

// clone deep-copies the descriptor so external holders cannot mutate
// registry state.
func (i Info) clone() Info {
	out := i
	if i.Metadata != nil {
		out.Metadata = make(map[string]string, len(i.Metadata))
		for k, v := range i.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
