package resource

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/agentgrid-dev/agentgrid/internal/observability"
	"github.com/agentgrid-dev/agentgrid/pkg/core"
)

// CleanupFunc releases an owned value. It runs exactly once per guard.
type CleanupFunc[T any] func(ctx context.Context, value T) error

// Guard state machine: live -> consumed (Extract) or live -> cleaned
// (Release, or the drop path).
const (
	stateLive int32 = iota
	stateConsumed
	stateCleaned
)

// dropCleanupTimeout bounds the cleanup run on the drop path, where no
// caller context is available.
const dropCleanupTimeout = 30 * time.Second

// guardState holds everything the drop path needs. It must not reference
// the Guard itself, otherwise the guard never becomes collectable.
type guardState[T any] struct {
	id       ID
	value    T
	cleanup  CleanupFunc[T]
	state    atomic.Int32
	recorder core.Recorder
}

// Guard owns a value of type T together with a one-shot cleanup
// continuation. Exactly one of Release, Extract, or the drop-time safety
// net runs the terminal transition.
//
// The drop path is best effort: if a live guard becomes unreachable, the
// runtime schedules its cleanup in fire-and-forget form and failures go
// to the recorder only. Callers that need to observe cleanup errors must
// call Release explicitly.
type Guard[T any] struct {
	s    *guardState[T]
	stop runtime.Cleanup
}

// GuardOption configures a guard.
type GuardOption func(*guardConfig)

type guardConfig struct {
	recorder core.Recorder
}

// WithRecorder routes drop-path diagnostics to the given sink instead of
// the standard logger.
func WithRecorder(rec core.Recorder) GuardOption {
	return func(c *guardConfig) { c.recorder = rec }
}

// NewGuard takes ownership of value and its cleanup continuation and
// assigns a fresh ID.
func NewGuard[T any](value T, cleanup CleanupFunc[T], opts ...GuardOption) *Guard[T] {
	cfg := guardConfig{recorder: core.NewLogRecorder()}
	for _, opt := range opts {
		opt(&cfg)
	}

	st := &guardState[T]{
		id:       NewID(),
		value:    value,
		cleanup:  cleanup,
		recorder: cfg.recorder,
	}
	g := &Guard[T]{s: st}
	g.stop = runtime.AddCleanup(g, dropGuard[T], st)
	return g
}

// dropGuard is the safety net for guards abandoned in the live state.
func dropGuard[T any](st *guardState[T]) {
	if !st.state.CompareAndSwap(stateLive, stateCleaned) {
		return
	}
	st.recorder.Record(core.Event{
		Type:    core.EventResourceDropped,
		Time:    time.Now(),
		Message: "guard dropped while live; scheduling cleanup",
		Fields:  map[string]string{"resource_id": st.id.String()},
	})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dropCleanupTimeout)
		defer cancel()
		if err := st.cleanup(ctx, st.value); err != nil {
			observability.RecordCleanup("error")
			st.recorder.Record(core.Event{
				Type:    core.EventCleanupFailed,
				Time:    time.Now(),
				Message: "drop-time cleanup failed",
				Err:     err,
				Fields:  map[string]string{"resource_id": st.id.String()},
			})
			return
		}
		observability.RecordCleanup("ok")
		st.recorder.Record(core.Event{
			Type:    core.EventCleanupCompleted,
			Time:    time.Now(),
			Message: "drop-time cleanup completed",
			Fields:  map[string]string{"resource_id": st.id.String()},
		})
	}()
}

// ID returns the guard's resource identifier.
func (g *Guard[T]) ID() ID {
	return g.s.id
}

// Value returns the owned value. It fails once the guard has been
// consumed or cleaned.
func (g *Guard[T]) Value() (T, error) {
	var zero T
	switch g.s.state.Load() {
	case stateConsumed:
		return zero, ErrValueConsumed
	case stateCleaned:
		return zero, ErrValueCleaned
	}
	return g.s.value, nil
}

// Extract consumes the guard, returns the value, and abandons cleanup.
// This is the only way to opt out of release.
func (g *Guard[T]) Extract() (T, error) {
	var zero T
	if !g.s.state.CompareAndSwap(stateLive, stateConsumed) {
		if g.s.state.Load() == stateConsumed {
			return zero, ErrValueConsumed
		}
		return zero, ErrValueCleaned
	}
	g.stop.Stop()
	return g.s.value, nil
}

// Release consumes the guard, runs cleanup, and returns its result.
// A second Release fails with CleanupAlreadyDone.
func (g *Guard[T]) Release(ctx context.Context) error {
	if !g.s.state.CompareAndSwap(stateLive, stateCleaned) {
		return &CleanupError{Kind: CleanupAlreadyDone, Message: "guard " + g.s.id.String()}
	}
	g.stop.Stop()

	if err := g.s.cleanup(ctx, g.s.value); err != nil {
		observability.RecordCleanup("error")
		if errors.Is(err, context.DeadlineExceeded) {
			return &CleanupError{Kind: CleanupTimeout, Message: "cleanup exceeded deadline", Err: err}
		}
		return &CleanupError{Kind: CleanupFailed, Message: "cleanup failed", Err: err}
	}
	observability.RecordCleanup("ok")
	return nil
}
