package resource

import (
	"context"
	"sync"
	"time"

	"github.com/agentgrid-dev/agentgrid/internal/observability"
	"github.com/agentgrid-dev/agentgrid/pkg/core"
)

// defaultShutdownBound caps how long Shutdown waits for scheduled
// cleanups to finish.
const defaultShutdownBound = 30 * time.Second

// Registry tracks live resources across the process. It is intended as a
// per-application singleton but is passed by explicit handle so tests can
// run isolated instances.
//
// State machine: Running -> ShuttingDown. The transition is one-way.
type Registry struct {
	mu           sync.RWMutex
	resources    map[ID]entry
	shuttingDown bool

	recorder core.Recorder
	wg       sync.WaitGroup
}

type entry struct {
	info    Info
	cleanup func(context.Context) error
}

// RegistryOption configures a registry.
type RegistryOption func(*Registry)

// WithRegistryRecorder routes registry events to the given sink.
func WithRegistryRecorder(rec core.Recorder) RegistryOption {
	return func(r *Registry) { r.recorder = rec }
}

// NewRegistry creates an empty registry in the Running state.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		resources: make(map[ID]entry),
		recorder:  core.NewLogRecorder(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register inserts a descriptor for id. It fails with CleanupShuttingDown
// once the latch is set, and with CleanupFailed if id is already present.
func (r *Registry) Register(id ID, info Info) error {
	return r.RegisterWithCleanup(id, info, nil)
}

// RegisterWithCleanup additionally attaches a cleanup hook that
// ForceCleanupAll and Shutdown may schedule. The registry never holds the
// resource itself; coordination is by id only.
func (r *Registry) RegisterWithCleanup(id ID, info Info, cleanup func(context.Context) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shuttingDown {
		return &CleanupError{Kind: CleanupShuttingDown, Message: "registry is shutting down"}
	}
	if _, exists := r.resources[id]; exists {
		return &CleanupError{Kind: CleanupFailed, Message: "resource " + id.String() + " already registered"}
	}
	r.resources[id] = entry{info: info.clone(), cleanup: cleanup}
	return nil
}

// Unregister removes id and returns the prior descriptor. After shutdown
// it is a no-op.
func (r *Registry) Unregister(id ID) (Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.resources[id]
	if !ok {
		return Info{}, false
	}
	delete(r.resources, id)
	return e.info, true
}

// Lookup returns a copy of the descriptor for id.
func (r *Registry) Lookup(id ID) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.resources[id]
	if !ok {
		return Info{}, false
	}
	return e.info.clone(), true
}

// ActiveCount returns the number of registered resources.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.resources)
}

// IsHealthy reports whether the registry still accepts registrations.
func (r *Registry) IsHealthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.shuttingDown
}

// ForceCleanupAll schedules cleanup of every outstanding resource at
// Critical priority and returns the count scheduled, not completed.
// Completion is observable only through ActiveCount. Fails once the
// registry is shutting down.
func (r *Registry) ForceCleanupAll(ctx context.Context) (int, error) {
	r.mu.RLock()
	if r.shuttingDown {
		r.mu.RUnlock()
		return 0, &CleanupError{Kind: CleanupShuttingDown, Message: "registry is shutting down"}
	}
	snapshot := make(map[ID]entry, len(r.resources))
	for id, e := range r.resources {
		snapshot[id] = e
	}
	r.mu.RUnlock()

	for id, e := range snapshot {
		r.scheduleCleanup(id, e, PriorityCritical)
	}
	return len(snapshot), nil
}

// Shutdown latches the ShuttingDown state, schedules cleanup for all
// remaining resources, drains the mapping, and waits for scheduled
// cleanups up to an internal bound. Idempotent.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	first := !r.shuttingDown
	r.shuttingDown = true

	var snapshot map[ID]entry
	if first {
		snapshot = r.resources
		r.resources = make(map[ID]entry)
	}
	r.mu.Unlock()

	if first {
		r.recorder.Record(core.Event{
			Type:    core.EventShutdown,
			Time:    time.Now(),
			Message: "registry shutting down",
		})
		for id, e := range snapshot {
			r.scheduleCleanup(id, e, PriorityCritical)
		}
	}

	return r.waitBounded(ctx)
}

// scheduleCleanup records the intent via the diagnostic sink and runs the
// hook, if any, in fire-and-forget form. On completion the id is removed
// from the mapping.
func (r *Registry) scheduleCleanup(id ID, e entry, prio CleanupPriority) {
	r.recorder.Record(core.Event{
		Type:    core.EventCleanupScheduled,
		Time:    time.Now(),
		Message: "cleanup scheduled",
		Fields: map[string]string{
			"resource_id": id.String(),
			"type":        e.info.Type,
			"priority":    prio.String(),
		},
	})

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		if e.cleanup != nil {
			ctx, cancel := context.WithTimeout(context.Background(), dropCleanupTimeout)
			defer cancel()
			if err := e.cleanup(ctx); err != nil {
				observability.RecordCleanup("error")
				r.recorder.Record(core.Event{
					Type:    core.EventCleanupFailed,
					Time:    time.Now(),
					Message: "scheduled cleanup failed",
					Err:     err,
					Fields:  map[string]string{"resource_id": id.String()},
				})
			} else {
				observability.RecordCleanup("ok")
			}
		}

		r.mu.Lock()
		delete(r.resources, id)
		r.mu.Unlock()
	}()
}

func (r *Registry) waitBounded(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(defaultShutdownBound):
		return &CleanupError{Kind: CleanupTimeout, Message: "shutdown wait bound exceeded"}
	}
}
