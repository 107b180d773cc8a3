package resource

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentgrid-dev/agentgrid/internal/observability"
	"github.com/agentgrid-dev/agentgrid/pkg/core"
)

// cleanupOutcomes reads the cleanup counter from the default registry,
// keyed by outcome label.
func cleanupOutcomes(t *testing.T) map[string]float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	out := make(map[string]float64)
	for _, mf := range families {
		if mf.GetName() != "agentgrid_resource_cleanups_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "outcome" {
					out[l.GetValue()] = m.GetCounter().GetValue()
				}
			}
		}
	}
	return out
}

func TestGuardReleaseCountsCleanupOutcomes(t *testing.T) {
	observability.InitMetrics()
	before := cleanupOutcomes(t)

	g := NewGuard("v", func(ctx context.Context, v string) error { return nil },
		WithRecorder(core.NopRecorder))
	require.NoError(t, g.Release(context.Background()))

	bad := NewGuard("v", func(ctx context.Context, v string) error { return errors.New("boom") },
		WithRecorder(core.NopRecorder))
	require.Error(t, bad.Release(context.Background()))

	after := cleanupOutcomes(t)
	assert.GreaterOrEqual(t, after["ok"], before["ok"]+1)
	assert.GreaterOrEqual(t, after["error"], before["error"]+1)
}

func TestRegistryScheduledCleanupCountsOutcome(t *testing.T) {
	observability.InitMetrics()
	before := cleanupOutcomes(t)

	r := NewRegistry(WithRegistryRecorder(core.NopRecorder))
	require.NoError(t, r.RegisterWithCleanup(NewID(), Info{Type: "session"},
		func(ctx context.Context) error { return nil }))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))

	after := cleanupOutcomes(t)
	assert.GreaterOrEqual(t, after["ok"], before["ok"]+1)
}
