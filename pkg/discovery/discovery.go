// Package discovery probes local model runtimes (Ollama, LM Studio),
// caching health state and model listings with independent TTLs.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/agentgrid-dev/agentgrid/internal/observability"
	"github.com/agentgrid-dev/agentgrid/pkg/core"
)

// Discovery maintains TTL caches of service health and available models.
// All methods are safe for concurrent use.
type Discovery struct {
	cfg    Config
	client *http.Client
	now    func() time.Time

	group singleflight.Group

	mu       sync.RWMutex
	services map[ServiceType]*serviceEntry
	models   map[ServiceType]*modelEntry
}

type serviceEntry struct {
	info      ServiceInfo
	fetchedAt time.Time

	// probe counters backing the rolling metrics.
	probes     int64
	successes  int64
	latencySum time.Duration
}

// snapshot clones the entry's info so callers never share the cached
// model slice.
func (e *serviceEntry) snapshot() ServiceInfo {
	info := e.info
	info.Models = append([]string(nil), e.info.Models...)
	return info
}

type modelEntry struct {
	names     []string
	fetchedAt time.Time
}

// Option customizes a Discovery.
type Option func(*Discovery)

// WithHTTPClient replaces the probe client.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Discovery) { d.client = client }
}

// WithClock replaces the time source. Tests use this to step TTLs
// without sleeping.
func WithClock(now func() time.Time) Option {
	return func(d *Discovery) { d.now = now }
}

// New creates a Discovery with the given config. Zero config fields take
// their defaults.
func New(cfg Config, opts ...Option) *Discovery {
	cfg = cfg.withDefaults()
	d := &Discovery{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.ProbeTimeout},
		now:      time.Now,
		services: make(map[ServiceType]*serviceEntry),
		models:   make(map[ServiceType]*modelEntry),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Services returns health info for every known service. Fresh cache
// entries are served as-is; stale or missing ones are probed
// concurrently. Probe failures degrade the entry rather than erroring
// the call. A failing service below the failure threshold is reported
// degraded; at or above it the listing reports it unavailable so
// routing can elide it.
func (d *Discovery) Services(ctx context.Context) ([]ServiceInfo, error) {
	types := KnownServices()

	var stale []ServiceType
	fresh := make(map[ServiceType]ServiceInfo)

	d.mu.RLock()
	for _, t := range types {
		if e, ok := d.services[t]; ok && d.now().Sub(e.fetchedAt) < d.cfg.ServiceTTL {
			fresh[t] = e.snapshot()
		} else {
			stale = append(stale, t)
		}
	}
	d.mu.RUnlock()

	for range fresh {
		observability.RecordCacheLookup("services", "hit")
	}

	if len(stale) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		for _, t := range stale {
			observability.RecordCacheLookup("services", "miss")
			g.Go(func() error {
				d.Probe(gctx, t)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]ServiceInfo, 0, len(types))
	for _, t := range types {
		if e, ok := d.services[t]; ok {
			info := e.snapshot()
			info.Status = d.listedStatus(info)
			out = append(out, info)
		}
	}
	return out, nil
}

// listedStatus maps the raw per-observation verdict to the listing
// view: a failing service below the failure threshold shows as
// degraded rather than unavailable.
func (d *Discovery) listedStatus(info ServiceInfo) Status {
	if info.Status == StatusUnavailable && info.ConsecutiveFailures < d.cfg.FailureThreshold {
		return StatusDegraded
	}
	return info.Status
}

// Probe performs an immediate health probe against one service,
// bypassing the cache, and records the result in it. Any transport
// error, timeout, or non-success status marks the service unavailable
// for this observation; a success marks it available and resets the
// failure count.
func (d *Discovery) Probe(ctx context.Context, t ServiceType) ServiceInfo {
	endpoint := d.cfg.endpoint(t)

	start := d.now()
	err := d.probeOnce(ctx, endpoint+t.healthPath())
	latency := d.now().Sub(start)

	var version string
	if err == nil {
		version = d.fetchVersion(ctx, t, endpoint)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.services[t]
	if !ok {
		e = &serviceEntry{info: ServiceInfo{Type: t, Endpoint: endpoint, Status: StatusUnknown}}
		d.services[t] = e
	}
	e.fetchedAt = d.now()
	e.info.Endpoint = endpoint
	e.info.LastChecked = e.fetchedAt
	e.info.Metrics.LastRequest = e.fetchedAt
	e.probes++

	if err != nil {
		observability.RecordProbe(string(t), "error", latency)
		e.info.ConsecutiveFailures++
		e.info.Status = StatusUnavailable
		e.info.Metrics.SuccessRate = float64(e.successes) / float64(e.probes)
		return e.snapshot()
	}

	observability.RecordProbe(string(t), "ok", latency)
	e.successes++
	e.latencySum += latency
	e.info.Status = StatusAvailable
	e.info.Latency = latency
	e.info.ConsecutiveFailures = 0
	if version != "" {
		e.info.Version = version
	}
	e.info.Metrics.MeanResponseTime = e.latencySum / time.Duration(e.successes)
	e.info.Metrics.SuccessRate = float64(e.successes) / float64(e.probes)
	return e.snapshot()
}

// fetchVersion asks the service for its version. Best effort: services
// without a version endpoint, or failing ones, yield an empty string.
func (d *Discovery) fetchVersion(ctx context.Context, t ServiceType, endpoint string) string {
	path := t.versionPath()
	if path == "" {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+path, nil)
	if err != nil {
		return ""
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
		return ""
	}

	var payload struct {
		Version string `json:"version"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return ""
	}
	return payload.Version
}

// probeOnce issues one bounded GET and drains the body.
func (d *Discovery) probeOnce(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("probe returned status %d", resp.StatusCode)
	}
	return nil
}

// Models returns the model names the service advertises. Results cache
// for the model TTL; concurrent callers on a cold cache share a single
// fetch.
func (d *Discovery) Models(ctx context.Context, t ServiceType) ([]string, error) {
	d.mu.RLock()
	if e, ok := d.models[t]; ok && d.now().Sub(e.fetchedAt) < d.cfg.ModelTTL {
		names := append([]string(nil), e.names...)
		d.mu.RUnlock()
		observability.RecordCacheLookup("models", "hit")
		return names, nil
	}
	d.mu.RUnlock()
	observability.RecordCacheLookup("models", "miss")

	v, err, _ := d.group.Do(string(t), func() (any, error) {
		return d.fetchModels(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	return append([]string(nil), v.([]string)...), nil
}

func (d *Discovery) fetchModels(ctx context.Context, t ServiceType) ([]string, error) {
	endpoint := d.cfg.endpoint(t)
	url := endpoint + t.modelsPath()

	ctx, cancel := context.WithTimeout(ctx, d.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, core.WrapError(core.KindNetwork, core.CodeTransport,
			fmt.Sprintf("building model listing request for %s", t), err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, core.WrapError(core.KindNetwork, core.CodeTransport,
			fmt.Sprintf("fetching model listing from %s", t), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, core.WrapError(core.KindNetwork, core.CodeTransport,
			fmt.Sprintf("reading model listing from %s", t), err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, core.NewError(core.KindNetwork, core.CodeAPI,
			fmt.Sprintf("%s model listing returned status %d", t, resp.StatusCode))
	}

	names, err := parseModels(t, body)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	now := d.now()
	d.models[t] = &modelEntry{names: names, fetchedAt: now}
	if e, ok := d.services[t]; ok {
		e.info.Models = append([]string(nil), names...)
		e.info.Metrics.ModelCount = len(names)
		e.info.Metrics.LastRequest = now
	}
	d.mu.Unlock()
	return names, nil
}

// InvalidateModels drops the cached model listing for a service.
func (d *Discovery) InvalidateModels(t ServiceType) {
	d.mu.Lock()
	delete(d.models, t)
	d.mu.Unlock()
}

// parseModels decodes a model listing in the service's dialect. A
// malformed payload is a parse error; the cache is left untouched.
func parseModels(t ServiceType, body []byte) ([]string, error) {
	switch t {
	case ServiceOllama:
		var payload struct {
			Models []struct {
				Name string `json:"name"`
			} `json:"models"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, core.WrapError(core.KindExecution, core.CodeParse,
				"parsing ollama model listing", err)
		}
		names := make([]string, 0, len(payload.Models))
		for _, m := range payload.Models {
			if m.Name != "" {
				names = append(names, m.Name)
			}
		}
		return names, nil

	case ServiceLMStudio:
		var payload struct {
			Data []struct {
				ID string `json:"id"`
			} `json:"data"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, core.WrapError(core.KindExecution, core.CodeParse,
				"parsing lmstudio model listing", err)
		}
		names := make([]string, 0, len(payload.Data))
		for _, m := range payload.Data {
			if m.ID != "" {
				names = append(names, m.ID)
			}
		}
		return names, nil

	default:
		return nil, core.NewError(core.KindConfiguration, core.CodeInvalidFormat,
			fmt.Sprintf("unknown service type %q", t))
	}
}

// IsAvailable reports whether the service's most recent observation
// succeeded, without probing.
func (d *Discovery) IsAvailable(t ServiceType) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.services[t]
	return ok && e.info.Status == StatusAvailable
}
