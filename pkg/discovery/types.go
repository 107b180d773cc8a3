package discovery

import (
	"time"
)

// ServiceType identifies a local model runtime we know how to probe.
type ServiceType string

const (
	ServiceOllama   ServiceType = "ollama"
	ServiceLMStudio ServiceType = "lmstudio"
)

// DefaultEndpoint returns the service's conventional localhost address.
func (t ServiceType) DefaultEndpoint() string {
	switch t {
	case ServiceOllama:
		return "http://localhost:11434"
	case ServiceLMStudio:
		return "http://localhost:1234"
	default:
		return ""
	}
}

// healthPath is the cheap endpoint probed for liveness. Both services
// answer their model listing quickly, so it doubles as the health check.
func (t ServiceType) healthPath() string {
	return t.modelsPath()
}

func (t ServiceType) modelsPath() string {
	switch t {
	case ServiceOllama:
		return "/api/tags"
	case ServiceLMStudio:
		return "/v1/models"
	default:
		return ""
	}
}

// versionPath is the endpoint a service reports its version on, or
// empty when it has none.
func (t ServiceType) versionPath() string {
	if t == ServiceOllama {
		return "/api/version"
	}
	return ""
}

// KnownServices lists every probeable service type.
func KnownServices() []ServiceType {
	return []ServiceType{ServiceOllama, ServiceLMStudio}
}

// Status is the health verdict for a service. A probe records the raw
// per-observation verdict (available or unavailable); the aggregated
// service listing reports a failing service below the failure threshold
// as degraded.
type Status string

const (
	StatusUnknown     Status = "unknown"
	StatusAvailable   Status = "available"
	StatusDegraded    Status = "degraded"
	StatusUnavailable Status = "unavailable"
)

// ServiceInfo is a point-in-time view of a probed service.
type ServiceInfo struct {
	Type     ServiceType `json:"type"`
	Endpoint string      `json:"endpoint"`
	Status   Status      `json:"status"`

	// Version is the service's self-reported version, when it exposes one.
	Version string `json:"version,omitempty"`

	// Models is the most recent model listing fetched from the service.
	Models []string `json:"models,omitempty"`

	// LastChecked is when the most recent probe completed.
	LastChecked time.Time `json:"last_checked"`

	// Latency is the duration of the most recent successful probe.
	Latency time.Duration `json:"latency"`

	// ConsecutiveFailures counts probe failures since the last success.
	ConsecutiveFailures int `json:"consecutive_failures"`

	Metrics ServiceMetrics `json:"metrics"`
}

// ServiceMetrics accumulates rolling statistics across observations.
type ServiceMetrics struct {
	// MeanResponseTime averages the latency of successful probes.
	MeanResponseTime time.Duration `json:"mean_response_time"`

	// ModelCount is the size of the most recent model listing.
	ModelCount int `json:"model_count"`

	// LastRequest is when the service was last contacted, whether by a
	// probe or a model fetch.
	LastRequest time.Time `json:"last_request"`

	// SuccessRate is the fraction of probes that succeeded, in [0, 1].
	SuccessRate float64 `json:"success_rate"`
}

// Config tunes probing and cache behavior.
type Config struct {
	// Endpoints overrides the default endpoint per service. Missing
	// entries fall back to the service's DefaultEndpoint.
	Endpoints map[ServiceType]string

	// ProbeTimeout bounds each individual health probe.
	ProbeTimeout time.Duration

	// ServiceTTL is how long a probe result stays fresh.
	ServiceTTL time.Duration

	// ModelTTL is how long a model listing stays fresh.
	ModelTTL time.Duration

	// FailureThreshold is how many consecutive probe failures demote a
	// failing service from degraded to unavailable in the service
	// listing. Below it a failing service is still listed as degraded
	// so routing can decide whether to retry it.
	FailureThreshold int
}

// DefaultConfig returns the standard probe and cache settings.
func DefaultConfig() Config {
	return Config{
		ProbeTimeout:     5 * time.Second,
		ServiceTTL:       30 * time.Second,
		ModelTTL:         300 * time.Second,
		FailureThreshold: 3,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = def.ProbeTimeout
	}
	if c.ServiceTTL <= 0 {
		c.ServiceTTL = def.ServiceTTL
	}
	if c.ModelTTL <= 0 {
		c.ModelTTL = def.ModelTTL
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = def.FailureThreshold
	}
	return c
}

// endpoint resolves the effective endpoint for a service.
func (c Config) endpoint(t ServiceType) string {
	if ep, ok := c.Endpoints[t]; ok && ep != "" {
		return ep
	}
	return t.DefaultEndpoint()
}
