package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Validation metrics
	validationChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentgrid_validation_checks_total",
			Help: "Total number of validator invocations",
		},
		[]string{"validator", "verdict"},
	)

	validationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentgrid_validation_duration_seconds",
			Help:    "Validator invocation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"validator"},
	)

	pipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentgrid_pipeline_runs_total",
			Help: "Total number of pipeline runs",
		},
		[]string{"stage", "verdict"},
	)

	// Discovery metrics
	discoveryProbesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentgrid_discovery_probes_total",
			Help: "Total number of service health probes",
		},
		[]string{"service", "status"},
	)

	discoveryProbeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentgrid_discovery_probe_duration_seconds",
			Help:    "Service probe duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentgrid_cache_lookups_total",
			Help: "Discovery cache lookups by result",
		},
		[]string{"cache", "result"},
	)

	// Resource metrics
	activeResources = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentgrid_active_resources",
			Help: "Number of resources currently registered",
		},
	)

	resourceCleanupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentgrid_resource_cleanups_total",
			Help: "Total number of resource cleanups by outcome",
		},
		[]string{"outcome"},
	)

	initOnce sync.Once
)

// InitMetrics registers all collectors with the default registerer.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			validationChecksTotal,
			validationDuration,
			pipelineRunsTotal,
			discoveryProbesTotal,
			discoveryProbeDuration,
			cacheLookupsTotal,
			activeResources,
			resourceCleanupsTotal,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus scraping.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordValidation records a validator invocation.
func RecordValidation(validator, verdict string, duration time.Duration) {
	validationChecksTotal.WithLabelValues(validator, verdict).Inc()
	validationDuration.WithLabelValues(validator).Observe(duration.Seconds())
}

// RecordPipelineRun records a full pipeline run.
func RecordPipelineRun(stage, verdict string) {
	pipelineRunsTotal.WithLabelValues(stage, verdict).Inc()
}

// RecordProbe records a service health probe.
func RecordProbe(service, status string, duration time.Duration) {
	discoveryProbesTotal.WithLabelValues(service, status).Inc()
	discoveryProbeDuration.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordCacheLookup records a discovery cache hit or miss.
func RecordCacheLookup(cache, result string) {
	cacheLookupsTotal.WithLabelValues(cache, result).Inc()
}

// SetActiveResources updates the registered-resource gauge.
func SetActiveResources(n int) {
	activeResources.Set(float64(n))
}

// RecordCleanup records a resource cleanup outcome ("ok" or "error").
func RecordCleanup(outcome string) {
	resourceCleanupsTotal.WithLabelValues(outcome).Inc()
}
