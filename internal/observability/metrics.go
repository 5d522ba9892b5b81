// Package observability provides Prometheus metrics for the validation,
// execution and generation pipeline.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets covers generation latencies from 100ms up to the 120s local
// model timeout.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// ScriptBuckets covers script run times up to the default sandbox budget.
var ScriptBuckets = []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10}

var (
	// ValidationsTotal counts verdicts by profile and result (safe, unsafe, syntax).
	ValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadforge_validations_total",
			Help: "Script validations",
		},
		[]string{"profile", "result"},
	)

	// ValidationCacheHits counts verdicts served from the LRU cache.
	ValidationCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cadforge_validation_cache_hits_total",
			Help: "Verdicts served from cache",
		},
	)

	// ExecutionsTotal counts sandbox runs by status (ok, refused, fault, timeout).
	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadforge_executions_total",
			Help: "Sandbox executions",
		},
		[]string{"status"},
	)

	// ExecutionDuration records script run time in seconds.
	ExecutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cadforge_execution_duration_seconds",
			Help:    "Sandbox execution duration",
			Buckets: ScriptBuckets,
		},
	)

	// RepairsTotal counts repair attempts by result.
	RepairsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadforge_repairs_total",
			Help: "Repair attempts",
		},
		[]string{"result"},
	)

	// GenerationRequestsTotal counts generation backend calls.
	GenerationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadforge_generation_requests_total",
			Help: "Generation backend requests",
		},
		[]string{"provider", "kind", "status"},
	)

	// GenerationLatency records generation backend latency in seconds.
	GenerationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cadforge_generation_latency_seconds",
			Help:    "Generation backend latency",
			Buckets: LLMBuckets,
		},
		[]string{"provider"},
	)

	// PluginInvocationsTotal counts capability invocations by plugin and status.
	PluginInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadforge_plugin_invocations_total",
			Help: "Plugin invocations",
		},
		[]string{"plugin", "status"},
	)

	// CyclesTotal counts finished request cycles by kind and status.
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadforge_cycles_total",
			Help: "Request cycles",
		},
		[]string{"kind", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		ValidationsTotal,
		ValidationCacheHits,
		ExecutionsTotal,
		ExecutionDuration,
		RepairsTotal,
		GenerationRequestsTotal,
		GenerationLatency,
		PluginInvocationsTotal,
		CyclesTotal,
	)
}

// Status maps a success flag to the label value used across counters.
func Status(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
