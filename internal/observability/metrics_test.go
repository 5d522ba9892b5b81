package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestMetricsRegistered verifies that every collector is visible in the
// default registry once it has been observed.
func TestMetricsRegistered(t *testing.T) {
	ValidationsTotal.WithLabelValues("generic", "safe").Inc()
	ValidationCacheHits.Inc()
	ExecutionsTotal.WithLabelValues("ok").Inc()
	ExecutionDuration.Observe(0.01)
	RepairsTotal.WithLabelValues("ok").Inc()
	GenerationRequestsTotal.WithLabelValues("ollama", "generate", "ok").Inc()
	GenerationLatency.WithLabelValues("ollama").Observe(1)
	PluginInvocationsTotal.WithLabelValues("material_database", "ok").Inc()
	CyclesTotal.WithLabelValues("script", "ok").Inc()

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("unexpected gather error: %v", err)
	}

	expected := map[string]bool{
		"cadforge_validations_total":           false,
		"cadforge_validation_cache_hits_total": false,
		"cadforge_executions_total":            false,
		"cadforge_execution_duration_seconds":  false,
		"cadforge_repairs_total":               false,
		"cadforge_generation_requests_total":   false,
		"cadforge_generation_latency_seconds":  false,
		"cadforge_plugin_invocations_total":    false,
		"cadforge_cycles_total":                false,
	}
	for _, mf := range families {
		if _, ok := expected[mf.GetName()]; ok {
			expected[mf.GetName()] = true
		}
	}
	for name, found := range expected {
		if !found {
			t.Errorf("metric %q not found in registry", name)
		}
	}
}

func TestCounterIncrements(t *testing.T) {
	c := ExecutionsTotal.WithLabelValues("timeout")
	before := testutil.ToFloat64(c)
	c.Inc()
	if got := testutil.ToFloat64(c); got != before+1 {
		t.Errorf("counter = %v, want %v", got, before+1)
	}
}

func TestStatus(t *testing.T) {
	if Status(true) != "ok" || Status(false) != "error" {
		t.Errorf("Status labels = %q/%q", Status(true), Status(false))
	}
}
