// Package metrics holds the Prometheus collectors shared across the memory
// graph: write counters, retrieval outcomes, and consolidation activity.
// All Inc helpers are nil-receiver safe so components can run unmetered in
// tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics bundles the collectors and the registry they live on. The gateway
// exposes Registry on /metrics.
type Metrics struct {
	Registry *prometheus.Registry

	nodesCreated        *prometheus.CounterVec
	edgesCreated        *prometheus.CounterVec
	retrievals          prometheus.Counter
	retrievalFallbacks  prometheus.Counter
	sessionsCleared     prometheus.Counter
	consolidationRuns   prometheus.Counter
	consolidationMerges prometheus.Counter
	consolidationDecays prometheus.Counter
	consolidationErrors prometheus.Counter
}

// New creates a registry with process collectors plus the graph's own.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		Registry: reg,
		nodesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memgraph_nodes_created_total",
			Help: "Memory nodes created, by category.",
		}, []string{"category"}),
		edgesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memgraph_edges_created_total",
			Help: "Memory edges created, by relation.",
		}, []string{"relation"}),
		retrievals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "memgraph_retrievals_total",
			Help: "Context retrieval requests served.",
		}),
		retrievalFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "memgraph_retrieval_fallbacks_total",
			Help: "Retrievals that fell back to importance-recency scoring.",
		}),
		sessionsCleared: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "memgraph_sessions_cleared_total",
			Help: "Sessions fully cleared.",
		}),
		consolidationRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "memgraph_consolidation_runs_total",
			Help: "Consolidation job executions.",
		}),
		consolidationMerges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "memgraph_consolidation_merges_total",
			Help: "Near-duplicate node pairs merged.",
		}),
		consolidationDecays: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "memgraph_consolidation_decays_total",
			Help: "Nodes whose importance was decayed.",
		}),
		consolidationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "memgraph_consolidation_errors_total",
			Help: "Sessions that failed to consolidate.",
		}),
	}
	reg.MustRegister(
		m.nodesCreated,
		m.edgesCreated,
		m.retrievals,
		m.retrievalFallbacks,
		m.sessionsCleared,
		m.consolidationRuns,
		m.consolidationMerges,
		m.consolidationDecays,
		m.consolidationErrors,
	)
	return m
}

func (m *Metrics) IncNodeCreated(category string) {
	if m != nil {
		m.nodesCreated.WithLabelValues(category).Inc()
	}
}

func (m *Metrics) IncEdgeCreated(relation string) {
	if m != nil {
		m.edgesCreated.WithLabelValues(relation).Inc()
	}
}

func (m *Metrics) IncRetrieval() {
	if m != nil {
		m.retrievals.Inc()
	}
}

func (m *Metrics) IncRetrievalFallback() {
	if m != nil {
		m.retrievalFallbacks.Inc()
	}
}

func (m *Metrics) IncSessionsCleared() {
	if m != nil {
		m.sessionsCleared.Inc()
	}
}

func (m *Metrics) IncConsolidationRun() {
	if m != nil {
		m.consolidationRuns.Inc()
	}
}

func (m *Metrics) AddConsolidationMerges(n int) {
	if m != nil && n > 0 {
		m.consolidationMerges.Add(float64(n))
	}
}

func (m *Metrics) AddConsolidationDecays(n int) {
	if m != nil && n > 0 {
		m.consolidationDecays.Add(float64(n))
	}
}

func (m *Metrics) IncConsolidationError() {
	if m != nil {
		m.consolidationErrors.Inc()
	}
}
