// Package metrics exposes the orchestrator's Prometheus registry
// (SPEC_FULL.md §5/§8 — ambient observability carried even though the
// spec's Non-goals only exclude the dashboard UI, not metrics).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry bundles every counter/gauge the orchestrator publishes.
type Registry struct {
	LLMRequestsTotal *prometheus.CounterVec
	LLMTokensTotal   *prometheus.CounterVec
	BudgetBlocksTotal *prometheus.CounterVec
	CreaturesByStatus *prometheus.GaugeVec
}

// New registers every metric against reg (pass prometheus.NewRegistry() in
// tests to avoid colliding with the global default registry).
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		LLMRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_llm_requests_total",
			Help: "Total LLM proxy requests by route (source/target).",
		}, []string{"route"}),
		LLMTokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_llm_tokens_total",
			Help: "Total LLM tokens recorded by identity and direction.",
		}, []string{"identity", "direction"}),
		BudgetBlocksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_budget_blocks_total",
			Help: "Total requests blocked by budget enforcement, by creature.",
		}, []string{"creature"}),
		CreaturesByStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "orchestrator_creatures",
			Help: "Current creature count by supervisor status.",
		}, []string{"status"}),
	}
}
