package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLLMRequestsTotal_IncrementsByRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.LLMRequestsTotal.WithLabelValues("source").Inc()
	m.LLMRequestsTotal.WithLabelValues("source").Inc()
	m.LLMRequestsTotal.WithLabelValues("target").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	var source, target float64
	for _, fam := range families {
		if fam.GetName() != "orchestrator_llm_requests_total" {
			continue
		}
		for _, metric := range fam.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "route" {
					switch label.GetValue() {
					case "source":
						source = metric.GetCounter().GetValue()
					case "target":
						target = metric.GetCounter().GetValue()
					}
				}
			}
		}
	}

	assert.Equal(t, 2.0, source)
	assert.Equal(t, 1.0, target)
}

func TestCreaturesByStatus_GaugeSetAndGet(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.CreaturesByStatus.WithLabelValues("running").Set(3)

	var got *dto.Metric = nil
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() == "orchestrator_creatures" {
			got = fam.GetMetric()[0]
		}
	}
	require.NotNil(t, got)
	assert.Equal(t, 3.0, got.GetGauge().GetValue())
}
