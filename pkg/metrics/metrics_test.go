package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func gathered(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		m := mf.GetMetric()[0]
		if g := m.GetGauge(); g != nil {
			return g.GetValue()
		}
		return m.GetCounter().GetValue()
	}
	t.Fatalf("metric %s not gathered", name)
	return 0
}

func TestNewWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.PostOperationsTotal.WithLabelValues("treap", "like", "ok").Inc()
	m.TreeHeight.WithLabelValues("bst").Set(12)

	require.Equal(t, 1.0, gathered(t, reg, "post_operations_total"))
	require.Equal(t, 12.0, gathered(t, reg, "tree_height"))

	require.NotPanics(t, func() { NewWithRegistry(prometheus.NewRegistry()) })
	require.Panics(t, func() { NewWithRegistry(reg) })
}
