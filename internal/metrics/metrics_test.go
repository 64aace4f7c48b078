package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveSync("synced", "usdc", 0.1)
	m.PositionRead(false)
	m.FeedEvent("stake")
	m.StreamSubscribed(1)
}

func TestCountersRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveSync("synced", "usdc", 0.2)
	m.ObserveSync("synced", "usdc", 0.3)
	m.ClaimRecorded()

	families, err := reg.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				values[mf.GetName()] += c.GetValue()
			}
		}
	}
	assert.Equal(t, 2.0, values["swipe_sync_results_total"])
	assert.Equal(t, 1.0, values["swipe_stats_claims_recorded_total"])
}
