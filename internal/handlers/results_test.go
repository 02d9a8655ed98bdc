package handlers

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pictopercept/internal/metrics"
)

func TestFormatMetadataIsSorted(t *testing.T) {
	got := formatMetadata(map[string]string{"gender": "M", "dataset": "CFD", "ethnicity": "W"})
	assert.Equal(t, "dataset=CFD, ethnicity=W, gender=M", got)
	assert.Empty(t, formatMetadata(nil))
}

func TestFormatMetrics(t *testing.T) {
	assert.Equal(t, "not enough attention checks", formatConsistency(metrics.MetricResult{}))
	assert.Equal(t, "67% (3 checks)", formatConsistency(metrics.MetricResult{Value: 2.0 / 3, Calculated: true, SampleSize: 3}))
	assert.Equal(t, "n/a", formatSeconds(metrics.MetricResult{}))
	assert.Equal(t, "2.5 s", formatSeconds(metrics.MetricResult{Value: 2.5, Calculated: true}))
}

func TestGenerateLatencyChart(t *testing.T) {
	bar := generateLatencyChart([]metrics.ItemLatency{
		{Item: 1, Latency: 2 * time.Second},
		{Item: 2, Latency: 1500 * time.Millisecond, IsAttentionCheck: true},
	})

	assert.Equal(t, "Response Time per Item", bar.Title.Title)
	assert.Len(t, bar.MultiSeries, 1)

	js, err := json.Marshal(bar.JSON())
	require.NoError(t, err)
	assert.Contains(t, string(js), `["1","2"]`)
	assert.Contains(t, string(js), "#d9534f")
}
