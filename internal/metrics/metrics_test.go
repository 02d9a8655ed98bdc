package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pictopercept/internal/models"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func trial(item int, a, b string, firstChosen, attention bool, at time.Duration) []models.ResponseRecord {
	base := models.ResponseRecord{UserID: "u", ItemNumber: item, Timestamp: t0.Add(at), IsAttentionCheck: attention}
	ra, rb := base, base
	ra.Stimulus, ra.Chosen = a, firstChosen
	rb.Stimulus, rb.Chosen = b, !firstChosen
	return []models.ResponseRecord{ra, rb}
}

func log(trials ...[]models.ResponseRecord) []models.ResponseRecord {
	var out []models.ResponseRecord
	for _, t := range trials {
		out = append(out, t...)
	}
	return out
}

func TestCalculateSessionMetrics_ConsistentRespondent(t *testing.T) {
	records := log(
		trial(1, "C", "A", true, false, 2*time.Second),
		trial(2, "F", "D", false, false, 4*time.Second),
		trial(3, "B", "E", true, true, 8*time.Second),
		trial(10, "E", "B", false, true, 10*time.Second),
	)

	m := CalculateSessionMetrics(records, t0)

	require.True(t, m.AttentionConsistency.Calculated)
	assert.Equal(t, 1.0, m.AttentionConsistency.Value)
	assert.Equal(t, 2, m.AttentionConsistency.SampleSize)

	require.True(t, m.MeanResponseTime.Calculated)
	assert.InDelta(t, 2.5, m.MeanResponseTime.Value, 1e-9)
	assert.Equal(t, 4, m.MeanResponseTime.SampleSize)

	require.True(t, m.ResponseTimeSD.Calculated)
	assert.InDelta(t, 1.0, m.ResponseTimeSD.Value, 1e-9)

	assert.InDelta(t, 0.5, m.FirstChoiceRate.Value, 1e-9)
}

func TestCalculateSessionMetrics_InconsistentRespondent(t *testing.T) {
	records := log(
		trial(3, "B", "E", true, true, time.Second),
		trial(10, "E", "B", true, true, 2*time.Second),
		trial(21, "B", "E", true, true, 3*time.Second),
	)

	m := CalculateSessionMetrics(records, t0)
	assert.InDelta(t, 2.0/3.0, m.AttentionConsistency.Value, 1e-9)
	assert.Equal(t, 1.0, m.FirstChoiceRate.Value)
}

func TestCalculateSessionMetrics_NotEnoughData(t *testing.T) {
	m := CalculateSessionMetrics(nil, t0)
	assert.False(t, m.AttentionConsistency.Calculated)
	assert.False(t, m.MeanResponseTime.Calculated)
	assert.False(t, m.ResponseTimeSD.Calculated)
	assert.False(t, m.FirstChoiceRate.Calculated)

	m = CalculateSessionMetrics(trial(3, "B", "E", true, true, time.Second), t0)
	assert.False(t, m.AttentionConsistency.Calculated)
	assert.Equal(t, 1, m.AttentionConsistency.SampleSize)
	assert.True(t, m.MeanResponseTime.Calculated)
	assert.False(t, m.ResponseTimeSD.Calculated)
}

func TestItemLatencies(t *testing.T) {
	records := log(
		trial(1, "C", "A", true, false, 3*time.Second),
		trial(2, "F", "D", true, false, 5*time.Second),
		trial(3, "B", "E", true, true, 9*time.Second),
	)

	got := ItemLatencies(records, t0)
	assert.Equal(t, []ItemLatency{
		{Item: 1, Latency: 3 * time.Second},
		{Item: 2, Latency: 2 * time.Second},
		{Item: 3, Latency: 4 * time.Second, IsAttentionCheck: true},
	}, got)
}
