package sink_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"pictopercept/internal/models"
	"pictopercept/internal/sink"
)

func openSQLite(t *testing.T) *sink.SQLiteSink {
	t.Helper()
	s, err := sink.OpenSQLite(filepath.Join(t.TempDir(), "responses.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteSink_WriteIsIdempotent(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	rs := records("u", 1)

	require.NoError(t, s.Write(ctx, rs[0]))
	require.NoError(t, s.Write(ctx, rs[0]))
	require.NoError(t, s.Write(ctx, rs[1]))

	stored, err := s.Responses(ctx, "u")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, rs[0].Stimulus, stored[0].Stimulus)
	assert.True(t, stored[0].Chosen)
	assert.False(t, stored[1].Chosen)
	assert.True(t, rs[0].Timestamp.Equal(stored[0].Timestamp))
}

func TestSQLiteSink_FlushBatches(t *testing.T) {
	s := openSQLite(t)
	f := sink.NewFlusher(s, zaptest.NewLogger(t), fastOptions())
	rs := records("u", 4)
	rs[3].IsAttentionCheck = true
	rs[3].ShowTimer = true

	report := f.Flush(context.Background(), rs)
	require.True(t, report.OK())

	// A second flush of the same log stores nothing new.
	report = f.Flush(context.Background(), rs)
	require.True(t, report.OK())

	stored, err := s.Responses(context.Background(), "u")
	require.NoError(t, err)
	require.Len(t, stored, 8)
	assert.True(t, stored[3].IsAttentionCheck)
	assert.True(t, stored[3].ShowTimer)
	assert.False(t, stored[2].IsAttentionCheck)
}

func TestSQLiteSink_WriteSummary(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	summary := models.SessionSummary{
		SessionID:     "sess-1",
		UserID:        "u",
		Trials:        2,
		Records:       4,
		AttentionPair: []string{"B", "E"},
		StimulusOrder: []string{"C", "A", "F", "D", "B", "E"},
		StartedAt:     t0,
		CompletedAt:   t0.Add(70 * time.Second),
	}

	require.NoError(t, s.WriteSummary(ctx, summary))
	require.NoError(t, s.WriteSummary(ctx, summary))

	n, err := s.SummaryCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
