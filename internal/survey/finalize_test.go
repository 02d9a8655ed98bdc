package survey

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pictopercept/internal/models"
)

// fakeFlusher confirms every record except those listed in failKeys on each call.
type fakeFlusher struct {
	mu       sync.Mutex
	calls    [][]models.ResponseRecord
	failKeys map[string]bool
	block    chan struct{}
}

func (f *fakeFlusher) Flush(ctx context.Context, records []models.ResponseRecord) models.FlushReport {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, records)

	report := models.FlushReport{Failed: map[string]error{}}
	for _, r := range records {
		if f.failKeys[r.Key()] {
			report.Failed[r.Key()] = errors.New("sink unavailable")
			continue
		}
		report.Confirmed = append(report.Confirmed, r.Key())
	}
	return report
}

func TestFinalize_CompletesAndIsIdempotent(t *testing.T) {
	state := answered(t, 2)
	f := &fakeFlusher{}

	report, err := Finalize(context.Background(), state, f)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Len(t, report.Confirmed, 4)
	assert.Equal(t, models.StatusCompleted, state.Status())
	assert.Equal(t, 4, state.ConfirmedCount())
	assert.False(t, state.LastFlush().IsZero())

	report, err = Finalize(context.Background(), state, f)
	require.NoError(t, err)
	assert.Empty(t, report.Confirmed)
	assert.Len(t, f.calls, 1, "a completed session is never flushed again")
}

func TestFinalize_PartialThenResume(t *testing.T) {
	state := answered(t, 2)
	records := state.Records()
	f := &fakeFlusher{failKeys: map[string]bool{records[2].Key(): true, records[3].Key(): true}}

	report, err := Finalize(context.Background(), state, f)
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.Equal(t, models.StatusPartialFlush, state.Status())
	assert.Equal(t, 2, state.ConfirmedCount())
	assert.Equal(t, 4, state.Len(), "failed records stay in the log")

	f.failKeys = nil
	report, err = Finalize(context.Background(), state, f)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, models.StatusCompleted, state.Status())

	require.Len(t, f.calls, 2)
	assert.Equal(t, records[2:], f.calls[1], "only unconfirmed records are resent")
}

func TestFinalize_EmptyLog(t *testing.T) {
	state := NewState("u", t0, false, DefaultLimits())
	f := &fakeFlusher{}

	_, err := Finalize(context.Background(), state, f)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, state.Status())
	assert.Empty(t, f.calls)
}

func TestFinalize_ConcurrentCallRejected(t *testing.T) {
	state := answered(t, 1)
	f := &fakeFlusher{block: make(chan struct{})}

	done := make(chan error, 1)
	go func() {
		_, err := Finalize(context.Background(), state, f)
		done <- err
	}()

	require.Eventually(t, func() bool { return state.Status() == models.StatusFlushing }, time.Second, time.Millisecond)
	_, err := Finalize(context.Background(), state, f)
	assert.ErrorIs(t, err, ErrFlushInProgress)

	close(f.block)
	require.NoError(t, <-done)
	assert.Equal(t, models.StatusCompleted, state.Status())
}
