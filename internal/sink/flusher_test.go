package sink_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"pictopercept/internal/models"
	"pictopercept/internal/sink"
	"pictopercept/internal/survey"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// flakySink fails the listed keys a fixed number of times before storing them.
type flakySink struct {
	*sink.MemorySink
	mu       sync.Mutex
	failures map[string]int
	err      error
}

func newFlakySink(failures map[string]int) *flakySink {
	return &flakySink{
		MemorySink: sink.NewMemorySink(),
		failures:   failures,
		err:        errors.New("connection reset"),
	}
}

func (f *flakySink) Write(ctx context.Context, r models.ResponseRecord) error {
	f.mu.Lock()
	if f.failures[r.Key()] > 0 {
		f.failures[r.Key()]--
		err := f.err
		f.mu.Unlock()
		return err
	}
	f.mu.Unlock()
	return f.MemorySink.Write(ctx, r)
}

func records(user string, trials int) []models.ResponseRecord {
	var out []models.ResponseRecord
	for item := 1; item <= trials; item++ {
		for slot := 0; slot < 2; slot++ {
			out = append(out, models.ResponseRecord{
				UserID:     user,
				ItemNumber: item,
				Stimulus:   fmt.Sprintf("img-%d-%d.jpg", item, slot),
				Chosen:     slot == 0,
				Timestamp:  t0.Add(time.Duration(item) * time.Second),
			})
		}
	}
	return out
}

func keys(rs []models.ResponseRecord) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Key()
	}
	return out
}

func fastOptions() sink.Options {
	return sink.Options{MaxAttempts: 3, Backoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, Concurrency: 1}
}

func TestFlush_AllConfirmed(t *testing.T) {
	mem := sink.NewMemorySink()
	f := sink.NewFlusher(mem, zaptest.NewLogger(t), fastOptions())

	rs := records("u", 3)
	report := f.Flush(context.Background(), rs)

	assert.True(t, report.OK())
	assert.Equal(t, keys(rs), report.Confirmed)
	assert.Equal(t, 3, report.Attempts)
	assert.Equal(t, rs, mem.Records())
}

func TestFlush_TransientFailureIsRetried(t *testing.T) {
	rs := records("u", 2)
	flaky := newFlakySink(map[string]int{rs[2].Key(): 1})
	f := sink.NewFlusher(flaky, zaptest.NewLogger(t), fastOptions())

	report := f.Flush(context.Background(), rs)

	assert.True(t, report.OK())
	assert.ElementsMatch(t, keys(rs), report.Confirmed)
	assert.ElementsMatch(t, rs, flaky.Records())
	// Four first attempts plus one retry of the failed record only.
	assert.Equal(t, 4, flaky.Writes())
}

func TestFlush_ExhaustedRetriesFailWholeTrial(t *testing.T) {
	rs := records("u", 2)
	flaky := newFlakySink(map[string]int{rs[3].Key(): 10})
	f := sink.NewFlusher(flaky, zaptest.NewLogger(t), fastOptions())

	report := f.Flush(context.Background(), rs)

	assert.False(t, report.OK())
	assert.Equal(t, keys(rs[:2]), report.Confirmed)
	require.Len(t, report.Failed, 2)
	assert.Contains(t, report.Failed, rs[2].Key())
	assert.Contains(t, report.Failed, rs[3].Key())

	var se *sink.SinkError
	require.ErrorAs(t, report.Failed[rs[3].Key()], &se)
	assert.True(t, se.Transient)
	assert.Equal(t, rs[3].Key(), se.Key)
}

func TestFlush_PermanentErrorIsNotRetried(t *testing.T) {
	rs := records("u", 1)
	flaky := newFlakySink(map[string]int{rs[0].Key(): 10})
	flaky.err = &sink.SinkError{Key: rs[0].Key(), Err: errors.New("constraint violation")}
	f := sink.NewFlusher(flaky, zaptest.NewLogger(t), fastOptions())

	report := f.Flush(context.Background(), rs)

	assert.False(t, report.OK())
	assert.Equal(t, 1, report.Attempts)
	assert.Equal(t, 9, flaky.failures[rs[0].Key()])
}

func TestFlush_RetriesStopAtMaxAttempts(t *testing.T) {
	rs := records("u", 1)
	flaky := newFlakySink(map[string]int{rs[0].Key(): 10})
	opts := fastOptions()
	opts.MaxAttempts = 4
	f := sink.NewFlusher(flaky, zaptest.NewLogger(t), opts)

	report := f.Flush(context.Background(), rs)

	assert.False(t, report.OK())
	assert.Equal(t, 4, report.Attempts)
	assert.Equal(t, 6, flaky.failures[rs[0].Key()])
	assert.Equal(t, []models.ResponseRecord{rs[1]}, flaky.Records())
}

func TestFlush_DeadlineDuringBackoff(t *testing.T) {
	rs := records("u", 1)
	flaky := newFlakySink(map[string]int{rs[0].Key(): 10})
	f := sink.NewFlusher(flaky, zaptest.NewLogger(t), sink.Options{
		MaxAttempts: 5,
		Backoff:     time.Hour,
		MaxBackoff:  time.Hour,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	report := f.Flush(ctx, rs)

	assert.Less(t, time.Since(start), time.Minute)
	assert.Equal(t, 1, report.Attempts)
	require.Contains(t, report.Failed, rs[0].Key())
	assert.ErrorIs(t, report.Failed[rs[0].Key()], context.DeadlineExceeded)
	assert.False(t, sink.IsTransient(report.Failed[rs[0].Key()]))
}

func TestFlush_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mem := sink.NewMemorySink()
	f := sink.NewFlusher(mem, zaptest.NewLogger(t), fastOptions())

	report := f.Flush(ctx, records("u", 2))

	assert.Len(t, report.Failed, 4)
	assert.False(t, sink.IsTransient(report.Failed[records("u", 2)[0].Key()]))
	assert.Empty(t, mem.Records())
}

func TestFlush_BoundedConcurrency(t *testing.T) {
	mem := sink.NewMemorySink()
	opts := fastOptions()
	opts.Concurrency = 4
	f := sink.NewFlusher(mem, zaptest.NewLogger(t), opts)

	rs := records("u", 25)
	report := f.Flush(context.Background(), rs)

	assert.True(t, report.OK())
	assert.ElementsMatch(t, keys(rs), report.Confirmed)
	assert.ElementsMatch(t, rs, mem.Records())
	assert.Equal(t, 50, mem.Writes())
}

func TestFinalize_TransientFailureScenario(t *testing.T) {
	deck, err := survey.NewBuilder(survey.WithSeed(4)).Build([]models.Stimulus{
		{Path: "A"}, {Path: "B"}, {Path: "C"}, {Path: "D"}, {Path: "E"}, {Path: "F"},
	})
	require.NoError(t, err)

	state := survey.NewState("u", t0, false, survey.DefaultLimits())
	for i := 0; i < 2; i++ {
		trial, err := survey.CurrentTrial(state, deck)
		require.NoError(t, err)
		_, err = survey.SubmitChoice(state, trial, survey.ChoiceFirst, t0.Add(time.Second))
		require.NoError(t, err)
	}
	require.True(t, survey.ShouldEnd(state, t0.Add(66*time.Second)))

	log := state.Records()
	require.Len(t, log, 4)
	flaky := newFlakySink(map[string]int{log[2].Key(): 1})
	f := sink.NewFlusher(flaky, zaptest.NewLogger(t), fastOptions())

	report, err := survey.Finalize(context.Background(), state, f)
	require.NoError(t, err)

	assert.True(t, report.OK())
	assert.Equal(t, models.StatusCompleted, state.Status())
	assert.Equal(t, 4, state.ConfirmedCount())
	assert.ElementsMatch(t, log, flaky.Records(), "all four records stored exactly once")
	assert.Equal(t, 4, flaky.Writes())
}

func TestFinalize_PartialFlushResumes(t *testing.T) {
	deck, err := survey.NewBuilder(survey.WithSeed(4)).Build([]models.Stimulus{
		{Path: "A"}, {Path: "B"}, {Path: "C"}, {Path: "D"}, {Path: "E"}, {Path: "F"},
	})
	require.NoError(t, err)
	state := survey.NewState("u", t0, false, survey.DefaultLimits())
	for i := 0; i < 2; i++ {
		trial, err := survey.CurrentTrial(state, deck)
		require.NoError(t, err)
		_, err = survey.SubmitChoice(state, trial, survey.ChoiceSecond, t0)
		require.NoError(t, err)
	}
	log := state.Records()

	flaky := newFlakySink(map[string]int{log[0].Key(): 3})
	f := sink.NewFlusher(flaky, zaptest.NewLogger(t), fastOptions())

	_, err = survey.Finalize(context.Background(), state, f)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPartialFlush, state.Status())
	assert.Equal(t, 2, state.ConfirmedCount())

	report, err := survey.Finalize(context.Background(), state, f)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, keys(log[:2]), report.Confirmed)
	assert.Equal(t, models.StatusCompleted, state.Status())
	assert.Len(t, flaky.Records(), 4)
}

func TestSinkError(t *testing.T) {
	base := errors.New("boom")
	err := &sink.SinkError{Key: "u|1|a", Transient: true, Err: base}
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "transient")
	assert.True(t, sink.IsTransient(err))
	assert.True(t, sink.IsTransient(base))
	assert.False(t, sink.IsTransient(nil))
}
