package sink

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pictopercept/internal/models"
)

// Options tune the flush loop.
type Options struct {
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
	Concurrency int
}

// DefaultOptions writes one trial at a time and retries each up to five times.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 5,
		Backoff:     200 * time.Millisecond,
		MaxBackoff:  5 * time.Second,
		Concurrency: 1,
	}
}

// Flusher writes a session's response log to a Sink, one trial at a time.
type Flusher struct {
	sink Sink
	log  *zap.Logger
	opts Options
}

// NewFlusher returns a Flusher; zero-valued options fall back to defaults.
func NewFlusher(s Sink, log *zap.Logger, opts Options) *Flusher {
	def := DefaultOptions()
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = def.MaxBackoff
	}
	if opts.Backoff < 0 {
		opts.Backoff = 0
	}
	return &Flusher{sink: s, log: log, opts: opts}
}

// Sink returns the underlying sink.
func (f *Flusher) Sink() Sink {
	return f.sink
}

// Flush writes records grouped by trial. A trial's keys are confirmed only
// when both of its records are stored; otherwise both are reported failed so
// a later flush resends them together.
func (f *Flusher) Flush(ctx context.Context, records []models.ResponseRecord) models.FlushReport {
	report := models.FlushReport{Failed: make(map[string]error)}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(f.opts.Concurrency)
	for _, group := range groupByTrial(records) {
		group := group
		g.Go(func() error {
			attempts, err := f.writeGroup(ctx, group)

			mu.Lock()
			defer mu.Unlock()
			report.Attempts += attempts
			for _, r := range group {
				if err != nil {
					report.Failed[r.Key()] = err
				} else {
					report.Confirmed = append(report.Confirmed, r.Key())
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(report.Failed) > 0 {
		f.log.Warn("Flush left unconfirmed records",
			zap.Int("confirmed", len(report.Confirmed)),
			zap.Int("failed", len(report.Failed)),
		)
	} else {
		f.log.Info("Flush completed", zap.Int("records", len(report.Confirmed)), zap.Int("attempts", report.Attempts))
	}
	return report
}

// writeGroup stores one trial's records, retrying transient failures with
// exponential backoff. Records already stored are not resent.
func (f *Flusher) writeGroup(ctx context.Context, group []models.ResponseRecord) (int, error) {
	pending := group
	attempts := 0

	operation := func() error {
		attempts++
		var err error
		pending, err = f.write(ctx, pending)
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		f.log.Debug("Retrying trial records", zap.Error(err), zap.Int("attempt", attempts), zap.Duration("backoff", wait))
	}

	err := backoff.RetryNotify(operation, f.retryPolicy(ctx), notify)
	if err != nil {
		if ctx.Err() != nil {
			err = classify(group[0].Key(), err)
		}
		f.log.Error("Giving up on trial records",
			zap.Error(err),
			zap.Int("item", group[0].ItemNumber),
			zap.String("user_id", group[0].UserID),
			zap.Int("attempts", attempts),
		)
		return attempts, err
	}
	return attempts, nil
}

// retryPolicy allows MaxAttempts writes per trial, doubling the wait from
// Backoff up to MaxBackoff without jitter.
func (f *Flusher) retryPolicy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = f.opts.Backoff
	exp.MaxInterval = f.opts.MaxBackoff
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(f.opts.MaxAttempts-1)), ctx)
}

// write stores records and returns the ones still pending with the last error.
func (f *Flusher) write(ctx context.Context, records []models.ResponseRecord) ([]models.ResponseRecord, error) {
	if batch, ok := f.sink.(BatchSink); ok {
		if err := batch.WriteBatch(ctx, records); err != nil {
			return records, classify(records[0].Key(), err)
		}
		return nil, nil
	}

	var pending []models.ResponseRecord
	var lastErr error
	for _, r := range records {
		if err := f.sink.Write(ctx, r); err != nil {
			pending = append(pending, r)
			lastErr = classify(r.Key(), err)
		}
	}
	return pending, lastErr
}

func groupByTrial(records []models.ResponseRecord) [][]models.ResponseRecord {
	var groups [][]models.ResponseRecord
	index := make(map[int]int)
	for _, r := range records {
		i, ok := index[r.ItemNumber]
		if !ok {
			i = len(groups)
			index[r.ItemNumber] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], r)
	}
	return groups
}
