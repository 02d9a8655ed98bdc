package survey

import (
	"context"
	"errors"
	"time"

	"pictopercept/internal/models"
)

var ErrFlushInProgress = errors.New("flush already in progress")

// Flusher persists a batch of records and reports which were confirmed.
type Flusher interface {
	Flush(ctx context.Context, records []models.ResponseRecord) models.FlushReport
}

// Finalize stops the session and flushes every record the sink has not yet
// confirmed. A completed session returns an empty report; a partially flushed
// one resumes from its unconfirmed records.
func Finalize(ctx context.Context, state *State, flusher Flusher) (models.FlushReport, error) {
	state.mu.Lock()
	switch state.status {
	case models.StatusCompleted:
		state.mu.Unlock()
		return models.FlushReport{}, nil
	case models.StatusFlushing:
		state.mu.Unlock()
		return models.FlushReport{}, ErrFlushInProgress
	}

	pending := make([]models.ResponseRecord, 0, len(state.log))
	for _, r := range state.log {
		if _, ok := state.confirmed[r.Key()]; !ok {
			pending = append(pending, r)
		}
	}
	state.status = models.StatusFlushing
	state.mu.Unlock()

	report := models.FlushReport{}
	if len(pending) > 0 {
		report = flusher.Flush(ctx, pending)
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	for _, key := range report.Confirmed {
		state.confirmed[key] = struct{}{}
	}
	state.lastFlush = time.Now()
	if len(state.confirmed) >= len(state.log) {
		state.status = models.StatusCompleted
	} else {
		state.status = models.StatusPartialFlush
	}
	return report, nil
}
