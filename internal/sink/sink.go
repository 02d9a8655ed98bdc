package sink

import (
	"context"
	"errors"
	"fmt"

	"pictopercept/internal/models"
)

// Sink durably stores response records. Writing the same record twice must
// leave a single copy behind.
type Sink interface {
	Write(ctx context.Context, record models.ResponseRecord) error
}

// BatchSink is implemented by sinks that can store a trial's records atomically.
type BatchSink interface {
	Sink
	WriteBatch(ctx context.Context, records []models.ResponseRecord) error
}

// SummaryWriter is implemented by sinks that also keep one summary row per session.
type SummaryWriter interface {
	WriteSummary(ctx context.Context, summary models.SessionSummary) error
}

// SinkError is a failed write of a single record.
type SinkError struct {
	Key       string
	Transient bool
	Err       error
}

func (e *SinkError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("sink write %s (%s): %v", e.Key, kind, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// classify wraps a store error for key. Context cancellation is permanent;
// anything else is retried.
func classify(key string, err error) error {
	if err == nil {
		return nil
	}
	var se *SinkError
	if errors.As(err, &se) {
		return se
	}
	transient := !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	return &SinkError{Key: key, Transient: transient, Err: err}
}

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	var se *SinkError
	if errors.As(err, &se) {
		return se.Transient
	}
	return err != nil
}
