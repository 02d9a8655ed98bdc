package models

import (
	"time"

	"github.com/lib/pq"
)

// SessionStatus enumerates survey session states.
type SessionStatus string

const (
	StatusActive       SessionStatus = "active"
	StatusFlushing     SessionStatus = "flushing"
	StatusCompleted    SessionStatus = "completed"
	StatusPartialFlush SessionStatus = "partial_flush"
)

// Finished reports whether the session stopped serving trials.
func (s SessionStatus) Finished() bool {
	return s != StatusActive
}

// SessionSummary is written once per session after every record is confirmed.
type SessionSummary struct {
	ID            uint   `gorm:"primaryKey"`
	SessionID     string `gorm:"uniqueIndex;size:64"`
	UserID        string `gorm:"index;size:64"`
	ShowTimer     bool
	Trials        int
	Records       int
	AttentionPair pq.StringArray `gorm:"type:text[]"`
	StimulusOrder pq.StringArray `gorm:"type:text[]"`
	StartedAt     time.Time
	CompletedAt   time.Time
	CreatedAt     time.Time
}

// FlushReport is the per-record outcome of a flush.
type FlushReport struct {
	Confirmed []string         `json:"confirmed"`
	Failed    map[string]error `json:"-"`
	Attempts  int              `json:"attempts"`
}

// OK reports whether every record in the flush was confirmed.
func (r FlushReport) OK() bool {
	return len(r.Failed) == 0
}
