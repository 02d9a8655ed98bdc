package models

import (
	"fmt"
	"time"
)

// TimestampLayout is the layout used when a record's timestamp is written as text.
const TimestampLayout = "2006-01-02 15:04:05"

// ResponseRecord is one row of the response log. Each trial produces two,
// one per stimulus shown.
type ResponseRecord struct {
	UserID           string    `json:"userid"`
	ItemNumber       int       `json:"item"`
	Stimulus         string    `json:"file"`
	Chosen           bool      `json:"chosen"`
	Timestamp        time.Time `json:"timestamp"`
	ShowTimer        bool      `json:"show_timer_progress"`
	IsAttentionCheck bool      `json:"attention_check"`
}

// Key identifies the record at the sink so retried writes stay idempotent.
func (r ResponseRecord) Key() string {
	return fmt.Sprintf("%s|%d|%s", r.UserID, r.ItemNumber, r.Stimulus)
}

// Response is the persisted form of a ResponseRecord.
type Response struct {
	ID               uint   `gorm:"primaryKey"`
	RecordKey        string `gorm:"uniqueIndex;size:512"`
	UserID           string `gorm:"index;size:64"`
	ItemNumber       int
	Stimulus         string
	Chosen           bool
	Timestamp        time.Time
	ShowTimer        bool
	IsAttentionCheck bool
	CreatedAt        time.Time
}

// NewResponse converts a log record into its persisted row.
func NewResponse(r ResponseRecord) Response {
	return Response{
		RecordKey:        r.Key(),
		UserID:           r.UserID,
		ItemNumber:       r.ItemNumber,
		Stimulus:         r.Stimulus,
		Chosen:           r.Chosen,
		Timestamp:        r.Timestamp,
		ShowTimer:        r.ShowTimer,
		IsAttentionCheck: r.IsAttentionCheck,
	}
}
