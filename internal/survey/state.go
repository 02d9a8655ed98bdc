package survey

import (
	"sync"
	"time"

	"pictopercept/internal/models"
)

// Limits configures the exit gate.
type Limits struct {
	SessionLength time.Duration
	MinRecords    int
}

// DefaultLimits ends a session after 65 seconds once at least one trial is answered.
func DefaultLimits() Limits {
	return Limits{
		SessionLength: 65 * time.Second,
		MinRecords:    2,
	}
}

// State is one respondent's session. The response log only grows through
// SubmitChoice and len(log) == cursor holds at all times.
type State struct {
	mu        sync.Mutex
	userID    string
	startTime time.Time
	showTimer bool
	limits    Limits

	cursor    int
	log       []models.ResponseRecord
	status    models.SessionStatus
	confirmed map[string]struct{}
	lastFlush time.Time
}

// NewState starts a session at the given time.
func NewState(userID string, start time.Time, showTimer bool, limits Limits) *State {
	return &State{
		userID:    userID,
		startTime: start,
		showTimer: showTimer,
		limits:    limits,
		status:    models.StatusActive,
		confirmed: make(map[string]struct{}),
	}
}

func (s *State) UserID() string       { return s.userID }
func (s *State) StartTime() time.Time { return s.startTime }
func (s *State) ShowTimer() bool      { return s.showTimer }
func (s *State) Limits() Limits       { return s.limits }

// Cursor returns the even trial cursor.
func (s *State) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Status returns the session status.
func (s *State) Status() models.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Len returns the number of records in the log.
func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.log)
}

// Records returns a copy of the response log.
func (s *State) Records() []models.ResponseRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ResponseRecord, len(s.log))
	copy(out, s.log)
	return out
}

// ConfirmedCount returns how many records the sink has confirmed.
func (s *State) ConfirmedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.confirmed)
}

// LastFlush returns when the last flush attempt finished, or the zero time.
func (s *State) LastFlush() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFlush
}
