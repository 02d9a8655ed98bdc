package survey

import "time"

// Elapsed returns the session's running time at now.
func Elapsed(state *State, now time.Time) time.Duration {
	return now.Sub(state.startTime)
}

// TrialElapsed returns how long the current trial has been waiting for an
// answer: the time since the last recorded choice, or since the session
// started when nothing has been answered yet.
func TrialElapsed(state *State, now time.Time) time.Duration {
	state.mu.Lock()
	defer state.mu.Unlock()
	since := state.startTime
	if n := len(state.log); n > 0 {
		since = state.log[n-1].Timestamp
	}
	if d := now.Sub(since); d > 0 {
		return d
	}
	return 0
}

// ShouldEnd reports whether the session ran past its length with at least
// the minimum number of records collected. A session always needs one full
// trial, whatever the limits say. It has no side effects.
func ShouldEnd(state *State, now time.Time) bool {
	state.mu.Lock()
	defer state.mu.Unlock()
	return now.Sub(state.startTime) > state.limits.SessionLength && len(state.log) >= max(state.limits.MinRecords, 2)
}
