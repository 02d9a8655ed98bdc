package survey

import (
	"time"

	"pictopercept/internal/models"
)

// ReviewRow joins a response record with what the deck knows about its stimulus.
type ReviewRow struct {
	models.ResponseRecord
	Name         string
	Metadata     map[string]string
	DeckPosition int
}

// Review returns the read-only view of a finished session's log. Records
// whose stimulus is not in the deck are dropped.
func Review(state *State, deck *Deck) []ReviewRow {
	records := state.Records()
	rows := make([]ReviewRow, 0, len(records))
	for _, r := range records {
		pos := deck.Position(r.Stimulus)
		if pos < 0 {
			continue
		}
		s := deck.Ordered[pos]
		rows = append(rows, ReviewRow{
			ResponseRecord: r,
			Name:           s.Name,
			Metadata:       s.Metadata,
			DeckPosition:   pos,
		})
	}
	return rows
}

// Summary builds the persisted session summary.
func Summary(sessionID string, state *State, deck *Deck, completedAt time.Time) models.SessionSummary {
	order := make([]string, len(deck.Ordered))
	for i, s := range deck.Ordered {
		order[i] = s.Path
	}
	n := state.Len()
	return models.SessionSummary{
		SessionID:     sessionID,
		UserID:        state.UserID(),
		ShowTimer:     state.ShowTimer(),
		Trials:        n / 2,
		Records:       n,
		AttentionPair: []string{deck.AttentionPair[0].Path, deck.AttentionPair[1].Path},
		StimulusOrder: order,
		StartedAt:     state.StartTime(),
		CompletedAt:   completedAt,
	}
}
