package survey

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"pictopercept/internal/models"
)

var (
	ErrInvalidChoice   = errors.New("choice must be 1 or 2")
	ErrSessionFinished = errors.New("session no longer serves trials")
)

// Choice selects the first or second stimulus of a trial.
type Choice int

const (
	ChoiceFirst  Choice = 1
	ChoiceSecond Choice = 2
)

func (c Choice) valid() bool {
	return c == ChoiceFirst || c == ChoiceSecond
}

// ParseChoice parses a form value into a Choice.
func ParseChoice(v string) (Choice, error) {
	n, err := strconv.Atoi(v)
	if err != nil || !Choice(n).valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidChoice, v)
	}
	return Choice(n), nil
}

// CurrentTrial resolves the trial at the session's cursor.
func CurrentTrial(state *State, deck *Deck) (models.Trial, error) {
	state.mu.Lock()
	cursor, status := state.cursor, state.status
	state.mu.Unlock()

	if status.Finished() {
		return models.Trial{}, ErrSessionFinished
	}
	return deck.TrialAt(cursor)
}

// SubmitChoice records the respondent's choice for trial and advances the
// cursor. It reports false without error when the trial is no longer the
// current one or the session has stopped accepting answers, which absorbs
// duplicate submissions.
func SubmitChoice(state *State, trial models.Trial, choice Choice, now time.Time) (bool, error) {
	if !choice.valid() {
		return false, fmt.Errorf("%w: %d", ErrInvalidChoice, choice)
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	if state.status != models.StatusActive || trial.Index != state.cursor {
		return false, nil
	}

	item := trial.ItemNumber()
	base := models.ResponseRecord{
		UserID:           state.userID,
		ItemNumber:       item,
		Timestamp:        now,
		ShowTimer:        state.showTimer,
		IsAttentionCheck: trial.IsAttentionCheck,
	}
	first, second := base, base
	first.Stimulus, first.Chosen = trial.StimulusA.Path, choice == ChoiceFirst
	second.Stimulus, second.Chosen = trial.StimulusB.Path, choice == ChoiceSecond

	state.log = append(state.log, first, second)
	state.cursor += 2
	return true, nil
}
