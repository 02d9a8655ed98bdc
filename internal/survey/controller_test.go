package survey

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func scenarioDeck(t *testing.T) *Deck {
	t.Helper()
	deck, err := NewBuilder(WithShuffler(fixedOrder("C", "A", "F", "D", "B", "E"))).
		Build(corpus("A", "B", "C", "D", "E", "F"))
	require.NoError(t, err)
	return deck
}

func TestScenario_SixStimuli(t *testing.T) {
	deck := scenarioDeck(t)

	assert.Equal(t, "B", deck.AttentionPair[0].Path)
	assert.Equal(t, "E", deck.AttentionPair[1].Path)
	assert.Equal(t, []string{"C", "A", "F", "D"}, paths(deck.Pool()))

	state := NewState("respondent-1", t0, true, DefaultLimits())

	trial, err := CurrentTrial(state, deck)
	require.NoError(t, err)
	assert.Equal(t, "C", trial.StimulusA.Path)
	assert.Equal(t, "A", trial.StimulusB.Path)
	assert.False(t, trial.IsAttentionCheck)

	ok, err := SubmitChoice(state, trial, ChoiceFirst, t0.Add(3*time.Second))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, state.Cursor())

	records := state.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "C", records[0].Stimulus)
	assert.True(t, records[0].Chosen)
	assert.Equal(t, "A", records[1].Stimulus)
	assert.False(t, records[1].Chosen)
	for _, r := range records {
		assert.Equal(t, 1, r.ItemNumber)
		assert.Equal(t, "respondent-1", r.UserID)
		assert.True(t, r.ShowTimer)
		assert.Equal(t, t0.Add(3*time.Second), r.Timestamp)
	}

	trial, err = CurrentTrial(state, deck)
	require.NoError(t, err)
	assert.Equal(t, "F", trial.StimulusA.Path)
	assert.Equal(t, "D", trial.StimulusB.Path)

	ok, err = SubmitChoice(state, trial, ChoiceSecond, t0.Add(5*time.Second))
	require.NoError(t, err)
	assert.True(t, ok)

	trial, err = CurrentTrial(state, deck)
	require.NoError(t, err)
	assert.True(t, trial.IsAttentionCheck)
	assert.Equal(t, "B", trial.StimulusA.Path)
	assert.Equal(t, "E", trial.StimulusB.Path)

	ok, err = SubmitChoice(state, trial, ChoiceFirst, t0.Add(7*time.Second))
	require.NoError(t, err)
	assert.True(t, ok)
	records = state.Records()
	assert.True(t, records[4].IsAttentionCheck)
	assert.Equal(t, 3, records[4].ItemNumber)

	_, err = CurrentTrial(state, deck)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestSubmitChoice_LogMatchesCursor(t *testing.T) {
	deck, err := NewBuilder(WithSeed(11)).Build(numbered(60))
	require.NoError(t, err)
	state := NewState("u", t0, false, DefaultLimits())
	r := rand.New(rand.NewSource(1))

	for i := 0; ; i++ {
		trial, err := CurrentTrial(state, deck)
		if err != nil {
			assert.ErrorIs(t, err, ErrOutOfRange)
			break
		}
		choice := Choice(r.Intn(2) + 1)
		ok, err := SubmitChoice(state, trial, choice, t0.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, state.Cursor(), state.Len())

		records := state.Records()
		pair := records[len(records)-2:]
		assert.NotEqual(t, pair[0].Chosen, pair[1].Chosen, "exactly one stimulus chosen per trial")
		assert.Equal(t, pair[0].Timestamp, pair[1].Timestamp)
	}
	assert.Equal(t, 58, state.Cursor())
}

func TestSubmitChoice_DuplicateIsIgnored(t *testing.T) {
	deck := scenarioDeck(t)
	state := NewState("u", t0, false, DefaultLimits())

	trial, err := CurrentTrial(state, deck)
	require.NoError(t, err)

	ok, err := SubmitChoice(state, trial, ChoiceFirst, t0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = SubmitChoice(state, trial, ChoiceSecond, t0)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, state.Len())
	assert.Equal(t, 2, state.Cursor())
}

func TestSubmitChoice_ConcurrentDuplicates(t *testing.T) {
	deck := scenarioDeck(t)
	state := NewState("u", t0, false, DefaultLimits())
	trial, err := CurrentTrial(state, deck)
	require.NoError(t, err)

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := SubmitChoice(state, trial, ChoiceFirst, t0); ok {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), accepted.Load())
	assert.Equal(t, 2, state.Len())
}

func TestSubmitChoice_InvalidChoice(t *testing.T) {
	deck := scenarioDeck(t)
	state := NewState("u", t0, false, DefaultLimits())
	trial, err := CurrentTrial(state, deck)
	require.NoError(t, err)

	_, err = SubmitChoice(state, trial, Choice(3), t0)
	assert.ErrorIs(t, err, ErrInvalidChoice)
	assert.Equal(t, 0, state.Len())
}

func TestSubmitChoice_RejectedAfterFinish(t *testing.T) {
	deck := scenarioDeck(t)
	state := NewState("u", t0, false, DefaultLimits())
	trial, err := CurrentTrial(state, deck)
	require.NoError(t, err)

	_, err = Finalize(context.Background(), state, &fakeFlusher{})
	require.NoError(t, err)

	ok, err := SubmitChoice(state, trial, ChoiceFirst, t0)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = CurrentTrial(state, deck)
	assert.ErrorIs(t, err, ErrSessionFinished)
}

func TestParseChoice(t *testing.T) {
	c, err := ParseChoice("1")
	require.NoError(t, err)
	assert.Equal(t, ChoiceFirst, c)
	c, err = ParseChoice("2")
	require.NoError(t, err)
	assert.Equal(t, ChoiceSecond, c)

	for _, bad := range []string{"", "0", "3", "one"} {
		_, err := ParseChoice(bad)
		assert.ErrorIs(t, err, ErrInvalidChoice, "input %q", bad)
	}
}

func TestResolveUserID(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	assert.Equal(t, "prolific_123", ResolveUserID("prolific_123", r))

	for _, param := range []string{"", "bad id"} {
		id := ResolveUserID(param, r)
		assert.Regexp(t, `^anonymous_[1-9][0-9]{4}$`, id)
	}
}

func TestReview_JoinsDeckMetadata(t *testing.T) {
	deck := scenarioDeck(t)
	deck.Ordered[0].Metadata = map[string]string{"group": "AF"}
	state := NewState("u", t0, false, DefaultLimits())

	trial, err := CurrentTrial(state, deck)
	require.NoError(t, err)
	_, err = SubmitChoice(state, trial, ChoiceSecond, t0)
	require.NoError(t, err)

	rows := Review(state, deck)
	require.Len(t, rows, 2)
	assert.Equal(t, 0, rows[0].DeckPosition)
	assert.Equal(t, "AF", rows[0].Metadata["group"])
	assert.Equal(t, 1, rows[1].DeckPosition)
	assert.True(t, rows[1].Chosen)
}

func TestSummary(t *testing.T) {
	deck := scenarioDeck(t)
	state := NewState("u", t0, true, DefaultLimits())
	trial, err := CurrentTrial(state, deck)
	require.NoError(t, err)
	_, err = SubmitChoice(state, trial, ChoiceFirst, t0)
	require.NoError(t, err)

	s := Summary("sess", state, deck, t0.Add(time.Minute))
	assert.Equal(t, 1, s.Trials)
	assert.Equal(t, 2, s.Records)
	assert.Equal(t, []string{"B", "E"}, []string(s.AttentionPair))
	assert.Equal(t, []string{"C", "A", "F", "D", "B", "E"}, []string(s.StimulusOrder))
	assert.True(t, s.ShowTimer)
}
