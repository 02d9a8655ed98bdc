package survey

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"pictopercept/internal/models"
)

var (
	ErrEmptyCorpus     = errors.New("no stimuli available")
	ErrDeckTooSmall    = errors.New("not enough stimuli for the trial schedule")
	ErrInvalidSchedule = errors.New("invalid attention check schedule")
	ErrOutOfRange      = errors.New("deck exhausted")
	// ErrDuplicateStimulus rejects corpora that list a path twice; records
	// are keyed by stimulus path, so a repeat would collide within a trial.
	ErrDuplicateStimulus = errors.New("duplicate stimulus path")
)

// Override pins an attention check trial to a cursor position.
type Override struct {
	// Swapped presents the attention pair in reverse order.
	Swapped bool
}

// Overrides maps cursor positions to attention check trials.
type Overrides map[int]Override

// DefaultOverrides places attention checks at cursors 4, 18 (swapped) and 40.
func DefaultOverrides() Overrides {
	return Overrides{
		4:  {},
		18: {Swapped: true},
		40: {},
	}
}

// Positions returns the override cursor positions in ascending order.
func (o Overrides) Positions() []int {
	positions := make([]int, 0, len(o))
	for pos := range o {
		positions = append(positions, pos)
	}
	sort.Ints(positions)
	return positions
}

// Max returns the largest override position, or -1 when there are none.
func (o Overrides) Max() int {
	highest := -1
	for pos := range o {
		if pos > highest {
			highest = pos
		}
	}
	return highest
}

func (o Overrides) validate() error {
	for pos := range o {
		if pos < 0 || pos%2 != 0 {
			return fmt.Errorf("%w: position %d must be even and non-negative", ErrInvalidSchedule, pos)
		}
	}
	return nil
}

// Deck is the shuffled stimulus list plus its reserved attention pair. It is
// fixed for the lifetime of a session.
type Deck struct {
	// Ordered holds the full permutation; the attention pair stays at the tail.
	Ordered       []models.Stimulus
	AttentionPair [2]models.Stimulus
	Overrides     Overrides
}

// PoolSize is the number of stimuli available to normal trials.
func (d *Deck) PoolSize() int {
	return len(d.Ordered) - 2
}

// Pool returns the stimuli normal trials draw from, in presentation order.
func (d *Deck) Pool() []models.Stimulus {
	return d.Ordered[:d.PoolSize()]
}

// Stimulus returns the stimulus at a deck position.
func (d *Deck) Stimulus(pos int) (models.Stimulus, bool) {
	if pos < 0 || pos >= len(d.Ordered) {
		return models.Stimulus{}, false
	}
	return d.Ordered[pos], true
}

// Position returns the deck position of a stimulus path, or -1.
func (d *Deck) Position(path string) int {
	for i, s := range d.Ordered {
		if s.Path == path {
			return i
		}
	}
	return -1
}

// TrialAt resolves the trial served at a cursor value. Override positions
// always resolve to the attention pair; other positions read two consecutive
// stimuli from the pool.
func (d *Deck) TrialAt(cursor int) (models.Trial, error) {
	if cursor < 0 || cursor%2 != 0 {
		return models.Trial{}, fmt.Errorf("%w: invalid cursor %d", ErrOutOfRange, cursor)
	}

	if o, ok := d.Overrides[cursor]; ok {
		a, b := d.AttentionPair[0], d.AttentionPair[1]
		if o.Swapped {
			a, b = b, a
		}
		return models.Trial{Index: cursor, StimulusA: a, StimulusB: b, IsAttentionCheck: true}, nil
	}

	if cursor+1 >= d.PoolSize() {
		return models.Trial{}, fmt.Errorf("%w: cursor %d with %d pooled stimuli", ErrOutOfRange, cursor, d.PoolSize())
	}
	return models.Trial{
		Index:     cursor,
		StimulusA: d.Ordered[cursor],
		StimulusB: d.Ordered[cursor+1],
	}, nil
}

// Schedule lists every trial the deck can serve, in order, up to the first
// exhausted cursor.
func (d *Deck) Schedule() []models.Trial {
	var trials []models.Trial
	for cursor := 0; ; cursor += 2 {
		trial, err := d.TrialAt(cursor)
		if err != nil {
			return trials
		}
		trials = append(trials, trial)
	}
}

// Builder turns a stimulus list into a Deck.
type Builder struct {
	shuffle      func([]models.Stimulus)
	overrides    Overrides
	fullSchedule bool
}

// Option configures a Builder.
type Option func(*Builder)

// WithSeed makes deck construction reproducible.
func WithSeed(seed int64) Option {
	return func(b *Builder) {
		b.shuffle = randomShuffle(rand.New(rand.NewSource(seed)))
	}
}

// WithShuffler replaces the permutation step entirely.
func WithShuffler(fn func([]models.Stimulus)) Option {
	return func(b *Builder) {
		b.shuffle = fn
	}
}

// WithOverrides replaces the attention check schedule.
func WithOverrides(o Overrides) Option {
	return func(b *Builder) {
		b.overrides = o
	}
}

// WithFullSchedule rejects decks whose pool cannot reach the last override
// position, so every attention check is actually served.
func WithFullSchedule() Option {
	return func(b *Builder) {
		b.fullSchedule = true
	}
}

// NewBuilder returns a Builder seeded from the clock unless told otherwise.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		shuffle:   randomShuffle(rand.New(rand.NewSource(time.Now().UnixNano()))),
		overrides: DefaultOverrides(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func randomShuffle(r *rand.Rand) func([]models.Stimulus) {
	return func(s []models.Stimulus) {
		r.Shuffle(len(s), func(i, j int) { s[i], s[j] = s[j], s[i] })
	}
}

// Build shuffles a copy of stimuli and reserves the last two as the
// attention pair.
func (b *Builder) Build(stimuli []models.Stimulus) (*Deck, error) {
	if len(stimuli) == 0 {
		return nil, ErrEmptyCorpus
	}
	if err := b.overrides.validate(); err != nil {
		return nil, err
	}
	if len(stimuli) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 stimuli for the attention pair, got %d", ErrDeckTooSmall, len(stimuli))
	}
	seen := make(map[string]struct{}, len(stimuli))
	for _, st := range stimuli {
		if _, dup := seen[st.Path]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateStimulus, st.Path)
		}
		seen[st.Path] = struct{}{}
	}
	if b.fullSchedule && len(stimuli)-2 < b.overrides.Max() {
		return nil, fmt.Errorf("%w: attention check at cursor %d needs %d stimuli, got %d",
			ErrDeckTooSmall, b.overrides.Max(), b.overrides.Max()+2, len(stimuli))
	}

	ordered := make([]models.Stimulus, len(stimuli))
	copy(ordered, stimuli)
	b.shuffle(ordered)

	overrides := make(Overrides, len(b.overrides))
	for pos, o := range b.overrides {
		overrides[pos] = o
	}

	n := len(ordered)
	return &Deck{
		Ordered:       ordered,
		AttentionPair: [2]models.Stimulus{ordered[n-2], ordered[n-1]},
		Overrides:     overrides,
	}, nil
}
