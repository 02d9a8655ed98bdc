package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pictopercept/internal/metrics"
	"pictopercept/internal/models"
	"pictopercept/internal/sink"
	"pictopercept/internal/stimulus"
	"pictopercept/internal/survey"
)

var ErrSessionNotFound = errors.New("survey session not found")

// Session is a respondent's deck and state, owned by the service.
type Session struct {
	ID    string
	State *survey.State
	Deck  *survey.Deck

	mu             sync.Mutex
	lastSeen       time.Time
	lastReport     models.FlushReport
	summaryWritten bool
}

// LastReport returns the outcome of the most recent flush.
func (s *Session) LastReport() models.FlushReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReport
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Progress is what the trial page needs to render.
type Progress struct {
	Trial        *models.Trial
	Elapsed      time.Duration
	TrialElapsed time.Duration
	Finished     bool
	Status       models.SessionStatus
	Saved        int
	Total        int
}

// Options configure a SurveyService.
type Options struct {
	Limits              survey.Limits
	RequireFullSchedule bool
	Overrides           survey.Overrides
	// Seed makes respondent IDs, display modes and decks reproducible. Zero seeds from the clock.
	Seed  int64
	Clock func() time.Time
}

// SurveyService creates sessions and drives them through their lifecycle.
// Sessions share nothing but the registry.
type SurveyService struct {
	log      *zap.Logger
	provider stimulus.Provider
	flusher  *sink.Flusher
	opts     Options
	clock    func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	rulesMu sync.RWMutex

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSurveyService(log *zap.Logger, provider stimulus.Provider, flusher *sink.Flusher, opts Options) *SurveyService {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Limits == (survey.Limits{}) {
		opts.Limits = survey.DefaultLimits()
	}
	if opts.Overrides == nil {
		opts.Overrides = survey.DefaultOverrides()
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SurveyService{
		log:      log,
		provider: provider,
		flusher:  flusher,
		opts:     opts,
		clock:    opts.Clock,
		rng:      rand.New(rand.NewSource(seed)),
		sessions: make(map[string]*Session),
	}
}

// Start lists the corpus, builds a deck and registers a new session for the
// respondent. An empty corpus fails with survey.ErrEmptyCorpus.
func (s *SurveyService) Start(ctx context.Context, respondentParam string) (*Session, error) {
	stimuli, err := s.provider.ListImages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list stimuli: %w", err)
	}

	s.rngMu.Lock()
	userID := survey.ResolveUserID(respondentParam, s.rng)
	showTimer := s.rng.Intn(2) == 0
	deckSeed := s.rng.Int63()
	s.rngMu.Unlock()
	if respondentParam != "" && userID != respondentParam {
		s.log.Warn("Rejected respondent identifier, assigned an anonymous one",
			zap.String("param", respondentParam),
			zap.String("user_id", userID),
		)
	}

	s.rulesMu.RLock()
	limits, requireFull := s.opts.Limits, s.opts.RequireFullSchedule
	s.rulesMu.RUnlock()

	builderOpts := []survey.Option{survey.WithSeed(deckSeed), survey.WithOverrides(s.opts.Overrides)}
	if requireFull {
		builderOpts = append(builderOpts, survey.WithFullSchedule())
	}
	deck, err := survey.NewBuilder(builderOpts...).Build(stimuli)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	sess := &Session{
		ID:       uuid.NewString(),
		State:    survey.NewState(userID, now, showTimer, limits),
		Deck:     deck,
		lastSeen: now,
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	s.log.Info("Survey session started",
		zap.String("session_id", sess.ID),
		zap.String("user_id", userID),
		zap.Bool("show_timer", showTimer),
		zap.Int("stimuli", len(stimuli)),
	)
	return sess, nil
}

// UpdateRules changes the limits and deck requirements for sessions started
// from now on.
func (s *SurveyService) UpdateRules(limits survey.Limits, requireFullSchedule bool) {
	s.rulesMu.Lock()
	s.opts.Limits = limits
	s.opts.RequireFullSchedule = requireFullSchedule
	s.rulesMu.Unlock()
}

// Example returns the first stimulus of the corpus for the consent page.
func (s *SurveyService) Example(ctx context.Context) (models.Stimulus, error) {
	stimuli, err := s.provider.ListImages(ctx)
	if err != nil {
		return models.Stimulus{}, fmt.Errorf("failed to list stimuli: %w", err)
	}
	if len(stimuli) == 0 {
		return models.Stimulus{}, survey.ErrEmptyCorpus
	}
	return stimuli[0], nil
}

// Get looks up a session by ID.
func (s *SurveyService) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Current checks the exit gate and either returns the trial to show or ends
// the session. Running out of trials ends the session like the gate does.
func (s *SurveyService) Current(ctx context.Context, sess *Session) (Progress, error) {
	now := s.clock()
	sess.touch(now)

	if sess.State.Status() == models.StatusActive && !survey.ShouldEnd(sess.State, now) {
		trial, err := survey.CurrentTrial(sess.State, sess.Deck)
		switch {
		case err == nil:
			return Progress{
				Trial:        &trial,
				Elapsed:      survey.Elapsed(sess.State, now),
				TrialElapsed: survey.TrialElapsed(sess.State, now),
				Status:       models.StatusActive,
				Total:        sess.State.Len(),
			}, nil
		case errors.Is(err, survey.ErrOutOfRange):
			s.log.Info("Deck exhausted before the session timed out", zap.String("session_id", sess.ID))
		case errors.Is(err, survey.ErrSessionFinished):
		default:
			return Progress{}, err
		}
	}

	if sess.State.Status() == models.StatusActive {
		if _, err := s.End(ctx, sess); err != nil && !errors.Is(err, survey.ErrFlushInProgress) {
			return Progress{}, err
		}
	}
	return s.finished(sess, now), nil
}

func (s *SurveyService) finished(sess *Session, now time.Time) Progress {
	return Progress{
		Elapsed:  survey.Elapsed(sess.State, now),
		Finished: true,
		Status:   sess.State.Status(),
		Saved:    sess.State.ConfirmedCount(),
		Total:    sess.State.Len(),
	}
}

// Submit answers the trial served at cursor. Stale or duplicate submissions
// are ignored and reported as not accepted.
func (s *SurveyService) Submit(sess *Session, cursor int, choice survey.Choice) (bool, error) {
	now := s.clock()
	sess.touch(now)

	trial, err := sess.Deck.TrialAt(cursor)
	if err != nil {
		return false, nil
	}
	accepted, err := survey.SubmitChoice(sess.State, trial, choice, now)
	if err != nil {
		return false, err
	}
	if !accepted {
		s.log.Debug("Ignored duplicate submission",
			zap.String("session_id", sess.ID),
			zap.Int("cursor", cursor),
			zap.Int("current_cursor", sess.State.Cursor()),
		)
	}
	return accepted, nil
}

// End flushes the session's unconfirmed records. Once every record is
// confirmed the session summary is written to sinks that keep one.
func (s *SurveyService) End(ctx context.Context, sess *Session) (models.FlushReport, error) {
	report, err := survey.Finalize(ctx, sess.State, s.flusher)
	if err != nil {
		return report, err
	}

	sess.mu.Lock()
	sess.lastReport = report
	writeSummary := sess.State.Status() == models.StatusCompleted && !sess.summaryWritten
	sess.mu.Unlock()

	fields := []zap.Field{
		zap.String("session_id", sess.ID),
		zap.String("user_id", sess.State.UserID()),
		zap.String("status", string(sess.State.Status())),
		zap.Int("records", sess.State.Len()),
		zap.Int("confirmed", sess.State.ConfirmedCount()),
	}
	if sess.State.Status() == models.StatusPartialFlush {
		s.log.Warn("Session partially flushed", fields...)
	} else {
		s.log.Info("Session flushed", fields...)
	}

	if writeSummary {
		s.writeSummary(ctx, sess)
	}
	return report, nil
}

func (s *SurveyService) writeSummary(ctx context.Context, sess *Session) {
	m := metrics.CalculateSessionMetrics(sess.State.Records(), sess.State.StartTime())
	s.log.Info("Session metrics",
		zap.String("session_id", sess.ID),
		zap.Float64("attention_consistency", m.AttentionConsistency.Value),
		zap.Bool("attention_consistency_calculated", m.AttentionConsistency.Calculated),
		zap.Float64("mean_response_time", m.MeanResponseTime.Value),
		zap.Float64("first_choice_rate", m.FirstChoiceRate.Value),
	)

	writer, ok := s.flusher.Sink().(sink.SummaryWriter)
	if !ok {
		return
	}
	summary := survey.Summary(sess.ID, sess.State, sess.Deck, sess.State.LastFlush())
	if err := writer.WriteSummary(ctx, summary); err != nil {
		s.log.Error("Failed to write session summary", zap.Error(err), zap.String("session_id", sess.ID))
		return
	}
	sess.mu.Lock()
	sess.summaryWritten = true
	sess.mu.Unlock()
}

// Retry flushes a partially flushed session again. Other sessions are
// left alone.
func (s *SurveyService) Retry(ctx context.Context, sess *Session) (models.FlushReport, error) {
	sess.touch(s.clock())
	if sess.State.Status() != models.StatusPartialFlush {
		return models.FlushReport{}, nil
	}
	return s.End(ctx, sess)
}

// Snapshot reports the finished state of a session without touching it.
func (s *SurveyService) Snapshot(sess *Session) Progress {
	return s.finished(sess, s.clock())
}

// Review returns the read-only log of a finished session.
func (s *SurveyService) Review(sess *Session) ([]survey.ReviewRow, error) {
	if !sess.State.Status().Finished() {
		return nil, survey.ErrSessionFinished
	}
	return survey.Review(sess.State, sess.Deck), nil
}

// Sweep finalizes abandoned sessions past their gate, retries partial
// flushes and evicts sessions that have been quiet for longer than retention.
func (s *SurveyService) Sweep(ctx context.Context, idleAfter, retention time.Duration) {
	now := s.clock()

	s.mu.RLock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	var evict []string
	for _, sess := range sessions {
		idle := now.Sub(sess.idleSince())
		switch sess.State.Status() {
		case models.StatusActive:
			if idle > idleAfter && survey.ShouldEnd(sess.State, now) {
				s.log.Info("Finalizing abandoned session", zap.String("session_id", sess.ID), zap.Duration("idle", idle))
				if _, err := s.End(ctx, sess); err != nil {
					s.log.Error("Failed to finalize abandoned session", zap.Error(err), zap.String("session_id", sess.ID))
				}
			} else if idle > retention {
				evict = append(evict, sess.ID)
			}
		case models.StatusPartialFlush:
			last := sess.LastReport()
			s.log.Info("Retrying partial flush",
				zap.String("session_id", sess.ID),
				zap.Int("previously_failed", len(last.Failed)),
				zap.Time("last_flush", sess.State.LastFlush()),
			)
			if _, err := s.End(ctx, sess); err != nil {
				s.log.Error("Failed to retry partial flush", zap.Error(err), zap.String("session_id", sess.ID))
			}
		case models.StatusCompleted:
			if idle > retention {
				evict = append(evict, sess.ID)
			}
		}
	}

	if len(evict) == 0 {
		return
	}
	s.mu.Lock()
	for _, id := range evict {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	s.log.Debug("Evicted sessions", zap.Int("count", len(evict)))
}

// Len returns the number of registered sessions.
func (s *SurveyService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
