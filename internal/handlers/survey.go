package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/a-h/templ"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pictopercept/internal/services"
	"pictopercept/internal/survey"
	"pictopercept/internal/utils"
	"pictopercept/views"
)

const (
	// SessionIDKey holds the survey session ID in the cookie session.
	SessionIDKey = "surveyID"
	// SurveyContextKey holds the loaded *services.Session in the gin context.
	SurveyContextKey = "survey"
)

type SurveyHandler struct {
	log             *zap.Logger
	service         *services.SurveyService
	question        string
	respondentParam string
}

func NewSurveyHandler(log *zap.Logger, service *services.SurveyService, question, respondentParam string) *SurveyHandler {
	return &SurveyHandler{
		log:             log,
		service:         service,
		question:        question,
		respondentParam: respondentParam,
	}
}

// CurrentSession returns the survey session loaded for this request.
func CurrentSession(c *gin.Context) (*services.Session, bool) {
	v, ok := c.Get(SurveyContextKey)
	if !ok {
		return nil, false
	}
	sess, ok := v.(*services.Session)
	return sess, ok
}

func isHTMX(c *gin.Context) bool {
	return c.GetHeader("HX-Request") == "true"
}

// render writes component with the given status, wrapped in the layout
// unless the request came from HTMX.
func render(c *gin.Context, status int, title string, component templ.Component) {
	c.Status(status)
	c.Header("Content-Type", "text/html; charset=utf-8")

	ctx := c.Request.Context()
	if isHTMX(c) {
		component.Render(ctx, c.Writer)
		return
	}
	views.Layout(title, c.GetString("csrf_token"), c.GetString("csp_nonce")).Render(templ.WithChildren(ctx, component), c.Writer)
}

// ShowConsent renders the landing page, or resumes an existing session.
func (h *SurveyHandler) ShowConsent(c *gin.Context) {
	if _, ok := CurrentSession(c); ok {
		c.Redirect(http.StatusFound, "/survey")
		return
	}

	exampleURL := "/consent/example"
	if _, err := h.service.Example(c.Request.Context()); err != nil {
		if !errors.Is(err, survey.ErrEmptyCorpus) {
			h.log.Error("Failed to load example stimulus", zap.Error(err))
		}
		exampleURL = ""
	}

	respondent := c.Query(h.respondentParam)
	if respondent != "" && !utils.IsValidRespondentID(respondent) {
		respondent = ""
	}
	render(c, http.StatusOK, "PictoPercept", views.Consent(respondent, h.respondentParam, exampleURL, c.GetString("csrf_token")))
}

// Example serves the consent page's example image.
func (h *SurveyHandler) Example(c *gin.Context) {
	stim, err := h.service.Example(c.Request.Context())
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	c.File(stim.Path)
}

// Consent creates the respondent's deck and session.
func (h *SurveyHandler) Consent(c *gin.Context) {
	if _, ok := CurrentSession(c); ok {
		c.Redirect(http.StatusSeeOther, "/survey")
		return
	}

	sess, err := h.service.Start(c.Request.Context(), c.PostForm(h.respondentParam))
	if err != nil {
		h.log.Error("Failed to start survey session", zap.Error(err))
		status, message := http.StatusInternalServerError, "The survey could not be started."
		switch {
		case errors.Is(err, survey.ErrEmptyCorpus), errors.Is(err, survey.ErrDeckTooSmall):
			status, message = http.StatusServiceUnavailable, "No images are available for this survey right now."
		case errors.Is(err, survey.ErrDuplicateStimulus):
			status, message = http.StatusServiceUnavailable, "The image set for this survey is misconfigured."
		}
		render(c, status, "Error", views.ErrorPage(message))
		return
	}

	session := sessions.Default(c)
	session.Set(SessionIDKey, sess.ID)
	if err := session.Save(); err != nil {
		h.log.Error("Failed to save session", zap.Error(err), zap.String("session_id", sess.ID))
		render(c, http.StatusInternalServerError, "Error", views.ErrorPage("The survey could not be started."))
		return
	}
	c.Redirect(http.StatusSeeOther, "/survey")
}

// Show renders the current trial, or the completion page once the session
// has ended.
func (h *SurveyHandler) Show(c *gin.Context) {
	sess, _ := CurrentSession(c)
	h.renderProgress(c, sess)
}

func (h *SurveyHandler) renderProgress(c *gin.Context, sess *services.Session) {
	progress, err := h.service.Current(c.Request.Context(), sess)
	if err != nil {
		h.log.Error("Failed to load current trial", zap.Error(err), zap.String("session_id", sess.ID))
		render(c, http.StatusInternalServerError, "Error", views.ErrorPage("The next trial could not be loaded."))
		return
	}

	if progress.Finished {
		render(c, http.StatusOK, "Thank you", views.Completion(views.CompletionData{
			UserID:    sess.State.UserID(),
			Status:    progress.Status,
			Saved:     progress.Saved,
			Total:     progress.Total,
			CSRFToken: c.GetString("csrf_token"),
		}))
		return
	}

	trial := *progress.Trial
	render(c, http.StatusOK, "PictoPercept", views.TrialPage(views.TrialData{
		Question:     h.question,
		UserID:       sess.State.UserID(),
		Trial:        trial,
		PositionA:    sess.Deck.Position(trial.StimulusA.Path),
		PositionB:    sess.Deck.Position(trial.StimulusB.Path),
		ShowTimer:    sess.State.ShowTimer(),
		TrialSeconds: int(progress.TrialElapsed.Seconds()),
		CSRFToken:    c.GetString("csrf_token"),
	}))
}

// Choice records the respondent's pick for the trial served at the posted
// cursor. Replayed posts are ignored.
func (h *SurveyHandler) Choice(c *gin.Context) {
	sess, _ := CurrentSession(c)

	choice, err := survey.ParseChoice(c.PostForm("choice"))
	if err != nil {
		c.String(http.StatusBadRequest, "Invalid choice")
		return
	}
	cursor, err := strconv.Atoi(c.PostForm("cursor"))
	if err != nil || cursor < 0 {
		c.String(http.StatusBadRequest, "Invalid trial")
		return
	}

	if _, err := h.service.Submit(sess, cursor, choice); err != nil {
		h.log.Error("Failed to record choice", zap.Error(err), zap.String("session_id", sess.ID))
		c.String(http.StatusInternalServerError, "Could not record choice")
		return
	}

	if isHTMX(c) {
		h.renderProgress(c, sess)
		return
	}
	c.Redirect(http.StatusSeeOther, "/survey")
}

// Stimulus serves the image at a deck position of the caller's session.
func (h *SurveyHandler) Stimulus(c *gin.Context) {
	sess, _ := CurrentSession(c)

	pos, err := strconv.Atoi(c.Param("pos"))
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	stim, ok := sess.Deck.Stimulus(pos)
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	c.File(stim.Path)
}

// Retry flushes a partially saved session again.
func (h *SurveyHandler) Retry(c *gin.Context) {
	sess, _ := CurrentSession(c)

	report, err := h.service.Retry(c.Request.Context(), sess)
	if err != nil && !errors.Is(err, survey.ErrFlushInProgress) {
		h.log.Error("Failed to retry flush", zap.Error(err), zap.String("session_id", sess.ID))
	}
	if !report.OK() {
		h.log.Warn("Retry left records unsaved",
			zap.String("session_id", sess.ID),
			zap.Int("failed", len(report.Failed)),
		)
	}

	progress := h.service.Snapshot(sess)
	render(c, http.StatusOK, "Thank you", views.Completion(views.CompletionData{
		UserID:    sess.State.UserID(),
		Status:    progress.Status,
		Saved:     progress.Saved,
		Total:     progress.Total,
		CSRFToken: c.GetString("csrf_token"),
	}))
}

// Health reports liveness and the number of sessions held in memory.
func (h *SurveyHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": h.service.Len()})
}
