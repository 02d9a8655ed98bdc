package views

import (
	"fmt"
	"strconv"

	"pictopercept/internal/models"
)

// TrialData is what a trial page shows.
type TrialData struct {
	Question     string
	UserID       string
	Trial        models.Trial
	PositionA    int
	PositionB    int
	ShowTimer    bool
	TrialSeconds int
	CSRFToken    string
}

// CompletionData is what the end-of-session page shows.
type CompletionData struct {
	UserID    string
	Status    models.SessionStatus
	Saved     int
	Total     int
	CSRFToken string
}

// ReviewRow is one line of the review table.
type ReviewRow struct {
	Item             int
	Position         int
	Name             string
	Chosen           bool
	IsAttentionCheck bool
	Timestamp        string
	Metadata         string
}

// ReviewData is what the review page shows.
type ReviewData struct {
	UserID               string
	Rows                 []ReviewRow
	AttentionConsistency string
	MeanResponseTime     string
	ChartOptionsJSON     string
	Nonce                string
}

// overdueSeconds is where the trial counter stops counting and warns.
const overdueSeconds = 5

// timeTaken is the trial counter text. The layout script repeats it client side.
func timeTaken(seconds int) string {
	switch {
	case seconds >= overdueSeconds:
		return fmt.Sprintf("More than %d seconds!", overdueSeconds)
	case seconds == 1:
		return "1 second"
	default:
		return fmt.Sprintf("%d seconds", seconds)
	}
}

func timerClass(seconds int) string {
	if seconds >= overdueSeconds {
		return "timer overdue"
	}
	return "timer"
}

func stimulusURL(position int) string {
	return "/survey/stimulus/" + strconv.Itoa(position)
}
