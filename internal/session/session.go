// Package session owns the lifecycle of a learner's session: loading the
// profile, answering questions and writing the session back.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/montybuilt/MPS-sub000/internal/eventlog"
	"github.com/montybuilt/MPS-sub000/internal/progress"
	"github.com/montybuilt/MPS-sub000/internal/quiz"
	"github.com/montybuilt/MPS-sub000/internal/storage"
)

var (
	// ErrNoSession is returned when no profile has been loaded.
	ErrNoSession = errors.New("session: no active session")
	// ErrSubmitInProgress is returned when an answer arrives while another
	// one is still being processed.
	ErrSubmitInProgress = errors.New("session: submission already in progress")
	// ErrInvalidAnswer is returned for answers that cannot be scored.
	ErrInvalidAnswer = errors.New("session: invalid answer")
	// ErrProfileUnavailable is returned when the profile could not be
	// fetched. The session keeps its cached state.
	ErrProfileUnavailable = errors.New("session: profile unavailable")
)

// Context is the in-memory state of one learner's session. It is created on
// profile load and discarded on profile switch.
type Context struct {
	ID        uuid.UUID
	Owner     string
	StartedAt time.Time
	Log       *eventlog.Log
	Tree      progress.AssignmentTree
	Tags      progress.TagSummary
	Possible  progress.PossibleXP
	Completed progress.Set
	Board     *quiz.Scoreboard
	Pointer   storage.Pointer
}

// Setup is what a session load hands to the dashboard.
type Setup struct {
	SessionID           string                        `json:"sessionId"`
	Owner               string                        `json:"profileOwner"`
	AssignmentTree      progress.AssignmentTree       `json:"userAssignments"`
	TagSummary          progress.TagSummary           `json:"tagSummary"`
	CurriculumXP        map[string]float64            `json:"curriculumXP"`
	StandardObjectiveXP map[string]map[string]float64 `json:"standardObjectiveXP"`
	Completed           progress.Set                  `json:"completedCurriculums"`
	Watermark           string                        `json:"xpLastFetchedDatetime"`
	Stale               bool                          `json:"stale"`
}

func (c *Context) setup(stale bool) *Setup {
	return &Setup{
		SessionID:           c.ID.String(),
		Owner:               c.Owner,
		AssignmentTree:      c.Tree,
		TagSummary:          c.Tags,
		CurriculumXP:        c.Possible.Curriculum,
		StandardObjectiveXP: c.Possible.StandardObjective,
		Completed:           c.Completed,
		Watermark:           c.Log.Watermark,
		Stale:               stale,
	}
}

// Result is the outcome of one submitted answer, as shown on the live
// progress display.
type Result struct {
	QuestionID          string      `json:"questionId"`
	ContentID           string      `json:"contentId"`
	CurriculumID        string      `json:"curriculumId"`
	Status              quiz.Status `json:"status"`
	Delta               quiz.Delta  `json:"delta"`
	OverallXP           float64     `json:"xp"`
	ContentPercent      float64     `json:"contentPercent"`
	CurriculumPercent   float64     `json:"curriculumPercent"`
	CurriculumCompleted bool        `json:"curriculumCompleted"`
	Timestamp           string      `json:"timestamp"`
}

// Notifier receives every Result after it has been persisted.
type Notifier interface {
	Publish(ctx context.Context, owner string, v any)
}
