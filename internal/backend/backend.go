// Package backend defines the contracts of the backend of record and its
// implementations: an HTTP client, a PostgreSQL store and an in-memory
// double used for local mode and tests.
package backend

import (
	"context"
	"errors"

	"github.com/montybuilt/MPS-sub000/internal/progress"
	"github.com/montybuilt/MPS-sub000/internal/quiz"
)

var (
	// ErrNotFound is returned when a curriculum or question does not exist.
	ErrNotFound = errors.New("backend: not found")
	// ErrInvalidPayload is returned when a response fails schema validation.
	ErrInvalidPayload = errors.New("backend: invalid payload")
)

// ProfileRequest asks for the attempts recorded after LastUpdateWatermark.
type ProfileRequest struct {
	LastUpdateWatermark string `json:"lastUpdateWatermark"`
	ProfileOwner        string `json:"profileOwner"`
}

// ProfileBundle is the assignment tree plus the attempt delta of one learner.
type ProfileBundle struct {
	UserAssignments       progress.AssignmentTree  `json:"userAssignments"`
	XPData                []progress.AttemptRecord `json:"xpData"`
	XPLastFetchedDatetime string                   `json:"xpLastFetchedDatetime"`
	XPUsername            string                   `json:"xpUsername"`
}

// Question is a single question payload.
type Question struct {
	Question    string          `json:"Question"`
	Answer      string          `json:"Answer"`
	Distractor1 string          `json:"Distractor1"`
	Distractor2 string          `json:"Distractor2"`
	Distractor3 string          `json:"Distractor3"`
	Code        string          `json:"Code"`
	Difficulty  progress.Number `json:"Difficulty"`
	Video       string          `json:"Video"`
	Description string          `json:"Description"`
	Tags        []string        `json:"Tags"`
}

// SessionSnapshot is the session state written back when a session ends.
// XPData holds the attempts recorded since the previous write-back.
type SessionSnapshot struct {
	CompletedCurriculums progress.Set                  `json:"completedCurriculums"`
	ContentScores        map[string]*quiz.RunningScore `json:"contentScores"`
	CurriculumScores     map[string]*quiz.RunningScore `json:"curriculumScores"`
	XP                   float64                       `json:"xp"`
	CorrectAnswers       progress.Set                  `json:"correctAnswers"`
	IncorrectAnswers     progress.Set                  `json:"incorrectAnswers"`
	UpdatedAt            string                        `json:"updatedAt"`
	XPData               []progress.AttemptRecord      `json:"xpData"`
}

// Backend is the backend of record consumed by the session controller.
type Backend interface {
	FetchProfile(ctx context.Context, req ProfileRequest) (*ProfileBundle, error)
	FetchCurriculumTasks(ctx context.Context, curriculumKey string) ([]string, error)
	FetchQuestion(ctx context.Context, questionID string) (*Question, error)
	SubmitSession(ctx context.Context, owner string, snap SessionSnapshot) error
}
