package quiz

import (
	"fmt"
	"math"

	"github.com/montybuilt/MPS-sub000/internal/progress"
)

// Status is the outcome of one answer.
type Status string

const (
	StatusCorrect   Status = "correct"
	StatusIncorrect Status = "incorrect"
)

// ParseStatus validates a wire status value.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusCorrect, StatusIncorrect:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown answer status %q", s)
	}
}

const (
	repeatCorrectMultiplier = 0.10
	remediationMultiplier   = 0.5
	incorrectPenalty        = 1.0
)

// Answer is one graded submission.
type Answer struct {
	QuestionID   string          `json:"question_id"`
	ContentID    string          `json:"content_id"`
	CurriculumID string          `json:"curriculum_id"`
	Standard     progress.Code   `json:"standard"`
	Objective    progress.Code   `json:"objective"`
	Difficulty   progress.Number `json:"difficulty"`
	Status       Status          `json:"status"`
}

// SubjectStandard returns the standard.objective key of the answer.
func (a Answer) SubjectStandard() string {
	return progress.ObjectiveKey(a.Standard, a.Objective)
}

// Delta is the XP outcome of one answer.
type Delta struct {
	DXP        float64 `json:"dXP"`
	Accrued    float64 `json:"dXP_accrued"`
	Possible   float64 `json:"dXP_possible"`
	Multiplier float64 `json:"multiplier"`
}

// Multiplier scales a correct answer by its history: 0.10 for a repeat of an
// already-correct question, 0.5 for a previously missed one, 1.0 otherwise.
// Incorrect answers are never scaled.
func Multiplier(status Status, questionID string, correct, incorrect progress.Set) float64 {
	if status != StatusCorrect {
		return 1
	}
	switch {
	case correct.Has(questionID):
		return repeatCorrectMultiplier
	case incorrect.Has(questionID):
		return remediationMultiplier
	default:
		return 1
	}
}

// ComputeDelta applies the XP formula for a difficulty and multiplier.
func ComputeDelta(difficulty float64, status Status, multiplier float64) Delta {
	base := difficulty / 3
	raw := base
	if status != StatusCorrect {
		raw -= incorrectPenalty
	}
	dxp := Round2(raw * multiplier)
	return Delta{
		DXP:        dxp,
		Accrued:    math.Max(dxp, 0),
		Possible:   base * multiplier,
		Multiplier: multiplier,
	}
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
