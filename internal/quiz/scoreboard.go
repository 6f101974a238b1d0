package quiz

import "github.com/montybuilt/MPS-sub000/internal/progress"

// RunningScore is an in-session counter for one content or curriculum.
// It feeds the live progress bars and is independent of the full KPI pass.
type RunningScore struct {
	Earned   float64 `json:"earned"`
	Accrued  float64 `json:"accrued"`
	Possible float64 `json:"possible"`
}

// Percent returns accrued over possible as a bounded percentage.
func (r RunningScore) Percent() float64 {
	return progress.Percent(r.Accrued, r.Possible)
}

func (r *RunningScore) add(d Delta) {
	r.Earned = Round2(r.Earned + d.DXP)
	r.Accrued = Round2(r.Accrued + d.Accrued)
	r.Possible += d.Possible
}

// Scoreboard holds the running XP counters and answer history of a session.
type Scoreboard struct {
	OverallXP  float64                  `json:"xp"`
	Content    map[string]*RunningScore `json:"contentScores"`
	Curriculum map[string]*RunningScore `json:"curriculumScores"`
	Correct    progress.Set             `json:"correctAnswers"`
	Incorrect  progress.Set             `json:"incorrectAnswers"`
}

// NewScoreboard returns an empty scoreboard.
func NewScoreboard() *Scoreboard {
	b := &Scoreboard{}
	b.init()
	return b
}

func (b *Scoreboard) init() {
	if b.Content == nil {
		b.Content = make(map[string]*RunningScore)
	}
	if b.Curriculum == nil {
		b.Curriculum = make(map[string]*RunningScore)
	}
	if b.Correct == nil {
		b.Correct = make(progress.Set)
	}
	if b.Incorrect == nil {
		b.Incorrect = make(progress.Set)
	}
}

// UpdateXP scores an answer against the history, folds it into the running
// counters and then records the outcome in the correct/incorrect sets.
func (b *Scoreboard) UpdateXP(a Answer) Delta {
	b.init()

	mult := Multiplier(a.Status, a.QuestionID, b.Correct, b.Incorrect)
	d := ComputeDelta(a.Difficulty.Float(), a.Status, mult)

	b.OverallXP = Round2(b.OverallXP + d.DXP)
	running(b.Content, a.ContentID).add(d)
	running(b.Curriculum, a.CurriculumID).add(d)

	if a.Status == StatusCorrect {
		b.Correct.Add(a.QuestionID)
	} else {
		b.Incorrect.Add(a.QuestionID)
	}
	return d
}

// SeedCorrect marks every question with a positive attempt in records as
// answered correctly. It restores history on a board that has none stored.
func (b *Scoreboard) SeedCorrect(records []progress.AttemptRecord) {
	b.init()
	for _, r := range records {
		if r.DXP > 0 {
			b.Correct.Add(r.QuestionID)
		}
	}
}

// NextQuestion applies ChooseNextQuestion against this board's history.
func (b *Scoreboard) NextQuestion(tasks []string) string {
	b.init()
	return ChooseNextQuestion(tasks, b.Correct, b.Incorrect)
}

func running(m map[string]*RunningScore, key string) *RunningScore {
	r, ok := m[key]
	if !ok {
		r = &RunningScore{}
		m[key] = r
	}
	return r
}

// Clone returns a deep copy of the board.
func (b *Scoreboard) Clone() *Scoreboard {
	out := NewScoreboard()
	out.OverallXP = b.OverallXP
	for k, v := range b.Content {
		c := *v
		out.Content[k] = &c
	}
	for k, v := range b.Curriculum {
		c := *v
		out.Curriculum[k] = &c
	}
	for q := range b.Correct {
		out.Correct.Add(q)
	}
	for q := range b.Incorrect {
		out.Incorrect.Add(q)
	}
	return out
}
