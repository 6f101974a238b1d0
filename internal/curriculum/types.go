package curriculum

import "github.com/montybuilt/MPS-sub000/internal/progress"

// Content is one content area loaded from YAML: its curricula and the
// questions they assign.
type Content struct {
	ID        string       `yaml:"content_id"`
	Name      string       `yaml:"name"`
	Learners  []string     `yaml:"learners"`
	Curricula []Curriculum `yaml:"curricula"`
}

// AssignedTo reports whether owner is assigned this content. A content
// with no learner list is assigned to everyone.
func (c Content) AssignedTo(owner string) bool {
	if len(c.Learners) == 0 {
		return true
	}
	for _, l := range c.Learners {
		if l == owner {
			return true
		}
	}
	return false
}

// Curriculum is an ordered list of tasks inside a content.
type Curriculum struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Tasks []Task `yaml:"tasks"`
}

// Task is an assigned question with its bank payload inline.
type Task struct {
	progress.TaskAssignment `yaml:",inline"`

	Question    string   `yaml:"question"`
	Answer      string   `yaml:"answer"`
	Distractors []string `yaml:"distractors"`
	Code        string   `yaml:"code"`
	Video       string   `yaml:"video"`
	Description string   `yaml:"description"`
}
