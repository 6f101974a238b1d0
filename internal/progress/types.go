// Package progress folds the attempt log and the assignment tree into
// performance summaries. Everything here is a pure function of its inputs.
package progress

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// AttemptRecord is one entry of the append-only XP ledger.
type AttemptRecord struct {
	QuestionID   string  `json:"question_id"`
	ContentID    string  `json:"content_id"`
	CurriculumID string  `json:"curriculum_id"`
	Standard     Code    `json:"standard"`
	Objective    Code    `json:"objective"`
	DXP          float64 `json:"dXP"`
	Timestamp    string  `json:"timestamp"`
}

// ObjectiveKey returns the composite standard.objective key of the record.
func (r AttemptRecord) ObjectiveKey() string {
	return ObjectiveKey(r.Standard, r.Objective)
}

// TaskAssignment is a single question assigned inside a curriculum.
type TaskAssignment struct {
	TaskKey    string   `json:"task_key" yaml:"task_key"`
	Difficulty Number   `json:"difficulty" yaml:"difficulty"`
	Standard   Code     `json:"standard" yaml:"standard"`
	Objective  Code     `json:"objective" yaml:"objective"`
	Tags       []string `json:"tags" yaml:"tags"`
}

// PossibleXP is the most XP a task can contribute.
func (t TaskAssignment) PossibleXP() float64 {
	return t.Difficulty.Float() / 3
}

// ObjectiveKey returns the composite standard.objective key of the task.
func (t TaskAssignment) ObjectiveKey() string {
	return ObjectiveKey(t.Standard, t.Objective)
}

// AssignmentTree maps content_id -> curriculum_id -> ordered tasks.
type AssignmentTree map[string]map[string][]TaskAssignment

// Curricula returns the distinct curriculum IDs in the tree, sorted.
func (t AssignmentTree) Curricula() []string {
	seen := make(Set)
	for _, curricula := range t {
		for id := range curricula {
			seen.Add(id)
		}
	}
	return seen.Sorted()
}

// Tasks returns the tasks assigned to curriculumID. When several contents
// list the curriculum, the first content in key order wins.
func (t AssignmentTree) Tasks(curriculumID string) ([]TaskAssignment, bool) {
	for _, contentID := range sortedKeys(t) {
		if tasks, ok := t[contentID][curriculumID]; ok {
			return tasks, true
		}
	}
	return nil, false
}

// TaskKeys returns the ordered task keys of a curriculum under a content.
func (t AssignmentTree) TaskKeys(contentID, curriculumID string) []string {
	tasks := t[contentID][curriculumID]
	keys := make([]string, 0, len(tasks))
	for _, task := range tasks {
		keys = append(keys, task.TaskKey)
	}
	return keys
}

// ObjectiveKey joins a standard and objective into "standard.objective".
func ObjectiveKey(standard, objective Code) string {
	return string(standard) + "." + string(objective)
}

// Number is a numeric field that tolerates malformed input. Numbers and
// numeric strings decode to their value; anything else decodes to 0.
type Number float64

// Float returns the value as float64.
func (n Number) Float() float64 {
	return float64(n)
}

func (n *Number) UnmarshalJSON(data []byte) error {
	*n = Number(ParseNumber(strings.Trim(string(bytes.TrimSpace(data)), `"`)))
	return nil
}

func (n *Number) UnmarshalYAML(value *yaml.Node) error {
	*n = Number(ParseNumber(value.Value))
	return nil
}

// ParseNumber converts s to a float, returning 0 when s is not numeric.
func ParseNumber(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// Code identifies a standard or an objective. Backends send either numbers
// or strings; both are kept as their canonical text.
type Code string

func (c *Code) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Code(s)
		return nil
	}
	*c = Code(data)
	return nil
}

func (c *Code) UnmarshalYAML(value *yaml.Node) error {
	*c = Code(value.Value)
	return nil
}

// MarshalJSON keeps numeric codes numeric on the wire.
func (c Code) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseFloat(string(c), 64); err == nil && json.Valid([]byte(c)) {
		return []byte(c), nil
	}
	return json.Marshal(string(c))
}

// Set is a set of string identifiers, encoded as a sorted JSON array.
type Set map[string]struct{}

// NewSet builds a set from ids.
func NewSet(ids ...string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func (s Set) Add(id string) {
	s[id] = struct{}{}
}

func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *Set) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewSet(ids...)
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
