// Package quiz holds the per-answer rules: which question to serve next and
// how much XP an answer is worth.
package quiz

import "github.com/montybuilt/MPS-sub000/internal/progress"

// ChooseNextQuestion picks the next task of a curriculum. In order of
// preference: the first task never answered correctly, then the first task
// that was ever missed, then the first task. An empty list yields "".
func ChooseNextQuestion(tasks []string, correct, incorrect progress.Set) string {
	if len(tasks) == 0 {
		return ""
	}
	for _, q := range tasks {
		if !correct.Has(q) {
			return q
		}
	}
	for _, q := range tasks {
		if incorrect.Has(q) {
			return q
		}
	}
	return tasks[0]
}
