package progress

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// TagStat is the coverage of one skill tag inside a content.
type TagStat struct {
	Questions   Set     `json:"questions"`
	PotentialXP float64 `json:"potentialXP"`
}

// TagSummary maps content_id -> tag -> coverage.
type TagSummary map[string]map[string]*TagStat

// BuildTagSummary scans each task's tags, collecting question IDs and
// accumulating difficulty once per distinct question per tag. Tags are trimmed and NFC-normalised so
// visually identical labels share a bucket; empty tags are ignored.
func BuildTagSummary(tree AssignmentTree) TagSummary {
	summary := make(TagSummary)
	for contentID, curricula := range tree {
		tags := make(map[string]*TagStat)
		for _, tasks := range curricula {
			for _, task := range tasks {
				for _, raw := range task.Tags {
					tag := NormalizeTag(raw)
					if tag == "" {
						continue
					}
					stat, ok := tags[tag]
					if !ok {
						stat = &TagStat{Questions: make(Set)}
						tags[tag] = stat
					}
					if stat.Questions.Has(task.TaskKey) {
						continue
					}
					stat.Questions.Add(task.TaskKey)
					stat.PotentialXP += task.Difficulty.Float()
				}
			}
		}
		for _, stat := range tags {
			stat.PotentialXP /= 3
		}
		summary[contentID] = tags
	}
	return summary
}

// NormalizeTag canonicalises a free-form tag label.
func NormalizeTag(tag string) string {
	return norm.NFC.String(strings.TrimSpace(tag))
}

// TagPerformance is earned XP against a tag's potential.
type TagPerformance struct {
	Tag         string  `json:"tag"`
	Questions   int     `json:"questions"`
	PotentialXP float64 `json:"potentialXP"`
	EarnedXP    float64 `json:"earnedXP"`
	Percent     float64 `json:"percent"`
}

// TagPerformanceFor reports, for one content, the positive XP earned on the
// questions carrying each tag. Only attempts filed under contentID count.
func TagPerformanceFor(contentID string, summary TagSummary, attempts []AttemptRecord) []TagPerformance {
	earned := make(map[string]float64)
	for _, a := range attempts {
		if a.ContentID == contentID && a.DXP > 0 {
			earned[a.QuestionID] += a.DXP
		}
	}

	tags := summary[contentID]
	out := make([]TagPerformance, 0, len(tags))
	for _, tag := range sortedKeys(tags) {
		stat := tags[tag]
		var xp float64
		for q := range stat.Questions {
			xp += earned[q]
		}
		out = append(out, TagPerformance{
			Tag:         tag,
			Questions:   len(stat.Questions),
			PotentialXP: stat.PotentialXP,
			EarnedXP:    xp,
			Percent:     Percent(xp, stat.PotentialXP),
		})
	}
	return out
}
