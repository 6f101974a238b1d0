package backend

import (
	"time"

	"github.com/montybuilt/MPS-sub000/internal/curriculum"
)

// WatermarkLayout formats server-side record times. In UTC its strings sort
// in time order.
const WatermarkLayout = "2006-01-02T15:04:05.000000Z07:00"

// FormatWatermark renders t as a watermark.
func FormatWatermark(t time.Time) string {
	return t.UTC().Format(WatermarkLayout)
}

// ParseWatermark reads a watermark. Date-only values such as the epoch are
// accepted; anything unparsable reads as the zero time so the full log is
// fetched.
func ParseWatermark(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, WatermarkLayout, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// QuestionFromTask converts a bank task into its wire payload.
func QuestionFromTask(t curriculum.Task) Question {
	q := Question{
		Question:    t.Question,
		Answer:      t.Answer,
		Code:        t.Code,
		Difficulty:  t.Difficulty,
		Video:       t.Video,
		Description: t.Description,
		Tags:        t.Tags,
	}
	slots := []*string{&q.Distractor1, &q.Distractor2, &q.Distractor3}
	for i, d := range t.Distractors {
		if i == len(slots) {
			break
		}
		*slots[i] = d
	}
	return q
}
