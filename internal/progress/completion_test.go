package progress_test

import (
	"testing"

	"github.com/montybuilt/MPS-sub000/internal/progress"
)

func TestIdentifyCompletedCurriculums(t *testing.T) {
	tree := progress.AssignmentTree{
		"pcap": {"C1": {{TaskKey: "X", Difficulty: 3}, {TaskKey: "Y", Difficulty: 3}}},
	}
	x := progress.AttemptRecord{QuestionID: "X", CurriculumID: "C1", ContentID: "pcap", DXP: 1}
	y := progress.AttemptRecord{QuestionID: "Y", CurriculumID: "C1", ContentID: "pcap", DXP: 0.5}

	if got := progress.IdentifyCompletedCurriculums([]progress.AttemptRecord{x, y}, tree); !got.Has("C1") {
		t.Errorf("C1 should be completed with both tasks answered, got %v", got.Sorted())
	}
	if got := progress.IdentifyCompletedCurriculums([]progress.AttemptRecord{x}, tree); got.Has("C1") {
		t.Error("C1 should not be completed once Y's attempt is removed")
	}
}

func TestIdentifyCompletedCurriculums_NonPositiveDoesNotCount(t *testing.T) {
	tree := progress.AssignmentTree{"pcap": {"C1": {{TaskKey: "X", Difficulty: 3}}}}
	attempts := []progress.AttemptRecord{
		{QuestionID: "X", DXP: 0},
		{QuestionID: "X", DXP: -1},
	}

	if got := progress.IdentifyCompletedCurriculums(attempts, tree); len(got) != 0 {
		t.Errorf("completed = %v, want none", got.Sorted())
	}
}

func TestIdentifyCompletedCurriculums_EmptyCurriculumIsNotComplete(t *testing.T) {
	tree := progress.AssignmentTree{"pcap": {"EMPTY": {}}}

	if got := progress.IdentifyCompletedCurriculums(nil, tree); got.Has("EMPTY") {
		t.Error("a curriculum with no tasks must not count as completed")
	}
}
