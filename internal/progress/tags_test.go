package progress_test

import (
	"testing"

	"github.com/montybuilt/MPS-sub000/internal/progress"
)

func TestBuildTagSummary(t *testing.T) {
	got := progress.BuildTagSummary(pcapTree())

	loops := got["pcap"]["loops"]
	if loops == nil {
		t.Fatal("tag loops missing")
	}
	if len(loops.Questions) != 2 || !loops.Questions.Has("t1") || !loops.Questions.Has("t2") {
		t.Errorf("loops.Questions = %v, want [t1 t2]", loops.Questions.Sorted())
	}
	if !approx(loops.PotentialXP, 3) {
		t.Errorf("loops.PotentialXP = %v, want 3", loops.PotentialXP)
	}
	if s := got["pcap"]["strings"]; s == nil || !approx(s.PotentialXP, 1) {
		t.Errorf("strings = %+v, want potential 1", s)
	}
}

func TestBuildTagSummary_NormalizesLabels(t *testing.T) {
	tree := progress.AssignmentTree{
		"pcap": {"C1": {
			{TaskKey: "a", Difficulty: 3, Tags: []string{" café ", ""}},
			{TaskKey: "b", Difficulty: 3, Tags: []string{"café"}},
		}},
	}

	got := progress.BuildTagSummary(tree)

	if len(got["pcap"]) != 1 {
		t.Fatalf("tags = %d, want 1 after normalisation", len(got["pcap"]))
	}
	if stat := got["pcap"]["café"]; stat == nil || len(stat.Questions) != 2 {
		t.Errorf("café = %+v, want both questions", stat)
	}
}

func TestTagPerformanceFor(t *testing.T) {
	summary := progress.BuildTagSummary(pcapTree())
	attempts := []progress.AttemptRecord{
		{QuestionID: "t1", ContentID: "pcap", DXP: 2},
		{QuestionID: "t2", ContentID: "pcap", DXP: -0.5},
		{QuestionID: "t2", ContentID: "other", DXP: 9},
	}

	got := progress.TagPerformanceFor("pcap", summary, attempts)

	if len(got) != 2 || got[0].Tag != "loops" || got[1].Tag != "strings" {
		t.Fatalf("got %+v, want loops then strings", got)
	}
	if !approx(got[0].EarnedXP, 2) || !approx(got[0].Percent, 200.0/3) {
		t.Errorf("loops = %+v, want earned 2", got[0])
	}
	if got[1].EarnedXP != 0 {
		t.Errorf("strings earned = %v, want 0", got[1].EarnedXP)
	}
}

func TestBuildTagSummary_RepeatedTaskCountsOnce(t *testing.T) {
	tree := progress.AssignmentTree{
		"pcap": {
			"C1": {{TaskKey: "t1", Difficulty: 6, Tags: []string{"loops", "loops"}}},
			"C2": {{TaskKey: "t1", Difficulty: 6, Tags: []string{"loops"}}},
		},
	}

	loops := progress.BuildTagSummary(tree)["pcap"]["loops"]
	if loops == nil || len(loops.Questions) != 1 {
		t.Fatalf("loops = %+v, want one question", loops)
	}
	if !approx(loops.PotentialXP, 2) {
		t.Errorf("loops.PotentialXP = %v, want 2", loops.PotentialXP)
	}
}
