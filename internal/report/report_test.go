package report_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/montybuilt/MPS-sub000/internal/progress"
	"github.com/montybuilt/MPS-sub000/internal/report"
)

func TestWrite(t *testing.T) {
	tree := progress.AssignmentTree{
		"pcap": {
			"C1": {
				{TaskKey: "t1", Difficulty: 6, Standard: "1", Objective: "1", Tags: []string{"modules"}},
				{TaskKey: "t2", Difficulty: 3, Standard: "1", Objective: "2"},
			},
		},
	}
	attempts := []progress.AttemptRecord{
		{QuestionID: "t1", ContentID: "pcap", CurriculumID: "C1", Standard: "1", Objective: "1", DXP: 2},
	}
	tags := progress.BuildTagSummary(tree)

	var buf bytes.Buffer
	err := report.Write(&buf, report.Workbook{
		Owner:     "alice",
		Generated: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		KPIs:      progress.CalculateKPIs(attempts, tree),
		Completed: progress.IdentifyCompletedCurriculums(attempts, tree),
		Tags:      map[string][]progress.TagPerformance{"pcap": progress.TagPerformanceFor("pcap", tags, attempts)},
	})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	want := []string{report.SheetOverview, report.SheetCurricula, report.SheetStandards, report.SheetTags}
	if len(sheets) != len(want) {
		t.Fatalf("sheets = %v, want %v", sheets, want)
	}
	for i := range want {
		if sheets[i] != want[i] {
			t.Errorf("sheet %d = %q, want %q", i, sheets[i], want[i])
		}
	}

	if v, _ := f.GetCellValue(report.SheetOverview, "B1"); v != "alice" {
		t.Errorf("learner = %q, want alice", v)
	}

	rows, err := f.GetRows(report.SheetCurricula)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("curricula rows = %d, want header + 1", len(rows))
	}
	c1 := rows[1]
	if c1[0] != "C1" || c1[3] != "3" || c1[4] != "66.67" || c1[5] != "no" {
		t.Errorf("C1 row = %v", c1)
	}

	standards, _ := f.GetRows(report.SheetStandards)
	if len(standards) != 3 {
		t.Errorf("standards rows = %d, want header + 2", len(standards))
	}

	tagRows, _ := f.GetRows(report.SheetTags)
	if len(tagRows) != 2 || tagRows[1][1] != "modules" || tagRows[1][5] != "100" {
		t.Errorf("tag rows = %v", tagRows)
	}
}

func TestWrite_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := report.Write(&buf, report.Workbook{}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if buf.Len() == 0 {
		t.Error("empty workbook produced no bytes")
	}
}
