package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/montybuilt/MPS-sub000/internal/progress"
)

const attemptsJSON = `[
  {"question_id":"t1","content_id":"pcap","curriculum_id":"C1","standard":1,"objective":1,"dXP":2,"timestamp":"2026-01-10T09:00:00Z"},
  {"question_id":"t1","content_id":"pcap","curriculum_id":"C1","standard":1,"objective":1,"dXP":2,"timestamp":"2026-01-10T09:00:00Z"},
  {"question_id":"t2","content_id":"pcap","curriculum_id":"C1","standard":1,"objective":2,"dXP":1,"timestamp":"2026-01-10T09:05:00Z"}
]`

func setupInputs(t *testing.T) (treeDir, attemptsPath string) {
	t.Helper()
	treeDir = t.TempDir()
	if err := os.WriteFile(filepath.Join(treeDir, "pcap.yaml"), []byte(`
content_id: pcap
name: "Certified Associate in Python Programming"
curricula:
  - id: C1
    tasks:
      - task_key: t1
        difficulty: 6
        standard: 1
        objective: 1
        tags: [modules]
      - task_key: t2
        difficulty: 3
        standard: 1
        objective: 2
  - id: C2
    tasks:
      - task_key: t4
        difficulty: 9
        standard: 2
        objective: 1
`), 0o644); err != nil {
		t.Fatal(err)
	}

	attemptsPath = filepath.Join(t.TempDir(), "attempts.json")
	if err := os.WriteFile(attemptsPath, []byte(attemptsJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	return treeDir, attemptsPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSummary(t *testing.T) {
	tree, attempts := setupInputs(t)

	out, err := run(t, "summary", "--tree", tree, "--attempts", attempts)
	if err != nil {
		t.Fatalf("summary error = %v", err)
	}

	var sum progress.KPISummary
	if err := json.Unmarshal([]byte(out), &sum); err != nil {
		t.Fatalf("summary output is not JSON: %v\n%s", err, out)
	}
	// The duplicated t1 attempt counts once.
	if got := sum.Curriculum["C1"]; got.ScoreEarned != 3 || got.Percent != 100 {
		t.Errorf("C1 = %+v, want 3 earned at 100%%", got)
	}
	if got := sum.Overall; got.TotalPossible != 6 || got.Percent != 50 {
		t.Errorf("overall = %+v, want 6 possible at 50%%", got)
	}
}

func TestCompleted(t *testing.T) {
	tree, attempts := setupInputs(t)

	out, err := run(t, "completed", "--tree", tree, "--attempts", attempts)
	if err != nil {
		t.Fatalf("completed error = %v", err)
	}
	if out != "C1\n" {
		t.Errorf("completed = %q, want C1", out)
	}

	out, err = run(t, "completed", "--tree", tree)
	if err != nil {
		t.Fatalf("completed without attempts error = %v", err)
	}
	if out != "" {
		t.Errorf("completed without attempts = %q, want nothing", out)
	}
}

func TestTags(t *testing.T) {
	tree, attempts := setupInputs(t)

	out, err := run(t, "tags", "--tree", tree, "--attempts", attempts)
	if err != nil {
		t.Fatalf("tags error = %v", err)
	}
	if !strings.Contains(out, `"modules"`) {
		t.Errorf("tags output missing modules:\n%s", out)
	}

	out, err = run(t, "tags", "--tree", tree, "--attempts", attempts, "--content", "pcap")
	if err != nil {
		t.Fatalf("tags --content error = %v", err)
	}
	var perf []progress.TagPerformance
	if err := json.Unmarshal([]byte(out), &perf); err != nil {
		t.Fatalf("tags --content output is not JSON: %v", err)
	}
	if len(perf) != 1 || perf[0].EarnedXP != 2 || perf[0].Percent != 100 {
		t.Errorf("tag performance = %+v", perf)
	}
}

func TestExport(t *testing.T) {
	tree, attempts := setupInputs(t)
	path := filepath.Join(t.TempDir(), "report.xlsx")

	out, err := run(t, "export", "--tree", tree, "--attempts", attempts, "--owner", "alice", "--out", path)
	if err != nil {
		t.Fatalf("export error = %v", err)
	}
	if !strings.Contains(out, path) {
		t.Errorf("export output = %q", out)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	defer f.Close()
	if owner, _ := f.GetCellValue("Overview", "B1"); owner != "alice" {
		t.Errorf("Overview!B1 = %q, want alice", owner)
	}
}

func TestNext(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"first not yet correct", []string{"--tasks", "a,b,c", "--correct", "a"}, "b\n"},
		{"all correct serves a missed one", []string{"--tasks", "a,b,c", "--correct", "a,b,c", "--incorrect", "c"}, "c\n"},
		{"all correct and none missed", []string{"--tasks", "a,b,c", "--correct", "a,b,c"}, "a\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, append([]string{"next"}, tt.args...)...)
			if err != nil {
				t.Fatalf("next error = %v", err)
			}
			if out != tt.want {
				t.Errorf("next = %q, want %q", out, tt.want)
			}
		})
	}

	if _, err := run(t, "next"); err == nil {
		t.Error("next without --tasks should fail")
	}
}

func TestErrors(t *testing.T) {
	tree, _ := setupInputs(t)
	bad := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(bad, []byte("not json"), 0o644)

	tests := []struct {
		name string
		args []string
	}{
		{"missing attempts file", []string{"summary", "--tree", tree, "--attempts", "/nonexistent/attempts.json"}},
		{"malformed attempts", []string{"summary", "--tree", tree, "--attempts", bad}},
		{"seed without database", []string{"seed", "--tree", tree}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(t, tt.args...); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestReadAttempts_Bundle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle.json")
	os.WriteFile(path, []byte(`{"xpData":`+attemptsJSON+`,"xpUsername":"alice"}`), 0o644)

	records, err := readAttempts(path)
	if err != nil {
		t.Fatalf("readAttempts() error = %v", err)
	}
	if len(records) != 2 {
		t.Errorf("readAttempts() = %d records, want 2 after dedupe", len(records))
	}
}
