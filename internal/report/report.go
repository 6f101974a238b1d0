// Package report renders progress summaries as an XLSX workbook.
package report

import (
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/montybuilt/MPS-sub000/internal/progress"
)

// Sheet names, in workbook order.
const (
	SheetOverview  = "Overview"
	SheetCurricula = "Curricula"
	SheetStandards = "Standards"
	SheetTags      = "Tags"
)

// Workbook is everything one export contains.
type Workbook struct {
	Owner     string
	Generated time.Time
	KPIs      progress.KPISummary
	Completed progress.Set
	// Tags holds tag performance per content.
	Tags map[string][]progress.TagPerformance
}

var scoreHeader = []any{"Total Earned", "Score Earned", "Total Possible", "Percent"}

// Write renders wb as XLSX to w.
func Write(w io.Writer, wb Workbook) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetOverview); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{SheetCurricula, SheetStandards, SheetTags} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	s := sheetWriter{f: f, bold: bold}
	s.overview(wb)
	s.curricula(wb)
	s.standards(wb)
	s.tags(wb)
	if s.err != nil {
		return s.err
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// sheetWriter accumulates the first error so rows can be written in
// sequence.
type sheetWriter struct {
	f    *excelize.File
	bold int
	err  error
}

func (s *sheetWriter) row(sheet string, r int, values []any) {
	if s.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, r)
	if err != nil {
		s.err = err
		return
	}
	if err := s.f.SetSheetRow(sheet, cell, &values); err != nil {
		s.err = fmt.Errorf("write %s row %d: %w", sheet, r, err)
	}
}

func (s *sheetWriter) header(sheet string, values []any) {
	s.row(sheet, 1, values)
	if s.err != nil {
		return
	}
	if err := s.f.SetRowStyle(sheet, 1, 1, s.bold); err != nil {
		s.err = fmt.Errorf("style %s header: %w", sheet, err)
		return
	}
	if err := s.f.SetColWidth(sheet, "A", "B", 22); err != nil {
		s.err = fmt.Errorf("size %s columns: %w", sheet, err)
	}
}

func (s *sheetWriter) overview(wb Workbook) {
	s.row(SheetOverview, 1, []any{"Learner", wb.Owner})
	generated := wb.Generated
	if generated.IsZero() {
		generated = time.Now()
	}
	s.row(SheetOverview, 2, []any{"Generated", generated.UTC().Format(time.RFC3339)})
	s.row(SheetOverview, 3, []any{"Completed curricula", len(wb.Completed)})

	s.row(SheetOverview, 5, append([]any{"Scope"}, scoreHeader...))
	s.row(SheetOverview, 6, scoreRow("Overall", wb.KPIs.Overall))
	r := 7
	for _, id := range sortedKeys(wb.KPIs.Content) {
		s.row(SheetOverview, r, scoreRow(id, *wb.KPIs.Content[id]))
		r++
	}
}

func (s *sheetWriter) curricula(wb Workbook) {
	s.header(SheetCurricula, append(append([]any{"Curriculum"}, scoreHeader...), "Completed"))
	r := 2
	for _, id := range sortedKeys(wb.KPIs.Curriculum) {
		done := "no"
		if wb.Completed.Has(id) {
			done = "yes"
		}
		s.row(SheetCurricula, r, append(scoreRow(id, *wb.KPIs.Curriculum[id]), done))
		r++
	}
}

func (s *sheetWriter) standards(wb Workbook) {
	s.header(SheetStandards, append([]any{"Content", "Standard.Objective"}, scoreHeader...))
	r := 2
	for _, contentID := range sortedKeys(wb.KPIs.StandardObjective) {
		objectives := wb.KPIs.StandardObjective[contentID]
		for _, key := range sortedKeys(objectives) {
			s.row(SheetStandards, r, append([]any{contentID}, scoreRow(key, *objectives[key])...))
			r++
		}
	}
}

func (s *sheetWriter) tags(wb Workbook) {
	s.header(SheetTags, []any{"Content", "Tag", "Questions", "Potential XP", "Earned XP", "Percent"})
	r := 2
	for _, contentID := range sortedKeys(wb.Tags) {
		for _, tp := range wb.Tags[contentID] {
			s.row(SheetTags, r, []any{contentID, tp.Tag, tp.Questions, round(tp.PotentialXP), round(tp.EarnedXP), round(tp.Percent)})
			r++
		}
	}
}

func scoreRow(label string, sc progress.Score) []any {
	return []any{label, round(sc.TotalEarned), round(sc.ScoreEarned), round(sc.TotalPossible), round(sc.Percent)}
}

func round(v float64) float64 {
	return math.Round(v*100) / 100
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
