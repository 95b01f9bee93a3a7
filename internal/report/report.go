// Package report exports a learner's progress as an Excel workbook.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-course/internal/course"
)

// Sheet names in the order they appear in the workbook.
const (
	SheetSummary     = "Summary"
	SheetCourses     = "Courses"
	SheetAssessments = "Assessments"
)

// WriteProgress writes an .xlsx workbook with the user's stats, courses and
// assessment history to w.
func WriteProgress(w io.Writer, u course.User, courses []course.Course, assessments []course.Assessment) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{SheetCourses, SheetAssessments} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("add sheet %s: %w", name, err)
		}
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DCE6F1"}},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	if err := writeSummary(f, header, u, courses, assessments); err != nil {
		return err
	}
	if err := writeCourses(f, header, courses); err != nil {
		return err
	}
	if err := writeAssessments(f, header, assessments); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, header int, u course.User, courses []course.Course, assessments []course.Assessment) error {
	finished := 0
	for _, c := range courses {
		if len(c.Modules) > 0 && c.CompletedModules == len(c.Modules) {
			finished++
		}
	}
	lastLesson := ""
	if u.LastLessonDate != nil {
		lastLesson = u.LastLessonDate.UTC().Format(time.DateOnly)
	}

	rows := [][]any{
		{"Field", "Value"},
		{"Name", u.Name},
		{"Email", u.Email},
		{"Total XP", u.TotalXP},
		{"Streak (days)", u.StreakDays},
		{"Last lesson", lastLesson},
		{"Courses", len(courses)},
		{"Courses finished", finished},
		{"Assessments", len(assessments)},
	}
	if err := writeRows(f, SheetSummary, header, rows); err != nil {
		return err
	}
	return f.SetColWidth(SheetSummary, "A", "B", 24)
}

func writeCourses(f *excelize.File, header int, courses []course.Course) error {
	rows := [][]any{{"Topic", "Level", "Modules", "Completed", "Progress (%)", "Current module", "Started"}}
	for _, c := range courses {
		rows = append(rows, []any{
			c.Topic,
			string(c.Level),
			len(c.Modules),
			c.CompletedModules,
			c.Progress,
			currentModule(c),
			c.CreatedAt.UTC().Format(time.DateOnly),
		})
	}
	if err := writeRows(f, SheetCourses, header, rows); err != nil {
		return err
	}
	return f.SetColWidth(SheetCourses, "A", "G", 18)
}

func writeAssessments(f *excelize.File, header int, assessments []course.Assessment) error {
	rows := [][]any{{"Topic", "Score", "Weak topics", "Feedback", "Taken"}}
	for _, a := range assessments {
		rows = append(rows, []any{
			a.Topic,
			a.Score,
			strings.Join(a.WeakTopics, ", "),
			a.Feedback,
			a.CreatedAt.UTC().Format(time.DateOnly),
		})
	}
	if err := writeRows(f, SheetAssessments, header, rows); err != nil {
		return err
	}
	return f.SetColWidth(SheetAssessments, "A", "E", 20)
}

func currentModule(c course.Course) string {
	if c.CompletedModules >= len(c.Modules) {
		return "Finished"
	}
	return c.Modules[c.CompletedModules].Title
}

// writeRows writes rows from A1 down and styles the first one as a header.
func writeRows(f *excelize.File, sheet string, header int, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	if err := f.SetRowStyle(sheet, 1, 1, header); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}
	return nil
}
