// Package export renders course lists and study plans as XLSX workbooks and
// Markdown documents.
package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/TobiSchelling/CEUCrawler/internal/database"
	"github.com/TobiSchelling/CEUCrawler/internal/recommend"
)

const (
	coursesSheet = "Courses"
	planSheet    = "Plan"
)

var courseHeaders = []string{
	"Title", "Provider", "Field", "Type", "Credits", "Credits (raw)", "Price", "Price (raw)",
	"Duration (min)", "Start", "Registration Deadline", "Instructors", "Accreditations", "URL",
}

// CoursesXLSX returns a workbook with one row per course.
func CoursesXLSX(courses []database.Course) ([]byte, error) {
	f, err := newWorkbook(coursesSheet)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	writeRow(f, coursesSheet, 1, toAny(courseHeaders))
	for i := range courses {
		c := &courses[i]
		writeRow(f, coursesSheet, i+2, []any{
			c.Title,
			c.Provider,
			string(c.Field),
			string(c.CourseType),
			numberOrBlank(c.Credits),
			deref(c.CreditsString),
			numberOrBlank(c.Price),
			deref(c.PriceString),
			intOrBlank(c.DurationMinutes),
			dateOrBlank(c.StartDate),
			dateOrBlank(c.RegistrationDeadline),
			strings.Join(c.Instructors, "; "),
			strings.Join(c.Accreditations, "; "),
			c.URL,
		})
	}

	_ = f.SetColWidth(coursesSheet, "A", "A", 48) // title
	_ = f.SetColWidth(coursesSheet, "B", "D", 16)
	_ = f.SetColWidth(coursesSheet, "E", "I", 12)
	_ = f.SetColWidth(coursesSheet, "J", "K", 14) // dates
	_ = f.SetColWidth(coursesSheet, "L", "M", 32)
	_ = f.SetColWidth(coursesSheet, "N", "N", 60) // url
	return finish(f)
}

// PlanXLSX returns a workbook with a saved plan's items and their current
// tracking status, followed by a totals row.
func PlanXLSX(p *recommend.Progress) ([]byte, error) {
	f, err := newWorkbook(planSheet)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	writeRow(f, planSheet, 1, []any{"Priority", "Scheduled", "Course", "Credits", "Price", "Status", "URL"})
	row := 2
	var cost float64
	for _, item := range p.Items {
		if item.Price != nil {
			cost += *item.Price
		}
		writeRow(f, planSheet, row, []any{
			item.Priority,
			item.ScheduledDate.Format(time.DateOnly),
			item.CourseTitle,
			numberOrBlank(item.Credits),
			numberOrBlank(item.Price),
			string(item.Status),
			item.CourseURL,
		})
		row++
	}
	writeRow(f, planSheet, row+1, []any{"Total", "", fmt.Sprintf("%d/%d completed", p.Completed, len(p.Items)), p.CreditsPlanned, cost})

	_ = f.SetColWidth(planSheet, "A", "B", 12)
	_ = f.SetColWidth(planSheet, "C", "C", 48) // course
	_ = f.SetColWidth(planSheet, "D", "F", 12)
	_ = f.SetColWidth(planSheet, "G", "G", 60) // url
	return finish(f)
}

func newWorkbook(sheet string) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("naming sheet: %w", err)
	}
	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		f.Close()
		return nil, err
	}
	f.SetActiveSheet(idx)
	if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		f.Close()
		return nil, fmt.Errorf("freezing header: %w", err)
	}
	return f, nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) {
	cell, _ := excelize.CoordinatesToCellName(1, row)
	_ = f.SetSheetRow(sheet, cell, &values)
}

func finish(f *excelize.File) ([]byte, error) {
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func toAny(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

func numberOrBlank(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

func intOrBlank(v *int) any {
	if v == nil {
		return ""
	}
	return *v
}

func dateOrBlank(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.DateOnly)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
