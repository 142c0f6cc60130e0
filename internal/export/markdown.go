package export

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/TobiSchelling/CEUCrawler/internal/database"
	"github.com/TobiSchelling/CEUCrawler/internal/recommend"
)

// CoursesMarkdown renders courses as a Markdown table.
func CoursesMarkdown(courses []database.Course) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Courses\n\n%d courses\n\n", len(courses))
	if len(courses) == 0 {
		return b.String()
	}
	b.WriteString("| Course | Provider | Field | Type | Credits | Price | Starts |\n")
	b.WriteString("|---|---|---|---|---|---|---|\n")
	for i := range courses {
		c := &courses[i]
		fmt.Fprintf(&b, "| [%s](%s) | %s | %s | %s | %s | %s | %s |\n",
			cell(c.Title), c.URL, cell(c.Provider), c.Field, c.CourseType,
			credits(c.Credits, c.CreditsString), price(c.Price, c.PriceString), dateOrBlank(c.StartDate))
	}
	return b.String()
}

// GeneratedPlanMarkdown renders an unsaved plan with its totals and warnings.
func GeneratedPlanMarkdown(p *recommend.GeneratedPlan) string {
	var b strings.Builder
	title := p.Request.Name
	if title == "" {
		title = "Study plan"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "Target: %s credits by %s", formatNumber(p.Request.TargetCredits), p.Request.TargetDeadline.Format(time.DateOnly))
	if p.Request.MaxBudget != nil {
		fmt.Fprintf(&b, ", budget $%.2f", *p.Request.MaxBudget)
	}
	b.WriteString("\n\n")

	if len(p.Warnings) > 0 {
		b.WriteString("## Warnings\n\n")
		for _, w := range p.Warnings {
			fmt.Fprintf(&b, "- **%s**: %s\n", w.Code, w.Message)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Courses\n\n")
	if len(p.Items) == 0 {
		b.WriteString("No courses selected.\n")
	} else {
		b.WriteString("| # | Date | Course | Credits | Price | Score | Why |\n")
		b.WriteString("|---|---|---|---|---|---|---|\n")
		for _, item := range p.Items {
			reasons := make([]string, len(item.Reasons))
			for i, r := range item.Reasons {
				reasons[i] = string(r)
			}
			fmt.Fprintf(&b, "| %d | %s | [%s](%s) | %s | %s | %.0f | %s |\n",
				item.Priority, item.ScheduledDate.Format(time.DateOnly), cell(item.Course.Title), item.Course.URL,
				credits(item.Course.Credits, item.Course.CreditsString), price(item.Course.Price, item.Course.PriceString),
				item.Score, strings.Join(reasons, ", "))
		}
	}

	fmt.Fprintf(&b, "\n**Total:** %s credits, $%.2f, %s hours, %d per week over %d days\n",
		formatNumber(p.TotalCredits), p.TotalCost, formatNumber(p.TotalHours), p.CoursesPerWeek, p.DaysAvailable)
	return b.String()
}

// PlanMarkdown renders a saved plan with each item's tracking status.
func PlanMarkdown(p *recommend.Progress) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", p.Plan.Name)
	fmt.Fprintf(&b, "Target: %s credits by %s\n\n", formatNumber(p.Plan.TargetCredits), p.Plan.TargetDeadline.Format(time.DateOnly))
	fmt.Fprintf(&b, "Progress: %d of %d completed (%.0f%%), %s of %s credits\n\n",
		p.Completed, len(p.Items), p.Percent(), formatNumber(p.CreditsCompleted), formatNumber(p.CreditsPlanned))

	if len(p.Items) == 0 {
		b.WriteString("No courses in this plan.\n")
		return b.String()
	}
	b.WriteString("| # | Date | Course | Credits | Status |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, item := range p.Items {
		fmt.Fprintf(&b, "| %d | %s | [%s](%s) | %s | %s |\n",
			item.Priority, item.ScheduledDate.Format(time.DateOnly), cell(item.CourseTitle), item.CourseURL,
			credits(item.Credits, nil), statusLabel(item.Status))
	}
	return b.String()
}

func statusLabel(s database.TrackingStatus) string {
	switch s {
	case database.TrackingCompleted:
		return "✅ completed"
	case database.TrackingInProgress:
		return "in progress"
	default:
		return "planned"
	}
}

// cell escapes text for a Markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}

func credits(v *float64, raw *string) string {
	if v != nil {
		return formatNumber(*v)
	}
	return cell(deref(raw))
}

func price(v *float64, raw *string) string {
	if v != nil {
		return fmt.Sprintf("$%.2f", *v)
	}
	return cell(deref(raw))
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}
