package recommend

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/TobiSchelling/CEUCrawler/internal/database"
)

// Warning codes attached to generated plans.
const (
	WarnCreditsShort     = "credits_short"
	WarnOverBudget       = "over_budget"
	WarnTightDeadline    = "tight_deadline"
	WarnPastRegistration = "past_registration_deadline"
	WarnNoCandidates     = "no_candidates"
)

// PlanRequest holds the constraints of a plan. Zero values fall back to the
// user's compliance gap, compliance deadline and budget.
type PlanRequest struct {
	Name                 string
	TargetCredits        float64
	TargetDeadline       time.Time
	MaxBudget            *float64
	PreferredFields      []database.Field
	PreferredCourseTypes []database.CourseType
	ExcludeCourseIDs     []string
}

// PlanItem is one scheduled course.
type PlanItem struct {
	Course        database.Course
	Score         float64
	Reasons       []Reason
	ScheduledDate time.Time
	Priority      int
}

// Warning explains why a plan falls short of its request.
type Warning struct {
	Code    string
	Message string
}

// GeneratedPlan is a best-effort plan. Infeasible requests produce warnings
// rather than errors.
type GeneratedPlan struct {
	UserID         string
	Request        PlanRequest
	Items          []PlanItem
	TotalCredits   float64
	TotalCost      float64
	TotalHours     float64
	CoursesPerWeek int
	DaysAvailable  int
	Warnings       []Warning
}

// HasWarning reports whether the plan carries the given warning code.
func (p *GeneratedPlan) HasWarning(code string) bool {
	return slices.ContainsFunc(p.Warnings, func(w Warning) bool { return w.Code == code })
}

func (p *GeneratedPlan) warn(code, format string, args ...any) {
	p.Warnings = append(p.Warnings, Warning{Code: code, Message: fmt.Sprintf(format, args...)})
}

// GeneratePlan picks recommended courses in score order until the credit
// target is met, never exceeding the budget, and spaces them evenly up to
// the deadline. The error is only for storage failures.
func (e *Engine) GeneratePlan(ctx context.Context, userID string, req PlanRequest) (*GeneratedPlan, error) {
	now := e.now()
	if err := e.fillDefaults(ctx, userID, &req, now); err != nil {
		return nil, err
	}

	recs, err := e.Recommend(ctx, userID, e.pool)
	if err != nil {
		return nil, err
	}
	plan := Build(userID, req, recs, now)
	e.logger.Info("plan generated",
		"user", userID,
		"courses", len(plan.Items),
		"credits", plan.TotalCredits,
		"cost", plan.TotalCost,
		"warnings", len(plan.Warnings))
	return plan, nil
}

func (e *Engine) fillDefaults(ctx context.Context, userID string, req *PlanRequest, now time.Time) error {
	if req.TargetCredits > 0 && !req.TargetDeadline.IsZero() && req.MaxBudget != nil {
		return nil
	}
	prefs, err := e.db.GetOrCreatePreferences(userID)
	if err != nil {
		return fmt.Errorf("loading preferences: %w", err)
	}
	if req.MaxBudget == nil {
		req.MaxBudget = prefs.BudgetMax
	}
	if req.TargetDeadline.IsZero() {
		if prefs.ComplianceDeadline != nil {
			req.TargetDeadline = *prefs.ComplianceDeadline
		} else {
			_, end := calendarYear(now)
			req.TargetDeadline = end.AddDate(0, 0, -1)
		}
	}
	if req.TargetCredits <= 0 {
		u, err := e.UserContext(ctx, userID)
		if err != nil {
			return err
		}
		req.TargetCredits = u.CreditsNeeded
	}
	return nil
}

// Build selects and schedules courses from ranked recommendations.
func Build(userID string, req PlanRequest, recs []Recommendation, now time.Time) *GeneratedPlan {
	plan := &GeneratedPlan{UserID: userID, Request: req}

	candidates := filterCandidates(recs, req)
	if len(candidates) == 0 {
		plan.warn(WarnNoCandidates, "No courses match the requested fields and course types")
	}

	budgetSkipped := false
	for _, rec := range candidates {
		if plan.TotalCredits >= req.TargetCredits {
			break
		}
		price := rec.Course.PriceValue()
		if req.MaxBudget != nil && plan.TotalCost+price > *req.MaxBudget {
			budgetSkipped = true
			continue
		}
		plan.Items = append(plan.Items, PlanItem{Course: rec.Course, Score: rec.Score, Reasons: rec.Reasons})
		plan.TotalCredits += rec.Course.CreditValue()
		plan.TotalCost += price
		plan.TotalHours += courseHours(&rec.Course)
	}

	schedule(plan, req.TargetDeadline, now)

	if plan.TotalCredits < req.TargetCredits {
		plan.warn(WarnCreditsShort, "Plan covers %.1f of %.1f credits", plan.TotalCredits, req.TargetCredits)
		if budgetSkipped {
			plan.warn(WarnOverBudget, "Reaching %.1f credits would exceed the $%.2f budget", req.TargetCredits, *req.MaxBudget)
		}
	}
	if n := len(plan.Items); n > 0 && plan.DaysAvailable < 2*n {
		plan.warn(WarnTightDeadline, "%d courses in %d days leaves little time per course", n, plan.DaysAvailable)
	}
	for _, item := range plan.Items {
		deadline := item.Course.RegistrationDeadline
		if deadline != nil && item.ScheduledDate.After(endOfDay(*deadline)) {
			plan.warn(WarnPastRegistration, "%q is scheduled for %s but registration closes %s",
				item.Course.Title, item.ScheduledDate.Format(time.DateOnly), deadline.Format(time.DateOnly))
		}
	}
	return plan
}

func filterCandidates(recs []Recommendation, req PlanRequest) []Recommendation {
	var out []Recommendation
	for _, rec := range recs {
		if len(req.PreferredFields) > 0 && !slices.Contains(req.PreferredFields, rec.Course.Field) {
			continue
		}
		if len(req.PreferredCourseTypes) > 0 && !slices.Contains(req.PreferredCourseTypes, rec.Course.CourseType) {
			continue
		}
		if slices.Contains(req.ExcludeCourseIDs, rec.Course.ID) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// schedule spaces the items evenly from now, fitting as many per week as the
// time to the deadline requires.
func schedule(plan *GeneratedPlan, deadline, now time.Time) {
	plan.DaysAvailable = int(math.Floor(deadline.Sub(now).Hours() / 24))
	n := len(plan.Items)
	if n == 0 {
		plan.CoursesPerWeek = 0
		return
	}

	weeks := float64(plan.DaysAvailable) / 7
	perWeek := n
	if weeks > 0 {
		perWeek = max(1, int(math.Ceil(float64(n)/weeks)))
	}
	plan.CoursesPerWeek = perWeek

	spacing := 7 / float64(perWeek) * 24 * float64(time.Hour)
	for i := range plan.Items {
		plan.Items[i].Priority = i + 1
		plan.Items[i].ScheduledDate = now.Add(time.Duration(float64(i) * spacing))
	}
}

// courseHours uses the parsed duration when known and one hour per credit
// otherwise.
func courseHours(c *database.Course) float64 {
	if c.DurationMinutes != nil {
		return float64(*c.DurationMinutes) / 60
	}
	return c.CreditValue()
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, t.Location())
}

// SavePlan stores a generated plan. Each course gets a planned tracking
// record unless the user already tracks it.
func (e *Engine) SavePlan(_ context.Context, plan *GeneratedPlan, name string) (*database.StudyPlan, error) {
	if name == "" {
		name = plan.Request.Name
	}
	if name == "" {
		name = fmt.Sprintf("Plan %s", e.now().Format(time.DateOnly))
	}
	sp := &database.StudyPlan{
		UserID:         plan.UserID,
		Name:           name,
		TargetCredits:  plan.Request.TargetCredits,
		TargetDeadline: plan.Request.TargetDeadline,
		MaxBudget:      plan.Request.MaxBudget,
	}
	items := make([]database.PlanItemInput, 0, len(plan.Items))
	for _, item := range plan.Items {
		items = append(items, database.PlanItemInput{
			CourseID:      item.Course.ID,
			Priority:      item.Priority,
			ScheduledDate: item.ScheduledDate,
		})
	}
	if err := e.db.SavePlan(sp, items); err != nil {
		return nil, fmt.Errorf("saving plan: %w", err)
	}
	e.logger.Info("plan saved", "plan", sp.ID, "user", sp.UserID, "items", len(items))
	return sp, nil
}

// Progress is a saved plan with item status read through tracking.
type Progress struct {
	Plan             database.StudyPlan
	Items            []database.StudyPlanItem
	Planned          int
	InProgress       int
	Completed        int
	CreditsPlanned   float64
	CreditsCompleted float64
}

// Percent returns the share of items completed, 0 to 100.
func (p *Progress) Percent() float64 {
	if len(p.Items) == 0 {
		return 0
	}
	return float64(p.Completed) / float64(len(p.Items)) * 100
}

// PlanProgress loads a saved plan and tallies its items by tracking status.
func (e *Engine) PlanProgress(_ context.Context, planID string) (*Progress, error) {
	sp, err := e.db.GetPlan(planID)
	if err != nil {
		return nil, err
	}
	if sp == nil {
		return nil, fmt.Errorf("plan %s: %w", planID, database.ErrNotFound)
	}
	items, err := e.db.PlanItems(planID)
	if err != nil {
		return nil, fmt.Errorf("loading plan items: %w", err)
	}

	p := &Progress{Plan: *sp, Items: items}
	for _, item := range items {
		credits := 0.0
		if item.Credits != nil {
			credits = *item.Credits
		}
		p.CreditsPlanned += credits
		switch item.Status {
		case database.TrackingCompleted:
			p.Completed++
			p.CreditsCompleted += credits
		case database.TrackingInProgress:
			p.InProgress++
		default:
			p.Planned++
		}
	}
	return p, nil
}
