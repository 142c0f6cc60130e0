package recommend

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/TobiSchelling/CEUCrawler/internal/database"
)

func recsFrom(courses ...database.Course) []Recommendation {
	recs := make([]Recommendation, len(courses))
	for i, c := range courses {
		if c.ID == "" {
			c.ID = fmt.Sprintf("c%d", i)
		}
		recs[i] = Recommendation{Course: c, Score: float64(90 - i)}
	}
	return recs
}

func TestBuildRespectsBudget(t *testing.T) {
	recs := recsFrom(
		database.Course{Title: "A", Credits: f(5), Price: f(60)},
		database.Course{Title: "B", Credits: f(5), Price: f(50)},
		database.Course{Title: "C", Credits: f(5), Price: f(40)},
		database.Course{Title: "D", Credits: f(5), Price: f(10)},
	)
	req := PlanRequest{TargetCredits: 20, TargetDeadline: fixedNow.AddDate(0, 3, 0), MaxBudget: f(100)}

	plan := Build("u1", req, recs, fixedNow)
	if plan.TotalCost > 100 {
		t.Fatalf("plan cost %v exceeds budget", plan.TotalCost)
	}
	if len(plan.Items) != 2 || plan.Items[0].Course.Title != "A" || plan.Items[1].Course.Title != "C" {
		t.Errorf("expected A and C selected greedily, got %+v", plan.Items)
	}
	if plan.TotalCredits != 10 {
		t.Errorf("expected 10 credits, got %v", plan.TotalCredits)
	}
	if !plan.HasWarning(WarnCreditsShort) || !plan.HasWarning(WarnOverBudget) {
		t.Errorf("expected credits_short and over_budget, got %+v", plan.Warnings)
	}
}

func TestBuildStopsAtTarget(t *testing.T) {
	recs := recsFrom(
		database.Course{Title: "A", Credits: f(6)},
		database.Course{Title: "B", Credits: f(6)},
		database.Course{Title: "C", Credits: f(6)},
	)
	plan := Build("u1", PlanRequest{TargetCredits: 10, TargetDeadline: fixedNow.AddDate(0, 2, 0)}, recs, fixedNow)

	if len(plan.Items) != 2 || plan.TotalCredits != 12 {
		t.Errorf("expected two courses and 12 credits, got %d and %v", len(plan.Items), plan.TotalCredits)
	}
	if len(plan.Warnings) != 0 {
		t.Errorf("expected no warnings, got %+v", plan.Warnings)
	}
	if plan.TotalHours != 12 {
		t.Errorf("expected one hour per credit without durations, got %v", plan.TotalHours)
	}
}

func TestBuildSchedule(t *testing.T) {
	var courses []database.Course
	for range 4 {
		courses = append(courses, database.Course{Credits: f(1)})
	}
	plan := Build("u1", PlanRequest{TargetCredits: 4, TargetDeadline: fixedNow.AddDate(0, 0, 14)}, recsFrom(courses...), fixedNow)

	if plan.DaysAvailable != 14 || plan.CoursesPerWeek != 2 {
		t.Fatalf("expected 14 days at 2 per week, got %d and %d", plan.DaysAvailable, plan.CoursesPerWeek)
	}
	for i, item := range plan.Items {
		want := fixedNow.Add(time.Duration(i) * 84 * time.Hour)
		if !item.ScheduledDate.Equal(want) {
			t.Errorf("item %d: expected %v, got %v", i, want, item.ScheduledDate)
		}
		if item.Priority != i+1 {
			t.Errorf("item %d: expected priority %d, got %d", i, i+1, item.Priority)
		}
	}
	if plan.HasWarning(WarnTightDeadline) {
		t.Error("14 days for 4 courses is not tight")
	}
}

func TestBuildTightDeadline(t *testing.T) {
	var courses []database.Course
	for range 5 {
		courses = append(courses, database.Course{Credits: f(1)})
	}
	plan := Build("u1", PlanRequest{TargetCredits: 5, TargetDeadline: fixedNow.AddDate(0, 0, 7)}, recsFrom(courses...), fixedNow)

	if !plan.HasWarning(WarnTightDeadline) {
		t.Errorf("expected tight_deadline, got %+v", plan.Warnings)
	}
	if plan.CoursesPerWeek != 5 {
		t.Errorf("expected 5 per week, got %d", plan.CoursesPerWeek)
	}
}

func TestBuildFlagsPastRegistrationDeadline(t *testing.T) {
	closes := fixedNow.AddDate(0, 0, 2)
	recs := recsFrom(
		database.Course{Title: "First", Credits: f(1)},
		database.Course{Title: "Second", Credits: f(1)},
		database.Course{Title: "Late", Credits: f(1), RegistrationDeadline: &closes},
	)
	plan := Build("u1", PlanRequest{TargetCredits: 3, TargetDeadline: fixedNow.AddDate(0, 0, 21)}, recs, fixedNow)

	if len(plan.Items) != 3 {
		t.Fatalf("expected the course kept in the plan, got %d items", len(plan.Items))
	}
	if !plan.HasWarning(WarnPastRegistration) {
		t.Errorf("expected past_registration_deadline, got %+v", plan.Warnings)
	}
}

func TestBuildFiltersAndEmptyPool(t *testing.T) {
	recs := recsFrom(
		database.Course{ID: "x", Field: database.FieldNursing, CourseType: database.TypeOnDemand, Credits: f(2)},
		database.Course{ID: "y", Field: database.FieldNursing, CourseType: database.TypeLiveWebinar, Credits: f(2)},
		database.Course{ID: "z", Field: database.FieldCounseling, CourseType: database.TypeOnDemand, Credits: f(2)},
	)
	req := PlanRequest{
		TargetCredits:        10,
		TargetDeadline:       fixedNow.AddDate(0, 1, 0),
		PreferredFields:      []database.Field{database.FieldNursing},
		PreferredCourseTypes: []database.CourseType{database.TypeOnDemand},
	}
	plan := Build("u1", req, recs, fixedNow)
	if len(plan.Items) != 1 || plan.Items[0].Course.ID != "x" {
		t.Errorf("expected only x, got %+v", plan.Items)
	}

	req.ExcludeCourseIDs = []string{"x"}
	plan = Build("u1", req, recs, fixedNow)
	if len(plan.Items) != 0 || !plan.HasWarning(WarnNoCandidates) || !plan.HasWarning(WarnCreditsShort) {
		t.Errorf("expected an empty plan with warnings, got %+v", plan)
	}
}

func TestGenerateSaveAndTrackPlan(t *testing.T) {
	db := openTestDB(t)
	e := newEngine(db)
	ctx := context.Background()

	if err := db.UpsertUserProfile(&database.UserProfile{UserID: "u1", Profession: database.FieldNursing, RequiredAnnualCredits: 6}); err != nil {
		t.Fatalf("profile: %v", err)
	}
	deadline := fixedNow.AddDate(0, 2, 0)
	if err := db.SavePreferences(&database.UserPreferences{UserID: "u1", BudgetMax: f(100), ComplianceDeadline: &deadline}); err != nil {
		t.Fatalf("prefs: %v", err)
	}
	a := addCourse(t, db, database.Course{Title: "Pain management", Field: database.FieldNursing, Credits: f(3), Price: f(30)})
	b := addCourse(t, db, database.Course{Title: "Charting", Field: database.FieldNursing, Credits: f(3), Price: f(40)})
	addCourse(t, db, database.Course{Title: "Retreat", Field: database.FieldNursing, Credits: f(20), Price: f(900)})

	plan, err := e.GeneratePlan(ctx, "u1", PlanRequest{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if plan.Request.TargetCredits != 6 {
		t.Errorf("expected the compliance gap as target, got %v", plan.Request.TargetCredits)
	}
	if plan.Request.MaxBudget == nil || *plan.Request.MaxBudget != 100 {
		t.Errorf("expected the preference budget, got %v", plan.Request.MaxBudget)
	}
	if plan.TotalCost > 100 || plan.TotalCredits != 6 || len(plan.Items) != 2 {
		t.Fatalf("unexpected plan %+v", plan)
	}

	sp, err := e.SavePlan(ctx, plan, "Spring")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := db.CompleteTracking("u1", a.ID, a.Credits, fixedNow); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := db.StartTracking("u1", b.ID, 40); err != nil {
		t.Fatalf("start: %v", err)
	}

	progress, err := e.PlanProgress(ctx, sp.ID)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if progress.Plan.Name != "Spring" || len(progress.Items) != 2 {
		t.Fatalf("unexpected progress %+v", progress)
	}
	if progress.Completed != 1 || progress.InProgress != 1 || progress.Planned != 0 {
		t.Errorf("expected status read through tracking, got %+v", progress)
	}
	if progress.CreditsCompleted != 3 || progress.CreditsPlanned != 6 {
		t.Errorf("unexpected credits %v of %v", progress.CreditsCompleted, progress.CreditsPlanned)
	}
	if progress.Percent() != 50 {
		t.Errorf("expected 50%%, got %v", progress.Percent())
	}

	// Planned courses are tracked now and drop out of recommendations.
	recs, _ := e.Recommend(ctx, "u1", 10)
	if len(recs) != 1 {
		t.Errorf("expected only the untracked course left, got %d", len(recs))
	}
}

func TestPlanProgressUnknownPlan(t *testing.T) {
	_, err := newEngine(openTestDB(t)).PlanProgress(context.Background(), "missing")
	if !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
