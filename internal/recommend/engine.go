// Package recommend scores crawled courses for a user and builds study plans
// from the best of them.
package recommend

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/TobiSchelling/CEUCrawler/internal/database"
)

// Reason names one score adjustment.
type Reason string

const (
	ReasonCreditsNeeded     Reason = "credits_needed"
	ReasonMatchesField      Reason = "matches_field"
	ReasonMatchesProfession Reason = "matches_profession"
	ReasonWithinBudget      Reason = "within_budget"
	ReasonFitsBudget        Reason = "fits_budget"
	ReasonPreferredType     Reason = "preferred_type"
	ReasonUpcomingLive      Reason = "upcoming_live"
)

// Score weights. Credit need and field affinity dominate budget and timing.
const (
	baseScore          = 50
	creditsNeededBonus = 20
	fieldBonus         = 15
	professionBonus    = 10
	halfBudgetBonus    = 10
	budgetBonus        = 5
	typeBonus          = 10
	upcomingLiveBonus  = 5
	upcomingWindow     = 30 * 24 * time.Hour
)

const defaultCandidatePool = 50

// Recommendation is a scored course. It is computed per request and never
// stored.
type Recommendation struct {
	Course  database.Course
	Score   float64
	Reasons []Reason
}

// UserContext is everything scoring needs to know about a user.
type UserContext struct {
	Profession      database.Field
	PreferredFields []database.Field
	PreferredTypes  []database.CourseType
	BudgetMax       *float64
	CreditsNeeded   float64 // compliance gap for the current year
}

// Engine recommends courses and generates plans from the course store.
type Engine struct {
	db     *database.DB
	pool   int
	now    func() time.Time
	logger *slog.Logger
}

// New creates an engine. candidatePool is the number of recommendations a
// plan is built from; non-positive means 50.
func New(db *database.DB, candidatePool int, logger *slog.Logger) *Engine {
	if candidatePool <= 0 {
		candidatePool = defaultCandidatePool
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{db: db, pool: candidatePool, now: time.Now, logger: logger.With("component", "recommend")}
}

// Score rates one course for a user on a 0 to 100 scale and names the
// adjustments that applied, in the order they were applied.
func Score(c *database.Course, u UserContext, now time.Time) (float64, []Reason) {
	score := float64(baseScore)
	var reasons []Reason

	if u.CreditsNeeded > 0 && c.CreditValue() > 0 {
		score += creditsNeededBonus * math.Min(c.CreditValue()/u.CreditsNeeded, 1)
		reasons = append(reasons, ReasonCreditsNeeded)
	}
	if slices.Contains(u.PreferredFields, c.Field) {
		score += fieldBonus
		reasons = append(reasons, ReasonMatchesField)
	}
	if u.Profession != "" && u.Profession != database.FieldOther && c.Field == u.Profession {
		score += professionBonus
		reasons = append(reasons, ReasonMatchesProfession)
	}
	if u.BudgetMax != nil && c.Price != nil {
		switch {
		case *c.Price <= *u.BudgetMax/2:
			score += halfBudgetBonus
			reasons = append(reasons, ReasonWithinBudget)
		case *c.Price <= *u.BudgetMax:
			score += budgetBonus
			reasons = append(reasons, ReasonFitsBudget)
		}
	}
	if slices.Contains(u.PreferredTypes, c.CourseType) {
		score += typeBonus
		reasons = append(reasons, ReasonPreferredType)
	}
	if c.CourseType.IsLive() && c.StartDate != nil {
		if until := c.StartDate.Sub(now); until >= -24*time.Hour && until <= upcomingWindow {
			score += upcomingLiveBonus
			reasons = append(reasons, ReasonUpcomingLive)
		}
	}

	return math.Max(0, math.Min(100, score)), reasons
}

// Rank scores every course and returns them best first. Equal scores keep
// their input order. A positive limit truncates the result.
func Rank(courses []database.Course, u UserContext, now time.Time, limit int) []Recommendation {
	recs := make([]Recommendation, 0, len(courses))
	for i := range courses {
		score, reasons := Score(&courses[i], u, now)
		recs = append(recs, Recommendation{Course: courses[i], Score: score, Reasons: reasons})
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Score > recs[j].Score })
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs
}

// Recommend scores the crawled courses the user is not tracking yet.
func (e *Engine) Recommend(ctx context.Context, userID string, limit int) ([]Recommendation, error) {
	u, err := e.UserContext(ctx, userID)
	if err != nil {
		return nil, err
	}
	courses, err := e.db.UntrackedCrawledCourses(userID)
	if err != nil {
		return nil, fmt.Errorf("loading candidate courses: %w", err)
	}
	recs := Rank(courses, u, e.now(), limit)
	e.logger.Debug("recommendations ranked", "user", userID, "candidates", len(courses), "returned", len(recs))
	return recs, nil
}

// UserContext loads the profile and preferences scoring uses, creating empty
// preferences on first use. A user without a profile has no compliance gap.
func (e *Engine) UserContext(_ context.Context, userID string) (UserContext, error) {
	var u UserContext
	prefs, err := e.db.GetOrCreatePreferences(userID)
	if err != nil {
		return u, fmt.Errorf("loading preferences: %w", err)
	}
	u.PreferredFields = prefs.PreferredFields
	u.PreferredTypes = prefs.PreferredCourseTypes
	u.BudgetMax = prefs.BudgetMax

	profile, err := e.db.GetUserProfile(userID)
	if err != nil {
		return u, fmt.Errorf("loading profile: %w", err)
	}
	if profile == nil {
		return u, nil
	}
	u.Profession = profile.Profession
	gap, err := e.ComplianceGap(userID, profile.RequiredAnnualCredits)
	if err != nil {
		return u, err
	}
	u.CreditsNeeded = gap
	return u, nil
}

// ComplianceGap returns the credits still required this calendar year. A
// course counts toward the year of its completion date.
func (e *Engine) ComplianceGap(userID string, required float64) (float64, error) {
	from, to := calendarYear(e.now())
	earned, err := e.db.CompletedCredits(userID, from, to)
	if err != nil {
		return 0, fmt.Errorf("summing completed credits: %w", err)
	}
	return math.Max(0, required-earned), nil
}

func calendarYear(t time.Time) (time.Time, time.Time) {
	from := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(1, 0, 0)
}
