package database

import "time"

// PageType classifies a crawled page.
type PageType string

const (
	PageListing      PageType = "listing"
	PageCourseDetail PageType = "course_detail"
	PageUnknown      PageType = "unknown"
)

// CaptureStatus is the processing state of a raw capture.
type CaptureStatus string

const (
	StatusPending    CaptureStatus = "pending"
	StatusProcessing CaptureStatus = "processing"
	StatusSuccess    CaptureStatus = "success"
	StatusFailed     CaptureStatus = "failed"
	StatusSkipped    CaptureStatus = "skipped"
)

// RawCapture is the HTML of one crawled page plus its processing state.
type RawCapture struct {
	ID           string
	URL          string
	Provider     string
	HTML         string
	PageType     PageType
	Status       CaptureStatus
	ErrorMessage *string
	HTTPStatus   int
	SourceURL    *string
	CourseID     *string
	CrawledAt    time.Time
	ProcessedAt  *time.Time
}

// Field is a professional field a course or user belongs to.
type Field string

const (
	FieldMentalHealth Field = "mental_health"
	FieldNursing      Field = "nursing"
	FieldPsychology   Field = "psychology"
	FieldCounseling   Field = "counseling"
	FieldSocialWork   Field = "social_work"
	FieldOther        Field = "other"
)

// Fields lists every professional field, "other" last.
var Fields = []Field{FieldMentalHealth, FieldNursing, FieldPsychology, FieldCounseling, FieldSocialWork, FieldOther}

// ParseField returns the Field named s, or false if s is not a known field.
func ParseField(s string) (Field, bool) {
	for _, f := range Fields {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}

// CourseType is the delivery format of a course.
type CourseType string

const (
	TypeLiveWebinar CourseType = "live_webinar"
	TypeInPerson    CourseType = "in_person"
	TypeOnDemand    CourseType = "on_demand"
	TypeSelfPaced   CourseType = "self_paced"
	TypeUnknown     CourseType = "unknown"
)

// CourseTypes lists the known delivery formats.
var CourseTypes = []CourseType{TypeLiveWebinar, TypeInPerson, TypeOnDemand, TypeSelfPaced}

// ParseCourseType returns the CourseType named s, or false if unknown.
func ParseCourseType(s string) (CourseType, bool) {
	for _, ct := range CourseTypes {
		if string(ct) == s {
			return ct, true
		}
	}
	return "", false
}

// IsLive reports whether the course happens at a scheduled time.
func (ct CourseType) IsLive() bool {
	return ct == TypeLiveWebinar || ct == TypeInPerson
}

// Origin records how a course entered the catalog.
type Origin string

const (
	OriginCrawled Origin = "crawled"
	OriginManual  Origin = "manual"
)

// Course is a structured course record.
type Course struct {
	ID                   string
	Provider             string
	Title                string
	URL                  string
	Description          *string
	Instructors          []string
	Price                *float64
	PriceString          *string
	OriginalPrice        *float64
	Credits              *float64
	CreditsString        *string
	CreditType           *string
	DurationMinutes      *int
	DurationString       *string
	Category             *string
	Field                Field
	CourseType           CourseType
	StartDate            *time.Time
	EndDate              *time.Time
	RegistrationDeadline *time.Time
	Accreditations       []string
	Origin               Origin
	ScrapedAt            time.Time
	UpdatedAt            time.Time
}

// CreditValue returns the course credits, or 0 when unknown.
func (c *Course) CreditValue() float64 {
	if c.Credits == nil {
		return 0
	}
	return *c.Credits
}

// PriceValue returns the course price, or 0 when unknown.
func (c *Course) PriceValue() float64 {
	if c.Price == nil {
		return 0
	}
	return *c.Price
}

// UserProfile holds a user's licensing requirements.
type UserProfile struct {
	UserID                string
	Profession            Field
	RequiredAnnualCredits float64
	CreatedAt             time.Time
}

// UserPreferences holds planner constraints. All fields are optional.
type UserPreferences struct {
	UserID                string
	BudgetMin             *float64
	BudgetMax             *float64
	PreferredFields       []Field
	PreferredCourseTypes  []CourseType
	AvailableDays         []string
	AvailableHoursPerWeek *float64
	ComplianceDeadline    *time.Time
	UpdatedAt             time.Time
}

// TrackingStatus is a user's progress state on a course.
type TrackingStatus string

const (
	TrackingPlanned    TrackingStatus = "planned"
	TrackingInProgress TrackingStatus = "in_progress"
	TrackingCompleted  TrackingStatus = "completed"
)

// Tracking links a user to a course they plan to take, are taking, or took.
type Tracking struct {
	ID            string
	UserID        string
	CourseID      string
	Status        TrackingStatus
	Progress      int
	CreditsEarned *float64
	CompletedDate *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// Populated by list queries.
	CourseTitle string
}

// StudyPlan is a saved schedule of courses.
type StudyPlan struct {
	ID             string
	UserID         string
	Name           string
	TargetCredits  float64
	TargetDeadline time.Time
	MaxBudget      *float64
	CreatedAt      time.Time
}

// StudyPlanItem is one scheduled course in a plan. Status and course fields
// are read through the tracking record.
type StudyPlanItem struct {
	ID            string
	PlanID        string
	TrackingID    string
	Priority      int
	ScheduledDate time.Time

	CourseID    string
	CourseTitle string
	CourseURL   string
	Credits     *float64
	Price       *float64
	Status      TrackingStatus
}

// PlanItemInput describes an item to persist with SavePlan.
type PlanItemInput struct {
	CourseID      string
	Priority      int
	ScheduledDate time.Time
}

// CaptureStats summarizes the capture table.
type CaptureStats struct {
	Total          int
	Courses        int
	ByStatus       map[CaptureStatus]int
	ByProvider     map[string]int
	ByPageType     map[PageType]int
	RecentFailures []RawCapture
}
