package server

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/TobiSchelling/CEUCrawler/internal/database"
	"github.com/TobiSchelling/CEUCrawler/internal/recommend"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr[T any](v T) *T { return &v }

func newTestServer(t *testing.T, db *database.DB) *Server {
	t.Helper()
	srv, err := New(db, recommend.New(db, 0, nil), nil)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func addCourse(t *testing.T, db *database.DB, c *database.Course) {
	t.Helper()
	if _, err := db.UpsertCourse(c); err != nil {
		t.Fatalf("upsert course: %v", err)
	}
}

func TestIndexRoute(t *testing.T) {
	db := openTestDB(t)
	msg := "fetch: HTTP 500 Internal Server Error"
	db.UpsertCapture(&database.RawCapture{
		URL: "https://example.com/store/detail/3", Provider: "pesi",
		PageType: database.PageCourseDetail, Status: database.StatusFailed, ErrorMessage: &msg, HTTPStatus: 500,
	})
	db.UpsertUserProfile(&database.UserProfile{UserID: "nurse1", Profession: database.FieldNursing, RequiredAnnualCredits: 24})

	rec := get(t, newTestServer(t, db), "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"Dashboard", "pesi", msg, `href="/users/nurse1"`} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in response body", want)
		}
	}
}

func TestUnknownRoute(t *testing.T) {
	if rec := get(t, newTestServer(t, openTestDB(t)), "/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestCoursesRoute(t *testing.T) {
	db := openTestDB(t)
	addCourse(t, db, &database.Course{Title: "Ethics 101", URL: "https://a.example.com/1", Provider: "pesi", Credits: ptr(6.0), Price: ptr(199.99)})
	addCourse(t, db, &database.Course{Title: "Wound care", URL: "https://b.example.com/1", Provider: "nurse-ce", Field: database.FieldNursing})

	srv := newTestServer(t, db)
	body := get(t, srv, "/courses").Body.String()
	if !strings.Contains(body, "Ethics 101") || !strings.Contains(body, "Wound care") {
		t.Error("expected both courses listed")
	}
	if !strings.Contains(body, "$199.99") {
		t.Error("expected formatted price")
	}

	body = get(t, srv, "/courses?provider=nurse-ce").Body.String()
	if strings.Contains(body, "Ethics 101") || !strings.Contains(body, "Wound care") {
		t.Error("expected the provider filter applied")
	}
}

func TestCourseRoute(t *testing.T) {
	db := openTestDB(t)
	c := &database.Course{
		Title: "Ethics 101", URL: "https://a.example.com/1", Provider: "pesi",
		Description: ptr("Covers **boundaries** and documentation."),
		Instructors: []string{"Jane Smith"},
	}
	addCourse(t, db, c)

	srv := newTestServer(t, db)
	rec := get(t, srv, "/courses/"+c.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<strong>boundaries</strong>") {
		t.Error("expected the description rendered from markdown")
	}
	if !strings.Contains(body, "Jane Smith") {
		t.Error("expected instructors listed")
	}

	if rec := get(t, srv, "/courses/missing"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for a missing course, got %d", rec.Code)
	}
}

func TestUserRoute(t *testing.T) {
	db := openTestDB(t)
	db.UpsertUserProfile(&database.UserProfile{UserID: "nurse1", Profession: database.FieldNursing, RequiredAnnualCredits: 10})
	addCourse(t, db, &database.Course{Title: "Wound care", URL: "https://b.example.com/1", Provider: "nurse-ce", Field: database.FieldNursing, Credits: ptr(5.0)})

	srv := newTestServer(t, db)
	rec := get(t, srv, "/users/nurse1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Wound care") || !strings.Contains(body, "credits_needed") {
		t.Error("expected the course recommended with its reasons")
	}

	if rec := get(t, srv, "/users/ghost"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown user, got %d", rec.Code)
	}
}

func TestPlanRoute(t *testing.T) {
	db := openTestDB(t)
	c := &database.Course{Title: "Wound care", URL: "https://b.example.com/1", Provider: "nurse-ce", Credits: ptr(5.0)}
	addCourse(t, db, c)
	plan := &database.StudyPlan{UserID: "nurse1", Name: "Spring", TargetCredits: 5, TargetDeadline: time.Now().AddDate(0, 1, 0)}
	if err := db.SavePlan(plan, []database.PlanItemInput{{CourseID: c.ID, Priority: 1, ScheduledDate: time.Now()}}); err != nil {
		t.Fatalf("save plan: %v", err)
	}

	srv := newTestServer(t, db)
	rec := get(t, srv, "/plans/"+plan.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<table>") || !strings.Contains(body, "Wound care") {
		t.Error("expected the plan table rendered")
	}

	if rec := get(t, srv, "/plans/missing"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for a missing plan, got %d", rec.Code)
	}
}

func TestStaticFiles(t *testing.T) {
	rec := get(t, newTestServer(t, openTestDB(t)), "/static/style.css")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
