package process

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/TobiSchelling/CEUCrawler/internal/database"
	"github.com/TobiSchelling/CEUCrawler/internal/extract"
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

func addCapture(t *testing.T, db *database.DB, url, html string, pt database.PageType) *database.RawCapture {
	t.Helper()
	c := &database.RawCapture{
		URL:        url,
		Provider:   "pesi",
		HTML:       html,
		PageType:   pt,
		Status:     database.StatusPending,
		HTTPStatus: 200,
	}
	if _, err := db.UpsertCapture(c); err != nil {
		t.Fatalf("upsert capture: %v", err)
	}
	stored, err := db.GetCaptureByURL(url)
	if err != nil || stored == nil {
		t.Fatalf("reload capture: %v", err)
	}
	return stored
}

const ethicsPage = "<h1>Ethics 101</h1><p>6.0 CE Hours $199.99 On-Demand</p>"

func TestProcessBasicCourse(t *testing.T) {
	db := openTestDB(t)
	capture := addCapture(t, db, "https://example.com/course/1", ethicsPage, database.PageCourseDetail)

	stats, err := New(db, nil, nil).Process(context.Background(), 10, "")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if stats.Processed != 1 || stats.Created != 1 || stats.Failed != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}

	course, err := db.GetCourseByURL("https://example.com/course/1")
	if err != nil || course == nil {
		t.Fatalf("expected stored course, got %v, %v", course, err)
	}
	if course.Title != "Ethics 101" {
		t.Errorf("expected title 'Ethics 101', got %q", course.Title)
	}
	if course.Credits == nil || *course.Credits != 6.0 {
		t.Errorf("expected 6.0 credits, got %v", course.Credits)
	}
	if course.Price == nil || *course.Price != 199.99 {
		t.Errorf("expected price 199.99, got %v", course.Price)
	}
	if course.CourseType != database.TypeOnDemand {
		t.Errorf("expected on_demand, got %s", course.CourseType)
	}

	got, _ := db.GetCapture(capture.ID)
	if got.Status != database.StatusSuccess {
		t.Errorf("expected success, got %s", got.Status)
	}
	if got.CourseID == nil || *got.CourseID != course.ID {
		t.Errorf("expected capture linked to course %s, got %v", course.ID, got.CourseID)
	}
}

func TestProcessPartialExtractionIsSuccess(t *testing.T) {
	db := openTestDB(t)
	capture := addCapture(t, db, "https://example.com/course/2",
		"<h1>Ethics 101</h1><p>6.0 CE Hours. Contact us for pricing. On-Demand</p>", database.PageCourseDetail)

	if _, err := New(db, nil, nil).Process(context.Background(), 10, ""); err != nil {
		t.Fatalf("process: %v", err)
	}
	course, _ := db.GetCourseByURL(capture.URL)
	if course == nil {
		t.Fatal("expected stored course")
	}
	if course.Price != nil {
		t.Errorf("expected no price, got %v", *course.Price)
	}
	if course.PriceString == nil || *course.PriceString != "Contact us for pricing" {
		t.Errorf("expected price string preserved, got %v", course.PriceString)
	}
	if got, _ := db.GetCapture(capture.ID); got.Status != database.StatusSuccess {
		t.Errorf("expected success, got %s", got.Status)
	}
}

func TestProcessSkipsNonDetailPages(t *testing.T) {
	db := openTestDB(t)
	listing := addCapture(t, db, "https://example.com/", "<h1>Catalog</h1>", database.PageListing)
	unknown := addCapture(t, db, "https://example.com/about", "<h1>About</h1>", database.PageUnknown)

	stats, err := New(db, nil, nil).Process(context.Background(), 10, "")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if stats.Skipped != 2 || stats.Processed != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
	for _, id := range []string{listing.ID, unknown.ID} {
		if got, _ := db.GetCapture(id); got.Status != database.StatusSkipped {
			t.Errorf("expected %s skipped, got %s", id, got.Status)
		}
	}
	if n, _ := db.CountCourses(); n != 0 {
		t.Errorf("expected no courses, got %d", n)
	}
}

func TestProcessNoTitleFails(t *testing.T) {
	db := openTestDB(t)
	bad := addCapture(t, db, "https://example.com/course/bad", "<div>6 CE hours</div>", database.PageCourseDetail)
	good := addCapture(t, db, "https://example.com/course/good", ethicsPage, database.PageCourseDetail)

	stats, err := New(db, nil, nil).Process(context.Background(), 10, "")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if stats.Failed != 1 || stats.Created != 1 {
		t.Errorf("expected one failure and one course, got %+v", stats)
	}

	got, _ := db.GetCapture(bad.ID)
	if got.Status != database.StatusFailed {
		t.Errorf("expected failed, got %s", got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != "no title found" {
		t.Errorf("unexpected error message %v", got.ErrorMessage)
	}
	if got, _ := db.GetCapture(good.ID); got.Status != database.StatusSuccess {
		t.Errorf("a failure must not block other captures, got %s", got.Status)
	}
}

type panicRecognizer struct{}

func (panicRecognizer) Recognize(context.Context, string) ([]extract.Span, error) {
	panic("recognizer exploded")
}

func TestProcessRecoversPanics(t *testing.T) {
	db := openTestDB(t)
	capture := addCapture(t, db, "https://example.com/course/1", ethicsPage, database.PageCourseDetail)

	chain := extract.NewChain(nil, extract.NewEntityExtractor(panicRecognizer{}, nil), 0)
	stats, err := New(db, chain, nil).Process(context.Background(), 10, "")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if stats.Failed != 1 {
		t.Errorf("expected one failure, got %+v", stats)
	}
	got, _ := db.GetCapture(capture.ID)
	if got.Status != database.StatusFailed || got.ErrorMessage == nil || !strings.Contains(*got.ErrorMessage, "recognizer exploded") {
		t.Errorf("expected recovered panic recorded, got %+v", got)
	}
}

func TestProcessReportsUnrecordedSuccess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := database.Open(path)
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	capture := addCapture(t, db, "https://example.com/course/1", ethicsPage, database.PageCourseDetail)

	raw, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		t.Fatalf("open raw connection: %v", err)
	}
	_, err = raw.Exec(`CREATE TRIGGER refuse_success BEFORE UPDATE OF status ON raw_captures
		WHEN NEW.status = 'success' BEGIN SELECT RAISE(ABORT, 'disk full'); END`)
	raw.Close()
	if err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	stats, err := New(db, nil, nil).Process(context.Background(), 10, "")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if stats.Created != 1 {
		t.Errorf("expected the course to be stored, got %+v", stats)
	}
	if len(stats.Errors) != 1 || !strings.Contains(stats.Errors[0], capture.URL) || !strings.Contains(stats.Errors[0], "recording success") {
		t.Errorf("expected the unrecorded capture in errors, got %v", stats.Errors)
	}
	got, _ := db.GetCapture(capture.ID)
	if got.Status != database.StatusProcessing {
		t.Errorf("expected the capture left processing, got %s", got.Status)
	}
}

func TestProcessLimitAndProviderFilter(t *testing.T) {
	db := openTestDB(t)
	for i := range 3 {
		addCapture(t, db, fmt.Sprintf("https://example.com/course/%d", i), ethicsPage, database.PageCourseDetail)
	}
	other := &database.RawCapture{
		URL: "https://other.example.org/course/1", Provider: "other", HTML: ethicsPage,
		PageType: database.PageCourseDetail, Status: database.StatusPending, HTTPStatus: 200,
	}
	if _, err := db.UpsertCapture(other); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	o := New(db, nil, nil)
	stats, err := o.Process(context.Background(), 2, "pesi")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if stats.Processed != 2 {
		t.Errorf("expected limit of 2, got %d", stats.Processed)
	}
	if got, _ := db.GetCaptureByURL(other.URL); got.Status != database.StatusPending {
		t.Errorf("other provider must stay pending, got %s", got.Status)
	}

	stats, _ = o.Process(context.Background(), 0, "")
	if stats.Processed != 2 {
		t.Errorf("expected the remaining 2 captures, got %d", stats.Processed)
	}
}

func TestProcessUpdatesExistingCourse(t *testing.T) {
	db := openTestDB(t)
	capture := addCapture(t, db, "https://example.com/course/1", ethicsPage, database.PageCourseDetail)
	o := New(db, nil, nil)
	if _, err := o.Process(context.Background(), 10, ""); err != nil {
		t.Fatalf("process: %v", err)
	}

	if err := o.Reprocess(context.Background(), capture.ID); err != nil {
		t.Fatalf("reprocess: %v", err)
	}
	stats, err := o.Process(context.Background(), 10, "")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if stats.Updated != 1 || stats.Created != 0 {
		t.Errorf("expected the course updated, got %+v", stats)
	}
	if n, _ := db.CountCourses(); n != 1 {
		t.Errorf("expected one course, got %d", n)
	}
}

func TestReprocessFailed(t *testing.T) {
	db := openTestDB(t)
	bad := addCapture(t, db, "https://example.com/course/bad", "<div>no title</div>", database.PageCourseDetail)
	o := New(db, nil, nil)
	if _, err := o.Process(context.Background(), 10, ""); err != nil {
		t.Fatalf("process: %v", err)
	}

	n, err := o.ReprocessFailed(context.Background(), "")
	if err != nil {
		t.Fatalf("reprocess failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 reset, got %d", n)
	}
	got, _ := db.GetCapture(bad.ID)
	if got.Status != database.StatusPending || got.ErrorMessage != nil {
		t.Errorf("expected pending without error, got %+v", got)
	}
}

func TestReprocessUnknownID(t *testing.T) {
	db := openTestDB(t)
	err := New(db, nil, nil).Reprocess(context.Background(), "missing")
	if !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTestURLDoesNotPersist(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "ceu-test" {
			t.Errorf("expected configured user agent, got %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, ethicsPage)
	}))
	defer srv.Close()

	db := openTestDB(t)
	o := New(db, nil, nil)
	o.SetHTTP(nil, "ceu-test")
	res, err := o.TestURL(context.Background(), srv.URL+"/course/1")
	if err != nil {
		t.Fatalf("test url: %v", err)
	}
	if res.Course.Title != "Ethics 101" {
		t.Errorf("expected title 'Ethics 101', got %q", res.Course.Title)
	}
	if n, _ := db.CountCourses(); n != 0 {
		t.Errorf("expected nothing stored, got %d courses", n)
	}
}

func TestTestURLHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	if _, err := New(openTestDB(t), nil, nil).TestURL(context.Background(), srv.URL); err == nil {
		t.Error("expected an error for a 404")
	}
}

func TestTestHTMLNoTitle(t *testing.T) {
	res, err := New(openTestDB(t), nil, nil).TestHTML(context.Background(), "<p>3 CE hours</p>", "")
	if !errors.Is(err, extract.ErrNoTitle) {
		t.Fatalf("expected ErrNoTitle, got %v", err)
	}
	if res == nil {
		t.Error("expected the partial result")
	}
}
