package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/TobiSchelling/CEUCrawler/internal/config"
	"github.com/TobiSchelling/CEUCrawler/internal/database"
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

func newCatalog(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><a href="/course/1">Ethics</a><a href="/course/2">Grief</a></body></html>`)
	})
	mux.HandleFunc("/course/1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><h1>Ethics 101</h1><p>6.0 CE Hours $199.99 On-Demand</p></body></html>`)
	})
	mux.HandleFunc("/course/2", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><h1>Grief Counseling</h1><p>3 CE credits. Live webinar.</p></body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(srv *httptest.Server) *config.Config {
	obey := false
	return &config.Config{
		Crawl:      config.CrawlConfig{Timeout: 5 * time.Second, MaxPages: 10},
		Extraction: config.Extraction{Entities: "rules", MinConfidence: 0.7},
		Providers: []config.Provider{{
			Name:           "local",
			StartURLs:      []string{srv.URL + "/"},
			DetailPatterns: []string{`^/course/`},
			ObeyRobots:     &obey,
		}},
	}
}

func TestRunCrawlsThenProcesses(t *testing.T) {
	srv := newCatalog(t)
	db := openTestDB(t)

	r := New(testConfig(srv), db, nil).Run(context.Background(), Options{Provider: "all"})
	if r.Failed() {
		t.Fatalf("unexpected failure: %+v", r.Steps)
	}
	if len(r.Steps) != 2 {
		t.Fatalf("expected crawl and process steps, got %+v", r.Steps)
	}
	if !strings.Contains(r.Steps[1].Summary, "2 new courses") {
		t.Errorf("unexpected process summary %q", r.Steps[1].Summary)
	}

	course, err := db.GetCourseByURL(srv.URL + "/course/1")
	if err != nil || course == nil {
		t.Fatalf("expected course stored, got %v, %v", course, err)
	}
	if course.Provider != "local" || course.Title != "Ethics 101" {
		t.Errorf("unexpected course %+v", course)
	}

	stats, _ := db.CaptureStats(0)
	if stats.ByStatus[database.StatusSkipped] != 1 || stats.ByStatus[database.StatusSuccess] != 2 {
		t.Errorf("expected the listing skipped and both courses extracted, got %v", stats.ByStatus)
	}
}

func TestRunUnknownProvider(t *testing.T) {
	srv := newCatalog(t)
	r := New(testConfig(srv), openTestDB(t), nil).Run(context.Background(), Options{Provider: "missing"})
	if !r.Failed() {
		t.Error("expected an error for an unknown provider")
	}
}

func TestDryRunStoresNothing(t *testing.T) {
	srv := newCatalog(t)
	db := openTestDB(t)

	r := New(testConfig(srv), db, nil).DryRun(context.Background(), Options{})
	if r.Failed() {
		t.Fatalf("unexpected failure: %+v", r.Steps)
	}
	if !strings.Contains(r.Steps[0].Summary, "3 pages reachable: 2 course pages") {
		t.Errorf("unexpected crawl summary %q", r.Steps[0].Summary)
	}
	if n, _ := db.CountCourses(); n != 0 {
		t.Errorf("expected nothing stored, got %d courses", n)
	}
}
