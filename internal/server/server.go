// Package server is a local, read-only dashboard over the course store.
package server

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/TobiSchelling/CEUCrawler/internal/database"
	"github.com/TobiSchelling/CEUCrawler/internal/export"
	"github.com/TobiSchelling/CEUCrawler/internal/recommend"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

const (
	recentFailures     = 10
	defaultCourseLimit = 200
	recommendLimit     = 20
)

// Server serves the dashboard.
type Server struct {
	db     *database.DB
	engine *recommend.Engine
	pages  map[string]*template.Template
	mux    *http.ServeMux
	logger *slog.Logger
}

// New creates a server. engine powers the per-user recommendation page.
func New(db *database.DB, engine *recommend.Engine, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
		"num": func(v *float64) string {
			if v == nil {
				return ""
			}
			return strconv.FormatFloat(*v, 'f', -1, 64)
		},
		"date": func(t *time.Time) string {
			if t == nil {
				return ""
			}
			return t.Format(time.DateOnly)
		},
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page clones the base so it can define its own "title" and "content".
	pageNames := []string{"index.html", "courses.html", "course.html", "user.html", "plan.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{db: db, engine: engine, pages: pages, mux: http.NewServeMux(), logger: logger.With("component", "server")}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /courses", s.handleCourses)
	s.mux.HandleFunc("GET /courses/{id}", s.handleCourse)
	s.mux.HandleFunc("GET /users/{id}", s.handleUser)
	s.mux.HandleFunc("GET /plans/{id}", s.handlePlan)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.CaptureStats(recentFailures)
	if err != nil {
		s.serverError(w, err)
		return
	}
	users, err := s.db.ListUserProfiles()
	if err != nil {
		s.serverError(w, err)
		return
	}
	s.render(w, "index.html", map[string]any{
		"Stats": stats,
		"Users": users,
	})
}

func (s *Server) handleCourses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := database.CourseFilter{
		Provider: q.Get("provider"),
		Limit:    defaultCourseLimit,
	}
	if field, ok := database.ParseField(q.Get("field")); ok {
		filter.Field = field
	}
	if origin := database.Origin(q.Get("origin")); origin == database.OriginCrawled || origin == database.OriginManual {
		filter.Origin = origin
	}
	courses, err := s.db.ListCourses(filter)
	if err != nil {
		s.serverError(w, err)
		return
	}
	s.render(w, "courses.html", map[string]any{
		"Courses": courses,
		"Filter":  filter,
	})
}

func (s *Server) handleCourse(w http.ResponseWriter, r *http.Request) {
	course, err := s.db.GetCourse(r.PathValue("id"))
	if err != nil {
		s.serverError(w, err)
		return
	}
	if course == nil {
		http.NotFound(w, r)
		return
	}
	s.render(w, "course.html", map[string]any{"Course": course})
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	profile, err := s.db.GetUserProfile(userID)
	if err != nil {
		s.serverError(w, err)
		return
	}
	if profile == nil {
		http.NotFound(w, r)
		return
	}

	u, err := s.engine.UserContext(r.Context(), userID)
	if err != nil {
		s.serverError(w, err)
		return
	}
	recs, err := s.engine.Recommend(r.Context(), userID, recommendLimit)
	if err != nil {
		s.serverError(w, err)
		return
	}
	trackings, err := s.db.ListTrackings(userID, "")
	if err != nil {
		s.serverError(w, err)
		return
	}
	plans, err := s.db.ListPlans(userID)
	if err != nil {
		s.serverError(w, err)
		return
	}
	s.render(w, "user.html", map[string]any{
		"Profile":         profile,
		"CreditsNeeded":   u.CreditsNeeded,
		"Recommendations": recs,
		"Trackings":       trackings,
		"Plans":           plans,
	})
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	progress, err := s.engine.PlanProgress(r.Context(), r.PathValue("id"))
	if errors.Is(err, database.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.serverError(w, err)
		return
	}
	s.render(w, "plan.html", map[string]any{
		"Progress": progress,
		"Body":     export.PlanMarkdown(progress),
	})
}

func (s *Server) serverError(w http.ResponseWriter, err error) {
	s.logger.Error("request failed", "error", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.logger.Error("template not found", "template", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		s.logger.Error("rendering template", "template", name, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// ListenAndServe serves on 127.0.0.1 until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("server listening", "url", "http://"+srv.Addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
