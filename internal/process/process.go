// Package process turns pending raw captures into course records.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/TobiSchelling/CEUCrawler/internal/config"
	"github.com/TobiSchelling/CEUCrawler/internal/database"
	"github.com/TobiSchelling/CEUCrawler/internal/extract"
	"github.com/TobiSchelling/CEUCrawler/internal/llm"
)

const maxTestBody = 10 << 20

// Stats holds the counts of a processing run.
type Stats struct {
	Processed int
	Created   int
	Updated   int
	Failed    int
	Skipped   int
	Errors    []string // "url: message" for each failed or unrecorded capture
}

// Orchestrator claims pending captures, runs the extraction chain on each
// and stores the resulting course.
type Orchestrator struct {
	db        *database.DB
	chain     *extract.Chain
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

// New creates an orchestrator. A nil chain uses the rule-based extractors.
func New(db *database.DB, chain *extract.Chain, logger *slog.Logger) *Orchestrator {
	if chain == nil {
		chain = extract.NewChain(nil, nil, 0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		db:     db,
		chain:  chain,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger.With("component", "process"),
	}
}

// SetHTTP overrides the client and user agent used by TestURL.
func (o *Orchestrator) SetHTTP(client *http.Client, userAgent string) {
	if client != nil {
		o.client = client
	}
	o.userAgent = userAgent
}

// ChainFromConfig builds the extraction chain described by the config. With
// entities set to "llm" the configured model recognizes entities and the
// rule recognizer covers for it when the model is unavailable.
func ChainFromConfig(cfg *config.Config, logger *slog.Logger) *extract.Chain {
	var rec extract.Recognizer
	if strings.EqualFold(cfg.Extraction.Entities, "llm") {
		rec = extract.NewLLMRecognizer(llm.CreateProvider(cfg.LLM, logger), cfg.LLM.MaxTokens, logger)
	}
	return extract.NewChain(nil, extract.NewEntityExtractor(rec, logger), cfg.Extraction.MinConfidence)
}

// Process skips pending captures that are not course pages, then extracts
// up to limit pending course pages, oldest first. An empty provider matches
// all providers. One capture's failure never stops the batch.
func (o *Orchestrator) Process(ctx context.Context, limit int, provider string) (*Stats, error) {
	stats := &Stats{}

	skipped, err := o.db.SkipPendingNonDetail(provider)
	if err != nil {
		return stats, err
	}
	stats.Skipped = skipped
	if skipped > 0 {
		o.logger.Info("skipped non-course pages", "count", skipped)
	}

	captures, err := o.db.PendingDetailCaptures(provider, limit)
	if err != nil {
		return stats, fmt.Errorf("loading pending captures: %w", err)
	}
	o.logger.Info("processing captures", "count", len(captures), "provider", provider)

	for i := range captures {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		c := &captures[i]
		claimed, err := o.db.ClaimCapture(c.ID)
		if err != nil {
			return stats, err
		}
		if !claimed {
			o.logger.Debug("capture claimed elsewhere", "id", c.ID)
			continue
		}
		o.processOne(ctx, c, stats)
	}

	o.logger.Info("processing finished",
		"processed", stats.Processed,
		"created", stats.Created,
		"updated", stats.Updated,
		"failed", stats.Failed,
		"skipped", stats.Skipped)
	return stats, nil
}

func (o *Orchestrator) processOne(ctx context.Context, c *database.RawCapture, stats *Stats) {
	stats.Processed++
	log := o.logger.With("id", c.ID, "url", c.URL)

	course, created, err := o.extractAndStore(ctx, c)
	if err != nil {
		stats.Failed++
		stats.Errors = append(stats.Errors, c.URL+": "+err.Error())
		log.Warn("extraction failed", "error", err)
		if err := o.db.MarkCaptureFailed(c.ID, err.Error()); err != nil {
			log.Error("recording failure", "error", err)
		}
		return
	}

	if created {
		stats.Created++
	} else {
		stats.Updated++
	}
	if err := o.db.MarkCaptureSuccess(c.ID, course.ID); err != nil {
		// The course is stored; the capture stays "processing" until reprocessed.
		stats.Errors = append(stats.Errors, c.URL+": recording success: "+err.Error())
		log.Error("recording success", "error", err)
	}
	log.Debug("course stored", "course_id", course.ID, "title", course.Title, "created", created)
}

// extractAndStore runs the chain and upserts the course. A panic anywhere in
// the chain is returned as an error for this capture only.
func (o *Orchestrator) extractAndStore(ctx context.Context, c *database.RawCapture) (course *database.Course, created bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			course, created = nil, false
			err = fmt.Errorf("extraction panic: %v", r)
		}
	}()

	res, err := o.chain.Run(ctx, c.HTML, c.URL)
	if err != nil {
		return nil, false, err
	}
	course = res.Course.Course(c.Provider, c.URL)
	created, err = o.db.UpsertCourse(course)
	if err != nil {
		return nil, false, fmt.Errorf("storing course: %w", err)
	}
	return course, created, nil
}

// Reprocess puts one capture back to pending, whatever its status.
func (o *Orchestrator) Reprocess(_ context.Context, id string) error {
	if err := o.db.ResetCapture(id); err != nil {
		return err
	}
	o.logger.Info("capture reset", "id", id)
	return nil
}

// ReprocessFailed puts every failed capture back to pending and returns how
// many were reset.
func (o *Orchestrator) ReprocessFailed(_ context.Context, provider string) (int, error) {
	n, err := o.db.ResetFailedCaptures(provider)
	if err != nil {
		return 0, err
	}
	o.logger.Info("failed captures reset", "count", n, "provider", provider)
	return n, nil
}

// TestURL fetches a page and runs the extraction chain on it without
// storing anything.
func (o *Orchestrator) TestURL(ctx context.Context, pageURL string) (*extract.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	if o.userAgent != "" {
		req.Header.Set("User-Agent", o.userAgent)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", pageURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetching %s: HTTP %d", pageURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTestBody))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", pageURL, err)
	}
	return o.TestHTML(ctx, string(body), pageURL)
}

// TestHTML runs the extraction chain on a page without storing anything. A
// page without a title still returns its partial result with the error.
func (o *Orchestrator) TestHTML(ctx context.Context, html, pageURL string) (*extract.Result, error) {
	res, err := o.chain.Run(ctx, html, pageURL)
	if err != nil && !errors.Is(err, extract.ErrNoTitle) {
		return nil, err
	}
	return res, err
}
