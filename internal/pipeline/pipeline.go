// Package pipeline runs both phases back to back: crawl the providers into
// raw captures, then extract courses from the pending captures.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/TobiSchelling/CEUCrawler/internal/config"
	"github.com/TobiSchelling/CEUCrawler/internal/crawl"
	"github.com/TobiSchelling/CEUCrawler/internal/database"
	"github.com/TobiSchelling/CEUCrawler/internal/process"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	Steps []StepResult
}

// Failed reports whether any step returned an error.
func (r *Result) Failed() bool {
	for _, s := range r.Steps {
		if s.Err != nil {
			return true
		}
	}
	return false
}

// Options select what a run covers.
type Options struct {
	Provider string // empty means every active provider
	MaxPages int
	Limit    int
}

// Pipeline wires the crawler to the processing orchestrator.
type Pipeline struct {
	cfg     *config.Config
	db      *database.DB
	crawler *crawl.Crawler
	proc    *process.Orchestrator
	logger  *slog.Logger
}

// New creates a pipeline from the config.
func New(cfg *config.Config, db *database.DB, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:     cfg,
		db:      db,
		crawler: crawl.New(db, cfg.Crawl.Timeout, logger),
		proc:    process.New(db, process.ChainFromConfig(cfg, logger), logger),
		logger:  logger.With("component", "pipeline"),
	}
}

func (p *Pipeline) providers(name string) ([]config.Provider, error) {
	if name == "" || name == "all" {
		return p.cfg.ActiveProviders(), nil
	}
	prov, err := p.cfg.Provider(name)
	if err != nil {
		return nil, err
	}
	return []config.Provider{*prov}, nil
}

// Run crawls then processes. A provider whose crawl fails does not stop the
// others, and processing still runs over whatever was captured.
func (p *Pipeline) Run(ctx context.Context, opts Options) *Result {
	r := &Result{}

	provs, err := p.providers(opts.Provider)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Crawl", Err: err})
		return r
	}
	if len(provs) == 0 {
		r.Steps = append(r.Steps, StepResult{Name: "Crawl", Err: fmt.Errorf("no active providers configured")})
		return r
	}

	for i, prov := range provs {
		p.logger.Info(fmt.Sprintf("Step 1/2: crawling %s (%d/%d)", prov.Label(), i+1, len(provs)))
		r.Steps = append(r.Steps, p.runCrawl(ctx, prov, opts.MaxPages))
		if ctx.Err() != nil {
			return r
		}
	}

	p.logger.Info("Step 2/2: processing captures")
	filter := opts.Provider
	if filter == "all" {
		filter = ""
	}
	r.Steps = append(r.Steps, p.runProcess(ctx, opts.Limit, filter))
	return r
}

// DryRun crawls without storing and reports what processing would pick up.
func (p *Pipeline) DryRun(ctx context.Context, opts Options) *Result {
	r := &Result{}
	provs, err := p.providers(opts.Provider)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Crawl", Err: err})
		return r
	}

	dry := crawl.New(nil, p.cfg.Crawl.Timeout, p.logger)
	for _, prov := range provs {
		res, err := dry.Crawl(ctx, prov, crawl.Options{MaxPages: opts.MaxPages, DryRun: true})
		step := StepResult{Name: "Crawl " + prov.Name, Err: err}
		if res != nil {
			step.Summary = fmt.Sprintf("[dry-run] %d pages reachable: %d course pages, %d listings, %d failed",
				res.Fetched, res.ByPageType[database.PageCourseDetail], res.ByPageType[database.PageListing], res.Failed)
		}
		r.Steps = append(r.Steps, step)
	}

	stats, err := p.db.CaptureStats(0)
	step := StepResult{Name: "Process", Err: err}
	if stats != nil {
		step.Summary = fmt.Sprintf("[dry-run] %d captures already pending", stats.ByStatus[database.StatusPending])
	}
	r.Steps = append(r.Steps, step)
	return r
}

func (p *Pipeline) runCrawl(ctx context.Context, prov config.Provider, maxPages int) StepResult {
	res, err := p.crawler.Crawl(ctx, prov, crawl.Options{MaxPages: maxPages})
	step := StepResult{Name: "Crawl " + prov.Name, Err: err}
	if res != nil {
		step.Summary = fmt.Sprintf("Fetched %d pages (%d new, %d updated, %d failed, %d skipped)",
			res.Fetched, res.Created, res.Updated, res.Failed, res.Skipped)
	}
	return step
}

func (p *Pipeline) runProcess(ctx context.Context, limit int, provider string) StepResult {
	stats, err := p.proc.Process(ctx, limit, provider)
	step := StepResult{Name: "Process", Err: err}
	if stats != nil {
		step.Summary = fmt.Sprintf("Processed %d captures: %d new courses, %d updated, %d failed, %d skipped",
			stats.Processed, stats.Created, stats.Updated, stats.Failed, stats.Skipped)
	}
	return step
}
