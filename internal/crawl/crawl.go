// Package crawl fetches provider pages breadth-first and stores them as raw
// captures for later extraction.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/queue"

	"github.com/TobiSchelling/CEUCrawler/internal/config"
	"github.com/TobiSchelling/CEUCrawler/internal/database"
)

const defaultMaxPages = 100

// CaptureStore persists fetched pages.
type CaptureStore interface {
	UpsertCapture(c *database.RawCapture) (bool, error)
}

// Options control a single crawl.
type Options struct {
	MaxPages int  // overrides the provider limit when positive
	DryRun   bool // fetch and classify without storing
}

// Result summarizes a crawl.
type Result struct {
	Provider   string
	Fetched    int
	Created    int
	Updated    int
	Failed     int
	Skipped    int
	ByPageType map[database.PageType]int
	URLs       []string // every fetched URL, in crawl order
	DryRun     bool
}

// Crawler walks a provider site and stores every page it fetches.
type Crawler struct {
	store   CaptureStore
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a crawler. store may be nil when only dry runs are made.
func New(store CaptureStore, timeout time.Duration, logger *slog.Logger) *Crawler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawler{store: store, timeout: timeout, logger: logger.With("component", "crawl")}
}

// Crawl fetches the provider's start pages and feed items, following links
// from listing pages only, until the queue drains or the page limit is hit.
// Fetch errors are recorded as failed captures and never stop the crawl.
func (c *Crawler) Crawl(ctx context.Context, p config.Provider, opts Options) (*Result, error) {
	r, err := compileRules(p)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", p.Name, err)
	}
	if !opts.DryRun && c.store == nil {
		return nil, errors.New("crawl needs a capture store unless dry-running")
	}
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = p.MaxPages
	}
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	log := c.logger.With("provider", p.Name)

	col := colly.NewCollector(colly.StdlibContext(ctx))
	if p.UserAgent != "" {
		col.UserAgent = p.UserAgent
	}
	col.IgnoreRobotsTxt = !p.ShouldObeyRobots()
	col.SetRequestTimeout(c.timeout)
	if p.Delay > 0 {
		if err := col.Limit(&colly.LimitRule{DomainGlob: "*", Delay: p.Delay, Parallelism: 1}); err != nil {
			return nil, fmt.Errorf("setting politeness delay: %w", err)
		}
	}

	q, err := queue.New(1, &queue.InMemoryQueueStorage{MaxSize: maxPages + 1})
	if err != nil {
		return nil, fmt.Errorf("creating crawl queue: %w", err)
	}

	res := &Result{Provider: p.Name, DryRun: opts.DryRun, ByPageType: map[database.PageType]int{}}
	var (
		mu       sync.Mutex
		seen     = map[string]bool{}
		parents  = map[string]string{}
		enqueued int
	)

	// enqueue queues a URL once. Seeds skip the link filters.
	enqueue := func(link, parent string, seed bool) {
		norm, err := NormalizeURL(link)
		if err != nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if seen[norm] || enqueued >= maxPages {
			return
		}
		if !seed && !r.follow(norm) {
			return
		}
		if err := q.AddURL(norm); err != nil {
			log.Warn("queueing url failed", "url", norm, "error", err)
			return
		}
		seen[norm] = true
		enqueued++
		if parent != "" {
			parents[norm] = parent
		}
	}

	save := func(capture *database.RawCapture) {
		res.Fetched++
		res.ByPageType[capture.PageType]++
		res.URLs = append(res.URLs, capture.URL)
		if capture.Status == database.StatusFailed {
			res.Failed++
		}
		if opts.DryRun {
			log.Info("dry run", "url", capture.URL, "page_type", capture.PageType, "status", capture.HTTPStatus)
			return
		}
		created, err := c.store.UpsertCapture(capture)
		if err != nil {
			log.Error("storing capture failed", "url", capture.URL, "error", err)
			return
		}
		if created {
			res.Created++
		} else {
			res.Updated++
		}
	}

	pageURL := func(req *colly.Request) string {
		raw := req.URL.String()
		if norm, err := NormalizeURL(raw); err == nil {
			return norm
		}
		return raw
	}

	col.OnRequest(func(req *colly.Request) {
		if ctx.Err() != nil {
			req.Abort()
			q.Stop()
			return
		}
		log.Debug("fetching", "url", req.URL.String())
	})

	col.OnResponse(func(resp *colly.Response) {
		mu.Lock()
		defer mu.Unlock()
		u := pageURL(resp.Request)
		if ct := resp.Headers.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
			res.Skipped++
			log.Debug("skipping non-html response", "url", u, "content_type", ct)
			return
		}
		capture := &database.RawCapture{
			URL:        u,
			Provider:   p.Name,
			HTML:       string(resp.Body),
			PageType:   r.classify(u),
			Status:     database.StatusPending,
			HTTPStatus: resp.StatusCode,
		}
		if parent, ok := parents[u]; ok {
			capture.SourceURL = &parent
		}
		save(capture)
	})

	col.OnHTML("html", func(e *colly.HTMLElement) {
		u := pageURL(e.Request)
		if r.classify(u) != database.PageListing {
			return
		}
		links := e.DOM.Find(strings.Join(p.LinkSelectors, ", "))
		if len(p.LinkSelectors) == 0 || links.Length() == 0 {
			links = e.DOM.Find("a[href]")
		}
		links.Each(func(_ int, s *goquery.Selection) {
			href, ok := s.Attr("href")
			if !ok {
				return
			}
			if abs := e.Request.AbsoluteURL(strings.TrimSpace(href)); abs != "" {
				enqueue(abs, u, false)
			}
		})
	})

	col.OnError(func(resp *colly.Response, err error) {
		if ctx.Err() != nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		u := pageURL(resp.Request)
		msg := "fetch: " + err.Error()
		if resp.StatusCode >= 400 {
			msg = fmt.Sprintf("fetch: HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		}
		log.Warn("fetch failed", "url", u, "status", resp.StatusCode, "error", err)
		capture := &database.RawCapture{
			URL:          u,
			Provider:     p.Name,
			PageType:     r.classify(u),
			Status:       database.StatusFailed,
			ErrorMessage: &msg,
			HTTPStatus:   resp.StatusCode,
		}
		if parent, ok := parents[u]; ok {
			capture.SourceURL = &parent
		}
		save(capture)
	})

	for _, start := range p.StartURLs {
		enqueue(start, "", true)
	}
	feedClient := &http.Client{Timeout: c.timeout}
	for _, feedURL := range p.FeedURLs {
		links, err := feedLinks(ctx, feedClient, col.UserAgent, feedURL)
		if err != nil {
			log.Warn("reading feed failed", "feed", feedURL, "error", err)
			continue
		}
		log.Info("seeded from feed", "feed", feedURL, "links", len(links))
		for _, link := range links {
			enqueue(link, feedURL, true)
		}
	}
	if q.IsEmpty() {
		return res, fmt.Errorf("provider %s: nothing to crawl", p.Name)
	}

	log.Info("crawl started", "max_pages", maxPages, "dry_run", opts.DryRun)
	if err := q.Run(col); err != nil {
		return res, fmt.Errorf("running crawl queue: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	log.Info("crawl finished",
		"fetched", res.Fetched,
		"created", res.Created,
		"updated", res.Updated,
		"failed", res.Failed,
		"skipped", res.Skipped)
	return res, nil
}
