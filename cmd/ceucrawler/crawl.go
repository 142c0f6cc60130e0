package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/CEUCrawler/internal/config"
	"github.com/TobiSchelling/CEUCrawler/internal/crawl"
	"github.com/TobiSchelling/CEUCrawler/internal/database"
	"github.com/TobiSchelling/CEUCrawler/internal/extract"
	"github.com/TobiSchelling/CEUCrawler/internal/pipeline"
	"github.com/TobiSchelling/CEUCrawler/internal/process"
)

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(failedCmd)
	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(reprocessCmd)
	rootCmd.AddCommand(testCmd)

	statsCmd.Flags().IntVar(&statsFailures, "failures", 5, "Number of recent failures to show")
	failedCmd.Flags().IntVarP(&failedLimit, "limit", "n", 20, "Maximum number of failures to list")

	crawlCmd.Flags().IntVar(&crawlMaxPages, "max-pages", 0, "Override the provider page limit")
	crawlCmd.Flags().BoolVar(&crawlDryRun, "dry-run", false, "Fetch and classify without storing")

	processCmd.Flags().IntVarP(&processLimit, "limit", "n", 0, "Maximum captures to process (0 = all)")
	processCmd.Flags().StringVarP(&processProvider, "provider", "p", "", "Only process captures from this provider")

	runCmd.Flags().StringVarP(&runProvider, "provider", "p", "all", "Provider to crawl, or all")
	runCmd.Flags().IntVar(&runMaxPages, "max-pages", 0, "Override the provider page limit")
	runCmd.Flags().IntVarP(&runLimit, "limit", "n", 0, "Maximum captures to process (0 = all)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Crawl without storing and report what would be processed")

	reprocessCmd.Flags().StringVar(&reprocessID, "id", "", "Capture ID to re-queue")
	reprocessCmd.Flags().BoolVar(&reprocessFailed, "failed", false, "Re-queue every failed capture")
	reprocessCmd.Flags().StringVarP(&reprocessProvider, "provider", "p", "", "Restrict --failed to one provider")
	reprocessCmd.MarkFlagsMutuallyExclusive("id", "failed")
	reprocessCmd.MarkFlagsOneRequired("id", "failed")

	testCmd.Flags().StringVar(&testURL, "url", "", "Fetch and extract a live page")
	testCmd.Flags().StringVar(&testHTMLFile, "html-file", "", "Extract a saved HTML file")
	testCmd.Flags().StringVar(&testPageURL, "page-url", "", "URL to resolve relative links in --html-file")
	testCmd.Flags().BoolVar(&testJSON, "json", false, "Print the full extraction result as JSON")
	testCmd.MarkFlagsMutuallyExclusive("url", "html-file")
	testCmd.MarkFlagsOneRequired("url", "html-file")
}

// --- stats / failed ---

var statsFailures int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show capture and course counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.CaptureStats(statsFailures)
		if err != nil {
			return err
		}

		fmt.Println("Captures:")
		fmt.Printf("  Total: %d\n", stats.Total)
		for _, s := range []database.CaptureStatus{
			database.StatusPending, database.StatusProcessing, database.StatusSuccess,
			database.StatusFailed, database.StatusSkipped,
		} {
			fmt.Printf("  %s: %d\n", s, stats.ByStatus[s])
		}
		fmt.Println("\nBy page type:")
		for _, pt := range []database.PageType{database.PageCourseDetail, database.PageListing, database.PageUnknown} {
			fmt.Printf("  %s: %d\n", pt, stats.ByPageType[pt])
		}
		if len(stats.ByProvider) > 0 {
			fmt.Println("\nBy provider:")
			for _, name := range sortedKeys(stats.ByProvider) {
				fmt.Printf("  %s: %d\n", name, stats.ByProvider[name])
			}
		}
		fmt.Printf("\nCourses: %d\n", stats.Courses)

		if len(stats.RecentFailures) > 0 {
			fmt.Println("\nRecent failures:")
			printFailures(stats.RecentFailures)
		}
		return nil
	},
}

var failedLimit int

var failedCmd = &cobra.Command{
	Use:   "failed",
	Short: "List failed captures with their errors",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		failures, err := db.FailedCaptures(failedLimit)
		if err != nil {
			return err
		}
		if len(failures) == 0 {
			fmt.Println("No failed captures.")
			return nil
		}
		printFailures(failures)
		fmt.Println("\nRe-queue with: ceucrawler reprocess --id <id> or --failed")
		return nil
	},
}

func printFailures(captures []database.RawCapture) {
	for _, c := range captures {
		msg := ""
		if c.ErrorMessage != nil {
			msg = *c.ErrorMessage
		}
		fmt.Printf("  [%s] %s\n", c.ID, c.URL)
		fmt.Printf("      %s\n", msg)
	}
}

// --- crawl ---

var (
	crawlMaxPages int
	crawlDryRun   bool
)

var crawlCmd = &cobra.Command{
	Use:   "crawl [provider|all]",
	Short: "Crawl provider sites into raw captures",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := "all"
		if len(args) == 1 {
			name = args[0]
		}
		provs, err := selectProviders(cfg, name)
		if err != nil {
			return err
		}

		var store crawl.CaptureStore
		if !crawlDryRun {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			store = db
		}
		crawler := crawl.New(store, cfg.Crawl.Timeout, logger)

		failed := 0
		for _, p := range provs {
			fmt.Printf("Crawling %s...\n", p.Label())
			res, err := crawler.Crawl(cmd.Context(), p, crawl.Options{MaxPages: crawlMaxPages, DryRun: crawlDryRun})
			if err != nil {
				fmt.Printf("  Error: %v\n", err)
				failed++
				continue
			}
			printCrawlResult(res)
			if cmd.Context().Err() != nil {
				return cmd.Context().Err()
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d providers failed", failed, len(provs))
		}
		return nil
	},
}

func selectProviders(c *config.Config, name string) ([]config.Provider, error) {
	if name == "" || name == "all" {
		provs := c.ActiveProviders()
		if len(provs) == 0 {
			return nil, fmt.Errorf("no active providers configured")
		}
		return provs, nil
	}
	p, err := c.Provider(name)
	if err != nil {
		return nil, err
	}
	return []config.Provider{*p}, nil
}

func printCrawlResult(res *crawl.Result) {
	prefix := ""
	if res.DryRun {
		prefix = "[dry-run] "
	}
	fmt.Printf("  %sFetched: %d\n", prefix, res.Fetched)
	if !res.DryRun {
		fmt.Printf("  New: %d\n", res.Created)
		fmt.Printf("  Updated: %d\n", res.Updated)
	}
	fmt.Printf("  Failed: %d\n", res.Failed)
	fmt.Printf("  Skipped: %d\n", res.Skipped)
	fmt.Printf("  Course pages: %d, listings: %d, unknown: %d\n",
		res.ByPageType[database.PageCourseDetail], res.ByPageType[database.PageListing], res.ByPageType[database.PageUnknown])
	if res.DryRun && verbose {
		for _, u := range res.URLs {
			fmt.Printf("    %s\n", u)
		}
	}
}

// --- process ---

var (
	processLimit    int
	processProvider string
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Extract courses from pending captures",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		orch := process.New(db, process.ChainFromConfig(cfg, logger), logger)
		stats, err := orch.Process(cmd.Context(), processLimit, processProvider)
		if err != nil {
			return err
		}
		printProcessStats(stats)
		return nil
	},
}

func printProcessStats(s *process.Stats) {
	fmt.Println("\nProcessing complete:")
	fmt.Printf("  Processed: %d\n", s.Processed)
	fmt.Printf("  New courses: %d\n", s.Created)
	fmt.Printf("  Updated courses: %d\n", s.Updated)
	fmt.Printf("  Failed: %d\n", s.Failed)
	fmt.Printf("  Skipped (not course pages): %d\n", s.Skipped)
	if len(s.Errors) > 0 {
		fmt.Println("\nErrors:")
		for _, e := range s.Errors {
			fmt.Printf("  %s\n", e)
		}
	}
}

// --- run ---

var (
	runProvider string
	runMaxPages int
	runLimit    int
	runDryRun   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Crawl then process in one go",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		p := pipeline.New(cfg, db, logger)
		opts := pipeline.Options{Provider: runProvider, MaxPages: runMaxPages, Limit: runLimit}

		start := time.Now()
		var result *pipeline.Result
		if runDryRun {
			result = p.DryRun(cmd.Context(), opts)
		} else {
			result = p.Run(cmd.Context(), opts)
		}

		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/%d: %s\n", i+1, len(result.Steps), step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}
		if result.Failed() {
			return fmt.Errorf("pipeline finished with errors")
		}
		fmt.Printf("\nPipeline complete in %s. Run 'ceucrawler serve' to browse the catalog.\n", time.Since(start).Round(time.Second))
		return nil
	},
}

// --- reprocess ---

var (
	reprocessID       string
	reprocessFailed   bool
	reprocessProvider string
)

var reprocessCmd = &cobra.Command{
	Use:   "reprocess",
	Short: "Re-queue captures for extraction",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		orch := process.New(db, nil, logger)
		if reprocessID != "" {
			if err := orch.Reprocess(cmd.Context(), reprocessID); err != nil {
				return fmt.Errorf("capture %s: %w", reprocessID, err)
			}
			fmt.Printf("Capture %s re-queued. Run 'ceucrawler process' to extract it.\n", reprocessID)
			return nil
		}

		n, err := orch.ReprocessFailed(cmd.Context(), reprocessProvider)
		if err != nil {
			return err
		}
		fmt.Printf("%d failed capture(s) re-queued.\n", n)
		return nil
	},
}

// --- test ---

var (
	testURL      string
	testHTMLFile string
	testPageURL  string
	testJSON     bool
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Run extraction on one page without storing anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		orch := process.New(nil, process.ChainFromConfig(cfg, logger), logger)
		orch.SetHTTP(&http.Client{Timeout: cfg.Crawl.Timeout}, cfg.Crawl.UserAgent)

		var (
			res *extract.Result
			err error
		)
		if testURL != "" {
			res, err = orch.TestURL(cmd.Context(), testURL)
		} else {
			data, readErr := os.ReadFile(testHTMLFile)
			if readErr != nil {
				return fmt.Errorf("reading %s: %w", testHTMLFile, readErr)
			}
			res, err = orch.TestHTML(cmd.Context(), string(data), testPageURL)
		}
		if res == nil {
			return err
		}

		if testJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(res); encErr != nil {
				return encErr
			}
		} else {
			printExtraction(res)
		}
		return err
	},
}

func printExtraction(res *extract.Result) {
	c := res.Course
	fmt.Printf("Title: %s\n", c.Title)
	printField("Credits", c.CreditsString, c.Sources[extract.FieldCredits])
	printField("Credit type", c.CreditType, c.Sources[extract.FieldCredits])
	printField("Price", c.PriceString, c.Sources[extract.FieldPrice])
	printField("Duration", c.DurationString, c.Sources[extract.FieldDuration])
	printField("Category", c.Category, c.Sources[extract.FieldCategory])
	fmt.Printf("Field: %s\n", c.Field)
	fmt.Printf("Course type: %s\n", c.CourseType)
	if c.StartDate != nil {
		fmt.Printf("Start date: %s\n", c.StartDate.Format(time.DateOnly))
	}
	if c.RegistrationDeadline != nil {
		fmt.Printf("Registration deadline: %s\n", c.RegistrationDeadline.Format(time.DateOnly))
	}
	if len(c.Instructors) > 0 {
		fmt.Printf("Instructors: %s\n", strings.Join(c.Instructors, ", "))
	}
	if len(c.Accreditations) > 0 {
		fmt.Printf("Accreditations: %s\n", strings.Join(c.Accreditations, ", "))
	}
	fmt.Printf("\nCandidates: %d pattern, %d entity\n", len(res.Patterns), len(res.Entities))
	if verbose {
		for _, f := range append(append([]extract.ExtractedField{}, res.Patterns...), res.Entities...) {
			fmt.Printf("  %-8s %-22s %.2f  %q\n", f.Source, f.Field, f.Confidence, f.Value)
		}
	}
}

func printField(label string, value *string, src extract.Source) {
	if value == nil {
		fmt.Printf("%s: -\n", label)
		return
	}
	fmt.Printf("%s: %s (%s)\n", label, *value, src)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
