package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/CEUCrawler/internal/database"
	"github.com/TobiSchelling/CEUCrawler/internal/export"
	"github.com/TobiSchelling/CEUCrawler/internal/recommend"
)

func init() {
	rootCmd.AddCommand(recommendCmd)
	recommendCmd.Flags().IntVarP(&recommendLimit, "limit", "n", 10, "Number of recommendations")

	rootCmd.AddCommand(planCmd)
	planCmd.AddCommand(planGenerateCmd)
	planCmd.AddCommand(planSaveCmd)
	planCmd.AddCommand(planShowCmd)
	planCmd.AddCommand(planListCmd)
	for _, c := range []*cobra.Command{planGenerateCmd, planSaveCmd} {
		c.Flags().Float64Var(&planCredits, "credits", 0, "Target credits (defaults to the compliance gap)")
		c.Flags().StringVar(&planDeadline, "deadline", "", "Target deadline (defaults to the compliance deadline)")
		c.Flags().Float64Var(&planBudget, "budget", 0, "Maximum spend (defaults to the preferred budget)")
		c.Flags().StringSliceVar(&planFields, "fields", nil, "Only include these professional fields")
		c.Flags().StringSliceVar(&planTypes, "types", nil, "Only include these course types")
		c.Flags().StringSliceVar(&planExclude, "exclude", nil, "Course IDs to leave out")
	}
	planSaveCmd.Flags().StringVar(&planName, "name", "", "Plan name")

	rootCmd.AddCommand(exportCmd)
	exportCmd.AddCommand(exportCoursesCmd)
	exportCmd.AddCommand(exportPlanCmd)
	for _, c := range []*cobra.Command{exportCoursesCmd, exportPlanCmd} {
		c.Flags().StringVarP(&exportFormat, "format", "f", "xlsx", "Output format: xlsx or md")
		c.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (defaults to the data directory)")
	}
	exportCoursesCmd.Flags().StringVar(&exportProvider, "provider", "", "Only export this provider")
	exportCoursesCmd.Flags().StringVar(&exportField, "field", "", "Only export this professional field")
}

// --- recommend ---

var recommendLimit int

var recommendCmd = &cobra.Command{
	Use:   "recommend <user-id>",
	Short: "Rank untracked courses for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		engine := newEngine(db)
		u, err := engine.UserContext(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		recs, err := engine.Recommend(cmd.Context(), args[0], recommendLimit)
		if err != nil {
			return err
		}

		fmt.Printf("Credits still needed this year: %s\n\n", formatFloat(u.CreditsNeeded))
		if len(recs) == 0 {
			fmt.Println("No untracked courses to recommend.")
			return nil
		}
		for i, r := range recs {
			fmt.Printf("%2d. [%3.0f] %s\n", i+1, r.Score, r.Course.Title)
			fmt.Printf("      %s | %s credits | %s | %s\n", r.Course.Provider, optFloat(r.Course.Credits), optFloat(r.Course.Price), r.Course.CourseType)
			fmt.Printf("      id: %s  reasons: %s\n", r.Course.ID, joinAny(r.Reasons))
		}
		return nil
	},
}

// --- plan ---

var (
	planCredits  float64
	planDeadline string
	planBudget   float64
	planFields   []string
	planTypes    []string
	planExclude  []string
	planName     string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Generate and inspect study plans",
}

func planRequest(cmd *cobra.Command) (recommend.PlanRequest, error) {
	req := recommend.PlanRequest{
		Name:             planName,
		TargetCredits:    planCredits,
		ExcludeCourseIDs: planExclude,
	}
	if planDeadline != "" {
		d, err := parseDate(planDeadline)
		if err != nil {
			return req, err
		}
		req.TargetDeadline = d
	}
	if cmd.Flags().Changed("budget") {
		req.MaxBudget = &planBudget
	}
	var err error
	if req.PreferredFields, err = parseFields(planFields); err != nil {
		return req, err
	}
	if req.PreferredCourseTypes, err = parseCourseTypes(planTypes); err != nil {
		return req, err
	}
	return req, nil
}

func generatePlan(cmd *cobra.Command, userID string) (*database.DB, *recommend.Engine, *recommend.GeneratedPlan, error) {
	req, err := planRequest(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	db, err := openDB()
	if err != nil {
		return nil, nil, nil, err
	}
	engine := newEngine(db)
	plan, err := engine.GeneratePlan(cmd.Context(), userID, req)
	if err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	return db, engine, plan, nil
}

var planGenerateCmd = &cobra.Command{
	Use:   "generate <user-id>",
	Short: "Preview a plan without saving it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, plan, err := generatePlan(cmd, args[0])
		if err != nil {
			return err
		}
		defer db.Close()

		fmt.Print(export.GeneratedPlanMarkdown(plan))
		fmt.Println("\nSave it with: ceucrawler plan save " + args[0])
		return nil
	},
}

var planSaveCmd = &cobra.Command{
	Use:   "save <user-id>",
	Short: "Generate a plan and save it, marking its courses as planned",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, engine, plan, err := generatePlan(cmd, args[0])
		if err != nil {
			return err
		}
		defer db.Close()

		fmt.Print(export.GeneratedPlanMarkdown(plan))
		if len(plan.Items) == 0 {
			return fmt.Errorf("plan has no courses, nothing saved")
		}
		saved, err := engine.SavePlan(cmd.Context(), plan, planName)
		if err != nil {
			return err
		}
		fmt.Printf("\nSaved plan %s (%s)\n", saved.ID, saved.Name)
		return nil
	},
}

var planShowCmd = &cobra.Command{
	Use:   "show <plan-id>",
	Short: "Show a saved plan and its progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		progress, err := newEngine(db).PlanProgress(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("plan %s: %w", args[0], err)
		}
		fmt.Print(export.PlanMarkdown(progress))
		return nil
	},
}

var planListCmd = &cobra.Command{
	Use:   "list <user-id>",
	Short: "List a user's saved plans",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		plans, err := db.ListPlans(args[0])
		if err != nil {
			return err
		}
		if len(plans) == 0 {
			fmt.Println("No saved plans.")
			return nil
		}
		for _, p := range plans {
			fmt.Printf("  [%s] %s  %s credits by %s\n", p.ID, p.Name, formatFloat(p.TargetCredits), p.TargetDeadline.Format(time.DateOnly))
		}
		return nil
	},
}

// --- export ---

var (
	exportFormat   string
	exportOutput   string
	exportProvider string
	exportField    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export courses or plans to xlsx or markdown",
}

var exportCoursesCmd = &cobra.Command{
	Use:   "courses",
	Short: "Export the course catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := database.CourseFilter{Provider: exportProvider}
		if exportField != "" {
			f, ok := database.ParseField(exportField)
			if !ok {
				return fmt.Errorf("unknown field %q", exportField)
			}
			filter.Field = f
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		courses, err := db.ListCourses(filter)
		if err != nil {
			return err
		}

		var data []byte
		switch exportFormat {
		case "xlsx":
			if data, err = export.CoursesXLSX(courses); err != nil {
				return err
			}
		case "md", "markdown":
			data = []byte(export.CoursesMarkdown(courses))
		default:
			return fmt.Errorf("unknown format %q (use xlsx or md)", exportFormat)
		}
		return writeExport(data, "courses")
	},
}

var exportPlanCmd = &cobra.Command{
	Use:   "plan <plan-id>",
	Short: "Export a saved plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		progress, err := newEngine(db).PlanProgress(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("plan %s: %w", args[0], err)
		}

		var data []byte
		switch exportFormat {
		case "xlsx":
			if data, err = export.PlanXLSX(progress); err != nil {
				return err
			}
		case "md", "markdown":
			data = []byte(export.PlanMarkdown(progress))
		default:
			return fmt.Errorf("unknown format %q (use xlsx or md)", exportFormat)
		}
		return writeExport(data, "plan-"+args[0])
	},
}

func writeExport(data []byte, base string) error {
	path := exportOutput
	if path == "" {
		ext := exportFormat
		if ext == "markdown" {
			ext = "md"
		}
		dir := filepath.Join(cfg.GetDataDir(), "exports")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating export directory: %w", err)
		}
		path = filepath.Join(dir, fmt.Sprintf("%s-%s.%s", base, time.Now().Format("20060102"), ext))
	}
	if path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}
