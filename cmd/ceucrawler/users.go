package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/CEUCrawler/internal/database"
)

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userSetCmd)
	userCmd.AddCommand(userListCmd)
	userSetCmd.Flags().StringVar(&userProfession, "profession", "other", "Professional field")
	userSetCmd.Flags().Float64Var(&userCredits, "required-credits", 0, "Credits required per calendar year")

	rootCmd.AddCommand(prefsCmd)
	prefsCmd.AddCommand(prefsSetCmd)
	prefsCmd.AddCommand(prefsShowCmd)
	prefsSetCmd.Flags().Float64Var(&prefsBudgetMin, "budget-min", 0, "Minimum budget")
	prefsSetCmd.Flags().Float64Var(&prefsBudgetMax, "budget-max", 0, "Maximum budget")
	prefsSetCmd.Flags().StringSliceVar(&prefsFields, "fields", nil, "Preferred professional fields")
	prefsSetCmd.Flags().StringSliceVar(&prefsTypes, "types", nil, "Preferred course types")
	prefsSetCmd.Flags().StringSliceVar(&prefsDays, "days", nil, "Available weekdays")
	prefsSetCmd.Flags().Float64Var(&prefsHours, "hours", 0, "Available hours per week")
	prefsSetCmd.Flags().StringVar(&prefsDeadline, "deadline", "", "Compliance deadline")

	rootCmd.AddCommand(trackCmd)
	trackCmd.AddCommand(trackAddCmd)
	trackCmd.AddCommand(trackStartCmd)
	trackCmd.AddCommand(trackCompleteCmd)
	trackCmd.AddCommand(trackListCmd)
	trackStartCmd.Flags().IntVar(&trackProgress, "progress", 0, "Progress percentage")
	trackCompleteCmd.Flags().Float64Var(&trackCredits, "credits", 0, "Credits earned (defaults to the course credits)")
	trackCompleteCmd.Flags().StringVar(&trackDate, "date", "", "Completion date (defaults to today)")
	trackListCmd.Flags().StringVar(&trackStatus, "status", "", "Filter by status: planned, in_progress, completed")

	rootCmd.AddCommand(courseCmd)
	courseCmd.AddCommand(courseAddCmd)
	courseCmd.AddCommand(courseListCmd)
	courseAddCmd.Flags().StringVar(&courseTitle, "title", "", "Course title")
	courseAddCmd.Flags().StringVar(&courseURL, "url", "", "Course URL")
	courseAddCmd.Flags().StringVar(&courseProvider, "provider", "manual", "Provider name")
	courseAddCmd.Flags().Float64Var(&courseCredits, "credits", 0, "Credit hours")
	courseAddCmd.Flags().Float64Var(&coursePrice, "price", 0, "Price")
	courseAddCmd.Flags().StringVar(&courseField, "field", "other", "Professional field")
	courseAddCmd.Flags().StringVar(&courseType, "type", "unknown", "Course type")
	courseAddCmd.Flags().StringVar(&courseStart, "start", "", "Start date")
	_ = courseAddCmd.MarkFlagRequired("title")
	_ = courseAddCmd.MarkFlagRequired("url")
	courseListCmd.Flags().StringVar(&listProvider, "provider", "", "Filter by provider")
	courseListCmd.Flags().StringVar(&listField, "field", "", "Filter by professional field")
	courseListCmd.Flags().IntVarP(&courseLimit, "limit", "n", 50, "Maximum courses to list")
}

func parseDate(s string) (time.Time, error) {
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

func parseFields(values []string) ([]database.Field, error) {
	out := make([]database.Field, 0, len(values))
	for _, v := range values {
		f, ok := database.ParseField(strings.TrimSpace(v))
		if !ok {
			return nil, fmt.Errorf("unknown field %q (valid: %s)", v, joinAny(database.Fields))
		}
		out = append(out, f)
	}
	return out, nil
}

func parseCourseTypes(values []string) ([]database.CourseType, error) {
	out := make([]database.CourseType, 0, len(values))
	for _, v := range values {
		ct, ok := database.ParseCourseType(strings.TrimSpace(v))
		if !ok {
			return nil, fmt.Errorf("unknown course type %q (valid: %s)", v, joinAny(database.CourseTypes))
		}
		out = append(out, ct)
	}
	return out, nil
}

func joinAny[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}

// --- user ---

var (
	userProfession string
	userCredits    float64
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user profiles",
}

var userSetCmd = &cobra.Command{
	Use:   "set <user-id>",
	Short: "Create or update a user profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		field, ok := database.ParseField(userProfession)
		if !ok {
			return fmt.Errorf("unknown profession %q (valid: %s)", userProfession, joinAny(database.Fields))
		}
		if userCredits < 0 {
			return fmt.Errorf("required credits must not be negative")
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		p := &database.UserProfile{UserID: args[0], Profession: field, RequiredAnnualCredits: userCredits}
		if existing, err := db.GetUserProfile(args[0]); err != nil {
			return err
		} else if existing != nil {
			if !cmd.Flags().Changed("profession") {
				p.Profession = existing.Profession
			}
			if !cmd.Flags().Changed("required-credits") {
				p.RequiredAnnualCredits = existing.RequiredAnnualCredits
			}
		}
		if err := db.UpsertUserProfile(p); err != nil {
			return err
		}
		fmt.Printf("User %s: %s, %s credits/year\n", p.UserID, p.Profession, formatFloat(p.RequiredAnnualCredits))
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List user profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		users, err := db.ListUserProfiles()
		if err != nil {
			return err
		}
		if len(users) == 0 {
			fmt.Println("No users yet. Add one with: ceucrawler user set <id>")
			return nil
		}
		for _, u := range users {
			fmt.Printf("  %s  %s  %s credits/year\n", u.UserID, u.Profession, formatFloat(u.RequiredAnnualCredits))
		}
		return nil
	},
}

// --- prefs ---

var (
	prefsBudgetMin float64
	prefsBudgetMax float64
	prefsFields    []string
	prefsTypes     []string
	prefsDays      []string
	prefsHours     float64
	prefsDeadline  string
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Manage planner preferences",
}

var prefsSetCmd = &cobra.Command{
	Use:   "set <user-id>",
	Short: "Update preferences; only the given flags change",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		prefs, err := db.GetOrCreatePreferences(args[0])
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		if flags.Changed("budget-min") {
			prefs.BudgetMin = &prefsBudgetMin
		}
		if flags.Changed("budget-max") {
			prefs.BudgetMax = &prefsBudgetMax
		}
		if prefs.BudgetMin != nil && prefs.BudgetMax != nil && *prefs.BudgetMin > *prefs.BudgetMax {
			return fmt.Errorf("budget-min %s exceeds budget-max %s", formatFloat(*prefs.BudgetMin), formatFloat(*prefs.BudgetMax))
		}
		if flags.Changed("fields") {
			if prefs.PreferredFields, err = parseFields(prefsFields); err != nil {
				return err
			}
		}
		if flags.Changed("types") {
			if prefs.PreferredCourseTypes, err = parseCourseTypes(prefsTypes); err != nil {
				return err
			}
		}
		if flags.Changed("days") {
			prefs.AvailableDays = prefsDays
		}
		if flags.Changed("hours") {
			prefs.AvailableHoursPerWeek = &prefsHours
		}
		if flags.Changed("deadline") {
			d, err := parseDate(prefsDeadline)
			if err != nil {
				return err
			}
			prefs.ComplianceDeadline = &d
		}

		if err := db.SavePreferences(prefs); err != nil {
			return err
		}
		printPrefs(prefs)
		return nil
	},
}

var prefsShowCmd = &cobra.Command{
	Use:   "show <user-id>",
	Short: "Show a user's preferences",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		prefs, err := db.GetOrCreatePreferences(args[0])
		if err != nil {
			return err
		}
		printPrefs(prefs)
		return nil
	},
}

func printPrefs(p *database.UserPreferences) {
	fmt.Printf("Preferences for %s:\n", p.UserID)
	fmt.Printf("  Budget: %s - %s\n", optFloat(p.BudgetMin), optFloat(p.BudgetMax))
	fmt.Printf("  Fields: %s\n", joinAny(p.PreferredFields))
	fmt.Printf("  Course types: %s\n", joinAny(p.PreferredCourseTypes))
	fmt.Printf("  Days: %s\n", strings.Join(p.AvailableDays, ", "))
	fmt.Printf("  Hours/week: %s\n", optFloat(p.AvailableHoursPerWeek))
	deadline := "-"
	if p.ComplianceDeadline != nil {
		deadline = p.ComplianceDeadline.Format(time.DateOnly)
	}
	fmt.Printf("  Compliance deadline: %s\n", deadline)
}

// --- track ---

var (
	trackProgress int
	trackCredits  float64
	trackDate     string
	trackStatus   string
)

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Track course progress",
}

var trackAddCmd = &cobra.Command{
	Use:   "add <user-id> <course-id>",
	Short: "Mark a course as planned",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := requireCourse(db, args[1]); err != nil {
			return err
		}
		t, err := db.AddTracking(args[0], args[1], database.TrackingPlanned)
		if err != nil {
			return err
		}
		fmt.Printf("Tracking %s: %s\n", t.ID, t.Status)
		return nil
	},
}

var trackStartCmd = &cobra.Command{
	Use:   "start <user-id> <course-id>",
	Short: "Mark a course as in progress",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := requireCourse(db, args[1]); err != nil {
			return err
		}
		if err := db.StartTracking(args[0], args[1], trackProgress); err != nil {
			return err
		}
		fmt.Printf("Course %s in progress (%d%%)\n", args[1], trackProgress)
		return nil
	},
}

var trackCompleteCmd = &cobra.Command{
	Use:   "complete <user-id> <course-id>",
	Short: "Mark a course as completed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := requireCourse(db, args[1]); err != nil {
			return err
		}
		date := time.Now().UTC()
		if trackDate != "" {
			if date, err = parseDate(trackDate); err != nil {
				return err
			}
		}
		var earned *float64
		if cmd.Flags().Changed("credits") {
			earned = &trackCredits
		}
		if err := db.CompleteTracking(args[0], args[1], earned, date); err != nil {
			return err
		}
		fmt.Printf("Course %s completed on %s\n", args[1], date.Format(time.DateOnly))
		return nil
	},
}

var trackListCmd = &cobra.Command{
	Use:   "list <user-id>",
	Short: "List tracked courses",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status := database.TrackingStatus(trackStatus)
		switch status {
		case "", database.TrackingPlanned, database.TrackingInProgress, database.TrackingCompleted:
		default:
			return fmt.Errorf("unknown status %q", trackStatus)
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		trackings, err := db.ListTrackings(args[0], status)
		if err != nil {
			return err
		}
		if len(trackings) == 0 {
			fmt.Println("No tracked courses.")
			return nil
		}
		for _, t := range trackings {
			extra := ""
			switch t.Status {
			case database.TrackingInProgress:
				extra = fmt.Sprintf(" %d%%", t.Progress)
			case database.TrackingCompleted:
				if t.CompletedDate != nil {
					extra = " " + t.CompletedDate.Format(time.DateOnly)
				}
				if t.CreditsEarned != nil {
					extra += fmt.Sprintf(", %s credits", formatFloat(*t.CreditsEarned))
				}
			}
			fmt.Printf("  [%s] %-11s%s  %s\n", t.CourseID, t.Status, extra, t.CourseTitle)
		}
		return nil
	},
}

func requireCourse(db *database.DB, id string) error {
	c, err := db.GetCourse(id)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("course %s: %w", id, database.ErrNotFound)
	}
	return nil
}

// --- course ---

var (
	courseTitle    string
	courseURL      string
	courseProvider string
	courseCredits  float64
	coursePrice    float64
	courseField    string
	courseType     string
	courseStart    string

	listProvider string
	listField    string
	courseLimit  int
)

var courseCmd = &cobra.Command{
	Use:   "course",
	Short: "Browse and add courses",
}

var courseAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a course by hand",
	RunE: func(cmd *cobra.Command, args []string) error {
		field, ok := database.ParseField(courseField)
		if !ok {
			return fmt.Errorf("unknown field %q (valid: %s)", courseField, joinAny(database.Fields))
		}
		ct := database.TypeUnknown
		if courseType != string(database.TypeUnknown) {
			if ct, ok = database.ParseCourseType(courseType); !ok {
				return fmt.Errorf("unknown course type %q (valid: %s)", courseType, joinAny(database.CourseTypes))
			}
		}

		c := &database.Course{
			Title:      courseTitle,
			URL:        courseURL,
			Provider:   courseProvider,
			Field:      field,
			CourseType: ct,
			Origin:     database.OriginManual,
		}
		if cmd.Flags().Changed("credits") {
			c.Credits = &courseCredits
		}
		if cmd.Flags().Changed("price") {
			c.Price = &coursePrice
		}
		if courseStart != "" {
			d, err := parseDate(courseStart)
			if err != nil {
				return err
			}
			c.StartDate = &d
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		created, err := db.UpsertCourse(c)
		if err != nil {
			return err
		}
		verb := "Updated"
		if created {
			verb = "Added"
		}
		fmt.Printf("%s course %s: %s\n", verb, c.ID, c.Title)
		return nil
	},
}

var courseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List courses in the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := database.CourseFilter{Provider: listProvider, Limit: courseLimit}
		if listField != "" {
			f, ok := database.ParseField(listField)
			if !ok {
				return fmt.Errorf("unknown field %q", listField)
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
		if len(courses) == 0 {
			fmt.Println("No courses. Run 'ceucrawler run' or add one with 'ceucrawler course add'.")
			return nil
		}
		for _, c := range courses {
			fmt.Printf("  [%s] %s\n", c.ID, c.Title)
			fmt.Printf("      %s | %s | %s credits | %s\n", c.Provider, c.Field, optFloat(c.Credits), optFloat(c.Price))
		}
		return nil
	},
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%g", v)
}

func optFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return formatFloat(*v)
}
