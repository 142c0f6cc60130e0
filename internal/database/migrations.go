package database

import "strings"

// Migration represents a single schema migration step. Statements may use
// the {{float}} and {{blob}} tokens, which ddl expands per dialect.
type Migration struct {
	Version     int
	Description string
	Statements  []string
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "captures and courses",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS courses (
    id TEXT PRIMARY KEY,
    provider TEXT NOT NULL,
    title TEXT NOT NULL,
    url TEXT UNIQUE NOT NULL,
    description TEXT,
    instructors TEXT,
    price {{float}},
    price_string TEXT,
    original_price {{float}},
    credits {{float}},
    credits_string TEXT,
    credit_type TEXT,
    duration_minutes INTEGER,
    duration_string TEXT,
    category TEXT,
    field TEXT NOT NULL DEFAULT 'other',
    course_type TEXT NOT NULL DEFAULT 'unknown',
    start_date TEXT,
    end_date TEXT,
    registration_deadline TEXT,
    accreditations TEXT NOT NULL DEFAULT '[]',
    origin TEXT NOT NULL DEFAULT 'crawled',
    scraped_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
)`,
			`CREATE INDEX IF NOT EXISTS idx_courses_provider ON courses(provider)`,
			`CREATE INDEX IF NOT EXISTS idx_courses_field ON courses(field)`,
			`CREATE TABLE IF NOT EXISTS raw_captures (
    id TEXT PRIMARY KEY,
    url TEXT UNIQUE NOT NULL,
    provider TEXT NOT NULL,
    html {{blob}},
    page_type TEXT NOT NULL DEFAULT 'unknown',
    status TEXT NOT NULL DEFAULT 'pending',
    error_message TEXT,
    http_status INTEGER NOT NULL DEFAULT 0,
    source_url TEXT,
    course_id TEXT REFERENCES courses(id) ON DELETE SET NULL,
    crawled_at TEXT NOT NULL,
    processed_at TEXT
)`,
			`CREATE INDEX IF NOT EXISTS idx_raw_captures_queue ON raw_captures(status, page_type, crawled_at)`,
			`CREATE INDEX IF NOT EXISTS idx_raw_captures_provider ON raw_captures(provider)`,
		},
	},
	{
		Version:     2,
		Description: "planner tables",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS user_profiles (
    user_id TEXT PRIMARY KEY,
    profession TEXT NOT NULL DEFAULT 'other',
    required_annual_credits {{float}} NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
)`,
			`CREATE TABLE IF NOT EXISTS user_preferences (
    user_id TEXT PRIMARY KEY REFERENCES user_profiles(user_id) ON DELETE CASCADE,
    budget_min {{float}},
    budget_max {{float}},
    preferred_fields TEXT NOT NULL DEFAULT '[]',
    preferred_course_types TEXT NOT NULL DEFAULT '[]',
    available_days TEXT NOT NULL DEFAULT '[]',
    available_hours_per_week {{float}},
    compliance_deadline TEXT,
    updated_at TEXT NOT NULL
)`,
			`CREATE TABLE IF NOT EXISTS course_tracking (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES user_profiles(user_id) ON DELETE CASCADE,
    course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
    status TEXT NOT NULL DEFAULT 'planned',
    progress INTEGER NOT NULL DEFAULT 0,
    credits_earned {{float}},
    completed_date TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    UNIQUE (user_id, course_id)
)`,
			`CREATE INDEX IF NOT EXISTS idx_course_tracking_user ON course_tracking(user_id, status)`,
			`CREATE TABLE IF NOT EXISTS study_plans (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES user_profiles(user_id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    target_credits {{float}} NOT NULL,
    target_deadline TEXT NOT NULL,
    max_budget {{float}},
    created_at TEXT NOT NULL
)`,
			`CREATE TABLE IF NOT EXISTS study_plan_items (
    id TEXT PRIMARY KEY,
    plan_id TEXT NOT NULL REFERENCES study_plans(id) ON DELETE CASCADE,
    tracking_id TEXT NOT NULL REFERENCES course_tracking(id) ON DELETE CASCADE,
    priority INTEGER NOT NULL,
    scheduled_date TEXT NOT NULL
)`,
			`CREATE INDEX IF NOT EXISTS idx_study_plan_items_plan ON study_plan_items(plan_id, priority)`,
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}

// ddl expands dialect tokens in a DDL statement.
func ddl(d Dialect, stmt string) string {
	floatType, blobType := "REAL", "BLOB"
	if d == Postgres {
		floatType, blobType = "DOUBLE PRECISION", "BYTEA"
	}
	return strings.NewReplacer("{{float}}", floatType, "{{blob}}", blobType).Replace(stmt)
}
