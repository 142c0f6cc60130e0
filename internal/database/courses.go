package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

const courseColumns = `id, provider, title, url, description, instructors, price, price_string,
	original_price, credits, credits_string, credit_type, duration_minutes, duration_string,
	category, field, course_type, start_date, end_date, registration_deadline, accreditations,
	origin, scraped_at, updated_at`

// UpsertCourse inserts or updates a course keyed by URL. Returns true when a
// new row was created. c.ID is set to the stored row's ID. The origin of an
// existing course is preserved.
func (db *DB) UpsertCourse(c *Course) (bool, error) {
	if c.Field == "" {
		c.Field = FieldOther
	}
	if c.CourseType == "" {
		c.CourseType = TypeUnknown
	}
	if c.Origin == "" {
		c.Origin = OriginCrawled
	}
	ts := now()
	if c.ScrapedAt.IsZero() {
		c.ScrapedAt = ts
	}
	c.UpdatedAt = ts

	instructors, err := encodeStrings(c.Instructors, true)
	if err != nil {
		return false, err
	}
	accreditations, err := encodeStrings(c.Accreditations, false)
	if err != nil {
		return false, err
	}

	candidate := newID()
	var id string
	err = db.queryRow(
		`INSERT INTO courses (id, provider, title, url, description, instructors, price, price_string,
			original_price, credits, credits_string, credit_type, duration_minutes, duration_string,
			category, field, course_type, start_date, end_date, registration_deadline, accreditations,
			origin, scraped_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (url) DO UPDATE SET
			provider = excluded.provider,
			title = excluded.title,
			description = excluded.description,
			instructors = excluded.instructors,
			price = excluded.price,
			price_string = excluded.price_string,
			original_price = excluded.original_price,
			credits = excluded.credits,
			credits_string = excluded.credits_string,
			credit_type = excluded.credit_type,
			duration_minutes = excluded.duration_minutes,
			duration_string = excluded.duration_string,
			category = excluded.category,
			field = excluded.field,
			course_type = excluded.course_type,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			registration_deadline = excluded.registration_deadline,
			accreditations = excluded.accreditations,
			scraped_at = excluded.scraped_at,
			updated_at = excluded.updated_at
		RETURNING id`,
		candidate, c.Provider, c.Title, c.URL, c.Description, instructors, c.Price, c.PriceString,
		c.OriginalPrice, c.Credits, c.CreditsString, c.CreditType, c.DurationMinutes, c.DurationString,
		c.Category, string(c.Field), string(c.CourseType),
		formatDatePtr(c.StartDate), formatDatePtr(c.EndDate), formatDatePtr(c.RegistrationDeadline),
		accreditations, string(c.Origin), formatTime(c.ScrapedAt), formatTime(c.UpdatedAt),
	).Scan(&id)
	if err != nil {
		return false, fmt.Errorf("upserting course %s: %w", c.URL, err)
	}
	c.ID = id
	return id == candidate, nil
}

// GetCourse returns a course by ID, or nil if it does not exist.
func (db *DB) GetCourse(id string) (*Course, error) {
	row := db.queryRow("SELECT "+courseColumns+" FROM courses WHERE id = ?", id)
	c, err := scanCourse(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetCourseByURL returns a course by URL, or nil if it does not exist.
func (db *DB) GetCourseByURL(url string) (*Course, error) {
	row := db.queryRow("SELECT "+courseColumns+" FROM courses WHERE url = ?", url)
	c, err := scanCourse(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// CourseFilter narrows ListCourses. Zero values match everything.
type CourseFilter struct {
	Provider string
	Field    Field
	Origin   Origin
	Limit    int
}

// ListCourses returns courses matching the filter, newest first.
func (db *DB) ListCourses(f CourseFilter) ([]Course, error) {
	query := "SELECT " + courseColumns + " FROM courses WHERE 1=1"
	var args []any
	if f.Provider != "" {
		query += " AND provider = ?"
		args = append(args, f.Provider)
	}
	if f.Field != "" {
		query += " AND field = ?"
		args = append(args, string(f.Field))
	}
	if f.Origin != "" {
		query += " AND origin = ?"
		args = append(args, string(f.Origin))
	}
	query += " ORDER BY scraped_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := db.query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCourses(rows)
}

// UntrackedCrawledCourses returns crawled courses the user is not tracking.
// These are the recommendation candidates.
func (db *DB) UntrackedCrawledCourses(userID string) ([]Course, error) {
	rows, err := db.query(
		"SELECT "+courseColumns+` FROM courses
		WHERE origin = 'crawled'
		AND id NOT IN (SELECT course_id FROM course_tracking WHERE user_id = ?)
		ORDER BY scraped_at DESC, id DESC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCourses(rows)
}

// CountCourses returns the number of stored courses.
func (db *DB) CountCourses() (int, error) {
	var n int
	err := db.queryRow("SELECT COUNT(*) FROM courses").Scan(&n)
	return n, err
}

func scanCourse(row rowScanner) (*Course, error) {
	var (
		c                                         Course
		desc, instructors, priceStr, creditsStr   sql.NullString
		creditType, durationStr, category         sql.NullString
		startDate, endDate, regDeadline           sql.NullString
		price, origPrice, credits                 sql.NullFloat64
		duration                                  sql.NullInt64
		field, courseType, accreditations, origin string
		scrapedAt, updatedAt                      string
	)
	err := row.Scan(&c.ID, &c.Provider, &c.Title, &c.URL, &desc, &instructors, &price, &priceStr,
		&origPrice, &credits, &creditsStr, &creditType, &duration, &durationStr,
		&category, &field, &courseType, &startDate, &endDate, &regDeadline, &accreditations,
		&origin, &scrapedAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	c.Description = nullString(desc)
	c.Price = nullFloat(price)
	c.PriceString = nullString(priceStr)
	c.OriginalPrice = nullFloat(origPrice)
	c.Credits = nullFloat(credits)
	c.CreditsString = nullString(creditsStr)
	c.CreditType = nullString(creditType)
	c.DurationMinutes = nullInt(duration)
	c.DurationString = nullString(durationStr)
	c.Category = nullString(category)
	c.Field = Field(field)
	c.CourseType = CourseType(courseType)
	c.StartDate = parseDatePtr(startDate)
	c.EndDate = parseDatePtr(endDate)
	c.RegistrationDeadline = parseDatePtr(regDeadline)
	c.Origin = Origin(origin)
	c.ScrapedAt = parseTime(scrapedAt)
	c.UpdatedAt = parseTime(updatedAt)

	if instructors.Valid && instructors.String != "" {
		_ = json.Unmarshal([]byte(instructors.String), &c.Instructors)
	}
	_ = json.Unmarshal([]byte(accreditations), &c.Accreditations)
	return &c, nil
}

func scanCourses(rows *sql.Rows) ([]Course, error) {
	var out []Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// encodeStrings stores a string list as a JSON array. When nullable, an
// empty list is stored as NULL.
func encodeStrings(values []string, nullable bool) (any, error) {
	if len(values) == 0 {
		if nullable {
			return nil, nil
		}
		return "[]", nil
	}
	b, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("encoding list: %w", err)
	}
	return string(b), nil
}
