package database

import (
	"database/sql"
	"fmt"
	"time"
)

const trackingColumns = `t.id, t.user_id, t.course_id, t.status, t.progress, t.credits_earned,
	t.completed_date, t.created_at, t.updated_at, c.title`

// AddTracking starts tracking a course for a user. Tracking the same course
// twice returns the existing record unchanged.
func (db *DB) AddTracking(userID, courseID string, status TrackingStatus) (*Tracking, error) {
	var t *Tracking
	err := db.withTx(func(x *tx) error {
		var err error
		t, err = ensureTracking(x, userID, courseID, status)
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func ensureTracking(x *tx, userID, courseID string, status TrackingStatus) (*Tracking, error) {
	if status == "" {
		status = TrackingPlanned
	}
	ts := formatTime(now())
	_, err := x.exec(
		`INSERT INTO course_tracking (id, user_id, course_id, status, progress, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT (user_id, course_id) DO NOTHING`,
		newID(), userID, courseID, string(status), ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("tracking course %s for %s: %w", courseID, userID, err)
	}
	row := x.queryRow(
		"SELECT "+trackingColumns+` FROM course_tracking t JOIN courses c ON c.id = t.course_id
		WHERE t.user_id = ? AND t.course_id = ?`, userID, courseID,
	)
	return scanTracking(row)
}

// GetTracking returns a user's tracking record for a course, or nil.
func (db *DB) GetTracking(userID, courseID string) (*Tracking, error) {
	row := db.queryRow(
		"SELECT "+trackingColumns+` FROM course_tracking t JOIN courses c ON c.id = t.course_id
		WHERE t.user_id = ? AND t.course_id = ?`, userID, courseID,
	)
	t, err := scanTracking(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// StartTracking moves a tracking record to in_progress.
func (db *DB) StartTracking(userID, courseID string, progress int) error {
	res, err := db.exec(
		`UPDATE course_tracking SET status = 'in_progress', progress = ?, updated_at = ?
		WHERE user_id = ? AND course_id = ?`,
		clampProgress(progress), formatTime(now()), userID, courseID,
	)
	return expectOne(res, err, "tracking "+userID+"/"+courseID)
}

// CompleteTracking marks a course completed with the credits earned.
func (db *DB) CompleteTracking(userID, courseID string, creditsEarned *float64, completed time.Time) error {
	res, err := db.exec(
		`UPDATE course_tracking SET status = 'completed', progress = 100, credits_earned = ?,
			completed_date = ?, updated_at = ?
		WHERE user_id = ? AND course_id = ?`,
		creditsEarned, completed.Format(DateFormat), formatTime(now()), userID, courseID,
	)
	return expectOne(res, err, "tracking "+userID+"/"+courseID)
}

// ListTrackings returns a user's tracking records, optionally filtered by
// status, most recently updated first.
func (db *DB) ListTrackings(userID string, status TrackingStatus) ([]Tracking, error) {
	query := "SELECT " + trackingColumns + ` FROM course_tracking t JOIN courses c ON c.id = t.course_id
		WHERE t.user_id = ?`
	args := []any{userID}
	if status != "" {
		query += " AND t.status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY t.updated_at DESC, t.id DESC"

	rows, err := db.query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Tracking
	for rows.Next() {
		t, err := scanTracking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// CompletedCredits sums credits earned on courses completed in [from, to).
func (db *DB) CompletedCredits(userID string, from, to time.Time) (float64, error) {
	var total sql.NullFloat64
	err := db.queryRow(
		`SELECT SUM(credits_earned) FROM course_tracking
		WHERE user_id = ? AND status = 'completed'
		AND completed_date >= ? AND completed_date < ?`,
		userID, from.Format(DateFormat), to.Format(DateFormat),
	).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total.Float64, nil
}

func scanTracking(row rowScanner) (*Tracking, error) {
	var (
		t                    Tracking
		status               string
		credits              sql.NullFloat64
		completed            sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&t.ID, &t.UserID, &t.CourseID, &status, &t.Progress, &credits,
		&completed, &createdAt, &updatedAt, &t.CourseTitle)
	if err != nil {
		return nil, err
	}
	t.Status = TrackingStatus(status)
	t.CreditsEarned = nullFloat(credits)
	t.CompletedDate = parseDatePtr(completed)
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}

func clampProgress(p int) int {
	return max(0, min(100, p))
}

func expectOne(res sql.Result, err error, what string) error {
	if err != nil {
		return fmt.Errorf("updating %s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
