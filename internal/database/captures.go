package database

import (
	"database/sql"
	"fmt"
)

const captureColumns = `id, url, provider, html, page_type, status, error_message,
	http_status, source_url, course_id, crawled_at, processed_at`

// UpsertCapture stores a crawled page keyed by URL. A re-crawl overwrites the
// HTML, status code, page type and crawl time and resets the capture to
// pending so the fresh HTML is extracted again. Returns true when a new row
// was created. c.ID is set to the stored row's ID.
func (db *DB) UpsertCapture(c *RawCapture) (bool, error) {
	blob, err := compressHTML(c.HTML)
	if err != nil {
		return false, err
	}
	if c.CrawledAt.IsZero() {
		c.CrawledAt = now()
	}
	if c.PageType == "" {
		c.PageType = PageUnknown
	}
	status := StatusPending
	if c.Status == StatusFailed {
		status = StatusFailed
	}

	candidate := newID()
	var id string
	err = db.queryRow(
		`INSERT INTO raw_captures (id, url, provider, html, page_type, status, error_message,
			http_status, source_url, crawled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (url) DO UPDATE SET
			html = excluded.html,
			page_type = excluded.page_type,
			status = excluded.status,
			error_message = excluded.error_message,
			http_status = excluded.http_status,
			source_url = COALESCE(excluded.source_url, raw_captures.source_url),
			crawled_at = excluded.crawled_at,
			processed_at = NULL
		RETURNING id`,
		candidate, c.URL, c.Provider, blob, string(c.PageType), string(status), c.ErrorMessage,
		c.HTTPStatus, c.SourceURL, formatTime(c.CrawledAt),
	).Scan(&id)
	if err != nil {
		return false, fmt.Errorf("upserting capture %s: %w", c.URL, err)
	}
	c.ID = id
	c.Status = status
	return id == candidate, nil
}

// GetCapture returns a capture by ID, or nil if it does not exist.
func (db *DB) GetCapture(id string) (*RawCapture, error) {
	row := db.queryRow("SELECT "+captureColumns+" FROM raw_captures WHERE id = ?", id)
	c, err := scanCapture(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetCaptureByURL returns a capture by URL, or nil if it does not exist.
func (db *DB) GetCaptureByURL(url string) (*RawCapture, error) {
	row := db.queryRow("SELECT "+captureColumns+" FROM raw_captures WHERE url = ?", url)
	c, err := scanCapture(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// SkipPendingNonDetail marks pending captures that are not course detail
// pages as skipped. An empty provider matches all providers.
func (db *DB) SkipPendingNonDetail(provider string) (int, error) {
	query := `UPDATE raw_captures SET status = 'skipped', processed_at = ?
		WHERE status = 'pending' AND page_type <> 'course_detail'`
	args := []any{formatTime(now())}
	if provider != "" {
		query += " AND provider = ?"
		args = append(args, provider)
	}
	res, err := db.exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("skipping non-detail captures: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// PendingDetailCaptures returns up to limit pending course_detail captures,
// oldest crawl first. The HTML is loaded.
func (db *DB) PendingDetailCaptures(provider string, limit int) ([]RawCapture, error) {
	query := "SELECT " + captureColumns + ` FROM raw_captures
		WHERE status = 'pending' AND page_type = 'course_detail'`
	var args []any
	if provider != "" {
		query += " AND provider = ?"
		args = append(args, provider)
	}
	query += " ORDER BY crawled_at ASC, id ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := db.query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCaptures(rows)
}

// ClaimCapture atomically moves a capture from pending to processing.
// It returns false when another process claimed it first.
func (db *DB) ClaimCapture(id string) (bool, error) {
	res, err := db.exec(
		"UPDATE raw_captures SET status = 'processing' WHERE id = ? AND status = 'pending'", id,
	)
	if err != nil {
		return false, fmt.Errorf("claiming capture %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkCaptureSuccess records a successful extraction.
func (db *DB) MarkCaptureSuccess(id, courseID string) error {
	_, err := db.exec(
		`UPDATE raw_captures SET status = 'success', course_id = ?, error_message = NULL, processed_at = ?
		WHERE id = ?`,
		courseID, formatTime(now()), id,
	)
	return err
}

// MarkCaptureFailed records a failed extraction with its error message.
func (db *DB) MarkCaptureFailed(id, message string) error {
	_, err := db.exec(
		"UPDATE raw_captures SET status = 'failed', error_message = ?, processed_at = ? WHERE id = ?",
		message, formatTime(now()), id,
	)
	return err
}

// ResetCapture puts a capture back to pending and clears its error.
func (db *DB) ResetCapture(id string) error {
	res, err := db.exec(
		`UPDATE raw_captures SET status = 'pending', error_message = NULL, processed_at = NULL
		WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("resetting capture %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("capture %s: %w", id, ErrNotFound)
	}
	return nil
}

// ResetFailedCaptures puts every failed capture back to pending. An empty
// provider matches all providers.
func (db *DB) ResetFailedCaptures(provider string) (int, error) {
	query := `UPDATE raw_captures SET status = 'pending', error_message = NULL, processed_at = NULL
		WHERE status = 'failed'`
	var args []any
	if provider != "" {
		query += " AND provider = ?"
		args = append(args, provider)
	}
	res, err := db.exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("resetting failed captures: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// FailedCaptures returns the most recently processed failed captures,
// without their HTML.
func (db *DB) FailedCaptures(limit int) ([]RawCapture, error) {
	query := `SELECT id, url, provider, NULL, page_type, status, error_message,
		http_status, source_url, course_id, crawled_at, processed_at
		FROM raw_captures WHERE status = 'failed'
		ORDER BY COALESCE(processed_at, crawled_at) DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := db.query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCaptures(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCapture(row rowScanner) (*RawCapture, error) {
	var (
		c                     RawCapture
		html                  []byte
		pageType, status      string
		errMsg, src, courseID sql.NullString
		crawledAt             string
		processedAt           sql.NullString
	)
	err := row.Scan(&c.ID, &c.URL, &c.Provider, &html, &pageType, &status, &errMsg,
		&c.HTTPStatus, &src, &courseID, &crawledAt, &processedAt)
	if err != nil {
		return nil, err
	}
	c.HTML, err = decompressHTML(html)
	if err != nil {
		return nil, fmt.Errorf("capture %s: %w", c.ID, err)
	}
	c.PageType = PageType(pageType)
	c.Status = CaptureStatus(status)
	c.ErrorMessage = nullString(errMsg)
	c.SourceURL = nullString(src)
	c.CourseID = nullString(courseID)
	c.CrawledAt = parseTime(crawledAt)
	c.ProcessedAt = parseTimePtr(processedAt)
	return &c, nil
}

func scanCaptures(rows *sql.Rows) ([]RawCapture, error) {
	var out []RawCapture
	for rows.Next() {
		c, err := scanCapture(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
