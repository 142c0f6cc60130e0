package database

import "fmt"

// CaptureStats returns capture counts by status, provider and page type,
// plus the course count and the most recent failures.
func (db *DB) CaptureStats(recentFailures int) (*CaptureStats, error) {
	s := &CaptureStats{
		ByStatus:   make(map[CaptureStatus]int),
		ByProvider: make(map[string]int),
		ByPageType: make(map[PageType]int),
	}

	groups := []struct {
		column string
		add    func(key string, n int)
	}{
		{"status", func(k string, n int) { s.ByStatus[CaptureStatus(k)] = n; s.Total += n }},
		{"provider", func(k string, n int) { s.ByProvider[k] = n }},
		{"page_type", func(k string, n int) { s.ByPageType[PageType(k)] = n }},
	}
	for _, g := range groups {
		rows, err := db.query(fmt.Sprintf("SELECT %s, COUNT(*) FROM raw_captures GROUP BY %s", g.column, g.column))
		if err != nil {
			return nil, fmt.Errorf("counting captures by %s: %w", g.column, err)
		}
		for rows.Next() {
			var key string
			var n int
			if err := rows.Scan(&key, &n); err != nil {
				rows.Close()
				return nil, err
			}
			g.add(key, n)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}

	var err error
	if s.Courses, err = db.CountCourses(); err != nil {
		return nil, err
	}
	if recentFailures > 0 {
		if s.RecentFailures, err = db.FailedCaptures(recentFailures); err != nil {
			return nil, err
		}
	}
	return s, nil
}
