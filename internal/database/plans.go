package database

import (
	"database/sql"
	"fmt"
	"time"
)

// SavePlan persists a plan and its items in one transaction. Each item gets
// a planned tracking record for its course unless one already exists.
func (db *DB) SavePlan(p *StudyPlan, items []PlanItemInput) error {
	if p.ID == "" {
		p.ID = newID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now()
	}

	return db.withTx(func(x *tx) error {
		_, err := x.exec(
			`INSERT INTO study_plans (id, user_id, name, target_credits, target_deadline, max_budget, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.UserID, p.Name, p.TargetCredits, p.TargetDeadline.Format(DateFormat),
			p.MaxBudget, formatTime(p.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("inserting plan: %w", err)
		}

		for _, item := range items {
			t, err := ensureTracking(x, p.UserID, item.CourseID, TrackingPlanned)
			if err != nil {
				return err
			}
			_, err = x.exec(
				`INSERT INTO study_plan_items (id, plan_id, tracking_id, priority, scheduled_date)
				VALUES (?, ?, ?, ?, ?)`,
				newID(), p.ID, t.ID, item.Priority, item.ScheduledDate.Format(DateFormat),
			)
			if err != nil {
				return fmt.Errorf("inserting plan item: %w", err)
			}
		}
		return nil
	})
}

const planColumns = "id, user_id, name, target_credits, target_deadline, max_budget, created_at"

// GetPlan returns a plan by ID, or nil if it does not exist.
func (db *DB) GetPlan(id string) (*StudyPlan, error) {
	p, err := scanPlan(db.queryRow("SELECT "+planColumns+" FROM study_plans WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListPlans returns a user's plans, newest first.
func (db *DB) ListPlans(userID string) ([]StudyPlan, error) {
	rows, err := db.query(
		"SELECT "+planColumns+" FROM study_plans WHERE user_id = ? ORDER BY created_at DESC, id DESC", userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StudyPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// PlanItems returns a plan's items in priority order. Status and course
// details come from the linked tracking and course rows.
func (db *DB) PlanItems(planID string) ([]StudyPlanItem, error) {
	rows, err := db.query(
		`SELECT i.id, i.plan_id, i.tracking_id, i.priority, i.scheduled_date,
			c.id, c.title, c.url, c.credits, c.price, t.status
		FROM study_plan_items i
		JOIN course_tracking t ON t.id = i.tracking_id
		JOIN courses c ON c.id = t.course_id
		WHERE i.plan_id = ?
		ORDER BY i.priority ASC`, planID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StudyPlanItem
	for rows.Next() {
		var (
			it             StudyPlanItem
			scheduled      string
			credits, price sql.NullFloat64
			status         string
		)
		if err := rows.Scan(&it.ID, &it.PlanID, &it.TrackingID, &it.Priority, &scheduled,
			&it.CourseID, &it.CourseTitle, &it.CourseURL, &credits, &price, &status); err != nil {
			return nil, err
		}
		it.ScheduledDate, _ = time.Parse(DateFormat, scheduled)
		it.Credits = nullFloat(credits)
		it.Price = nullFloat(price)
		it.Status = TrackingStatus(status)
		out = append(out, it)
	}
	return out, rows.Err()
}

func scanPlan(row rowScanner) (*StudyPlan, error) {
	var (
		p                   StudyPlan
		deadline, createdAt string
		maxBudget           sql.NullFloat64
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.TargetCredits, &deadline, &maxBudget, &createdAt); err != nil {
		return nil, err
	}
	p.TargetDeadline, _ = time.Parse(DateFormat, deadline)
	p.MaxBudget = nullFloat(maxBudget)
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}
