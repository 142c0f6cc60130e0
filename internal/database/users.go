package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// UpsertUserProfile creates or updates a user's profile.
func (db *DB) UpsertUserProfile(p *UserProfile) error {
	if p.Profession == "" {
		p.Profession = FieldOther
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now()
	}
	_, err := db.exec(
		`INSERT INTO user_profiles (user_id, profession, required_annual_credits, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			profession = excluded.profession,
			required_annual_credits = excluded.required_annual_credits`,
		p.UserID, string(p.Profession), p.RequiredAnnualCredits, formatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving profile %s: %w", p.UserID, err)
	}
	return nil
}

// GetUserProfile returns a profile, or nil if the user does not exist.
func (db *DB) GetUserProfile(userID string) (*UserProfile, error) {
	var (
		p          UserProfile
		profession string
		createdAt  string
	)
	err := db.queryRow(
		"SELECT user_id, profession, required_annual_credits, created_at FROM user_profiles WHERE user_id = ?",
		userID,
	).Scan(&p.UserID, &profession, &p.RequiredAnnualCredits, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Profession = Field(profession)
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

// ListUserProfiles returns all users ordered by ID.
func (db *DB) ListUserProfiles() ([]UserProfile, error) {
	rows, err := db.query(
		"SELECT user_id, profession, required_annual_credits, created_at FROM user_profiles ORDER BY user_id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UserProfile
	for rows.Next() {
		var p UserProfile
		var profession, createdAt string
		if err := rows.Scan(&p.UserID, &profession, &p.RequiredAnnualCredits, &createdAt); err != nil {
			return nil, err
		}
		p.Profession = Field(profession)
		p.CreatedAt = parseTime(createdAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// SavePreferences creates or replaces a user's planner preferences.
func (db *DB) SavePreferences(p *UserPreferences) error {
	fields, err := json.Marshal(nonNil(p.PreferredFields))
	if err != nil {
		return err
	}
	types, err := json.Marshal(nonNil(p.PreferredCourseTypes))
	if err != nil {
		return err
	}
	days, err := json.Marshal(nonNil(p.AvailableDays))
	if err != nil {
		return err
	}
	p.UpdatedAt = now()

	_, err = db.exec(
		`INSERT INTO user_preferences (user_id, budget_min, budget_max, preferred_fields,
			preferred_course_types, available_days, available_hours_per_week, compliance_deadline, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			budget_min = excluded.budget_min,
			budget_max = excluded.budget_max,
			preferred_fields = excluded.preferred_fields,
			preferred_course_types = excluded.preferred_course_types,
			available_days = excluded.available_days,
			available_hours_per_week = excluded.available_hours_per_week,
			compliance_deadline = excluded.compliance_deadline,
			updated_at = excluded.updated_at`,
		p.UserID, p.BudgetMin, p.BudgetMax, string(fields), string(types), string(days),
		p.AvailableHoursPerWeek, formatDatePtr(p.ComplianceDeadline), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving preferences %s: %w", p.UserID, err)
	}
	return nil
}

// GetPreferences returns a user's preferences, or nil if none were saved.
func (db *DB) GetPreferences(userID string) (*UserPreferences, error) {
	var (
		p                    UserPreferences
		budgetMin, budgetMax sql.NullFloat64
		hours                sql.NullFloat64
		fields, types, days  string
		deadline             sql.NullString
		updatedAt            string
	)
	err := db.queryRow(
		`SELECT user_id, budget_min, budget_max, preferred_fields, preferred_course_types,
			available_days, available_hours_per_week, compliance_deadline, updated_at
		FROM user_preferences WHERE user_id = ?`, userID,
	).Scan(&p.UserID, &budgetMin, &budgetMax, &fields, &types, &days, &hours, &deadline, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.BudgetMin = nullFloat(budgetMin)
	p.BudgetMax = nullFloat(budgetMax)
	p.AvailableHoursPerWeek = nullFloat(hours)
	p.ComplianceDeadline = parseDatePtr(deadline)
	p.UpdatedAt = parseTime(updatedAt)
	_ = json.Unmarshal([]byte(fields), &p.PreferredFields)
	_ = json.Unmarshal([]byte(types), &p.PreferredCourseTypes)
	_ = json.Unmarshal([]byte(days), &p.AvailableDays)
	return &p, nil
}

// GetOrCreatePreferences returns the user's preferences, creating an empty
// set on first use.
func (db *DB) GetOrCreatePreferences(userID string) (*UserPreferences, error) {
	p, err := db.GetPreferences(userID)
	if err != nil || p != nil {
		return p, err
	}
	p = &UserPreferences{UserID: userID}
	if err := db.SavePreferences(p); err != nil {
		return nil, err
	}
	return p, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
