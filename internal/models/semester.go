package models

import "time"

// Semester is an academic term with an explicit registration window.
type Semester struct {
	ID                    string    `db:"id" json:"id"`
	Name                  string    `db:"name" json:"name"`
	AcademicYear          string    `db:"academic_year" json:"academic_year"`
	StartDate             time.Time `db:"start_date" json:"start_date"`
	EndDate               time.Time `db:"end_date" json:"end_date"`
	RegistrationStartDate time.Time `db:"registration_start_date" json:"registration_start_date"`
	RegistrationEndDate   time.Time `db:"registration_end_date" json:"registration_end_date"`
	IsActive              bool      `db:"is_active" json:"is_active"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time `db:"updated_at" json:"updated_at"`
}

// RegistrationOpenAt reports whether the registration window covers the
// provided instant.
func (s Semester) RegistrationOpenAt(now time.Time) bool {
	return !now.Before(s.RegistrationStartDate) && !now.After(s.RegistrationEndDate)
}

// SemesterFilter defines filters supported by list endpoints.
type SemesterFilter struct {
	AcademicYear string
	IsActive     *bool
	Page         int
	PageSize     int
}
