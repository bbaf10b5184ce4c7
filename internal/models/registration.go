package models

import "time"

// RegistrationStatus represents the lifecycle of a registration.
type RegistrationStatus string

// Status transitions: (none) -> REGISTERED -> {DROPPED, COMPLETED}.
// A DROPPED row may be reactivated back to REGISTERED; the original row is
// reused so a (student, section) pair never has more than one row.
const (
	RegistrationStatusRegistered RegistrationStatus = "REGISTERED"
	RegistrationStatusDropped    RegistrationStatus = "DROPPED"
	RegistrationStatusCompleted  RegistrationStatus = "COMPLETED"
)

// Registration captures a student's relationship to one section. Rows are
// never physically deleted; drops flip the status and keep the history.
type Registration struct {
	ID                string             `db:"id" json:"id"`
	StudentID         string             `db:"student_id" json:"student_id"`
	SectionID         string             `db:"section_id" json:"section_id"`
	Status            RegistrationStatus `db:"status" json:"status"`
	OverallPercentage *float64           `db:"overall_percentage" json:"overall_percentage,omitempty"`
	FinalLetterGrade  *LetterGrade       `db:"final_letter_grade" json:"final_letter_grade,omitempty"`
	RegisteredAt      time.Time          `db:"registered_at" json:"registered_at"`
	DroppedAt         *time.Time         `db:"dropped_at" json:"dropped_at,omitempty"`
	UpdatedAt         time.Time          `db:"updated_at" json:"updated_at"`
}

// RegistrationDetail enriches Registration with course and section info.
type RegistrationDetail struct {
	Registration
	CourseCode    string `db:"course_code" json:"course_code"`
	CourseName    string `db:"course_name" json:"course_name"`
	CourseCredits int    `db:"course_credits" json:"course_credits"`
	SectionCode   string `db:"section_code" json:"section_code"`
	SemesterID    string `db:"semester_id" json:"semester_id"`
	SemesterName  string `db:"semester_name" json:"semester_name"`
}

// RegistrationFilter provides filters for listing registrations.
type RegistrationFilter struct {
	StudentID  string
	SectionID  string
	SemesterID string
	Status     RegistrationStatus
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
