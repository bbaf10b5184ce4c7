package models

import "time"

// Section is one scheduled, dated offering of a course in a semester.
// Invariant: CurrentEnrollment always equals the count of registrations for
// the section with status REGISTERED, and never exceeds MaxCapacity.
type Section struct {
	ID                string    `db:"id" json:"id"`
	CourseID          string    `db:"course_id" json:"course_id"`
	SemesterID        string    `db:"semester_id" json:"semester_id"`
	TeacherID         string    `db:"teacher_id" json:"teacher_id"`
	SectionCode       string    `db:"section_code" json:"section_code"`
	Schedule          string    `db:"schedule" json:"schedule"`
	Room              string    `db:"room" json:"room"`
	MaxCapacity       int       `db:"max_capacity" json:"max_capacity"`
	CurrentEnrollment int       `db:"current_enrollment" json:"current_enrollment"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// SectionDetail enriches Section with course and semester info.
type SectionDetail struct {
	Section
	CourseCode    string `db:"course_code" json:"course_code"`
	CourseName    string `db:"course_name" json:"course_name"`
	CourseCredits int    `db:"course_credits" json:"course_credits"`
	SemesterName  string `db:"semester_name" json:"semester_name"`
}

// SectionFilter provides filters for listing sections.
type SectionFilter struct {
	CourseID   string
	SemesterID string
	TeacherID  string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
