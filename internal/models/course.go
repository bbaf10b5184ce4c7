package models

import "time"

// Course is a catalog entry owned by a department.
type Course struct {
	ID           string    `db:"id" json:"id"`
	DepartmentID string    `db:"department_id" json:"department_id"`
	Code         string    `db:"code" json:"code"`
	Name         string    `db:"name" json:"name"`
	Credits      int       `db:"credits" json:"credits"`
	Description  *string   `db:"description" json:"description,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Prerequisite is a directed edge: taking the course requires having
// completed the prerequisite course.
type Prerequisite struct {
	ID                   string    `db:"id" json:"id"`
	CourseID             string    `db:"course_id" json:"course_id"`
	PrerequisiteCourseID string    `db:"prerequisite_course_id" json:"prerequisite_course_id"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
}

// PrerequisiteDetail enriches the edge with the required course's identity.
type PrerequisiteDetail struct {
	Prerequisite
	CourseCode string `db:"course_code" json:"course_code"`
	CourseName string `db:"course_name" json:"course_name"`
}

// CourseFilter captures filtering criteria for listing courses.
type CourseFilter struct {
	DepartmentID string
	Search       string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
