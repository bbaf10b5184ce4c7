package models

import "time"

// LetterGrade is a discrete academic grade symbol derived from a percentage.
type LetterGrade string

const (
	GradeA      LetterGrade = "A"
	GradeAMinus LetterGrade = "A-"
	GradeBPlus  LetterGrade = "B+"
	GradeB      LetterGrade = "B"
	GradeBMinus LetterGrade = "B-"
	GradeCPlus  LetterGrade = "C+"
	GradeC      LetterGrade = "C"
	GradeCMinus LetterGrade = "C-"
	GradeD      LetterGrade = "D"
	GradeF      LetterGrade = "F"
)

// gradeThreshold maps a minimum percentage to a letter. Ordered descending,
// highest match wins.
type gradeThreshold struct {
	Min    float64
	Letter LetterGrade
}

var gradeThresholds = []gradeThreshold{
	{90, GradeA},
	{85, GradeAMinus},
	{80, GradeBPlus},
	{75, GradeB},
	{70, GradeBMinus},
	{65, GradeCPlus},
	{60, GradeC},
	{55, GradeCMinus},
	{50, GradeD},
}

// LetterGradeFor derives the letter grade for a percentage using the fixed
// threshold table. Anything below the lowest cutoff is an F.
func LetterGradeFor(percentage float64) LetterGrade {
	for _, t := range gradeThresholds {
		if percentage >= t.Min {
			return t.Letter
		}
	}
	return GradeF
}

var gradePoints = map[LetterGrade]float64{
	GradeA:      4.0,
	GradeAMinus: 3.7,
	GradeBPlus:  3.3,
	GradeB:      3.0,
	GradeBMinus: 2.7,
	GradeCPlus:  2.3,
	GradeC:      2.0,
	GradeCMinus: 1.7,
	GradeD:      1.0,
	GradeF:      0.0,
}

// GradePoints returns the numeric GPA weight for the letter grade.
func (g LetterGrade) GradePoints() float64 {
	return gradePoints[g]
}

// Valid reports whether the letter belongs to the grade scale.
func (g LetterGrade) Valid() bool {
	_, ok := gradePoints[g]
	return ok
}

// FinalGradeRecord is the server-derived final grade persisted onto a
// registration row.
type FinalGradeRecord struct {
	RegistrationID    string
	OverallPercentage float64
	FinalLetterGrade  LetterGrade
}

// GradeSheetRow is one roster row with its recorded scores, as read back
// after SaveScores.
type GradeSheetRow struct {
	RegistrationID    string             `json:"registration_id"`
	StudentID         string             `json:"student_id"`
	Status            RegistrationStatus `json:"status"`
	Scores            []AssessmentScore  `json:"scores"`
	OverallPercentage *float64           `json:"overall_percentage,omitempty"`
	FinalLetterGrade  *LetterGrade       `json:"final_letter_grade,omitempty"`
}

// GPASummary is a read-side aggregation over completed registrations.
// It is computed on demand and never persisted.
type GPASummary struct {
	StudentID    string  `json:"student_id"`
	SemesterID   string  `json:"semester_id,omitempty"`
	GPA          float64 `json:"gpa"`
	TotalCredits int     `json:"total_credits"`
	CourseCount  int     `json:"course_count"`
}

// TranscriptRow is one completed course on a student's transcript.
type TranscriptRow struct {
	SemesterID        string      `db:"semester_id" json:"semester_id"`
	SemesterName      string      `db:"semester_name" json:"semester_name"`
	CourseCode        string      `db:"course_code" json:"course_code"`
	CourseName        string      `db:"course_name" json:"course_name"`
	Credits           int         `db:"credits" json:"credits"`
	OverallPercentage *float64    `db:"overall_percentage" json:"overall_percentage,omitempty"`
	FinalLetterGrade  LetterGrade `db:"final_letter_grade" json:"final_letter_grade"`
}

// TranscriptSemester groups transcript rows with the semester's SGPA.
type TranscriptSemester struct {
	SemesterID   string          `json:"semester_id"`
	SemesterName string          `json:"semester_name"`
	Rows         []TranscriptRow `json:"rows"`
	SGPA         float64         `json:"sgpa"`
	Credits      int             `json:"credits"`
}

// Transcript is the full academic record for one student.
type Transcript struct {
	StudentID string               `json:"student_id"`
	Semesters []TranscriptSemester `json:"semesters"`
	CGPA      float64              `json:"cgpa"`
	Credits   int                  `json:"credits"`
	IssuedAt  time.Time            `json:"issued_at"`
}
