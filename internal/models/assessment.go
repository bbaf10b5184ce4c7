package models

import "time"

// Assessment is a graded item defined for a section (e.g. "Midterm").
type Assessment struct {
	ID        string    `db:"id" json:"id"`
	SectionID string    `db:"section_id" json:"section_id"`
	Name      string    `db:"name" json:"name"`
	MaxScore  float64   `db:"max_score" json:"max_score"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// AssessmentScore is one student's raw score for one assessment. A retracted
// score is cleared to NULL rather than deleted so the row keeps its identity.
type AssessmentScore struct {
	ID             string     `db:"id" json:"id"`
	RegistrationID string     `db:"registration_id" json:"registration_id"`
	AssessmentID   string     `db:"assessment_id" json:"assessment_id"`
	ScoreAchieved  *float64   `db:"score_achieved" json:"score_achieved,omitempty"`
	GradedAt       *time.Time `db:"graded_at" json:"graded_at,omitempty"`
}

// ScoreEntry is one submitted (registration, assessment, score) tuple.
// A nil score clears the stored value.
type ScoreEntry struct {
	RegistrationID string   `json:"registration_id" validate:"required"`
	AssessmentID   string   `json:"assessment_id" validate:"required"`
	Score          *float64 `json:"score"`
}

// FinalGradeEntry names a registration whose final grade should be persisted.
// Percentage and letter grade are re-derived server side; the submitted pair
// is only used to detect client/server disagreement.
type FinalGradeEntry struct {
	RegistrationID    string      `json:"registration_id" validate:"required"`
	OverallPercentage float64     `json:"overall_percentage"`
	FinalLetterGrade  LetterGrade `json:"final_letter_grade"`
}
