package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campushq/registrar-api/internal/models"
)

// GradeRepository persists assessments, per-assessment scores and the final
// grade written back onto registration rows.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository creates a new grade repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// ListAssessments returns the assessments defined for a section.
func (r *GradeRepository) ListAssessments(ctx context.Context, sectionID string) ([]models.Assessment, error) {
	const query = `SELECT id, section_id, name, max_score, created_at, updated_at
        FROM assessments WHERE section_id = $1 ORDER BY created_at`
	var assessments []models.Assessment
	if err := r.db.SelectContext(ctx, &assessments, query, sectionID); err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	return assessments, nil
}

// FindAssessment returns an assessment by ID.
func (r *GradeRepository) FindAssessment(ctx context.Context, id string) (*models.Assessment, error) {
	const query = `SELECT id, section_id, name, max_score, created_at, updated_at FROM assessments WHERE id = $1`
	var assessment models.Assessment
	if err := r.db.GetContext(ctx, &assessment, query, id); err != nil {
		return nil, err
	}
	return &assessment, nil
}

// CreateAssessment persists a new assessment definition.
func (r *GradeRepository) CreateAssessment(ctx context.Context, assessment *models.Assessment) error {
	if assessment.ID == "" {
		assessment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	assessment.CreatedAt = now
	assessment.UpdatedAt = now
	const query = `INSERT INTO assessments (id, section_id, name, max_score, created_at, updated_at)
        VALUES (:id, :section_id, :name, :max_score, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, assessment); err != nil {
		return fmt.Errorf("create assessment: %w", err)
	}
	return nil
}

// UpdateAssessment updates name and max score.
func (r *GradeRepository) UpdateAssessment(ctx context.Context, assessment *models.Assessment) error {
	assessment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE assessments SET name = :name, max_score = :max_score, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, assessment); err != nil {
		return fmt.Errorf("update assessment: %w", err)
	}
	return nil
}

// CountScores returns how many score rows reference an assessment.
func (r *GradeRepository) CountScores(ctx context.Context, assessmentID string) (int, error) {
	const query = `SELECT COUNT(*) FROM assessment_scores WHERE assessment_id = $1 AND score_achieved IS NOT NULL`
	var count int
	if err := r.db.GetContext(ctx, &count, query, assessmentID); err != nil {
		return 0, fmt.Errorf("count scores: %w", err)
	}
	return count, nil
}

// DeleteAssessment removes an assessment definition.
func (r *GradeRepository) DeleteAssessment(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM assessments WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete assessment: %w", err)
	}
	return nil
}

// ScoresBySection returns all score rows for a section keyed by registration.
func (r *GradeRepository) ScoresBySection(ctx context.Context, sectionID string) (map[string][]models.AssessmentScore, error) {
	const query = `SELECT s.id, s.registration_id, s.assessment_id, s.score_achieved, s.graded_at
        FROM assessment_scores s
        JOIN assessments a ON a.id = s.assessment_id
        WHERE a.section_id = $1`
	rows, err := r.db.QueryxContext(ctx, query, sectionID)
	if err != nil {
		return nil, fmt.Errorf("fetch scores: %w", err)
	}
	defer rows.Close()
	result := make(map[string][]models.AssessmentScore)
	for rows.Next() {
		var score models.AssessmentScore
		if err := rows.StructScan(&score); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		result[score.RegistrationID] = append(result[score.RegistrationID], score)
	}
	return result, nil
}

// SaveScores upserts score entries and writes final grades in one
// transaction. Either every score and every final grade is persisted, or
// none are; a partial grade sheet is never visible.
func (r *GradeRepository) SaveScores(ctx context.Context, scores []models.AssessmentScore, finals []models.FinalGradeRecord) error {
	return runInTx(ctx, r.db, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		const upsert = `INSERT INTO assessment_scores (id, registration_id, assessment_id, score_achieved, graded_at)
            VALUES ($1, $2, $3, $4, $5)
            ON CONFLICT (registration_id, assessment_id)
            DO UPDATE SET score_achieved = EXCLUDED.score_achieved, graded_at = EXCLUDED.graded_at`
		for i := range scores {
			if scores[i].ID == "" {
				scores[i].ID = uuid.NewString()
			}
			var gradedAt *time.Time
			if scores[i].ScoreAchieved != nil {
				gradedAt = &now
			}
			if _, err := tx.ExecContext(ctx, upsert,
				scores[i].ID, scores[i].RegistrationID, scores[i].AssessmentID, scores[i].ScoreAchieved, gradedAt); err != nil {
				return fmt.Errorf("upsert score: %w", err)
			}
		}
		const finalize = `UPDATE registrations
            SET overall_percentage = $2, final_letter_grade = $3, status = $4, updated_at = $5
            WHERE id = $1`
		for _, final := range finals {
			if _, err := tx.ExecContext(ctx, finalize,
				final.RegistrationID, final.OverallPercentage, final.FinalLetterGrade, models.RegistrationStatusCompleted, now); err != nil {
				return fmt.Errorf("write final grade: %w", err)
			}
		}
		return nil
	})
}

// TranscriptRows returns completed course rows for a student, optionally
// restricted to one semester.
func (r *GradeRepository) TranscriptRows(ctx context.Context, studentID, semesterID string) ([]models.TranscriptRow, error) {
	query := `SELECT sec.semester_id, sem.name AS semester_name, c.code AS course_code, c.name AS course_name,
        c.credits, r.overall_percentage, r.final_letter_grade
        FROM registrations r
        JOIN sections sec ON sec.id = r.section_id
        JOIN courses c ON c.id = sec.course_id
        JOIN semesters sem ON sem.id = sec.semester_id
        WHERE r.student_id = $1 AND r.status = $2 AND r.final_letter_grade IS NOT NULL`
	args := []interface{}{studentID, models.RegistrationStatusCompleted}
	if semesterID != "" {
		query += fmt.Sprintf(" AND sec.semester_id = $%d", len(args)+1)
		args = append(args, semesterID)
	}
	query += " ORDER BY sem.start_date, c.code"
	var transcript []models.TranscriptRow
	if err := r.db.SelectContext(ctx, &transcript, query, args...); err != nil {
		return nil, fmt.Errorf("transcript rows: %w", err)
	}
	return transcript, nil
}
