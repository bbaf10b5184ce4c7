package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campushq/registrar-api/internal/models"
)

// SemesterRepository handles persistence of semesters.
type SemesterRepository struct {
	db *sqlx.DB
}

// NewSemesterRepository constructs the repository.
func NewSemesterRepository(db *sqlx.DB) *SemesterRepository {
	return &SemesterRepository{db: db}
}

const semesterColumns = `id, name, academic_year, start_date, end_date, registration_start_date, registration_end_date, is_active, created_at, updated_at`

// List returns semesters filtered by the provided criteria.
func (r *SemesterRepository) List(ctx context.Context, filter models.SemesterFilter) ([]models.Semester, int, error) {
	var conditions []string
	var args []interface{}

	if filter.AcademicYear != "" {
		conditions = append(conditions, fmt.Sprintf("academic_year = $%d", len(args)+1))
		args = append(args, filter.AcademicYear)
	}
	if filter.IsActive != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)+1))
		args = append(args, *filter.IsActive)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM semesters%s ORDER BY start_date DESC LIMIT %d OFFSET %d",
		semesterColumns, clause, size, offset)

	var semesters []models.Semester
	if err := r.db.SelectContext(ctx, &semesters, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list semesters: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM semesters%s", clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count semesters: %w", err)
	}
	return semesters, total, nil
}

// FindByID returns a semester by its ID.
func (r *SemesterRepository) FindByID(ctx context.Context, id string) (*models.Semester, error) {
	query := fmt.Sprintf("SELECT %s FROM semesters WHERE id = $1", semesterColumns)
	var semester models.Semester
	if err := r.db.GetContext(ctx, &semester, query, id); err != nil {
		return nil, err
	}
	return &semester, nil
}

// Create persists a new semester.
func (r *SemesterRepository) Create(ctx context.Context, semester *models.Semester) error {
	if semester.ID == "" {
		semester.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	semester.CreatedAt = now
	semester.UpdatedAt = now
	const query = `INSERT INTO semesters (id, name, academic_year, start_date, end_date, registration_start_date, registration_end_date, is_active, created_at, updated_at)
        VALUES (:id, :name, :academic_year, :start_date, :end_date, :registration_start_date, :registration_end_date, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, semester); err != nil {
		return fmt.Errorf("create semester: %w", err)
	}
	return nil
}

// Update mutates semester attributes.
func (r *SemesterRepository) Update(ctx context.Context, semester *models.Semester) error {
	semester.UpdatedAt = time.Now().UTC()
	const query = `UPDATE semesters SET name = :name, academic_year = :academic_year, start_date = :start_date,
        end_date = :end_date, registration_start_date = :registration_start_date, registration_end_date = :registration_end_date,
        is_active = :is_active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, semester); err != nil {
		return fmt.Errorf("update semester: %w", err)
	}
	return nil
}

// CountSections returns how many sections are scheduled in the semester.
func (r *SemesterRepository) CountSections(ctx context.Context, semesterID string) (int, error) {
	const query = `SELECT COUNT(*) FROM sections WHERE semester_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, semesterID); err != nil {
		return 0, fmt.Errorf("count semester sections: %w", err)
	}
	return count, nil
}

// Delete removes a semester row.
func (r *SemesterRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM semesters WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete semester: %w", err)
	}
	return nil
}
