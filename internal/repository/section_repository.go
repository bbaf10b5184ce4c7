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

// SectionRepository handles persistence of scheduled sections.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository constructs the repository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

// List returns sections filtered by the provided criteria.
func (r *SectionRepository) List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error) {
	base := `FROM sections s
JOIN courses c ON c.id = s.course_id
JOIN semesters sem ON sem.id = s.semester_id`
	var conditions []string
	var args []interface{}

	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("s.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.SemesterID != "" {
		conditions = append(conditions, fmt.Sprintf("s.semester_id = $%d", len(args)+1))
		args = append(args, filter.SemesterID)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("s.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"section_code": "s.section_code",
		"course_code":  "c.code",
		"created_at":   "s.created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "c.code"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf(`SELECT s.id, s.course_id, s.semester_id, s.teacher_id, s.section_code, s.schedule, s.room,
        s.max_capacity, s.current_enrollment, s.created_at, s.updated_at,
        c.code AS course_code, c.name AS course_name, c.credits AS course_credits, sem.name AS semester_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var sections []models.SectionDetail
	if err := r.db.SelectContext(ctx, &sections, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sections: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sections: %w", err)
	}
	return sections, total, nil
}

// FindByID returns a section by its ID.
func (r *SectionRepository) FindByID(ctx context.Context, id string) (*models.Section, error) {
	const query = `SELECT id, course_id, semester_id, teacher_id, section_code, schedule, room,
        max_capacity, current_enrollment, created_at, updated_at FROM sections WHERE id = $1`
	var section models.Section
	if err := r.db.GetContext(ctx, &section, query, id); err != nil {
		return nil, err
	}
	return &section, nil
}

// FindDetailByID returns a section with course and semester info.
func (r *SectionRepository) FindDetailByID(ctx context.Context, id string) (*models.SectionDetail, error) {
	const query = `SELECT s.id, s.course_id, s.semester_id, s.teacher_id, s.section_code, s.schedule, s.room,
        s.max_capacity, s.current_enrollment, s.created_at, s.updated_at,
        c.code AS course_code, c.name AS course_name, c.credits AS course_credits, sem.name AS semester_name
        FROM sections s
        JOIN courses c ON c.id = s.course_id
        JOIN semesters sem ON sem.id = s.semester_id
        WHERE s.id = $1`
	var detail models.SectionDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Create persists a new section with an empty ledger.
func (r *SectionRepository) Create(ctx context.Context, section *models.Section) error {
	if section.ID == "" {
		section.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	section.CurrentEnrollment = 0
	section.CreatedAt = now
	section.UpdatedAt = now
	const query = `INSERT INTO sections (id, course_id, semester_id, teacher_id, section_code, schedule, room, max_capacity, current_enrollment, created_at, updated_at)
        VALUES (:id, :course_id, :semester_id, :teacher_id, :section_code, :schedule, :room, :max_capacity, :current_enrollment, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, section); err != nil {
		return fmt.Errorf("create section: %w", err)
	}
	return nil
}

// Update mutates the editable section attributes. The enrollment counter is
// owned by the ledger and never written here.
func (r *SectionRepository) Update(ctx context.Context, section *models.Section) error {
	section.UpdatedAt = time.Now().UTC()
	const query = `UPDATE sections SET teacher_id = :teacher_id, section_code = :section_code, schedule = :schedule,
        room = :room, max_capacity = :max_capacity, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, section); err != nil {
		return fmt.Errorf("update section: %w", err)
	}
	return nil
}

// Delete removes a section row.
func (r *SectionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sections WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete section: %w", err)
	}
	return nil
}
