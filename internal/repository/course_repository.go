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

// CourseRepository handles catalog courses and their prerequisite edges.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// List returns courses filtered by the provided criteria.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	var conditions []string
	var args []interface{}

	if filter.DepartmentID != "" {
		conditions = append(conditions, fmt.Sprintf("department_id = $%d", len(args)+1))
		args = append(args, filter.DepartmentID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(code ILIKE $%d OR name ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"code":    "code",
		"name":    "name",
		"credits": "credits",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "code"
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

	query := fmt.Sprintf(`SELECT id, department_id, code, name, credits, description, created_at, updated_at
        FROM courses%s ORDER BY %s %s LIMIT %d OFFSET %d`, clause, orderBy, order, size, offset)

	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM courses%s", clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// FindByID returns a course by its ID.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT id, department_id, code, name, credits, description, created_at, updated_at FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// Create persists a new course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now
	const query = `INSERT INTO courses (id, department_id, code, name, credits, description, created_at, updated_at)
        VALUES (:id, :department_id, :code, :name, :credits, :description, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update mutates course attributes.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET department_id = :department_id, code = :code, name = :name,
        credits = :credits, description = :description, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// CountSections returns how many sections offer the course.
func (r *CourseRepository) CountSections(ctx context.Context, courseID string) (int, error) {
	const query = `SELECT COUNT(*) FROM sections WHERE course_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, courseID); err != nil {
		return 0, fmt.Errorf("count course sections: %w", err)
	}
	return count, nil
}

// Delete removes a course row.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	return nil
}

// ListPrerequisites returns the prerequisite edges for a course with the
// required course's code and name.
func (r *CourseRepository) ListPrerequisites(ctx context.Context, courseID string) ([]models.PrerequisiteDetail, error) {
	const query = `SELECT p.id, p.course_id, p.prerequisite_course_id, p.created_at,
        c.code AS course_code, c.name AS course_name
        FROM prerequisites p
        JOIN courses c ON c.id = p.prerequisite_course_id
        WHERE p.course_id = $1 ORDER BY c.code`
	var prerequisites []models.PrerequisiteDetail
	if err := r.db.SelectContext(ctx, &prerequisites, query, courseID); err != nil {
		return nil, fmt.Errorf("list prerequisites: %w", err)
	}
	return prerequisites, nil
}

// AddPrerequisite inserts a prerequisite edge.
func (r *CourseRepository) AddPrerequisite(ctx context.Context, prerequisite *models.Prerequisite) error {
	if prerequisite.ID == "" {
		prerequisite.ID = uuid.NewString()
	}
	prerequisite.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO prerequisites (id, course_id, prerequisite_course_id, created_at)
        VALUES (:id, :course_id, :prerequisite_course_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, prerequisite); err != nil {
		return fmt.Errorf("add prerequisite: %w", err)
	}
	return nil
}

// RemovePrerequisite deletes a prerequisite edge.
func (r *CourseRepository) RemovePrerequisite(ctx context.Context, courseID, prerequisiteID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM prerequisites WHERE id = $1 AND course_id = $2`, prerequisiteID, courseID); err != nil {
		return fmt.Errorf("remove prerequisite: %w", err)
	}
	return nil
}
