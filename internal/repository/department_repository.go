package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campushq/registrar-api/internal/models"
)

// DepartmentRepository handles persistence of departments.
type DepartmentRepository struct {
	db *sqlx.DB
}

// NewDepartmentRepository constructs the repository.
func NewDepartmentRepository(db *sqlx.DB) *DepartmentRepository {
	return &DepartmentRepository{db: db}
}

// List returns all departments ordered by code.
func (r *DepartmentRepository) List(ctx context.Context) ([]models.Department, error) {
	const query = `SELECT id, code, name, created_at, updated_at FROM departments ORDER BY code`
	var departments []models.Department
	if err := r.db.SelectContext(ctx, &departments, query); err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return departments, nil
}

// FindByID returns a department by its ID.
func (r *DepartmentRepository) FindByID(ctx context.Context, id string) (*models.Department, error) {
	const query = `SELECT id, code, name, created_at, updated_at FROM departments WHERE id = $1`
	var department models.Department
	if err := r.db.GetContext(ctx, &department, query, id); err != nil {
		return nil, err
	}
	return &department, nil
}

// Create persists a new department.
func (r *DepartmentRepository) Create(ctx context.Context, department *models.Department) error {
	if department.ID == "" {
		department.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	department.CreatedAt = now
	department.UpdatedAt = now
	const query = `INSERT INTO departments (id, code, name, created_at, updated_at)
        VALUES (:id, :code, :name, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, department); err != nil {
		return fmt.Errorf("create department: %w", err)
	}
	return nil
}

// Update mutates department attributes.
func (r *DepartmentRepository) Update(ctx context.Context, department *models.Department) error {
	department.UpdatedAt = time.Now().UTC()
	const query = `UPDATE departments SET code = :code, name = :name, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, department); err != nil {
		return fmt.Errorf("update department: %w", err)
	}
	return nil
}

// CountCourses returns how many courses belong to the department.
func (r *DepartmentRepository) CountCourses(ctx context.Context, departmentID string) (int, error) {
	const query = `SELECT COUNT(*) FROM courses WHERE department_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, departmentID); err != nil {
		return 0, fmt.Errorf("count department courses: %w", err)
	}
	return count, nil
}

// Delete removes a department row.
func (r *DepartmentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM departments WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete department: %w", err)
	}
	return nil
}
