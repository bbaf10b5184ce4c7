package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campushq/registrar-api/internal/models"
	appErrors "github.com/campushq/registrar-api/pkg/errors"
)

type departmentRepository interface {
	List(ctx context.Context) ([]models.Department, error)
	FindByID(ctx context.Context, id string) (*models.Department, error)
	Create(ctx context.Context, department *models.Department) error
	Update(ctx context.Context, department *models.Department) error
	CountCourses(ctx context.Context, departmentID string) (int, error)
	Delete(ctx context.Context, id string) error
}

// DepartmentRequest creates or updates a department.
type DepartmentRequest struct {
	Code string `json:"code" validate:"required,max=20"`
	Name string `json:"name" validate:"required,max=200"`
}

// DepartmentService manages academic departments.
type DepartmentService struct {
	departments departmentRepository
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewDepartmentService constructs DepartmentService.
func NewDepartmentService(departments departmentRepository, validate *validator.Validate, logger *zap.Logger) *DepartmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DepartmentService{departments: departments, validator: validate, logger: logger}
}

// List returns all departments.
func (s *DepartmentService) List(ctx context.Context) ([]models.Department, error) {
	departments, err := s.departments.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list departments")
	}
	return departments, nil
}

// Get returns one department.
func (s *DepartmentService) Get(ctx context.Context, id string) (*models.Department, error) {
	department, err := s.departments.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "department not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}
	return department, nil
}

// Create adds a department.
func (s *DepartmentService) Create(ctx context.Context, req DepartmentRequest) (*models.Department, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid department payload")
	}
	department := &models.Department{Code: req.Code, Name: req.Name}
	if err := s.departments.Create(ctx, department); err != nil {
		return nil, persistenceError(err, "failed to create department")
	}
	return department, nil
}

// Update mutates a department.
func (s *DepartmentService) Update(ctx context.Context, id string, req DepartmentRequest) (*models.Department, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid department payload")
	}
	department, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	department.Code = req.Code
	department.Name = req.Name
	if err := s.departments.Update(ctx, department); err != nil {
		return nil, persistenceError(err, "failed to update department")
	}
	return department, nil
}

// Delete removes a department that owns no courses.
func (s *DepartmentService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	count, err := s.departments.CountCourses(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count courses")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrDependencyConflict,
			fmt.Sprintf("department owns %d courses", count))
	}
	if err := s.departments.Delete(ctx, id); err != nil {
		return persistenceError(err, "failed to delete department")
	}
	return nil
}
