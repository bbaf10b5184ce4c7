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

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	CountSections(ctx context.Context, courseID string) (int, error)
	Delete(ctx context.Context, id string) error
	ListPrerequisites(ctx context.Context, courseID string) ([]models.PrerequisiteDetail, error)
	AddPrerequisite(ctx context.Context, prerequisite *models.Prerequisite) error
	RemovePrerequisite(ctx context.Context, courseID, prerequisiteID string) error
}

type departmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Department, error)
}

// CourseRequest creates or updates a catalog course.
type CourseRequest struct {
	DepartmentID string  `json:"department_id" validate:"required"`
	Code         string  `json:"code" validate:"required,max=20"`
	Name         string  `json:"name" validate:"required,max=200"`
	Credits      int     `json:"credits" validate:"required,gt=0,lte=12"`
	Description  *string `json:"description"`
}

// PrerequisiteRequest adds a prerequisite edge to a course.
type PrerequisiteRequest struct {
	PrerequisiteCourseID string `json:"prerequisite_course_id" validate:"required"`
}

// CourseService manages the course catalog and its prerequisite graph.
type CourseService struct {
	courses     courseRepository
	departments departmentReader
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewCourseService constructs CourseService.
func NewCourseService(courses courseRepository, departments departmentReader, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{courses: courses, departments: departments, validator: validate, logger: logger}
}

// List returns catalog courses with pagination metadata.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	courses, total, err := s.courses.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return courses, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one course.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Create adds a course to the catalog.
func (s *CourseService) Create(ctx context.Context, req CourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	if _, err := s.departments.FindByID(ctx, req.DepartmentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "department not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}
	course := &models.Course{
		DepartmentID: req.DepartmentID,
		Code:         req.Code,
		Name:         req.Name,
		Credits:      req.Credits,
		Description:  req.Description,
	}
	if err := s.courses.Create(ctx, course); err != nil {
		return nil, persistenceError(err, "failed to create course")
	}
	s.logger.Info("course created", zap.String("course_id", course.ID), zap.String("code", course.Code))
	return course, nil
}

// Update mutates a course.
func (s *CourseService) Update(ctx context.Context, id string, req CourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	course.DepartmentID = req.DepartmentID
	course.Code = req.Code
	course.Name = req.Name
	course.Credits = req.Credits
	course.Description = req.Description
	if err := s.courses.Update(ctx, course); err != nil {
		return nil, persistenceError(err, "failed to update course")
	}
	return course, nil
}

// Delete removes a course that no section offers.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	count, err := s.courses.CountSections(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count sections")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrDependencyConflict,
			fmt.Sprintf("course is offered by %d sections", count))
	}
	if err := s.courses.Delete(ctx, id); err != nil {
		return persistenceError(err, "failed to delete course")
	}
	s.logger.Info("course deleted", zap.String("course_id", id))
	return nil
}

// ListPrerequisites returns the course's prerequisite edges.
func (s *CourseService) ListPrerequisites(ctx context.Context, courseID string) ([]models.PrerequisiteDetail, error) {
	if _, err := s.Get(ctx, courseID); err != nil {
		return nil, err
	}
	prerequisites, err := s.courses.ListPrerequisites(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list prerequisites")
	}
	return prerequisites, nil
}

// AddPrerequisite links a required course. Self-edges and duplicates are
// rejected.
func (s *CourseService) AddPrerequisite(ctx context.Context, courseID string, req PrerequisiteRequest) (*models.Prerequisite, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid prerequisite payload")
	}
	if courseID == req.PrerequisiteCourseID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a course cannot require itself")
	}
	if _, err := s.Get(ctx, courseID); err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, req.PrerequisiteCourseID); err != nil {
		return nil, err
	}
	existing, err := s.courses.ListPrerequisites(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list prerequisites")
	}
	for _, edge := range existing {
		if edge.PrerequisiteCourseID == req.PrerequisiteCourseID {
			return nil, appErrors.Clone(appErrors.ErrConflict, "prerequisite already defined")
		}
	}
	prerequisite := &models.Prerequisite{CourseID: courseID, PrerequisiteCourseID: req.PrerequisiteCourseID}
	if err := s.courses.AddPrerequisite(ctx, prerequisite); err != nil {
		return nil, persistenceError(err, "failed to add prerequisite")
	}
	return prerequisite, nil
}

// RemovePrerequisite deletes a prerequisite edge.
func (s *CourseService) RemovePrerequisite(ctx context.Context, courseID, prerequisiteID string) error {
	if _, err := s.Get(ctx, courseID); err != nil {
		return err
	}
	if err := s.courses.RemovePrerequisite(ctx, courseID, prerequisiteID); err != nil {
		return persistenceError(err, "failed to remove prerequisite")
	}
	return nil
}
