package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campushq/registrar-api/internal/models"
	appErrors "github.com/campushq/registrar-api/pkg/errors"
)

type semesterRepository interface {
	List(ctx context.Context, filter models.SemesterFilter) ([]models.Semester, int, error)
	FindByID(ctx context.Context, id string) (*models.Semester, error)
	Create(ctx context.Context, semester *models.Semester) error
	Update(ctx context.Context, semester *models.Semester) error
	CountSections(ctx context.Context, semesterID string) (int, error)
	Delete(ctx context.Context, id string) error
}

// SemesterRequest creates or updates a semester.
type SemesterRequest struct {
	Name                  string    `json:"name" validate:"required,max=100"`
	AcademicYear          string    `json:"academic_year" validate:"required,max=20"`
	StartDate             time.Time `json:"start_date" validate:"required"`
	EndDate               time.Time `json:"end_date" validate:"required"`
	RegistrationStartDate time.Time `json:"registration_start_date" validate:"required"`
	RegistrationEndDate   time.Time `json:"registration_end_date" validate:"required"`
	IsActive              bool      `json:"is_active"`
}

// SemesterService manages academic terms and their registration windows.
type SemesterService struct {
	semesters semesterRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSemesterService constructs SemesterService.
func NewSemesterService(semesters semesterRepository, validate *validator.Validate, logger *zap.Logger) *SemesterService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SemesterService{semesters: semesters, validator: validate, logger: logger}
}

// List returns semesters with pagination metadata.
func (s *SemesterService) List(ctx context.Context, filter models.SemesterFilter) ([]models.Semester, *models.Pagination, error) {
	semesters, total, err := s.semesters.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list semesters")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return semesters, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one semester.
func (s *SemesterService) Get(ctx context.Context, id string) (*models.Semester, error) {
	semester, err := s.semesters.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester")
	}
	return semester, nil
}

// Create adds a semester after validating the date ordering.
func (s *SemesterService) Create(ctx context.Context, req SemesterRequest) (*models.Semester, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}
	semester := &models.Semester{
		Name:                  req.Name,
		AcademicYear:          req.AcademicYear,
		StartDate:             req.StartDate,
		EndDate:               req.EndDate,
		RegistrationStartDate: req.RegistrationStartDate,
		RegistrationEndDate:   req.RegistrationEndDate,
		IsActive:              req.IsActive,
	}
	if err := s.semesters.Create(ctx, semester); err != nil {
		return nil, persistenceError(err, "failed to create semester")
	}
	return semester, nil
}

// Update mutates a semester.
func (s *SemesterService) Update(ctx context.Context, id string, req SemesterRequest) (*models.Semester, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}
	semester, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	semester.Name = req.Name
	semester.AcademicYear = req.AcademicYear
	semester.StartDate = req.StartDate
	semester.EndDate = req.EndDate
	semester.RegistrationStartDate = req.RegistrationStartDate
	semester.RegistrationEndDate = req.RegistrationEndDate
	semester.IsActive = req.IsActive
	if err := s.semesters.Update(ctx, semester); err != nil {
		return nil, persistenceError(err, "failed to update semester")
	}
	return semester, nil
}

// Delete removes a semester with no scheduled sections.
func (s *SemesterService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	count, err := s.semesters.CountSections(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count sections")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrDependencyConflict,
			fmt.Sprintf("semester has %d scheduled sections", count))
	}
	if err := s.semesters.Delete(ctx, id); err != nil {
		return persistenceError(err, "failed to delete semester")
	}
	return nil
}

func (s *SemesterService) validateRequest(req SemesterRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid semester payload")
	}
	if !req.StartDate.Before(req.EndDate) {
		return appErrors.Clone(appErrors.ErrValidation, "start date must precede end date")
	}
	if !req.RegistrationStartDate.Before(req.RegistrationEndDate) {
		return appErrors.Clone(appErrors.ErrValidation, "registration window start must precede its end")
	}
	return nil
}
