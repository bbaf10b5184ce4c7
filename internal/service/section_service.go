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

type sectionRepository interface {
	List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Section, error)
	FindDetailByID(ctx context.Context, id string) (*models.SectionDetail, error)
	Create(ctx context.Context, section *models.Section) error
	Update(ctx context.Context, section *models.Section) error
	Delete(ctx context.Context, id string) error
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type registrationCounter interface {
	CountBySection(ctx context.Context, sectionID string) (int, error)
}

// CreateSectionRequest creates a section.
type CreateSectionRequest struct {
	CourseID    string `json:"course_id" validate:"required"`
	SemesterID  string `json:"semester_id" validate:"required"`
	TeacherID   string `json:"teacher_id" validate:"required"`
	SectionCode string `json:"section_code" validate:"required,max=20"`
	Schedule    string `json:"schedule" validate:"max=200"`
	Room        string `json:"room" validate:"max=60"`
	MaxCapacity int    `json:"max_capacity" validate:"required,gt=0"`
}

// UpdateSectionRequest mutates section attributes. The enrollment counter is
// not editable.
type UpdateSectionRequest struct {
	TeacherID   string `json:"teacher_id" validate:"required"`
	SectionCode string `json:"section_code" validate:"required,max=20"`
	Schedule    string `json:"schedule" validate:"max=200"`
	Room        string `json:"room" validate:"max=60"`
	MaxCapacity int    `json:"max_capacity" validate:"required,gt=0"`
}

// SectionService manages scheduled course sections.
type SectionService struct {
	sections      sectionRepository
	courses       courseReader
	semesters     semesterReader
	registrations registrationCounter
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewSectionService constructs SectionService.
func NewSectionService(sections sectionRepository, courses courseReader, semesters semesterReader, registrations registrationCounter, validate *validator.Validate, logger *zap.Logger) *SectionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SectionService{
		sections:      sections,
		courses:       courses,
		semesters:     semesters,
		registrations: registrations,
		validator:     validate,
		logger:        logger,
	}
}

// List returns sections with pagination metadata.
func (s *SectionService) List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, *models.Pagination, error) {
	sections, total, err := s.sections.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sections")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return sections, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one section with course and semester info.
func (s *SectionService) Get(ctx context.Context, id string) (*models.SectionDetail, error) {
	detail, err := s.sections.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	return detail, nil
}

// Create schedules a new section with an empty enrollment ledger.
func (s *SectionService) Create(ctx context.Context, req CreateSectionRequest) (*models.Section, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid section payload")
	}
	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if _, err := s.semesters.FindByID(ctx, req.SemesterID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester")
	}
	section := &models.Section{
		CourseID:    req.CourseID,
		SemesterID:  req.SemesterID,
		TeacherID:   req.TeacherID,
		SectionCode: req.SectionCode,
		Schedule:    req.Schedule,
		Room:        req.Room,
		MaxCapacity: req.MaxCapacity,
	}
	if err := s.sections.Create(ctx, section); err != nil {
		return nil, persistenceError(err, "failed to create section")
	}
	s.logger.Info("section created", zap.String("section_id", section.ID), zap.String("course_id", section.CourseID))
	return section, nil
}

// Update mutates a section. Capacity may not be reduced below the current
// enrollment, which would break the ledger invariant.
func (s *SectionService) Update(ctx context.Context, id string, req UpdateSectionRequest) (*models.Section, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid section payload")
	}
	section, err := s.sections.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	if req.MaxCapacity < section.CurrentEnrollment {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("max capacity %d below current enrollment %d", req.MaxCapacity, section.CurrentEnrollment))
	}
	section.TeacherID = req.TeacherID
	section.SectionCode = req.SectionCode
	section.Schedule = req.Schedule
	section.Room = req.Room
	section.MaxCapacity = req.MaxCapacity
	if err := s.sections.Update(ctx, section); err != nil {
		return nil, persistenceError(err, "failed to update section")
	}
	return section, nil
}

// Delete removes a section that has no registrations of any status.
func (s *SectionService) Delete(ctx context.Context, id string) error {
	if _, err := s.sections.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	count, err := s.registrations.CountBySection(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count registrations")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrDependencyConflict,
			fmt.Sprintf("section has %d registrations", count))
	}
	if err := s.sections.Delete(ctx, id); err != nil {
		return persistenceError(err, "failed to delete section")
	}
	s.logger.Info("section deleted", zap.String("section_id", id))
	return nil
}
