package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campushq/registrar-api/internal/models"
	appErrors "github.com/campushq/registrar-api/pkg/errors"
)

type registrationRepository interface {
	List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error)
	FindByPair(ctx context.Context, studentID, sectionID string) (*models.Registration, error)
	ListRoster(ctx context.Context, sectionID string) ([]models.Registration, error)
	CompletedCourseIDs(ctx context.Context, studentID string) (map[string]bool, error)
	Register(ctx context.Context, studentID, sectionID string) (*models.Registration, error)
	Drop(ctx context.Context, studentID, sectionID string) (*models.Registration, error)
}

type sectionReader interface {
	FindByID(ctx context.Context, id string) (*models.Section, error)
}

type semesterReader interface {
	FindByID(ctx context.Context, id string) (*models.Semester, error)
}

type prerequisiteReader interface {
	ListPrerequisites(ctx context.Context, courseID string) ([]models.PrerequisiteDetail, error)
}

type rosterCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type registrationRecorder interface {
	RecordRegistration(operation, outcome string)
}

// RegisterRequest describes a registration attempt.
type RegisterRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	SectionID string `json:"section_id" validate:"required"`
}

// EnrollmentService maintains the enrollment ledger: it enforces the
// registration preconditions and delegates the atomic counter+row mutation
// to the repository.
type EnrollmentService struct {
	registrations registrationRepository
	sections      sectionReader
	semesters     semesterReader
	prerequisites prerequisiteReader
	cache         rosterCache
	rosterTTL     time.Duration
	metrics       registrationRecorder
	validator     *validator.Validate
	logger        *zap.Logger
	now           func() time.Time
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(registrations registrationRepository, sections sectionReader, semesters semesterReader, prerequisites prerequisiteReader, cache rosterCache, rosterTTL time.Duration, metrics registrationRecorder, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		registrations: registrations,
		sections:      sections,
		semesters:     semesters,
		prerequisites: prerequisites,
		cache:         cache,
		rosterTTL:     rosterTTL,
		metrics:       metrics,
		validator:     validate,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// List returns registrations with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, *models.Pagination, error) {
	registrations, total, err := s.registrations.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return registrations, pagination, nil
}

// Register enrolls a student into a section. Preconditions are checked in a
// fixed order and the first failure wins: duplicate registration, unmet
// prerequisites, capacity, then the semester's registration window. The
// capacity check is re-validated under a row lock at the moment of increment.
func (s *EnrollmentService) Register(ctx context.Context, req RegisterRequest) (registration *models.Registration, err error) {
	defer func() { s.recordOutcome("register", err) }()
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	existing, err := s.registrations.FindByPair(ctx, req.StudentID, req.SectionID)
	if err != nil && err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}
	if existing != nil {
		switch existing.Status {
		case models.RegistrationStatusRegistered:
			return nil, appErrors.ErrAlreadyRegistered
		case models.RegistrationStatusCompleted:
			return nil, appErrors.ErrAlreadyCompleted
		}
	}

	section, err := s.sections.FindByID(ctx, req.SectionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}

	missing, err := s.missingPrerequisites(ctx, req.StudentID, section.CourseID)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, appErrors.WithDetails(appErrors.ErrPrerequisiteNotMet,
			fmt.Sprintf("missing prerequisites: %v", missing), missing)
	}

	if section.CurrentEnrollment >= section.MaxCapacity {
		return nil, appErrors.ErrSectionFull
	}

	semester, err := s.semesters.FindByID(ctx, section.SemesterID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester")
	}
	if !semester.RegistrationOpenAt(s.now()) {
		return nil, appErrors.ErrRegistrationClosed
	}

	registration, err = s.registrations.Register(ctx, req.StudentID, req.SectionID)
	if err != nil {
		return nil, persistenceError(err, "failed to register")
	}
	s.invalidateRoster(ctx, req.SectionID)
	s.logger.Info("student registered",
		zap.String("student_id", req.StudentID),
		zap.String("section_id", req.SectionID),
		zap.String("registration_id", registration.ID))
	return registration, nil
}

// Drop releases a student's seat. The repository verifies under lock that an
// active registration exists and clamps the counter at zero.
func (s *EnrollmentService) Drop(ctx context.Context, studentID, sectionID string) (registration *models.Registration, err error) {
	defer func() { s.recordOutcome("drop", err) }()
	if studentID == "" || sectionID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student and section required")
	}
	registration, err = s.registrations.Drop(ctx, studentID, sectionID)
	if err != nil {
		return nil, persistenceError(err, "failed to drop")
	}
	s.invalidateRoster(ctx, sectionID)
	s.logger.Info("student dropped",
		zap.String("student_id", studentID),
		zap.String("section_id", sectionID))
	return registration, nil
}

// Roster returns the section's registered and completed students, cached
// briefly and invalidated by any register/drop on the section.
func (s *EnrollmentService) Roster(ctx context.Context, sectionID string) ([]models.Registration, error) {
	key := rosterCacheKey(sectionID)
	var cached []models.Registration
	if s.cache != nil {
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}
	roster, err := s.registrations.ListRoster(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, roster, s.rosterTTL); err != nil {
			s.logger.Warn("roster cache set failed", zap.String("section_id", sectionID), zap.Error(err))
		}
	}
	return roster, nil
}

func (s *EnrollmentService) missingPrerequisites(ctx context.Context, studentID, courseID string) ([]string, error) {
	prerequisites, err := s.prerequisites.ListPrerequisites(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prerequisites")
	}
	if len(prerequisites) == 0 {
		return nil, nil
	}
	completed, err := s.registrations.CompletedCourseIDs(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load completed courses")
	}
	var missing []string
	for _, prerequisite := range prerequisites {
		if !completed[prerequisite.PrerequisiteCourseID] {
			missing = append(missing, prerequisite.CourseCode)
		}
	}
	return missing, nil
}

func (s *EnrollmentService) invalidateRoster(ctx context.Context, sectionID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, rosterCacheKey(sectionID)); err != nil {
		s.logger.Warn("roster cache invalidation failed", zap.String("section_id", sectionID), zap.Error(err))
	}
}

func rosterCacheKey(sectionID string) string {
	return "roster:" + sectionID
}

// recordOutcome counts a ledger operation, labelled "success" or with the
// rejecting error code.
func (s *EnrollmentService) recordOutcome(operation string, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = appErrors.FromError(err).Code
	}
	s.metrics.RecordRegistration(operation, outcome)
}

// persistenceError passes typed domain errors through untouched and folds
// everything else into PERSISTENCE_FAILURE: once the write phase has begun,
// a store failure means the whole transaction was rolled back.
func persistenceError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, message)
}
