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

type announcementRepository interface {
	List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error)
	FindByID(ctx context.Context, id string) (*models.Announcement, error)
	Create(ctx context.Context, announcement *models.Announcement) error
	Update(ctx context.Context, announcement *models.Announcement) error
	Delete(ctx context.Context, id string) error
}

// AnnouncementRequest creates or updates an announcement.
type AnnouncementRequest struct {
	Title           string                      `json:"title" validate:"required,max=200"`
	Content         string                      `json:"content" validate:"required"`
	Audience        models.AnnouncementAudience `json:"audience" validate:"required,oneof=ALL TEACHERS STUDENTS SECTION"`
	TargetSectionID *string                     `json:"target_section_id"`
	Priority        models.AnnouncementPriority `json:"priority" validate:"omitempty,oneof=LOW NORMAL HIGH"`
	IsPinned        bool                        `json:"is_pinned"`
	ExpiresAt       *time.Time                  `json:"expires_at"`
}

type cachedAnnouncementPage struct {
	Announcements []models.Announcement `json:"announcements"`
	Total         int                   `json:"total"`
}

// AnnouncementService manages portal announcements, caching list reads and
// invalidating on any write.
type AnnouncementService struct {
	announcements announcementRepository
	cache         rosterCache
	cacheTTL      time.Duration
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewAnnouncementService constructs AnnouncementService.
func NewAnnouncementService(announcements announcementRepository, cache rosterCache, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *AnnouncementService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnnouncementService{
		announcements: announcements,
		cache:         cache,
		cacheTTL:      cacheTTL,
		validator:     validate,
		logger:        logger,
	}
}

// List returns current announcements, pinned first. Pages are cached per
// filter combination.
func (s *AnnouncementService) List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, *models.Pagination, error) {
	key := announcementCacheKey(filter)
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}

	if s.cache != nil {
		var cached cachedAnnouncementPage
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached.Announcements, &models.Pagination{Page: page, PageSize: size, TotalCount: cached.Total}, nil
		}
	}

	announcements, total, err := s.announcements.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list announcements")
	}
	if s.cache != nil {
		payload := cachedAnnouncementPage{Announcements: announcements, Total: total}
		if err := s.cache.Set(ctx, key, payload, s.cacheTTL); err != nil {
			s.logger.Warn("announcement cache set failed", zap.Error(err))
		}
	}
	return announcements, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one announcement.
func (s *AnnouncementService) Get(ctx context.Context, id string) (*models.Announcement, error) {
	announcement, err := s.announcements.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load announcement")
	}
	return announcement, nil
}

// Create publishes an announcement.
func (s *AnnouncementService) Create(ctx context.Context, createdBy string, req AnnouncementRequest) (*models.Announcement, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}
	priority := req.Priority
	if priority == "" {
		priority = models.AnnouncementPriorityNormal
	}
	announcement := &models.Announcement{
		Title:           req.Title,
		Content:         req.Content,
		Audience:        req.Audience,
		TargetSectionID: req.TargetSectionID,
		Priority:        priority,
		IsPinned:        req.IsPinned,
		ExpiresAt:       req.ExpiresAt,
		CreatedBy:       createdBy,
	}
	if err := s.announcements.Create(ctx, announcement); err != nil {
		return nil, persistenceError(err, "failed to create announcement")
	}
	s.invalidate(ctx)
	return announcement, nil
}

// Update mutates an announcement.
func (s *AnnouncementService) Update(ctx context.Context, id string, req AnnouncementRequest) (*models.Announcement, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}
	announcement, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	announcement.Title = req.Title
	announcement.Content = req.Content
	announcement.Audience = req.Audience
	announcement.TargetSectionID = req.TargetSectionID
	if req.Priority != "" {
		announcement.Priority = req.Priority
	}
	announcement.IsPinned = req.IsPinned
	announcement.ExpiresAt = req.ExpiresAt
	if err := s.announcements.Update(ctx, announcement); err != nil {
		return nil, persistenceError(err, "failed to update announcement")
	}
	s.invalidate(ctx)
	return announcement, nil
}

// Delete removes an announcement.
func (s *AnnouncementService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.announcements.Delete(ctx, id); err != nil {
		return persistenceError(err, "failed to delete announcement")
	}
	s.invalidate(ctx)
	return nil
}

func (s *AnnouncementService) validateRequest(req AnnouncementRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid announcement payload")
	}
	if req.Audience == models.AnnouncementAudienceSection && (req.TargetSectionID == nil || *req.TargetSectionID == "") {
		return appErrors.Clone(appErrors.ErrValidation, "section announcements require a target section")
	}
	return nil
}

func (s *AnnouncementService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "announcements:*"); err != nil {
		s.logger.Warn("announcement cache invalidation failed", zap.Error(err))
	}
}

func announcementCacheKey(filter models.AnnouncementFilter) string {
	pinned := "any"
	if filter.Pinned != nil {
		pinned = fmt.Sprintf("%t", *filter.Pinned)
	}
	return fmt.Sprintf("announcements:%s:%s:%s:%d:%d",
		filter.Audience, filter.SectionID, pinned, filter.Page, filter.PageSize)
}
