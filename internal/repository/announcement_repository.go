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

// AnnouncementRepository handles persistence of announcements.
type AnnouncementRepository struct {
	db *sqlx.DB
}

// NewAnnouncementRepository constructs the repository.
func NewAnnouncementRepository(db *sqlx.DB) *AnnouncementRepository {
	return &AnnouncementRepository{db: db}
}

const announcementColumns = `id, title, content, audience, target_section_id, priority, is_pinned, published_at, expires_at, created_by, created_at, updated_at`

// List returns current announcements for the filter, pinned first.
func (r *AnnouncementRepository) List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error) {
	conditions := []string{"(expires_at IS NULL OR expires_at > NOW())"}
	var args []interface{}

	if filter.Audience != "" {
		conditions = append(conditions, fmt.Sprintf("(audience = $%d OR audience = 'ALL')", len(args)+1))
		args = append(args, filter.Audience)
	}
	if filter.SectionID != "" {
		conditions = append(conditions, fmt.Sprintf("(target_section_id IS NULL OR target_section_id = $%d)", len(args)+1))
		args = append(args, filter.SectionID)
	}
	if filter.Pinned != nil {
		conditions = append(conditions, fmt.Sprintf("is_pinned = $%d", len(args)+1))
		args = append(args, *filter.Pinned)
	}

	clause := " WHERE " + strings.Join(conditions, " AND ")
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM announcements%s ORDER BY is_pinned DESC, priority DESC, published_at DESC LIMIT %d OFFSET %d",
		announcementColumns, clause, size, offset)

	var announcements []models.Announcement
	if err := r.db.SelectContext(ctx, &announcements, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list announcements: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM announcements%s", clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count announcements: %w", err)
	}
	return announcements, total, nil
}

// FindByID returns an announcement by its ID.
func (r *AnnouncementRepository) FindByID(ctx context.Context, id string) (*models.Announcement, error) {
	query := fmt.Sprintf("SELECT %s FROM announcements WHERE id = $1", announcementColumns)
	var announcement models.Announcement
	if err := r.db.GetContext(ctx, &announcement, query, id); err != nil {
		return nil, err
	}
	return &announcement, nil
}

// Create persists a new announcement.
func (r *AnnouncementRepository) Create(ctx context.Context, announcement *models.Announcement) error {
	if announcement.ID == "" {
		announcement.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if announcement.PublishedAt.IsZero() {
		announcement.PublishedAt = now
	}
	announcement.CreatedAt = now
	announcement.UpdatedAt = now
	const query = `INSERT INTO announcements (id, title, content, audience, target_section_id, priority, is_pinned, published_at, expires_at, created_by, created_at, updated_at)
        VALUES (:id, :title, :content, :audience, :target_section_id, :priority, :is_pinned, :published_at, :expires_at, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, announcement); err != nil {
		return fmt.Errorf("create announcement: %w", err)
	}
	return nil
}

// Update mutates announcement attributes.
func (r *AnnouncementRepository) Update(ctx context.Context, announcement *models.Announcement) error {
	announcement.UpdatedAt = time.Now().UTC()
	const query = `UPDATE announcements SET title = :title, content = :content, audience = :audience,
        target_section_id = :target_section_id, priority = :priority, is_pinned = :is_pinned,
        expires_at = :expires_at, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, announcement); err != nil {
		return fmt.Errorf("update announcement: %w", err)
	}
	return nil
}

// Delete removes an announcement row.
func (r *AnnouncementRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM announcements WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete announcement: %w", err)
	}
	return nil
}
