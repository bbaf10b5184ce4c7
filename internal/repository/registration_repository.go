package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campushq/registrar-api/internal/models"
	appErrors "github.com/campushq/registrar-api/pkg/errors"
)

// RegistrationRepository owns the enrollment ledger: registration rows plus
// each section's denormalized enrollment counter. The two are only ever
// mutated together inside one transaction.
type RegistrationRepository struct {
	db *sqlx.DB
}

// NewRegistrationRepository constructs the repository.
func NewRegistrationRepository(db *sqlx.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

const registrationDetailColumns = `r.id, r.student_id, r.section_id, r.status, r.overall_percentage, r.final_letter_grade,
        r.registered_at, r.dropped_at, r.updated_at,
        c.code AS course_code, c.name AS course_name, c.credits AS course_credits,
        sec.section_code, sec.semester_id, sem.name AS semester_name`

const registrationDetailJoins = `FROM registrations r
JOIN sections sec ON sec.id = r.section_id
JOIN courses c ON c.id = sec.course_id
JOIN semesters sem ON sem.id = sec.semester_id`

// List returns registrations filtered by the provided criteria.
func (r *RegistrationRepository) List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error) {
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("r.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.SectionID != "" {
		conditions = append(conditions, fmt.Sprintf("r.section_id = $%d", len(args)+1))
		args = append(args, filter.SectionID)
	}
	if filter.SemesterID != "" {
		conditions = append(conditions, fmt.Sprintf("sec.semester_id = $%d", len(args)+1))
		args = append(args, filter.SemesterID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("r.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"registered_at": "r.registered_at",
		"course_code":   "c.code",
		"status":        "r.status",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "r.registered_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
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

	query := fmt.Sprintf("SELECT %s %s%s ORDER BY %s %s LIMIT %d OFFSET %d",
		registrationDetailColumns, registrationDetailJoins, clause, orderBy, order, size, offset)

	var registrations []models.RegistrationDetail
	if err := r.db.SelectContext(ctx, &registrations, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list registrations: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s%s", registrationDetailJoins, clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count registrations: %w", err)
	}
	return registrations, total, nil
}

// FindByID returns a registration by its ID.
func (r *RegistrationRepository) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	const query = `SELECT id, student_id, section_id, status, overall_percentage, final_letter_grade, registered_at, dropped_at, updated_at
        FROM registrations WHERE id = $1`
	var registration models.Registration
	if err := r.db.GetContext(ctx, &registration, query, id); err != nil {
		return nil, err
	}
	return &registration, nil
}

// FindByPair returns the registration for a (student, section) pair. The pair
// is unique, so at most one row exists.
func (r *RegistrationRepository) FindByPair(ctx context.Context, studentID, sectionID string) (*models.Registration, error) {
	const query = `SELECT id, student_id, section_id, status, overall_percentage, final_letter_grade, registered_at, dropped_at, updated_at
        FROM registrations WHERE student_id = $1 AND section_id = $2`
	var registration models.Registration
	if err := r.db.GetContext(ctx, &registration, query, studentID, sectionID); err != nil {
		return nil, err
	}
	return &registration, nil
}

// ListRoster returns a section's registered and completed students.
func (r *RegistrationRepository) ListRoster(ctx context.Context, sectionID string) ([]models.Registration, error) {
	const query = `SELECT id, student_id, section_id, status, overall_percentage, final_letter_grade, registered_at, dropped_at, updated_at
        FROM registrations WHERE section_id = $1 AND status IN ($2, $3) ORDER BY registered_at`
	var roster []models.Registration
	if err := r.db.SelectContext(ctx, &roster, query, sectionID, models.RegistrationStatusRegistered, models.RegistrationStatusCompleted); err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}
	return roster, nil
}

// CompletedCourseIDs returns the set of course IDs the student has completed,
// derived by joining completed registrations through their sections.
func (r *RegistrationRepository) CompletedCourseIDs(ctx context.Context, studentID string) (map[string]bool, error) {
	const query = `SELECT DISTINCT sec.course_id
        FROM registrations r
        JOIN sections sec ON sec.id = r.section_id
        WHERE r.student_id = $1 AND r.status = $2`
	rows, err := r.db.QueryxContext(ctx, query, studentID, models.RegistrationStatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("completed courses: %w", err)
	}
	defer rows.Close()
	completed := make(map[string]bool)
	for rows.Next() {
		var courseID string
		if err := rows.Scan(&courseID); err != nil {
			return nil, fmt.Errorf("scan course id: %w", err)
		}
		completed[courseID] = true
	}
	return completed, nil
}

// CountBySection returns the number of ledger rows referencing a section,
// regardless of status. Used to guard section deletion.
func (r *RegistrationRepository) CountBySection(ctx context.Context, sectionID string) (int, error) {
	const query = `SELECT COUNT(*) FROM registrations WHERE section_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, sectionID); err != nil {
		return 0, fmt.Errorf("count section registrations: %w", err)
	}
	return count, nil
}

// Register inserts or reactivates a registration and increments the section
// counter as one atomic unit. The section row is locked and the capacity
// re-checked at the moment of increment, so two concurrent registrations for
// the last seat serialize instead of racing past the handler-level check.
func (r *RegistrationRepository) Register(ctx context.Context, studentID, sectionID string) (*models.Registration, error) {
	var registration models.Registration
	err := runInTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var section struct {
			MaxCapacity       int `db:"max_capacity"`
			CurrentEnrollment int `db:"current_enrollment"`
		}
		if err := tx.GetContext(ctx, &section,
			`SELECT max_capacity, current_enrollment FROM sections WHERE id = $1 FOR UPDATE`, sectionID); err != nil {
			if err == sql.ErrNoRows {
				return appErrors.Clone(appErrors.ErrNotFound, "section not found")
			}
			return fmt.Errorf("lock section: %w", err)
		}
		// The duplicate check outranks capacity, so a concurrent duplicate
		// against a full section still reports the duplicate.
		var existing models.Registration
		err := tx.GetContext(ctx, &existing,
			`SELECT id, student_id, section_id, status, overall_percentage, final_letter_grade, registered_at, dropped_at, updated_at
             FROM registrations WHERE student_id = $1 AND section_id = $2 FOR UPDATE`, studentID, sectionID)
		hasRow := err == nil
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("load registration: %w", err)
		}
		if hasRow {
			switch existing.Status {
			case models.RegistrationStatusRegistered:
				return appErrors.ErrAlreadyRegistered
			case models.RegistrationStatusCompleted:
				return appErrors.ErrAlreadyCompleted
			}
		}
		if section.CurrentEnrollment >= section.MaxCapacity {
			return appErrors.ErrSectionFull
		}

		now := time.Now().UTC()
		if hasRow {
			// Dropped row: reactivate in place so the pair keeps a single row.
			if _, err := tx.ExecContext(ctx,
				`UPDATE registrations SET status = $2, registered_at = $3, dropped_at = NULL, updated_at = $3 WHERE id = $1`,
				existing.ID, models.RegistrationStatusRegistered, now); err != nil {
				return fmt.Errorf("reactivate registration: %w", err)
			}
			registration = existing
			registration.Status = models.RegistrationStatusRegistered
			registration.RegisteredAt = now
			registration.DroppedAt = nil
			registration.UpdatedAt = now
		} else {
			registration = models.Registration{
				ID:           uuid.NewString(),
				StudentID:    studentID,
				SectionID:    sectionID,
				Status:       models.RegistrationStatusRegistered,
				RegisteredAt: now,
				UpdatedAt:    now,
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO registrations (id, student_id, section_id, status, registered_at, updated_at)
                 VALUES ($1, $2, $3, $4, $5, $6)`,
				registration.ID, registration.StudentID, registration.SectionID, registration.Status, registration.RegisteredAt, registration.UpdatedAt); err != nil {
				return fmt.Errorf("insert registration: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE sections SET current_enrollment = current_enrollment + 1, updated_at = $2 WHERE id = $1`,
			sectionID, now); err != nil {
			return fmt.Errorf("increment enrollment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &registration, nil
}

// Drop marks a registration dropped and decrements the section counter,
// clamped at zero, as one atomic unit.
func (r *RegistrationRepository) Drop(ctx context.Context, studentID, sectionID string) (*models.Registration, error) {
	var registration models.Registration
	err := runInTx(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &registration,
			`SELECT id, student_id, section_id, status, overall_percentage, final_letter_grade, registered_at, dropped_at, updated_at
             FROM registrations WHERE student_id = $1 AND section_id = $2 FOR UPDATE`, studentID, sectionID)
		if err != nil {
			if err == sql.ErrNoRows {
				return appErrors.ErrNotRegistered
			}
			return fmt.Errorf("load registration: %w", err)
		}
		if registration.Status != models.RegistrationStatusRegistered {
			return appErrors.ErrNotRegistered
		}

		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			`UPDATE registrations SET status = $2, dropped_at = $3, updated_at = $3 WHERE id = $1`,
			registration.ID, models.RegistrationStatusDropped, now); err != nil {
			return fmt.Errorf("drop registration: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE sections SET current_enrollment = GREATEST(current_enrollment - 1, 0), updated_at = $2 WHERE id = $1`,
			sectionID, now); err != nil {
			return fmt.Errorf("decrement enrollment: %w", err)
		}

		registration.Status = models.RegistrationStatusDropped
		registration.DroppedAt = &now
		registration.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &registration, nil
}
