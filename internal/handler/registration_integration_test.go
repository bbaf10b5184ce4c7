package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campushq/registrar-api/internal/middleware"
	"github.com/campushq/registrar-api/internal/models"
	"github.com/campushq/registrar-api/internal/service"
	appErrors "github.com/campushq/registrar-api/pkg/errors"
)

// memLedger is an in-memory enrollment ledger mirroring the transactional
// semantics of the SQL repository: counter and row always move together.
type memLedger struct {
	sections      map[string]*models.Section
	registrations map[string]*models.Registration
	completed     map[string]bool
}

func ledgerKey(studentID, sectionID string) string {
	return studentID + "/" + sectionID
}

func (m *memLedger) List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error) {
	return nil, 0, nil
}

func (m *memLedger) FindByPair(ctx context.Context, studentID, sectionID string) (*models.Registration, error) {
	if r, ok := m.registrations[ledgerKey(studentID, sectionID)]; ok {
		copy := *r
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memLedger) ListRoster(ctx context.Context, sectionID string) ([]models.Registration, error) {
	var roster []models.Registration
	for _, r := range m.registrations {
		if r.SectionID == sectionID && r.Status != models.RegistrationStatusDropped {
			roster = append(roster, *r)
		}
	}
	return roster, nil
}

func (m *memLedger) CompletedCourseIDs(ctx context.Context, studentID string) (map[string]bool, error) {
	return m.completed, nil
}

func (m *memLedger) CountBySection(ctx context.Context, sectionID string) (int, error) {
	count := 0
	for _, r := range m.registrations {
		if r.SectionID == sectionID {
			count++
		}
	}
	return count, nil
}

func (m *memLedger) Register(ctx context.Context, studentID, sectionID string) (*models.Registration, error) {
	section := m.sections[sectionID]
	if section.CurrentEnrollment >= section.MaxCapacity {
		return nil, appErrors.ErrSectionFull
	}
	now := time.Now().UTC()
	key := ledgerKey(studentID, sectionID)
	if existing, ok := m.registrations[key]; ok {
		switch existing.Status {
		case models.RegistrationStatusRegistered:
			return nil, appErrors.ErrAlreadyRegistered
		case models.RegistrationStatusCompleted:
			return nil, appErrors.ErrAlreadyCompleted
		}
		existing.Status = models.RegistrationStatusRegistered
		existing.RegisteredAt = now
		existing.DroppedAt = nil
		section.CurrentEnrollment++
		copy := *existing
		return &copy, nil
	}
	registration := &models.Registration{
		ID:           fmt.Sprintf("reg-%d", len(m.registrations)+1),
		StudentID:    studentID,
		SectionID:    sectionID,
		Status:       models.RegistrationStatusRegistered,
		RegisteredAt: now,
	}
	m.registrations[key] = registration
	section.CurrentEnrollment++
	copy := *registration
	return &copy, nil
}

func (m *memLedger) Drop(ctx context.Context, studentID, sectionID string) (*models.Registration, error) {
	registration, ok := m.registrations[ledgerKey(studentID, sectionID)]
	if !ok || registration.Status != models.RegistrationStatusRegistered {
		return nil, appErrors.ErrNotRegistered
	}
	now := time.Now().UTC()
	registration.Status = models.RegistrationStatusDropped
	registration.DroppedAt = &now
	section := m.sections[sectionID]
	if section.CurrentEnrollment > 0 {
		section.CurrentEnrollment--
	}
	copy := *registration
	return &copy, nil
}

type memSections struct {
	sections map[string]*models.Section
}

func (m *memSections) FindByID(ctx context.Context, id string) (*models.Section, error) {
	if s, ok := m.sections[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type memSemesters struct{}

func (m *memSemesters) FindByID(ctx context.Context, id string) (*models.Semester, error) {
	now := time.Now().UTC()
	return &models.Semester{
		ID:                    id,
		RegistrationStartDate: now.Add(-24 * time.Hour),
		RegistrationEndDate:   now.Add(24 * time.Hour),
	}, nil
}

type memPrerequisites struct {
	edges map[string][]models.PrerequisiteDetail
}

func (m *memPrerequisites) ListPrerequisites(ctx context.Context, courseID string) ([]models.PrerequisiteDetail, error) {
	return m.edges[courseID], nil
}

func buildRegistrationRouter(ledger *memLedger, prereqs *memPrerequisites) *gin.Engine {
	gin.SetMode(gin.TestMode)
	if prereqs == nil {
		prereqs = &memPrerequisites{}
	}
	svc := service.NewEnrollmentService(
		ledger,
		&memSections{sections: ledger.sections},
		&memSemesters{},
		prereqs,
		nil,
		time.Minute,
		nil,
		nil,
		zap.NewNop(),
	)
	h := NewRegistrationHandler(svc)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "staff-1", Role: models.RoleStaff})
		c.Next()
	})
	router.POST("/registrations", h.Register)
	router.DELETE("/students/:studentId/registrations/:sectionId", h.Drop)
	router.GET("/sections/:id/roster", h.Roster)
	return router
}

func newLedger(capacity, current int) *memLedger {
	return &memLedger{
		sections: map[string]*models.Section{
			"sec-1": {ID: "sec-1", CourseID: "crs-1", SemesterID: "sem-1", MaxCapacity: capacity, CurrentEnrollment: current},
		},
		registrations: map[string]*models.Registration{},
	}
}

func postRegistration(router *gin.Engine, studentID, sectionID string) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(map[string]string{"student_id": studentID, "section_id": sectionID})
	req := httptest.NewRequest(http.MethodPost, "/registrations", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) *appErrors.Error {
	t.Helper()
	var envelope struct {
		Error *appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	return envelope.Error
}

func TestRegistrationFlow(t *testing.T) {
	ledger := newLedger(2, 0)
	router := buildRegistrationRouter(ledger, nil)

	// First registration takes a seat.
	w := postRegistration(router, "stu-1", "sec-1")
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, ledger.sections["sec-1"].CurrentEnrollment)

	// Registering twice is rejected without touching the counter.
	w = postRegistration(router, "stu-1", "sec-1")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_REGISTERED", decodeError(t, w).Code)
	assert.Equal(t, 1, ledger.sections["sec-1"].CurrentEnrollment)

	// Dropping releases the seat.
	req := httptest.NewRequest(http.MethodDelete, "/students/stu-1/registrations/sec-1", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, ledger.sections["sec-1"].CurrentEnrollment)

	// Registering again reactivates the same ledger row.
	w = postRegistration(router, "stu-1", "sec-1")
	assert.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, ledger.registrations, 1)
	assert.Equal(t, models.RegistrationStatusRegistered, ledger.registrations["stu-1/sec-1"].Status)
}

func TestRegistrationSectionFull(t *testing.T) {
	ledger := newLedger(30, 30)
	router := buildRegistrationRouter(ledger, nil)

	w := postRegistration(router, "stu-1", "sec-1")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "SECTION_FULL", decodeError(t, w).Code)
}

func TestRegistrationPrerequisiteNotMet(t *testing.T) {
	ledger := newLedger(30, 0)
	prereqs := &memPrerequisites{edges: map[string][]models.PrerequisiteDetail{
		"crs-1": {{Prerequisite: models.Prerequisite{PrerequisiteCourseID: "crs-100"}, CourseCode: "CS100"}},
	}}
	router := buildRegistrationRouter(ledger, prereqs)

	w := postRegistration(router, "stu-1", "sec-1")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	appErr := decodeError(t, w)
	assert.Equal(t, "PREREQUISITE_NOT_MET", appErr.Code)
	assert.Contains(t, fmt.Sprintf("%v", appErr.Details), "CS100")
}

func TestRegistrationDropWithoutActive(t *testing.T) {
	ledger := newLedger(30, 0)
	router := buildRegistrationRouter(ledger, nil)

	req := httptest.NewRequest(http.MethodDelete, "/students/stu-1/registrations/sec-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "NOT_REGISTERED", decodeError(t, w).Code)
}

func TestRosterEndpoint(t *testing.T) {
	ledger := newLedger(30, 0)
	router := buildRegistrationRouter(ledger, nil)

	postRegistration(router, "stu-1", "sec-1")
	postRegistration(router, "stu-2", "sec-1")

	req := httptest.NewRequest(http.MethodGet, "/sections/sec-1/roster", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data []models.Registration `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Len(t, envelope.Data, 2)
}
