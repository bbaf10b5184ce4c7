package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campushq/registrar-api/internal/models"
	appErrors "github.com/campushq/registrar-api/pkg/errors"
)

type mockRegistrationRepo struct {
	byPair      map[string]models.Registration
	completed   map[string]bool
	roster      []models.Registration
	registered  []string
	dropped     []string
	registerErr error
	dropErr     error
}

func pairKey(studentID, sectionID string) string {
	return studentID + "/" + sectionID
}

func (m *mockRegistrationRepo) List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error) {
	return nil, 0, nil
}

func (m *mockRegistrationRepo) FindByPair(ctx context.Context, studentID, sectionID string) (*models.Registration, error) {
	if r, ok := m.byPair[pairKey(studentID, sectionID)]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRegistrationRepo) ListRoster(ctx context.Context, sectionID string) ([]models.Registration, error) {
	return m.roster, nil
}

func (m *mockRegistrationRepo) CompletedCourseIDs(ctx context.Context, studentID string) (map[string]bool, error) {
	if m.completed == nil {
		return map[string]bool{}, nil
	}
	return m.completed, nil
}

func (m *mockRegistrationRepo) Register(ctx context.Context, studentID, sectionID string) (*models.Registration, error) {
	if m.registerErr != nil {
		return nil, m.registerErr
	}
	m.registered = append(m.registered, pairKey(studentID, sectionID))
	return &models.Registration{
		ID:           "reg-new",
		StudentID:    studentID,
		SectionID:    sectionID,
		Status:       models.RegistrationStatusRegistered,
		RegisteredAt: time.Now().UTC(),
	}, nil
}

func (m *mockRegistrationRepo) Drop(ctx context.Context, studentID, sectionID string) (*models.Registration, error) {
	if m.dropErr != nil {
		return nil, m.dropErr
	}
	m.dropped = append(m.dropped, pairKey(studentID, sectionID))
	now := time.Now().UTC()
	return &models.Registration{
		ID:        "reg-1",
		StudentID: studentID,
		SectionID: sectionID,
		Status:    models.RegistrationStatusDropped,
		DroppedAt: &now,
	}, nil
}

type mockSectionReader struct {
	sections map[string]*models.Section
}

func (m *mockSectionReader) FindByID(ctx context.Context, id string) (*models.Section, error) {
	if s, ok := m.sections[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type mockSemesterReader struct {
	semesters map[string]*models.Semester
}

func (m *mockSemesterReader) FindByID(ctx context.Context, id string) (*models.Semester, error) {
	if s, ok := m.semesters[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type mockPrerequisiteReader struct {
	prerequisites map[string][]models.PrerequisiteDetail
}

func (m *mockPrerequisiteReader) ListPrerequisites(ctx context.Context, courseID string) ([]models.PrerequisiteDetail, error) {
	return m.prerequisites[courseID], nil
}

type mockCache struct {
	gets        []string
	sets        []string
	invalidated []string
}

func (m *mockCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.gets = append(m.gets, key)
	return appErrors.ErrCacheMiss
}

func (m *mockCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.sets = append(m.sets, key)
	return nil
}

func (m *mockCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.invalidated = append(m.invalidated, pattern)
	return nil
}

func openSemester() *models.Semester {
	now := time.Now().UTC()
	return &models.Semester{
		ID:                    "sem-1",
		RegistrationStartDate: now.Add(-24 * time.Hour),
		RegistrationEndDate:   now.Add(24 * time.Hour),
	}
}

func newEnrollmentFixture(section *models.Section, semester *models.Semester, repo *mockRegistrationRepo, prereqs *mockPrerequisiteReader) (*EnrollmentService, *mockCache) {
	cache := &mockCache{}
	if prereqs == nil {
		prereqs = &mockPrerequisiteReader{}
	}
	svc := NewEnrollmentService(
		repo,
		&mockSectionReader{sections: map[string]*models.Section{section.ID: section}},
		&mockSemesterReader{semesters: map[string]*models.Semester{semester.ID: semester}},
		prereqs,
		cache,
		time.Minute,
		nil,
		validator.New(),
		zap.NewNop(),
	)
	return svc, cache
}

func TestEnrollmentServiceRegister(t *testing.T) {
	section := &models.Section{ID: "sec-1", CourseID: "crs-1", SemesterID: "sem-1", MaxCapacity: 30, CurrentEnrollment: 10}
	repo := &mockRegistrationRepo{}
	svc, cache := newEnrollmentFixture(section, openSemester(), repo, nil)

	registration, err := svc.Register(context.Background(), RegisterRequest{StudentID: "stu-1", SectionID: "sec-1"})
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationStatusRegistered, registration.Status)
	assert.Contains(t, repo.registered, "stu-1/sec-1")
	assert.Contains(t, cache.invalidated, "roster:sec-1")
}

func TestEnrollmentServiceRegisterAlreadyRegistered(t *testing.T) {
	section := &models.Section{ID: "sec-1", CourseID: "crs-1", SemesterID: "sem-1", MaxCapacity: 30}
	repo := &mockRegistrationRepo{byPair: map[string]models.Registration{
		"stu-1/sec-1": {ID: "reg-1", Status: models.RegistrationStatusRegistered},
	}}
	svc, _ := newEnrollmentFixture(section, openSemester(), repo, nil)

	_, err := svc.Register(context.Background(), RegisterRequest{StudentID: "stu-1", SectionID: "sec-1"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrAlreadyRegistered))
	assert.Empty(t, repo.registered)
}

func TestEnrollmentServiceRegisterAlreadyCompleted(t *testing.T) {
	section := &models.Section{ID: "sec-1", CourseID: "crs-1", SemesterID: "sem-1", MaxCapacity: 30}
	repo := &mockRegistrationRepo{byPair: map[string]models.Registration{
		"stu-1/sec-1": {ID: "reg-1", Status: models.RegistrationStatusCompleted},
	}}
	svc, _ := newEnrollmentFixture(section, openSemester(), repo, nil)

	_, err := svc.Register(context.Background(), RegisterRequest{StudentID: "stu-1", SectionID: "sec-1"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrAlreadyCompleted))
}

func TestEnrollmentServiceRegisterPrerequisiteNotMet(t *testing.T) {
	section := &models.Section{ID: "sec-2", CourseID: "crs-201", SemesterID: "sem-1", MaxCapacity: 30}
	prereqs := &mockPrerequisiteReader{prerequisites: map[string][]models.PrerequisiteDetail{
		"crs-201": {
			{Prerequisite: models.Prerequisite{PrerequisiteCourseID: "crs-101"}, CourseCode: "CS101"},
			{Prerequisite: models.Prerequisite{PrerequisiteCourseID: "crs-102"}, CourseCode: "CS102"},
		},
	}}
	repo := &mockRegistrationRepo{completed: map[string]bool{"crs-102": true}}
	svc, _ := newEnrollmentFixture(section, openSemester(), repo, prereqs)

	_, err := svc.Register(context.Background(), RegisterRequest{StudentID: "stu-1", SectionID: "sec-2"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrPrerequisiteNotMet))

	appErr := appErrors.FromError(err)
	assert.Equal(t, []string{"CS101"}, appErr.Details)
	assert.Empty(t, repo.registered)
}

func TestEnrollmentServiceRegisterSectionFull(t *testing.T) {
	section := &models.Section{ID: "sec-1", CourseID: "crs-1", SemesterID: "sem-1", MaxCapacity: 30, CurrentEnrollment: 30}
	repo := &mockRegistrationRepo{}
	svc, _ := newEnrollmentFixture(section, openSemester(), repo, nil)

	_, err := svc.Register(context.Background(), RegisterRequest{StudentID: "stu-1", SectionID: "sec-1"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrSectionFull))
	assert.Empty(t, repo.registered)
}

func TestEnrollmentServiceRegisterWindowClosed(t *testing.T) {
	section := &models.Section{ID: "sec-1", CourseID: "crs-1", SemesterID: "sem-1", MaxCapacity: 30}
	now := time.Now().UTC()
	semester := &models.Semester{
		ID:                    "sem-1",
		RegistrationStartDate: now.Add(-48 * time.Hour),
		RegistrationEndDate:   now.Add(-24 * time.Hour),
	}
	repo := &mockRegistrationRepo{}
	svc, _ := newEnrollmentFixture(section, semester, repo, nil)

	_, err := svc.Register(context.Background(), RegisterRequest{StudentID: "stu-1", SectionID: "sec-1"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrRegistrationClosed))
}

func TestEnrollmentServiceRegisterRaceLostPassesThrough(t *testing.T) {
	// Handler-level capacity looked fine, but the locked re-check inside the
	// transaction lost the race for the last seat.
	section := &models.Section{ID: "sec-1", CourseID: "crs-1", SemesterID: "sem-1", MaxCapacity: 30, CurrentEnrollment: 29}
	repo := &mockRegistrationRepo{registerErr: appErrors.ErrSectionFull}
	svc, _ := newEnrollmentFixture(section, openSemester(), repo, nil)

	_, err := svc.Register(context.Background(), RegisterRequest{StudentID: "stu-1", SectionID: "sec-1"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrSectionFull))
}

func TestEnrollmentServiceDrop(t *testing.T) {
	section := &models.Section{ID: "sec-1", CourseID: "crs-1", SemesterID: "sem-1", MaxCapacity: 30}
	repo := &mockRegistrationRepo{}
	svc, cache := newEnrollmentFixture(section, openSemester(), repo, nil)

	registration, err := svc.Drop(context.Background(), "stu-1", "sec-1")
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationStatusDropped, registration.Status)
	assert.NotNil(t, registration.DroppedAt)
	assert.Contains(t, cache.invalidated, "roster:sec-1")
}

func TestEnrollmentServiceDropNotRegistered(t *testing.T) {
	section := &models.Section{ID: "sec-1", CourseID: "crs-1", SemesterID: "sem-1", MaxCapacity: 30}
	repo := &mockRegistrationRepo{dropErr: appErrors.ErrNotRegistered}
	svc, _ := newEnrollmentFixture(section, openSemester(), repo, nil)

	_, err := svc.Drop(context.Background(), "stu-1", "sec-1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotRegistered))
}

func TestEnrollmentServiceRosterCaches(t *testing.T) {
	section := &models.Section{ID: "sec-1", CourseID: "crs-1", SemesterID: "sem-1", MaxCapacity: 30}
	repo := &mockRegistrationRepo{roster: []models.Registration{{ID: "reg-1", StudentID: "stu-1", SectionID: "sec-1", Status: models.RegistrationStatusRegistered}}}
	svc, cache := newEnrollmentFixture(section, openSemester(), repo, nil)

	roster, err := svc.Roster(context.Background(), "sec-1")
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.Contains(t, cache.gets, "roster:sec-1")
	assert.Contains(t, cache.sets, "roster:sec-1")
}

type mockRegistrationRecorder struct {
	events []string
}

func (m *mockRegistrationRecorder) RecordRegistration(operation, outcome string) {
	m.events = append(m.events, operation+":"+outcome)
}

func TestEnrollmentServiceRecordsOutcomes(t *testing.T) {
	section := &models.Section{ID: "sec-1", CourseID: "crs-1", SemesterID: "sem-1", MaxCapacity: 30, CurrentEnrollment: 10}
	repo := &mockRegistrationRepo{}
	recorder := &mockRegistrationRecorder{}
	semester := openSemester()
	svc := NewEnrollmentService(
		repo,
		&mockSectionReader{sections: map[string]*models.Section{section.ID: section}},
		&mockSemesterReader{semesters: map[string]*models.Semester{semester.ID: semester}},
		&mockPrerequisiteReader{},
		&mockCache{},
		time.Minute,
		recorder,
		validator.New(),
		zap.NewNop(),
	)

	_, err := svc.Register(context.Background(), RegisterRequest{StudentID: "stu-1", SectionID: "sec-1"})
	require.NoError(t, err)

	section.CurrentEnrollment = section.MaxCapacity
	_, err = svc.Register(context.Background(), RegisterRequest{StudentID: "stu-2", SectionID: "sec-1"})
	require.Error(t, err)

	_, err = svc.Drop(context.Background(), "stu-1", "sec-1")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"register:success",
		"register:" + appErrors.ErrSectionFull.Code,
		"drop:success",
	}, recorder.events)
}
