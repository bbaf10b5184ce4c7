package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushq/registrar-api/internal/models"
	appErrors "github.com/campushq/registrar-api/pkg/errors"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var registrationColumns = []string{
	"id", "student_id", "section_id", "status", "overall_percentage",
	"final_letter_grade", "registered_at", "dropped_at", "updated_at",
}

func expectSectionLock(mock sqlmock.Sqlmock, sectionID string, max, current int) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT max_capacity, current_enrollment FROM sections WHERE id = $1 FOR UPDATE")).
		WithArgs(sectionID).
		WillReturnRows(sqlmock.NewRows([]string{"max_capacity", "current_enrollment"}).AddRow(max, current))
}

func TestRegistrationRepositoryRegisterInsertsNewRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	expectSectionLock(mock, "sec-1", 30, 10)
	mock.ExpectQuery(`SELECT id, student_id, section_id, .+ FROM registrations WHERE student_id = \$1 AND section_id = \$2 FOR UPDATE`).
		WithArgs("stu-1", "sec-1").
		WillReturnRows(sqlmock.NewRows(registrationColumns))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO registrations")).
		WithArgs(sqlmock.AnyArg(), "stu-1", "sec-1", models.RegistrationStatusRegistered, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sections SET current_enrollment = current_enrollment + 1")).
		WithArgs("sec-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	registration, err := repo.Register(context.Background(), "stu-1", "sec-1")
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationStatusRegistered, registration.Status)
	assert.NotEmpty(t, registration.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryRegisterSectionFull(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	expectSectionLock(mock, "sec-1", 30, 30)
	mock.ExpectQuery(`SELECT id, student_id, section_id, .+ FROM registrations WHERE student_id = \$1 AND section_id = \$2 FOR UPDATE`).
		WithArgs("stu-1", "sec-1").
		WillReturnRows(sqlmock.NewRows(registrationColumns))
	mock.ExpectRollback()

	_, err := repo.Register(context.Background(), "stu-1", "sec-1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrSectionFull))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryRegisterDuplicateOutranksFullSection(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	now := time.Now().UTC()
	mock.ExpectBegin()
	expectSectionLock(mock, "sec-1", 30, 30)
	mock.ExpectQuery(`SELECT id, student_id, section_id, .+ FROM registrations WHERE student_id = \$1 AND section_id = \$2 FOR UPDATE`).
		WithArgs("stu-1", "sec-1").
		WillReturnRows(sqlmock.NewRows(registrationColumns).
			AddRow("reg-1", "stu-1", "sec-1", models.RegistrationStatusRegistered, nil, nil, now, nil, now))
	mock.ExpectRollback()

	_, err := repo.Register(context.Background(), "stu-1", "sec-1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrAlreadyRegistered))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryRegisterAlreadyRegistered(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	now := time.Now().UTC()
	mock.ExpectBegin()
	expectSectionLock(mock, "sec-1", 30, 10)
	mock.ExpectQuery(`SELECT id, student_id, section_id, .+ FROM registrations WHERE student_id = \$1 AND section_id = \$2 FOR UPDATE`).
		WithArgs("stu-1", "sec-1").
		WillReturnRows(sqlmock.NewRows(registrationColumns).
			AddRow("reg-1", "stu-1", "sec-1", models.RegistrationStatusRegistered, nil, nil, now, nil, now))
	mock.ExpectRollback()

	_, err := repo.Register(context.Background(), "stu-1", "sec-1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrAlreadyRegistered))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryRegisterReactivatesDroppedRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	registeredAt := time.Now().UTC().Add(-48 * time.Hour)
	droppedAt := registeredAt.Add(time.Hour)
	mock.ExpectBegin()
	expectSectionLock(mock, "sec-1", 30, 10)
	mock.ExpectQuery(`SELECT id, student_id, section_id, .+ FROM registrations WHERE student_id = \$1 AND section_id = \$2 FOR UPDATE`).
		WithArgs("stu-1", "sec-1").
		WillReturnRows(sqlmock.NewRows(registrationColumns).
			AddRow("reg-1", "stu-1", "sec-1", models.RegistrationStatusDropped, nil, nil, registeredAt, droppedAt, droppedAt))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE registrations SET status = $2, registered_at = $3, dropped_at = NULL")).
		WithArgs("reg-1", models.RegistrationStatusRegistered, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sections SET current_enrollment = current_enrollment + 1")).
		WithArgs("sec-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	registration, err := repo.Register(context.Background(), "stu-1", "sec-1")
	require.NoError(t, err)
	assert.Equal(t, "reg-1", registration.ID)
	assert.Equal(t, models.RegistrationStatusRegistered, registration.Status)
	assert.Nil(t, registration.DroppedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryDrop(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, student_id, section_id, .+ FROM registrations WHERE student_id = \$1 AND section_id = \$2 FOR UPDATE`).
		WithArgs("stu-1", "sec-1").
		WillReturnRows(sqlmock.NewRows(registrationColumns).
			AddRow("reg-1", "stu-1", "sec-1", models.RegistrationStatusRegistered, nil, nil, now, nil, now))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE registrations SET status = $2, dropped_at = $3")).
		WithArgs("reg-1", models.RegistrationStatusDropped, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sections SET current_enrollment = GREATEST(current_enrollment - 1, 0)")).
		WithArgs("sec-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	registration, err := repo.Drop(context.Background(), "stu-1", "sec-1")
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationStatusDropped, registration.Status)
	assert.NotNil(t, registration.DroppedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryDropNotRegistered(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, student_id, section_id, .+ FROM registrations WHERE student_id = \$1 AND section_id = \$2 FOR UPDATE`).
		WithArgs("stu-1", "sec-1").
		WillReturnRows(sqlmock.NewRows(registrationColumns))
	mock.ExpectRollback()

	_, err := repo.Drop(context.Background(), "stu-1", "sec-1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotRegistered))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryDropAlreadyDropped(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, student_id, section_id, .+ FROM registrations WHERE student_id = \$1 AND section_id = \$2 FOR UPDATE`).
		WithArgs("stu-1", "sec-1").
		WillReturnRows(sqlmock.NewRows(registrationColumns).
			AddRow("reg-1", "stu-1", "sec-1", models.RegistrationStatusDropped, nil, nil, now, now, now))
	mock.ExpectRollback()

	_, err := repo.Drop(context.Background(), "stu-1", "sec-1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotRegistered))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryCompletedCourseIDs(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT sec.course_id")).
		WithArgs("stu-1", models.RegistrationStatusCompleted).
		WillReturnRows(sqlmock.NewRows([]string{"course_id"}).AddRow("crs-101").AddRow("crs-102"))

	completed, err := repo.CompletedCourseIDs(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.True(t, completed["crs-101"])
	assert.True(t, completed["crs-102"])
	assert.False(t, completed["crs-201"])
	require.NoError(t, mock.ExpectationsWereMet())
}
