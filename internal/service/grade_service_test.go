package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campushq/registrar-api/internal/models"
	appErrors "github.com/campushq/registrar-api/pkg/errors"
)

type mockGradeRepo struct {
	assessments map[string][]models.Assessment
	scores      map[string][]models.AssessmentScore
	savedScores []models.AssessmentScore
	savedFinals []models.FinalGradeRecord
	scoreCounts map[string]int
	deleted     []string
}

func (m *mockGradeRepo) ListAssessments(ctx context.Context, sectionID string) ([]models.Assessment, error) {
	return m.assessments[sectionID], nil
}

func (m *mockGradeRepo) FindAssessment(ctx context.Context, id string) (*models.Assessment, error) {
	for _, list := range m.assessments {
		for _, assessment := range list {
			if assessment.ID == id {
				a := assessment
				return &a, nil
			}
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockGradeRepo) CreateAssessment(ctx context.Context, assessment *models.Assessment) error {
	assessment.ID = "asm-new"
	if m.assessments == nil {
		m.assessments = make(map[string][]models.Assessment)
	}
	m.assessments[assessment.SectionID] = append(m.assessments[assessment.SectionID], *assessment)
	return nil
}

func (m *mockGradeRepo) UpdateAssessment(ctx context.Context, assessment *models.Assessment) error {
	return nil
}

func (m *mockGradeRepo) CountScores(ctx context.Context, assessmentID string) (int, error) {
	return m.scoreCounts[assessmentID], nil
}

func (m *mockGradeRepo) DeleteAssessment(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockGradeRepo) ScoresBySection(ctx context.Context, sectionID string) (map[string][]models.AssessmentScore, error) {
	return m.scores, nil
}

func (m *mockGradeRepo) SaveScores(ctx context.Context, scores []models.AssessmentScore, finals []models.FinalGradeRecord) error {
	m.savedScores = scores
	m.savedFinals = finals
	return nil
}

type mockRosterReader struct {
	roster []models.Registration
}

func (m *mockRosterReader) ListRoster(ctx context.Context, sectionID string) ([]models.Registration, error) {
	return m.roster, nil
}

func float(v float64) *float64 {
	return &v
}

func newGradeFixture(repo *mockGradeRepo, roster []models.Registration) *GradeService {
	sections := &mockSectionReader{sections: map[string]*models.Section{
		"sec-1": {ID: "sec-1", CourseID: "crs-1", SemesterID: "sem-1", MaxCapacity: 30},
	}}
	return NewGradeService(repo, &mockRosterReader{roster: roster}, sections, validator.New(), zap.NewNop())
}

func twoAssessments() map[string][]models.Assessment {
	return map[string][]models.Assessment{
		"sec-1": {
			{ID: "asm-mid", SectionID: "sec-1", Name: "Midterm", MaxScore: 100},
			{ID: "asm-fin", SectionID: "sec-1", Name: "Final", MaxScore: 100},
		},
	}
}

func TestGradeServiceSaveScoresDerivesFinal(t *testing.T) {
	repo := &mockGradeRepo{assessments: twoAssessments()}
	roster := []models.Registration{{ID: "reg-1", StudentID: "stu-1", Status: models.RegistrationStatusRegistered}}
	svc := newGradeFixture(repo, roster)

	req := SaveScoresRequest{
		Scores: []models.ScoreEntry{
			{RegistrationID: "reg-1", AssessmentID: "asm-mid", Score: float(80)},
			{RegistrationID: "reg-1", AssessmentID: "asm-fin", Score: float(70)},
		},
		Finals: []models.FinalGradeEntry{{RegistrationID: "reg-1"}},
	}
	require.NoError(t, svc.SaveScores(context.Background(), "sec-1", req))

	require.Len(t, repo.savedFinals, 1)
	assert.InDelta(t, 75.0, repo.savedFinals[0].OverallPercentage, 0.001)
	assert.Equal(t, models.GradeB, repo.savedFinals[0].FinalLetterGrade)
	assert.Len(t, repo.savedScores, 2)
}

func TestGradeServiceSaveScoresMissingScoreCountsAsZero(t *testing.T) {
	repo := &mockGradeRepo{assessments: twoAssessments()}
	roster := []models.Registration{{ID: "reg-1", StudentID: "stu-1", Status: models.RegistrationStatusRegistered}}
	svc := newGradeFixture(repo, roster)

	req := SaveScoresRequest{
		Scores: []models.ScoreEntry{
			{RegistrationID: "reg-1", AssessmentID: "asm-mid", Score: float(80)},
		},
		Finals: []models.FinalGradeEntry{{RegistrationID: "reg-1"}},
	}
	require.NoError(t, svc.SaveScores(context.Background(), "sec-1", req))

	require.Len(t, repo.savedFinals, 1)
	assert.InDelta(t, 40.0, repo.savedFinals[0].OverallPercentage, 0.001)
	assert.Equal(t, models.GradeF, repo.savedFinals[0].FinalLetterGrade)
}

func TestGradeServiceSaveScoresOverlaysStoredScores(t *testing.T) {
	repo := &mockGradeRepo{
		assessments: twoAssessments(),
		scores: map[string][]models.AssessmentScore{
			"reg-1": {{RegistrationID: "reg-1", AssessmentID: "asm-mid", ScoreAchieved: float(90)}},
		},
	}
	roster := []models.Registration{{ID: "reg-1", StudentID: "stu-1", Status: models.RegistrationStatusRegistered}}
	svc := newGradeFixture(repo, roster)

	// The stored midterm score stands; only the final exam is submitted now.
	req := SaveScoresRequest{
		Scores: []models.ScoreEntry{
			{RegistrationID: "reg-1", AssessmentID: "asm-fin", Score: float(90)},
		},
		Finals: []models.FinalGradeEntry{{RegistrationID: "reg-1"}},
	}
	require.NoError(t, svc.SaveScores(context.Background(), "sec-1", req))

	require.Len(t, repo.savedFinals, 1)
	assert.InDelta(t, 90.0, repo.savedFinals[0].OverallPercentage, 0.001)
	assert.Equal(t, models.GradeA, repo.savedFinals[0].FinalLetterGrade)
}

func TestGradeServiceSaveScoresRejectsOutOfRange(t *testing.T) {
	repo := &mockGradeRepo{assessments: twoAssessments()}
	roster := []models.Registration{{ID: "reg-1", StudentID: "stu-1", Status: models.RegistrationStatusRegistered}}
	svc := newGradeFixture(repo, roster)

	req := SaveScoresRequest{
		Scores: []models.ScoreEntry{
			{RegistrationID: "reg-1", AssessmentID: "asm-mid", Score: float(101)},
		},
	}
	err := svc.SaveScores(context.Background(), "sec-1", req)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrScoreOutOfRange))
	assert.Nil(t, repo.savedScores)
}

func TestGradeServiceSaveScoresRejectsForeignAssessment(t *testing.T) {
	repo := &mockGradeRepo{assessments: twoAssessments()}
	roster := []models.Registration{{ID: "reg-1", StudentID: "stu-1", Status: models.RegistrationStatusRegistered}}
	svc := newGradeFixture(repo, roster)

	req := SaveScoresRequest{
		Scores: []models.ScoreEntry{
			{RegistrationID: "reg-1", AssessmentID: "asm-other", Score: float(50)},
		},
	}
	err := svc.SaveScores(context.Background(), "sec-1", req)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestGradeServiceSaveScoresRejectsForeignRegistration(t *testing.T) {
	repo := &mockGradeRepo{assessments: twoAssessments()}
	roster := []models.Registration{{ID: "reg-1", StudentID: "stu-1", Status: models.RegistrationStatusRegistered}}
	svc := newGradeFixture(repo, roster)

	req := SaveScoresRequest{
		Scores: []models.ScoreEntry{
			{RegistrationID: "reg-other", AssessmentID: "asm-mid", Score: float(50)},
		},
	}
	err := svc.SaveScores(context.Background(), "sec-1", req)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestGradeServiceSaveScoresClearsWithNil(t *testing.T) {
	repo := &mockGradeRepo{
		assessments: twoAssessments(),
		scores: map[string][]models.AssessmentScore{
			"reg-1": {{RegistrationID: "reg-1", AssessmentID: "asm-mid", ScoreAchieved: float(90)}},
		},
	}
	roster := []models.Registration{{ID: "reg-1", StudentID: "stu-1", Status: models.RegistrationStatusRegistered}}
	svc := newGradeFixture(repo, roster)

	req := SaveScoresRequest{
		Scores: []models.ScoreEntry{
			{RegistrationID: "reg-1", AssessmentID: "asm-mid", Score: nil},
		},
		Finals: []models.FinalGradeEntry{{RegistrationID: "reg-1"}},
	}
	require.NoError(t, svc.SaveScores(context.Background(), "sec-1", req))

	require.Len(t, repo.savedScores, 1)
	assert.Nil(t, repo.savedScores[0].ScoreAchieved)
	require.Len(t, repo.savedFinals, 1)
	assert.InDelta(t, 0.0, repo.savedFinals[0].OverallPercentage, 0.001)
	assert.Equal(t, models.GradeF, repo.savedFinals[0].FinalLetterGrade)
}

func TestGradeServiceSaveScoresEmptySheet(t *testing.T) {
	repo := &mockGradeRepo{assessments: twoAssessments()}
	svc := newGradeFixture(repo, nil)

	err := svc.SaveScores(context.Background(), "sec-1", SaveScoresRequest{})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestGradeServiceGradeSheet(t *testing.T) {
	percentage := 75.0
	letter := models.GradeB
	repo := &mockGradeRepo{
		assessments: twoAssessments(),
		scores: map[string][]models.AssessmentScore{
			"reg-1": {
				{RegistrationID: "reg-1", AssessmentID: "asm-mid", ScoreAchieved: float(80)},
				{RegistrationID: "reg-1", AssessmentID: "asm-fin", ScoreAchieved: float(70)},
			},
		},
	}
	roster := []models.Registration{{
		ID:                "reg-1",
		StudentID:         "stu-1",
		Status:            models.RegistrationStatusCompleted,
		OverallPercentage: &percentage,
		FinalLetterGrade:  &letter,
	}}
	svc := newGradeFixture(repo, roster)

	sheet, err := svc.GradeSheet(context.Background(), "sec-1")
	require.NoError(t, err)
	require.Len(t, sheet, 1)
	assert.Equal(t, "stu-1", sheet[0].StudentID)
	assert.Len(t, sheet[0].Scores, 2)
	assert.Equal(t, models.GradeB, *sheet[0].FinalLetterGrade)
}

func TestGradeServiceDeleteAssessmentWithScores(t *testing.T) {
	repo := &mockGradeRepo{
		assessments: twoAssessments(),
		scoreCounts: map[string]int{"asm-mid": 12},
	}
	svc := newGradeFixture(repo, nil)

	err := svc.DeleteAssessment(context.Background(), "asm-mid")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrDependencyConflict))
	assert.Empty(t, repo.deleted)

	require.NoError(t, svc.DeleteAssessment(context.Background(), "asm-fin"))
	assert.Contains(t, repo.deleted, "asm-fin")
}
