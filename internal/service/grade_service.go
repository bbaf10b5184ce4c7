package service

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campushq/registrar-api/internal/models"
	appErrors "github.com/campushq/registrar-api/pkg/errors"
)

type gradeRepository interface {
	ListAssessments(ctx context.Context, sectionID string) ([]models.Assessment, error)
	FindAssessment(ctx context.Context, id string) (*models.Assessment, error)
	CreateAssessment(ctx context.Context, assessment *models.Assessment) error
	UpdateAssessment(ctx context.Context, assessment *models.Assessment) error
	CountScores(ctx context.Context, assessmentID string) (int, error)
	DeleteAssessment(ctx context.Context, id string) error
	ScoresBySection(ctx context.Context, sectionID string) (map[string][]models.AssessmentScore, error)
	SaveScores(ctx context.Context, scores []models.AssessmentScore, finals []models.FinalGradeRecord) error
}

type rosterReader interface {
	ListRoster(ctx context.Context, sectionID string) ([]models.Registration, error)
}

// SaveScoresRequest is a grade sheet submission for one section: raw score
// entries plus the registrations to finalize.
type SaveScoresRequest struct {
	Scores []models.ScoreEntry      `json:"scores" validate:"dive"`
	Finals []models.FinalGradeEntry `json:"finals" validate:"dive"`
}

// AssessmentRequest creates or renames an assessment.
type AssessmentRequest struct {
	Name     string  `json:"name" validate:"required,min=1,max=120"`
	MaxScore float64 `json:"max_score" validate:"required,gt=0"`
}

// GradeService aggregates assessment scores into final grades. All writes for
// one grade sheet go through a single transaction so readers never observe a
// partially saved sheet.
type GradeService struct {
	grades        gradeRepository
	registrations rosterReader
	sections      sectionReader
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewGradeService constructs GradeService.
func NewGradeService(grades gradeRepository, registrations rosterReader, sections sectionReader, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{
		grades:        grades,
		registrations: registrations,
		sections:      sections,
		validator:     validate,
		logger:        logger,
	}
}

// ListAssessments returns the assessments defined for a section.
func (s *GradeService) ListAssessments(ctx context.Context, sectionID string) ([]models.Assessment, error) {
	if _, err := s.loadSection(ctx, sectionID); err != nil {
		return nil, err
	}
	assessments, err := s.grades.ListAssessments(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assessments")
	}
	return assessments, nil
}

// CreateAssessment defines a new graded item for a section.
func (s *GradeService) CreateAssessment(ctx context.Context, sectionID string, req AssessmentRequest) (*models.Assessment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assessment payload")
	}
	if _, err := s.loadSection(ctx, sectionID); err != nil {
		return nil, err
	}
	assessment := &models.Assessment{SectionID: sectionID, Name: req.Name, MaxScore: req.MaxScore}
	if err := s.grades.CreateAssessment(ctx, assessment); err != nil {
		return nil, persistenceError(err, "failed to create assessment")
	}
	return assessment, nil
}

// UpdateAssessment renames an assessment or adjusts its maximum score.
func (s *GradeService) UpdateAssessment(ctx context.Context, id string, req AssessmentRequest) (*models.Assessment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assessment payload")
	}
	assessment, err := s.grades.FindAssessment(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment")
	}
	assessment.Name = req.Name
	assessment.MaxScore = req.MaxScore
	if err := s.grades.UpdateAssessment(ctx, assessment); err != nil {
		return nil, persistenceError(err, "failed to update assessment")
	}
	return assessment, nil
}

// DeleteAssessment removes an assessment that has no recorded scores.
func (s *GradeService) DeleteAssessment(ctx context.Context, id string) error {
	if _, err := s.grades.FindAssessment(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment")
	}
	count, err := s.grades.CountScores(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count scores")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrDependencyConflict,
			fmt.Sprintf("assessment has %d recorded scores", count))
	}
	if err := s.grades.DeleteAssessment(ctx, id); err != nil {
		return persistenceError(err, "failed to delete assessment")
	}
	return nil
}

// SaveScores validates and persists a grade sheet submission. Scores are
// checked against the section's assessment definitions, final percentages and
// letters are re-derived server side, and everything is written atomically.
func (s *GradeService) SaveScores(ctx context.Context, sectionID string, req SaveScoresRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade sheet payload")
	}
	if len(req.Scores) == 0 && len(req.Finals) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "grade sheet is empty")
	}
	if _, err := s.loadSection(ctx, sectionID); err != nil {
		return err
	}

	assessments, err := s.grades.ListAssessments(ctx, sectionID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assessments")
	}
	assessmentByID := make(map[string]models.Assessment, len(assessments))
	var totalMax float64
	for _, assessment := range assessments {
		assessmentByID[assessment.ID] = assessment
		totalMax += assessment.MaxScore
	}

	roster, err := s.registrations.ListRoster(ctx, sectionID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	rosterByID := make(map[string]models.Registration, len(roster))
	for _, registration := range roster {
		rosterByID[registration.ID] = registration
	}

	upserts := make([]models.AssessmentScore, 0, len(req.Scores))
	for _, entry := range req.Scores {
		assessment, ok := assessmentByID[entry.AssessmentID]
		if !ok {
			return appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("assessment %s does not belong to the section", entry.AssessmentID))
		}
		if _, ok := rosterByID[entry.RegistrationID]; !ok {
			return appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("registration %s does not belong to the section", entry.RegistrationID))
		}
		if entry.Score != nil && (*entry.Score < 0 || *entry.Score > assessment.MaxScore) {
			return appErrors.WithDetails(appErrors.ErrScoreOutOfRange,
				fmt.Sprintf("score %.2f outside [0, %.2f] for %s", *entry.Score, assessment.MaxScore, assessment.Name),
				map[string]interface{}{
					"registration_id": entry.RegistrationID,
					"assessment_id":   entry.AssessmentID,
					"max_score":       assessment.MaxScore,
				})
		}
		upserts = append(upserts, models.AssessmentScore{
			RegistrationID: entry.RegistrationID,
			AssessmentID:   entry.AssessmentID,
			ScoreAchieved:  entry.Score,
		})
	}

	var finals []models.FinalGradeRecord
	if len(req.Finals) > 0 {
		effective, err := s.effectiveScores(ctx, sectionID, upserts)
		if err != nil {
			return err
		}
		for _, entry := range req.Finals {
			if _, ok := rosterByID[entry.RegistrationID]; !ok {
				return appErrors.Clone(appErrors.ErrValidation,
					fmt.Sprintf("registration %s does not belong to the section", entry.RegistrationID))
			}
			percentage := overallPercentage(effective[entry.RegistrationID], totalMax)
			letter := models.LetterGradeFor(percentage)
			if entry.FinalLetterGrade != "" &&
				(entry.FinalLetterGrade != letter || math.Abs(entry.OverallPercentage-percentage) > 0.01) {
				s.logger.Warn("submitted final grade disagrees with derived grade",
					zap.String("registration_id", entry.RegistrationID),
					zap.Float64("submitted_percentage", entry.OverallPercentage),
					zap.Float64("derived_percentage", percentage),
					zap.String("submitted_letter", string(entry.FinalLetterGrade)),
					zap.String("derived_letter", string(letter)))
			}
			finals = append(finals, models.FinalGradeRecord{
				RegistrationID:    entry.RegistrationID,
				OverallPercentage: percentage,
				FinalLetterGrade:  letter,
			})
		}
	}

	if err := s.grades.SaveScores(ctx, upserts, finals); err != nil {
		return persistenceError(err, "failed to save grade sheet")
	}
	s.logger.Info("grade sheet saved",
		zap.String("section_id", sectionID),
		zap.Int("scores", len(upserts)),
		zap.Int("finalized", len(finals)))
	return nil
}

// GradeSheet reads back the section roster with all recorded scores and any
// finalized grades.
func (s *GradeService) GradeSheet(ctx context.Context, sectionID string) ([]models.GradeSheetRow, error) {
	if _, err := s.loadSection(ctx, sectionID); err != nil {
		return nil, err
	}
	roster, err := s.registrations.ListRoster(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	scores, err := s.grades.ScoresBySection(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load scores")
	}
	rows := make([]models.GradeSheetRow, 0, len(roster))
	for _, registration := range roster {
		row := models.GradeSheetRow{
			RegistrationID:    registration.ID,
			StudentID:         registration.StudentID,
			Status:            registration.Status,
			Scores:            scores[registration.ID],
			OverallPercentage: registration.OverallPercentage,
			FinalLetterGrade:  registration.FinalLetterGrade,
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// effectiveScores overlays the submitted entries onto the stored score rows,
// keyed by registration then assessment, so finals reflect the sheet as it
// will exist after this save.
func (s *GradeService) effectiveScores(ctx context.Context, sectionID string, upserts []models.AssessmentScore) (map[string]map[string]*float64, error) {
	stored, err := s.grades.ScoresBySection(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load scores")
	}
	effective := make(map[string]map[string]*float64)
	set := func(registrationID, assessmentID string, score *float64) {
		if effective[registrationID] == nil {
			effective[registrationID] = make(map[string]*float64)
		}
		effective[registrationID][assessmentID] = score
	}
	for registrationID, scores := range stored {
		for _, score := range scores {
			set(registrationID, score.AssessmentID, score.ScoreAchieved)
		}
	}
	for _, upsert := range upserts {
		set(upsert.RegistrationID, upsert.AssessmentID, upsert.ScoreAchieved)
	}
	return effective, nil
}

// overallPercentage sums achieved over maximum across every assessment in the
// section. A missing or cleared score contributes zero achieved points but
// the assessment's maximum still counts.
func overallPercentage(scores map[string]*float64, totalMax float64) float64 {
	if totalMax <= 0 {
		return 0
	}
	var achieved float64
	for _, score := range scores {
		if score != nil {
			achieved += *score
		}
	}
	return achieved / totalMax * 100
}

func (s *GradeService) loadSection(ctx context.Context, sectionID string) (*models.Section, error) {
	section, err := s.sections.FindByID(ctx, sectionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	return section, nil
}
