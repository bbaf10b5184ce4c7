package service

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/campushq/registrar-api/internal/models"
	appErrors "github.com/campushq/registrar-api/pkg/errors"
	"github.com/campushq/registrar-api/pkg/export"
)

type transcriptRepository interface {
	TranscriptRows(ctx context.Context, studentID, semesterID string) ([]models.TranscriptRow, error)
}

type queryObserver interface {
	ObserveDBQuery(label string, duration time.Duration)
}

// TranscriptService computes GPA aggregates over completed registrations and
// renders transcript exports. GPA is derived on every call and never cached:
// a stale average is worse than a slow one.
type TranscriptService struct {
	grades  transcriptRepository
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
	metrics queryObserver
	logger  *zap.Logger
	now     func() time.Time
}

// NewTranscriptService constructs TranscriptService.
func NewTranscriptService(grades transcriptRepository, csv *export.CSVExporter, pdf *export.PDFExporter, metrics queryObserver, logger *zap.Logger) *TranscriptService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TranscriptService{
		grades:  grades,
		csv:     csv,
		pdf:     pdf,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// transcriptRows loads the student's completed rows while timing the query.
func (s *TranscriptService) transcriptRows(ctx context.Context, studentID, semesterID string) ([]models.TranscriptRow, error) {
	start := time.Now()
	rows, err := s.grades.TranscriptRows(ctx, studentID, semesterID)
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("transcript_rows", time.Since(start))
	}
	return rows, err
}

// GPA returns the credit-weighted grade point average over the student's
// completed registrations, optionally restricted to one semester. A student
// with no completed courses has a GPA of zero over zero credits.
func (s *TranscriptService) GPA(ctx context.Context, studentID, semesterID string) (*models.GPASummary, error) {
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student required")
	}
	rows, err := s.transcriptRows(ctx, studentID, semesterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load completed courses")
	}
	gpa, credits := weightedGPA(rows)
	return &models.GPASummary{
		StudentID:    studentID,
		SemesterID:   semesterID,
		GPA:          gpa,
		TotalCredits: credits,
		CourseCount:  len(rows),
	}, nil
}

// Transcript assembles the full academic record grouped by semester, with a
// per-semester SGPA and a cumulative CGPA.
func (s *TranscriptService) Transcript(ctx context.Context, studentID string) (*models.Transcript, error) {
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student required")
	}
	rows, err := s.transcriptRows(ctx, studentID, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load transcript rows")
	}

	transcript := &models.Transcript{StudentID: studentID, IssuedAt: s.now()}
	index := make(map[string]int)
	for _, row := range rows {
		i, ok := index[row.SemesterID]
		if !ok {
			i = len(transcript.Semesters)
			index[row.SemesterID] = i
			transcript.Semesters = append(transcript.Semesters, models.TranscriptSemester{
				SemesterID:   row.SemesterID,
				SemesterName: row.SemesterName,
			})
		}
		transcript.Semesters[i].Rows = append(transcript.Semesters[i].Rows, row)
	}
	for i := range transcript.Semesters {
		gpa, credits := weightedGPA(transcript.Semesters[i].Rows)
		transcript.Semesters[i].SGPA = gpa
		transcript.Semesters[i].Credits = credits
	}
	cgpa, credits := weightedGPA(rows)
	transcript.CGPA = cgpa
	transcript.Credits = credits
	return transcript, nil
}

// ExportTranscript renders the transcript as CSV or PDF and returns the bytes
// with the matching content type.
func (s *TranscriptService) ExportTranscript(ctx context.Context, studentID, format string) ([]byte, string, error) {
	transcript, err := s.Transcript(ctx, studentID)
	if err != nil {
		return nil, "", err
	}
	dataset := transcriptDataset(transcript)

	switch strings.ToLower(format) {
	case "csv", "":
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, "text/csv", nil
	case "pdf":
		title := fmt.Sprintf("Academic Transcript - %s", studentID)
		payload, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

func transcriptDataset(transcript *models.Transcript) export.Dataset {
	headers := []string{"Semester", "Course Code", "Course Name", "Credits", "Percentage", "Grade"}
	var rows []map[string]string
	for _, semester := range transcript.Semesters {
		for _, row := range semester.Rows {
			percentage := ""
			if row.OverallPercentage != nil {
				percentage = strconv.FormatFloat(*row.OverallPercentage, 'f', 2, 64)
			}
			rows = append(rows, map[string]string{
				"Semester":    semester.SemesterName,
				"Course Code": row.CourseCode,
				"Course Name": row.CourseName,
				"Credits":     strconv.Itoa(row.Credits),
				"Percentage":  percentage,
				"Grade":       string(row.FinalLetterGrade),
			})
		}
		rows = append(rows, map[string]string{
			"Semester":    semester.SemesterName,
			"Course Name": "SGPA",
			"Credits":     strconv.Itoa(semester.Credits),
			"Grade":       strconv.FormatFloat(semester.SGPA, 'f', 2, 64),
		})
	}
	rows = append(rows, map[string]string{
		"Course Name": "CGPA",
		"Credits":     strconv.Itoa(transcript.Credits),
		"Grade":       strconv.FormatFloat(transcript.CGPA, 'f', 2, 64),
	})
	return export.Dataset{Headers: headers, Rows: rows}
}

// weightedGPA computes sum(points*credits)/sum(credits), rounded to two
// decimals. Zero credits yields zero rather than dividing by zero.
func weightedGPA(rows []models.TranscriptRow) (float64, int) {
	var points float64
	var credits int
	for _, row := range rows {
		points += row.FinalLetterGrade.GradePoints() * float64(row.Credits)
		credits += row.Credits
	}
	if credits == 0 {
		return 0, 0
	}
	return math.Round(points/float64(credits)*100) / 100, credits
}
