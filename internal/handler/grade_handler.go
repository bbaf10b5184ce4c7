package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campushq/registrar-api/internal/service"
	appErrors "github.com/campushq/registrar-api/pkg/errors"
	"github.com/campushq/registrar-api/pkg/response"
)

// GradeHandler exposes assessment and grade sheet endpoints.
type GradeHandler struct {
	grades *service.GradeService
}

// NewGradeHandler constructs GradeHandler.
func NewGradeHandler(grades *service.GradeService) *GradeHandler {
	return &GradeHandler{grades: grades}
}

// ListAssessments godoc
// @Summary List section assessments
// @Tags Grades
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Router /sections/{id}/assessments [get]
func (h *GradeHandler) ListAssessments(c *gin.Context) {
	assessments, err := h.grades.ListAssessments(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assessments, nil)
}

// CreateAssessment godoc
// @Summary Define a new assessment
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path string true "Section ID"
// @Param payload body service.AssessmentRequest true "Assessment payload"
// @Success 201 {object} response.Envelope
// @Router /sections/{id}/assessments [post]
func (h *GradeHandler) CreateAssessment(c *gin.Context) {
	var req service.AssessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	assessment, err := h.grades.CreateAssessment(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assessment)
}

// UpdateAssessment godoc
// @Summary Update an assessment
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path string true "Assessment ID"
// @Param payload body service.AssessmentRequest true "Assessment payload"
// @Success 200 {object} response.Envelope
// @Router /assessments/{id} [put]
func (h *GradeHandler) UpdateAssessment(c *gin.Context) {
	var req service.AssessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	assessment, err := h.grades.UpdateAssessment(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assessment, nil)
}

// DeleteAssessment godoc
// @Summary Delete an assessment without recorded scores
// @Tags Grades
// @Produce json
// @Param id path string true "Assessment ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /assessments/{id} [delete]
func (h *GradeHandler) DeleteAssessment(c *gin.Context) {
	if err := h.grades.DeleteAssessment(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SaveScores godoc
// @Summary Save a section's grade sheet
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path string true "Section ID"
// @Param payload body service.SaveScoresRequest true "Grade sheet payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /sections/{id}/grades [put]
func (h *GradeHandler) SaveScores(c *gin.Context) {
	var req service.SaveScoresRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	sectionID := c.Param("id")
	if err := h.grades.SaveScores(c.Request.Context(), sectionID, req); err != nil {
		response.Error(c, err)
		return
	}
	sheet, err := h.grades.GradeSheet(c.Request.Context(), sectionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sheet, nil)
}

// GradeSheet godoc
// @Summary Read a section's grade sheet
// @Tags Grades
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Router /sections/{id}/grades [get]
func (h *GradeHandler) GradeSheet(c *gin.Context) {
	sheet, err := h.grades.GradeSheet(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sheet, nil)
}
