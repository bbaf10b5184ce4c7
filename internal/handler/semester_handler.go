package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/campushq/registrar-api/internal/models"
	"github.com/campushq/registrar-api/internal/service"
	appErrors "github.com/campushq/registrar-api/pkg/errors"
	"github.com/campushq/registrar-api/pkg/response"
)

// SemesterHandler exposes semester endpoints.
type SemesterHandler struct {
	semesters *service.SemesterService
}

// NewSemesterHandler constructs SemesterHandler.
func NewSemesterHandler(semesters *service.SemesterService) *SemesterHandler {
	return &SemesterHandler{semesters: semesters}
}

// List godoc
// @Summary List semesters
// @Tags Semesters
// @Produce json
// @Param academicYear query string false "Filter by academic year"
// @Param active query bool false "Filter by active flag"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /semesters [get]
func (h *SemesterHandler) List(c *gin.Context) {
	var filter models.SemesterFilter
	filter.AcademicYear = c.Query("academicYear")
	if active := c.Query("active"); active != "" {
		if value, err := strconv.ParseBool(active); err == nil {
			filter.IsActive = &value
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	semesters, pagination, err := h.semesters.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, semesters, pagination)
}

// Get godoc
// @Summary Get a semester
// @Tags Semesters
// @Produce json
// @Param id path string true "Semester ID"
// @Success 200 {object} response.Envelope
// @Router /semesters/{id} [get]
func (h *SemesterHandler) Get(c *gin.Context) {
	semester, err := h.semesters.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, semester, nil)
}

// Create godoc
// @Summary Create a semester
// @Tags Semesters
// @Accept json
// @Produce json
// @Param payload body service.SemesterRequest true "Semester payload"
// @Success 201 {object} response.Envelope
// @Router /semesters [post]
func (h *SemesterHandler) Create(c *gin.Context) {
	var req service.SemesterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	semester, err := h.semesters.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, semester)
}

// Update godoc
// @Summary Update a semester
// @Tags Semesters
// @Accept json
// @Produce json
// @Param id path string true "Semester ID"
// @Param payload body service.SemesterRequest true "Semester payload"
// @Success 200 {object} response.Envelope
// @Router /semesters/{id} [put]
func (h *SemesterHandler) Update(c *gin.Context) {
	var req service.SemesterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	semester, err := h.semesters.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, semester, nil)
}

// Delete godoc
// @Summary Delete a semester with no sections
// @Tags Semesters
// @Produce json
// @Param id path string true "Semester ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /semesters/{id} [delete]
func (h *SemesterHandler) Delete(c *gin.Context) {
	if err := h.semesters.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
