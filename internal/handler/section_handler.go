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

// SectionHandler exposes section endpoints.
type SectionHandler struct {
	sections *service.SectionService
}

// NewSectionHandler constructs SectionHandler.
func NewSectionHandler(sections *service.SectionService) *SectionHandler {
	return &SectionHandler{sections: sections}
}

// List godoc
// @Summary List sections
// @Tags Sections
// @Produce json
// @Param courseId query string false "Filter by course"
// @Param semesterId query string false "Filter by semester"
// @Param teacherId query string false "Filter by teacher"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /sections [get]
func (h *SectionHandler) List(c *gin.Context) {
	var filter models.SectionFilter
	filter.CourseID = c.Query("courseId")
	filter.SemesterID = c.Query("semesterId")
	filter.TeacherID = c.Query("teacherId")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	sections, pagination, err := h.sections.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sections, pagination)
}

// Get godoc
// @Summary Get a section
// @Tags Sections
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Router /sections/{id} [get]
func (h *SectionHandler) Get(c *gin.Context) {
	section, err := h.sections.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, section, nil)
}

// Create godoc
// @Summary Schedule a section
// @Tags Sections
// @Accept json
// @Produce json
// @Param payload body service.CreateSectionRequest true "Section payload"
// @Success 201 {object} response.Envelope
// @Router /sections [post]
func (h *SectionHandler) Create(c *gin.Context) {
	var req service.CreateSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	section, err := h.sections.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, section)
}

// Update godoc
// @Summary Update a section
// @Tags Sections
// @Accept json
// @Produce json
// @Param id path string true "Section ID"
// @Param payload body service.UpdateSectionRequest true "Section payload"
// @Success 200 {object} response.Envelope
// @Router /sections/{id} [put]
func (h *SectionHandler) Update(c *gin.Context) {
	var req service.UpdateSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	section, err := h.sections.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, section, nil)
}

// Delete godoc
// @Summary Delete a section with no registrations
// @Tags Sections
// @Produce json
// @Param id path string true "Section ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /sections/{id} [delete]
func (h *SectionHandler) Delete(c *gin.Context) {
	if err := h.sections.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
