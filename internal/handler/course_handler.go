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

// CourseHandler exposes catalog course endpoints.
type CourseHandler struct {
	courses *service.CourseService
}

// NewCourseHandler constructs CourseHandler.
func NewCourseHandler(courses *service.CourseService) *CourseHandler {
	return &CourseHandler{courses: courses}
}

// List godoc
// @Summary List courses
// @Tags Courses
// @Produce json
// @Param departmentId query string false "Filter by department"
// @Param search query string false "Search by code or name"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	var filter models.CourseFilter
	filter.DepartmentID = c.Query("departmentId")
	filter.Search = c.Query("search")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	courses, pagination, err := h.courses.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, pagination)
}

// Get godoc
// @Summary Get a course
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	course, err := h.courses.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Create godoc
// @Summary Create a course
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body service.CourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	var req service.CourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	course, err := h.courses.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// Update godoc
// @Summary Update a course
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body service.CourseRequest true "Course payload"
// @Success 200 {object} response.Envelope
// @Router /courses/{id} [put]
func (h *CourseHandler) Update(c *gin.Context) {
	var req service.CourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	course, err := h.courses.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Delete godoc
// @Summary Delete a course no section offers
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /courses/{id} [delete]
func (h *CourseHandler) Delete(c *gin.Context) {
	if err := h.courses.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListPrerequisites godoc
// @Summary List a course's prerequisites
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/prerequisites [get]
func (h *CourseHandler) ListPrerequisites(c *gin.Context) {
	prerequisites, err := h.courses.ListPrerequisites(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, prerequisites, nil)
}

// AddPrerequisite godoc
// @Summary Add a prerequisite
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body service.PrerequisiteRequest true "Prerequisite payload"
// @Success 201 {object} response.Envelope
// @Router /courses/{id}/prerequisites [post]
func (h *CourseHandler) AddPrerequisite(c *gin.Context) {
	var req service.PrerequisiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	prerequisite, err := h.courses.AddPrerequisite(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, prerequisite)
}

// RemovePrerequisite godoc
// @Summary Remove a prerequisite
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Param prereqId path string true "Prerequisite edge ID"
// @Success 204
// @Router /courses/{id}/prerequisites/{prereqId} [delete]
func (h *CourseHandler) RemovePrerequisite(c *gin.Context) {
	if err := h.courses.RemovePrerequisite(c.Request.Context(), c.Param("id"), c.Param("prereqId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
