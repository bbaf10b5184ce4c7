package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campushq/registrar-api/internal/models"
	"github.com/campushq/registrar-api/internal/service"
	appErrors "github.com/campushq/registrar-api/pkg/errors"
	"github.com/campushq/registrar-api/pkg/response"
)

// RegistrationHandler exposes enrollment ledger endpoints.
type RegistrationHandler struct {
	enrollments *service.EnrollmentService
}

// NewRegistrationHandler constructs RegistrationHandler.
func NewRegistrationHandler(enrollments *service.EnrollmentService) *RegistrationHandler {
	return &RegistrationHandler{enrollments: enrollments}
}

// List godoc
// @Summary List registrations
// @Tags Registrations
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param sectionId query string false "Filter by section"
// @Param semesterId query string false "Filter by semester"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /registrations [get]
func (h *RegistrationHandler) List(c *gin.Context) {
	var filter models.RegistrationFilter
	filter.StudentID = c.Query("studentId")
	filter.SectionID = c.Query("sectionId")
	filter.SemesterID = c.Query("semesterId")
	filter.Status = models.RegistrationStatus(strings.ToUpper(c.Query("status")))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	registrations, pagination, err := h.enrollments.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, registrations, pagination)
}

// Register godoc
// @Summary Register a student into a section
// @Tags Registrations
// @Accept json
// @Produce json
// @Param payload body service.RegisterRequest true "Registration payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /registrations [post]
func (h *RegistrationHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleStudent {
		// Students can only register themselves.
		req.StudentID = claims.UserID
	}
	registration, err := h.enrollments.Register(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, registration)
}

// Drop godoc
// @Summary Drop a registration
// @Tags Registrations
// @Produce json
// @Param studentId path string true "Student ID"
// @Param sectionId path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /students/{studentId}/registrations/{sectionId} [delete]
func (h *RegistrationHandler) Drop(c *gin.Context) {
	studentID := c.Param("studentId")
	sectionID := c.Param("sectionId")
	registration, err := h.enrollments.Drop(c.Request.Context(), studentID, sectionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, registration, nil)
}

// Roster godoc
// @Summary Section roster
// @Tags Registrations
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Router /sections/{id}/roster [get]
func (h *RegistrationHandler) Roster(c *gin.Context) {
	roster, err := h.enrollments.Roster(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roster, nil)
}
