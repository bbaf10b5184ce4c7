package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campushq/registrar-api/internal/service"
	appErrors "github.com/campushq/registrar-api/pkg/errors"
	"github.com/campushq/registrar-api/pkg/response"
)

// DepartmentHandler exposes department endpoints.
type DepartmentHandler struct {
	departments *service.DepartmentService
}

// NewDepartmentHandler constructs DepartmentHandler.
func NewDepartmentHandler(departments *service.DepartmentService) *DepartmentHandler {
	return &DepartmentHandler{departments: departments}
}

// List godoc
// @Summary List departments
// @Tags Departments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /departments [get]
func (h *DepartmentHandler) List(c *gin.Context) {
	departments, err := h.departments.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, departments, nil)
}

// Get godoc
// @Summary Get a department
// @Tags Departments
// @Produce json
// @Param id path string true "Department ID"
// @Success 200 {object} response.Envelope
// @Router /departments/{id} [get]
func (h *DepartmentHandler) Get(c *gin.Context) {
	department, err := h.departments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, department, nil)
}

// Create godoc
// @Summary Create a department
// @Tags Departments
// @Accept json
// @Produce json
// @Param payload body service.DepartmentRequest true "Department payload"
// @Success 201 {object} response.Envelope
// @Router /departments [post]
func (h *DepartmentHandler) Create(c *gin.Context) {
	var req service.DepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	department, err := h.departments.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, department)
}

// Update godoc
// @Summary Update a department
// @Tags Departments
// @Accept json
// @Produce json
// @Param id path string true "Department ID"
// @Param payload body service.DepartmentRequest true "Department payload"
// @Success 200 {object} response.Envelope
// @Router /departments/{id} [put]
func (h *DepartmentHandler) Update(c *gin.Context) {
	var req service.DepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	department, err := h.departments.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, department, nil)
}

// Delete godoc
// @Summary Delete a department with no courses
// @Tags Departments
// @Produce json
// @Param id path string true "Department ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /departments/{id} [delete]
func (h *DepartmentHandler) Delete(c *gin.Context) {
	if err := h.departments.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
