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

// AnnouncementHandler exposes announcement endpoints.
type AnnouncementHandler struct {
	announcements *service.AnnouncementService
}

// NewAnnouncementHandler constructs AnnouncementHandler.
func NewAnnouncementHandler(announcements *service.AnnouncementService) *AnnouncementHandler {
	return &AnnouncementHandler{announcements: announcements}
}

// List godoc
// @Summary List current announcements
// @Tags Announcements
// @Produce json
// @Param audience query string false "Filter by audience"
// @Param sectionId query string false "Filter by target section"
// @Param pinned query bool false "Filter by pinned flag"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /announcements [get]
func (h *AnnouncementHandler) List(c *gin.Context) {
	var filter models.AnnouncementFilter
	filter.Audience = models.AnnouncementAudience(strings.ToUpper(c.Query("audience")))
	filter.SectionID = c.Query("sectionId")
	if pinned := c.Query("pinned"); pinned != "" {
		if value, err := strconv.ParseBool(pinned); err == nil {
			filter.Pinned = &value
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	announcements, pagination, err := h.announcements.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, announcements, pagination)
}

// Get godoc
// @Summary Get an announcement
// @Tags Announcements
// @Produce json
// @Param id path string true "Announcement ID"
// @Success 200 {object} response.Envelope
// @Router /announcements/{id} [get]
func (h *AnnouncementHandler) Get(c *gin.Context) {
	announcement, err := h.announcements.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, announcement, nil)
}

// Create godoc
// @Summary Publish an announcement
// @Tags Announcements
// @Accept json
// @Produce json
// @Param payload body service.AnnouncementRequest true "Announcement payload"
// @Success 201 {object} response.Envelope
// @Router /announcements [post]
func (h *AnnouncementHandler) Create(c *gin.Context) {
	var req service.AnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	createdBy := ""
	if claims := claimsFromContext(c); claims != nil {
		createdBy = claims.UserID
	}
	announcement, err := h.announcements.Create(c.Request.Context(), createdBy, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, announcement)
}

// Update godoc
// @Summary Update an announcement
// @Tags Announcements
// @Accept json
// @Produce json
// @Param id path string true "Announcement ID"
// @Param payload body service.AnnouncementRequest true "Announcement payload"
// @Success 200 {object} response.Envelope
// @Router /announcements/{id} [put]
func (h *AnnouncementHandler) Update(c *gin.Context) {
	var req service.AnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	announcement, err := h.announcements.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, announcement, nil)
}

// Delete godoc
// @Summary Delete an announcement
// @Tags Announcements
// @Produce json
// @Param id path string true "Announcement ID"
// @Success 204
// @Router /announcements/{id} [delete]
func (h *AnnouncementHandler) Delete(c *gin.Context) {
	if err := h.announcements.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
