package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campushq/registrar-api/internal/service"
	"github.com/campushq/registrar-api/pkg/response"
)

// TranscriptHandler exposes GPA and transcript endpoints.
type TranscriptHandler struct {
	transcripts *service.TranscriptService
}

// NewTranscriptHandler constructs TranscriptHandler.
func NewTranscriptHandler(transcripts *service.TranscriptService) *TranscriptHandler {
	return &TranscriptHandler{transcripts: transcripts}
}

// GPA godoc
// @Summary Student GPA
// @Tags Transcripts
// @Produce json
// @Param studentId path string true "Student ID"
// @Param semesterId query string false "Restrict to one semester"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/gpa [get]
func (h *TranscriptHandler) GPA(c *gin.Context) {
	summary, err := h.transcripts.GPA(c.Request.Context(), c.Param("studentId"), c.Query("semesterId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Transcript godoc
// @Summary Full academic transcript
// @Tags Transcripts
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/transcript [get]
func (h *TranscriptHandler) Transcript(c *gin.Context) {
	transcript, err := h.transcripts.Transcript(c.Request.Context(), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transcript, nil)
}

// Export godoc
// @Summary Export transcript as CSV or PDF
// @Tags Transcripts
// @Produce text/csv,application/pdf
// @Param studentId path string true "Student ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /students/{studentId}/transcript/export [get]
func (h *TranscriptHandler) Export(c *gin.Context) {
	studentID := c.Param("studentId")
	format := c.DefaultQuery("format", "csv")
	payload, contentType, err := h.transcripts.ExportTranscript(c.Request.Context(), studentID, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	extension := "csv"
	if contentType == "application/pdf" {
		extension = "pdf"
	}
	filename := fmt.Sprintf("transcript-%s.%s", studentID, extension)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, payload)
}
