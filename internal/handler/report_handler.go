package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gioland/internal/service"
)

// ReportHandler handles country report endpoints.
type ReportHandler struct {
	reportService service.ReportService
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(reportService service.ReportService) *ReportHandler {
	return &ReportHandler{reportService: reportService}
}

// Upload handles POST /api/v1/reports
func (h *ReportHandler) Upload(c *gin.Context) {
	username, ok := requireUsername(c)
	if !ok {
		return
	}
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "missing file field")
		return
	}
	defer file.Close()

	report, err := h.reportService.Upload(c.Request.Context(), username,
		c.PostForm("country"), c.PostForm("category"), header.Filename, file)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondCreated(c, report)
}

// List handles GET /api/v1/reports
func (h *ReportHandler) List(c *gin.Context) {
	reports, err := h.reportService.List(c.Request.Context(), c.Query("country"))
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, reports)
}

func reportID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "bad report id")
		return 0, false
	}
	return id, true
}

// Get handles GET /api/v1/reports/:id
func (h *ReportHandler) Get(c *gin.Context) {
	id, ok := reportID(c)
	if !ok {
		return
	}
	report, err := h.reportService.Get(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, report)
}

// Download handles GET /api/v1/reports/:id/download
func (h *ReportHandler) Download(c *gin.Context) {
	id, ok := reportID(c)
	if !ok {
		return
	}
	report, err := h.reportService.Get(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}
	path, err := h.reportService.FilePath(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}
	c.FileAttachment(path, report.Filename)
}

// Delete handles DELETE /api/v1/reports/:id
func (h *ReportHandler) Delete(c *gin.Context) {
	username, ok := requireUsername(c)
	if !ok {
		return
	}
	id, ok := reportID(c)
	if !ok {
		return
	}
	if err := h.reportService.Delete(c.Request.Context(), username, id); err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, gin.H{"message": "report deleted"})
}
