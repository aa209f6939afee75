package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gioland/internal/domain"
	"gioland/internal/service"
	"gioland/internal/xlsxexport"
)

// ParcelHandler handles the delivery workflow endpoints.
type ParcelHandler struct {
	parcelService service.ParcelService
}

// NewParcelHandler creates a new ParcelHandler.
func NewParcelHandler(parcelService service.ParcelService) *ParcelHandler {
	return &ParcelHandler{parcelService: parcelService}
}

// Create handles POST /api/v1/deliveries/:type
func (h *ParcelHandler) Create(c *gin.Context) {
	username, ok := requireUsername(c)
	if !ok {
		return
	}
	var fields map[string]string
	if err := c.ShouldBindJSON(&fields); err != nil {
		RespondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	dt := domain.DeliveryType(c.Param("type"))
	parcel, err := h.parcelService.Create(c.Request.Context(), username, dt, fields)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondCreated(c, parcel)
}

// Get handles GET /api/v1/parcel/:name
func (h *ParcelHandler) Get(c *gin.Context) {
	parcel, err := h.parcelService.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, parcel)
}

// Chain handles GET /api/v1/parcel/:name/chain
func (h *ParcelHandler) Chain(c *gin.Context) {
	chain, err := h.parcelService.Chain(c.Request.Context(), c.Param("name"))
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, chain)
}

// Search handles GET /api/v1/parcels
func (h *ParcelHandler) Search(c *gin.Context) {
	filters := map[string]string{}
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			filters[key] = values[0]
		}
	}
	parcels, err := h.parcelService.Search(c.Request.Context(), filters)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, parcels)
}

// Overview handles GET /api/v1/overview
func (h *ParcelHandler) Overview(c *gin.Context) {
	groups, err := h.parcelService.Overview(c.Request.Context())
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, groups)
}

// ExportOverview handles GET /api/v1/overview/export
func (h *ParcelHandler) ExportOverview(c *gin.Context) {
	groups, err := h.parcelService.Overview(c.Request.Context())
	if err != nil {
		HandleError(c, err)
		return
	}
	w, err := xlsxexport.NewWriter()
	if err != nil {
		HandleError(c, err)
		return
	}
	if err := w.WriteOverview(groups); err != nil {
		HandleError(c, err)
		return
	}

	filename := xlsxexport.BuildFilename("gioland_overview")
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := w.WriteTo(c.Writer); err != nil {
		// headers are already out; just log through gin's error list
		_ = c.Error(err)
	}
}

// FinalizeInput is the DTO for finalize requests.
type FinalizeInput struct {
	Reject bool `json:"reject"`
}

// Finalize handles POST /api/v1/parcel/:name/finalize
func (h *ParcelHandler) Finalize(c *gin.Context) {
	username, ok := requireUsername(c)
	if !ok {
		return
	}
	var input FinalizeInput
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			RespondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
	}

	next, err := h.parcelService.Finalize(c.Request.Context(), username, c.Param("name"), input.Reject)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, next)
}

// Merge handles POST /api/v1/parcel/:name/merge. The service gathers
// every matching partial sibling itself; the route names only the
// triggering parcel.
func (h *ParcelHandler) Merge(c *gin.Context) {
	username, ok := requireUsername(c)
	if !ok {
		return
	}
	merged, err := h.parcelService.Merge(c.Request.Context(), username, c.Param("name"))
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, merged)
}

// CommentInput is the DTO for comment requests.
type CommentInput struct {
	Comment string `json:"comment" binding:"required"`
}

// Comment handles POST /api/v1/parcel/:name/comment
func (h *ParcelHandler) Comment(c *gin.Context) {
	username, ok := requireUsername(c)
	if !ok {
		return
	}
	var input CommentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	if err := h.parcelService.Comment(c.Request.Context(), username, c.Param("name"), input.Comment); err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, gin.H{"message": "comment added"})
}

// Delete handles DELETE /api/v1/parcel/:name
func (h *ParcelHandler) Delete(c *gin.Context) {
	username, ok := requireUsername(c)
	if !ok {
		return
	}
	if err := h.parcelService.Delete(c.Request.Context(), username, c.Param("name")); err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, gin.H{"message": "parcel deleted"})
}
