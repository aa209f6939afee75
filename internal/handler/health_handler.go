package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gioland/internal/warehouse"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	wh *warehouse.Connector
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(wh *warehouse.Connector) *HealthHandler {
	return &HealthHandler{wh: wh}
}

// Liveness handles GET /healthz
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness handles GET /readyz
func (h *HealthHandler) Readiness(c *gin.Context) {
	if err := h.wh.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "warehouse not reachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
