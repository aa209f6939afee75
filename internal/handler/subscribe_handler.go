package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gioland/internal/notification"
)

// SubscribeHandler manages notification channel subscriptions.
type SubscribeHandler struct {
	notifier *notification.Notifier
}

// NewSubscribeHandler creates a new SubscribeHandler.
func NewSubscribeHandler(notifier *notification.Notifier) *SubscribeHandler {
	return &SubscribeHandler{notifier: notifier}
}

// SubscribeInput is the DTO for subscription requests. All filter
// fields are optional vocabulary codes.
type SubscribeInput struct {
	Country    string `json:"country"`
	Extent     string `json:"extent"`
	Resolution string `json:"resolution"`
	Product    string `json:"product"`
}

// Subscribe handles POST /api/v1/subscribe
func (h *SubscribeHandler) Subscribe(c *gin.Context) {
	username, ok := requireUsername(c)
	if !ok {
		return
	}
	var input SubscribeInput
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			RespondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
	}

	filters := map[string]string{
		"country":    input.Country,
		"extent":     input.Extent,
		"resolution": input.Resolution,
		"product":    input.Product,
	}
	if err := h.notifier.Subscribe(c.Request.Context(), username, filters); err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, gin.H{"message": "subscription created"})
}
