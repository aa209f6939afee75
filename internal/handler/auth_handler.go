package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gioland/internal/auth"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService *auth.Service
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *auth.Service) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// LoginInput is the DTO for login requests.
type LoginInput struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var input LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	token, err := h.authService.Login(input.Username, input.Password)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, gin.H{
		"token":        token,
		"username":     input.Username,
		"display_name": h.authService.DisplayName(input.Username),
	})
}

// Me handles GET /api/v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	username, ok := requireUsername(c)
	if !ok {
		return
	}
	RespondOK(c, gin.H{
		"username":     username,
		"display_name": h.authService.DisplayName(username),
	})
}
