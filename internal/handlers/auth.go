package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/onyxchat/relay-backend/internal/services"
)

type AuthHandler struct {
	authService services.AuthService
}

func NewAuthHandler(authService services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type loginRequest struct {
	AgentID int64  `json:"agent_id" binding:"required"`
	Secret  string `json:"secret" binding:"required"`
}

func (ah *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", "agent_id and secret are required")
		return
	}
	token, err := ah.authService.Login(req.AgentID, req.Secret)
	if err != nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", "invalid credentials")
		return
	}
	RespondOK(c, gin.H{"token": token})
}
