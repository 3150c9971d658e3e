package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"convo-service/internal/repositories"
)

// DeviceHandler manages push notification token registration.
type DeviceHandler struct {
	tokens repositories.TokenRepository
}

// NewDeviceHandler builds a DeviceHandler.
func NewDeviceHandler(tokens repositories.TokenRepository) *DeviceHandler {
	return &DeviceHandler{tokens: tokens}
}

// RegisterToken stores the caller's push token. Re-registering an existing
// token reactivates it; old devices beyond the per-user cap are deactivated.
func (h *DeviceHandler) RegisterToken(c *gin.Context) {
	var req struct {
		Token    string `json:"token" binding:"required"`
		Platform string `json:"platform"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}
	if !strings.HasPrefix(req.Token, "ExponentPushToken[") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid push token format"})
		return
	}
	if req.Platform == "" {
		req.Platform = "unknown"
	}

	userID := c.GetInt("userID")
	if err := h.tokens.Register(c.Request.Context(), userID, req.Token, req.Platform); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not register token"})
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveToken deactivates one of the caller's push tokens (logout path).
func (h *DeviceHandler) RemoveToken(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}

	userID := c.GetInt("userID")
	if err := h.tokens.Deactivate(c.Request.Context(), userID, req.Token); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not remove token"})
		return
	}
	c.Status(http.StatusNoContent)
}
