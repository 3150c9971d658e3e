package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func chatIDParam(c *gin.Context) (int, error) {
	return strconv.Atoi(c.Param("chat_id"))
}

func requestIDFromContext(c *gin.Context) string {
	if id := c.GetString("requestID"); id != "" {
		return id
	}
	if id := c.GetHeader("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

func userIDFromContext(c *gin.Context) *string {
	userID := c.GetInt("userID")
	if userID == 0 {
		return nil
	}
	s := strconv.Itoa(userID)
	return &s
}

func (h *ChatHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
