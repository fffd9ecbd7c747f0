package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/metricboard/notifier/internal/auth"
	"github.com/metricboard/notifier/internal/sender"
)

// StreamHandler pushes new notifications to the connected user over a websocket.
type StreamHandler struct {
	Hub *sender.Hub
}

// Stream takes the user from the token subject, or from ?user_id= when auth is off.
func (h *StreamHandler) Stream(c *gin.Context) {
	userID := c.GetString(auth.KeyUserID)
	if userID == "" {
		userID = c.Query("user_id")
	}
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	if err := h.Hub.Serve(c.Writer, c.Request, userID); err != nil {
		_ = c.Error(err)
	}
}
