package gateway

import (
	"crypto/subtle"
	"net/http"

	"outreach-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// WebhookHandler accepts gateway callbacks, verifies the shared token, and
// hands the decoded event to the inbound pipeline.
//
// No business logic here.
type WebhookHandler struct {
	Service *InboundService

	// Token, when non-empty, must match the "token" query param.
	Token string
}

func (h WebhookHandler) HandleEvent(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Service == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "inbound service not configured"})
		return
	}
	if h.Token != "" {
		got := c.Query("token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.Token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bad webhook token"})
			return
		}
	}

	var ev Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		log.Warn("gateway webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if ev.Type == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing event type"})
		return
	}

	if err := h.Service.HandleEvent(c.Request.Context(), ev); err != nil {
		log.Warn("gateway event rejected", "event", string(ev.Type), "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "event rejected"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
