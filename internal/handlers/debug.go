package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"consult-chat/internal/middleware"
	"consult-chat/internal/telemetry"
)

// FeedStats reports live subscription counts per conversation.
type FeedStats interface {
	Stats() map[string]int
}

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router gin.IRoutes, emitter *telemetry.AuditEmitter, feed FeedStats, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), telemetry.AuditEvent{
			Type:   telemetry.EventAuditTest,
			Text:   "audit test",
			UserID: middleware.UserID(c),
		})
		c.JSON(http.StatusOK, gin.H{"status": "ok", "request_id": requestIDFromContext(c)})
	})

	router.GET("/debug/feed", func(c *gin.Context) {
		if feed == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live feed not configured"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"subscriptions": feed.Stats()})
	})
}
