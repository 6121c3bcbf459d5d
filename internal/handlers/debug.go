package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"support-chat/internal/observability"
	"support-chat/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router gin.IRoutes, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		var userID *string
		if id := c.GetString("userID"); id != "" {
			userID = &id
		}
		requestID := observability.RequestIDFromContext(c.Request.Context())
		emitter.Emit(c.Request.Context(), "INFO", "audit_test", "", "audit test", requestID, userID)
		c.JSON(http.StatusOK, gin.H{"status": "ok", "requestId": requestID})
	})
}
