package middleware

import (
	"github.com/gin-gonic/gin"

	"support-chat/internal/observability"
)

const requestIDContextKey = "request_id"

// RequestID makes sure every request carries an X-Request-Id and exposes it to
// downstream code through the request context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := observability.RequestIDFromRequest(c.Request)
		c.Set(requestIDContextKey, requestID)
		c.Header("X-Request-Id", requestID)
		c.Request = c.Request.WithContext(observability.WithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}
