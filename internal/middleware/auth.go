package middleware

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"support-chat/internal/chat"
)

const participantKey = "participant"

// Authenticator resolves a bearer token to a chat participant.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (chat.Participant, error)
}

// AuthMiddleware validates the Authorization header and stores the participant on the context.
func AuthMiddleware(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": chat.MsgAuthRequired})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		participant, err := auth.Authenticate(c.Request.Context(), parts[1])
		if err != nil {
			if chat.KindOf(err) != chat.KindUnauthenticated {
				log.Printf("authenticate failed path=%s: %v", c.FullPath(), err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": chat.ClientMessage(err)})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": chat.ClientMessage(err)})
			return
		}

		c.Set(participantKey, participant)
		c.Set("userID", participant.UserID())
		c.Next()
	}
}

// Participant returns the participant set by AuthMiddleware.
func Participant(c *gin.Context) (chat.Participant, bool) {
	val, ok := c.Get(participantKey)
	if !ok {
		return nil, false
	}
	p, ok := val.(chat.Participant)
	return p, ok
}
