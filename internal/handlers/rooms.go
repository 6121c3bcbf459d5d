package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"support-chat/internal/chat"
	"support-chat/internal/middleware"
	"support-chat/internal/models"
	"support-chat/internal/registry"
)

// RoomHandler exposes the support rooms over REST for dashboards and reconnecting clients.
type RoomHandler struct {
	svc      *chat.Service
	registry *registry.Registry
}

// NewRoomHandler builds a RoomHandler.
func NewRoomHandler(svc *chat.Service, reg *registry.Registry) *RoomHandler {
	return &RoomHandler{svc: svc, registry: reg}
}

// ListRooms returns the open rooms to agents.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	participant, ok := middleware.Participant(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": chat.MsgAuthRequired})
		return
	}

	rooms, err := h.svc.ListRooms(c.Request.Context(), participant)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// GetRoomMessages returns the latest messages of a room the caller may access.
func (h *RoomHandler) GetRoomMessages(c *gin.Context) {
	participant, ok := middleware.Participant(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": chat.MsgAuthRequired})
		return
	}

	limit := chat.HistoryLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	messages, err := h.svc.History(c.Request.Context(), participant, c.Param("room_id"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roomId": c.Param("room_id"), "messages": messages})
}

// Presence reports whether a user has a live chat connection. Customers may only
// ask about themselves.
func (h *RoomHandler) Presence(c *gin.Context) {
	participant, ok := middleware.Participant(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": chat.MsgAuthRequired})
		return
	}

	userID := c.Param("user_id")
	if participant.Role() != models.RoleAgent && participant.UserID() != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": chat.MsgAccessDenied})
		return
	}

	connections := h.registry.Connections(userID)
	c.JSON(http.StatusOK, gin.H{
		"userId":      userID,
		"online":      len(connections) > 0,
		"connections": len(connections),
	})
}

func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch chat.KindOf(err) {
	case chat.KindValidation:
		status = http.StatusBadRequest
	case chat.KindForbidden:
		status = http.StatusForbidden
	case chat.KindNotFound:
		status = http.StatusNotFound
	case chat.KindUnauthenticated:
		status = http.StatusUnauthorized
	default:
		log.Printf("request failed path=%s: %v", c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": chat.ClientMessage(err)})
}
