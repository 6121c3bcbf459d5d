package ws

import (
	"context"
	"log"
	"sync"

	"support-chat/internal/models"
	"support-chat/internal/observability"
)

// Hub tracks live clients and the room broadcast group each one is subscribed to.
// A client is in at most one room.
type Hub struct {
	rooms   map[string]map[*Client]struct{}
	clients map[*Client]string
	mu      sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms:   make(map[string]map[*Client]struct{}),
		clients: make(map[*Client]string),
	}
}

// Register tracks a connected client that has not joined a room yet.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		h.clients[c] = ""
	}
}

// Join subscribes the client to roomID, leaving its previous room.
func (h *Hub) Join(roomID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if prev := h.clients[c]; prev != "" && prev != roomID {
		h.leaveLocked(prev, c)
	}
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*Client]struct{})
	}
	h.rooms[roomID][c] = struct{}{}
	h.clients[c] = roomID
}

// Unregister drops the client and its room subscription.
func (h *Hub) Unregister(c *Client) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	roomID, ok := h.clients[c]
	if !ok {
		return ""
	}
	if roomID != "" {
		h.leaveLocked(roomID, c)
	}
	delete(h.clients, c)
	return roomID
}

func (h *Hub) leaveLocked(roomID string, c *Client) {
	if conns, ok := h.rooms[roomID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// RoomOf returns the room the client is subscribed to, or "".
func (h *Hub) RoomOf(c *Client) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[c]
}

// RoomSize returns the number of clients subscribed to roomID.
func (h *Hub) RoomSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// BroadcastMessage queues msg as a new-message event on every client of the room and
// returns the user ids it was queued for. Clients with a full queue are dropped.
func (h *Hub) BroadcastMessage(roomID string, msg models.Message) []string {
	payload, err := encodeFrame(nil, EventNewMessage, msg)
	if err != nil {
		log.Printf("ws encode new-message failed message_id=%s: %v", msg.ID, err)
		return nil
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[roomID]))
	for c := range h.rooms[roomID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	var recipients []string
	for _, c := range targets {
		switch c.enqueue(payload) {
		case queued:
			recipients = append(recipients, c.info.UserID)
		case overflowed:
			h.publishWSError(c, roomID, "send queue full")
		}
	}
	return recipients
}

// CloseAll stops every client; their read loops then clean up.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.shutdown()
	}
}

func (h *Hub) publishWSError(c *Client, roomID, reason string) {
	headers := observability.BuildHeaders(c.info.RequestID, c.info.TraceID)
	_ = observability.PublishEvent(context.Background(), observability.RoutingKeyWSEvents, c.info.event("ws_error", roomID, reason), headers)
	observability.IncWSEvent("ws_error")
}
