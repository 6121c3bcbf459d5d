package ws

import (
	"encoding/json"

	"support-chat/internal/models"
)

// Events exchanged on the support channel.
const (
	EventJoinChat    = "join-chat"
	EventSendMessage = "send-message"
	EventMessageRead = "message-read"
	EventGetRooms    = "get-rooms"

	EventAck         = "ack"
	EventNewMessage  = "new-message"
	EventChatHistory = "chat-history"
)

// Frame is a client request. ID correlates the ack; frames without one get no ack.
type Frame struct {
	ID    *int64          `json:"id,omitempty"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ServerFrame is anything written to the client.
type ServerFrame struct {
	ID    *int64 `json:"id,omitempty"`
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type JoinChatRequest struct {
	RoomID string `json:"roomId"`
}

type SendMessageRequest struct {
	RoomID      string              `json:"roomId"`
	Content     string              `json:"content"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
}

type MessageReadRequest struct {
	RoomID     string   `json:"roomId"`
	MessageIDs []string `json:"messageIds"`
}

type ChatHistory struct {
	RoomID   string           `json:"roomId"`
	Messages []models.Message `json:"messages"`
}

type JoinAck struct {
	Success bool   `json:"success"`
	RoomID  string `json:"roomId"`
}

type SendAck struct {
	Success bool           `json:"success"`
	Message models.Message `json:"message"`
}

type RoomsAck struct {
	Success bool                 `json:"success"`
	Rooms   []models.RoomSummary `json:"rooms"`
}

type ErrorAck struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func encodeFrame(id *int64, event string, data any) ([]byte, error) {
	return json.Marshal(ServerFrame{ID: id, Event: event, Data: data})
}
