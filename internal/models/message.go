package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// MessageStatus tracks delivery progress. It only moves forward.
type MessageStatus string

const (
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
)

// AttachmentImage is the only attachment type accepted on the channel.
const AttachmentImage = "image"

// Attachment references externally hosted media.
type Attachment struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Attachments is stored as a JSONB column.
type Attachments []Attachment

// Value implements driver.Valuer.
func (a Attachments) Value() (driver.Value, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner.
func (a *Attachments) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*a = Attachments{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("attachments: unsupported source type %T", src)
	}

	var out Attachments
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("attachments: %w", err)
	}
	if out == nil {
		out = Attachments{}
	}
	*a = out
	return nil
}

// Message is a persisted chat message.
type Message struct {
	ID          string        `db:"id" json:"id"`
	Seq         int64         `db:"seq" json:"-"`
	RoomID      string        `db:"room_id" json:"roomId"`
	SenderID    string        `db:"sender_id" json:"senderId"`
	SenderRole  Role          `db:"sender_role" json:"senderRole"`
	Content     string        `db:"content" json:"content"`
	Attachments Attachments   `db:"attachments" json:"attachments"`
	Status      MessageStatus `db:"status" json:"status"`
	CreatedAt   time.Time     `db:"created_at" json:"createdAt"`
	DeliveredAt *time.Time    `db:"delivered_at" json:"deliveredAt,omitempty"`
	ReadAt      *time.Time    `db:"read_at" json:"readAt,omitempty"`
}

// NewMessage carries the fields a sender controls.
type NewMessage struct {
	RoomID      string
	SenderID    string
	SenderRole  Role
	Content     string
	Attachments Attachments
}
