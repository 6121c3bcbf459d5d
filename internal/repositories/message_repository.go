package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"support-chat/internal/models"
)

const messageColumns = `id, seq, room_id, sender_id, sender_role, content, attachments, status, created_at, delivered_at, read_at`

// MessageRepository defines interactions for support messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg models.NewMessage) (models.Message, error)
	RecentMessages(ctx context.Context, roomID string, limit int) ([]models.Message, error)
	MarkDelivered(ctx context.Context, messageID string, at time.Time) error
	MarkRead(ctx context.Context, roomID string, readerID string, messageIDs []string, at time.Time) (int64, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message with status sent.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.NewMessage) (models.Message, error) {
	attachments := msg.Attachments
	if attachments == nil {
		attachments = models.Attachments{}
	}

	var out models.Message
	err := r.db.GetContext(ctx, &out, `INSERT INTO support_messages (id, room_id, sender_id, sender_role, content, attachments, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, 'sent', $7)
        RETURNING `+messageColumns,
		uuid.NewString(), msg.RoomID, msg.SenderID, msg.SenderRole, msg.Content, attachments, time.Now().UTC())
	return out, err
}

// RecentMessages returns up to limit messages of a room, newest first.
func (r *MessageRepo) RecentMessages(ctx context.Context, roomID string, limit int) ([]models.Message, error) {
	msgs := []models.Message{}
	if _, err := uuid.Parse(roomID); err != nil {
		return msgs, nil
	}
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM support_messages
        WHERE room_id=$1
        ORDER BY seq DESC
        LIMIT $2`, roomID, limit)
	return msgs, err
}

// MarkDelivered advances a message from sent to delivered.
func (r *MessageRepo) MarkDelivered(ctx context.Context, messageID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE support_messages SET status='delivered', delivered_at=$2
        WHERE id=$1 AND status='sent'`, messageID, at)
	return err
}

// MarkRead marks the given messages of a room as read, skipping the reader's own messages.
func (r *MessageRepo) MarkRead(ctx context.Context, roomID string, readerID string, messageIDs []string, at time.Time) (int64, error) {
	ids := make([]string, 0, len(messageIDs))
	for _, id := range messageIDs {
		if _, err := uuid.Parse(id); err == nil {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if _, err := uuid.Parse(roomID); err != nil {
		return 0, nil
	}

	res, err := r.db.ExecContext(ctx, `UPDATE support_messages
        SET status='read', read_at=$4, delivered_at=COALESCE(delivered_at, $4)
        WHERE room_id=$1 AND sender_id<>$2 AND id = ANY($3::uuid[]) AND status<>'read'`,
		roomID, readerID, pq.Array(ids), at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
