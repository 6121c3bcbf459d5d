package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"support-chat/internal/models"
)

var ErrRoomNotFound = errors.New("room not found")

const roomColumns = `id, customer_id, agent_id, status, last_activity_at, created_at`

// RoomRepository abstracts support room persistence.
type RoomRepository interface {
	GetRoom(ctx context.Context, roomID string) (models.Room, error)
	GetOrCreateOpenRoom(ctx context.Context, customerID string) (models.Room, bool, error)
	AssignAgent(ctx context.Context, roomID string, agentID string) (models.Room, bool, error)
	TouchActivity(ctx context.Context, roomID string, at time.Time) error
	ListOpenRooms(ctx context.Context) ([]models.Room, error)
}

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

// GetRoom fetches a room by id.
func (r *RoomRepo) GetRoom(ctx context.Context, roomID string) (models.Room, error) {
	if _, err := uuid.Parse(roomID); err != nil {
		return models.Room{}, ErrRoomNotFound
	}

	var room models.Room
	err := r.db.GetContext(ctx, &room, `SELECT `+roomColumns+` FROM support_rooms WHERE id=$1`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	return room, err
}

// GetOrCreateOpenRoom returns the customer's open room, creating it when none exists.
// The boolean is true when this call created the room. Concurrent callers that lose
// the insert race on the partial unique index re-read the winner's row.
func (r *RoomRepo) GetOrCreateOpenRoom(ctx context.Context, customerID string) (models.Room, bool, error) {
	room, err := r.openRoomForCustomer(ctx, customerID)
	if err == nil {
		return room, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, false, err
	}

	now := time.Now().UTC()
	err = r.db.GetContext(ctx, &room, `INSERT INTO support_rooms (id, customer_id, status, last_activity_at, created_at)
        VALUES ($1, $2, 'open', $3, $3)
        ON CONFLICT (customer_id) WHERE status = 'open' DO NOTHING
        RETURNING `+roomColumns, uuid.NewString(), customerID, now)
	if err == nil {
		return room, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, false, err
	}

	room, err = r.openRoomForCustomer(ctx, customerID)
	return room, false, err
}

func (r *RoomRepo) openRoomForCustomer(ctx context.Context, customerID string) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room, `SELECT `+roomColumns+` FROM support_rooms WHERE customer_id=$1 AND status='open'`, customerID)
	return room, err
}

// AssignAgent sets the room's agent only when it has none. It returns the room as
// stored afterwards and whether this call performed the assignment.
func (r *RoomRepo) AssignAgent(ctx context.Context, roomID string, agentID string) (models.Room, bool, error) {
	if _, err := uuid.Parse(roomID); err != nil {
		return models.Room{}, false, ErrRoomNotFound
	}

	var room models.Room
	err := r.db.GetContext(ctx, &room, `UPDATE support_rooms SET agent_id=$2
        WHERE id=$1 AND agent_id IS NULL
        RETURNING `+roomColumns, roomID, agentID)
	if err == nil {
		return room, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, false, err
	}

	room, err = r.GetRoom(ctx, roomID)
	return room, false, err
}

// TouchActivity moves the room's last-activity marker forward.
func (r *RoomRepo) TouchActivity(ctx context.Context, roomID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE support_rooms SET last_activity_at = GREATEST(last_activity_at, $2) WHERE id=$1`, roomID, at)
	return err
}

// ListOpenRooms returns open rooms, most recently active first.
func (r *RoomRepo) ListOpenRooms(ctx context.Context) ([]models.Room, error) {
	rooms := []models.Room{}
	err := r.db.SelectContext(ctx, &rooms, `SELECT `+roomColumns+` FROM support_rooms
        WHERE status='open'
        ORDER BY last_activity_at DESC`)
	return rooms, err
}
