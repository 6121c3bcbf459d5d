package chat

import (
	"context"
	"strings"

	"support-chat/internal/models"
	"support-chat/internal/telemetry"
)

// Participant is an authenticated user on the chat channel. Only customer and
// agent implement it; role-specific behaviour lives in their methods.
type Participant interface {
	UserID() string
	Role() models.Role
	DisplayName() string

	resolveRoom(ctx context.Context, s *Service, roomID string) (models.Room, error)
	canAccess(room models.Room) bool
	canListRooms() bool
	claimsOnSend() bool
}

// ParticipantFor wraps an active user in the participant matching its role.
func ParticipantFor(user models.User) (Participant, error) {
	switch user.Role {
	case models.RoleCustomer:
		return customer{user: user}, nil
	case models.RoleAgent:
		return agent{user: user}, nil
	default:
		return nil, newError(KindUnauthenticated, MsgInvalidRole)
	}
}

type customer struct {
	user models.User
}

func (c customer) UserID() string      { return c.user.ID }
func (c customer) Role() models.Role   { return models.RoleCustomer }
func (c customer) DisplayName() string { return c.user.DisplayName }

// A customer always lands in their own open room; any requested id is ignored.
func (c customer) resolveRoom(ctx context.Context, s *Service, _ string) (models.Room, error) {
	room, created, err := s.rooms.GetOrCreateOpenRoom(ctx, c.user.ID)
	if err != nil {
		return models.Room{}, internal("resolve customer room", err)
	}
	if created {
		s.emitAudit(ctx, "INFO", telemetry.ActionRoomCreated, room.ID, c.user.ID, "support room opened")
	}
	return room, nil
}

func (c customer) canAccess(room models.Room) bool {
	return room.CustomerID == c.user.ID
}

func (customer) canListRooms() bool { return false }
func (customer) claimsOnSend() bool { return false }

type agent struct {
	user models.User
}

func (a agent) UserID() string      { return a.user.ID }
func (a agent) Role() models.Role   { return models.RoleAgent }
func (a agent) DisplayName() string { return a.user.DisplayName }

func (a agent) resolveRoom(ctx context.Context, s *Service, roomID string) (models.Room, error) {
	if strings.TrimSpace(roomID) == "" {
		return models.Room{}, newError(KindValidation, MsgRoomIDRequired)
	}
	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return models.Room{}, err
	}
	if room.Assigned() {
		return room, nil
	}
	room, _, err = s.claim(ctx, room, a.user.ID)
	return room, err
}

// Agents may answer any unassigned room, and afterwards only their own.
func (a agent) canAccess(room models.Room) bool {
	return !room.Assigned() || room.AssignedTo(a.user.ID)
}

func (agent) canListRooms() bool { return true }
func (agent) claimsOnSend() bool { return true }
