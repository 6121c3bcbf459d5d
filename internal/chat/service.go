// Package chat implements the support conversation rules: who may join which room,
// how messages are validated, persisted and fanned out, and read receipts.
package chat

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"support-chat/internal/identity"
	"support-chat/internal/models"
	"support-chat/internal/observability"
	"support-chat/internal/repositories"
	"support-chat/internal/telemetry"
)

const (
	HistoryLimit     = 50
	MaxContentLength = 2000
	MaxAttachments   = 5
	MaxReadBatch     = 100
)

type Verifier interface {
	Verify(ctx context.Context, token string) (identity.Identity, error)
}

// UserDirectory resolves platform users. FindByID gates access and must reflect
// the current account state; Summaries only feeds display names.
type UserDirectory interface {
	FindByID(ctx context.Context, userID string) (models.User, error)
	Summaries(ctx context.Context, userIDs []string) ([]models.UserSummary, error)
}

// Broadcaster delivers a persisted message to every connection subscribed to the
// room and returns the user ids it was queued for.
type Broadcaster interface {
	BroadcastMessage(roomID string, msg models.Message) []string
}

// JoinFunc subscribes the joining connection and hands it the room history. It is
// called with the room locked, so no message is broadcast to the room meanwhile.
type JoinFunc func(room models.Room, history []models.Message)

// SendInput is a send-message request.
type SendInput struct {
	RoomID      string
	Content     string
	Attachments []models.Attachment
}

type Service struct {
	rooms       repositories.RoomRepository
	messages    repositories.MessageRepository
	users       UserDirectory
	verifier    Verifier
	broadcaster Broadcaster
	audit       *telemetry.AuditEmitter
	locks       *roomLocks
	now         func() time.Time
}

func NewService(rooms repositories.RoomRepository, messages repositories.MessageRepository, users UserDirectory, verifier Verifier, broadcaster Broadcaster, audit *telemetry.AuditEmitter) *Service {
	return &Service{
		rooms:       rooms,
		messages:    messages,
		users:       users,
		verifier:    verifier,
		broadcaster: broadcaster,
		audit:       audit,
		locks:       newRoomLocks(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Authenticate turns a bearer token into a participant. Every failure is
// KindUnauthenticated except directory outages.
func (s *Service) Authenticate(ctx context.Context, token string) (Participant, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, newError(KindUnauthenticated, MsgAuthRequired)
	}

	ident, err := s.verifier.Verify(ctx, token)
	if err != nil {
		return nil, &Error{Kind: KindUnauthenticated, Message: MsgInvalidToken, Err: err}
	}

	user, err := s.users.FindByID(ctx, ident.UserID)
	if errors.Is(err, repositories.ErrUserNotFound) {
		return nil, &Error{Kind: KindUnauthenticated, Message: MsgUserUnavailable, Err: err}
	}
	if err != nil {
		return nil, internal("find user", err)
	}
	if !user.IsActive {
		return nil, newError(KindUnauthenticated, MsgUserUnavailable)
	}

	return ParticipantFor(user)
}

// JoinChat resolves the participant's room and, holding the room lock, loads the
// latest history in chronological order and passes both to onJoin.
func (s *Service) JoinChat(ctx context.Context, p Participant, roomID string, onJoin JoinFunc) (models.Room, error) {
	room, err := p.resolveRoom(ctx, s, roomID)
	if err != nil {
		return models.Room{}, err
	}

	unlock := s.locks.lock(room.ID)
	defer unlock()

	history, err := s.recentHistory(ctx, room.ID, HistoryLimit)
	if err != nil {
		return models.Room{}, err
	}
	if onJoin != nil {
		onJoin(room, history)
	}
	return room, nil
}

// SendMessage validates, persists and broadcasts a message. The returned message is
// the same payload subscribers receive.
func (s *Service) SendMessage(ctx context.Context, p Participant, in SendInput) (models.Message, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return models.Message{}, newError(KindValidation, MsgContentRequired)
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return models.Message{}, newError(KindValidation, MsgContentTooLong)
	}

	room, err := s.getRoom(ctx, in.RoomID)
	if err != nil {
		return models.Message{}, err
	}
	if !p.canAccess(room) {
		return models.Message{}, s.denied(ctx, p, room.ID)
	}
	attachments := filterAttachments(in.Attachments)

	msg, err := s.persistAndBroadcast(ctx, p, room, models.NewMessage{
		RoomID:      room.ID,
		SenderID:    p.UserID(),
		SenderRole:  p.Role(),
		Content:     content,
		Attachments: attachments,
	})
	if err != nil {
		return models.Message{}, err
	}

	if err := observability.PublishEvent(ctx, observability.RoutingKeyMessageCreated, observability.EventEnvelope{
		EventType: "chat_events",
		EventName: "message_created",
		Payload:   msg,
	}, observability.HeadersFromContext(ctx)); err != nil {
		log.Printf("publish message_created failed message_id=%s: %v", msg.ID, err)
	}
	return msg, nil
}

func (s *Service) persistAndBroadcast(ctx context.Context, p Participant, room models.Room, in models.NewMessage) (models.Message, error) {
	unlock := s.locks.lock(room.ID)
	defer unlock()

	if p.claimsOnSend() && !room.Assigned() {
		claimed, _, err := s.claim(ctx, room, p.UserID())
		if err != nil {
			return models.Message{}, err
		}
		if !p.canAccess(claimed) {
			return models.Message{}, s.denied(ctx, p, room.ID)
		}
	}

	msg, err := s.messages.CreateMessage(ctx, in)
	if err != nil {
		return models.Message{}, internal("create message", err)
	}
	if err := s.rooms.TouchActivity(ctx, room.ID, msg.CreatedAt); err != nil {
		log.Printf("touch room activity failed room_id=%s message_id=%s: %v", room.ID, msg.ID, err)
	}

	if s.broadcaster == nil {
		return msg, nil
	}
	for _, userID := range s.broadcaster.BroadcastMessage(room.ID, msg) {
		if userID == msg.SenderID {
			continue
		}
		if err := s.messages.MarkDelivered(ctx, msg.ID, s.now()); err != nil {
			log.Printf("mark delivered failed message_id=%s: %v", msg.ID, err)
		}
		break
	}
	return msg, nil
}

// MarkRead marks the given messages of the room read, skipping the caller's own.
func (s *Service) MarkRead(ctx context.Context, p Participant, roomID string, messageIDs []string) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}
	if len(messageIDs) > MaxReadBatch {
		return 0, newError(KindValidation, MsgTooManyMessages)
	}

	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return 0, err
	}
	if !p.canAccess(room) {
		return 0, s.denied(ctx, p, room.ID)
	}

	n, err := s.messages.MarkRead(ctx, room.ID, p.UserID(), messageIDs, s.now())
	if err != nil {
		return 0, internal("mark read", err)
	}
	return n, nil
}

// ListRooms returns every open room, most recently active first, with the display
// identities of its customer and agent.
func (s *Service) ListRooms(ctx context.Context, p Participant) ([]models.RoomSummary, error) {
	if !p.canListRooms() {
		return nil, s.denied(ctx, p, "")
	}

	rooms, err := s.rooms.ListOpenRooms(ctx)
	if err != nil {
		return nil, internal("list open rooms", err)
	}

	seen := make(map[string]struct{})
	var ids []string
	for _, room := range rooms {
		for _, id := range participantIDs(room) {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}

	byID := make(map[string]models.UserSummary, len(ids))
	if len(ids) > 0 {
		users, err := s.users.Summaries(ctx, ids)
		if err != nil {
			return nil, internal("resolve room participants", err)
		}
		for _, u := range users {
			byID[u.ID] = u
		}
	}

	summaries := make([]models.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summary := models.RoomSummary{Room: room, Customer: summaryOf(byID, room.CustomerID)}
		if room.Assigned() {
			agent := summaryOf(byID, *room.AgentID)
			summary.Agent = &agent
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// History returns up to limit of the room's latest messages in chronological order.
func (s *Service) History(ctx context.Context, p Participant, roomID string, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > HistoryLimit {
		limit = HistoryLimit
	}
	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !p.canAccess(room) {
		return nil, s.denied(ctx, p, room.ID)
	}
	return s.recentHistory(ctx, room.ID, limit)
}

func (s *Service) recentHistory(ctx context.Context, roomID string, limit int) ([]models.Message, error) {
	msgs, err := s.messages.RecentMessages(ctx, roomID, limit)
	if err != nil {
		return nil, internal("load history", err)
	}
	history := make([]models.Message, len(msgs))
	for i, m := range msgs {
		history[len(msgs)-1-i] = m
	}
	return history, nil
}

func (s *Service) getRoom(ctx context.Context, roomID string) (models.Room, error) {
	if strings.TrimSpace(roomID) == "" {
		return models.Room{}, newError(KindNotFound, MsgRoomNotFound)
	}
	room, err := s.rooms.GetRoom(ctx, roomID)
	if errors.Is(err, repositories.ErrRoomNotFound) {
		return models.Room{}, newError(KindNotFound, MsgRoomNotFound)
	}
	if err != nil {
		return models.Room{}, internal("get room", err)
	}
	return room, nil
}

// claim assigns agentID to the room unless another agent got there first. The
// returned room reflects the stored assignee either way.
func (s *Service) claim(ctx context.Context, room models.Room, agentID string) (models.Room, bool, error) {
	updated, assigned, err := s.rooms.AssignAgent(ctx, room.ID, agentID)
	if err != nil {
		return models.Room{}, false, internal("assign agent", err)
	}
	if assigned {
		s.emitAudit(ctx, "INFO", telemetry.ActionAgentAssigned, room.ID, agentID, "agent assigned to support room")
	}
	return updated, assigned, nil
}

func (s *Service) denied(ctx context.Context, p Participant, roomID string) error {
	s.emitAudit(ctx, "WARN", telemetry.ActionAccessDenied, roomID, p.UserID(), "support room access denied")
	return newError(KindForbidden, MsgAccessDenied)
}

func (s *Service) emitAudit(ctx context.Context, level, action, roomID, userID, text string) {
	s.audit.Emit(ctx, level, action, roomID, text, observability.RequestIDFromContext(ctx), &userID)
}

// filterAttachments keeps image attachments served over https, at most MaxAttachments.
func filterAttachments(in []models.Attachment) models.Attachments {
	out := models.Attachments{}
	for _, a := range in {
		if len(out) == MaxAttachments {
			break
		}
		if a.Type != models.AttachmentImage || !strings.HasPrefix(a.URL, "https://") {
			continue
		}
		out = append(out, a)
	}
	return out
}

func participantIDs(room models.Room) []string {
	if room.Assigned() {
		return []string{room.CustomerID, *room.AgentID}
	}
	return []string{room.CustomerID}
}

func summaryOf(users map[string]models.UserSummary, id string) models.UserSummary {
	if u, ok := users[id]; ok {
		return u
	}
	return models.UserSummary{ID: id}
}
