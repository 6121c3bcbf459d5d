package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"support-chat/internal/models"
	"support-chat/internal/repositories"
)

// MemoryStore is an in-memory stand-in for the Postgres repositories. It keeps the
// same guarantees the schema gives: one open room per customer and compare-and-set
// agent assignment.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[string]models.User
	rooms    map[string]models.Room
	messages []models.Message
	seq      int64

	// LookupDelay is slept between the open-room lookup and the insert,
	// widening the window concurrent joins can race in.
	LookupDelay time.Duration
	// CreateMessageErr and TouchErr force failures of the matching calls.
	CreateMessageErr error
	TouchErr         error
}

var (
	_ repositories.RoomRepository    = (*MemoryStore)(nil)
	_ repositories.MessageRepository = (*MemoryStore)(nil)
	_ repositories.UserRepository    = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]models.User),
		rooms: make(map[string]models.Room),
	}
}

func (s *MemoryStore) PutUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *MemoryStore) PutRoom(r models.Room) models.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = models.RoomOpen
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.LastActivityAt.IsZero() {
		r.LastActivityAt = r.CreatedAt
	}
	s.rooms[r.ID] = r
	return r
}

// PutMessage appends a message as if it had been sent earlier.
func (s *MemoryStore) PutMessage(msg models.NewMessage) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(msg)
}

func (s *MemoryStore) RoomsForCustomer(customerID string) []models.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Room
	for _, r := range s.rooms {
		if r.CustomerID == customerID {
			out = append(out, r)
		}
	}
	return out
}

func (s *MemoryStore) MessagesInRoom(roomID string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.messages {
		if m.RoomID == roomID {
			out = append(out, m)
		}
	}
	return out
}

func (s *MemoryStore) GetRoom(_ context.Context, roomID string) (models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return models.Room{}, repositories.ErrRoomNotFound
	}
	return room, nil
}

func (s *MemoryStore) GetOrCreateOpenRoom(_ context.Context, customerID string) (models.Room, bool, error) {
	if room, ok := s.openRoom(customerID); ok {
		return room, false, nil
	}

	if s.LookupDelay > 0 {
		time.Sleep(s.LookupDelay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rooms {
		if r.CustomerID == customerID && r.Status == models.RoomOpen {
			return r, false, nil
		}
	}
	now := time.Now().UTC()
	room := models.Room{
		ID:             uuid.NewString(),
		CustomerID:     customerID,
		Status:         models.RoomOpen,
		LastActivityAt: now,
		CreatedAt:      now,
	}
	s.rooms[room.ID] = room
	return room, true, nil
}

func (s *MemoryStore) openRoom(customerID string) (models.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rooms {
		if r.CustomerID == customerID && r.Status == models.RoomOpen {
			return r, true
		}
	}
	return models.Room{}, false
}

func (s *MemoryStore) AssignAgent(_ context.Context, roomID string, agentID string) (models.Room, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return models.Room{}, false, repositories.ErrRoomNotFound
	}
	if room.Assigned() {
		return room, false, nil
	}
	id := agentID
	room.AgentID = &id
	s.rooms[roomID] = room
	return room, true, nil
}

func (s *MemoryStore) TouchActivity(_ context.Context, roomID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.TouchErr != nil {
		return s.TouchErr
	}
	room, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	if at.After(room.LastActivityAt) {
		room.LastActivityAt = at
		s.rooms[roomID] = room
	}
	return nil
}

func (s *MemoryStore) ListOpenRooms(_ context.Context) ([]models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := []models.Room{}
	for _, r := range s.rooms {
		if r.Status == models.RoomOpen {
			rooms = append(rooms, r)
		}
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].LastActivityAt.After(rooms[j].LastActivityAt)
	})
	return rooms, nil
}

func (s *MemoryStore) CreateMessage(_ context.Context, msg models.NewMessage) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateMessageErr != nil {
		return models.Message{}, s.CreateMessageErr
	}
	return s.appendLocked(msg), nil
}

func (s *MemoryStore) appendLocked(msg models.NewMessage) models.Message {
	s.seq++
	attachments := msg.Attachments
	if attachments == nil {
		attachments = models.Attachments{}
	}
	out := models.Message{
		ID:          uuid.NewString(),
		Seq:         s.seq,
		RoomID:      msg.RoomID,
		SenderID:    msg.SenderID,
		SenderRole:  msg.SenderRole,
		Content:     msg.Content,
		Attachments: attachments,
		Status:      models.MessageSent,
		CreatedAt:   time.Now().UTC(),
	}
	s.messages = append(s.messages, out)
	return out
}

func (s *MemoryStore) RecentMessages(_ context.Context, roomID string, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := []models.Message{}
	for i := len(s.messages) - 1; i >= 0 && len(msgs) < limit; i-- {
		if s.messages[i].RoomID == roomID {
			msgs = append(msgs, s.messages[i])
		}
	}
	return msgs, nil
}

func (s *MemoryStore) MarkDelivered(_ context.Context, messageID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == messageID && s.messages[i].Status == models.MessageSent {
			t := at
			s.messages[i].Status = models.MessageDelivered
			s.messages[i].DeliveredAt = &t
		}
	}
	return nil
}

func (s *MemoryStore) MarkRead(_ context.Context, roomID string, readerID string, messageIDs []string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[string]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		wanted[id] = struct{}{}
	}

	var n int64
	for i := range s.messages {
		m := &s.messages[i]
		if _, ok := wanted[m.ID]; !ok {
			continue
		}
		if m.RoomID != roomID || m.SenderID == readerID || m.Status == models.MessageRead {
			continue
		}
		t := at
		m.Status = models.MessageRead
		m.ReadAt = &t
		if m.DeliveredAt == nil {
			m.DeliveredAt = &t
		}
		n++
	}
	return n, nil
}

func (s *MemoryStore) FindByID(_ context.Context, userID string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return models.User{}, repositories.ErrUserNotFound
	}
	return u, nil
}

func (s *MemoryStore) FindByIDs(_ context.Context, userIDs []string) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := []models.User{}
	for _, id := range userIDs {
		if u, ok := s.users[id]; ok {
			users = append(users, u)
		}
	}
	return users, nil
}

func (s *MemoryStore) Summaries(ctx context.Context, userIDs []string) ([]models.UserSummary, error) {
	users, _ := s.FindByIDs(ctx, userIDs)
	out := make([]models.UserSummary, 0, len(users))
	for _, u := range users {
		out = append(out, u.Summary())
	}
	return out, nil
}
