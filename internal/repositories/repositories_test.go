package repositories

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"support-chat/internal/db"
	"support-chat/internal/models"
)

// Runs against a disposable Postgres at TEST_DATABASE_DSN.
func testDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}
	conn, err := db.Connect(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestGetOrCreateOpenRoomIsSingleton(t *testing.T) {
	conn := testDB(t)
	repo := NewRoomRepo(conn)
	customerID := "cust-" + uuid.NewString()

	const callers = 10
	ids := make([]string, callers)
	created := make([]bool, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			room, ok, err := repo.GetOrCreateOpenRoom(context.Background(), customerID)
			assert.NoError(t, err)
			ids[i], created[i] = room.ID, ok
		}(i)
	}
	wg.Wait()

	creators := 0
	for i := range ids {
		assert.Equal(t, ids[0], ids[i])
		if created[i] {
			creators++
		}
	}
	assert.Equal(t, 1, creators)
}

func TestAssignAgentFirstWins(t *testing.T) {
	conn := testDB(t)
	repo := NewRoomRepo(conn)
	ctx := context.Background()
	room, _, err := repo.GetOrCreateOpenRoom(ctx, "cust-"+uuid.NewString())
	require.NoError(t, err)

	first, assigned, err := repo.AssignAgent(ctx, room.ID, "agent-1")
	require.NoError(t, err)
	assert.True(t, assigned)
	assert.True(t, first.AssignedTo("agent-1"))

	second, assigned, err := repo.AssignAgent(ctx, room.ID, "agent-2")
	require.NoError(t, err)
	assert.False(t, assigned)
	assert.True(t, second.AssignedTo("agent-1"))

	_, err = repo.GetRoom(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestMessagesLifecycle(t *testing.T) {
	conn := testDB(t)
	rooms := NewRoomRepo(conn)
	messages := NewMessageRepo(conn)
	ctx := context.Background()
	room, _, err := rooms.GetOrCreateOpenRoom(ctx, "cust-"+uuid.NewString())
	require.NoError(t, err)

	var sent []models.Message
	for _, content := range []string{"Message 1", "Message 2", "Message 3"} {
		msg, err := messages.CreateMessage(ctx, models.NewMessage{
			RoomID: room.ID, SenderID: room.CustomerID, SenderRole: models.RoleCustomer, Content: content,
		})
		require.NoError(t, err)
		assert.Equal(t, models.MessageSent, msg.Status)
		assert.NotNil(t, msg.Attachments)
		sent = append(sent, msg)
	}
	reply, err := messages.CreateMessage(ctx, models.NewMessage{
		RoomID: room.ID, SenderID: "agent-1", SenderRole: models.RoleAgent, Content: "Hi",
		Attachments: models.Attachments{{Type: models.AttachmentImage, URL: "https://cdn.example.com/a.png"}},
	})
	require.NoError(t, err)
	require.Len(t, reply.Attachments, 1)

	recent, err := messages.RecentMessages(ctx, room.ID, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, reply.ID, recent[0].ID)
	assert.Equal(t, sent[2].ID, recent[1].ID)

	now := time.Now().UTC()
	require.NoError(t, messages.MarkDelivered(ctx, reply.ID, now))
	n, err := messages.MarkRead(ctx, room.ID, room.CustomerID, []string{reply.ID, sent[0].ID, "junk"}, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, rooms.TouchActivity(ctx, room.ID, now.Add(time.Minute)))
	require.NoError(t, rooms.TouchActivity(ctx, room.ID, now.Add(-time.Hour)))
	stored, err := rooms.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(time.Minute), stored.LastActivityAt, time.Second)
}
