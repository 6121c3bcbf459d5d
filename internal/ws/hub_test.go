package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"support-chat/internal/mocks"
	"support-chat/internal/models"
	"support-chat/internal/observability"
)

func testClient(userID string) *Client {
	return newClient(nil, nil, ConnInfo{ConnID: userID + "-conn", UserID: userID})
}

func TestHubJoinAndUnregister(t *testing.T) {
	hub := NewHub()
	c := testClient("cust-1")
	hub.Register(c)

	hub.Join("room-1", c)
	assert.Equal(t, 1, hub.RoomSize("room-1"))
	assert.Equal(t, "room-1", hub.RoomOf(c))

	hub.Join("room-2", c)
	assert.Equal(t, 0, hub.RoomSize("room-1"))
	assert.Equal(t, 1, hub.RoomSize("room-2"))

	assert.Equal(t, "room-2", hub.Unregister(c))
	assert.Equal(t, 0, hub.RoomSize("room-2"))
	assert.Empty(t, hub.rooms)
	assert.Empty(t, hub.clients)
	assert.Equal(t, "", hub.Unregister(c))
}

func TestHubBroadcastStaysInRoom(t *testing.T) {
	hub := NewHub()
	a, b, other := testClient("cust-1"), testClient("agent-1"), testClient("cust-2")
	hub.Join("room-1", a)
	hub.Join("room-1", b)
	hub.Join("room-2", other)

	recipients := hub.BroadcastMessage("room-1", models.Message{ID: "m1", RoomID: "room-1", Content: "hi"})
	assert.ElementsMatch(t, []string{"cust-1", "agent-1"}, recipients)

	require.Len(t, a.send, 1)
	require.Len(t, b.send, 1)
	assert.Len(t, other.send, 0)

	var frame struct {
		ID    *int64         `json:"id"`
		Event string         `json:"event"`
		Data  models.Message `json:"data"`
	}
	require.NoError(t, json.Unmarshal(<-a.send, &frame))
	assert.Nil(t, frame.ID)
	assert.Equal(t, EventNewMessage, frame.Event)
	assert.Equal(t, "hi", frame.Data.Content)
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := NewHub()
	slow := testClient("cust-1")
	hub.Join("room-1", slow)
	for i := 0; i < sendBuffer; i++ {
		require.Equal(t, queued, slow.enqueue([]byte("x")))
	}

	recipients := hub.BroadcastMessage("room-1", models.Message{ID: "m1"})
	assert.Empty(t, recipients)

	select {
	case <-slow.stop:
	default:
		t.Fatal("expected slow client to be stopped")
	}
	assert.Equal(t, stopped, slow.enqueue([]byte("y")))
}

func TestHubReportsOnlyOverflowedClients(t *testing.T) {
	pub := new(mocks.PublisherMock)
	observability.SetPublisher(pub)
	t.Cleanup(func() { observability.SetPublisher(nil) })

	hub := NewHub()
	slow, gone, live := testClient("cust-1"), testClient("agent-1"), testClient("agent-2")
	for _, c := range []*Client{slow, gone, live} {
		hub.Join("room-1", c)
	}
	for i := 0; i < sendBuffer; i++ {
		require.Equal(t, queued, slow.enqueue([]byte("x")))
	}
	gone.shutdown()

	isWSError := func(env observability.EventEnvelope) bool {
		ws := env.Payload.(map[string]interface{})["ws"].(map[string]interface{})
		return env.EventName == "ws_error" && ws["conn_id"] == slow.info.ConnID && ws["reason"] == "send queue full"
	}
	pub.On("Publish", mock.Anything, observability.RoutingKeyWSEvents, mock.MatchedBy(isWSError), mock.Anything).Return(nil).Once()

	recipients := hub.BroadcastMessage("room-1", models.Message{ID: "m1"})
	assert.Equal(t, []string{"agent-2"}, recipients)
	assert.Equal(t, stopped, slow.enqueue(nil))
	pub.AssertExpectations(t)
}

func TestHubCloseAll(t *testing.T) {
	hub := NewHub()
	a, b := testClient("cust-1"), testClient("agent-1")
	hub.Register(a)
	hub.Join("room-1", b)

	hub.CloseAll()

	for _, c := range []*Client{a, b} {
		select {
		case <-c.stop:
		default:
			t.Fatalf("client %s still running", c.info.UserID)
		}
	}
}

func TestReplyWithoutIDIsSkipped(t *testing.T) {
	c := testClient("cust-1")
	c.reply(nil, ErrorAck{Error: "x"})
	assert.Len(t, c.send, 0)

	id := int64(7)
	c.reply(&id, ErrorAck{Error: "x"})
	require.Len(t, c.send, 1)
	assert.JSONEq(t, `{"id":7,"event":"ack","data":{"success":false,"error":"x"}}`, string(<-c.send))
}
