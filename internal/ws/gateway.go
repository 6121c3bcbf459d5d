package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"support-chat/internal/chat"
	"support-chat/internal/models"
	"support-chat/internal/observability"
	"support-chat/internal/registry"
)

var tracer = otel.Tracer("support-chat/ws")

type handlerFunc func(ctx context.Context, c *Client, data json.RawMessage) (any, error)

// Gateway serves the support chat websocket channel.
type Gateway struct {
	svc      *chat.Service
	hub      *Hub
	registry *registry.Registry
	upgrader websocket.Upgrader
	handlers map[string]handlerFunc
}

// NewGateway constructs a Gateway. An empty allowedOrigins accepts any origin.
func NewGateway(svc *chat.Service, hub *Hub, reg *registry.Registry, allowedOrigins []string) *Gateway {
	g := &Gateway{
		svc:      svc,
		hub:      hub,
		registry: reg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if len(allowedOrigins) == 0 || origin == "" {
					return true
				}
				return slices.Contains(allowedOrigins, origin)
			},
		},
	}
	g.handlers = map[string]handlerFunc{
		EventJoinChat:    g.joinChat,
		EventSendMessage: g.sendMessage,
		EventMessageRead: g.messageRead,
		EventGetRooms:    g.getRooms,
	}
	return g
}

// Handle authenticates the request and only then upgrades it.
func (g *Gateway) Handle(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "ws.handshake")
	defer span.End()

	requestID := observability.RequestIDFromRequest(c.Request)
	ctx = observability.WithRequestID(ctx, requestID)

	participant, err := g.svc.Authenticate(ctx, bearerToken(c.Request))
	if err != nil {
		span.SetStatus(codes.Error, "authentication failed")
		observability.IncWSEvent("ws_rejected")
		if chat.KindOf(err) == chat.KindUnauthenticated {
			c.JSON(http.StatusUnauthorized, gin.H{"error": chat.ClientMessage(err)})
			return
		}
		log.Printf("ws handshake failed request_id=%s: %v", requestID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": chat.ClientMessage(err)})
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade failed request_id=%s: %v", requestID, err)
		return
	}

	info := ConnInfo{
		ConnID:      uuid.NewString(),
		UserID:      participant.UserID(),
		Role:        participant.Role(),
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     observability.TraceIDFromContext(ctx),
		ConnectedAt: time.Now(),
	}
	span.SetAttributes(
		attribute.String("ws.conn_id", info.ConnID),
		attribute.String("chat.user_id", info.UserID),
		attribute.String("chat.role", string(info.Role)),
	)

	client := newClient(conn, participant, info)
	g.hub.Register(client)
	g.registry.Add(info.UserID, info.ConnID)
	observability.SetOnlineUsers(g.registry.OnlineUsers())
	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	g.publish(ctx, info.event("ws_connect", "", ""), info)

	// the request context ends with this handler; the connection outlives it
	connCtx := context.WithoutCancel(ctx)
	go client.writePump()
	go g.readLoop(connCtx, client)
}

func (g *Gateway) readLoop(ctx context.Context, c *Client) {
	var closeReason string
	defer func() {
		roomID := g.hub.Unregister(c)
		g.registry.Remove(c.info.UserID, c.info.ConnID)
		c.shutdown()
		observability.SetOnlineUsers(g.registry.OnlineUsers())
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		g.publish(ctx, c.info.event("ws_disconnect", roomID, closeReason), c.info)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("ws read failed conn_id=%s: %v", c.info.ConnID, err)
				observability.IncWSEvent("ws_error")
				g.publish(ctx, c.info.event("ws_error", g.hub.RoomOf(c), closeReason), c.info)
			}
			return
		}
		g.dispatch(ctx, c, raw)
	}
}

// dispatch runs one client request to completion and acks it. A failing or
// panicking handler only fails that request.
func (g *Gateway) dispatch(ctx context.Context, c *Client, raw []byte) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		observability.IncChatEvent("malformed", string(chat.KindValidation))
		c.reply(unmatchedID(), ErrorAck{Error: chat.MsgInvalidMessage})
		return
	}

	handler, ok := g.handlers[frame.Event]
	if !ok {
		observability.IncChatEvent("unknown", string(chat.KindValidation))
		c.reply(failureID(frame.ID), ErrorAck{Error: chat.MsgInvalidMessage})
		return
	}

	ctx, span := tracer.Start(ctx, "ws."+frame.Event)
	defer span.End()
	span.SetAttributes(attribute.String("ws.conn_id", c.info.ConnID))

	ack, err := g.invoke(ctx, handler, c, frame)
	if err != nil {
		kind := chat.KindOf(err)
		observability.IncChatEvent(frame.Event, string(kind))
		if kind == chat.KindInternal {
			span.RecordError(err)
			span.SetStatus(codes.Error, "internal")
			log.Printf("ws %s failed conn_id=%s user_id=%s: %v", frame.Event, c.info.ConnID, c.info.UserID, err)
		}
		c.reply(failureID(frame.ID), ErrorAck{Error: chat.ClientMessage(err)})
		return
	}

	observability.IncChatEvent(frame.Event, "ok")
	if ack != nil {
		c.reply(frame.ID, ack)
	}
}

func (g *Gateway) invoke(ctx context.Context, handler handlerFunc, c *Client, frame Frame) (ack any, err error) {
	defer func() {
		if r := recover(); r != nil {
			ack, err = nil, fmt.Errorf("panic in %s: %v", frame.Event, r)
		}
	}()
	return handler(ctx, c, frame.Data)
}

func (g *Gateway) joinChat(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	var req JoinChatRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}

	room, err := g.svc.JoinChat(ctx, c.participant, req.RoomID, func(room models.Room, history []models.Message) {
		g.hub.Join(room.ID, c)
		c.push(EventChatHistory, ChatHistory{RoomID: room.ID, Messages: history})
	})
	if err != nil {
		return nil, err
	}
	return JoinAck{Success: true, RoomID: room.ID}, nil
}

func (g *Gateway) sendMessage(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	var req SendMessageRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}

	msg, err := g.svc.SendMessage(ctx, c.participant, chat.SendInput{
		RoomID:      req.RoomID,
		Content:     req.Content,
		Attachments: req.Attachments,
	})
	if err != nil {
		return nil, err
	}
	return SendAck{Success: true, Message: msg}, nil
}

// messageRead is fire-and-forget: success produces no ack.
func (g *Gateway) messageRead(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	var req MessageReadRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}

	n, err := g.svc.MarkRead(ctx, c.participant, req.RoomID, req.MessageIDs)
	if err != nil {
		return nil, err
	}
	log.Printf("ws messages read room_id=%s user_id=%s count=%d", req.RoomID, c.info.UserID, n)
	return nil, nil
}

func (g *Gateway) getRooms(ctx context.Context, c *Client, _ json.RawMessage) (any, error) {
	rooms, err := g.svc.ListRooms(ctx, c.participant)
	if err != nil {
		return nil, err
	}
	return RoomsAck{Success: true, Rooms: rooms}, nil
}

func (g *Gateway) publish(ctx context.Context, envelope observability.EventEnvelope, info ConnInfo) {
	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	if err := observability.PublishEvent(ctx, observability.RoutingKeyWSEvents, envelope, headers); err != nil {
		log.Printf("ws event publish failed event=%s conn_id=%s: %v", envelope.EventName, info.ConnID, err)
	}
}

// failureID falls back to the unmatched id so no failure goes unanswered.
func failureID(id *int64) *int64 {
	if id == nil {
		return unmatchedID()
	}
	return id
}

// unmatchedID tags acks for frames whose own id could not be read.
func unmatchedID() *int64 {
	id := int64(-1)
	return &id
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &chat.Error{Kind: chat.KindValidation, Message: chat.MsgInvalidMessage, Err: err}
	}
	return nil
}

// bearerToken reads the credential from the Authorization header or the token
// query parameter browsers use for websocket handshakes.
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
