package ws

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"support-chat/internal/chat"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 16 << 10
	sendBuffer     = 256
)

// Client is one authenticated websocket connection. Reads are handled by the
// gateway's read loop; writes go through send and are drained by writePump.
type Client struct {
	conn        *websocket.Conn
	participant chat.Participant
	info        ConnInfo
	send        chan []byte
	stop        chan struct{}
	stopOnce    sync.Once
}

func newClient(conn *websocket.Conn, participant chat.Participant, info ConnInfo) *Client {
	return &Client{
		conn:        conn,
		participant: participant,
		info:        info,
		send:        make(chan []byte, sendBuffer),
		stop:        make(chan struct{}),
	}
}

type enqueueResult int

const (
	queued enqueueResult = iota
	// stopped: the client was already shut down; nothing was queued.
	stopped
	// overflowed: the queue was full and the client has been stopped.
	overflowed
)

// enqueue queues payload without blocking. A full queue stops the client.
func (c *Client) enqueue(payload []byte) enqueueResult {
	select {
	case <-c.stop:
		return stopped
	default:
	}

	select {
	case c.send <- payload:
		return queued
	default:
		log.Printf("ws send queue full, dropping client conn_id=%s user_id=%s", c.info.ConnID, c.info.UserID)
		c.shutdown()
		return overflowed
	}
}

// push encodes and queues a server-initiated event.
func (c *Client) push(event string, data any) bool {
	payload, err := encodeFrame(nil, event, data)
	if err != nil {
		log.Printf("ws encode %s failed conn_id=%s: %v", event, c.info.ConnID, err)
		return false
	}
	return c.enqueue(payload) == queued
}

// reply queues the ack for a request. Requests without an id are not acknowledged.
func (c *Client) reply(id *int64, data any) {
	if id == nil {
		return
	}
	payload, err := encodeFrame(id, EventAck, data)
	if err != nil {
		log.Printf("ws encode ack failed conn_id=%s: %v", c.info.ConnID, err)
		return
	}
	c.enqueue(payload)
}

func (c *Client) shutdown() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			if !c.write(websocket.TextMessage, payload) {
				return
			}
		case <-ticker.C:
			if !c.write(websocket.PingMessage, nil) {
				return
			}
		case <-c.stop:
			c.drain()
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
			return
		}
	}
}

// drain flushes what is already queued so acks are not lost on a graceful stop.
func (c *Client) drain() {
	for {
		select {
		case payload := <-c.send:
			if !c.write(websocket.TextMessage, payload) {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(messageType int, payload []byte) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(messageType, payload); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
			log.Printf("ws write failed conn_id=%s: %v", c.info.ConnID, err)
		}
		return false
	}
	return true
}
