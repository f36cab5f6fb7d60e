package websocket

import (
	"context"
	"log"
	"sync"
	"time"

	"dm-go/internal/config"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// InboundHandler processes one raw frame read from a client connection.
type InboundHandler func(ctx context.Context, client *Client, frame []byte)

// Client is one live transport connection bound to a user: the session.
//
// A client starts out "gated": deliveries enqueued before ReleaseBacklog is
// called accumulate in a pending slice instead of the send channel. The
// connect flow registers the client, fetches the user's undelivered backlog
// (which can block on the store), then releases the gate with the backlog in
// front, so buffered messages always reach the peer before any live
// emission that raced the flush, and no lock is held across the store call.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	UserID       uint
	SessionToken string
	ConnectedAt  time.Time

	mu      sync.Mutex
	send    chan []byte
	pending [][]byte
	gated   bool
	closed  bool

	handleFrame InboundHandler
}

// NewClient builds a gated client for an upgraded connection.
func NewClient(hub *Hub, conn *websocket.Conn, userID uint, handleFrame InboundHandler, wsCfg config.WebSocketConfig) *Client {
	bufSize := wsCfg.SendBufferSize
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Client{
		hub:          hub,
		conn:         conn,
		UserID:       userID,
		SessionToken: uuid.New().String(),
		ConnectedAt:  time.Now(),
		send:         make(chan []byte, bufSize),
		gated:        true,
		handleFrame:  handleFrame,
	}
}

// Enqueue hands payload to the session's outbound queue. Returns false if the
// session is closed or its send buffer is full; while the client is gated the
// payload is parked instead so it can be emitted after the reconnect backlog.
func (c *Client) Enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	if c.gated {
		c.pending = append(c.pending, payload)
		return true
	}
	return c.trySendLocked(payload)
}

// ReleaseBacklog emits the backlog, then everything that arrived while the
// client was gated, and opens the gate for live delivery. It returns the
// indices of the backlog entries that made it onto the send queue; entries
// the session could not accept (closed connection, full buffer) are not in
// the result, and the caller must not treat them as delivered.
func (c *Client) ReleaseBacklog(backlog [][]byte) []int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		c.pending = nil
		c.gated = false
		return nil
	}
	accepted := make([]int, 0, len(backlog))
	for i, payload := range backlog {
		if c.trySendLocked(payload) {
			accepted = append(accepted, i)
		}
	}
	for _, payload := range c.pending {
		c.trySendLocked(payload)
	}
	c.pending = nil
	c.gated = false
	return accepted
}

// trySendLocked does a non-blocking send; a full buffer means the peer is too
// slow and the payload is dropped with a warning. Callers hold c.mu.
func (c *Client) trySendLocked(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		log.Printf("Send buffer full for user %d, dropping payload", c.UserID)
		return false
	}
}

// shutdown closes the session's send path exactly once. The write pump sends
// a close frame and tears down the connection when the channel closes.
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// ReadPump pumps frames from the connection to the inbound handler. It runs
// in its own goroutine per client and unregisters the session when the
// connection drops.
func (c *Client) ReadPump(wsCfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(int64(wsCfg.MaxMessageSizeBytes))
	c.conn.SetReadDeadline(time.Now().Add(time.Duration(wsCfg.PongWaitSeconds) * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(time.Duration(wsCfg.PongWaitSeconds) * time.Second))
		return nil
	})

	for {
		messageType, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error (user %d): %v", c.UserID, err)
			}
			break
		}
		if messageType != websocket.TextMessage {
			log.Printf("User %d sent non-text frame type %d, ignoring", c.UserID, messageType)
			continue
		}
		if c.handleFrame != nil {
			c.handleFrame(context.Background(), c, frame)
		}
	}
}

// WritePump pumps payloads from the send channel to the connection,
// aggregating whatever is queued into one frame per write, and keeps the
// connection alive with periodic pings.
func (c *Client) WritePump(wsCfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(wsCfg.PingPeriodSeconds) * time.Second)
	newline := []byte("\n")
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(time.Duration(wsCfg.WriteWaitSeconds) * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(payload)

			n := len(c.send)
			for i := 0; i < n; i++ {
				more, ok := <-c.send
				if !ok {
					break
				}
				w.Write(newline)
				w.Write(more)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(time.Duration(wsCfg.WriteWaitSeconds) * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
