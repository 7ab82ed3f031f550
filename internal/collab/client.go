package collab

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/coder/websocket"

	"github.com/sketchroom/sketchroom/internal/rooms"
)

// Timing shared by both ends of a relay connection.
const (
	WriteWait  = 10 * time.Second
	PingPeriod = 30 * time.Second
)

// WriteFrame writes one text frame, giving up after WriteWait.
func WriteFrame(ctx context.Context, conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, WriteWait)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

// Ping checks the peer is alive, giving up after WriteWait. A read loop must
// be running on conn for the pong to be seen.
func Ping(ctx context.Context, conn *websocket.Conn) error {
	ctx, cancel := context.WithTimeout(ctx, WriteWait)
	defer cancel()
	return conn.Ping(ctx)
}

// IsNormalClose reports whether err ended the connection with a normal or
// going-away close frame.
func IsNormalClose(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}

// Client is one websocket connection. It is in at most one room at a time;
// the room fields are guarded by the hub's mutex.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// ID identifies the connection.
	ID string
	// Identity is the token-verified user id, empty when the relay runs
	// without authentication.
	Identity string

	roomID string
	userID string
	role   rooms.Role
	closed bool
}

func NewClient(hub *Hub, conn *websocket.Conn, id, identity string) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, hub.sendBuffer),
		ID:       id,
		Identity: identity,
	}
}

// ReadPump dispatches inbound frames to the hub until the connection ends,
// then unregisters the client.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(c.hub.readLimit)

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if !IsNormalClose(err) {
				slog.Debug("read error", "error", err, "conn", c.ID)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("invalid message", "error", err, "conn", c.ID)
			continue
		}

		c.hub.handleMessage(ctx, c, &msg)
	}
}

// WritePump drains the send queue onto the socket and pings the peer every
// PingPeriod. It returns when the queue is closed, a write fails or ctx ends.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return
			}
			if err := WriteFrame(ctx, c.conn, frame); err != nil {
				slog.Debug("write error", "error", err, "conn", c.ID)
				return
			}

		case <-ticker.C:
			if err := Ping(ctx, c.conn); err != nil {
				slog.Debug("ping failed", "error", err, "conn", c.ID)
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

// Send queues msg without blocking; a full buffer drops it. Callers hold the
// hub's mutex so the channel cannot be closed underneath them.
func (c *Client) Send(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal message", "error", err)
		return
	}

	select {
	case c.send <- data:
	default:
		slog.Warn("client send buffer full, dropping message", "conn", c.ID, "type", msg.Type)
	}
}
