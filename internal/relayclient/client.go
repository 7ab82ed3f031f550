// Package relayclient connects a canvas session to the relay over a
// websocket. Outbound drawing updates go through Publisher; inbound events
// arrive on Events and are folded into a session with Apply.
package relayclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/sketchroom/sketchroom/internal/canvas"
	"github.com/sketchroom/sketchroom/internal/collab"
	"github.com/sketchroom/sketchroom/internal/element"
)

const defaultEventBuffer = 64

var ErrClosed = errors.New("relay connection closed")

type Client struct {
	conn   *websocket.Conn
	events chan collab.Message

	mu     sync.Mutex
	roomID string
	userID string

	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
	err       error
}

type options struct {
	token        string
	eventBuffer  int
	header       http.Header
	pingInterval time.Duration
}

type Option func(*options)

// WithToken authenticates the connection with a bearer token.
func WithToken(token string) Option { return func(o *options) { o.token = token } }

func WithEventBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.eventBuffer = n
		}
	}
}

func WithHeader(h http.Header) Option { return func(o *options) { o.header = h } }

// WithPingInterval sets how often the relay is pinged (collab.PingPeriod by
// default). Zero or less disables pings.
func WithPingInterval(d time.Duration) Option { return func(o *options) { o.pingInterval = d } }

// Dial connects to the relay websocket at rawURL (ws:// or wss://).
func Dial(ctx context.Context, rawURL string, opts ...Option) (*Client, error) {
	o := options{eventBuffer: defaultEventBuffer, pingInterval: collab.PingPeriod}
	for _, opt := range opts {
		opt(&o)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse relay url: %w", err)
	}
	if o.token != "" {
		q := u.Query()
		q.Set("token", o.token)
		u.RawQuery = q.Encode()
	}

	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{HTTPHeader: o.header})
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	c := &Client{
		conn:    conn,
		events:  make(chan collab.Message, o.eventBuffer),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	if o.pingInterval > 0 {
		go c.keepAlive(o.pingInterval)
	}
	return c, nil
}

// Events delivers relay events in arrival order. The channel is closed when
// the connection ends; Err then reports why.
func (c *Client) Events() <-chan collab.Message { return c.events }

func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer close(c.events)

	for {
		_, data, err := c.conn.Read(context.Background())
		if err != nil {
			if collab.IsNormalClose(err) {
				c.err = ErrClosed
			} else {
				c.err = fmt.Errorf("read relay: %w", err)
			}
			return
		}

		var msg collab.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("invalid relay message", "error", err)
			continue
		}
		select {
		case c.events <- msg:
		case <-c.closing:
			c.err = ErrClosed
			return
		}
	}
}

// keepAlive pings the relay until the connection ends. A failed ping closes
// the connection, which ends readLoop with the underlying error.
func (c *Client) keepAlive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := collab.Ping(context.Background(), c.conn); err != nil {
				slog.Warn("relay ping failed", "error", err)
				c.conn.Close(websocket.StatusGoingAway, "ping timeout")
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) write(ctx context.Context, msg *collab.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := collab.WriteFrame(ctx, c.conn, data); err != nil {
		return fmt.Errorf("write relay: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, typ string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	c.mu.Lock()
	roomID, userID := c.roomID, c.userID
	c.mu.Unlock()
	return c.write(ctx, &collab.Message{Type: typ, RoomID: roomID, UserID: userID, Payload: data})
}

// Join asks to enter roomID as userID. Admission is confirmed by a
// room-state event; refused joins get no reply.
func (c *Client) Join(ctx context.Context, roomID, userID string) error {
	c.mu.Lock()
	c.roomID, c.userID = roomID, userID
	c.mu.Unlock()
	return c.send(ctx, collab.TypeJoinRoom, collab.JoinRoomPayload{RoomID: roomID, UserID: userID})
}

func (c *Client) Leave(ctx context.Context) error {
	c.mu.Lock()
	roomID := c.roomID
	c.mu.Unlock()
	return c.send(ctx, collab.TypeLeaveRoom, collab.LeaveRoomPayload{RoomID: roomID})
}

func (c *Client) SendUpdate(ctx context.Context, u canvas.DrawingUpdate) error {
	if u.RoomID == "" {
		c.mu.Lock()
		u.RoomID = c.roomID
		c.mu.Unlock()
	}
	return c.send(ctx, collab.TypeDrawingUpdate, u)
}

func (c *Client) MoveCursor(ctx context.Context, x, y float64, selected []string) error {
	return c.send(ctx, collab.TypeCursorMove, collab.CursorPayload{X: x, Y: y, Selection: selected})
}

func (c *Client) Kick(ctx context.Context, targetUserID string) error {
	c.mu.Lock()
	roomID, userID := c.roomID, c.userID
	c.mu.Unlock()
	return c.send(ctx, collab.TypeKickParticipant, collab.KickParticipantPayload{
		RoomID:       roomID,
		TargetUserID: targetUserID,
		ModeratorID:  userID,
	})
}

// Publisher forwards session mutations to the relay. Send failures are
// logged; the connection's read side reports the disconnect.
func (c *Client) Publisher(ctx context.Context) canvas.Publisher {
	return canvas.PublisherFunc(func(u canvas.DrawingUpdate) {
		if err := c.SendUpdate(ctx, u); err != nil {
			slog.Warn("publish drawing update", "error", err, "action", u.Action)
		}
	})
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.closing) })
	err := c.conn.Close(websocket.StatusNormalClosure, "")
	<-c.done
	return err
}

// Apply folds a relay event into s. Events that do not change the canvas
// are ignored. Apply must run on the goroutine that owns s.
func Apply(s *canvas.Session, msg collab.Message) error {
	switch msg.Type {
	case collab.TypeRoomState:
		var state collab.RoomStatePayload
		if err := json.Unmarshal(msg.Payload, &state); err != nil {
			return fmt.Errorf("decode room-state: %w", err)
		}
		var elements element.List
		if len(state.DrawingData) > 0 {
			if err := json.Unmarshal(state.DrawingData, &elements); err != nil {
				return fmt.Errorf("decode drawing data: %w", err)
			}
		}
		s.SetRoom(state.Room.ID)
		s.Load(elements)
		return nil

	case collab.TypeDrawingUpdate:
		u, err := canvas.ParseUpdate(msg.Payload)
		if err != nil {
			return err
		}
		return s.ApplyRemote(u)
	}
	return nil
}
