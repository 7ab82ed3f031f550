// Package collab is the websocket relay: it groups connections into rooms,
// authorizes joins against the room store and fans drawing updates and
// presence out to the other members of a room without interpreting them.
package collab

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sketchroom/sketchroom/internal/rooms"
)

const (
	DefaultStoreTimeout = 5 * time.Second
	DefaultSendBuffer   = 256
	DefaultReadLimit    = 1 << 20
)

// Room is the broadcast group of one room id.
type Room struct {
	id      string
	clients map[string]*Client // connection id -> client
	cursors *cursorTable
}

func NewRoom(id string) *Room {
	return &Room{
		id:      id,
		clients: make(map[string]*Client),
		cursors: newCursorTable(),
	}
}

type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]*Room   // room id -> group
	clients map[string]*Client // connection id -> client

	store        rooms.Store
	storeTimeout time.Duration
	sendBuffer   int
	readLimit    int64

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

type Option func(*Hub)

// WithStoreTimeout bounds every call into the room store.
func WithStoreTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.storeTimeout = d
		}
	}
}

// WithSendBuffer sets the outbound queue length of each connection.
func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithReadLimit sets the maximum size of an inbound frame.
func WithReadLimit(n int64) Option {
	return func(h *Hub) {
		if n > 0 {
			h.readLimit = n
		}
	}
}

func NewHub(store rooms.Store, opts ...Option) *Hub {
	h := &Hub{
		rooms:        make(map[string]*Room),
		clients:      make(map[string]*Client),
		store:        store,
		storeTimeout: DefaultStoreTimeout,
		sendBuffer:   DefaultSendBuffer,
		readLimit:    DefaultReadLimit,
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run serializes connection registration until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()

	slog.Debug("client connected", "conn", client.ID, "identity", client.Identity)
}

// removeClient is the implicit leave of a dropped connection.
func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.ID]; !ok {
		h.mu.Unlock()
		return
	}
	roomID, userID := client.roomID, client.userID
	h.leaveLocked(client)
	delete(h.clients, client.ID)
	client.closed = true
	close(client.send)
	h.mu.Unlock()

	if roomID != "" {
		h.broadcastToRoom(roomID, newMessage(TypeUserLeft, roomID, userID, UserLeftPayload{UserID: userID}), "")
		slog.Info("client left", "user", userID, "room", roomID)
	}
	slog.Debug("client disconnected", "conn", client.ID)
}

func (h *Hub) handleMessage(ctx context.Context, sender *Client, msg *Message) {
	switch msg.Type {
	case TypeJoinRoom:
		h.handleJoin(ctx, sender, msg)
	case TypeLeaveRoom:
		h.handleLeave(sender, msg)
	case TypeDrawingUpdate:
		h.handleDrawingUpdate(sender, msg)
	case TypeCursorMove:
		h.handleCursorMove(sender, msg)
	case TypeKickParticipant:
		h.handleKick(ctx, sender, msg)
	default:
		slog.Warn("unknown message type", "type", msg.Type, "conn", sender.ID)
	}
}

// handleJoin admits sender into a room. Unknown rooms, non-members and banned
// users are ignored without a reply so that room existence does not leak.
func (h *Hub) handleJoin(ctx context.Context, sender *Client, msg *Message) {
	var p JoinRoomPayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			h.sendTo(sender, errorMessage(msg.RoomID, "invalid join payload"))
			return
		}
	}
	roomID := firstNonEmpty(p.RoomID, msg.RoomID)
	userID := firstNonEmpty(p.UserID, msg.UserID)
	if roomID == "" || userID == "" {
		h.sendTo(sender, errorMessage(roomID, "roomId and userId are required"))
		return
	}
	if sender.Identity != "" && userID != sender.Identity {
		h.sendTo(sender, errorMessage(roomID, "userId does not match the authenticated user"))
		return
	}

	storeCtx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	defer cancel()

	m, err := h.store.ValidateMembership(storeCtx, userID, roomID)
	if errors.Is(err, rooms.ErrRoomNotFound) {
		slog.Info("join ignored: unknown room", "user", userID, "room", roomID)
		return
	}
	if err != nil {
		slog.Error("validate membership", "error", err, "user", userID, "room", roomID)
		h.sendTo(sender, errorMessage(roomID, "could not verify room membership"))
		return
	}
	if !m.Allowed() {
		slog.Info("join ignored", "user", userID, "room", roomID, "member", m.IsMember, "banned", m.IsBanned)
		return
	}

	snap, err := h.store.RoomSnapshot(storeCtx, roomID)
	if err != nil {
		slog.Error("room snapshot", "error", err, "room", roomID)
		h.sendTo(sender, errorMessage(roomID, "could not load room"))
		return
	}

	prevRoom, prevUser, ok := h.join(sender, roomID, userID, m.Role, newMessage(TypeRoomState, roomID, "", snap))
	if !ok {
		return
	}
	if prevRoom != "" {
		h.broadcastToRoom(prevRoom, newMessage(TypeUserLeft, prevRoom, prevUser, UserLeftPayload{UserID: prevUser}), "")
	}
	h.broadcastToRoom(roomID, newMessage(TypeUserJoined, roomID, userID, UserJoinedPayload{UserID: userID, Role: m.Role}), sender.ID)

	slog.Info("client joined", "user", userID, "room", roomID, "role", m.Role)
}

// join moves sender into roomID and queues state for it before any other
// member can broadcast to it. It reports the room sender left, if any.
func (h *Hub) join(sender *Client, roomID, userID string, role rooms.Role, state *Message) (prevRoom, prevUser string, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sender.closed {
		return "", "", false
	}
	if sender.roomID != "" && sender.roomID != roomID {
		prevRoom, prevUser = sender.roomID, sender.userID
	}
	h.leaveLocked(sender)

	room, exists := h.rooms[roomID]
	if !exists {
		room = NewRoom(roomID)
		h.rooms[roomID] = room
	}
	room.clients[sender.ID] = sender
	sender.roomID, sender.userID, sender.role = roomID, userID, role

	sender.Send(state)
	if presence := room.cursors.stateMessage(roomID); presence != nil {
		sender.Send(presence)
	}
	return prevRoom, prevUser, true
}

// leaveLocked removes client from its room, pruning the room when it empties.
// The caller holds h.mu.
func (h *Hub) leaveLocked(client *Client) {
	if client.roomID == "" {
		return
	}
	if room, ok := h.rooms[client.roomID]; ok {
		delete(room.clients, client.ID)
		if !h.userConnectedLocked(room, client.userID) {
			room.cursors.drop(client.userID)
		}
		if len(room.clients) == 0 {
			delete(h.rooms, client.roomID)
		}
	}
	client.roomID, client.userID, client.role = "", "", ""
}

func (h *Hub) userConnectedLocked(room *Room, userID string) bool {
	for _, c := range room.clients {
		if c.userID == userID {
			return true
		}
	}
	return false
}

func (h *Hub) handleLeave(sender *Client, msg *Message) {
	var p LeaveRoomPayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			slog.Warn("invalid leave payload", "error", err, "conn", sender.ID)
			return
		}
	}
	want := firstNonEmpty(p.RoomID, msg.RoomID)

	h.mu.Lock()
	roomID, userID := sender.roomID, sender.userID
	if roomID == "" || (want != "" && want != roomID) {
		h.mu.Unlock()
		return
	}
	h.leaveLocked(sender)
	h.mu.Unlock()

	h.broadcastToRoom(roomID, newMessage(TypeUserLeft, roomID, userID, UserLeftPayload{UserID: userID}), "")
	slog.Info("client left", "user", userID, "room", roomID)
}

// handleDrawingUpdate relays the payload verbatim to every other member.
// Updates addressed to a room the sender has not joined are dropped.
func (h *Hub) handleDrawingUpdate(sender *Client, msg *Message) {
	var scope roomScope
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &scope); err != nil {
			slog.Warn("invalid drawing update", "error", err, "conn", sender.ID)
			return
		}
	}
	roomID := firstNonEmpty(scope.RoomID, msg.RoomID)

	joined, userID, _ := h.membershipOf(sender)
	if roomID == "" || roomID != joined {
		slog.Warn("drawing update outside joined room", "conn", sender.ID, "room", roomID, "joined", joined)
		return
	}

	out := &Message{Type: TypeDrawingUpdate, RoomID: roomID, UserID: userID, Payload: msg.Payload}
	h.broadcastToRoom(roomID, out, sender.ID)
}

func (h *Hub) handleCursorMove(sender *Client, msg *Message) {
	var cursor CursorPayload
	if err := json.Unmarshal(msg.Payload, &cursor); err != nil {
		slog.Warn("invalid cursor payload", "error", err, "conn", sender.ID)
		return
	}

	roomID, userID, _ := h.membershipOf(sender)
	if roomID == "" {
		return
	}
	cursor.UserID = userID

	h.mu.RLock()
	room, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	room.cursors.set(cursor)

	h.broadcastToRoom(roomID, newMessage(TypeCursorMove, roomID, userID, cursor), sender.ID)
}

// handleKick bans the target and tells the whole room. Only owners and
// moderators may kick, and the owner cannot be kicked.
func (h *Hub) handleKick(ctx context.Context, sender *Client, msg *Message) {
	var p KickParticipantPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		h.sendTo(sender, errorMessage(msg.RoomID, "invalid kick payload"))
		return
	}
	roomID := firstNonEmpty(p.RoomID, msg.RoomID)

	joined, userID, role := h.membershipOf(sender)
	if roomID == "" || roomID != joined {
		h.sendTo(sender, errorMessage(roomID, "not in room"))
		return
	}
	if !role.CanModerate() {
		h.sendTo(sender, errorMessage(roomID, "only the owner or a moderator can kick participants"))
		return
	}
	if p.TargetUserID == "" || p.TargetUserID == userID {
		h.sendTo(sender, errorMessage(roomID, "invalid kick target"))
		return
	}

	storeCtx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	defer cancel()

	target, err := h.store.ValidateMembership(storeCtx, p.TargetUserID, roomID)
	if err != nil {
		slog.Error("validate kick target", "error", err, "user", p.TargetUserID, "room", roomID)
		h.sendTo(sender, errorMessage(roomID, "could not verify kick target"))
		return
	}
	if target.Role == rooms.RoleOwner {
		h.sendTo(sender, errorMessage(roomID, "the room owner cannot be kicked"))
		return
	}
	if err := h.store.SetBanned(storeCtx, p.TargetUserID, roomID, true); err != nil {
		if errors.Is(err, rooms.ErrParticipantNotFound) {
			h.sendTo(sender, errorMessage(roomID, "user is not a participant of this room"))
			return
		}
		slog.Error("set banned", "error", err, "user", p.TargetUserID, "room", roomID)
		h.sendTo(sender, errorMessage(roomID, "could not kick participant"))
		return
	}

	h.broadcastToRoom(roomID, newMessage(TypeParticipantKicked, roomID, userID, ParticipantKickedPayload{UserID: p.TargetUserID}), "")
	h.evict(roomID, p.TargetUserID)

	slog.Info("participant kicked", "user", p.TargetUserID, "room", roomID, "by", userID)
}

// evict removes every connection of userID from roomID.
func (h *Hub) evict(roomID, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[roomID]
	if !ok {
		return
	}
	for _, c := range room.clients {
		if c.userID == userID {
			h.leaveLocked(c)
		}
	}
}

func (h *Hub) membershipOf(c *Client) (roomID, userID string, role rooms.Role) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return c.roomID, c.userID, c.role
}

// sendTo queues msg for one connection unless it has been closed.
func (h *Hub) sendTo(c *Client, msg *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !c.closed {
		c.Send(msg)
	}
}

func (h *Hub) broadcastToRoom(roomID string, msg *Message, excludeClientID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room, ok := h.rooms[roomID]
	if !ok {
		return
	}
	for _, c := range room.clients {
		if c.ID != excludeClientID {
			c.Send(msg)
		}
	}
}

// Membership looks up userID in roomID with the hub's store timeout.
func (h *Hub) Membership(ctx context.Context, userID, roomID string) (rooms.Membership, error) {
	storeCtx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	defer cancel()
	return h.store.ValidateMembership(storeCtx, userID, roomID)
}

// ConnectionCount returns the number of connections joined to roomID.
func (h *Hub) ConnectionCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if room, ok := h.rooms[roomID]; ok {
		return len(room.clients)
	}
	return 0
}

// RoomUsers returns the distinct user ids joined to roomID, sorted.
func (h *Hub) RoomUsers(roomID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room, ok := h.rooms[roomID]
	if !ok {
		return nil
	}
	seen := make(map[string]bool, len(room.clients))
	users := make([]string, 0, len(room.clients))
	for _, c := range room.clients {
		if !seen[c.userID] {
			seen[c.userID] = true
			users = append(users, c.userID)
		}
	}
	sort.Strings(users)
	return users
}
