package collab

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/sketchroom/sketchroom/internal/auth"
	"github.com/sketchroom/sketchroom/internal/rooms"
)

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	ValidateToken(token string) (string, error)
}

// Handler serves the relay's HTTP surface.
type Handler struct {
	hub            *Hub
	verifier       TokenVerifier
	originPatterns []string
}

// NewHandler returns a handler for hub. A nil verifier accepts anonymous
// connections; otherwise /ws requires a bearer token (header or ?token=)
// and joins must match it.
func NewHandler(hub *Hub, verifier TokenVerifier, originPatterns []string) *Handler {
	return &Handler{hub: hub, verifier: verifier, originPatterns: originPatterns}
}

// ServeWS upgrades the request and runs the connection until it closes.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	var identity string
	if h.verifier != nil {
		token, ok := auth.BearerToken(r)
		if !ok {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		var err error
		identity, err = h.verifier.ValidateToken(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.Error("websocket accept", "error", err)
		return
	}

	client := NewClient(h.hub, conn, uuid.New().String(), identity)
	h.hub.Register(client)

	ctx := r.Context()
	go client.WritePump(ctx)
	client.ReadPump(ctx)
}

type connectionsResponse struct {
	RoomID      string   `json:"roomId"`
	Connections int      `json:"connections"`
	Users       []string `json:"users"`
}

// Connections reports who is connected to a room. Authenticated callers
// must be admitted members of the room.
func (h *Handler) Connections(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	if userID := auth.UserIDFromContext(r.Context()); userID != "" {
		m, err := h.hub.Membership(r.Context(), userID, roomID)
		switch {
		case errors.Is(err, rooms.ErrRoomNotFound):
			http.Error(w, "room not found", http.StatusNotFound)
			return
		case err != nil:
			slog.Error("validate membership", "error", err, "user", userID, "room", roomID)
			http.Error(w, "could not verify room membership", http.StatusInternalServerError)
			return
		case !m.Allowed():
			http.Error(w, "not a member of this room", http.StatusForbidden)
			return
		}
	}

	users := h.hub.RoomUsers(roomID)
	if users == nil {
		users = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(connectionsResponse{
		RoomID:      roomID,
		Connections: h.hub.ConnectionCount(roomID),
		Users:       users,
	})
}
