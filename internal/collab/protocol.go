package collab

import (
	"encoding/json"

	"github.com/sketchroom/sketchroom/internal/rooms"
)

// Message is the envelope of every websocket frame. RoomID and UserID may
// also travel inside the payload; payload values win.
type Message struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"roomId,omitempty"`
	UserID  string          `json:"userId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const (
	// Client → server
	TypeJoinRoom        = "join-room"
	TypeLeaveRoom       = "leave-room"
	TypeKickParticipant = "kick-participant"

	// Server → client
	TypeRoomState         = "room-state"
	TypeUserJoined        = "user-joined"
	TypeUserLeft          = "user-left"
	TypeParticipantKicked = "participant-kicked"
	TypePresenceState     = "presence-state"
	TypeError             = "error"

	// Relayed to the other members of the room
	TypeDrawingUpdate = "drawing-update"
	TypeCursorMove    = "cursor-move"
)

type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type LeaveRoomPayload struct {
	RoomID string `json:"roomId"`
}

// RoomStatePayload is sent to a client once its join is accepted.
type RoomStatePayload = rooms.Snapshot

type UserJoinedPayload struct {
	UserID string     `json:"userId"`
	Role   rooms.Role `json:"role,omitempty"`
}

type UserLeftPayload struct {
	UserID string `json:"userId"`
}

type KickParticipantPayload struct {
	RoomID       string `json:"roomId"`
	TargetUserID string `json:"targetUserId"`
	ModeratorID  string `json:"moderatorId,omitempty"`
}

type ParticipantKickedPayload struct {
	UserID string `json:"userId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// roomScope is the only part of a drawing-update payload the relay reads.
type roomScope struct {
	RoomID string `json:"roomId"`
}

type CursorPayload struct {
	X         float64  `json:"x"`
	Y         float64  `json:"y"`
	Selection []string `json:"selection,omitempty"`
	UserID    string   `json:"userId,omitempty"`
}

type PresenceStatePayload struct {
	Presences map[string]CursorPayload `json:"presences"`
}

func newMessage(typ, roomID, userID string, payload any) *Message {
	data, _ := json.Marshal(payload)
	return &Message{Type: typ, RoomID: roomID, UserID: userID, Payload: data}
}

func errorMessage(roomID, text string) *Message {
	return newMessage(TypeError, roomID, "", ErrorPayload{Message: text})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
