// Package rooms is the room and participant store consulted by the relay for
// join authorization, room snapshots and bans.
package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrParticipantNotFound = errors.New("participant not found")
)

type Role string

const (
	RoleOwner       Role = "owner"
	RoleModerator   Role = "moderator"
	RoleParticipant Role = "participant"
)

// CanModerate reports whether the role may kick participants.
func (r Role) CanModerate() bool {
	return r == RoleOwner || r == RoleModerator
}

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

type Room struct {
	ID           string        `json:"id"`
	Code         string        `json:"code"`
	Name         string        `json:"name"`
	Visibility   Visibility    `json:"visibility"`
	PasswordHash string        `json:"-"`
	OwnerID      string        `json:"ownerId"`
	IsActive     bool          `json:"isActive"`
	Participants []Participant `json:"participants"`
}

type Participant struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
	Banned bool   `json:"banned"`
}

// Membership is the answer to a join authorization lookup.
type Membership struct {
	IsMember bool
	IsBanned bool
	Role     Role
}

// Allowed reports whether the user may join.
func (m Membership) Allowed() bool {
	return m.IsMember && !m.IsBanned
}

// Snapshot is what a joining client receives. DrawingData is the persisted
// element list, passed through without interpretation.
type Snapshot struct {
	Room        Room            `json:"room"`
	DrawingData json.RawMessage `json:"drawingData"`
}

// Store is implemented by every backend.
type Store interface {
	ValidateMembership(ctx context.Context, userID, roomID string) (Membership, error)
	RoomSnapshot(ctx context.Context, roomID string) (*Snapshot, error)
	SetBanned(ctx context.Context, userID, roomID string, banned bool) error
}

// Seeder creates or replaces a room with its participants and drawing data.
type Seeder interface {
	PutRoom(ctx context.Context, room Room, drawing json.RawMessage) error
}

// SeedRoom is one entry of a seed file: {"rooms": [SeedRoom, ...]}.
// Rooms are active unless isActive is false.
type SeedRoom struct {
	Room
	DrawingData json.RawMessage `json:"drawingData,omitempty"`
}

// Seed loads every room in data into s and returns how many were stored.
func Seed(ctx context.Context, s Seeder, data []byte) (int, error) {
	var f struct {
		Rooms []json.RawMessage `json:"rooms"`
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return 0, fmt.Errorf("parse seed file: %w", err)
	}
	for i, raw := range f.Rooms {
		r := SeedRoom{Room: Room{IsActive: true}}
		if err := json.Unmarshal(raw, &r); err != nil {
			return i, fmt.Errorf("parse seed room %d: %w", i, err)
		}
		if err := s.PutRoom(ctx, r.Room, r.DrawingData); err != nil {
			return i, fmt.Errorf("seed room %s: %w", r.ID, err)
		}
	}
	return len(f.Rooms), nil
}

// membership derives the join decision for userID. An inactive room admits
// nobody; the owner is a member even without a participant row.
func membership(ownerID string, active bool, userID string, p *Participant) Membership {
	if !active {
		return Membership{}
	}
	if p != nil {
		role := p.Role
		if userID == ownerID {
			role = RoleOwner
		}
		return Membership{IsMember: true, IsBanned: p.Banned, Role: role}
	}
	if userID == ownerID {
		return Membership{IsMember: true, Role: RoleOwner}
	}
	return Membership{}
}

func drawingOrEmpty(data []byte) json.RawMessage {
	if len(data) == 0 {
		return json.RawMessage("[]")
	}
	return json.RawMessage(data)
}

func normalizeRoom(room *Room) {
	if room.Visibility == "" {
		room.Visibility = VisibilityPrivate
	}
	for i := range room.Participants {
		if room.Participants[i].Role == "" {
			room.Participants[i].Role = RoleParticipant
		}
	}
}
