package rooms

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
)

type memRoom struct {
	room    Room
	drawing json.RawMessage
}

// MemoryStore keeps rooms in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]*memRoom
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]*memRoom)}
}

func (s *MemoryStore) PutRoom(_ context.Context, room Room, drawing json.RawMessage) error {
	normalizeRoom(&room)
	room.Participants = slices.Clone(room.Participants)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.ID] = &memRoom{room: room, drawing: slices.Clone(drawing)}
	return nil
}

func (s *MemoryStore) ValidateMembership(_ context.Context, userID, roomID string) (Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return Membership{}, ErrRoomNotFound
	}
	var p *Participant
	if i := s.participant(r, userID); i >= 0 {
		p = &r.room.Participants[i]
	}
	return membership(r.room.OwnerID, r.room.IsActive, userID, p), nil
}

func (s *MemoryStore) RoomSnapshot(_ context.Context, roomID string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	room := r.room
	room.Participants = slices.Clone(r.room.Participants)
	return &Snapshot{Room: room, DrawingData: drawingOrEmpty(slices.Clone(r.drawing))}, nil
}

func (s *MemoryStore) SetBanned(_ context.Context, userID, roomID string, banned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	i := s.participant(r, userID)
	if i < 0 {
		return ErrParticipantNotFound
	}
	r.room.Participants[i].Banned = banned
	return nil
}

func (s *MemoryStore) participant(r *memRoom, userID string) int {
	return slices.IndexFunc(r.room.Participants, func(p Participant) bool { return p.UserID == userID })
}
