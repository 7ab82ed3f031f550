package collab

import (
	"maps"
	"sync"
)

// cursorTable holds the last cursor of each user in a room. A user's entry
// is dropped when their last connection leaves the room. Cursor moves update
// it under the hub's read lock, so it carries its own mutex.
type cursorTable struct {
	mu   sync.Mutex
	last map[string]CursorPayload // userID -> cursor
}

func newCursorTable() *cursorTable {
	return &cursorTable{last: make(map[string]CursorPayload)}
}

func (t *cursorTable) set(c CursorPayload) {
	t.mu.Lock()
	t.last[c.UserID] = c
	t.mu.Unlock()
}

func (t *cursorTable) drop(userID string) {
	t.mu.Lock()
	delete(t.last, userID)
	t.mu.Unlock()
}

// stateMessage is the presence-state replayed to a joiner, or nil when
// nobody in the room has moved a cursor yet.
func (t *cursorTable) stateMessage(roomID string) *Message {
	t.mu.Lock()
	all := maps.Clone(t.last)
	t.mu.Unlock()

	if len(all) == 0 {
		return nil
	}
	return newMessage(TypePresenceState, roomID, "", PresenceStatePayload{Presences: all})
}
