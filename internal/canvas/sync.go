package canvas

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"

	"github.com/sketchroom/sketchroom/internal/element"
	"github.com/sketchroom/sketchroom/internal/spatial"
)

type Action string

const (
	ActionUpsert Action = "upsert"
	ActionDelete Action = "delete"
	ActionOrder  Action = "order"
	ActionClear  Action = "clear"
)

// DrawingUpdate is the payload of a drawing-update event. Elements travel
// whole; a receiver replaces its copy of each id (last writer wins).
type DrawingUpdate struct {
	RoomID   string       `json:"roomId"`
	Action   Action       `json:"action"`
	Elements element.List `json:"elements,omitempty"`
	IDs      []string     `json:"ids,omitempty"`
	Order    []string     `json:"order,omitempty"`
}

// ParseUpdate decodes a drawing-update payload.
func ParseUpdate(data []byte) (DrawingUpdate, error) {
	var u DrawingUpdate
	if err := json.Unmarshal(data, &u); err != nil {
		return DrawingUpdate{}, fmt.Errorf("parse drawing update: %w", err)
	}
	switch u.Action {
	case ActionUpsert, ActionDelete, ActionOrder, ActionClear:
		return u, nil
	default:
		return DrawingUpdate{}, fmt.Errorf("parse drawing update: unknown action %q", u.Action)
	}
}

// Publisher receives every local mutation, ready to be sent to the relay.
type Publisher interface {
	Publish(u DrawingUpdate)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(u DrawingUpdate)

func (f PublisherFunc) Publish(u DrawingUpdate) { f(u) }

// ApplyRemote applies an update received from a peer. Elements are replaced
// whole, so the last writer wins per id. The update is folded into every
// history snapshot without adding an entry: local undo and redo step through
// local changes only and never revert or resurrect a peer's edit.
func (s *Session) ApplyRemote(u DrawingUpdate) error {
	switch u.Action {
	case ActionUpsert, ActionDelete, ActionOrder, ActionClear:
	default:
		return fmt.Errorf("apply drawing update: unknown action %q", u.Action)
	}

	if s.drawing != nil {
		id := element.ID(s.drawing)
		switch {
		case u.Action == ActionClear, u.Action == ActionDelete && slices.Contains(u.IDs, id):
			s.drawing = nil
		case u.Action == ActionUpsert && slices.ContainsFunc(u.Elements, func(e element.Element) bool { return element.ID(e) == id }):
			s.drawing = nil
		}
	}

	apply(s.store, s.index, u)
	s.selection.Prune()

	s.history.Rebase(func(snap element.List) element.List {
		st := element.NewStore(snap...)
		apply(st, nil, u)
		return st.All()
	})
	return nil
}

// apply mutates store, and index when non-nil, with u.
func apply(store *element.Store, index *spatial.Index, u DrawingUpdate) {
	switch u.Action {
	case ActionUpsert:
		for _, e := range u.Elements {
			c := e.Clone()
			element.Normalize(c)
			store.Upsert(c)
			if index != nil {
				index.Insert(c)
			}
		}
	case ActionDelete:
		for _, e := range store.Remove(u.IDs...) {
			if index != nil {
				index.Remove(element.ID(e))
			}
		}
	case ActionOrder:
		store.Reorder(u.Order)
	case ActionClear:
		store.Clear()
		if index != nil {
			index.Clear()
		}
	}
}

// Diff returns the updates that turn prev into next: upserts for new or
// changed elements, deletes for vanished ids, and a full order when the
// surviving elements were restacked.
func Diff(prev, next element.List) []DrawingUpdate {
	before := make(map[string]element.Element, len(prev))
	for _, e := range prev {
		before[element.ID(e)] = e
	}
	after := make(map[string]bool, len(next))

	var changed element.List
	for _, e := range next {
		id := element.ID(e)
		after[id] = true
		if old, ok := before[id]; !ok || !reflect.DeepEqual(old, e) {
			changed = append(changed, e)
		}
	}

	var deleted []string
	for _, e := range prev {
		if id := element.ID(e); !after[id] {
			deleted = append(deleted, id)
		}
	}

	var out []DrawingUpdate
	if len(deleted) > 0 {
		out = append(out, DrawingUpdate{Action: ActionDelete, IDs: deleted})
	}
	if len(changed) > 0 {
		out = append(out, DrawingUpdate{Action: ActionUpsert, Elements: changed})
	}
	if restacked(prev, next, before) {
		out = append(out, DrawingUpdate{Action: ActionOrder, Order: ids(next)})
	}
	return out
}

// restacked reports whether elements present in both lists appear in a
// different relative order, or whether new elements were placed anywhere
// but on top.
func restacked(prev, next element.List, before map[string]element.Element) bool {
	var common []string
	for _, e := range next {
		if _, ok := before[element.ID(e)]; ok {
			common = append(common, element.ID(e))
		}
	}

	i := 0
	for _, e := range prev {
		if i < len(common) && element.ID(e) == common[i] {
			i++
		}
	}
	if i != len(common) {
		return true
	}

	seenNew := false
	for _, e := range next {
		if _, ok := before[element.ID(e)]; !ok {
			seenNew = true
		} else if seenNew {
			return true
		}
	}
	return false
}

func ids(list element.List) []string {
	out := make([]string, len(list))
	for i, e := range list {
		out[i] = element.ID(e)
	}
	return out
}
