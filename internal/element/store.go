package element

// Store is the ordered element collection of one session. Index order is
// z-order: the last element is painted on top. Store is not safe for
// concurrent use; it is owned by a single event loop.
type Store struct {
	elements []Element
	pos      map[string]int
}

// NewStore returns a store holding elements in the given order.
func NewStore(elements ...Element) *Store {
	s := &Store{}
	s.set(elements)
	return s
}

func (s *Store) set(elements []Element) {
	s.elements = append(s.elements[:0:0], elements...)
	s.reindex()
}

func (s *Store) reindex() {
	s.pos = make(map[string]int, len(s.elements))
	for i, e := range s.elements {
		s.pos[ID(e)] = i
	}
}

func (s *Store) Len() int {
	return len(s.elements)
}

// All returns the elements in z-order. The slice is a copy; the elements are
// the live values.
func (s *Store) All() List {
	return append(List(nil), s.elements...)
}

func (s *Store) Get(id string) (Element, bool) {
	i, ok := s.pos[id]
	if !ok {
		return nil, false
	}
	return s.elements[i], true
}

// IndexOf returns the z-position of id, or -1.
func (s *Store) IndexOf(id string) int {
	if i, ok := s.pos[id]; ok {
		return i
	}
	return -1
}

// Upsert stores e. An element with the same id is replaced in place, keeping
// its z-position; otherwise e is added on top. It reports whether an element
// was replaced.
func (s *Store) Upsert(e Element) bool {
	id := ID(e)
	if i, ok := s.pos[id]; ok {
		s.elements[i] = e
		return true
	}
	s.pos[id] = len(s.elements)
	s.elements = append(s.elements, e)
	return false
}

// Remove deletes the given ids and returns the elements that were present.
func (s *Store) Remove(ids ...string) []Element {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := s.pos[id]; ok {
			drop[id] = true
		}
	}
	if len(drop) == 0 {
		return nil
	}

	removed := make([]Element, 0, len(drop))
	kept := s.elements[:0]
	for _, e := range s.elements {
		if drop[ID(e)] {
			removed = append(removed, e)
			continue
		}
		kept = append(kept, e)
	}
	clear(s.elements[len(kept):])
	s.elements = kept
	s.reindex()
	return removed
}

// Clear removes every element.
func (s *Store) Clear() {
	s.set(nil)
}

// Snapshot returns a deep copy of the current content.
func (s *Store) Snapshot() List {
	return List(s.elements).Clone()
}

// Restore replaces the content with a deep copy of snap.
func (s *Store) Restore(snap List) {
	s.set(snap.Clone())
}

// IDs returns the element ids in z-order.
func (s *Store) IDs() []string {
	ids := make([]string, len(s.elements))
	for i, e := range s.elements {
		ids[i] = ID(e)
	}
	return ids
}

// BringToFront moves ids to the top, preserving their relative order.
func (s *Store) BringToFront(ids []string) bool {
	return s.partition(ids, false)
}

// SendToBack moves ids to the bottom, preserving their relative order.
func (s *Store) SendToBack(ids []string) bool {
	return s.partition(ids, true)
}

func (s *Store) partition(ids []string, toBack bool) bool {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	var moved, rest []Element
	for _, e := range s.elements {
		if want[ID(e)] {
			moved = append(moved, e)
		} else {
			rest = append(rest, e)
		}
	}
	if len(moved) == 0 {
		return false
	}

	var next []Element
	if toBack {
		next = append(moved, rest...)
	} else {
		next = append(rest, moved...)
	}
	changed := !sameOrder(s.elements, next)
	s.set(next)
	return changed
}

// Reorder arranges elements to follow order. Ids in order that are not stored
// are skipped; stored elements missing from order keep their relative order
// and are placed after the ordered ones.
func (s *Store) Reorder(order []string) bool {
	next := make([]Element, 0, len(s.elements))
	placed := make(map[string]bool, len(order))
	for _, id := range order {
		if i, ok := s.pos[id]; ok && !placed[id] {
			next = append(next, s.elements[i])
			placed[id] = true
		}
	}
	for _, e := range s.elements {
		if !placed[ID(e)] {
			next = append(next, e)
		}
	}

	changed := !sameOrder(s.elements, next)
	s.set(next)
	return changed
}

func sameOrder(a, b []Element) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if ID(a[i]) != ID(b[i]) {
			return false
		}
	}
	return true
}
