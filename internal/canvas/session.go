// Package canvas ties the element store, spatial index, selection engine and
// undo history of one client into a drawing session.
package canvas

import (
	"errors"
	"slices"

	"github.com/sketchroom/sketchroom/internal/element"
	"github.com/sketchroom/sketchroom/internal/geometry"
	"github.com/sketchroom/sketchroom/internal/history"
	"github.com/sketchroom/sketchroom/internal/selection"
	"github.com/sketchroom/sketchroom/internal/spatial"
)

var (
	ErrNotFound = errors.New("element not found")
	ErrNotText  = errors.New("element is not text")
)

// DefaultStyle is applied to new elements when no style is configured.
var DefaultStyle = element.Common{Color: "#000000", StrokeWidth: 2}

// Session owns the canvas state of one client. Local gestures mutate the
// store and index frame by frame; a history entry is committed when the
// gesture ends. It is not safe for concurrent use.
type Session struct {
	roomID string

	store     *element.Store
	index     *spatial.Index
	selection *selection.Engine
	history   *history.History[element.List]
	publisher Publisher

	// Tool state
	tool    Tool
	style   element.Common
	drawing element.Element
	origin  geometry.Point
	erasing bool
	erased  bool

	cellSize    float64
	historySize int
	selOpts     []selection.Option
}

type Option func(*Session)

func WithRoom(id string) Option { return func(s *Session) { s.roomID = id } }

func WithCellSize(size float64) Option { return func(s *Session) { s.cellSize = size } }

func WithHistorySize(n int) Option { return func(s *Session) { s.historySize = n } }

func WithPublisher(p Publisher) Option { return func(s *Session) { s.publisher = p } }

func WithStyle(style element.Common) Option { return func(s *Session) { s.style = style } }

// WithSelectionOptions forwards options to the selection engine.
func WithSelectionOptions(opts ...selection.Option) Option {
	return func(s *Session) { s.selOpts = append(s.selOpts, opts...) }
}

// NewSession creates an empty session with the select tool active.
func NewSession(opts ...Option) *Session {
	s := &Session{
		tool:        ToolSelect,
		style:       DefaultStyle,
		cellSize:    spatial.DefaultCellSize,
		historySize: history.DefaultMaxSize,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.store = element.NewStore()
	s.index = spatial.New(spatial.WithCellSize(s.cellSize))
	s.selection = selection.New(s.store, s.index, s.selOpts...)
	s.history = history.New(element.List{}, history.WithMaxSize[element.List](s.historySize))
	return s
}

// Load replaces the whole canvas, e.g. with the drawing data of a joined
// room. History restarts from the loaded state.
func (s *Session) Load(elements element.List) {
	s.abortGesture()
	s.store.Restore(elements)
	s.index.Rebuild(s.store.All())
	s.selection.Clear()
	s.history.Reset(s.store.Snapshot())
}

// --- Queries ---

func (s *Session) RoomID() string { return s.roomID }

func (s *Session) SetRoom(id string) { s.roomID = id }

func (s *Session) Tool() Tool { return s.tool }

func (s *Session) Style() element.Common { return s.style }

func (s *Session) SetStyle(style element.Common) { s.style = style }

// Elements returns a deep copy of the canvas in z-order.
func (s *Session) Elements() element.List {
	return s.store.Snapshot()
}

func (s *Session) Get(id string) (element.Element, bool) {
	e, ok := s.store.Get(id)
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

// Visible returns the elements whose bounds intersect viewport, bottom-most
// first.
func (s *Session) Visible(viewport geometry.Rect) []element.Element {
	vp := viewport.Normalize()
	hits := s.index.QueryRect(vp.X, vp.Y, vp.Width, vp.Height)
	slices.SortFunc(hits, func(a, b element.Element) int {
		return s.store.IndexOf(element.ID(a)) - s.store.IndexOf(element.ID(b))
	})
	return hits
}

// HitTest returns the id of the top-most element under p.
func (s *Session) HitTest(p geometry.Point) (string, bool) {
	e, ok := s.selection.HitTest(p)
	if !ok {
		return "", false
	}
	return element.ID(e), true
}

func (s *Session) Selection() selection.State { return s.selection.State() }

func (s *Session) SelectionMode() selection.Mode { return s.selection.Mode() }

func (s *Session) SelectionBounds() (geometry.Rect, bool) { return s.selection.SelectionBounds() }

// SelectionBox returns the live drag box, if one is being dragged.
func (s *Session) SelectionBox() (geometry.Rect, bool) { return s.selection.Box() }

func (s *Session) CanUndo() bool { return s.history.CanUndo() }

func (s *Session) CanRedo() bool { return s.history.CanRedo() }

// Busy reports whether a local gesture is in progress.
func (s *Session) Busy() bool {
	return s.drawing != nil || s.erasing || s.selection.Mode() != selection.Idle
}

// --- Selection commands ---

func (s *Session) Select(ids []string) { s.selection.Select(ids) }

func (s *Session) SelectAll() { s.selection.SelectAll() }

func (s *Session) ClearSelection() { s.selection.Clear() }

// Delete removes the selected elements.
func (s *Session) Delete() []string {
	ids := s.selection.Delete()
	if len(ids) == 0 {
		return nil
	}
	s.publish(DrawingUpdate{Action: ActionDelete, IDs: ids})
	s.commit()
	return ids
}

// Duplicate copies the selection and returns the new ids.
func (s *Session) Duplicate() []string {
	copies := s.selection.Duplicate()
	if len(copies) == 0 {
		return nil
	}
	s.publish(DrawingUpdate{Action: ActionUpsert, Elements: cloneAll(copies)})
	s.commit()
	return ids(copies)
}

func (s *Session) BringToFront() bool {
	if !s.selection.BringToFront() {
		return false
	}
	s.publishOrder()
	s.commit()
	return true
}

func (s *Session) SendToBack() bool {
	if !s.selection.SendToBack() {
		return false
	}
	s.publishOrder()
	s.commit()
	return true
}

// --- Content commands ---

// AddText places a text element at p and selects it.
func (s *Session) AddText(p geometry.Point, text string, fontSize float64) string {
	e := &element.Text{
		Common:   s.newCommon(),
		Box:      element.Box{X: p.X, Y: p.Y, Width: textWidth(text, fontSize), Height: fontSize * 1.2},
		Text:     text,
		FontSize: fontSize,
	}
	s.add(e)
	return e.ID
}

// AddImage places an image at p, sized to its natural dimensions, and
// selects it.
func (s *Session) AddImage(p geometry.Point, src string, width, height float64) string {
	e := &element.Image{
		Common:         s.newCommon(),
		Box:            element.Box{X: p.X, Y: p.Y, Width: width, Height: height},
		Src:            src,
		OriginalWidth:  width,
		OriginalHeight: height,
	}
	s.add(e)
	return e.ID
}

// SetText replaces the content of a text element.
func (s *Session) SetText(id, text string) error {
	e, ok := s.store.Get(id)
	if !ok {
		return ErrNotFound
	}
	t, ok := e.(*element.Text)
	if !ok {
		return ErrNotText
	}
	next := t.Clone().(*element.Text)
	next.Text = text
	next.Width = max(next.Width, textWidth(text, next.FontSize))
	s.put(next)
	s.commit()
	return nil
}

// Clear removes every element.
func (s *Session) Clear() {
	if s.store.Len() == 0 {
		return
	}
	s.abortGesture()
	s.store.Clear()
	s.index.Clear()
	s.selection.Clear()
	s.publish(DrawingUpdate{Action: ActionClear})
	s.commit()
}

// --- History ---

// Undo steps back one committed change and publishes the difference.
// An in-progress gesture is cancelled first.
func (s *Session) Undo() bool {
	s.Cancel()
	before := s.history.Present()
	if !s.history.Undo() {
		return false
	}
	s.restore(before, s.history.Present())
	return true
}

// Redo re-applies one undone change and publishes the difference.
func (s *Session) Redo() bool {
	s.Cancel()
	before := s.history.Present()
	if !s.history.Redo() {
		return false
	}
	s.restore(before, s.history.Present())
	return true
}

// commit records the current canvas as a history entry.
func (s *Session) commit() {
	s.history.SetState(s.store.Snapshot())
}

// restore loads a history snapshot into the store and publishes what changed.
func (s *Session) restore(before, after element.List) {
	s.store.Restore(after)
	s.index.Rebuild(s.store.All())
	s.selection.Prune()
	for _, u := range Diff(before, after) {
		s.publish(u)
	}
}

// --- Helpers ---

func (s *Session) newCommon() element.Common {
	c := s.style
	if c.Opacity != nil {
		o := *c.Opacity
		c.Opacity = &o
	}
	c.ID = element.NewID()
	return c
}

func (s *Session) add(e element.Element) {
	s.put(e)
	s.selection.Select([]string{element.ID(e)})
	s.commit()
}

// put stores e, registers it in the index and publishes it.
func (s *Session) put(e element.Element) {
	s.store.Upsert(e)
	s.index.Insert(e)
	s.publish(DrawingUpdate{Action: ActionUpsert, Elements: element.List{e.Clone()}})
}

func (s *Session) publish(u DrawingUpdate) {
	if s.publisher == nil {
		return
	}
	u.RoomID = s.roomID
	s.publisher.Publish(u)
}

func (s *Session) publishOrder() {
	s.publish(DrawingUpdate{Action: ActionOrder, Order: s.store.IDs()})
}

func (s *Session) publishIDs(changed []string) {
	if len(changed) == 0 {
		return
	}
	var list element.List
	for _, id := range changed {
		if e, ok := s.store.Get(id); ok {
			list = append(list, e.Clone())
		}
	}
	if len(list) > 0 {
		s.publish(DrawingUpdate{Action: ActionUpsert, Elements: list})
	}
}

func cloneAll(in []element.Element) element.List {
	out := make(element.List, len(in))
	for i, e := range in {
		out[i] = e.Clone()
	}
	return out
}

// textWidth is a layout-free estimate used to give new text a hit area.
func textWidth(text string, fontSize float64) float64 {
	return max(float64(len([]rune(text)))*fontSize*0.6, fontSize)
}
