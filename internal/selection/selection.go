// Package selection turns pointer gestures into selection changes and
// element transforms (move, resize).
package selection

import (
	"math"
	"slices"
	"time"

	"github.com/sketchroom/sketchroom/internal/element"
	"github.com/sketchroom/sketchroom/internal/geometry"
	"github.com/sketchroom/sketchroom/internal/spatial"
)

const (
	DefaultMinSize           = 10.0
	DefaultDuplicateOffset   = 20.0
	DefaultHandleSize        = 8.0
	DefaultDoubleClickWindow = 300 * time.Millisecond
)

type Mode int

const (
	Idle Mode = iota
	DraggingBox
	Moving
	Resizing
)

func (m Mode) String() string {
	switch m {
	case DraggingBox:
		return "dragging-box"
	case Moving:
		return "moving"
	case Resizing:
		return "resizing"
	default:
		return "idle"
	}
}

type TransformType string

const (
	TransformNone   TransformType = "none"
	TransformMove   TransformType = "move"
	TransformResize TransformType = "resize"
)

type Handle string

const (
	HandleNone        Handle = ""
	HandleTopLeft     Handle = "top-left"
	HandleTopRight    Handle = "top-right"
	HandleBottomLeft  Handle = "bottom-left"
	HandleBottomRight Handle = "bottom-right"
)

var cornerHandles = [4]Handle{HandleTopLeft, HandleTopRight, HandleBottomLeft, HandleBottomRight}

// State is the transient selection of one client. It is never replicated.
type State struct {
	SelectedIDs   []string
	IsMultiSelect bool
	LastClickedID string
	LastClickTime time.Time
}

// TransformHandles is the gesture state captured when a move or resize
// starts.
type TransformHandles struct {
	IsTransforming bool
	Type           TransformType
	ActiveHandle   Handle
	InitialMouse   geometry.Point
	Initial        geometry.Rect
}

// Event describes what a pointer-down did.
type Event struct {
	HitID       string
	DoubleClick bool
	Mode        Mode
}

type Option func(*Engine)

func WithMinSize(v float64) Option         { return func(en *Engine) { en.minSize = v } }
func WithDuplicateOffset(v float64) Option { return func(en *Engine) { en.dupOffset = v } }
func WithHandleSize(v float64) Option      { return func(en *Engine) { en.handleSize = v } }

func WithDoubleClickWindow(d time.Duration) Option {
	return func(en *Engine) { en.doubleClick = d }
}

// WithClock overrides the time source used for double-click detection.
func WithClock(now func() time.Time) Option {
	return func(en *Engine) { en.now = now }
}

// Engine is the selection/transform state machine over an element store and
// its spatial index. Every in-place mutation is re-registered in the index.
type Engine struct {
	store *element.Store
	index *spatial.Index

	mode      Mode
	state     State
	transform TransformHandles
	anchor    geometry.Point
	corner    geometry.Point
	origins   []element.Element

	minSize     float64
	dupOffset   float64
	handleSize  float64
	doubleClick time.Duration
	now         func() time.Time
}

func New(store *element.Store, index *spatial.Index, opts ...Option) *Engine {
	en := &Engine{
		store:       store,
		index:       index,
		transform:   TransformHandles{Type: TransformNone},
		minSize:     DefaultMinSize,
		dupOffset:   DefaultDuplicateOffset,
		handleSize:  DefaultHandleSize,
		doubleClick: DefaultDoubleClickWindow,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(en)
	}
	return en
}

func (en *Engine) Mode() Mode { return en.mode }

func (en *Engine) State() State {
	s := en.state
	s.SelectedIDs = slices.Clone(en.state.SelectedIDs)
	return s
}

func (en *Engine) Transform() TransformHandles { return en.transform }

// SelectedIDs returns the selection in the order it was built.
func (en *Engine) SelectedIDs() []string {
	return slices.Clone(en.state.SelectedIDs)
}

func (en *Engine) IsSelected(id string) bool {
	return slices.Contains(en.state.SelectedIDs, id)
}

// Selected returns the selected elements in z-order.
func (en *Engine) Selected() []element.Element {
	var out []element.Element
	for _, e := range en.store.All() {
		if en.IsSelected(element.ID(e)) {
			out = append(out, e)
		}
	}
	return out
}

// SelectionBounds returns the union of the selected elements' bounds.
func (en *Engine) SelectionBounds() (geometry.Rect, bool) {
	sel := en.Selected()
	if len(sel) == 0 {
		return geometry.Rect{}, false
	}
	r := element.Bounds(sel[0])
	for _, e := range sel[1:] {
		r = r.Union(element.Bounds(e))
	}
	return r, true
}

// Box returns the live drag box while in DraggingBox mode.
func (en *Engine) Box() (geometry.Rect, bool) {
	if en.mode != DraggingBox {
		return geometry.Rect{}, false
	}
	return geometry.RectFromPoints(en.anchor, en.corner), true
}

// HitTest returns the top-most element under p.
func (en *Engine) HitTest(p geometry.Point) (element.Element, bool) {
	var top element.Element
	topZ := -1
	for _, e := range en.index.QueryPoint(p, element.HitTolerance) {
		if !element.Contains(e, p) {
			continue
		}
		if z := en.store.IndexOf(element.ID(e)); z > topZ {
			top, topZ = e, z
		}
	}
	return top, top != nil
}

// HandleAt returns the resize handle of the single selected element under p.
func (en *Engine) HandleAt(p geometry.Point) Handle {
	if len(en.state.SelectedIDs) != 1 {
		return HandleNone
	}
	e, ok := en.store.Get(en.state.SelectedIDs[0])
	if !ok {
		return HandleNone
	}

	corners := element.Bounds(e).Corners()
	for i, c := range corners {
		if math.Abs(p.X-c.X) <= en.handleSize && math.Abs(p.Y-c.Y) <= en.handleSize {
			return cornerHandles[i]
		}
	}
	return HandleNone
}

// PointerDown starts a gesture. Without shift: a handle of a single selection
// starts a resize, a hit selects the element and starts a move (a hit on an
// already selected element keeps a multi-selection so it moves as a group),
// and a miss clears the selection and starts a drag box. With shift: a hit
// toggles membership, a miss does nothing.
func (en *Engine) PointerDown(p geometry.Point, shift bool) Event {
	if en.mode != Idle {
		en.endGesture()
	}

	if !shift {
		if h := en.HandleAt(p); h != HandleNone {
			en.BeginResize(h, p)
			return Event{HitID: en.state.SelectedIDs[0], Mode: en.mode}
		}
	}

	hit, ok := en.HitTest(p)
	if !ok {
		if !shift {
			en.setSelection(nil)
			en.mode = DraggingBox
			en.anchor, en.corner = p, p
		}
		return Event{Mode: en.mode}
	}

	id := element.ID(hit)
	now := en.now()
	ev := Event{
		HitID:       id,
		DoubleClick: id == en.state.LastClickedID && now.Sub(en.state.LastClickTime) <= en.doubleClick,
	}
	en.state.LastClickedID = id
	en.state.LastClickTime = now

	if shift {
		en.toggle(id)
		ev.Mode = en.mode
		return ev
	}

	if !en.IsSelected(id) {
		en.setSelection([]string{id})
	}
	en.BeginMove(p)
	ev.Mode = en.mode
	return ev
}

// PointerMove advances the active gesture and returns the ids of elements
// it mutated.
func (en *Engine) PointerMove(p geometry.Point) []string {
	switch en.mode {
	case DraggingBox:
		en.corner = p
		return nil
	case Moving:
		return en.applyMove(p)
	case Resizing:
		return en.applyResize(p)
	}
	return nil
}

// PointerUp finishes the active gesture and returns the mode that ended.
// A drag box selects every element whose bounds lie fully inside it.
func (en *Engine) PointerUp(p geometry.Point) Mode {
	ended := en.mode
	if ended == DraggingBox {
		en.corner = p
		box := geometry.RectFromPoints(en.anchor, en.corner)
		var picked []string
		for _, e := range en.index.QueryRect(box.X, box.Y, box.Width, box.Height) {
			if box.ContainsRect(element.Bounds(e)) {
				picked = append(picked, element.ID(e))
			}
		}
		slices.SortFunc(picked, func(a, b string) int {
			return en.store.IndexOf(a) - en.store.IndexOf(b)
		})
		en.setSelection(picked)
	}
	en.endGesture()
	return ended
}

// Cancel abandons the active gesture, putting transformed elements back to
// their state at gesture start. It returns the restored ids.
func (en *Engine) Cancel() []string {
	var restored []string
	if en.mode == Moving || en.mode == Resizing {
		for _, o := range en.origins {
			id := element.ID(o)
			if _, ok := en.store.Get(id); !ok {
				continue
			}
			e := o.Clone()
			en.store.Upsert(e)
			en.index.Insert(e)
			restored = append(restored, id)
		}
	}
	en.endGesture()
	return restored
}

// BeginMove snapshots every selected element so that each later pointer
// move translates all of them by the same delta from the gesture start.
func (en *Engine) BeginMove(p geometry.Point) bool {
	sel := en.Selected()
	if len(sel) == 0 {
		return false
	}

	en.origins = en.origins[:0]
	for _, e := range sel {
		en.origins = append(en.origins, e.Clone())
	}
	initial, _ := en.SelectionBounds()
	en.mode = Moving
	en.transform = TransformHandles{
		IsTransforming: true,
		Type:           TransformMove,
		InitialMouse:   p,
		Initial:        initial,
	}
	return true
}

// BeginResize starts resizing the single selected element from handle.
// Multi-selections do not resize.
func (en *Engine) BeginResize(handle Handle, p geometry.Point) bool {
	if len(en.state.SelectedIDs) != 1 || handle == HandleNone {
		return false
	}
	e, ok := en.store.Get(en.state.SelectedIDs[0])
	if !ok {
		return false
	}

	en.origins = append(en.origins[:0], e.Clone())
	en.mode = Resizing
	en.transform = TransformHandles{
		IsTransforming: true,
		Type:           TransformResize,
		ActiveHandle:   handle,
		InitialMouse:   p,
		Initial:        element.Bounds(e),
	}
	return true
}

func (en *Engine) applyMove(p geometry.Point) []string {
	dx, dy := p.Sub(en.transform.InitialMouse)
	var changed []string
	for _, o := range en.origins {
		id := element.ID(o)
		if _, ok := en.store.Get(id); !ok {
			continue
		}
		e := o.Clone()
		e.Translate(dx, dy)
		en.store.Upsert(e)
		en.index.Insert(e)
		changed = append(changed, id)
	}
	return changed
}

func (en *Engine) applyResize(p geometry.Point) []string {
	if len(en.origins) != 1 {
		return nil
	}
	o := en.origins[0]
	id := element.ID(o)
	if _, ok := en.store.Get(id); !ok {
		return nil
	}

	aspect := 0.0
	if img, ok := o.(*element.Image); ok {
		aspect = img.AspectRatio()
	}
	dx, dy := p.Sub(en.transform.InitialMouse)
	box := ResizeBox(en.transform.ActiveHandle, en.transform.Initial, dx, dy, aspect, en.minSize)

	e := o.Clone()
	element.Fit(e, o, box)
	en.store.Upsert(e)
	en.index.Insert(e)
	return []string{id}
}

// ResizeBox computes the new box for dragging handle by (dx, dy) from
// initial. The handle's opposite corner stays anchored; each dimension is
// clamped to max(minSize, |dimension|). A positive aspect ratio (width over
// height) is preserved, with the dominant drag axis choosing which dimension
// leads.
func ResizeBox(handle Handle, initial geometry.Rect, dx, dy, aspect, minSize float64) geometry.Rect {
	w, h := initial.Width, initial.Height
	switch handle {
	case HandleBottomRight:
		w, h = w+dx, h+dy
	case HandleBottomLeft:
		w, h = w-dx, h+dy
	case HandleTopRight:
		w, h = w+dx, h-dy
	case HandleTopLeft:
		w, h = w-dx, h-dy
	}
	w = math.Max(minSize, math.Abs(w))
	h = math.Max(minSize, math.Abs(h))

	if aspect > 0 {
		if math.Abs(dx) >= math.Abs(dy) {
			h = w / aspect
		} else {
			w = h * aspect
		}
		if w < minSize {
			w, h = minSize, minSize/aspect
		}
		if h < minSize {
			w, h = minSize*aspect, minSize
		}
	}

	x, y := initial.X, initial.Y
	if handle == HandleTopLeft || handle == HandleBottomLeft {
		x = initial.MaxX() - w
	}
	if handle == HandleTopLeft || handle == HandleTopRight {
		y = initial.MaxY() - h
	}
	return geometry.Rect{X: x, Y: y, Width: w, Height: h}
}

func (en *Engine) endGesture() {
	en.mode = Idle
	clear(en.origins)
	en.origins = en.origins[:0]
	en.transform = TransformHandles{Type: TransformNone}
}

func (en *Engine) setSelection(ids []string) {
	en.state.SelectedIDs = ids
	en.state.IsMultiSelect = len(ids) > 1
}

func (en *Engine) toggle(id string) {
	ids := slices.Clone(en.state.SelectedIDs)
	if i := slices.Index(ids, id); i >= 0 {
		ids = slices.Delete(ids, i, i+1)
	} else {
		ids = append(ids, id)
	}
	en.setSelection(ids)
}

// Select replaces the selection with the stored elements among ids.
func (en *Engine) Select(ids []string) {
	var keep []string
	for _, id := range ids {
		if _, ok := en.store.Get(id); ok && !slices.Contains(keep, id) {
			keep = append(keep, id)
		}
	}
	en.setSelection(keep)
}

func (en *Engine) SelectAll() {
	en.setSelection(en.store.IDs())
}

func (en *Engine) Clear() {
	en.setSelection(nil)
}

// Prune drops selected ids that are no longer stored, e.g. after a remote
// delete or an undo.
func (en *Engine) Prune() {
	en.Select(en.state.SelectedIDs)
}

// Delete removes the selected elements and returns their ids.
func (en *Engine) Delete() []string {
	if len(en.state.SelectedIDs) == 0 {
		return nil
	}
	var ids []string
	for _, e := range en.store.Remove(en.state.SelectedIDs...) {
		id := element.ID(e)
		en.index.Remove(id)
		ids = append(ids, id)
	}
	en.setSelection(nil)
	return ids
}

// Duplicate copies the selected elements under fresh ids, offset by the
// duplicate offset, places the copies on top and selects them.
func (en *Engine) Duplicate() []element.Element {
	var copies []element.Element
	var ids []string
	for _, e := range en.Selected() {
		c := e.Clone()
		c.Attrs().ID = element.NewID()
		c.Translate(en.dupOffset, en.dupOffset)
		en.store.Upsert(c)
		en.index.Insert(c)
		copies = append(copies, c)
		ids = append(ids, element.ID(c))
	}
	if len(copies) > 0 {
		en.setSelection(ids)
	}
	return copies
}

// BringToFront raises the selection to the top of the z-order.
func (en *Engine) BringToFront() bool {
	if len(en.state.SelectedIDs) == 0 {
		return false
	}
	return en.store.BringToFront(en.state.SelectedIDs)
}

// SendToBack lowers the selection to the bottom of the z-order.
func (en *Engine) SendToBack() bool {
	if len(en.state.SelectedIDs) == 0 {
		return false
	}
	return en.store.SendToBack(en.state.SelectedIDs)
}
