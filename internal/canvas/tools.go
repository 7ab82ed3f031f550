package canvas

import (
	"fmt"

	"github.com/sketchroom/sketchroom/internal/element"
	"github.com/sketchroom/sketchroom/internal/geometry"
	"github.com/sketchroom/sketchroom/internal/selection"
)

type Tool string

const (
	ToolSelect    Tool = "select"
	ToolPencil    Tool = "pencil"
	ToolEraser    Tool = "eraser"
	ToolRectangle Tool = "rectangle"
	ToolCircle    Tool = "circle"
	ToolLine      Tool = "line"
	ToolArrow     Tool = "arrow"
	// ToolErase removes the top-most element under the pointer.
	ToolErase Tool = "erase"
)

// drawKinds maps the drawing tools to the element kind they create.
var drawKinds = map[Tool]element.Kind{
	ToolPencil:    element.KindPencil,
	ToolEraser:    element.KindEraser,
	ToolRectangle: element.KindRectangle,
	ToolCircle:    element.KindCircle,
	ToolLine:      element.KindLine,
	ToolArrow:     element.KindArrow,
}

// SetTool switches the active tool. An in-progress gesture is cancelled;
// switching away from select clears the selection.
func (s *Session) SetTool(t Tool) error {
	if _, ok := drawKinds[t]; !ok && t != ToolSelect && t != ToolErase {
		return fmt.Errorf("unknown tool %q", t)
	}
	s.Cancel()
	if t != ToolSelect {
		s.selection.Clear()
	}
	s.tool = t
	return nil
}

// PointerDown starts a gesture with the active tool. The returned event is
// only meaningful for the select tool.
func (s *Session) PointerDown(p geometry.Point, shift bool) selection.Event {
	if s.Busy() {
		s.finishGesture(p)
	}

	switch s.tool {
	case ToolSelect:
		return s.selection.PointerDown(p, shift)
	case ToolErase:
		s.erasing = true
		s.erased = false
		s.eraseAt(p)
		return selection.Event{}
	}

	kind := drawKinds[s.tool]
	c := s.newCommon()
	e, err := element.New(kind, c.ID, c, p)
	if err != nil {
		return selection.Event{}
	}
	s.drawing = e
	s.origin = p
	s.put(e)
	return selection.Event{}
}

// PointerMove advances the active gesture.
func (s *Session) PointerMove(p geometry.Point) {
	switch {
	case s.drawing != nil:
		s.extend(s.drawing, p)
		s.put(s.drawing)
	case s.erasing:
		s.eraseAt(p)
	default:
		s.publishIDs(s.selection.PointerMove(p))
	}
}

// PointerUp finishes the active gesture and commits it to history.
func (s *Session) PointerUp(p geometry.Point) {
	s.finishGesture(p)
}

// Cancel abandons the active gesture. The canvas returns to the last
// committed state and the difference is published.
func (s *Session) Cancel() {
	if !s.Busy() {
		return
	}
	s.abortGesture()

	before := s.store.Snapshot()
	committed := s.history.Present()
	s.store.Restore(committed)
	s.index.Rebuild(s.store.All())
	s.selection.Prune()
	for _, u := range Diff(before, committed) {
		s.publish(u)
	}
}

func (s *Session) finishGesture(p geometry.Point) {
	switch {
	case s.drawing != nil:
		e := s.drawing
		s.drawing = nil
		s.extend(e, p)
		element.Normalize(e)
		clampBox(e)
		s.put(e)
		s.commit()
	case s.erasing:
		s.erasing = false
		if s.erased {
			s.commit()
		}
		s.erased = false
	default:
		switch s.selection.PointerUp(p) {
		case selection.Moving, selection.Resizing:
			s.commit()
		}
	}
}

// abortGesture drops tool and selection gesture state without touching the
// store.
func (s *Session) abortGesture() {
	s.drawing = nil
	s.erasing = false
	s.erased = false
	s.selection.Cancel()
}

// extend grows the element being drawn towards p. Boxes keep raw, possibly
// negative, extents until the gesture ends.
func (s *Session) extend(e element.Element, p geometry.Point) {
	switch d := e.(type) {
	case *element.Pencil:
		d.Points = appendPoint(d.Points, p)
	case *element.Eraser:
		d.Points = appendPoint(d.Points, p)
	case *element.Line:
		d.End = p
	case *element.Arrow:
		d.End = p
	case element.Boxed:
		d.SetRect(geometry.Rect{X: s.origin.X, Y: s.origin.Y, Width: p.X - s.origin.X, Height: p.Y - s.origin.Y})
	}
}

func appendPoint(points []geometry.Point, p geometry.Point) []geometry.Point {
	if n := len(points); n > 0 && points[n-1] == p {
		return points
	}
	return append(points, p)
}

// clampBox enforces the minimum extent on a freshly drawn shape.
func clampBox(e element.Element) {
	b, ok := e.(element.Boxed)
	if !ok {
		return
	}
	r := b.Rect()
	r.Width = max(r.Width, selection.DefaultMinSize)
	r.Height = max(r.Height, selection.DefaultMinSize)
	b.SetRect(r)
}

func (s *Session) eraseAt(p geometry.Point) {
	id, ok := s.HitTest(p)
	if !ok {
		return
	}
	s.store.Remove(id)
	s.index.Remove(id)
	s.selection.Prune()
	s.erased = true
	s.publish(DrawingUpdate{Action: ActionDelete, IDs: []string{id}})
}
