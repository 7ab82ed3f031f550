package canvas

import (
	"errors"
	"reflect"
	"testing"

	"github.com/sketchroom/sketchroom/internal/element"
	"github.com/sketchroom/sketchroom/internal/geometry"
)

type recorder struct {
	updates []DrawingUpdate
}

func (r *recorder) Publish(u DrawingUpdate) { r.updates = append(r.updates, u) }

func (r *recorder) last() DrawingUpdate {
	if len(r.updates) == 0 {
		return DrawingUpdate{}
	}
	return r.updates[len(r.updates)-1]
}

func rect(id string, x, y, w, h float64) *element.Rectangle {
	return &element.Rectangle{
		Common: element.Common{ID: id, Color: "#000000", StrokeWidth: 2},
		Box:    element.Box{X: x, Y: y, Width: w, Height: h},
	}
}

func pt(x, y float64) geometry.Point { return geometry.Point{X: x, Y: y} }

func drag(s *Session, from, to geometry.Point, steps int) {
	s.PointerDown(from, false)
	for i := 1; i <= steps; i++ {
		f := float64(i) / float64(steps)
		s.PointerMove(pt(from.X+(to.X-from.X)*f, from.Y+(to.Y-from.Y)*f))
	}
	s.PointerUp(to)
}

func TestDrawRectangle_CommitsOnce(t *testing.T) {
	rec := &recorder{}
	s := NewSession(WithRoom("room-1"), WithPublisher(rec))
	if err := s.SetTool(ToolRectangle); err != nil {
		t.Fatalf("SetTool: %v", err)
	}

	drag(s, pt(10, 10), pt(60, 70), 5)

	els := s.Elements()
	if len(els) != 1 {
		t.Fatalf("expected 1 element, got %d", len(els))
	}
	r, ok := els[0].(*element.Rectangle)
	if !ok {
		t.Fatalf("expected rectangle, got %T", els[0])
	}
	if got, want := r.Rect(), (geometry.Rect{X: 10, Y: 10, Width: 50, Height: 60}); got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}

	if len(rec.updates) < 2 {
		t.Fatalf("expected live updates while drawing, got %d", len(rec.updates))
	}
	for _, u := range rec.updates {
		if u.RoomID != "room-1" || u.Action != ActionUpsert {
			t.Fatalf("unexpected update %+v", u)
		}
	}

	if !s.Undo() {
		t.Fatal("expected undo to succeed")
	}
	if len(s.Elements()) != 0 {
		t.Fatalf("expected undo to remove the rectangle in one step, got %d elements", len(s.Elements()))
	}
	if s.CanUndo() {
		t.Fatal("expected a single history entry for the whole gesture")
	}
	if u := rec.last(); u.Action != ActionDelete || !reflect.DeepEqual(u.IDs, []string{r.ID}) {
		t.Fatalf("expected undo to publish delete of %s, got %+v", r.ID, u)
	}

	if !s.Redo() || len(s.Elements()) != 1 {
		t.Fatal("expected redo to restore the rectangle")
	}
}

func TestDrawRectangle_NegativeDragNormalized(t *testing.T) {
	s := NewSession()
	s.SetTool(ToolRectangle)

	drag(s, pt(100, 100), pt(40, 60), 3)

	r := s.Elements()[0].(*element.Rectangle)
	if got, want := r.Rect(), (geometry.Rect{X: 40, Y: 60, Width: 60, Height: 40}); got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestDrawClick_ClampedToMinimumSize(t *testing.T) {
	s := NewSession()
	s.SetTool(ToolCircle)

	s.PointerDown(pt(5, 5), false)
	s.PointerUp(pt(5, 5))

	c := s.Elements()[0].(*element.Circle)
	if c.Width != 10 || c.Height != 10 {
		t.Fatalf("expected 10x10 circle, got %vx%v", c.Width, c.Height)
	}
}

func TestDrawPencil_CollectsPoints(t *testing.T) {
	s := NewSession()
	s.SetTool(ToolPencil)

	s.PointerDown(pt(0, 0), false)
	s.PointerMove(pt(1, 1))
	s.PointerMove(pt(1, 1))
	s.PointerMove(pt(2, 3))
	s.PointerUp(pt(2, 3))

	p := s.Elements()[0].(*element.Pencil)
	want := []geometry.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 3}}
	if !reflect.DeepEqual(p.Points, want) {
		t.Fatalf("expected %v, got %v", want, p.Points)
	}
}

func TestDrawLine_TwoPoints(t *testing.T) {
	s := NewSession()
	s.SetTool(ToolArrow)

	drag(s, pt(0, 0), pt(30, 40), 4)

	a := s.Elements()[0].(*element.Arrow)
	if a.Start != pt(0, 0) || a.End != pt(30, 40) {
		t.Fatalf("unexpected arrow %+v", a.Segment)
	}
}

func TestMove_CommitsOneEntry(t *testing.T) {
	rec := &recorder{}
	s := NewSession(WithPublisher(rec))
	s.Load(element.List{rect("a", 0, 0, 100, 100)})

	drag(s, pt(50, 50), pt(70, 70), 4)

	a, _ := s.Get("a")
	if got := element.Bounds(a); got.X != 20 || got.Y != 20 {
		t.Fatalf("expected rectangle at (20,20), got %+v", got)
	}
	if len(rec.updates) != 4 {
		t.Fatalf("expected one update per move frame, got %d", len(rec.updates))
	}

	s.Undo()
	a, _ = s.Get("a")
	if got := element.Bounds(a); got.X != 0 || got.Y != 0 {
		t.Fatalf("expected undo to restore (0,0), got %+v", got)
	}
	if s.CanUndo() {
		t.Fatal("expected one history entry for the move")
	}
	if id, ok := s.HitTest(pt(5, 5)); !ok || id != "a" {
		t.Fatal("expected index to follow undo")
	}
}

func TestClickWithoutMove_NoHistory(t *testing.T) {
	s := NewSession()
	s.Load(element.List{rect("a", 0, 0, 100, 100)})

	s.PointerDown(pt(50, 50), false)
	s.PointerUp(pt(50, 50))

	if s.CanUndo() {
		t.Fatal("expected a click to leave history untouched")
	}
	if got := s.Selection().SelectedIDs; !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("expected a selected, got %v", got)
	}
}

func TestCancel_RestoresCommittedState(t *testing.T) {
	rec := &recorder{}
	s := NewSession(WithPublisher(rec))
	s.SetTool(ToolRectangle)

	s.PointerDown(pt(0, 0), false)
	s.PointerMove(pt(30, 30))
	id := element.ID(s.Elements()[0])
	s.Cancel()

	if len(s.Elements()) != 0 {
		t.Fatalf("expected cancelled shape to be dropped, got %d elements", len(s.Elements()))
	}
	if s.Busy() {
		t.Fatal("expected no gesture after cancel")
	}
	if u := rec.last(); u.Action != ActionDelete || !reflect.DeepEqual(u.IDs, []string{id}) {
		t.Fatalf("expected delete of %s to be published, got %+v", id, u)
	}
}

func TestCancel_MoveRestoresPosition(t *testing.T) {
	s := NewSession()
	s.Load(element.List{rect("a", 0, 0, 100, 100)})

	s.PointerDown(pt(50, 50), false)
	s.PointerMove(pt(90, 90))
	s.Cancel()

	a, _ := s.Get("a")
	if got := element.Bounds(a); got.X != 0 || got.Y != 0 {
		t.Fatalf("expected cancel to restore (0,0), got %+v", got)
	}
}

func TestEraseTool_RemovesTopMost(t *testing.T) {
	rec := &recorder{}
	s := NewSession(WithPublisher(rec))
	s.Load(element.List{rect("a", 0, 0, 100, 100), rect("b", 50, 50, 100, 100)})
	s.SetTool(ToolErase)

	s.PointerDown(pt(75, 75), false)
	s.PointerUp(pt(75, 75))

	if got := ids(s.Elements()); !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("expected only a to remain, got %v", got)
	}
	if u := rec.last(); u.Action != ActionDelete || !reflect.DeepEqual(u.IDs, []string{"b"}) {
		t.Fatalf("expected delete of b, got %+v", u)
	}

	s.Undo()
	if got := ids(s.Elements()); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("expected undo to restore both in order, got %v", got)
	}
}

func TestEraseTool_MissIsNoop(t *testing.T) {
	s := NewSession()
	s.Load(element.List{rect("a", 0, 0, 10, 10)})
	s.SetTool(ToolErase)

	s.PointerDown(pt(500, 500), false)
	s.PointerUp(pt(500, 500))

	if s.CanUndo() || len(s.Elements()) != 1 {
		t.Fatal("expected erase miss to change nothing")
	}
}

func TestSetTool_Unknown(t *testing.T) {
	s := NewSession()
	if err := s.SetTool("lasso"); err == nil {
		t.Fatal("expected error for unknown tool")
	}
	if s.Tool() != ToolSelect {
		t.Fatalf("expected tool to stay select, got %s", s.Tool())
	}
}

func TestDuplicateAndDelete(t *testing.T) {
	rec := &recorder{}
	s := NewSession(WithPublisher(rec))
	s.Load(element.List{rect("a", 0, 0, 10, 10)})
	s.Select([]string{"a"})

	copies := s.Duplicate()
	if len(copies) != 1 || copies[0] == "a" {
		t.Fatalf("expected one fresh id, got %v", copies)
	}
	if u := rec.last(); u.Action != ActionUpsert || element.ID(u.Elements[0]) != copies[0] {
		t.Fatalf("expected upsert of the copy, got %+v", u)
	}

	deleted := s.Delete()
	if !reflect.DeepEqual(deleted, copies) {
		t.Fatalf("expected the selected copy to be deleted, got %v", deleted)
	}
	if got := ids(s.Elements()); !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("expected only a, got %v", got)
	}

	s.Undo()
	s.Undo()
	if len(s.Elements()) != 1 || s.CanUndo() {
		t.Fatal("expected two undos to return to the loaded state")
	}
}

func TestBringToFront_PublishesOrder(t *testing.T) {
	rec := &recorder{}
	s := NewSession(WithPublisher(rec))
	s.Load(element.List{rect("a", 0, 0, 10, 10), rect("b", 0, 0, 10, 10)})
	s.Select([]string{"a"})

	if !s.BringToFront() {
		t.Fatal("expected z-order change")
	}
	if u := rec.last(); u.Action != ActionOrder || !reflect.DeepEqual(u.Order, []string{"b", "a"}) {
		t.Fatalf("expected order [b a], got %+v", u)
	}

	s.Undo()
	if u := rec.last(); u.Action != ActionOrder || !reflect.DeepEqual(u.Order, []string{"a", "b"}) {
		t.Fatalf("expected undo to publish order [a b], got %+v", u)
	}
}

func TestAddTextAndSetText(t *testing.T) {
	s := NewSession()
	id := s.AddText(pt(10, 10), "hi", 20)

	if got := s.Selection().SelectedIDs; !reflect.DeepEqual(got, []string{id}) {
		t.Fatalf("expected new text to be selected, got %v", got)
	}
	if err := s.SetText(id, "hello"); err != nil {
		t.Fatalf("SetText: %v", err)
	}
	e, _ := s.Get(id)
	if txt := e.(*element.Text); txt.Text != "hello" || txt.FontSize != 20 {
		t.Fatalf("unexpected text element %+v", txt)
	}

	s.Load(element.List{rect("r", 0, 0, 10, 10)})
	if err := s.SetText("r", "x"); !errors.Is(err, ErrNotText) {
		t.Fatalf("expected ErrNotText, got %v", err)
	}
	if err := s.SetText("missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAddImage_KeepsNaturalSize(t *testing.T) {
	s := NewSession()
	id := s.AddImage(pt(0, 0), "data:image/png;base64,AAAA", 200, 100)

	e, _ := s.Get(id)
	img := e.(*element.Image)
	if img.Width != 200 || img.Height != 100 || img.AspectRatio() != 2 {
		t.Fatalf("unexpected image %+v", img)
	}
}

func TestClear(t *testing.T) {
	rec := &recorder{}
	s := NewSession(WithPublisher(rec))
	s.Load(element.List{rect("a", 0, 0, 10, 10)})

	s.Clear()
	if len(s.Elements()) != 0 || rec.last().Action != ActionClear {
		t.Fatal("expected clear to empty the canvas and publish clear")
	}
	if _, ok := s.HitTest(pt(5, 5)); ok {
		t.Fatal("expected index to be cleared")
	}
}

func TestVisible_CullsAndKeepsZOrder(t *testing.T) {
	s := NewSession()
	s.Load(element.List{
		rect("c", 5, 5, 10, 10),
		rect("far", 500, 500, 10, 10),
		rect("a", 0, 0, 10, 10),
	})

	got := ids(s.Visible(geometry.Rect{X: 0, Y: 0, Width: 100, Height: 100}))
	if want := []string{"c", "a"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
