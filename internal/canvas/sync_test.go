package canvas

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/sketchroom/sketchroom/internal/element"
)

func TestDiff(t *testing.T) {
	a, b, c := rect("a", 0, 0, 10, 10), rect("b", 20, 0, 10, 10), rect("c", 40, 0, 10, 10)
	moved := rect("c", 45, 5, 10, 10)

	got := Diff(element.List{a, b, c}, element.List{moved, a})

	want := []DrawingUpdate{
		{Action: ActionDelete, IDs: []string{"b"}},
		{Action: ActionUpsert, Elements: element.List{moved}},
		{Action: ActionOrder, Order: []string{"c", "a"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestDiff_AppendOnTopNeedsNoOrder(t *testing.T) {
	a, b := rect("a", 0, 0, 10, 10), rect("b", 20, 0, 10, 10)

	got := Diff(element.List{a}, element.List{a, b})
	if len(got) != 1 || got[0].Action != ActionUpsert {
		t.Fatalf("expected a single upsert, got %+v", got)
	}
}

func TestDiff_Identical(t *testing.T) {
	a := rect("a", 0, 0, 10, 10)
	if got := Diff(element.List{a}, element.List{a.Clone()}); len(got) != 0 {
		t.Fatalf("expected no updates, got %+v", got)
	}
}

func TestParseUpdate(t *testing.T) {
	data := []byte(`{"roomId":"r1","action":"upsert","elements":[{"id":"a","type":"rectangle","color":"#ff0000","strokeWidth":2,"x":1,"y":2,"width":3,"height":4}]}`)

	u, err := ParseUpdate(data)
	if err != nil {
		t.Fatalf("ParseUpdate: %v", err)
	}
	if u.RoomID != "r1" || len(u.Elements) != 1 {
		t.Fatalf("unexpected update %+v", u)
	}
	r, ok := u.Elements[0].(*element.Rectangle)
	if !ok || r.Width != 3 || r.Color != "#ff0000" {
		t.Fatalf("unexpected element %+v", u.Elements[0])
	}

	if _, err := ParseUpdate([]byte(`{"action":"explode"}`)); err == nil {
		t.Fatal("expected unknown action to be rejected")
	}
	if _, err := ParseUpdate([]byte(`{"action":"upsert","elements":[{"type":"rectangle"}]}`)); err == nil {
		t.Fatal("expected element without id to be rejected")
	}
}

func TestDrawingUpdate_JSONShape(t *testing.T) {
	u := DrawingUpdate{RoomID: "r1", Action: ActionDelete, IDs: []string{"a"}}
	data, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if got, want := string(data), `{"roomId":"r1","action":"delete","ids":["a"]}`; got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestApplyRemote_LastWriterWins(t *testing.T) {
	rec := &recorder{}
	s := NewSession(WithPublisher(rec))
	s.Load(element.List{rect("a", 0, 0, 10, 10)})

	err := s.ApplyRemote(DrawingUpdate{Action: ActionUpsert, Elements: element.List{rect("a", 200, 200, 10, 10)}})
	if err != nil {
		t.Fatalf("ApplyRemote: %v", err)
	}

	if id, ok := s.HitTest(pt(205, 205)); !ok || id != "a" {
		t.Fatal("expected remote position to be indexed")
	}
	if _, ok := s.HitTest(pt(5, 5)); ok {
		t.Fatal("expected old position to be gone from the index")
	}
	if s.CanUndo() {
		t.Fatal("expected remote update not to add history")
	}
	if len(rec.updates) != 0 {
		t.Fatal("expected remote update not to be re-published")
	}
}

func TestApplyRemote_DeletePrunesSelection(t *testing.T) {
	s := NewSession()
	s.Load(element.List{rect("a", 0, 0, 10, 10), rect("b", 20, 0, 10, 10)})
	s.SelectAll()

	s.ApplyRemote(DrawingUpdate{Action: ActionDelete, IDs: []string{"a"}})

	if got := s.Selection().SelectedIDs; !reflect.DeepEqual(got, []string{"b"}) {
		t.Fatalf("expected selection [b], got %v", got)
	}
}

func TestApplyRemote_OrderAndClear(t *testing.T) {
	s := NewSession()
	s.Load(element.List{rect("a", 0, 0, 10, 10), rect("b", 0, 0, 10, 10)})

	s.ApplyRemote(DrawingUpdate{Action: ActionOrder, Order: []string{"b", "a"}})
	if id, _ := s.HitTest(pt(5, 5)); id != "a" {
		t.Fatalf("expected a on top after reorder, got %s", id)
	}

	s.ApplyRemote(DrawingUpdate{Action: ActionClear})
	if len(s.Elements()) != 0 {
		t.Fatal("expected clear to empty the canvas")
	}
}

func TestApplyRemote_SurvivesLocalCancel(t *testing.T) {
	s := NewSession()
	s.SetTool(ToolPencil)
	s.PointerDown(pt(0, 0), false)
	s.PointerMove(pt(5, 5))

	s.ApplyRemote(DrawingUpdate{Action: ActionUpsert, Elements: element.List{rect("peer", 100, 100, 10, 10)}})
	s.Cancel()

	if got := ids(s.Elements()); !reflect.DeepEqual(got, []string{"peer"}) {
		t.Fatalf("expected only the peer element after cancel, got %v", got)
	}
}

func TestApplyRemote_LocalUndoKeepsPeerWork(t *testing.T) {
	rec := &recorder{}
	s := NewSession(WithPublisher(rec))
	s.SetTool(ToolRectangle)
	drag(s, pt(0, 0), pt(50, 50), 3)
	mine := ids(s.Elements())[0]

	peer := &element.Circle{
		Common: element.Common{ID: "peer", Color: "#ff0000", StrokeWidth: 2},
		Box:    element.Box{X: 200, Y: 200, Width: 40, Height: 40},
	}
	if err := s.ApplyRemote(DrawingUpdate{Action: ActionUpsert, Elements: element.List{peer}}); err != nil {
		t.Fatalf("ApplyRemote: %v", err)
	}
	rec.updates = nil

	if !s.Undo() {
		t.Fatal("expected the local rectangle to be undoable")
	}
	if got := ids(s.Elements()); !reflect.DeepEqual(got, []string{"peer"}) {
		t.Fatalf("expected only the peer element after undo, got %v", got)
	}
	if want := []DrawingUpdate{{Action: ActionDelete, IDs: []string{mine}}}; !reflect.DeepEqual(rec.updates, want) {
		t.Fatalf("expected undo to publish only the local delete, got %+v", rec.updates)
	}
	if s.CanUndo() {
		t.Fatal("expected the peer element not to be undoable")
	}

	rec.updates = nil
	if !s.Redo() {
		t.Fatal("expected redo")
	}
	if got := ids(s.Elements()); !reflect.DeepEqual(got, []string{mine, "peer"}) {
		t.Fatalf("expected redo to restore the rectangle below the peer element, got %v", got)
	}
	for _, u := range rec.updates {
		if u.Action == ActionDelete || u.Action == ActionClear {
			t.Fatalf("expected redo not to remove anything, got %+v", u)
		}
	}
}

func TestApplyRemote_PeerDeleteSurvivesLocalUndo(t *testing.T) {
	s := NewSession()
	s.Load(element.List{rect("a", 0, 0, 10, 10), rect("b", 20, 0, 10, 10)})
	s.Select([]string{"a"})
	s.Delete()

	s.ApplyRemote(DrawingUpdate{Action: ActionDelete, IDs: []string{"b"}})
	s.Undo()

	if got := ids(s.Elements()); !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("expected undo to restore a without resurrecting b, got %v", got)
	}
}

func TestApplyRemote_UnknownAction(t *testing.T) {
	s := NewSession()
	if err := s.ApplyRemote(DrawingUpdate{Action: "explode"}); err == nil {
		t.Fatal("expected error")
	}
}
