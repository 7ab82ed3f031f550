package element

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/sketchroom/sketchroom/internal/geometry"
)

func rect(id string, x, y, w, h float64) *Rectangle {
	return &Rectangle{Common: Common{ID: id, Color: "#000", StrokeWidth: 2}, Box: Box{X: x, Y: y, Width: w, Height: h}}
}

func TestContains_Rectangle(t *testing.T) {
	r := rect("r", 0, 0, 100, 50)
	if !Contains(r, geometry.Point{X: 50, Y: 25}) {
		t.Error("expected (50,25) inside rectangle")
	}
	if Contains(r, geometry.Point{X: 150, Y: 25}) {
		t.Error("expected (150,25) outside rectangle")
	}
}

func TestContains_NegativeExtentRectangle(t *testing.T) {
	// Raw drag deltas may be negative before normalization.
	r := rect("r", 100, 50, -100, -50)
	if !Contains(r, geometry.Point{X: 50, Y: 25}) {
		t.Error("expected hit inside un-normalized rectangle")
	}
}

func TestContains_Circle(t *testing.T) {
	c := &Circle{Common: Common{ID: "c"}, Box: Box{X: 0, Y: 0, Width: 100, Height: 50}}

	if !Contains(c, geometry.Point{X: 50, Y: 25}) {
		t.Error("expected center inside ellipse")
	}
	if Contains(c, geometry.Point{X: 2, Y: 2}) {
		t.Error("expected bounding-box corner outside ellipse")
	}
	if !Contains(c, geometry.Point{X: 100, Y: 25}) {
		t.Error("expected rightmost point on ellipse boundary to hit")
	}
}

func TestContains_Line(t *testing.T) {
	l := &Line{Common: Common{ID: "l"}, Segment: Segment{Start: geometry.Point{X: 0, Y: 0}, End: geometry.Point{X: 100, Y: 100}}}

	if !Contains(l, geometry.Point{X: 52, Y: 48}) {
		t.Error("expected point near the diagonal to hit")
	}
	if Contains(l, geometry.Point{X: 100, Y: 0}) {
		t.Error("expected far point to miss")
	}
	if Contains(l, geometry.Point{X: 120, Y: 120}) {
		t.Error("expected point beyond the end to miss")
	}
}

func TestContains_Pencil(t *testing.T) {
	p := &Pencil{Common: Common{ID: "p"}, Stroke: Stroke{Points: []geometry.Point{{X: 0, Y: 0}, {X: 30, Y: 0}, {X: 60, Y: 0}}}}

	if !Contains(p, geometry.Point{X: 31, Y: 5}) {
		t.Error("expected point near a sample to hit")
	}
	if Contains(p, geometry.Point{X: 15, Y: 12}) {
		t.Error("expected point away from every sample to miss")
	}
}

func TestContains_Deterministic(t *testing.T) {
	c := &Circle{Common: Common{ID: "c"}, Box: Box{X: 10, Y: 10, Width: 30, Height: 60}}
	p := geometry.Point{X: 25, Y: 12}
	first := Contains(c, p)
	for i := 0; i < 100; i++ {
		if Contains(c, p) != first {
			t.Fatal("hit test is not deterministic")
		}
	}
}

func TestPaddedBounds_PathPadsByStrokeWidth(t *testing.T) {
	l := &Line{Common: Common{ID: "l", StrokeWidth: 4}, Segment: Segment{Start: geometry.Point{X: 10, Y: 10}, End: geometry.Point{X: 20, Y: 30}}}
	got := PaddedBounds(l)
	want := geometry.Rect{X: 6, Y: 6, Width: 18, Height: 28}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}

	r := rect("r", 0, 0, 10, 10)
	if PaddedBounds(r) != Bounds(r) {
		t.Fatal("expected box elements to be unpadded")
	}
}

// Every point Contains accepts lies within PaddedBounds grown by the hit
// tolerance, which is the area a point query searches.
func TestContains_WithinPaddedBoundsPlusTolerance(t *testing.T) {
	elems := []Element{
		&Line{Common: Common{ID: "l", StrokeWidth: 1}, Segment: Segment{Start: geometry.Point{X: 0, Y: 0}, End: geometry.Point{X: 40, Y: 0}}},
		&Arrow{Common: Common{ID: "a", StrokeWidth: 12}, Segment: Segment{Start: geometry.Point{X: 0, Y: 0}, End: geometry.Point{X: 30, Y: 30}}},
		&Pencil{Common: Common{ID: "p"}, Stroke: Stroke{Points: []geometry.Point{{X: 5, Y: 5}, {X: 15, Y: 8}}}},
	}
	for _, e := range elems {
		area := PaddedBounds(e).Expand(HitTolerance)
		for x := -30.0; x <= 70; x += 0.5 {
			for y := -30.0; y <= 70; y += 0.5 {
				p := geometry.Point{X: x, Y: y}
				if Contains(e, p) && !area.Contains(p) {
					t.Fatalf("%s: %v hits but lies outside %+v", ID(e), p, area)
				}
			}
		}
	}
}

func TestFit_ScalesPathPoints(t *testing.T) {
	initial := &Pencil{Common: Common{ID: "p"}, Stroke: Stroke{Points: []geometry.Point{{X: 0, Y: 0}, {X: 10, Y: 20}}}}
	p := initial.Clone()

	Fit(p, initial, geometry.Rect{X: 100, Y: 100, Width: 20, Height: 10})

	got := p.(*Pencil).Points
	want := []geometry.Point{{X: 100, Y: 100}, {X: 120, Y: 110}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if initial.Points[1] != (geometry.Point{X: 10, Y: 20}) {
		t.Fatal("initial element must not be modified")
	}
}

func TestCloneIsDeep(t *testing.T) {
	op := 0.5
	p := &Pencil{Common: Common{ID: "p", Opacity: &op}, Stroke: Stroke{Points: []geometry.Point{{X: 1, Y: 1}}}}
	c := p.Clone().(*Pencil)

	c.Points[0].X = 99
	*c.Opacity = 1
	if p.Points[0].X != 1 || *p.Opacity != 0.5 {
		t.Fatal("clone shares state with original")
	}
}

func TestCodec_RoundTripsEveryKind(t *testing.T) {
	op := 0.4
	list := List{
		rect("r", 1, 2, 3, 4),
		&Circle{Common: Common{ID: "c", Opacity: &op}, Box: Box{X: 0, Y: 0, Width: 10, Height: 10}},
		&Text{Common: Common{ID: "t"}, Box: Box{X: 5, Y: 5, Width: 80, Height: 20}, Text: "hello", FontSize: 16},
		&Image{Common: Common{ID: "i"}, Box: Box{Width: 200, Height: 100}, Src: "a.png", OriginalWidth: 200, OriginalHeight: 100},
		&Pencil{Common: Common{ID: "p"}, Stroke: Stroke{Points: []geometry.Point{{X: 1, Y: 2}, {X: 3, Y: 4}}}},
		&Eraser{Common: Common{ID: "e"}, Stroke: Stroke{Points: []geometry.Point{{X: 1, Y: 2}}}},
		&Line{Common: Common{ID: "l"}, Segment: Segment{End: geometry.Point{X: 5, Y: 5}}},
		&Arrow{Common: Common{ID: "a"}, Segment: Segment{Start: geometry.Point{X: 1}, End: geometry.Point{Y: 1}}},
	}

	data, err := json.Marshal(list)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got List
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(list, got) {
		t.Fatalf("round trip mismatch:\n%s", data)
	}
}

func TestDecode_NormalizesNegativeBox(t *testing.T) {
	e, err := Decode([]byte(`{"id":"r","type":"rectangle","x":100,"y":100,"width":-40,"height":-10}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := e.(*Rectangle).Rect()
	want := geometry.Rect{X: 60, Y: 90, Width: 40, Height: 10}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name string
		json string
		want error
	}{
		{"unknown type", `{"id":"x","type":"hexagon"}`, ErrUnknownKind},
		{"circle without size", `{"id":"c","type":"circle","x":1,"y":1}`, ErrMissingBox},
		{"line with three points", `{"id":"l","type":"line","points":[{"x":0,"y":0},{"x":1,"y":1},{"x":2,"y":2}]}`, ErrSegmentPoints},
		{"missing id", `{"type":"pencil","points":[]}`, ErrMissingID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.json))
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestNew_UnknownKind(t *testing.T) {
	if _, err := New("hexagon", NewID(), Common{}, geometry.Point{}); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}
