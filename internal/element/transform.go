package element

import (
	"github.com/sketchroom/sketchroom/internal/geometry"
)

// Fit reshapes e so that its bounds become box. Box variants take box
// directly; path variants have their points, as they were in initial, mapped
// from initial's bounds onto box. e and initial must be the same variant.
func Fit(e, initial Element, box geometry.Rect) {
	if b, ok := e.(Boxed); ok {
		b.SetRect(box)
		return
	}

	from := Bounds(initial)
	switch v := e.(type) {
	case *Pencil:
		v.Points = scalePoints(initial.(*Pencil).Points, from, box)
	case *Eraser:
		v.Points = scalePoints(initial.(*Eraser).Points, from, box)
	case *Line:
		src := initial.(*Line)
		v.Start = scalePoint(src.Start, from, box)
		v.End = scalePoint(src.End, from, box)
	case *Arrow:
		src := initial.(*Arrow)
		v.Start = scalePoint(src.Start, from, box)
		v.End = scalePoint(src.End, from, box)
	}
}

func scalePoints(points []geometry.Point, from, to geometry.Rect) []geometry.Point {
	out := make([]geometry.Point, len(points))
	for i, p := range points {
		out[i] = scalePoint(p, from, to)
	}
	return out
}

// scalePoint maps p from one rect onto another. A zero-extent axis in from
// translates instead of scaling.
func scalePoint(p geometry.Point, from, to geometry.Rect) geometry.Point {
	x := to.X + (p.X - from.X)
	if from.Width != 0 {
		x = to.X + (p.X-from.X)*to.Width/from.Width
	}
	y := to.Y + (p.Y - from.Y)
	if from.Height != 0 {
		y = to.Y + (p.Y-from.Y)*to.Height/from.Height
	}
	return geometry.Point{X: x, Y: y}
}
