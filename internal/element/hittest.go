package element

import (
	"github.com/sketchroom/sketchroom/internal/geometry"
)

// HitTolerance is the pixel distance within which a point hits a path element.
const HitTolerance = 10.0

// Bounds returns the element's axis-aligned bounding box with non-negative
// extents.
func Bounds(e Element) geometry.Rect {
	switch v := e.(type) {
	case Boxed:
		return v.Rect().Normalize()
	case *Pencil:
		return geometry.BoundsOf(v.Points)
	case *Eraser:
		return geometry.BoundsOf(v.Points)
	case *Line:
		return geometry.RectFromPoints(v.Start, v.End)
	case *Arrow:
		return geometry.RectFromPoints(v.Start, v.End)
	}
	return geometry.Rect{}
}

// PaddedBounds is Bounds grown by the full stroke width for path elements,
// so that the painted stroke (half the width on each side) lies inside it.
// Hit tolerance is not included: QueryPoint adds it at query time.
func PaddedBounds(e Element) geometry.Rect {
	r := Bounds(e)
	if IsPath(e) {
		r = r.Expand(e.Attrs().StrokeWidth)
	}
	return r
}

// IsPath reports whether e is one of the point-list variants.
func IsPath(e Element) bool {
	switch e.(type) {
	case *Pencil, *Eraser, *Line, *Arrow:
		return true
	}
	return false
}

// Contains reports whether p hits e. Boxes use containment, circles the
// inscribed ellipse, lines and arrows the distance to their segment, and
// freehand strokes the distance to any sampled point.
func Contains(e Element, p geometry.Point) bool {
	switch v := e.(type) {
	case *Circle:
		return inEllipse(v.Rect().Normalize(), p)
	case Boxed:
		return v.Rect().Normalize().Contains(p)
	case *Line:
		return geometry.DistanceToSegment(p, v.Start, v.End) < HitTolerance
	case *Arrow:
		return geometry.DistanceToSegment(p, v.Start, v.End) < HitTolerance
	case *Pencil:
		return nearAny(v.Points, p)
	case *Eraser:
		return nearAny(v.Points, p)
	}
	return false
}

func inEllipse(r geometry.Rect, p geometry.Point) bool {
	rx := r.Width / 2
	ry := r.Height / 2
	if rx == 0 || ry == 0 {
		return false
	}
	c := r.Center()
	dx := (p.X - c.X) / rx
	dy := (p.Y - c.Y) / ry
	return dx*dx+dy*dy <= 1
}

func nearAny(points []geometry.Point, p geometry.Point) bool {
	for _, q := range points {
		if geometry.Distance(p, q) < HitTolerance {
			return true
		}
	}
	return false
}
