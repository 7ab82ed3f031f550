// Package element defines the drawable units of a canvas, their geometry and
// the ordered store that owns them for a session.
package element

import (
	"github.com/sketchroom/sketchroom/internal/geometry"
	"github.com/sketchroom/sketchroom/internal/typeid"
)

type Kind string

const (
	KindPencil    Kind = "pencil"
	KindRectangle Kind = "rectangle"
	KindCircle    Kind = "circle"
	KindText      Kind = "text"
	KindLine      Kind = "line"
	KindArrow     Kind = "arrow"
	KindEraser    Kind = "eraser"
	KindImage     Kind = "image"
)

// Element is one drawable unit. The set of implementations is closed: every
// variant embeds Common and is one of the pointer types declared in this file.
type Element interface {
	Attrs() *Common
	Kind() Kind
	Clone() Element
	Translate(dx, dy float64)

	sealed()
}

// Boxed is implemented by the shape-positioned variants (rectangle, circle,
// text, image).
type Boxed interface {
	Element
	Rect() geometry.Rect
	SetRect(r geometry.Rect)
}

// Common holds the fields shared by every variant.
type Common struct {
	ID          string
	Color       string
	StrokeWidth float64
	Opacity     *float64
}

func (c *Common) Attrs() *Common { return c }

func (c *Common) sealed() {}

func (c Common) clone() Common {
	if c.Opacity != nil {
		o := *c.Opacity
		c.Opacity = &o
	}
	return c
}

// NewID returns a fresh element id.
func NewID() string {
	return typeid.NewElementID()
}

// Box is the top-left anchored extent of a shape-positioned element.
type Box struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

func (b *Box) Rect() geometry.Rect {
	return geometry.Rect{X: b.X, Y: b.Y, Width: b.Width, Height: b.Height}
}

func (b *Box) SetRect(r geometry.Rect) {
	b.X, b.Y, b.Width, b.Height = r.X, r.Y, r.Width, r.Height
}

func (b *Box) Translate(dx, dy float64) {
	b.X += dx
	b.Y += dy
}

// Stroke is a freehand polyline; join order is slice order.
type Stroke struct {
	Points []geometry.Point
}

func (s *Stroke) Translate(dx, dy float64) {
	for i := range s.Points {
		s.Points[i] = s.Points[i].Add(dx, dy)
	}
}

func (s Stroke) clone() Stroke {
	return Stroke{Points: append([]geometry.Point(nil), s.Points...)}
}

// Segment is a two-point path. Holding the endpoints as fields keeps the
// exactly-two-points invariant structural.
type Segment struct {
	Start geometry.Point
	End   geometry.Point
}

func (s *Segment) Translate(dx, dy float64) {
	s.Start = s.Start.Add(dx, dy)
	s.End = s.End.Add(dx, dy)
}

func (s *Segment) Points() []geometry.Point {
	return []geometry.Point{s.Start, s.End}
}

type Rectangle struct {
	Common
	Box
}

type Circle struct {
	Common
	Box
}

type Text struct {
	Common
	Box
	Text     string
	FontSize float64
}

type Image struct {
	Common
	Box
	Src            string
	OriginalWidth  float64
	OriginalHeight float64
}

// AspectRatio returns originalWidth/originalHeight, or 0 when either is unknown.
func (i *Image) AspectRatio() float64 {
	if i.OriginalWidth <= 0 || i.OriginalHeight <= 0 {
		return 0
	}
	return i.OriginalWidth / i.OriginalHeight
}

type Pencil struct {
	Common
	Stroke
}

type Eraser struct {
	Common
	Stroke
}

type Line struct {
	Common
	Segment
}

type Arrow struct {
	Common
	Segment
}

func (*Rectangle) Kind() Kind { return KindRectangle }
func (*Circle) Kind() Kind    { return KindCircle }
func (*Text) Kind() Kind      { return KindText }
func (*Image) Kind() Kind     { return KindImage }
func (*Pencil) Kind() Kind    { return KindPencil }
func (*Eraser) Kind() Kind    { return KindEraser }
func (*Line) Kind() Kind      { return KindLine }
func (*Arrow) Kind() Kind     { return KindArrow }

func (r *Rectangle) Clone() Element {
	c := *r
	c.Common = r.Common.clone()
	return &c
}

func (r *Circle) Clone() Element {
	c := *r
	c.Common = r.Common.clone()
	return &c
}

func (t *Text) Clone() Element {
	c := *t
	c.Common = t.Common.clone()
	return &c
}

func (i *Image) Clone() Element {
	c := *i
	c.Common = i.Common.clone()
	return &c
}

func (p *Pencil) Clone() Element {
	return &Pencil{Common: p.Common.clone(), Stroke: p.Stroke.clone()}
}

func (e *Eraser) Clone() Element {
	return &Eraser{Common: e.Common.clone(), Stroke: e.Stroke.clone()}
}

func (l *Line) Clone() Element {
	c := *l
	c.Common = l.Common.clone()
	return &c
}

func (a *Arrow) Clone() Element {
	c := *a
	c.Common = a.Common.clone()
	return &c
}

// New creates an empty element of the given kind anchored at p: box variants
// start with zero size at p, path variants start with p as their only point
// (both endpoints for line and arrow).
func New(kind Kind, id string, style Common, p geometry.Point) (Element, error) {
	style.ID = id
	box := Box{X: p.X, Y: p.Y}
	seg := Segment{Start: p, End: p}

	switch kind {
	case KindRectangle:
		return &Rectangle{Common: style, Box: box}, nil
	case KindCircle:
		return &Circle{Common: style, Box: box}, nil
	case KindText:
		return &Text{Common: style, Box: box}, nil
	case KindImage:
		return &Image{Common: style, Box: box}, nil
	case KindPencil:
		return &Pencil{Common: style, Stroke: Stroke{Points: []geometry.Point{p}}}, nil
	case KindEraser:
		return &Eraser{Common: style, Stroke: Stroke{Points: []geometry.Point{p}}}, nil
	case KindLine:
		return &Line{Common: style, Segment: seg}, nil
	case KindArrow:
		return &Arrow{Common: style, Segment: seg}, nil
	default:
		return nil, ErrUnknownKind
	}
}

// ID returns the element's id.
func ID(e Element) string {
	return e.Attrs().ID
}

// Normalize rewrites negative box extents produced by raw drag deltas.
func Normalize(e Element) {
	if b, ok := e.(Boxed); ok {
		b.SetRect(b.Rect().Normalize())
	}
}
