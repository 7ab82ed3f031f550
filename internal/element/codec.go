package element

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sketchroom/sketchroom/internal/geometry"
)

var (
	ErrUnknownKind   = errors.New("unknown element type")
	ErrMissingID     = errors.New("element id is required")
	ErrMissingBox    = errors.New("shape element requires x, y, width and height")
	ErrSegmentPoints = errors.New("line and arrow require exactly 2 points")
)

// wireElement is the JSON shape exchanged with peers and stored as
// drawingData. Pointer fields distinguish absent from zero.
type wireElement struct {
	ID             string           `json:"id"`
	Type           Kind             `json:"type"`
	Color          string           `json:"color"`
	StrokeWidth    float64          `json:"strokeWidth"`
	Opacity        *float64         `json:"opacity,omitempty"`
	X              *float64         `json:"x,omitempty"`
	Y              *float64         `json:"y,omitempty"`
	Width          *float64         `json:"width,omitempty"`
	Height         *float64         `json:"height,omitempty"`
	Points         []geometry.Point `json:"points,omitempty"`
	Text           string           `json:"text,omitempty"`
	FontSize       float64          `json:"fontSize,omitempty"`
	Src            string           `json:"src,omitempty"`
	OriginalWidth  float64          `json:"originalWidth,omitempty"`
	OriginalHeight float64          `json:"originalHeight,omitempty"`
}

// Encode serializes e in wire form.
func Encode(e Element) ([]byte, error) {
	return json.Marshal(toWire(e))
}

// Decode parses one wire element. Box extents are normalized.
func Decode(data []byte) (Element, error) {
	var w wireElement
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode element: %w", err)
	}
	return fromWire(w)
}

func toWire(e Element) wireElement {
	c := e.Attrs()
	w := wireElement{
		ID:          c.ID,
		Type:        e.Kind(),
		Color:       c.Color,
		StrokeWidth: c.StrokeWidth,
		Opacity:     c.Opacity,
	}

	if b, ok := e.(Boxed); ok {
		r := b.Rect()
		w.X, w.Y, w.Width, w.Height = &r.X, &r.Y, &r.Width, &r.Height
	}

	switch v := e.(type) {
	case *Text:
		w.Text = v.Text
		w.FontSize = v.FontSize
	case *Image:
		w.Src = v.Src
		w.OriginalWidth = v.OriginalWidth
		w.OriginalHeight = v.OriginalHeight
	case *Pencil:
		w.Points = v.Points
	case *Eraser:
		w.Points = v.Points
	case *Line:
		w.Points = v.Segment.Points()
	case *Arrow:
		w.Points = v.Segment.Points()
	}
	return w
}

func fromWire(w wireElement) (Element, error) {
	if w.ID == "" {
		return nil, ErrMissingID
	}
	common := Common{ID: w.ID, Color: w.Color, StrokeWidth: w.StrokeWidth, Opacity: w.Opacity}

	var box Box
	switch w.Type {
	case KindRectangle, KindCircle, KindText, KindImage:
		if w.X == nil || w.Y == nil || w.Width == nil || w.Height == nil {
			return nil, fmt.Errorf("%s %s: %w", w.Type, w.ID, ErrMissingBox)
		}
		r := geometry.Rect{X: *w.X, Y: *w.Y, Width: *w.Width, Height: *w.Height}.Normalize()
		box = Box{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
	case KindLine, KindArrow:
		if len(w.Points) != 2 {
			return nil, fmt.Errorf("%s %s: %w", w.Type, w.ID, ErrSegmentPoints)
		}
	}

	switch w.Type {
	case KindRectangle:
		return &Rectangle{Common: common, Box: box}, nil
	case KindCircle:
		return &Circle{Common: common, Box: box}, nil
	case KindText:
		return &Text{Common: common, Box: box, Text: w.Text, FontSize: w.FontSize}, nil
	case KindImage:
		return &Image{
			Common:         common,
			Box:            box,
			Src:            w.Src,
			OriginalWidth:  w.OriginalWidth,
			OriginalHeight: w.OriginalHeight,
		}, nil
	case KindPencil:
		return &Pencil{Common: common, Stroke: Stroke{Points: w.Points}}, nil
	case KindEraser:
		return &Eraser{Common: common, Stroke: Stroke{Points: w.Points}}, nil
	case KindLine:
		return &Line{Common: common, Segment: Segment{Start: w.Points[0], End: w.Points[1]}}, nil
	case KindArrow:
		return &Arrow{Common: common, Segment: Segment{Start: w.Points[0], End: w.Points[1]}}, nil
	default:
		return nil, fmt.Errorf("%q: %w", w.Type, ErrUnknownKind)
	}
}

// List is an ordered element sequence (z-order = slice order) with a wire
// encoding as a JSON array of elements.
type List []Element

func (l List) MarshalJSON() ([]byte, error) {
	out := make([]wireElement, len(l))
	for i, e := range l {
		out[i] = toWire(e)
	}
	return json.Marshal(out)
}

func (l *List) UnmarshalJSON(data []byte) error {
	var raw []wireElement
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode elements: %w", err)
	}

	out := make(List, 0, len(raw))
	for _, w := range raw {
		e, err := fromWire(w)
		if err != nil {
			return err
		}
		out = append(out, e)
	}
	*l = out
	return nil
}

// Clone deep-copies every element of the list.
func (l List) Clone() List {
	out := make(List, len(l))
	for i, e := range l {
		out[i] = e.Clone()
	}
	return out
}
