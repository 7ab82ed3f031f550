// Package spatial provides a uniform-grid index over canvas elements. It is
// a derived cache: it can always be rebuilt from the element store.
package spatial

import (
	"math"
	"slices"
	"strings"

	"github.com/sketchroom/sketchroom/internal/element"
	"github.com/sketchroom/sketchroom/internal/geometry"
)

const (
	DefaultCellSize = 100.0

	// MaxCellsPerElement bounds how many grid cells one element registers
	// in. Larger elements are kept in a side list scanned by every query.
	MaxCellsPerElement = 4096
)

type cellKey struct {
	X, Y int
}

type entry struct {
	elem   element.Element
	bounds geometry.Rect
	cells  []cellKey
}

// Index maps grid cells to the ids of elements whose padded bounds touch
// them. Grid membership is a broad-phase filter only; queries confirm
// candidates against their cached bounds.
type Index struct {
	cellSize  float64
	grid      map[cellKey]map[string]struct{}
	entries   map[string]*entry
	oversized map[string]struct{}
}

type Option func(*Index)

// WithCellSize sets the grid cell edge length. Non-positive values are
// ignored.
func WithCellSize(size float64) Option {
	return func(ix *Index) {
		if size > 0 {
			ix.cellSize = size
		}
	}
}

func New(opts ...Option) *Index {
	ix := &Index{
		cellSize:  DefaultCellSize,
		grid:      make(map[cellKey]map[string]struct{}),
		entries:   make(map[string]*entry),
		oversized: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

func (ix *Index) CellSize() float64 {
	return ix.cellSize
}

// Len returns the number of indexed elements.
func (ix *Index) Len() int {
	return len(ix.entries)
}

// Insert registers e in every cell its padded bounds span, or in the
// oversized list when that would exceed MaxCellsPerElement cells. A previous
// registration under the same id is removed first, so moved or resized
// elements never leave stale cells or bounds behind.
func (ix *Index) Insert(e element.Element) {
	id := element.ID(e)
	ix.Remove(id)

	bounds := element.PaddedBounds(e)
	ent := &entry{elem: e, bounds: bounds}
	ix.entries[id] = ent
	if ix.cellSpan(bounds) > MaxCellsPerElement {
		ix.oversized[id] = struct{}{}
		return
	}
	ix.forEachCell(bounds, func(k cellKey) {
		bucket, ok := ix.grid[k]
		if !ok {
			bucket = make(map[string]struct{})
			ix.grid[k] = bucket
		}
		bucket[id] = struct{}{}
		ent.cells = append(ent.cells, k)
	})
}

// Remove drops id from every cell it occupies and prunes cells left empty.
func (ix *Index) Remove(id string) {
	ent, ok := ix.entries[id]
	if !ok {
		return
	}
	for _, k := range ent.cells {
		bucket := ix.grid[k]
		delete(bucket, id)
		if len(bucket) == 0 {
			delete(ix.grid, k)
		}
	}
	delete(ix.entries, id)
	delete(ix.oversized, id)
}

// Clear empties the index.
func (ix *Index) Clear() {
	clear(ix.grid)
	clear(ix.entries)
	clear(ix.oversized)
}

// Rebuild replaces the index content with elements.
func (ix *Index) Rebuild(elements []element.Element) {
	ix.Clear()
	for _, e := range elements {
		ix.Insert(e)
	}
}

// Bounds returns the cached padded bounds of id.
func (ix *Index) Bounds(id string) (geometry.Rect, bool) {
	ent, ok := ix.entries[id]
	if !ok {
		return geometry.Rect{}, false
	}
	return ent.bounds, true
}

// QueryRect returns the elements whose padded bounds overlap the rect,
// sorted by id.
func (ix *Index) QueryRect(x, y, w, h float64) []element.Element {
	area := geometry.Rect{X: x, Y: y, Width: w, Height: h}.Normalize()

	seen := make(map[string]bool)
	var out []element.Element
	visit := func(bucket map[string]struct{}) {
		for id := range bucket {
			if seen[id] {
				continue
			}
			seen[id] = true
			ent := ix.entries[id]
			if ent.bounds.Intersects(area) {
				out = append(out, ent.elem)
			}
		}
	}

	for id := range ix.oversized {
		seen[id] = true
		if ent := ix.entries[id]; ent.bounds.Intersects(area) {
			out = append(out, ent.elem)
		}
	}

	if ix.cellSpan(area) > float64(len(ix.grid)) {
		// Fewer occupied cells than cells covered: walk the occupied ones.
		for k, bucket := range ix.grid {
			if ix.cellRect(k).Intersects(area) {
				visit(bucket)
			}
		}
	} else {
		minX, minY := ix.cellOf(area.X, area.Y)
		maxX, maxY := ix.cellOf(area.MaxX(), area.MaxY())
		for cx := minX; cx <= maxX; cx++ {
			for cy := minY; cy <= maxY; cy++ {
				if bucket, ok := ix.grid[cellKey{cx, cy}]; ok {
					visit(bucket)
				}
			}
		}
	}

	slices.SortFunc(out, func(a, b element.Element) int {
		return strings.Compare(element.ID(a), element.ID(b))
	})
	return out
}

// QueryPoint returns the elements whose padded bounds lie within tolerance of
// p. Callers confirm hits with element.Contains.
func (ix *Index) QueryPoint(p geometry.Point, tolerance float64) []element.Element {
	tolerance = math.Max(0, tolerance)
	return ix.QueryRect(p.X-tolerance, p.Y-tolerance, 2*tolerance, 2*tolerance)
}

func (ix *Index) cellOf(x, y float64) (int, int) {
	return int(math.Floor(x / ix.cellSize)), int(math.Floor(y / ix.cellSize))
}

func (ix *Index) cellRect(k cellKey) geometry.Rect {
	return geometry.Rect{
		X:      float64(k.X) * ix.cellSize,
		Y:      float64(k.Y) * ix.cellSize,
		Width:  ix.cellSize,
		Height: ix.cellSize,
	}
}

// cellSpan is the number of cells r covers. Non-finite rects report +Inf.
func (ix *Index) cellSpan(r geometry.Rect) float64 {
	w := math.Floor(r.MaxX()/ix.cellSize) - math.Floor(r.X/ix.cellSize) + 1
	h := math.Floor(r.MaxY()/ix.cellSize) - math.Floor(r.Y/ix.cellSize) + 1
	if math.IsNaN(w) || math.IsNaN(h) {
		return math.Inf(1)
	}
	return w * h
}

func (ix *Index) forEachCell(r geometry.Rect, fn func(cellKey)) {
	minX, minY := ix.cellOf(r.X, r.Y)
	maxX, maxY := ix.cellOf(r.MaxX(), r.MaxY())
	for cx := minX; cx <= maxX; cx++ {
		for cy := minY; cy <= maxY; cy++ {
			fn(cellKey{cx, cy})
		}
	}
}
