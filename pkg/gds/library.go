// Package gds implements the output cell library of the pls compiler
// and its GDSII binary reader and writer.
package gds

import (
	"math"
	"sort"

	"github.com/maskfab/plsc/pkg/geom"
)

// Polygon is a closed boundary on a numbered layer.
type Polygon struct {
	Points []geom.Point
	Layer  int
}

// Reference places another cell at Origin with Rotation in degrees.
// Cols > 0 marks an array reference with Rows and Spacing.
type Reference struct {
	CellName string
	Origin   geom.Point
	Rotation float64
	Cols     int
	Rows     int
	Spacing  geom.Point
}

// IsArray reports whether the reference is an array reference.
func (r *Reference) IsArray() bool { return r.Cols > 0 }

// Clone returns a copy of the reference.
func (r *Reference) Clone() *Reference {
	c := *r
	return &c
}

// Cell is a named container of polygons and references.
type Cell struct {
	Name     string
	Polygons []Polygon
	Refs     []*Reference
}

// Empty reports whether the cell holds no content yet.
func (c *Cell) Empty() bool { return len(c.Polygons) == 0 && len(c.Refs) == 0 }

// AddShape adds every polygon of the shape to the cell, stamped with
// the layer.
func (c *Cell) AddShape(s *geom.Shape, layer int) {
	for _, poly := range s.Polys {
		c.Polygons = append(c.Polygons, Polygon{
			Points: append([]geom.Point(nil), poly...),
			Layer:  layer,
		})
	}
}

// AddReference appends a cell reference.
func (c *Cell) AddReference(r *Reference) {
	c.Refs = append(c.Refs, r)
}

// Clone returns a deep copy of the cell.
func (c *Cell) Clone() *Cell {
	out := &Cell{Name: c.Name}
	for _, p := range c.Polygons {
		out.Polygons = append(out.Polygons, Polygon{
			Points: append([]geom.Point(nil), p.Points...),
			Layer:  p.Layer,
		})
	}
	for _, r := range c.Refs {
		out.Refs = append(out.Refs, r.Clone())
	}
	return out
}

// RemapLayers rewrites polygon layers according to the from-to map.
func (c *Cell) RemapLayers(m map[int]int) {
	for i := range c.Polygons {
		if to, ok := m[c.Polygons[i].Layer]; ok {
			c.Polygons[i].Layer = to
		}
	}
}

// Library is a set of named cells. Emit order is sorted by name.
type Library struct {
	Name  string
	Cells map[string]*Cell
}

// NewLibrary creates an empty library.
func NewLibrary(name string) *Library {
	return &Library{Name: name, Cells: map[string]*Cell{}}
}

// Cell returns the named cell, or nil.
func (l *Library) Cell(name string) *Cell { return l.Cells[name] }

// GetOrCreateCell returns the named cell, creating it if absent.
func (l *Library) GetOrCreateCell(name string) *Cell {
	if c, ok := l.Cells[name]; ok {
		return c
	}
	c := &Cell{Name: name}
	l.Cells[name] = c
	return c
}

// Remove deletes the named cell.
func (l *Library) Remove(name string) { delete(l.Cells, name) }

// CellNames returns the cell names in sorted order.
func (l *Library) CellNames() []string {
	names := make([]string, 0, len(l.Cells))
	for n := range l.Cells {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of the library.
func (l *Library) Clone() *Library {
	out := NewLibrary(l.Name)
	for n, c := range l.Cells {
		out.Cells[n] = c.Clone()
	}
	return out
}

const maxRefDepth = 32

// Flatten resolves the cell into plain polygons, expanding references
// and arrays recursively.
func (l *Library) Flatten(name string) []Polygon {
	return l.flatten(name, geom.Point{}, 0, 0)
}

func (l *Library) flatten(name string, origin geom.Point, rotation float64, depth int) []Polygon {
	if depth > maxRefDepth {
		return nil
	}
	cell := l.Cells[name]
	if cell == nil {
		return nil
	}
	var out []Polygon
	place := func(pts []geom.Point) []geom.Point {
		sin, cos := math.Sincos(rotation * math.Pi / 180)
		placed := make([]geom.Point, len(pts))
		for i, p := range pts {
			placed[i] = geom.Point{
				X: p.X*cos - p.Y*sin + origin.X,
				Y: p.X*sin + p.Y*cos + origin.Y,
			}
		}
		return placed
	}
	for _, p := range cell.Polygons {
		out = append(out, Polygon{Points: place(p.Points), Layer: p.Layer})
	}
	for _, r := range cell.Refs {
		cols, rows := 1, 1
		if r.IsArray() {
			cols, rows = r.Cols, r.Rows
		}
		for iy := 0; iy < rows; iy++ {
			for ix := 0; ix < cols; ix++ {
				at := geom.Point{
					X: r.Origin.X + float64(ix)*r.Spacing.X,
					Y: r.Origin.Y + float64(iy)*r.Spacing.Y,
				}
				sub := l.flatten(r.CellName, at, r.Rotation, depth+1)
				for _, sp := range sub {
					out = append(out, Polygon{Points: place(sp.Points), Layer: sp.Layer})
				}
			}
		}
	}
	return out
}

// BoundingBox returns the bounding box of the flattened cell.
func (l *Library) BoundingBox(name string) (min, max geom.Point, ok bool) {
	polys := l.Flatten(name)
	first := true
	for _, p := range polys {
		for _, pt := range p.Points {
			if first {
				min, max = pt, pt
				first = false
				continue
			}
			min.X = math.Min(min.X, pt.X)
			min.Y = math.Min(min.Y, pt.Y)
			max.X = math.Max(max.X, pt.X)
			max.Y = math.Max(max.Y, pt.Y)
		}
	}
	return min, max, !first
}
