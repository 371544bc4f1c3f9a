// Package geom implements the geometry backend of the pls compiler:
// polygon sets with boolean algebra, affine transforms, offsetting and
// corner rounding, plus the rect/polygon/text/qrcode primitives the
// evaluator constructs.
package geom

import (
	"math"

	polyclip "github.com/ctessum/polyclip-go"

	"github.com/maskfab/plsc/pkg/plserr"
)

// Point is a planar coordinate.
type Point struct {
	X, Y float64
}

// Add returns the component-wise sum.
func (p Point) Add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y} }

// Sub returns the component-wise difference.
func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

// Polygon is a closed contour; the last vertex connects back to the
// first implicitly.
type Polygon []Point

// Shape is an owned set of polygons. The zero value is the empty shape.
type Shape struct {
	Polys []Polygon
}

// Anchors are the valid anchor names for rect, text and translate.
var Anchors = []string{"c", "n", "ne", "e", "se", "s", "sw", "w", "nw"}

// IsAnchor reports whether name is a valid anchor name.
func IsAnchor(name string) bool {
	for _, a := range Anchors {
		if a == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (s *Shape) Clone() *Shape {
	if s == nil {
		return &Shape{}
	}
	out := &Shape{Polys: make([]Polygon, len(s.Polys))}
	for i, poly := range s.Polys {
		out.Polys[i] = append(Polygon(nil), poly...)
	}
	return out
}

// Empty reports whether the shape contains no polygons.
func (s *Shape) Empty() bool { return s == nil || len(s.Polys) == 0 }

func toClip(s *Shape) polyclip.Polygon {
	var out polyclip.Polygon
	for _, poly := range s.Polys {
		c := make(polyclip.Contour, len(poly))
		for i, p := range poly {
			c[i] = polyclip.Point{X: p.X, Y: p.Y}
		}
		out = append(out, c)
	}
	return out
}

func fromClip(p polyclip.Polygon) *Shape {
	s := &Shape{}
	for _, c := range p {
		if len(c) < 3 {
			continue
		}
		poly := make(Polygon, len(c))
		for i, pt := range c {
			poly[i] = Point{pt.X, pt.Y}
		}
		s.Polys = append(s.Polys, poly)
	}
	return s
}

func (s *Shape) construct(op polyclip.Op, o *Shape) *Shape {
	if s.Empty() {
		if op == polyclip.UNION {
			s.Polys = o.Clone().Polys
		}
		return s
	}
	if o.Empty() {
		if op == polyclip.INTERSECTION {
			s.Polys = nil
		}
		return s
	}
	s.Polys = fromClip(toClip(s).Construct(op, toClip(o))).Polys
	return s
}

// Union merges the operand into the shape.
func (s *Shape) Union(o *Shape) *Shape { return s.construct(polyclip.UNION, o) }

// Subtract removes the operand from the shape.
func (s *Shape) Subtract(o *Shape) *Shape { return s.construct(polyclip.DIFFERENCE, o) }

// Intersect keeps the overlap of shape and operand.
func (s *Shape) Intersect(o *Shape) *Shape { return s.construct(polyclip.INTERSECTION, o) }

// Translate moves the shape by (dx, dy).
func (s *Shape) Translate(dx, dy float64) *Shape {
	for _, poly := range s.Polys {
		for i := range poly {
			poly[i].X += dx
			poly[i].Y += dy
		}
	}
	return s
}

// AnchorPoint returns the named anchor of the bounding box.
func (s *Shape) AnchorPoint(anchor string) (Point, error) {
	if !IsAnchor(anchor) {
		return Point{}, plserr.New(plserr.DomainError, "invalid anchor %q", anchor)
	}
	min, max := s.BoundsCorners()
	cx, cy := 0.5*(min.X+max.X), 0.5*(min.Y+max.Y)
	switch anchor {
	case "c":
		return Point{cx, cy}, nil
	case "n":
		return Point{cx, max.Y}, nil
	case "ne":
		return Point{max.X, max.Y}, nil
	case "e":
		return Point{max.X, cy}, nil
	case "se":
		return Point{max.X, min.Y}, nil
	case "s":
		return Point{cx, min.Y}, nil
	case "sw":
		return Point{min.X, min.Y}, nil
	case "w":
		return Point{min.X, cy}, nil
	default: // nw
		return Point{min.X, max.Y}, nil
	}
}

// AlignAnchor translates the shape so that its named anchor lands on
// the target point.
func (s *Shape) AlignAnchor(anchor string, to Point) error {
	at, err := s.AnchorPoint(anchor)
	if err != nil {
		return err
	}
	s.Translate(to.X-at.X, to.Y-at.Y)
	return nil
}

// Rotate rotates the shape by angle (radians) about center.
func (s *Shape) Rotate(angle float64, center Point) *Shape {
	sin, cos := math.Sin(angle), math.Cos(angle)
	for _, poly := range s.Polys {
		for i, p := range poly {
			x, y := p.X-center.X, p.Y-center.Y
			poly[i] = Point{x*cos - y*sin + center.X, x*sin + y*cos + center.Y}
		}
	}
	return s
}

// Scale scales the shape by (sx, sy) about its centroid.
func (s *Shape) Scale(sx, sy float64) *Shape {
	c := s.Center()
	for _, poly := range s.Polys {
		for i, p := range poly {
			poly[i] = Point{(p.X-c.X)*sx + c.X, (p.Y-c.Y)*sy + c.Y}
		}
	}
	return s
}

// Mirror reflects the shape across the line through p1 and p2.
func (s *Shape) Mirror(p1, p2 Point) *Shape {
	dx, dy := p2.X-p1.X, p2.Y-p1.Y
	norm := dx*dx + dy*dy
	if norm == 0 {
		// degenerate axis, mirror through the point
		return s.Rotate(math.Pi, p1)
	}
	for _, poly := range s.Polys {
		for i, p := range poly {
			t := ((p.X-p1.X)*dx + (p.Y-p1.Y)*dy) / norm
			fx, fy := p1.X+t*dx, p1.Y+t*dy
			poly[i] = Point{2*fx - p.X, 2*fy - p.Y}
		}
	}
	return s
}

// points returns every vertex of the shape.
func (s *Shape) points() []Point {
	var pts []Point
	for _, poly := range s.Polys {
		pts = append(pts, poly...)
	}
	return pts
}

// BoundsCorners returns the lower-left and upper-right corners of the
// bounding box. An empty shape yields two zero points.
func (s *Shape) BoundsCorners() (Point, Point) {
	pts := s.points()
	if len(pts) == 0 {
		return Point{}, Point{}
	}
	min, max := pts[0], pts[0]
	for _, p := range pts[1:] {
		min.X = math.Min(min.X, p.X)
		min.Y = math.Min(min.Y, p.Y)
		max.X = math.Max(max.X, p.X)
		max.Y = math.Max(max.Y, p.Y)
	}
	return min, max
}

// Height returns the vertical extent of the shape.
func (s *Shape) Height() float64 {
	min, max := s.BoundsCorners()
	return max.Y - min.Y
}

// Width returns the horizontal extent of the shape.
func (s *Shape) Width() float64 {
	min, max := s.BoundsCorners()
	return max.X - min.X
}

// BoundingBox returns the bounding box as a rectangle shape.
func (s *Shape) BoundingBox() *Shape {
	min, max := s.BoundsCorners()
	return rectangle(min, max)
}

// Center returns the centroid of the vertex set.
func (s *Shape) Center() Point {
	pts := s.points()
	if len(pts) == 0 {
		return Point{}
	}
	var sx, sy float64
	for _, p := range pts {
		sx += p.X
		sy += p.Y
	}
	n := float64(len(pts))
	return Point{sx / n, sy / n}
}

func signedArea(poly Polygon) float64 {
	var a float64
	for i, p := range poly {
		q := poly[(i+1)%len(poly)]
		a += p.X*q.Y - q.X*p.Y
	}
	return a / 2
}

// Grow offsets every contour outward by d (inward for negative d),
// using miter joins.
func (s *Shape) Grow(d float64) *Shape {
	for pi, poly := range s.Polys {
		if len(poly) < 3 {
			continue
		}
		ccw := signedArea(poly) > 0
		n := len(poly)
		out := make(Polygon, 0, n)
		for i := range poly {
			prev := poly[(i-1+n)%n]
			cur := poly[i]
			next := poly[(i+1)%n]
			// outward normals of the two adjacent edges
			n1 := edgeNormal(prev, cur, ccw)
			n2 := edgeNormal(cur, next, ccw)
			// intersect the two offset edge lines
			p, ok := lineIntersect(
				prev.Add(scaled(n1, d)), cur.Add(scaled(n1, d)),
				cur.Add(scaled(n2, d)), next.Add(scaled(n2, d)))
			if !ok {
				p = cur.Add(scaled(n1, d))
			}
			out = append(out, p)
		}
		s.Polys[pi] = out
	}
	return s
}

const filletSegments = 8

// Fillet rounds every corner with radius r, approximated by sampling a
// quadratic arc through the trimmed corner.
func (s *Shape) Fillet(r float64) *Shape {
	for pi, poly := range s.Polys {
		if len(poly) < 3 {
			continue
		}
		n := len(poly)
		out := make(Polygon, 0, n*filletSegments)
		for i := range poly {
			prev := poly[(i-1+n)%n]
			cur := poly[i]
			next := poly[(i+1)%n]
			t1 := math.Min(r, dist(prev, cur)/2)
			t2 := math.Min(r, dist(cur, next)/2)
			a := towards(cur, prev, t1)
			b := towards(cur, next, t2)
			for k := 0; k <= filletSegments; k++ {
				t := float64(k) / filletSegments
				// quadratic bezier with the corner as control point
				u := 1 - t
				out = append(out, Point{
					u*u*a.X + 2*u*t*cur.X + t*t*b.X,
					u*u*a.Y + 2*u*t*cur.Y + t*t*b.Y,
				})
			}
		}
		s.Polys[pi] = out
	}
	return s
}

func edgeNormal(a, b Point, ccw bool) Point {
	dx, dy := b.X-a.X, b.Y-a.Y
	l := math.Hypot(dx, dy)
	if l == 0 {
		return Point{}
	}
	if ccw {
		return Point{dy / l, -dx / l}
	}
	return Point{-dy / l, dx / l}
}

func scaled(p Point, f float64) Point { return Point{p.X * f, p.Y * f} }

func dist(a, b Point) float64 { return math.Hypot(b.X-a.X, b.Y-a.Y) }

func towards(from, to Point, d float64) Point {
	l := dist(from, to)
	if l == 0 {
		return from
	}
	return Point{from.X + (to.X-from.X)*d/l, from.Y + (to.Y-from.Y)*d/l}
}

func lineIntersect(a1, a2, b1, b2 Point) (Point, bool) {
	d1 := a2.Sub(a1)
	d2 := b2.Sub(b1)
	den := d1.X*d2.Y - d1.Y*d2.X
	if math.Abs(den) < 1e-12 {
		return Point{}, false
	}
	t := ((b1.X-a1.X)*d2.Y - (b1.Y-a1.Y)*d2.X) / den
	return Point{a1.X + t*d1.X, a1.Y + t*d1.Y}, true
}

func rectangle(p1, p2 Point) *Shape {
	return &Shape{Polys: []Polygon{{
		{p1.X, p1.Y}, {p2.X, p1.Y}, {p2.X, p2.Y}, {p1.X, p2.Y},
	}}}
}
