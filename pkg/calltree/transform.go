package calltree

import (
	"encoding/gob"
	"math"

	"github.com/maskfab/plsc/pkg/geom"
	"github.com/maskfab/plsc/pkg/plserr"
)

func init() {
	gob.Register(&Translator{})
	gob.Register(&Rotator{})
	gob.Register(&Scaler{})
	gob.Register(&Mirrower{})
	gob.Register(&Grower{})
	gob.Register(&Rounder{})
	gob.Register(&Arrayer{})
	gob.Register(&Caller{})
}

// newTransform constructs the Func value for a transform builtin.
func newTransform(name string, largs []Value, dargs map[string]Value, root Root) (Transform, error) {
	switch name {
	case "translate":
		return newTranslator(largs, dargs)
	case "rotate":
		return newRotator(largs, dargs)
	case "scale":
		return newScaler(largs, dargs)
	case "mirror":
		return newMirrower(largs, dargs)
	case "grow":
		return newGrower(largs, dargs)
	case "round":
		return newRounder(largs, dargs)
	case "array":
		return newArrayer(largs, dargs)
	default:
		return newCaller(largs, dargs)
	}
}

func copyFlag(dargs map[string]Value) bool {
	v, ok := dargs["copy"]
	return ok && v.IsNumeric() && v.Num() != 0
}

// Translator moves shapes, points and references; in anchor mode it
// aligns a shape's bounding-box anchor onto the target point.
type Translator struct {
	Dx, Dy float64
	Anchor string
	At     geom.Point
	Copy   bool
}

func newTranslator(largs []Value, dargs map[string]Value) (*Translator, error) {
	tr := &Translator{Copy: copyFlag(dargs)}
	for k, v := range dargs {
		switch {
		case k == "copy":
		case k == "dx" && v.IsNumeric():
			tr.Dx = v.Num()
		case k == "dy" && v.IsNumeric():
			tr.Dy = v.Num()
		case geom.IsAnchor(k):
			if tr.Anchor != "" {
				return nil, plserr.New(plserr.DomainError, "multiple anchors in translate call")
			}
			if v.Kind != KindPoint {
				return nil, plserr.New(plserr.TypeError, "anchor %q must be a point in translate call", k)
			}
			tr.Anchor = k
			tr.At = v.P
		default:
			return nil, plserr.New(plserr.ArityError, "unexpected argument %q in translate call", k)
		}
	}
	switch {
	case len(largs) == 2 && largs[0].IsNumeric() && largs[1].IsNumeric():
		if tr.Anchor != "" {
			return nil, plserr.New(plserr.DomainError, "no anchor definition allowed in [dx,dy] style translation")
		}
		tr.Dx, tr.Dy = largs[0].Num(), largs[1].Num()
	case len(largs) == 1 && largs[0].Kind == KindPoint:
		if tr.Anchor != "" {
			return nil, plserr.New(plserr.DomainError, "no anchor definition allowed in [dx,dy] style translation")
		}
		tr.Dx, tr.Dy = largs[0].P.X, largs[0].P.Y
	case len(largs) == 0:
	default:
		return nil, plserr.New(plserr.ArityError, "invalid arguments to translate call")
	}
	return tr, nil
}

func (tr *Translator) Accepts(k Kind) bool {
	return k == KindShape || k == KindPoint || k == KindShapeRef
}

func (tr *Translator) Apply(v Value, root Root) (Value, error) {
	switch v.Kind {
	case KindShape:
		s := v.Shape
		var orig *geom.Shape
		if tr.Copy {
			orig = s.Clone()
		}
		if tr.Anchor != "" {
			if err := s.AlignAnchor(tr.Anchor, tr.At); err != nil {
				return Value{}, err
			}
		} else {
			s.Translate(tr.Dx, tr.Dy)
		}
		if orig != nil {
			s.Union(orig)
		}
		return ShapeValue(s), nil
	case KindPoint:
		if tr.Copy || tr.Anchor != "" {
			return Value{}, plserr.New(plserr.DomainError, "'copy' and anchors may only be specified when translating shapes")
		}
		return PointValue(geom.Point{X: v.P.X + tr.Dx, Y: v.P.Y + tr.Dy}), nil
	case KindShapeRef:
		if tr.Copy || tr.Anchor != "" {
			return Value{}, plserr.New(plserr.DomainError, "'copy' and anchors may only be specified when translating shapes")
		}
		v.Ref.Origin.X += tr.Dx
		v.Ref.Origin.Y += tr.Dy
		return v, nil
	}
	return Value{}, plserr.New(plserr.TypeError, "translate cannot be applied to %s", v.Kind)
}

// Rotator rotates shapes about a center (their centroid by default),
// adds to a reference's rotation, or rotates a point about the center
// (the origin by default).
type Rotator struct {
	Angle     float64 // radians
	Center    geom.Point
	HasCenter bool
	Copy      bool
}

func newRotator(largs []Value, dargs map[string]Value) (*Rotator, error) {
	if len(largs) < 1 || !largs[0].IsNumeric() {
		return nil, plserr.New(plserr.ArityError, "rotate needs an angle")
	}
	unit := "deg"
	for k, v := range dargs {
		switch k {
		case "unit":
			if v.Kind != KindString {
				return nil, plserr.New(plserr.TypeError, "'unit' must be a string in rotate call")
			}
			unit = v.S
		case "copy":
		default:
			return nil, plserr.New(plserr.ArityError, "unexpected argument %q in rotate call", k)
		}
	}
	if unit != "deg" && unit != "rad" {
		return nil, plserr.New(plserr.DomainError, "unsupported angle unit %q, use 'deg' or 'rad'", unit)
	}
	r := &Rotator{Angle: largs[0].Num(), Copy: copyFlag(dargs)}
	if unit == "deg" {
		r.Angle *= math.Pi / 180
	}
	if len(largs) == 2 {
		if largs[1].Kind != KindPoint {
			return nil, plserr.New(plserr.TypeError, "rotate center must be a point")
		}
		r.Center = largs[1].P
		r.HasCenter = true
	} else if len(largs) > 2 {
		return nil, plserr.New(plserr.ArityError, "invalid arguments to rotate call")
	}
	return r, nil
}

func (r *Rotator) Accepts(k Kind) bool {
	return k == KindShape || k == KindPoint || k == KindShapeRef
}

func (r *Rotator) Apply(v Value, root Root) (Value, error) {
	switch v.Kind {
	case KindShape:
		s := v.Shape
		center := r.Center
		if !r.HasCenter {
			center = s.Center()
		}
		var orig *geom.Shape
		if r.Copy {
			orig = s.Clone()
		}
		s.Rotate(r.Angle, center)
		if orig != nil {
			s.Union(orig)
		}
		return ShapeValue(s), nil
	case KindShapeRef:
		if r.Copy {
			return Value{}, plserr.New(plserr.DomainError, "'copy' may only be specified when rotating shapes, not references")
		}
		v.Ref.Rotation += 180 / math.Pi * r.Angle
		return v, nil
	case KindPoint:
		if r.Copy {
			return Value{}, plserr.New(plserr.DomainError, "'copy' may only be specified when rotating shapes, not points")
		}
		c := r.Center
		sin, cos := math.Sincos(r.Angle)
		return PointValue(geom.Point{
			X: (v.P.X-c.X)*cos - (v.P.Y-c.Y)*sin + c.X,
			Y: (v.P.X-c.X)*sin + (v.P.Y-c.Y)*cos + c.Y,
		}), nil
	}
	return Value{}, plserr.New(plserr.TypeError, "rotate cannot be applied to %s", v.Kind)
}

// Scaler scales a shape about its centroid.
type Scaler struct {
	Sx, Sy float64
}

func newScaler(largs []Value, dargs map[string]Value) (*Scaler, error) {
	if len(dargs) > 0 || len(largs) < 1 || len(largs) > 2 {
		return nil, plserr.New(plserr.ArityError, "invalid arguments to scale call")
	}
	for _, v := range largs {
		if !v.IsNumeric() {
			return nil, plserr.New(plserr.TypeError, "scale factors must be numeric")
		}
	}
	s := &Scaler{Sx: largs[0].Num(), Sy: largs[0].Num()}
	if len(largs) == 2 {
		s.Sy = largs[1].Num()
	}
	return s, nil
}

func (s *Scaler) Accepts(k Kind) bool { return k == KindShape }

func (s *Scaler) Apply(v Value, root Root) (Value, error) {
	if v.Kind != KindShape {
		return Value{}, plserr.New(plserr.TypeError, "scale cannot be applied to %s", v.Kind)
	}
	return ShapeValue(v.Shape.Scale(s.Sx, s.Sy)), nil
}

// Mirrower reflects a shape across a line, or point-mirrors when both
// x and y are given (a 180 degree rotation about the point).
type Mirrower struct {
	P1, P2 geom.Point
	HasP2  bool
	Copy   bool
}

func newMirrower(largs []Value, dargs map[string]Value) (*Mirrower, error) {
	m := &Mirrower{Copy: copyFlag(dargs)}
	var x, y *float64
	for k, v := range dargs {
		switch k {
		case "copy":
		case "x":
			n := v.Num()
			x = &n
		case "y":
			n := v.Num()
			y = &n
		default:
			return nil, plserr.New(plserr.ArityError, "unexpected argument %q in mirror call", k)
		}
	}
	switch {
	case len(largs) >= 1:
		if largs[0].Kind != KindPoint {
			return nil, plserr.New(plserr.TypeError, "mirror points must be points")
		}
		m.P1 = largs[0].P
		if len(largs) == 2 {
			if largs[1].Kind != KindPoint {
				return nil, plserr.New(plserr.TypeError, "mirror points must be points")
			}
			m.P2 = largs[1].P
			m.HasP2 = true
		}
	case x != nil && y == nil:
		m.P1 = geom.Point{X: *x, Y: 1}
		m.P2 = geom.Point{X: *x, Y: -1}
		m.HasP2 = true
	case y != nil && x == nil:
		m.P1 = geom.Point{X: 1, Y: *y}
		m.P2 = geom.Point{X: -1, Y: *y}
		m.HasP2 = true
	case x != nil && y != nil:
		// point mirror: a 180 degree rotation about [x,y]
		m.P1 = geom.Point{X: *x, Y: *y}
	default:
		return nil, plserr.New(plserr.DomainError,
			"incomplete parameters to mirror: specify either one point, two points, named parameter x, named parameter y or named parameters x and y")
	}
	return m, nil
}

func (m *Mirrower) Accepts(k Kind) bool { return k == KindShape }

func (m *Mirrower) Apply(v Value, root Root) (Value, error) {
	if v.Kind != KindShape {
		return Value{}, plserr.New(plserr.TypeError, "mirror cannot be applied to %s", v.Kind)
	}
	s := v.Shape
	var orig *geom.Shape
	if m.Copy {
		orig = s.Clone()
	}
	if m.HasP2 {
		s.Mirror(m.P1, m.P2)
	} else {
		// reflecting across the vertical and then the horizontal line
		// through P1 is the 180 degree rotation about P1, without the
		// rounding error of sin(pi)
		s.Mirror(m.P1, geom.Point{X: m.P1.X, Y: m.P1.Y + 1})
		s.Mirror(m.P1, geom.Point{X: m.P1.X + 1, Y: m.P1.Y})
	}
	if orig != nil {
		s.Union(orig)
	}
	return ShapeValue(s), nil
}

// Grower offsets a shape outward by a distance.
type Grower struct {
	D float64
}

func newGrower(largs []Value, dargs map[string]Value) (*Grower, error) {
	if len(dargs) > 0 || len(largs) != 1 || !largs[0].IsNumeric() {
		return nil, plserr.New(plserr.ArityError, "invalid arguments to grow call")
	}
	return &Grower{D: largs[0].Num()}, nil
}

func (g *Grower) Accepts(k Kind) bool { return k == KindShape }

func (g *Grower) Apply(v Value, root Root) (Value, error) {
	if v.Kind != KindShape {
		return Value{}, plserr.New(plserr.TypeError, "grow cannot be applied to %s", v.Kind)
	}
	return ShapeValue(v.Shape.Grow(g.D)), nil
}

// Rounder fillets every corner of a shape.
type Rounder struct {
	R float64
}

func newRounder(largs []Value, dargs map[string]Value) (*Rounder, error) {
	if len(dargs) > 0 || len(largs) != 1 || !largs[0].IsNumeric() {
		return nil, plserr.New(plserr.ArityError, "invalid arguments to round call")
	}
	return &Rounder{R: largs[0].Num()}, nil
}

func (r *Rounder) Accepts(k Kind) bool { return k == KindShape }

func (r *Rounder) Apply(v Value, root Root) (Value, error) {
	if v.Kind != KindShape {
		return Value{}, plserr.New(plserr.TypeError, "round cannot be applied to %s", v.Kind)
	}
	return ShapeValue(v.Shape.Fillet(r.R)), nil
}

// Arrayer grids a shape by unioning translated copies centered on the
// origin, or turns a reference into an array reference spaced by the
// referenced cell's bounding box plus the gaps.
type Arrayer struct {
	Lx, Ly int
	Dx, Dy float64
}

func newArrayer(largs []Value, dargs map[string]Value) (*Arrayer, error) {
	vals := map[string]float64{"dx": 0, "dy": 0}
	names := []string{"lx", "ly", "dx", "dy"}
	for i, v := range largs {
		if i >= len(names) {
			return nil, plserr.New(plserr.ArityError, "too many arguments to array call")
		}
		if !v.IsNumeric() {
			return nil, plserr.New(plserr.TypeError, "array arguments must be numeric")
		}
		vals[names[i]] = v.Num()
	}
	for k, v := range dargs {
		valid := false
		for _, n := range names {
			if k == n {
				valid = true
			}
		}
		if !valid {
			return nil, plserr.New(plserr.ArityError, "unexpected argument %q in array call", k)
		}
		if !v.IsNumeric() {
			return nil, plserr.New(plserr.TypeError, "array arguments must be numeric")
		}
		vals[k] = v.Num()
	}
	if _, ok := vals["lx"]; !ok {
		return nil, plserr.New(plserr.ArityError, "array needs lx and ly")
	}
	if _, ok := vals["ly"]; !ok {
		return nil, plserr.New(plserr.ArityError, "array needs lx and ly")
	}
	a := &Arrayer{Lx: int(vals["lx"]), Ly: int(vals["ly"]), Dx: vals["dx"], Dy: vals["dy"]}
	if a.Lx < 1 || a.Ly < 1 {
		return nil, plserr.New(plserr.DomainError, "zero or negative sized array not possible")
	}
	return a, nil
}

func (a *Arrayer) Accepts(k Kind) bool { return k == KindShape || k == KindShapeRef }

func (a *Arrayer) Apply(v Value, root Root) (Value, error) {
	switch v.Kind {
	case KindShapeRef:
		var w, h float64
		if root != nil {
			if min, max, ok := root.Library().BoundingBox(v.Ref.CellName); ok {
				w = math.Abs(max.X - min.X)
				h = math.Abs(max.Y - min.Y)
			}
		}
		ref := v.Ref.Clone()
		ref.Cols = a.Lx
		ref.Rows = a.Ly
		ref.Spacing = geom.Point{X: a.Dx + w, Y: a.Dy + h}
		return RefValue(ref), nil

	case KindShape:
		op := v.Shape
		w, h := op.Width(), op.Height()
		op.Translate(-(float64(a.Lx-1)*(w+a.Dx))/2, -(float64(a.Ly-1)*(h+a.Dy))/2)
		result := &geom.Shape{}
		for y := 0; y < a.Ly; y++ {
			for x := 0; x < a.Lx; x++ {
				result.Union(op)
				op.Translate(w+a.Dx, 0)
			}
			op.Translate(-(w+a.Dx)*float64(a.Lx), h+a.Dy)
		}
		return ShapeValue(result), nil
	}
	return Value{}, plserr.New(plserr.TypeError, "array cannot be applied to %s", v.Kind)
}
