package calltree

import (
	"math"

	"github.com/maskfab/plsc/pkg/geom"
	"github.com/maskfab/plsc/pkg/plserr"
)

// Caller sweeps a parametric shape over start/step/stop ranges and
// unions every instantiation. Sweep entries may be numbers or letter
// codes (base-26, a=0). The argument sets are expanded eagerly at
// construction.
type Caller struct {
	Arglists [][]Value
}

// newCaller validates the sweep arguments: either all of start, step
// and stop are given, or none.
func newCaller(largs []Value, dargs map[string]Value) (*Caller, error) {
	if len(largs) > 0 {
		return nil, plserr.New(plserr.ArityError, "'call' takes no positional arguments: either all of start/step/stop or none")
	}
	if len(dargs) == 0 {
		return &Caller{}, nil
	}
	start, okStart := dargs["start"]
	step, okStep := dargs["step"]
	stop, okStop := dargs["stop"]
	if !okStart || !okStep || !okStop || len(dargs) != 3 {
		return nil, plserr.New(plserr.ArityError, "invalid arguments in parametric function call: either all of start/step/stop or none")
	}

	starts, err := sweepList(start)
	if err != nil {
		return nil, err
	}
	steps, err := sweepList(step)
	if err != nil {
		return nil, err
	}
	stops, err := sweepList(stop)
	if err != nil {
		return nil, err
	}
	if len(starts) != len(steps) || len(steps) != len(stops) {
		return nil, plserr.New(plserr.ArityError, "start/step/stop must have the same number of sweep dimensions")
	}

	c := &Caller{}
	cur := cloneValues(starts)
	for {
		c.Arglists = append(c.Arglists, cloneValues(cur))
		advanceSweep(&cur[0], steps[0])
		dim := 0
		ended := false
		for {
			if sweepNum(cur[dim]) > sweepNum(stops[dim]) || steps[dim].Num() < 1e-5 {
				cur[dim] = starts[dim].Clone()
				dim++
				if dim < len(cur) {
					advanceSweep(&cur[dim], steps[dim])
				} else {
					ended = true
					break
				}
			} else {
				break
			}
		}
		if ended {
			break
		}
	}
	return c, nil
}

// sweepList normalizes a sweep parameter: a scalar is a 1-dimensional
// sweep, a bracket or argument list supplies one entry per dimension,
// a point is a 2-dimensional numeric sweep.
func sweepList(v Value) ([]Value, error) {
	switch v.Kind {
	case KindInt, KindFloat:
		return []Value{v}, nil
	case KindString:
		return []Value{v}, nil
	case KindPoint:
		return []Value{FloatValue(v.P.X), FloatValue(v.P.Y)}, nil
	case KindArgList:
		out := make([]Value, 0, len(v.List))
		for _, item := range v.List {
			if !item.IsNumeric() && item.Kind != KindString {
				return nil, plserr.New(plserr.TypeError, "sweep entries must be numbers or letters, found %s", item.String())
			}
			out = append(out, item)
		}
		if len(out) == 0 {
			return nil, plserr.New(plserr.ArityError, "empty sweep list")
		}
		return out, nil
	}
	return nil, plserr.New(plserr.TypeError, "invalid sweep parameter %s", v.String())
}

func cloneValues(vals []Value) []Value {
	out := make([]Value, len(vals))
	for i, v := range vals {
		out[i] = v.Clone()
	}
	return out
}

// sweepNum maps a sweep entry to its numeric position; letter codes
// are base-26 with a=0.
func sweepNum(v Value) float64 {
	if v.Kind == KindString {
		n := 0
		for _, r := range v.S {
			if r >= 'A' && r <= 'Z' {
				r += 'a' - 'A'
			}
			if r < 'a' || r > 'z' {
				return 0
			}
			n = n*26 + int(r-'a')
		}
		return float64(n)
	}
	return v.Num()
}

// lettersFor is the inverse of sweepNum for letter entries.
func lettersFor(n int) string {
	if n <= 0 {
		return "a"
	}
	out := ""
	for n > 0 {
		out = string(rune('a'+n%26)) + out
		n /= 26
	}
	return out
}

func advanceSweep(v *Value, step Value) {
	if v.Kind == KindString {
		*v = StringValue(lettersFor(int(math.Ceil(sweepNum(*v) + step.Num()))))
		return
	}
	*v = numericOp("+", *v, step)
}

func (c *Caller) Accepts(k Kind) bool { return k == KindName || k == KindTree }

// Apply instantiates the swept shape once per argument set and unions
// the results.
func (c *Caller) Apply(v Value, root Root) (Value, error) {
	var def *ShapeDef
	switch v.Kind {
	case KindName:
		d, ok := root.ShapeDef(v.S)
		if !ok {
			return Value{}, plserr.New(plserr.NameError, "invalid function/shape '%s'", v.S)
		}
		def = d
	case KindTree:
		def = &ShapeDef{Args: v.Tree.Args, Tree: v.Tree.Tree}
	default:
		return Value{}, plserr.New(plserr.TypeError, "'call' cannot be applied to %s", v.Kind)
	}

	union := &geom.Shape{}
	for _, argset := range c.Arglists {
		if len(argset) > len(def.Args) {
			return Value{}, plserr.New(plserr.ArityError, "more sweep parameters than shape parameters")
		}
		if len(argset) < len(def.Args) {
			return Value{}, plserr.New(plserr.NameError, "unresolved names in parametric function call")
		}
		tree := def.Tree.Clone()
		scope := map[string]Value{}
		for i, name := range def.Args {
			scope[name] = argset[i]
		}
		if unresolved := tree.ResolveNames(scope, true); len(unresolved) > 0 {
			return Value{}, plserr.Unresolved(unresolved)
		}
		if err := tree.Evaluate(); err != nil {
			return Value{}, err
		}
		s, err := tree.GetShape()
		if err != nil {
			return Value{}, err
		}
		union.Union(s)
	}
	return ShapeValue(union), nil
}
