package calltree

import (
	"math"

	"github.com/maskfab/plsc/pkg/gds"
	"github.com/maskfab/plsc/pkg/geom"
	"github.com/maskfab/plsc/pkg/plserr"
)

// engine is the geometry backend the evaluator constructs primitives
// through.
var engine geom.Backend = geom.Engine{}

// Evaluate reduces the node and, for function nodes, dispatches the
// builtin or user shape named by Func. It is re-entrant: a failed
// evaluation can be retried after more names are bound.
func (t *CallTree) Evaluate() error {
	for _, c := range t.Children {
		if c.Func != "" || len(c.Children) > 0 {
			if err := c.Evaluate(); err != nil {
				return err
			}
		}
	}
	t.mergeChildren()

	if len(t.Children) > 1 {
		return plserr.New(plserr.ParseError, "children without literals not allowed")
	}

	// only magic names here: globals are folded in by the section
	// driver or at instantiation time, so shape parameters can shadow
	// them
	t.ResolveNames(map[string]Value{}, false)
	if err := t.reduceLiterals(); err != nil {
		return err
	}

	if t.Func == "" {
		if len(t.Children) == 1 {
			t.Literals = t.Result
			t.HasLits = true
		}
		return nil
	}

	largs, dargs, unresolved, ignoreExtra := splitArgs(t.Result)
	out, err := t.dispatch(largs, dargs, unresolved, ignoreExtra)
	if err != nil {
		return err
	}
	t.Literals = out
	t.HasLits = true
	return nil
}

// splitArgs decomposes a reduced result into positional and named
// arguments, collecting names that stayed unresolved.
func splitArgs(result []Value) (largs []Value, dargs map[string]Value, unresolved []string, ignoreExtra bool) {
	dargs = map[string]Value{}
	if len(result) != 1 {
		return
	}
	collect := func(v Value) {
		if v.Kind == KindAssign {
			if v.As.Name == ignoreExtraArgsName {
				ignoreExtra = true
				return
			}
			if v.As.Val.Kind == KindName {
				unresolved = append(unresolved, v.As.Val.S)
			}
			dargs[v.As.Name] = v.As.Val
			return
		}
		if v.Kind == KindName {
			unresolved = append(unresolved, v.S)
		}
		largs = append(largs, v)
	}
	switch result[0].Kind {
	case KindArgList:
		for _, item := range result[0].List {
			collect(item)
		}
	case KindNone:
	default:
		collect(result[0])
	}
	return
}

func requireResolved(unresolved []string, fn string) error {
	if len(unresolved) > 0 {
		return plserr.Unresolved(unresolved)
	}
	return nil
}

func (t *CallTree) dispatch(largs []Value, dargs map[string]Value, unresolved []string, ignoreExtra bool) ([]Value, error) {
	switch t.Func {
	case "rect":
		if err := requireResolved(unresolved, t.Func); err != nil {
			return nil, err
		}
		v, err := evalRect(largs, dargs)
		if err != nil {
			return nil, err
		}
		return []Value{v}, nil

	case "polygon":
		if err := requireResolved(unresolved, t.Func); err != nil {
			return nil, err
		}
		v, err := evalPolygon(largs, dargs)
		if err != nil {
			return nil, err
		}
		return []Value{v}, nil

	case "text":
		if err := requireResolved(unresolved, t.Func); err != nil {
			return nil, err
		}
		v, err := evalText(largs, dargs)
		if err != nil {
			return nil, err
		}
		return []Value{v}, nil

	case "qrcode":
		if err := requireResolved(unresolved, t.Func); err != nil {
			return nil, err
		}
		v, err := evalQRCode(largs, dargs)
		if err != nil {
			return nil, err
		}
		return []Value{v}, nil

	case "translate", "rotate", "scale", "mirror", "grow", "round", "array", "call":
		if err := requireResolved(unresolved, t.Func); err != nil {
			return nil, err
		}
		fn, err := newTransform(t.Func, largs, dargs, t.root)
		if err != nil {
			return nil, err
		}
		return []Value{FuncValue(fn)}, nil

	case "int":
		if err := requireResolved(unresolved, t.Func); err != nil {
			return nil, err
		}
		if len(dargs) > 0 || len(largs) != 1 || !largs[0].IsNumeric() {
			return nil, plserr.New(plserr.ArityError, "invalid arguments to 'int' call")
		}
		return []Value{IntValue(int64(largs[0].Num()))}, nil

	case "abs":
		if err := requireResolved(unresolved, t.Func); err != nil {
			return nil, err
		}
		if len(dargs) > 0 || len(largs) != 1 || !largs[0].IsNumeric() {
			return nil, plserr.New(plserr.ArityError, "invalid arguments to 'abs' call")
		}
		return []Value{FloatValue(math.Abs(largs[0].Num()))}, nil

	case "char":
		if err := requireResolved(unresolved, t.Func); err != nil {
			return nil, err
		}
		if len(dargs) > 0 || len(largs) != 1 || !largs[0].IsNumeric() {
			return nil, plserr.New(plserr.ArityError, "invalid arguments to 'char' call")
		}
		n := int(largs[0].Num())
		if n < 0 || n > 25 {
			return nil, plserr.New(plserr.DomainError, "'char' argument %d outside 0..25", n)
		}
		return []Value{StringValue(string(rune('a' + n)))}, nil

	case "min", "max", "mean":
		if err := requireResolved(unresolved, t.Func); err != nil {
			return nil, err
		}
		return evalAggregate(t.Func, largs, dargs)

	case "sqrt":
		if err := requireResolved(unresolved, t.Func); err != nil {
			return nil, err
		}
		if len(dargs) > 0 || len(largs) != 1 || !largs[0].IsNumeric() {
			return nil, plserr.New(plserr.ArityError, "invalid arguments to 'sqrt' call")
		}
		if largs[0].Num() < 0 {
			return nil, plserr.New(plserr.DomainError, "'sqrt' of negative value %g", largs[0].Num())
		}
		return []Value{FloatValue(math.Sqrt(largs[0].Num()))}, nil

	case "cos", "sin", "tan", "asin", "acos", "atan":
		if err := requireResolved(unresolved, t.Func); err != nil {
			return nil, err
		}
		return evalTrig(t.Func, largs, dargs)

	case "atan2":
		if err := requireResolved(unresolved, t.Func); err != nil {
			return nil, err
		}
		if len(dargs) > 0 || len(largs) != 2 || !largs[0].IsNumeric() || !largs[1].IsNumeric() {
			return nil, plserr.New(plserr.ArityError, "invalid arguments to 'atan2' call")
		}
		return []Value{FloatValue(180 / math.Pi * math.Atan2(largs[0].Num(), largs[1].Num()))}, nil

	case "height", "width", "bb", "center":
		if err := requireResolved(unresolved, t.Func); err != nil {
			return nil, err
		}
		return evalMeasure(t.Func, largs, dargs)

	case "ref":
		return t.evalRef(largs, dargs)
	}

	// user-defined shape
	if def, ok := t.root.ShapeDef(t.Func); ok {
		if err := requireResolved(unresolved, t.Func); err != nil {
			return nil, err
		}
		v, err := instantiateShape(def, largs, dargs, ignoreExtra, t.root)
		if err != nil {
			return nil, err
		}
		return []Value{v}, nil
	}

	// shape defined in some imported namespace: defer to the dot pass
	if _, _, ok := t.root.ImportedShapeDef(t.Func); ok {
		return []Value{{Kind: KindImport, Imp: &ImportCall{
			Shape:       t.Func,
			LArgs:       largs,
			DArgs:       dargs,
			IgnoreExtra: ignoreExtra,
		}}}, nil
	}

	return nil, plserr.New(plserr.NameError, "invalid function/shape '%s'", t.Func)
}

// evalRef builds a plain cell reference, or the paramshaperef-make
// sequence for parametric symbols.
func (t *CallTree) evalRef(largs []Value, dargs map[string]Value) ([]Value, error) {
	if len(largs) == 0 {
		return nil, plserr.New(plserr.ArityError, "'ref' needs a cell name")
	}
	if largs[0].Kind != KindString && largs[0].Kind != KindName {
		return nil, plserr.New(plserr.TypeError, "'ref' cell name must be a string, found %s", largs[0].String())
	}
	name := largs[0].S

	if len(largs) == 1 && len(dargs) == 0 {
		if t.root.Library().Cell(name) == nil {
			return nil, plserr.New(plserr.NameError, "cell %q was not defined (cells may only be referenced after their definition)", name)
		}
		return []Value{RefValue(&gds.Reference{CellName: name})}, nil
	}

	entries, ok := t.root.FindParamSym(name)
	if !ok {
		return nil, plserr.New(plserr.NameError, "parametric symbol %q was not defined (symbols may only be used after their definition)", name)
	}
	args := make([]Value, 0, len(largs)-1+len(dargs))
	args = append(args, largs[1:]...)
	for k, v := range dargs {
		args = append(args, AssignValue(k, v))
	}
	return []Value{
		{Kind: KindParamRef, Param: entries, S: name},
		OperatorValue("make"),
		ArgListValue(args),
	}, nil
}

// instantiateImported completes a deferred cross-namespace shape call
// in the imported script's scope.
func (t *CallTree) instantiateImported(namespace string, imp *ImportCall) (Value, error) {
	imported, ok := t.root.ImportScript(namespace)
	if !ok {
		return Value{}, plserr.New(plserr.NameError, "unknown import namespace %q", namespace)
	}
	def, ok := imported.ShapeDef(imp.Shape)
	if !ok {
		return Value{}, plserr.New(plserr.NameError, "shape %q not defined in namespace %q", imp.Shape, namespace)
	}
	return instantiateShape(def, imp.LArgs, imp.DArgs, imp.IgnoreExtra, imported)
}

// instantiateShape deep-copies a shape body, binds its parameters and
// evaluates it. A partially bound call yields a deferred Tree value.
func instantiateShape(def *ShapeDef, largs []Value, dargs map[string]Value, ignoreExtra bool, root Root) (Value, error) {
	if len(largs) > len(def.Args) {
		return Value{}, plserr.New(plserr.ArityError, "too many positional args in parametric shape call (%d declared, %d given)", len(def.Args), len(largs))
	}
	bound := map[string]Value{}
	for i, v := range largs {
		bound[def.Args[i]] = v
	}
	for k, v := range dargs {
		declared := false
		for _, a := range def.Args {
			if a == k {
				declared = true
				break
			}
		}
		if !declared {
			if ignoreExtra {
				continue
			}
			return Value{}, plserr.New(plserr.ArityError, "unknown named arg %q in parametric shape call", k)
		}
		if _, dup := bound[k]; dup {
			if ignoreExtra {
				continue
			}
			return Value{}, plserr.New(plserr.ArityError, "argument %q specified by positional and named arg", k)
		}
		bound[k] = v
	}

	tree := def.Tree.Clone()
	tree.SetRoot(root)

	if len(bound) < len(def.Args) {
		var missing []string
		for _, a := range def.Args {
			if _, ok := bound[a]; !ok {
				missing = append(missing, a)
			}
		}
		tree.ResolveNames(bound, true)
		return Value{Kind: KindTree, Tree: &DeferredShape{Tree: tree, Args: missing}}, nil
	}

	unresolved := tree.ResolveNames(bound, true)
	if len(unresolved) > 0 {
		return Value{}, plserr.Unresolved(unresolved)
	}
	if err := tree.Evaluate(); err != nil {
		return Value{}, err
	}
	s, err := tree.GetShape()
	if err != nil {
		return Value{}, err
	}
	return ShapeValue(s), nil
}

// evalRect handles width/height, two-corner and anchored forms.
func evalRect(largs []Value, dargs map[string]Value) (Value, error) {
	anchor, at, hasAnchor, err := pickAnchor(dargs, "rect")
	if err != nil {
		return Value{}, err
	}
	var dx, dy *float64
	for k, v := range dargs {
		switch {
		case k == "dx" || k == "dy":
			if !v.IsNumeric() {
				return Value{}, plserr.New(plserr.TypeError, "'%s' must be numeric in rect call", k)
			}
			n := v.Num()
			if k == "dx" {
				dx = &n
			} else {
				dy = &n
			}
		case geom.IsAnchor(k):
		default:
			return Value{}, plserr.New(plserr.ArityError, "unexpected argument %q in rect call", k)
		}
	}

	// two corner points
	if len(largs) == 2 && largs[0].Kind == KindPoint && largs[1].Kind == KindPoint {
		if hasAnchor || dx != nil || dy != nil {
			return Value{}, plserr.New(plserr.DomainError, "corner style rect excludes anchors and dx/dy")
		}
		s, err := engine.RectCorners(largs[0].P, largs[1].P)
		if err != nil {
			return Value{}, err
		}
		return ShapeValue(s), nil
	}

	var w, h float64
	switch {
	case dx != nil && dy != nil:
		w, h = *dx, *dy
	case len(largs) == 2 && largs[0].IsNumeric() && largs[1].IsNumeric():
		w, h = math.Abs(largs[0].Num()), math.Abs(largs[1].Num())
	case len(largs) == 1 && largs[0].IsNumeric():
		w, h = math.Abs(largs[0].Num()), math.Abs(largs[0].Num())
	default:
		return Value{}, plserr.New(plserr.ArityError, "anchor style rect definition must specify 'dx' and 'dy'")
	}
	if !hasAnchor {
		anchor, at = "c", geom.Point{}
	}
	s, err := engine.RectSized(w, h, anchor, at)
	if err != nil {
		return Value{}, err
	}
	return ShapeValue(s), nil
}

func evalPolygon(largs []Value, dargs map[string]Value) (Value, error) {
	if len(dargs) > 0 {
		return Value{}, plserr.New(plserr.ArityError, "'polygon' does not support named arguments")
	}
	pts := make([]geom.Point, len(largs))
	for i, v := range largs {
		if v.Kind != KindPoint {
			return Value{}, plserr.New(plserr.TypeError, "expected point list in polygon call, found %s", v.String())
		}
		pts[i] = v.P
	}
	s, err := engine.Polygon(pts)
	if err != nil {
		return Value{}, err
	}
	return ShapeValue(s), nil
}

func evalText(largs []Value, dargs map[string]Value) (Value, error) {
	if len(largs) < 1 || len(largs) > 2 {
		return Value{}, plserr.New(plserr.ArityError, "'text' needs a string and a size")
	}
	str, ok := stringify(&largs[0])
	if !ok {
		return Value{}, plserr.New(plserr.TypeError, "'text' first argument must be a string")
	}
	anchor, at, hasAnchor, err := pickAnchor(dargs, "text")
	if err != nil {
		return Value{}, err
	}
	spec := geom.TextSpec{Text: str, At: at}
	if hasAnchor {
		spec.Anchor = anchor
	}
	hasDy := false
	if len(largs) == 2 {
		if !largs[1].IsNumeric() {
			return Value{}, plserr.New(plserr.TypeError, "'text' height must be numeric")
		}
		spec.Dy = largs[1].Num()
		hasDy = true
	}
	for k, v := range dargs {
		switch {
		case k == "dy":
			if hasDy {
				return Value{}, plserr.New(plserr.ArityError, "duplicate text height")
			}
			spec.Dy = v.Num()
			hasDy = true
		case k == "dx":
			spec.Dx = v.Num()
			spec.ByWidth = true
		case geom.IsAnchor(k):
		default:
			return Value{}, plserr.New(plserr.ArityError, "unexpected argument %q in text call", k)
		}
	}
	if hasDy && spec.ByWidth {
		return Value{}, plserr.New(plserr.DomainError, "can only specify text height (dy) or text width (dx)")
	}
	if !hasDy && !spec.ByWidth {
		return Value{}, plserr.New(plserr.DomainError, "must specify text height (dy) or text width (dx)")
	}
	s, err := engine.Text(spec)
	if err != nil {
		return Value{}, err
	}
	return ShapeValue(s), nil
}

func evalQRCode(largs []Value, dargs map[string]Value) (Value, error) {
	if len(largs) != 1 {
		return Value{}, plserr.New(plserr.ArityError, "'qrcode' needs a string")
	}
	str, ok := stringify(&largs[0])
	if !ok {
		return Value{}, plserr.New(plserr.TypeError, "'qrcode' first argument must be a string")
	}
	anchor, at, hasAnchor, err := pickAnchor(dargs, "qrcode")
	if err != nil {
		return Value{}, err
	}
	spec := geom.QRSpec{Text: str, At: at}
	if hasAnchor {
		spec.Anchor = anchor
	}
	for k, v := range dargs {
		switch {
		case k == "pixel":
			spec.Pixel = v.Num()
		case k == "dx":
			spec.Dx = v.Num()
		case geom.IsAnchor(k):
		default:
			return Value{}, plserr.New(plserr.ArityError, "unexpected argument %q in qrcode call", k)
		}
	}
	s, err := engine.QRCode(spec)
	if err != nil {
		return Value{}, err
	}
	return ShapeValue(s), nil
}

func evalAggregate(fn string, largs []Value, dargs map[string]Value) ([]Value, error) {
	if len(dargs) > 0 {
		return nil, plserr.New(plserr.ArityError, "function '%s' does not support named arguments", fn)
	}
	if len(largs) == 0 {
		return nil, plserr.New(plserr.ArityError, "function '%s' needs at least one argument", fn)
	}
	nums := make([]float64, len(largs))
	for i, v := range largs {
		if !v.IsNumeric() {
			return nil, plserr.New(plserr.TypeError, "function '%s' supports only numerical inputs", fn)
		}
		nums[i] = v.Num()
	}
	out := nums[0]
	switch fn {
	case "min":
		for _, n := range nums[1:] {
			out = math.Min(out, n)
		}
	case "max":
		for _, n := range nums[1:] {
			out = math.Max(out, n)
		}
	case "mean":
		sum := 0.0
		for _, n := range nums {
			sum += n
		}
		out = sum / float64(len(nums))
	}
	return []Value{FloatValue(out)}, nil
}

func angleUnit(dargs map[string]Value, fn string) (string, error) {
	for k := range dargs {
		if k != "unit" {
			return "", plserr.New(plserr.ArityError, "invalid argument %q to '%s' function", k, fn)
		}
	}
	u := "deg"
	if v, ok := dargs["unit"]; ok {
		if v.Kind != KindString {
			return "", plserr.New(plserr.TypeError, "'unit' must be a string in '%s' function", fn)
		}
		u = v.S
	}
	if u != "deg" && u != "rad" {
		return "", plserr.New(plserr.DomainError, "invalid value for 'unit' argument in '%s' function", fn)
	}
	return u, nil
}

func evalTrig(fn string, largs []Value, dargs map[string]Value) ([]Value, error) {
	if len(largs) != 1 || !largs[0].IsNumeric() {
		return nil, plserr.New(plserr.ArityError, "invalid arguments to '%s' function", fn)
	}
	unit, err := angleUnit(dargs, fn)
	if err != nil {
		return nil, err
	}
	x := largs[0].Num()
	var out float64
	switch fn {
	case "sin", "cos", "tan":
		if unit == "deg" {
			x *= math.Pi / 180
		}
		switch fn {
		case "sin":
			out = math.Sin(x)
		case "cos":
			out = math.Cos(x)
		default:
			out = math.Tan(x)
		}
	default:
		if (fn == "asin" || fn == "acos") && (x < -1 || x > 1) {
			return nil, plserr.New(plserr.DomainError, "'%s' argument %g outside -1..1", fn, x)
		}
		switch fn {
		case "asin":
			out = math.Asin(x)
		case "acos":
			out = math.Acos(x)
		default:
			out = math.Atan(x)
		}
		if unit == "deg" {
			out *= 180 / math.Pi
		}
	}
	return []Value{FloatValue(out)}, nil
}

func evalMeasure(fn string, largs []Value, dargs map[string]Value) ([]Value, error) {
	if len(dargs) > 0 || len(largs) != 1 || largs[0].Kind != KindShape {
		return nil, plserr.New(plserr.ArityError, "invalid arguments to '%s' function", fn)
	}
	s := largs[0].Shape
	switch fn {
	case "height":
		return []Value{FloatValue(s.Height())}, nil
	case "width":
		return []Value{FloatValue(s.Width())}, nil
	case "bb":
		return []Value{ShapeValue(s.BoundingBox())}, nil
	default:
		return []Value{PointValue(s.Center())}, nil
	}
}

// pickAnchor extracts at most one anchor named argument.
func pickAnchor(dargs map[string]Value, fn string) (anchor string, at geom.Point, has bool, err error) {
	for _, a := range geom.Anchors {
		v, ok := dargs[a]
		if !ok {
			continue
		}
		if has {
			return "", geom.Point{}, false, plserr.New(plserr.DomainError, "multiple anchors in %s definition", fn)
		}
		if v.Kind != KindPoint {
			return "", geom.Point{}, false, plserr.New(plserr.TypeError, "anchor %q must be a point in %s call", a, fn)
		}
		anchor, at, has = a, v.P, true
	}
	return anchor, at, has, nil
}
