package calltree

import (
	"math"
	"strconv"

	"github.com/maskfab/plsc/pkg/geom"
	"github.com/maskfab/plsc/pkg/plserr"
)

// operatorGroups is the reduction precedence table, highest binding
// first. The dot operator runs twice, once before points are
// constructed and once after; both passes do imported-shape
// instantiation and function application. '+' and '-' also run a
// second time, after the points and the second dot pass, to reduce
// point arithmetic whose operands were still brackets in the first.
var operatorGroups = [][]string{
	{"make"},
	{"."},
	{"^"},
	{"*", "/"},
	{"-", "+"},
	{"pstart", "pend"},
	{"psep"},
	{"."},
	{"-", "+"},
	{"oassign"},
	{"osep"},
	{"ostart", "oend"},
	{"="},
	{"unpack"},
	{","},
}

// cursor walks a token list allowing the reducer to pop the neighbors
// of the current slot and rewrite it in place.
type cursor struct {
	lits []Value
	i    int
}

func (c *cursor) cur() *Value { return &c.lits[c.i] }

func (c *cursor) peekNext() *Value {
	if c.i < len(c.lits)-1 {
		return &c.lits[c.i+1]
	}
	return nil
}

func (c *cursor) peekPrev() *Value {
	if c.i > 0 {
		return &c.lits[c.i-1]
	}
	return nil
}

func (c *cursor) popNext() *Value {
	if c.i >= len(c.lits)-1 {
		return nil
	}
	v := c.lits[c.i+1]
	c.lits = append(c.lits[:c.i+1], c.lits[c.i+2:]...)
	return &v
}

func (c *cursor) popPrev() *Value {
	if c.i <= 0 {
		return nil
	}
	c.i--
	v := c.lits[c.i]
	c.lits = append(c.lits[:c.i], c.lits[c.i+1:]...)
	return &v
}

// dropCur removes the current slot; the iteration index steps back so
// the outer loop advances onto the shifted-in token.
func (c *cursor) dropCur() {
	c.lits = append(c.lits[:c.i], c.lits[c.i+1:]...)
	c.i--
}

func (c *cursor) set(v Value) { c.lits[c.i] = v }

func nextIs(c *cursor, kinds ...Kind) bool {
	n := c.peekNext()
	if n == nil {
		return false
	}
	for _, k := range kinds {
		if n.Kind == k {
			return true
		}
	}
	return false
}

func prevIs(c *cursor, kinds ...Kind) bool {
	p := c.peekPrev()
	if p == nil {
		return false
	}
	for _, k := range kinds {
		if p.Kind == k {
			return true
		}
	}
	return false
}

// reduceLiterals reduces the merged token list of the node to its
// result: one value, a list of shape references, or a make sequence
// awaiting the parent pass.
func (t *CallTree) reduceLiterals() error {
	if t.Done {
		return nil
	}
	if len(t.Children) == 0 {
		t.Result = []Value{NoneValue()}
		t.Done = true
		return nil
	}

	holder := t.Children[0]
	for _, ops := range operatorGroups {
		c := &cursor{lits: holder.Literals}
		for c.i = 0; c.i < len(c.lits); c.i++ {
			l := c.cur()
			if l.Kind == KindOperator && inGroup(ops, l.S) {
				if err := t.applyOperator(c, l.S); err != nil {
					holder.Literals = c.lits
					return err
				}
			} else if funcApplicationPass(ops) && l.Kind == KindFunc {
				if err := t.applyAdjacentFunc(c); err != nil {
					holder.Literals = c.lits
					return err
				}
			}
		}
		holder.Literals = c.lits
	}

	lits := holder.Literals
	if len(lits) > 1 {
		allRefs := true
		anyParam := false
		for _, l := range lits {
			if l.Kind != KindShapeRef {
				allRefs = false
			}
			if l.Kind == KindParamRef {
				anyParam = true
			}
		}
		if !allRefs && !anyParam {
			return plserr.New(plserr.TypeError,
				"expression does not reduce to a single value: %s (missing '+', '-' or '*' shape combinator?)",
				resultString(lits))
		}
	}

	if len(lits) == 0 {
		t.Result = []Value{NoneValue()}
	} else {
		t.Result = lits
	}
	t.Done = true
	return nil
}

func inGroup(ops []string, op string) bool {
	for _, o := range ops {
		if o == op {
			return true
		}
	}
	return false
}

// funcApplicationPass marks the dot passes, which also apply a
// Func literal to the operand directly to its right, the no-dot form
// used by sweeps like call(...)(shape).
func funcApplicationPass(ops []string) bool {
	return len(ops) == 1 && ops[0] == "."
}

func (t *CallTree) operandError(c *cursor, op string) error {
	prev, next := "none", "none"
	if p := c.peekPrev(); p != nil {
		prev = p.String()
	}
	if n := c.peekNext(); n != nil {
		next = n.String()
	}
	return plserr.New(plserr.TypeError, "illegal operands for operator '%s': %s and %s", op, prev, next)
}

// applyOperator rewrites the current operator slot from its neighbors.
// The rules are exhaustive; an unmatched pairing is a type error.
func (t *CallTree) applyOperator(c *cursor, op string) error {
	switch op {
	case "^", "*", "/", "+", "-":
		// two numeric operands
		if prevIs(c, KindInt, KindFloat) && nextIs(c, KindInt, KindFloat) {
			op1 := c.popPrev()
			op2 := c.popNext()
			c.set(numericOp(op, *op1, *op2))
			return nil
		}
		// component-wise point arithmetic
		if (op == "+" || op == "-") && prevIs(c, KindPoint) && nextIs(c, KindPoint) {
			op1 := c.popPrev()
			op2 := c.popNext()
			p := op1.P
			if op == "+" {
				p = p.Add(op2.P)
			} else {
				p = p.Sub(op2.P)
			}
			c.set(PointValue(p))
			return nil
		}
		// string concatenation
		if op == "+" && ((nextIs(c, KindString) && !prevIs(c, KindName)) ||
			(prevIs(c, KindString) && !nextIs(c, KindName))) {
			op1 := c.popPrev()
			op2 := c.popNext()
			s1, ok1 := stringify(op1)
			s2, ok2 := stringify(op2)
			if !ok1 || !ok2 {
				return t.operandError(c, op)
			}
			c.set(StringValue(s1 + s2))
			return nil
		}
		// a '+' between references just collects them into the
		// reference sequence of the section result
		if op == "+" && prevIs(c, KindShapeRef) && nextIs(c, KindShapeRef) {
			c.dropCur()
			return nil
		}
		// shape algebra
		if (op == "+" || op == "-" || op == "*") && prevIs(c, KindShape) && nextIs(c, KindShape) {
			op1 := c.popPrev()
			op2 := c.popNext()
			s := op1.Shape.Clone()
			switch op {
			case "+":
				s.Union(op2.Shape)
			case "-":
				s.Subtract(op2.Shape)
			case "*":
				s.Intersect(op2.Shape)
			}
			c.set(ShapeValue(s))
			return nil
		}
		// unary plus and minus
		if (op == "+" || op == "-") && nextIs(c, KindInt, KindFloat) &&
			(c.peekPrev() == nil || prevIs(c, KindOperator)) {
			v := *c.popNext()
			if op == "-" {
				v.I = -v.I
				v.F = -v.F
			}
			c.set(v)
			return nil
		}
		// a '+' or '-' beside a bracket waits for the point passes and
		// is reduced by the later '+'/'-' pass
		if (op == "+" || op == "-") && ((c.peekPrev() != nil && c.peekPrev().IsOp("pend")) ||
			(c.peekNext() != nil && c.peekNext().IsOp("pstart"))) {
			return nil
		}
		// a '*' with no valid left neighbor is the unpack operator
		if op == "*" && (c.peekPrev() == nil || prevIs(c, KindOperator)) {
			c.set(OperatorValue("unpack"))
			return nil
		}
		return t.operandError(c, op)

	case "pstart":
		if n := c.peekNext(); n != nil && n.IsNumeric() {
			v := *c.popNext()
			c.set(Value{Kind: KindPointX, F: v.Num(), List: []Value{v}})
			return nil
		}
		return t.operandError(c, op)

	case "pend":
		if p := c.peekPrev(); p != nil && p.IsNumeric() {
			v := *c.popPrev()
			c.set(Value{Kind: KindPointY, F: v.Num(), List: []Value{v}})
			return nil
		}
		// a '[n]' singleton closes into a one-element list
		if prevIs(c, KindPointX) {
			v := *c.popPrev()
			c.set(ArgListValue(v.List))
			return nil
		}
		return t.operandError(c, op)

	case "psep":
		if prevIs(c, KindPointX) && nextIs(c, KindPointY) {
			op1 := c.popPrev()
			op2 := c.popNext()
			c.set(PointValue(geom.Point{X: op1.F, Y: op2.F}))
			return nil
		}
		return t.operandError(c, op)

	case ".":
		// imported shape instantiation
		if prevIs(c, KindName) && nextIs(c, KindImport) {
			ns := c.popPrev()
			imp := c.popNext()
			v, err := t.instantiateImported(ns.S, imp.Imp)
			if err != nil {
				return err
			}
			c.set(v)
			return nil
		}
		// function application on the left operand
		if n := c.peekNext(); n != nil && n.Kind == KindFunc {
			p := c.peekPrev()
			if p != nil && n.Fn.Accepts(p.Kind) {
				op1 := c.popPrev()
				fn := c.popNext()
				v, err := fn.Fn.Apply(*op1, t.root)
				if err != nil {
					return err
				}
				c.set(v)
				return nil
			}
			// a just-closed point still waits for the pstart/pend pass
			if p != nil && (p.Kind == KindPointY || p.IsOp("pend")) {
				return nil
			}
		}
		return t.operandError(c, op)

	case ",":
		op1 := c.popPrev()
		op2 := c.popNext()
		var items []Value
		items = appendArgSegment(items, op1)
		items = appendArgSegment(items, op2)
		c.set(ArgListValue(items))
		return nil

	case "=":
		if prevIs(c, KindName, KindAssignName) {
			op1 := c.popPrev()
			op2 := c.popNext()
			if op2 == nil {
				return t.operandError(c, op)
			}
			c.set(AssignValue(op1.S, *op2))
			return nil
		}
		return t.operandError(c, op)

	case "oassign":
		if prevIs(c, KindName, KindAssignName) {
			op1 := c.popPrev()
			op2 := c.popNext()
			if op2 == nil {
				return t.operandError(c, op)
			}
			obj := &Object{}
			obj.Set(op1.S, *op2)
			c.set(Value{Kind: KindObject, Obj: obj})
			return nil
		}
		return t.operandError(c, op)

	case "osep":
		if prevIs(c, KindObject) && nextIs(c, KindObject) {
			op1 := c.popPrev()
			op2 := c.popNext()
			merged := op1.Obj.Clone()
			merged.Merge(op2.Obj)
			c.set(Value{Kind: KindObject, Obj: merged})
			return nil
		}
		// a lonely separator right after '{' or before '}' is dropped
		if p, n := c.peekPrev(), c.peekNext(); (p != nil && p.IsOp("ostart")) || (n != nil && n.IsOp("oend")) {
			c.dropCur()
			return nil
		}
		return t.operandError(c, op)

	case "ostart":
		if nextIs(c, KindObject) {
			obj := c.popNext()
			c.set(*obj)
			return nil
		}
		if n := c.peekNext(); n != nil && n.IsOp("oend") {
			c.popNext()
			c.set(Value{Kind: KindObject, Obj: &Object{}})
			return nil
		}
		return t.operandError(c, op)

	case "oend":
		if prevIs(c, KindObject) {
			obj := c.popPrev()
			c.set(*obj)
			return nil
		}
		return t.operandError(c, op)

	case "unpack":
		if nextIs(c, KindObject) {
			obj := c.popNext()
			items := make([]Value, 0, len(obj.Obj.Entries)+1)
			for _, e := range obj.Obj.Entries {
				items = append(items, AssignValue(e.Key, e.Val.Clone()))
			}
			items = append(items, AssignValue(ignoreExtraArgsName, NoneValue()))
			c.set(ArgListValue(items))
			return nil
		}
		return t.operandError(c, op)

	case "make":
		if prevIs(c, KindParamRef) && nextIs(c, KindArgList) {
			return t.makeSymbol(c)
		}
		return t.operandError(c, op)
	}
	return t.operandError(c, op)
}

// applyAdjacentFunc applies a Func literal to the accepted operand
// directly to its right when no operator separates them.
func (t *CallTree) applyAdjacentFunc(c *cursor) error {
	n := c.peekNext()
	if n == nil || n.Kind == KindOperator {
		return nil
	}
	fn := c.cur().Fn
	if !fn.Accepts(n.Kind) {
		return nil
	}
	arg := c.popNext()
	v, err := fn.Apply(*arg, t.root)
	if err != nil {
		return err
	}
	c.set(v)
	return nil
}

func appendArgSegment(items []Value, v *Value) []Value {
	if v == nil || v.Kind == KindNone {
		return items
	}
	if v.Kind == KindArgList {
		return append(items, v.List...)
	}
	return append(items, *v)
}

func numericOp(op string, a, b Value) Value {
	x, y := a.Num(), b.Num()
	var r float64
	switch op {
	case "^":
		r = math.Pow(x, y)
	case "*":
		r = x * y
	case "/":
		return FloatValue(x / y)
	case "+":
		r = x + y
	default:
		r = x - y
	}
	if a.Kind == KindInt && b.Kind == KindInt && !(op == "^" && y < 0) {
		return IntValue(int64(math.Round(r)))
	}
	return FloatValue(r)
}

func stringify(v *Value) (string, bool) {
	switch v.Kind {
	case KindString:
		return v.S, true
	case KindInt:
		return strconv.FormatInt(v.I, 10), true
	case KindFloat:
		return strconv.FormatFloat(v.F, 'g', -1, 64), true
	}
	return "", false
}
