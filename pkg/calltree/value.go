// Package calltree implements the expression core of the pls compiler:
// the lexer for section bodies, the parenthesis call tree, the
// operator-precedence reducer, name resolution and the shape/symbol
// evaluator.
package calltree

import (
	"strconv"
	"time"

	"github.com/maskfab/plsc/pkg/gds"
	"github.com/maskfab/plsc/pkg/geom"
)

// Kind tags a Value.
type Kind uint8

const (
	KindNone Kind = iota
	KindInt
	KindFloat
	KindString
	KindPoint
	KindObject
	KindShape
	KindShapeRef
	KindFunc
	KindImport
	KindParamRef
	KindArgList
	KindAssign

	// reducer-internal kinds; these never leak out of the reducer
	KindPointX
	KindPointY
	KindName
	KindAssignName
	KindOperator
	KindTree
)

var kindNames = map[Kind]string{
	KindNone:       "none",
	KindInt:        "int",
	KindFloat:      "float",
	KindString:     "string",
	KindPoint:      "point",
	KindObject:     "object",
	KindShape:      "shape",
	KindShapeRef:   "shaperef",
	KindFunc:       "func",
	KindImport:     "import",
	KindParamRef:   "paramshaperef",
	KindArgList:    "argumentlist",
	KindAssign:     "assignment",
	KindPointX:     "point-x",
	KindPointY:     "point-y",
	KindName:       "name",
	KindAssignName: "assignname",
	KindOperator:   "operator",
	KindTree:       "tree",
}

func (k Kind) String() string { return kindNames[k] }

// Value is the tagged variant flowing through the reducer and the
// evaluator. Only the field matching Kind is meaningful.
type Value struct {
	Kind  Kind
	I     int64
	F     float64
	S     string // String, Name, AssignName and Operator payloads
	P     geom.Point
	Obj   *Object
	Shape *geom.Shape
	Ref   *gds.Reference
	Fn    Transform
	Imp   *ImportCall
	Param []*ParamSymEntry
	List  []Value
	As    *Assignment
	Tree  *DeferredShape
}

// Object is an insertion-ordered name-to-value mapping.
type Object struct {
	Entries []ObjEntry
}

// ObjEntry is one key-value pair of an Object.
type ObjEntry struct {
	Key string
	Val Value
}

// Get returns the value bound to key.
func (o *Object) Get(key string) (Value, bool) {
	for _, e := range o.Entries {
		if e.Key == key {
			return e.Val, true
		}
	}
	return Value{}, false
}

// Set binds key to val, overwriting an existing binding in place.
func (o *Object) Set(key string, val Value) {
	for i, e := range o.Entries {
		if e.Key == key {
			o.Entries[i].Val = val
			return
		}
	}
	o.Entries = append(o.Entries, ObjEntry{Key: key, Val: val})
}

// Merge folds src into o; src wins on key conflicts.
func (o *Object) Merge(src *Object) {
	for _, e := range src.Entries {
		o.Set(e.Key, e.Val)
	}
}

// Clone returns a deep copy.
func (o *Object) Clone() *Object {
	out := &Object{Entries: make([]ObjEntry, len(o.Entries))}
	for i, e := range o.Entries {
		out.Entries[i] = ObjEntry{Key: e.Key, Val: e.Val.Clone()}
	}
	return out
}

// Assignment binds a name to a value inside argument lists.
type Assignment struct {
	Name string
	Val  Value
}

// ImportCall defers a cross-namespace shape call until the dot
// operator supplies the namespace.
type ImportCall struct {
	Shape       string
	LArgs       []Value
	DArgs       map[string]Value
	IgnoreExtra bool
}

// DeferredShape is a user-shape body waiting for its remaining
// parameters; the resolver completes it (§ the Tree token).
type DeferredShape struct {
	Tree *CallTree
	Args []string
}

// ShapeDef is a user-defined parametric shape.
type ShapeDef struct {
	Args []string
	Tree *CallTree
}

// ParamSymEntry is one layer contribution to a parametric symbol.
type ParamSymEntry struct {
	NamePattern string
	Args        []string
	Tree        *CallTree
	Layer       int
}

// Transform is a first-class callable produced by translate, rotate
// and friends: it knows which value tags it accepts and how to apply
// itself.
type Transform interface {
	Accepts(k Kind) bool
	Apply(v Value, root Root) (Value, error)
}

// Root is the non-owning back reference from call trees to their
// owning script.
type Root interface {
	Path() string
	ScriptHash() string
	Clock() time.Time
	Library() *gds.Library
	ParentScript() Root
	GlobalValues() map[string]Value
	ShapeDef(name string) (*ShapeDef, bool)
	ImportedShapeDef(name string) (Root, *ShapeDef, bool)
	ImportScript(namespace string) (Root, bool)
	FindParamSym(name string) ([]*ParamSymEntry, bool)
}

// Convenience constructors.

func IntValue(i int64) Value        { return Value{Kind: KindInt, I: i} }
func FloatValue(f float64) Value    { return Value{Kind: KindFloat, F: f} }
func StringValue(s string) Value    { return Value{Kind: KindString, S: s} }
func PointValue(p geom.Point) Value { return Value{Kind: KindPoint, P: p} }
func NameValue(n string) Value      { return Value{Kind: KindName, S: n} }
func OperatorValue(op string) Value { return Value{Kind: KindOperator, S: op} }
func NoneValue() Value              { return Value{Kind: KindNone} }

func ShapeValue(s *geom.Shape) Value     { return Value{Kind: KindShape, Shape: s} }
func RefValue(r *gds.Reference) Value    { return Value{Kind: KindShapeRef, Ref: r} }
func FuncValue(fn Transform) Value       { return Value{Kind: KindFunc, Fn: fn} }
func ArgListValue(items []Value) Value   { return Value{Kind: KindArgList, List: items} }
func AssignValue(n string, v Value) Value {
	return Value{Kind: KindAssign, As: &Assignment{Name: n, Val: v}}
}

// IsNumeric reports whether the value is an Int or Float.
func (v Value) IsNumeric() bool { return v.Kind == KindInt || v.Kind == KindFloat }

// Num returns the numeric payload as a float64.
func (v Value) Num() float64 {
	if v.Kind == KindInt {
		return float64(v.I)
	}
	return v.F
}

// IsOp reports whether the value is the given operator token.
func (v Value) IsOp(op string) bool { return v.Kind == KindOperator && v.S == op }

// Clone returns a deep copy of the value.
func (v Value) Clone() Value {
	out := v
	switch v.Kind {
	case KindObject:
		if v.Obj != nil {
			out.Obj = v.Obj.Clone()
		}
	case KindShape:
		if v.Shape != nil {
			out.Shape = v.Shape.Clone()
		}
	case KindShapeRef:
		if v.Ref != nil {
			out.Ref = v.Ref.Clone()
		}
	case KindArgList:
		out.List = make([]Value, len(v.List))
		for i, item := range v.List {
			out.List[i] = item.Clone()
		}
	case KindAssign:
		if v.As != nil {
			out.As = &Assignment{Name: v.As.Name, Val: v.As.Val.Clone()}
		}
	case KindImport:
		if v.Imp != nil {
			imp := &ImportCall{Shape: v.Imp.Shape, IgnoreExtra: v.Imp.IgnoreExtra}
			imp.LArgs = make([]Value, len(v.Imp.LArgs))
			for i, a := range v.Imp.LArgs {
				imp.LArgs[i] = a.Clone()
			}
			if v.Imp.DArgs != nil {
				imp.DArgs = make(map[string]Value, len(v.Imp.DArgs))
				for k, a := range v.Imp.DArgs {
					imp.DArgs[k] = a.Clone()
				}
			}
			out.Imp = imp
		}
	case KindTree:
		if v.Tree != nil {
			out.Tree = &DeferredShape{
				Tree: v.Tree.Tree.Clone(),
				Args: append([]string(nil), v.Tree.Args...),
			}
		}
	}
	return out
}

// Format renders the value the way symbol name patterns expect:
// integers bare, floats in shortest form, objects as k1v1_k2v2 in
// insertion order.
func (v Value) Format() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.I, 10)
	case KindFloat:
		return strconv.FormatFloat(v.F, 'g', -1, 64)
	case KindString, KindName:
		return v.S
	case KindPoint:
		return strconv.FormatFloat(v.P.X, 'g', -1, 64) + "_" + strconv.FormatFloat(v.P.Y, 'g', -1, 64)
	case KindObject:
		out := ""
		for i, e := range v.Obj.Entries {
			if i > 0 {
				out += "_"
			}
			out += e.Key + e.Val.Format()
		}
		return out
	case KindNone:
		return "none"
	default:
		return v.Kind.String()
	}
}

// String renders a short diagnostic form used in error messages.
func (v Value) String() string {
	switch v.Kind {
	case KindOperator:
		return "'" + v.S + "'"
	case KindName, KindAssignName:
		return v.Kind.String() + " \"" + v.S + "\""
	case KindString:
		return "\"" + v.S + "\""
	case KindInt:
		return strconv.FormatInt(v.I, 10)
	case KindFloat:
		return strconv.FormatFloat(v.F, 'g', -1, 64)
	default:
		return v.Kind.String()
	}
}
