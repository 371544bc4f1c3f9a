package calltree

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/maskfab/plsc/pkg/gds"
	"github.com/maskfab/plsc/pkg/geom"
)

// fakeRoot is a minimal Root for expression tests.
type fakeRoot struct {
	lib     *gds.Library
	shapes  map[string]*ShapeDef
	params  map[string][]*ParamSymEntry
	imports map[string]*fakeRoot
	globals map[string]Value
	hash    string
}

func newFakeRoot() *fakeRoot {
	return &fakeRoot{
		lib:     gds.NewLibrary("test"),
		shapes:  map[string]*ShapeDef{},
		params:  map[string][]*ParamSymEntry{},
		imports: map[string]*fakeRoot{},
		globals: map[string]Value{},
		hash:    "12345",
	}
}

func (r *fakeRoot) Path() string                        { return "/tmp/test.pls" }
func (r *fakeRoot) ScriptHash() string                  { return r.hash }
func (r *fakeRoot) Clock() time.Time                    { return time.Date(2024, 4, 1, 12, 30, 0, 0, time.UTC) }
func (r *fakeRoot) Library() *gds.Library               { return r.lib }
func (r *fakeRoot) ParentScript() Root                  { return nil }
func (r *fakeRoot) GlobalValues() map[string]Value      { return r.globals }
func (r *fakeRoot) ShapeDef(name string) (*ShapeDef, bool) {
	def, ok := r.shapes[name]
	return def, ok
}

func (r *fakeRoot) ImportedShapeDef(name string) (Root, *ShapeDef, bool) {
	for _, imp := range r.imports {
		if def, ok := imp.shapes[name]; ok {
			return imp, def, true
		}
	}
	return nil, nil, false
}

func (r *fakeRoot) ImportScript(ns string) (Root, bool) {
	imp, ok := r.imports[ns]
	if !ok {
		return nil, false
	}
	return imp, true
}

func (r *fakeRoot) FindParamSym(name string) ([]*ParamSymEntry, bool) {
	want := strings.ToLower(strings.NewReplacer("-", "", "_", "", "{", "", "}", "").Replace(name))
	for clean, entries := range r.params {
		norm := strings.ToLower(strings.NewReplacer("-", "", "_", "", "{", "", "}", "").Replace(clean))
		if norm == want || strings.HasPrefix(norm, want) {
			return entries, true
		}
	}
	return nil, false
}

// defineShape registers a user shape with the given body source.
func (r *fakeRoot) defineShape(t *testing.T, name string, args []string, body string) {
	t.Helper()
	tree, err := New(r, body)
	if err != nil {
		t.Fatalf("build %s body: %v", name, err)
	}
	if err := tree.CreateLiterals(); err != nil {
		t.Fatalf("lex %s body: %v", name, err)
	}
	r.shapes[name] = &ShapeDef{Args: args, Tree: tree}
}

func evalExpr(t *testing.T, root Root, src string) []Value {
	t.Helper()
	tree, err := New(root, src)
	if err != nil {
		t.Fatalf("build %q: %v", src, err)
	}
	if err := tree.CreateLiterals(); err != nil {
		t.Fatalf("lex %q: %v", src, err)
	}
	tree.ResolveNames(map[string]Value{}, true)
	if err := tree.Evaluate(); err != nil {
		t.Fatalf("evaluate %q: %v", src, err)
	}
	return tree.Result
}

func evalExprErr(t *testing.T, root Root, src string) error {
	t.Helper()
	tree, err := New(root, src)
	if err != nil {
		return err
	}
	if err := tree.CreateLiterals(); err != nil {
		return err
	}
	tree.ResolveNames(map[string]Value{}, true)
	return tree.Evaluate()
}

func singleValue(t *testing.T, res []Value) Value {
	t.Helper()
	if len(res) != 1 {
		t.Fatalf("expected single result, got %v", res)
	}
	return res[0]
}

func TestPrecedenceMulBeforeAdd(t *testing.T) {
	v := singleValue(t, evalExpr(t, newFakeRoot(), "1 + 2 * 3"))
	if v.Kind != KindInt || v.I != 7 {
		t.Fatalf("expected int 7, got %v", v)
	}
}

// the single-pass reducer makes ^ left-associative
func TestPowerIsLeftAssociative(t *testing.T) {
	v := singleValue(t, evalExpr(t, newFakeRoot(), "2 ^ 3 ^ 2"))
	if v.Kind != KindInt || v.I != 64 {
		t.Fatalf("expected (2^3)^2 = 64, got %v", v)
	}
}

func TestSubtractionIsLeftAssociative(t *testing.T) {
	v := singleValue(t, evalExpr(t, newFakeRoot(), "10 - 4 - 3"))
	if v.I != 3 {
		t.Fatalf("expected (10-4)-3 = 3, got %v", v)
	}
}

func TestDivisionYieldsFloat(t *testing.T) {
	v := singleValue(t, evalExpr(t, newFakeRoot(), "6 / 3"))
	if v.Kind != KindFloat || v.F != 2 {
		t.Fatalf("expected float 2, got %v", v)
	}
}

func TestUnaryMinus(t *testing.T) {
	v := singleValue(t, evalExpr(t, newFakeRoot(), "-5 + 3"))
	if v.I != -2 {
		t.Fatalf("expected -2, got %v", v)
	}
}

func TestPointArithmetic(t *testing.T) {
	v := singleValue(t, evalExpr(t, newFakeRoot(), "[1, 2] + [3, 4]"))
	if v.Kind != KindPoint || v.P != (geom.Point{X: 4, Y: 6}) {
		t.Fatalf("expected point (4,6), got %v", v)
	}
	v = singleValue(t, evalExpr(t, newFakeRoot(), "[1, 2] - [3, 4]"))
	if v.P != (geom.Point{X: -2, Y: -2}) {
		t.Fatalf("expected point (-2,-2), got %v", v)
	}
}

func TestPointWithNegativeComponent(t *testing.T) {
	v := singleValue(t, evalExpr(t, newFakeRoot(), "[0, -4]"))
	if v.Kind != KindPoint || v.P != (geom.Point{X: 0, Y: -4}) {
		t.Fatalf("expected point (0,-4), got %v", v)
	}
}

func TestStringConcatCoercesNumbers(t *testing.T) {
	v := singleValue(t, evalExpr(t, newFakeRoot(), `"a" + 5`))
	if v.Kind != KindString || v.S != "a5" {
		t.Fatalf("expected \"a5\", got %v", v)
	}
	v = singleValue(t, evalExpr(t, newFakeRoot(), `1.5 + "x"`))
	if v.S != "1.5x" {
		t.Fatalf("expected \"1.5x\", got %v", v)
	}
}

func TestObjectConstruction(t *testing.T) {
	v := singleValue(t, evalExpr(t, newFakeRoot(), `{a=1, b="x"}`))
	if v.Kind != KindObject {
		t.Fatalf("expected object, got %v", v)
	}
	a, _ := v.Obj.Get("a")
	if a.I != 1 {
		t.Errorf("a should be 1, got %v", a)
	}
	b, _ := v.Obj.Get("b")
	if b.S != "x" {
		t.Errorf("b should be \"x\", got %v", b)
	}
}

func TestObjectMergeRightWins(t *testing.T) {
	v := singleValue(t, evalExpr(t, newFakeRoot(), `{a=1, a=3}`))
	a, _ := v.Obj.Get("a")
	if a.I != 3 {
		t.Fatalf("right should win on key conflict, got %v", a)
	}
}

func TestUnpackObject(t *testing.T) {
	v := singleValue(t, evalExpr(t, newFakeRoot(), `*{dx=5, dy=7}`))
	if v.Kind != KindArgList {
		t.Fatalf("expected argument list, got %v", v)
	}
	last := v.List[len(v.List)-1]
	if last.Kind != KindAssign || last.As.Name != "__ignore_extra_args__" {
		t.Fatalf("expected ignore-extra sentinel, got %v", last)
	}
}

func TestAssignment(t *testing.T) {
	v := singleValue(t, evalExpr(t, newFakeRoot(), "foo = 42"))
	if v.Kind != KindAssign || v.As.Name != "foo" || v.As.Val.I != 42 {
		t.Fatalf("expected assignment foo=42, got %v", v)
	}
}

func TestMagicNamesResolve(t *testing.T) {
	v := singleValue(t, evalExpr(t, newFakeRoot(), `"build_" + __HASH__`))
	if v.Kind != KindString || v.S != "build_12345" {
		t.Fatalf("expected build_12345, got %v", v)
	}
	v = singleValue(t, evalExpr(t, newFakeRoot(), "True + False"))
	if v.I != 1 {
		t.Fatalf("True+False should be 1, got %v", v)
	}
}

func TestMagicOverridesUserBinding(t *testing.T) {
	root := newFakeRoot()
	root.globals["True"] = IntValue(99)
	v := singleValue(t, evalExpr(t, root, "True"))
	if v.I != 1 {
		t.Fatalf("magic True must shadow the user global, got %v", v)
	}
}

func TestGlobalsFoldIn(t *testing.T) {
	root := newFakeRoot()
	root.globals["pitch"] = IntValue(20)
	v := singleValue(t, evalExpr(t, root, "pitch * 2"))
	if v.I != 40 {
		t.Fatalf("expected 40, got %v", v)
	}
}

func TestMissingCombinatorHint(t *testing.T) {
	err := evalExprErr(t, newFakeRoot(), "rect(dx=2, dy=2) rect(dx=2, dy=2)")
	if err == nil || !strings.Contains(err.Error(), "missing") {
		t.Fatalf("expected missing-combinator hint, got %v", err)
	}
}

func TestShapeAlgebraBoundingBoxes(t *testing.T) {
	root := newFakeRoot()
	// (A + B) - B stays within the bounds of A + B
	res := singleValue(t, evalExpr(t, root,
		"(rect(dx=4, dy=4, c=[0,0]) + rect(dx=4, dy=4, c=[3,0])) - rect(dx=4, dy=4, c=[3,0])"))
	if res.Kind != KindShape {
		t.Fatalf("expected shape, got %v", res)
	}
	min, max := res.Shape.BoundsCorners()
	if min.X < -2-1e-9 || max.X > 5+1e-9 || min.Y < -2-1e-9 || max.Y > 2+1e-9 {
		t.Fatalf("difference escaped the union bounds: %v %v", min, max)
	}
}

func TestShapeIntersection(t *testing.T) {
	res := singleValue(t, evalExpr(t, newFakeRoot(),
		"rect(dx=4, dy=4, c=[0,0]) * rect(dx=4, dy=4, c=[2,0])"))
	if math.Abs(res.Shape.Width()-2) > 1e-9 {
		t.Fatalf("intersection width should be 2, got %g", res.Shape.Width())
	}
}
