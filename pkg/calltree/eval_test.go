package calltree

import (
	"math"
	"strings"
	"testing"

	"github.com/maskfab/plsc/pkg/plserr"
)

func shapeResult(t *testing.T, res []Value) Value {
	t.Helper()
	v := singleValue(t, res)
	if v.Kind != KindShape {
		t.Fatalf("expected shape, got %v", v)
	}
	return v
}

func TestRectAnchoredSouthWest(t *testing.T) {
	v := shapeResult(t, evalExpr(t, newFakeRoot(), "rect(dx=10, dy=4, sw=[1,2])"))
	min, max := v.Shape.BoundsCorners()
	if min.X != 1 || min.Y != 2 || max.X != 11 || max.Y != 6 {
		t.Fatalf("sw-anchored rect bounds wrong: %v %v", min, max)
	}
}

func TestRectCorners(t *testing.T) {
	v := shapeResult(t, evalExpr(t, newFakeRoot(), "rect([0,0], [2,3])"))
	if v.Shape.Width() != 2 || v.Shape.Height() != 3 {
		t.Fatalf("corner rect size wrong: %gx%g", v.Shape.Width(), v.Shape.Height())
	}
}

func TestRectMultipleAnchorsFails(t *testing.T) {
	err := evalExprErr(t, newFakeRoot(), "rect(dx=2, dy=2, c=[0,0], ne=[1,1])")
	if !plserr.IsKind(err, plserr.DomainError) {
		t.Fatalf("expected DomainError, got %v", err)
	}
}

func TestPolygon(t *testing.T) {
	v := shapeResult(t, evalExpr(t, newFakeRoot(), "polygon([0,0], [4,0], [0,3])"))
	if v.Shape.Width() != 4 || v.Shape.Height() != 3 {
		t.Fatalf("polygon bounds wrong: %gx%g", v.Shape.Width(), v.Shape.Height())
	}
}

func TestScalarUtilities(t *testing.T) {
	cases := []struct {
		src  string
		want float64
	}{
		{"int(3.9)", 3},
		{"abs(0 - 4)", 4},
		{"min(3, 1, 2)", 1},
		{"max(3, 1, 2)", 3},
		{"mean(1, 2, 3)", 2},
		{"sqrt(16)", 4},
		{"cos(0)", 1},
		{"sin(90)", 1},
		{"sin(90, unit=\"deg\")", 1},
		{"asin(1)", 90},
		{"atan2(1, 1)", 45},
	}
	for _, tc := range cases {
		v := singleValue(t, evalExpr(t, newFakeRoot(), tc.src))
		if math.Abs(v.Num()-tc.want) > 1e-9 {
			t.Errorf("%s: expected %g, got %g", tc.src, tc.want, v.Num())
		}
	}
}

func TestCharFunction(t *testing.T) {
	v := singleValue(t, evalExpr(t, newFakeRoot(), "char(2)"))
	if v.Kind != KindString || v.S != "c" {
		t.Fatalf("char(2) should be \"c\", got %v", v)
	}
	err := evalExprErr(t, newFakeRoot(), "char(26)")
	if !plserr.IsKind(err, plserr.DomainError) {
		t.Fatalf("expected DomainError for char(26), got %v", err)
	}
}

func TestSqrtNegativeFails(t *testing.T) {
	err := evalExprErr(t, newFakeRoot(), "sqrt(0 - 1)")
	if !plserr.IsKind(err, plserr.DomainError) {
		t.Fatalf("expected DomainError, got %v", err)
	}
}

func TestTrigRadians(t *testing.T) {
	v := singleValue(t, evalExpr(t, newFakeRoot(), `cos(3.141592653589793, unit="rad")`))
	if math.Abs(v.Num()+1) > 1e-9 {
		t.Fatalf("cos(pi) should be -1, got %g", v.Num())
	}
	err := evalExprErr(t, newFakeRoot(), `cos(1, unit="grad")`)
	if !plserr.IsKind(err, plserr.DomainError) {
		t.Fatalf("expected DomainError for bad unit, got %v", err)
	}
}

func TestShapeMeasurements(t *testing.T) {
	root := newFakeRoot()
	if v := singleValue(t, evalExpr(t, root, "height(rect(dx=3, dy=7, c=[0,0]))")); v.Num() != 7 {
		t.Errorf("height should be 7, got %g", v.Num())
	}
	if v := singleValue(t, evalExpr(t, root, "width(rect(dx=3, dy=7, c=[0,0]))")); v.Num() != 3 {
		t.Errorf("width should be 3, got %g", v.Num())
	}
	if v := singleValue(t, evalExpr(t, root, "center(rect(dx=2, dy=2, sw=[0,0]))")); v.Kind != KindPoint || v.P.X != 1 || v.P.Y != 1 {
		t.Errorf("center should be (1,1), got %v", v)
	}
	v := shapeResult(t, evalExpr(t, root, "bb(rect(dx=2, dy=2, c=[0,0]) + rect(dx=2, dy=2, c=[4,0]))"))
	if v.Shape.Width() != 6 || v.Shape.Height() != 2 {
		t.Errorf("bb should be 6x2, got %gx%g", v.Shape.Width(), v.Shape.Height())
	}
}

func TestTranslateDot(t *testing.T) {
	v := shapeResult(t, evalExpr(t, newFakeRoot(), "rect(dx=2, dy=2, c=[0,0]).translate(5, 0)"))
	min, max := v.Shape.BoundsCorners()
	if min.X != 4 || max.X != 6 || min.Y != -1 || max.Y != 1 {
		t.Fatalf("translated bounds wrong: %v %v", min, max)
	}
}

func TestTranslateAnchorMode(t *testing.T) {
	v := shapeResult(t, evalExpr(t, newFakeRoot(), "rect(dx=2, dy=2, c=[0,0]).translate(sw=[10, 10])"))
	min, _ := v.Shape.BoundsCorners()
	if min.X != 10 || min.Y != 10 {
		t.Fatalf("anchor translate should put sw corner at (10,10), got %v", min)
	}
}

func TestRotateShape(t *testing.T) {
	v := shapeResult(t, evalExpr(t, newFakeRoot(), "rect(dx=4, dy=2, c=[0,0]).rotate(90)"))
	if math.Abs(v.Shape.Width()-2) > 1e-9 || math.Abs(v.Shape.Height()-4) > 1e-9 {
		t.Fatalf("rotated rect should be 2x4, got %gx%g", v.Shape.Width(), v.Shape.Height())
	}
}

func TestMirrorPointMirror(t *testing.T) {
	v := shapeResult(t, evalExpr(t, newFakeRoot(), "rect(dx=2, dy=2, sw=[1,1]).mirror(x=0, y=0)"))
	min, max := v.Shape.BoundsCorners()
	if min.X != -3 || min.Y != -3 || max.X != -1 || max.Y != -1 {
		t.Fatalf("point mirror bounds wrong: %v %v", min, max)
	}
}

func TestGrowShape(t *testing.T) {
	v := shapeResult(t, evalExpr(t, newFakeRoot(), "rect(dx=2, dy=2, c=[0,0]).grow(1)"))
	if math.Abs(v.Shape.Width()-4) > 1e-9 || math.Abs(v.Shape.Height()-4) > 1e-9 {
		t.Fatalf("grown rect should be 4x4, got %gx%g", v.Shape.Width(), v.Shape.Height())
	}
}

func TestScaleShape(t *testing.T) {
	v := shapeResult(t, evalExpr(t, newFakeRoot(), "rect(dx=2, dy=2, c=[0,0]).scale(3)"))
	if math.Abs(v.Shape.Width()-6) > 1e-9 {
		t.Fatalf("scaled rect should be 6 wide, got %g", v.Shape.Width())
	}
}

func TestArrayShape(t *testing.T) {
	v := shapeResult(t, evalExpr(t, newFakeRoot(), "rect(dx=1, dy=1, c=[0,0]).array(2, 2, 1, 1)"))
	// two 1-unit squares with a 1-unit gap per axis
	if math.Abs(v.Shape.Width()-3) > 1e-9 || math.Abs(v.Shape.Height()-3) > 1e-9 {
		t.Fatalf("2x2 array should span 3x3, got %gx%g", v.Shape.Width(), v.Shape.Height())
	}
}

func TestArrayZeroSizedFails(t *testing.T) {
	err := evalExprErr(t, newFakeRoot(), "rect(dx=1, dy=1, c=[0,0]).array(0, 2)")
	if !plserr.IsKind(err, plserr.DomainError) {
		t.Fatalf("expected DomainError, got %v", err)
	}
}

func TestUserShapeInstantiation(t *testing.T) {
	root := newFakeRoot()
	root.defineShape(t, "box", []string{"w", "h"}, "rect(dx=w, dy=h, c=[0,0])")
	v := shapeResult(t, evalExpr(t, root, "box(2, 4)"))
	if v.Shape.Width() != 2 || v.Shape.Height() != 4 {
		t.Fatalf("box(2,4) should be 2x4, got %gx%g", v.Shape.Width(), v.Shape.Height())
	}
	// named arguments
	v = shapeResult(t, evalExpr(t, root, "box(h=4, w=2)"))
	if v.Shape.Width() != 2 || v.Shape.Height() != 4 {
		t.Fatalf("box(h=4,w=2) should be 2x4, got %gx%g", v.Shape.Width(), v.Shape.Height())
	}
}

func TestUserShapeDuplicateBindFails(t *testing.T) {
	root := newFakeRoot()
	root.defineShape(t, "box", []string{"w", "h"}, "rect(dx=w, dy=h, c=[0,0])")
	err := evalExprErr(t, root, "box(2, 4, w=3)")
	if !plserr.IsKind(err, plserr.ArityError) {
		t.Fatalf("expected ArityError, got %v", err)
	}
}

func TestUnresolvedNameListsOffender(t *testing.T) {
	err := evalExprErr(t, newFakeRoot(), "rect(dx=missing_width, dy=4)")
	if !plserr.IsKind(err, plserr.NameError) {
		t.Fatalf("expected NameError, got %v", err)
	}
	var pe *plserr.Error
	if !asPlsError(err, &pe) {
		t.Fatalf("expected *plserr.Error, got %T", err)
	}
	if len(pe.Names) != 1 || pe.Names[0] != "missing_width" {
		t.Fatalf("expected exactly [missing_width], got %v", pe.Names)
	}
}

func asPlsError(err error, out **plserr.Error) bool {
	for err != nil {
		if e, ok := err.(*plserr.Error); ok {
			*out = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func TestCallSweep(t *testing.T) {
	root := newFakeRoot()
	root.defineShape(t, "sq", []string{"s"}, "rect(dx=s, dy=s, c=[0,0])")
	v := shapeResult(t, evalExpr(t, root, "call(start=[1], step=[1], stop=[3])(sq)"))
	// three concentric squares, the largest 3 wide
	if math.Abs(v.Shape.Width()-3) > 1e-9 {
		t.Fatalf("sweep union should be 3 wide, got %g", v.Shape.Width())
	}
}

func TestCallSweepScalar(t *testing.T) {
	root := newFakeRoot()
	root.defineShape(t, "sq", []string{"s"}, "rect(dx=s, dy=s, c=[0,0])")
	v := shapeResult(t, evalExpr(t, root, "call(start=2, step=2, stop=6)(sq)"))
	if math.Abs(v.Shape.Width()-6) > 1e-9 {
		t.Fatalf("scalar sweep union should be 6 wide, got %g", v.Shape.Width())
	}
}

func TestCallInvalidArgsFails(t *testing.T) {
	root := newFakeRoot()
	root.defineShape(t, "sq", []string{"s"}, "rect(dx=s, dy=s, c=[0,0])")
	err := evalExprErr(t, root, "call(start=1, step=1)(sq)")
	if !plserr.IsKind(err, plserr.ArityError) {
		t.Fatalf("expected ArityError, got %v", err)
	}
}

func TestParamSymbolMakeAndStability(t *testing.T) {
	root := newFakeRoot()
	body, err := New(root, "rect(dx=x, dy=y, c=[0,0])")
	if err != nil {
		t.Fatal(err)
	}
	if err := body.CreateLiterals(); err != nil {
		t.Fatal(err)
	}
	root.params["pad_x_y"] = []*ParamSymEntry{{
		NamePattern: "pad_x{x}_y{y}",
		Args:        []string{"x", "y"},
		Tree:        body,
		Layer:       1,
	}}

	res := evalExpr(t, root, `ref("pad", 14, 3)`)
	ref := singleValue(t, res)
	if ref.Kind != KindShapeRef {
		t.Fatalf("expected shaperef, got %v", ref)
	}
	if ref.Ref.CellName != "pad_x14_y3" {
		t.Fatalf("expected cell pad_x14_y3, got %q", ref.Ref.CellName)
	}
	cell := root.lib.Cell("pad_x14_y3")
	if cell == nil || len(cell.Polygons) != 1 || cell.Polygons[0].Layer != 1 {
		t.Fatalf("instantiated cell wrong: %+v", cell)
	}

	// identical parameters reuse the same cell
	before := len(root.lib.Cells)
	ref2 := singleValue(t, evalExpr(t, root, `ref("pad", 14, 3)`))
	if ref2.Ref.CellName != ref.Ref.CellName {
		t.Fatalf("identical params must give identical cell names")
	}
	if len(root.lib.Cells) != before {
		t.Fatalf("identical params must not create a new cell")
	}

	// different parameters create a distinct cell
	ref3 := singleValue(t, evalExpr(t, root, `ref("pad", 16, 2)`))
	if ref3.Ref.CellName == ref.Ref.CellName {
		t.Fatalf("different params must give different cell names")
	}
	if root.lib.Cell("pad_x16_y2") == nil {
		t.Fatalf("expected cell pad_x16_y2")
	}
}

func TestRefMissingSymbolFails(t *testing.T) {
	err := evalExprErr(t, newFakeRoot(), `ref("nothing", 1)`)
	if !plserr.IsKind(err, plserr.NameError) {
		t.Fatalf("expected NameError, got %v", err)
	}
}

func TestPlainRefNeedsExistingCell(t *testing.T) {
	root := newFakeRoot()
	root.lib.GetOrCreateCell("main")
	v := singleValue(t, evalExpr(t, root, `ref("main")`))
	if v.Kind != KindShapeRef || v.Ref.CellName != "main" {
		t.Fatalf("expected ref to main, got %v", v)
	}
	if err := evalExprErr(t, root, `ref("absent")`); !plserr.IsKind(err, plserr.NameError) {
		t.Fatalf("expected NameError for absent cell, got %v", err)
	}
}

func TestRefPlusRefCollects(t *testing.T) {
	root := newFakeRoot()
	root.lib.GetOrCreateCell("a")
	root.lib.GetOrCreateCell("b")
	res := evalExpr(t, root, `ref("a") + ref("b").translate(5, 0)`)
	if len(res) != 2 || res[0].Kind != KindShapeRef || res[1].Kind != KindShapeRef {
		t.Fatalf("expected two refs, got %v", res)
	}
	if res[1].Ref.Origin.X != 5 {
		t.Fatalf("second ref should be translated to x=5, got %v", res[1].Ref.Origin)
	}
}

func TestArrayReference(t *testing.T) {
	root := newFakeRoot()
	cell := root.lib.GetOrCreateCell("unit")
	sq := shapeResult(t, evalExpr(t, root, "rect(dx=2, dy=2, c=[0,0])"))
	cell.AddShape(sq.Shape, 1)

	v := singleValue(t, evalExpr(t, root, `ref("unit").array(3, 2, 1, 1)`))
	if v.Kind != KindShapeRef || !v.Ref.IsArray() {
		t.Fatalf("expected array reference, got %v", v)
	}
	if v.Ref.Cols != 3 || v.Ref.Rows != 2 {
		t.Fatalf("expected 3x2 array, got %dx%d", v.Ref.Cols, v.Ref.Rows)
	}
	// spacing is bounding box plus gap
	if v.Ref.Spacing.X != 3 || v.Ref.Spacing.Y != 3 {
		t.Fatalf("expected spacing (3,3), got %v", v.Ref.Spacing)
	}
}

func TestImportedShapeDotCall(t *testing.T) {
	root := newFakeRoot()
	imp := newFakeRoot()
	imp.defineShape(t, "box", []string{"w"}, "rect(dx=w, dy=w, c=[0,0])")
	root.imports["lib"] = imp
	v := shapeResult(t, evalExpr(t, root, "lib.box(5)"))
	if v.Shape.Width() != 5 {
		t.Fatalf("imported shape should be 5 wide, got %g", v.Shape.Width())
	}
}

func TestTreeDumpMentionsFunc(t *testing.T) {
	tree, err := New(newFakeRoot(), "rect(dx=1, dy=1)")
	if err != nil {
		t.Fatal(err)
	}
	if err := tree.CreateLiterals(); err != nil {
		t.Fatal(err)
	}
	dump := tree.String()
	if !strings.Contains(dump, "rect") {
		t.Fatalf("dump should mention rect: %s", dump)
	}
}
