package gds

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/maskfab/plsc/pkg/geom"
)

func square(x, y, size float64, layer int) Polygon {
	return Polygon{
		Points: []geom.Point{
			{X: x, Y: y}, {X: x + size, Y: y},
			{X: x + size, Y: y + size}, {X: x, Y: y + size},
		},
		Layer: layer,
	}
}

func TestCellNamesSorted(t *testing.T) {
	lib := NewLibrary("test")
	lib.GetOrCreateCell("zeta")
	lib.GetOrCreateCell("alpha")
	lib.GetOrCreateCell("mid")
	names := lib.CellNames()
	if names[0] != "alpha" || names[1] != "mid" || names[2] != "zeta" {
		t.Fatalf("cells not sorted: %v", names)
	}
}

func TestGetOrCreateCellIdempotent(t *testing.T) {
	lib := NewLibrary("test")
	a := lib.GetOrCreateCell("a")
	b := lib.GetOrCreateCell("a")
	if a != b {
		t.Fatal("expected the same cell")
	}
}

func TestRemapLayers(t *testing.T) {
	cell := &Cell{Name: "c"}
	cell.Polygons = append(cell.Polygons, square(0, 0, 1, 3), square(2, 0, 1, 5))
	cell.RemapLayers(map[int]int{3: 7})
	if cell.Polygons[0].Layer != 7 {
		t.Errorf("layer 3 should remap to 7, got %d", cell.Polygons[0].Layer)
	}
	if cell.Polygons[1].Layer != 5 {
		t.Errorf("layer 5 should stay, got %d", cell.Polygons[1].Layer)
	}
}

func TestFlattenReference(t *testing.T) {
	lib := NewLibrary("test")
	unit := lib.GetOrCreateCell("unit")
	unit.Polygons = append(unit.Polygons, square(0, 0, 1, 1))
	top := lib.GetOrCreateCell("top")
	top.AddReference(&Reference{CellName: "unit", Origin: geom.Point{X: 10, Y: 0}})

	polys := lib.Flatten("top")
	if len(polys) != 1 {
		t.Fatalf("expected 1 flattened polygon, got %d", len(polys))
	}
	if polys[0].Points[0].X != 10 {
		t.Fatalf("reference origin not applied: %v", polys[0].Points[0])
	}
}

func TestFlattenArray(t *testing.T) {
	lib := NewLibrary("test")
	unit := lib.GetOrCreateCell("unit")
	unit.Polygons = append(unit.Polygons, square(0, 0, 1, 1))
	top := lib.GetOrCreateCell("top")
	top.AddReference(&Reference{
		CellName: "unit", Cols: 3, Rows: 2, Spacing: geom.Point{X: 2, Y: 2},
	})
	polys := lib.Flatten("top")
	if len(polys) != 6 {
		t.Fatalf("expected 6 array copies, got %d", len(polys))
	}
}

func TestBoundingBoxWithRotatedRef(t *testing.T) {
	lib := NewLibrary("test")
	unit := lib.GetOrCreateCell("unit")
	unit.Polygons = append(unit.Polygons, Polygon{
		Points: []geom.Point{{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 1}, {X: 0, Y: 1}},
		Layer:  1,
	})
	top := lib.GetOrCreateCell("top")
	top.AddReference(&Reference{CellName: "unit", Rotation: 90})
	min, max, ok := lib.BoundingBox("top")
	if !ok {
		t.Fatal("expected bounding box")
	}
	if math.Abs((max.X-min.X)-1) > 1e-9 || math.Abs((max.Y-min.Y)-4) > 1e-9 {
		t.Fatalf("rotated ref bbox should be 1x4, got %v %v", min, max)
	}
}

func TestReal8RoundTrip(t *testing.T) {
	values := []float64{0, 1, -1, 0.5, 1e-10, 1e-4, 12345.678, -0.001}
	for _, v := range values {
		got := real8Decode(real8(v))
		if math.Abs(got-v) > math.Abs(v)*1e-12+1e-18 {
			t.Errorf("real8 round trip %g -> %g", v, got)
		}
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	lib := NewLibrary("roundtrip")
	unit := lib.GetOrCreateCell("unit")
	unit.Polygons = append(unit.Polygons, square(0, 0, 2.5, 3))
	top := lib.GetOrCreateCell("top")
	top.AddReference(&Reference{CellName: "unit", Origin: geom.Point{X: 4, Y: -2}, Rotation: 90})
	top.AddReference(&Reference{
		CellName: "unit", Origin: geom.Point{X: 0, Y: 10},
		Cols: 2, Rows: 3, Spacing: geom.Point{X: 5, Y: 6},
	})

	var buf bytes.Buffer
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := lib.Write(&buf, now); err != nil {
		t.Fatal(err)
	}

	got, err := Read(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "roundtrip" {
		t.Errorf("library name lost: %q", got.Name)
	}
	gotUnit := got.Cell("unit")
	if gotUnit == nil || len(gotUnit.Polygons) != 1 {
		t.Fatalf("unit cell lost: %+v", gotUnit)
	}
	p := gotUnit.Polygons[0]
	if p.Layer != 3 {
		t.Errorf("layer lost: %d", p.Layer)
	}
	if len(p.Points) != 4 {
		t.Fatalf("expected 4 points after dropping the closing vertex, got %d", len(p.Points))
	}
	if math.Abs(p.Points[2].X-2.5) > 1e-9 {
		t.Errorf("coordinate lost precision: %v", p.Points[2])
	}

	gotTop := got.Cell("top")
	if gotTop == nil || len(gotTop.Refs) != 2 {
		t.Fatalf("top refs lost: %+v", gotTop)
	}
	sref := gotTop.Refs[0]
	if sref.CellName != "unit" || sref.Rotation != 90 || sref.Origin.X != 4 || sref.Origin.Y != -2 {
		t.Errorf("sref mismatch: %+v", sref)
	}
	aref := gotTop.Refs[1]
	if !aref.IsArray() || aref.Cols != 2 || aref.Rows != 3 {
		t.Errorf("aref shape mismatch: %+v", aref)
	}
	if math.Abs(aref.Spacing.X-5) > 1e-9 || math.Abs(aref.Spacing.Y-6) > 1e-9 {
		t.Errorf("aref spacing mismatch: %+v", aref.Spacing)
	}
}

func TestWriteDeterministic(t *testing.T) {
	build := func() *Library {
		lib := NewLibrary("det")
		c := lib.GetOrCreateCell("c")
		c.Polygons = append(c.Polygons, square(0, 0, 1, 1))
		return lib
	}
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	var a, b bytes.Buffer
	if err := build().Write(&a, now); err != nil {
		t.Fatal(err)
	}
	if err := build().Write(&b, now); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Fatal("identical libraries must serialize identically")
	}
}
