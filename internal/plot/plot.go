// Package plot renders a cell library to PDF, one page per cell,
// polygons colored by layer.
package plot

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-pdf/fpdf"

	"github.com/maskfab/plsc/pkg/gds"
)

// layerPalette cycles per layer number.
var layerPalette = [][3]int{
	{31, 119, 180},
	{255, 127, 14},
	{44, 160, 44},
	{214, 39, 40},
	{148, 103, 189},
	{140, 86, 75},
	{227, 119, 194},
	{127, 127, 127},
	{188, 189, 34},
	{23, 190, 207},
}

// WritePDF plots every cell of the library. A single-cell library
// writes `<base>.pdf`; otherwise each cell goes to `<base>/<cell>.pdf`.
// Width is the drawing width in millimeters.
func WritePDF(lib *gds.Library, base string, width float64) error {
	names := lib.CellNames()
	for _, name := range names {
		path := base + ".pdf"
		if len(names) > 1 {
			path = filepath.Join(base, name+".pdf")
		}
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		if err := writeCell(lib, name, path, width); err != nil {
			return err
		}
	}
	return nil
}

func writeCell(lib *gds.Library, name, path string, width float64) error {
	min, max, ok := lib.BoundingBox(name)
	if !ok {
		return nil // nothing to draw
	}
	w := max.X - min.X
	h := max.Y - min.Y
	if w <= 0 {
		w = 1
	}
	if h <= 0 {
		h = 1
	}
	const margin = 10.0
	scale := width / w
	pageW := width + 2*margin
	pageH := h*scale + 2*margin

	pdf := fpdf.NewCustom(&fpdf.InitType{
		UnitStr: "mm",
		Size:    fpdf.SizeType{Wd: pageW, Ht: pageH},
	})
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 8)
	pdf.SetAlpha(0.6, "Normal")

	for _, poly := range lib.Flatten(name) {
		if len(poly.Points) < 3 {
			continue
		}
		c := layerPalette[((poly.Layer%len(layerPalette))+len(layerPalette))%len(layerPalette)]
		pdf.SetFillColor(c[0], c[1], c[2])
		pts := make([]fpdf.PointType, len(poly.Points))
		for i, p := range poly.Points {
			pts[i] = fpdf.PointType{
				X: margin + (p.X-min.X)*scale,
				Y: margin + (max.Y-p.Y)*scale,
			}
		}
		pdf.Polygon(pts, "F")
	}

	pdf.SetAlpha(1, "Normal")
	pdf.SetTextColor(0, 0, 0)
	pdf.Text(margin, margin/2, fmt.Sprintf("%s [um]", name))
	return pdf.OutputFileAndClose(path)
}
