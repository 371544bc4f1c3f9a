package geom

import (
	qrcode "github.com/skip2/go-qrcode"

	"github.com/maskfab/plsc/pkg/plserr"
)

// TextSpec describes a text primitive. Exactly one of Dy (height) or
// Dx (width) must be set; Anchor defaults to centering on At.
type TextSpec struct {
	Text    string
	Dy      float64
	Dx      float64
	ByWidth bool
	Anchor  string
	At      Point
}

// QRSpec describes a qrcode primitive. Pixel sets the module size; Dx
// sets the total width instead when Pixel is zero.
type QRSpec struct {
	Text   string
	Pixel  float64
	Dx     float64
	Anchor string
	At     Point
}

// Backend constructs primitive shapes. The evaluator only talks to the
// geometry engine through this interface.
type Backend interface {
	RectCorners(p1, p2 Point) (*Shape, error)
	RectSized(w, h float64, anchor string, at Point) (*Shape, error)
	Polygon(pts []Point) (*Shape, error)
	Text(spec TextSpec) (*Shape, error)
	QRCode(spec QRSpec) (*Shape, error)
}

// Engine is the default Backend implementation.
type Engine struct{}

// RectCorners builds a rectangle spanning the two corners.
func (Engine) RectCorners(p1, p2 Point) (*Shape, error) {
	return rectangle(p1, p2), nil
}

// RectSized builds a w times h rectangle whose anchor sits on at.
func (Engine) RectSized(w, h float64, anchor string, at Point) (*Shape, error) {
	if anchor == "" {
		anchor = "c"
	}
	if !IsAnchor(anchor) {
		return nil, plserr.New(plserr.DomainError, "invalid anchor %q in rect call", anchor)
	}
	var p1, p2 Point
	switch anchor {
	case "ne":
		p1, p2 = at, Point{at.X - w, at.Y - h}
	case "se":
		p1, p2 = at, Point{at.X - w, at.Y + h}
	case "sw":
		p1, p2 = at, Point{at.X + w, at.Y + h}
	case "nw":
		p1, p2 = at, Point{at.X + w, at.Y - h}
	case "n":
		p1 = Point{at.X + w/2, at.Y}
		p2 = Point{p1.X - w, p1.Y - h}
	case "e":
		p1 = Point{at.X, at.Y + h/2}
		p2 = Point{p1.X - w, p1.Y - h}
	case "s":
		p1 = Point{at.X - w/2, at.Y}
		p2 = Point{p1.X + w, p1.Y + h}
	case "w":
		p1 = Point{at.X, at.Y - h/2}
		p2 = Point{p1.X + w, p1.Y + h}
	default: // c
		p1 = Point{at.X - w/2, at.Y - h/2}
		p2 = Point{at.X + w/2, at.Y + h/2}
	}
	return rectangle(p1, p2), nil
}

// Polygon builds a polygon from the given vertex list.
func (Engine) Polygon(pts []Point) (*Shape, error) {
	if len(pts) < 3 {
		return nil, plserr.New(plserr.DomainError, "polygon needs at least 3 points, got %d", len(pts))
	}
	return &Shape{Polys: []Polygon{append(Polygon(nil), pts...)}}, nil
}

// Text renders the string with the built-in raster font and aligns it
// on the anchor.
func (e Engine) Text(spec TextSpec) (*Shape, error) {
	if spec.Anchor != "" && !IsAnchor(spec.Anchor) {
		return nil, plserr.New(plserr.DomainError, "invalid anchor %q in text call", spec.Anchor)
	}
	scale := 1.0
	if spec.ByWidth {
		cols := float64(len([]rune(spec.Text)))*(glyphCols+1) - 1
		if cols <= 0 {
			cols = 1
		}
		scale = spec.Dx / cols
	} else {
		scale = spec.Dy / glyphRows
	}
	s := renderText(spec.Text, scale)
	anchor := spec.Anchor
	if anchor == "" {
		anchor = "c"
	}
	if err := s.AlignAnchor(anchor, spec.At); err != nil {
		return nil, err
	}
	return s, nil
}

// QRCode renders the string as a QR code, one rectangle per module
// run, and aligns it on the anchor.
func (e Engine) QRCode(spec QRSpec) (*Shape, error) {
	if spec.Anchor != "" && !IsAnchor(spec.Anchor) {
		return nil, plserr.New(plserr.DomainError, "invalid anchor %q in qrcode call", spec.Anchor)
	}
	q, err := qrcode.New(spec.Text, qrcode.Medium)
	if err != nil {
		return nil, plserr.Wrap(plserr.GeomError, err, "qrcode %q", spec.Text)
	}
	q.DisableBorder = true
	bitmap := q.Bitmap()
	px := spec.Pixel
	if px == 0 {
		if spec.Dx == 0 {
			return nil, plserr.New(plserr.DomainError, "qrcode needs 'pixel' or 'dx'")
		}
		px = spec.Dx / float64(len(bitmap))
	}
	s := &Shape{}
	rows := len(bitmap)
	for y, row := range bitmap {
		x := 0
		for x < len(row) {
			if !row[x] {
				x++
				continue
			}
			run := x
			for run < len(row) && row[run] {
				run++
			}
			// bitmap row 0 is the top
			y0 := float64(rows-1-y) * px
			s.Polys = append(s.Polys, Polygon{
				{float64(x) * px, y0},
				{float64(run) * px, y0},
				{float64(run) * px, y0 + px},
				{float64(x) * px, y0 + px},
			})
			x = run
		}
	}
	anchor := spec.Anchor
	if anchor == "" {
		anchor = "c"
	}
	if err := s.AlignAnchor(anchor, spec.At); err != nil {
		return nil, err
	}
	return s, nil
}
