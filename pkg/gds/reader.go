package gds

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/maskfab/plsc/pkg/geom"
)

type record struct {
	rectype byte
	data    []byte
}

func readRecord(r *bufio.Reader) (*record, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	length := int(binary.BigEndian.Uint16(hdr[:2]))
	if length < 4 {
		return nil, fmt.Errorf("gds read: record length %d", length)
	}
	data := make([]byte, length-4)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return &record{rectype: hdr[2], data: data}, nil
}

func (r *record) int16s() []int16 {
	out := make([]int16, len(r.data)/2)
	for i := range out {
		out[i] = int16(binary.BigEndian.Uint16(r.data[2*i:]))
	}
	return out
}

func (r *record) int32s() []int32 {
	out := make([]int32, len(r.data)/4)
	for i := range out {
		out[i] = int32(binary.BigEndian.Uint32(r.data[4*i:]))
	}
	return out
}

func (r *record) str() string {
	b := r.data
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return string(b)
}

func (r *record) real8s() []float64 {
	out := make([]float64, len(r.data)/8)
	for i := range out {
		out[i] = real8Decode(binary.BigEndian.Uint64(r.data[8*i:]))
	}
	return out
}

func userUnits(v int32) float64 { return float64(v) / dbPerUser }

// Read parses a GDSII stream into a library.
func Read(r io.Reader) (*Library, error) {
	br := bufio.NewReader(r)
	lib := NewLibrary("")
	var cell *Cell

	for {
		rec, err := readRecord(br)
		if err == io.EOF {
			return lib, nil
		}
		if err != nil {
			return nil, err
		}
		switch rec.rectype {
		case recLibName:
			lib.Name = rec.str()

		case recBgnStr:
			cell = &Cell{}

		case recStrName:
			if cell != nil {
				cell.Name = rec.str()
			}

		case recEndStr:
			if cell != nil && cell.Name != "" {
				lib.Cells[cell.Name] = cell
			}
			cell = nil

		case recBoundary:
			poly, err := readBoundary(br)
			if err != nil {
				return nil, err
			}
			if cell != nil {
				cell.Polygons = append(cell.Polygons, *poly)
			}

		case recSRef, recARef:
			ref, err := readReference(br, rec.rectype == recARef)
			if err != nil {
				return nil, err
			}
			if cell != nil {
				cell.Refs = append(cell.Refs, ref)
			}

		case recEndLib:
			return lib, nil
		}
	}
}

func readBoundary(br *bufio.Reader) (*Polygon, error) {
	poly := &Polygon{}
	for {
		rec, err := readRecord(br)
		if err != nil {
			return nil, err
		}
		switch rec.rectype {
		case recLayer:
			if v := rec.int16s(); len(v) > 0 {
				poly.Layer = int(v[0])
			}
		case recXY:
			xy := rec.int32s()
			for i := 0; i+1 < len(xy); i += 2 {
				poly.Points = append(poly.Points, geom.Point{
					X: userUnits(xy[i]), Y: userUnits(xy[i+1]),
				})
			}
			// drop the repeated closing vertex
			n := len(poly.Points)
			if n > 1 && poly.Points[0] == poly.Points[n-1] {
				poly.Points = poly.Points[:n-1]
			}
		case recEndEl:
			return poly, nil
		}
	}
}

func readReference(br *bufio.Reader, isArray bool) (*Reference, error) {
	ref := &Reference{}
	for {
		rec, err := readRecord(br)
		if err != nil {
			return nil, err
		}
		switch rec.rectype {
		case recSName:
			ref.CellName = rec.str()
		case recAngle:
			if v := rec.real8s(); len(v) > 0 {
				ref.Rotation = v[0]
			}
		case recColRow:
			if v := rec.int16s(); len(v) == 2 {
				ref.Cols, ref.Rows = int(v[0]), int(v[1])
			}
		case recXY:
			xy := rec.int32s()
			if len(xy) >= 2 {
				ref.Origin = geom.Point{X: userUnits(xy[0]), Y: userUnits(xy[1])}
			}
			if isArray && len(xy) >= 6 && ref.Cols > 0 && ref.Rows > 0 {
				ref.Spacing = geom.Point{
					X: (userUnits(xy[2]) - ref.Origin.X) / float64(ref.Cols),
					Y: (userUnits(xy[5]) - ref.Origin.Y) / float64(ref.Rows),
				}
			}
		case recEndEl:
			return ref, nil
		}
	}
}

// ReadFile parses a GDSII file into a library.
func ReadFile(path string) (*Library, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}
