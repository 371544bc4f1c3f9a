package gds

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"time"
)

// GDSII record types used by the writer and reader.
const (
	recHeader   = 0x00
	recBgnLib   = 0x01
	recLibName  = 0x02
	recUnits    = 0x03
	recEndLib   = 0x04
	recBgnStr   = 0x05
	recStrName  = 0x06
	recEndStr   = 0x07
	recBoundary = 0x08
	recSRef     = 0x0A
	recARef     = 0x0B
	recLayer    = 0x0D
	recDatatype = 0x0E
	recXY       = 0x10
	recEndEl    = 0x11
	recSName    = 0x12
	recColRow   = 0x13
	recSTrans   = 0x1A
	recAngle    = 0x1C
)

// GDSII data type codes.
const (
	dtNone   = 0x00
	dtBitArr = 0x01
	dtInt16  = 0x02
	dtInt32  = 0x03
	dtReal8  = 0x05
	dtAscii  = 0x06
)

// Library units: 1 user unit = 1 um, database precision 1e-10 m, so
// one user unit spans 10000 database units.
const (
	userUnit  = 1e-6
	precision = 1e-10
	dbPerUser = userUnit / precision
)

type recordWriter struct {
	w   *bufio.Writer
	err error
}

func (rw *recordWriter) record(rectype, datatype byte, payload []byte) {
	if rw.err != nil {
		return
	}
	var hdr [4]byte
	binary.BigEndian.PutUint16(hdr[:2], uint16(4+len(payload)))
	hdr[2] = rectype
	hdr[3] = datatype
	if _, err := rw.w.Write(hdr[:]); err != nil {
		rw.err = err
		return
	}
	_, rw.err = rw.w.Write(payload)
}

func (rw *recordWriter) int16s(rectype byte, vals ...int16) {
	payload := make([]byte, 2*len(vals))
	for i, v := range vals {
		binary.BigEndian.PutUint16(payload[2*i:], uint16(v))
	}
	rw.record(rectype, dtInt16, payload)
}

func (rw *recordWriter) int32s(rectype byte, vals ...int32) {
	payload := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.BigEndian.PutUint32(payload[4*i:], uint32(v))
	}
	rw.record(rectype, dtInt32, payload)
}

func (rw *recordWriter) str(rectype byte, s string) {
	b := []byte(s)
	if len(b)%2 != 0 {
		b = append(b, 0)
	}
	rw.record(rectype, dtAscii, b)
}

func (rw *recordWriter) reals(rectype byte, vals ...float64) {
	payload := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.BigEndian.PutUint64(payload[8*i:], real8(v))
	}
	rw.record(rectype, dtReal8, payload)
}

// real8 encodes a float in the GDSII excess-64, base-16 format.
func real8(f float64) uint64 {
	if f == 0 {
		return 0
	}
	var sign uint64
	if f < 0 {
		sign = 1 << 63
		f = -f
	}
	exp := 64
	for f >= 1 {
		f /= 16
		exp++
	}
	for f < 1.0/16 {
		f *= 16
		exp--
	}
	mantissa := uint64(f * (1 << 56))
	return sign | uint64(exp)<<56 | mantissa
}

// real8Decode is the inverse of real8.
func real8Decode(bits uint64) float64 {
	if bits == 0 {
		return 0
	}
	mantissa := float64(bits&0x00FFFFFFFFFFFFFF) / (1 << 56)
	exp := int((bits>>56)&0x7F) - 64
	v := mantissa * math.Pow(16, float64(exp))
	if bits&(1<<63) != 0 {
		return -v
	}
	return v
}

func dbUnits(v float64) int32 {
	return int32(math.Round(v * dbPerUser))
}

func timestamp(t time.Time) []int16 {
	return []int16{
		int16(t.Year()), int16(t.Month()), int16(t.Day()),
		int16(t.Hour()), int16(t.Minute()), int16(t.Second()),
	}
}

// Write emits the library as a GDSII stream. Cells are written in
// sorted name order.
func (l *Library) Write(w io.Writer, now time.Time) error {
	rw := &recordWriter{w: bufio.NewWriter(w)}
	ts := append(timestamp(now), timestamp(now)...)
	rw.int16s(recHeader, 600)
	rw.int16s(recBgnLib, ts...)
	name := l.Name
	if name == "" {
		name = "library"
	}
	rw.str(recLibName, name)
	rw.reals(recUnits, precision/userUnit, precision)

	for _, cellName := range l.CellNames() {
		cell := l.Cells[cellName]
		rw.int16s(recBgnStr, ts...)
		rw.str(recStrName, cellName)
		for _, p := range cell.Polygons {
			rw.record(recBoundary, dtNone, nil)
			rw.int16s(recLayer, int16(p.Layer))
			rw.int16s(recDatatype, 0)
			xy := make([]int32, 0, 2*len(p.Points)+2)
			for _, pt := range p.Points {
				xy = append(xy, dbUnits(pt.X), dbUnits(pt.Y))
			}
			if len(p.Points) > 0 {
				xy = append(xy, dbUnits(p.Points[0].X), dbUnits(p.Points[0].Y))
			}
			rw.int32s(recXY, xy...)
			rw.record(recEndEl, dtNone, nil)
		}
		for _, r := range cell.Refs {
			if r.IsArray() {
				rw.record(recARef, dtNone, nil)
				rw.str(recSName, r.CellName)
				if r.Rotation != 0 {
					rw.record(recSTrans, dtBitArr, []byte{0, 0})
					rw.reals(recAngle, r.Rotation)
				}
				rw.int16s(recColRow, int16(r.Cols), int16(r.Rows))
				rw.int32s(recXY,
					dbUnits(r.Origin.X), dbUnits(r.Origin.Y),
					dbUnits(r.Origin.X+float64(r.Cols)*r.Spacing.X), dbUnits(r.Origin.Y),
					dbUnits(r.Origin.X), dbUnits(r.Origin.Y+float64(r.Rows)*r.Spacing.Y))
			} else {
				rw.record(recSRef, dtNone, nil)
				rw.str(recSName, r.CellName)
				if r.Rotation != 0 {
					rw.record(recSTrans, dtBitArr, []byte{0, 0})
					rw.reals(recAngle, r.Rotation)
				}
				rw.int32s(recXY, dbUnits(r.Origin.X), dbUnits(r.Origin.Y))
			}
			rw.record(recEndEl, dtNone, nil)
		}
		rw.record(recEndStr, dtNone, nil)
	}
	rw.record(recEndLib, dtNone, nil)
	if rw.err != nil {
		return fmt.Errorf("gds write: %w", rw.err)
	}
	return rw.w.Flush()
}

// WriteFile writes the library to a GDSII file.
func (l *Library) WriteFile(path string, now time.Time) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return l.Write(f, now)
}
