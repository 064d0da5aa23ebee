package natural

import (
	"fmt"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// SegmentSize is the number of natural coordinates of one segment.
const SegmentSize = 12

// Block offsets of u, rp, rd and w inside a segment block.
const (
	OffsetU  = 0
	OffsetRp = 3
	OffsetRd = 6
	OffsetW  = 9
)

// SegmentCoordinates is the natural coordinate block of one segment, ordered
// (u, rp, rd, w). The same layout is used for velocities and accelerations.
type SegmentCoordinates [SegmentSize]float64

// SegmentVelocities is the time derivative of a SegmentCoordinates block.
type SegmentVelocities = SegmentCoordinates

// NewSegmentCoordinates packs the four components into a block.
func NewSegmentCoordinates(u, rp, rd, w r3.Vector) SegmentCoordinates {
	var q SegmentCoordinates
	q.set(OffsetU, u)
	q.set(OffsetRp, rp)
	q.set(OffsetRd, rd)
	q.set(OffsetW, w)
	return q
}

// SegmentCoordinatesFromSlice copies a 12-element slice into a block.
func SegmentCoordinatesFromSlice(s []float64) (SegmentCoordinates, error) {
	var q SegmentCoordinates
	if err := CheckDim("segment coordinates", SegmentSize, len(s)); err != nil {
		return q, err
	}
	copy(q[:], s)
	return q, nil
}

func (q *SegmentCoordinates) set(offset int, v r3.Vector) {
	q[offset], q[offset+1], q[offset+2] = v.X, v.Y, v.Z
}

func (q SegmentCoordinates) at(offset int) r3.Vector {
	return r3.Vector{X: q[offset], Y: q[offset+1], Z: q[offset+2]}
}

func (q SegmentCoordinates) U() r3.Vector  { return q.at(OffsetU) }
func (q SegmentCoordinates) Rp() r3.Vector { return q.at(OffsetRp) }
func (q SegmentCoordinates) Rd() r3.Vector { return q.at(OffsetRd) }
func (q SegmentCoordinates) W() r3.Vector  { return q.at(OffsetW) }

// V returns rp - rd.
func (q SegmentCoordinates) V() r3.Vector { return q.Rp().Sub(q.Rd()) }

// Axis returns u, v or w.
func (q SegmentCoordinates) Axis(a Axis) r3.Vector {
	switch a {
	case AxisU:
		return q.U()
	case AxisV:
		return q.V()
	default:
		return q.W()
	}
}

// Slice returns a copy of the block as a slice.
func (q SegmentCoordinates) Slice() []float64 {
	s := make([]float64, SegmentSize)
	copy(s, q[:])
	return s
}

// Coordinates is the concatenation of one block per segment in model index
// order; its length is 12 times the number of segments.
type Coordinates []float64

// NewCoordinates concatenates blocks.
func NewCoordinates(blocks ...SegmentCoordinates) Coordinates {
	q := make(Coordinates, 0, SegmentSize*len(blocks))
	for _, b := range blocks {
		q = append(q, b[:]...)
	}
	return q
}

// NbSegments returns the number of whole blocks.
func (q Coordinates) NbSegments() int { return len(q) / SegmentSize }

// Segment returns a copy of block i. The caller guarantees i is in range.
func (q Coordinates) Segment(i int) SegmentCoordinates {
	var b SegmentCoordinates
	copy(b[:], q[SegmentSize*i:SegmentSize*(i+1)])
	return b
}

// SetSegment overwrites block i.
func (q Coordinates) SetSegment(i int, b SegmentCoordinates) {
	copy(q[SegmentSize*i:SegmentSize*(i+1)], b[:])
}

func (q Coordinates) Clone() Coordinates {
	c := make(Coordinates, len(q))
	copy(c, q)
	return c
}

func (q Coordinates) Norm() float64 {
	return floats.Norm(q, 2)
}

// CheckSegments verifies the length against nbSegments blocks.
func (q Coordinates) CheckSegments(nbSegments int) error {
	return CheckDim("natural coordinates", SegmentSize*nbSegments, len(q))
}

// Velocities is the time derivative of Coordinates.
type Velocities = Coordinates

// Axis names one of the three natural directions of a segment.
type Axis int

const (
	AxisU Axis = iota
	AxisV
	AxisW
)

func (a Axis) String() string {
	switch a {
	case AxisU:
		return "u"
	case AxisV:
		return "v"
	case AxisW:
		return "w"
	}
	return fmt.Sprintf("Axis(%d)", int(a))
}

// ParseAxis accepts "u", "v" or "w" in any case.
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "u":
		return AxisU, nil
	case "v":
		return AxisV, nil
	case "w":
		return AxisW, nil
	}
	return 0, errors.Errorf("natural: unknown axis %q", s)
}

func (a Axis) MarshalText() ([]byte, error) {
	if a < AxisU || a > AxisW {
		return nil, errors.Errorf("natural: unknown axis %d", int(a))
	}
	return []byte(a.String()), nil
}

func (a *Axis) UnmarshalText(b []byte) error {
	v, err := ParseAxis(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// MarkerFrame holds one time sample of measured marker positions by name.
type MarkerFrame map[string]r3.Vector
