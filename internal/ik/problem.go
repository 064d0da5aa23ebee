package ik

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/natkin/internal/model"
	"github.com/san-kum/natkin/internal/natural"
	"github.com/san-kum/natkin/internal/segment"
)

// trackedMarker is a selected marker with its segment position in Q.
type trackedMarker struct {
	marker  *segment.Marker
	segment int
}

func trackedMarkers(m *model.Model, filter segment.MarkerFilter) []trackedMarker {
	var out []trackedMarker
	for i, s := range m.Segments() {
		for _, mk := range s.Markers() {
			if filter(mk) {
				out = append(out, trackedMarker{marker: mk, segment: i})
			}
		}
	}
	return out
}

// FrameProblem is the least-squares problem of one marker frame:
//
//	r(Q) = [ Φm(Q) ; √w·Φh(Q) ]    J(Q) = [ Km ; √w·Kh(Q) ]
//
// Markers absent from the frame or with non-finite positions contribute
// zero rows, so the layout of r does not depend on the frame.
type FrameProblem struct {
	model   *model.Model
	markers []trackedMarker
	frame   natural.MarkerFrame
	present []bool
	sqrtW   float64
	km      *mat.Dense
}

// NewFrameProblem builds the problem for frame with holonomic weight w.
func NewFrameProblem(m *model.Model, frame natural.MarkerFrame, filter segment.MarkerFilter, w float64) *FrameProblem {
	p := &FrameProblem{
		model:   m,
		markers: trackedMarkers(m, filter),
		frame:   frame,
		sqrtW:   math.Sqrt(w),
		km:      m.MarkersJacobian(filter),
	}
	p.present = make([]bool, len(p.markers))
	for i, tm := range p.markers {
		pos, ok := frame[tm.marker.Name()]
		p.present[i] = ok && finite(pos)
	}
	return p
}

func finite(v r3.Vector) bool {
	for _, x := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func (p *FrameProblem) NbQ() int { return p.model.NbQ() }

// NbVisible is the number of tracked markers usable in this frame.
func (p *FrameProblem) NbVisible() int {
	n := 0
	for _, ok := range p.present {
		if ok {
			n++
		}
	}
	return n
}

func (p *FrameProblem) markerResiduals(q natural.Coordinates) []float64 {
	out := make([]float64, 3*len(p.markers))
	for i, tm := range p.markers {
		if !p.present[i] {
			continue
		}
		r := tm.marker.Constraint(q.Segment(tm.segment), p.frame[tm.marker.Name()])
		out[3*i], out[3*i+1], out[3*i+2] = r.X, r.Y, r.Z
	}
	return out
}

func (p *FrameProblem) Residual(q []float64) ([]float64, error) {
	qc := natural.Coordinates(q)
	if err := qc.CheckSegments(p.model.NbSegments()); err != nil {
		return nil, err
	}
	phi, err := p.model.HolonomicConstraints(qc)
	if err != nil {
		return nil, err
	}
	out := p.markerResiduals(qc)
	for _, v := range phi {
		out = append(out, p.sqrtW*v)
	}
	return out, nil
}

func (p *FrameProblem) Jacobian(q []float64) (*mat.Dense, error) {
	kh, err := p.model.HolonomicConstraintsJacobian(natural.Coordinates(q))
	if err != nil {
		return nil, err
	}
	nm := 3 * len(p.markers)
	nh, n := kh.Dims()
	out := mat.NewDense(nm+nh, n, nil)
	if p.km != nil {
		out.Slice(0, nm, 0, n).(*mat.Dense).Copy(p.km)
		for i, ok := range p.present {
			if !ok {
				for r := 3 * i; r < 3*i+3; r++ {
					out.SetRow(r, make([]float64, n))
				}
			}
		}
	}
	var scaled mat.Dense
	scaled.Scale(p.sqrtW, kh)
	out.Slice(nm, nm+nh, 0, n).(*mat.Dense).Copy(&scaled)
	return out, nil
}
