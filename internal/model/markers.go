package model

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/natkin/internal/natural"
	"github.com/san-kum/natkin/internal/segment"
)

// Markers returns the markers selected by filter in segment order.
func (m *Model) Markers(filter segment.MarkerFilter) []*segment.Marker {
	var out []*segment.Marker
	for _, s := range m.segments {
		for _, mk := range s.Markers() {
			if filter(mk) {
				out = append(out, mk)
			}
		}
	}
	return out
}

func (m *Model) NbMarkers(filter segment.MarkerFilter) int {
	return len(m.Markers(filter))
}

func (m *Model) MarkerNames(filter segment.MarkerFilter) []string {
	markers := m.Markers(filter)
	names := make([]string, len(markers))
	for i, mk := range markers {
		names[i] = mk.Name()
	}
	return names
}

// MarkersPositions returns the model positions of the selected markers.
func (m *Model) MarkersPositions(q natural.Coordinates, filter segment.MarkerFilter) ([]r3.Vector, error) {
	if err := m.checkQ(q); err != nil {
		return nil, err
	}
	var out []r3.Vector
	for i, s := range m.segments {
		qi := q.Segment(i)
		for _, mk := range s.Markers() {
			if filter(mk) {
				out = append(out, mk.Position(qi))
			}
		}
	}
	return out, nil
}

// MarkersConstraints returns the 3M residuals N·Q - measured for the
// selected markers. Every selected marker must appear in the frame.
func (m *Model) MarkersConstraints(q natural.Coordinates, frame natural.MarkerFrame, filter segment.MarkerFilter) ([]float64, error) {
	if err := m.checkQ(q); err != nil {
		return nil, err
	}
	var out []float64
	for i, s := range m.segments {
		qi := q.Segment(i)
		for _, mk := range s.Markers() {
			if !filter(mk) {
				continue
			}
			measured, ok := frame[mk.Name()]
			if !ok {
				return nil, &natural.UnresolvedReferenceError{Kind: "marker", Name: mk.Name(), From: "marker frame"}
			}
			r := mk.Constraint(qi, measured)
			out = append(out, r.X, r.Y, r.Z)
		}
	}
	return out, nil
}

// MarkersJacobian returns the constant 3M×12S Jacobian of MarkersConstraints.
// It is nil when no marker is selected.
func (m *Model) MarkersJacobian(filter segment.MarkerFilter) *mat.Dense {
	out := newDense(3*m.NbMarkers(filter), m.NbQ())
	row := 0
	for i, s := range m.segments {
		for _, mk := range s.Markers() {
			if !filter(mk) {
				continue
			}
			out.Slice(row, row+3, natural.SegmentSize*i, natural.SegmentSize*(i+1)).(*mat.Dense).Copy(mk.Jacobian())
			row += 3
		}
	}
	return out
}

// MarkersVelocities returns N·Q̇ for the selected markers.
func (m *Model) MarkersVelocities(qdot natural.Velocities, filter segment.MarkerFilter) ([]r3.Vector, error) {
	return m.MarkersPositions(qdot, filter)
}

// Marker finds the first marker with this name in segment order.
func (m *Model) Marker(name string) (*segment.Marker, bool) {
	for _, s := range m.segments {
		if mk, ok := s.Marker(name); ok {
			return mk, true
		}
	}
	return nil, false
}
