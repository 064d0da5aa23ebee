package ik

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/natkin/internal/model"
	"github.com/san-kum/natkin/internal/natural"
)

// Report summarizes the residuals of a solved frame.
type Report struct {
	Frame      int  `json:"frame"`
	Iterations int  `json:"iterations"`
	Converged  bool `json:"converged"`
	// Visible is the number of tracked markers present in the frame.
	Visible int `json:"visible"`
	// MarkerRMS is the root mean square marker distance over visible markers.
	MarkerRMS     float64 `json:"marker_rms"`
	WorstMarker   string  `json:"worst_marker"`
	WorstDistance float64 `json:"worst_distance"`
	JointResidual float64 `json:"joint_residual"`
	RigidResidual float64 `json:"rigid_residual"`
	// Determinants holds u·(v×w) per segment; a negative value means the
	// solution mirrored the segment.
	Determinants []float64 `json:"determinants"`
}

// Evaluate computes the residual report of q for the frame problem p.
func Evaluate(m *model.Model, q natural.Coordinates, p *FrameProblem) (Report, error) {
	var r Report
	rigid, err := m.RigidBodyConstraints(q)
	if err != nil {
		return r, err
	}
	joints, err := m.JointConstraints(q)
	if err != nil {
		return r, err
	}
	r.RigidResidual = floats.Norm(rigid, 2)
	r.JointResidual = floats.Norm(joints, 2)

	res := p.markerResiduals(q)
	sum := 0.0
	for i, tm := range p.markers {
		if !p.present[i] {
			continue
		}
		d := floats.Norm(res[3*i:3*i+3], 2)
		sum += d * d
		r.Visible++
		if d > r.WorstDistance {
			r.WorstDistance, r.WorstMarker = d, tm.marker.Name()
		}
	}
	if r.Visible > 0 {
		r.MarkerRMS = math.Sqrt(sum / float64(r.Visible))
	}

	r.Determinants = make([]float64, m.NbSegments())
	for i, s := range m.Segments() {
		r.Determinants[i] = s.Determinant(q.Segment(i))
	}
	return r, nil
}
