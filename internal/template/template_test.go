package template

import (
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap/zaptest"

	"github.com/san-kum/natkin/internal/joint"
	"github.com/san-kum/natkin/internal/natural"
	"github.com/san-kum/natkin/internal/segment"
)

// rotate applies Rodrigues' formula.
func rotate(v, axis r3.Vector, angle float64) r3.Vector {
	k := axis.Normalize()
	c, s := math.Cos(angle), math.Sin(angle)
	return v.Mul(c).Add(k.Cross(v).Mul(s)).Add(k.Mul(k.Dot(v) * (1 - c)))
}

var localPoints = map[string]r3.Vector{
	"P": {},
	"D": {Y: -0.4},
	"U": {X: 0.1},
	"W": {Y: 0.02, Z: 0.098},
	"M": {X: 0.03, Y: -0.15, Z: 0.04},
}

func syntheticFrames() []natural.MarkerFrame {
	poses := []struct {
		axis  r3.Vector
		angle float64
		shift r3.Vector
	}{
		{r3.Vector{Z: 1}, 0, r3.Vector{}},
		{r3.Vector{X: 1, Y: 1}, 0.4, r3.Vector{X: 0.5, Z: 1}},
		{r3.Vector{Y: 1, Z: -0.3}, -1.1, r3.Vector{X: -0.2, Y: 0.3, Z: 0.9}},
	}
	frames := make([]natural.MarkerFrame, 0, len(poses))
	for _, p := range poses {
		f := natural.MarkerFrame{}
		for name, v := range localPoints {
			f[name] = rotate(v, p.axis, p.angle).Add(p.shift)
		}
		frames = append(frames, f)
	}
	return frames
}

func thighTemplate() SegmentTemplate {
	return SegmentTemplate{
		Name:     "thigh",
		U:        AxisBetween(Marker("P"), Marker("U")),
		Proximal: Marker("P"),
		Distal:   Marker("D"),
		W:        AxisBetween(Marker("P"), Marker("W")),
		Markers: []MarkerTemplate{
			TechnicalMarker("M"),
			AnatomicalPoint("KNEE", Marker("D")),
		},
	}
}

func TestBuildRecoversShape(t *testing.T) {
	mt := &ModelTemplate{
		Name:     "leg",
		Segments: []SegmentTemplate{thighTemplate()},
		Joints:   []joint.Description{{Name: "hip", Kind: joint.GroundSpherical, Parent: "thigh"}},
	}
	frames := syntheticFrames()
	m, err := mt.Build(frames, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	s, ok := m.Segment("thigh")
	require.True(t, ok)
	w := localPoints["W"].Normalize()
	v := r3.Vector{Y: 0.4}
	assert.InDelta(t, 0.4, s.Length(), 1e-12)
	assert.InDelta(t, math.Pi/2, s.Gamma(), 1e-9)
	assert.InDelta(t, math.Pi/2, s.Beta(), 1e-9)
	assert.InDelta(t, math.Acos(v.Normalize().Dot(w)), s.Alpha(), 1e-9)

	assert.Equal(t, []string{"M"}, m.MarkerNames(segment.TechnicalMarkers))
	assert.Equal(t, []string{"KNEE"}, m.MarkerNames(segment.AnatomicalMarkers))

	for i, frame := range frames {
		q, err := mt.Q(frame)
		require.NoError(t, err)
		r, err := m.MarkersConstraints(q, frame, segment.TechnicalMarkers)
		require.NoError(t, err)
		for _, x := range r {
			assert.InDelta(t, 0, x, 1e-9, "frame %d", i)
		}
		phi, err := m.RigidBodyConstraints(q)
		require.NoError(t, err)
		for _, x := range phi {
			assert.InDelta(t, 0, x, 1e-9)
		}
	}
	assert.Equal(t, 3, m.NbJointConstraints())
}

func TestBuildSkipsNonFiniteFrames(t *testing.T) {
	frames := syntheticFrames()
	frames[1]["D"] = r3.Vector{X: math.NaN(), Y: math.NaN(), Z: math.NaN()}

	mt := &ModelTemplate{Name: "leg", Segments: []SegmentTemplate{thighTemplate()}}
	m, err := mt.Build(frames, nil)
	require.NoError(t, err)
	s, _ := m.Segment("thigh")
	assert.InDelta(t, 0.4, s.Length(), 1e-12)
}

func TestBuildAggregatesErrors(t *testing.T) {
	frames := syntheticFrames()
	delete(frames[0], "D")
	delete(frames[2], "W")

	mt := &ModelTemplate{Name: "leg", Segments: []SegmentTemplate{thighTemplate()}}
	_, err := mt.Build(frames, nil)
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.True(t, errors.Is(err, natural.ErrUnresolvedReference))
}

func TestBuildRejectsBadJoint(t *testing.T) {
	mt := &ModelTemplate{
		Name:     "leg",
		Segments: []SegmentTemplate{thighTemplate()},
		Joints:   []joint.Description{{Name: "knee", Kind: joint.Spherical, Parent: "thigh", Child: "shank"}},
	}
	_, err := mt.Build(syntheticFrames(), nil)
	assert.ErrorIs(t, err, natural.ErrUnresolvedReference)
}

func TestBuildNoValidFrame(t *testing.T) {
	frames := syntheticFrames()
	for _, f := range frames {
		f["P"] = r3.Vector{X: math.Inf(1)}
	}
	mt := &ModelTemplate{Name: "leg", Segments: []SegmentTemplate{thighTemplate()}}
	_, err := mt.Build(frames, nil)
	assert.ErrorIs(t, err, ErrNoValidFrame)
}

func TestPointHelpers(t *testing.T) {
	frame := natural.MarkerFrame{
		"A": {X: 1},
		"B": {Y: 1},
		"O": {},
	}
	mid, err := MiddleOf(Marker("A"), Marker("B"))(frame)
	require.NoError(t, err)
	assert.Equal(t, r3.Vector{X: 0.5, Y: 0.5}, mid)

	n, err := NormalTo(Marker("O"), Marker("A"), Marker("B"))(frame)
	require.NoError(t, err)
	assert.Equal(t, r3.Vector{Z: 1}, n)

	p, err := Fixed(r3.Vector{Z: 2})(frame)
	require.NoError(t, err)
	assert.Equal(t, 2.0, p.Z)

	_, err = MiddleOf(Marker("A"), Marker("missing"))(frame)
	assert.ErrorIs(t, err, natural.ErrUnresolvedReference)
}

func TestHarrington2007(t *testing.T) {
	frame := natural.MarkerFrame{
		"RASIS": {X: 0.12, Y: 0.05},
		"LASIS": {X: -0.12, Y: 0.05},
		"RPSIS": {X: 0.04, Y: -0.1},
		"LPSIS": {X: -0.04, Y: -0.1},
	}
	right, left := Harrington2007(Marker("RASIS"), Marker("LASIS"), Marker("RPSIS"), Marker("LPSIS"))

	r, err := right(frame)
	require.NoError(t, err)
	l, err := left(frame)
	require.NoError(t, err)

	assert.InDelta(t, 0.0865, r.X, 1e-12)
	assert.InDelta(t, 0.0041, r.Y, 1e-12)
	assert.InDelta(t, -0.0829, r.Z, 1e-12)
	assert.InDelta(t, -r.X, l.X, 1e-12)
	assert.InDelta(t, r.Y, l.Y, 1e-12)
	assert.InDelta(t, r.Z, l.Z, 1e-12)
}
