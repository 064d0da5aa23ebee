package segment

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/san-kum/natkin/internal/natural"
)

// ErrRegistered is returned by AddMarker once a model has indexed the segment.
var ErrRegistered = errors.New("segment: marker set fixed by model registration")

// Marker is a labeled point rigidly attached to a segment.
type Marker struct {
	name       string
	parent     string
	position   r3.Vector
	vector     natural.Vector
	interp     natural.InterpolationMatrix
	technical  bool
	anatomical bool
}

type MarkerOption func(*Marker)

// Technical sets whether the marker is tracked by inverse kinematics. Default true.
func Technical(on bool) MarkerOption {
	return func(m *Marker) { m.technical = on }
}

// Anatomical sets whether the marker marks an anatomical landmark. Default false.
func Anatomical(on bool) MarkerOption {
	return func(m *Marker) { m.anatomical = on }
}

// AddMarker attaches a marker at a local position. Marker names are unique
// within the segment. Markers must be added before the segment is registered
// in a model.
func (s *Segment) AddMarker(name string, local r3.Vector, opts ...MarkerOption) (*Marker, error) {
	if s.index >= 0 {
		return nil, errors.Wrapf(ErrRegistered, "segment %q, marker %q", s.name, name)
	}
	if _, ok := s.markerIndex[name]; ok {
		return nil, &natural.DuplicateNameError{Kind: "marker", Name: name}
	}
	m := &Marker{
		name:      name,
		parent:    s.name,
		position:  local,
		vector:    s.NaturalVector(local),
		technical: true,
	}
	m.interp = m.vector.Interpolate()
	for _, opt := range opts {
		opt(m)
	}
	s.markerIndex[name] = len(s.markers)
	s.markers = append(s.markers, m)
	return m, nil
}

// Markers returns the markers in insertion order.
func (s *Segment) Markers() []*Marker {
	out := make([]*Marker, len(s.markers))
	copy(out, s.markers)
	return out
}

// Marker looks a marker up by name.
func (s *Segment) Marker(name string) (*Marker, bool) {
	i, ok := s.markerIndex[name]
	if !ok {
		return nil, false
	}
	return s.markers[i], true
}

func (s *Segment) NbMarkers() int { return len(s.markers) }

func (m *Marker) Name() string { return m.name }

// Parent returns the name of the owning segment.
func (m *Marker) Parent() string { return m.parent }

// LocalPosition returns the position in the segment's local frame.
func (m *Marker) LocalPosition() r3.Vector { return m.position }

func (m *Marker) NaturalVector() natural.Vector { return m.vector }

func (m *Marker) Interpolation() natural.InterpolationMatrix { return m.interp }

func (m *Marker) IsTechnical() bool { return m.technical }

func (m *Marker) IsAnatomical() bool { return m.anatomical }

// Position returns N·Q.
func (m *Marker) Position(q natural.SegmentCoordinates) r3.Vector {
	return m.interp.Apply(q)
}

// Velocity returns N·Q̇.
func (m *Marker) Velocity(qdot natural.SegmentVelocities) r3.Vector {
	return m.interp.Apply(qdot)
}

// Constraint returns the residual N·Q - measured.
func (m *Marker) Constraint(q natural.SegmentCoordinates, measured r3.Vector) r3.Vector {
	return m.Position(q).Sub(measured)
}

// Jacobian returns the derivative of Constraint with respect to Q, which is N itself.
func (m *Marker) Jacobian() natural.InterpolationMatrix { return m.interp }

// MarkerFilter selects which markers take part in marker residuals.
type MarkerFilter func(*Marker) bool

var (
	TechnicalMarkers  MarkerFilter = func(m *Marker) bool { return m.technical }
	AnatomicalMarkers MarkerFilter = func(m *Marker) bool { return m.anatomical }
	AllMarkers        MarkerFilter = func(*Marker) bool { return true }
)
