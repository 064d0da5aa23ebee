// Package model assembles segments and joints into a whole-body model and
// evaluates stacked constraints, Jacobians and dynamics.
//
// Ordering: segment i owns columns [12i, 12i+12) of every matrix and rows
// [6i, 6i+6) of the rigidity block. Joints contribute rows in registration
// order after the rigidity block. Marker residuals follow segment order and,
// within a segment, marker insertion order.
//
// A Model is built once and then only read. Evaluation methods are safe for
// concurrent use provided no Add call runs at the same time; Freeze makes
// that explicit by rejecting further additions.
package model

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/natkin/internal/joint"
	"github.com/san-kum/natkin/internal/natural"
	"github.com/san-kum/natkin/internal/segment"
)

var (
	// ErrFrozen is returned by Add calls after Freeze.
	ErrFrozen = errors.New("model: frozen")
	ErrEmpty  = errors.New("model: no segments")
)

// DefaultGravity points down the global z axis.
var DefaultGravity = r3.Vector{Z: -9.81}

type Model struct {
	name   string
	logger *zap.SugaredLogger

	segments     []*segment.Segment
	segmentIndex map[string]int
	// markerOwner maps every marker name to its segment.
	markerOwner map[string]string

	joints     []*joint.Joint
	jointIndex map[string]int
	jointRows  []int
	nbJointEqs int

	gravity r3.Vector
	frozen  bool
}

type Option func(*Model)

func WithLogger(l *zap.SugaredLogger) Option {
	return func(m *Model) { m.logger = l }
}

func WithGravity(g r3.Vector) Option {
	return func(m *Model) { m.gravity = g }
}

func New(name string, opts ...Option) *Model {
	m := &Model{
		name:         name,
		logger:       zap.NewNop().Sugar(),
		segmentIndex: make(map[string]int),
		markerOwner:  make(map[string]string),
		jointIndex:   make(map[string]int),
		gravity:      DefaultGravity,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Model) Name() string { return m.name }

func (m *Model) Gravity() r3.Vector { return m.gravity }

// Freeze ends the build phase.
func (m *Model) Freeze() { m.frozen = true }

func (m *Model) Frozen() bool { return m.frozen }

// AddSegment registers a segment and assigns it the next index. Marker names
// are unique across the model since a MarkerFrame is keyed by name alone. The
// segment's marker set is fixed from here on.
func (m *Model) AddSegment(s *segment.Segment) error {
	if m.frozen {
		return ErrFrozen
	}
	if s.Name() == joint.Ground {
		return errors.Wrapf(natural.ErrReservedName, "segment %q", s.Name())
	}
	if _, ok := m.segmentIndex[s.Name()]; ok {
		return &natural.DuplicateNameError{Kind: "segment", Name: s.Name()}
	}
	for _, mk := range s.Markers() {
		if owner, ok := m.markerOwner[mk.Name()]; ok {
			return errors.Wrapf(&natural.DuplicateNameError{Kind: "marker", Name: mk.Name()}, "segments %q and %q", owner, s.Name())
		}
	}
	idx := len(m.segments)
	if err := s.SetIndex(idx); err != nil {
		return errors.Wrapf(err, "segment %q", s.Name())
	}
	m.segmentIndex[s.Name()] = idx
	for _, mk := range s.Markers() {
		m.markerOwner[mk.Name()] = s.Name()
	}
	m.segments = append(m.segments, s)
	m.logger.Debugw("segment registered", "segment", s.Name(), "index", idx, "markers", s.NbMarkers())
	return nil
}

// AddJoint registers a joint after resolving its segment names.
func (m *Model) AddJoint(j *joint.Joint) error {
	if m.frozen {
		return ErrFrozen
	}
	if _, ok := m.jointIndex[j.Name()]; ok {
		return &natural.DuplicateNameError{Kind: "joint", Name: j.Name()}
	}
	if _, ok := m.segmentIndex[j.Parent()]; !ok {
		return &natural.UnresolvedReferenceError{Kind: "segment", Name: j.Parent(), From: "joint " + j.Name()}
	}
	if !j.Kind().IsGround() {
		if _, ok := m.segmentIndex[j.Child()]; !ok {
			return &natural.UnresolvedReferenceError{Kind: "segment", Name: j.Child(), From: "joint " + j.Name()}
		}
	}
	idx := len(m.joints)
	if err := j.SetIndex(idx); err != nil {
		return errors.Wrapf(err, "joint %q", j.Name())
	}
	m.jointIndex[j.Name()] = idx
	m.joints = append(m.joints, j)
	m.jointRows = append(m.jointRows, m.nbJointEqs)
	m.nbJointEqs += j.NbConstraints()
	m.logger.Debugw("joint registered", "joint", j.Name(), "kind", j.Kind().String(), "index", idx)
	return nil
}

func (m *Model) NbSegments() int { return len(m.segments) }

func (m *Model) NbJoints() int { return len(m.joints) }

// NbQ is the length of the natural coordinate vector.
func (m *Model) NbQ() int { return natural.SegmentSize * len(m.segments) }

func (m *Model) NbRigidBodyConstraints() int {
	return segment.NbRigidBodyConstraints * len(m.segments)
}

func (m *Model) NbJointConstraints() int { return m.nbJointEqs }

func (m *Model) NbHolonomicConstraints() int {
	return m.NbRigidBodyConstraints() + m.nbJointEqs
}

// Segments returns the segments in index order.
func (m *Model) Segments() []*segment.Segment {
	return append([]*segment.Segment(nil), m.segments...)
}

func (m *Model) Segment(name string) (*segment.Segment, bool) {
	i, ok := m.segmentIndex[name]
	if !ok {
		return nil, false
	}
	return m.segments[i], true
}

// Joints returns the joints in registration order.
func (m *Model) Joints() []*joint.Joint {
	return append([]*joint.Joint(nil), m.joints...)
}

func (m *Model) Joint(name string) (*joint.Joint, bool) {
	i, ok := m.jointIndex[name]
	if !ok {
		return nil, false
	}
	return m.joints[i], true
}

// CoordinateNames labels every entry of Q as segment.component.axis, e.g.
// "thigh.rp.z".
func (m *Model) CoordinateNames() []string {
	names := make([]string, 0, m.NbQ())
	for _, s := range m.segments {
		for _, c := range []string{"u", "rp", "rd", "w"} {
			for _, x := range []string{"x", "y", "z"} {
				names = append(names, s.Name()+"."+c+"."+x)
			}
		}
	}
	return names
}

// JointRowOffset returns the first row of joint i inside the joint block.
func (m *Model) JointRowOffset(i int) int { return m.jointRows[i] }

func (m *Model) checkQ(q natural.Coordinates) error {
	return q.CheckSegments(len(m.segments))
}

// newDense returns nil for empty shapes, which gonum cannot represent.
func newDense(r, c int) *mat.Dense {
	if r == 0 || c == 0 {
		return nil
	}
	return mat.NewDense(r, c, nil)
}

// RigidBodyConstraints stacks the six rigidity residuals of every segment.
func (m *Model) RigidBodyConstraints(q natural.Coordinates) ([]float64, error) {
	if err := m.checkQ(q); err != nil {
		return nil, err
	}
	out := make([]float64, 0, m.NbRigidBodyConstraints())
	for i, s := range m.segments {
		out = append(out, s.RigidBodyConstraint(q.Segment(i))...)
	}
	return out, nil
}

// RigidBodyConstraintsJacobian assembles the block-diagonal 6S×12S Jacobian.
func (m *Model) RigidBodyConstraintsJacobian(q natural.Coordinates) (*mat.Dense, error) {
	if err := m.checkQ(q); err != nil {
		return nil, err
	}
	return m.rigidBlocks(q, (*segment.Segment).RigidBodyConstraintJacobian), nil
}

// RigidBodyConstraintsJacobianDerivative evaluates the rigidity Jacobian rate at Q̇.
func (m *Model) RigidBodyConstraintsJacobianDerivative(qdot natural.Velocities) (*mat.Dense, error) {
	if err := m.checkQ(qdot); err != nil {
		return nil, err
	}
	return m.rigidBlocks(qdot, (*segment.Segment).RigidBodyConstraintJacobianDerivative), nil
}

func (m *Model) rigidBlocks(q natural.Coordinates, block func(*segment.Segment, natural.SegmentCoordinates) *mat.Dense) *mat.Dense {
	const r, c = segment.NbRigidBodyConstraints, natural.SegmentSize
	out := newDense(m.NbRigidBodyConstraints(), m.NbQ())
	for i, s := range m.segments {
		out.Slice(r*i, r*(i+1), c*i, c*(i+1)).(*mat.Dense).Copy(block(s, q.Segment(i)))
	}
	return out
}

func (m *Model) jointBlocks(j *joint.Joint, q natural.Coordinates) (natural.SegmentCoordinates, *natural.SegmentCoordinates) {
	parent := q.Segment(m.segmentIndex[j.Parent()])
	if j.Kind().IsGround() {
		return parent, nil
	}
	child := q.Segment(m.segmentIndex[j.Child()])
	return parent, &child
}

// JointConstraints stacks joint residuals in registration order.
func (m *Model) JointConstraints(q natural.Coordinates) ([]float64, error) {
	if err := m.checkQ(q); err != nil {
		return nil, err
	}
	out := make([]float64, 0, m.nbJointEqs)
	for _, j := range m.joints {
		p, c := m.jointBlocks(j, q)
		r, err := j.Constraint(p, c)
		if err != nil {
			return nil, err
		}
		out = append(out, r...)
	}
	return out, nil
}

// JointConstraintsJacobian scatters each joint's local Jacobian into the
// columns of its parent and child. It is nil when no joint contributes rows.
func (m *Model) JointConstraintsJacobian(q natural.Coordinates) (*mat.Dense, error) {
	if err := m.checkQ(q); err != nil {
		return nil, err
	}
	return m.scatterJoints(q, (*joint.Joint).JacobianBlocks)
}

// JointConstraintsJacobianDerivative is the time derivative of
// JointConstraintsJacobian evaluated at Q̇.
func (m *Model) JointConstraintsJacobianDerivative(qdot natural.Velocities) (*mat.Dense, error) {
	if err := m.checkQ(qdot); err != nil {
		return nil, err
	}
	return m.scatterJoints(qdot, (*joint.Joint).JacobianDerivativeBlocks)
}

type blockFunc func(*joint.Joint, natural.SegmentCoordinates, *natural.SegmentCoordinates) (*mat.Dense, *mat.Dense, error)

func (m *Model) scatterJoints(q natural.Coordinates, blocks blockFunc) (*mat.Dense, error) {
	out := newDense(m.nbJointEqs, m.NbQ())
	if out == nil {
		return nil, nil
	}
	for i, j := range m.joints {
		k := j.NbConstraints()
		if k == 0 {
			continue
		}
		p, c := m.jointBlocks(j, q)
		jp, jc, err := blocks(j, p, c)
		if err != nil {
			return nil, err
		}
		if err := m.place(out, m.jointRows[i], m.segmentIndex[j.Parent()], jp); err != nil {
			return nil, err
		}
		if jc != nil {
			if err := m.place(out, m.jointRows[i], m.segmentIndex[j.Child()], jc); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// place adds a k×12 block at the given row into the columns of segment seg.
func (m *Model) place(dst *mat.Dense, row, seg int, block *mat.Dense) error {
	k, c := block.Dims()
	rows, cols := dst.Dims()
	col := natural.SegmentSize * seg
	if row+k > rows || col+c > cols {
		return &natural.DimensionMismatchError{What: "jacobian scatter target", Want: cols, Got: col + c}
	}
	view := dst.Slice(row, row+k, col, col+c).(*mat.Dense)
	view.Add(view, block)
	return nil
}

// HolonomicConstraints stacks rigidity then joint residuals.
func (m *Model) HolonomicConstraints(q natural.Coordinates) ([]float64, error) {
	rigid, err := m.RigidBodyConstraints(q)
	if err != nil {
		return nil, err
	}
	joints, err := m.JointConstraints(q)
	if err != nil {
		return nil, err
	}
	return append(rigid, joints...), nil
}

// HolonomicConstraintsJacobian stacks the rigidity and joint Jacobians.
func (m *Model) HolonomicConstraintsJacobian(q natural.Coordinates) (*mat.Dense, error) {
	rigid, err := m.RigidBodyConstraintsJacobian(q)
	if err != nil {
		return nil, err
	}
	joints, err := m.JointConstraintsJacobian(q)
	if err != nil {
		return nil, err
	}
	return vstack(rigid, joints), nil
}

// HolonomicConstraintsJacobianDerivative stacks both Jacobian derivatives.
func (m *Model) HolonomicConstraintsJacobianDerivative(qdot natural.Velocities) (*mat.Dense, error) {
	rigid, err := m.RigidBodyConstraintsJacobianDerivative(qdot)
	if err != nil {
		return nil, err
	}
	joints, err := m.JointConstraintsJacobianDerivative(qdot)
	if err != nil {
		return nil, err
	}
	return vstack(rigid, joints), nil
}

func vstack(a, b *mat.Dense) *mat.Dense {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	var out mat.Dense
	out.Stack(a, b)
	return &out
}
