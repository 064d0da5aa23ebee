// Package segment models one rigid body in natural coordinates.
//
// A segment's shape is fixed by four scalars: alpha (angle between v and w),
// beta (angle between u and w), gamma (angle between u and v) and the length
// of v = rp - rd. From them the segment derives its transformation matrix B,
// which maps components in the natural basis (u, v, w) to an orthonormal local
// frame whose x axis is u and whose x-y plane contains v:
//
//	B = | 1   L·cos(gamma)   cos(beta) |
//	    | 0   L·sin(gamma)   b         |
//	    | 0   0              c         |
//
// with b = (cos(alpha) - cos(beta)·cos(gamma)) / sin(gamma) and
// c = sqrt(1 - cos²(beta) - b²).
//
// Degenerate shapes (gamma near 0 or pi, coplanar axes, zero length) are not
// rejected: B becomes singular and the inverse contains Inf or NaN. Callers
// that build segments from measured data are expected to check the result.
package segment

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/natkin/internal/natural"
)

// NbRigidBodyConstraints is the number of rigidity equations per segment.
const NbRigidBodyConstraints = 6

type Segment struct {
	name   string
	index  int
	alpha  float64
	beta   float64
	gamma  float64
	length float64

	transform *mat.Dense
	inverse   *mat.Dense

	inertia    *Inertia
	massMatrix *mat.Dense

	markers     []*Marker
	markerIndex map[string]int
}

// Option customizes a segment at construction.
type Option func(*Segment)

// WithInertia attaches inertial parameters.
func WithInertia(in Inertia) Option {
	return func(s *Segment) {
		c := in
		s.inertia = &c
	}
}

// New builds a segment from its shape parameters. Angles are in radians.
func New(name string, alpha, beta, gamma, length float64, opts ...Option) *Segment {
	s := &Segment{
		name:        name,
		index:       -1,
		alpha:       alpha,
		beta:        beta,
		gamma:       gamma,
		length:      length,
		markerIndex: make(map[string]int),
	}
	s.transform, s.inverse = transformationMatrices(alpha, beta, gamma, length)
	for _, opt := range opts {
		opt(s)
	}
	if s.inertia != nil {
		s.massMatrix = s.inertia.naturalMassMatrix(s.inverse)
	}
	return s
}

// FromExperimentalQ builds a segment whose shape is read off a measured block.
func FromExperimentalQ(name string, q natural.SegmentCoordinates, opts ...Option) *Segment {
	alpha, beta, gamma, length := ParametersFromQ(q)
	return New(name, alpha, beta, gamma, length, opts...)
}

// ParametersFromQ returns alpha, beta, gamma and length of a block.
func ParametersFromQ(q natural.SegmentCoordinates) (alpha, beta, gamma, length float64) {
	u, v, w := q.U(), q.V(), q.W()
	length = v.Norm()
	alpha = angle(v, w)
	beta = angle(u, w)
	gamma = angle(u, v)
	return alpha, beta, gamma, length
}

func angle(a, b r3.Vector) float64 {
	c := a.Dot(b) / (a.Norm() * b.Norm())
	return math.Acos(math.Max(-1, math.Min(1, c)))
}

func transformationMatrices(alpha, beta, gamma, length float64) (*mat.Dense, *mat.Dense) {
	ca, cb, cg, sg := math.Cos(alpha), math.Cos(beta), math.Cos(gamma), math.Sin(gamma)

	b12 := length * cg
	b22 := length * sg
	b13 := cb
	b23 := (ca - cb*cg) / sg
	b33 := math.Sqrt(1 - cb*cb - b23*b23)

	transform := mat.NewDense(3, 3, []float64{
		1, b12, b13,
		0, b22, b23,
		0, 0, b33,
	})
	// B is upper triangular with unit first pivot.
	inverse := mat.NewDense(3, 3, []float64{
		1, -b12 / b22, (b12*b23 - b13*b22) / (b22 * b33),
		0, 1 / b22, -b23 / (b22 * b33),
		0, 0, 1 / b33,
	})
	return transform, inverse
}

func (s *Segment) Name() string { return s.name }

func (s *Segment) Alpha() float64 { return s.alpha }

func (s *Segment) Beta() float64 { return s.beta }

func (s *Segment) Gamma() float64 { return s.gamma }

func (s *Segment) Length() float64 { return s.length }

// Inertia returns the inertial parameters, or nil when none were given.
func (s *Segment) Inertia() *Inertia { return s.inertia }

// Index returns the position of the segment in its model, or -1 before registration.
func (s *Segment) Index() int { return s.index }

// SetIndex assigns the model index. It may only be called once.
func (s *Segment) SetIndex(i int) error {
	if s.index >= 0 {
		return natural.ErrIndexAssigned
	}
	s.index = i
	return nil
}

// TransformationMatrix returns a copy of B.
func (s *Segment) TransformationMatrix() *mat.Dense {
	return mat.DenseCopyOf(s.transform)
}

// Transform returns the 4x4 homogeneous matrix mapping the local anatomical
// frame to the natural frame: rotation block B⁻¹, no translation since both
// frames share the origin rp.
func (s *Segment) Transform() *mat.Dense {
	h := mat.NewDense(4, 4, nil)
	h.Slice(0, 3, 0, 3).(*mat.Dense).Copy(s.inverse)
	h.Set(3, 3, 1)
	return h
}

// NaturalVector expresses a local position in the natural basis: n = B⁻¹·p.
func (s *Segment) NaturalVector(local r3.Vector) natural.Vector {
	return natural.Vector(mulVec3(s.inverse, local))
}

// LocalPosition maps a natural vector back to the local frame: p = B·n.
func (s *Segment) LocalPosition(n natural.Vector) r3.Vector {
	p := mulVec3(s.transform, r3.Vector{X: n[0], Y: n[1], Z: n[2]})
	return r3.Vector{X: p[0], Y: p[1], Z: p[2]}
}

func mulVec3(m mat.Matrix, v r3.Vector) [3]float64 {
	var out [3]float64
	for i := 0; i < 3; i++ {
		out[i] = m.At(i, 0)*v.X + m.At(i, 1)*v.Y + m.At(i, 2)*v.Z
	}
	return out
}

// Interpolate returns the interpolation matrix of a point given in the local frame.
func (s *Segment) Interpolate(local r3.Vector) natural.InterpolationMatrix {
	return s.NaturalVector(local).Interpolate()
}

// ReferenceQ returns the block of the segment in its own local frame: rp at
// the origin, u = B·e1, rd = -B·e2 and w = B·e3. It satisfies the rigidity
// constraints exactly up to rounding.
func (s *Segment) ReferenceQ() natural.SegmentCoordinates {
	col := func(j int) r3.Vector {
		return r3.Vector{X: s.transform.At(0, j), Y: s.transform.At(1, j), Z: s.transform.At(2, j)}
	}
	return natural.NewSegmentCoordinates(col(0), r3.Vector{}, col(1).Mul(-1), col(2))
}

// RigidBodyConstraint returns the six rigidity residuals:
//
//	u·u - 1, u·v - L·cos(gamma), u·w - cos(beta),
//	v·v - L², v·w - L·cos(alpha), w·w - 1
func (s *Segment) RigidBodyConstraint(q natural.SegmentCoordinates) []float64 {
	u, v, w := q.U(), q.V(), q.W()
	return []float64{
		u.Dot(u) - 1,
		u.Dot(v) - s.length*math.Cos(s.gamma),
		u.Dot(w) - math.Cos(s.beta),
		v.Dot(v) - s.length*s.length,
		v.Dot(w) - s.length*math.Cos(s.alpha),
		w.Dot(w) - 1,
	}
}

// RigidBodyConstraintJacobian returns the 6x12 Jacobian of RigidBodyConstraint.
func (s *Segment) RigidBodyConstraintJacobian(q natural.SegmentCoordinates) *mat.Dense {
	return rigidJacobian(q)
}

// RigidBodyConstraintJacobianDerivative returns the time derivative of the
// Jacobian. The Jacobian is linear in Q, so this is the Jacobian evaluated at Q̇.
func (s *Segment) RigidBodyConstraintJacobianDerivative(qdot natural.SegmentVelocities) *mat.Dense {
	return rigidJacobian(qdot)
}

func rigidJacobian(q natural.SegmentCoordinates) *mat.Dense {
	u, v, w := q.U(), q.V(), q.W()
	k := mat.NewDense(NbRigidBodyConstraints, natural.SegmentSize, nil)
	put := func(row, offset int, x r3.Vector) {
		k.Set(row, offset, k.At(row, offset)+x.X)
		k.Set(row, offset+1, k.At(row, offset+1)+x.Y)
		k.Set(row, offset+2, k.At(row, offset+2)+x.Z)
	}
	const (
		cu  = natural.OffsetU
		crp = natural.OffsetRp
		crd = natural.OffsetRd
		cw  = natural.OffsetW
	)

	put(0, cu, u.Mul(2))

	put(1, cu, v)
	put(1, crp, u)
	put(1, crd, u.Mul(-1))

	put(2, cu, w)
	put(2, cw, u)

	put(3, crp, v.Mul(2))
	put(3, crd, v.Mul(-2))

	put(4, crp, w)
	put(4, crd, w.Mul(-1))
	put(4, cw, v)

	put(5, cw, w.Mul(2))
	return k
}

// Determinant returns det([u v w]); negative values flag an indirect frame.
func (s *Segment) Determinant(q natural.SegmentCoordinates) float64 {
	return q.U().Dot(q.V().Cross(q.W()))
}

// HomogeneousTransform returns the 4x4 pose of the local frame in global
// coordinates: rotation [u v w]·B⁻¹ and origin rp.
func (s *Segment) HomogeneousTransform(q natural.SegmentCoordinates) *mat.Dense {
	u, v, w := q.U(), q.V(), q.W()
	uvw := mat.NewDense(3, 3, []float64{
		u.X, v.X, w.X,
		u.Y, v.Y, w.Y,
		u.Z, v.Z, w.Z,
	})
	var rot mat.Dense
	rot.Mul(uvw, s.inverse)

	h := mat.NewDense(4, 4, nil)
	h.Slice(0, 3, 0, 3).(*mat.Dense).Copy(&rot)
	rp := q.Rp()
	h.Set(0, 3, rp.X)
	h.Set(1, 3, rp.Y)
	h.Set(2, 3, rp.Z)
	h.Set(3, 3, 1)
	return h
}

// LocalPositionFromExperimental expresses a measured global point in the
// local frame of the segment posed at q.
func (s *Segment) LocalPositionFromExperimental(q natural.SegmentCoordinates, global r3.Vector) (r3.Vector, error) {
	n, err := ProjectInNonOrthogonalBasis(q, global)
	if err != nil {
		return r3.Vector{}, err
	}
	return s.LocalPosition(n), nil
}

// ProjectInNonOrthogonalBasis solves [u v w]·n = global - rp.
func ProjectInNonOrthogonalBasis(q natural.SegmentCoordinates, global r3.Vector) (natural.Vector, error) {
	u, v, w := q.U(), q.V(), q.W()
	basis := mat.NewDense(3, 3, []float64{
		u.X, v.X, w.X,
		u.Y, v.Y, w.Y,
		u.Z, v.Z, w.Z,
	})
	d := global.Sub(q.Rp())
	var n mat.VecDense
	if err := n.SolveVec(basis, mat.NewVecDense(3, []float64{d.X, d.Y, d.Z})); err != nil {
		return natural.Vector{}, err
	}
	return natural.Vector{n.AtVec(0), n.AtVec(1), n.AtVec(2)}, nil
}
