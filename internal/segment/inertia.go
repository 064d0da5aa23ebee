package segment

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/natkin/internal/natural"
)

// Inertia holds the inertial parameters of a segment, expressed in its local frame.
type Inertia struct {
	Mass float64 `json:"mass" yaml:"mass"`
	// CenterOfMass is the local position of the center of mass (origin rp).
	CenterOfMass r3.Vector `json:"center_of_mass" yaml:"center_of_mass"`
	// Tensor is the inertia tensor about the center of mass.
	Tensor [3][3]float64 `json:"tensor" yaml:"tensor"`
}

// naturalMassMatrix builds the 12x12 generalized mass matrix of a segment
// whose transformation matrix inverse is binv.
//
// A local point p interpolates with coefficients φ = A·n + b where n = B⁻¹p,
// so the mass matrix is G ⊗ I3 with
//
//	G = A·Jn·Aᵀ + A·mn·bᵀ + b·mnᵀ·Aᵀ + m·b·bᵀ
//
// Jn = B⁻¹·Jo·B⁻ᵀ is the second moment of mass about rp in natural
// components and mn = m·B⁻¹·c is the first moment.
func (in Inertia) naturalMassMatrix(binv mat.Matrix) *mat.Dense {
	m := in.Mass
	c := mat.NewVecDense(3, []float64{in.CenterOfMass.X, in.CenterOfMass.Y, in.CenterOfMass.Z})

	tensor := mat.NewDense(3, 3, nil)
	trace := 0.0
	for i := 0; i < 3; i++ {
		trace += in.Tensor[i][i]
		for j := 0; j < 3; j++ {
			tensor.Set(i, j, in.Tensor[i][j])
		}
	}

	// Second moment about the center of mass, then shifted to rp.
	jo := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		jo.Set(i, i, trace/2)
	}
	jo.Sub(jo, tensor)
	var cct mat.Dense
	cct.Outer(m, c, c)
	jo.Add(jo, &cct)

	var jn, tmp mat.Dense
	tmp.Mul(binv, jo)
	jn.Mul(&tmp, binv.T())

	var mn mat.VecDense
	mn.MulVec(binv, c)
	mn.ScaleVec(m, &mn)

	a := mat.NewDense(4, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, -1, 0,
		0, 0, 1,
	})
	b := mat.NewVecDense(4, []float64{0, 1, 0, 0})

	var g, ajn mat.Dense
	ajn.Mul(a, &jn)
	g.Mul(&ajn, a.T())

	var amn mat.VecDense
	amn.MulVec(a, &mn)
	var cross mat.Dense
	cross.Outer(1, &amn, b)
	g.Add(&g, &cross)
	g.Add(&g, cross.T())

	var bb mat.Dense
	bb.Outer(m, b, b)
	g.Add(&g, &bb)

	var mm mat.Dense
	mm.Kronecker(&g, eye3)
	return &mm
}

var eye3 = mat.NewDiagDense(3, []float64{1, 1, 1})

// MassMatrix returns a copy of the 12x12 generalized mass matrix.
func (s *Segment) MassMatrix() (*mat.Dense, error) {
	if s.massMatrix == nil {
		return nil, natural.ErrNoInertia
	}
	return mat.DenseCopyOf(s.massMatrix), nil
}

// Mass returns the mass; ok is false when no inertia was given.
func (s *Segment) Mass() (mass float64, ok bool) {
	if s.inertia == nil {
		return 0, false
	}
	return s.inertia.Mass, true
}

// CenterOfMassInterpolation returns the interpolation matrix of the center of mass.
func (s *Segment) CenterOfMassInterpolation() (natural.InterpolationMatrix, error) {
	if s.inertia == nil {
		return natural.InterpolationMatrix{}, natural.ErrNoInertia
	}
	return s.Interpolate(s.inertia.CenterOfMass), nil
}

// CenterOfMassPosition returns the global position of the center of mass.
func (s *Segment) CenterOfMassPosition(q natural.SegmentCoordinates) (r3.Vector, error) {
	n, err := s.CenterOfMassInterpolation()
	if err != nil {
		return r3.Vector{}, err
	}
	return n.Apply(q), nil
}

// GravityForces returns the generalized weight Ncomᵀ·m·g.
func (s *Segment) GravityForces(gravity r3.Vector) (natural.SegmentCoordinates, error) {
	n, err := s.CenterOfMassInterpolation()
	if err != nil {
		return natural.SegmentCoordinates{}, err
	}
	return n.ApplyTranspose(gravity.Mul(s.inertia.Mass)), nil
}

// KineticEnergy returns ½·Q̇ᵀ·M·Q̇.
func (s *Segment) KineticEnergy(qdot natural.SegmentVelocities) (float64, error) {
	if s.massMatrix == nil {
		return 0, natural.ErrNoInertia
	}
	v := mat.NewVecDense(natural.SegmentSize, qdot.Slice())
	return 0.5 * mat.Inner(v, s.massMatrix, v), nil
}

// PotentialEnergy returns -m·g·r_com.
func (s *Segment) PotentialEnergy(q natural.SegmentCoordinates, gravity r3.Vector) (float64, error) {
	com, err := s.CenterOfMassPosition(q)
	if err != nil {
		return 0, err
	}
	return -s.inertia.Mass * gravity.Dot(com), nil
}
