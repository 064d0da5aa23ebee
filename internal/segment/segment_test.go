package segment

import (
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/natkin/internal/natural"
)

var shapes = []struct {
	name                       string
	alpha, beta, gamma, length float64
}{
	{"orthogonal", math.Pi / 2, math.Pi / 2, math.Pi / 2, 1},
	{"thigh", 1.45, 1.62, 1.52, 0.42},
	{"skewed", 1.2, 1.9, 1.0, 0.7},
}

func perturbed() natural.SegmentCoordinates {
	return natural.NewSegmentCoordinates(
		r3.Vector{X: 0.9, Y: 0.1, Z: -0.2},
		r3.Vector{X: 0.3, Y: 1.1, Z: 0.4},
		r3.Vector{X: 0.2, Y: 0.6, Z: -0.1},
		r3.Vector{X: -0.1, Y: 0.2, Z: 1.05},
	)
}

func TestReferenceQIsRigid(t *testing.T) {
	for _, sh := range shapes {
		t.Run(sh.name, func(t *testing.T) {
			s := New(sh.name, sh.alpha, sh.beta, sh.gamma, sh.length)
			for i, r := range s.RigidBodyConstraint(s.ReferenceQ()) {
				assert.InDelta(t, 0, r, 1e-12, "row %d", i)
			}
		})
	}
}

func TestRigidBodyJacobianMatchesFiniteDifferences(t *testing.T) {
	const h = 1e-6
	for _, sh := range shapes {
		t.Run(sh.name, func(t *testing.T) {
			s := New(sh.name, sh.alpha, sh.beta, sh.gamma, sh.length)
			q := perturbed()
			k := s.RigidBodyConstraintJacobian(q)

			r, c := k.Dims()
			require.Equal(t, NbRigidBodyConstraints, r)
			require.Equal(t, natural.SegmentSize, c)

			for j := 0; j < natural.SegmentSize; j++ {
				plus, minus := q, q
				plus[j] += h
				minus[j] -= h
				fp := s.RigidBodyConstraint(plus)
				fm := s.RigidBodyConstraint(minus)
				for i := 0; i < r; i++ {
					num := (fp[i] - fm[i]) / (2 * h)
					assert.InDelta(t, num, k.At(i, j), 1e-6, "(%d,%d)", i, j)
				}
			}
		})
	}
}

func TestRigidBodyJacobianDerivativeIsLinear(t *testing.T) {
	s := New("seg", 1.2, 1.9, 1.0, 0.7)
	qdot := perturbed()
	assert.True(t, mat.Equal(s.RigidBodyConstraintJacobian(qdot), s.RigidBodyConstraintJacobianDerivative(qdot)))
}

func TestParametersFromQ(t *testing.T) {
	for _, sh := range shapes {
		t.Run(sh.name, func(t *testing.T) {
			ref := New(sh.name, sh.alpha, sh.beta, sh.gamma, sh.length).ReferenceQ()
			s := FromExperimentalQ("copy", ref)
			assert.InDelta(t, sh.alpha, s.Alpha(), 1e-9)
			assert.InDelta(t, sh.beta, s.Beta(), 1e-9)
			assert.InDelta(t, sh.gamma, s.Gamma(), 1e-9)
			assert.InDelta(t, sh.length, s.Length(), 1e-12)
		})
	}
}

func TestTransformInverse(t *testing.T) {
	s := New("seg", 1.2, 1.9, 1.0, 0.7)
	b := s.TransformationMatrix()
	h := s.Transform()

	var prod mat.Dense
	prod.Mul(b, h.Slice(0, 3, 0, 3))
	assert.True(t, mat.EqualApprox(&prod, mat.NewDiagDense(3, []float64{1, 1, 1}), 1e-12))
	assert.Equal(t, 1.0, h.At(3, 3))
	assert.Equal(t, 0.0, h.At(0, 3))
}

func TestHomogeneousTransformAtReference(t *testing.T) {
	s := New("seg", 1.45, 1.62, 1.52, 0.42)
	h := s.HomogeneousTransform(s.ReferenceQ())
	want := mat.NewDiagDense(4, []float64{1, 1, 1, 1})
	assert.True(t, mat.EqualApprox(h, want, 1e-12))
}

func TestDeterminant(t *testing.T) {
	s := New("seg", math.Pi/2, math.Pi/2, math.Pi/2, 1)
	q := s.ReferenceQ()
	assert.InDelta(t, 1, s.Determinant(q), 1e-12)

	flipped := natural.NewSegmentCoordinates(q.U(), q.Rp(), q.Rd(), q.W().Mul(-1))
	assert.Less(t, s.Determinant(flipped), 0.0)
}

func TestMarkers(t *testing.T) {
	s := New("thigh", 1.45, 1.62, 1.52, 0.42)
	local := r3.Vector{X: 0.05, Y: -0.2, Z: 0.03}

	m, err := s.AddMarker("KNE", local, Anatomical(true))
	require.NoError(t, err)
	assert.Equal(t, "thigh", m.Parent())
	assert.True(t, m.IsTechnical())
	assert.True(t, m.IsAnatomical())

	_, err = s.AddMarker("KNE", r3.Vector{})
	var dup *natural.DuplicateNameError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "KNE", dup.Name)

	ref := s.ReferenceQ()
	assert.InDelta(t, 0, m.Position(ref).Sub(local).Norm(), 1e-12)
	assert.InDelta(t, 0, m.Constraint(ref, local).Norm(), 1e-12)

	got, err := s.LocalPositionFromExperimental(ref, local)
	require.NoError(t, err)
	assert.InDelta(t, 0, got.Sub(local).Norm(), 1e-12)

	_, ok := s.Marker("KNE")
	assert.True(t, ok)
	assert.Len(t, s.Markers(), 1)
}

func TestMarkerFollowsSegment(t *testing.T) {
	s := New("seg", math.Pi/2, math.Pi/2, math.Pi/2, 1)
	m, err := s.AddMarker("M", r3.Vector{X: 0.1, Y: -0.5, Z: 0.2}, Technical(false))
	require.NoError(t, err)
	assert.False(t, TechnicalMarkers(m))
	assert.True(t, AllMarkers(m))

	// Translate the segment: the marker moves by the same offset.
	offset := r3.Vector{X: 1, Y: 2, Z: 3}
	q := s.ReferenceQ()
	moved := natural.NewSegmentCoordinates(q.U(), q.Rp().Add(offset), q.Rd().Add(offset), q.W())
	assert.InDelta(t, 0, m.Position(moved).Sub(m.Position(q)).Sub(offset).Norm(), 1e-12)
}

func TestSetIndexOnce(t *testing.T) {
	s := New("seg", 1, 1, 1, 1)
	assert.Equal(t, -1, s.Index())
	require.NoError(t, s.SetIndex(2))
	assert.ErrorIs(t, s.SetIndex(3), natural.ErrIndexAssigned)
	assert.Equal(t, 2, s.Index())

	_, err := s.AddMarker("late", r3.Vector{X: 0.1})
	assert.ErrorIs(t, err, ErrRegistered)
	assert.Equal(t, 0, s.NbMarkers())
}

func pendulumInertia() Inertia {
	return Inertia{
		Mass:         1,
		CenterOfMass: r3.Vector{Y: -0.5},
		Tensor:       [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
	}
}

func TestMassMatrixAbsent(t *testing.T) {
	s := New("seg", 1, 1, 1, 1)
	_, ok := s.Mass()
	assert.False(t, ok)
	_, err := s.MassMatrix()
	assert.ErrorIs(t, err, natural.ErrNoInertia)
	_, err = s.GravityForces(r3.Vector{Z: -9.81})
	assert.ErrorIs(t, err, natural.ErrNoInertia)
}

func TestMassMatrixTranslation(t *testing.T) {
	in := pendulumInertia()
	in.Mass = 3
	s := New("seg", 1.45, 1.62, 1.52, 0.42, WithInertia(in))

	v0 := r3.Vector{X: 0.4, Y: -1, Z: 2}
	qdot := natural.NewSegmentCoordinates(r3.Vector{}, v0, v0, r3.Vector{})
	ke, err := s.KineticEnergy(qdot)
	require.NoError(t, err)
	assert.InDelta(t, 0.5*in.Mass*v0.Dot(v0), ke, 1e-9)

	m, err := s.MassMatrix()
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(m, m.T(), 1e-12))
}

func TestMassMatrixRotation(t *testing.T) {
	s := New("pendulum", math.Pi/2, math.Pi/2, math.Pi/2, 1, WithInertia(pendulumInertia()))

	// Unit rotation rate about z through rp.
	q := s.ReferenceQ()
	omega := r3.Vector{Z: 1}
	qdot := natural.NewSegmentCoordinates(omega.Cross(q.U()), r3.Vector{}, omega.Cross(q.Rd()), omega.Cross(q.W()))

	ke, err := s.KineticEnergy(qdot)
	require.NoError(t, err)
	// ½·(Izz + m·d²) with d = 0.5.
	assert.InDelta(t, 0.625, ke, 1e-12)
}

func TestGravityForces(t *testing.T) {
	s := New("pendulum", math.Pi/2, math.Pi/2, math.Pi/2, 1, WithInertia(pendulumInertia()))
	g := r3.Vector{Y: -9.81}

	f, err := s.GravityForces(g)
	require.NoError(t, err)

	com, err := s.CenterOfMassPosition(s.ReferenceQ())
	require.NoError(t, err)
	assert.InDelta(t, -0.5, com.Y, 1e-12)

	// Half the weight on rp, half on rd.
	assert.InDelta(t, -9.81/2, f.Rp().Y, 1e-12)
	assert.InDelta(t, -9.81/2, f.Rd().Y, 1e-12)
	assert.InDelta(t, 0, f.U().Norm()+f.W().Norm(), 1e-12)

	pe, err := s.PotentialEnergy(s.ReferenceQ(), g)
	require.NoError(t, err)
	assert.InDelta(t, -9.81*0.5, pe, 1e-12)
}
