package dynamics

import (
	"context"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/natkin/internal/integrators"
	"github.com/san-kum/natkin/internal/joint"
	"github.com/san-kum/natkin/internal/model"
	"github.com/san-kum/natkin/internal/natural"
	"github.com/san-kum/natkin/internal/segment"
	"github.com/san-kum/natkin/internal/sim"
)

func rod(name string, length float64) *segment.Segment {
	in := segment.Inertia{
		Mass:         1,
		CenterOfMass: r3.Vector{Y: -length / 2},
		Tensor:       [3][3]float64{{length * length / 12, 0, 0}, {0, 1e-3, 0}, {0, 0, length * length / 12}},
	}
	return segment.New(name, math.Pi/2, math.Pi/2, math.Pi/2, length, segment.WithInertia(in))
}

// pendulums builds a chain of n unit rods hanging from a pivot at z = 1.
func pendulums(t *testing.T, n int) *model.Model {
	t.Helper()
	m := model.New("pendulum", model.WithLogger(zaptest.NewLogger(t).Sugar()))
	names := []string{"upper", "lower", "third"}
	for i := 0; i < n; i++ {
		require.NoError(t, m.AddSegment(rod(names[i], 1)))
	}
	require.NoError(t, m.AddJoint(joint.NewGroundSpherical("pivot", names[0], r3.Vector{Z: 1})))
	for i := 1; i < n; i++ {
		require.NoError(t, m.AddJoint(joint.NewSpherical("elbow"+names[i], names[i-1], names[i])))
	}
	return m
}

func TestReferencePoseSatisfiesChain(t *testing.T) {
	m := pendulums(t, 3)
	q := ReferencePose(m)
	phi, err := m.HolonomicConstraints(q)
	require.NoError(t, err)
	assert.InDelta(t, 0, natural.Coordinates(phi).Norm(), 1e-12)
	assert.Equal(t, r3.Vector{Z: 1}, q.Segment(0).Rp())
	assert.Equal(t, q.Segment(0).Rd(), q.Segment(1).Rp())
}

func TestInitialAcceleration(t *testing.T) {
	m := pendulums(t, 1)
	sys := New(m)
	x, err := sys.State(ReferencePose(m), nil)
	require.NoError(t, err)
	assert.Len(t, x, sys.StateDim())
	assert.Equal(t, 12, sys.ControlDim())
	assert.True(t, m.Frozen())

	dx := sys.Derivative(x, nil, 0)
	qddot := dx[12:]
	// A rod pinned at one end: angular acceleration m·g·(L/2)/(m·L²/3).
	alpha := 9.81 * 0.5 / (1.0 / 3)
	assert.InDelta(t, -alpha, qddot[natural.OffsetRd+2], 1e-9)
	for i := 0; i < 3; i++ {
		assert.InDelta(t, 0, qddot[natural.OffsetRp+i], 1e-9)
	}
}

func TestExternalForcesBalanceGravity(t *testing.T) {
	m := pendulums(t, 2)
	sys := New(m)
	x, err := sys.State(ReferencePose(m), nil)
	require.NoError(t, err)

	f, err := m.GravityForces()
	require.NoError(t, err)
	u := make(sim.Control, len(f))
	for i := range f {
		u[i] = -f[i]
	}
	qddot, lambda, err := sys.Accelerations(x, u)
	require.NoError(t, err)
	assert.Len(t, lambda, m.NbHolonomicConstraints())
	for i, a := range qddot {
		assert.InDelta(t, 0, a, 1e-9, "coordinate %d", i)
	}
}

func TestSimulationConservesEnergy(t *testing.T) {
	m := pendulums(t, 2)
	sys := New(m, WithStabilization(model.Stabilization{Alpha: 5, Beta: 5}))
	x0, err := sys.State(ReferencePose(m), nil)
	require.NoError(t, err)

	s := sim.New(sys, integrators.NewRK4(), nil, sim.WithLogger(zaptest.NewLogger(t).Sugar()))
	res, err := s.Run(context.Background(), x0, sim.Config{Dt: 1e-3, Duration: 0.5, ValidateState: true})
	require.NoError(t, err)
	require.Empty(t, res.Errors)

	e0, e1 := sys.Energy(x0), sys.Energy(res.Final())
	assert.InDelta(t, e0, e1, 1e-4)
	assert.Less(t, sys.ConstraintResidual(res.Final()), 1e-6)

	// The chain has fallen below its starting height.
	q, _ := sys.Split(res.Final())
	assert.Less(t, q.Segment(1).Rd().Z, 1.0)
}

func TestDerivativeWithoutInertia(t *testing.T) {
	m := model.New("bare")
	require.NoError(t, m.AddSegment(segment.New("arm", math.Pi/2, math.Pi/2, math.Pi/2, 1)))
	sys := New(m)
	x := make(sim.State, sys.StateDim())
	dx := sys.Derivative(x, nil, 0)
	assert.False(t, dx.IsValid())
	assert.True(t, math.IsNaN(sys.Energy(x)))
}

func TestStateDimensions(t *testing.T) {
	sys := New(pendulums(t, 1))
	_, err := sys.State(make(natural.Coordinates, 5), nil)
	assert.ErrorIs(t, err, natural.ErrDimensionMismatch)
	_, err = sys.State(make(natural.Coordinates, 12), make(natural.Velocities, 3))
	assert.ErrorIs(t, err, natural.ErrDimensionMismatch)
	_, _, err = sys.Accelerations(make(sim.State, 3), nil)
	assert.ErrorIs(t, err, natural.ErrDimensionMismatch)
}

func TestProject(t *testing.T) {
	m := pendulums(t, 2)
	q := ReferencePose(m)
	for i := range q {
		q[i] += 0.01 * math.Sin(float64(7*i+1))
	}
	p, err := Project(m, q)
	require.NoError(t, err)
	phi, err := m.HolonomicConstraints(p)
	require.NoError(t, err)
	assert.Less(t, natural.Coordinates(phi).Norm(), 1e-10)
	assert.Less(t, floats.Distance(p, q, 2), 0.1)
}

func TestProjectVelocities(t *testing.T) {
	m := pendulums(t, 2)
	q := ReferencePose(m)
	qdot := make(natural.Velocities, m.NbQ())
	for i := range qdot {
		qdot[i] = math.Cos(float64(3*i + 2))
	}
	v, err := ProjectVelocities(m, q, qdot)
	require.NoError(t, err)

	k, err := m.HolonomicConstraintsJacobian(q)
	require.NoError(t, err)
	var kv mat.VecDense
	kv.MulVec(k, mat.NewVecDense(len(v), v))
	assert.Less(t, mat.Norm(&kv, 2), 1e-9)

	_, err = ProjectVelocities(m, q, qdot[:3])
	assert.ErrorIs(t, err, natural.ErrDimensionMismatch)
}
