package model

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/natkin/internal/natural"
)

// Stabilization holds the Baumgarte gains applied to the acceleration-level
// constraints: K·Q̈ = -K̇·Q̇ - 2·Alpha·K·Q̇ - Beta²·Φ.
type Stabilization struct {
	Alpha float64 `json:"alpha" yaml:"alpha"`
	Beta  float64 `json:"beta" yaml:"beta"`
}

// MassMatrix assembles the block-diagonal 12S×12S generalized mass matrix.
func (m *Model) MassMatrix() (*mat.Dense, error) {
	const c = natural.SegmentSize
	out := newDense(m.NbQ(), m.NbQ())
	for i, s := range m.segments {
		mi, err := s.MassMatrix()
		if err != nil {
			return nil, errors.Wrapf(err, "segment %q", s.Name())
		}
		out.Slice(c*i, c*(i+1), c*i, c*(i+1)).(*mat.Dense).Copy(mi)
	}
	return out, nil
}

// GravityForces returns the generalized weight of every segment.
func (m *Model) GravityForces() ([]float64, error) {
	out := make([]float64, 0, m.NbQ())
	for _, s := range m.segments {
		f, err := s.GravityForces(m.gravity)
		if err != nil {
			return nil, errors.Wrapf(err, "segment %q", s.Name())
		}
		out = append(out, f[:]...)
	}
	return out, nil
}

// Energy returns the kinetic and gravitational potential energy.
func (m *Model) Energy(q natural.Coordinates, qdot natural.Velocities) (kinetic, potential float64, err error) {
	if err := m.checkQ(q); err != nil {
		return 0, 0, err
	}
	if err := m.checkQ(qdot); err != nil {
		return 0, 0, err
	}
	for i, s := range m.segments {
		ke, err := s.KineticEnergy(qdot.Segment(i))
		if err != nil {
			return 0, 0, errors.Wrapf(err, "segment %q", s.Name())
		}
		pe, err := s.PotentialEnergy(q.Segment(i), m.gravity)
		if err != nil {
			return 0, 0, errors.Wrapf(err, "segment %q", s.Name())
		}
		kinetic += ke
		potential += pe
	}
	return kinetic, potential, nil
}

// CenterOfMass returns the mass-weighted center of mass of the model.
func (m *Model) CenterOfMass(q natural.Coordinates) (r3.Vector, error) {
	if err := m.checkQ(q); err != nil {
		return r3.Vector{}, err
	}
	var sum r3.Vector
	total := 0.0
	for i, s := range m.segments {
		mass, ok := s.Mass()
		if !ok {
			return r3.Vector{}, errors.Wrapf(natural.ErrNoInertia, "segment %q", s.Name())
		}
		com, err := s.CenterOfMassPosition(q.Segment(i))
		if err != nil {
			return r3.Vector{}, err
		}
		sum = sum.Add(com.Mul(mass))
		total += mass
	}
	if total <= 0 {
		return r3.Vector{}, errors.Wrapf(natural.ErrNoInertia, "model %q has total mass %g", m.name, total)
	}
	return sum.Mul(1 / total), nil
}

// kktDamping is added to the diagonal of K·G⁻¹·Kᵀ, relative to its largest
// diagonal entry. Redundant rows, such as a weld on top of the rigidity
// equations, make the undamped matrix singular.
const kktDamping = 1e-12

// ForwardDynamics solves the augmented system
//
//	| G  Kᵀ | | Q̈ |   | f                        |
//	| K  0  | | λ  | = | -K̇·Q̇ - 2α·K·Q̇ - β²·Φ  |
//
// with f the generalized gravity forces, by elimination of Q̈:
// (K·G⁻¹·Kᵀ)·λ = K·G⁻¹·f - b, then G·Q̈ = f - Kᵀ·λ. It returns Q̈ and the
// Lagrange multipliers λ ordered as HolonomicConstraints. With redundant
// rows λ is the damped least-norm choice; Q̈ is unaffected.
func (m *Model) ForwardDynamics(q natural.Coordinates, qdot natural.Velocities, stab Stabilization) (qddot, lambda []float64, err error) {
	return m.ForwardDynamicsWithForces(q, qdot, nil, stab)
}

// ForwardDynamicsWithForces is ForwardDynamics with external generalized
// forces added to gravity. A nil external applies none.
func (m *Model) ForwardDynamicsWithForces(q natural.Coordinates, qdot natural.Velocities, external []float64, stab Stabilization) (qddot, lambda []float64, err error) {
	if err := m.checkQ(q); err != nil {
		return nil, nil, err
	}
	if err := m.checkQ(qdot); err != nil {
		return nil, nil, err
	}
	if external != nil {
		if err := natural.CheckDim("external forces", m.NbQ(), len(external)); err != nil {
			return nil, nil, err
		}
	}
	if len(m.segments) == 0 {
		return nil, nil, ErrEmpty
	}
	g, err := m.MassMatrix()
	if err != nil {
		return nil, nil, err
	}
	f, err := m.GravityForces()
	if err != nil {
		return nil, nil, err
	}
	k, err := m.HolonomicConstraintsJacobian(q)
	if err != nil {
		return nil, nil, err
	}
	kdot, err := m.HolonomicConstraintsJacobianDerivative(qdot)
	if err != nil {
		return nil, nil, err
	}
	phi, err := m.HolonomicConstraints(q)
	if err != nil {
		return nil, nil, err
	}

	n, nc := m.NbQ(), len(phi)
	var gchol mat.Cholesky
	if ok := gchol.Factorize(mat.NewSymDense(n, g.RawMatrix().Data)); !ok {
		return nil, nil, errors.New("forward dynamics: mass matrix is not positive definite")
	}

	force := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		fi := f[i]
		if external != nil {
			fi += external[i]
		}
		force.SetVec(i, fi)
	}

	// Unconstrained accelerations G⁻¹·f, and G⁻¹·Kᵀ.
	var a0 mat.VecDense
	if err := gchol.SolveVecTo(&a0, force); err != nil {
		return nil, nil, errors.Wrap(err, "forward dynamics")
	}
	var ginvKt mat.Dense
	if err := gchol.SolveTo(&ginvKt, k.T()); err != nil {
		return nil, nil, errors.Wrap(err, "forward dynamics")
	}

	v := mat.NewVecDense(n, qdot)
	var kv, kdv, ka mat.VecDense
	kv.MulVec(k, v)
	kdv.MulVec(kdot, v)
	ka.MulVec(k, &a0)
	rhs := mat.NewVecDense(nc, nil)
	for i := 0; i < nc; i++ {
		b := -kdv.AtVec(i) - 2*stab.Alpha*kv.AtVec(i) - stab.Beta*stab.Beta*phi[i]
		rhs.SetVec(i, ka.AtVec(i)-b)
	}

	var schur mat.Dense
	schur.Mul(k, &ginvKt)
	s := mat.NewSymDense(nc, nil)
	scale := 0.0
	for i := 0; i < nc; i++ {
		for j := i; j < nc; j++ {
			s.SetSym(i, j, 0.5*(schur.At(i, j)+schur.At(j, i)))
		}
		if d := schur.At(i, i); d > scale {
			scale = d
		}
	}
	eps := kktDamping * math.Max(scale, 1)
	for i := 0; i < nc; i++ {
		s.SetSym(i, i, s.At(i, i)+eps)
	}
	var schol mat.Cholesky
	if ok := schol.Factorize(s); !ok {
		return nil, nil, errors.New("forward dynamics: constraint jacobian is rank deficient")
	}
	var lam mat.VecDense
	if err := schol.SolveVecTo(&lam, rhs); err != nil {
		return nil, nil, errors.Wrap(err, "forward dynamics")
	}

	// Q̈ = G⁻¹·f - G⁻¹·Kᵀ·λ
	var corr mat.VecDense
	corr.MulVec(&ginvKt, &lam)
	qddot = make([]float64, n)
	lambda = make([]float64, nc)
	for i := range qddot {
		qddot[i] = a0.AtVec(i) - corr.AtVec(i)
	}
	for i := range lambda {
		lambda[i] = lam.AtVec(i)
	}
	return qddot, lambda, nil
}
