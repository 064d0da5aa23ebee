package dynamics

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/natkin/internal/joint"
	"github.com/san-kum/natkin/internal/model"
	"github.com/san-kum/natkin/internal/natural"
)

// ErrNotConverged is returned when Project cannot reach the tolerance.
var ErrNotConverged = errors.New("dynamics: projection did not converge")

const (
	projectTol     = 1e-12
	projectMaxIter = 50
	// damping keeps K·Kᵀ positive definite when constraints are redundant.
	damping = 1e-12
)

// ReferencePose places every segment in its reference pose, then translates
// segments so that joints are satisfied along the registration order: a
// ground joint moves its segment's proximal point to the joint's ground
// point, a two-segment joint moves the child's proximal point to the
// parent's distal point. The result is a starting guess for Project.
func ReferencePose(m *model.Model) natural.Coordinates {
	q := make(natural.Coordinates, m.NbQ())
	for i, s := range m.Segments() {
		q.SetSegment(i, s.ReferenceQ())
	}
	for _, j := range m.Joints() {
		p, ok := m.Segment(j.Parent())
		if !ok {
			continue
		}
		if j.Kind().IsGround() {
			if j.Kind() == joint.GroundFree {
				continue
			}
			d := j.Description()
			if j.Kind() == joint.GroundWeld && d.Reference != nil {
				q.SetSegment(p.Index(), *d.Reference)
				continue
			}
			translate(q, p.Index(), d.GroundPoint)
			continue
		}
		c, ok := m.Segment(j.Child())
		if !ok {
			continue
		}
		translate(q, c.Index(), q.Segment(p.Index()).Rd())
	}
	return q
}

// translate moves segment i so that its proximal point lands on target.
func translate(q natural.Coordinates, i int, target r3.Vector) {
	b := q.Segment(i)
	shift := target.Sub(b.Rp())
	q.SetSegment(i, natural.NewSegmentCoordinates(b.U(), b.Rp().Add(shift), b.Rd().Add(shift), b.W()))
}

// Project returns the coordinates closest to q, in the least-squares
// sense of the Newton steps, that satisfy the holonomic constraints.
func Project(m *model.Model, q natural.Coordinates) (natural.Coordinates, error) {
	out := q.Clone()
	for it := 0; it < projectMaxIter; it++ {
		phi, err := m.HolonomicConstraints(out)
		if err != nil {
			return nil, err
		}
		if floats.Norm(phi, 2) < projectTol {
			return out, nil
		}
		k, err := m.HolonomicConstraintsJacobian(out)
		if err != nil {
			return nil, err
		}
		step, err := minNormSolve(k, phi)
		if err != nil {
			return nil, err
		}
		floats.Sub(out, step)
	}
	return nil, ErrNotConverged
}

// ProjectVelocities removes the component of qdot that violates the
// velocity-level constraints K·Q̇ = 0.
func ProjectVelocities(m *model.Model, q natural.Coordinates, qdot natural.Velocities) (natural.Velocities, error) {
	if err := natural.CheckDim("velocities", m.NbQ(), len(qdot)); err != nil {
		return nil, err
	}
	k, err := m.HolonomicConstraintsJacobian(q)
	if err != nil {
		return nil, err
	}
	var kv mat.VecDense
	kv.MulVec(k, mat.NewVecDense(len(qdot), qdot.Clone()))
	step, err := minNormSolve(k, kv.RawVector().Data)
	if err != nil {
		return nil, err
	}
	out := qdot.Clone()
	floats.Sub(out, step)
	return natural.Velocities(out), nil
}

// minNormSolve returns Kᵀ(K·Kᵀ)⁻¹·r.
func minNormSolve(k *mat.Dense, r []float64) ([]float64, error) {
	nc, _ := k.Dims()
	var kkt mat.SymDense
	kkt.SymOuterK(1, k)
	for i := 0; i < nc; i++ {
		kkt.SetSym(i, i, kkt.At(i, i)+damping)
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(&kkt); !ok {
		return nil, errors.New("dynamics: constraint jacobian is rank deficient")
	}
	var y mat.VecDense
	if err := chol.SolveVecTo(&y, mat.NewVecDense(nc, append([]float64(nil), r...))); err != nil {
		return nil, errors.Wrap(err, "projection")
	}
	var step mat.VecDense
	step.MulVec(k.T(), &y)
	return step.RawVector().Data, nil
}
