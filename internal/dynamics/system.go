// Package dynamics exposes a natural-coordinate model as a sim.Dynamics.
//
// The state is [Q; Q̇] with 12 entries per segment in each half. The control
// vector, when present, holds external generalized forces of length NbQ.
// Constraint drift is bounded by Baumgarte stabilization; Project restores
// consistent coordinates and velocities before or between runs.
package dynamics

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/san-kum/natkin/internal/model"
	"github.com/san-kum/natkin/internal/natural"
	"github.com/san-kum/natkin/internal/sim"
)

// DefaultStabilization is critically damped constraint correction.
var DefaultStabilization = model.Stabilization{Alpha: 5, Beta: 5}

type System struct {
	model  *model.Model
	stab   model.Stabilization
	logger *zap.SugaredLogger
}

type Option func(*System)

func WithStabilization(stab model.Stabilization) Option {
	return func(s *System) { s.stab = stab }
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(s *System) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New freezes m; the state layout follows its segment order.
func New(m *model.Model, opts ...Option) *System {
	s := &System{
		model:  m,
		stab:   DefaultStabilization,
		logger: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(s)
	}
	m.Freeze()
	return s
}

func (s *System) Model() *model.Model { return s.model }

func (s *System) Stabilization() model.Stabilization { return s.stab }

func (s *System) StateDim() int { return 2 * s.model.NbQ() }

func (s *System) ControlDim() int { return s.model.NbQ() }

// Split returns views of the coordinate and velocity halves of x.
func (s *System) Split(x sim.State) (natural.Coordinates, natural.Velocities) {
	n := s.model.NbQ()
	return natural.Coordinates(x[:n]), natural.Velocities(x[n : 2*n])
}

// State packs coordinates and velocities. A nil qdot means at rest.
func (s *System) State(q natural.Coordinates, qdot natural.Velocities) (sim.State, error) {
	n := s.model.NbQ()
	if err := natural.CheckDim("coordinates", n, len(q)); err != nil {
		return nil, err
	}
	x := make(sim.State, 2*n)
	copy(x, q)
	if qdot != nil {
		if err := natural.CheckDim("velocities", n, len(qdot)); err != nil {
			return nil, err
		}
		copy(x[n:], qdot)
	}
	return x, nil
}

// Derivative returns [Q̇; Q̈]. A singular augmented system yields a NaN
// acceleration so the simulator's state validation stops the run.
func (s *System) Derivative(x sim.State, u sim.Control, t float64) sim.State {
	q, qdot := s.Split(x)
	var external []float64
	if len(u) > 0 {
		external = u
	}
	qddot, _, err := s.model.ForwardDynamicsWithForces(q, qdot, external, s.stab)

	n := len(q)
	dx := make(sim.State, 2*n)
	copy(dx, qdot)
	if err != nil {
		s.logger.Debugw("forward dynamics failed", "time", t, "error", err)
		for i := n; i < 2*n; i++ {
			dx[i] = math.NaN()
		}
		return dx
	}
	copy(dx[n:], qddot)
	return dx
}

// Accelerations returns Q̈ and the Lagrange multipliers at state x.
func (s *System) Accelerations(x sim.State, u sim.Control) (qddot, lambda []float64, err error) {
	if err := natural.CheckDim("state", s.StateDim(), len(x)); err != nil {
		return nil, nil, err
	}
	q, qdot := s.Split(x)
	var external []float64
	if len(u) > 0 {
		external = u
	}
	qddot, lambda, err = s.model.ForwardDynamicsWithForces(q, qdot, external, s.stab)
	return qddot, lambda, errors.Wrap(err, "accelerations")
}

// Energy is the total mechanical energy. It is NaN when the model lacks
// inertial parameters.
func (s *System) Energy(x sim.State) float64 {
	q, qdot := s.Split(x)
	ke, pe, err := s.model.Energy(q, qdot)
	if err != nil {
		return math.NaN()
	}
	return ke + pe
}

// ConstraintResidual returns the norm of the holonomic constraints at x.
func (s *System) ConstraintResidual(x sim.State) float64 {
	q, _ := s.Split(x)
	phi, err := s.model.HolonomicConstraints(q)
	if err != nil {
		return math.NaN()
	}
	return natural.Coordinates(phi).Norm()
}
