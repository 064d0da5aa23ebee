// Package experiment assembles a runnable forward-dynamics simulation from a
// configuration: model, integrator, controller, metrics and initial state.
package experiment

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/san-kum/natkin/internal/config"
	"github.com/san-kum/natkin/internal/dynamics"
	"github.com/san-kum/natkin/internal/integrators"
	"github.com/san-kum/natkin/internal/metrics"
	"github.com/san-kum/natkin/internal/model"
	"github.com/san-kum/natkin/internal/natural"
	"github.com/san-kum/natkin/internal/sim"
)

type Experiment struct {
	cfg    *config.Config
	model  *model.Model
	system *dynamics.System
	x0     sim.State
	logger *zap.SugaredLogger
}

// New builds the model of cfg and its initial state. Without configured
// initial coordinates the model starts at rest in its reference pose; given
// coordinates are projected onto the constraint manifold.
func New(cfg *config.Config, logger *zap.SugaredLogger) (*Experiment, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	m, err := cfg.BuildModel(logger)
	if err != nil {
		return nil, err
	}
	sys := dynamics.New(m,
		dynamics.WithStabilization(cfg.Simulation.Stabilization),
		dynamics.WithLogger(logger),
	)

	q := dynamics.ReferencePose(m)
	if len(cfg.Simulation.InitialQ) > 0 {
		q = natural.Coordinates(cfg.Simulation.InitialQ).Clone()
	}
	if q, err = dynamics.Project(m, q); err != nil {
		return nil, errors.Wrap(err, "initial coordinates")
	}
	var qdot natural.Velocities
	if len(cfg.Simulation.InitialQdot) > 0 {
		if qdot, err = dynamics.ProjectVelocities(m, q, cfg.Simulation.InitialQdot); err != nil {
			return nil, errors.Wrap(err, "initial velocities")
		}
	}
	x0, err := sys.State(q, qdot)
	if err != nil {
		return nil, err
	}

	return &Experiment{cfg: cfg, model: m, system: sys, x0: x0, logger: logger}, nil
}

func (e *Experiment) Model() *model.Model { return e.model }

func (e *Experiment) System() *dynamics.System { return e.system }

func (e *Experiment) InitialState() sim.State { return e.x0.Clone() }

// Simulator returns a fresh simulator with its own integrator, controller and
// metrics.
func (e *Experiment) Simulator() (*sim.Simulator, error) {
	integ, err := integrators.New(e.cfg.Simulation.Integrator)
	if err != nil {
		return nil, err
	}
	q, _ := e.system.Split(e.x0)
	ctrl, err := NewController(e.cfg.Simulation.Controller, e.cfg.Simulation.Gains, q)
	if err != nil {
		return nil, err
	}
	return sim.New(e.system, integ, ctrl,
		sim.WithLogger(e.logger),
		sim.WithMetrics(metrics.Default(e.system)...),
	), nil
}

func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	s, err := e.Simulator()
	if err != nil {
		return nil, err
	}
	e.logger.Infow("simulating",
		"model", e.model.Name(),
		"integrator", e.cfg.Simulation.Integrator,
		"controller", e.cfg.Simulation.Controller,
		"duration", e.cfg.Simulation.Duration,
	)
	return s.Run(ctx, e.x0, e.cfg.Simulation.Config)
}

// Sweep runs one simulation per initial velocity field in parallel. Each
// field is projected onto the velocity constraints first.
func (e *Experiment) Sweep(ctx context.Context, qdots []natural.Velocities) ([]*sim.Result, error) {
	q, _ := e.system.Split(e.x0)
	x0s := make([]sim.State, len(qdots))
	for i, qdot := range qdots {
		v, err := dynamics.ProjectVelocities(e.model, q, qdot)
		if err != nil {
			return nil, errors.Wrapf(err, "velocity field %d", i)
		}
		if x0s[i], err = e.system.State(q, v); err != nil {
			return nil, err
		}
	}
	if _, err := e.Simulator(); err != nil {
		return nil, err
	}
	ens := sim.NewEnsemble(func() *sim.Simulator {
		// Validated above.
		s, _ := e.Simulator()
		return s
	})
	return ens.Run(ctx, x0s, e.cfg.Simulation.Config)
}
