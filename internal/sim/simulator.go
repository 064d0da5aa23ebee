// Package sim integrates a Dynamics forward in time with a pluggable
// integrator, controller, metrics and observers.
package sim

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrInvalidConfig = errors.New("sim: invalid config")
	// ErrStepRejected is returned by adaptive integrators whose error
	// estimate exceeds the tolerance; the returned step size is the retry.
	ErrStepRejected = errors.New("sim: step rejected")
)

type Simulator struct {
	dyn        Dynamics
	integrator Integrator
	controller Controller
	metrics    []Metric
	observers  []Observer
	logger     *zap.SugaredLogger
}

type Option func(*Simulator)

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(s *Simulator) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(ms ...Metric) Option {
	return func(s *Simulator) { s.metrics = append(s.metrics, ms...) }
}

// New builds a simulator. A nil controller applies no external forces.
func New(dyn Dynamics, integrator Integrator, controller Controller, opts ...Option) *Simulator {
	s := &Simulator{
		dyn:        dyn,
		integrator: integrator,
		controller: controller,
		logger:     zap.NewNop().Sugar(),
	}
	if s.controller == nil {
		s.controller = NoControl{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulator) AddMetric(m Metric) { s.metrics = append(s.metrics, m) }

func (s *Simulator) AddObserver(o Observer) { s.observers = append(s.observers, o) }

// Run integrates from x0 over cfg.Duration. Integration stops early at the
// first invalid state when cfg.ValidateState is set; the error is recorded in
// the result rather than returned.
func (s *Simulator) Run(ctx context.Context, x0 State, cfg Config) (*Result, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if n := s.dyn.StateDim(); len(x0) != n {
		return nil, errors.Wrapf(ErrInvalidConfig, "initial state has %d entries, dynamics expects %d", len(x0), n)
	}

	capHint := int(cfg.Duration/cfg.Dt) + 1
	result := &Result{
		States:   make([]State, 0, capHint),
		Controls: make([]Control, 0, capHint),
		Times:    make([]float64, 0, capHint),
		Metrics:  make(map[string]float64, len(s.metrics)),
	}
	for _, m := range s.metrics {
		m.Reset()
	}

	x := x0.Clone()
	t, dt := 0.0, cfg.Dt
	result.States = append(result.States, x.Clone())
	result.Times = append(result.Times, t)
	e0 := s.energy(x)

	// A small epsilon keeps the final fixed step when Duration/Dt is integral.
	for step := 0; t < cfg.Duration-1e-12; step++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		u := s.controller.Compute(x, t)
		for _, m := range s.metrics {
			m.Observe(x, u, t)
		}
		for _, o := range s.observers {
			o.OnStep(x, u, t)
		}

		h := math.Min(dt, cfg.Duration-t)
		var next State
		if cfg.Adaptive {
			var err error
			next, h, dt, err = s.adaptiveStep(x, u, t, h, cfg)
			if err != nil {
				result.Errors = append(result.Errors, err)
			}
		} else {
			next = s.integrator.Step(s.dyn, x, u, t, h)
		}

		if cfg.ValidateState && !next.IsValid() {
			err := SimError{Time: t, Step: step, Message: "invalid state (NaN/Inf)"}
			s.logger.Warnw("integration stopped", "step", step, "time", t)
			result.Errors = append(result.Errors, err)
			break
		}

		x = next
		t += h
		result.StepsTaken++
		result.States = append(result.States, x.Clone())
		result.Controls = append(result.Controls, u)
		result.Times = append(result.Times, t)
	}

	if e0 != 0 {
		result.EnergyDrift = math.Abs(s.energy(x)-e0) / math.Abs(e0)
	}
	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
	s.logger.Debugw("run finished", "steps", result.StepsTaken, "energy_drift", result.EnergyDrift)
	return result, nil
}

func validateConfig(cfg Config) error {
	switch {
	case cfg.Dt <= 0:
		return errors.Wrapf(ErrInvalidConfig, "dt must be positive, got %g", cfg.Dt)
	case cfg.Duration <= 0:
		return errors.Wrapf(ErrInvalidConfig, "duration must be positive, got %g", cfg.Duration)
	case cfg.Adaptive && cfg.Tolerance <= 0:
		return errors.Wrap(ErrInvalidConfig, "tolerance must be positive for adaptive stepping")
	}
	return nil
}

func (s *Simulator) energy(x State) float64 {
	if ec, ok := s.dyn.(EnergyComputer); ok {
		return ec.Energy(x)
	}
	return 0
}

// adaptiveStep returns the accepted state, the step actually taken and the
// suggested next step. Integrators without their own error estimate use step
// doubling.
func (s *Simulator) adaptiveStep(x State, u Control, t, dt float64, cfg Config) (State, float64, float64, error) {
	if a, ok := s.integrator.(AdaptiveIntegrator); ok {
		for {
			next, suggested, err := a.StepAdaptive(s.dyn, x, u, t, dt, cfg.Tolerance)
			if errors.Is(err, ErrStepRejected) && suggested < dt && suggested >= cfg.MinDt {
				dt = suggested
				continue
			}
			return next, dt, clamp(suggested, cfg), err
		}
	}

	for {
		full := s.integrator.Step(s.dyn, x, u, t, dt)
		half := s.integrator.Step(s.dyn, x, u, t, dt/2)
		two := s.integrator.Step(s.dyn, half, u, t+dt/2, dt/2)
		errEst := full.Sub(two).Norm()

		if errEst > cfg.Tolerance && dt/2 >= cfg.MinDt {
			dt /= 2
			continue
		}
		suggested := dt
		if errEst < cfg.Tolerance/10 {
			suggested = 2 * dt
		}
		return two, dt, clamp(suggested, cfg), nil
	}
}

func clamp(dt float64, cfg Config) float64 {
	if cfg.MaxDt > 0 {
		dt = math.Min(dt, cfg.MaxDt)
	}
	return math.Max(dt, cfg.MinDt)
}

// NoControl applies no external forces.
type NoControl struct{}

func (NoControl) Compute(State, float64) Control { return nil }
