package ik

import (
	"context"
	"math"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/san-kum/natkin/internal/dynamics"
	"github.com/san-kum/natkin/internal/model"
	"github.com/san-kum/natkin/internal/natural"
	"github.com/san-kum/natkin/internal/segment"
	"github.com/san-kum/natkin/internal/sim"
)

// Options configures InverseKinematics.
type Options struct {
	MaxIterations  int     `yaml:"max_iterations" json:"max_iterations"`
	Tolerance      float64 `yaml:"tolerance" json:"tolerance"`
	InitialDamping float64 `yaml:"initial_damping" json:"initial_damping"`
	// ConstraintWeight scales the holonomic residuals against marker residuals.
	ConstraintWeight float64 `yaml:"constraint_weight" json:"constraint_weight"`
	// MinChunk is the smallest number of consecutive frames given to one
	// worker. Without a guess function, frames within a chunk are
	// warm-started from their converged predecessor.
	MinChunk int `yaml:"min_chunk" json:"min_chunk"`
	// Anatomical also tracks anatomical markers.
	Anatomical bool `yaml:"anatomical" json:"anatomical"`
}

func DefaultOptions() Options {
	return Options{
		MaxIterations:    100,
		Tolerance:        1e-10,
		InitialDamping:   1e-3,
		ConstraintWeight: 1e4,
		MinChunk:         16,
	}
}

// GuessFunc supplies the starting coordinates of a frame.
// template.ModelTemplate.Q has this signature.
type GuessFunc func(frame natural.MarkerFrame) (natural.Coordinates, error)

// InverseKinematics solves frames of marker data against a model.
type InverseKinematics struct {
	model  *model.Model
	opts   Options
	solver Solver
	guess  GuessFunc
	logger *zap.SugaredLogger
}

type Option func(*InverseKinematics)

func WithSolver(s Solver) Option {
	return func(ik *InverseKinematics) { ik.solver = s }
}

// WithGuess sets the starting coordinates of every frame. Without it the
// first frame of each chunk starts from the model's reference pose.
func WithGuess(g GuessFunc) Option {
	return func(ik *InverseKinematics) { ik.guess = g }
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(ik *InverseKinematics) {
		if l != nil {
			ik.logger = l
		}
	}
}

// New freezes m.
func New(m *model.Model, opts Options, options ...Option) *InverseKinematics {
	ik := &InverseKinematics{
		model:  m,
		opts:   opts,
		logger: zap.NewNop().Sugar(),
	}
	for _, o := range options {
		o(ik)
	}
	if ik.solver == nil {
		ik.solver = NewLevenbergMarquardt(opts.MaxIterations, opts.Tolerance, opts.InitialDamping, m.NbQ())
	}
	m.Freeze()
	return ik
}

func (ik *InverseKinematics) filter() segment.MarkerFilter {
	if ik.opts.Anatomical {
		return segment.AllMarkers
	}
	return segment.TechnicalMarkers
}

// Solution holds one coordinate vector and report per frame.
type Solution struct {
	Q       []natural.Coordinates
	Reports []Report
}

// Converged reports whether every frame converged.
func (s *Solution) Converged() bool {
	for _, r := range s.Reports {
		if !r.Converged {
			return false
		}
	}
	return true
}

// Solve processes every frame. A frame whose guess or evaluation fails is
// left nil in the solution and its error is aggregated into the result;
// frames that merely fail to converge are reported, not errors.
func (ik *InverseKinematics) Solve(ctx context.Context, frames []natural.MarkerFrame) (*Solution, error) {
	if ik.model.NbSegments() == 0 {
		return nil, model.ErrEmpty
	}
	n := len(frames)
	sol := &Solution{
		Q:       make([]natural.Coordinates, n),
		Reports: make([]Report, n),
	}
	frameErrs := make([]error, n)

	var once sync.Once
	var reference natural.Coordinates
	referencePose := func() natural.Coordinates {
		once.Do(func() { reference = dynamics.ReferencePose(ik.model) })
		return reference.Clone()
	}

	sim.ParallelFor(n, ik.opts.MinChunk, func(start, end int) {
		var prev natural.Coordinates
		for i := start; i < end; i++ {
			if ctx.Err() != nil {
				frameErrs[i] = ctx.Err()
				continue
			}
			q0 := prev
			if q0 == nil || ik.guess != nil {
				var err error
				if q0, err = ik.initial(frames[i], referencePose); err != nil {
					frameErrs[i] = errors.Wrapf(err, "frame %d", i)
					continue
				}
			}
			q, report, err := ik.SolveFrame(ctx, frames[i], q0)
			if err != nil {
				frameErrs[i] = errors.Wrapf(err, "frame %d", i)
				continue
			}
			report.Frame = i
			sol.Q[i], sol.Reports[i] = q, report
			ik.logReport(report)
			if report.Converged {
				prev = q
			} else {
				prev = nil
			}
		}
	})

	if err := ctx.Err(); err != nil {
		return sol, err
	}
	return sol, multierr.Combine(frameErrs...)
}

func (ik *InverseKinematics) initial(frame natural.MarkerFrame, reference func() natural.Coordinates) (natural.Coordinates, error) {
	if ik.guess == nil {
		return reference(), nil
	}
	q, err := ik.guess(frame)
	if err != nil {
		return nil, err
	}
	if err := q.CheckSegments(ik.model.NbSegments()); err != nil {
		return nil, err
	}
	for _, v := range q {
		if math.IsNaN(v) {
			return reference(), nil
		}
	}
	return q, nil
}

// SolveFrame solves a single frame from q0.
func (ik *InverseKinematics) SolveFrame(ctx context.Context, frame natural.MarkerFrame, q0 natural.Coordinates) (natural.Coordinates, Report, error) {
	p := NewFrameProblem(ik.model, frame, ik.filter(), ik.opts.ConstraintWeight)
	q, stats, err := ik.solver.Solve(ctx, p, q0)
	if err != nil {
		return nil, Report{}, err
	}
	qc := natural.Coordinates(q)
	report, err := Evaluate(ik.model, qc, p)
	if err != nil {
		return nil, Report{}, err
	}
	report.Iterations = stats.Iterations
	report.Converged = stats.Converged
	return qc, report, nil
}

func (ik *InverseKinematics) logReport(r Report) {
	if !r.Converged {
		ik.logger.Warnw("frame did not converge", "frame", r.Frame, "iterations", r.Iterations, "marker_rms", r.MarkerRMS)
	}
	for i, d := range r.Determinants {
		if d < 0 {
			ik.logger.Warnw("segment frame is left-handed", "frame", r.Frame, "segment", ik.model.Segments()[i].Name(), "determinant", d)
		}
	}
}
