// Package ik recovers natural coordinates from measured marker frames.
//
// The model side is exposed as a Problem: a residual vector and its
// Jacobian. Any Solver can consume it; LevenbergMarquardt is the reference
// implementation. InverseKinematics drives a solver over many frames in
// parallel and reports per-frame residual diagnostics.
package ik

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/natkin/internal/sim"
)

// Problem is a nonlinear least-squares problem min ½‖r(q)‖².
type Problem interface {
	NbQ() int
	Residual(q []float64) ([]float64, error)
	Jacobian(q []float64) (*mat.Dense, error)
}

// Stats describes how a solve ended.
type Stats struct {
	Iterations int
	Cost       float64
	Converged  bool
}

type Solver interface {
	Solve(ctx context.Context, p Problem, q0 []float64) ([]float64, Stats, error)
}

const (
	maxDamping = 1e12
	minDamping = 1e-12
)

// LevenbergMarquardt solves (JᵀJ + μI)·δ = -Jᵀr, dividing μ by ten after an
// accepted step and multiplying it by ten after a rejected one.
type LevenbergMarquardt struct {
	MaxIterations  int
	Tolerance      float64
	InitialDamping float64

	pool *sim.StatePool
}

// NewLevenbergMarquardt sizes the scratch pool for problems with n unknowns.
// Problems of another size still solve, without pooling.
func NewLevenbergMarquardt(maxIter int, tol, mu0 float64, n int) *LevenbergMarquardt {
	return &LevenbergMarquardt{
		MaxIterations:  maxIter,
		Tolerance:      tol,
		InitialDamping: mu0,
		pool:           sim.NewStatePool(n),
	}
}

func (lm *LevenbergMarquardt) get(src []float64) sim.State {
	if lm.pool != nil && lm.pool.Size() == len(src) {
		return lm.pool.GetAndCopy(src)
	}
	return sim.State(src).Clone()
}

func (lm *LevenbergMarquardt) put(s sim.State) {
	if lm.pool != nil {
		lm.pool.Put(s)
	}
}

func (lm *LevenbergMarquardt) Solve(ctx context.Context, p Problem, q0 []float64) ([]float64, Stats, error) {
	var stats Stats
	if len(q0) != p.NbQ() {
		return nil, stats, errors.Errorf("ik: initial guess has %d entries, problem has %d", len(q0), p.NbQ())
	}

	q := lm.get(q0)
	defer func() { lm.put(q) }()

	r, err := p.Residual(q)
	if err != nil {
		return nil, stats, err
	}
	cost := 0.5 * floats.Dot(r, r)
	mu := lm.InitialDamping
	n := len(q)

	for stats.Iterations = 0; stats.Iterations < lm.MaxIterations; stats.Iterations++ {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		j, err := p.Jacobian(q)
		if err != nil {
			return nil, stats, err
		}

		var g mat.VecDense
		g.MulVec(j.T(), mat.NewVecDense(len(r), r))
		if mat.Norm(&g, math.Inf(1)) < lm.Tolerance {
			stats.Converged = true
			break
		}

		var jtj mat.SymDense
		jtj.SymOuterK(1, j.T())

		accepted := false
		for !accepted && mu <= maxDamping {
			delta, ok := dampedStep(&jtj, &g, mu, n)
			if !ok {
				mu *= 10
				continue
			}
			cand := lm.get(q)
			floats.Add(cand, delta)
			rc, err := p.Residual(cand)
			if err != nil {
				lm.put(cand)
				return nil, stats, err
			}
			cc := 0.5 * floats.Dot(rc, rc)
			if cc < cost && !math.IsNaN(cc) {
				lm.put(q)
				q, r = cand, rc
				improvement := cost - cc
				cost = cc
				mu = math.Max(mu/10, minDamping)
				accepted = true
				if floats.Norm(delta, 2) < lm.Tolerance*(floats.Norm(q, 2)+lm.Tolerance) || improvement < lm.Tolerance*lm.Tolerance {
					stats.Converged = true
				}
			} else {
				lm.put(cand)
				mu *= 10
			}
		}
		if !accepted || stats.Converged {
			if accepted {
				stats.Iterations++
			}
			break
		}
	}

	stats.Cost = cost
	out := make([]float64, n)
	copy(out, q)
	return out, stats, nil
}

// dampedStep solves (JᵀJ + μI)·δ = -g.
func dampedStep(jtj *mat.SymDense, g *mat.VecDense, mu float64, n int) ([]float64, bool) {
	a := mat.NewSymDense(n, nil)
	a.CopySym(jtj)
	for i := 0; i < n; i++ {
		a.SetSym(i, i, a.At(i, i)+mu)
	}
	var chol mat.Cholesky
	if !chol.Factorize(a) {
		return nil, false
	}
	var d mat.VecDense
	if err := chol.SolveVecTo(&d, g); err != nil {
		return nil, false
	}
	d.ScaleVec(-1, &d)
	return d.RawVector().Data, true
}
