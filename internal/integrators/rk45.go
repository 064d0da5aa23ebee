package integrators

import (
	"math"

	"github.com/san-kum/natkin/internal/sim"
)

// Dormand-Prince 5(4) tableau.
var (
	dpC = [7]float64{0, 1.0 / 5, 3.0 / 10, 4.0 / 5, 8.0 / 9, 1, 1}
	dpA = [7][6]float64{
		{},
		{1.0 / 5},
		{3.0 / 40, 9.0 / 40},
		{44.0 / 45, -56.0 / 15, 32.0 / 9},
		{19372.0 / 6561, -25360.0 / 2187, 64448.0 / 6561, -212.0 / 729},
		{9017.0 / 3168, -355.0 / 33, 46732.0 / 5247, 49.0 / 176, -5103.0 / 18656},
		{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84},
	}
	// Fifth-order weights minus the embedded fourth-order weights.
	dpE = [7]float64{
		35.0/384 - 5179.0/57600,
		0,
		500.0/1113 - 7571.0/16695,
		125.0/192 - 393.0/640,
		-2187.0/6784 + 92097.0/339200,
		11.0/84 - 187.0/2100,
		-1.0 / 40,
	}
)

// RK45 is the Dormand-Prince embedded pair with step size control.
type RK45 struct {
	safety   float64
	minScale float64
	maxScale float64
	// tol is used by Step, which has no tolerance argument.
	tol float64
}

func NewRK45() *RK45 {
	return &RK45{
		safety:   0.9,
		minScale: 0.2,
		maxScale: 10,
		tol:      1e-6,
	}
}

// Step takes one fifth-order step of size dt regardless of the error estimate.
func (r *RK45) Step(dyn sim.Dynamics, x sim.State, u sim.Control, t, dt float64) sim.State {
	next, _, _ := r.StepAdaptive(dyn, x, u, t, dt, r.tol)
	return next
}

// StepAdaptive returns the fifth-order solution and the step size suggested
// by the embedded error estimate. When the scaled error exceeds tol the
// error is sim.ErrStepRejected and the suggested size is smaller than dt.
func (r *RK45) StepAdaptive(dyn sim.Dynamics, x sim.State, u sim.Control, t, dt, tol float64) (sim.State, float64, error) {
	n := len(x)
	var k [7]sim.State
	stage := make(sim.State, n)
	k[0] = dyn.Derivative(x, u, t)

	for s := 1; s < 7; s++ {
		for i := range stage {
			acc := 0.0
			for j := 0; j < s; j++ {
				acc += dpA[s][j] * k[j][i]
			}
			stage[i] = x[i] + dt*acc
		}
		if s == 6 {
			// The last row is the fifth-order solution (FSAL).
			break
		}
		k[s] = dyn.Derivative(stage, u, t+dpC[s]*dt)
	}
	next := stage
	k[6] = dyn.Derivative(next, u, t+dt)

	errMax := 0.0
	for i := 0; i < n; i++ {
		e := 0.0
		for j := range dpE {
			e += dpE[j] * k[j][i]
		}
		scale := math.Abs(x[i]) + math.Abs(dt*k[0][i]) + 1e-10
		errMax = math.Max(errMax, math.Abs(dt*e)/scale)
	}

	ratio := errMax / tol
	switch {
	case ratio > 1:
		return next, dt * math.Max(r.minScale, r.safety*math.Pow(ratio, -0.25)), sim.ErrStepRejected
	case ratio == 0:
		return next, dt * r.maxScale, nil
	default:
		return next, dt * math.Min(r.maxScale, r.safety*math.Pow(ratio, -0.2)), nil
	}
}
