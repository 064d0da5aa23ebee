package integrators

import (
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/natkin/internal/sim"
)

// RK4 is the classical fourth-order Runge-Kutta scheme. It is not safe for
// concurrent use.
type RK4 struct {
	k       [4]sim.State
	scratch sim.State
}

func NewRK4() *RK4 { return &RK4{} }

func (r *RK4) ensureScratch(n int) {
	if len(r.scratch) == n {
		return
	}
	for i := range r.k {
		r.k[i] = make(sim.State, n)
	}
	r.scratch = make(sim.State, n)
}

// stage evaluates the derivative at x + h·k into dst.
func (r *RK4) stage(dst sim.State, dyn sim.Dynamics, x, k sim.State, u sim.Control, t, h float64) {
	copy(r.scratch, x)
	if k != nil {
		floats.AddScaled(r.scratch, h, k)
	}
	copy(dst, dyn.Derivative(r.scratch, u, t+h))
}

func (r *RK4) Step(dyn sim.Dynamics, x sim.State, u sim.Control, t, dt float64) sim.State {
	r.ensureScratch(len(x))
	k1, k2, k3, k4 := r.k[0], r.k[1], r.k[2], r.k[3]

	r.stage(k1, dyn, x, nil, u, t, 0)
	r.stage(k2, dyn, x, k1, u, t, dt/2)
	r.stage(k3, dyn, x, k2, u, t, dt/2)
	r.stage(k4, dyn, x, k3, u, t, dt)

	out := x.Clone()
	h := dt / 6
	for i := range out {
		out[i] += h * (k1[i] + 2*k2[i] + 2*k3[i] + k4[i])
	}
	return out
}
