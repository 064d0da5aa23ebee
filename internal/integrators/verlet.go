package integrators

import "github.com/san-kum/natkin/internal/sim"

// Verlet is velocity Verlet on a [q; q̇] state. The acceleration is sampled
// at the old velocity for the end-of-step evaluation, which is exact only
// for velocity-independent forces.
type Verlet struct {
	scratch sim.State
}

func NewVerlet() *Verlet { return &Verlet{} }

func (v *Verlet) Step(dyn sim.Dynamics, x sim.State, u sim.Control, t, dt float64) sim.State {
	n := len(x)
	half := n / 2
	if len(v.scratch) != n {
		v.scratch = make(sim.State, n)
	}

	a0 := dyn.Derivative(x, u, t)[half:]
	out := make(sim.State, n)
	for i := 0; i < half; i++ {
		out[i] = x[i] + dt*x[half+i] + 0.5*dt*dt*a0[i]
	}

	copy(v.scratch[:half], out[:half])
	copy(v.scratch[half:], x[half:])
	a1 := dyn.Derivative(v.scratch, u, t+dt)[half:]
	for i := 0; i < half; i++ {
		out[half+i] = x[half+i] + 0.5*dt*(a0[i]+a1[i])
	}
	return out
}

// Leapfrog is the kick-drift-kick form.
type Leapfrog struct {
	scratch sim.State
}

func NewLeapfrog() *Leapfrog { return &Leapfrog{} }

func (l *Leapfrog) Step(dyn sim.Dynamics, x sim.State, u sim.Control, t, dt float64) sim.State {
	n := len(x)
	half := n / 2
	if len(l.scratch) != n {
		l.scratch = make(sim.State, n)
	}

	a0 := dyn.Derivative(x, u, t)[half:]
	for i := 0; i < half; i++ {
		l.scratch[half+i] = x[half+i] + 0.5*dt*a0[i]
		l.scratch[i] = x[i] + dt*l.scratch[half+i]
	}

	a1 := dyn.Derivative(l.scratch, u, t+dt)[half:]
	out := make(sim.State, n)
	copy(out[:half], l.scratch[:half])
	for i := 0; i < half; i++ {
		out[half+i] = l.scratch[half+i] + 0.5*dt*a1[i]
	}
	return out
}
