// Package integrators provides fixed-step and adaptive ODE integrators for
// sim.Dynamics. Second-order schemes (Verlet, Leapfrog) expect the state to
// be laid out as [positions; velocities] with equal halves, which is how
// natural-coordinate models are stored.
package integrators

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/san-kum/natkin/internal/sim"
)

// ErrUnknown is returned by New for an unregistered integrator name.
var ErrUnknown = errors.New("integrators: unknown integrator")

var registry = map[string]func() sim.Integrator{
	"euler":    func() sim.Integrator { return NewEuler() },
	"rk4":      func() sim.Integrator { return NewRK4() },
	"rk45":     func() sim.Integrator { return NewRK45() },
	"verlet":   func() sim.Integrator { return NewVerlet() },
	"leapfrog": func() sim.Integrator { return NewLeapfrog() },
}

// New returns a fresh integrator by name. Integrators hold scratch buffers,
// so each simulator needs its own.
func New(name string) (sim.Integrator, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknown, "%q", name)
	}
	return fn(), nil
}

// Names lists the registered integrators in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Euler is the explicit first-order scheme.
type Euler struct{}

func NewEuler() *Euler { return &Euler{} }

func (e *Euler) Step(dyn sim.Dynamics, x sim.State, u sim.Control, t, dt float64) sim.State {
	return x.AddScaled(dt, dyn.Derivative(x, u, t))
}
