package controllers

import "github.com/san-kum/natkin/internal/sim"

// Damping applies a viscous force -C·Q̇ to every coordinate.
type Damping struct {
	C float64
}

func NewDamping(c float64) *Damping { return &Damping{C: c} }

func (d *Damping) Compute(x sim.State, t float64) sim.Control {
	half := len(x) / 2
	u := make(sim.Control, half)
	for i := range u {
		u[i] = -d.C * x[half+i]
	}
	return u
}
