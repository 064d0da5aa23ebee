// Package controllers provides sim.Controller implementations that apply
// generalized forces to a [Q; Q̇] state.
package controllers

import "github.com/san-kum/natkin/internal/sim"

// None applies zero forces of a fixed dimension.
type None struct {
	dim int
}

func NewNone(dim int) *None { return &None{dim: dim} }

func (n *None) Compute(x sim.State, t float64) sim.Control {
	return make(sim.Control, n.dim)
}
