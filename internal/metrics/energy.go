// Package metrics provides sim.Metric implementations for natural-coordinate
// simulations.
package metrics

import (
	"math"

	"github.com/san-kum/natkin/internal/sim"
)

// Energy reports the mean total energy over the observed states.
type Energy struct {
	dyn     sim.EnergyComputer
	sum     float64
	samples int
}

func NewEnergy(dyn sim.EnergyComputer) *Energy {
	return &Energy{dyn: dyn}
}

func (e *Energy) Name() string { return "energy" }

func (e *Energy) Observe(x sim.State, _ sim.Control, _ float64) {
	v := e.dyn.Energy(x)
	if math.IsNaN(v) {
		return
	}
	e.sum += v
	e.samples++
}

func (e *Energy) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return e.sum / float64(e.samples)
}

func (e *Energy) Reset() {
	e.sum = 0
	e.samples = 0
}

// EnergyDrift reports the largest relative deviation from the first
// observed energy. It stays zero when the first energy is zero.
type EnergyDrift struct {
	dyn      sim.EnergyComputer
	initial  float64
	maxDrift float64
	samples  int
}

func NewEnergyDrift(dyn sim.EnergyComputer) *EnergyDrift {
	return &EnergyDrift{dyn: dyn}
}

func (e *EnergyDrift) Name() string { return "energy_drift" }

func (e *EnergyDrift) Observe(x sim.State, _ sim.Control, _ float64) {
	energy := e.dyn.Energy(x)
	if e.samples == 0 {
		e.initial = energy
	}
	e.samples++
	if e.initial != 0 {
		e.maxDrift = math.Max(e.maxDrift, math.Abs(energy-e.initial)/math.Abs(e.initial))
	}
}

func (e *EnergyDrift) Value() float64 { return e.maxDrift }

func (e *EnergyDrift) Reset() {
	e.initial = 0
	e.maxDrift = 0
	e.samples = 0
}
