package metrics

import (
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/natkin/internal/sim"
)

// ControlEffort is the mean Euclidean norm of the applied generalized forces.
// Steps without control count as zero effort.
type ControlEffort struct {
	sum     float64
	samples int
}

func NewControlEffort() *ControlEffort { return &ControlEffort{} }

func (c *ControlEffort) Name() string { return "control_effort" }

func (c *ControlEffort) Observe(_ sim.State, u sim.Control, _ float64) {
	if len(u) > 0 {
		c.sum += floats.Norm(u, 2)
	}
	c.samples++
}

func (c *ControlEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *ControlEffort) Reset() {
	c.sum = 0
	c.samples = 0
}

// Default returns the standard metric set for a dynamics that can report
// energy and constraint residuals.
func Default(dyn interface {
	sim.EnergyComputer
	ConstraintEvaluator
}) []sim.Metric {
	return []sim.Metric{
		NewEnergy(dyn),
		NewEnergyDrift(dyn),
		NewConstraintDrift(dyn),
		NewControlEffort(),
	}
}
