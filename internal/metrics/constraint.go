package metrics

import (
	"math"

	"github.com/san-kum/natkin/internal/sim"
)

// ConstraintEvaluator reports the norm of the holonomic constraints at a state.
type ConstraintEvaluator interface {
	ConstraintResidual(x sim.State) float64
}

// ConstraintDrift reports the largest constraint residual norm observed.
type ConstraintDrift struct {
	eval ConstraintEvaluator
	max  float64
}

func NewConstraintDrift(eval ConstraintEvaluator) *ConstraintDrift {
	return &ConstraintDrift{eval: eval}
}

func (c *ConstraintDrift) Name() string { return "constraint_drift" }

func (c *ConstraintDrift) Observe(x sim.State, _ sim.Control, _ float64) {
	r := c.eval.ConstraintResidual(x)
	if math.IsNaN(r) {
		c.max = math.Inf(1)
		return
	}
	c.max = math.Max(c.max, r)
}

func (c *ConstraintDrift) Value() float64 { return c.max }

func (c *ConstraintDrift) Reset() { c.max = 0 }
