package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/san-kum/natkin/internal/sim"
)

// spring has energy ½(x² + v²) and treats |x| - 1 as its constraint.
type spring struct{}

func (spring) Energy(x sim.State) float64 { return 0.5 * (x[0]*x[0] + x[1]*x[1]) }

func (spring) ConstraintResidual(x sim.State) float64 {
	if math.IsInf(x[0], 0) {
		return math.NaN()
	}
	return math.Abs(math.Abs(x[0]) - 1)
}

func TestEnergy(t *testing.T) {
	m := NewEnergy(spring{})
	assert.Equal(t, 0.0, m.Value())

	m.Observe(sim.State{1, 0}, nil, 0)
	m.Observe(sim.State{0, 2}, nil, 0.1)
	assert.InDelta(t, 1.25, m.Value(), 1e-12)

	m.Reset()
	assert.Equal(t, 0.0, m.Value())
}

func TestEnergyDrift(t *testing.T) {
	m := NewEnergyDrift(spring{})
	m.Observe(sim.State{1, 0}, nil, 0)
	m.Observe(sim.State{1, 1}, nil, 0.1)
	m.Observe(sim.State{1, 0.5}, nil, 0.2)
	assert.InDelta(t, 1.0, m.Value(), 1e-12, "drift is the worst deviation, not the last")

	m.Reset()
	m.Observe(sim.State{0, 0}, nil, 0)
	m.Observe(sim.State{1, 0}, nil, 0)
	assert.Equal(t, 0.0, m.Value(), "zero initial energy has no relative drift")
}

func TestConstraintDrift(t *testing.T) {
	m := NewConstraintDrift(spring{})
	m.Observe(sim.State{1.1, 0}, nil, 0)
	m.Observe(sim.State{0.95, 0}, nil, 0)
	assert.InDelta(t, 0.1, m.Value(), 1e-12)

	m.Observe(sim.State{math.Inf(1), 0}, nil, 0)
	assert.True(t, math.IsInf(m.Value(), 1))
}

func TestControlEffort(t *testing.T) {
	m := NewControlEffort()
	m.Observe(nil, sim.Control{3, 4}, 0)
	m.Observe(nil, nil, 0)
	assert.InDelta(t, 2.5, m.Value(), 1e-12)
}

func TestDefault(t *testing.T) {
	names := map[string]bool{}
	for _, m := range Default(spring{}) {
		names[m.Name()] = true
	}
	assert.Equal(t, map[string]bool{"energy": true, "energy_drift": true, "constraint_drift": true, "control_effort": true}, names)
}
