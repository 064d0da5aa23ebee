package sim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// State is a flat state vector. For natural-coordinate models it is [Q; Q̇].
type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	return floats.Norm(s, 2)
}

func (s State) Add(other State) State {
	result := s.Clone()
	n := min(len(s), len(other))
	floats.Add(result[:n], other[:n])
	return result
}

// AddScaled returns s + alpha·other.
func (s State) AddScaled(alpha float64, other State) State {
	result := s.Clone()
	n := min(len(s), len(other))
	floats.AddScaled(result[:n], alpha, other[:n])
	return result
}

func (s State) Scale(factor float64) State {
	result := s.Clone()
	floats.Scale(factor, result)
	return result
}

func (s State) Sub(other State) State {
	result := s.Clone()
	n := min(len(s), len(other))
	floats.Sub(result[:n], other[:n])
	return result
}

// Control carries external generalized forces; empty means none.
type Control []float64

type Dynamics interface {
	Derivative(x State, u Control, t float64) State
	StateDim() int
	ControlDim() int
}

// EnergyComputer is implemented by dynamics with a conserved energy.
type EnergyComputer interface {
	Energy(x State) float64
}

type Integrator interface {
	Step(dyn Dynamics, x State, u Control, t float64, dt float64) State
}

type AdaptiveIntegrator interface {
	Integrator
	StepAdaptive(dyn Dynamics, x State, u Control, t, dt, tol float64) (State, float64, error)
}

type Controller interface {
	Compute(x State, t float64) Control
}

type Metric interface {
	Name() string
	Observe(x State, u Control, t float64)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(x State, u Control, t float64)
}

type Config struct {
	Dt            float64 `yaml:"dt"`
	Duration      float64 `yaml:"duration"`
	Seed          int64   `yaml:"seed"`
	Tolerance     float64 `yaml:"tolerance"`
	MaxDt         float64 `yaml:"max_dt"`
	MinDt         float64 `yaml:"min_dt"`
	Adaptive      bool    `yaml:"adaptive"`
	ValidateState bool    `yaml:"validate_state"`
}

func DefaultConfig() Config {
	return Config{
		Dt:            0.001,
		Duration:      2.0,
		Tolerance:     1e-8,
		MaxDt:         0.01,
		MinDt:         1e-8,
		ValidateState: true,
	}
}

type Result struct {
	States      []State
	Controls    []Control
	Times       []float64
	Metrics     map[string]float64
	EnergyDrift float64
	StepsTaken  int
	Errors      []error
}

// Final returns the last recorded state.
func (r *Result) Final() State {
	if len(r.States) == 0 {
		return nil
	}
	return r.States[len(r.States)-1]
}

type SimError struct {
	Time    float64
	Step    int
	Message string
}

func (e SimError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %s", e.Step, e.Time, e.Message)
}
