package sim

import (
	"context"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// decay is x' = -x + u.
type decay struct{}

func (decay) Derivative(x State, u Control, _ float64) State {
	dx := State{-x[0]}
	if len(u) > 0 {
		dx[0] += u[0]
	}
	return dx
}

func (decay) StateDim() int   { return 1 }
func (decay) ControlDim() int { return 1 }

// oscillator is x'' = -x with energy ½(x² + v²).
type oscillator struct{}

func (oscillator) Derivative(x State, _ Control, _ float64) State { return State{x[1], -x[0]} }
func (oscillator) StateDim() int                                    { return 2 }
func (oscillator) ControlDim() int                                  { return 0 }
func (oscillator) Energy(x State) float64                           { return 0.5 * (x[0]*x[0] + x[1]*x[1]) }

type euler struct{}

func (euler) Step(dyn Dynamics, x State, u Control, t, dt float64) State {
	return x.AddScaled(dt, dyn.Derivative(x, u, t))
}

type constant float64

func (c constant) Compute(State, float64) Control { return Control{float64(c)} }

type meanMetric struct {
	count int
	sum   float64
}

func (m *meanMetric) Name() string { return "mean" }
func (m *meanMetric) Observe(x State, _ Control, _ float64) {
	m.count++
	m.sum += x[0]
}
func (m *meanMetric) Value() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}
func (m *meanMetric) Reset() { *m = meanMetric{} }

func TestSimulatorRun(t *testing.T) {
	s := New(decay{}, euler{}, nil, WithLogger(zaptest.NewLogger(t).Sugar()))

	res, err := s.Run(context.Background(), State{1}, Config{Dt: 0.1, Duration: 1})
	require.NoError(t, err)
	assert.Len(t, res.States, 11)
	assert.Len(t, res.Times, 11)
	assert.Equal(t, 10, res.StepsTaken)
	assert.InDelta(t, 1.0, res.Times[10], 1e-12)
	assert.InDelta(t, math.Pow(0.9, 10), res.Final()[0], 1e-12)
	assert.Empty(t, res.Errors)
}

func TestSimulatorControl(t *testing.T) {
	s := New(decay{}, euler{}, constant(1))
	res, err := s.Run(context.Background(), State{1}, Config{Dt: 0.01, Duration: 1})
	require.NoError(t, err)
	// x = 1 is the fixed point of x' = -x + 1.
	assert.InDelta(t, 1.0, res.Final()[0], 1e-12)
	assert.Equal(t, Control{1}, res.Controls[0])
}

func TestSimulatorInvalidConfig(t *testing.T) {
	s := New(decay{}, euler{}, nil)
	tests := []struct {
		name string
		cfg  Config
		x0   State
	}{
		{"zero dt", Config{Dt: 0, Duration: 1}, State{1}},
		{"negative dt", Config{Dt: -0.1, Duration: 1}, State{1}},
		{"zero duration", Config{Dt: 0.1}, State{1}},
		{"adaptive without tolerance", Config{Dt: 0.1, Duration: 1, Adaptive: true}, State{1}},
		{"wrong state size", Config{Dt: 0.1, Duration: 1}, State{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Run(context.Background(), tt.x0, tt.cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestSimulatorMetrics(t *testing.T) {
	metric := &meanMetric{count: 42}
	s := New(decay{}, euler{}, nil, WithMetrics(metric))

	res, err := s.Run(context.Background(), State{1}, Config{Dt: 0.1, Duration: 1})
	require.NoError(t, err)
	assert.Equal(t, 10, metric.count, "metric must be reset before the run")
	assert.Contains(t, res.Metrics, "mean")
}

func TestSimulatorStopsOnInvalidState(t *testing.T) {
	s := New(decay{}, euler{}, constant(math.Inf(1)))
	res, err := s.Run(context.Background(), State{1}, Config{Dt: 0.1, Duration: 1, ValidateState: true})
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	var se SimError
	require.ErrorAs(t, res.Errors[0], &se)
	assert.Equal(t, 0, se.Step)
	assert.Len(t, res.States, 1)
}

func TestSimulatorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New(decay{}, euler{}, nil)
	res, err := s.Run(ctx, State{1}, Config{Dt: 0.1, Duration: 1})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, res.States, 1)
}

func TestSimulatorStepDoubling(t *testing.T) {
	s := New(oscillator{}, euler{}, nil)
	cfg := Config{Dt: 0.1, Duration: 1, Adaptive: true, Tolerance: 1e-4, MinDt: 1e-6, MaxDt: 0.1}
	res, err := s.Run(context.Background(), State{1, 0}, cfg)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.Times[len(res.Times)-1], 1e-9)
	assert.Greater(t, res.StepsTaken, 10)
	assert.InDelta(t, math.Cos(1), res.Final()[0], 3e-2)
}

func TestEnsemble(t *testing.T) {
	var built atomic.Int32
	e := NewEnsemble(func() *Simulator {
		built.Add(1)
		return New(oscillator{}, euler{}, nil, WithMetrics(&meanMetric{}))
	})
	x0s := []State{{1, 0}, {0, 1}, {2, 0}}
	results, err := e.Run(context.Background(), x0s, Config{Dt: 0.01, Duration: 0.5})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, int32(3), built.Load())
	for i, r := range results {
		assert.Equal(t, x0s[i], r.States[0])
		assert.Greater(t, r.EnergyDrift, 0.0, "explicit Euler gains energy")
	}
}

func TestParallelFor(t *testing.T) {
	for _, n := range []int{0, 1, 7, 1000} {
		seen := make([]int32, n)
		ParallelFor(n, 3, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&seen[i], 1)
			}
		})
		for i, c := range seen {
			assert.Equal(t, int32(1), c, "n=%d index %d", n, i)
		}
	}
}
