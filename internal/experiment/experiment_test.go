package experiment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/san-kum/natkin/internal/config"
	"github.com/san-kum/natkin/internal/controllers"
	"github.com/san-kum/natkin/internal/integrators"
	"github.com/san-kum/natkin/internal/natural"
)

func shortPendulum() *config.Config {
	cfg := config.GetPreset("pendulum")
	cfg.Simulation.Duration = 0.05
	return cfg
}

func TestNewStartsAtRest(t *testing.T) {
	e, err := New(shortPendulum(), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	assert.True(t, e.Model().Frozen())
	x0 := e.InitialState()
	assert.Len(t, x0, e.System().StateDim())
	assert.Less(t, e.System().ConstraintResidual(x0), 1e-12)
	_, qdot := e.System().Split(x0)
	for _, v := range qdot {
		assert.Zero(t, v)
	}
}

func TestNewProjectsInitialState(t *testing.T) {
	cfg := shortPendulum()
	e0, err := New(cfg, nil)
	require.NoError(t, err)
	q, _ := e0.System().Split(e0.InitialState())

	cfg.Simulation.InitialQ = append([]float64(nil), q...)
	cfg.Simulation.InitialQ[natural.OffsetRd] += 0.05
	cfg.Simulation.InitialQdot = make([]float64, len(q))
	cfg.Simulation.InitialQdot[natural.OffsetRd] = 1
	e, err := New(cfg, nil)
	require.NoError(t, err)
	assert.Less(t, e.System().ConstraintResidual(e.InitialState()), 1e-10)

	cfg.Simulation.InitialQ = []float64{1, 2}
	_, err = New(cfg, nil)
	assert.ErrorIs(t, err, natural.ErrDimensionMismatch)
}

func TestRun(t *testing.T) {
	for _, ctrl := range ControllerNames() {
		t.Run(ctrl, func(t *testing.T) {
			cfg := shortPendulum()
			cfg.Simulation.Controller = ctrl
			e, err := New(cfg, zaptest.NewLogger(t).Sugar())
			require.NoError(t, err)
			res, err := e.Run(context.Background())
			require.NoError(t, err)
			assert.Empty(t, res.Errors)
			assert.Equal(t, 50, res.StepsTaken)
			assert.Contains(t, res.Metrics, "constraint_drift")
			assert.Less(t, res.Metrics["constraint_drift"], 1e-6)
		})
	}
}

func TestSimulatorErrors(t *testing.T) {
	cfg := shortPendulum()
	cfg.Simulation.Integrator = "midpoint"
	e, err := New(cfg, nil)
	require.NoError(t, err)
	_, err = e.Run(context.Background())
	assert.ErrorIs(t, err, integrators.ErrUnknown)

	cfg = shortPendulum()
	cfg.Simulation.Controller = "lqr"
	e, err = New(cfg, nil)
	require.NoError(t, err)
	_, err = e.Simulator()
	assert.ErrorIs(t, err, ErrUnknownController)
}

func TestSweep(t *testing.T) {
	e, err := New(shortPendulum(), nil)
	require.NoError(t, err)
	n := e.Model().NbQ()
	push := make(natural.Velocities, n)
	push[natural.OffsetRd] = 0.5
	results, err := e.Sweep(context.Background(), []natural.Velocities{make(natural.Velocities, n), push})
	require.NoError(t, err)
	require.Len(t, results, 2)

	_, still := e.System().Split(results[0].States[0])
	_, moving := e.System().Split(results[1].States[0])
	assert.Zero(t, natural.Coordinates(still).Norm())
	assert.Greater(t, natural.Coordinates(moving).Norm(), 0.0)

	_, err = e.Sweep(context.Background(), []natural.Velocities{{1}})
	assert.ErrorIs(t, err, natural.ErrDimensionMismatch)
}

func TestNewController(t *testing.T) {
	gains := config.ControllerConfig{Kp: 1, Kd: 2}
	c, err := NewController("pid", gains, []float64{1, 2})
	require.NoError(t, err)
	require.IsType(t, &controllers.PID{}, c)
	assert.Equal(t, []float64{1, 2}, c.(*controllers.PID).Target)
	assert.Equal(t, []string{"damping", "none", "pid"}, ControllerNames())
}
