package experiment

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/san-kum/natkin/internal/config"
	"github.com/san-kum/natkin/internal/controllers"
	"github.com/san-kum/natkin/internal/sim"
)

var ErrUnknownController = errors.New("experiment: unknown controller")

// ControllerFactory builds a controller for a system with nbQ coordinates
// that starts at q0.
type ControllerFactory func(gains config.ControllerConfig, q0 []float64) sim.Controller

var controllerRegistry = map[string]ControllerFactory{
	"none": func(_ config.ControllerConfig, q0 []float64) sim.Controller {
		return controllers.NewNone(len(q0))
	},
	"damping": func(g config.ControllerConfig, _ []float64) sim.Controller {
		return controllers.NewDamping(g.Kd)
	},
	// pid holds the initial posture.
	"pid": func(g config.ControllerConfig, q0 []float64) sim.Controller {
		return controllers.NewPID(g.Kp, g.Ki, g.Kd, q0)
	},
}

func NewController(name string, gains config.ControllerConfig, q0 []float64) (sim.Controller, error) {
	fn, ok := controllerRegistry[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownController, "%q", name)
	}
	return fn(gains, q0), nil
}

func ControllerNames() []string {
	names := make([]string, 0, len(controllerRegistry))
	for name := range controllerRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
