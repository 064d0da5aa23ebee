// Package config loads and saves YAML run configurations: a model
// description together with simulation and inverse-kinematics settings.
package config

import (
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/natkin/internal/dynamics"
	"github.com/san-kum/natkin/internal/ik"
	"github.com/san-kum/natkin/internal/model"
	"github.com/san-kum/natkin/internal/sim"
)

const (
	DefaultDt         = 0.001
	DefaultDuration   = 2.0
	DefaultIntegrator = "rk4"
	DefaultController = "none"
	DefaultDataDir    = "./data"
	DefaultKp         = 50.0
	DefaultKi         = 0.0
	DefaultKd         = 5.0
)

type Config struct {
	Model      model.Description `yaml:"model"`
	Simulation SimulationConfig  `yaml:"simulation"`
	IK         ik.Options        `yaml:"ik"`
	DataDir    string            `yaml:"data_dir"`
}

type SimulationConfig struct {
	sim.Config    `yaml:",inline"`
	Integrator    string              `yaml:"integrator"`
	Controller    string              `yaml:"controller"`
	Gains         ControllerConfig    `yaml:"gains"`
	Stabilization model.Stabilization `yaml:"stabilization"`
	// InitialQ and InitialQdot default to the reference pose at rest.
	InitialQ    []float64 `yaml:"initial_q,omitempty"`
	InitialQdot []float64 `yaml:"initial_qdot,omitempty"`
}

// ControllerConfig holds gains for the damping and pid controllers. Damping
// uses Kd only.
type ControllerConfig struct {
	Kp float64 `yaml:"kp"`
	Ki float64 `yaml:"ki"`
	Kd float64 `yaml:"kd"`
}

func DefaultConfig() *Config {
	simCfg := sim.DefaultConfig()
	simCfg.Dt = DefaultDt
	simCfg.Duration = DefaultDuration
	return &Config{
		Simulation: SimulationConfig{
			Config:        simCfg,
			Integrator:    DefaultIntegrator,
			Controller:    DefaultController,
			Gains:         ControllerConfig{Kp: DefaultKp, Ki: DefaultKi, Kd: DefaultKd},
			Stabilization: dynamics.DefaultStabilization,
		},
		IK:      ik.DefaultOptions(),
		DataDir: DefaultDataDir,
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	return errors.Wrap(os.WriteFile(path, data, 0o644), "write config")
}

// BuildModel assembles the configured model. Indices may be omitted in the
// file; when every stored index is zero they are filled in registration
// order.
func (c *Config) BuildModel(logger *zap.SugaredLogger) (*model.Model, error) {
	d := c.Model
	if allZero(d) {
		d.Segments = append([]model.SegmentDescription(nil), d.Segments...)
		d.Joints = append([]model.JointDescription(nil), d.Joints...)
		for i := range d.Segments {
			d.Segments[i].Index = i
		}
		for i := range d.Joints {
			d.Joints[i].Index = i
		}
	}
	m, err := model.FromDescription(d, model.WithLogger(logger))
	return m, errors.Wrapf(err, "model %q", d.Name)
}

func allZero(d model.Description) bool {
	for _, s := range d.Segments {
		if s.Index != 0 {
			return false
		}
	}
	for _, j := range d.Joints {
		if j.Index != 0 {
			return false
		}
	}
	return true
}
