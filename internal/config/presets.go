package config

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"

	"github.com/san-kum/natkin/internal/joint"
	"github.com/san-kum/natkin/internal/model"
	"github.com/san-kum/natkin/internal/natural"
	"github.com/san-kum/natkin/internal/segment"
)

// Presets builds the named built-in configurations. Each call returns a
// fresh value.
var Presets = map[string]func() *Config{
	"pendulum":        pendulum,
	"double_pendulum": doublePendulum,
	"lower_limb":      lowerLimb,
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(name string) *Config {
	fn, ok := Presets[name]
	if !ok {
		return nil
	}
	return fn()
}

// ListPresets returns the preset names in sorted order.
func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// rod is a uniform slender segment with orthogonal axes.
func rod(name string, mass, length float64, markers ...model.MarkerDescription) model.SegmentDescription {
	transverse := mass * length * length / 12
	return model.SegmentDescription{
		Name:   name,
		Alpha:  math.Pi / 2,
		Beta:   math.Pi / 2,
		Gamma:  math.Pi / 2,
		Length: length,
		Inertia: &segment.Inertia{
			Mass:         mass,
			CenterOfMass: r3.Vector{Y: -length / 2},
			Tensor: [3][3]float64{
				{transverse, 0, 0},
				{0, mass * 1e-4, 0},
				{0, 0, transverse},
			},
		},
		Markers: markers,
	}
}

func technical(name string, x, y, z float64) model.MarkerDescription {
	return model.MarkerDescription{Name: name, Position: r3.Vector{X: x, Y: y, Z: z}, Technical: true}
}

func anatomical(name string, x, y, z float64) model.MarkerDescription {
	return model.MarkerDescription{Name: name, Position: r3.Vector{X: x, Y: y, Z: z}, Anatomical: true}
}

func jd(d joint.Description) model.JointDescription {
	return model.JointDescription{Description: d}
}

func pivot() r3.Vector { return r3.Vector{Z: 1} }

func pendulum() *Config {
	cfg := DefaultConfig()
	cfg.Model = model.Description{
		Name:     "pendulum",
		Segments: []model.SegmentDescription{rod("arm", 1, 1, technical("TIP", 0, -1, 0))},
		Joints: []model.JointDescription{
			jd(joint.Description{Name: "pivot", Kind: joint.GroundSpherical, Parent: "arm", GroundPoint: pivot()}),
		},
	}
	cfg.Simulation.Duration = 5
	return cfg
}

func doublePendulum() *Config {
	cfg := DefaultConfig()
	cfg.Model = model.Description{
		Name: "double_pendulum",
		Segments: []model.SegmentDescription{
			rod("upper", 1, 1, technical("ELBOW", 0, -1, 0)),
			rod("lower", 1, 1, technical("TIP", 0, -1, 0)),
		},
		Joints: []model.JointDescription{
			jd(joint.Description{Name: "shoulder", Kind: joint.GroundSpherical, Parent: "upper", GroundPoint: pivot()}),
			jd(joint.Description{Name: "elbow", Kind: joint.Spherical, Parent: "upper", Child: "lower"}),
		},
	}
	cfg.Simulation.Duration = 10
	cfg.Simulation.Dt = 5e-4
	return cfg
}

// lowerLimb is a pelvis-thigh-shank-foot chain hanging from the pelvis,
// with a hinge knee and three technical markers per segment.
func lowerLimb() *Config {
	cfg := DefaultConfig()
	flexion := []natural.Axis{natural.AxisU, natural.AxisU}
	cfg.Model = model.Description{
		Name: "lower_limb",
		Segments: []model.SegmentDescription{
			rod("pelvis", 10, 0.2,
				technical("RASIS", 0.12, 0, 0.05),
				technical("LASIS", -0.12, 0, 0.05),
				technical("SACR", 0, -0.05, -0.1),
				anatomical("RHJC", 0.08, -0.2, 0)),
			rod("thigh", 8, 0.42,
				technical("THI1", 0.06, -0.12, 0.03),
				technical("THI2", -0.05, -0.25, 0.04),
				technical("KNE", 0.05, -0.42, 0),
				anatomical("KJC", 0, -0.42, 0)),
			rod("shank", 3.5, 0.4,
				technical("TIB1", 0.05, -0.1, 0.04),
				technical("TIB2", -0.04, -0.22, 0.03),
				technical("ANK", 0.04, -0.4, 0),
				anatomical("AJC", 0, -0.4, 0)),
			rod("foot", 1, 0.2,
				technical("HEE", 0, 0.02, -0.05),
				technical("MT1", 0.04, -0.18, 0.02),
				technical("MT5", -0.04, -0.17, 0.02)),
		},
		Joints: []model.JointDescription{
			jd(joint.Description{Name: "root", Kind: joint.GroundSpherical, Parent: "pelvis", GroundPoint: pivot()}),
			jd(joint.Description{Name: "hip", Kind: joint.Spherical, Parent: "pelvis", Child: "thigh"}),
			jd(joint.Description{
				Name: "knee", Kind: joint.Hinge, Parent: "thigh", Child: "shank",
				ParentAxes: flexion,
				ChildAxes:  []natural.Axis{natural.AxisV, natural.AxisW},
				Theta:      []float64{math.Pi / 2, math.Pi / 2},
			}),
			jd(joint.Description{Name: "ankle", Kind: joint.Spherical, Parent: "shank", Child: "foot"}),
		},
	}
	cfg.Simulation.Duration = 1
	return cfg
}
