package model

import (
	"encoding/json"
	"io"
	"os"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/san-kum/natkin/internal/joint"
	"github.com/san-kum/natkin/internal/segment"
)

// Description is the structured form of a model used for persistence and
// configuration.
type Description struct {
	Name     string               `json:"name" yaml:"name"`
	Gravity  *r3.Vector           `json:"gravity,omitempty" yaml:"gravity,omitempty"`
	Segments []SegmentDescription `json:"segments" yaml:"segments"`
	Joints   []JointDescription   `json:"joints,omitempty" yaml:"joints,omitempty"`
}

type SegmentDescription struct {
	Name    string              `json:"name" yaml:"name"`
	Index   int                 `json:"index" yaml:"index"`
	Alpha   float64             `json:"alpha" yaml:"alpha"`
	Beta    float64             `json:"beta" yaml:"beta"`
	Gamma   float64             `json:"gamma" yaml:"gamma"`
	Length  float64             `json:"length" yaml:"length"`
	Inertia *segment.Inertia    `json:"inertia,omitempty" yaml:"inertia,omitempty"`
	Markers []MarkerDescription `json:"markers,omitempty" yaml:"markers,omitempty"`
}

type MarkerDescription struct {
	Name       string    `json:"name" yaml:"name"`
	Position   r3.Vector `json:"position" yaml:"position"`
	Technical  bool      `json:"technical" yaml:"technical"`
	Anatomical bool      `json:"anatomical" yaml:"anatomical"`
}

type JointDescription struct {
	Index             int `json:"index" yaml:"index"`
	joint.Description `yaml:",inline"`
}

// Describe captures the model structure and parameters.
func (m *Model) Describe() Description {
	g := m.gravity
	d := Description{Name: m.name, Gravity: &g}
	for _, s := range m.segments {
		sd := SegmentDescription{
			Name:   s.Name(),
			Index:  s.Index(),
			Alpha:  s.Alpha(),
			Beta:   s.Beta(),
			Gamma:  s.Gamma(),
			Length: s.Length(),
		}
		if in := s.Inertia(); in != nil {
			c := *in
			sd.Inertia = &c
		}
		for _, mk := range s.Markers() {
			sd.Markers = append(sd.Markers, MarkerDescription{
				Name:       mk.Name(),
				Position:   mk.LocalPosition(),
				Technical:  mk.IsTechnical(),
				Anatomical: mk.IsAnatomical(),
			})
		}
		d.Segments = append(d.Segments, sd)
	}
	for _, j := range m.joints {
		d.Joints = append(d.Joints, JointDescription{Index: j.Index(), Description: j.Description()})
	}
	return d
}

// FromDescription rebuilds a model. Stored indices must match the
// registration order.
func FromDescription(d Description, opts ...Option) (*Model, error) {
	if d.Gravity != nil {
		opts = append([]Option{WithGravity(*d.Gravity)}, opts...)
	}
	m := New(d.Name, opts...)
	for i, sd := range d.Segments {
		var segOpts []segment.Option
		if sd.Inertia != nil {
			segOpts = append(segOpts, segment.WithInertia(*sd.Inertia))
		}
		s := segment.New(sd.Name, sd.Alpha, sd.Beta, sd.Gamma, sd.Length, segOpts...)
		for _, md := range sd.Markers {
			if _, err := s.AddMarker(md.Name, md.Position, segment.Technical(md.Technical), segment.Anatomical(md.Anatomical)); err != nil {
				return nil, err
			}
		}
		if err := m.AddSegment(s); err != nil {
			return nil, err
		}
		if sd.Index != i {
			return nil, errors.Errorf("segment %q has stored index %d, expected %d", sd.Name, sd.Index, i)
		}
	}
	for i, jd := range d.Joints {
		j, err := joint.New(jd.Description)
		if err != nil {
			return nil, err
		}
		if err := m.AddJoint(j); err != nil {
			return nil, err
		}
		if jd.Index != i {
			return nil, errors.Errorf("joint %q has stored index %d, expected %d", jd.Name, jd.Index, i)
		}
	}
	return m, nil
}

// MarshalJSON encodes the model description.
func (m *Model) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Describe())
}

// Save writes the model as indented JSON.
func (m *Model) Save(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(m.Describe()), "failed to encode model")
}

// Load reads a model written by Save.
func Load(r io.Reader, logger *zap.SugaredLogger) (*Model, error) {
	var d Description
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return nil, errors.Wrap(err, "failed to decode model")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return FromDescription(d, WithLogger(logger))
}

func SaveFile(path string, m *Model) error {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create model file")
	}
	defer f.Close()
	return m.Save(f)
}

func LoadFile(path string, logger *zap.SugaredLogger) (*Model, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open model file")
	}
	defer f.Close()
	return Load(f, logger)
}
