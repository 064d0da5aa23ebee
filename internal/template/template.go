package template

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/san-kum/natkin/internal/joint"
	"github.com/san-kum/natkin/internal/model"
	"github.com/san-kum/natkin/internal/natural"
	"github.com/san-kum/natkin/internal/segment"
)

// ErrNoValidFrame is returned when no frame yields finite coordinates.
var ErrNoValidFrame = errors.New("template: no valid frame")

// Axis is a unit direction, either from Start to End or given directly.
type Axis struct {
	Start     PointFunc
	End       PointFunc
	Direction PointFunc
}

// AxisBetween is the unit vector from start to end.
func AxisBetween(start, end PointFunc) Axis { return Axis{Start: start, End: end} }

// AxisAlong wraps a direction function.
func AxisAlong(dir PointFunc) Axis { return Axis{Direction: dir} }

func (a Axis) eval(frame natural.MarkerFrame) (r3.Vector, error) {
	if a.Direction != nil {
		d, err := a.Direction(frame)
		if err != nil {
			return r3.Vector{}, err
		}
		return d.Normalize(), nil
	}
	if a.Start == nil || a.End == nil {
		return r3.Vector{}, errors.New("template: axis needs a direction or both endpoints")
	}
	s, err := a.Start(frame)
	if err != nil {
		return r3.Vector{}, err
	}
	e, err := a.End(frame)
	if err != nil {
		return r3.Vector{}, err
	}
	return e.Sub(s).Normalize(), nil
}

// MarkerTemplate places a marker on a segment. A nil Position reads the
// measured marker of the same name.
type MarkerTemplate struct {
	Name       string
	Position   PointFunc
	Technical  bool
	Anatomical bool
}

// TechnicalMarker is a tracked marker read directly from the frame.
func TechnicalMarker(name string) MarkerTemplate {
	return MarkerTemplate{Name: name, Technical: true}
}

// AnatomicalPoint is a computed landmark excluded from tracking.
func AnatomicalPoint(name string, position PointFunc) MarkerTemplate {
	return MarkerTemplate{Name: name, Position: position, Anatomical: true}
}

func (m MarkerTemplate) position() PointFunc {
	if m.Position != nil {
		return m.Position
	}
	return Marker(m.Name)
}

type SegmentTemplate struct {
	Name     string
	U        Axis
	Proximal PointFunc
	Distal   PointFunc
	W        Axis
	Inertia  *segment.Inertia
	Markers  []MarkerTemplate
}

// Q evaluates the segment's natural coordinates in one frame.
func (st SegmentTemplate) Q(frame natural.MarkerFrame) (natural.SegmentCoordinates, error) {
	var q natural.SegmentCoordinates
	u, err := st.U.eval(frame)
	if err != nil {
		return q, errors.Wrapf(err, "segment %q u axis", st.Name)
	}
	rp, err := st.Proximal(frame)
	if err != nil {
		return q, errors.Wrapf(err, "segment %q proximal point", st.Name)
	}
	rd, err := st.Distal(frame)
	if err != nil {
		return q, errors.Wrapf(err, "segment %q distal point", st.Name)
	}
	w, err := st.W.eval(frame)
	if err != nil {
		return q, errors.Wrapf(err, "segment %q w axis", st.Name)
	}
	return natural.NewSegmentCoordinates(u, rp, rd, w), nil
}

func validQ(q natural.SegmentCoordinates) bool {
	return finite(q.U()) && finite(q.Rp()) && finite(q.Rd()) && finite(q.W())
}

// ModelTemplate describes how to build a model from marker frames. Joints
// are registered in order after every segment.
type ModelTemplate struct {
	Name     string
	Gravity  *r3.Vector
	Segments []SegmentTemplate
	Joints   []joint.Description
}

// Q evaluates the whole-model natural coordinates in one frame.
func (mt *ModelTemplate) Q(frame natural.MarkerFrame) (natural.Coordinates, error) {
	q := make(natural.Coordinates, natural.SegmentSize*len(mt.Segments))
	var errs error
	for i, st := range mt.Segments {
		qi, err := st.Q(frame)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		q.SetSegment(i, qi)
	}
	if errs != nil {
		return nil, errs
	}
	return q, nil
}

// Build calibrates every segment over the frames and assembles the model.
// Shape parameters and marker local positions are frame averages; frames
// where a segment's coordinates are not finite are skipped for that segment.
func (mt *ModelTemplate) Build(frames []natural.MarkerFrame, logger *zap.SugaredLogger) (*model.Model, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	opts := []model.Option{model.WithLogger(logger)}
	if mt.Gravity != nil {
		opts = append(opts, model.WithGravity(*mt.Gravity))
	}
	m := model.New(mt.Name, opts...)

	var errs error
	for _, st := range mt.Segments {
		s, err := st.calibrate(frames, logger)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if err := m.AddSegment(s); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		return nil, errs
	}

	for _, jd := range mt.Joints {
		j, err := joint.New(jd)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if err := m.AddJoint(j); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		return nil, errs
	}
	return m, nil
}

func (st SegmentTemplate) calibrate(frames []natural.MarkerFrame, logger *zap.SugaredLogger) (*segment.Segment, error) {
	var (
		qs                         []natural.SegmentCoordinates
		used                       []natural.MarkerFrame
		alpha, beta, gamma, length float64
		errs                       error
	)
	for i, frame := range frames {
		q, err := st.Q(frame)
		if err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "frame %d", i))
			continue
		}
		if !validQ(q) {
			continue
		}
		a, b, g, l := segment.ParametersFromQ(q)
		alpha += a
		beta += b
		gamma += g
		length += l
		qs = append(qs, q)
		used = append(used, frame)
	}
	if errs != nil {
		return nil, errs
	}
	n := float64(len(qs))
	if n == 0 {
		return nil, errors.Wrapf(ErrNoValidFrame, "segment %q", st.Name)
	}
	if len(qs) < len(frames) {
		logger.Warnw("skipped frames with non-finite coordinates", "segment", st.Name, "skipped", len(frames)-len(qs))
	}

	var opts []segment.Option
	if st.Inertia != nil {
		opts = append(opts, segment.WithInertia(*st.Inertia))
	}
	s := segment.New(st.Name, alpha/n, beta/n, gamma/n, length/n, opts...)

	for _, mt := range st.Markers {
		local, err := markerLocalPosition(s, mt, qs, used)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if _, err := s.AddMarker(mt.Name, local, segment.Technical(mt.Technical), segment.Anatomical(mt.Anatomical)); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		return nil, errs
	}
	logger.Debugw("segment calibrated", "segment", st.Name, "frames", len(qs), "length", s.Length())
	return s, nil
}

func markerLocalPosition(s *segment.Segment, mt MarkerTemplate, qs []natural.SegmentCoordinates, frames []natural.MarkerFrame) (r3.Vector, error) {
	pos := mt.position()
	var sum r3.Vector
	count := 0
	for i, frame := range frames {
		global, err := pos(frame)
		if err != nil {
			return r3.Vector{}, errors.Wrapf(err, "marker %q", mt.Name)
		}
		if !finite(global) {
			continue
		}
		local, err := s.LocalPositionFromExperimental(qs[i], global)
		if err != nil {
			return r3.Vector{}, errors.Wrapf(err, "marker %q", mt.Name)
		}
		sum = sum.Add(local)
		count++
	}
	if count == 0 {
		return r3.Vector{}, errors.Wrapf(ErrNoValidFrame, "marker %q", mt.Name)
	}
	return sum.Mul(1 / float64(count)), nil
}
