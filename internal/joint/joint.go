// Package joint implements kinematic joints between natural-coordinate segments.
//
// A joint is a pure function of the coordinate blocks it connects. Two-segment
// joints take the parent and child blocks; ground joints bind a single segment
// (stored as Parent, with Child set to Ground) to the inertial frame and their
// Jacobians only have the 12 columns of that segment.
//
// Row layout for Spherical, Hinge and Universal joints is the coincidence of
// the parent's distal point with the child's proximal point (3 rows),
// followed by one row per axis pair:
//
//	a_parent(Q_parent) · a_child(Q_child) - cos(theta)
package joint

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/natkin/internal/natural"
)

// Ground is the reserved segment name standing for the inertial frame.
const Ground = "ground"

var ErrInvalidJoint = errors.New("joint: invalid definition")

// Description is the serializable definition of a joint. Fields that do not
// apply to the kind are ignored.
type Description struct {
	Name   string `json:"name" yaml:"name"`
	Kind   Kind   `json:"kind" yaml:"kind"`
	Parent string `json:"parent" yaml:"parent"`
	Child  string `json:"child,omitempty" yaml:"child,omitempty"`

	// ParentAxes and ChildAxes pair segment axes for Hinge (2) and Universal (1).
	// Ground kinds use ParentAxes with GroundAxes.
	ParentAxes []natural.Axis `json:"parent_axes,omitempty" yaml:"parent_axes,omitempty"`
	ChildAxes  []natural.Axis `json:"child_axes,omitempty" yaml:"child_axes,omitempty"`
	GroundAxes []r3.Vector    `json:"ground_axes,omitempty" yaml:"ground_axes,omitempty"`
	Theta      []float64      `json:"theta,omitempty" yaml:"theta,omitempty"`

	// ConstantLength points, in natural components. Nil means the distal point.
	ParentPoint *natural.Vector `json:"parent_point,omitempty" yaml:"parent_point,omitempty"`
	ChildPoint  *natural.Vector `json:"child_point,omitempty" yaml:"child_point,omitempty"`
	Length      float64         `json:"length,omitempty" yaml:"length,omitempty"`

	GroundPoint r3.Vector                   `json:"ground_point" yaml:"ground_point"`
	Reference   *natural.SegmentCoordinates `json:"reference,omitempty" yaml:"reference,omitempty"`
}

type Joint struct {
	desc  Description
	index int

	parentAxes []natural.InterpolationMatrix
	childAxes  []natural.InterpolationMatrix
	cosTheta   []float64

	parentPoint natural.InterpolationMatrix
	childPoint  natural.InterpolationMatrix
}

// New validates a description and builds the joint.
func New(d Description) (*Joint, error) {
	if d.Name == "" {
		return nil, errors.Wrap(ErrInvalidJoint, "empty name")
	}
	if d.Kind.NbConstraints() == 0 && d.Kind != GroundFree {
		return nil, errors.Wrapf(ErrInvalidJoint, "joint %q: unknown kind %d", d.Name, int(d.Kind))
	}
	if d.Parent == "" || d.Parent == Ground {
		return nil, errors.Wrapf(ErrInvalidJoint, "joint %q: parent must name a segment", d.Name)
	}
	if d.Kind.IsGround() {
		if d.Child != "" && d.Child != Ground {
			return nil, errors.Wrapf(ErrInvalidJoint, "joint %q: %s takes no child segment", d.Name, d.Kind)
		}
		d.Child = Ground
	} else if d.Child == "" || d.Child == Ground {
		return nil, errors.Wrapf(ErrInvalidJoint, "joint %q: %s needs a child segment", d.Name, d.Kind)
	}

	j := &Joint{desc: d, index: -1}

	nAxes := 0
	switch d.Kind {
	case Hinge, GroundHinge:
		nAxes = 2
	case Universal, GroundUniversal:
		nAxes = 1
	}
	if nAxes > 0 {
		other := len(d.ChildAxes)
		if d.Kind.IsGround() {
			other = len(d.GroundAxes)
		}
		if len(d.ParentAxes) != nAxes || other != nAxes || len(d.Theta) != nAxes {
			return nil, errors.Wrapf(ErrInvalidJoint, "joint %q: %s needs %d axis pairs and angles", d.Name, d.Kind, nAxes)
		}
		for i := 0; i < nAxes; i++ {
			j.parentAxes = append(j.parentAxes, natural.AxisInterpolation(d.ParentAxes[i]))
			if !d.Kind.IsGround() {
				j.childAxes = append(j.childAxes, natural.AxisInterpolation(d.ChildAxes[i]))
			}
			j.cosTheta = append(j.cosTheta, math.Cos(d.Theta[i]))
		}
	}

	if d.Kind == ConstantLength {
		pp, cp := natural.Distal(), natural.Distal()
		if d.ParentPoint != nil {
			pp = *d.ParentPoint
		}
		if d.ChildPoint != nil {
			cp = *d.ChildPoint
		}
		j.parentPoint = pp.Interpolate()
		j.childPoint = cp.Interpolate()
	}

	if d.Kind == GroundWeld && d.Reference == nil {
		return nil, errors.Wrapf(ErrInvalidJoint, "joint %q: ground weld needs reference coordinates", d.Name)
	}
	return j, nil
}

func mustNew(d Description) *Joint {
	j, err := New(d)
	if err != nil {
		panic(err)
	}
	return j
}

// NewSpherical joins the parent's distal point to the child's proximal point.
func NewSpherical(name, parent, child string) *Joint {
	return mustNew(Description{Name: name, Kind: Spherical, Parent: parent, Child: child})
}

// NewHinge adds two axis-angle constraints to a spherical joint.
func NewHinge(name, parent, child string, parentAxes, childAxes [2]natural.Axis, theta [2]float64) *Joint {
	return mustNew(Description{
		Name: name, Kind: Hinge, Parent: parent, Child: child,
		ParentAxes: parentAxes[:], ChildAxes: childAxes[:], Theta: theta[:],
	})
}

// NewUniversal adds one axis-angle constraint to a spherical joint.
func NewUniversal(name, parent, child string, parentAxis, childAxis natural.Axis, theta float64) *Joint {
	return mustNew(Description{
		Name: name, Kind: Universal, Parent: parent, Child: child,
		ParentAxes: []natural.Axis{parentAxis}, ChildAxes: []natural.Axis{childAxis}, Theta: []float64{theta},
	})
}

// NewConstantLength keeps two points at a fixed distance. Nil points default
// to the distal point of their segment.
func NewConstantLength(name, parent, child string, length float64, parentPoint, childPoint *natural.Vector) *Joint {
	return mustNew(Description{
		Name: name, Kind: ConstantLength, Parent: parent, Child: child,
		Length: length, ParentPoint: parentPoint, ChildPoint: childPoint,
	})
}

// NewGroundSpherical pins the proximal point of a segment at a global point.
func NewGroundSpherical(name, seg string, point r3.Vector) *Joint {
	return mustNew(Description{Name: name, Kind: GroundSpherical, Parent: seg, GroundPoint: point})
}

// NewGroundHinge pins a segment and fixes two of its axes against global directions.
func NewGroundHinge(name, seg string, point r3.Vector, axes [2]natural.Axis, global [2]r3.Vector, theta [2]float64) *Joint {
	return mustNew(Description{
		Name: name, Kind: GroundHinge, Parent: seg, GroundPoint: point,
		ParentAxes: axes[:], GroundAxes: global[:], Theta: theta[:],
	})
}

// NewGroundUniversal pins a segment and fixes one of its axes against a global direction.
func NewGroundUniversal(name, seg string, point r3.Vector, axis natural.Axis, global r3.Vector, theta float64) *Joint {
	return mustNew(Description{
		Name: name, Kind: GroundUniversal, Parent: seg, GroundPoint: point,
		ParentAxes: []natural.Axis{axis}, GroundAxes: []r3.Vector{global}, Theta: []float64{theta},
	})
}

// NewGroundWeld locks every coordinate of a segment to a reference block.
func NewGroundWeld(name, seg string, reference natural.SegmentCoordinates) *Joint {
	ref := reference
	return mustNew(Description{Name: name, Kind: GroundWeld, Parent: seg, Reference: &ref})
}

// NewGroundFree declares a floating segment. It contributes no equation.
func NewGroundFree(name, seg string) *Joint {
	return mustNew(Description{Name: name, Kind: GroundFree, Parent: seg})
}

func (j *Joint) Name() string { return j.desc.Name }

func (j *Joint) Kind() Kind { return j.desc.Kind }

func (j *Joint) Parent() string { return j.desc.Parent }

// Child returns the child segment name, or Ground.
func (j *Joint) Child() string { return j.desc.Child }

func (j *Joint) NbConstraints() int { return j.desc.Kind.NbConstraints() }

// Index returns the registration position in the model, or -1.
func (j *Joint) Index() int { return j.index }

func (j *Joint) SetIndex(i int) error {
	if j.index >= 0 {
		return natural.ErrIndexAssigned
	}
	j.index = i
	return nil
}

// Description returns a deep copy of the definition.
func (j *Joint) Description() Description {
	d := j.desc
	d.ParentAxes = append([]natural.Axis(nil), d.ParentAxes...)
	d.ChildAxes = append([]natural.Axis(nil), d.ChildAxes...)
	d.GroundAxes = append([]r3.Vector(nil), d.GroundAxes...)
	d.Theta = append([]float64(nil), d.Theta...)
	if d.ParentPoint != nil {
		p := *d.ParentPoint
		d.ParentPoint = &p
	}
	if d.ChildPoint != nil {
		p := *d.ChildPoint
		d.ChildPoint = &p
	}
	if d.Reference != nil {
		r := *d.Reference
		d.Reference = &r
	}
	return d
}

func (j *Joint) needChild(child *natural.SegmentCoordinates) error {
	if !j.desc.Kind.IsGround() && child == nil {
		return errors.Wrapf(natural.ErrMissingChild, "joint %q", j.desc.Name)
	}
	return nil
}

// Constraint evaluates the residual. child is ignored by ground joints and
// required by the others.
func (j *Joint) Constraint(parent natural.SegmentCoordinates, child *natural.SegmentCoordinates) ([]float64, error) {
	if err := j.needChild(child); err != nil {
		return nil, err
	}
	out := make([]float64, 0, j.NbConstraints())

	switch j.desc.Kind {
	case Spherical, Hinge, Universal:
		d := parent.Rd().Sub(child.Rp())
		out = append(out, d.X, d.Y, d.Z)
		for i := range j.parentAxes {
			a := j.parentAxes[i].Apply(parent)
			b := j.childAxes[i].Apply(*child)
			out = append(out, a.Dot(b)-j.cosTheta[i])
		}

	case ConstantLength:
		d := j.childPoint.Apply(*child).Sub(j.parentPoint.Apply(parent))
		out = append(out, d.Dot(d)-j.desc.Length*j.desc.Length)

	case GroundSpherical, GroundHinge, GroundUniversal:
		d := parent.Rp().Sub(j.desc.GroundPoint)
		out = append(out, d.X, d.Y, d.Z)
		for i := range j.parentAxes {
			a := j.parentAxes[i].Apply(parent)
			out = append(out, j.desc.GroundAxes[i].Dot(a)-j.cosTheta[i])
		}

	case GroundWeld:
		for k := 0; k < natural.SegmentSize; k++ {
			out = append(out, parent[k]-j.desc.Reference[k])
		}
	}
	return out, nil
}

// JacobianBlocks returns the derivatives of Constraint with respect to the
// parent and child blocks. The child block is nil for ground joints; both are
// nil for GroundFree.
func (j *Joint) JacobianBlocks(parent natural.SegmentCoordinates, child *natural.SegmentCoordinates) (jp, jc *mat.Dense, err error) {
	if err := j.needChild(child); err != nil {
		return nil, nil, err
	}
	k := j.NbConstraints()
	if k == 0 {
		return nil, nil, nil
	}
	jp = mat.NewDense(k, natural.SegmentSize, nil)
	if !j.desc.Kind.IsGround() {
		jc = mat.NewDense(k, natural.SegmentSize, nil)
	}

	switch j.desc.Kind {
	case Spherical, Hinge, Universal:
		for i := 0; i < 3; i++ {
			jp.Set(i, natural.OffsetRd+i, 1)
			jc.Set(i, natural.OffsetRp+i, -1)
		}
		for i := range j.parentAxes {
			a := j.parentAxes[i].Apply(parent)
			b := j.childAxes[i].Apply(*child)
			jp.SetRow(3+i, slice(j.parentAxes[i].ApplyTranspose(b)))
			jc.SetRow(3+i, slice(j.childAxes[i].ApplyTranspose(a)))
		}

	case ConstantLength:
		d := j.childPoint.Apply(*child).Sub(j.parentPoint.Apply(parent))
		jp.SetRow(0, slice(j.parentPoint.ApplyTranspose(d.Mul(-2))))
		jc.SetRow(0, slice(j.childPoint.ApplyTranspose(d.Mul(2))))

	case GroundSpherical, GroundHinge, GroundUniversal:
		for i := 0; i < 3; i++ {
			jp.Set(i, natural.OffsetRp+i, 1)
		}
		for i := range j.parentAxes {
			jp.SetRow(3+i, slice(j.parentAxes[i].ApplyTranspose(j.desc.GroundAxes[i])))
		}

	case GroundWeld:
		for i := 0; i < natural.SegmentSize; i++ {
			jp.Set(i, i, 1)
		}
	}
	return jp, jc, nil
}

// Jacobian returns the k×24 matrix [Jp Jc] for two-segment joints and the
// k×12 matrix Jp for ground joints. It is nil for GroundFree.
func (j *Joint) Jacobian(parent natural.SegmentCoordinates, child *natural.SegmentCoordinates) (*mat.Dense, error) {
	jp, jc, err := j.JacobianBlocks(parent, child)
	if err != nil || jp == nil {
		return nil, err
	}
	return hstack(jp, jc), nil
}

// JacobianDerivativeBlocks returns the time derivative of JacobianBlocks
// evaluated at the given velocities. Rows that are linear in Q vanish.
func (j *Joint) JacobianDerivativeBlocks(parentDot natural.SegmentVelocities, childDot *natural.SegmentVelocities) (jp, jc *mat.Dense, err error) {
	if err := j.needChild(childDot); err != nil {
		return nil, nil, err
	}
	k := j.NbConstraints()
	if k == 0 {
		return nil, nil, nil
	}
	jp = mat.NewDense(k, natural.SegmentSize, nil)
	if !j.desc.Kind.IsGround() {
		jc = mat.NewDense(k, natural.SegmentSize, nil)
	}

	switch j.desc.Kind {
	case Hinge, Universal:
		for i := range j.parentAxes {
			a := j.parentAxes[i].Apply(parentDot)
			b := j.childAxes[i].Apply(*childDot)
			jp.SetRow(3+i, slice(j.parentAxes[i].ApplyTranspose(b)))
			jc.SetRow(3+i, slice(j.childAxes[i].ApplyTranspose(a)))
		}

	case ConstantLength:
		d := j.childPoint.Apply(*childDot).Sub(j.parentPoint.Apply(parentDot))
		jp.SetRow(0, slice(j.parentPoint.ApplyTranspose(d.Mul(-2))))
		jc.SetRow(0, slice(j.childPoint.ApplyTranspose(d.Mul(2))))
	}
	return jp, jc, nil
}

// JacobianDerivative is the stacked form of JacobianDerivativeBlocks.
func (j *Joint) JacobianDerivative(parentDot natural.SegmentVelocities, childDot *natural.SegmentVelocities) (*mat.Dense, error) {
	jp, jc, err := j.JacobianDerivativeBlocks(parentDot, childDot)
	if err != nil || jp == nil {
		return nil, err
	}
	return hstack(jp, jc), nil
}

func slice(q natural.SegmentCoordinates) []float64 { return q[:] }

func hstack(jp, jc *mat.Dense) *mat.Dense {
	if jc == nil {
		return jp
	}
	r, _ := jp.Dims()
	out := mat.NewDense(r, 2*natural.SegmentSize, nil)
	out.Slice(0, r, 0, natural.SegmentSize).(*mat.Dense).Copy(jp)
	out.Slice(0, r, natural.SegmentSize, 2*natural.SegmentSize).(*mat.Dense).Copy(jc)
	return out
}
