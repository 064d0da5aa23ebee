package natural

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Vector holds the components (n1, n2, n3) of a point in the non-orthogonal
// basis (u, v, w) of a segment, with origin at rp.
type Vector [3]float64

// Proximal is the natural vector of rp.
func Proximal() Vector { return Vector{0, 0, 0} }

// Distal is the natural vector of rd.
func Distal() Vector { return Vector{0, -1, 0} }

// Interpolate returns the matrix N such that N·Q = rp + n1·u + n2·(rp-rd) + n3·w.
func (n Vector) Interpolate() InterpolationMatrix {
	return InterpolationMatrix{c: [4]float64{n[0], 1 + n[1], -n[1], n[2]}}
}

// InterpolationMatrix is a 3x12 operator of the form [c0·I3, c1·I3, c2·I3, c3·I3]
// acting on a segment block ordered (u, rp, rd, w).
type InterpolationMatrix struct {
	c [4]float64
}

// NewInterpolationMatrix builds the operator from its four block coefficients.
func NewInterpolationMatrix(cu, crp, crd, cw float64) InterpolationMatrix {
	return InterpolationMatrix{c: [4]float64{cu, crp, crd, cw}}
}

// AxisInterpolation returns the operator extracting u, v = rp - rd, or w.
func AxisInterpolation(a Axis) InterpolationMatrix {
	switch a {
	case AxisU:
		return NewInterpolationMatrix(1, 0, 0, 0)
	case AxisV:
		return NewInterpolationMatrix(0, 1, -1, 0)
	default:
		return NewInterpolationMatrix(0, 0, 0, 1)
	}
}

// Coefficients returns the four block coefficients.
func (m InterpolationMatrix) Coefficients() [4]float64 { return m.c }

// At returns element (i, j) of the 3x12 matrix.
func (m InterpolationMatrix) At(i, j int) float64 {
	if j%3 != i {
		return 0
	}
	return m.c[j/3]
}

func (m InterpolationMatrix) Dims() (r, c int) { return 3, SegmentSize }

func (m InterpolationMatrix) T() mat.Matrix { return mat.Transpose{Matrix: m} }

// Dense materializes the operator.
func (m InterpolationMatrix) Dense() *mat.Dense {
	d := mat.NewDense(3, SegmentSize, nil)
	for k, c := range m.c {
		for i := 0; i < 3; i++ {
			d.Set(i, 3*k+i, c)
		}
	}
	return d
}

// Apply returns N·q.
func (m InterpolationMatrix) Apply(q SegmentCoordinates) r3.Vector {
	var p r3.Vector
	for k, c := range m.c {
		if c == 0 {
			continue
		}
		p = p.Add(q.at(3 * k).Mul(c))
	}
	return p
}

// MulVec returns N·q for a raw slice, rejecting anything but 12 entries.
func (m InterpolationMatrix) MulVec(q []float64) (r3.Vector, error) {
	b, err := SegmentCoordinatesFromSlice(q)
	if err != nil {
		return r3.Vector{}, err
	}
	return m.Apply(b), nil
}

// ApplyTranspose returns Nᵀ·f, the 12-vector of generalized components of f.
func (m InterpolationMatrix) ApplyTranspose(f r3.Vector) SegmentCoordinates {
	var out SegmentCoordinates
	for k, c := range m.c {
		out.set(3*k, f.Mul(c))
	}
	return out
}
