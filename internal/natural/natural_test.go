package natural

import (
	"errors"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func sampleBlock() SegmentCoordinates {
	return NewSegmentCoordinates(
		r3.Vector{X: 1, Y: 0, Z: 0},
		r3.Vector{X: 0.1, Y: 0.2, Z: 0.3},
		r3.Vector{X: 0.1, Y: -0.8, Z: 0.3},
		r3.Vector{X: 0, Y: 0, Z: 1},
	)
}

func TestSegmentCoordinatesAccessors(t *testing.T) {
	q := sampleBlock()

	assert.Equal(t, r3.Vector{X: 1}, q.U())
	assert.Equal(t, r3.Vector{X: 0.1, Y: 0.2, Z: 0.3}, q.Rp())
	assert.Equal(t, r3.Vector{X: 0.1, Y: -0.8, Z: 0.3}, q.Rd())
	assert.Equal(t, r3.Vector{Z: 1}, q.W())
	assert.InDelta(t, 1.0, q.V().Y, 1e-12)
	assert.Equal(t, q.V(), q.Axis(AxisV))
}

func TestSegmentCoordinatesFromSlice(t *testing.T) {
	_, err := SegmentCoordinatesFromSlice(make([]float64, 11))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))

	var dim *DimensionMismatchError
	require.True(t, errors.As(err, &dim))
	assert.Equal(t, 12, dim.Want)
	assert.Equal(t, 11, dim.Got)

	q, err := SegmentCoordinatesFromSlice(sampleBlock().Slice())
	require.NoError(t, err)
	assert.Equal(t, sampleBlock(), q)
}

func TestCoordinatesBlocks(t *testing.T) {
	a := sampleBlock()
	b := NewSegmentCoordinates(r3.Vector{Y: 1}, r3.Vector{}, r3.Vector{Z: -1}, r3.Vector{X: 1})
	q := NewCoordinates(a, b)

	require.Len(t, q, 24)
	assert.Equal(t, 2, q.NbSegments())
	assert.Equal(t, a, q.Segment(0))
	assert.Equal(t, b, q.Segment(1))
	assert.NoError(t, q.CheckSegments(2))
	assert.ErrorIs(t, q.CheckSegments(3), ErrDimensionMismatch)

	c := q.Clone()
	c.SetSegment(0, b)
	assert.Equal(t, a, q.Segment(0), "clone must not alias")
	assert.Equal(t, b, c.Segment(0))
}

func TestInterpolateEndpoints(t *testing.T) {
	q := sampleBlock()

	assert.Equal(t, q.Rp(), Proximal().Interpolate().Apply(q))
	assert.InDelta(t, 0, Distal().Interpolate().Apply(q).Sub(q.Rd()).Norm(), 1e-12)

	mid := Vector{0, -0.5, 0}.Interpolate().Apply(q)
	want := q.Rp().Add(q.Rd()).Mul(0.5)
	assert.InDelta(t, 0, mid.Sub(want).Norm(), 1e-12)
}

func TestInterpolationMatrixDense(t *testing.T) {
	q := sampleBlock()
	n := Vector{0.3, -0.2, 0.7}.Interpolate()

	d := n.Dense()
	var got mat.VecDense
	got.MulVec(d, mat.NewVecDense(SegmentSize, q.Slice()))
	p := n.Apply(q)
	assert.InDelta(t, p.X, got.AtVec(0), 1e-12)
	assert.InDelta(t, p.Y, got.AtVec(1), 1e-12)
	assert.InDelta(t, p.Z, got.AtVec(2), 1e-12)

	for i := 0; i < 3; i++ {
		for j := 0; j < SegmentSize; j++ {
			assert.Equal(t, d.At(i, j), n.At(i, j))
		}
	}

	f := r3.Vector{X: 1, Y: -2, Z: 0.5}
	var gen mat.VecDense
	gen.MulVec(d.T(), mat.NewVecDense(3, []float64{f.X, f.Y, f.Z}))
	tr := n.ApplyTranspose(f)
	for j := 0; j < SegmentSize; j++ {
		assert.InDelta(t, gen.AtVec(j), tr[j], 1e-12)
	}
}

func TestMulVecRejectsWrongLength(t *testing.T) {
	_, err := Proximal().Interpolate().MulVec(make([]float64, 24))
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestAxisInterpolation(t *testing.T) {
	q := sampleBlock()
	for _, a := range []Axis{AxisU, AxisV, AxisW} {
		got := AxisInterpolation(a).Apply(q)
		assert.InDelta(t, 0, got.Sub(q.Axis(a)).Norm(), 1e-12, a.String())
	}
}

func TestParseAxis(t *testing.T) {
	tests := []struct {
		in   string
		want Axis
		ok   bool
	}{
		{"u", AxisU, true},
		{"V", AxisV, true},
		{" w ", AxisW, true},
		{"x", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAxis(tt.in)
			if !tt.ok {
				assert.EqualError(t, err, `natural: unknown axis "`+tt.in+`"`)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	_, err := Axis(7).MarshalText()
	assert.EqualError(t, err, "natural: unknown axis 7")
}
