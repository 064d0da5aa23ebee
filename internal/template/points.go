// Package template builds calibrated models from measured marker data.
//
// Every geometric quantity of a template is a PointFunc: a pure function of
// one frame of marker positions. Segment axes, endpoints and marker positions
// are evaluated per frame, then averaged into the segment's shape parameters
// and the markers' local positions.
package template

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/san-kum/natkin/internal/natural"
)

// PointFunc computes a global point or direction from one frame.
type PointFunc func(frame natural.MarkerFrame) (r3.Vector, error)

// Marker reads a measured marker.
func Marker(name string) PointFunc {
	return func(frame natural.MarkerFrame) (r3.Vector, error) {
		p, ok := frame[name]
		if !ok {
			return r3.Vector{}, &natural.UnresolvedReferenceError{Kind: "marker", Name: name, From: "marker frame"}
		}
		return p, nil
	}
}

// Fixed returns the same point for every frame.
func Fixed(p r3.Vector) PointFunc {
	return func(natural.MarkerFrame) (r3.Vector, error) { return p, nil }
}

// MiddleOf returns the midpoint of two points.
func MiddleOf(a, b PointFunc) PointFunc {
	return func(frame natural.MarkerFrame) (r3.Vector, error) {
		pa, err := a(frame)
		if err != nil {
			return r3.Vector{}, err
		}
		pb, err := b(frame)
		if err != nil {
			return r3.Vector{}, err
		}
		return pa.Add(pb).Mul(0.5), nil
	}
}

// NormalTo returns the unit normal of the plane through origin, a and b,
// oriented as (a - origin) × (b - origin).
func NormalTo(origin, a, b PointFunc) PointFunc {
	return func(frame natural.MarkerFrame) (r3.Vector, error) {
		o, err := origin(frame)
		if err != nil {
			return r3.Vector{}, err
		}
		pa, err := a(frame)
		if err != nil {
			return r3.Vector{}, err
		}
		pb, err := b(frame)
		if err != nil {
			return r3.Vector{}, err
		}
		return pa.Sub(o).Cross(pb.Sub(o)).Normalize(), nil
	}
}

// Harrington2007 estimates the right and left hip joint centers from the
// anterior and posterior superior iliac spines, using the regression of
// Harrington et al. (2007). Inputs and outputs are in meters.
func Harrington2007(rasis, lasis, rpsis, lpsis PointFunc) (right, left PointFunc) {
	centers := func(frame natural.MarkerFrame) (r, l r3.Vector, err error) {
		var p [4]r3.Vector
		for i, f := range []PointFunc{rasis, lasis, rpsis, lpsis} {
			if p[i], err = f(frame); err != nil {
				return r, l, err
			}
		}
		r, l = harrington(p[0], p[1], p[2], p[3])
		return r, l, nil
	}
	right = func(frame natural.MarkerFrame) (r3.Vector, error) {
		r, _, err := centers(frame)
		return r, err
	}
	left = func(frame natural.MarkerFrame) (r3.Vector, error) {
		_, l, err := centers(frame)
		return l, err
	}
	return right, left
}

func harrington(rasis, lasis, rpsis, lpsis r3.Vector) (right, left r3.Vector) {
	// The regression is expressed in millimeters.
	const mm = 1000
	ra, la := rasis.Mul(mm), lasis.Mul(mm)
	sacrum := rpsis.Add(lpsis).Mul(mm / 2)
	origin := ra.Add(la).Mul(0.5)

	forward := ra.Sub(sacrum).Normalize()
	ib := ra.Sub(la).Normalize()
	kb := ib.Cross(forward).Normalize()
	jb := kb.Cross(ib).Normalize()

	width := ra.Sub(la).Norm()
	depth := sacrum.Sub(origin).Norm()

	ap := -0.24*depth - 9.9
	vert := -0.3*width - 10.9
	ml := 0.33*width + 7.3

	at := func(lateral float64) r3.Vector {
		return origin.Add(ib.Mul(lateral)).Add(jb.Mul(ap)).Add(kb.Mul(vert)).Mul(1.0 / mm)
	}
	return at(ml), at(-ml)
}

func finite(v r3.Vector) bool {
	return !math.IsNaN(v.X) && !math.IsNaN(v.Y) && !math.IsNaN(v.Z) &&
		!math.IsInf(v.X, 0) && !math.IsInf(v.Y, 0) && !math.IsInf(v.Z, 0)
}
