package viz

import (
	"fmt"
	"math"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Bone is a segment drawn from its proximal to its distal point.
type Bone struct {
	Name     string
	Proximal r3.Vector
	Distal   r3.Vector
}

// Plane selects the two global axes an SVG view projects onto.
type Plane string

const (
	PlaneXY Plane = "xy"
	PlaneXZ Plane = "xz"
	PlaneYZ Plane = "yz"
)

func ParsePlane(s string) (Plane, error) {
	switch p := Plane(strings.ToLower(s)); p {
	case PlaneXY, PlaneXZ, PlaneYZ:
		return p, nil
	}
	return "", errors.Errorf("unknown plane %q (xy, xz, yz)", s)
}

func (p Plane) project(v r3.Vector) (float64, float64) {
	switch p {
	case PlaneXY:
		return v.X, v.Y
	case PlaneXZ:
		return v.X, v.Z
	}
	return v.Y, v.Z
}

// StickFigureSVG draws the bones as lines and the markers as dots on the
// theme background. Non-finite points are skipped.
func StickFigureSVG(bones []Bone, markers []r3.Vector, plane Plane, width, height int, t Theme) string {
	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	grow := func(v r3.Vector) {
		x, y := plane.project(v)
		if !finite(x) || !finite(y) {
			return
		}
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	for _, b := range bones {
		grow(b.Proximal)
		grow(b.Distal)
	}
	for _, m := range markers {
		grow(m)
	}
	if math.IsInf(minX, 1) {
		minX, maxX, minY, maxY = -1, 1, -1, 1
	}

	// Equal scale on both axes with 10% padding.
	span := math.Max(maxX-minX, maxY-minY)
	if span == 0 {
		span = 1
	}
	pad := 0.1 * span
	scale := math.Min(float64(width), float64(height)) / (span + 2*pad)
	cx, cy := (minX+maxX)/2, (minY+maxY)/2
	toPixel := func(v r3.Vector) (float64, float64, bool) {
		x, y := plane.project(v)
		if !finite(x) || !finite(y) {
			return 0, 0, false
		}
		return float64(width)/2 + (x-cx)*scale, float64(height)/2 - (y-cy)*scale, true
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
<g stroke="%s" stroke-width="3" stroke-linecap="round">
`, width, height, width, height, t.Primary)
	for _, b := range bones {
		x1, y1, ok1 := toPixel(b.Proximal)
		x2, y2, ok2 := toPixel(b.Distal)
		if !ok1 || !ok2 {
			continue
		}
		fmt.Fprintf(&sb, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f"><title>%s</title></line>
`, x1, y1, x2, y2, b.Name)
	}
	fmt.Fprintf(&sb, "</g>\n<g fill=\"%s\">\n", t.Accent)
	for _, m := range markers {
		if x, y, ok := toPixel(m); ok {
			fmt.Fprintf(&sb, `<circle cx="%.1f" cy="%.1f" r="3"/>
`, x, y)
		}
	}
	sb.WriteString("</g>\n</svg>\n")
	return sb.String()
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
