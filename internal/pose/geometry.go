// Package pose smooths per-frame body landmarks and provides the planar
// geometry used to turn them into joint angles.
package pose

import (
	"fmt"
	"math"

	"github.com/claude/repform/internal/models"
)

// Epsilon is the shortest segment length treated as non-degenerate.
const Epsilon = 1e-9

// Distance returns the Euclidean distance between two landmarks.
func Distance(a, b models.Landmark) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Midpoint returns the point halfway between a and b. Its confidence is the
// lower of the two.
func Midpoint(a, b models.Landmark) models.Landmark {
	return models.Landmark{
		X:          (a.X + b.X) / 2,
		Y:          (a.Y + b.Y) / 2,
		Confidence: math.Min(a.Confidence, b.Confidence),
	}
}

// Degenerate reports whether the angle a-b-c cannot be computed because one
// of its arms has zero length.
func Degenerate(a, b, c models.Landmark) bool {
	return Distance(a, b) < Epsilon || Distance(c, b) < Epsilon
}

// Angle returns the angle in degrees at b formed by a-b-c, in [0, 180].
// Callers must rule out degenerate input first; a zero-length arm panics.
func Angle(a, b, c models.Landmark) float64 {
	bax, bay := a.X-b.X, a.Y-b.Y
	bcx, bcy := c.X-b.X, c.Y-b.Y
	na := math.Hypot(bax, bay)
	nc := math.Hypot(bcx, bcy)
	if na < Epsilon || nc < Epsilon {
		panic(fmt.Sprintf("pose: degenerate angle at (%.4f, %.4f)", b.X, b.Y))
	}
	cos := (bax*bcx + bay*bcy) / (na * nc)
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * 180 / math.Pi
}

// TiltFromVertical returns the angle in degrees between the segment
// top→bottom and the image vertical. 0 is upright, 90 is horizontal.
func TiltFromVertical(top, bottom models.Landmark) float64 {
	dx := bottom.X - top.X
	dy := bottom.Y - top.Y
	n := math.Hypot(dx, dy)
	if n < Epsilon {
		panic("pose: degenerate segment for tilt")
	}
	return math.Acos(math.Min(1, math.Abs(dy)/n)) * 180 / math.Pi
}
