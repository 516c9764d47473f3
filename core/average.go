package core

import (
	"errors"
	"fmt"
	"math"

	"github.com/surveytools/cogo/model"
)

// ErrDegenerateAverage is returned when angles cancel out (e.g. 90° and
// 270°) and no representative direction exists.
var ErrDegenerateAverage = errors.New("degenerate angle average")

// degenerateMagnitude is the smallest vector-sum length treated as a
// direction.
const degenerateMagnitude = 1e-9

// Average is the vector mean of a set of angles.
type Average struct {
	Angle model.Angle
	// Range is the separation of the first two inputs in decimal degrees,
	// folded into [0, 180]. Zero for a single input.
	Range float64
}

// AverageAngles combines observations of the same direction by summing
// their unit vectors, so 10° and 350° average to 0° rather than 180°.
func AverageAngles(angles ...model.Angle) (Average, error) {
	if len(angles) == 0 {
		return Average{}, fmt.Errorf("%w: no angles", ErrDegenerateAverage)
	}

	var sx, sy float64
	for _, a := range angles {
		x, y := a.UnitVector()
		sx += x
		sy += y
	}
	mag := math.Hypot(sx, sy)
	if mag < degenerateMagnitude {
		return Average{}, fmt.Errorf("%w: vector sum of %d angles has magnitude %g", ErrDegenerateAverage, len(angles), mag)
	}
	vx, vy := sx/mag, sy/mag

	deg := math.Acos(clamp(vy, -1, 1)) * 180 / math.Pi
	if vx < 0 {
		deg = 360 - deg
	}
	avg, err := model.AngleFromDecimalDegrees(deg)
	if err != nil {
		return Average{}, err
	}

	out := Average{Angle: avg}
	if len(angles) > 1 {
		out.Range = angles[0].Separation(angles[1])
	}
	return out, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
