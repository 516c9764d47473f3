package core

import (
	"math"

	"github.com/surveytools/cogo/model"
)

// Vec3 is a local offset in the survey's linear unit: X east, Y north,
// Z up.
type Vec3 struct {
	X, Y, Z float64
}

// Add returns v + other.
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// HorizontalNorm returns the length of the vector projected on the XY plane.
func (v Vec3) HorizontalNorm() float64 {
	return math.Hypot(v.X, v.Y)
}

// Apply shifts a position by v.
func (v Vec3) Apply(p model.Position) model.Position {
	return model.Position{X: p.X + v.X, Y: p.Y + v.Y, Z: p.Z + v.Z}
}

// PolarOffset converts a bearing (clockwise from north), a zenith angle and
// a slope distance into an east/north/up offset. The vertical component is
// measured from the instrument's trunnion axis.
func PolarOffset(bearing, zenith model.Angle, slope float64) Vec3 {
	hd := slope * math.Sin(zenith.Radians())
	vd := slope * math.Cos(zenith.Radians())
	sx, sy := bearing.UnitVector()
	return Vec3{X: hd * sx, Y: hd * sy, Z: vd}
}

// InverseOffset recovers the bearing, zenith angle and slope distance of an
// offset. A zero offset yields 0° bearing and 90° zenith.
func InverseOffset(v Vec3) (bearing, zenith model.Angle, slope float64) {
	slope = v.Norm()
	if slope == 0 {
		return model.Angle{}, model.MustAngle("90:00:00"), 0
	}
	// atan2(x, y) keeps the clockwise-from-north convention.
	bearing, _ = model.AngleFromDecimalDegrees(math.Atan2(v.X, v.Y) * 180 / math.Pi)
	zenith, _ = model.AngleFromDecimalDegrees(math.Atan2(v.HorizontalNorm(), v.Z) * 180 / math.Pi)
	return bearing, zenith, slope
}
