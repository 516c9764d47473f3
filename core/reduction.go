package core

import (
	"fmt"
	"math"

	"github.com/surveytools/cogo/model"
)

// Tolerances bound the acceptable direct/reverse spread of a pointing.
// Angles are decimal degrees.
type Tolerances struct {
	Horizontal float64
	Zenith     float64
	Distance   float64
}

// DefaultTolerances returns 30" for both angles and 0.01 for distances.
func DefaultTolerances() Tolerances {
	return Tolerances{
		Horizontal: 30.0 / 3600,
		Zenith:     30.0 / 3600,
		Distance:   0.01,
	}
}

// AveragedObservation is the single-face equivalent of a set of direct and
// reverse pointings, plus the spreads that were checked against Tolerances.
type AveragedObservation struct {
	PointID          string
	StationCode      string
	Horizontal       model.Angle
	Zenith           model.Angle
	SlopeDistance    float64
	InstrumentHeight float64
	TargetHeight     float64

	HorizontalRange float64
	ZenithRange     float64
	DistanceRange   float64
}

// Reduction is the outcome of reducing one target from one setup.
type Reduction struct {
	Point    model.ReducedPoint
	Averaged AveragedObservation
	Offset   Vec3
	Warnings []model.Warning
}

// NormalizeFace brings a reverse-face pointing onto the direct-face
// convention: horizontal +180°, zenith 360° - z. Direct pointings are
// returned unchanged.
func NormalizeFace(o model.Observation) model.Observation {
	if o.Face != model.FaceReverse {
		return o
	}
	return model.Observation{
		HorizontalAngle: o.HorizontalAngle.PlusDegrees(180),
		ZenithAngle:     o.ZenithAngle.Reflected(),
		SlopeDistance:   o.SlopeDistance,
		Face:            model.FaceDirect,
	}
}

// AverageObservations averages direct and reverse pointings of one target.
// Tolerance breaches are reported as warnings and never stop the average.
func AverageObservations(pointID string, obs []model.Observation, tol Tolerances) (AveragedObservation, []model.Warning, error) {
	if len(obs) == 0 {
		return AveragedObservation{}, nil, fmt.Errorf("%w: point %s has no observations", model.ErrInvalidObservation, pointID)
	}

	hz := make([]model.Angle, 0, len(obs))
	za := make([]model.Angle, 0, len(obs))
	var sum float64
	minD, maxD := math.Inf(1), math.Inf(-1)
	for _, o := range obs {
		if err := o.Validate(); err != nil {
			return AveragedObservation{}, nil, fmt.Errorf("point %s: %w", pointID, err)
		}
		n := NormalizeFace(o)
		hz = append(hz, n.HorizontalAngle)
		za = append(za, n.ZenithAngle)
		sum += n.SlopeDistance
		minD = math.Min(minD, n.SlopeDistance)
		maxD = math.Max(maxD, n.SlopeDistance)
	}

	h, err := AverageAngles(hz...)
	if err != nil {
		return AveragedObservation{}, nil, fmt.Errorf("point %s horizontal angle: %w", pointID, err)
	}
	z, err := AverageAngles(za...)
	if err != nil {
		return AveragedObservation{}, nil, fmt.Errorf("point %s zenith angle: %w", pointID, err)
	}

	avg := AveragedObservation{
		PointID:         pointID,
		Horizontal:      h.Angle,
		Zenith:          z.Angle,
		SlopeDistance:   sum / float64(len(obs)),
		HorizontalRange: h.Range,
		ZenithRange:     z.Range,
		DistanceRange:   maxD - minD,
	}

	var warnings []model.Warning
	check := func(kind model.ToleranceKind, value, limit float64) {
		if value > limit {
			warnings = append(warnings, model.Warning{
				PointID:   pointID,
				Kind:      kind,
				Value:     value,
				Tolerance: limit,
				Excess:    value - limit,
			})
		}
	}
	check(model.ToleranceHorizontal, avg.HorizontalRange, tol.Horizontal)
	check(model.ToleranceZenith, avg.ZenithRange, tol.Zenith)
	check(model.ToleranceDistance, avg.DistanceRange, tol.Distance)

	return avg, warnings, nil
}

// Reduce averages the pointings of one target and turns them into a
// coordinate relative to the base station.
func Reduce(base model.BaseStation, pointID string, obs []model.Observation, targetZOffset float64, tol Tolerances) (Reduction, error) {
	avg, warnings, err := AverageObservations(pointID, obs, tol)
	if err != nil {
		return Reduction{}, err
	}
	avg.StationCode = base.Code
	for i := range warnings {
		warnings[i].StationCode = base.Code
	}
	avg.InstrumentHeight = base.ZOffset
	avg.TargetHeight = targetZOffset

	bearing := avg.Horizontal.PlusDegrees(base.OrientationOffset.DecimalDegrees())
	offset := PolarOffset(bearing, avg.Zenith, avg.SlopeDistance)
	offset.Z += base.ZOffset - targetZOffset

	return Reduction{
		Point: model.ReducedPoint{
			ID:                 pointID,
			StationCode:        base.Code,
			Position:           offset.Apply(base.Position),
			TargetZOffset:      targetZOffset,
			HorizontalDistance: avg.SlopeDistance * math.Sin(avg.Zenith.Radians()),
			VerticalDistance:   avg.SlopeDistance * math.Cos(avg.Zenith.Radians()),
		},
		Averaged: avg,
		Offset:   offset,
		Warnings: warnings,
	}, nil
}
