package model

import "fmt"

// ToleranceKind names the quantity whose direct/reverse spread was checked.
type ToleranceKind string

const (
	ToleranceHorizontal ToleranceKind = "horizontal"
	ToleranceZenith     ToleranceKind = "zenith"
	ToleranceDistance   ToleranceKind = "distance"
)

// Warning reports a tolerance that was exceeded while reducing a point.
// Angular values are decimal degrees; distances use the survey unit.
type Warning struct {
	PointID     string
	StationCode string
	Kind        ToleranceKind
	Value       float64
	Tolerance   float64
	Excess      float64
}

// Error lets a Warning travel through error-typed sinks.
func (w Warning) Error() string {
	return fmt.Sprintf("%s from %s: %s tolerance exceeded by %g (spread %g, tolerance %g)",
		w.PointID, w.StationCode, w.Kind, w.Excess, w.Value, w.Tolerance)
}
