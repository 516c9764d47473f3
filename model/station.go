package model

import (
	"errors"
	"fmt"
)

// ErrInvalidObservation reports an observation that cannot be reduced,
// such as a negative slope distance.
var ErrInvalidObservation = errors.New("invalid observation")

// Position is a local grid coordinate in the survey's linear unit:
// X east, Y north, Z up.
type Position struct {
	X float64
	Y float64
	Z float64
}

// Face identifies the telescope orientation of a single measurement.
type Face int

const (
	FaceDirect  Face = iota // F1, face left
	FaceReverse             // F2, face right
)

func (f Face) String() string {
	switch f {
	case FaceDirect:
		return "F1"
	case FaceReverse:
		return "F2"
	default:
		return fmt.Sprintf("Face(%d)", int(f))
	}
}

// ParseFace maps field-book designators (F1/F2) to a Face.
func ParseFace(s string) (Face, error) {
	switch s {
	case "F1":
		return FaceDirect, nil
	case "F2":
		return FaceReverse, nil
	default:
		return 0, fmt.Errorf("%w: unknown face %q", ErrInvalidObservation, s)
	}
}

// Observation is one single-face pointing at a target.
type Observation struct {
	HorizontalAngle Angle // angle right from the back-sight
	ZenithAngle     Angle // 90° is horizontal
	SlopeDistance   float64
	Face            Face
}

// Validate checks the observation can be reduced.
func (o Observation) Validate() error {
	if o.SlopeDistance < 0 {
		return fmt.Errorf("%w: slope distance %v < 0", ErrInvalidObservation, o.SlopeDistance)
	}
	if o.Face != FaceDirect && o.Face != FaceReverse {
		return fmt.Errorf("%w: face %v", ErrInvalidObservation, o.Face)
	}
	return nil
}

// BaseStation is an occupied instrument setup.
type BaseStation struct {
	Code     string
	Position Position
	// ZOffset is the instrument height above the monumented point.
	ZOffset float64
	// OrientationOffset is added to every horizontal angle measured from
	// this setup to align it with the project bearing reference.
	OrientationOffset Angle
}

// ReducedPoint is the coordinate of an observed target.
type ReducedPoint struct {
	ID                 string
	StationCode        string
	Position           Position
	TargetZOffset      float64
	HorizontalDistance float64
	VerticalDistance   float64
}
