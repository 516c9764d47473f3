package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrInvalidAngle reports a numeric angle that cannot be represented,
	// either non-finite or with minutes/seconds out of range.
	ErrInvalidAngle = errors.New("invalid angle")
	// ErrParse reports malformed degrees-minutes-seconds text.
	ErrParse = errors.New("malformed angle text")
)

// dmsCarryEpsilon absorbs float error when splitting decimal degrees back
// into minutes and seconds, e.g. 29.99999999999 minutes.
const dmsCarryEpsilon = 1e-7

// Angle is a planar angle in decimal degrees, normalised to [0, 360).
// The zero value is 0°.
type Angle struct {
	dd float64
}

// AngleFromDecimalDegrees normalises value into [0, 360) with a floored
// modulo.
func AngleFromDecimalDegrees(value float64) (Angle, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Angle{}, fmt.Errorf("%w: %v is not finite", ErrInvalidAngle, value)
	}
	return Angle{dd: normalizeDegrees(value)}, nil
}

// AngleFromDMS builds an angle from whole degrees, whole minutes and
// decimal seconds. Degrees may exceed 360 and are wrapped.
func AngleFromDMS(degrees, minutes int, seconds float64) (Angle, error) {
	if degrees < 0 {
		return Angle{}, fmt.Errorf("%w: degrees %d < 0", ErrInvalidAngle, degrees)
	}
	if minutes < 0 || minutes >= 60 {
		return Angle{}, fmt.Errorf("%w: minutes %d outside [0, 60)", ErrInvalidAngle, minutes)
	}
	if math.IsNaN(seconds) || seconds < 0 || seconds >= 60 {
		return Angle{}, fmt.Errorf("%w: seconds %v outside [0, 60)", ErrInvalidAngle, seconds)
	}
	return AngleFromDecimalDegrees(float64(degrees) + float64(minutes)/60 + seconds/3600)
}

// ParseAngle parses "D<sep>M<sep>S" text such as "123:45:30.5". An empty
// separator defaults to ":".
func ParseAngle(s, sep string) (Angle, error) {
	if sep == "" {
		sep = ":"
	}
	fields := strings.Split(strings.TrimSpace(s), sep)
	if len(fields) != 3 {
		return Angle{}, fmt.Errorf("%w: %q has %d fields, want 3", ErrParse, s, len(fields))
	}
	d, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return Angle{}, fmt.Errorf("%w: degrees in %q: %v", ErrParse, s, err)
	}
	m, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return Angle{}, fmt.Errorf("%w: minutes in %q: %v", ErrParse, s, err)
	}
	sec, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
	if err != nil {
		return Angle{}, fmt.Errorf("%w: seconds in %q: %v", ErrParse, s, err)
	}
	return AngleFromDMS(d, m, sec)
}

// MustAngle is ParseAngle with ":" separators that panics on error. Meant
// for literals.
func MustAngle(s string) Angle {
	a, err := ParseAngle(s, ":")
	if err != nil {
		panic(err)
	}
	return a
}

// DecimalDegrees returns the canonical value in [0, 360).
func (a Angle) DecimalDegrees() float64 { return a.dd }

// Radians returns the angle in radians.
func (a Angle) Radians() float64 { return a.dd * math.Pi / 180 }

// DMS splits the angle into whole degrees, whole minutes and decimal
// seconds.
func (a Angle) DMS() (degrees, minutes int, seconds float64) {
	whole := math.Floor(a.dd)
	frac := (a.dd - whole) * 60
	m := math.Floor(frac)
	s := (frac - m) * 60

	if s >= 60-dmsCarryEpsilon {
		s = 0
		m++
	}
	if s < 0 {
		s = 0
	}
	if m >= 60 {
		m -= 60
		whole++
	}
	if whole >= 360 {
		whole -= 360
	}
	return int(whole), int(m), s
}

// UnitVector returns (sin θ, cos θ): x east, y north, clockwise from north.
func (a Angle) UnitVector() (x, y float64) {
	r := a.Radians()
	return math.Sin(r), math.Cos(r)
}

// PlusDegrees returns a new angle offset by delta and re-normalised.
func (a Angle) PlusDegrees(delta float64) Angle {
	return Angle{dd: normalizeDegrees(a.dd + delta)}
}

// Reflected returns 360° - a, re-normalised. A reverse-face zenith reading
// reflects onto its direct-face equivalent.
func (a Angle) Reflected() Angle {
	return Angle{dd: normalizeDegrees(360 - a.dd)}
}

// String renders the angle as D:M:S.ssss.
func (a Angle) String() string {
	d, m, s := a.roundedDMS()
	return fmt.Sprintf("%d:%02d:%07.4f", d, m, s)
}

// Compact renders the DDDMMSS.ssss form used by Columbus observation files.
func (a Angle) Compact() string {
	d, m, s := a.roundedDMS()
	return fmt.Sprintf("%03d%02d%07.4f", d, m, s)
}

// roundedDMS rounds seconds to the four places printed so that 59.99996"
// carries into the next minute instead of printing as 60.0000.
func (a Angle) roundedDMS() (int, int, float64) {
	d, m, s := a.DMS()
	s = math.Round(s*1e4) / 1e4
	if s >= 60 {
		s -= 60
		m++
	}
	if m >= 60 {
		m -= 60
		d++
	}
	if d >= 360 {
		d -= 360
	}
	return d, m, s
}

// Separation returns the smaller of the two arcs between a and b, in
// decimal degrees within [0, 180].
func (a Angle) Separation(b Angle) float64 {
	diff := math.Abs(a.dd - b.dd)
	return math.Min(diff, 360-diff)
}

func normalizeDegrees(v float64) float64 {
	v = math.Mod(v, 360)
	if v < 0 {
		v += 360
	}
	// -1e-15 + 360 rounds to 360.
	if v >= 360 {
		v = 0
	}
	return v
}
