// Package export writes reduced survey data in the text formats consumed by
// network adjustment and GIS tools.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/surveytools/cogo/core"
)

// ColumbusKind selects the Columbus observation record type.
type ColumbusKind string

const (
	ColumbusAzimuth    ColumbusKind = "azimuth"
	ColumbusDirection  ColumbusKind = "direction"
	ColumbusHorizontal ColumbusKind = "horizontal"
)

// DefaultBacksight names the back-sight station in $HOR_COMPACT records
// when none is configured.
const DefaultBacksight = "BS_STATION"

// ColumbusOptions tune the exported angles.
type ColumbusOptions struct {
	Kind ColumbusKind
	// Backsight is the BS station name for horizontal-angle records.
	Backsight string
	// HorizontalOffset (decimal degrees) is added to azimuths and
	// horizontal angles.
	HorizontalOffset float64
	// ZenithOffset (decimal degrees) is added to zenith angles of azimuth
	// records.
	ZenithOffset float64
	// DirectionSet labels direction records, usually the job id.
	DirectionSet string
}

// ParseColumbusKind accepts the long names and the Columbus tags
// (az, dir, hor).
func ParseColumbusKind(s string) (ColumbusKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "azimuth", "az", "":
		return ColumbusAzimuth, nil
	case "direction", "dir":
		return ColumbusDirection, nil
	case "horizontal", "hor":
		return ColumbusHorizontal, nil
	default:
		return "", fmt.Errorf("unknown Columbus observation kind %q", s)
	}
}

// WriteColumbus writes averaged observations as a Columbus compact
// observation file.
func WriteColumbus(w io.Writer, inst core.InstrumentModel, obs []core.AveragedObservation, opts ColumbusOptions) error {
	if opts.Kind == "" {
		opts.Kind = ColumbusAzimuth
	}
	if opts.Backsight == "" {
		opts.Backsight = DefaultBacksight
	}

	var tag string
	var cols []string
	switch opts.Kind {
	case ColumbusAzimuth:
		tag = "$AZ_COMPACT"
		cols = []string{"AT Station Name", "TO Station Name", "Azimuth", "Azimuth SD", "Zenith", "Zenith SD", "Chord", "Chord SD", "Instr Hgt", "Targ Hgt"}
	case ColumbusDirection:
		tag = "$DIR_COMPACT"
		cols = []string{"AT Station Name", "TO Station Name", "Direction", "Direction SD", "Zenith", "Zenith SD", "Chord", "Chord SD", "Instr Hgt", "Targ Hgt", "DirSetNum"}
	case ColumbusHorizontal:
		tag = "$HOR_COMPACT"
		cols = []string{"AT Station Name", "TO Station Name", "BS Station Name", "Hor Angle", "Hor Angle SD", "Zenith", "Zenith SD", "Chord", "Chord SD", "Instr Hgt", "Targ Hgt"}
	default:
		return fmt.Errorf("unknown Columbus observation kind %q", opts.Kind)
	}

	if _, err := fmt.Fprintf(w, "! Chord (Slope) Distance PPM correction\n$PPM_CHORDDIST; %g\n\n! ", inst.ChordPPM); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	cw.Comma = ';'
	if err := cw.Write(cols); err != nil {
		return err
	}
	for _, o := range obs {
		hz := o.Horizontal
		za := o.Zenith
		row := []string{tag, o.StationCode, o.PointID}
		switch opts.Kind {
		case ColumbusAzimuth:
			hz = hz.PlusDegrees(opts.HorizontalOffset)
			za = za.PlusDegrees(opts.ZenithOffset)
		case ColumbusHorizontal:
			hz = hz.PlusDegrees(opts.HorizontalOffset)
			row = append(row, opts.Backsight)
		}
		row = append(row,
			hz.Compact(),
			fmt.Sprintf("%g", inst.HorizontalSD),
			za.Compact(),
			fmt.Sprintf("%g", inst.ZenithSD),
			decimal(o.SlopeDistance),
			fmt.Sprintf("%g", inst.ChordSD),
			decimal(o.InstrumentHeight),
			decimal(o.TargetHeight),
		)
		if opts.Kind == ColumbusDirection {
			row = append(row, opts.DirectionSet)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// decimal prints the shortest exact form, keeping a trailing ".0" on whole
// numbers.
func decimal(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}
