package fieldbook

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/surveytools/cogo/core"
	"github.com/surveytools/cogo/model"
)

// ErrNoStation is returned when observations appear before any STN record.
var ErrNoStation = errors.New("observation before any station record")

// OrientationFunc returns the orientation offset for a station code.
type OrientationFunc func(stationCode string) model.Angle

// Setup is one occupied station and the points observed from it.
type Setup struct {
	Station model.BaseStation
	Points  []core.PointRecord
}

type groupKey struct {
	setup int
	code  string
}

// Setups groups the book's observations by station setup and point code,
// in order of first appearance. Each point picks up the target height in
// force at its first pointing. Faces other than F1 and F2 are ignored.
func (b *Book) Setups(orientation OrientationFunc) ([]Setup, error) {
	var (
		setups       []Setup
		targetHeight float64
		index        = make(map[groupKey]int)
	)
	for _, r := range b.Records {
		switch rec := r.(type) {
		case StationRecord:
			var off model.Angle
			if orientation != nil {
				off = orientation(rec.Code)
			}
			setups = append(setups, Setup{Station: rec.BaseStation(off)})
		case TargetRecord:
			targetHeight = rec.TargetHeight
		case ObservationRecord:
			face, err := model.ParseFace(rec.Face)
			if err != nil {
				continue
			}
			if len(setups) == 0 {
				return nil, fmt.Errorf("%w: point %d (%s)", ErrNoStation, rec.PointID, rec.Code)
			}
			s := len(setups) - 1
			id := rec.Code
			if id == "" {
				id = strconv.Itoa(rec.PointID)
			}
			key := groupKey{setup: s, code: id}
			i, ok := index[key]
			if !ok {
				setups[s].Points = append(setups[s].Points, core.PointRecord{
					ID:            id,
					Station:       setups[s].Station,
					TargetZOffset: targetHeight,
					Separator:     AngleSeparator,
				})
				i = len(setups[s].Points) - 1
				index[key] = i
			}
			p := &setups[s].Points[i]
			p.Observations = append(p.Observations, core.RawObservation{
				Face:          face,
				Horizontal:    rec.Horizontal,
				Zenith:        rec.Zenith,
				SlopeDistance: rec.SlopeDistance,
			})
		}
	}
	return setups, nil
}

// PointRecords flattens Setups into a single batch.
func (b *Book) PointRecords(orientation OrientationFunc) ([]core.PointRecord, error) {
	setups, err := b.Setups(orientation)
	if err != nil {
		return nil, err
	}
	var out []core.PointRecord
	for _, s := range setups {
		out = append(out, s.Points...)
	}
	return out, nil
}
