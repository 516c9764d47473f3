package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/surveytools/cogo/core"
	"github.com/surveytools/cogo/model"
)

// WriteCSV writes reduced points as "id,x,y,z" rows with a header.
func WriteCSV(w io.Writer, points []model.ReducedPoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "x", "y", "z"}); err != nil {
		return err
	}
	for _, p := range points {
		if err := cw.Write([]string{
			p.ID,
			strconv.FormatFloat(p.Position.X, 'f', 4, 64),
			strconv.FormatFloat(p.Position.Y, 'f', 4, 64),
			strconv.FormatFloat(p.Position.Z, 'f', 4, 64),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteRanges writes the direct/reverse spread of each averaged
// observation, one space-separated line per point.
func WriteRanges(w io.Writer, obs []core.AveragedObservation) error {
	if _, err := io.WriteString(w, "range_ZA_dd range_HAR_dd range_S code\n"); err != nil {
		return err
	}
	for _, o := range obs {
		if _, err := fmt.Fprintf(w, "%.6f %.6f %.4f %s\n", o.ZenithRange, o.HorizontalRange, o.DistanceRange, o.PointID); err != nil {
			return err
		}
	}
	return nil
}
