package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/surveytools/cogo/core"
	"github.com/surveytools/cogo/model"
)

func newAngleCmd(a *app) *cobra.Command {
	var sep string
	cmd := &cobra.Command{
		Use:   "angle VALUE",
		Short: "Convert between D:M:S and decimal degrees",
		Long: `Converts a D:M:S angle to decimal degrees or a decimal-degree value to
D:M:S, after normalizing into [0, 360). Also prints the (sin, cos) unit vector.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ang, err := parseAngleArg(args[0], sep)
			if err != nil {
				return err
			}
			x, y := ang.UnitVector()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "dms      %s\n", ang)
			fmt.Fprintf(out, "degrees  %.8f\n", ang.DecimalDegrees())
			fmt.Fprintf(out, "compact  %s\n", ang.Compact())
			fmt.Fprintf(out, "vector   %.8f %.8f\n", x, y)
			return nil
		},
	}
	cmd.Flags().StringVar(&sep, "sep", ":", "separator between D, M and S fields")
	return cmd
}

func newAverageCmd(a *app) *cobra.Command {
	var sep string
	cmd := &cobra.Command{
		Use:   "average ANGLE...",
		Short: "Vector-mean average of angles",
		Long: `Averages angles by summing their unit vectors, so 359:00:00 and 1:00:00
average to 0:00:00. The range is the separation of the first two angles.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			angles := make([]model.Angle, 0, len(args))
			for _, arg := range args {
				ang, err := parseAngleArg(arg, sep)
				if err != nil {
					return err
				}
				angles = append(angles, ang)
			}
			avg, err := core.AverageAngles(angles...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "average  %s (%.8f)\n", avg.Angle, avg.Angle.DecimalDegrees())
			fmt.Fprintf(out, "range    %s (%.8f)\n", dms(avg.Range), avg.Range)
			return nil
		},
	}
	cmd.Flags().StringVar(&sep, "sep", ":", "separator between D, M and S fields")
	return cmd
}

type reducePointOptions struct {
	station      string
	orientation  string
	instrumentHt float64
	targetHt     float64
	direct       []string
	reverse      []string
	id           string
}

func newReducePointCmd(a *app) *cobra.Command {
	var opts reducePointOptions
	cmd := &cobra.Command{
		Use:   "reduce-point",
		Short: "Reduce direct/reverse pointings of one target to a coordinate",
		Long: `Reduces the pointings of a single target. Each --f1/--f2 value is
"HORIZONTAL,ZENITH,SLOPE" with angles in D:M:S, for example
--f1 45:00:00,90:00:00,100 --f2 225:00:00,270:00:00,100.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runReducePoint(opts, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.station, "station", "0,0,0", "base station X,Y,Z (east, north, elevation)")
	f.StringVar(&opts.orientation, "orientation", "0:00:00", "orientation offset added to horizontal angles")
	f.Float64Var(&opts.instrumentHt, "instrument-height", 0, "instrument height above the station mark")
	f.Float64Var(&opts.targetHt, "target-height", 0, "target height above the observed point")
	f.StringArrayVar(&opts.direct, "f1", nil, "face-direct pointing HORIZONTAL,ZENITH,SLOPE (repeatable)")
	f.StringArrayVar(&opts.reverse, "f2", nil, "face-reverse pointing HORIZONTAL,ZENITH,SLOPE (repeatable)")
	f.StringVar(&opts.id, "id", "P", "point id used in warnings")
	return cmd
}

func (a *app) runReducePoint(opts reducePointOptions, out io.Writer) error {
	pos, err := parsePosition(opts.station)
	if err != nil {
		return fmt.Errorf("--station: %w", err)
	}
	orientation, err := parseAngleArg(opts.orientation, ":")
	if err != nil {
		return fmt.Errorf("--orientation: %w", err)
	}
	var obs []model.Observation
	for _, set := range []struct {
		face      model.Face
		pointings []string
	}{
		{model.FaceDirect, opts.direct},
		{model.FaceReverse, opts.reverse},
	} {
		for _, text := range set.pointings {
			o, err := parsePointing(text, set.face)
			if err != nil {
				return err
			}
			obs = append(obs, o)
		}
	}
	if len(obs) == 0 {
		return fmt.Errorf("at least one --f1 or --f2 pointing is required")
	}

	tol, err := a.cfg.ReductionTolerances()
	if err != nil {
		return err
	}
	base := model.BaseStation{
		Code:              "CLI",
		Position:          pos,
		ZOffset:           opts.instrumentHt,
		OrientationOffset: orientation,
	}
	red, err := core.Reduce(base, opts.id, obs, opts.targetHt, tol)
	if err != nil {
		return err
	}

	p := red.Point.Position
	fmt.Fprintf(out, "horizontal  %s\n", red.Averaged.Horizontal)
	fmt.Fprintf(out, "zenith      %s\n", red.Averaged.Zenith)
	fmt.Fprintf(out, "slope       %.4f\n", red.Averaged.SlopeDistance)
	fmt.Fprintf(out, "hd vd       %.4f %.4f\n", red.Point.HorizontalDistance, red.Point.VerticalDistance)
	fmt.Fprintf(out, "x y z       %.4f %.4f %.4f\n", p.X, p.Y, p.Z)
	rep := newReporter(out)
	for _, w := range red.Warnings {
		fmt.Fprintln(out, rep.warningLine(w, tol))
	}
	return nil
}

func newInverseCmd(a *app) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "inverse",
		Short: "Bearing, zenith angle and slope distance between two coordinates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p1, err := parsePosition(from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			p2, err := parsePosition(to)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			v := core.Vec3{X: p2.X - p1.X, Y: p2.Y - p1.Y, Z: p2.Z - p1.Z}
			bearing, zenith, slope := core.InverseOffset(v)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "bearing     %s\n", bearing)
			fmt.Fprintf(out, "zenith      %s\n", zenith)
			fmt.Fprintf(out, "slope       %.4f\n", slope)
			fmt.Fprintf(out, "horizontal  %.4f\n", v.HorizontalNorm())
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "occupied point X,Y,Z")
	cmd.Flags().StringVar(&to, "to", "", "target point X,Y,Z")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

// parseAngleArg reads D<sep>M<sep>S text, or a plain decimal-degree number.
func parseAngleArg(s, sep string) (model.Angle, error) {
	if sep == "" {
		sep = ":"
	}
	if !strings.Contains(s, sep) {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.Angle{}, fmt.Errorf("%w: %q is neither D%sM%sS nor decimal degrees", model.ErrParse, s, sep, sep)
		}
		return model.AngleFromDecimalDegrees(v)
	}
	return model.ParseAngle(s, sep)
}

func parsePosition(s string) (model.Position, error) {
	vals, err := parseFloats(s, 3)
	if err != nil {
		return model.Position{}, err
	}
	return model.Position{X: vals[0], Y: vals[1], Z: vals[2]}, nil
}

func parsePointing(text string, face model.Face) (model.Observation, error) {
	parts := strings.Split(text, ",")
	if len(parts) != 3 {
		return model.Observation{}, fmt.Errorf("%w: pointing %q needs HORIZONTAL,ZENITH,SLOPE", model.ErrParse, text)
	}
	h, err := model.ParseAngle(strings.TrimSpace(parts[0]), ":")
	if err != nil {
		return model.Observation{}, fmt.Errorf("pointing %q horizontal: %w", text, err)
	}
	z, err := model.ParseAngle(strings.TrimSpace(parts[1]), ":")
	if err != nil {
		return model.Observation{}, fmt.Errorf("pointing %q zenith: %w", text, err)
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err != nil {
		return model.Observation{}, fmt.Errorf("%w: pointing %q slope distance", model.ErrParse, text)
	}
	return model.Observation{HorizontalAngle: h, ZenithAngle: z, SlopeDistance: d, Face: face}, nil
}

func parseFloats(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("%w: %q needs %d comma-separated numbers", model.ErrParse, s, n)
	}
	out := make([]float64, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", model.ErrParse, p)
		}
		out[i] = v
	}
	return out, nil
}
