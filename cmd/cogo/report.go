package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/surveytools/cogo/core"
	"github.com/surveytools/cogo/model"
)

// reporter prints the per-book summary. Colors follow the terminal
// capabilities of w and drop out entirely for files and pipes.
type reporter struct {
	w io.Writer

	title      lipgloss.Style
	horizontal lipgloss.Style
	zenith     lipgloss.Style
	distance   lipgloss.Style
	failure    lipgloss.Style
}

func newReporter(w io.Writer) *reporter {
	r := lipgloss.NewRenderer(w)
	return &reporter{
		w:          w,
		title:      r.NewStyle().Bold(true),
		horizontal: r.NewStyle().Foreground(lipgloss.Color("1")),
		zenith:     r.NewStyle().Foreground(lipgloss.Color("3")),
		distance:   r.NewStyle().Foreground(lipgloss.Color("5")),
		failure:    r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
	}
}

func (r *reporter) render(source string, res core.BatchResult, tol core.Tolerances) error {
	summary := fmt.Sprintf("%s: %d reduced, %d skipped, %d warnings",
		source, len(res.Reductions), len(res.Failures), len(res.Warnings))
	if _, err := fmt.Fprintln(r.w, r.title.Render(summary)); err != nil {
		return err
	}
	for _, w := range res.Warnings {
		if _, err := fmt.Fprintln(r.w, r.warningLine(w, tol)); err != nil {
			return err
		}
	}
	for _, f := range res.Failures {
		line := fmt.Sprintf("SKIPPED %s at %s (%s): %s", f.PointID, f.StationCode, f.Kind, f.Reason())
		if _, err := fmt.Fprintln(r.w, r.failure.Render(line)); err != nil {
			return err
		}
	}
	return nil
}

func (r *reporter) warningLine(w model.Warning, tol core.Tolerances) string {
	switch w.Kind {
	case model.ToleranceHorizontal:
		return fmt.Sprintf("WARNING: Horizontal angle tolerance (%s) exceeded. %s HAR difference from %s: %s",
			dms(tol.Horizontal), w.PointID, w.StationCode, r.horizontal.Render(dms(w.Value)))
	case model.ToleranceZenith:
		return fmt.Sprintf("WARNING: Zenith angle tolerance (%s) exceeded. %s ZA difference from %s: %s",
			dms(tol.Zenith), w.PointID, w.StationCode, r.zenith.Render(dms(w.Value)))
	default:
		return fmt.Sprintf("WARNING: Slope distance tolerance (%.4f) exceeded. %s S difference from %s: %s",
			tol.Distance, w.PointID, w.StationCode, r.distance.Render(fmt.Sprintf("%.4f", w.Value)))
	}
}

func dms(dd float64) string {
	a, err := model.AngleFromDecimalDegrees(dd)
	if err != nil {
		return fmt.Sprintf("%g", dd)
	}
	return a.String()
}
