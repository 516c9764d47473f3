package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/surveytools/cogo/core"
	"github.com/surveytools/cogo/model"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs", "cogo.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleResult() core.BatchResult {
	return core.BatchResult{
		Reductions: []core.Reduction{
			{
				Point: model.ReducedPoint{
					ID: "P1", StationCode: "BASE1",
					Position:           model.Position{X: 1070.7107, Y: 2070.7107, Z: 501.5},
					HorizontalDistance: 100,
				},
				Averaged: core.AveragedObservation{PointID: "P1", StationCode: "BASE1", DistanceRange: 0.002},
			},
			{
				Point: model.ReducedPoint{
					ID: "P2", StationCode: "BASE1",
					Position:      model.Position{X: 1008.6824, Y: 2049.2404, Z: 504.358},
					TargetZOffset: 1.2,
				},
			},
		},
		Failures: []core.Failure{{
			PointID: "P3", StationCode: "BASE1",
			Kind: core.FailureInvalidAngle,
			Err:  fmt.Errorf("point P3: %w", model.ErrInvalidAngle),
		}},
		Warnings: []model.Warning{{
			PointID: "P2", StationCode: "BASE1", Kind: model.ToleranceHorizontal,
			Value: 45.0 / 3600, Tolerance: 30.0 / 3600, Excess: 15.0 / 3600,
		}},
	}
}

func TestSaveRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	res := sampleResult()
	run := Run{
		ID:         uuid.NewString(),
		Source:     "arroyo.txt",
		Instrument: "SET530R V33-17",
		StartedAt:  time.Date(2009, 2, 6, 15, 14, 15, 0, time.UTC),
		Tolerances: core.DefaultTolerances(),
	}
	if err := s.SaveRun(ctx, run, res); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	wantRun := run
	wantRun.Reduced, wantRun.Failed = 2, 1
	if diff := cmp.Diff(wantRun, got); diff != "" {
		t.Fatalf("run mismatch (-want +got):\n%s", diff)
	}

	points, err := s.ListPoints(ctx, run.ID)
	if err != nil {
		t.Fatalf("ListPoints: %v", err)
	}
	wantPoints := []model.ReducedPoint{res.Reductions[0].Point, res.Reductions[1].Point}
	if diff := cmp.Diff(wantPoints, points); diff != "" {
		t.Fatalf("points mismatch (-want +got):\n%s", diff)
	}

	failures, err := s.ListFailures(ctx, run.ID)
	if err != nil {
		t.Fatalf("ListFailures: %v", err)
	}
	if len(failures) != 1 || failures[0].Kind != core.FailureInvalidAngle || failures[0].PointID != "P3" {
		t.Fatalf("failures = %+v", failures)
	}
	if failures[0].Reason != res.Failures[0].Reason() {
		t.Fatalf("reason = %q, want %q", failures[0].Reason, res.Failures[0].Reason())
	}

	warnings, err := s.ListWarnings(ctx, run.ID)
	if err != nil {
		t.Fatalf("ListWarnings: %v", err)
	}
	if diff := cmp.Diff(res.Warnings, warnings); diff != "" {
		t.Fatalf("warnings mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveRunDuplicateIDRollsBack(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	run := Run{ID: "run-1", Source: "a.txt"}
	if err := s.SaveRun(ctx, run, sampleResult()); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := s.SaveRun(ctx, run, core.BatchResult{}); err == nil {
		t.Fatalf("expected duplicate run id to fail")
	}
	points, err := s.ListPoints(ctx, run.ID)
	if err != nil {
		t.Fatalf("ListPoints: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("len(points) = %d, want 2 after failed duplicate", len(points))
	}
}

func TestListRunsAndDelete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	for i, id := range []string{"b", "a"} {
		if err := s.SaveRun(ctx, Run{ID: id, Source: id + ".txt", StartedAt: base.Add(time.Duration(i) * time.Hour)}, sampleResult()); err != nil {
			t.Fatalf("SaveRun %s: %v", id, err)
		}
	}
	runs, err := s.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "b" || runs[1].ID != "a" {
		t.Fatalf("runs order = %+v", runs)
	}

	if err := s.DeleteRun(ctx, "b"); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}
	points, err := s.ListPoints(ctx, "b")
	if err != nil {
		t.Fatalf("ListPoints: %v", err)
	}
	if len(points) != 0 {
		t.Fatalf("points survived delete: %+v", points)
	}
	if err := s.DeleteRun(ctx, "b"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("second DeleteRun error = %v, want ErrRunNotFound", err)
	}
	if _, err := s.GetRun(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("GetRun error = %v, want ErrRunNotFound", err)
	}
}
