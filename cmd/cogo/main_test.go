package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/surveytools/cogo/internal/store"
)

const arroyoBook = "../../fieldbook/testdata/arroyo.txt"

// runCLI executes the CLI with an empty config and no .env file.
func runCLI(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	dir := t.TempDir()
	full := append([]string{
		"--config", filepath.Join(dir, "absent.yaml"),
		"--env-file", filepath.Join(dir, "absent.env"),
	}, args...)
	var out, errOut bytes.Buffer
	code = execute(context.Background(), full, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestAngleCommand(t *testing.T) {
	cases := []struct {
		arg  string
		want []string
	}{
		{"45:30:00", []string{"dms      45:30:00.0000", "degrees  45.50000000"}},
		{"370.5", []string{"dms      10:30:00.0000", "compact  0103000.0000"}},
		{"90", []string{"vector   1.00000000 0.00000000"}},
	}
	for _, tc := range cases {
		t.Run(tc.arg, func(t *testing.T) {
			code, out, errOut := runCLI(t, "angle", tc.arg)
			if code != 0 {
				t.Fatalf("exit code = %d, stderr = %s", code, errOut)
			}
			for _, want := range tc.want {
				if !strings.Contains(out, want) {
					t.Fatalf("output missing %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestAngleCommandRejectsBadMinutes(t *testing.T) {
	code, _, errOut := runCLI(t, "angle", "10:75:00")
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(errOut, "Error:") {
		t.Fatalf("stderr = %q, want an error line", errOut)
	}
}

func TestAverageCommand(t *testing.T) {
	code, out, errOut := runCLI(t, "average", "10:00:00", "20:00:00")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, errOut)
	}
	for _, want := range []string{"average  15:00:00.0000", "range    10:00:00.0000"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestAverageCommandDegenerate(t *testing.T) {
	code, _, errOut := runCLI(t, "average", "90:00:00", "270:00:00")
	if code != 1 || !strings.Contains(errOut, "degenerate") {
		t.Fatalf("exit code = %d, stderr = %q; want degenerate failure", code, errOut)
	}
}

func TestReducePointCommand(t *testing.T) {
	code, out, errOut := runCLI(t, "reduce-point",
		"--station", "1000,2000,500",
		"--instrument-height", "1.5",
		"--f1", "45:00:00,90:00:00,100",
		"--f2", "225:00:00,270:00:00,100",
	)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, errOut)
	}
	if !strings.Contains(out, "x y z       1070.7107 2070.7107 501.5000") {
		t.Fatalf("unexpected coordinates:\n%s", out)
	}
	if strings.Contains(out, "WARNING") {
		t.Fatalf("unexpected warning:\n%s", out)
	}
}

func TestReducePointCommandWarns(t *testing.T) {
	code, out, errOut := runCLI(t, "reduce-point",
		"--station", "0,0,0",
		"--f1", "10:00:00,85:00:00,50",
		"--f2", "190:00:45,275:00:00,50",
	)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, errOut)
	}
	if !strings.Contains(out, "Horizontal angle tolerance (0:00:30.0000) exceeded") {
		t.Fatalf("missing horizontal warning:\n%s", out)
	}
}

func TestReducePointCommandNeedsPointings(t *testing.T) {
	if code, _, _ := runCLI(t, "reduce-point"); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}

func TestInverseCommand(t *testing.T) {
	code, out, errOut := runCLI(t, "inverse", "--from", "0,0,0", "--to", "100,100,0")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, errOut)
	}
	for _, want := range []string{
		"bearing     45:00:00.0000",
		"zenith      90:00:00.0000",
		"slope       141.4214",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestReduceCommandWritesOutputs(t *testing.T) {
	outDir := t.TempDir()
	db := filepath.Join(outDir, "runs.db")
	metrics := filepath.Join(outDir, "cogo.prom")

	code, out, errOut := runCLI(t, "reduce",
		"--out-dir", outDir,
		"--csv", "--ranges",
		"--db", db,
		"--metrics-file", metrics,
		"--workers", "4",
		arroyoBook,
	)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, errOut)
	}
	for _, want := range []string{
		"3 reduced, 1 skipped, 1 warnings",
		"P2 HAR difference from BASE1",
		"SKIPPED P3",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}

	obs, err := os.ReadFile(filepath.Join(outDir, "arroyo.obs"))
	if err != nil {
		t.Fatalf("read .obs: %v", err)
	}
	if !strings.Contains(string(obs), "$AZ_COMPACT;BASE1;P1;") {
		t.Fatalf(".obs missing P1 azimuth record:\n%s", obs)
	}
	csvOut, err := os.ReadFile(filepath.Join(outDir, "arroyo.csv"))
	if err != nil {
		t.Fatalf("read .csv: %v", err)
	}
	if !strings.HasPrefix(string(csvOut), "id,x,y,z\n") || !strings.Contains(string(csvOut), "P1,1070.7107,2070.7107,501.5000") {
		t.Fatalf("unexpected csv:\n%s", csvOut)
	}
	if _, err := os.Stat(filepath.Join(outDir, "arroyo.log")); err != nil {
		t.Fatalf("range log missing: %v", err)
	}

	prom, err := os.ReadFile(metrics)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	for _, want := range []string{"cogo_points_reduced_total 3", "cogo_stations_loaded 1"} {
		if !strings.Contains(string(prom), want) {
			t.Fatalf("metrics missing %q:\n%s", want, prom)
		}
	}

	s, err := store.Open(db)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer s.Close()
	runs, err := s.ListRuns(context.Background())
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].Reduced != 3 || runs[0].Failed != 1 || runs[0].Instrument != "SET530R V33-17" {
		t.Fatalf("runs = %+v", runs)
	}
}

func TestReduceCommandHorizontalFormat(t *testing.T) {
	outDir := t.TempDir()
	code, _, errOut := runCLI(t, "reduce", "--out-dir", outDir, "--format", "hor", arroyoBook)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, errOut)
	}
	obs, err := os.ReadFile(filepath.Join(outDir, "arroyo.obs"))
	if err != nil {
		t.Fatalf("read .obs: %v", err)
	}
	if !strings.Contains(string(obs), "$HOR_COMPACT;BASE1;P1;BS_STATION;") {
		t.Fatalf(".obs missing horizontal record:\n%s", obs)
	}
}

func TestReduceCommandMissingFile(t *testing.T) {
	code, _, errOut := runCLI(t, "reduce", "--out-dir", t.TempDir(), filepath.Join(t.TempDir(), "nope.txt"))
	if code != 1 || !strings.Contains(errOut, "nope.txt") {
		t.Fatalf("exit code = %d, stderr = %q", code, errOut)
	}
}

func TestInvalidConfigFails(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "cogo.yaml")
	if err := os.WriteFile(cfg, []byte("export:\n  kind: polar\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	var out, errOut bytes.Buffer
	code := execute(context.Background(), []string{"--config", cfg, "--env-file", filepath.Join(dir, "none"), "angle", "1"}, &out, &errOut)
	if code != 1 || !strings.Contains(errOut.String(), "export.kind") {
		t.Fatalf("exit code = %d, stderr = %q", code, errOut.String())
	}
}
