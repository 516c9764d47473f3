package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/surveytools/cogo/core"
	"github.com/surveytools/cogo/export"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tol, err := cfg.ReductionTolerances()
	if err != nil {
		t.Fatalf("ReductionTolerances: %v", err)
	}
	want := core.DefaultTolerances()
	if math.Abs(tol.Horizontal-want.Horizontal) > 1e-12 || math.Abs(tol.Zenith-want.Zenith) > 1e-12 || tol.Distance != want.Distance {
		t.Fatalf("tolerances = %+v, want %+v", tol, want)
	}
	if cfg.Workers != 1 {
		t.Fatalf("Workers = %d, want 1", cfg.Workers)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "cogo.yaml", `
tolerances:
  horizontal: "0:0:45"
  distance: 0.005
workers: 4
instrument:
  name: SET5F
  chord_ppm: 3
orientation:
  default: "0:0:0"
  stations:
    BASE1: "90:0:0"
export:
  kind: hor
  backsight: RM1
  horizontal_offset: "180:0:0"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tol, err := cfg.ReductionTolerances()
	if err != nil {
		t.Fatalf("ReductionTolerances: %v", err)
	}
	if math.Abs(tol.Horizontal-45.0/3600) > 1e-12 {
		t.Fatalf("horizontal tolerance = %v, want 45\"", tol.Horizontal)
	}
	if math.Abs(tol.Zenith-30.0/3600) > 1e-12 {
		t.Fatalf("zenith tolerance = %v, want default 30\"", tol.Zenith)
	}
	if tol.Distance != 0.005 {
		t.Fatalf("distance tolerance = %v, want 0.005", tol.Distance)
	}
	if cfg.Workers != 4 {
		t.Fatalf("Workers = %d, want 4", cfg.Workers)
	}
	if got := cfg.OrientationFor("BASE1").DecimalDegrees(); got != 90 {
		t.Fatalf("OrientationFor(BASE1) = %v, want 90", got)
	}
	if got := cfg.OrientationFor("OTHER").DecimalDegrees(); got != 0 {
		t.Fatalf("OrientationFor(OTHER) = %v, want 0", got)
	}

	opts, err := cfg.ColumbusOptions("JOB1")
	if err != nil {
		t.Fatalf("ColumbusOptions: %v", err)
	}
	want := export.ColumbusOptions{
		Kind:             export.ColumbusHorizontal,
		Backsight:        "RM1",
		HorizontalOffset: 180,
		DirectionSet:     "JOB1",
	}
	if diff := cmp.Diff(want, opts); diff != "" {
		t.Fatalf("ColumbusOptions mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveInstrument(t *testing.T) {
	cfg := DefaultConfig()
	got := cfg.ResolveInstrument("SET530R V33-17")
	if got.ChordSD != 0.002 {
		t.Fatalf("book model chord SD = %v, want 0.002", got.ChordSD)
	}

	cfg.Instrument = core.InstrumentModel{Name: "SET5F", ChordPPM: 3}
	got = cfg.ResolveInstrument("SET530R V33-17")
	want := core.InstrumentModel{Name: "SET5F", HorizontalSD: 5, ZenithSD: 5, ChordSD: 0.003, ChordPPM: 3}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ResolveInstrument mismatch (-want +got):\n%s", diff)
	}

	cfg.Instrument = core.InstrumentModel{}
	got = cfg.ResolveInstrument("")
	if got.ChordSD != core.DefaultInstrument.ChordSD || got.ChordPPM != core.DefaultInstrument.ChordPPM {
		t.Fatalf("default instrument = %+v", got)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("COGO_HORIZONTAL_TOLERANCE", "0:1:0")
	t.Setenv("COGO_DISTANCE_TOLERANCE", "0.02")
	t.Setenv("COGO_WORKERS", "8")
	t.Setenv("COGO_EXPORT_KIND", "DIR")
	t.Setenv("COGO_DB", "/tmp/runs.db")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tol, _ := cfg.ReductionTolerances()
	if math.Abs(tol.Horizontal-1.0/60) > 1e-12 {
		t.Fatalf("horizontal tolerance = %v, want 1'", tol.Horizontal)
	}
	if tol.Distance != 0.02 {
		t.Fatalf("distance tolerance = %v, want 0.02", tol.Distance)
	}
	if cfg.Workers != 8 || cfg.Export.Kind != "dir" || cfg.Store.Path != "/tmp/runs.db" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if got := cfg.LoggerConfig().Level; got != "debug" {
		t.Fatalf("log level = %q, want debug", got)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "COGO_WORKERS=3\n")
	t.Setenv("COGO_WORKERS", "")
	os.Unsetenv("COGO_WORKERS")

	LoadDotEnv(path)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workers != 3 {
		t.Fatalf("Workers = %d, want 3 from .env", cfg.Workers)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"bad tolerance":   "tolerances:\n  horizontal: \"0:75:00\"\n",
		"negative dist":   "tolerances:\n  distance: -1\n",
		"bad orientation": "orientation:\n  stations:\n    A: \"x:y:z\"\n",
		"bad kind":        "export:\n  kind: polar\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "cogo.yaml", body))
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("Load error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	if _, err := Load(writeFile(t, "cogo.yaml", "workers: [")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers = 6
	cfg.Orientation.Stations["B2"] = "12:30:00"
	path := filepath.Join(t.TempDir(), "nested", "cogo.yaml")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Workers != 6 || got.OrientationFor("B2").DecimalDegrees() != 12.5 {
		t.Fatalf("round trip lost values: %+v", got)
	}
}
