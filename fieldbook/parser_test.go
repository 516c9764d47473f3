package fieldbook

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/surveytools/cogo/core"
	"github.com/surveytools/cogo/model"
)

func loadArroyo(t *testing.T) *Book {
	t.Helper()
	book, err := ParseFile(context.Background(), filepath.Join("testdata", "arroyo.txt"))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	return book
}

func TestParseHeader(t *testing.T) {
	book := loadArroyo(t)
	if book.Project != "Arroyo Traverse" || book.SDRFile != "arroyo.sdr" || book.PointCount != 9 {
		t.Fatalf("header = %+v", book)
	}
	want := time.Date(2009, 2, 6, 15, 14, 15, 0, time.UTC)
	if !book.PrintedAt.Equal(want) {
		t.Fatalf("PrintedAt = %v, want %v", book.PrintedAt, want)
	}
	if book.Skipped != 1 {
		t.Fatalf("Skipped = %d, want 1 (SCALE)", book.Skipped)
	}
}

func TestParseRecords(t *testing.T) {
	book := loadArroyo(t)

	if m, ok := book.Instrument(); !ok || m != "SET530R V33-17" {
		t.Fatalf("Instrument() = %q, %v", m, ok)
	}
	if got := book.JobID(); got != "ARROYO1" {
		t.Fatalf("JobID() = %q", got)
	}

	stations := book.Stations()
	wantStn := []StationRecord{{
		PointID: 1, Code: "BASE1", North: 2000, East: 1000, Elevation: 500, TheodoliteHeight: 1.5,
	}}
	if diff := cmp.Diff(wantStn, stations); diff != "" {
		t.Fatalf("stations mismatch (-want +got):\n%s", diff)
	}

	var obs []ObservationRecord
	var settings SettingsRecord
	for _, r := range book.Records {
		switch rec := r.(type) {
		case ObservationRecord:
			obs = append(obs, rec)
		case SettingsRecord:
			settings = rec
		}
	}
	if len(obs) != 8 {
		t.Fatalf("observations = %d, want 8", len(obs))
	}
	wantFirst := ObservationRecord{PointID: 2, Code: "P1", Face: "F1", Horizontal: "45-00-00", Zenith: "90-00-00", SlopeDistance: 100}
	if diff := cmp.Diff(wantFirst, obs[0]); diff != "" {
		t.Fatalf("first observation mismatch (-want +got):\n%s", diff)
	}
	if obs[7].SlopeDistance != 0 {
		t.Fatalf("blank distance = %v, want 0", obs[7].SlopeDistance)
	}
	if settings.Values["Atmos crn"] != "Yes" || settings.Values["Refraction"] != "0.14" {
		t.Fatalf("settings = %+v", settings.Values)
	}
}

func TestSetupsGroupsByCode(t *testing.T) {
	book := loadArroyo(t)
	offset := model.MustAngle("1:00:00")
	setups, err := book.Setups(func(code string) model.Angle {
		if code == "BASE1" {
			return offset
		}
		return model.Angle{}
	})
	if err != nil {
		t.Fatalf("Setups: %v", err)
	}
	if len(setups) != 1 {
		t.Fatalf("setups = %d, want 1", len(setups))
	}
	s := setups[0]
	wantStation := model.BaseStation{
		Code:              "BASE1",
		Position:          model.Position{X: 1000, Y: 2000, Z: 500},
		ZOffset:           1.5,
		OrientationOffset: offset,
	}
	if diff := cmp.Diff(wantStation, s.Station, cmp.AllowUnexported(model.Angle{})); diff != "" {
		t.Fatalf("station mismatch (-want +got):\n%s", diff)
	}

	var ids []string
	for _, p := range s.Points {
		ids = append(ids, p.ID)
	}
	// P4 only has a KI pointing and is dropped.
	if diff := cmp.Diff([]string{"P1", "P2", "P3", "P5"}, ids); diff != "" {
		t.Fatalf("point ids mismatch (-want +got):\n%s", diff)
	}
	if got := len(s.Points[0].Observations); got != 2 {
		t.Fatalf("P1 observations = %d, want 2", got)
	}
	if s.Points[0].Observations[1].Face != model.FaceReverse {
		t.Fatalf("second P1 pointing face = %v", s.Points[0].Observations[1].Face)
	}
	if s.Points[2].TargetZOffset != 1.2 || s.Points[0].TargetZOffset != 0 {
		t.Fatalf("target heights = %v / %v", s.Points[0].TargetZOffset, s.Points[2].TargetZOffset)
	}
}

func TestPointRecordsReduce(t *testing.T) {
	book := loadArroyo(t)
	records, err := book.PointRecords(nil)
	if err != nil {
		t.Fatalf("PointRecords: %v", err)
	}
	res, err := core.NewReducer().ReduceBatch(context.Background(), records)
	if err != nil {
		t.Fatalf("ReduceBatch: %v", err)
	}
	if len(res.Reductions) != 3 {
		t.Fatalf("reductions = %d, want 3", len(res.Reductions))
	}
	if len(res.Failures) != 1 || res.Failures[0].PointID != "P3" || res.Failures[0].Kind != core.FailureInvalidAngle {
		t.Fatalf("failures = %+v", res.Failures)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].PointID != "P2" || res.Warnings[0].Kind != model.ToleranceHorizontal {
		t.Fatalf("warnings = %+v", res.Warnings)
	}
}

func TestParseRejectsUnknownUnits(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("testdata", "arroyo.txt"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	feet := strings.Replace(string(raw), "Distance Unit : Meters", "Distance Unit : Feet", 1)
	if _, err := Parse(strings.NewReader(feet)); !errors.Is(err, ErrFormat) {
		t.Fatalf("err = %v, want ErrFormat", err)
	}
	grads := strings.Replace(string(raw), "Degrees [dd-mm-ss.ss]", "Gons", 1)
	if _, err := Parse(strings.NewReader(grads)); !errors.Is(err, ErrFormat) {
		t.Fatalf("err = %v, want ErrFormat", err)
	}
}

func TestParseRejectsTruncatedHeader(t *testing.T) {
	if _, err := Parse(strings.NewReader("< Condition >\nProject : x\n")); !errors.Is(err, ErrFormat) {
		t.Fatalf("err = %v, want ErrFormat", err)
	}
}

func TestSetupsRequireStation(t *testing.T) {
	book := &Book{Records: []Record{
		ObservationRecord{PointID: 1, Code: "P1", Face: "F1", Horizontal: "0-00-00", Zenith: "90-00-00"},
	}}
	if _, err := book.Setups(nil); !errors.Is(err, ErrNoStation) {
		t.Fatalf("err = %v, want ErrNoStation", err)
	}
}

func TestParseFileMissing(t *testing.T) {
	if _, err := ParseFile(context.Background(), filepath.Join("testdata", "missing.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want not-exist", err)
	}
}
