// Package fieldbook reads SOKKIA printed text field books.
package fieldbook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// AngleSeparator splits the D, M and S fields of field-book angle text.
const AngleSeparator = "-"

const (
	wantDistanceUnit = "Meters"
	wantAngleUnit    = "Degrees [dd-mm-ss.ss]"
	dividerWidth     = 135
)

// ErrFormat reports a field book whose header or layout is not understood.
var ErrFormat = errors.New("unrecognised field book format")

// columns are the fixed-width field boundaries of the printed book.
var columns = [...]struct {
	name   string
	lo, hi int
}{
	{"Pt.", 0, 8},
	{"Record Type", 8, 20},
	{"DC", 20, 25},
	{"North/Hor", 25, 70},
	{"East/Vert", 70, 115},
	{"Elev./Dist", 115, 150},
	{"Code", 150, -1},
}

const (
	colPoint = iota
	colType
	colDC
	colNorthHor
	colEastVert
	colElevDist
	colCode
)

// Book is a parsed field book.
type Book struct {
	Project      string
	SDRFile      string
	PrintedAt    time.Time
	DistanceUnit string
	AngleUnit    string
	PointCount   int
	Records      []Record
	// Skipped counts records of types the reduction has no use for
	// (SCALE, RED, BKB, POS and unknown types).
	Skipped int
}

// Instrument returns the model named by the first INSTR record, if any.
func (b *Book) Instrument() (string, bool) {
	for _, r := range b.Records {
		if in, ok := r.(InstrumentRecord); ok {
			return in.Model, true
		}
	}
	return "", false
}

// JobID returns the id of the first JOB record, if any.
func (b *Book) JobID() string {
	for _, r := range b.Records {
		if j, ok := r.(JobRecord); ok {
			return j.JobID
		}
	}
	return ""
}

// Stations returns every STN record in book order.
func (b *Book) Stations() []StationRecord {
	var out []StationRecord
	for _, r := range b.Records {
		if s, ok := r.(StationRecord); ok {
			out = append(out, s)
		}
	}
	return out
}

// ParseFile opens and parses a field book.
func ParseFile(ctx context.Context, path string) (*Book, error) {
	_, span := otel.Tracer("github.com/surveytools/cogo/fieldbook").Start(ctx, "fieldbook.ParseFile")
	span.SetAttributes(attribute.String("fieldbook.path", path))
	defer span.End()

	f, err := os.Open(path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("open field book %q: %w", path, err)
	}
	defer f.Close()

	book, err := Parse(f)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("parse field book %q: %w", path, err)
	}
	span.SetAttributes(
		attribute.Int("fieldbook.records", len(book.Records)),
		attribute.String("fieldbook.project", book.Project),
	)
	return book, nil
}

// Parse reads a printed field book. Header and layout problems are
// returned as errors wrapping ErrFormat; angle text is not validated here.
func Parse(r io.Reader) (*Book, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")

	book := &Book{}
	next, err := parseHeader(book, lines)
	if err != nil {
		return nil, err
	}

	var block []string
	flush := func() error {
		if len(block) == 0 {
			return nil
		}
		err := book.addRecord(block)
		block = block[:0]
		return err
	}
	for _, line := range lines[next:] {
		if isDivider(line) {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		block = append(block, line)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return book, nil
}

// parseHeader fills the book's header fields and returns the index of the
// first line after the column heading's trailing divider.
func parseHeader(book *Book, lines []string) (int, error) {
	i := 0
	nextLine := func() (string, error) {
		for i < len(lines) {
			l := lines[i]
			i++
			if strings.TrimSpace(l) != "" {
				return l, nil
			}
		}
		return "", fmt.Errorf("%w: truncated header", ErrFormat)
	}

	if _, err := nextLine(); err != nil { // "< Condition >"
		return 0, err
	}
	values := make(map[string]string)
	for {
		l, err := nextLine()
		if err != nil {
			return 0, err
		}
		if isDivider(l) {
			break
		}
		key, val, ok := strings.Cut(l, ":")
		if !ok {
			return 0, fmt.Errorf("%w: header line %q", ErrFormat, l)
		}
		values[strings.TrimSpace(key)] = strings.TrimSpace(val)
	}

	book.Project = values["Project"]
	book.SDRFile = values["File Name"]
	book.DistanceUnit = values["Distance Unit"]
	book.AngleUnit = values["Angle Unit"]
	if book.DistanceUnit != wantDistanceUnit {
		return 0, fmt.Errorf("%w: unknown distance unit %q", ErrFormat, book.DistanceUnit)
	}
	if book.AngleUnit != wantAngleUnit {
		return 0, fmt.Errorf("%w: unknown angle unit %q", ErrFormat, book.AngleUnit)
	}
	if raw, ok := values["Pt. Count"]; ok {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return 0, fmt.Errorf("%w: point count %q", ErrFormat, raw)
		}
		book.PointCount = n
	}
	if raw, ok := values["Print Date"]; ok {
		t, err := parsePrintDate(raw)
		if err != nil {
			return 0, err
		}
		book.PrintedAt = t
	}

	heading, err := nextLine()
	if err != nil {
		return 0, err
	}
	if err := checkHeading(heading); err != nil {
		return 0, err
	}
	l, err := nextLine()
	if err != nil {
		return 0, err
	}
	if !isDivider(l) {
		return 0, fmt.Errorf("%w: expected divider after column heading", ErrFormat)
	}
	return i, nil
}

// parsePrintDate reads "2009-02-06 03:14:15 PM".
func parsePrintDate(raw string) (time.Time, error) {
	t, err := time.Parse("2006-01-02 03:04:05 PM", strings.Join(strings.Fields(raw), " "))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: print date %q: %v", ErrFormat, raw, err)
	}
	return t, nil
}

func checkHeading(line string) error {
	for _, c := range columns {
		if got := field(line, c.lo, c.hi); got != c.name {
			return fmt.Errorf("%w: column %q heading is %q", ErrFormat, c.name, got)
		}
	}
	return nil
}

func isDivider(line string) bool {
	l := strings.TrimSpace(line)
	return len(l) >= dividerWidth && strings.Trim(l, "-") == ""
}

// field returns the trimmed text between byte offsets lo and hi; hi < 0
// means end of line.
func field(line string, lo, hi int) string {
	if lo >= len(line) {
		return ""
	}
	if hi < 0 || hi > len(line) {
		hi = len(line)
	}
	return strings.TrimSpace(line[lo:hi])
}

func cell(line string, col int) string {
	c := columns[col]
	return field(line, c.lo, c.hi)
}

// value strips a "label:" prefix, keeping the text after the last colon.
func value(s string) string {
	if i := strings.LastIndex(s, ":"); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return strings.TrimSpace(s)
}

func (b *Book) addRecord(lines []string) error {
	first := lines[0]
	kind := cell(first, colType)
	switch kind {
	case "OBS":
		pt, err := pointID(first)
		if err != nil {
			return err
		}
		// A blank or non-numeric distance is an angle-only pointing.
		dist, err := strconv.ParseFloat(value(cell(first, colElevDist)), 64)
		if err != nil {
			dist = 0
		}
		b.Records = append(b.Records, ObservationRecord{
			PointID:       pt,
			Code:          cell(first, colCode),
			Face:          cell(first, colDC),
			Horizontal:    value(cell(first, colNorthHor)),
			Zenith:        value(cell(first, colEastVert)),
			SlopeDistance: dist,
		})
	case "STN":
		if len(lines) < 2 {
			return fmt.Errorf("%w: STN record without theodolite height line", ErrFormat)
		}
		pt, err := pointID(first)
		if err != nil {
			return err
		}
		stn := StationRecord{PointID: pt, Code: cell(first, colCode)}
		for _, f := range []struct {
			dst *float64
			src string
		}{
			{&stn.North, cell(first, colNorthHor)},
			{&stn.East, cell(first, colEastVert)},
			{&stn.Elevation, cell(first, colElevDist)},
			{&stn.TheodoliteHeight, cell(lines[1], colNorthHor)},
		} {
			v, err := strconv.ParseFloat(value(f.src), 64)
			if err != nil {
				return fmt.Errorf("%w: station %s value %q", ErrFormat, stn.Code, f.src)
			}
			*f.dst = v
		}
		b.Records = append(b.Records, stn)
	case "TARGET":
		raw := cell(first, colNorthHor)
		h, err := strconv.ParseFloat(value(raw), 64)
		if err != nil {
			return fmt.Errorf("%w: target height %q", ErrFormat, raw)
		}
		b.Records = append(b.Records, TargetRecord{Code: cell(first, colCode), TargetHeight: h})
	case "JOB":
		b.Records = append(b.Records, JobRecord{
			JobID:      value(cell(first, colNorthHor)),
			SourceFile: cell(first, colElevDist),
		})
	case "INSTR":
		var m string
		if len(lines) > 1 {
			if _, v, ok := strings.Cut(cell(lines[1], colNorthHor), ":"); ok {
				m = strings.TrimSpace(v)
			}
		}
		b.Records = append(b.Records, InstrumentRecord{Model: m})
	case "Fbk Settings":
		s := SettingsRecord{Values: make(map[string]string)}
		for _, l := range lines {
			for _, col := range []int{colNorthHor, colEastVert, colElevDist} {
				if k, v, ok := strings.Cut(cell(l, col), ":"); ok {
					s.Values[strings.TrimSpace(k)] = strings.TrimSpace(v)
				}
			}
		}
		b.Records = append(b.Records, s)
	default:
		b.Skipped++
	}
	return nil
}

func pointID(line string) (int, error) {
	raw := cell(line, colPoint)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: point number %q", ErrFormat, raw)
	}
	return n, nil
}
