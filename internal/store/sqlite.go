// Package store persists reduction runs to a local SQLite file.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/surveytools/cogo/core"
	"github.com/surveytools/cogo/model"
)

// ErrRunNotFound is returned when a run id has no rows.
var ErrRunNotFound = errors.New("run not found")

// Run describes one reduction of one field book.
type Run struct {
	ID         string
	Source     string
	Instrument string
	StartedAt  time.Time
	Tolerances core.Tolerances
	Reduced    int
	Failed     int
}

// FailureRow is a persisted per-record failure.
type FailureRow struct {
	PointID     string
	StationCode string
	Kind        core.FailureKind
	Reason      string
}

// SQLiteStore writes runs to SQLite through the pure-Go modernc driver.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Open creates or opens the database at path and ensures the schema.
func Open(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		instrument TEXT,
		started_at DATETIME NOT NULL,
		tol_horizontal REAL NOT NULL,
		tol_zenith REAL NOT NULL,
		tol_distance REAL NOT NULL,
		reduced INTEGER NOT NULL,
		failed INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS points (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		point_id TEXT NOT NULL,
		station TEXT NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		z REAL NOT NULL,
		target_height REAL NOT NULL,
		horizontal_distance REAL NOT NULL,
		vertical_distance REAL NOT NULL,
		range_horizontal REAL NOT NULL,
		range_zenith REAL NOT NULL,
		range_distance REAL NOT NULL,
		PRIMARY KEY (run_id, seq)
	);
	CREATE TABLE IF NOT EXISTS failures (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		point_id TEXT NOT NULL,
		station TEXT NOT NULL,
		kind TEXT NOT NULL,
		reason TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	);
	CREATE TABLE IF NOT EXISTS warnings (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		point_id TEXT NOT NULL,
		station TEXT NOT NULL,
		kind TEXT NOT NULL,
		value REAL NOT NULL,
		tolerance REAL NOT NULL,
		excess REAL NOT NULL,
		PRIMARY KEY (run_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_points_point ON points(point_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveRun stores the run header and every reduction, failure and warning
// of res in one transaction. Reduced and Failed on run are taken from res.
func (s *SQLiteStore) SaveRun(ctx context.Context, run Run, res core.BatchResult) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run %s: %w", run.ID, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, source, instrument, started_at, tol_horizontal, tol_zenith, tol_distance, reduced, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.Instrument, run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.Tolerances.Horizontal, run.Tolerances.Zenith, run.Tolerances.Distance,
		len(res.Reductions), len(res.Failures),
	); err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	for i, red := range res.Reductions {
		p := red.Point
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO points (run_id, seq, point_id, station, x, y, z, target_height,
				horizontal_distance, vertical_distance, range_horizontal, range_zenith, range_distance)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, p.ID, p.StationCode, p.Position.X, p.Position.Y, p.Position.Z, p.TargetZOffset,
			p.HorizontalDistance, p.VerticalDistance,
			red.Averaged.HorizontalRange, red.Averaged.ZenithRange, red.Averaged.DistanceRange,
		); err != nil {
			return fmt.Errorf("insert point %s: %w", p.ID, err)
		}
	}
	for i, f := range res.Failures {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO failures (run_id, seq, point_id, station, kind, reason)
			VALUES (?, ?, ?, ?, ?, ?)`,
			run.ID, i, f.PointID, f.StationCode, string(f.Kind), f.Reason(),
		); err != nil {
			return fmt.Errorf("insert failure %s: %w", f.PointID, err)
		}
	}
	for i, w := range res.Warnings {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO warnings (run_id, seq, point_id, station, kind, value, tolerance, excess)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, w.PointID, w.StationCode, string(w.Kind), w.Value, w.Tolerance, w.Excess,
		); err != nil {
			return fmt.Errorf("insert warning %s: %w", w.PointID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun returns the header of one run.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source, instrument, started_at, tol_horizontal, tol_zenith, tol_distance, reduced, failed
		FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// ListRuns returns every run, oldest first.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, instrument, started_at, tol_horizontal, tol_zenith, tol_distance, reduced, failed
		FROM runs ORDER BY started_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run        Run
		instrument sql.NullString
		started    string
	)
	if err := sc.Scan(&run.ID, &run.Source, &instrument, &started,
		&run.Tolerances.Horizontal, &run.Tolerances.Zenith, &run.Tolerances.Distance,
		&run.Reduced, &run.Failed); err != nil {
		return Run{}, err
	}
	run.Instrument = instrument.String
	t, err := time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return Run{}, fmt.Errorf("run %s started_at %q: %w", run.ID, started, err)
	}
	run.StartedAt = t
	return run, nil
}

// ListPoints returns the reduced points of a run in reduction order.
func (s *SQLiteStore) ListPoints(ctx context.Context, runID string) ([]model.ReducedPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT point_id, station, x, y, z, target_height, horizontal_distance, vertical_distance
		FROM points WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}
	defer rows.Close()

	var out []model.ReducedPoint
	for rows.Next() {
		var p model.ReducedPoint
		if err := rows.Scan(&p.ID, &p.StationCode, &p.Position.X, &p.Position.Y, &p.Position.Z,
			&p.TargetZOffset, &p.HorizontalDistance, &p.VerticalDistance); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListFailures returns the skipped records of a run in input order.
func (s *SQLiteStore) ListFailures(ctx context.Context, runID string) ([]FailureRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT point_id, station, kind, reason FROM failures WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	var out []FailureRow
	for rows.Next() {
		var (
			f    FailureRow
			kind string
		)
		if err := rows.Scan(&f.PointID, &f.StationCode, &kind, &f.Reason); err != nil {
			return nil, err
		}
		f.Kind = core.FailureKind(kind)
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListWarnings returns the tolerance warnings of a run.
func (s *SQLiteStore) ListWarnings(ctx context.Context, runID string) ([]model.Warning, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT point_id, station, kind, value, tolerance, excess FROM warnings WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query warnings: %w", err)
	}
	defer rows.Close()

	var out []model.Warning
	for rows.Next() {
		var (
			w    model.Warning
			kind string
		)
		if err := rows.Scan(&w.PointID, &w.StationCode, &kind, &w.Value, &w.Tolerance, &w.Excess); err != nil {
			return nil, err
		}
		w.Kind = model.ToleranceKind(kind)
		out = append(out, w)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and, through the foreign keys, all its rows.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}
