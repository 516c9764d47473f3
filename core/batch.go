package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/surveytools/cogo/internal/logging"
	"github.com/surveytools/cogo/model"
)

const tracerName = "github.com/surveytools/cogo/core"

// RawObservation is one field-book pointing with its angles still in text
// form, e.g. "123-45-30".
type RawObservation struct {
	Face          model.Face
	Horizontal    string
	Zenith        string
	SlopeDistance float64
}

// PointRecord groups every pointing of one target from one setup.
type PointRecord struct {
	ID            string
	Station       model.BaseStation
	Observations  []RawObservation
	TargetZOffset float64
	// Separator splits the D, M and S fields of the angle text; ":" when
	// empty.
	Separator string
}

// FailureKind classifies why a record could not be reduced.
type FailureKind string

const (
	FailureInvalidAngle       FailureKind = "invalid_angle"
	FailureParse              FailureKind = "parse"
	FailureDegenerateAverage  FailureKind = "degenerate_average"
	FailureInvalidObservation FailureKind = "invalid_observation"
	FailureCanceled           FailureKind = "canceled"
	FailureUnknown            FailureKind = "unknown"
)

// ClassifyFailure maps a reduction error onto a FailureKind.
func ClassifyFailure(err error) FailureKind {
	switch {
	case errors.Is(err, model.ErrParse):
		return FailureParse
	case errors.Is(err, model.ErrInvalidAngle):
		return FailureInvalidAngle
	case errors.Is(err, ErrDegenerateAverage):
		return FailureDegenerateAverage
	case errors.Is(err, model.ErrInvalidObservation):
		return FailureInvalidObservation
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return FailureCanceled
	default:
		return FailureUnknown
	}
}

// Failure is a record that was skipped.
type Failure struct {
	PointID     string
	StationCode string
	Kind        FailureKind
	Err         error
}

// Reason returns the underlying error text.
func (f Failure) Reason() string {
	if f.Err == nil {
		return string(f.Kind)
	}
	return f.Err.Error()
}

// BatchResult lists reduced points, failed records and tolerance warnings,
// each in input order.
type BatchResult struct {
	Reductions []Reduction
	Failures   []Failure
	Warnings   []model.Warning
}

// BatchMetricsRecorder receives per-batch outcome counts.
type BatchMetricsRecorder interface {
	ObserveBatch(reduced, failed int, elapsed time.Duration)
	RecordFailure(kind string)
	RecordWarning(kind string)
}

// Reducer reduces batches of point records. It holds no mutable state and
// is safe for concurrent use.
type Reducer struct {
	tol     Tolerances
	workers int
	log     logging.Logger
	metrics BatchMetricsRecorder
	tracer  trace.Tracer
}

// ReducerOption configures a Reducer.
type ReducerOption func(*Reducer)

// WithTolerances overrides DefaultTolerances.
func WithTolerances(t Tolerances) ReducerOption {
	return func(r *Reducer) { r.tol = t }
}

// WithWorkers sets how many records are reduced concurrently. Values below
// one mean sequential processing.
func WithWorkers(n int) ReducerOption {
	return func(r *Reducer) { r.workers = n }
}

// WithLogger attaches a logger for per-record diagnostics.
func WithLogger(l logging.Logger) ReducerOption {
	return func(r *Reducer) {
		if l != nil {
			r.log = l
		}
	}
}

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m BatchMetricsRecorder) ReducerOption {
	return func(r *Reducer) { r.metrics = m }
}

// NewReducer constructs a Reducer with default tolerances and sequential
// processing.
func NewReducer(opts ...ReducerOption) *Reducer {
	r := &Reducer{
		tol:     DefaultTolerances(),
		workers: 1,
		log:     logging.Noop(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.workers < 1 {
		r.workers = 1
	}
	return r
}

// Tolerances returns the tolerances in effect.
func (r *Reducer) Tolerances() Tolerances { return r.tol }

// ReducePoint parses and reduces a single record.
func (r *Reducer) ReducePoint(ctx context.Context, rec PointRecord) (Reduction, error) {
	_, span := r.tracer.Start(ctx, "core.ReducePoint", trace.WithAttributes(
		attribute.String("point.id", rec.ID),
		attribute.String("station.code", rec.Station.Code),
		attribute.Int("point.observations", len(rec.Observations)),
	))
	defer span.End()

	red, err := r.reducePoint(rec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Reduction{}, err
	}
	span.SetAttributes(attribute.Int("point.warnings", len(red.Warnings)))
	return red, nil
}

func (r *Reducer) reducePoint(rec PointRecord) (Reduction, error) {
	obs := make([]model.Observation, 0, len(rec.Observations))
	for i, raw := range rec.Observations {
		h, err := model.ParseAngle(raw.Horizontal, rec.Separator)
		if err != nil {
			return Reduction{}, fmt.Errorf("point %s observation %d horizontal angle: %w", rec.ID, i+1, err)
		}
		z, err := model.ParseAngle(raw.Zenith, rec.Separator)
		if err != nil {
			return Reduction{}, fmt.Errorf("point %s observation %d zenith angle: %w", rec.ID, i+1, err)
		}
		obs = append(obs, model.Observation{
			HorizontalAngle: h,
			ZenithAngle:     z,
			SlopeDistance:   raw.SlopeDistance,
			Face:            raw.Face,
		})
	}
	return Reduce(rec.Station, rec.ID, obs, rec.TargetZOffset, r.tol)
}

type outcome struct {
	red Reduction
	err error
}

// ReduceBatch reduces every record. A failing record is listed in
// BatchResult.Failures and never stops the others. The returned error is
// non-nil only when ctx ends before all records were attempted; the
// unattempted records are then reported as canceled failures.
func (r *Reducer) ReduceBatch(ctx context.Context, records []PointRecord) (BatchResult, error) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "core.ReduceBatch", trace.WithAttributes(
		attribute.Int("batch.records", len(records)),
		attribute.Int("batch.workers", r.workers),
	))
	defer span.End()

	slots := make([]outcome, len(records))
	g := new(errgroup.Group)
	g.SetLimit(r.workers)

	for i := range records {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(records); j++ {
				slots[j] = outcome{err: err}
			}
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				slots[i] = outcome{err: err}
				return nil
			}
			red, err := r.ReducePoint(ctx, records[i])
			slots[i] = outcome{red: red, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var res BatchResult
	for i, o := range slots {
		rec := records[i]
		if o.err != nil {
			f := Failure{
				PointID:     rec.ID,
				StationCode: rec.Station.Code,
				Kind:        ClassifyFailure(o.err),
				Err:         o.err,
			}
			res.Failures = append(res.Failures, f)
			r.log.Warn(ctx, "skipping point",
				logging.String("point_id", rec.ID),
				logging.String("station", rec.Station.Code),
				logging.String("kind", string(f.Kind)),
				logging.Err(o.err),
			)
			if r.metrics != nil {
				r.metrics.RecordFailure(string(f.Kind))
			}
			continue
		}
		res.Reductions = append(res.Reductions, o.red)
		for _, w := range o.red.Warnings {
			res.Warnings = append(res.Warnings, w)
			r.log.Warn(ctx, "tolerance exceeded",
				logging.String("point_id", w.PointID),
				logging.String("station", w.StationCode),
				logging.String("kind", string(w.Kind)),
				logging.Float("spread", w.Value),
				logging.Float("excess", w.Excess),
			)
			if r.metrics != nil {
				r.metrics.RecordWarning(string(w.Kind))
			}
		}
	}

	elapsed := time.Since(start)
	if r.metrics != nil {
		r.metrics.ObserveBatch(len(res.Reductions), len(res.Failures), elapsed)
	}
	span.SetAttributes(
		attribute.Int("batch.reduced", len(res.Reductions)),
		attribute.Int("batch.failed", len(res.Failures)),
		attribute.Int("batch.warnings", len(res.Warnings)),
	)
	r.log.Debug(ctx, "batch reduced",
		logging.Int("reduced", len(res.Reductions)),
		logging.Int("failed", len(res.Failures)),
		logging.Int("warnings", len(res.Warnings)),
		logging.Duration("elapsed", elapsed),
	)

	if err := ctx.Err(); err != nil && len(res.Reductions)+countCompleted(res.Failures) < len(records) {
		return res, err
	}
	return res, nil
}

func countCompleted(failures []Failure) int {
	n := 0
	for _, f := range failures {
		if f.Kind != FailureCanceled {
			n++
		}
	}
	return n
}
