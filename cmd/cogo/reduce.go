package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/surveytools/cogo/core"
	"github.com/surveytools/cogo/export"
	"github.com/surveytools/cogo/fieldbook"
	"github.com/surveytools/cogo/internal/logging"
	"github.com/surveytools/cogo/internal/observability"
	"github.com/surveytools/cogo/internal/store"
	"github.com/surveytools/cogo/kb"
	"github.com/surveytools/cogo/model"
)

type reduceOptions struct {
	outDir      string
	format      string
	csv         bool
	ranges      bool
	db          string
	metricsFile string
	workers     int
}

func newReduceCmd(a *app) *cobra.Command {
	var opts reduceOptions
	cmd := &cobra.Command{
		Use:   "reduce FIELDBOOK...",
		Short: "Average direct/reverse pointings and export Columbus observations",
		Long: `Reads SOKKIA printed field books, averages the F1/F2 pointings of every
target, reports tolerance breaches and writes <name>.obs Columbus files.
Records that cannot be reduced are reported and skipped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runReduce(cmd.Context(), opts, args, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.outDir, "out-dir", "o", ".", "directory for .obs, .csv and .log outputs")
	f.StringVarP(&opts.format, "format", "f", "", "Columbus record type: az, dir or hor (overrides config)")
	f.BoolVar(&opts.csv, "csv", false, "also write reduced coordinates to <name>.csv")
	f.BoolVar(&opts.ranges, "ranges", false, "also write the direct/reverse range log to <name>.log")
	f.StringVar(&opts.db, "db", "", "SQLite database recording each run (overrides config)")
	f.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics in textfile format to this path")
	f.IntVarP(&opts.workers, "workers", "w", 0, "records reduced concurrently (overrides config)")
	return cmd
}

func (a *app) runReduce(ctx context.Context, opts reduceOptions, paths []string, out io.Writer) error {
	cfg := a.cfg
	if opts.format != "" {
		cfg.Export.Kind = opts.format
	}
	if opts.db != "" {
		cfg.Store.Path = opts.db
	}
	workers := cfg.Workers
	if opts.workers > 0 {
		workers = opts.workers
	}

	tol, err := cfg.ReductionTolerances()
	if err != nil {
		return err
	}

	collector, err := observability.NewReductionCollector(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	var runs *store.SQLiteStore
	if cfg.Store.Path != "" {
		runs, err = store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer runs.Close()
	}

	survey := kb.NewKnowledgeBase()
	unsubscribe := survey.Subscribe(func(ev kb.Event) {
		if ev.Type == kb.EventStationSet {
			collector.SetStations(len(survey.ListStations()))
		}
	})
	defer unsubscribe()

	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	rep := newReporter(out)
	for _, path := range paths {
		runCtx, log := logging.WithRunLogger(ctx, a.log)
		reducer := core.NewReducer(
			core.WithTolerances(tol),
			core.WithWorkers(workers),
			core.WithLogger(log),
			core.WithMetricsRecorder(collector),
		)
		if err := a.reduceFile(runCtx, reduceJob{
			path:    path,
			opts:    opts,
			reducer: reducer,
			survey:  survey,
			runs:    runs,
			report:  rep,
			log:     log,
		}); err != nil {
			log.Error(runCtx, "field book not reduced", logging.String("file", path), logging.Err(err))
			return err
		}
	}

	if opts.metricsFile != "" {
		if err := collector.WriteTextfile(opts.metricsFile); err != nil {
			return err
		}
	}
	return nil
}

type reduceJob struct {
	path    string
	opts    reduceOptions
	reducer *core.Reducer
	survey  *kb.KnowledgeBase
	runs    *store.SQLiteStore
	report  *reporter
	log     logging.Logger
}

func (a *app) reduceFile(ctx context.Context, job reduceJob) error {
	started := time.Now()
	log := job.log.With(logging.String("file", job.path))

	book, err := fieldbook.ParseFile(ctx, job.path)
	if err != nil {
		return err
	}
	bookModel, _ := book.Instrument()
	inst := a.cfg.ResolveInstrument(bookModel)
	log.Info(ctx, "field book loaded",
		logging.String("project", book.Project),
		logging.String("job", book.JobID()),
		logging.String("instrument", inst.Name),
		logging.Int("records", len(book.Records)),
		logging.Int("skipped", book.Skipped),
	)

	setups, err := book.Setups(a.cfg.OrientationFor)
	if err != nil {
		return err
	}
	var records []core.PointRecord
	for _, s := range setups {
		job.survey.SetStation(s.Station)
		records = append(records, s.Points...)
	}

	res, err := job.reducer.ReduceBatch(ctx, records)
	if err != nil {
		return fmt.Errorf("reduce %s: %w", job.path, err)
	}

	averaged := make([]core.AveragedObservation, 0, len(res.Reductions))
	for _, red := range res.Reductions {
		averaged = append(averaged, red.Averaged)
		if err := job.survey.AddPoint(red.Point); err != nil {
			if !errors.Is(err, kb.ErrPointExists) {
				return err
			}
			log.Warn(ctx, "point reduced twice from one station; keeping the first",
				logging.String("point_id", red.Point.ID),
				logging.String("station", red.Point.StationCode),
			)
		}
	}

	stem := strings.TrimSuffix(filepath.Base(job.path), filepath.Ext(job.path))
	colOpts, err := a.cfg.ColumbusOptions(book.JobID())
	if err != nil {
		return err
	}
	if err := writeOutput(filepath.Join(job.opts.outDir, stem+".obs"), func(w io.Writer) error {
		return export.WriteColumbus(w, inst, averaged, colOpts)
	}); err != nil {
		return err
	}
	if job.opts.csv {
		points := make([]model.ReducedPoint, 0, len(res.Reductions))
		for _, red := range res.Reductions {
			points = append(points, red.Point)
		}
		if err := writeOutput(filepath.Join(job.opts.outDir, stem+".csv"), func(w io.Writer) error {
			return export.WriteCSV(w, points)
		}); err != nil {
			return err
		}
	}
	if job.opts.ranges {
		if err := writeOutput(filepath.Join(job.opts.outDir, stem+".log"), func(w io.Writer) error {
			return export.WriteRanges(w, averaged)
		}); err != nil {
			return err
		}
	}

	if job.runs != nil {
		run := store.Run{
			ID:         logging.RunIDFromContext(ctx),
			Source:     job.path,
			Instrument: inst.Name,
			StartedAt:  started,
			Tolerances: job.reducer.Tolerances(),
		}
		if err := job.runs.SaveRun(ctx, run, res); err != nil {
			return err
		}
	}

	log.Info(ctx, "field book reduced",
		logging.Int("reduced", len(res.Reductions)),
		logging.Int("failed", len(res.Failures)),
		logging.Int("warnings", len(res.Warnings)),
	)
	return job.report.render(job.path, res, job.reducer.Tolerances())
}

// writeOutput creates path and hands it to fn, reporting the first error
// from either fn or Close.
func writeOutput(path string, fn func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	if err := fn(f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
