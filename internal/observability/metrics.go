package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ReductionCollector bundles Prometheus metrics for field-book reduction
// runs. It satisfies core.BatchMetricsRecorder.
type ReductionCollector struct {
	gatherer prometheus.Gatherer

	PointsReduced  prometheus.Counter
	RecordFailures *prometheus.CounterVec
	Warnings       *prometheus.CounterVec
	BatchDurations prometheus.Histogram
	StationsLoaded prometheus.Gauge
}

// NewReductionCollector registers reduction metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewReductionCollector(reg prometheus.Registerer) (*ReductionCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	reduced, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cogo_points_reduced_total",
		Help: "Total number of points reduced to coordinates.",
	}), "cogo_points_reduced_total")
	if err != nil {
		return nil, err
	}

	failures, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cogo_record_failures_total",
		Help: "Total number of point records skipped, labeled by failure kind.",
	}, []string{"kind"}), "cogo_record_failures_total")
	if err != nil {
		return nil, err
	}

	warnings, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cogo_tolerance_warnings_total",
		Help: "Total number of direct/reverse tolerance breaches, labeled by quantity.",
	}, []string{"kind"}), "cogo_tolerance_warnings_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cogo_batch_duration_seconds",
		Help:    "Wall time spent reducing one batch of point records.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}), "cogo_batch_duration_seconds")
	if err != nil {
		return nil, err
	}

	stations, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cogo_stations_loaded",
		Help: "Number of distinct base stations known to the current run.",
	}), "cogo_stations_loaded")
	if err != nil {
		return nil, err
	}

	return &ReductionCollector{
		gatherer:       gatherer,
		PointsReduced:  reduced,
		RecordFailures: failures,
		Warnings:       warnings,
		BatchDurations: durations,
		StationsLoaded: stations,
	}, nil
}

// ObserveBatch records the outcome of one batch.
func (c *ReductionCollector) ObserveBatch(reduced, failed int, elapsed time.Duration) {
	if c == nil {
		return
	}
	if c.PointsReduced != nil {
		c.PointsReduced.Add(float64(reduced))
	}
	if c.BatchDurations != nil {
		c.BatchDurations.Observe(elapsed.Seconds())
	}
}

// RecordFailure counts one skipped record.
func (c *ReductionCollector) RecordFailure(kind string) {
	if c == nil || c.RecordFailures == nil {
		return
	}
	c.RecordFailures.WithLabelValues(kind).Inc()
}

// RecordWarning counts one tolerance breach.
func (c *ReductionCollector) RecordWarning(kind string) {
	if c == nil || c.Warnings == nil {
		return
	}
	c.Warnings.WithLabelValues(kind).Inc()
}

// SetStations updates the station gauge.
func (c *ReductionCollector) SetStations(n int) {
	if c == nil || c.StationsLoaded == nil {
		return
	}
	c.StationsLoaded.Set(float64(n))
}

// WriteTextfile dumps the gathered metrics in the text exposition format
// for node_exporter's textfile collector.
func (c *ReductionCollector) WriteTextfile(path string) error {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if err := prometheus.WriteToTextfile(path, gatherer); err != nil {
		return fmt.Errorf("write metrics textfile %q: %w", path, err)
	}
	return nil
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return c, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
