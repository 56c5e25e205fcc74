package ingestion

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/poiesic/pagewise/ingestion")

type metrics struct {
	runs       *prometheus.CounterVec
	failures   *prometheus.CounterVec
	records    prometheus.Counter
	duration   *prometheus.HistogramVec
	queueDepth prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagewise_ingestion_runs_total",
				Help: "Total number of ingestion runs by result",
			},
			[]string{"result"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagewise_ingestion_failures_total",
				Help: "Total number of failed ingestion runs by the stage they failed to reach",
			},
			[]string{"stage"},
		),
		records: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pagewise_ingestion_records_upserted_total",
				Help: "Total number of vector records written",
			},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pagewise_ingestion_stage_duration_seconds",
				Help:    "Duration of ingestion stages in seconds",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
			},
			[]string{"stage"},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pagewise_ingestion_queue_depth",
				Help: "Number of events waiting for a worker",
			},
		),
	}
	if reg == nil {
		return m, nil
	}

	var err error
	if m.runs, err = register(reg, m.runs); err != nil {
		return nil, err
	}
	if m.failures, err = register(reg, m.failures); err != nil {
		return nil, err
	}
	if m.records, err = register(reg, m.records); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	if m.queueDepth, err = register(reg, m.queueDepth); err != nil {
		return nil, err
	}
	return m, nil
}

// register returns the already registered collector when another pipeline
// registered the same metric first.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *metrics) observe(stage Stage, elapsed time.Duration) {
	m.duration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
}

func (m *metrics) finished(result *Result, err error) {
	if err != nil {
		m.runs.WithLabelValues("failed").Inc()
		var stageErr *StageError
		if errors.As(err, &stageErr) {
			m.failures.WithLabelValues(string(stageErr.Stage)).Inc()
		}
		return
	}
	m.runs.WithLabelValues(string(result.Stage)).Inc()
	m.records.Add(float64(result.Records))
}
