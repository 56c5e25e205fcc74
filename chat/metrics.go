package chat

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/poiesic/pagewise/chat")

type metrics struct {
	responses *prometheus.CounterVec
	duration  prometheus.Histogram
	sources   prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		responses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagewise_chat_responses_total",
				Help: "Total number of chat responses by result",
			},
			[]string{"result"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pagewise_chat_response_duration_seconds",
				Help:    "Duration of chat responses in seconds",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
			},
		),
		sources: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pagewise_chat_sources",
				Help:    "Number of retrieved sources per response",
				Buckets: prometheus.LinearBuckets(0, 2, 10),
			},
		),
	}
	if reg == nil {
		return m, nil
	}
	var err error
	if m.responses, err = register(reg, m.responses); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	if m.sources, err = register(reg, m.sources); err != nil {
		return nil, err
	}
	return m, nil
}

// register returns the already registered collector when another responder
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
