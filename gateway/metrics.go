package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts model attempts by outcome and records their latency.
type Metrics struct {
	Attempts *prometheus.CounterVec
	Latency  *prometheus.HistogramVec
}

// NewMetrics registers the gateway collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pmcopilot",
				Subsystem: "gateway",
				Name:      "attempts_total",
				Help:      "Model attempts by provider, model and outcome.",
			},
			[]string{"provider", "model", "outcome"},
		),
		Latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "pmcopilot",
				Subsystem: "gateway",
				Name:      "attempt_duration_seconds",
				Help:      "Duration of model attempts.",
				Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"provider", "model"},
		),
	}
}

func (m *Metrics) observe(provider, model string, outcome Kind, elapsed time.Duration) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "success"
	}
	m.Attempts.WithLabelValues(provider, model, string(outcome)).Inc()
	m.Latency.WithLabelValues(provider, model).Observe(elapsed.Seconds())
}
