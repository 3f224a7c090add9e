package triage

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for classifier runs.
type Metrics struct {
	ClassificationsTotal   *prometheus.CounterVec
	ClassificationDuration *prometheus.HistogramVec
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ClassificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifeline_classifications_total",
			Help: "Total classifier runs by classifier and outcome.",
		}, []string{"classifier", "outcome"}),
		ClassificationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lifeline_classification_duration_seconds",
			Help:    "Duration of classifier runs in seconds, including lazy model loads.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10), // 0.5ms .. ~131s
		}, []string{"classifier"}),
	}

	reg.MustRegister(
		m.ClassificationsTotal,
		m.ClassificationDuration,
	)

	return m
}

// Hooks returns combiner hooks that record into m.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnClassify: func(classifier string, ok bool, duration time.Duration) {
			outcome := "success"
			if !ok {
				outcome = "fallback"
			}
			m.ClassificationsTotal.WithLabelValues(classifier, outcome).Inc()
			m.ClassificationDuration.WithLabelValues(classifier).Observe(duration.Seconds())
		},
	}
}
