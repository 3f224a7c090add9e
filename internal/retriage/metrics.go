package retriage

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	JobsTotal *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifeline_retriage_jobs_total",
			Help: "Re-triage jobs by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.JobsTotal)
	return m
}

func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnJob: func(outcome string) {
			m.JobsTotal.WithLabelValues(outcome).Inc()
		},
	}
}
