package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mr1hm/go-lifeline/internal/models"
)

type Metrics struct {
	AlertsIngested *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AlertsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifeline_alerts_ingested_total",
			Help: "Alerts stored by category and urgency at time of receipt.",
		}, []string{"category", "urgency"}),
	}
	reg.MustRegister(m.AlertsIngested)
	return m
}

func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnIngest: func(a *models.Alert) {
			m.AlertsIngested.WithLabelValues(a.Category, a.Urgency).Inc()
		},
	}
}

// MetricsHandler serves the Prometheus exposition for g.
func MetricsHandler(g prometheus.Gatherer) gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}
