package refresh

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/opencredit/kestrel/internal/domain"
)

var (
	refreshRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kestrel_refresh_runs_total",
		Help: "Completed refresh pipeline runs.",
	})

	refreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kestrel_refresh_duration_seconds",
		Help:    "End-to-end refresh pipeline duration.",
		Buckets: prometheus.DefBuckets,
	})

	fetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kestrel_fetch_failures_total",
		Help: "Source fetches that settled with an error.",
	}, []string{"source"})

	alertsBySeverity = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kestrel_alerts",
		Help: "Alerts in the latest result bundle by severity.",
	}, []string{"severity"})

	healthScore = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kestrel_health_score",
		Help: "System health score of the latest refresh (0-100).",
	})

	riskScore = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kestrel_risk_score",
		Help: "Risk score of the latest refresh (0-100).",
	})
)

func observeRefresh(result *domain.Result, elapsed time.Duration) {
	refreshRuns.Inc()
	refreshDuration.Observe(elapsed.Seconds())

	counts := map[string]float64{
		domain.SeverityHigh:   0,
		domain.SeverityMedium: 0,
		domain.SeverityLow:    0,
	}
	for _, a := range result.Alerts {
		counts[a.Severity]++
	}
	for severity, n := range counts {
		alertsBySeverity.WithLabelValues(severity).Set(n)
	}

	healthScore.Set(result.Scores.Health)
	riskScore.Set(result.Scores.Risk)
}

func observeFetchFailure(source string) {
	fetchFailures.WithLabelValues(source).Inc()
}
