package alerts

import "github.com/prometheus/client_golang/prometheus"

var (
	alertsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskwatch_alerts_created_total",
			Help: "Total number of alerts created, by level.",
		},
		[]string{"level"},
	)
	alertDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskwatch_alert_decisions_total",
			Help: "Total number of committee decisions applied, by decision.",
		},
		[]string{"decision"},
	)
	workflowLocksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "riskwatch_workflow_locks_total",
			Help: "Total number of workflow locks raised.",
		},
	)
)

func init() {
	prometheus.MustRegister(alertsCreatedTotal)
	prometheus.MustRegister(alertDecisionsTotal)
	prometheus.MustRegister(workflowLocksTotal)
}
