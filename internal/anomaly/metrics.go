package anomaly

import "github.com/prometheus/client_golang/prometheus"

var anomaliesDetectedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "riskwatch_anomalies_detected_total",
		Help: "Total number of anomaly records persisted, by detection method.",
	},
	[]string{"method"},
)

func init() {
	prometheus.MustRegister(anomaliesDetectedTotal)
}
