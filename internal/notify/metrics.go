package notify

import "github.com/prometheus/client_golang/prometheus"

var (
	notificationsSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "riskwatch_notifications_sent_total",
			Help: "Total number of notifications delivered to channels.",
		},
	)
	notificationFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "riskwatch_notification_failures_total",
			Help: "Total number of failed notification deliveries.",
		},
	)
)

func init() {
	prometheus.MustRegister(notificationsSentTotal)
	prometheus.MustRegister(notificationFailuresTotal)
}
