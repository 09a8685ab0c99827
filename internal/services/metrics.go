package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// notificationsTotal counts outbound sends by result (ok|error).
	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenda_notifications_total",
			Help: "Outbound notifications by result.",
		},
		[]string{"result"},
	)

	// webhookStatusTotal counts inbound turns by resulting status token.
	webhookStatusTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenda_webhook_status_total",
			Help: "Inbound message outcomes by status token.",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(notificationsTotal, webhookStatusTotal)
}
