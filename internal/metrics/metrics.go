package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	BroadcastDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "castbot_broadcast_deliveries_total",
			Help: "Broadcast recipients by outcome",
		},
		[]string{"outcome"}, // delivered|unreachable|transient|skipped
	)
	BroadcastJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "castbot_broadcast_jobs_total",
			Help: "Broadcast jobs by result",
		},
		[]string{"result"}, // completed|cancelled|empty|busy|failed
	)
	BroadcastInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "castbot_broadcast_inflight",
			Help: "1 while a broadcast is running",
		},
	)
	Registrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "castbot_registrations_total",
			Help: "Subscriber upserts by result",
		},
		[]string{"result"}, // ok|unavailable|error
	)
	Updates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "castbot_updates_total",
			Help: "Inbound Telegram updates by kind",
		},
		[]string{"kind"}, // message|callback|dropped
	)
	Unsubscribes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "castbot_unsubscribes_total",
			Help: "Subscribers flagged unreachable by a broadcast",
		},
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		BroadcastDeliveries,
		BroadcastJobs,
		BroadcastInflight,
		Registrations,
		Updates,
		Unsubscribes,
	)
}
