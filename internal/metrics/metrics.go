package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flusk_watch_events_received_total",
		Help: "HelmRelease watch events received, per namespace.",
	}, []string{"namespace"})

	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flusk_notifications_sent_total",
		Help: "Deployment notifications dispatched to the webhook.",
	}, []string{"namespace"})

	NotificationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flusk_notifications_failed_total",
		Help: "Notification deliveries that errored. The revision is still marked processed.",
	}, []string{"namespace"})

	WatchReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flusk_watch_reconnects_total",
		Help: "Watch stream re-establishments, by reason (timeout, expired, error).",
	}, []string{"namespace", "reason"})

	LastEventTimestamp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flusk_last_event_timestamp_seconds",
		Help: "Unix time of the last watch event seen per namespace.",
	}, []string{"namespace"})

	StaleWatchers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flusk_stale_watchers",
		Help: "Number of namespace watchers the watchdog currently considers stale.",
	})
)
