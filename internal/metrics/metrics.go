// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartq_http_requests_total",
			Help: "HTTP requests by method, route and status code",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smartq_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "smartq_http_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
	)

	QueueTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartq_queue_transitions_total",
			Help: "Queue engine operations by outcome",
		},
		[]string{"op", "result"},
	)

	QueueWaiting = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "smartq_queue_waiting",
			Help: "Tickets currently waiting",
		},
	)

	PushNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartq_push_notifications_total",
			Help: "Push notifications by event and result",
		},
		[]string{"event", "result"},
	)

	RealtimeClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "smartq_realtime_clients",
			Help: "Connected real-time clients",
		},
	)

	BroadcastEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartq_broadcast_events_total",
			Help: "Events fanned out to real-time clients",
		},
		[]string{"event"},
	)

	BroadcastDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "smartq_broadcast_dropped_total",
			Help: "Messages dropped for slow real-time clients",
		},
	)

	PurgedRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartq_purged_records_total",
			Help: "Records removed by the retention loop",
		},
		[]string{"kind"},
	)
)

// Result labels an outcome for the *_total counters.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
