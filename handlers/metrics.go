package handlers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	requestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	readingsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readings_dropped_total",
			Help: "Readings dropped because the channel's queue was full",
		},
		[]string{"channel_id"},
	)

	anomaliesDetectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomalies_detected_total",
			Help: "Total number of anomalies detected",
		},
		[]string{"channel_id"},
	)

	scoresComputedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scores_computed_total",
			Help: "Defined scores produced by on-demand table scoring",
		},
		[]string{"channel_id"},
	)
)

// OnAnomaly counts a streaming anomaly; pass it to the analytics engine.
func OnAnomaly(channelID string) {
	anomaliesDetectedTotal.WithLabelValues(channelID).Inc()
}
