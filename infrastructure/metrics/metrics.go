// Package metrics exposes the pipeline's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NotificationsTotal counts webhook deliveries by outcome (accepted, rejected, dropped, deleted).
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yt_notifications_total",
			Help: "Total number of hub notification deliveries",
		},
		[]string{"outcome"},
	)

	// IngestTotal counts ingestion results.
	IngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yt_ingest_total",
			Help: "Total number of video ingestions by result",
		},
		[]string{"result"},
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "yt_ingest_duration_seconds",
			Help:    "Duration of one video ingestion in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// FetchTotal counts metadata API calls by status.
	FetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yt_metadata_fetch_total",
			Help: "Total number of metadata API calls by status",
		},
		[]string{"call", "status"},
	)

	RenewalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yt_lease_renewals_total",
			Help: "Total number of lease renewal outcomes",
		},
		[]string{"status"},
	)

	// SubscriptionsByState is refreshed on every renewal scan.
	SubscriptionsByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "yt_subscriptions",
			Help: "Tracked subscriptions by lease state",
		},
		[]string{"state"},
	)

	BackfillVideosTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yt_backfill_videos_total",
			Help: "Total number of videos processed by backfills",
		},
		[]string{"result"},
	)

	QueueDropsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "yt_queue_drops_total",
			Help: "Notifications dropped because the queue stayed full",
		},
	)
)

func RecordNotification(outcome string) {
	NotificationsTotal.WithLabelValues(outcome).Inc()
}

// RecordIngest records one ingestion result and its latency.
func RecordIngest(result string, elapsed time.Duration) {
	IngestTotal.WithLabelValues(result).Inc()
	IngestDuration.Observe(elapsed.Seconds())
}

func RecordFetch(call, status string) {
	FetchTotal.WithLabelValues(call, status).Inc()
}

func RecordRenewal(status string) {
	RenewalsTotal.WithLabelValues(status).Inc()
}

// SetSubscriptionStates replaces the per-state gauge values.
func SetSubscriptionStates(counts map[string]int) {
	SubscriptionsByState.Reset()
	for state, n := range counts {
		SubscriptionsByState.WithLabelValues(state).Set(float64(n))
	}
}

func RecordBackfillVideo(result string) {
	BackfillVideosTotal.WithLabelValues(result).Inc()
}

func RecordQueueDrop() {
	QueueDropsTotal.Inc()
}
