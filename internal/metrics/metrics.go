package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ExtractAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "weibo",
			Name:      "extract_attempts_total",
			Help:      "Extraction attempts per account",
		},
		[]string{"account", "result"}, // "ok", "transient", "structural"
	)

	ExtractDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "weibo",
			Name:      "extract_duration_seconds",
			Help:      "Time to obtain one snapshot including retries",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34m
		},
		[]string{"account"},
	)

	PostsAdmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "weibo",
			Name:      "posts_admitted_total",
			Help:      "Posts admitted by the dedup store",
		},
		[]string{"account"},
	)

	PostsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "weibo",
			Name:      "posts_skipped_total",
			Help:      "Posts already seen or without a usable id",
		},
		[]string{"account"},
	)

	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "weibo",
			Name:      "deliveries_total",
			Help:      "Sink sends by variant and outcome",
		},
		[]string{"variant", "status"},
	)

	MediaPrepared = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "weibo",
			Name:      "media_prepared_total",
			Help:      "Image pipeline results",
		},
		[]string{"status"},
	)

	SeenCleaned = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "weibo",
			Name:      "seen_cleaned_total",
			Help:      "Dedup records removed by retention cleanup",
		},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}
