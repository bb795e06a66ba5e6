package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(applyAttempts, applyDuration, rateLimited, queueEnqueued, openPages)
}

var (
	applyAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobpilot_apply_attempts_total",
			Help: "Apply attempts by platform and outcome (applied/retry/failed/skipped/rate_limited/deferred).",
		},
		[]string{"platform", "outcome"},
	)

	applyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobpilot_apply_duration_seconds",
			Help:    "Browser automation time per apply attempt.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		},
		[]string{"platform", "success"},
	)

	rateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobpilot_rate_limited_total",
			Help: "Apply attempts rescheduled by the platform rate limiter.",
		},
		[]string{"platform"},
	)

	queueEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobpilot_queue_enqueued_total",
			Help: "Queue items created, by platform and source (match/manual).",
		},
		[]string{"platform", "source"},
	)

	openPages = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobpilot_browser_open_pages",
			Help: "Browser pages currently held by apply attempts.",
		},
	)
)

func ObserveApply(platform, outcome string) {
	applyAttempts.WithLabelValues(norm(platform), outcome).Inc()
}

func ObserveApplyDuration(platform string, d time.Duration, success bool) {
	s := "false"
	if success {
		s = "true"
	}
	applyDuration.WithLabelValues(norm(platform), s).Observe(d.Seconds())
}

func IncRateLimited(platform string) {
	rateLimited.WithLabelValues(norm(platform)).Inc()
}

func IncEnqueued(platform, source string) {
	queueEnqueued.WithLabelValues(norm(platform), source).Inc()
}

func SetOpenPages(n int64) {
	openPages.Set(float64(n))
}
