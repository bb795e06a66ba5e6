package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(sweepRuns, sweepDuration, listingsScraped, scrapeErrors, cleanupDeleted)
}

var (
	sweepRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobpilot_sweep_runs_total",
			Help: "Scheduled sweep runs by sweep and result (ok/error/locked).",
		},
		[]string{"sweep", "result"},
	)

	sweepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobpilot_sweep_duration_seconds",
			Help:    "Wall time of scheduled sweeps.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
		[]string{"sweep"},
	)

	listingsScraped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobpilot_listings_scraped_total",
			Help: "Normalized listings produced by platform adapters.",
		},
		[]string{"platform"},
	)

	scrapeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobpilot_scrape_errors_total",
			Help: "Failed platform searches.",
		},
		[]string{"platform"},
	)

	cleanupDeleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobpilot_cleanup_rows_total",
			Help: "Rows removed or deactivated by the cleanup sweep.",
		},
		[]string{"table", "action"},
	)
)

func ObserveSweep(sweep, result string, d time.Duration) {
	sweepRuns.WithLabelValues(sweep, result).Inc()
	if result != "locked" {
		sweepDuration.WithLabelValues(sweep).Observe(d.Seconds())
	}
}

func AddScraped(platform string, n int) {
	listingsScraped.WithLabelValues(norm(platform)).Add(float64(n))
}

func IncScrapeError(platform string) {
	scrapeErrors.WithLabelValues(norm(platform)).Inc()
}

func AddCleanup(table, action string, n int64) {
	cleanupDeleted.WithLabelValues(table, action).Add(float64(n))
}
