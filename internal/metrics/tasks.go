package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(tasksCompleted, taskDuration, taskQueueDepth)
}

var (
	tasksCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobpilot_background_tasks_total",
			Help: "Background tasks finished by type and final status.",
		},
		[]string{"type", "status"},
	)

	taskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobpilot_background_task_duration_seconds",
			Help:    "Time spent executing background tasks.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 16),
		},
		[]string{"type"},
	)

	taskQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobpilot_background_queue_depth",
			Help: "Tasks accepted but not yet picked up by a worker.",
		},
	)
)

func ObserveTask(taskType, status string, d time.Duration) {
	tasksCompleted.WithLabelValues(taskType, status).Inc()
	taskDuration.WithLabelValues(taskType).Observe(d.Seconds())
}

func SetTaskQueueDepth(n int) {
	taskQueueDepth.Set(float64(n))
}
