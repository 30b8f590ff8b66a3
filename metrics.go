package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricObjectCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wssync_objects_total",
		Help: "How many objects a sync pass handled, partitioned by job and action (written, skipped-unchanged, failed, pending)",
	}, []string{"job", "action"})

	metricSyncDuration = prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Name: "wssync_sync_duration_seconds",
		Help: "Summary of sync pass durations",
	}, []string{"job", "status"})

	metricBackupCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wssync_backup_total",
		Help: "How many backups completed, partitioned by state (success, error, noop)",
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(metricObjectCount)
	prometheus.MustRegister(metricSyncDuration)
	prometheus.MustRegister(metricBackupCount)
}

func observeSync(job string, resultMap *ResultMap, duration time.Duration, runErr error) {
	summary := resultMap.Summary()
	metricObjectCount.WithLabelValues(job, string(ActionWritten)).Add(float64(summary.Written))
	metricObjectCount.WithLabelValues(job, string(ActionSkipped)).Add(float64(summary.Skipped))
	metricObjectCount.WithLabelValues(job, string(ActionFailed)).Add(float64(summary.Failed))
	metricObjectCount.WithLabelValues(job, string(ActionPending)).Add(float64(summary.Pending))

	status := "success"
	if runErr != nil || summary.HasFailures() {
		status = "error"
	}
	metricSyncDuration.WithLabelValues(job, status).Observe(duration.Seconds())
}
