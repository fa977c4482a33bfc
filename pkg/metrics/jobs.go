package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Jobs records runs of the scheduled maintenance jobs.
type Jobs struct {
	duration   *prometheus.HistogramVec
	runs       *prometheus.CounterVec
	mismatches prometheus.Counter
	pruned     prometheus.Counter
}

// NewJobs registers the maintenance job metrics on the provided registerer.
func NewJobs(reg prometheus.Registerer) *Jobs {
	if reg == nil {
		return &Jobs{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "maintenance_job_duration_seconds",
		Help:    "Duration of maintenance jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maintenance_job_runs_total",
		Help: "Maintenance job runs, by job and outcome.",
	}, []string{"job", "outcome"})
	mismatches := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_replay_mismatches_total",
		Help: "Users whose stored balances disagree with a ledger replay.",
	})
	pruned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notifications_pruned_total",
		Help: "Read notifications deleted by the retention job.",
	})
	reg.MustRegister(duration, runs, mismatches, pruned)
	return &Jobs{duration: duration, runs: runs, mismatches: mismatches, pruned: pruned}
}

// JobRun records one finished job.
func (j *Jobs) JobRun(job string, duration time.Duration, ok bool) {
	if j == nil || j.runs == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	j.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
	j.runs.WithLabelValues(normalizeLabel(job), outcome).Inc()
}

// LedgerMismatch counts a user whose replay disagreed with stored balances.
func (j *Jobs) LedgerMismatch() {
	if j == nil || j.mismatches == nil {
		return
	}
	j.mismatches.Inc()
}

// NotificationsPruned adds rows removed by the notification cleanup job.
func (j *Jobs) NotificationsPruned(n int64) {
	if j == nil || j.pruned == nil || n <= 0 {
		return
	}
	j.pruned.Add(float64(n))
}
