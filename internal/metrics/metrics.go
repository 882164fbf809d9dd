package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "idxrun",
			Name:      "runs_total",
			Help:      "Completed runs by result (success or failure).",
		}, []string{"result"},
	)
	rejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "idxrun",
			Name:      "rejected_total",
			Help:      "Run attempts rejected because the lock was held.",
		},
	)
	archiveFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "idxrun",
			Name:      "archive_failures_total",
			Help:      "Runs whose log could not be archived.",
		},
	)
	runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "idxrun",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of completed runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		},
	)
	lastRunUnixtime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "idxrun",
			Name:      "last_run_unixtime",
			Help:      "Unix time when the last run finished.",
		},
	)
	lastExitCode = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "idxrun",
			Name:      "last_exit_code",
			Help:      "Exit code of the last completed run.",
		},
	)
	reposUpdated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "idxrun",
			Name:      "repos_updated_total",
			Help:      "Repositories updated or cloned by the updater.",
		},
	)
	reposFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "idxrun",
			Name:      "repos_failed_total",
			Help:      "Repositories the updater failed to refresh.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{runsTotal, rejectedTotal, archiveFailures, runDuration, lastRunUnixtime, lastExitCode, reposUpdated, reposFailed}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func RecordRun(exitCode int, seconds float64, finishedUnix int64) {
	if !regOK.Load() {
		return
	}
	result := "success"
	if exitCode != 0 {
		result = "failure"
	}
	runsTotal.WithLabelValues(result).Inc()
	runDuration.Observe(seconds)
	lastRunUnixtime.Set(float64(finishedUnix))
	lastExitCode.Set(float64(exitCode))
}

func IncRejected() {
	if regOK.Load() {
		rejectedTotal.Inc()
	}
}

func IncArchiveFailure() {
	if regOK.Load() {
		archiveFailures.Inc()
	}
}

func AddReposUpdated(n int) {
	if regOK.Load() {
		reposUpdated.Add(float64(n))
	}
}

func AddReposFailed(n int) {
	if regOK.Load() {
		reposFailed.Add(float64(n))
	}
}
