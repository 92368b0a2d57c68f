// Package metrics exposes Prometheus collectors for the workherald service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsTotal              *prometheus.CounterVec
	notificationsTotal     *prometheus.CounterVec
	probeFetchesTotal      prometheus.Counter
	rendersTotal           prometheus.Counter
	renderDurationSeconds  prometheus.Histogram
	browserRecyclesTotal   *prometheus.CounterVec
	extractWarningsTotal   prometheus.Counter
	reclaimedJobsTotal     prometheus.Counter
	dispatchTickDurationMs prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workherald_jobs_total",
				Help: "Total number of jobs reaching a terminal state, labeled by state.",
			},
			[]string{"state"},
		)

		notificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workherald_notifications_total",
				Help: "Total notifications delivered, labeled by kind (rejection, completion, stuck).",
			},
			[]string{"kind"},
		)

		probeFetchesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "workherald_probe_fetches_total",
				Help: "Total static probe fetches attempted.",
			},
		)

		rendersTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "workherald_renders_total",
				Help: "Total browser renders performed.",
			},
		)

		renderDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "workherald_render_duration_seconds",
				Help:    "Histogram of browser render latencies.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 45},
			},
		)

		browserRecyclesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workherald_browser_recycles_total",
				Help: "Browser session replacements, labeled by cause (ceiling, probe, dead, launch).",
			},
			[]string{"cause"},
		)

		extractWarningsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "workherald_extract_warnings_total",
				Help: "Structural anomalies recorded by the extractor.",
			},
		)

		reclaimedJobsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "workherald_reclaimed_jobs_total",
				Help: "Jobs forced to error by the stuck-job reclamation pass.",
			},
		)

		dispatchTickDurationMs = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "workherald_dispatch_tick_duration_ms",
				Help:    "Histogram of full dispatcher tick durations in milliseconds.",
				Buckets: []float64{10, 50, 100, 500, 1000, 5000, 15000},
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob increments the terminal-state job counter.
func ObserveJob(state string) {
	jobsTotal.WithLabelValues(state).Inc()
}

// ObserveNotification increments the notification counter for the given kind.
func ObserveNotification(kind string) {
	notificationsTotal.WithLabelValues(kind).Inc()
}

// ObserveProbeFetch counts a static probe fetch.
func ObserveProbeFetch() {
	probeFetchesTotal.Inc()
}

// ObserveRender counts a browser render and records its duration.
func ObserveRender(duration time.Duration) {
	rendersTotal.Inc()
	renderDurationSeconds.Observe(duration.Seconds())
}

// ObserveBrowserRecycle counts a browser replacement by cause.
func ObserveBrowserRecycle(cause string) {
	browserRecyclesTotal.WithLabelValues(cause).Inc()
}

// ObserveExtractWarnings adds the number of warnings one extraction produced.
func ObserveExtractWarnings(n int) {
	if n > 0 {
		extractWarningsTotal.Add(float64(n))
	}
}

// ObserveReclaimed adds the number of jobs reclaimed in one pass.
func ObserveReclaimed(n int64) {
	if n > 0 {
		reclaimedJobsTotal.Add(float64(n))
	}
}

// ObserveTick records the duration of one full dispatcher tick.
func ObserveTick(duration time.Duration) {
	dispatchTickDurationMs.Observe(float64(duration.Milliseconds()))
}
