// Package metrics collects Prometheus metrics for the job pipeline and
// optionally exposes them over HTTP while a batch runs.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trvinh/fDOG/pkg/types"
)

var log = slog.Default()

// Collector owns the job lifecycle metrics. Each collector registers into
// its own registry, so tests and repeated batches never collide.
type Collector struct {
	registry *prometheus.Registry

	jobsStarted prometheus.Counter
	jobsOK      prometheus.Counter
	jobsSkipped prometheus.Counter
	jobsFailed  prometheus.Counter

	jobDuration  prometheus.Histogram
	jobsInFlight prometheus.Gauge

	toolFailures *prometheus.CounterVec
}

// NewCollector creates and registers the job metrics.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fdog_jobs_started_total",
			Help: "Total number of jobs handed to the dispatcher",
		}),
		jobsOK: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fdog_jobs_ok_total",
			Help: "Total number of jobs that produced output",
		}),
		jobsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fdog_jobs_skipped_total",
			Help: "Total number of jobs skipped because their output already existed",
		}),
		jobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fdog_jobs_failed_total",
			Help: "Total number of failed jobs",
		}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fdog_job_duration_seconds",
			Help:    "Wall-clock duration of completed jobs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		jobsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fdog_jobs_in_flight",
			Help: "Number of jobs currently running",
		}),
		toolFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fdog_tool_failures_total",
			Help: "Total number of external tool failures",
		}, []string{"tool"}),
	}

	c.registry.MustRegister(
		c.jobsStarted,
		c.jobsOK,
		c.jobsSkipped,
		c.jobsFailed,
		c.jobDuration,
		c.jobsInFlight,
		c.toolFailures,
	)
	return c
}

// JobStarted records a job entering the dispatcher.
func (c *Collector) JobStarted() {
	c.jobsStarted.Inc()
	c.jobsInFlight.Inc()
}

// JobFinished records a terminal job result.
func (c *Collector) JobFinished(r types.JobResult) {
	c.jobsInFlight.Dec()
	c.jobDuration.Observe(r.Duration.Seconds())
	switch r.Status {
	case types.StatusOK:
		c.jobsOK.Inc()
	case types.StatusSkipped:
		c.jobsSkipped.Inc()
	case types.StatusFailed:
		c.jobsFailed.Inc()
	}
}

// ToolFailure records one external tool failure.
func (c *Collector) ToolFailure(tool string) {
	c.toolFailures.WithLabelValues(tool).Inc()
}

// Handler returns the HTTP handler exposing this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// StartServer exposes /metrics on the given port in the background and
// returns the server so the caller can shut it down when the batch ends.
func (c *Collector) StartServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		log.Info("Metrics server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server failed", "error", err)
		}
	}()
	return srv
}

// StopServer shuts the metrics server down, waiting briefly for in-flight
// scrapes.
func StopServer(srv *http.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("Metrics server shutdown", "error", err)
	}
}
