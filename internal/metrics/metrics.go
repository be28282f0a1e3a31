package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kline"

// Metrics holds the downloader's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	tasksSubmitted  prometheus.Counter
	tasksCompleted  *prometheus.CounterVec
	pagesFetched    *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
	backoffSeconds  prometheus.Histogram
	rowsWritten     *prometheus.CounterVec
	sinkFailures    *prometheus.CounterVec
	gapsDetected    *prometheus.CounterVec
	queueDepth      prometheus.Gauge
	unroutedPending prometheus.Gauge
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tasksSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_submitted_total",
			Help:      "Total number of fetch tasks submitted",
		}),
		tasksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_completed_total",
			Help:      "Fetch tasks by terminal outcome",
		}, []string{"outcome"}),
		pagesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Kline pages received from the exchange",
		}, []string{"symbol"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Rate limit responses by backoff tier",
		}, []string{"tier"}),
		backoffSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backoff_seconds",
			Help:      "Backoff sleeps taken after rate limiting",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 13),
		}),
		rowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Kline rows persisted per sink",
		}, []string{"sink"}),
		sinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_failures_total",
			Help:      "Failed sink writes",
		}, []string{"sink"}),
		gapsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gaps_detected_total",
			Help:      "Missing bar runs found inside fetched batches",
		}, []string{"symbol"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Tasks waiting for a worker",
		}),
		unroutedPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unrouted_pending",
			Help:      "Tasks waiting in the result channel",
		}),
	}
	m.registry.MustRegister(
		m.tasksSubmitted, m.tasksCompleted, m.pagesFetched, m.rateLimited, m.backoffSeconds,
		m.rowsWritten, m.sinkFailures, m.gapsDetected, m.queueDepth, m.unroutedPending,
	)
	return m
}

// Registry exposes the registry for tests and custom handlers.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) TaskSubmitted() {
	if m == nil {
		return
	}
	m.tasksSubmitted.Inc()
}

func (m *Metrics) TaskCompleted(outcome string) {
	if m == nil {
		return
	}
	m.tasksCompleted.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PageFetched(symbol string) {
	if m == nil {
		return
	}
	m.pagesFetched.WithLabelValues(symbol).Inc()
}

func (m *Metrics) RateLimited(tier string, sleep time.Duration) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(tier).Inc()
	m.backoffSeconds.Observe(sleep.Seconds())
}

func (m *Metrics) RowsWritten(sink string, n int) {
	if m == nil {
		return
	}
	m.rowsWritten.WithLabelValues(sink).Add(float64(n))
}

func (m *Metrics) SinkFailed(sink string) {
	if m == nil {
		return
	}
	m.sinkFailures.WithLabelValues(sink).Inc()
}

func (m *Metrics) GapsDetected(symbol string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.gapsDetected.WithLabelValues(symbol).Add(float64(n))
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) SetUnrouted(n int) {
	if m == nil {
		return
	}
	m.unroutedPending.Set(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
