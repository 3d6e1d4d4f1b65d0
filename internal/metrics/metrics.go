package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fibermap"

// Metrics exposes application metrics that are safe to scrape via Prometheus.
type Metrics struct {
	registry            *prometheus.Registry
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	routeRequests       *prometheus.CounterVec
	graphBuildDuration  prometheus.Histogram
	snapFailures        prometheus.Counter
	trafficPollRuns     *prometheus.CounterVec
	trafficPollDuration prometheus.Histogram
}

// New creates a fresh Metrics registry with HTTP, routing and poller metrics registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests processed by core-go",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served by core-go",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	routeRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fiber_route_requests_total",
		Help:      "Locator operations by outcome",
	}, []string{"op", "outcome"})

	graphBuildDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "graph_build_duration_seconds",
		Help:      "Time spent building the per-request fiber graph",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})

	snapFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snap_failures_total",
		Help:      "Coordinates that could not be snapped within tolerance",
	})

	trafficPollRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "traffic_poll_runs_total",
		Help:      "Traffic poll cycles by result",
	}, []string{"result"})

	trafficPollDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "traffic_poll_duration_seconds",
		Help:      "Duration of one traffic poll cycle",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		routeRequests,
		graphBuildDuration,
		snapFailures,
		trafficPollRuns,
		trafficPollDuration,
	)

	return &Metrics{
		registry:            registry,
		httpRequests:        httpRequests,
		httpRequestDuration: httpRequestDuration,
		routeRequests:       routeRequests,
		graphBuildDuration:  graphBuildDuration,
		snapFailures:        snapFailures,
		trafficPollRuns:     trafficPollRuns,
		trafficPollDuration: trafficPollDuration,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// IncRouteRequest counts one locator operation (nearest, options, route).
func (m *Metrics) IncRouteRequest(op, outcome string) {
	if m == nil {
		return
	}
	m.routeRequests.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) ObserveGraphBuild(duration time.Duration) {
	if m == nil {
		return
	}
	m.graphBuildDuration.Observe(duration.Seconds())
}

func (m *Metrics) IncSnapFailure() {
	if m == nil {
		return
	}
	m.snapFailures.Inc()
}

// ObserveTrafficPoll records a finished poll cycle; result is "ok" or "error".
func (m *Metrics) ObserveTrafficPoll(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.trafficPollRuns.WithLabelValues(result).Inc()
	m.trafficPollDuration.Observe(duration.Seconds())
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
