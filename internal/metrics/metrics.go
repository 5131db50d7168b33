// Package metrics exposes Prometheus metrics for graph builds, upstream
// requests and the HTTP API.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vouchgraph/internal/adapter"
	"vouchgraph/internal/domain"
)

// Fetch results
const (
	ResultOK          = "ok"
	ResultError       = "error"
	ResultRateLimited = "rate_limited"
)

// Collector holds all Prometheus metrics for the application
type Collector struct {
	registry *prometheus.Registry

	Fetches       *prometheus.CounterVec
	BuildDuration prometheus.Histogram
	Upstream      *prometheus.CounterVec
	GraphNodes    prometheus.Gauge
	GraphLinks    prometheus.Gauge

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewCollector creates a collector on its own registry
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		Fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetches_total",
				Help:      "Graph builds by result",
			},
			[]string{"result"},
		),
		BuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "graph_build_duration_seconds",
				Help:      "Time to fetch and assemble the vouch graph",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		Upstream: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Requests to remote APIs by status code",
			},
			[]string{"api", "status"},
		),
		GraphNodes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "graph_nodes",
				Help:      "Nodes in the last built graph",
			},
		),
		GraphLinks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "graph_links",
				Help:      "Links in the last built graph",
			},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	registry.MustRegister(
		c.Fetches,
		c.BuildDuration,
		c.Upstream,
		c.GraphNodes,
		c.GraphLinks,
		c.HTTPRequests,
		c.HTTPDuration,
	)

	return c
}

// Registry returns the Prometheus registry for this collector
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveUpstream counts one upstream request. Status 0 means the request
// never got a response.
func (c *Collector) ObserveUpstream(api string, status int) {
	c.Upstream.WithLabelValues(api, strconv.Itoa(status)).Inc()
}

// ObserveBuild records a graph build attempt
func (c *Collector) ObserveBuild(elapsed time.Duration, g domain.GraphData, err error) {
	c.BuildDuration.Observe(elapsed.Seconds())

	var rl *adapter.RateLimitError
	switch {
	case errors.As(err, &rl):
		c.Fetches.WithLabelValues(ResultRateLimited).Inc()
	case err != nil:
		c.Fetches.WithLabelValues(ResultError).Inc()
	default:
		c.Fetches.WithLabelValues(ResultOK).Inc()
		c.GraphNodes.Set(float64(len(g.Nodes)))
		c.GraphLinks.Set(float64(len(g.Links)))
	}
}

// Middleware counts HTTP requests by chi route pattern
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		c.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		c.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
