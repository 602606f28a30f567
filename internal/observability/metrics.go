// Package observability exposes the prometheus registry and the HTTP
// metrics middleware.
package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
)

type Metrics struct {
	Registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	raterCalls   *prometheus.CounterVec
	raterLatency *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trunkgate_http_requests_total",
			Help: "HTTP requests by route, method, and status.",
		}, []string{"route", "method", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trunkgate_http_request_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		raterCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trunkgate_rater_calls_total",
			Help: "Rater JSON-RPC calls by method and outcome.",
		}, []string{"method", "outcome"}),
		raterLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trunkgate_rater_call_seconds",
			Help:    "Rater JSON-RPC call latency by method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
	reg.MustRegister(m.httpRequests, m.httpLatency, m.raterCalls, m.raterLatency)
	return m
}

// GinMiddleware records one sample per request.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// ObserveRaterCall records one Rater round trip.
func (m *Metrics) ObserveRaterCall(method, outcome string, took time.Duration) {
	m.raterCalls.WithLabelValues(method, outcome).Inc()
	m.raterLatency.WithLabelValues(method).Observe(took.Seconds())
}

var Module = fx.Module("observability",
	fx.Provide(New),
)
