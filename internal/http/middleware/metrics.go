// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file exposes Prometheus instrumentation for HTTP traffic plus the
// domain counters the poll dashboards graph (votes cast, polls created,
// live subscribers). HTTP labels are kept low-cardinality: method, the
// registered Gin route (not the raw URL), and the numeric status code.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// httpReqs counts requests by method, route path, and status code.
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	// httpLat records request duration in seconds by method and route path.
	// Status is omitted to keep histogram cardinality down.
	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// httpInflight gauges the number of in-flight requests.
	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// VotesCast counts accepted vote submissions.
	VotesCast = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "voting_votes_cast_total",
			Help: "Total number of votes accepted.",
		},
	)

	// PollsCreated counts successful poll creations.
	PollsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "voting_polls_created_total",
			Help: "Total number of polls created.",
		},
	)

	// LiveSubscribers gauges currently connected live-update subscribers.
	LiveSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "voting_live_subscribers",
			Help: "Currently connected WebSocket subscribers.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, VotesCast, PollsCreated, LiveSubscribers)
}

// Metrics returns a Gin middleware that instruments requests with
// Prometheus: http_requests_total(method, path, status),
// http_request_duration_seconds(method, path), and the in-flight gauge.
// The path label uses c.FullPath() and falls back to the raw URL path when
// no route matched.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		httpReqs.WithLabelValues(method, path, status).Inc()
		httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
