package api

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// apiRequestsTotal and apiLatencySeconds mirror the metric names the
// original_source/feature-processor/api.py Flask API published, so
// dashboards built against that surface keep working against this one.
var (
	apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "api_requests_total",
		Help: "Total feature-api requests by endpoint, method and status.",
	}, []string{"endpoint", "method", "status"})

	apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "api_latency_seconds",
		Help:    "feature-api request latency by endpoint.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)

// registerMetrics registers this package's collectors. Safe to call once
// per process; a second registration against the same registerer panics,
// matching prometheus.MustRegister's own contract.
func registerMetrics(registerer prometheus.Registerer) {
	registerer.MustRegister(apiRequestsTotal, apiLatencySeconds)
}

func metricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// prometheusTimer starts a latency observation for endpoint and returns a
// func that records it and the request's outcome when called.
func prometheusTimer(endpoint string) func(status int) {
	observed := prometheus.NewTimer(apiLatencySeconds.WithLabelValues(endpoint))
	return func(status int) {
		observed.ObserveDuration()
		apiRequestsTotal.WithLabelValues(endpoint, "GET", strconv.Itoa(status)).Inc()
	}
}
