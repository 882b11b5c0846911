// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formaciones_http_requests_total",
		Help: "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "formaciones_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	Registrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formaciones_registrations_total",
		Help: "Registration attempts by outcome",
	}, []string{"outcome"})

	ProviderCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formaciones_provider_calls_total",
		Help: "Outbound calls to third-party providers by operation and status",
	}, []string{"provider", "operation", "status"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formaciones_notifications_total",
		Help: "Confirmation email outcomes",
	}, []string{"status"})
)

// ObserveProviderCall counts one outbound call. A zero status means a transport error.
func ObserveProviderCall(provider, operation string, status int) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	ProviderCalls.WithLabelValues(provider, operation, label).Inc()
}
