// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	// OTPOutcomesTotal counts controller results by operation (send, verify, resend) and status.
	OTPOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phone_otp_outcomes_total",
			Help: "Phone OTP outcomes by operation and status",
		},
		[]string{"operation", "status"},
	)

	GatewayCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "phone_gateway_call_duration_seconds",
			Help:    "Duration of verification gateway calls",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"operation", "result"},
	)

	RateLimitExceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_exceeded_total",
			Help: "Total number of requests rejected by the request throttle",
		},
		[]string{"scope"},
	)
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
