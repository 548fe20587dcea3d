// Package metrics defines the prometheus collectors shared across the
// service and the API client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API client metrics
var (
	// TokenRefreshesTotal tracks credential refreshes by result
	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apiclient_token_refreshes_total",
			Help: "Total credential refreshes performed by the API client, by result",
		},
		[]string{"result"},
	)

	// AuthRetriesTotal tracks requests re-sent after a 401-triggered refresh
	AuthRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "apiclient_auth_retries_total",
			Help: "Total requests re-sent once after a credential refresh",
		},
	)
)

// HTTP server metrics
var (
	// TokenGrantsTotal tracks refresh-grant outcomes on the auth endpoint
	TokenGrantsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_token_grants_total",
			Help: "Total refresh-token grants served, by result",
		},
		[]string{"result"},
	)

	// HTTPRequestDuration tracks request latency by route and method
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "route"},
	)

	// HTTPRequestsTotal tracks requests by route, method, and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		},
		[]string{"method", "route", "status"},
	)
)

// Storage metrics
var (
	// StorageOpsTotal tracks repository operations by backend, operation, and status
	StorageOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_operations_total",
			Help: "Total repository operations by backend, operation, and status",
		},
		[]string{"backend", "operation", "status"},
	)
)
