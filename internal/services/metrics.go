package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spotify_requests_total",
		Help: "Spotify Web API calls by operation and outcome.",
	}, []string{"operation", "outcome"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "spotify_request_duration_seconds",
		Help:    "Latency of Spotify Web API calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)

const (
	outcomeOK        = "ok"
	outcomeError     = "error"
	outcomeAuth      = "auth_required"
	outcomeRateLimit = "rate_limited"
)
