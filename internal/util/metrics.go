package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HoldsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "holds_created_total",
		Help: "Total number of holds created",
	})

	HoldsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "holds_rejected_total",
		Help: "Total number of rejected hold attempts",
	}, []string{"reason"})

	HoldsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "holds_expired_total",
		Help: "Total number of holds expired by the sweep",
	})

	HoldsExtendedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "holds_extended_total",
		Help: "Total number of one-shot hold extensions granted",
	})

	HoldsCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "holds_cancelled_total",
		Help: "Total number of holds cancelled by agents",
	})

	HoldsConvertedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "holds_converted_total",
		Help: "Total number of holds converted into deals",
	})

	ConversionConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conversion_conflicts_total",
		Help: "Total number of conversion attempts that lost a race or hit an invalid hold",
	})

	DealTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deal_transitions_total",
		Help: "Total number of deal review-state transitions",
	}, []string{"to"})

	CommissionCreditsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commission_credits_total",
		Help: "Total number of commission credits issued",
	})

	CommissionCentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commission_cents_total",
		Help: "Total commission amount credited, in cents",
	})

	SweepLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hold_sweep_latency_seconds",
		Help:    "Latency of the stale-hold expiry sweep",
		Buckets: prometheus.DefBuckets,
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
