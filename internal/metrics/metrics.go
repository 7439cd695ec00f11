// Gatehouse - Multi-Tenant SaaS API Gateway
// Copyright 2026 Gatehouse Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatehouse-io/gatehouse

// Package metrics registers the gateway's Prometheus collectors. All
// collectors are registered at init via promauto on the default registry
// and served on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts pipeline outcomes per route policy action.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatehouse",
		Name:      "requests_total",
		Help:      "Requests processed by the gateway pipeline.",
	}, []string{"action", "status"})

	// RequestDuration observes end-to-end pipeline latency.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gatehouse",
		Name:      "request_duration_seconds",
		Help:      "End-to-end request latency through the pipeline.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"action"})

	// AuthFailures counts credential rejections by authenticator.
	AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatehouse",
		Name:      "auth_failures_total",
		Help:      "Authentication failures by authenticator name.",
	}, []string{"authenticator"})

	// RateLimitRejections counts 429s per endpoint.
	RateLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatehouse",
		Name:      "rate_limit_rejections_total",
		Help:      "Requests rejected by the fixed-window rate limiter.",
	}, []string{"endpoint"})

	// QuotaRejections counts 402s per metric.
	QuotaRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatehouse",
		Name:      "quota_rejections_total",
		Help:      "Requests rejected by the calendar-month quota meter.",
	}, []string{"metric"})

	// IdempotentReplays counts responses served from the idempotency store.
	IdempotentReplays = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gatehouse",
		Name:      "idempotent_replays_total",
		Help:      "Responses replayed from stored idempotency records.",
	})

	// PlanResolutions counts entitlement plan lookups by source.
	PlanResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatehouse",
		Name:      "plan_resolutions_total",
		Help:      "Effective plan resolutions by source (cache, store, fallback).",
	}, []string{"source"})
)

// ObserveRequest records one completed request.
func ObserveRequest(action string, status int, elapsed time.Duration) {
	if action == "" {
		action = "unmapped"
	}
	RequestsTotal.WithLabelValues(action, strconv.Itoa(status)).Inc()
	RequestDuration.WithLabelValues(action).Observe(elapsed.Seconds())
}
