// Gatehouse - Multi-Tenant SaaS API Gateway
// Copyright 2026 Gatehouse Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatehouse-io/gatehouse

// Package ratelimit enforces per-principal fixed-window request limits
// backed by the counter store, so every gateway instance sees the same
// counts.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/apierr"
	"github.com/gatehouse-io/gatehouse/internal/store"
)

// Policy is a per-route rate limit: at most Max requests per Window.
type Policy struct {
	Max    int64
	Window time.Duration
}

// DefaultPolicy applies when a route declares rate limiting without
// numbers of its own.
var DefaultPolicy = Policy{Max: 60, Window: time.Minute}

// Result is the outcome of one admission check, carrying everything the
// response headers need.
type Result struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

// RetryAfter returns the time until the window resets, floored at one
// second so the header is never zero.
func (r Result) RetryAfter(now time.Time) time.Duration {
	d := r.ResetAt.Sub(now)
	if d < time.Second {
		return time.Second
	}
	return d
}

// PrincipalKey derives the counter key for a request. Tenant-scoped when a
// tenant is resolved, then user-scoped, then the client IP for anonymous
// traffic. All requests for one tenant share one budget regardless of which
// member sends them.
func PrincipalKey(tenantID, userID, remoteIP string) string {
	switch {
	case tenantID != "":
		return "tenant:" + tenantID
	case userID != "":
		return "user:" + userID
	default:
		return "ip:" + remoteIP
	}
}

// Limiter admits or rejects requests against fixed windows. Counting is a
// single atomic increment in the store, so concurrent requests over the
// limit cannot all slip through.
//
// Fixed windows allow up to 2x the nominal rate across a window boundary;
// that burst is accepted for the cheapness of one counter per window.
type Limiter struct {
	counters store.CounterStore
	now      func() time.Time
}

// NewLimiter creates a limiter on the given counter store.
func NewLimiter(counters store.CounterStore) *Limiter {
	return &Limiter{counters: counters, now: time.Now}
}

// Check increments the window counter and reports whether the request is
// admitted. Rejected requests still count: a client hammering a closed
// window keeps it closed. Store errors are returned as-is; this check
// fails closed.
func (l *Limiter) Check(ctx context.Context, principalKey, endpoint string, pol Policy) (Result, error) {
	if pol.Max <= 0 {
		pol.Max = DefaultPolicy.Max
	}
	if pol.Window <= 0 {
		pol.Window = DefaultPolicy.Window
	}

	now := l.now().UTC()
	windowStart := now.Truncate(pol.Window)

	count, err := l.counters.IncrRateCounter(ctx, principalKey, endpoint, windowStart)
	if err != nil {
		return Result{}, fmt.Errorf("increment rate counter: %w", err)
	}

	remaining := pol.Max - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= pol.Max,
		Limit:     pol.Max,
		Remaining: remaining,
		ResetAt:   windowStart.Add(pol.Window),
	}, nil
}

// Enforce runs Check and converts the outcome into the pipeline's error
// taxonomy: a 429 with a retry-after hint on rejection, a 500 when the
// counter store is unreachable.
func (l *Limiter) Enforce(ctx context.Context, principalKey, endpoint string, pol Policy) (Result, error) {
	res, err := l.Check(ctx, principalKey, endpoint, pol)
	if err != nil {
		return res, apierr.Internal(err)
	}
	if !res.Allowed {
		return res, apierr.RateLimited("rate limit exceeded, retry later", res.RetryAfter(l.now().UTC()))
	}
	return res, nil
}
