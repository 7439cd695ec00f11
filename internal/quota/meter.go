// Gatehouse - Multi-Tenant SaaS API Gateway
// Copyright 2026 Gatehouse Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatehouse-io/gatehouse

// Package quota meters metered actions against calendar-month plan limits.
//
// Periods are UTC calendar months regardless of the subscription's billing
// anchor; the simplification keeps period keys derivable from the clock
// alone. Usage is committed only after the handler succeeds, so a rejected
// or failed request never consumes quota.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gatehouse-io/gatehouse/internal/apierr"
	"github.com/gatehouse-io/gatehouse/internal/models"
	"github.com/gatehouse-io/gatehouse/internal/store"
)

// PeriodStart returns the UTC start of the calendar month containing t.
func PeriodStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// PeriodEnd returns the UTC start of the following calendar month.
func PeriodEnd(t time.Time) time.Time {
	return PeriodStart(t).AddDate(0, 1, 0)
}

// Meter reads and advances usage counters against the effective plan's
// quota policy.
type Meter struct {
	counters store.CounterStore
	logger   zerolog.Logger
	now      func() time.Time
}

// NewMeter creates a quota meter on the given counter store.
func NewMeter(counters store.CounterStore, logger zerolog.Logger) *Meter {
	return &Meter{
		counters: counters,
		logger:   logger.With().Str("component", "quota").Logger(),
		now:      time.Now,
	}
}

// Check returns the tenant's position against the plan's limit for a
// metric without modifying anything. Metrics absent from the plan's quota
// policy are unlimited: Limit and Remaining stay nil.
func (m *Meter) Check(ctx context.Context, tenantID, metric string, plan *models.EffectivePlan) (*models.QuotaStatus, error) {
	now := m.now()
	used, err := m.counters.GetUsage(ctx, tenantID, metric, PeriodStart(now))
	if err != nil {
		return nil, fmt.Errorf("read usage counter: %w", err)
	}

	status := &models.QuotaStatus{
		Metric:    metric,
		Used:      used,
		PeriodEnd: PeriodEnd(now),
	}
	if limit := plan.QuotaLimit(metric); limit != nil {
		remaining := *limit - used
		if remaining < 0 {
			remaining = 0
		}
		status.Limit = limit
		status.Remaining = &remaining
	}
	return status, nil
}

// Enforce rejects the request when the metric is at or over its limit. A
// counter-store failure is a 500: quota checks fail closed rather than
// waving metered traffic through.
func (m *Meter) Enforce(ctx context.Context, tenantID, metric string, plan *models.EffectivePlan) (*models.QuotaStatus, error) {
	status, err := m.Check(ctx, tenantID, metric, plan)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	if status.Exceeded() {
		return status, apierr.QuotaExceeded(fmt.Sprintf(
			"monthly %s quota of %d exhausted for the current billing period", metric, *status.Limit))
	}
	return status, nil
}

// Commit records consumed usage after the handler succeeded. The increment
// is atomic in the store; the period row is created lazily. Failures are
// logged but do not fail the already-successful request.
func (m *Meter) Commit(ctx context.Context, tenantID, metric string, delta int64) {
	if delta <= 0 {
		return
	}
	total, err := m.counters.IncrUsage(ctx, tenantID, metric, PeriodStart(m.now()), delta)
	if err != nil {
		m.logger.Error().Err(err).
			Str("tenant_id", tenantID).
			Str("metric", metric).
			Int64("delta", delta).
			Msg("usage commit failed, tenant under-billed for this request")
		return
	}
	m.logger.Debug().
		Str("tenant_id", tenantID).
		Str("metric", metric).
		Int64("total", total).
		Msg("usage committed")
}
