// Gatehouse - Multi-Tenant SaaS API Gateway
// Copyright 2026 Gatehouse Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatehouse-io/gatehouse

package entitlement

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/gatehouse-io/gatehouse/internal/apierr"
	"github.com/gatehouse-io/gatehouse/internal/cache"
	"github.com/gatehouse-io/gatehouse/internal/metrics"
	"github.com/gatehouse-io/gatehouse/internal/models"
	"github.com/gatehouse-io/gatehouse/internal/store"
)

// Gate resolves effective plans and enforces action entitlements.
//
// Plan resolution fails open: when the subscription store is unreachable
// the tenant proceeds under the conservative free-tier defaults instead of
// failing the request. A circuit breaker around the store call keeps a
// flapping store from adding latency to every request while the gate keeps
// serving free-tier plans.
//
// The plan cache is process-local and TTL-bounded; instances other than
// the one notified by a subscription webhook observe the old plan for up
// to the TTL. That staleness-for-availability tradeoff is deliberate.
type Gate struct {
	subs    store.SubscriptionStore
	cache   *cache.LRU[*models.EffectivePlan]
	breaker *gobreaker.CircuitBreaker[*models.EffectivePlan]

	// actions maps action keys to the minimum tier required. Actions not
	// present are ungated.
	actions map[string]Tier

	logger zerolog.Logger
}

// NewGate creates an entitlement gate. planCache is injected so the
// cross-instance staleness tradeoff stays explicit and swappable.
func NewGate(subs store.SubscriptionStore, planCache *cache.LRU[*models.EffectivePlan], actions map[string]Tier, logger zerolog.Logger) *Gate {
	breaker := gobreaker.NewCircuitBreaker[*models.EffectivePlan](gobreaker.Settings{
		Name:    "subscription-store",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Gate{
		subs:    subs,
		cache:   planCache,
		breaker: breaker,
		actions: actions,
		logger:  logger.With().Str("component", "entitlement").Logger(),
	}
}

// EffectivePlan resolves the tenant's plan via the cache. It never returns
// an error: store failures degrade to the free plan.
func (g *Gate) EffectivePlan(ctx context.Context, tenantID string) *models.EffectivePlan {
	if plan, ok := g.cache.Get(tenantID); ok {
		metrics.PlanResolutions.WithLabelValues("cache").Inc()
		return plan
	}

	plan, err := g.breaker.Execute(func() (*models.EffectivePlan, error) {
		return g.resolve(ctx, tenantID)
	})
	if err != nil {
		g.logger.Warn().Err(err).Str("tenant_id", tenantID).
			Msg("plan resolution failed, serving free-tier defaults")
		// Not cached: the next request retries the store once the
		// breaker permits.
		metrics.PlanResolutions.WithLabelValues("fallback").Inc()
		return FreePlan()
	}

	metrics.PlanResolutions.WithLabelValues("store").Inc()
	g.cache.Set(tenantID, plan)
	return plan
}

// resolve reads the tenant's billable subscription joined to its plan row.
func (g *Gate) resolve(ctx context.Context, tenantID string) (*models.EffectivePlan, error) {
	sub, plan, err := g.subs.BillableSubscription(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("read subscription: %w", err)
	}
	if sub == nil || plan == nil {
		return FreePlan(), nil
	}
	return effectivePlanFrom(sub, plan), nil
}

// Require checks that the tenant's plan permits the action. Actions absent
// from the action→tier map are ungated. An explicit entitlement flag on
// the plan wins in both directions: true admits below tier, false rejects
// at any tier.
func (g *Gate) Require(ctx context.Context, tenantID, action string) (*models.EffectivePlan, error) {
	plan := g.EffectivePlan(ctx, tenantID)

	required, gated := g.actions[action]
	if !gated {
		return plan, nil
	}

	if enabled, ok := plan.Entitlements[action]; ok {
		if enabled {
			return plan, nil
		}
		return nil, apierr.Forbidden(fmt.Sprintf("action %q is disabled for plan %q", action, plan.Slug))
	}

	if TierOf(plan.Slug) < required {
		return nil, apierr.Forbidden(fmt.Sprintf("action %q requires plan %q or higher, current plan is %q", action, required, plan.Slug))
	}
	return plan, nil
}

// Invalidate drops a tenant's cached plan. Called after subscription-state
// changes (e.g. by the billing webhook handler).
func (g *Gate) Invalidate(tenantID string) {
	g.cache.Delete(tenantID)
}
