// Gatehouse - Multi-Tenant SaaS API Gateway
// Copyright 2026 Gatehouse Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatehouse-io/gatehouse

package entitlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-io/gatehouse/internal/apierr"
	"github.com/gatehouse-io/gatehouse/internal/cache"
	"github.com/gatehouse-io/gatehouse/internal/logging"
	"github.com/gatehouse-io/gatehouse/internal/models"
	"github.com/gatehouse-io/gatehouse/internal/store"
)

// flakySubs wraps a memory store and can be switched to fail.
type flakySubs struct {
	inner *store.Memory
	fail  bool
	calls int
}

func (f *flakySubs) BillableSubscription(ctx context.Context, tenantID string) (*models.Subscription, *models.Plan, error) {
	f.calls++
	if f.fail {
		return nil, nil, errors.New("connection refused")
	}
	return f.inner.BillableSubscription(ctx, tenantID)
}

var testActions = map[string]Tier{
	"generations.create": TierFree,
	"exports.create":     TierPro,
	"sso.configure":      TierEnterprise,
}

func newTestGate(subs store.SubscriptionStore, ttl time.Duration) *Gate {
	planCache := cache.NewLRU[*models.EffectivePlan](100, ttl)
	return NewGate(subs, planCache, testActions, logging.NewTestLogger(nil))
}

func seedPro(mem *store.Memory, tenantID string) {
	mem.AddPlan(models.Plan{
		ID: "plan-pro", Name: "Pro", Slug: "pro",
		QuotaPolicy: map[string]int64{"generations": 500},
	})
	mem.AddSubscription(models.Subscription{
		ID: "sub-1", TenantID: tenantID, PlanID: "plan-pro",
		Status: models.SubscriptionActive, PeriodEnd: time.Now().Add(30 * 24 * time.Hour),
	})
}

func TestEffectivePlan_NoSubscriptionIsFree(t *testing.T) {
	g := newTestGate(store.NewMemory(), time.Minute)

	plan := g.EffectivePlan(context.Background(), "tenant-1")
	assert.Equal(t, "free", plan.Slug)
	assert.Equal(t, int64(20), plan.QuotaPolicy["generations"])
}

func TestEffectivePlan_ResolvesSubscribedPlan(t *testing.T) {
	mem := store.NewMemory()
	seedPro(mem, "tenant-1")
	g := newTestGate(mem, time.Minute)

	plan := g.EffectivePlan(context.Background(), "tenant-1")
	assert.Equal(t, "pro", plan.Slug)
	assert.Equal(t, models.SubscriptionActive, plan.Status)
	assert.Equal(t, int64(500), plan.QuotaPolicy["generations"])
}

func TestEffectivePlan_CachedWithinTTL(t *testing.T) {
	subs := &flakySubs{inner: store.NewMemory()}
	g := newTestGate(subs, time.Minute)
	ctx := context.Background()

	first := g.EffectivePlan(ctx, "tenant-1")
	require.Equal(t, "free", first.Slug)
	require.Equal(t, 1, subs.calls)

	// Store goes down; the cached resolution keeps serving identically.
	subs.fail = true
	for i := 0; i < 5; i++ {
		plan := g.EffectivePlan(ctx, "tenant-1")
		assert.Equal(t, first.Slug, plan.Slug)
		assert.Equal(t, first.QuotaPolicy, plan.QuotaPolicy)
	}
	assert.Equal(t, 1, subs.calls, "cache must absorb repeat resolutions")
}

func TestEffectivePlan_StoreFailureFailsOpenToFree(t *testing.T) {
	subs := &flakySubs{inner: store.NewMemory(), fail: true}
	seedPro(subs.inner, "tenant-1")
	g := newTestGate(subs, time.Minute)

	plan := g.EffectivePlan(context.Background(), "tenant-1")
	assert.Equal(t, "free", plan.Slug, "store failure degrades to free tier, not an error")

	// Recovery is observed on the next resolution: the degraded result
	// was not cached.
	subs.fail = false
	plan = g.EffectivePlan(context.Background(), "tenant-1")
	assert.Equal(t, "pro", plan.Slug)
}

func TestRequire_TierGating(t *testing.T) {
	mem := store.NewMemory()
	mem.AddPlan(models.Plan{ID: "plan-basic", Name: "Basic", Slug: "basic"})
	mem.AddSubscription(models.Subscription{
		ID: "sub-1", TenantID: "tenant-1", PlanID: "plan-basic",
		Status: models.SubscriptionActive,
	})
	g := newTestGate(mem, time.Minute)
	ctx := context.Background()

	t.Run("at or above tier passes", func(t *testing.T) {
		_, err := g.Require(ctx, "tenant-1", "generations.create")
		assert.NoError(t, err)
	})

	t.Run("below tier is forbidden and names the required tier", func(t *testing.T) {
		_, err := g.Require(ctx, "tenant-1", "exports.create")
		require.Error(t, err)
		e := apierr.From(err)
		assert.Equal(t, apierr.KindForbidden, e.Kind)
		assert.Contains(t, e.Message, "pro")
	})

	t.Run("unmapped action is ungated", func(t *testing.T) {
		_, err := g.Require(ctx, "tenant-1", "profile.read")
		assert.NoError(t, err)
	})
}

func TestRequire_EntitlementOverrides(t *testing.T) {
	mem := store.NewMemory()
	mem.AddPlan(models.Plan{
		ID: "plan-custom", Name: "Custom", Slug: "basic",
		Entitlements: map[string]bool{
			"exports.create": true,  // granted below tier
			"sso.configure":  false, // explicitly disabled
		},
	})
	mem.AddSubscription(models.Subscription{
		ID: "sub-1", TenantID: "tenant-1", PlanID: "plan-custom",
		Status: models.SubscriptionActive,
	})
	g := newTestGate(mem, time.Minute)
	ctx := context.Background()

	_, err := g.Require(ctx, "tenant-1", "exports.create")
	assert.NoError(t, err, "explicit entitlement admits below the tier floor")

	_, err = g.Require(ctx, "tenant-1", "sso.configure")
	require.Error(t, err)
	assert.Contains(t, apierr.From(err).Message, "disabled")
}

func TestInvalidate(t *testing.T) {
	subs := &flakySubs{inner: store.NewMemory()}
	g := newTestGate(subs, time.Minute)
	ctx := context.Background()

	g.EffectivePlan(ctx, "tenant-1")
	require.Equal(t, 1, subs.calls)

	seedPro(subs.inner, "tenant-1")
	g.Invalidate("tenant-1")

	plan := g.EffectivePlan(ctx, "tenant-1")
	assert.Equal(t, "pro", plan.Slug)
	assert.Equal(t, 2, subs.calls)
}

func TestTierOf(t *testing.T) {
	assert.Equal(t, TierFree, TierOf("free"))
	assert.Equal(t, TierEnterprise, TierOf("enterprise"))
	assert.Equal(t, TierFree, TierOf("mystery-plan"), "unknown slugs fail closed to free")
	assert.True(t, TierBasic < TierPro && TierPro < TierAdvanced)
}
