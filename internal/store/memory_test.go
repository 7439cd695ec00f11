// Gatehouse - Multi-Tenant SaaS API Gateway
// Copyright 2026 Gatehouse Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatehouse-io/gatehouse

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-io/gatehouse/internal/models"
)

func TestMemory_BillableSubscription(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.AddPlan(models.Plan{ID: "plan-pro", Slug: "pro", Name: "Pro"})

	// No subscription resolves to (nil, nil, nil).
	sub, plan, err := m.BillableSubscription(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Nil(t, sub)
	assert.Nil(t, plan)

	m.AddSubscription(models.Subscription{
		ID: "sub-1", TenantID: "tenant-1", PlanID: "plan-pro",
		Status: models.SubscriptionActive,
	})
	sub, plan, err = m.BillableSubscription(ctx, "tenant-1")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, "pro", plan.Slug)

	// Canceled subscriptions do not resolve.
	m.AddSubscription(models.Subscription{
		ID: "sub-2", TenantID: "tenant-2", PlanID: "plan-pro",
		Status: models.SubscriptionCanceled,
	})
	sub, plan, err = m.BillableSubscription(ctx, "tenant-2")
	require.NoError(t, err)
	assert.Nil(t, sub)
	assert.Nil(t, plan)
}

func TestMemory_Memberships(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.AddMembership(models.TenantMembership{ID: "m1", TenantID: "t1", UserID: "u1", Role: models.RoleOwner})
	m.AddMembership(models.TenantMembership{ID: "m2", TenantID: "t2", UserID: "u1", Role: models.RoleMember})

	mems, err := m.MembershipsByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, mems, 2)
	assert.Equal(t, "t1", mems[0].TenantID)

	mems, err = m.MembershipsByUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, mems)
}

func TestMemory_Counters(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	window := time.Now().Truncate(time.Minute)

	n, err := m.IncrRateCounter(ctx, "t1", "GET /x", window)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = m.IncrRateCounter(ctx, "t1", "GET /x", window)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	period := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	n, err = m.IncrUsage(ctx, "t1", "generations", period, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	used, err := m.GetUsage(ctx, "t1", "generations", period)
	require.NoError(t, err)
	assert.Equal(t, int64(2), used)
}
