// Gatehouse - Multi-Tenant SaaS API Gateway
// Copyright 2026 Gatehouse Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatehouse-io/gatehouse

package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-io/gatehouse/internal/apierr"
	"github.com/gatehouse-io/gatehouse/internal/store"
)

type failingCounters struct{ store.CounterStore }

func (failingCounters) IncrRateCounter(ctx context.Context, principalKey, endpoint string, windowStart time.Time) (int64, error) {
	return 0, errors.New("store down")
}

func newTestLimiter(at time.Time) (*Limiter, *time.Time) {
	clock := at
	l := NewLimiter(store.NewMemory())
	l.now = func() time.Time { return clock }
	return l, &clock
}

func TestCheck_AdmitsUpToLimit(t *testing.T) {
	l, _ := newTestLimiter(time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC))
	pol := Policy{Max: 3, Window: time.Minute}
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		res, err := l.Check(ctx, "tenant:t1", "POST /v1/generations", pol)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, int64(3), res.Limit)
		assert.Equal(t, 3-i, res.Remaining)
	}

	res, err := l.Check(ctx, "tenant:t1", "POST /v1/generations", pol)
	require.NoError(t, err)
	assert.False(t, res.Allowed, "request N+1 is rejected")
	assert.Equal(t, int64(0), res.Remaining)
}

func TestCheck_WindowReset(t *testing.T) {
	l, clock := newTestLimiter(time.Date(2026, 3, 1, 12, 0, 59, 0, time.UTC))
	pol := Policy{Max: 1, Window: time.Minute}
	ctx := context.Background()

	res, err := l.Check(ctx, "tenant:t1", "ep", pol)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC), res.ResetAt)

	res, err = l.Check(ctx, "tenant:t1", "ep", pol)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	// One second later a new window opens with a fresh counter.
	*clock = clock.Add(time.Second)
	res, err = l.Check(ctx, "tenant:t1", "ep", pol)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestCheck_KeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	pol := Policy{Max: 1, Window: time.Minute}
	ctx := context.Background()

	res, err := l.Check(ctx, "tenant:t1", "ep", pol)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = l.Check(ctx, "tenant:t1", "ep", pol)
	require.NoError(t, err)
	assert.False(t, res.Allowed, "same principal and endpoint shares the budget")

	res, err = l.Check(ctx, "tenant:t2", "ep", pol)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "other tenants are unaffected")

	res, err = l.Check(ctx, "tenant:t1", "other-ep", pol)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "other endpoints are unaffected")
}

func TestEnforce(t *testing.T) {
	l, _ := newTestLimiter(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	pol := Policy{Max: 1, Window: time.Minute}
	ctx := context.Background()

	_, err := l.Enforce(ctx, "user:u1", "ep", pol)
	require.NoError(t, err)

	_, err = l.Enforce(ctx, "user:u1", "ep", pol)
	require.Error(t, err)
	e := apierr.From(err)
	assert.Equal(t, apierr.KindRateLimited, e.Kind)
	assert.Equal(t, time.Minute, e.RetryAfter)
}

func TestEnforce_StoreFailureIsInternal(t *testing.T) {
	l := NewLimiter(failingCounters{})

	_, err := l.Enforce(context.Background(), "user:u1", "ep", Policy{Max: 5, Window: time.Minute})
	require.Error(t, err)
	assert.Equal(t, apierr.KindInternal, apierr.From(err).Kind, "counter failures fail closed")
}

func TestPrincipalKey(t *testing.T) {
	assert.Equal(t, "tenant:t1", PrincipalKey("t1", "u1", "10.0.0.1"))
	assert.Equal(t, "user:u1", PrincipalKey("", "u1", "10.0.0.1"))
	assert.Equal(t, "ip:10.0.0.1", PrincipalKey("", "", "10.0.0.1"))
}

func TestCheck_ZeroPolicyUsesDefaults(t *testing.T) {
	l, _ := newTestLimiter(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	res, err := l.Check(context.Background(), "ip:1.2.3.4", "ep", Policy{})
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy.Max, res.Limit)
}
