// Gatehouse - Multi-Tenant SaaS API Gateway
// Copyright 2026 Gatehouse Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatehouse-io/gatehouse

package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-io/gatehouse/internal/apierr"
	"github.com/gatehouse-io/gatehouse/internal/logging"
	"github.com/gatehouse-io/gatehouse/internal/models"
	"github.com/gatehouse-io/gatehouse/internal/store"
)

type failingCounters struct{ store.CounterStore }

func (failingCounters) GetUsage(ctx context.Context, tenantID, metric string, periodStart time.Time) (int64, error) {
	return 0, errors.New("store down")
}

func planWithLimit(metric string, limit int64) *models.EffectivePlan {
	return &models.EffectivePlan{
		Slug:        "pro",
		QuotaPolicy: map[string]int64{metric: limit},
	}
}

func newTestMeter() (*Meter, *store.Memory) {
	mem := store.NewMemory()
	m := NewMeter(mem, logging.NewTestLogger(nil))
	return m, mem
}

func TestPeriodBounds(t *testing.T) {
	at := time.Date(2026, 3, 17, 15, 4, 5, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), PeriodStart(at))
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), PeriodEnd(at))

	// December rolls into January.
	dec := time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), PeriodEnd(dec))

	// Non-UTC input normalizes to UTC month boundaries.
	est := time.FixedZone("EST", -5*3600)
	assert.Equal(t,
		time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		PeriodStart(time.Date(2026, 3, 31, 22, 0, 0, 0, est)))
}

func TestCheck_UnusedMetric(t *testing.T) {
	m, _ := newTestMeter()

	status, err := m.Check(context.Background(), "t1", "generations", planWithLimit("generations", 10))
	require.NoError(t, err)
	assert.Equal(t, int64(0), status.Used)
	require.NotNil(t, status.Limit)
	assert.Equal(t, int64(10), *status.Limit)
	assert.Equal(t, int64(10), *status.Remaining)
	assert.False(t, status.Exceeded())
}

func TestCheck_UnlimitedMetric(t *testing.T) {
	m, _ := newTestMeter()

	status, err := m.Check(context.Background(), "t1", "generations", &models.EffectivePlan{Slug: "enterprise"})
	require.NoError(t, err)
	assert.Nil(t, status.Limit)
	assert.Nil(t, status.Remaining)
	assert.False(t, status.Exceeded())
}

func TestEnforce_AtLimitRejects(t *testing.T) {
	m, _ := newTestMeter()
	plan := planWithLimit("generations", 10)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		m.Commit(ctx, "t1", "generations", 1)
	}

	_, err := m.Enforce(ctx, "t1", "generations", plan)
	require.Error(t, err)
	e := apierr.From(err)
	assert.Equal(t, apierr.KindQuotaExceeded, e.Kind)
	assert.Contains(t, e.Message, "generations")
}

func TestEnforce_LastUnitPassesThenCloses(t *testing.T) {
	m, _ := newTestMeter()
	plan := planWithLimit("generations", 10)
	ctx := context.Background()

	for i := 0; i < 9; i++ {
		m.Commit(ctx, "t1", "generations", 1)
	}

	status, err := m.Enforce(ctx, "t1", "generations", plan)
	require.NoError(t, err, "9 of 10 used, the tenth request passes")
	assert.Equal(t, int64(1), *status.Remaining)

	m.Commit(ctx, "t1", "generations", 1)

	_, err = m.Enforce(ctx, "t1", "generations", plan)
	assert.Error(t, err, "10 of 10 used, the next request is rejected")
}

func TestEnforce_StoreFailureIsInternal(t *testing.T) {
	m := NewMeter(failingCounters{}, logging.NewTestLogger(nil))

	_, err := m.Enforce(context.Background(), "t1", "generations", planWithLimit("generations", 10))
	require.Error(t, err)
	assert.Equal(t, apierr.KindInternal, apierr.From(err).Kind, "quota checks fail closed")
}

func TestCommit_TenantsAreIsolated(t *testing.T) {
	m, _ := newTestMeter()
	ctx := context.Background()

	m.Commit(ctx, "t1", "generations", 5)
	m.Commit(ctx, "t2", "generations", 1)

	s1, err := m.Check(ctx, "t1", "generations", planWithLimit("generations", 10))
	require.NoError(t, err)
	s2, err := m.Check(ctx, "t2", "generations", planWithLimit("generations", 10))
	require.NoError(t, err)
	assert.Equal(t, int64(5), s1.Used)
	assert.Equal(t, int64(1), s2.Used)
}

func TestCommit_IgnoresNonPositiveDelta(t *testing.T) {
	m, _ := newTestMeter()
	ctx := context.Background()

	m.Commit(ctx, "t1", "generations", 0)
	m.Commit(ctx, "t1", "generations", -3)

	status, err := m.Check(ctx, "t1", "generations", planWithLimit("generations", 10))
	require.NoError(t, err)
	assert.Equal(t, int64(0), status.Used)
}
