// Gatehouse - Multi-Tenant SaaS API Gateway
// Copyright 2026 Gatehouse Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatehouse-io/gatehouse

package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/models"
)

// Memory is a mutex-protected in-memory store implementing every contract
// in this package. It backs tests and development mode; nothing survives a
// restart.
type Memory struct {
	mu sync.RWMutex

	users         map[string]models.User
	memberships   map[string][]models.TenantMembership
	serviceKeys   map[string]models.ServiceKey
	subscriptions map[string]models.Subscription
	plans         map[string]models.Plan
	rateCounters  map[string]int64
	usageCounters map[string]int64
	idempotency   map[string]models.IdempotencyRecord
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:         make(map[string]models.User),
		memberships:   make(map[string][]models.TenantMembership),
		serviceKeys:   make(map[string]models.ServiceKey),
		subscriptions: make(map[string]models.Subscription),
		plans:         make(map[string]models.Plan),
		rateCounters:  make(map[string]int64),
		usageCounters: make(map[string]int64),
		idempotency:   make(map[string]models.IdempotencyRecord),
	}
}

// Seeding helpers for tests and development mode.

// AddUser stores a user record.
func (m *Memory) AddUser(u models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

// AddMembership appends a membership for its user.
func (m *Memory) AddMembership(mem models.TenantMembership) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memberships[mem.UserID] = append(m.memberships[mem.UserID], mem)
}

// AddPlan stores a plan row.
func (m *Memory) AddPlan(p models.Plan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[p.ID] = p
}

// AddSubscription stores a subscription for its tenant.
func (m *Memory) AddSubscription(s models.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[s.TenantID] = s
}

// UserByID implements UserStore.
func (m *Memory) UserByID(_ context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

// MembershipsByUser implements MembershipStore.
func (m *Memory) MembershipsByUser(_ context.Context, userID string) ([]models.TenantMembership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mems := m.memberships[userID]
	out := make([]models.TenantMembership, len(mems))
	copy(out, mems)
	return out, nil
}

// ServiceKeyByID implements ServiceKeyStore.
func (m *Memory) ServiceKeyByID(_ context.Context, id string) (*models.ServiceKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	k, ok := m.serviceKeys[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &k, nil
}

// PutServiceKey implements ServiceKeyStore.
func (m *Memory) PutServiceKey(_ context.Context, key *models.ServiceKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.serviceKeys[key.ID] = *key
	return nil
}

// TouchServiceKey implements ServiceKeyStore.
func (m *Memory) TouchServiceKey(_ context.Context, id string, when time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k, ok := m.serviceKeys[id]
	if !ok {
		return ErrNotFound
	}
	k.LastUsedAt = &when
	m.serviceKeys[id] = k
	return nil
}

// BillableSubscription implements SubscriptionStore.
func (m *Memory) BillableSubscription(_ context.Context, tenantID string) (*models.Subscription, *models.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sub, ok := m.subscriptions[tenantID]
	if !ok {
		return nil, nil, nil
	}
	switch sub.Status {
	case models.SubscriptionActive, models.SubscriptionTrialing, models.SubscriptionPastDue:
	default:
		return nil, nil, nil
	}

	plan, ok := m.plans[sub.PlanID]
	if !ok {
		return nil, nil, nil
	}
	return &sub, &plan, nil
}

// IncrRateCounter implements CounterStore.
func (m *Memory) IncrRateCounter(_ context.Context, principalKey, endpoint string, windowStart time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := rateCounterKey(principalKey, endpoint, windowStart)
	m.rateCounters[key]++
	return m.rateCounters[key], nil
}

// IncrUsage implements CounterStore.
func (m *Memory) IncrUsage(_ context.Context, tenantID, metric string, periodStart time.Time, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := usageCounterKey(tenantID, metric, periodStart)
	m.usageCounters[key] += delta
	return m.usageCounters[key], nil
}

// GetUsage implements CounterStore.
func (m *Memory) GetUsage(_ context.Context, tenantID, metric string, periodStart time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.usageCounters[usageCounterKey(tenantID, metric, periodStart)], nil
}

// GetIdempotencyRecord implements IdempotencyStore.
func (m *Memory) GetIdempotencyRecord(_ context.Context, key, tenantID string) (*models.IdempotencyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.idempotency[idempotencyKey(key, tenantID)]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// PutIdempotencyRecord implements IdempotencyStore.
func (m *Memory) PutIdempotencyRecord(_ context.Context, rec *models.IdempotencyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idempotency[idempotencyKey(rec.Key, rec.TenantID)] = *rec
	return nil
}

func rateCounterKey(principalKey, endpoint string, windowStart time.Time) string {
	return fmt.Sprintf("%s|%s|%d", principalKey, endpoint, windowStart.Unix())
}

func usageCounterKey(tenantID, metric string, periodStart time.Time) string {
	return fmt.Sprintf("%s|%s|%d", tenantID, metric, periodStart.Unix())
}

func idempotencyKey(key, tenantID string) string {
	return tenantID + "|" + key
}
