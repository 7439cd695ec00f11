// Gatehouse - Multi-Tenant SaaS API Gateway
// Copyright 2026 Gatehouse Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatehouse-io/gatehouse

// Package store defines the backing-store contracts the gateway pipeline
// depends on, plus two implementations: an in-memory store for tests and
// development, and a BadgerDB store for durable single-node deployments.
//
// The relational business store (memberships, users, subscriptions) is an
// external collaborator; the interfaces here are its seams. Counter
// increments are single atomic operations by contract, so concurrent
// requests against the same key can never under-count.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// MembershipStore reads tenant memberships for session-authenticated users.
type MembershipStore interface {
	// MembershipsByUser returns all memberships for a user, default first.
	MembershipsByUser(ctx context.Context, userID string) ([]models.TenantMembership, error)
}

// UserStore reads the slice of the account record the pipeline needs.
type UserStore interface {
	// UserByID returns the user, or ErrNotFound.
	UserByID(ctx context.Context, id string) (*models.User, error)
}

// ServiceKeyStore persists machine-to-machine credentials.
type ServiceKeyStore interface {
	// ServiceKeyByID returns the key record, or ErrNotFound.
	ServiceKeyByID(ctx context.Context, id string) (*models.ServiceKey, error)

	// PutServiceKey inserts or replaces a key record.
	PutServiceKey(ctx context.Context, key *models.ServiceKey) error

	// TouchServiceKey records a successful use of the key.
	TouchServiceKey(ctx context.Context, id string, when time.Time) error
}

// SubscriptionStore resolves a tenant's billable subscription joined to its
// plan row. Both results are nil when the tenant has no subscription in a
// billable status (active, trialing, past_due).
type SubscriptionStore interface {
	BillableSubscription(ctx context.Context, tenantID string) (*models.Subscription, *models.Plan, error)
}

// CounterStore holds the rate-limit and usage counters. Increments are
// atomic read-modify-write operations inside the store.
type CounterStore interface {
	// IncrRateCounter increments the fixed-window counter and returns the
	// new count. A previously unseen window key starts at zero.
	IncrRateCounter(ctx context.Context, principalKey, endpoint string, windowStart time.Time) (int64, error)

	// IncrUsage increments a calendar-period usage counter by delta,
	// creating the period row lazily, and returns the new total.
	IncrUsage(ctx context.Context, tenantID, metric string, periodStart time.Time, delta int64) (int64, error)

	// GetUsage returns the current usage for the period, zero when the
	// period row does not exist yet.
	GetUsage(ctx context.Context, tenantID, metric string, periodStart time.Time) (int64, error)
}

// IdempotencyStore persists stored responses for replay.
type IdempotencyStore interface {
	// GetIdempotencyRecord returns the record for (key, tenant), or
	// ErrNotFound. Expiry is the caller's concern.
	GetIdempotencyRecord(ctx context.Context, key, tenantID string) (*models.IdempotencyRecord, error)

	// PutIdempotencyRecord upserts a record; last write wins.
	PutIdempotencyRecord(ctx context.Context, rec *models.IdempotencyRecord) error
}
