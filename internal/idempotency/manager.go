// Gatehouse - Multi-Tenant SaaS API Gateway
// Copyright 2026 Gatehouse Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatehouse-io/gatehouse

// Package idempotency stores responses of completed mutations keyed by the
// caller-supplied Idempotency-Key header, scoped per tenant, so retried
// requests replay the original response instead of re-running the handler.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gatehouse-io/gatehouse/internal/models"
	"github.com/gatehouse-io/gatehouse/internal/store"
)

// HeaderKey is the request header carrying the idempotency key.
const HeaderKey = "Idempotency-Key"

// HeaderReplay marks a response served from the idempotency store.
const HeaderReplay = "X-Idempotent-Replay"

// DefaultTTL bounds how long a stored response stays replayable.
const DefaultTTL = 24 * time.Hour

// MaxKeyLength caps caller-supplied keys; longer keys are rejected by the
// pipeline before reaching the store.
const MaxKeyLength = 255

// Manager reads and writes replay records. Records are scoped to (key,
// tenant): two tenants reusing the same key never see each other's
// responses.
type Manager struct {
	store  store.IdempotencyStore
	ttl    time.Duration
	logger zerolog.Logger
	now    func() time.Time
}

// NewManager creates a manager with the given replay TTL; ttl <= 0 uses
// DefaultTTL.
func NewManager(st store.IdempotencyStore, ttl time.Duration, logger zerolog.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		store:  st,
		ttl:    ttl,
		logger: logger.With().Str("component", "idempotency").Logger(),
		now:    time.Now,
	}
}

// Check returns the stored record for (key, tenant), or nil when there is
// none. Expired records are treated as absent; the underlying row is left
// for the store's TTL to collect.
func (m *Manager) Check(ctx context.Context, key, tenantID string) (*models.IdempotencyRecord, error) {
	rec, err := m.store.GetIdempotencyRecord(ctx, key, tenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("read idempotency record: %w", err)
	}
	if rec.IsExpired() {
		return nil, nil
	}
	return rec, nil
}

// Save stores a completed response for replay. Called only after a
// successful handler run; failures are logged and swallowed so a storage
// hiccup cannot fail a request that already succeeded.
func (m *Manager) Save(ctx context.Context, key, tenantID string, status int, body []byte, jobID string) {
	now := m.now()
	rec := &models.IdempotencyRecord{
		Key:       key,
		TenantID:  tenantID,
		JobID:     jobID,
		Status:    status,
		Body:      body,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.PutIdempotencyRecord(ctx, rec); err != nil {
		m.logger.Error().Err(err).
			Str("tenant_id", tenantID).
			Str("idempotency_key", key).
			Msg("failed to store idempotency record, retry will re-execute")
	}
}
