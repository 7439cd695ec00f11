// Gatehouse - Multi-Tenant SaaS API Gateway
// Copyright 2026 Gatehouse Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatehouse-io/gatehouse

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/gatehouse-io/gatehouse/internal/logging"
	"github.com/gatehouse-io/gatehouse/internal/store"
)

// bcrypt.MinCost keeps key hashing fast in tests.
func newTestKeyManager(t *testing.T) (*ServiceKeyManager, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	logger := logging.NewTestLogger(nil)
	return NewServiceKeyManager(mem, bcrypt.MinCost, logger), mem
}

func TestServiceKeyManager_CreateAndValidate(t *testing.T) {
	m, _ := newTestKeyManager(t)
	ctx := context.Background()

	key, plaintext, err := m.Create(ctx, "tenant-1", "user-1", "ci", nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(plaintext, ServiceKeyPrefix))
	assert.True(t, strings.HasPrefix(plaintext, key.TokenPrefix))
	assert.NotContains(t, key.TokenHash, plaintext)

	got, err := m.Validate(ctx, plaintext)
	require.NoError(t, err)
	assert.Equal(t, key.ID, got.ID)
	assert.Equal(t, "tenant-1", got.TenantID)
	assert.Equal(t, "user-1", got.UserID)
}

func TestServiceKeyManager_RejectsTamperedSecret(t *testing.T) {
	m, _ := newTestKeyManager(t)
	ctx := context.Background()

	_, plaintext, err := m.Create(ctx, "tenant-1", "user-1", "ci", nil)
	require.NoError(t, err)

	_, err = m.Validate(ctx, plaintext[:len(plaintext)-1]+"X")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestServiceKeyManager_RejectsRevoked(t *testing.T) {
	m, _ := newTestKeyManager(t)
	ctx := context.Background()

	key, plaintext, err := m.Create(ctx, "tenant-1", "user-1", "ci", nil)
	require.NoError(t, err)
	require.NoError(t, m.Revoke(ctx, key.ID))

	_, err = m.Validate(ctx, plaintext)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestServiceKeyManager_RejectsExpired(t *testing.T) {
	m, _ := newTestKeyManager(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	_, plaintext, err := m.Create(ctx, "tenant-1", "user-1", "ci", &past)
	require.NoError(t, err)

	_, err = m.Validate(ctx, plaintext)
	assert.ErrorIs(t, err, ErrExpiredCredentials)
}

func TestServiceKeyManager_UnknownKey(t *testing.T) {
	m, _ := newTestKeyManager(t)

	_, err := m.Validate(context.Background(), ServiceKeyPrefix+"dW5rbm93bg_secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestServiceKeyAuthenticator_ResolvesIdentity(t *testing.T) {
	m, _ := newTestKeyManager(t)
	ctx := context.Background()

	key, plaintext, err := m.Create(ctx, "tenant-1", "user-1", "ci", nil)
	require.NoError(t, err)

	a := NewServiceKeyAuthenticator(m)
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+plaintext)

	id, err := a.Authenticate(ctx, r)
	require.NoError(t, err)
	assert.True(t, id.IsServiceKey())
	assert.Equal(t, key.ID, id.ServiceKeyID)
	assert.Equal(t, "tenant-1", id.TenantID)
	assert.Equal(t, "user-1", id.UserID)
}

func TestServiceKeyAuthenticator_NonKeyBearerFallsThrough(t *testing.T) {
	m, _ := newTestKeyManager(t)
	a := NewServiceKeyAuthenticator(m)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer some.jwt.token")

	_, err := a.Authenticate(context.Background(), r)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestExtractBearerToken(t *testing.T) {
	assert.Equal(t, "abc", ExtractBearerToken("Bearer abc"))
	assert.Equal(t, "abc", ExtractBearerToken("bearer abc"))
	assert.Equal(t, "", ExtractBearerToken("Basic abc"))
	assert.Equal(t, "", ExtractBearerToken(""))
}
