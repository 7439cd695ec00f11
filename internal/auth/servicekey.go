// Gatehouse - Multi-Tenant SaaS API Gateway
// Copyright 2026 Gatehouse Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatehouse-io/gatehouse

// Service key management for machine-to-machine API access.
//
// Key format: gh_key_<base64-encoded-id>_<random-secret>
//
// Keys are SHA-256 hashed and then bcrypt'd before storage; only the first
// few characters are kept in plaintext for display. A key binds exactly one
// (tenant, user) pair and always acts with the lowest privileged role.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/gatehouse-io/gatehouse/internal/models"
	"github.com/gatehouse-io/gatehouse/internal/store"
)

const (
	// ServiceKeyPrefix is the literal prefix identifying service keys.
	ServiceKeyPrefix = "gh_key_"

	// serviceKeySecretLength is the length of the random secret (bytes).
	serviceKeySecretLength = 32

	// serviceKeyDisplayLength is how much of the token is kept for display.
	serviceKeyDisplayLength = 8

	// DefaultBcryptCost is the bcrypt cost for key hashing in production.
	DefaultBcryptCost = 12
)

// IsServiceKeyToken reports whether a token string looks like a service key.
func IsServiceKeyToken(token string) bool {
	return strings.HasPrefix(token, ServiceKeyPrefix)
}

// ExtractBearerToken returns the bearer token from an Authorization header
// value, or "".
func ExtractBearerToken(authHeader string) string {
	authHeader = strings.TrimSpace(authHeader)
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}

// ServiceKeyManager creates and validates service keys.
type ServiceKeyManager struct {
	store      store.ServiceKeyStore
	bcryptCost int
	logger     zerolog.Logger
}

// NewServiceKeyManager creates a manager. A non-positive cost selects
// DefaultBcryptCost.
func NewServiceKeyManager(s store.ServiceKeyStore, bcryptCost int, logger zerolog.Logger) *ServiceKeyManager {
	if bcryptCost <= 0 {
		bcryptCost = DefaultBcryptCost
	}
	return &ServiceKeyManager{
		store:      s,
		bcryptCost: bcryptCost,
		logger:     logger.With().Str("component", "service_keys").Logger(),
	}
}

// Create generates a new service key bound to (tenant, user). Returns the
// record and the plaintext token, which is shown only once.
func (m *ServiceKeyManager) Create(ctx context.Context, tenantID, userID, name string, expiresAt *time.Time) (*models.ServiceKey, string, error) {
	keyID := uuid.New().String()

	secretBytes := make([]byte, serviceKeySecretLength)
	if _, err := rand.Read(secretBytes); err != nil {
		return nil, "", fmt.Errorf("generate key secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)

	idEncoded := base64.RawURLEncoding.EncodeToString([]byte(keyID))
	plaintext := fmt.Sprintf("%s%s_%s", ServiceKeyPrefix, idEncoded, secret)

	hash, err := hashToken(plaintext, m.bcryptCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash key: %w", err)
	}

	key := &models.ServiceKey{
		ID:          keyID,
		TenantID:    tenantID,
		UserID:      userID,
		Name:        name,
		TokenPrefix: plaintext[:len(ServiceKeyPrefix)+serviceKeyDisplayLength],
		TokenHash:   hash,
		CreatedAt:   time.Now().UTC(),
		ExpiresAt:   expiresAt,
	}

	if err := m.store.PutServiceKey(ctx, key); err != nil {
		return nil, "", fmt.Errorf("store key: %w", err)
	}

	m.logger.Info().
		Str("key_id", keyID).
		Str("tenant_id", tenantID).
		Str("user_id", userID).
		Msg("service key created")

	return key, plaintext, nil
}

// Validate checks a plaintext token and returns the key record when it is
// genuine, unexpired, and unrevoked.
func (m *ServiceKeyManager) Validate(ctx context.Context, plaintext string) (*models.ServiceKey, error) {
	if !IsServiceKeyToken(plaintext) {
		return nil, ErrNoCredentials
	}

	rest := strings.TrimPrefix(plaintext, ServiceKeyPrefix)
	parts := strings.SplitN(rest, "_", 2)
	if len(parts) != 2 {
		return nil, ErrInvalidCredentials
	}

	idBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	keyID := string(idBytes)

	key, err := m.store.ServiceKeyByID(ctx, keyID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: key lookup: %v", ErrAuthenticatorUnavailable, err)
	}

	if !verifyToken(plaintext, key.TokenHash) {
		m.logger.Warn().Str("key_id", keyID).Msg("service key hash mismatch")
		return nil, ErrInvalidCredentials
	}
	if key.IsRevoked() {
		return nil, ErrInvalidCredentials
	}
	if key.IsExpired() {
		return nil, ErrExpiredCredentials
	}

	// Record last use without blocking the request.
	go func() {
		touchCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.store.TouchServiceKey(touchCtx, keyID, time.Now().UTC()); err != nil {
			m.logger.Warn().Err(err).Str("key_id", keyID).Msg("failed to record key use")
		}
	}()

	return key, nil
}

// Revoke marks a key revoked.
func (m *ServiceKeyManager) Revoke(ctx context.Context, keyID string) error {
	key, err := m.store.ServiceKeyByID(ctx, keyID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	key.RevokedAt = &now
	if err := m.store.PutServiceKey(ctx, key); err != nil {
		return fmt.Errorf("revoke key: %w", err)
	}

	m.logger.Info().Str("key_id", keyID).Msg("service key revoked")
	return nil
}

// ServiceKeyAuthenticator resolves bearer tokens carrying the service-key
// prefix. A matching prefix commits the request to this strategy: any
// verification failure past that point is terminal.
type ServiceKeyAuthenticator struct {
	manager *ServiceKeyManager
}

// NewServiceKeyAuthenticator creates a service-key authenticator.
func NewServiceKeyAuthenticator(manager *ServiceKeyManager) *ServiceKeyAuthenticator {
	return &ServiceKeyAuthenticator{manager: manager}
}

// Authenticate resolves a prefixed bearer token to a service-key identity.
func (a *ServiceKeyAuthenticator) Authenticate(ctx context.Context, r *http.Request) (*Identity, error) {
	token := ExtractBearerToken(r.Header.Get("Authorization"))
	if token == "" || !IsServiceKeyToken(token) {
		return nil, ErrNoCredentials
	}

	key, err := a.manager.Validate(ctx, token)
	if err != nil {
		return nil, err
	}

	return &Identity{
		UserID:       key.UserID,
		Method:       MethodServiceKey,
		ServiceKeyID: key.ID,
		TenantID:     key.TenantID,
	}, nil
}

// Name returns the authenticator name.
func (a *ServiceKeyAuthenticator) Name() string {
	return string(MethodServiceKey)
}

// Priority places service keys before sessions in the chain.
func (a *ServiceKeyAuthenticator) Priority() int {
	return 10
}

// hashToken SHA-256 hashes the token to a fixed length, then bcrypts the
// digest. bcrypt alone truncates at 72 bytes.
func hashToken(plaintext string, cost int) (string, error) {
	sha := sha256.Sum256([]byte(plaintext))
	hash, err := bcrypt.GenerateFromPassword(sha[:], cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(hash), nil
}

// verifyToken checks a plaintext token against a stored hash.
func verifyToken(plaintext, storedHash string) bool {
	sha := sha256.Sum256([]byte(plaintext))
	return bcrypt.CompareHashAndPassword([]byte(storedHash), sha[:]) == nil
}
