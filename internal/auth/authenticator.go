// Gatehouse - Multi-Tenant SaaS API Gateway
// Copyright 2026 Gatehouse Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatehouse-io/gatehouse

// Package auth resolves raw request credentials into an identity. Two
// strategies are supported: opaque prefixed service keys for
// machine-to-machine calls, and signed session tokens (bearer or cookie)
// for interactive users. Strategies implement Authenticator and are tried
// in priority order by MultiAuthenticator.
package auth

import (
	"context"
	"errors"
	"net/http"
)

// Method tags how a request was authenticated.
type Method string

const (
	// MethodSession marks cookie- or bearer-based session authentication.
	MethodSession Method = "session"

	// MethodServiceKey marks opaque service-key authentication.
	MethodServiceKey Method = "service_key"
)

// Standard authentication errors.
var (
	// ErrNoCredentials indicates no credentials were provided for this
	// strategy; the next authenticator in the chain is tried.
	ErrNoCredentials = errors.New("no credentials provided")

	// ErrInvalidCredentials indicates credentials were provided but failed
	// verification. Fatal: no fallback to another strategy.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrExpiredCredentials indicates credentials have expired. Fatal.
	ErrExpiredCredentials = errors.New("credentials expired")

	// ErrAuthenticatorUnavailable indicates the verifying backend is
	// unreachable; the next authenticator is tried.
	ErrAuthenticatorUnavailable = errors.New("authenticator unavailable")
)

// Identity is a resolved caller identity.
type Identity struct {
	// UserID identifies the acting user. For service keys this is the
	// user the key is bound to.
	UserID string `json:"user_id"`

	// Email is the user's email when the credential carries one.
	Email string `json:"email,omitempty"`

	// Method records which strategy authenticated the request.
	Method Method `json:"method"`

	// ServiceKeyID and TenantID are set only for service-key identities:
	// the key fixes both sides of the (tenant, user) pair.
	ServiceKeyID string `json:"service_key_id,omitempty"`
	TenantID     string `json:"tenant_id,omitempty"`
}

// IsServiceKey reports whether the identity came from a service key.
func (i *Identity) IsServiceKey() bool {
	return i.Method == MethodServiceKey
}

// Authenticator is one credential resolution strategy.
type Authenticator interface {
	// Authenticate extracts and validates credentials from the request.
	Authenticate(ctx context.Context, r *http.Request) (*Identity, error)

	// Name returns the strategy name for logging.
	Name() string

	// Priority orders strategies in multi mode; lower runs first.
	Priority() int
}

type identityCtxKey struct{}

// ContextWithIdentity stores the resolved identity in the context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFromContext returns the identity stored by the pipeline, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	if id, ok := ctx.Value(identityCtxKey{}).(*Identity); ok {
		return id
	}
	return nil
}
