// Gatehouse - Multi-Tenant SaaS API Gateway
// Copyright 2026 Gatehouse Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatehouse-io/gatehouse

// Package tenant maps a resolved identity to a tenant membership.
package tenant

import (
	"context"
	"fmt"

	"github.com/gatehouse-io/gatehouse/internal/apierr"
	"github.com/gatehouse-io/gatehouse/internal/auth"
	"github.com/gatehouse-io/gatehouse/internal/models"
	"github.com/gatehouse-io/gatehouse/internal/store"
)

// Resolver turns (identity, optional tenant hint) into a TenantMembership.
type Resolver struct {
	memberships store.MembershipStore
}

// NewResolver creates a tenant resolver.
func NewResolver(memberships store.MembershipStore) *Resolver {
	return &Resolver{memberships: memberships}
}

// Resolve returns the membership the request acts under.
//
// Service-key identities never consult the membership store: tenant and
// user are fixed by the key, and the synthesized membership always carries
// the lowest privileged role. Session identities resolve against the
// caller's memberships, preferring a valid preferredTenantID hint, else the
// default (first) membership.
//
// When optional is true, resolution failures return (nil, nil) so
// user-scoped endpoints keep working for users without a tenant.
func (r *Resolver) Resolve(ctx context.Context, identity *auth.Identity, preferredTenantID string, optional bool) (*models.TenantMembership, error) {
	membership, err := r.resolve(ctx, identity, preferredTenantID)
	if err != nil && optional {
		return nil, nil
	}
	return membership, err
}

func (r *Resolver) resolve(ctx context.Context, identity *auth.Identity, preferredTenantID string) (*models.TenantMembership, error) {
	if identity == nil {
		return nil, apierr.Authentication("authentication required")
	}

	// A service key fixes the (tenant, user) pair; role is always member.
	if identity.IsServiceKey() {
		return &models.TenantMembership{
			ID:       "svc:" + identity.ServiceKeyID,
			TenantID: identity.TenantID,
			UserID:   identity.UserID,
			Role:     models.RoleMember,
		}, nil
	}

	memberships, err := r.memberships.MembershipsByUser(ctx, identity.UserID)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("list memberships: %w", err))
	}
	if len(memberships) == 0 {
		return nil, apierr.Forbidden("no tenant membership for user")
	}

	if preferredTenantID != "" {
		for i := range memberships {
			if memberships[i].TenantID == preferredTenantID {
				return &memberships[i], nil
			}
		}
		// A hint that matches nothing falls back to the default rather
		// than granting access to the named tenant.
	}

	return &memberships[0], nil
}
