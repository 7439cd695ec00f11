// Gatehouse - Multi-Tenant SaaS API Gateway
// Copyright 2026 Gatehouse Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatehouse-io/gatehouse

// Package authz enforces the fixed role ordering over tenant memberships.
package authz

import (
	"context"
	"fmt"

	"github.com/gatehouse-io/gatehouse/internal/apierr"
	"github.com/gatehouse-io/gatehouse/internal/models"
	"github.com/gatehouse-io/gatehouse/internal/store"
)

// Guard checks membership roles against endpoint requirements.
type Guard struct {
	users store.UserStore
}

// NewGuard creates a role guard. The user store backs the platform-admin
// fallback for tenant-optional admin endpoints.
func NewGuard(users store.UserStore) *Guard {
	return &Guard{users: users}
}

// Require admits the membership iff its role is at least as privileged as
// required. Unknown role strings rank below every known role, so a
// corrupted membership fails closed.
//
// When membership is nil, the endpoint is tenant-optional, and the
// requirement is admin, the guard falls back to the user's global
// platform-admin flag, bypassing tenancy entirely.
func (g *Guard) Require(ctx context.Context, membership *models.TenantMembership, required models.Role, userID string, tenantOptional bool) error {
	if membership == nil {
		if tenantOptional && required == models.RoleAdmin {
			return g.requirePlatformAdmin(ctx, userID)
		}
		return apierr.Forbidden(fmt.Sprintf("requires role %q", required))
	}

	if !membership.Role.AtLeast(required) {
		return apierr.Forbidden(fmt.Sprintf("requires role %q, have %q", required, membership.Role))
	}
	return nil
}

func (g *Guard) requirePlatformAdmin(ctx context.Context, userID string) error {
	if userID == "" {
		return apierr.Forbidden(`requires role "admin"`)
	}
	user, err := g.users.UserByID(ctx, userID)
	if err != nil || !user.PlatformAdmin {
		return apierr.Forbidden(`requires role "admin"`)
	}
	return nil
}
