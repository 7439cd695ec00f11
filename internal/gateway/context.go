// Gatehouse - Multi-Tenant SaaS API Gateway
// Copyright 2026 Gatehouse Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatehouse-io/gatehouse

package gateway

import (
	"context"

	"github.com/gatehouse-io/gatehouse/internal/auth"
	"github.com/gatehouse-io/gatehouse/internal/models"
)

// RequestInfo is what the pipeline resolved for the request, made
// available to business handlers through the context.
type RequestInfo struct {
	Identity   *auth.Identity
	Membership *models.TenantMembership
	Plan       *models.EffectivePlan
	Quota      *models.QuotaStatus
}

// TenantID returns the resolved tenant, or "" when tenancy was optional
// and absent.
func (ri *RequestInfo) TenantID() string {
	if ri == nil || ri.Membership == nil {
		return ""
	}
	return ri.Membership.TenantID
}

type infoKey struct{}

// ContextWithInfo stashes the resolved request info.
func ContextWithInfo(ctx context.Context, info *RequestInfo) context.Context {
	return context.WithValue(ctx, infoKey{}, info)
}

// InfoFromContext returns the resolved request info, or nil outside the
// pipeline.
func InfoFromContext(ctx context.Context) *RequestInfo {
	info, _ := ctx.Value(infoKey{}).(*RequestInfo)
	return info
}
