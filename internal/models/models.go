// Gatehouse - Multi-Tenant SaaS API Gateway
// Copyright 2026 Gatehouse Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatehouse-io/gatehouse

// Package models defines the domain types shared across the gateway
// pipeline: memberships, service keys, plans, counters, and idempotency
// records.
package models

import "time"

// Role is a tenant membership role. Roles form a fixed total order from
// most to least privileged: owner > admin > editor > member.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleMember Role = "member"
)

// roleRanks orders roles ascending by privilege. Unknown roles rank below
// member (fail closed).
var roleRanks = map[Role]int{
	RoleMember: 1,
	RoleEditor: 2,
	RoleAdmin:  3,
	RoleOwner:  4,
}

// Rank returns the privilege rank of the role. Unrecognized roles return 0,
// below every known role.
func (r Role) Rank() int {
	return roleRanks[r]
}

// AtLeast reports whether r is at least as privileged as other.
func (r Role) AtLeast(other Role) bool {
	return r.Rank() >= other.Rank()
}

// Valid reports whether the role is one of the fixed set.
func (r Role) Valid() bool {
	_, ok := roleRanks[r]
	return ok
}

// User is the slice of the account record the pipeline reads: identity plus
// the global platform-admin flag used by the role guard's tenancy bypass.
type User struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	PlatformAdmin bool   `json:"platform_admin"`
}

// TenantMembership is the (tenant, user, role) triple establishing a user's
// authorization scope within a tenant. For service-key auth it is
// synthesized rather than read from the membership table.
type TenantMembership struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
	Role     Role   `json:"role"`
}

// ServiceKey is a long-lived opaque credential bound to exactly one
// (tenant, user) pair. The plaintext secret is never stored; only a hash
// and a short display prefix are kept.
type ServiceKey struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenant_id"`
	UserID      string     `json:"user_id"`
	Name        string     `json:"name"`
	TokenPrefix string     `json:"token_prefix"`
	TokenHash   string     `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
}

// IsExpired reports whether the key is past its expiry.
func (k *ServiceKey) IsExpired() bool {
	return k.ExpiresAt != nil && time.Now().After(*k.ExpiresAt)
}

// IsRevoked reports whether the key has been revoked.
func (k *ServiceKey) IsRevoked() bool {
	return k.RevokedAt != nil
}

// Subscription statuses that count as billable for plan resolution.
const (
	SubscriptionActive   = "active"
	SubscriptionTrialing = "trialing"
	SubscriptionPastDue  = "past_due"
	SubscriptionCanceled = "canceled"
)

// Subscription links a tenant to a plan.
type Subscription struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	PlanID    string    `json:"plan_id"`
	Status    string    `json:"status"`
	PriceID   string    `json:"price_id"`
	PeriodEnd time.Time `json:"period_end"`
}

// Plan is a row from the billing plan catalog.
type Plan struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Slug         string           `json:"slug"`
	QuotaPolicy  map[string]int64 `json:"quota_policy"`
	Entitlements map[string]bool  `json:"entitlements"`
}

// EffectivePlan is a tenant's resolved subscription state. Tenants without
// an active subscription resolve to the constant free plan.
type EffectivePlan struct {
	PlanID       string           `json:"plan_id,omitempty"`
	Name         string           `json:"name"`
	Slug         string           `json:"slug"`
	QuotaPolicy  map[string]int64 `json:"quota_policy"`
	Entitlements map[string]bool  `json:"entitlements"`
	Status       string           `json:"status"`
	PeriodEnd    time.Time        `json:"period_end,omitempty"`
	PriceID      string           `json:"price_id,omitempty"`
}

// QuotaLimit returns the plan's limit for a metric, or nil when the metric
// is not limited by the plan (unlimited).
func (p *EffectivePlan) QuotaLimit(metric string) *int64 {
	if p.QuotaPolicy == nil {
		return nil
	}
	if limit, ok := p.QuotaPolicy[metric]; ok {
		return &limit
	}
	return nil
}

// RateLimitCounter is one fixed-window counter row. A new window creates a
// fresh row; expired windows are abandoned, not deleted inline.
type RateLimitCounter struct {
	PrincipalKey string    `json:"principal_key"`
	Endpoint     string    `json:"endpoint"`
	WindowStart  time.Time `json:"window_start"`
	Count        int64     `json:"count"`
}

// UsageCounter is cumulative usage for (tenant, metric) in one calendar
// billing period. Created lazily on first increment of a period.
type UsageCounter struct {
	TenantID    string    `json:"tenant_id"`
	Metric      string    `json:"metric"`
	PeriodStart time.Time `json:"period_start"`
	Count       int64     `json:"count"`
}

// QuotaStatus is the non-throwing snapshot of a tenant's position against a
// metered limit. A nil Limit means unlimited.
type QuotaStatus struct {
	Metric    string    `json:"metric"`
	Used      int64     `json:"used"`
	Limit     *int64    `json:"limit,omitempty"`
	Remaining *int64    `json:"remaining,omitempty"`
	PeriodEnd time.Time `json:"period_end"`
}

// Exceeded reports whether usage has reached the limit.
func (q *QuotaStatus) Exceeded() bool {
	return q.Limit != nil && q.Used >= *q.Limit
}

// IdempotencyRecord stores a prior response for safe replay. Unique per
// (key, tenant); a record past ExpiresAt is treated as absent.
type IdempotencyRecord struct {
	Key       string    `json:"key"`
	TenantID  string    `json:"tenant_id"`
	JobID     string    `json:"job_id,omitempty"`
	Status    int       `json:"status"`
	Body      []byte    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired reports whether the record is past its expiry.
func (r *IdempotencyRecord) IsExpired() bool {
	return time.Now().After(r.ExpiresAt)
}
