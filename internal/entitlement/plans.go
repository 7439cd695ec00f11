// Gatehouse - Multi-Tenant SaaS API Gateway
// Copyright 2026 Gatehouse Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatehouse-io/gatehouse

// Package entitlement resolves a tenant's effective subscription plan and
// gates actions on plan tier and entitlement flags.
package entitlement

import (
	"time"

	"github.com/gatehouse-io/gatehouse/internal/models"
)

// Tier is a plan level in the fixed ascending order
// free < basic < pro < advanced < enterprise.
type Tier int

const (
	TierFree Tier = iota
	TierBasic
	TierPro
	TierAdvanced
	TierEnterprise
)

// tierSlugs maps plan slugs to tiers. Unknown slugs resolve to TierFree
// (fail closed).
var tierSlugs = map[string]Tier{
	"free":       TierFree,
	"basic":      TierBasic,
	"pro":        TierPro,
	"advanced":   TierAdvanced,
	"enterprise": TierEnterprise,
}

// tierNames is the reverse mapping for error messages.
var tierNames = map[Tier]string{
	TierFree:       "free",
	TierBasic:      "basic",
	TierPro:        "pro",
	TierAdvanced:   "advanced",
	TierEnterprise: "enterprise",
}

// TierOf returns the tier for a plan slug; unknown slugs are free.
func TierOf(slug string) Tier {
	return tierSlugs[slug]
}

// String returns the tier's slug.
func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return "free"
}

// Free-tier quota defaults, deliberately conservative: these apply both to
// tenants without a subscription and whenever plan resolution fails open.
const (
	freeGenerationsPerMonth = 20
	freeProjects            = 1
	freeSeats               = 1
)

// FreePlan returns the constant effective plan for tenants without a
// billable subscription. A fresh copy is returned each call so callers
// cannot alias the maps.
func FreePlan() *models.EffectivePlan {
	return &models.EffectivePlan{
		Name: "Free",
		Slug: "free",
		QuotaPolicy: map[string]int64{
			"generations": freeGenerationsPerMonth,
			"projects":    freeProjects,
			"seats":       freeSeats,
		},
		Entitlements: map[string]bool{},
		Status:       "none",
	}
}

// effectivePlanFrom joins a subscription and its plan row.
func effectivePlanFrom(sub *models.Subscription, plan *models.Plan) *models.EffectivePlan {
	quotas := make(map[string]int64, len(plan.QuotaPolicy))
	for k, v := range plan.QuotaPolicy {
		quotas[k] = v
	}
	ents := make(map[string]bool, len(plan.Entitlements))
	for k, v := range plan.Entitlements {
		ents[k] = v
	}
	return &models.EffectivePlan{
		PlanID:       plan.ID,
		Name:         plan.Name,
		Slug:         plan.Slug,
		QuotaPolicy:  quotas,
		Entitlements: ents,
		Status:       sub.Status,
		PeriodEnd:    sub.PeriodEnd,
		PriceID:      sub.PriceID,
	}
}

// DefaultCacheTTL bounds cross-instance staleness after subscription
// changes on instances that were not explicitly invalidated.
const DefaultCacheTTL = 60 * time.Second

// DefaultCacheSize bounds the per-instance plan cache.
const DefaultCacheSize = 10000
