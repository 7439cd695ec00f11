// Gatehouse - Multi-Tenant SaaS API Gateway
// Copyright 2026 Gatehouse Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatehouse-io/gatehouse

// Package api wires the HTTP surface: health and metrics endpoints, the
// service-key management routes, and the business routes that run behind
// the policy pipeline.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gatehouse-io/gatehouse/internal/auth"
	"github.com/gatehouse-io/gatehouse/internal/config"
	"github.com/gatehouse-io/gatehouse/internal/entitlement"
	"github.com/gatehouse-io/gatehouse/internal/gateway"
	gwmiddleware "github.com/gatehouse-io/gatehouse/internal/middleware"
	"github.com/gatehouse-io/gatehouse/internal/models"
	"github.com/gatehouse-io/gatehouse/internal/quota"
	"github.com/gatehouse-io/gatehouse/internal/ratelimit"
)

// Router builds the full route tree.
type Router struct {
	pipeline *gateway.Pipeline
	keys     *auth.ServiceKeyManager
	gate     *entitlement.Gate
	meter    *quota.Meter
	cfg      *config.Config

	// ready reports whether the backing store is usable; wired to the
	// readiness probe.
	ready func() error
}

// NewRouter creates the router with its collaborators.
func NewRouter(pipeline *gateway.Pipeline, keys *auth.ServiceKeyManager, gate *entitlement.Gate, meter *quota.Meter, cfg *config.Config, ready func() error) *Router {
	if ready == nil {
		ready = func() error { return nil }
	}
	return &Router{pipeline: pipeline, keys: keys, gate: gate, meter: meter, cfg: cfg, ready: ready}
}

// Handler assembles the chi route tree with edge middleware outside the
// policy pipeline.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(gwmiddleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: rt.cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-Id", "X-Tenant-Id"},
		MaxAge:         rt.cfg.CORS.MaxAge,
	}))

	// Coarse per-IP throttle ahead of authentication, so credential
	// stuffing cannot even reach the resolvers at volume.
	if rt.cfg.RateLimit.EdgeIPLimit > 0 {
		r.Use(httprate.LimitByIP(rt.cfg.RateLimit.EdgeIPLimit, rt.cfg.RateLimit.EdgeIPWindow))
	}

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health/live", rt.handleLive)
		r.Get("/health/ready", rt.handleReady)

		defaults := rt.cfg.RateLimit

		// Tenant-optional: authenticated users without a membership still
		// have a profile.
		r.Method(http.MethodGet, "/profile", rt.pipeline.Wrap(gateway.RoutePolicy{
			RequireAuth:    true,
			TenantOptional: true,
		}, rt.handleProfile))

		// The canonical metered route: entitlement-gated, quota-metered,
		// rate-limited, idempotent.
		r.Method(http.MethodPost, "/generations", rt.pipeline.Wrap(gateway.RoutePolicy{
			RequireAuth: true,
			MinRole:     models.RoleMember,
			Action:      "generations.create",
			QuotaMetric: "generations",
			RateLimit:   ratelimit.Policy{Max: defaults.DefaultMax, Window: defaults.DefaultWindow},
			Idempotent:  true,
		}, rt.handleCreateGeneration))

		r.Method(http.MethodPost, "/exports", rt.pipeline.Wrap(gateway.RoutePolicy{
			RequireAuth: true,
			MinRole:     models.RoleEditor,
			Action:      "exports.create",
			RateLimit:   ratelimit.Policy{Max: defaults.DefaultMax, Window: defaults.DefaultWindow},
			Idempotent:  true,
		}, rt.handleCreateExport))

		r.Method(http.MethodGet, "/quota", rt.pipeline.Wrap(gateway.RoutePolicy{
			RequireAuth: true,
		}, rt.handleQuota))

		// Service-key management is admin-only within the tenant.
		r.Method(http.MethodPost, "/service-keys", rt.pipeline.Wrap(gateway.RoutePolicy{
			RequireAuth: true,
			MinRole:     models.RoleAdmin,
			RateLimit:   ratelimit.Policy{Max: 10, Window: time.Minute},
		}, rt.handleCreateServiceKey))
		r.Method(http.MethodDelete, "/service-keys/{keyID}", rt.pipeline.Wrap(gateway.RoutePolicy{
			RequireAuth: true,
			MinRole:     models.RoleAdmin,
		}, rt.handleRevokeServiceKey))

		// Platform operators only: tenant-optional + admin requirement
		// triggers the platform-admin fallback.
		r.Method(http.MethodGet, "/admin/status", rt.pipeline.Wrap(gateway.RoutePolicy{
			RequireAuth:    true,
			TenantOptional: true,
			MinRole:        models.RoleAdmin,
		}, rt.handleAdminStatus))

		// Billing webhook: drops the cached plan after subscription
		// changes. Signature verification is the billing collaborator's
		// concern upstream; here it is rate-limited only.
		r.Method(http.MethodPost, "/webhooks/billing", rt.pipeline.Wrap(gateway.RoutePolicy{
			RateLimit: ratelimit.Policy{Max: 120, Window: time.Minute},
		}, rt.handleBillingWebhook))
	})

	return r
}
