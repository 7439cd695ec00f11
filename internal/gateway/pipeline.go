// Gatehouse - Multi-Tenant SaaS API Gateway
// Copyright 2026 Gatehouse Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatehouse-io/gatehouse

// Package gateway runs every request through the ordered policy chain —
// authentication, tenant resolution, role guard, entitlement gate, quota
// check, rate limit, idempotency replay — and normalizes every failure
// into one JSON error envelope.
package gateway

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/gatehouse-io/gatehouse/internal/apierr"
	"github.com/gatehouse-io/gatehouse/internal/auth"
	"github.com/gatehouse-io/gatehouse/internal/authz"
	"github.com/gatehouse-io/gatehouse/internal/entitlement"
	"github.com/gatehouse-io/gatehouse/internal/idempotency"
	"github.com/gatehouse-io/gatehouse/internal/logging"
	"github.com/gatehouse-io/gatehouse/internal/metrics"
	"github.com/gatehouse-io/gatehouse/internal/models"
	"github.com/gatehouse-io/gatehouse/internal/quota"
	"github.com/gatehouse-io/gatehouse/internal/ratelimit"
	"github.com/gatehouse-io/gatehouse/internal/tenant"
)

// HeaderTenant lets session users pick among their memberships.
const HeaderTenant = "X-Tenant-Id"

// RoutePolicy declares what the pipeline enforces for one route. The zero
// value is a fully open route: no auth, no limits.
type RoutePolicy struct {
	// RequireAuth runs the credential resolvers; without it the rest of
	// the identity-derived policy is skipped.
	RequireAuth bool

	// TenantOptional admits authenticated users with no membership;
	// handlers see a nil membership.
	TenantOptional bool

	// MinRole is the least membership role admitted, empty = ungated.
	MinRole models.Role

	// Action is the entitlement action key checked against the plan, and
	// the label requests are observed under.
	Action string

	// QuotaMetric is the metered metric; checked before the handler,
	// committed by one unit after a 2xx.
	QuotaMetric string

	// RateLimit applies a fixed-window limit when Max > 0.
	RateLimit ratelimit.Policy

	// Idempotent enables Idempotency-Key replay for mutating methods.
	Idempotent bool
}

// Pipeline holds the policy components shared by all routes.
type Pipeline struct {
	auth    auth.Authenticator
	tenants *tenant.Resolver
	guard   *authz.Guard
	gate    *entitlement.Gate
	limiter *ratelimit.Limiter
	meter   *quota.Meter
	idem    *idempotency.Manager
	logger  zerolog.Logger
}

// NewPipeline wires the policy chain.
func NewPipeline(
	authenticator auth.Authenticator,
	tenants *tenant.Resolver,
	guard *authz.Guard,
	gate *entitlement.Gate,
	limiter *ratelimit.Limiter,
	meter *quota.Meter,
	idem *idempotency.Manager,
	logger zerolog.Logger,
) *Pipeline {
	return &Pipeline{
		auth:    authenticator,
		tenants: tenants,
		guard:   guard,
		gate:    gate,
		limiter: limiter,
		meter:   meter,
		idem:    idem,
		logger:  logger.With().Str("component", "gateway").Logger(),
	}
}

// Wrap returns the handler behind the full policy chain for the route.
func (p *Pipeline) Wrap(policy RoutePolicy, handler http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		endpoint := r.Method + " " + r.URL.Path
		info := &RequestInfo{}

		fail := func(err error) {
			p.count(err, endpoint, policy)
			WriteError(w, r, err)
			metrics.ObserveRequest(policy.Action, apierr.From(err).HTTPStatus(), time.Since(start))
		}

		// Credentials.
		if policy.RequireAuth {
			identity, err := p.auth.Authenticate(ctx, r)
			if err != nil {
				fail(authError(err))
				return
			}
			info.Identity = identity
			ctx = auth.ContextWithIdentity(ctx, identity)
		}

		// Tenant.
		if info.Identity != nil {
			membership, err := p.tenants.Resolve(ctx, info.Identity, r.Header.Get(HeaderTenant), policy.TenantOptional)
			if err != nil {
				fail(err)
				return
			}
			info.Membership = membership
			if membership != nil {
				ctx = logging.ContextWithTenantID(ctx, membership.TenantID)
			}
		}

		// Role.
		if policy.MinRole != "" {
			userID := ""
			if info.Identity != nil {
				userID = info.Identity.UserID
			}
			if err := p.guard.Require(ctx, info.Membership, policy.MinRole, userID, policy.TenantOptional); err != nil {
				fail(err)
				return
			}
		}

		// Entitlement.
		if info.Membership != nil && policy.Action != "" {
			plan, err := p.gate.Require(ctx, info.Membership.TenantID, policy.Action)
			if err != nil {
				fail(err)
				return
			}
			info.Plan = plan
		}

		// Quota snapshot. Nothing is committed yet; a request that fails
		// later never consumes quota.
		if policy.QuotaMetric != "" && info.Membership != nil {
			if info.Plan == nil {
				info.Plan = p.gate.EffectivePlan(ctx, info.Membership.TenantID)
			}
			status, err := p.meter.Enforce(ctx, info.Membership.TenantID, policy.QuotaMetric, info.Plan)
			if status != nil {
				setQuotaHeaders(w, status)
			}
			if err != nil {
				fail(err)
				return
			}
			info.Quota = status
		}

		// Rate limit.
		if policy.RateLimit.Max > 0 {
			key := ratelimit.PrincipalKey(info.TenantID(), userIDOf(info.Identity), clientIP(r))
			res, err := p.limiter.Enforce(ctx, key, endpoint, policy.RateLimit)
			if res.Limit > 0 {
				setRateLimitHeaders(w, res)
			}
			if err != nil {
				fail(err)
				return
			}
		}

		// Idempotency replay.
		idemKey := ""
		if policy.Idempotent && isMutating(r.Method) {
			var err error
			idemKey, err = idempotencyKey(r)
			if err != nil {
				fail(err)
				return
			}
			if idemKey != "" {
				rec, err := p.idem.Check(ctx, idemKey, info.TenantID())
				if err != nil {
					fail(apierr.Internal(err))
					return
				}
				if rec != nil {
					p.replay(w, rec)
					metrics.ObserveRequest(policy.Action, rec.Status, time.Since(start))
					return
				}
			}
		}

		// Handler.
		cw := newCaptureWriter(w)
		handler(cw, r.WithContext(ContextWithInfo(ctx, info)))

		// Post-success bookkeeping.
		if cw.Success() {
			if policy.QuotaMetric != "" && info.Membership != nil {
				p.meter.Commit(ctx, info.Membership.TenantID, policy.QuotaMetric, 1)
			}
			if idemKey != "" {
				p.idem.Save(ctx, idemKey, info.TenantID(), cw.status, cw.body.Bytes(), "")
			}
		}
		metrics.ObserveRequest(policy.Action, cw.status, time.Since(start))
	})
}

// replay writes a stored response verbatim.
func (p *Pipeline) replay(w http.ResponseWriter, rec *models.IdempotencyRecord) {
	metrics.IdempotentReplays.Inc()
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(idempotency.HeaderReplay, "true")
	w.WriteHeader(rec.Status)
	if _, err := w.Write(rec.Body); err != nil {
		p.logger.Error().Err(err).Msg("failed to write replayed response")
	}
}

// count feeds the rejection counters that are keyed by more than status.
func (p *Pipeline) count(err error, endpoint string, policy RoutePolicy) {
	switch apierr.From(err).Kind {
	case apierr.KindRateLimited:
		metrics.RateLimitRejections.WithLabelValues(endpoint).Inc()
	case apierr.KindQuotaExceeded:
		metrics.QuotaRejections.WithLabelValues(policy.QuotaMetric).Inc()
	}
}

// authError maps authenticator sentinels onto the error taxonomy.
func authError(err error) error {
	switch {
	case errors.Is(err, auth.ErrNoCredentials):
		return apierr.Authentication("authentication required")
	case errors.Is(err, auth.ErrExpiredCredentials):
		return apierr.Authentication("credentials expired")
	case errors.Is(err, auth.ErrInvalidCredentials):
		return apierr.Authentication("invalid credentials")
	default:
		return apierr.Internal(err)
	}
}

// idempotencyKey extracts and bounds the caller-supplied key.
func idempotencyKey(r *http.Request) (string, error) {
	key := r.Header.Get(idempotency.HeaderKey)
	if len(key) > idempotency.MaxKeyLength {
		return "", apierr.Validation(
			fmt.Sprintf("%s must be at most %d characters", idempotency.HeaderKey, idempotency.MaxKeyLength), nil)
	}
	return key, nil
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func userIDOf(id *auth.Identity) string {
	if id == nil {
		return ""
	}
	return id.UserID
}

// clientIP strips the port from RemoteAddr. RealIP middleware upstream
// already rewrote it from forwarding headers when configured.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func setRateLimitHeaders(w http.ResponseWriter, res ratelimit.Result) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}

func setQuotaHeaders(w http.ResponseWriter, status *models.QuotaStatus) {
	h := w.Header()
	h.Set("X-Quota-Metric", status.Metric)
	h.Set("X-Quota-Used", strconv.FormatInt(status.Used, 10))
	if status.Limit != nil {
		h.Set("X-Quota-Limit", strconv.FormatInt(*status.Limit, 10))
	}
	if status.Remaining != nil {
		h.Set("X-Quota-Remaining", strconv.FormatInt(*status.Remaining, 10))
	}
}
