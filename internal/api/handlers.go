// Gatehouse - Multi-Tenant SaaS API Gateway
// Copyright 2026 Gatehouse Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatehouse-io/gatehouse

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gatehouse-io/gatehouse/internal/apierr"
	"github.com/gatehouse-io/gatehouse/internal/gateway"
	"github.com/gatehouse-io/gatehouse/internal/validation"
)

func (rt *Router) handleLive(w http.ResponseWriter, r *http.Request) {
	gateway.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := rt.ready(); err != nil {
		gateway.WriteError(w, r, apierr.API(http.StatusServiceUnavailable, "NOT_READY", "backing store unavailable"))
		return
	}
	gateway.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleProfile returns the caller's resolved identity and tenancy. With
// TenantOptional, tenant may be empty.
func (rt *Router) handleProfile(w http.ResponseWriter, r *http.Request) {
	info := gateway.InfoFromContext(r.Context())

	resp := map[string]any{
		"user_id": info.Identity.UserID,
		"method":  info.Identity.Method,
	}
	if info.Identity.Email != "" {
		resp["email"] = info.Identity.Email
	}
	if info.Membership != nil {
		resp["tenant_id"] = info.Membership.TenantID
		resp["role"] = info.Membership.Role
	}
	gateway.WriteJSON(w, http.StatusOK, resp)
}

type createGenerationRequest struct {
	Prompt string `json:"prompt" validate:"required,min=1,max=4000"`
}

// handleCreateGeneration is the metered demo mutation. The actual
// generation runs in a downstream worker; the gateway's contract ends at
// accepting the job.
func (rt *Router) handleCreateGeneration(w http.ResponseWriter, r *http.Request) {
	var req createGenerationRequest
	if err := validation.DecodeJSON(r, &req); err != nil {
		gateway.WriteError(w, r, err)
		return
	}

	info := gateway.InfoFromContext(r.Context())
	gateway.WriteJSON(w, http.StatusCreated, map[string]any{
		"job_id":     uuid.NewString(),
		"tenant_id":  info.TenantID(),
		"status":     "queued",
		"created_at": time.Now().UTC().Format(time.RFC3339),
	})
}

type createExportRequest struct {
	Format string `json:"format" validate:"required,oneof=csv json pdf"`
}

func (rt *Router) handleCreateExport(w http.ResponseWriter, r *http.Request) {
	var req createExportRequest
	if err := validation.DecodeJSON(r, &req); err != nil {
		gateway.WriteError(w, r, err)
		return
	}

	gateway.WriteJSON(w, http.StatusCreated, map[string]any{
		"export_id": uuid.NewString(),
		"format":    req.Format,
		"status":    "queued",
	})
}

// handleQuota reports the tenant's position against every metered limit of
// its plan.
func (rt *Router) handleQuota(w http.ResponseWriter, r *http.Request) {
	info := gateway.InfoFromContext(r.Context())
	plan := rt.gate.EffectivePlan(r.Context(), info.TenantID())

	statuses := make([]any, 0, len(plan.QuotaPolicy))
	for metric := range plan.QuotaPolicy {
		status, err := rt.meter.Check(r.Context(), info.TenantID(), metric, plan)
		if err != nil {
			gateway.WriteError(w, r, apierr.Internal(err))
			return
		}
		statuses = append(statuses, status)
	}
	gateway.WriteJSON(w, http.StatusOK, map[string]any{
		"plan":   plan.Slug,
		"quotas": statuses,
	})
}

type createServiceKeyRequest struct {
	Name      string `json:"name" validate:"required,min=1,max=100"`
	ExpiresIn string `json:"expires_in" validate:"omitempty,oneof=30d 90d 1y never"`
}

// handleCreateServiceKey mints a key bound to the caller's (tenant, user).
// The plaintext token appears in this response and never again.
func (rt *Router) handleCreateServiceKey(w http.ResponseWriter, r *http.Request) {
	var req createServiceKeyRequest
	if err := validation.DecodeJSON(r, &req); err != nil {
		gateway.WriteError(w, r, err)
		return
	}

	info := gateway.InfoFromContext(r.Context())
	if info.Identity.IsServiceKey() {
		gateway.WriteError(w, r, apierr.Forbidden("service keys cannot create service keys"))
		return
	}

	key, plaintext, err := rt.keys.Create(r.Context(), info.TenantID(), info.Identity.UserID, req.Name, expiryFrom(req.ExpiresIn))
	if err != nil {
		gateway.WriteError(w, r, apierr.Internal(err))
		return
	}

	gateway.WriteJSON(w, http.StatusCreated, map[string]any{
		"key":   key,
		"token": plaintext,
	})
}

func (rt *Router) handleRevokeServiceKey(w http.ResponseWriter, r *http.Request) {
	keyID := chi.URLParam(r, "keyID")
	if err := rt.keys.Revoke(r.Context(), keyID); err != nil {
		gateway.WriteError(w, r, apierr.NotFound("service key not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) handleAdminStatus(w http.ResponseWriter, r *http.Request) {
	gateway.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type billingWebhookRequest struct {
	TenantID string `json:"tenant_id" validate:"required"`
	Event    string `json:"event" validate:"required"`
}

// handleBillingWebhook invalidates the cached plan so the next request
// resolves the new subscription state.
func (rt *Router) handleBillingWebhook(w http.ResponseWriter, r *http.Request) {
	var req billingWebhookRequest
	if err := validation.DecodeJSON(r, &req); err != nil {
		gateway.WriteError(w, r, err)
		return
	}

	rt.gate.Invalidate(req.TenantID)
	w.WriteHeader(http.StatusNoContent)
}

// expiryFrom maps the request's expiry shorthand to an absolute time.
func expiryFrom(expiresIn string) *time.Time {
	var d time.Duration
	switch expiresIn {
	case "30d":
		d = 30 * 24 * time.Hour
	case "90d":
		d = 90 * 24 * time.Hour
	case "1y":
		d = 365 * 24 * time.Hour
	default:
		return nil
	}
	at := time.Now().UTC().Add(d)
	return &at
}
