// Gatehouse - Multi-Tenant SaaS API Gateway
// Copyright 2026 Gatehouse Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatehouse-io/gatehouse

// Package middleware holds the edge middleware applied outside the policy
// pipeline: request IDs, CORS, and the coarse pre-auth rate limit.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/gatehouse-io/gatehouse/internal/logging"
)

// RequestIDHeader is echoed on every response so callers can correlate
// logs and error envelopes.
const RequestIDHeader = "X-Request-Id"

// maxRequestIDLength guards against header abuse when echoing caller IDs.
const maxRequestIDLength = 128

// RequestID echoes a caller-supplied X-Request-Id or mints a UUID, stores
// it in the request context, and sets the response header before the
// handler runs so it survives early pipeline rejections.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := logging.ContextWithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
