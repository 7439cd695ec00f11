// Gatehouse - Multi-Tenant SaaS API Gateway
// Copyright 2026 Gatehouse Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatehouse-io/gatehouse

package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKindStatusMapping(t *testing.T) {
	tests := []struct {
		kind   Kind
		status int
		code   string
	}{
		{KindAuthentication, http.StatusUnauthorized, "UNAUTHORIZED"},
		{KindForbidden, http.StatusForbidden, "FORBIDDEN"},
		{KindNotFound, http.StatusNotFound, "NOT_FOUND"},
		{KindConflict, http.StatusConflict, "CONFLICT"},
		{KindRateLimited, http.StatusTooManyRequests, "RATE_LIMITED"},
		{KindQuotaExceeded, http.StatusPaymentRequired, "QUOTA_EXCEEDED"},
		{KindValidation, http.StatusBadRequest, "VALIDATION_ERROR"},
		{KindInternal, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.status, tt.kind.Status())
			assert.Equal(t, tt.code, tt.kind.DefaultCode())
		})
	}
}

func TestAPIStatusOverride(t *testing.T) {
	e := API(http.StatusUnprocessableEntity, "UNPROCESSABLE", "cannot process")
	assert.Equal(t, http.StatusUnprocessableEntity, e.HTTPStatus())
	assert.Equal(t, "UNPROCESSABLE", e.MachineCode())
}

func TestRateLimitedCarriesRetryAfter(t *testing.T) {
	e := RateLimited("rate limit exceeded", 30*time.Second)
	assert.Equal(t, 30*time.Second, e.RetryAfter)
	assert.Equal(t, http.StatusTooManyRequests, e.HTTPStatus())
}

func TestInternalWrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	e := Internal(fmt.Errorf("store read: %w", cause))

	assert.ErrorIs(t, e, cause)
	assert.Equal(t, "internal server error", e.Message)
}

func TestFrom(t *testing.T) {
	t.Run("taxonomy error passes through", func(t *testing.T) {
		orig := Forbidden("requires role admin")
		assert.Same(t, orig, From(fmt.Errorf("wrapped: %w", orig)))
	})

	t.Run("unknown error becomes internal", func(t *testing.T) {
		e := From(errors.New("boom"))
		assert.Equal(t, KindInternal, e.Kind)
		assert.Equal(t, http.StatusInternalServerError, e.HTTPStatus())
	})
}
